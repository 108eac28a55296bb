package subject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"markit/internal/httpapi"
	"markit/internal/hub"
	"markit/internal/notify"
	"markit/internal/stats"
)

// Store is the persistence surface the subject service needs.
type Store interface {
	Insert(ctx context.Context, sub *Subject) error
	Update(ctx context.Context, sub *Subject) error
	Delete(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	GetForUser(ctx context.Context, id, userID string) (*Subject, error)
	FindActiveByName(ctx context.Context, userID, name, excludeID string) (*Subject, error)
	List(ctx context.Context, userID string, f ListFilter) ([]Subject, int, error)
	LectureCount(ctx context.Context, subjectID string) (int, error)
	RecentLectures(ctx context.Context, subjectID string, limit int) ([]LectureBrief, error)
}

// GoalStore reads and writes the user's global attendance goal.
type GoalStore interface {
	AttendanceGoal(ctx context.Context, userID string) (int, error)
	UpdateAttendanceGoal(ctx context.Context, userID string, goal int) error
}

// ListFilter narrows and pages the subject listing.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
	Sort   string
}

// Service owns subject CRUD plus the per-subject statistics view.
type Service struct {
	store    Store
	goals    GoalStore
	engine   *stats.Engine
	notifier notify.Notifier
	now      func() time.Time
}

// NewService wires the subject service.
func NewService(store Store, goals GoalStore, engine *stats.Engine, notifier notify.Notifier) *Service {
	return &Service{store: store, goals: goals, engine: engine, notifier: notifier, now: time.Now}
}

// Input is the create/update payload for a subject. On update, zero-value
// fields are treated as unchanged for strings and nested records.
type Input struct {
	Name        string      `json:"name"`
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Instructor  *Instructor `json:"instructor"`
	Schedule    []Slot      `json:"schedule"`
	Semester    string      `json:"semester"`
	Year        int         `json:"year"`
	Color       string      `json:"color"`
}

func validateInput(in Input, requireName bool) *httpapi.Error {
	var fields []httpapi.FieldError
	addErr := func(field, msg string) {
		fields = append(fields, httpapi.FieldError{Field: field, Message: msg})
	}

	if in.Name == "" {
		if requireName {
			addErr("name", "Subject name is required")
		}
	} else if len(in.Name) > 100 {
		addErr("name", "Subject name cannot exceed 100 characters")
	}
	if len(in.Code) > 20 {
		addErr("code", "Subject code cannot exceed 20 characters")
	}
	if len(in.Description) > 500 {
		addErr("description", "Description cannot exceed 500 characters")
	}
	if in.Instructor != nil {
		if len(in.Instructor.Name) > 100 {
			addErr("instructor.name", "Instructor name cannot exceed 100 characters")
		}
		if in.Instructor.Email != "" && !emailRe.MatchString(in.Instructor.Email) {
			addErr("instructor.email", "Please enter a valid email")
		}
	}
	for i, slot := range in.Schedule {
		if !weekdays[slot.Day] {
			addErr(fmt.Sprintf("schedule.%d.day", i), "Day must be a weekday name")
		}
		if !timeRe.MatchString(slot.StartTime) || !timeRe.MatchString(slot.EndTime) {
			addErr(fmt.Sprintf("schedule.%d", i), "Please enter valid time format (HH:MM)")
		}
	}
	if in.Year != 0 && (in.Year < 2020 || in.Year > 2030) {
		addErr("year", "Year must be between 2020 and 2030")
	}
	if in.Color != "" && !colorRe.MatchString(in.Color) {
		addErr("color", "Please enter a valid hex color")
	}

	if len(fields) > 0 {
		return httpapi.Validationf("Validation failed", fields...)
	}
	return nil
}

// Create adds a new subject. An active subject with the same name for the
// same user is a conflict.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*Subject, error) {
	if verr := validateInput(in, true); verr != nil {
		return nil, verr
	}

	dup, err := s.store.FindActiveByName(ctx, userID, in.Name, "")
	if err != nil {
		return nil, httpapi.Storef("subject lookup failed", err)
	}
	if dup != nil {
		return nil, httpapi.Conflictf("Subject with this name already exists")
	}

	color := in.Color
	if color == "" {
		color = "#3b82f6"
	}
	now := s.now().UTC()
	sub := &Subject{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        in.Name,
		Code:        in.Code,
		Description: in.Description,
		Instructor:  in.Instructor,
		Schedule:    in.Schedule,
		Semester:    in.Semester,
		Year:        in.Year,
		Color:       color,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		return nil, httpapi.Storef("subject insert failed", err)
	}

	s.notifier.Emit(userID, "notification", hub.Notification{
		Type:    "subject_created",
		Message: fmt.Sprintf("Subject %q created successfully", sub.Name),
		Data:    map[string]any{"subjectId": sub.ID, "subjectName": sub.Name},
	})
	return sub, nil
}

// Update applies a partial update. Renaming into another active subject's
// name is a conflict.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*Subject, error) {
	if verr := validateInput(in, false); verr != nil {
		return nil, verr
	}

	sub, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, httpapi.Storef("subject lookup failed", err)
	}
	if sub == nil {
		return nil, httpapi.NotFoundf("Subject not found")
	}

	if in.Name != "" && in.Name != sub.Name {
		dup, err := s.store.FindActiveByName(ctx, userID, in.Name, id)
		if err != nil {
			return nil, httpapi.Storef("subject lookup failed", err)
		}
		if dup != nil {
			return nil, httpapi.Conflictf("Subject with this name already exists")
		}
		sub.Name = in.Name
	}
	if in.Code != "" {
		sub.Code = in.Code
	}
	if in.Description != "" {
		sub.Description = in.Description
	}
	if in.Instructor != nil {
		sub.Instructor = in.Instructor
	}
	if in.Schedule != nil {
		sub.Schedule = in.Schedule
	}
	if in.Semester != "" {
		sub.Semester = in.Semester
	}
	if in.Year != 0 {
		sub.Year = in.Year
	}
	if in.Color != "" {
		sub.Color = in.Color
	}
	sub.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, sub); err != nil {
		return nil, httpapi.Storef("subject update failed", err)
	}

	s.notifier.Emit(userID, "notification", hub.Notification{
		Type:    "subject_updated",
		Message: fmt.Sprintf("Subject %q updated successfully", sub.Name),
		Data:    map[string]any{"subjectId": sub.ID, "subjectName": sub.Name},
	})
	return sub, nil
}

// Delete removes a subject. A subject that already has lectures is archived
// (marked inactive) instead, so its history survives. Returns the message to
// surface to the caller.
func (s *Service) Delete(ctx context.Context, userID, id string) (string, error) {
	sub, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return "", httpapi.Storef("subject lookup failed", err)
	}
	if sub == nil {
		return "", httpapi.NotFoundf("Subject not found")
	}

	count, err := s.store.LectureCount(ctx, id)
	if err != nil {
		return "", httpapi.Storef("lecture count failed", err)
	}
	if count > 0 {
		if err := s.store.Archive(ctx, id); err != nil {
			return "", httpapi.Storef("subject archive failed", err)
		}
		return "Subject archived successfully (has existing lectures)", nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return "", httpapi.Storef("subject delete failed", err)
	}

	s.notifier.Emit(userID, "notification", hub.Notification{
		Type:    "subject_deleted",
		Message: fmt.Sprintf("Subject %q deleted successfully", sub.Name),
	})
	return "Subject deleted successfully", nil
}

// Get returns a subject with its 20 most recent lectures.
func (s *Service) Get(ctx context.Context, userID, id string) (*Subject, error) {
	sub, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, httpapi.Storef("subject lookup failed", err)
	}
	if sub == nil {
		return nil, httpapi.NotFoundf("Subject not found")
	}
	recent, err := s.store.RecentLectures(ctx, id, 20)
	if err != nil {
		return nil, httpapi.Storef("lecture lookup failed", err)
	}
	sub.RecentLectures = recent
	return sub, nil
}

// List returns a filtered page of subjects, each with its 5 most recent
// lectures, plus the total match count.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]Subject, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	subjects, total, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, 0, httpapi.Storef("subject list failed", err)
	}
	for i := range subjects {
		recent, err := s.store.RecentLectures(ctx, subjects[i].ID, 5)
		if err != nil {
			return nil, 0, httpapi.Storef("lecture lookup failed", err)
		}
		subjects[i].RecentLectures = recent
	}
	return subjects, total, nil
}

// StatsView is the per-subject statistics response.
type StatsView struct {
	Subject        map[string]any      `json:"subject"`
	Stats          stats.StatusCounts  `json:"stats"`
	MonthlyTrend   []stats.MonthBucket `json:"monthlyTrend"`
	RecentLectures []LectureBrief      `json:"recentLectures"`
	MeetsGoal      bool                `json:"meetsGoal"`
}

// Stats assembles the per-subject breakdown: exact status counts, monthly
// trend and recent lectures, judged against the user's attendance goal.
func (s *Service) Stats(ctx context.Context, userID, id string) (*StatsView, error) {
	sub, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, httpapi.Storef("subject lookup failed", err)
	}
	if sub == nil {
		return nil, httpapi.NotFoundf("Subject not found")
	}

	counts, err := s.engine.SubjectStatusCounts(ctx, id)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	counts.Total = sub.TotalLectures
	counts.Percentage = sub.AttendancePercentage

	trend, err := s.engine.MonthlyTrend(ctx, id)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	recent, err := s.store.RecentLectures(ctx, id, 10)
	if err != nil {
		return nil, httpapi.Storef("lecture lookup failed", err)
	}
	goal, err := s.goals.AttendanceGoal(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("goal lookup failed", err)
	}

	return &StatsView{
		Subject: map[string]any{
			"id":    sub.ID,
			"name":  sub.Name,
			"code":  sub.Code,
			"color": sub.Color,
		},
		Stats:          counts,
		MonthlyTrend:   trend,
		RecentLectures: recent,
		MeetsGoal:      sub.MeetsGoal(goal),
	}, nil
}

// UpdateGoal sets the user's global attendance goal and reports whether the
// named subject currently meets it.
func (s *Service) UpdateGoal(ctx context.Context, userID, id string, goal int) (bool, error) {
	if goal < 0 || goal > 100 {
		return false, httpapi.Validationf("Attendance goal must be a number between 0 and 100")
	}

	sub, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return false, httpapi.Storef("subject lookup failed", err)
	}
	if sub == nil {
		return false, httpapi.NotFoundf("Subject not found")
	}

	if err := s.goals.UpdateAttendanceGoal(ctx, userID, goal); err != nil {
		return false, httpapi.Storef("goal update failed", err)
	}
	return sub.MeetsGoal(goal), nil
}

// BulkItem is one entry of a bulk subject update.
type BulkItem struct {
	ID string `json:"id"`
	Input
}

// BulkUpdate applies independent partial updates; entries referencing
// subjects the user does not own are skipped.
func (s *Service) BulkUpdate(ctx context.Context, userID string, items []BulkItem) ([]Subject, error) {
	var updated []Subject
	for _, item := range items {
		sub, err := s.Update(ctx, userID, item.ID, item.Input)
		if err != nil {
			var apiErr *httpapi.Error
			if errors.As(err, &apiErr) && apiErr.Kind == httpapi.KindNotFound {
				continue
			}
			return nil, err
		}
		updated = append(updated, *sub)
	}
	return updated, nil
}
