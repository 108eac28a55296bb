package lecture

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"markit/internal/httpapi"
	"markit/internal/hub"
	"markit/internal/notify"
	"markit/internal/stats"
)

// Store is the persistence surface the lifecycle controller needs.
type Store interface {
	Insert(ctx context.Context, lec *Lecture) error
	Update(ctx context.Context, lec *Lecture) error
	Delete(ctx context.Context, id string) error
	GetForUser(ctx context.Context, id, userID string) (*Lecture, error)
	FindSlot(ctx context.Context, subjectID string, date time.Time, startTime string) (*Lecture, error)
	FindByDate(ctx context.Context, userID, subjectID string, date time.Time) (*Lecture, error)
	List(ctx context.Context, userID string, f ListFilter) ([]Lecture, int, error)
	ListRange(ctx context.Context, userID string, start, end time.Time) ([]Lecture, error)
	ListUpcoming(ctx context.Context, userID string, from, to time.Time, limit int) ([]Lecture, error)
	UpdateStatus(ctx context.Context, id, userID, status string) (*Lecture, error)
	ActiveSubject(ctx context.Context, subjectID, userID string) (*SubjectRef, error)
	OwnedSubject(ctx context.Context, subjectID, userID string) (*SubjectRef, error)
}

// Recomputer refreshes a subject's cached statistics after a mutation.
type Recomputer interface {
	Recompute(ctx context.Context, subjectID string) (stats.SubjectTotals, error)
}

// ListFilter narrows and pages the lecture listing.
type ListFilter struct {
	Search    string
	SubjectID string
	Status    string
	Start     *time.Time
	End       *time.Time
	Page      int
	Limit     int
	Sort      string
}

// Service is the attendance lifecycle controller: it owns create/update/
// delete of lectures, enforces ownership and slot uniqueness, and fires the
// statistics recompute plus notifications after each successful mutation.
type Service struct {
	store    Store
	rec      Recomputer
	notifier notify.Notifier
	now      func() time.Time
}

// NewService wires the controller.
func NewService(store Store, rec Recomputer, notifier notify.Notifier) *Service {
	return &Service{store: store, rec: rec, notifier: notifier, now: time.Now}
}

// CreateInput is the payload for creating a lecture.
type CreateInput struct {
	SubjectID   string       `json:"subjectId"`
	Title       string       `json:"title"`
	Topic       string       `json:"topic"`
	Description string       `json:"description"`
	Date        string       `json:"date"`
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime"`
	Room        string       `json:"room"`
	Status      string       `json:"status"`
	Notes       string       `json:"notes"`
	Materials   []Material   `json:"materials"`
	Assignments []Assignment `json:"assignments"`
	IsImportant bool         `json:"isImportant"`
	IsExam      bool         `json:"isExam"`
	ExamType    string       `json:"examType"`
}

func (s *Service) validateCreate(in CreateInput) (time.Time, *httpapi.Error) {
	var fields []httpapi.FieldError
	addErr := func(field, msg string) {
		fields = append(fields, httpapi.FieldError{Field: field, Message: msg})
	}

	if in.SubjectID == "" {
		addErr("subjectId", "Subject ID is required")
	}
	if in.Title == "" {
		addErr("title", "Lecture title is required")
	} else if len(in.Title) > 200 {
		addErr("title", "Lecture title cannot exceed 200 characters")
	}
	if in.Topic == "" {
		addErr("topic", "Lecture topic is required")
	} else if len(in.Topic) > 300 {
		addErr("topic", "Lecture topic cannot exceed 300 characters")
	}
	if len(in.Description) > 1000 {
		addErr("description", "Description cannot exceed 1000 characters")
	}
	if len(in.Notes) > 1000 {
		addErr("notes", "Notes cannot exceed 1000 characters")
	}
	if !ValidTime(in.StartTime) {
		addErr("startTime", "Please enter valid time format (HH:MM)")
	}
	if !ValidTime(in.EndTime) {
		addErr("endTime", "Please enter valid time format (HH:MM)")
	}
	if in.Status != "" && !ValidStatus(in.Status) {
		addErr("status", "Status must be present, absent, late, or excused")
	}

	var date time.Time
	if in.Date == "" {
		addErr("date", "Lecture date is required")
	} else {
		var err error
		date, err = time.Parse("2006-01-02", in.Date)
		if err != nil {
			addErr("date", "Please enter a valid date (YYYY-MM-DD)")
		} else if date.After(s.now()) {
			addErr("date", "Lecture date cannot be in the future")
		}
	}

	if len(fields) > 0 {
		return time.Time{}, httpapi.Validationf("Validation failed", fields...)
	}
	return date, nil
}

// Create persists a new lecture for the user, recomputes the subject's cached
// statistics and notifies the user's connections.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Lecture, error) {
	date, verr := s.validateCreate(in)
	if verr != nil {
		return nil, verr
	}

	subj, err := s.store.ActiveSubject(ctx, in.SubjectID, userID)
	if err != nil {
		return nil, httpapi.Storef("subject lookup failed", err)
	}
	if subj == nil {
		return nil, httpapi.NotFoundf("Subject not found or not accessible")
	}

	dup, err := s.store.FindSlot(ctx, in.SubjectID, date, in.StartTime)
	if err != nil {
		return nil, httpapi.Storef("duplicate check failed", err)
	}
	if dup != nil {
		return nil, httpapi.Conflictf("A lecture already exists for this subject at the same date and time")
	}

	status := in.Status
	if status == "" {
		status = StatusAbsent
	}
	now := s.now().UTC()
	lec := &Lecture{
		ID:          uuid.NewString(),
		SubjectID:   in.SubjectID,
		UserID:      userID,
		Title:       in.Title,
		Topic:       in.Topic,
		Description: in.Description,
		Date:        date,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Duration:    Duration(in.StartTime, in.EndTime),
		Room:        in.Room,
		Status:      status,
		Notes:       in.Notes,
		Materials:   in.Materials,
		Assignments: in.Assignments,
		IsImportant: in.IsImportant,
		IsExam:      in.IsExam,
		ExamType:    in.ExamType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, lec); err != nil {
		return nil, httpapi.Storef("lecture insert failed", err)
	}
	lec.Subject = subj

	// The lecture is committed; a failed recompute only leaves the cached
	// counters stale until the retry queue heals them.
	totals, recErr := s.rec.Recompute(ctx, lec.SubjectID)
	if recErr != nil {
		log.Printf("stats recompute for subject %s failed: %v", lec.SubjectID, recErr)
	}

	s.notifier.Emit(userID, "notification", hub.Notification{
		Type:    "lecture_created",
		Message: fmt.Sprintf("New lecture %q added to %s", lec.Title, subj.Name),
		Data: map[string]any{
			"lectureId":    lec.ID,
			"lectureTitle": lec.Title,
			"subjectName":  subj.Name,
			"status":       lec.Status,
		},
	})
	if recErr == nil {
		s.notifier.Emit(userID, "attendance_updated", hub.AttendanceUpdate{
			SubjectID:            lec.SubjectID,
			AttendancePercentage: totals.AttendancePercentage,
		})
	}
	return lec, nil
}

// UpdateInput carries the mutable lecture fields; nil means unchanged.
type UpdateInput struct {
	Title       *string       `json:"title"`
	Topic       *string       `json:"topic"`
	Description *string       `json:"description"`
	Date        *string       `json:"date"`
	StartTime   *string       `json:"startTime"`
	EndTime     *string       `json:"endTime"`
	Room        *string       `json:"room"`
	Status      *string       `json:"status"`
	Notes       *string       `json:"notes"`
	Materials   *[]Material   `json:"materials"`
	Assignments *[]Assignment `json:"assignments"`
	IsImportant *bool         `json:"isImportant"`
	IsExam      *bool         `json:"isExam"`
	ExamType    *string       `json:"examType"`
}

var statusMessages = map[string]string{
	StatusPresent: "marked as Present",
	StatusAbsent:  "marked as Absent",
	StatusLate:    "marked as Late",
	StatusExcused: "marked as Excused",
}

// Update applies a partial update to an owned lecture. A status change
// triggers the statistics recompute; if that recompute fails the error is
// logged and the update still succeeds (stats may transiently lag).
func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Lecture, error) {
	lec, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, httpapi.Storef("lecture lookup failed", err)
	}
	if lec == nil {
		return nil, httpapi.NotFoundf("Lecture not found")
	}

	prevStatus := lec.Status
	if verr := applyUpdate(lec, in); verr != nil {
		return nil, verr
	}
	lec.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, lec); err != nil {
		return nil, httpapi.Storef("lecture update failed", err)
	}

	if lec.Status != prevStatus {
		totals, err := s.rec.Recompute(ctx, lec.SubjectID)
		if err != nil {
			log.Printf("stats recompute for subject %s failed: %v", lec.SubjectID, err)
		} else {
			subjectName := "Subject"
			if lec.Subject != nil {
				subjectName = lec.Subject.Name
			}
			s.notifier.Emit(userID, "notification", hub.Notification{
				Type:    "lecture_updated",
				Message: "Attendance " + statusMessages[lec.Status],
				Data: map[string]any{
					"lectureId":   lec.ID,
					"subjectName": subjectName,
					"status":      lec.Status,
				},
			})
			s.notifier.Emit(userID, "attendance_updated", hub.AttendanceUpdate{
				SubjectID:            lec.SubjectID,
				AttendancePercentage: totals.AttendancePercentage,
			})
		}
	}
	return lec, nil
}

func applyUpdate(lec *Lecture, in UpdateInput) *httpapi.Error {
	var fields []httpapi.FieldError
	addErr := func(field, msg string) {
		fields = append(fields, httpapi.FieldError{Field: field, Message: msg})
	}

	if in.Title != nil {
		if *in.Title == "" || len(*in.Title) > 200 {
			addErr("title", "Lecture title must be between 1 and 200 characters")
		} else {
			lec.Title = *in.Title
		}
	}
	if in.Topic != nil {
		if *in.Topic == "" || len(*in.Topic) > 300 {
			addErr("topic", "Lecture topic must be between 1 and 300 characters")
		} else {
			lec.Topic = *in.Topic
		}
	}
	if in.Description != nil {
		if len(*in.Description) > 1000 {
			addErr("description", "Description cannot exceed 1000 characters")
		} else {
			lec.Description = *in.Description
		}
	}
	if in.Date != nil {
		d, err := time.Parse("2006-01-02", *in.Date)
		if err != nil {
			addErr("date", "Please enter a valid date (YYYY-MM-DD)")
		} else {
			lec.Date = d
		}
	}
	if in.StartTime != nil {
		if !ValidTime(*in.StartTime) {
			addErr("startTime", "Please enter valid time format (HH:MM)")
		} else {
			lec.StartTime = *in.StartTime
		}
	}
	if in.EndTime != nil {
		if !ValidTime(*in.EndTime) {
			addErr("endTime", "Please enter valid time format (HH:MM)")
		} else {
			lec.EndTime = *in.EndTime
		}
	}
	if in.Status != nil {
		if !ValidStatus(*in.Status) {
			addErr("status", "Status must be present, absent, late, or excused")
		} else {
			lec.Status = *in.Status
		}
	}
	if in.Notes != nil {
		if len(*in.Notes) > 1000 {
			addErr("notes", "Notes cannot exceed 1000 characters")
		} else {
			lec.Notes = *in.Notes
		}
	}
	if in.Room != nil {
		lec.Room = *in.Room
	}
	if in.Materials != nil {
		lec.Materials = *in.Materials
	}
	if in.Assignments != nil {
		lec.Assignments = *in.Assignments
	}
	if in.IsImportant != nil {
		lec.IsImportant = *in.IsImportant
	}
	if in.IsExam != nil {
		lec.IsExam = *in.IsExam
	}
	if in.ExamType != nil {
		lec.ExamType = *in.ExamType
	}

	if len(fields) > 0 {
		return httpapi.Validationf("Validation failed", fields...)
	}
	lec.Duration = Duration(lec.StartTime, lec.EndTime)
	return nil
}

// Delete removes an owned lecture and unconditionally recomputes the
// subject's cached statistics. The delete succeeds even when the recompute
// fails; the retry queue converges the counters.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	lec, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return httpapi.Storef("lecture lookup failed", err)
	}
	if lec == nil {
		return httpapi.NotFoundf("Lecture not found")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return httpapi.Storef("lecture delete failed", err)
	}

	if _, err := s.rec.Recompute(ctx, lec.SubjectID); err != nil {
		log.Printf("stats recompute for subject %s failed: %v", lec.SubjectID, err)
	}

	subjectName := "Subject"
	if lec.Subject != nil {
		subjectName = lec.Subject.Name
	}
	s.notifier.Emit(userID, "notification", hub.Notification{
		Type:    "lecture_deleted",
		Message: fmt.Sprintf("Lecture %q deleted from %s", lec.Title, subjectName),
		Data: map[string]any{
			"lectureId": lec.ID,
			"subjectId": lec.SubjectID,
		},
	})
	return nil
}

// BulkItem is one entry of a bulk attendance update.
type BulkItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BulkAttendance applies independent status updates. Entries with an invalid
// status are silently skipped. Each affected subject is recomputed once.
func (s *Service) BulkAttendance(ctx context.Context, userID string, items []BulkItem) ([]Lecture, error) {
	var updated []Lecture
	touched := map[string]struct{}{}
	for _, item := range items {
		if !ValidStatus(item.Status) {
			continue
		}
		lec, err := s.store.UpdateStatus(ctx, item.ID, userID, item.Status)
		if err != nil {
			return nil, httpapi.Storef("bulk status update failed", err)
		}
		if lec == nil {
			continue
		}
		updated = append(updated, *lec)
		touched[lec.SubjectID] = struct{}{}
	}

	for subjectID := range touched {
		if _, err := s.rec.Recompute(ctx, subjectID); err != nil {
			log.Printf("stats recompute for subject %s failed: %v", subjectID, err)
		}
	}

	if len(updated) > 0 {
		s.notifier.Emit(userID, "notification", hub.Notification{
			Type:    "bulk_attendance_updated",
			Message: fmt.Sprintf("Updated attendance for %d lectures", len(updated)),
			Data:    map[string]any{"count": len(updated)},
		})
	}
	return updated, nil
}

// MarkEntry is one (subject, status) pair for a mark-attendance call.
type MarkEntry struct {
	SubjectID string `json:"subjectId"`
	Status    string `json:"status"`
}

// MarkAttendance upserts one lecture per subject for the given date: the
// existing lecture for (user, subject, date) is status-updated, otherwise a
// placeholder lecture is created. This is the one create path that bypasses
// the exact time-slot duplicate check, because it upserts by date.
func (s *Service) MarkAttendance(ctx context.Context, userID, dateStr string, entries []MarkEntry) ([]Lecture, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, httpapi.Validationf("Please enter a valid date (YYYY-MM-DD)")
	}

	var results []Lecture
	touched := map[string]struct{}{}
	for _, entry := range entries {
		if !ValidStatus(entry.Status) {
			return nil, httpapi.Validationf("Status must be present, absent, late, or excused")
		}

		existing, err := s.store.FindByDate(ctx, userID, entry.SubjectID, date)
		if err != nil {
			return nil, httpapi.Storef("lecture lookup failed", err)
		}
		if existing != nil {
			existing.Status = entry.Status
			existing.UpdatedAt = s.now().UTC()
			if err := s.store.Update(ctx, existing); err != nil {
				return nil, httpapi.Storef("lecture update failed", err)
			}
			results = append(results, *existing)
			touched[existing.SubjectID] = struct{}{}
			continue
		}

		subj, err := s.store.OwnedSubject(ctx, entry.SubjectID, userID)
		if err != nil {
			return nil, httpapi.Storef("subject lookup failed", err)
		}
		if subj == nil {
			continue
		}
		now := s.now().UTC()
		lec := &Lecture{
			ID:        uuid.NewString(),
			SubjectID: entry.SubjectID,
			UserID:    userID,
			Title:     fmt.Sprintf("%s - %s", subj.Name, date.Format("2006-01-02")),
			Topic:     "Regular class",
			Date:      date,
			StartTime: "09:00",
			EndTime:   "10:00",
			Duration:  60,
			Status:    entry.Status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Insert(ctx, lec); err != nil {
			return nil, httpapi.Storef("lecture insert failed", err)
		}
		lec.Subject = subj
		results = append(results, *lec)
		touched[lec.SubjectID] = struct{}{}
	}

	for subjectID := range touched {
		if _, err := s.rec.Recompute(ctx, subjectID); err != nil {
			log.Printf("stats recompute for subject %s failed: %v", subjectID, err)
		}
	}

	if len(results) > 0 {
		s.notifier.Emit(userID, "notification", hub.Notification{
			Type:    "attendance_marked",
			Message: fmt.Sprintf("Attendance marked for %d subjects on %s", len(results), date.Format("2006-01-02")),
			Data:    map[string]any{"count": len(results), "date": date.Format("2006-01-02")},
		})
	}
	return results, nil
}

// Get returns an owned lecture.
func (s *Service) Get(ctx context.Context, userID, id string) (*Lecture, error) {
	lec, err := s.store.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, httpapi.Storef("lecture lookup failed", err)
	}
	if lec == nil {
		return nil, httpapi.NotFoundf("Lecture not found")
	}
	return lec, nil
}

// List returns a filtered, paged listing plus the total match count.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]Lecture, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, httpapi.Validationf("Status must be present, absent, late, or excused")
	}
	lectures, total, err := s.store.List(ctx, userID, f)
	if err != nil {
		return nil, 0, httpapi.Storef("lecture list failed", err)
	}
	return lectures, total, nil
}

// Range returns lectures between start and end grouped by ISO date.
func (s *Service) Range(ctx context.Context, userID, startStr, endStr string) (map[string][]Lecture, int, error) {
	start, err1 := time.Parse("2006-01-02", startStr)
	end, err2 := time.Parse("2006-01-02", endStr)
	if err1 != nil || err2 != nil {
		return nil, 0, httpapi.Validationf("Please enter valid dates (YYYY-MM-DD)")
	}
	if start.After(end) {
		return nil, 0, httpapi.Validationf("Start date must be before end date")
	}
	lectures, err := s.store.ListRange(ctx, userID, start, end)
	if err != nil {
		return nil, 0, httpapi.Storef("lecture range query failed", err)
	}
	grouped := map[string][]Lecture{}
	for _, lec := range lectures {
		key := lec.Date.Format("2006-01-02")
		grouped[key] = append(grouped[key], lec)
	}
	return grouped, len(lectures), nil
}

// Today returns the user's lectures dated today.
func (s *Service) Today(ctx context.Context, userID string) ([]Lecture, error) {
	today := s.now()
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	lectures, err := s.store.ListRange(ctx, userID, day, day)
	if err != nil {
		return nil, httpapi.Storef("lecture range query failed", err)
	}
	return lectures, nil
}

// Upcoming returns up to 10 lectures in the next seven days.
func (s *Service) Upcoming(ctx context.Context, userID string) ([]Lecture, error) {
	now := s.now()
	lectures, err := s.store.ListUpcoming(ctx, userID, now, now.AddDate(0, 0, 7), 10)
	if err != nil {
		return nil, httpapi.Storef("lecture range query failed", err)
	}
	return lectures, nil
}
