package dashboard

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"markit/internal/httpapi"
	"markit/internal/lecture"
	"markit/internal/stats"
	"markit/internal/subject"
	"markit/internal/user"
)

// UserSource resolves the account behind a dashboard request.
type UserSource interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// LectureSource reads lecture lists for the dashboard panels.
type LectureSource interface {
	Today(ctx context.Context, userID string) ([]lecture.Lecture, error)
	Upcoming(ctx context.Context, userID string) ([]lecture.Lecture, error)
	List(ctx context.Context, userID string, f lecture.ListFilter) ([]lecture.Lecture, int, error)
}

// SeedStore is the write surface the demo seeder needs.
type SeedStore interface {
	InsertSubject(ctx context.Context, sub *subject.Subject) error
	InsertLecture(ctx context.Context, lec *lecture.Lecture) error
	SubjectCount(ctx context.Context, userID string) (int, error)
}

// Recomputer refreshes a subject's cached statistics.
type Recomputer interface {
	Recompute(ctx context.Context, subjectID string) (stats.SubjectTotals, error)
}

// Service assembles the dashboard views from the statistics engine and the
// lecture and user services.
type Service struct {
	users    UserSource
	lectures LectureSource
	engine   *stats.Engine
	seed     SeedStore
	rec      Recomputer
	now      func() time.Time
}

// NewService wires the dashboard.
func NewService(users UserSource, lectures LectureSource, engine *stats.Engine, seed SeedStore, rec Recomputer) *Service {
	return &Service{users: users, lectures: lectures, engine: engine, seed: seed, rec: rec, now: time.Now}
}

// Insight is one generated observation on the overview.
type Insight struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Icon    string `json:"icon"`
}

// Suggestion is one generated improvement hint.
type Suggestion struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Overview is the GET /dashboard response body.
type Overview struct {
	User     map[string]any               `json:"user"`
	Overview map[string]any               `json:"overview"`
	Periods  map[string]stats.RangeStats  `json:"periods"`
	Lectures map[string][]lecture.Lecture `json:"lectures"`
	Subjects map[string]any               `json:"subjects"`
	Streak   stats.Streak                 `json:"streak"`
	Insights []Insight                    `json:"insights"`
}

// Overview builds the composite dashboard: overview counters, period stats,
// today/upcoming/recent lectures, low-attendance subjects, the streak and
// generated insights.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	summary, err := s.engine.SubjectSummary(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	allTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	overall, err := s.engine.RangeStats(ctx, userID, allTime, now)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	monthly, err := s.engine.RangeStats(ctx, userID, now.AddDate(0, -1, 0), now)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	weekly, err := s.engine.RangeStats(ctx, userID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}

	today, err := s.lectures.Today(ctx, userID)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.lectures.Upcoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.lectures.List(ctx, userID, lecture.ListFilter{Page: 1, Limit: 5})
	if err != nil {
		return nil, err
	}

	breakdown, err := s.engine.SubjectWise(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	low := lowAttendance(breakdown, u.AttendanceGoal, 3)

	streak, err := s.engine.Streak(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}

	if today == nil {
		today = []lecture.Lecture{}
	}
	if upcoming == nil {
		upcoming = []lecture.Lecture{}
	}
	if recent == nil {
		recent = []lecture.Lecture{}
	}

	return &Overview{
		User: map[string]any{
			"name":           u.Name,
			"attendanceGoal": u.AttendanceGoal,
			"totalSubjects":  summary.TotalSubjects,
			"joinDate":       u.CreatedAt,
		},
		Overview: map[string]any{
			"totalSubjects":     summary.TotalSubjects,
			"totalLectures":     summary.TotalLectures,
			"totalAttended":     summary.TotalAttended,
			"averageAttendance": summary.AverageAttendance,
			"attendanceGoal":    u.AttendanceGoal,
			"meetsGoal":         summary.AverageAttendance >= u.AttendanceGoal,
		},
		Periods: map[string]stats.RangeStats{
			"overall": overall,
			"monthly": monthly,
			"weekly":  weekly,
		},
		Lectures: map[string][]lecture.Lecture{
			"today":    today,
			"upcoming": upcoming,
			"recent":   recent,
		},
		Subjects: map[string]any{
			"all":           breakdown,
			"lowAttendance": low,
		},
		Streak:   streak,
		Insights: generateInsights(summary, overall, u.AttendanceGoal),
	}, nil
}

func lowAttendance(breakdown []stats.SubjectBreakdown, goal, limit int) []stats.SubjectBreakdown {
	low := []stats.SubjectBreakdown{}
	for _, b := range breakdown {
		if b.Percentage < float64(goal) {
			low = append(low, b)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Percentage < low[j].Percentage })
	if len(low) > limit {
		low = low[:limit]
	}
	return low
}

func generateInsights(summary stats.SubjectSummary, overall stats.RangeStats, goal int) []Insight {
	insights := []Insight{}

	if overall.AttendanceRate >= goal {
		insights = append(insights, Insight{
			Type:    "positive",
			Message: fmt.Sprintf("Great job! You're meeting your attendance goal of %d%%", goal),
			Icon:    "trophy",
		})
	} else {
		insights = append(insights, Insight{
			Type:    "warning",
			Message: fmt.Sprintf("You need to improve by %d%% to meet your goal", goal-overall.AttendanceRate),
			Icon:    "target",
		})
	}

	if summary.TotalSubjects > 0 {
		insights = append(insights, Insight{
			Type:    "info",
			Message: fmt.Sprintf("You're tracking %d subjects with %d total lectures", summary.TotalSubjects, summary.TotalLectures),
			Icon:    "book",
		})
	}

	if overall.Total > 0 && overall.Present*100 > overall.Total*90 {
		insights = append(insights, Insight{
			Type:    "positive",
			Message: "Excellent attendance record! Keep it up!",
			Icon:    "star",
		})
	}
	return insights
}

// Summary returns per-day status counts for a period of week, month or
// semester, optionally narrowed to one subject.
func (s *Service) Summary(ctx context.Context, userID, period, subjectID string) ([]stats.DaySummary, error) {
	end := s.now()
	var start time.Time
	switch period {
	case "week":
		start = end.AddDate(0, 0, -7)
	case "semester":
		start = end.AddDate(0, -6, 0)
	default:
		start = end.AddDate(0, -1, 0)
	}
	summary, err := s.engine.DailySummary(ctx, userID, start, end, subjectID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	if summary == nil {
		summary = []stats.DaySummary{}
	}
	return summary, nil
}

// Analytics is the GET /dashboard/analytics response body.
type Analytics struct {
	DayWisePerformance  []stats.DayPerformance  `json:"dayWisePerformance"`
	TimeWisePerformance []stats.HourPerformance `json:"timeWisePerformance"`
	Suggestions         []Suggestion            `json:"suggestions"`
}

// Analytics returns attendance rates by day of week and by lecture start
// hour, plus generated improvement suggestions.
func (s *Service) Analytics(ctx context.Context, userID string) (*Analytics, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	days, err := s.engine.DayOfWeekPerformance(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	hours, err := s.engine.HourPerformance(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}

	breakdown, err := s.engine.SubjectWise(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	now := s.now()
	lastWeek, err := s.engine.RangeStats(ctx, userID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}

	if days == nil {
		days = []stats.DayPerformance{}
	}
	if hours == nil {
		hours = []stats.HourPerformance{}
	}
	return &Analytics{
		DayWisePerformance:  days,
		TimeWisePerformance: hours,
		Suggestions:         generateSuggestions(lowAttendance(breakdown, u.AttendanceGoal, 3), lastWeek.Absent),
	}, nil
}

func generateSuggestions(low []stats.SubjectBreakdown, missedLastWeek int) []Suggestion {
	suggestions := []Suggestion{}

	if len(low) > 0 {
		names := ""
		for i, b := range low {
			if i > 0 {
				names += ", "
			}
			names += b.SubjectName
		}
		suggestions = append(suggestions, Suggestion{
			Type:    "improvement",
			Title:   "Focus on Low Attendance Subjects",
			Message: "Prioritize attending " + names,
			Action:  "view_subjects",
		})
	}

	if missedLastWeek > 3 {
		suggestions = append(suggestions, Suggestion{
			Type:    "warning",
			Title:   "High Absence Rate",
			Message: fmt.Sprintf("You missed %d lectures last week. Consider setting reminders", missedLastWeek),
			Action:  "set_reminders",
		})
	}
	return suggestions
}

// SeedDemo creates two demo subjects with ten lectures each at roughly 70%
// attendance. It refuses when the user already has subjects.
func (s *Service) SeedDemo(ctx context.Context, userID string) (subjects, lectures int, err error) {
	count, err := s.seed.SubjectCount(ctx, userID)
	if err != nil {
		return 0, 0, httpapi.Storef("subject count failed", err)
	}
	if count > 0 {
		return 0, 0, httpapi.Conflictf("Demo data already exists. Delete existing subjects first.")
	}

	now := s.now().UTC()
	demos := []subject.Subject{
		{Name: "Mathematics", Code: "MATH101", Description: "Advanced Mathematics"},
		{Name: "Computer Science", Code: "CS101", Description: "Introduction to Computer Science"},
	}
	for i := range demos {
		demos[i].ID = uuid.NewString()
		demos[i].UserID = userID
		demos[i].Color = "#3b82f6"
		demos[i].IsActive = true
		demos[i].CreatedAt = now
		demos[i].UpdatedAt = now
		if err := s.seed.InsertSubject(ctx, &demos[i]); err != nil {
			return 0, 0, httpapi.Storef("subject insert failed", err)
		}
	}

	for _, sub := range demos {
		for i := 0; i < 10; i++ {
			status := lecture.StatusPresent
			if rand.Float64() <= 0.3 {
				status = lecture.StatusAbsent
			}
			date := now.AddDate(0, 0, -i)
			lec := &lecture.Lecture{
				ID:        uuid.NewString(),
				SubjectID: sub.ID,
				UserID:    userID,
				Title:     fmt.Sprintf("%s - Lecture %d", sub.Name, i+1),
				Topic:     fmt.Sprintf("Topic %d", i+1),
				Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
				StartTime: "09:00",
				EndTime:   "10:00",
				Duration:  60,
				Status:    status,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.seed.InsertLecture(ctx, lec); err != nil {
				return 0, 0, httpapi.Storef("lecture insert failed", err)
			}
			lectures++
		}
	}

	for _, sub := range demos {
		if _, err := s.rec.Recompute(ctx, sub.ID); err != nil {
			return 0, 0, err
		}
	}
	return len(demos), lectures, nil
}

// Debug returns raw per-subject and per-lecture state for troubleshooting.
func (s *Service) Debug(ctx context.Context, userID string) (map[string]any, error) {
	breakdown, err := s.engine.SubjectWise(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("stats query failed", err)
	}
	lectures, total, err := s.lectures.List(ctx, userID, lecture.ListFilter{Page: 1, Limit: 100})
	if err != nil {
		return nil, err
	}

	lectureRows := make([]map[string]any, 0, len(lectures))
	for _, lec := range lectures {
		lectureRows = append(lectureRows, map[string]any{
			"id":        lec.ID,
			"subjectId": lec.SubjectID,
			"status":    lec.Status,
			"date":      lec.Date,
		})
	}
	return map[string]any{
		"userId":        userID,
		"subjectsCount": len(breakdown),
		"lecturesCount": total,
		"subjects":      breakdown,
		"lectures":      lectureRows,
	}, nil
}
