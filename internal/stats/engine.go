package stats

import (
	"context"
	"math"
	"sort"
	"time"

	"markit/internal/httpapi"
)

// LectureRow is the minimal lecture projection the engine aggregates over.
type LectureRow struct {
	SubjectID string
	Date      time.Time
	StartTime string
	Status    string
}

// SubjectMeta carries per-subject fields including the cached totals.
type SubjectMeta struct {
	ID                   string
	Name                 string
	Code                 string
	Color                string
	Active               bool
	TotalLectures        int
	AttendedLectures     int
	AttendancePercentage int
}

// Source is the record-store view the engine reads from and writes totals to.
type Source interface {
	SubjectExists(ctx context.Context, subjectID string) (bool, error)
	CountLectures(ctx context.Context, subjectID string) (total, present int, err error)
	UpdateSubjectTotals(ctx context.Context, subjectID string, t SubjectTotals) error
	UserLectures(ctx context.Context, userID string, from, to *time.Time) ([]LectureRow, error)
	SubjectLectures(ctx context.Context, subjectID string) ([]LectureRow, error)
	UserSubjects(ctx context.Context, userID string) ([]SubjectMeta, error)
}

// SubjectTotals are the cached statistics fields on a subject.
type SubjectTotals struct {
	TotalLectures        int `json:"totalLectures"`
	AttendedLectures     int `json:"attendedLectures"`
	AttendancePercentage int `json:"attendancePercentage"`
}

// RangeStats groups a user's lectures in a date range by status. The rate
// counts late and excused as attended; the cached subject totals do not.
type RangeStats struct {
	Present        int `json:"present"`
	Absent         int `json:"absent"`
	Late           int `json:"late"`
	Excused        int `json:"excused"`
	Total          int `json:"total"`
	AttendanceRate int `json:"attendanceRate"`
}

// WeekBucket is one ISO-week trend entry.
type WeekBucket struct {
	Year       int     `json:"year"`
	Week       int     `json:"week"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// MonthBucket is one calendar-month trend entry.
type MonthBucket struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// SubjectBreakdown is one row of the per-subject attendance report.
type SubjectBreakdown struct {
	SubjectID    string  `json:"subjectId"`
	SubjectName  string  `json:"subjectName"`
	SubjectCode  string  `json:"subjectCode"`
	SubjectColor string  `json:"subjectColor"`
	Total        int     `json:"total"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Percentage   float64 `json:"percentage"`
}

// Streak describes consecutive attended days, anchored at the most recent
// date that has any lecture recorded.
type Streak struct {
	Current int      `json:"current"`
	Maximum int      `json:"maximum"`
	Dates   []string `json:"dates"`
}

// StatusCounts groups a subject's lectures by exact status.
type StatusCounts struct {
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Late       int `json:"late"`
	Excused    int `json:"excused"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// DayPerformance is attendance grouped by day of week (1=Sunday .. 7=Saturday).
type DayPerformance struct {
	Day        int     `json:"day"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// HourPerformance is attendance grouped by lecture start hour.
type HourPerformance struct {
	Hour       int     `json:"hour"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// StatusCount pairs a status with its count for one summary day.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DaySummary is the per-day grouping used by the attendance summary view.
type DaySummary struct {
	Date     string        `json:"date"`
	Statuses []StatusCount `json:"statuses"`
	Total    int           `json:"total"`
}

// MonthActivity is one month of lecture activity.
type MonthActivity struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Total   int `json:"total"`
	Present int `json:"present"`
}

// SubjectSummary aggregates a user's active subjects from the cached fields.
type SubjectSummary struct {
	TotalSubjects     int `json:"totalSubjects"`
	AverageAttendance int `json:"averageAttendance"`
	TotalLectures     int `json:"totalLectures"`
	TotalAttended     int `json:"totalAttended"`
}

// Engine recomputes cached subject statistics and answers aggregate queries.
type Engine struct {
	src Source
	now func() time.Time
}

// NewEngine creates an engine over a data source.
func NewEngine(src Source) *Engine {
	return &Engine{src: src, now: time.Now}
}

// attendedStatus reports whether a status counts toward the attendance rate.
// The cached subject totals intentionally count only "present".
func attendedStatus(status string) bool {
	return status == "present" || status == "late" || status == "excused"
}

func roundPct(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func rawPct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Recompute recalculates a subject's cached totals from its lecture records
// and writes them back. Safe to call redundantly.
func (e *Engine) Recompute(ctx context.Context, subjectID string) (SubjectTotals, error) {
	exists, err := e.src.SubjectExists(ctx, subjectID)
	if err != nil {
		return SubjectTotals{}, httpapi.Storef("subject lookup failed", err)
	}
	if !exists {
		return SubjectTotals{}, httpapi.NotFoundf("Subject not found")
	}
	total, present, err := e.src.CountLectures(ctx, subjectID)
	if err != nil {
		return SubjectTotals{}, httpapi.Storef("lecture count failed", err)
	}
	t := SubjectTotals{
		TotalLectures:        total,
		AttendedLectures:     present,
		AttendancePercentage: roundPct(present, total),
	}
	if err := e.src.UpdateSubjectTotals(ctx, subjectID, t); err != nil {
		return SubjectTotals{}, httpapi.Storef("subject totals write failed", err)
	}
	return t, nil
}

// RangeStats groups a user's lectures between start and end by status.
func (e *Engine) RangeStats(ctx context.Context, userID string, start, end time.Time) (RangeStats, error) {
	rows, err := e.src.UserLectures(ctx, userID, &start, &end)
	if err != nil {
		return RangeStats{}, httpapi.Storef("lecture scan failed", err)
	}
	var s RangeStats
	for _, r := range rows {
		switch r.Status {
		case "present":
			s.Present++
		case "absent":
			s.Absent++
		case "late":
			s.Late++
		case "excused":
			s.Excused++
		}
		s.Total++
	}
	s.AttendanceRate = roundPct(s.Present+s.Late+s.Excused, s.Total)
	return s, nil
}

// WeeklyTrend buckets the last weeks*7 days of lectures by ISO year and week,
// ordered ascending.
func (e *Engine) WeeklyTrend(ctx context.Context, userID string, weeks int) ([]WeekBucket, error) {
	if weeks <= 0 {
		weeks = 4
	}
	end := e.now()
	start := end.AddDate(0, 0, -weeks*7)
	rows, err := e.src.UserLectures(ctx, userID, &start, &end)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}

	type key struct{ year, week int }
	buckets := map[key]*WeekBucket{}
	for _, r := range rows {
		y, w := r.Date.ISOWeek()
		k := key{y, w}
		b, ok := buckets[k]
		if !ok {
			b = &WeekBucket{Year: y, Week: w}
			buckets[k] = b
		}
		b.Total++
		if attendedStatus(r.Status) {
			b.Present++
		}
	}
	out := make([]WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Percentage = rawPct(b.Present, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Week < out[j].Week
	})
	return out, nil
}

// SubjectWise returns one row per subject the user has lectures for, ordered
// by percentage descending.
func (e *Engine) SubjectWise(ctx context.Context, userID string) ([]SubjectBreakdown, error) {
	rows, err := e.src.UserLectures(ctx, userID, nil, nil)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	metas, err := e.src.UserSubjects(ctx, userID)
	if err != nil {
		return nil, httpapi.Storef("subject scan failed", err)
	}
	metaByID := make(map[string]SubjectMeta, len(metas))
	for _, m := range metas {
		metaByID[m.ID] = m
	}

	grouped := map[string]*SubjectBreakdown{}
	for _, r := range rows {
		m, ok := metaByID[r.SubjectID]
		if !ok {
			continue
		}
		b, ok := grouped[r.SubjectID]
		if !ok {
			b = &SubjectBreakdown{
				SubjectID:    m.ID,
				SubjectName:  m.Name,
				SubjectCode:  m.Code,
				SubjectColor: m.Color,
			}
			grouped[r.SubjectID] = b
		}
		b.Total++
		if attendedStatus(r.Status) {
			b.Present++
		}
		if r.Status == "absent" {
			b.Absent++
		}
	}
	out := make([]SubjectBreakdown, 0, len(grouped))
	for _, b := range grouped {
		b.Percentage = rawPct(b.Present, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out, nil
}

// Streak walks the user's lecture days newest-first. A day counts as attended
// when any lecture that day is present, late or excused. The current streak is
// the unbroken run ending at the most recent recorded day; the maximum is the
// longest run anywhere in the history.
func (e *Engine) Streak(ctx context.Context, userID string) (Streak, error) {
	rows, err := e.src.UserLectures(ctx, userID, nil, nil)
	if err != nil {
		return Streak{}, httpapi.Storef("lecture scan failed", err)
	}

	attendedByDate := map[string]bool{}
	for _, r := range rows {
		day := r.Date.Format("2006-01-02")
		if attendedStatus(r.Status) {
			attendedByDate[day] = true
		} else if _, ok := attendedByDate[day]; !ok {
			attendedByDate[day] = false
		}
	}
	days := make([]string, 0, len(attendedByDate))
	for d := range attendedByDate {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	var s Streak
	run := 0
	leading := true
	for _, d := range days {
		if attendedByDate[d] {
			run++
			if leading {
				s.Current++
				if len(s.Dates) < 7 {
					s.Dates = append(s.Dates, d)
				}
			}
			if run > s.Maximum {
				s.Maximum = run
			}
		} else {
			run = 0
			leading = false
		}
	}
	if s.Dates == nil {
		s.Dates = []string{}
	}
	return s, nil
}

// SubjectStatusCounts groups one subject's lectures by exact status.
func (e *Engine) SubjectStatusCounts(ctx context.Context, subjectID string) (StatusCounts, error) {
	rows, err := e.src.SubjectLectures(ctx, subjectID)
	if err != nil {
		return StatusCounts{}, httpapi.Storef("lecture scan failed", err)
	}
	var c StatusCounts
	for _, r := range rows {
		switch r.Status {
		case "present":
			c.Present++
		case "absent":
			c.Absent++
		case "late":
			c.Late++
		case "excused":
			c.Excused++
		}
	}
	return c, nil
}

// MonthlyTrend buckets one subject's lectures by calendar month, ascending.
func (e *Engine) MonthlyTrend(ctx context.Context, subjectID string) ([]MonthBucket, error) {
	rows, err := e.src.SubjectLectures(ctx, subjectID)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	return bucketByMonth(rows), nil
}

func bucketByMonth(rows []LectureRow) []MonthBucket {
	type key struct{ year, month int }
	buckets := map[key]*MonthBucket{}
	for _, r := range rows {
		k := key{r.Date.Year(), int(r.Date.Month())}
		b, ok := buckets[k]
		if !ok {
			b = &MonthBucket{Year: k.year, Month: k.month}
			buckets[k] = b
		}
		b.Total++
		if attendedStatus(r.Status) {
			b.Present++
		}
	}
	out := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Percentage = rawPct(b.Present, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// DayOfWeekPerformance groups all of a user's lectures by weekday,
// 1=Sunday through 7=Saturday.
func (e *Engine) DayOfWeekPerformance(ctx context.Context, userID string) ([]DayPerformance, error) {
	rows, err := e.src.UserLectures(ctx, userID, nil, nil)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	buckets := map[int]*DayPerformance{}
	for _, r := range rows {
		day := int(r.Date.Weekday()) + 1
		b, ok := buckets[day]
		if !ok {
			b = &DayPerformance{Day: day}
			buckets[day] = b
		}
		b.Total++
		if attendedStatus(r.Status) {
			b.Present++
		}
	}
	out := make([]DayPerformance, 0, len(buckets))
	for _, b := range buckets {
		b.Percentage = rawPct(b.Present, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// HourPerformance groups all of a user's lectures by start hour.
func (e *Engine) HourPerformance(ctx context.Context, userID string) ([]HourPerformance, error) {
	rows, err := e.src.UserLectures(ctx, userID, nil, nil)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	buckets := map[int]*HourPerformance{}
	for _, r := range rows {
		hour := startHour(r.StartTime)
		b, ok := buckets[hour]
		if !ok {
			b = &HourPerformance{Hour: hour}
			buckets[hour] = b
		}
		b.Total++
		if attendedStatus(r.Status) {
			b.Present++
		}
	}
	out := make([]HourPerformance, 0, len(buckets))
	for _, b := range buckets {
		b.Percentage = rawPct(b.Present, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

func startHour(hhmm string) int {
	if len(hhmm) < 2 {
		return 0
	}
	h := 0
	for _, c := range hhmm[:2] {
		if c < '0' || c > '9' {
			return 0
		}
		h = h*10 + int(c-'0')
	}
	return h
}

// DailySummary groups lectures by calendar day with per-status counts,
// ordered by date ascending. subjectID narrows to one subject when non-empty.
func (e *Engine) DailySummary(ctx context.Context, userID string, start, end time.Time, subjectID string) ([]DaySummary, error) {
	rows, err := e.src.UserLectures(ctx, userID, &start, &end)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	grouped := map[string]map[string]int{}
	for _, r := range rows {
		if subjectID != "" && r.SubjectID != subjectID {
			continue
		}
		day := r.Date.Format("2006-01-02")
		if grouped[day] == nil {
			grouped[day] = map[string]int{}
		}
		grouped[day][r.Status]++
	}
	days := make([]string, 0, len(grouped))
	for d := range grouped {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DaySummary, 0, len(days))
	for _, d := range days {
		s := DaySummary{Date: d}
		statuses := make([]string, 0, len(grouped[d]))
		for st := range grouped[d] {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)
		for _, st := range statuses {
			n := grouped[d][st]
			s.Statuses = append(s.Statuses, StatusCount{Status: st, Count: n})
			s.Total += n
		}
		out = append(out, s)
	}
	return out, nil
}

// MonthlyActivity returns up to the last `months` months of activity,
// ordered ascending.
func (e *Engine) MonthlyActivity(ctx context.Context, userID string, months int) ([]MonthActivity, error) {
	rows, err := e.src.UserLectures(ctx, userID, nil, nil)
	if err != nil {
		return nil, httpapi.Storef("lecture scan failed", err)
	}
	buckets := bucketByMonth(rows)
	if months > 0 && len(buckets) > months {
		buckets = buckets[len(buckets)-months:]
	}
	out := make([]MonthActivity, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, MonthActivity{Year: b.Year, Month: b.Month, Total: b.Total, Present: b.Present})
	}
	return out, nil
}

// SubjectSummary aggregates the user's active subjects from cached totals.
func (e *Engine) SubjectSummary(ctx context.Context, userID string) (SubjectSummary, error) {
	metas, err := e.src.UserSubjects(ctx, userID)
	if err != nil {
		return SubjectSummary{}, httpapi.Storef("subject scan failed", err)
	}
	var s SubjectSummary
	pctSum := 0
	for _, m := range metas {
		if !m.Active {
			continue
		}
		s.TotalSubjects++
		s.TotalLectures += m.TotalLectures
		s.TotalAttended += m.AttendedLectures
		pctSum += m.AttendancePercentage
	}
	if s.TotalSubjects > 0 {
		s.AverageAttendance = int(math.Round(float64(pctSum) / float64(s.TotalSubjects)))
	}
	return s, nil
}
