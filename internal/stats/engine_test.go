package stats

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	subjects map[string]SubjectMeta
	lectures []LectureRow
	written  map[string]SubjectTotals

	countErr error
	writeErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subjects: map[string]SubjectMeta{},
		written:  map[string]SubjectTotals{},
	}
}

func (f *fakeSource) SubjectExists(_ context.Context, id string) (bool, error) {
	_, ok := f.subjects[id]
	return ok, nil
}

func (f *fakeSource) CountLectures(_ context.Context, id string) (int, int, error) {
	if f.countErr != nil {
		return 0, 0, f.countErr
	}
	total, present := 0, 0
	for _, l := range f.lectures {
		if l.SubjectID != id {
			continue
		}
		total++
		if l.Status == "present" {
			present++
		}
	}
	return total, present, nil
}

func (f *fakeSource) UpdateSubjectTotals(_ context.Context, id string, t SubjectTotals) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written[id] = t
	return nil
}

func (f *fakeSource) UserLectures(_ context.Context, _ string, from, to *time.Time) ([]LectureRow, error) {
	var out []LectureRow
	for _, l := range f.lectures {
		if from != nil && l.Date.Before(*from) {
			continue
		}
		if to != nil && l.Date.After(*to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeSource) SubjectLectures(_ context.Context, id string) ([]LectureRow, error) {
	var out []LectureRow
	for _, l := range f.lectures {
		if l.SubjectID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) UserSubjects(_ context.Context, _ string) ([]SubjectMeta, error) {
	var out []SubjectMeta
	for _, m := range f.subjects {
		out = append(out, m)
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func addLectures(f *fakeSource, subjectID string, entries ...[2]string) {
	for _, e := range entries {
		f.lectures = append(f.lectures, LectureRow{
			SubjectID: subjectID,
			Date:      day(e[0]),
			StartTime: "09:00",
			Status:    e[1],
		})
	}
}

func TestRecomputeCountsOnlyPresent(t *testing.T) {
	src := newFakeSource()
	src.subjects["math"] = SubjectMeta{ID: "math", Active: true}
	addLectures(src, "math",
		[2]string{"2024-01-01", "present"},
		[2]string{"2024-01-02", "present"},
		[2]string{"2024-01-03", "absent"},
		[2]string{"2024-01-04", "late"},
	)

	got, err := NewEngine(src).Recompute(context.Background(), "math")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	want := SubjectTotals{TotalLectures: 4, AttendedLectures: 2, AttendancePercentage: 50}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if src.written["math"] != want {
		t.Fatalf("written %+v, want %+v", src.written["math"], want)
	}
}

func TestRecomputeEmptySubjectZeroes(t *testing.T) {
	src := newFakeSource()
	src.subjects["empty"] = SubjectMeta{ID: "empty"}

	got, err := NewEngine(src).Recompute(context.Background(), "empty")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got != (SubjectTotals{}) {
		t.Fatalf("got %+v, want zeroes", got)
	}
}

func TestRecomputeUnknownSubject(t *testing.T) {
	src := newFakeSource()
	_, err := NewEngine(src).Recompute(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestRecomputePropagatesStoreError(t *testing.T) {
	src := newFakeSource()
	src.subjects["math"] = SubjectMeta{ID: "math"}
	src.writeErr = errors.New("disk on fire")
	if _, err := NewEngine(src).Recompute(context.Background(), "math"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	src := newFakeSource()
	src.subjects["math"] = SubjectMeta{ID: "math"}
	addLectures(src, "math", [2]string{"2024-01-01", "present"})

	eng := NewEngine(src)
	first, err := eng.Recompute(context.Background(), "math")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	second, err := eng.Recompute(context.Background(), "math")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first != second {
		t.Fatalf("not idempotent: %+v vs %+v", first, second)
	}
}

func TestRangeStatsCountsLateAndExcusedAsAttended(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-01", "present"},
		[2]string{"2024-01-02", "late"},
		[2]string{"2024-01-03", "excused"},
		[2]string{"2024-01-04", "absent"},
	)

	got, err := NewEngine(src).RangeStats(context.Background(), "u1", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("range stats: %v", err)
	}
	want := RangeStats{Present: 1, Absent: 1, Late: 1, Excused: 1, Total: 4, AttendanceRate: 75}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRangeStatsEmpty(t *testing.T) {
	got, err := NewEngine(newFakeSource()).RangeStats(context.Background(), "u1", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("range stats: %v", err)
	}
	if got.AttendanceRate != 0 || got.Total != 0 {
		t.Fatalf("got %+v, want zeroes", got)
	}
}

func TestWeeklyTrendOrdering(t *testing.T) {
	src := newFakeSource()
	eng := NewEngine(src)
	eng.now = func() time.Time { return day("2024-01-22") }
	addLectures(src, "math",
		// ISO week 3 of 2024
		[2]string{"2024-01-15", "present"},
		[2]string{"2024-01-16", "absent"},
		// ISO week 2 of 2024
		[2]string{"2024-01-08", "late"},
	)

	got, err := eng.WeeklyTrend(context.Background(), "u1", 4)
	if err != nil {
		t.Fatalf("weekly trend: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d buckets, want 2", len(got))
	}
	if got[0].Week != 2 || got[0].Present != 1 || got[0].Total != 1 {
		t.Fatalf("bucket 0: %+v", got[0])
	}
	if got[1].Week != 3 || got[1].Present != 1 || got[1].Total != 2 || got[1].Percentage != 50 {
		t.Fatalf("bucket 1: %+v", got[1])
	}
}

func TestWeeklyTrendExcludesOldLectures(t *testing.T) {
	src := newFakeSource()
	eng := NewEngine(src)
	eng.now = func() time.Time { return day("2024-06-01") }
	addLectures(src, "math", [2]string{"2024-01-01", "present"})

	got, err := eng.WeeklyTrend(context.Background(), "u1", 2)
	if err != nil {
		t.Fatalf("weekly trend: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d buckets, want 0", len(got))
	}
}

func TestSubjectWiseOrderedByPercentageDesc(t *testing.T) {
	src := newFakeSource()
	src.subjects["math"] = SubjectMeta{ID: "math", Name: "Math", Code: "M1", Color: "#111111", Active: true}
	src.subjects["cs"] = SubjectMeta{ID: "cs", Name: "CS", Code: "C1", Color: "#222222", Active: true}
	addLectures(src, "math",
		[2]string{"2024-01-01", "absent"},
		[2]string{"2024-01-02", "present"},
	)
	addLectures(src, "cs",
		[2]string{"2024-01-01", "present"},
		[2]string{"2024-01-02", "late"},
	)

	got, err := NewEngine(src).SubjectWise(context.Background(), "u1")
	if err != nil {
		t.Fatalf("subject wise: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].SubjectID != "cs" || got[0].Percentage != 100 {
		t.Fatalf("row 0: %+v", got[0])
	}
	if got[1].SubjectID != "math" || got[1].Present != 1 || got[1].Absent != 1 || got[1].Percentage != 50 {
		t.Fatalf("row 1: %+v", got[1])
	}
}

func TestStreakBrokenByAbsentDay(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-05", "present"},
		[2]string{"2024-01-04", "absent"},
		[2]string{"2024-01-03", "present"},
	)

	got, err := NewEngine(src).Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got.Current != 1 {
		t.Fatalf("current = %d, want 1", got.Current)
	}
	if len(got.Dates) != 1 || got.Dates[0] != "2024-01-05" {
		t.Fatalf("dates = %v", got.Dates)
	}
}

func TestStreakThreeConsecutiveDays(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-05", "present"},
		[2]string{"2024-01-04", "late"},
		[2]string{"2024-01-03", "excused"},
	)

	got, err := NewEngine(src).Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got.Current != 3 || got.Maximum != 3 {
		t.Fatalf("got current=%d maximum=%d, want 3/3", got.Current, got.Maximum)
	}
}

func TestStreakAnchorsAtLatestRecordedDate(t *testing.T) {
	// No lecture "today": the streak still counts from the newest recorded day.
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2020-03-10", "present"},
		[2]string{"2020-03-09", "present"},
	)

	got, err := NewEngine(src).Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got.Current != 2 {
		t.Fatalf("current = %d, want 2", got.Current)
	}
}

func TestStreakMixedStatusDayCountsAsAttended(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-05", "absent"},
		[2]string{"2024-01-05", "present"},
	)

	got, err := NewEngine(src).Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got.Current != 1 {
		t.Fatalf("current = %d, want 1", got.Current)
	}
}

func TestStreakDatesCappedAtSeven(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 10; i++ {
		addLectures(src, "math", [2]string{time.Date(2024, 1, i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), "present"})
	}

	got, err := NewEngine(src).Streak(context.Background(), "u1")
	if err != nil {
		t.Fatalf("streak: %v", err)
	}
	if got.Current != 10 || len(got.Dates) != 7 {
		t.Fatalf("current=%d dates=%d, want 10/7", got.Current, len(got.Dates))
	}
	if got.Dates[0] != "2024-01-10" {
		t.Fatalf("dates[0] = %s", got.Dates[0])
	}
}

func TestSubjectStatusCountsExact(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-01", "present"},
		[2]string{"2024-01-02", "present"},
		[2]string{"2024-01-03", "absent"},
		[2]string{"2024-01-04", "late"},
	)

	got, err := NewEngine(src).SubjectStatusCounts(context.Background(), "math")
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	want := StatusCounts{Present: 2, Absent: 1, Late: 1}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDailySummaryGroupsAndFilters(t *testing.T) {
	src := newFakeSource()
	addLectures(src, "math",
		[2]string{"2024-01-01", "present"},
		[2]string{"2024-01-01", "absent"},
		[2]string{"2024-01-02", "late"},
	)
	addLectures(src, "cs", [2]string{"2024-01-01", "present"})

	got, err := NewEngine(src).DailySummary(context.Background(), "u1", day("2024-01-01"), day("2024-01-31"), "math")
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d days, want 2", len(got))
	}
	if got[0].Date != "2024-01-01" || got[0].Total != 2 {
		t.Fatalf("day 0: %+v", got[0])
	}
	if got[1].Date != "2024-01-02" || got[1].Total != 1 {
		t.Fatalf("day 1: %+v", got[1])
	}
}

func TestSubjectSummarySkipsInactive(t *testing.T) {
	src := newFakeSource()
	src.subjects["a"] = SubjectMeta{ID: "a", Active: true, TotalLectures: 10, AttendedLectures: 8, AttendancePercentage: 80}
	src.subjects["b"] = SubjectMeta{ID: "b", Active: true, TotalLectures: 10, AttendedLectures: 5, AttendancePercentage: 50}
	src.subjects["c"] = SubjectMeta{ID: "c", Active: false, TotalLectures: 4, AttendedLectures: 0, AttendancePercentage: 0}

	got, err := NewEngine(src).SubjectSummary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("subject summary: %v", err)
	}
	want := SubjectSummary{TotalSubjects: 2, AverageAttendance: 65, TotalLectures: 20, TotalAttended: 13}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
