package lecture

import (
	"context"
	"errors"
	"testing"
	"time"

	"markit/internal/httpapi"
	"markit/internal/stats"
)

type fakeStore struct {
	lectures map[string]*Lecture
	subjects map[string]*SubjectRef
	inactive map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lectures: map[string]*Lecture{},
		subjects: map[string]*SubjectRef{},
		inactive: map[string]bool{},
	}
}

func (f *fakeStore) Insert(_ context.Context, lec *Lecture) error {
	cp := *lec
	f.lectures[lec.ID] = &cp
	return nil
}

func (f *fakeStore) Update(_ context.Context, lec *Lecture) error {
	cp := *lec
	f.lectures[lec.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	delete(f.lectures, id)
	return nil
}

func (f *fakeStore) GetForUser(_ context.Context, id, userID string) (*Lecture, error) {
	lec, ok := f.lectures[id]
	if !ok || lec.UserID != userID {
		return nil, nil
	}
	cp := *lec
	return &cp, nil
}

func (f *fakeStore) FindSlot(_ context.Context, subjectID string, date time.Time, startTime string) (*Lecture, error) {
	for _, lec := range f.lectures {
		if lec.SubjectID == subjectID && lec.Date.Equal(date) && lec.StartTime == startTime {
			cp := *lec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByDate(_ context.Context, userID, subjectID string, date time.Time) (*Lecture, error) {
	for _, lec := range f.lectures {
		if lec.UserID == userID && lec.SubjectID == subjectID && lec.Date.Equal(date) {
			cp := *lec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) List(_ context.Context, userID string, _ ListFilter) ([]Lecture, int, error) {
	var out []Lecture
	for _, lec := range f.lectures {
		if lec.UserID == userID {
			out = append(out, *lec)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListRange(_ context.Context, userID string, start, end time.Time) ([]Lecture, error) {
	var out []Lecture
	for _, lec := range f.lectures {
		if lec.UserID == userID && !lec.Date.Before(start) && !lec.Date.After(end) {
			out = append(out, *lec)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUpcoming(_ context.Context, userID string, from, to time.Time, limit int) ([]Lecture, error) {
	var out []Lecture
	for _, lec := range f.lectures {
		if lec.UserID == userID && lec.Date.After(from) && !lec.Date.After(to) {
			out = append(out, *lec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id, userID, status string) (*Lecture, error) {
	lec, ok := f.lectures[id]
	if !ok || lec.UserID != userID {
		return nil, nil
	}
	lec.Status = status
	cp := *lec
	return &cp, nil
}

func (f *fakeStore) ActiveSubject(_ context.Context, subjectID, userID string) (*SubjectRef, error) {
	if f.inactive[subjectID] {
		return nil, nil
	}
	return f.OwnedSubject(context.Background(), subjectID, userID)
}

func (f *fakeStore) OwnedSubject(_ context.Context, subjectID, _ string) (*SubjectRef, error) {
	ref, ok := f.subjects[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

type fakeRecomputer struct {
	calls  []string
	totals stats.SubjectTotals
	err    error
}

func (f *fakeRecomputer) Recompute(_ context.Context, subjectID string) (stats.SubjectTotals, error) {
	f.calls = append(f.calls, subjectID)
	return f.totals, f.err
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Emit(_, event string, _ any) {
	f.events = append(f.events, event)
}

func newTestService() (*Service, *fakeStore, *fakeRecomputer, *fakeNotifier) {
	store := newFakeStore()
	store.subjects["sub-1"] = &SubjectRef{ID: "sub-1", Name: "Algorithms", Code: "CS301"}
	rec := &fakeRecomputer{totals: stats.SubjectTotals{TotalLectures: 5, AttendedLectures: 4, AttendancePercentage: 80}}
	notifier := &fakeNotifier{}
	svc := NewService(store, rec, notifier)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, store, rec, notifier
}

func validCreate() CreateInput {
	return CreateInput{
		SubjectID: "sub-1",
		Title:     "Graph traversal",
		Topic:     "BFS and DFS",
		Date:      "2024-03-14",
		StartTime: "09:00",
		EndTime:   "10:30",
		Status:    StatusPresent,
	}
}

func TestCreateLecture(t *testing.T) {
	svc, store, rec, notifier := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if lec.Duration != 90 {
		t.Errorf("duration = %d, want 90", lec.Duration)
	}
	if lec.Subject == nil || lec.Subject.Name != "Algorithms" {
		t.Errorf("subject ref not attached: %+v", lec.Subject)
	}
	if _, ok := store.lectures[lec.ID]; !ok {
		t.Error("lecture not persisted")
	}
	if len(rec.calls) != 1 || rec.calls[0] != "sub-1" {
		t.Errorf("recompute calls = %v, want [sub-1]", rec.calls)
	}
	wantEvents := []string{"notification", "attendance_updated"}
	if len(notifier.events) != 2 || notifier.events[0] != wantEvents[0] || notifier.events[1] != wantEvents[1] {
		t.Errorf("events = %v, want %v", notifier.events, wantEvents)
	}
}

func TestCreateLectureDefaultsStatusAbsent(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := validCreate()
	in.Status = ""
	lec, err := svc.Create(context.Background(), "user-1", in)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if lec.Status != StatusAbsent {
		t.Errorf("status = %q, want %q", lec.Status, StatusAbsent)
	}
}

func TestCreateLectureRejectsFutureDate(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := validCreate()
	in.Date = "2024-03-20"
	_, err := svc.Create(context.Background(), "user-1", in)
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCreateLectureUnknownSubject(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := validCreate()
	in.SubjectID = "sub-missing"
	_, err := svc.Create(context.Background(), "user-1", in)
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindNotFound {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestCreateLectureDuplicateSlot(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.Create(context.Background(), "user-1", validCreate()); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}
	_, err := svc.Create(context.Background(), "user-1", validCreate())
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindConflict {
		t.Fatalf("err = %v, want conflict error", err)
	}
}

func TestCreateLectureSwallowsRecomputeError(t *testing.T) {
	svc, store, rec, notifier := newTestService()
	rec.err = httpapi.Storef("stats write failed", errors.New("db down"))

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, ok := store.lectures[lec.ID]; !ok {
		t.Fatal("lecture was not persisted")
	}
	// The creation notification still goes out; only the stale
	// attendance_updated push is held back.
	if len(notifier.events) != 1 || notifier.events[0] != "notification" {
		t.Errorf("events = %v, want [notification]", notifier.events)
	}
}

func TestUpdateStatusTriggersRecompute(t *testing.T) {
	svc, _, rec, notifier := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	rec.calls = nil
	notifier.events = nil

	status := StatusAbsent
	updated, err := svc.Update(context.Background(), "user-1", lec.ID, UpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Status != StatusAbsent {
		t.Errorf("status = %q, want %q", updated.Status, StatusAbsent)
	}
	if len(rec.calls) != 1 {
		t.Errorf("recompute calls = %v, want one", rec.calls)
	}
	if len(notifier.events) != 2 {
		t.Errorf("events = %v, want notification + attendance_updated", notifier.events)
	}
}

func TestUpdateWithoutStatusChangeSkipsRecompute(t *testing.T) {
	svc, _, rec, _ := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	rec.calls = nil

	room := "B-204"
	if _, err := svc.Update(context.Background(), "user-1", lec.ID, UpdateInput{Room: &room}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("recompute calls = %v, want none", rec.calls)
	}
}

func TestUpdateSwallowsRecomputeError(t *testing.T) {
	svc, store, rec, _ := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	rec.err = errors.New("db down")

	status := StatusLate
	updated, err := svc.Update(context.Background(), "user-1", lec.ID, UpdateInput{Status: &status})
	if err != nil {
		t.Fatalf("Update returned error: %v, want success despite recompute failure", err)
	}
	if updated.Status != StatusLate {
		t.Errorf("status = %q, want %q", updated.Status, StatusLate)
	}
	if store.lectures[lec.ID].Status != StatusLate {
		t.Error("status change not persisted")
	}
}

func TestUpdateUnknownLecture(t *testing.T) {
	svc, _, _, _ := newTestService()

	title := "New title"
	_, err := svc.Update(context.Background(), "user-1", "nope", UpdateInput{Title: &title})
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindNotFound {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestUpdateOtherUsersLectureNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	title := "Hijack"
	_, err = svc.Update(context.Background(), "user-2", lec.ID, UpdateInput{Title: &title})
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindNotFound {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestDeleteLectureRecomputes(t *testing.T) {
	svc, store, rec, notifier := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	rec.calls = nil
	notifier.events = nil

	if err := svc.Delete(context.Background(), "user-1", lec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := store.lectures[lec.ID]; ok {
		t.Error("lecture still persisted after delete")
	}
	if len(rec.calls) != 1 || rec.calls[0] != "sub-1" {
		t.Errorf("recompute calls = %v, want [sub-1]", rec.calls)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "notification" {
		t.Errorf("events = %v, want [notification]", notifier.events)
	}
}

func TestDeleteSwallowsRecomputeError(t *testing.T) {
	svc, store, rec, notifier := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	rec.err = httpapi.Storef("stats write failed", errors.New("db down"))
	notifier.events = nil

	if err := svc.Delete(context.Background(), "user-1", lec.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := store.lectures[lec.ID]; ok {
		t.Fatal("lecture still in store after delete")
	}
	if len(notifier.events) != 1 || notifier.events[0] != "notification" {
		t.Errorf("events = %v, want [notification]", notifier.events)
	}
}

func TestBulkAttendanceSkipsInvalidStatuses(t *testing.T) {
	svc, store, rec, _ := newTestService()
	store.subjects["sub-2"] = &SubjectRef{ID: "sub-2", Name: "Databases"}

	first, _ := svc.Create(context.Background(), "user-1", validCreate())
	in := validCreate()
	in.SubjectID = "sub-2"
	in.StartTime = "11:00"
	second, _ := svc.Create(context.Background(), "user-1", in)
	rec.calls = nil

	updated, err := svc.BulkAttendance(context.Background(), "user-1", []BulkItem{
		{ID: first.ID, Status: StatusLate},
		{ID: second.ID, Status: "bogus"},
		{ID: "missing", Status: StatusPresent},
	})
	if err != nil {
		t.Fatalf("BulkAttendance returned error: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != first.ID {
		t.Fatalf("updated = %v, want only the first lecture", updated)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "sub-1" {
		t.Errorf("recompute calls = %v, want [sub-1]", rec.calls)
	}
}

func TestBulkAttendanceRecomputesEachSubjectOnce(t *testing.T) {
	svc, store, rec, _ := newTestService()
	store.subjects["sub-2"] = &SubjectRef{ID: "sub-2", Name: "Databases"}

	a, _ := svc.Create(context.Background(), "user-1", validCreate())
	in := validCreate()
	in.StartTime = "11:00"
	b, _ := svc.Create(context.Background(), "user-1", in)
	in = validCreate()
	in.SubjectID = "sub-2"
	c, _ := svc.Create(context.Background(), "user-1", in)
	rec.calls = nil

	_, err := svc.BulkAttendance(context.Background(), "user-1", []BulkItem{
		{ID: a.ID, Status: StatusPresent},
		{ID: b.ID, Status: StatusPresent},
		{ID: c.ID, Status: StatusPresent},
	})
	if err != nil {
		t.Fatalf("BulkAttendance returned error: %v", err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("recompute calls = %v, want one per subject", rec.calls)
	}
}

func TestMarkAttendanceCreatesPlaceholder(t *testing.T) {
	svc, store, rec, _ := newTestService()

	results, err := svc.MarkAttendance(context.Background(), "user-1", "2024-03-14", []MarkEntry{
		{SubjectID: "sub-1", Status: StatusPresent},
	})
	if err != nil {
		t.Fatalf("MarkAttendance returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v, want one lecture", results)
	}
	lec := results[0]
	if lec.Topic != "Regular class" || lec.StartTime != "09:00" || lec.EndTime != "10:00" {
		t.Errorf("placeholder lecture = %+v", lec)
	}
	if lec.Title != "Algorithms - 2024-03-14" {
		t.Errorf("title = %q", lec.Title)
	}
	if _, ok := store.lectures[lec.ID]; !ok {
		t.Error("placeholder not persisted")
	}
	if len(rec.calls) != 1 {
		t.Errorf("recompute calls = %v, want one", rec.calls)
	}
}

func TestMarkAttendanceUpdatesExisting(t *testing.T) {
	svc, store, _, _ := newTestService()

	lec, err := svc.Create(context.Background(), "user-1", validCreate())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	results, err := svc.MarkAttendance(context.Background(), "user-1", "2024-03-14", []MarkEntry{
		{SubjectID: "sub-1", Status: StatusExcused},
	})
	if err != nil {
		t.Fatalf("MarkAttendance returned error: %v", err)
	}
	if len(results) != 1 || results[0].ID != lec.ID {
		t.Fatalf("results = %v, want the existing lecture updated", results)
	}
	if store.lectures[lec.ID].Status != StatusExcused {
		t.Errorf("status = %q, want %q", store.lectures[lec.ID].Status, StatusExcused)
	}
	if len(store.lectures) != 1 {
		t.Errorf("lecture count = %d, want 1 (no duplicate created)", len(store.lectures))
	}
}

func TestMarkAttendanceRejectsInvalidStatus(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.MarkAttendance(context.Background(), "user-1", "2024-03-14", []MarkEntry{
		{SubjectID: "sub-1", Status: "bogus"},
	})
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestMarkAttendanceSkipsUnknownSubject(t *testing.T) {
	svc, _, _, _ := newTestService()

	results, err := svc.MarkAttendance(context.Background(), "user-1", "2024-03-14", []MarkEntry{
		{SubjectID: "sub-missing", Status: StatusPresent},
	})
	if err != nil {
		t.Fatalf("MarkAttendance returned error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestRangeGroupsByDate(t *testing.T) {
	svc, _, _, _ := newTestService()

	first, _ := svc.Create(context.Background(), "user-1", validCreate())
	in := validCreate()
	in.Date = "2024-03-13"
	second, _ := svc.Create(context.Background(), "user-1", in)

	grouped, total, err := svc.Range(context.Background(), "user-1", "2024-03-10", "2024-03-15")
	if err != nil {
		t.Fatalf("Range returned error: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(grouped["2024-03-14"]) != 1 || grouped["2024-03-14"][0].ID != first.ID {
		t.Errorf("2024-03-14 group = %v", grouped["2024-03-14"])
	}
	if len(grouped["2024-03-13"]) != 1 || grouped["2024-03-13"][0].ID != second.ID {
		t.Errorf("2024-03-13 group = %v", grouped["2024-03-13"])
	}
}

func TestRangeRejectsReversedDates(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, _, err := svc.Range(context.Background(), "user-1", "2024-03-15", "2024-03-10")
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != httpapi.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}
