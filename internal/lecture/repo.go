package lecture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists lectures in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const lectureColumns = `
	l.id, l.subject_id, l.user_id, l.title, l.topic, l.description,
	l.lecture_date, l.start_time, l.end_time, l.duration, l.room, l.status,
	l.notes, l.materials, l.assignments, l.is_important, l.is_exam,
	l.exam_type, l.created_at, l.updated_at,
	s.id, s.name, s.code, s.color, s.attendance_percentage`

const lectureFrom = ` FROM lectures l JOIN subjects s ON s.id = l.subject_id`

func scanLecture(scan func(dest ...any) error) (*Lecture, error) {
	var (
		lec         Lecture
		subj        SubjectRef
		materials   []byte
		assignments []byte
	)
	err := scan(
		&lec.ID, &lec.SubjectID, &lec.UserID, &lec.Title, &lec.Topic, &lec.Description,
		&lec.Date, &lec.StartTime, &lec.EndTime, &lec.Duration, &lec.Room, &lec.Status,
		&lec.Notes, &materials, &assignments, &lec.IsImportant, &lec.IsExam,
		&lec.ExamType, &lec.CreatedAt, &lec.UpdatedAt,
		&subj.ID, &subj.Name, &subj.Code, &subj.Color, &subj.AttendancePercentage,
	)
	if err != nil {
		return nil, err
	}
	if len(materials) > 0 {
		if err := json.Unmarshal(materials, &lec.Materials); err != nil {
			return nil, fmt.Errorf("decode materials: %w", err)
		}
	}
	if len(assignments) > 0 {
		if err := json.Unmarshal(assignments, &lec.Assignments); err != nil {
			return nil, fmt.Errorf("decode assignments: %w", err)
		}
	}
	lec.Subject = &subj
	return &lec, nil
}

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

// Insert writes a new lecture.
func (r *Repository) Insert(ctx context.Context, lec *Lecture) error {
	materials, err := encodeJSON(lec.Materials)
	if err != nil {
		return err
	}
	assignments, err := encodeJSON(lec.Assignments)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lectures (
			id, subject_id, user_id, title, topic, description,
			lecture_date, start_time, end_time, duration, room, status,
			notes, materials, assignments, is_important, is_exam, exam_type,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, lec.ID, lec.SubjectID, lec.UserID, lec.Title, lec.Topic, lec.Description,
		lec.Date, lec.StartTime, lec.EndTime, lec.Duration, lec.Room, lec.Status,
		lec.Notes, materials, assignments, lec.IsImportant, lec.IsExam, lec.ExamType,
		lec.CreatedAt, lec.UpdatedAt)
	return err
}

// Update overwrites a lecture's mutable columns.
func (r *Repository) Update(ctx context.Context, lec *Lecture) error {
	materials, err := encodeJSON(lec.Materials)
	if err != nil {
		return err
	}
	assignments, err := encodeJSON(lec.Assignments)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE lectures SET
			title = $2, topic = $3, description = $4, lecture_date = $5,
			start_time = $6, end_time = $7, duration = $8, room = $9,
			status = $10, notes = $11, materials = $12, assignments = $13,
			is_important = $14, is_exam = $15, exam_type = $16, updated_at = $17
		WHERE id = $1
	`, lec.ID, lec.Title, lec.Topic, lec.Description, lec.Date,
		lec.StartTime, lec.EndTime, lec.Duration, lec.Room,
		lec.Status, lec.Notes, materials, assignments,
		lec.IsImportant, lec.IsExam, lec.ExamType, lec.UpdatedAt)
	return err
}

// Delete removes a lecture.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lectures WHERE id = $1`, id)
	return err
}

// GetForUser returns a lecture owned by the user, or nil when absent.
func (r *Repository) GetForUser(ctx context.Context, id, userID string) (*Lecture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+` WHERE l.id = $1 AND l.user_id = $2`,
		id, userID)
	lec, err := scanLecture(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lec, err
}

// FindSlot returns the lecture occupying an exact (subject, date, start time)
// slot, or nil.
func (r *Repository) FindSlot(ctx context.Context, subjectID string, date time.Time, startTime string) (*Lecture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+` WHERE l.subject_id = $1 AND l.lecture_date = $2 AND l.start_time = $3`,
		subjectID, date, startTime)
	lec, err := scanLecture(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lec, err
}

// FindByDate returns the user's lecture for a subject on a given date, or nil.
func (r *Repository) FindByDate(ctx context.Context, userID, subjectID string, date time.Time) (*Lecture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+`
		WHERE l.user_id = $1 AND l.subject_id = $2 AND l.lecture_date = $3
		ORDER BY l.start_time LIMIT 1`,
		userID, subjectID, date)
	lec, err := scanLecture(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lec, err
}

// List returns a filtered page of the user's lectures plus the total count.
func (r *Repository) List(ctx context.Context, userID string, f ListFilter) ([]Lecture, int, error) {
	where := []string{"l.user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.SubjectID != "" {
		where = append(where, "l.subject_id = "+arg(f.SubjectID))
	}
	if f.Status != "" {
		where = append(where, "l.status = "+arg(f.Status))
	}
	if f.Start != nil {
		where = append(where, "l.lecture_date >= "+arg(*f.Start))
	}
	if f.End != nil {
		where = append(where, "l.lecture_date <= "+arg(*f.End))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(l.title ILIKE "+p+" OR l.topic ILIKE "+p+")")
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+lectureFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY l.lecture_date DESC, l.start_time DESC"
	if f.Sort == "date_asc" {
		order = " ORDER BY l.lecture_date ASC, l.start_time ASC"
	}
	offset := (f.Page - 1) * f.Limit
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+cond+order+
			" LIMIT "+arg(f.Limit)+" OFFSET "+arg(offset),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	lectures, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return lectures, total, nil
}

// ListRange returns the user's lectures between start and end inclusive.
func (r *Repository) ListRange(ctx context.Context, userID string, start, end time.Time) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+`
		WHERE l.user_id = $1 AND l.lecture_date BETWEEN $2 AND $3
		ORDER BY l.lecture_date ASC, l.start_time ASC`,
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListUpcoming returns lectures dated in (from, to], soonest first.
func (r *Repository) ListUpcoming(ctx context.Context, userID string, from, to time.Time, limit int) ([]Lecture, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+lectureColumns+lectureFrom+`
		WHERE l.user_id = $1 AND l.lecture_date > $2 AND l.lecture_date <= $3
		ORDER BY l.lecture_date ASC, l.start_time ASC
		LIMIT $4`,
		userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// UpdateStatus sets the status of an owned lecture and returns the updated
// row, or nil when the lecture does not exist or belongs to someone else.
func (r *Repository) UpdateStatus(ctx context.Context, id, userID, status string) (*Lecture, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lectures SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, userID, status)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, nil
	}
	return r.GetForUser(ctx, id, userID)
}

// ActiveSubject returns a ref for an active subject owned by the user.
func (r *Repository) ActiveSubject(ctx context.Context, subjectID, userID string) (*SubjectRef, error) {
	return r.subjectRef(ctx, subjectID, userID, true)
}

// OwnedSubject returns a ref for any subject owned by the user, active or not.
func (r *Repository) OwnedSubject(ctx context.Context, subjectID, userID string) (*SubjectRef, error) {
	return r.subjectRef(ctx, subjectID, userID, false)
}

func (r *Repository) subjectRef(ctx context.Context, subjectID, userID string, activeOnly bool) (*SubjectRef, error) {
	q := `
		SELECT id, name, code, color, attendance_percentage
		FROM subjects WHERE id = $1 AND user_id = $2`
	if activeOnly {
		q += ` AND is_active = TRUE`
	}
	var ref SubjectRef
	err := r.db.QueryRowContext(ctx, q, subjectID, userID).Scan(
		&ref.ID, &ref.Name, &ref.Code, &ref.Color, &ref.AttendancePercentage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func collect(rows *sql.Rows) ([]Lecture, error) {
	var lectures []Lecture
	for rows.Next() {
		lec, err := scanLecture(rows.Scan)
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, *lec)
	}
	return lectures, rows.Err()
}
