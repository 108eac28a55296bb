package stats

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository implements Source against Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SubjectExists reports whether the subject id resolves to a record.
func (r *Repository) SubjectExists(ctx context.Context, subjectID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE id = $1`, subjectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountLectures returns the subject's total lecture count and the count with
// status exactly "present".
func (r *Repository) CountLectures(ctx context.Context, subjectID string) (int, int, error) {
	var total, present int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'present')
		FROM lectures WHERE subject_id = $1
	`, subjectID).Scan(&total, &present)
	return total, present, err
}

// UpdateSubjectTotals writes the cached statistics fields onto the subject.
func (r *Repository) UpdateSubjectTotals(ctx context.Context, subjectID string, t SubjectTotals) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subjects
		SET total_lectures = $2, attended_lectures = $3, attendance_percentage = $4, updated_at = NOW()
		WHERE id = $1
	`, subjectID, t.TotalLectures, t.AttendedLectures, t.AttendancePercentage)
	return err
}

// UserLectures returns lecture rows for a user, optionally bounded by date.
func (r *Repository) UserLectures(ctx context.Context, userID string, from, to *time.Time) ([]LectureRow, error) {
	query := `SELECT subject_id, lecture_date, start_time, status FROM lectures WHERE user_id = $1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += ` AND lecture_date >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			query += ` AND lecture_date <= $3`
		} else {
			query += ` AND lecture_date <= $2`
		}
	}
	query += ` ORDER BY lecture_date`
	return r.scanRows(ctx, query, args...)
}

// SubjectLectures returns lecture rows for one subject.
func (r *Repository) SubjectLectures(ctx context.Context, subjectID string) ([]LectureRow, error) {
	return r.scanRows(ctx, `
		SELECT subject_id, lecture_date, start_time, status
		FROM lectures WHERE subject_id = $1 ORDER BY lecture_date
	`, subjectID)
}

func (r *Repository) scanRows(ctx context.Context, query string, args ...any) ([]LectureRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LectureRow
	for rows.Next() {
		var lr LectureRow
		if err := rows.Scan(&lr.SubjectID, &lr.Date, &lr.StartTime, &lr.Status); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

// UserSubjects returns subject meta rows including the cached totals.
func (r *Repository) UserSubjects(ctx context.Context, userID string) ([]SubjectMeta, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, code, color, is_active, total_lectures, attended_lectures, attendance_percentage
		FROM subjects WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SubjectMeta
	for rows.Next() {
		var m SubjectMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.Code, &m.Color, &m.Active, &m.TotalLectures, &m.AttendedLectures, &m.AttendancePercentage); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
