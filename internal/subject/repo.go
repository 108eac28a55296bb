package subject

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Repository persists subjects in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const subjectColumns = `
	id, user_id, name, code, description, instructor, schedule, semester,
	year, color, is_active, total_lectures, attended_lectures,
	attendance_percentage, created_at, updated_at`

func scanSubject(scan func(dest ...any) error) (*Subject, error) {
	var (
		sub        Subject
		instructor []byte
		schedule   []byte
	)
	err := scan(
		&sub.ID, &sub.UserID, &sub.Name, &sub.Code, &sub.Description,
		&instructor, &schedule, &sub.Semester, &sub.Year, &sub.Color,
		&sub.IsActive, &sub.TotalLectures, &sub.AttendedLectures,
		&sub.AttendancePercentage, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(instructor) > 0 && string(instructor) != "null" {
		sub.Instructor = &Instructor{}
		if err := json.Unmarshal(instructor, sub.Instructor); err != nil {
			return nil, fmt.Errorf("decode instructor: %w", err)
		}
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &sub.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
	}
	return &sub, nil
}

func encodeSubject(sub *Subject) (instructor, schedule []byte, err error) {
	if sub.Instructor != nil {
		instructor, err = json.Marshal(sub.Instructor)
		if err != nil {
			return nil, nil, err
		}
	} else {
		instructor = []byte("null")
	}
	if sub.Schedule != nil {
		schedule, err = json.Marshal(sub.Schedule)
	} else {
		schedule = []byte("[]")
	}
	return instructor, schedule, err
}

// Insert writes a new subject.
func (r *Repository) Insert(ctx context.Context, sub *Subject) error {
	instructor, schedule, err := encodeSubject(sub)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (
			id, user_id, name, code, description, instructor, schedule,
			semester, year, color, is_active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sub.ID, sub.UserID, sub.Name, sub.Code, sub.Description, instructor,
		schedule, sub.Semester, sub.Year, sub.Color, sub.IsActive,
		sub.CreatedAt, sub.UpdatedAt)
	return err
}

// Update overwrites a subject's mutable columns. The cached attendance
// counters are owned by the statistics recompute and left untouched here.
func (r *Repository) Update(ctx context.Context, sub *Subject) error {
	instructor, schedule, err := encodeSubject(sub)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE subjects SET
			name = $2, code = $3, description = $4, instructor = $5,
			schedule = $6, semester = $7, year = $8, color = $9,
			is_active = $10, updated_at = $11
		WHERE id = $1
	`, sub.ID, sub.Name, sub.Code, sub.Description, instructor, schedule,
		sub.Semester, sub.Year, sub.Color, sub.IsActive, sub.UpdatedAt)
	return err
}

// Delete hard-deletes a subject and, via the FK cascade, its lectures.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	return err
}

// Archive marks a subject inactive, keeping its lecture history.
func (r *Repository) Archive(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subjects SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// GetForUser returns a subject owned by the user, or nil when absent.
func (r *Repository) GetForUser(ctx context.Context, id, userID string) (*Subject, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+subjectColumns+` FROM subjects WHERE id = $1 AND user_id = $2`,
		id, userID)
	sub, err := scanSubject(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// FindActiveByName returns the user's active subject with the given name,
// excluding excludeID when set, or nil.
func (r *Repository) FindActiveByName(ctx context.Context, userID, name, excludeID string) (*Subject, error) {
	q := `SELECT` + subjectColumns + ` FROM subjects
		WHERE user_id = $1 AND name = $2 AND is_active = TRUE`
	args := []any{userID, name}
	if excludeID != "" {
		q += ` AND id <> $3`
		args = append(args, excludeID)
	}
	row := r.db.QueryRowContext(ctx, q, args...)
	sub, err := scanSubject(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// List returns a filtered page of the user's subjects plus the total count.
func (r *Repository) List(ctx context.Context, userID string, f ListFilter) ([]Subject, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where,
			"(name ILIKE "+p+" OR code ILIKE "+p+" OR instructor->>'name' ILIKE "+p+")")
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY created_at DESC"
	switch f.Sort {
	case "name":
		order = " ORDER BY name ASC"
	case "attendance":
		order = " ORDER BY attendance_percentage DESC"
	}
	offset := (f.Page - 1) * f.Limit
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+subjectColumns+` FROM subjects`+cond+order+
			" LIMIT "+arg(f.Limit)+" OFFSET "+arg(offset),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		sub, err := scanSubject(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		subjects = append(subjects, *sub)
	}
	return subjects, total, rows.Err()
}

// LectureCount returns how many lectures reference a subject.
func (r *Repository) LectureCount(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lectures WHERE subject_id = $1`, subjectID).Scan(&n)
	return n, err
}

// RecentLectures returns the subject's most recent lectures, newest first.
func (r *Repository) RecentLectures(ctx context.Context, subjectID string, limit int) ([]LectureBrief, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, topic, lecture_date, status
		FROM lectures WHERE subject_id = $1
		ORDER BY lecture_date DESC, start_time DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var briefs []LectureBrief
	for rows.Next() {
		var b LectureBrief
		if err := rows.Scan(&b.ID, &b.Title, &b.Topic, &b.Date, &b.Status); err != nil {
			return nil, err
		}
		briefs = append(briefs, b)
	}
	return briefs, rows.Err()
}
