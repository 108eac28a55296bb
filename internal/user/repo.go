package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists users in Postgres. It also serves as the directory the
// websocket handshake and the subject goal endpoint look users up through.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	id, name, email, password_hash, role, profile, preferences,
	attendance_goal, is_active, last_login, login_count, created_at, updated_at`

func scanUser(scan func(dest ...any) error) (*User, error) {
	var (
		u           User
		profile     []byte
		preferences []byte
		lastLogin   sql.NullTime
	)
	err := scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &profile,
		&preferences, &u.AttendanceGoal, &u.IsActive, &lastLogin,
		&u.LoginCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

// Insert writes a new user.
func (r *Repository) Insert(ctx context.Context, u *User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return err
	}
	preferences, err := json.Marshal(u.Preferences)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, name, email, password_hash, role, profile, preferences,
			attendance_goal, is_active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, profile, preferences,
		u.AttendanceGoal, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return err
}

// Update overwrites a user's mutable columns.
func (r *Repository) Update(ctx context.Context, u *User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return err
	}
	preferences, err := json.Marshal(u.Preferences)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE users SET
			name = $2, email = $3, role = $4, profile = $5, preferences = $6,
			attendance_goal = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.Role, profile, preferences,
		u.AttendanceGoal, u.IsActive, u.UpdatedAt)
	return err
}

// GetByID returns a user, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetByEmail returns a user by email, or nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// RecordLogin bumps the login counter and timestamp.
func (r *Repository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login = $2, login_count = login_count + 1 WHERE id = $1
	`, id, at)
	return err
}

// DeleteCascade removes the user; subjects and lectures follow via FK.
func (r *Repository) DeleteCascade(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// List returns a filtered page of users plus the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]User, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR email ILIKE "+p+")")
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+userColumns+` FROM users`+cond+
			" ORDER BY created_at DESC LIMIT "+arg(f.Limit)+" OFFSET "+arg(offset),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// Counts returns how many subjects and lectures a user owns.
func (r *Repository) Counts(ctx context.Context, id string) (int, int, error) {
	var subjects, lectures int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subjects WHERE user_id = $1),
			(SELECT COUNT(*) FROM lectures WHERE user_id = $1)
	`, id).Scan(&subjects, &lectures)
	return subjects, lectures, err
}

// AttendanceGoal returns the user's global goal percentage.
func (r *Repository) AttendanceGoal(ctx context.Context, id string) (int, error) {
	var goal int
	err := r.db.QueryRowContext(ctx,
		`SELECT attendance_goal FROM users WHERE id = $1`, id).Scan(&goal)
	if errors.Is(err, sql.ErrNoRows) {
		return 75, nil
	}
	return goal, err
}

// UpdateAttendanceGoal sets the user's global goal percentage.
func (r *Repository) UpdateAttendanceGoal(ctx context.Context, id string, goal int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET attendance_goal = $2, updated_at = NOW() WHERE id = $1
	`, id, goal)
	return err
}

// SetActive toggles an account.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	return err
}

// ActiveUser resolves an id to a display name for the websocket handshake.
// Deactivated accounts do not resolve.
func (r *Repository) ActiveUser(ctx context.Context, id string) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM users WHERE id = $1 AND is_active = TRUE`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}
