package dashboard

import (
	"context"
	"database/sql"

	"markit/internal/lecture"
	"markit/internal/subject"
)

// Repository backs the demo seeder with direct inserts, bypassing the
// services so seeding neither notifies nor double-recomputes.
type Repository struct {
	db       *sql.DB
	subjects *subject.Repository
	lectures *lecture.Repository
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB, subjects *subject.Repository, lectures *lecture.Repository) *Repository {
	return &Repository{db: db, subjects: subjects, lectures: lectures}
}

func (r *Repository) InsertSubject(ctx context.Context, sub *subject.Subject) error {
	return r.subjects.Insert(ctx, sub)
}

func (r *Repository) InsertLecture(ctx context.Context, lec *lecture.Lecture) error {
	return r.lectures.Insert(ctx, lec)
}

func (r *Repository) SubjectCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subjects WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}
