package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"resizeq/internal/models"
)

// ErrNotFound is returned when a job key has no row.
var ErrNotFound = errors.New("job not found")

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

// InsertJob creates the tracking row for an accepted upload. The row's
// created_at is assigned by the database and read back into job.
func (s *Storage) InsertJob(ctx context.Context, job *models.Job) error {
	const op = "storage.InsertJob"
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (key, url, width, height, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		job.Key, job.URL, job.Width, job.Height, job.Status).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, key string) (*models.Job, error) {
	const op = "storage.GetJob"
	var job models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT key, url, width, height, status, created_at FROM jobs WHERE key = $1`,
		key).Scan(&job.Key, &job.URL, &job.Width, &job.Height, &job.Status, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &job, nil
}

// ListRecent returns the limit most recently created jobs, newest first.
func (s *Storage) ListRecent(ctx context.Context, limit int) ([]models.Job, error) {
	const op = "storage.ListRecent"
	rows, err := s.pool.Query(ctx,
		`SELECT key, url, width, height, status, created_at
		 FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0, limit)
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(&job.Key, &job.URL, &job.Width, &job.Height, &job.Status, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return jobs, nil
}

// SetStatus moves a job from one status to another. The from guard keeps
// transitions moving forward even when a queue message is delivered twice.
// Returns false when no row matched.
func (s *Storage) SetStatus(ctx context.Context, key string, from, to models.Status) (bool, error) {
	const op = "storage.SetStatus"
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $3 WHERE key = $1 AND status = $2`,
		key, from, to)
	if err != nil {
		return false, fmt.Errorf("%s: %v", op, err)
	}
	return tag.RowsAffected() == 1, nil
}
