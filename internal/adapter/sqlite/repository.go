package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/vidbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    url         TEXT NOT NULL,
    requester   TEXT NOT NULL,
    channel     TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT 'queued',
    method      TEXT NOT NULL DEFAULT '',
    output_file TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    enqueued_at DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
`

const selectColumns = `SELECT id, url, requester, channel, state, method, output_file, error, enqueued_at, updated_at FROM jobs`

// Repository implements domain.JobRepository using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; the worker and the HTTP handlers share it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new queued job.
func (r *Repository) Create(ctx context.Context, job domain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, url, requester, channel, state, enqueued_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.URL, job.Requester, job.Channel, domain.StateQueued, job.EnqueuedAt, job.EnqueuedAt,
	)
	return err
}

// Get retrieves a job by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanRecord(row)
}

// List returns the most recently enqueued jobs first.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, limit)
}

// FindUnfinished returns jobs that never reached a terminal state, oldest first.
func (r *Repository) FindUnfinished(ctx context.Context) ([]domain.Record, error) {
	return r.query(ctx, selectColumns+` WHERE state IN (?, ?, ?) ORDER BY seq ASC`,
		domain.StateQueued, domain.StateFetching, domain.StateEncoding)
}

// SetState records a state transition.
func (r *Repository) SetState(ctx context.Context, id string, state domain.JobState) error {
	return r.update(ctx, `UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`, state, r.now(), id)
}

// Succeed marks a job as succeeded with its output.
func (r *Repository) Succeed(ctx context.Context, id string, outputFile string, method domain.EncodeMethod) error {
	return r.update(ctx,
		`UPDATE jobs SET state = ?, output_file = ?, method = ?, error = '', updated_at = ? WHERE id = ?`,
		domain.StateSucceeded, outputFile, method, r.now(), id,
	)
}

// Fail marks a job as failed.
func (r *Repository) Fail(ctx context.Context, id string, reason string) error {
	return r.update(ctx,
		`UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		domain.StateFailed, reason, r.now(), id,
	)
}

func (r *Repository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.Record, error) {
	var rec domain.Record
	var state, method string
	err := row.Scan(&rec.ID, &rec.URL, &rec.Requester, &rec.Channel, &state, &method, &rec.OutputFile, &rec.Error, &rec.EnqueuedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.State = domain.JobState(state)
	rec.Method = domain.EncodeMethod(method)
	return &rec, nil
}
