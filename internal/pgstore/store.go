// Package pgstore keeps the job list in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/service"
)

// SchemaSQL creates the job table. seq orders jobs most recent first.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS ocr_jobs (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL NOT NULL,
	file_name   TEXT NOT NULL,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	progress    INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	attempt     INTEGER NOT NULL DEFAULT 1,
	message     TEXT NOT NULL DEFAULT '',
	result_url  TEXT NOT NULL DEFAULT '',
	remote_id   TEXT NOT NULL DEFAULT '',
	settings    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ocr_jobs_seq ON ocr_jobs (seq DESC);
`

const selectColumns = `id, file_name, type, status, progress, attempt, message, result_url, remote_id, settings, created_at, updated_at`

// ErrJobExists is returned when a job id is inserted twice.
var ErrJobExists = errors.New("job already exists")

// Store implements service.Store on a pgx connection pool.
type Store struct {
	pool     *pgxpool.Pool
	capacity int
	metrics  *metrics.Collector
	logger   *slog.Logger
}

var _ service.Store = (*Store)(nil)

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string, capacity int, mc *metrics.Collector, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool, capacity, mc, logger)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, capacity int, mc *metrics.Collector, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = service.DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, capacity: capacity, metrics: mc, logger: logger}
}

// InitSchema creates the job table if needed.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	s.logger.Info("postgres schema ready")
	return nil
}

// WipeData deletes every job.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all data from database")
	if _, err := s.pool.Exec(ctx, "TRUNCATE ocr_jobs"); err != nil {
		return fmt.Errorf("truncate ocr_jobs: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) observe(start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordResult(metrics.OpStoreQuery, time.Since(start), err)
	}
}

func scanJob(row pgx.CollectableRow) (models.Job, error) {
	var (
		j        models.Job
		typ      string
		status   string
		settings []byte
	)
	err := row.Scan(&j.ID, &j.FileName, &typ, &status, &j.Progress, &j.Attempt,
		&j.Message, &j.ResultURL, &j.RemoteID, &settings, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}
	j.Type = models.JobType(typ)
	j.Status = models.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if err := json.Unmarshal(settings, &j.Settings); err != nil {
		return models.Job{}, fmt.Errorf("decode settings of %s: %w", j.ID, err)
	}
	return j, nil
}

func (s *Store) List(ctx context.Context) (jobs []models.Job, err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM ocr_jobs ORDER BY seq DESC LIMIT $1`, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err = pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) Get(ctx context.Context, id string) (job models.Job, err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM ocr_jobs WHERE id = $1`, id)
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	job, err = pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, service.ErrJobNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Insert writes the batch in reverse so jobs[0] receives the highest seq,
// then trims past capacity in the same transaction.
func (s *Store) Insert(ctx context.Context, jobs ...models.Job) (evicted []string, err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := len(jobs) - 1; i >= 0; i-- {
		j := jobs[i]
		settings, err := json.Marshal(j.Settings)
		if err != nil {
			return nil, fmt.Errorf("encode settings: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ocr_jobs (id, file_name, type, status, progress, attempt, message, result_url, remote_id, settings, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			j.ID, j.FileName, string(j.Type), string(j.Status), j.Progress, j.Attempt,
			j.Message, j.ResultURL, j.RemoteID, settings, j.CreatedAt.UTC(), j.UpdatedAt.UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil, fmt.Errorf("%w: %s", ErrJobExists, j.ID)
			}
			return nil, fmt.Errorf("insert job %s: %w", j.ID, err)
		}
	}

	rows, err := tx.Query(ctx, `
		DELETE FROM ocr_jobs
		WHERE id IN (SELECT id FROM ocr_jobs ORDER BY seq DESC OFFSET $1)
		RETURNING id`, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("trim jobs: %w", err)
	}
	evicted, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("trim jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return evicted, nil
}

func (s *Store) Update(ctx context.Context, job models.Job) (err error) {
	start := time.Now()
	defer func() { s.observe(start, err) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE ocr_jobs SET
			status = $2, progress = $3, attempt = $4, message = $5,
			result_url = $6, remote_id = $7, updated_at = $8
		WHERE id = $1`,
		job.ID, string(job.Status), job.Progress, job.Attempt, job.Message,
		job.ResultURL, job.RemoteID, job.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrJobNotFound
	}
	return nil
}
