package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/service"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobRecord is the stored shape of a job.
type jobRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Seq       int64                  `json:"seq"`
	FileName  string                 `json:"file_name"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Attempt   int                    `json:"attempt"`
	Message   string                 `json:"message"`
	ResultURL string                 `json:"result_url"`
	RemoteID  string                 `json:"remote_id"`
	Settings  models.OcrSettings     `json:"settings"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (r jobRecord) toModel() (models.Job, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.Job{}, err
	}
	return models.Job{
		ID:        id,
		FileName:  r.FileName,
		Type:      models.JobType(r.Type),
		Status:    models.JobStatus(r.Status),
		Progress:  r.Progress,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
		Attempt:   r.Attempt,
		ResultURL: r.ResultURL,
		Message:   r.Message,
		RemoteID:  r.RemoteID,
		Settings:  r.Settings,
	}, nil
}

// JobStore persists jobs in the job table and implements service.Store.
type JobStore struct {
	client   *Client
	capacity int
}

var _ service.Store = (*JobStore)(nil)

// NewJobStore creates a store retaining at most capacity jobs.
func NewJobStore(c *Client, capacity int) *JobStore {
	if capacity <= 0 {
		capacity = service.DefaultCapacity
	}
	return &JobStore{client: c, capacity: capacity}
}

func (s *JobStore) List(ctx context.Context) (jobs []models.Job, err error) {
	start := time.Now()
	defer func() { s.client.observe(start, err) }()

	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
		SELECT * FROM job ORDER BY seq DESC LIMIT $limit
	`, map[string]any{"limit": s.capacity})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}

	jobs = []models.Job{}
	if results == nil || len(*results) == 0 {
		return jobs, nil
	}
	for _, r := range (*results)[0].Result {
		j, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (job models.Job, err error) {
	start := time.Now()
	defer func() { s.client.observe(start, err) }()

	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Job{}, service.ErrJobNotFound
	}
	return (*results)[0].Result[0].toModel()
}

// Insert numbers the batch above the current highest seq so that jobs[0]
// lists first, then deletes everything past capacity.
func (s *JobStore) Insert(ctx context.Context, jobs ...models.Job) (evicted []string, err error) {
	start := time.Now()
	defer func() { s.client.observe(start, err) }()

	top, err := surrealdb.Query[[]int64](ctx, s.client.db, `
		SELECT VALUE seq FROM job ORDER BY seq DESC LIMIT 1
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("insert jobs: %w", wrapQueryError(err))
	}
	var base int64
	if top != nil && len(*top) > 0 && len((*top)[0].Result) > 0 {
		base = (*top)[0].Result[0]
	}

	for i, j := range jobs {
		_, err := surrealdb.Query[any](ctx, s.client.db, `
			CREATE type::record("job", $id) SET
				seq = $seq,
				file_name = $file_name,
				type = $type,
				status = $status,
				progress = $progress,
				attempt = $attempt,
				message = $message,
				result_url = $result_url,
				remote_id = $remote_id,
				settings = $settings,
				created_at = $created_at,
				updated_at = $updated_at
		`, map[string]any{
			"id":         j.ID,
			"seq":        base + int64(len(jobs)-i),
			"file_name":  j.FileName,
			"type":       string(j.Type),
			"status":     string(j.Status),
			"progress":   j.Progress,
			"attempt":    j.Attempt,
			"message":    j.Message,
			"result_url": j.ResultURL,
			"remote_id":  j.RemoteID,
			"settings":   j.Settings.Clone(),
			"created_at": j.CreatedAt.UTC(),
			"updated_at": j.UpdatedAt.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("insert job %s: %w", j.ID, wrapQueryError(err))
		}
	}

	return s.trim(ctx)
}

// trim removes jobs beyond capacity and returns their ids.
func (s *JobStore) trim(ctx context.Context) ([]string, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
		DELETE job WHERE id INSIDE (SELECT VALUE id FROM job ORDER BY seq DESC START $capacity) RETURN BEFORE
	`, map[string]any{"capacity": s.capacity})
	if err != nil {
		return nil, fmt.Errorf("trim jobs: %w", wrapQueryError(err))
	}

	var ids []string
	if results == nil || len(*results) == 0 {
		return ids, nil
	}
	for _, r := range (*results)[0].Result {
		id, err := models.RecordIDString(r.ID)
		if err != nil {
			return nil, fmt.Errorf("trim jobs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Update overwrites the mutable fields of a job. seq and settings never change.
func (s *JobStore) Update(ctx context.Context, job models.Job) (err error) {
	start := time.Now()
	defer func() { s.client.observe(start, err) }()

	results, err := surrealdb.Query[[]jobRecord](ctx, s.client.db, `
		UPDATE type::record("job", $id) SET
			status = $status,
			progress = $progress,
			attempt = $attempt,
			message = $message,
			result_url = $result_url,
			remote_id = $remote_id,
			updated_at = $updated_at
		RETURN AFTER
	`, map[string]any{
		"id":         job.ID,
		"status":     string(job.Status),
		"progress":   job.Progress,
		"attempt":    job.Attempt,
		"message":    job.Message,
		"result_url": job.ResultURL,
		"remote_id":  job.RemoteID,
		"updated_at": job.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("update job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return service.ErrJobNotFound
	}
	return nil
}
