// Package service provides the business logic of the OCR desk.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/notify"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

// Handle controls one advancement run.
type Handle struct {
	JobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the run at its next suspension point.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the run goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Tracker creates jobs, runs their advancement and publishes every change.
// All methods are thread-safe.
type Tracker struct {
	store    Store
	advancer Advancer
	toasts   *notify.Queue
	metrics  *metrics.Collector
	logger   *slog.Logger

	// mu serializes job mutations so a canceled run cannot overwrite a later state.
	mu      sync.Mutex
	runs    map[string]*Handle
	files   map[string]upload.File
	results map[string]*models.OcrResult
	// version orders job snapshots. Guarded by mu.
	version uint64

	// pubMu serializes delivery; published holds the last delivered version per job.
	pubMu     sync.Mutex
	published map[string]uint64

	subMu  sync.RWMutex
	subs   map[int]func(models.Job)
	nextID int

	wg sync.WaitGroup
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithToasts reports job outcomes as toasts.
func WithToasts(q *notify.Queue) TrackerOption {
	return func(t *Tracker) { t.toasts = q }
}

// WithMetrics records run durations.
func WithMetrics(c *metrics.Collector) TrackerOption {
	return func(t *Tracker) { t.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker over store, advancing jobs with advancer.
func NewTracker(store Store, advancer Advancer, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    store,
		advancer: advancer,
		logger:   slog.Default(),
		runs:     make(map[string]*Handle),
		files:    make(map[string]upload.File),
		results:   make(map[string]*models.OcrResult),
		published: make(map[string]uint64),
		subs:      make(map[int]func(models.Job)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateJobs allocates one queued job per file, inserts them before every
// existing job and starts an advancement run for each one still retained.
func (t *Tracker) CreateJobs(ctx context.Context, files []upload.File, settings models.OcrSettings) ([]models.Job, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	now := time.Now().UTC()
	jobs := make([]models.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, models.Job{
			ID:        models.NewID("job"),
			FileName:  f.Name,
			Type:      models.JobTypeOCR,
			Status:    models.JobStatusQueued,
			Progress:  0,
			CreatedAt: now,
			UpdatedAt: now,
			Attempt:   1,
			Message:   settings.Summary(),
			Settings:  settings.Clone(),
		})
	}

	t.mu.Lock()
	evicted, err := t.store.Insert(ctx, jobs...)
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("insert jobs: %w", err)
	}
	gone := make(map[string]bool, len(evicted))
	for _, id := range evicted {
		gone[id] = true
		t.forgetLocked(id)
	}
	// Runs wait for the gate so subscribers see the queued state first.
	gate := make(chan struct{})
	versions := make([]uint64, len(jobs))
	for i, j := range jobs {
		versions[i] = t.nextVersionLocked()
		if !gone[j.ID] {
			t.files[j.ID] = files[i]
			t.startLocked(j, files[i], gate)
		}
	}
	t.mu.Unlock()

	for i, j := range jobs {
		t.publish(j, versions[i])
	}
	t.unpublish(evicted)
	close(gate)
	if len(evicted) > 0 {
		t.logger.Debug("evicted jobs", "count", len(evicted))
	}
	t.logger.Info("jobs created", "count", len(jobs))
	t.toast(models.SeverityInfo, fmt.Sprintf("%d job(s) queued", len(jobs)))
	return jobs, nil
}

// RecordCompleted stores a job that already finished outside the tracker,
// such as a synchronous conversion. A non-nil runErr marks it as failed.
func (t *Tracker) RecordCompleted(ctx context.Context, fileName string, typ models.JobType, runErr error) (models.Job, error) {
	now := time.Now().UTC()
	job := models.Job{
		ID:        models.NewID("job"),
		FileName:  fileName,
		Type:      typ,
		Status:    models.JobStatusDone,
		Progress:  100,
		CreatedAt: now,
		UpdatedAt: now,
		Attempt:   1,
	}
	if runErr != nil {
		job.Status = models.JobStatusError
		job.Message = runErr.Error()
	}

	t.mu.Lock()
	evicted, err := t.store.Insert(ctx, job)
	if err == nil {
		for _, id := range evicted {
			t.forgetLocked(id)
		}
	}
	version := t.nextVersionLocked()
	t.mu.Unlock()
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	t.unpublish(evicted)
	t.publish(job, version)
	return job, nil
}

// List returns jobs matching filter, newest first.
func (t *Tracker) List(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	all, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]models.Job, 0, len(all))
	for _, j := range all {
		if filter.Match(j) {
			jobs = append(jobs, j)
		}
	}
	slices.SortStableFunc(jobs, func(a, b models.Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return jobs, nil
}

// Get returns a single job.
func (t *Tracker) Get(ctx context.Context, id string) (models.Job, error) {
	return t.store.Get(ctx, id)
}

// Result returns the recognition result of a finished backend job.
func (t *Tracker) Result(ctx context.Context, id string) (*models.OcrResult, error) {
	if _, err := t.store.Get(ctx, id); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	res, ok := t.results[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return res, nil
}

// Cancel stops a job's run and marks it canceled.
func (t *Tracker) Cancel(ctx context.Context, id string) (models.Job, error) {
	t.mu.Lock()
	job, err := t.store.Get(ctx, id)
	if err != nil {
		t.mu.Unlock()
		return models.Job{}, err
	}
	if job.Status.IsTerminal() {
		t.mu.Unlock()
		return job, ErrJobFinished
	}

	if h, ok := t.runs[id]; ok {
		h.Cancel()
		delete(t.runs, id)
	}
	job.Status = models.JobStatusCanceled
	job.Message = "Canceled by user"
	job.UpdatedAt = time.Now().UTC()
	err = t.store.Update(ctx, job)
	version := t.nextVersionLocked()
	t.mu.Unlock()
	if err != nil {
		return models.Job{}, fmt.Errorf("update job: %w", err)
	}

	t.logger.Info("job canceled", "job_id", id)
	t.publish(job, version)
	t.toast(models.SeverityInfo, "Canceled "+job.FileName)
	return job, nil
}

// Retry re-queues a failed or canceled job and starts a fresh run.
func (t *Tracker) Retry(ctx context.Context, id string) (models.Job, error) {
	t.mu.Lock()
	job, err := t.store.Get(ctx, id)
	if err != nil {
		t.mu.Unlock()
		return models.Job{}, err
	}
	switch job.Status {
	case models.JobStatusError, models.JobStatusCanceled:
	case models.JobStatusDone:
		t.mu.Unlock()
		return job, ErrNotRetryable
	default:
		t.mu.Unlock()
		return job, ErrJobActive
	}
	// Only OCR runs can be replayed, and only while the upload is still held.
	file, ok := t.files[id]
	if job.Type != models.JobTypeOCR || !ok {
		t.mu.Unlock()
		return job, fmt.Errorf("%w: %s has no retained upload", ErrNotRetryable, job.FileName)
	}

	job.Status = models.JobStatusQueued
	job.Progress = 0
	job.Attempt++
	job.Message = job.Settings.Summary()
	job.ResultURL = ""
	job.RemoteID = ""
	job.UpdatedAt = time.Now().UTC()
	if err := t.store.Update(ctx, job); err != nil {
		t.mu.Unlock()
		return models.Job{}, fmt.Errorf("update job: %w", err)
	}
	delete(t.results, id)
	gate := make(chan struct{})
	t.startLocked(job, file, gate)
	version := t.nextVersionLocked()
	t.mu.Unlock()

	t.logger.Info("job retried", "job_id", id, "attempt", job.Attempt)
	t.publish(job, version)
	close(gate)
	return job, nil
}

// Handle returns the active run of a job, if any.
func (t *Tracker) Handle(id string) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.runs[id]
	return h, ok
}

// Subscribe registers fn for every job change and returns a function that removes it.
// fn must not block or call back into the Tracker.
func (t *Tracker) Subscribe(fn func(models.Job)) func() {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

// Close cancels every run and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	for id, h := range t.runs {
		h.Cancel()
		delete(t.runs, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// startLocked launches the advancement goroutine, which begins once gate is closed.
// Caller must hold t.mu.
func (t *Tracker) startLocked(job models.Job, file upload.File, gate <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{JobID: job.ID, cancel: cancel, done: make(chan struct{})}
	t.runs[job.ID] = h

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(h.done)
		defer cancel()

		start := time.Now()
		var err error
		defer func() {
			if r := recover(); r != nil {
				slog.Error("job run panicked", "job_id", job.ID, "panic", r)
				err = fmt.Errorf("internal panic: %v", r)
			}
			t.finish(h, err)
			if t.metrics != nil {
				t.metrics.RecordResult(metrics.OpJobRun, time.Since(start), err)
			}
		}()

		select {
		case <-gate:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		err = t.advancer.Advance(ctx, job, file, func(s Step) { t.apply(h, s) })
	}()
}

// forgetLocked drops everything held for an evicted job. Caller must hold t.mu.
func (t *Tracker) forgetLocked(id string) {
	if h, ok := t.runs[id]; ok {
		h.Cancel()
		delete(t.runs, id)
	}
	delete(t.files, id)
	delete(t.results, id)
}

// apply merges a step into the job if h is still its current run.
// Status only moves forward and progress never decreases.
func (t *Tracker) apply(h *Handle, s Step) {
	ctx := context.Background()

	t.mu.Lock()
	if t.runs[h.JobID] != h {
		t.mu.Unlock()
		return
	}
	job, err := t.store.Get(ctx, h.JobID)
	if err != nil || job.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}

	// Terminal states are only entered through finish or Cancel.
	if s.Status != "" && !s.Status.IsTerminal() && s.Status.Rank() > job.Status.Rank() {
		job.Status = s.Status
	}
	job.Progress = max(job.Progress, min(max(s.Progress, 0), 100))
	if s.Message != "" {
		job.Message = s.Message
	}
	if s.RemoteID != "" {
		job.RemoteID = s.RemoteID
	}
	if s.Result != nil {
		t.results[job.ID] = s.Result
		job.ResultURL = "/api/batch/jobs/" + job.ID + "/result"
	}
	job.UpdatedAt = time.Now().UTC()
	err = t.store.Update(ctx, job)
	version := t.nextVersionLocked()
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("failed to update job", "job_id", job.ID, "error", err)
		return
	}
	t.publish(job, version)
}

// finish moves the job to its terminal state once the run exits.
func (t *Tracker) finish(h *Handle, runErr error) {
	ctx := context.Background()

	t.mu.Lock()
	if t.runs[h.JobID] != h {
		// Canceled, evicted or superseded by a retry.
		t.mu.Unlock()
		return
	}
	delete(t.runs, h.JobID)

	job, err := t.store.Get(ctx, h.JobID)
	if err != nil || job.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}

	switch {
	case runErr == nil:
		job.Status = models.JobStatusDone
		job.Progress = 100
	case errors.Is(runErr, context.Canceled):
		job.Status = models.JobStatusCanceled
		job.Message = "Canceled"
	default:
		job.Status = models.JobStatusError
		job.Message = "Error: " + runErr.Error()
	}
	job.UpdatedAt = time.Now().UTC()
	err = t.store.Update(ctx, job)
	version := t.nextVersionLocked()
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("failed to finish job", "job_id", job.ID, "error", err)
		return
	}

	switch job.Status {
	case models.JobStatusDone:
		t.logger.Info("job completed", "job_id", job.ID, "file", job.FileName)
		t.toast(models.SeveritySuccess, "Processed "+job.FileName)
	case models.JobStatusError:
		t.logger.Error("job failed", "job_id", job.ID, "error", runErr, "timeout", errors.Is(runErr, backend.ErrJobTimeout))
		t.toast(models.SeverityError, job.FileName+": "+runErr.Error())
	}
	t.publish(job, version)
}

func (t *Tracker) nextVersionLocked() uint64 {
	t.version++
	return t.version
}

// publish delivers a snapshot taken at version. Snapshots older than one
// already delivered for the same job are dropped, so the last state a
// subscriber sees is the stored one.
func (t *Tracker) publish(job models.Job, version uint64) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	if version <= t.published[job.ID] {
		return
	}
	t.published[job.ID] = version

	t.subMu.RLock()
	subs := make([]func(models.Job), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range subs {
		fn(job)
	}
}

func (t *Tracker) unpublish(ids []string) {
	if len(ids) == 0 {
		return
	}
	t.pubMu.Lock()
	for _, id := range ids {
		delete(t.published, id)
	}
	t.pubMu.Unlock()
}

func (t *Tracker) toast(sev models.Severity, msg string) {
	if t.toasts != nil {
		t.toasts.Push(sev, "", msg)
	}
}
