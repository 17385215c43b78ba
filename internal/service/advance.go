package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

// Step is one progress report from an advancement run.
// Zero fields leave the job unchanged.
type Step struct {
	Status   models.JobStatus
	Progress int
	Message  string
	RemoteID string
	Result   *models.OcrResult
}

// Advancer drives a single job from queued to done.
// Advance reports through report and returns nil once the job is done.
// It must return promptly after ctx is canceled.
type Advancer interface {
	Advance(ctx context.Context, job models.Job, file upload.File, report func(Step)) error
}

// Advance modes.
const (
	ModeAuto     = "auto"
	ModeBackend  = "backend"
	ModeSimulate = "simulate"
)

// DefaultSimulateInterval is the cadence of simulated status steps.
const DefaultSimulateInterval = 550 * time.Millisecond

// NewAdvancer builds the advancer for mode. Backend modes require client.
func NewAdvancer(mode string, client *backend.Client, poll backend.PollOptions, simInterval time.Duration, logger *slog.Logger) (Advancer, error) {
	sim := &Simulator{Interval: simInterval}
	switch mode {
	case ModeSimulate:
		return sim, nil
	case ModeBackend, ModeAuto, "":
		if client == nil {
			return nil, fmt.Errorf("advance mode %q requires a backend client", mode)
		}
		ba := &BackendAdvancer{Client: client, Poll: poll, Logger: logger}
		if mode == ModeBackend {
			return ba, nil
		}
		return &FallbackAdvancer{Backend: ba, Simulator: sim, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown advance mode: %s", mode)
	}
}

// =============================================================================
// SIMULATION
// =============================================================================

// Simulator steps a job through models.StatusSequence at a fixed cadence.
type Simulator struct {
	Interval time.Duration
}

func (s *Simulator) Advance(ctx context.Context, _ models.Job, _ upload.File, report func(Step)) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSimulateInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := len(models.StatusSequence)
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		report(Step{Status: models.StatusSequence[i], Progress: models.StepProgress(i, n)})
	}
	return nil
}

// =============================================================================
// BACKEND
// =============================================================================

// BackendAdvancer submits the file to the OCR backend and polls the remote job.
type BackendAdvancer struct {
	Client *backend.Client
	Poll   backend.PollOptions
	Logger *slog.Logger
}

func (a *BackendAdvancer) Advance(ctx context.Context, job models.Job, file upload.File, report func(Step)) error {
	remoteID, err := a.Submit(ctx, job, file)
	if err != nil {
		return err
	}
	report(Step{RemoteID: remoteID, Message: job.Settings.Summary()})
	return a.Follow(ctx, remoteID, report)
}

// Submit starts an asynchronous backend job and returns its id.
func (a *BackendAdvancer) Submit(ctx context.Context, job models.Job, file upload.File) (string, error) {
	resp, err := a.Client.ExtractOCR(ctx, file, job.Settings, false)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", job.FileName, err)
	}
	if resp.JobID == "" {
		return "", errors.New("failed to start OCR job")
	}
	return resp.JobID, nil
}

// Follow polls a submitted job until it finishes.
func (a *BackendAdvancer) Follow(ctx context.Context, remoteID string, report func(Step)) error {
	result, err := a.Client.PollJob(ctx, remoteID, a.Poll, func(s backend.JobStatus) {
		report(stepFromRemote(s))
	})
	if err != nil {
		return err
	}
	report(Step{Status: models.JobStatusDone, Progress: 100, Result: result})
	return nil
}

// stepFromRemote maps a backend poll onto a local step. The backend's step
// name is used as status when it is one we know.
func stepFromRemote(s backend.JobStatus) Step {
	step := Step{Progress: s.Percent, Message: s.Message}
	if st := models.JobStatus(s.Step); st.Valid() && !st.IsTerminal() {
		step.Status = st
	} else if s.Status == string(models.JobStatusRunning) {
		step.Status = models.JobStatusRunning
	}
	return step
}

// =============================================================================
// FALLBACK
// =============================================================================

// FallbackAdvancer prefers the backend and simulates jobs whose submission fails.
type FallbackAdvancer struct {
	Backend   *BackendAdvancer
	Simulator *Simulator
	Logger    *slog.Logger
}

func (a *FallbackAdvancer) Advance(ctx context.Context, job models.Job, file upload.File, report func(Step)) error {
	remoteID, err := a.Backend.Submit(ctx, job, file)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if a.Logger != nil {
			a.Logger.Warn("backend submission failed, simulating", "job_id", job.ID, "error", err)
		}
		report(Step{Message: "Fallback mode: " + err.Error()})
		return a.Simulator.Advance(ctx, job, file, report)
	}
	report(Step{RemoteID: remoteID, Message: job.Settings.Summary()})
	return a.Backend.Follow(ctx, remoteID, report)
}
