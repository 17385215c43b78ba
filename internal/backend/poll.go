package backend

import (
	"context"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// Poll defaults: two minutes of one-second polls.
const (
	DefaultPollInterval    = time.Second
	DefaultPollMaxAttempts = 120
)

// PollOptions bounds a poll loop.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultPollMaxAttempts
	}
	return o
}

// PollJob queries a backend job until it finishes, fails or the attempt budget runs out.
//
// Every attempt, including one whose request failed, counts against the budget
// and is followed by one interval of waiting, so a job that never resolves fails
// with ErrJobTimeout after roughly MaxAttempts*Interval. A job reported as
// "error" fails immediately with a *JobError, while one reported as "done"
// without a result is polled again. onProgress, if set, sees every successful
// poll.
func (c *Client) PollJob(ctx context.Context, jobID string, opts PollOptions, onProgress func(JobStatus)) (*models.OcrResult, error) {
	opts = opts.withDefaults()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		status, err := c.GetJob(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("job poll failed", "job_id", jobID, "attempt", attempt, "error", err)
		default:
			if onProgress != nil {
				onProgress(*status)
			}
			switch status.Status {
			case string(models.JobStatusDone):
				// The result can lag the status; keep polling until it arrives.
				if status.Result != nil {
					return status.Result, nil
				}
			case string(models.JobStatusError):
				msg := status.Error
				if msg == "" {
					msg = "Job failed"
				}
				return nil, &JobError{JobID: jobID, Message: msg}
			}
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, ErrJobTimeout
}
