// Package models defines the data structures shared across ocrdesk.
package models

import (
	"math"
	"slices"
	"time"
)

// JobType distinguishes OCR jobs from convert jobs.
type JobType string

const (
	JobTypeOCR     JobType = "ocr"
	JobTypeConvert JobType = "convert"
)

// JobStatus represents the state of a batch job.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusPreprocessing  JobStatus = "preprocessing"
	JobStatusRunning        JobStatus = "running"
	JobStatusPostprocessing JobStatus = "postprocessing"
	JobStatusDone           JobStatus = "done"
	JobStatusError          JobStatus = "error"
	JobStatusCanceled       JobStatus = "canceled"
)

// StatusSequence is the ordered path a job takes from submission to completion.
var StatusSequence = []JobStatus{
	JobStatusQueued,
	JobStatusPreprocessing,
	JobStatusRunning,
	JobStatusPostprocessing,
	JobStatusDone,
}

// IsTerminal reports whether no further advancement is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError || s == JobStatusCanceled
}

// Rank returns the position of s in StatusSequence.
// Alternate terminal states rank after every sequence status; unknown statuses return -1.
func (s JobStatus) Rank() int {
	if s == JobStatusError || s == JobStatusCanceled {
		return len(StatusSequence)
	}
	return slices.Index(StatusSequence, s)
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s.Rank() >= 0
}

// StepProgress computes the progress percentage at step index i of n steps.
func StepProgress(i, n int) int {
	if n <= 0 {
		return 0
	}
	p := int(math.Round(float64(i+1) / float64(n) * 100))
	return min(max(p, 0), 100)
}

// Job is one unit of asynchronous work tracked by the desk.
type Job struct {
	ID        string      `json:"id"`
	FileName  string      `json:"fileName"`
	Type      JobType     `json:"type"`
	Status    JobStatus   `json:"status"`
	Progress  int         `json:"progress"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Attempt   int         `json:"attempt"`
	ResultURL string      `json:"resultUrl,omitempty"`
	Message   string      `json:"message,omitempty"`
	RemoteID  string      `json:"remoteId,omitempty"` // backend job id, if submitted
	Settings  OcrSettings `json:"settings"`
}

// JobFilter narrows a job listing. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	Type   JobType
	Date   string // creation date prefix, e.g. "2026-10-19"
}

// Match reports whether the job passes the filter.
func (f JobFilter) Match(j Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Type != "" && j.Type != f.Type {
		return false
	}
	if f.Date != "" {
		created := j.CreatedAt.UTC().Format(time.RFC3339)
		if len(created) < len(f.Date) || created[:len(f.Date)] != f.Date {
			return false
		}
	}
	return true
}
