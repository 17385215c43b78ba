package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrJobTimeout is returned when a job does not finish within the poll budget.
var ErrJobTimeout = errors.New("job timeout - processing took too long")

// ErrNoResult is returned when a synchronous extraction comes back without a result.
var ErrNoResult = errors.New("no result returned from backend")

// APIError is a non-2xx response from the OCR backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// JobError is a job the backend reported as failed.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return e.Message
}

// newAPIError builds an APIError from a response body, preferring the JSON detail field.
func newAPIError(status int, body []byte) *APIError {
	detail := fmt.Sprintf("HTTP %d", status)

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				detail = s
			}
		} else {
			detail = string(payload.Detail)
		}
	}

	return &APIError{Status: status, Detail: detail}
}
