package models

import "time"

// Severity classifies a toast notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Toast is an ephemeral user-facing notification.
type Toast struct {
	ID        string    `json:"id"`
	Type      Severity  `json:"type"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
