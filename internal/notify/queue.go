// Package notify holds the ephemeral toast notifications shown to users.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// DefaultTTL is how long a toast stays visible unless dismissed earlier.
const DefaultTTL = 4 * time.Second

// EventKind tells listeners what happened to a toast.
type EventKind string

const (
	EventPush    EventKind = "push"
	EventDismiss EventKind = "dismiss"
)

// Event is delivered to listeners on every push and dismissal.
type Event struct {
	Kind  EventKind    `json:"kind"`
	Toast models.Toast `json:"toast"`
}

// Queue keeps toasts in insertion order and expires them after a TTL.
// All methods are thread-safe.
type Queue struct {
	mu        sync.Mutex
	ttl       time.Duration
	toasts    []models.Toast
	timers    map[string]*time.Timer
	listeners map[int]func(Event)
	nextID    int
	logger    *slog.Logger
}

// NewQueue creates a queue whose toasts expire after ttl. A non-positive ttl uses DefaultTTL.
func NewQueue(ttl time.Duration, logger *slog.Logger) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ttl:       ttl,
		timers:    make(map[string]*time.Timer),
		listeners: make(map[int]func(Event)),
		logger:    logger,
	}
}

// Push adds a toast and schedules its dismissal.
func (q *Queue) Push(severity models.Severity, title, message string) models.Toast {
	toast := models.Toast{
		ID:        models.NewID("toast"),
		Type:      severity,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.toasts = append(q.toasts, toast)
	q.timers[toast.ID] = time.AfterFunc(q.ttl, func() { q.Dismiss(toast.ID) })
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.logger.Debug("toast pushed", "toast_id", toast.ID, "type", severity, "message", message)
	emit(listeners, Event{Kind: EventPush, Toast: toast})
	return toast
}

// Success pushes a success toast.
func (q *Queue) Success(message string) models.Toast {
	return q.Push(models.SeveritySuccess, "", message)
}

// Error pushes an error toast.
func (q *Queue) Error(message string) models.Toast {
	return q.Push(models.SeverityError, "", message)
}

// Info pushes an informational toast.
func (q *Queue) Info(message string) models.Toast {
	return q.Push(models.SeverityInfo, "", message)
}

// Dismiss removes a toast early. It reports whether the toast was still present.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, t := range q.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	toast := q.toasts[idx]
	q.toasts = append(q.toasts[:idx], q.toasts[idx+1:]...)
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	emit(listeners, Event{Kind: EventDismiss, Toast: toast})
	return true
}

// List returns the visible toasts in insertion order.
func (q *Queue) List() []models.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Toast, len(q.toasts))
	copy(out, q.toasts)
	return out
}

// Subscribe registers fn for future events and returns a function that removes it.
// fn runs on the goroutine that caused the event and must not block.
func (q *Queue) Subscribe(fn func(Event)) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Close stops every pending expiry timer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
}

// snapshotListeners copies the listener set. Caller must hold q.mu.
func (q *Queue) snapshotListeners() []func(Event) {
	out := make([]func(Event), 0, len(q.listeners))
	for _, fn := range q.listeners {
		out = append(out, fn)
	}
	return out
}

func emit(listeners []func(Event), ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}
