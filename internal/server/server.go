// Package server provides the desk's HTTP API: batch jobs, extraction, layout,
// conversion, previews, toasts and a websocket event stream.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/notify"
	"github.com/raphaelgruber/ocrdesk/internal/prefs"
	"github.com/raphaelgruber/ocrdesk/internal/service"
)

// Backend is the part of the OCR backend the server talks to directly.
type Backend interface {
	Health(ctx context.Context) (*models.Health, error)
	RagIngest(ctx context.Context, docID, jobID string) error
	RagQuery(ctx context.Context, question, mode string, vlmEnhanced bool) (*backend.RagAnswer, error)
}

// Deps are the server's collaborators. Backend, Metrics and Prefs may be nil.
type Deps struct {
	Tracker   *service.Tracker
	Extractor *service.Extractor
	Converter *service.Converter
	Backend   Backend
	Toasts    *notify.Queue
	Metrics   *metrics.Collector
	Prefs     *prefs.Store
	Logger    *slog.Logger
	Version   string
}

// Server wires handlers, middleware and the event hub.
type Server struct {
	Deps
	hub     *Hub
	handler http.Handler
	unsubs  []func()
}

// New creates a server and subscribes its hub to job and toast events.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Toasts == nil {
		d.Toasts = notify.NewQueue(notify.DefaultTTL, d.Logger)
	}

	s := &Server{Deps: d, hub: NewHub(d.Logger)}
	s.unsubs = append(s.unsubs,
		d.Tracker.Subscribe(s.hub.JobUpdated),
		d.Toasts.Subscribe(s.hub.ToastEvent),
	)

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = RecoverMiddleware(d.Logger, LoggingMiddleware(d.Logger, mux))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/batch", s.handleBatchCreate)
	mux.HandleFunc("GET /api/batch/jobs", s.handleJobList)
	mux.HandleFunc("GET /api/batch/jobs/{id}", s.handleJobGet)
	mux.HandleFunc("GET /api/batch/jobs/{id}/result", s.handleJobResult)
	mux.HandleFunc("POST /api/batch/jobs/{id}/cancel", s.handleJobCancel)
	mux.HandleFunc("POST /api/batch/jobs/{id}/retry", s.handleJobRetry)
	mux.Handle("GET /api/ws", s.hub)

	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("POST /api/layout/project", s.handleLayoutProject)
	mux.HandleFunc("POST /api/layout/export", s.handleLayoutExport)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/preview", s.handlePreview)

	mux.HandleFunc("POST /api/rag/ingest", s.handleRagIngest)
	mux.HandleFunc("POST /api/rag/query", s.handleRagQuery)

	mux.HandleFunc("GET /api/toasts", s.handleToastList)
	mux.HandleFunc("DELETE /api/toasts/{id}", s.handleToastDismiss)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/prefs/language", s.handleLanguageGet)
	mux.HandleFunc("PUT /api/prefs/language", s.handleLanguagePut)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close unsubscribes from events and disconnects websocket clients.
func (s *Server) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.hub.Close()
}
