package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/notify"
	"github.com/raphaelgruber/ocrdesk/internal/prefs"
	"github.com/raphaelgruber/ocrdesk/internal/server"
	"github.com/raphaelgruber/ocrdesk/internal/service"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineBackend behaves like an unreachable OCR backend.
type offlineBackend struct{}

var errOffline = errors.New("connection refused")

func (offlineBackend) Health(context.Context) (*models.Health, error) { return nil, errOffline }
func (offlineBackend) RagIngest(context.Context, string, string) error { return errOffline }
func (offlineBackend) RagQuery(context.Context, string, string, bool) (*backend.RagAnswer, error) {
	return nil, errOffline
}
func (offlineBackend) ExtractOCR(context.Context, upload.File, models.OcrSettings, bool) (*backend.ExtractResponse, error) {
	return nil, errOffline
}
func (offlineBackend) Convert(context.Context, string, models.ConvertOptions) (*backend.ConvertResult, error) {
	return nil, errOffline
}

func newTestClient(t *testing.T, interval time.Duration) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	toasts := notify.NewQueue(time.Minute, logger)
	tracker := service.NewTracker(service.NewMemoryStore(0), &service.Simulator{Interval: interval},
		service.WithToasts(toasts), service.WithLogger(logger))

	srv := server.New(server.Deps{
		Tracker:   tracker,
		Extractor: service.NewExtractor(offlineBackend{}),
		Converter: service.NewConverter(offlineBackend{}, logger),
		Backend:   offlineBackend{},
		Toasts:    toasts,
		Metrics:   metrics.NewCollector(),
		Prefs:     prefs.Open(filepath.Join(t.TempDir(), "prefs.yaml")),
		Logger:    logger,
		Version:   "test",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		tracker.Close()
		toasts.Close()
	})
	return New(ts.URL+"/", 5*time.Second)
}

func TestNewDefaults(t *testing.T) {
	assert.Equal(t, DefaultServerURL, New("", 0).BaseURL())
	assert.Equal(t, "http://desk:1", New("http://desk:1/", 0).BaseURL())
}

func TestHealthReportsBackendError(t *testing.T) {
	c := newTestClient(t, time.Millisecond)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, "connection refused", h.BackendError)
}

func TestBatchRoundTrip(t *testing.T) {
	c := newTestClient(t, time.Millisecond)
	ctx := context.Background()

	settings := models.DefaultOcrSettings()
	settings.Language = "en"
	batch, err := c.SubmitBatch(ctx, []upload.File{
		{Name: "a.png", Data: []byte("png")},
		{Name: "b.zip", Data: []byte("zip")},
	}, &settings)
	require.NoError(t, err)
	require.Len(t, batch.Jobs, 1)
	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, "en", batch.Jobs[0].Settings.Language)

	id := batch.Jobs[0].ID
	require.Eventually(t, func() bool {
		job, err := c.GetJob(ctx, id)
		return err == nil && job.Status == models.JobStatusDone
	}, 5*time.Second, 10*time.Millisecond)

	jobs, err := c.ListJobs(ctx, models.JobFilter{Status: models.JobStatusDone})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = c.RetryJob(ctx, id)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	_, err = c.GetJob(ctx, "job-missing")
	assert.True(t, IsNotFound(err))
}

func TestSubmitBatchAllRejected(t *testing.T) {
	c := newTestClient(t, time.Millisecond)

	batch, err := c.SubmitBatch(context.Background(), []upload.File{{Name: "a.exe", Data: []byte("MZ")}}, nil)
	require.Error(t, err)
	require.NotNil(t, batch)
	assert.Len(t, batch.Rejected, 1)
	assert.Contains(t, err.Error(), "no valid files")
}

func TestCancelAndRetry(t *testing.T) {
	c := newTestClient(t, time.Hour)
	ctx := context.Background()

	batch, err := c.SubmitBatch(ctx, []upload.File{{Name: "a.pdf", Data: []byte("%PDF")}}, nil)
	require.NoError(t, err)
	id := batch.Jobs[0].ID

	job, err := c.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, job.Status)

	job, err = c.RetryJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempt)
}

func TestConvertFallsBackLocally(t *testing.T) {
	c := newTestClient(t, time.Millisecond)
	ctx := context.Background()

	d, err := c.Convert(ctx, "hello", models.ConvertOptions{Format: models.FormatTXT, FileName: "scan.png"})
	require.NoError(t, err)
	assert.True(t, d.Local)
	assert.Equal(t, "scan.txt", d.Name)
	assert.Equal(t, "hello", string(d.Data))

	_, err = c.Convert(ctx, "hello", models.ConvertOptions{Format: models.FormatPDF})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "PDF")
}

func TestLayoutAndPreview(t *testing.T) {
	c := newTestClient(t, time.Millisecond)
	ctx := context.Background()

	pages, err := c.ProjectLayout(ctx, "first line\nsecond line")
	require.NoError(t, err)
	require.Len(t, pages, 1)

	d, err := c.ExportLayout(ctx, server.LayoutRequest{Pages: pages})
	require.NoError(t, err)
	assert.Equal(t, "ocr-layout.txt", d.Name)
	assert.Equal(t, "first line\nsecond line", string(d.Data))

	p, err := c.Preview(ctx, upload.File{Name: "notes.txt", Data: []byte("plain")})
	require.NoError(t, err)
	assert.Equal(t, "plain", p.Text)
}

func TestExtractSurfacesBackendFailure(t *testing.T) {
	c := newTestClient(t, time.Millisecond)

	_, err := c.Extract(context.Background(), upload.File{Name: "a.png", Data: []byte("png")}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "connection refused")

	toasts, err := c.Toasts(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, toasts)
}

func TestLanguage(t *testing.T) {
	c := newTestClient(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.SetLanguage(ctx, "en"))
	lang, err := c.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	assert.Error(t, c.SetLanguage(ctx, "de"))
}

func TestWatchJobs(t *testing.T) {
	c := newTestClient(t, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	watchErr := make(chan error, 1)
	seen := make(chan string, 64)
	go func() {
		watchErr <- c.WatchJobs(ctx, func(m server.Message) error {
			if m.Type == server.MessageJobUpdate && m.Job.Status == models.JobStatusDone {
				seen <- m.Job.ID
				return ErrStopWatching
			}
			return nil
		})
	}()

	// The subscription may register after the first submission, so keep submitting.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-seen:
			assert.NoError(t, <-watchErr)
			return
		case <-tick.C:
			_, err := c.SubmitBatch(ctx, []upload.File{{Name: "a.md", Data: []byte("# a")}}, nil)
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("no job update received")
		}
	}
}
