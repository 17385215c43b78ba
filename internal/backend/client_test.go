package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Collector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	collector := metrics.NewCollector()
	return New(srv.URL, WithMetrics(collector), WithTimeout(5*time.Second)), collector
}

func TestExtractOCRSync(t *testing.T) {
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ocr/extract", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("sync"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scan.png", hdr.Filename)
		assert.Equal(t, []byte("PNGDATA"), data)

		var settings map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("settings_json")), &settings))
		assert.Equal(t, "docling", settings["parser"])

		_, _ = io.WriteString(w, `{"result": {
			"fullText": "raw text",
			"enhancedText": "clean text",
			"pages": [{"page": 1, "text": "clean text"}],
			"layout": {"pages": [{"page": 1, "blocks": [{"type": "text", "lines": [{"text": "clean text", "words": [{"text": "clean"}]}]}]}]},
			"meta": {"language": "en"}
		}}`)
	})

	resp, err := c.ExtractOCR(context.Background(), upload.File{Name: "scan.png", Data: []byte("PNGDATA")}, models.DefaultOcrSettings(), true)
	require.NoError(t, err)
	require.NotNil(t, resp.Result)

	res := resp.Result
	assert.Equal(t, "clean text", res.FullText, "enhanced text is preferred")
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 0.9, res.AvgConfidence)
	assert.Equal(t, 0.9, res.Pages[0].Confidence)
	require.Len(t, res.LayoutPages, 1)
	assert.Equal(t, 1.414, res.LayoutPages[0].Height)
	assert.Equal(t, 0.9, res.LayoutPages[0].Blocks[0].Lines[0].Words[0].Confidence)
	assert.Equal(t, models.JobStatusDone, res.Status)
	assert.NotNil(t, res.Structured.Tables)

	require.NotNil(t, collector.Snapshot().Extract)
}

func TestExtractOCRAsync(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("sync"))
		_, _ = io.WriteString(w, `{"jobId": "remote-1"}`)
	})

	resp, err := c.ExtractOCR(context.Background(), upload.File{Name: "a.pdf"}, models.DefaultOcrSettings(), false)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", resp.JobID)
	assert.Nil(t, resp.Result)
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusBadRequest, `{"detail": "bad file"}`, "bad file"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail": [{"msg": "x"}]}`, `[{"msg": "x"}]`},
		{"no detail", http.StatusInternalServerError, `{}`, "HTTP 500"},
		{"not json", http.StatusBadGateway, `<html>`, "HTTP 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.GetJob(context.Background(), "j1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Detail)
			assert.Equal(t, int64(1), collector.Snapshot().JobStatus.Errors)
		})
	}
}

func TestConvert(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "output", req.FileName)
		require.NotNil(t, req.PDFOptions)
		assert.Equal(t, "A4", req.PDFOptions.PageSize)
		assert.Equal(t, 12, req.PDFOptions.FontSize)

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})

	res, err := c.Convert(context.Background(), "hello", models.ConvertOptions{Format: models.FormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), res.Data)
}

func TestRagAndHealth(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/rag/ingest":
			var req ragIngestRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "job-1", req.JobID)
			w.WriteHeader(http.StatusNoContent)
		case "/api/rag/query":
			var req ragQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hybrid", req.Mode)
			_, _ = io.WriteString(w, `{"answer": "42", "contexts": [{"doc": "a"}]}`)
		case "/api/health":
			_, _ = io.WriteString(w, `{"ok": true, "version": "1.2.0", "parserDefault": "docling", "enableRag": true}`)
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	require.NoError(t, c.RagIngest(ctx, "", "job-1"))

	ans, err := c.RagQuery(ctx, "meaning?", "", true)
	require.NoError(t, err)
	assert.Equal(t, "42", ans.Answer)
	assert.Len(t, ans.Contexts, 1)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, "1.2.0", h.Version)
}

// jobServer answers job polls from a script of responses; the last one repeats.
func jobServer(t *testing.T, script []string) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		body := script[min(n, len(script)-1)]
		if body == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, body)
	})
	return c, &calls
}

func TestPollJobDone(t *testing.T) {
	c, calls := jobServer(t, []string{
		`{"status": "running", "step": "preprocessing", "percent": 10}`,
		"",
		`{"status": "running", "step": "running", "percent": 60}`,
		`{"status": "done", "step": "done", "percent": 100, "result": {"fullText": "ok"}}`,
	})

	var seen []int
	res, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 10}, func(s JobStatus) {
		seen = append(seen, s.Percent)
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.FullText)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []int{10, 60, 100}, seen, "failed polls do not report progress")
}

func TestPollJobDoneWaitsForResult(t *testing.T) {
	c, calls := jobServer(t, []string{
		`{"status": "done", "step": "done", "percent": 100}`,
		`{"status": "done", "step": "done", "percent": 100}`,
		`{"status": "done", "step": "done", "percent": 100, "result": {"fullText": "late"}}`,
	})

	res, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, "late", res.FullText)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollJobDoneWithoutResultTimesOut(t *testing.T) {
	c, calls := jobServer(t, []string{`{"status": "done", "percent": 100}`})

	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 4}, nil)
	require.ErrorIs(t, err, ErrJobTimeout)
	assert.Equal(t, int32(4), calls.Load())
}

func TestPollJobError(t *testing.T) {
	c, calls := jobServer(t, []string{
		`{"status": "running", "percent": 10}`,
		`{"status": "error", "error": "corrupt pdf"}`,
	})

	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 120}, nil)
	var jobErr *JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, "corrupt pdf", jobErr.Message)
	assert.Equal(t, int32(2), calls.Load(), "error ends polling before the budget")
}

func TestPollJobErrorDefaultMessage(t *testing.T) {
	c, _ := jobServer(t, []string{`{"status": "error"}`})

	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 5}, nil)
	assert.EqualError(t, err, "Job failed")
}

func TestPollJobTimeout(t *testing.T) {
	c, calls := jobServer(t, []string{`{"status": "running", "percent": 50}`})

	const attempts = 8
	interval := 15 * time.Millisecond
	start := time.Now()
	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: interval, MaxAttempts: attempts}, nil)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrJobTimeout)
	assert.Equal(t, int32(attempts), calls.Load())
	assert.GreaterOrEqual(t, elapsed, attempts*interval, "must not give up early")
	assert.Less(t, elapsed, attempts*interval+2*time.Second, "must not overrun significantly")
}

func TestPollJobTransientErrorsCountAgainstBudget(t *testing.T) {
	c, calls := jobServer(t, []string{""})

	_, err := c.PollJob(context.Background(), "j1", PollOptions{Interval: time.Millisecond, MaxAttempts: 3}, nil)
	require.ErrorIs(t, err, ErrJobTimeout)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollJobCanceled(t *testing.T) {
	c, _ := jobServer(t, []string{`{"status": "running"}`})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.PollJob(ctx, "j1", PollOptions{Interval: 10 * time.Millisecond, MaxAttempts: 1000}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollDefaults(t *testing.T) {
	o := PollOptions{}.withDefaults()
	assert.Equal(t, time.Second, o.Interval)
	assert.Equal(t, 120, o.MaxAttempts)
}
