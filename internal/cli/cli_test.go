package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/client"
	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: ja\nmode: accurate\npreprocess:\n  rotate: 90\n"), 0o644))

	s, err := loadSettings(path, "", "fast")
	require.NoError(t, err)
	assert.Equal(t, "ja", s.Language)
	assert.Equal(t, "fast", s.Mode, "flags win over the file")
	assert.Equal(t, 90, s.Preprocess.Rotate)
	assert.Equal(t, "docling", s.Parser, "unset fields keep their defaults")

	_, err = loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), "", "")
	assert.Error(t, err)
}

func TestRenderLayoutCountsBands(t *testing.T) {
	pages := []models.Page{{
		Page: 1,
		Blocks: []models.Block{{
			BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.8, H: 0.1},
			Lines: []models.Line{{
				Text: "total due 42",
				BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.8, H: 0.05},
				Words: []models.Word{
					{Text: "total", Confidence: 0.95, BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.05}},
					{Text: "due", Confidence: 0.85, BBox: models.BBox{X: 0.25, Y: 0.1, W: 0.1, H: 0.05}},
					{Text: "42", Confidence: 0.5, BBox: models.BBox{X: 0.4, Y: 0.1, W: 0.05, H: 0.05}},
				},
			}},
		}},
	}}

	out, stats := renderLayout(pages, "", defaultTheme)
	assert.Equal(t, overlayStats{Words: 3, Low: 1, Medium: 1}, stats)
	assert.Contains(t, out, "Page 1")
	for _, w := range []string{"total", "due", "42"} {
		assert.Contains(t, out, w)
	}
	assert.Less(t, strings.Index(out, "total"), strings.Index(out, "due"))
}

func TestRenderLayoutProjectedText(t *testing.T) {
	out, stats := renderLayout(layout.FromText("alpha beta\ngamma"), "beta", defaultTheme)
	assert.Equal(t, 3, stats.Words)
	assert.Zero(t, stats.Low)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "gamma")
}

func TestHeadLines(t *testing.T) {
	assert.Equal(t, "a\nb", headLines("a\nb\n", 5))
	assert.Equal(t, "a\nb\nc", headLines("a\nb\nc", 0))

	out := headLines("a\nb\nc\nd", 2)
	assert.True(t, strings.HasPrefix(out, "a\nb"))
	assert.Contains(t, out, "2 more line(s)")
}

func TestExportPagesWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "layout.json")
	require.NoError(t, exportPages(layout.FromText("hello"), layout.FormatJSON, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var pages []models.Page
	require.NoError(t, json.Unmarshal(data, &pages))
	assert.Len(t, pages, 1)

	assert.ErrorIs(t, exportPages(nil, layout.FormatText, out), layout.ErrNoLayout)
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	line := formatMessage(server.Message{
		Type:      server.MessageJobUpdate,
		Job:       &models.Job{ID: "job-1", FileName: "a.png", Status: models.JobStatusDone, Progress: 100},
		Timestamp: ts,
	})
	assert.Contains(t, line, "job-1")
	assert.Contains(t, line, "100%")
	assert.Contains(t, line, "a.png")

	line = formatMessage(server.Message{
		Type:      server.MessageToast,
		Toast:     &models.Toast{Type: models.SeverityError, Message: "boom"},
		Timestamp: ts,
	})
	assert.Contains(t, line, "boom")
}

func TestFollowPlain(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/batch/jobs/job-ok":
			status, progress := models.JobStatusRunning, 50
			if calls.Add(1) > 1 {
				status, progress = models.JobStatusDone, 100
			}
			_ = json.NewEncoder(w).Encode(models.Job{ID: "job-ok", FileName: "a.png", Status: status, Progress: progress})
		case "/api/batch/jobs/job-bad":
			_ = json.NewEncoder(w).Encode(models.Job{ID: "job-bad", FileName: "b.png", Status: models.JobStatusError, Message: "parser crashed"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"job not found"}`))
		}
	}))
	defer ts.Close()

	c := client.New(ts.URL, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, followPlain(ctx, c, []models.Job{{ID: "job-ok"}, {ID: "job-gone"}}))

	err := followPlain(ctx, c, []models.Job{{ID: "job-bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 job(s) failed")
}
