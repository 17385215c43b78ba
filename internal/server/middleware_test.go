package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			want:    `level=DEBUG msg="request completed"`,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: `level=ERROR msg="request failed"`,
		},
		{
			name: "slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(slowRequestThreshold + 20*time.Millisecond)
			},
			want: `level=WARN msg="slow request"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()
			h := LoggingMiddleware(logger, tt.handler)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batch/jobs?status=done", nil))

			out := buf.String()
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "path=/api/batch/jobs")
			assert.Contains(t, out, `query="status=done"`)
		})
	}
}

func TestLoggingMiddlewareTruncatesPath(t *testing.T) {
	logger, buf := bufferLogger()
	h := LoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	long := "/" + strings.Repeat("a", 500)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, long, nil))

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), strings.Repeat("a", 300))
}

func TestRecoverMiddleware(t *testing.T) {
	logger, buf := bufferLogger()
	h := RecoverMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "handler panicked")
	assert.Contains(t, buf.String(), "panic=boom")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
