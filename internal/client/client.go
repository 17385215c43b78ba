// Package client provides a REST and websocket client for the ocrdesk server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/preview"
	"github.com/raphaelgruber/ocrdesk/internal/server"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

// DefaultServerURL is used when no server URL is configured.
const DefaultServerURL = "http://localhost:8585"

// Client talks to a running ocrdesk server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. An empty baseURL uses DefaultServerURL; a zero timeout means none.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Error is a non-2xx response from the server.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.Status)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// Download is a file returned by the server.
type Download struct {
	Name        string
	ContentType string
	Data        []byte
	// Local is set when the server rendered the file without the OCR backend.
	Local bool
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func errorFrom(status int, data []byte) *Error {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return &Error{Status: status, Detail: body.Detail}
	}
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &Error{Status: status, Detail: detail}
}

// do sends a request and decodes a JSON response into out, which may be nil.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, data, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return errorFrom(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) download(ctx context.Context, path string, in any) (*Download, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, data, err := c.send(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, errorFrom(resp.StatusCode, data)
	}

	d := &Download{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
		Local:       resp.Header.Get(server.HeaderLocal) == "true",
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Name = params["filename"]
	}
	return d, nil
}

// multipartBody encodes files under field plus optional settings as settings_json.
func multipartBody(field string, files []upload.File, settings *models.OcrSettings) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": field, "filename": f.Name}))
		ct := f.ContentType
		if ct == "" {
			ct = upload.DetectContentType(f.Name, f.Data)
		}
		h.Set("Content-Type", ct)

		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}

	if settings != nil {
		b, err := json.Marshal(settings)
		if err != nil {
			return nil, "", fmt.Errorf("marshal settings: %w", err)
		}
		if err := mw.WriteField("settings_json", string(b)); err != nil {
			return nil, "", fmt.Errorf("write settings: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// =============================================================================
// STATUS
// =============================================================================

// Health returns the desk's status and the backend's.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var h server.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, "", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var s metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Toasts returns the visible notifications.
func (c *Client) Toasts(ctx context.Context) ([]models.Toast, error) {
	var toasts []models.Toast
	if err := c.do(ctx, http.MethodGet, "/api/toasts", nil, "", &toasts); err != nil {
		return nil, err
	}
	return toasts, nil
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// SubmitBatch uploads files as a batch. settings may be nil for the defaults.
// When every file is refused the response is returned alongside the error.
func (c *Client) SubmitBatch(ctx context.Context, files []upload.File, settings *models.OcrSettings) (*server.BatchResponse, error) {
	body, ct, err := multipartBody("files", files, settings)
	if err != nil {
		return nil, err
	}
	resp, data, err := c.send(ctx, http.MethodPost, "/api/batch", body, ct)
	if err != nil {
		return nil, err
	}

	var batch server.BatchResponse
	decodeErr := json.Unmarshal(data, &batch)
	if resp.StatusCode >= 300 {
		apiErr := errorFrom(resp.StatusCode, data)
		if decodeErr == nil && len(batch.Rejected) > 0 {
			apiErr.Detail = "no valid files: " + batch.Rejected[0].Error
			return &batch, apiErr
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	return &batch, nil
}

// ListJobs returns jobs matching filter, newest first.
func (c *Client) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	if filter.Date != "" {
		q.Set("date", filter.Date)
	}
	path := "/api/batch/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var jobs []models.Job
	if err := c.do(ctx, http.MethodGet, path, nil, "", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) jobAction(ctx context.Context, method, id, action string) (*models.Job, error) {
	path := "/api/batch/jobs/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	var job models.Job
	if err := c.do(ctx, method, path, nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return c.jobAction(ctx, http.MethodGet, id, "")
}

// CancelJob stops a queued or running job.
func (c *Client) CancelJob(ctx context.Context, id string) (*models.Job, error) {
	return c.jobAction(ctx, http.MethodPost, id, "cancel")
}

// RetryJob re-queues a failed or canceled job.
func (c *Client) RetryJob(ctx context.Context, id string) (*models.Job, error) {
	return c.jobAction(ctx, http.MethodPost, id, "retry")
}

// JobResult fetches the recognition result of a finished job.
func (c *Client) JobResult(ctx context.Context, id string) (*models.OcrResult, error) {
	var res models.OcrResult
	if err := c.do(ctx, http.MethodGet, "/api/batch/jobs/"+url.PathEscape(id)+"/result", nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Extract recognizes a single file synchronously.
func (c *Client) Extract(ctx context.Context, file upload.File, settings *models.OcrSettings) (*server.ExtractResponse, error) {
	body, ct, err := multipartBody("file", []upload.File{file}, settings)
	if err != nil {
		return nil, err
	}
	var out server.ExtractResponse
	if err := c.do(ctx, http.MethodPost, "/api/extract", body, ct, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectLayout builds a synthetic layout from text.
func (c *Client) ProjectLayout(ctx context.Context, text string) ([]models.Page, error) {
	var pages []models.Page
	if err := c.doJSON(ctx, http.MethodPost, "/api/layout/project", server.LayoutRequest{Text: text}, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// ExportLayout downloads pages (or text projected server-side) as txt or json.
func (c *Client) ExportLayout(ctx context.Context, req server.LayoutRequest) (*Download, error) {
	return c.download(ctx, "/api/layout/export", req)
}

// Convert renders text into a file.
func (c *Client) Convert(ctx context.Context, text string, opts models.ConvertOptions) (*Download, error) {
	return c.download(ctx, "/api/convert", server.ConvertRequest{Text: text, ConvertOptions: opts})
}

// Preview describes a file without recognizing it.
func (c *Client) Preview(ctx context.Context, file upload.File) (*preview.Preview, error) {
	body, ct, err := multipartBody("file", []upload.File{file}, nil)
	if err != nil {
		return nil, err
	}
	var p preview.Preview
	if err := c.do(ctx, http.MethodPost, "/api/preview", body, ct, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RagIngest indexes a document or a finished backend job.
func (c *Client) RagIngest(ctx context.Context, docID, jobID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/rag/ingest", server.RagIngestRequest{DocID: docID, JobID: jobID}, nil)
}

// RagQuery asks the retrieval backend a question.
func (c *Client) RagQuery(ctx context.Context, question, mode string, vlmEnhanced bool) (*backend.RagAnswer, error) {
	var ans backend.RagAnswer
	req := server.RagQueryRequest{Question: question, Mode: mode, VLMEnhanced: vlmEnhanced}
	if err := c.doJSON(ctx, http.MethodPost, "/api/rag/query", req, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

// =============================================================================
// PREFERENCES
// =============================================================================

// Language returns the stored UI language.
func (c *Client) Language(ctx context.Context) (string, error) {
	var body server.LanguageBody
	if err := c.do(ctx, http.MethodGet, "/api/prefs/language", nil, "", &body); err != nil {
		return "", err
	}
	return body.Language, nil
}

// SetLanguage stores the UI language.
func (c *Client) SetLanguage(ctx context.Context, lang string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/prefs/language", server.LanguageBody{Language: lang}, nil)
}

// =============================================================================
// STREAMING
// =============================================================================

// ErrStopWatching ends a WatchJobs stream without reporting an error.
var ErrStopWatching = errors.New("stop watching")

// WatchJobs streams job and toast events until ctx is canceled or onMessage
// returns an error. A nil error from onMessage keeps the stream open.
func (c *Client) WatchJobs(ctx context.Context, onMessage func(server.Message) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/ws")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var msg server.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onMessage(msg); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}
