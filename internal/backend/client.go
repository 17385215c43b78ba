// Package backend provides an HTTP client for the external OCR backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// Client talks to the OCR backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMetrics records per-operation timing into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) { c.metrics = collector }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a backend client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a request and decodes a JSON reply into out (if non-nil).
// Non-2xx replies become *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordResult(op, time.Since(start), err)
		}
	}()

	raw, _, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, http.Header, error) {
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

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, raw)
		c.logger.Debug("backend request failed", "method", method, "path", path, "status", resp.StatusCode, "detail", apiErr.Detail)
		return nil, nil, apiErr
	}
	return raw, resp.Header, nil
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(b), nil
}

// =============================================================================
// OCR
// =============================================================================

// ExtractOCR uploads a file for recognition. With sync the backend answers with the
// finished result; otherwise it answers with a job id to poll.
func (c *Client) ExtractOCR(ctx context.Context, file upload.File, settings models.OcrSettings, sync bool) (*ExtractResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	settingsJSON, err := json.Marshal(settings.BackendPayload())
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	if err := w.WriteField("settings_json", string(settingsJSON)); err != nil {
		return nil, fmt.Errorf("write settings field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	path := "/api/ocr/extract"
	if sync {
		path += "?" + url.Values{"sync": {"true"}}.Encode()
	}

	var resp struct {
		JobID  string     `json:"jobId"`
		Result *rawResult `json:"result"`
	}
	if err := c.do(ctx, metrics.OpExtract, http.MethodPost, path, &buf, w.FormDataContentType(), &resp); err != nil {
		return nil, err
	}

	out := &ExtractResponse{JobID: resp.JobID}
	if sync && resp.Result != nil {
		out.Result = resp.Result.toModel()
	}
	return out, nil
}

// GetJob fetches the current state of a backend job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	var raw rawJobStatus
	if err := c.do(ctx, metrics.OpJobStatus, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, "", &raw); err != nil {
		return nil, err
	}

	status := &JobStatus{
		Status:  raw.Status,
		Step:    raw.Step,
		Percent: raw.Percent,
		Message: raw.Message,
		Error:   raw.Error,
	}
	if raw.Result != nil {
		status.Result = raw.Result.toModel()
	}
	return status, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// Convert renders text into a file of the requested format.
func (c *Client) Convert(ctx context.Context, text string, opts models.ConvertOptions) (res *ConvertResult, err error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordResult(metrics.OpConvert, time.Since(start), err)
		}
	}()

	req := convertRequest{
		Text:            text,
		Format:          string(opts.Format),
		FileName:        opts.FileName,
		IncludeMetadata: opts.IncludeMetadata,
	}
	if req.FileName == "" {
		req.FileName = "output"
	}
	if opts.Format == models.FormatPDF {
		req.PDFOptions = &pdfOptions{PageSize: opts.PageSize, FontSize: opts.FontSize}
		if req.PDFOptions.PageSize == "" {
			req.PDFOptions.PageSize = "A4"
		}
		if req.PDFOptions.FontSize == 0 {
			req.PDFOptions.FontSize = 12
		}
	}

	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	data, header, err := c.send(ctx, http.MethodPost, "/api/convert", body, "application/json")
	if err != nil {
		return nil, err
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = opts.Format.MIMEType()
	}
	return &ConvertResult{ContentType: contentType, Data: data}, nil
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// RagIngest indexes a document or a finished job for retrieval.
func (c *Client) RagIngest(ctx context.Context, docID, jobID string) error {
	body, err := jsonBody(ragIngestRequest{DocID: docID, JobID: jobID})
	if err != nil {
		return err
	}
	return c.do(ctx, metrics.OpRagIngest, http.MethodPost, "/api/rag/ingest", body, "application/json", nil)
}

// RagQuery asks a question against ingested documents. An empty mode means "hybrid".
func (c *Client) RagQuery(ctx context.Context, question, mode string, vlmEnhanced bool) (*RagAnswer, error) {
	if mode == "" {
		mode = "hybrid"
	}
	body, err := jsonBody(ragQueryRequest{Question: question, Mode: mode, VLMEnhanced: vlmEnhanced})
	if err != nil {
		return nil, err
	}

	var answer RagAnswer
	if err := c.do(ctx, metrics.OpRagQuery, http.MethodPost, "/api/rag/query", body, "application/json", &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports backend status.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var h models.Health
	if err := c.do(ctx, metrics.OpHealth, http.MethodGet, "/api/health", nil, "", &h); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &h, nil
}
