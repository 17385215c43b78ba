package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/raphaelgruber/ocrdesk/internal/metrics"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/prefs"
	"github.com/raphaelgruber/ocrdesk/internal/preview"
	"github.com/raphaelgruber/ocrdesk/internal/service"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

const (
	maxMultipartMemory = 32 << 20
	maxBatchBytes      = 20 * upload.MaxFileSize
	maxJSONBytes       = 8 << 20
)

// HeaderLocal marks conversions that were produced without the backend.
const HeaderLocal = "X-Ocrdesk-Local"

type errorBody struct {
	Detail string `json:"detail"`
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *upload.ValidationError
	var apiErr *backend.APIError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &validation),
		errors.Is(err, layout.ErrNoLayout),
		errors.Is(err, prefs.ErrUnsupportedLanguage),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrUnsupportedFormat),
		errors.Is(err, service.ErrUnsupportedEncoding):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrJobActive),
		errors.Is(err, service.ErrJobFinished),
		errors.Is(err, service.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, preview.ErrNoTextPreview), errors.Is(err, preview.ErrNotImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrBackendRequired):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, backend.ErrJobTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr), errors.Is(err, backend.ErrNoResult):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err to the caller and, for everything but missing jobs, as an error toast.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status != http.StatusNotFound {
		s.Toasts.Error(err.Error())
	}
	if status >= 500 {
		s.Logger.Error("request error", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Detail: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Toasts.Error(msg)
	writeJSON(w, http.StatusBadRequest, errorBody{Detail: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// readFile loads one multipart file into memory, sniffing the type when the
// client did not declare one.
func readFile(fh *multipart.FileHeader) (upload.File, error) {
	f, err := fh.Open()
	if err != nil {
		return upload.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, upload.MaxFileSize+1))
	if err != nil {
		return upload.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = upload.DetectContentType(fh.Filename, data)
	}
	return upload.File{Name: fh.Filename, Size: fh.Size, ContentType: ct, Data: data}, nil
}

// parseSettings overlays the optional settings_json form field onto the defaults.
func parseSettings(r *http.Request) (models.OcrSettings, error) {
	settings := models.DefaultOcrSettings()
	raw := strings.TrimSpace(r.FormValue("settings_json"))
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, fmt.Errorf("invalid settings_json: %w", err)
	}
	return settings, nil
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.fail(w, err)
			return false
		}
		s.badRequest(w, "invalid multipart form: %v", err)
		return false
	}
	return true
}

// singleFile reads the "file" field of a multipart request.
func (s *Server) singleFile(w http.ResponseWriter, r *http.Request) (upload.File, bool) {
	if !s.parseMultipart(w, r) {
		return upload.File{}, false
	}
	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		s.badRequest(w, "missing file")
		return upload.File{}, false
	}
	f, err := readFile(fhs[0])
	if err != nil {
		s.fail(w, err)
		return upload.File{}, false
	}
	return f, true
}

// =============================================================================
// HEALTH & STATS
// =============================================================================

// HealthResponse is the desk's own status plus the backend's.
type HealthResponse struct {
	OK           bool           `json:"ok"`
	Version      string         `json:"version"`
	Backend      *models.Health `json:"backend,omitempty"`
	BackendError string         `json:"backendError,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{OK: true, Version: s.Version}
	if s.Backend == nil {
		resp.BackendError = "backend not configured"
	} else if h, err := s.Backend.Health(r.Context()); err != nil {
		resp.BackendError = err.Error()
	} else {
		resp.Backend = h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// Rejection is a file refused before any job was created.
type Rejection struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// BatchResponse lists created jobs and refused files.
type BatchResponse struct {
	Jobs     []models.Job `json:"jobs"`
	Rejected []Rejection  `json:"rejected"`
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	settings, err := parseSettings(r)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	resp := BatchResponse{Jobs: []models.Job{}, Rejected: []Rejection{}}
	var files []upload.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readFile(fh)
		if err == nil {
			err = upload.Validate(f)
		}
		if err != nil {
			s.Toasts.Push(models.SeverityError, fh.Filename, err.Error())
			resp.Rejected = append(resp.Rejected, Rejection{FileName: fh.Filename, Error: err.Error()})
			continue
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	jobs, err := s.Tracker.CreateJobs(r.Context(), files, settings)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp.Jobs = jobs
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.JobFilter{
		Status: models.JobStatus(q.Get("status")),
		Type:   models.JobType(q.Get("type")),
		Date:   q.Get("date"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.badRequest(w, "unknown status: %s", filter.Status)
		return
	}

	jobs, err := s.Tracker.List(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.Tracker.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.Tracker.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.Tracker.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request) {
	job, err := s.Tracker.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// =============================================================================
// EXTRACTION & LAYOUT
// =============================================================================

// ExtractResponse is a recognition result with its resolved layout.
type ExtractResponse struct {
	Result         *models.OcrResult `json:"result"`
	Layout         []models.Page     `json:"layout"`
	LayoutFallback bool              `json:"layoutFallback"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	f, ok := s.singleFile(w, r)
	if !ok {
		return
	}
	settings, err := parseSettings(r)
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	res, err := s.Extractor.Extract(r.Context(), f, settings, nil)
	if err != nil {
		s.fail(w, err)
		return
	}

	pages, fallback := layout.Resolve(res.FullText, res.LayoutPages)
	if fallback {
		s.Toasts.Info("Layout data not available from backend, showing estimated layout")
	}
	s.Toasts.Success("Processed " + f.Name)
	writeJSON(w, http.StatusOK, ExtractResponse{Result: res, Layout: pages, LayoutFallback: fallback})
}

// LayoutRequest carries text to project or pages to export.
type LayoutRequest struct {
	Text   string              `json:"text"`
	Pages  []models.Page       `json:"pages,omitempty"`
	Format layout.ExportFormat `json:"format,omitempty"`
}

func (s *Server) handleLayoutProject(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	pages := layout.FromText(req.Text)
	if pages == nil {
		pages = []models.Page{}
	}
	writeJSON(w, http.StatusOK, pages)
}

func (s *Server) handleLayoutExport(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	pages := req.Pages
	if !layout.HasContent(pages) && req.Text != "" {
		pages = layout.FromText(req.Text)
	}

	art, err := layout.Export(pages, req.Format)
	if err != nil {
		if errors.Is(err, layout.ErrNoLayout) {
			s.fail(w, err)
			return
		}
		s.badRequest(w, "%v", err)
		return
	}
	writeAttachment(w, art.Name, art.ContentType, art.Data)
}

// =============================================================================
// CONVERSION & PREVIEW
// =============================================================================

// ConvertRequest is text plus conversion options.
type ConvertRequest struct {
	Text string `json:"text"`
	models.ConvertOptions
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	out, err := s.Converter.Convert(r.Context(), req.Text, req.ConvertOptions)
	name := service.OutputName(req.FileName, req.Format)
	if out != nil {
		name = out.Name
	}
	if _, recErr := s.Tracker.RecordCompleted(r.Context(), name, models.JobTypeConvert, err); recErr != nil {
		s.Logger.Warn("failed to record conversion", "error", recErr)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	if out.Local {
		w.Header().Set(HeaderLocal, "true")
	}
	s.Toasts.Success("Converted " + out.Name)
	writeAttachment(w, out.Name, out.ContentType, out.Data)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f, ok := s.singleFile(w, r)
	if !ok {
		return
	}
	if err := upload.Validate(f); err != nil {
		s.fail(w, err)
		return
	}
	p, err := preview.Describe(f)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// RAG
// =============================================================================

// RagIngestRequest names a document or a finished job to index.
type RagIngestRequest struct {
	DocID string `json:"docId"`
	JobID string `json:"jobId"`
}

// RagQueryRequest is a question for the retrieval backend.
type RagQueryRequest struct {
	Question    string `json:"question"`
	Mode        string `json:"mode"`
	VLMEnhanced bool   `json:"vlmEnhanced"`
}

func (s *Server) handleRagIngest(w http.ResponseWriter, r *http.Request) {
	var req RagIngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	if req.DocID == "" && req.JobID == "" {
		s.badRequest(w, "docId or jobId is required")
		return
	}
	if s.Backend == nil {
		s.fail(w, fmt.Errorf("%w for indexing", service.ErrBackendRequired))
		return
	}
	if err := s.Backend.RagIngest(r.Context(), req.DocID, req.JobID); err != nil {
		s.fail(w, err)
		return
	}
	s.Toasts.Success("Document indexed")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRagQuery(w http.ResponseWriter, r *http.Request) {
	var req RagQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.badRequest(w, "question is required")
		return
	}
	if s.Backend == nil {
		s.fail(w, fmt.Errorf("%w for questions", service.ErrBackendRequired))
		return
	}
	ans, err := s.Backend.RagQuery(r.Context(), req.Question, req.Mode, req.VLMEnhanced)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// =============================================================================
// TOASTS & PREFERENCES
// =============================================================================

func (s *Server) handleToastList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Toasts.List())
}

func (s *Server) handleToastDismiss(w http.ResponseWriter, r *http.Request) {
	if !s.Toasts.Dismiss(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "toast not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LanguageBody is the UI language preference.
type LanguageBody struct {
	Language string `json:"language"`
}

func (s *Server) handleLanguageGet(w http.ResponseWriter, r *http.Request) {
	if s.Prefs == nil {
		writeJSON(w, http.StatusOK, LanguageBody{Language: prefs.DefaultLanguage})
		return
	}
	lang, err := s.Prefs.Language()
	if err != nil {
		s.Logger.Warn("failed to read preferences", "error", err)
	}
	writeJSON(w, http.StatusOK, LanguageBody{Language: lang})
}

func (s *Server) handleLanguagePut(w http.ResponseWriter, r *http.Request) {
	var body LanguageBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	if s.Prefs == nil {
		s.fail(w, errors.New("preferences are not configured"))
		return
	}
	if err := s.Prefs.SetLanguage(body.Language); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
