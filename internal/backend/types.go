package backend

import (
	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// ExtractResponse is the reply to an extraction request.
// Synchronous requests fill Result; asynchronous ones fill JobID.
type ExtractResponse struct {
	JobID  string
	Result *models.OcrResult
}

// JobStatus is one poll of a backend job.
type JobStatus struct {
	Status  string            `json:"status"`
	Step    string            `json:"step"`
	Percent int               `json:"percent"`
	Message string            `json:"message"`
	Result  *models.OcrResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ConvertResult is a file produced by the backend.
type ConvertResult struct {
	ContentType string
	Data        []byte
}

// RagAnswer is the reply to a retrieval query.
type RagAnswer struct {
	Answer   string `json:"answer"`
	Contexts []any  `json:"contexts"`
}

type convertRequest struct {
	Text            string      `json:"text"`
	Format          string      `json:"format"`
	FileName        string      `json:"fileName"`
	IncludeMetadata bool        `json:"includeMetadata"`
	PDFOptions      *pdfOptions `json:"pdfOptions,omitempty"`
}

type pdfOptions struct {
	PageSize string `json:"pageSize"`
	FontSize int    `json:"fontSize"`
}

type ragIngestRequest struct {
	DocID string `json:"docId,omitempty"`
	JobID string `json:"jobId,omitempty"`
}

type ragQueryRequest struct {
	Question    string `json:"question"`
	Mode        string `json:"mode"`
	VLMEnhanced bool   `json:"vlmEnhanced"`
}

// rawResult is the OCR result as the backend serializes it.
type rawResult struct {
	FullText     string `json:"fullText"`
	EnhancedText string `json:"enhancedText"`
	Pages        []struct {
		Page       int     `json:"page"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"pages"`
	Layout *struct {
		Pages []layout.RawPage `json:"pages"`
	} `json:"layout"`
	Meta struct {
		Language      string  `json:"language"`
		AvgConfidence float64 `json:"avgConfidence"`
	} `json:"meta"`
	Structured struct {
		Tables []any `json:"tables"`
	} `json:"structured"`
}

type rawJobStatus struct {
	Status  string     `json:"status"`
	Step    string     `json:"step"`
	Percent int        `json:"percent"`
	Message string     `json:"message"`
	Result  *rawResult `json:"result"`
	Error   string     `json:"error"`
}

// toModel normalizes a backend result. Enhanced text wins over full text and
// missing confidences default to layout.DefaultConfidence.
func (r *rawResult) toModel() *models.OcrResult {
	text := r.EnhancedText
	if text == "" {
		text = r.FullText
	}

	pages := make([]models.OcrPage, 0, len(r.Pages))
	for _, p := range r.Pages {
		conf := p.Confidence
		if conf == 0 {
			conf = layout.DefaultConfidence
		}
		pages = append(pages, models.OcrPage{Page: p.Page, Text: p.Text, Confidence: conf})
	}

	var layoutPages []models.Page
	if r.Layout != nil {
		layoutPages = layout.FromBackend(r.Layout.Pages)
	}

	lang := r.Meta.Language
	if lang == "" {
		lang = "auto"
	}
	avg := r.Meta.AvgConfidence
	if avg == 0 {
		avg = layout.DefaultConfidence
	}
	tables := r.Structured.Tables
	if tables == nil {
		tables = []any{}
	}

	return &models.OcrResult{
		FullText:      text,
		Pages:         pages,
		LayoutPages:   layoutPages,
		Language:      lang,
		AvgConfidence: avg,
		Structured: models.StructuredData{
			Tables:    tables,
			KeyValues: []any{},
			Entities:  []any{},
		},
		Version: "v1",
		Status:  models.JobStatusDone,
	}
}
