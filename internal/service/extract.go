package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

// ExtractBackend performs recognition remotely.
type ExtractBackend interface {
	ExtractOCR(ctx context.Context, file upload.File, settings models.OcrSettings, sync bool) (*backend.ExtractResponse, error)
}

// Progress reports a step of a multi-step operation.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
}

// Extractor runs synchronous single-file recognition. There is no local fallback.
type Extractor struct {
	backend ExtractBackend
}

// NewExtractor creates an extractor.
func NewExtractor(b ExtractBackend) *Extractor {
	return &Extractor{backend: b}
}

// Extract validates file and recognizes it, reporting three progress steps.
func (e *Extractor) Extract(ctx context.Context, file upload.File, settings models.OcrSettings, onProgress func(Progress)) (*models.OcrResult, error) {
	report := func(n int, label string) {
		if onProgress != nil {
			onProgress(Progress{Current: n, Total: 3, Label: label})
		}
	}

	if err := upload.Validate(file); err != nil {
		return nil, err
	}

	report(1, "Uploading to server...")
	resp, err := e.backend.ExtractOCR(ctx, file, settings, true)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", file.Name, err)
	}

	report(2, "Processing document...")
	if resp.Result == nil {
		return nil, backend.ErrNoResult
	}

	report(3, "Complete")
	return resp.Result, nil
}
