package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// ErrNoLayout is returned when there is nothing to export.
var ErrNoLayout = errors.New("no layout available")

const pageBreak = "\n\n---\n\n"

// ExportFormat selects the export representation.
type ExportFormat string

const (
	FormatText ExportFormat = "txt"
	FormatJSON ExportFormat = "json"
)

// FileName returns the deterministic download name for the format.
func (f ExportFormat) FileName() string {
	if f == FormatJSON {
		return "ocr-layout.json"
	}
	return "ocr-layout.txt"
}

// ContentType returns the MIME type of the exported data.
func (f ExportFormat) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/plain"
}

// Artifact is an exported layout ready for download.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// PlainText joins each block's line text, blank line between blocks and a
// rule between pages. Blocks with no text are skipped.
func PlainText(pages []models.Page) string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		var blocks []string
		for _, b := range p.Blocks {
			lines := make([]string, 0, len(b.Lines))
			for _, l := range b.Lines {
				lines = append(lines, l.Text)
			}
			if text := strings.Join(lines, "\n"); text != "" {
				blocks = append(blocks, text)
			}
		}
		out = append(out, strings.Join(blocks, "\n\n"))
	}
	return strings.Join(out, pageBreak)
}

// LayoutText rebuilds each line from its words joined by single spaces,
// so the result can differ from the recognized line text in whitespace.
func LayoutText(pages []models.Page) string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks := make([]string, 0, len(p.Blocks))
		for _, b := range p.Blocks {
			lines := make([]string, 0, len(b.Lines))
			for _, l := range b.Lines {
				words := make([]string, 0, len(l.Words))
				for _, w := range l.Words {
					words = append(words, w.Text)
				}
				lines = append(lines, strings.Join(words, " "))
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
		out = append(out, strings.Join(blocks, "\n\n"))
	}
	return strings.Join(out, pageBreak)
}

// Export serializes pages in the requested format.
func Export(pages []models.Page, format ExportFormat) (Artifact, error) {
	if len(pages) == 0 {
		return Artifact{}, ErrNoLayout
	}

	var data []byte
	switch format {
	case FormatJSON:
		var err error
		data, err = json.MarshalIndent(pages, "", "  ")
		if err != nil {
			return Artifact{}, fmt.Errorf("marshal layout: %w", err)
		}
	case FormatText, "":
		format = FormatText
		data = []byte(LayoutText(pages))
	default:
		return Artifact{}, fmt.Errorf("unsupported export format: %s", format)
	}

	return Artifact{Name: format.FileName(), ContentType: format.ContentType(), Data: data}, nil
}
