package layout

import (
	"fmt"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// DefaultConfidence is assumed for backend lines and words that report none.
const DefaultConfidence = 0.9

// RawPage is a page of layout as the OCR backend reports it.
// Missing numeric fields decode as zero and are replaced by defaults.
type RawPage struct {
	Page   int        `json:"page"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Blocks []RawBlock `json:"blocks"`
}

type RawBlock struct {
	Type  string      `json:"type"`
	BBox  models.BBox `json:"bbox"`
	Lines []RawLine   `json:"lines"`
}

type RawLine struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BBox       models.BBox `json:"bbox"`
	Words      []RawWord   `json:"words"`
}

type RawWord struct {
	Text       string      `json:"text"`
	BBox       models.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// FromBackend converts backend layout pages into the layout tree.
// Geometry is copied as-is; containment is not checked.
func FromBackend(raw []RawPage) []models.Page {
	if len(raw) == 0 {
		return nil
	}

	pages := make([]models.Page, 0, len(raw))
	for pi, rp := range raw {
		page := models.Page{
			Page:   rp.Page,
			Width:  orDefault(rp.Width, 1),
			Height: orDefault(rp.Height, PageAspect),
			Blocks: make([]models.Block, 0, len(rp.Blocks)),
		}
		if page.Page == 0 {
			page.Page = pi + 1
		}
		for bi, rb := range rp.Blocks {
			typ := rb.Type
			if typ == "" {
				typ = "text"
			}
			block := models.Block{
				ID:    fmt.Sprintf("block-%s-%d-%d", typ, pi, bi),
				Type:  typ,
				BBox:  rb.BBox,
				Lines: make([]models.Line, 0, len(rb.Lines)),
			}
			for _, rl := range rb.Lines {
				line := models.Line{
					Text:       rl.Text,
					Confidence: orDefault(rl.Confidence, DefaultConfidence),
					BBox:       rl.BBox,
					Words:      make([]models.Word, 0, len(rl.Words)),
				}
				for _, rw := range rl.Words {
					line.Words = append(line.Words, models.Word{
						Text:       rw.Text,
						BBox:       rw.BBox,
						Confidence: orDefault(rw.Confidence, DefaultConfidence),
					})
				}
				block.Lines = append(block.Lines, line)
			}
			page.Blocks = append(page.Blocks, block)
		}
		pages = append(pages, page)
	}
	return pages
}

// HasContent reports whether any page carries at least one block.
func HasContent(pages []models.Page) bool {
	for _, p := range pages {
		if len(p.Blocks) > 0 {
			return true
		}
	}
	return false
}

// Resolve picks the layout to display. Backend layout wins when it has content;
// otherwise text is projected and fallback reports that no real layout was available.
func Resolve(text string, backend []models.Page) (pages []models.Page, fallback bool) {
	if HasContent(backend) {
		return backend, false
	}
	return FromText(text), true
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
