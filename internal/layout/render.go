package layout

import (
	"regexp"
	"strings"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// Band is a confidence bucket used to highlight uncertain words.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// ConfidenceBand buckets a confidence score: below 0.8 low, below 0.9 medium, else high.
func ConfidenceBand(conf float64) Band {
	switch {
	case conf < 0.8:
		return BandLow
	case conf < 0.9:
		return BandMedium
	default:
		return BandHigh
	}
}

// Place returns the absolute box of a word, scaled by zoom.
// The origin is composed as block origin plus the line's offset within the
// block plus the word's offset within the line, so untrusted backend
// geometry that violates containment still renders where it says.
func Place(b models.Block, l models.Line, w models.Word, zoom float64) models.BBox {
	lineDX, lineDY := l.BBox.X-b.BBox.X, l.BBox.Y-b.BBox.Y
	wordDX, wordDY := w.BBox.X-l.BBox.X, w.BBox.Y-l.BBox.Y
	return models.BBox{
		X: (b.BBox.X + lineDX + wordDX) * zoom,
		Y: (b.BBox.Y + lineDY + wordDY) * zoom,
		W: w.BBox.W * zoom,
		H: w.BBox.H * zoom,
	}
}

// Match is a half-open byte range [Start, End) in searched text.
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TextMatches finds case-insensitive literal occurrences of query in text.
// A blank query matches nothing.
func TextMatches(text, query string) []Match {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
	locs := re.FindAllStringIndex(text, -1)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{Start: loc[0], End: loc[1]})
	}
	return matches
}
