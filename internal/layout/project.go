// Package layout projects recognized text onto page geometry and flattens it back.
//
// Every box is normalized to [0,1] of its page's width and height. Pages
// produced here carry Width 1 and Height PageAspect so renderers can restore
// the A4-like proportions.
package layout

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// Projection constants, in units of page width.
const (
	PageAspect     = 1.414
	LineHeight     = 0.035
	LineGap        = 0.012
	MarginX        = 0.05
	MarginY        = 0.05
	AvailableWidth = 0.9
	WordGap        = 0.015
	MaxCharWidth   = 0.025
	EmptyCharWidth = 0.02
	MinWordWidth   = 0.02

	// SyntheticConfidence is a placeholder; projected words were never recognized.
	SyntheticConfidence = 0.92
)

// MaxLinesPerPage is how many projected lines fit between the vertical margins.
var MaxLinesPerPage = int(math.Floor((PageAspect - 2*MarginY) / (LineHeight + LineGap)))

// FromText builds a synthetic layout from plain text.
// Blank lines are dropped; text with no visible content yields no pages.
func FromText(text string) []models.Page {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	var pages []models.Page
	for start := 0; start < len(lines); start += MaxLinesPerPage {
		end := min(start+MaxLinesPerPage, len(lines))
		pages = append(pages, projectPage(len(pages), lines[start:end]))
	}
	return pages
}

func projectPage(idx int, lines []string) models.Page {
	block := models.Block{
		ID:   fmt.Sprintf("text-block-%d", idx),
		Type: "text",
	}
	for i, ln := range lines {
		line := projectLine(ln, MarginY+float64(i)*(LineHeight+LineGap))
		if i == 0 {
			block.BBox = line.BBox
		} else {
			block.BBox = block.BBox.Union(line.BBox)
		}
		block.Lines = append(block.Lines, line)
	}
	return models.Page{
		Page:   idx + 1,
		Width:  1,
		Height: PageAspect,
		Blocks: []models.Block{block},
	}
}

// projectLine lays words out left to right starting at the margin.
// y is in width units and is normalized to page height here.
func projectLine(text string, y float64) models.Line {
	words := strings.Fields(text)

	totalChars := 0
	for _, w := range words {
		totalChars += utf8.RuneCountInString(w)
	}
	charWidth := EmptyCharWidth
	if totalChars > 0 {
		charWidth = min(AvailableWidth/float64(totalChars), MaxCharWidth)
	}

	widths := make([]float64, len(words))
	span := 0.0
	for i, w := range words {
		widths[i] = max(float64(utf8.RuneCountInString(w))*charWidth, MinWordWidth)
		span += widths[i]
	}
	if len(words) > 1 {
		span += WordGap * float64(len(words)-1)
	}
	// Minimum widths and gaps can still overflow on lines of many short words.
	scale := 1.0
	if span > AvailableWidth {
		scale = AvailableWidth / span
	}

	line := models.Line{
		Text:       text,
		Confidence: SyntheticConfidence,
		Words:      make([]models.Word, 0, len(words)),
	}
	top, height := y/PageAspect, LineHeight/PageAspect
	cursor := MarginX
	for i, w := range words {
		width := widths[i] * scale
		box := models.BBox{X: cursor, Y: top, W: width, H: height}
		line.Words = append(line.Words, models.Word{Text: w, BBox: box, Confidence: SyntheticConfidence})
		if i == 0 {
			line.BBox = box
		} else {
			line.BBox = line.BBox.Union(box)
		}
		cursor += width + WordGap*scale
	}
	return line
}
