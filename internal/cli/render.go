package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/ocrdesk/internal/layout"
	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// overlayColumns is the terminal width a page's [0,1] x range is mapped onto.
const overlayColumns = 100

func (t Theme) bandStyle(b layout.Band) lipgloss.Style {
	switch b {
	case layout.BandLow:
		return lipgloss.NewStyle().Foreground(t.Error).Underline(true)
	case layout.BandMedium:
		return t.warnStyle()
	default:
		return lipgloss.NewStyle()
	}
}

func (t Theme) matchStyle() lipgloss.Style {
	return lipgloss.NewStyle().Reverse(true)
}

// overlayStats counts words per confidence band.
type overlayStats struct {
	Words  int
	Low    int
	Medium int
}

// renderLayout draws pages as positioned, confidence-colored text. Words
// containing find are highlighted.
func renderLayout(pages []models.Page, find string, theme Theme) (string, overlayStats) {
	var sb strings.Builder
	var stats overlayStats

	for _, p := range pages {
		sb.WriteString(theme.hintStyle().Render(fmt.Sprintf("── Page %d ──", p.Page)))
		sb.WriteByte('\n')
		for _, b := range p.Blocks {
			for _, l := range b.Lines {
				sb.WriteString(renderLine(b, l, find, theme, &stats))
				sb.WriteByte('\n')
			}
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", stats
}

func renderLine(b models.Block, l models.Line, find string, theme Theme, stats *overlayStats) string {
	if len(l.Words) == 0 {
		return theme.bandStyle(layout.ConfidenceBand(l.Confidence)).Render(l.Text)
	}

	var sb strings.Builder
	col := 0
	for _, w := range l.Words {
		box := layout.Place(b, l, w, 1)
		target := int(math.Round(box.X * overlayColumns))
		if col > 0 {
			target = max(target, col+1)
		}
		if target > col {
			sb.WriteString(strings.Repeat(" ", target-col))
			col = target
		}

		band := layout.ConfidenceBand(w.Confidence)
		stats.Words++
		switch band {
		case layout.BandLow:
			stats.Low++
		case layout.BandMedium:
			stats.Medium++
		}

		style := theme.bandStyle(band)
		if len(layout.TextMatches(w.Text, find)) > 0 {
			style = theme.matchStyle()
		}
		sb.WriteString(style.Render(w.Text))
		col += lipgloss.Width(w.Text)
	}
	return sb.String()
}

// renderLegend summarizes confidence bands below an overlay.
func renderLegend(stats overlayStats, fallback bool, theme Theme) string {
	parts := []string{
		fmt.Sprintf("%d words", stats.Words),
		theme.bandStyle(layout.BandMedium).Render(fmt.Sprintf("%d medium", stats.Medium)),
		theme.bandStyle(layout.BandLow).Render(fmt.Sprintf("%d low", stats.Low)),
	}
	legend := strings.Join(parts, " · ")
	if fallback {
		legend += theme.hintStyle().Render("  (estimated layout)")
	}
	return legend
}
