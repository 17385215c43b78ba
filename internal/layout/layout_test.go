package layout

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestFromTextEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n", " \t\n  \r\n"} {
		assert.Empty(t, FromText(in), "input %q", in)
	}
}

func TestFromTextSingleLine(t *testing.T) {
	pages := FromText("Hello world")
	require.Len(t, pages, 1)

	page := pages[0]
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1.0, page.Width)
	assert.Equal(t, PageAspect, page.Height)
	require.Len(t, page.Blocks, 1)
	require.Len(t, page.Blocks[0].Lines, 1)

	line := page.Blocks[0].Lines[0]
	require.Len(t, line.Words, 2)
	hello, world := line.Words[0], line.Words[1]
	assert.Equal(t, "Hello", hello.Text)
	assert.Equal(t, "world", world.Text)
	assert.Less(t, hello.BBox.X, world.BBox.X, "words ordered left to right")
	assert.LessOrEqual(t, hello.BBox.Right(), world.BBox.X, "words must not overlap")
	assert.InDelta(t, WordGap, world.BBox.X-hello.BBox.Right(), eps)

	// 10 chars share the available width, capped per char.
	assert.InDelta(t, 5*MaxCharWidth, hello.BBox.W, eps)
	assert.InDelta(t, MarginX, hello.BBox.X, eps)
	assert.Equal(t, SyntheticConfidence, hello.Confidence)
	assert.Equal(t, SyntheticConfidence, line.Confidence)
}

func TestFromTextContainment(t *testing.T) {
	text := "Invoice 2026-001\n\nBill to:  ACME Corp\nTotal   42.00 EUR\nthankyouverymuchforyourbusinessandhaveaniceday"
	pages := FromText(text)
	require.Len(t, pages, 1)

	for _, b := range pages[0].Blocks {
		for _, l := range b.Lines {
			assert.True(t, b.BBox.Contains(l.BBox, eps), "line %q outside block", l.Text)
			for _, w := range l.Words {
				assert.True(t, l.BBox.Contains(w.BBox, eps), "word %q outside line", w.Text)
				assert.GreaterOrEqual(t, w.BBox.W, MinWordWidth-eps)
			}
		}
	}
}

func TestFromTextNormalized(t *testing.T) {
	pages := FromText(strings.Repeat("one two three\n", MaxLinesPerPage))
	require.Len(t, pages, 1)
	for _, l := range pages[0].Blocks[0].Lines {
		assert.GreaterOrEqual(t, l.BBox.Y, 0.0)
		assert.LessOrEqual(t, l.BBox.Bottom(), 1.0)
		assert.GreaterOrEqual(t, l.BBox.X, 0.0)
		assert.LessOrEqual(t, l.BBox.Right(), 1.0)
	}
}

func TestFromTextManyShortWordsFitWidth(t *testing.T) {
	pages := FromText(strings.Repeat("a ", 60) + "\n" + strings.Repeat("word ", 40))
	require.Len(t, pages, 1)

	lines := pages[0].Blocks[0].Lines
	require.Len(t, lines, 2)
	assert.Len(t, lines[0].Words, 60)
	assert.Len(t, lines[1].Words, 40)
	for _, l := range lines {
		assert.InDelta(t, MarginX+AvailableWidth, l.BBox.Right(), 1e-6, "overflowing line is scaled to the margin")
		prev := 0.0
		for _, w := range l.Words {
			assert.GreaterOrEqual(t, w.BBox.X, prev-eps, "word %q overlaps its predecessor", w.Text)
			assert.Greater(t, w.BBox.W, 0.0)
			assert.LessOrEqual(t, w.BBox.Right(), 1.0)
			prev = w.BBox.Right()
		}
	}
	assert.LessOrEqual(t, pages[0].Blocks[0].BBox.Right(), 1.0)
}

func TestFromTextPaging(t *testing.T) {
	assert.Equal(t, 27, MaxLinesPerPage)

	var b strings.Builder
	for range MaxLinesPerPage*2 + 3 {
		b.WriteString("line of text\n")
	}
	pages := FromText(b.String())
	require.Len(t, pages, 3)
	assert.Len(t, pages[0].Blocks[0].Lines, MaxLinesPerPage)
	assert.Len(t, pages[1].Blocks[0].Lines, MaxLinesPerPage)
	assert.Len(t, pages[2].Blocks[0].Lines, 3)
	assert.Equal(t, "text-block-2", pages[2].Blocks[0].ID)
	assert.Equal(t, 3, pages[2].Page)
}

func TestRoundTripPlainText(t *testing.T) {
	text := "First line here\n  second   line  \n\nthird\tline"
	pages := FromText(text)
	got := strings.Split(PlainText(pages), "\n")

	var want []string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			want = append(want, ln)
		}
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, strings.Fields(want[i]), strings.Fields(got[i]), "line %d", i)
	}
}

func TestLayoutTextNormalizesWhitespace(t *testing.T) {
	pages := FromText("a   b\n c\td ")
	assert.Equal(t, "a b\nc d", LayoutText(pages))
	assert.Equal(t, "a   b\n c\td ", PlainText(pages))
}

func TestTextJoinsPagesAndBlocks(t *testing.T) {
	pages := []models.Page{
		{Page: 1, Blocks: []models.Block{
			{Lines: []models.Line{{Text: "A1", Words: []models.Word{{Text: "A1"}}}}},
			{Lines: []models.Line{{Text: "B1", Words: []models.Word{{Text: "B1"}}}}},
		}},
		{Page: 2, Blocks: []models.Block{
			{Lines: []models.Line{{Text: "C1", Words: []models.Word{{Text: "C1"}}}}},
		}},
	}
	assert.Equal(t, "A1\n\nB1\n\n---\n\nC1", LayoutText(pages))
	assert.Equal(t, "A1\n\nB1\n\n---\n\nC1", PlainText(pages))
}

func TestExport(t *testing.T) {
	pages := FromText("Hello world")

	txt, err := Export(pages, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "ocr-layout.txt", txt.Name)
	assert.Equal(t, "text/plain", txt.ContentType)
	assert.Equal(t, "Hello world", string(txt.Data))

	js, err := Export(pages, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "ocr-layout.json", js.Name)
	assert.Contains(t, string(js.Data), "\n  {")

	var decoded []models.Page
	require.NoError(t, json.Unmarshal(js.Data, &decoded))
	assert.Equal(t, pages, decoded)

	_, err = Export(nil, FormatText)
	assert.ErrorIs(t, err, ErrNoLayout)

	_, err = Export(pages, ExportFormat("xml"))
	assert.Error(t, err)
}

func TestFromBackendDefaults(t *testing.T) {
	raw := []RawPage{{
		Page: 1,
		Blocks: []RawBlock{{
			Type: "heading",
			BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.5, H: 0.1},
			Lines: []RawLine{{
				Text: "Title",
				BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.3, H: 0.05},
				Words: []RawWord{
					{Text: "Title", BBox: models.BBox{X: 0.1, Y: 0.1, W: 0.3, H: 0.05}, Confidence: 0.75},
					{Text: "x"},
				},
			}},
		}, {}},
	}}

	pages := FromBackend(raw)
	require.Len(t, pages, 1)
	p := pages[0]
	assert.Equal(t, 1.0, p.Width)
	assert.Equal(t, PageAspect, p.Height)
	require.Len(t, p.Blocks, 2)
	assert.Equal(t, "block-heading-0-0", p.Blocks[0].ID)
	assert.Equal(t, "block-text-0-1", p.Blocks[1].ID)

	line := p.Blocks[0].Lines[0]
	assert.Equal(t, DefaultConfidence, line.Confidence)
	assert.Equal(t, 0.75, line.Words[0].Confidence)
	assert.Equal(t, DefaultConfidence, line.Words[1].Confidence)

	assert.Equal(t, pages, FromBackend(raw), "block ids must be deterministic")
	assert.Nil(t, FromBackend(nil))
}

func TestResolve(t *testing.T) {
	backend := FromBackend([]RawPage{{Page: 1, Blocks: []RawBlock{{Lines: []RawLine{{Text: "real"}}}}}})

	pages, fallback := Resolve("synthetic text", backend)
	assert.False(t, fallback)
	assert.Equal(t, backend, pages)

	pages, fallback = Resolve("synthetic text", []models.Page{{Page: 1}})
	assert.True(t, fallback, "pages without blocks count as no layout")
	require.Len(t, pages, 1)
	assert.Equal(t, "synthetic text", pages[0].Blocks[0].Lines[0].Text)

	pages, fallback = Resolve("", nil)
	assert.True(t, fallback)
	assert.Empty(t, pages)
}

func TestConfidenceBand(t *testing.T) {
	tests := []struct {
		conf float64
		want Band
	}{
		{0, BandLow},
		{0.79, BandLow},
		{0.8, BandMedium},
		{0.89, BandMedium},
		{0.9, BandHigh},
		{1, BandHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceBand(tt.conf), "conf %v", tt.conf)
	}
}

func TestPlace(t *testing.T) {
	block := models.Block{BBox: models.BBox{X: 0.1, Y: 0.2, W: 0.8, H: 0.5}}
	line := models.Line{BBox: models.BBox{X: 0.15, Y: 0.25, W: 0.5, H: 0.05}}
	word := models.Word{BBox: models.BBox{X: 0.3, Y: 0.25, W: 0.1, H: 0.05}}

	got := Place(block, line, word, 2)
	assert.InDelta(t, 0.6, got.X, eps)
	assert.InDelta(t, 0.5, got.Y, eps)
	assert.InDelta(t, 0.2, got.W, eps)
	assert.InDelta(t, 0.1, got.H, eps)
}

func TestTextMatches(t *testing.T) {
	assert.Nil(t, TextMatches("anything", "  "))
	assert.Equal(t, []Match{{0, 5}, {12, 17}}, TextMatches("Hello there hello", "HELLO"))
	assert.Equal(t, []Match{{6, 9}}, TextMatches("cost (1.5) usd", "1.5"), "query is literal")
	assert.Empty(t, TextMatches("abc", "x"))
}
