// Package preview produces quick looks at uploaded files: text for documents,
// dimensions for images.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	// Image decoders registered for DecodeConfig.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ledongthuc/pdf"
	"github.com/raphaelgruber/ocrdesk/internal/upload"
)

var (
	// ErrNoTextPreview is returned for files that have no text representation.
	ErrNoTextPreview = errors.New("preview not available for this type")
	// ErrNotImage is returned when image metadata is requested for a non-image.
	ErrNotImage = errors.New("not a supported image")
)

// Kind classifies a preview.
type Kind string

const (
	KindText  Kind = "text"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindNone  Kind = "none"
)

// ImageInfo describes an image without decoding its pixels.
type ImageInfo struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Preview is the combined preview of a file.
type Preview struct {
	FileName string     `json:"fileName"`
	Kind     Kind       `json:"kind"`
	Size     string     `json:"size"`
	Text     string     `json:"text,omitempty"`
	Pages    int        `json:"pages,omitempty"`
	Image    *ImageInfo `json:"image,omitempty"`
	Title    string     `json:"title,omitempty"`
	Outline  []Heading  `json:"outline,omitempty"`
}

// Describe builds the preview appropriate for the file's type.
func Describe(f upload.File) (*Preview, error) {
	p := &Preview{FileName: f.Name, Kind: KindNone, Size: upload.FormatBytes(f.Size)}
	f = withContentType(f)

	switch {
	case upload.IsImage(f):
		info, err := Image(f)
		if err != nil {
			return nil, err
		}
		p.Kind = KindImage
		p.Image = info
	case upload.IsPDF(f):
		text, pages, err := pdfText(f.Data)
		if err != nil {
			return nil, err
		}
		p.Kind = KindPDF
		p.Text = text
		p.Pages = pages
	case upload.IsText(f):
		text, err := Text(f)
		if err != nil {
			return nil, err
		}
		p.Kind = KindText
		p.Text = text
		if upload.Extension(f.Name) == "md" {
			p.Title, p.Outline = markdownOutline(text)
		}
	}
	return p, nil
}

// Text returns the textual content of txt, md and PDF files.
func Text(f upload.File) (string, error) {
	f = withContentType(f)
	switch {
	case upload.IsPDF(f):
		text, _, err := pdfText(f.Data)
		return text, err
	case upload.IsText(f):
		if !utf8.Valid(f.Data) {
			return strings.ToValidUTF8(string(f.Data), "�"), nil
		}
		return string(f.Data), nil
	default:
		return "", ErrNoTextPreview
	}
}

// Image reads the format and dimensions of png, jpeg, webp, bmp and tiff files.
func Image(f upload.File) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotImage, f.Name, err)
	}
	return &ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// pdfText extracts plain text page by page, pages separated by a blank line.
func pdfText(data []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	var parts []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), n, nil
}

func withContentType(f upload.File) upload.File {
	if f.ContentType == "" || f.ContentType == "application/octet-stream" {
		f.ContentType = upload.DetectContentType(f.Name, f.Data)
	}
	return f
}
