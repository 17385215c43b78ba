package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/ocrdesk/internal/backend"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"golang.org/x/text/encoding/unicode"
)

// ConvertBackend renders text into files remotely.
type ConvertBackend interface {
	Convert(ctx context.Context, text string, opts models.ConvertOptions) (*backend.ConvertResult, error)
}

// Conversion is a converted file ready for download.
type Conversion struct {
	Name        string
	ContentType string
	Data        []byte
	// Local is set when the file was produced without the backend.
	Local bool
}

// Converter turns text into output files, falling back to local rendering
// for plain formats when the backend is unreachable.
type Converter struct {
	backend ConvertBackend
	logger  *slog.Logger
	now     func() time.Time
}

// NewConverter creates a converter. backend may be nil to always convert locally.
func NewConverter(b ConvertBackend, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{backend: b, logger: logger, now: time.Now}
}

// Convert produces a file from text in the requested format.
func (c *Converter) Convert(ctx context.Context, text string, opts models.ConvertOptions) (*Conversion, error) {
	if opts.Format == "" {
		opts.Format = models.FormatTXT
	}
	if !opts.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}
	name := OutputName(opts.FileName, opts.Format)

	var backendErr error
	if c.backend != nil {
		res, err := c.backend.Convert(ctx, text, opts)
		if err == nil {
			return &Conversion{Name: name, ContentType: res.ContentType, Data: res.Data}, nil
		}
		backendErr = err
		c.logger.Warn("backend conversion failed", "format", opts.Format, "error", err)
	}

	switch opts.Format {
	case models.FormatPDF, models.FormatDOCX:
		err := fmt.Errorf("%w for %s conversion, please ensure the server is running", ErrBackendRequired, strings.ToUpper(string(opts.Format)))
		if backendErr != nil {
			err = fmt.Errorf("%w: %w", err, backendErr)
		}
		return nil, err
	}

	content, err := c.renderLocal(text, opts)
	if err != nil {
		return nil, err
	}
	data, err := encodeText(content, opts.Encoding)
	if err != nil {
		return nil, err
	}
	return &Conversion{Name: name, ContentType: opts.Format.MIMEType(), Data: data, Local: true}, nil
}

type localJSON struct {
	Content string         `json:"content"`
	Meta    *localJSONMeta `json:"meta,omitempty"`
}

type localJSONMeta struct {
	GeneratedAt string `json:"generatedAt"`
	PageSize    string `json:"pageSize,omitempty"`
	Length      int    `json:"length"`
}

func (c *Converter) renderLocal(text string, opts models.ConvertOptions) (string, error) {
	switch opts.Format {
	case models.FormatMD:
		return "# Converted Output\n\n" + text, nil
	case models.FormatJSON:
		doc := localJSON{Content: text}
		if opts.IncludeMetadata {
			doc.Meta = &localJSONMeta{
				GeneratedAt: c.now().UTC().Format(time.RFC3339Nano),
				PageSize:    opts.PageSize,
				Length:      utf8.RuneCountInString(text),
			}
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal json output: %w", err)
		}
		return string(b), nil
	default:
		return text, nil
	}
}

// encodeText applies the requested text encoding. Empty means UTF-8.
func encodeText(s, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return []byte(s), nil
	case "utf-16", "utf16":
		b, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("encode utf-16: %w", err)
		}
		return b, nil
	case "ascii":
		var sb strings.Builder
		sb.Grow(len(s))
		for _, r := range s {
			if r > 127 {
				r = '?'
			}
			sb.WriteRune(r)
		}
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}
}

// OutputName builds the download name: the base of fileName (default "output")
// with the format's extension.
func OutputName(fileName string, format models.OutputFormat) string {
	base := strings.TrimSpace(fileName)
	if base == "" {
		base = "output"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = "output"
	}
	return base + "." + string(format)
}
