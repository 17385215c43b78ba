package models

// OcrPage is the recognized text of a single source page.
type OcrPage struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// StructuredData holds structured extraction output.
type StructuredData struct {
	Tables    []any `json:"tables"`
	KeyValues []any `json:"keyValues"`
	Entities  []any `json:"entities"`
}

// OcrResult is the normalized result of an extraction.
type OcrResult struct {
	FullText      string         `json:"fullText"`
	Pages         []OcrPage      `json:"pages,omitempty"`
	LayoutPages   []Page         `json:"layoutPages,omitempty"`
	Language      string         `json:"language"`
	AvgConfidence float64        `json:"avgConfidence"`
	Structured    StructuredData `json:"structured"`
	Version       string         `json:"version"`
	Status        JobStatus      `json:"status"`
}

// OutputFormat is a conversion target.
type OutputFormat string

const (
	FormatTXT  OutputFormat = "txt"
	FormatPDF  OutputFormat = "pdf"
	FormatDOCX OutputFormat = "docx"
	FormatMD   OutputFormat = "md"
	FormatJSON OutputFormat = "json"
)

// MIMEType returns the content type of files in this format.
func (f OutputFormat) MIMEType() string {
	switch f {
	case FormatTXT:
		return "text/plain"
	case FormatMD:
		return "text/markdown"
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// Valid reports whether f is a supported format.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatTXT, FormatPDF, FormatDOCX, FormatMD, FormatJSON:
		return true
	}
	return false
}

// ConvertOptions configures text-to-file conversion.
// Encoding is one of utf-8, utf-16 or ascii; PageSize one of a4, letter or legal.
type ConvertOptions struct {
	Format          OutputFormat `json:"format"`
	FileName        string       `json:"fileName"`
	Encoding        string       `json:"encoding"`
	IncludeMetadata bool         `json:"includeMetadata"`
	PageSize        string       `json:"pageSize"`
	FontSize        int          `json:"fontSize"`
}

// Health is the backend health report.
type Health struct {
	OK              bool   `json:"ok"`
	Version         string `json:"version"`
	ParserDefault   string `json:"parserDefault"`
	EnableRag       bool   `json:"enableRag"`
	OllamaReachable bool   `json:"ollamaReachable"`
}
