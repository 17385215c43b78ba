// Package upload validates user-supplied files before they reach any network code.
package upload

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// MaxFileSize is the largest accepted upload, in bytes.
const MaxFileSize = 15 * 1024 * 1024

// AllowedExtensions lists the accepted file name extensions, lower-case and without dot.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "webp", "pdf", "docx", "txt", "md"}

// AllowedTypes lists the accepted declared content types.
var AllowedTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/tiff",
	"image/bmp",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"text/markdown",
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

// ValidationError describes why a file was rejected.
// Message is the user-facing text; Err is one of the sentinel errors above.
type ValidationError struct {
	FileName string
	Message  string
	Err      error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// File is an uploaded file held in memory.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// Validate checks the extension and size of f.
// A disallowed extension is rejected whatever content type is declared.
func Validate(f File) error {
	if !slices.Contains(AllowedExtensions, Extension(f.Name)) {
		return &ValidationError{
			FileName: f.Name,
			Message:  "Unsupported type. Allowed: " + strings.Join(AllowedExtensions, ", "),
			Err:      ErrUnsupportedType,
		}
	}
	if f.Size > MaxFileSize {
		return &ValidationError{
			FileName: f.Name,
			Message:  "File too large. Max " + FormatBytes(MaxFileSize),
			Err:      ErrFileTooLarge,
		}
	}
	return nil
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsImage reports whether the file declares an image content type.
func IsImage(f File) bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

// IsPDF reports whether the file declares the PDF content type.
func IsPDF(f File) bool {
	return f.ContentType == "application/pdf"
}

// IsText reports whether the file is plain text or markdown.
func IsText(f File) bool {
	switch Extension(f.Name) {
	case "txt", "md":
		return true
	}
	return strings.HasPrefix(f.ContentType, "text/")
}

// DetectContentType picks a content type from the extension, falling back to sniffing data.
func DetectContentType(name string, data []byte) string {
	switch Extension(name) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "tif", "tiff":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	case "pdf":
		return "application/pdf"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "txt":
		return "text/plain"
	case "md":
		return "text/markdown"
	}
	return http.DetectContentType(data)
}

// FromPath reads a local file into a File.
// The size check happens before reading so oversized files are never loaded.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	f := File{Name: filepath.Base(path), Size: info.Size()}
	if err := Validate(f); err != nil {
		return File{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read file: %w", err)
	}
	f.Data = data
	f.Size = int64(len(data))
	f.ContentType = DetectContentType(f.Name, data)
	return f, nil
}

var byteUnits = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders n in base-1024 units with at most two decimals, e.g. "1.5 KB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	i = min(i, len(byteUnits)-1)
	v := float64(n) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}
