package models

import "fmt"

// OcrSettings is the OCR configuration snapshot attached to a job at creation time.
// It is always copied by value; a job never references a caller's settings.
type OcrSettings struct {
	Language       string             `json:"language" yaml:"language"` // auto, vi, en, ja, ko, zh
	Mode           string             `json:"mode" yaml:"mode"`         // fast, balanced, accurate
	Preprocess     PreprocessSettings `json:"preprocess" yaml:"preprocess"`
	Layout         LayoutSettings     `json:"layout" yaml:"layout"`
	Region         RegionSettings     `json:"region" yaml:"region"`
	Post           PostSettings       `json:"post" yaml:"post"`
	Intelligence   IntelSettings      `json:"intelligence" yaml:"intelligence"`
	Security       SecuritySettings   `json:"security" yaml:"security"`
	Output         OutputSettings     `json:"output" yaml:"output"`
	Parser         string             `json:"parser,omitempty" yaml:"parser,omitempty"`
	ParseMethod    string             `json:"parseMethod,omitempty" yaml:"parseMethod,omitempty"`
	PreserveLayout bool               `json:"preserveLayout" yaml:"preserveLayout"`
	ReturnLayout   bool               `json:"returnLayout" yaml:"returnLayout"`
	StartPage      *int               `json:"startPage,omitempty" yaml:"startPage,omitempty"`
	EndPage        *int               `json:"endPage,omitempty" yaml:"endPage,omitempty"`
	Extract        ExtractSettings    `json:"extract" yaml:"extract"`
}

// PreprocessSettings controls image cleanup before recognition.
type PreprocessSettings struct {
	AutoOrient    bool `json:"autoOrient" yaml:"autoOrient"`
	Rotate        int  `json:"rotate" yaml:"rotate"` // 0, 90, 180, 270
	Deskew        bool `json:"deskew" yaml:"deskew"`
	Denoise       bool `json:"denoise" yaml:"denoise"`
	Deblur        bool `json:"deblur" yaml:"deblur"`
	Binarize      bool `json:"binarize" yaml:"binarize"`
	ContrastBoost bool `json:"contrastBoost" yaml:"contrastBoost"`
	Brightness    int  `json:"brightness" yaml:"brightness"`
	ShadowRemoval bool `json:"shadowRemoval" yaml:"shadowRemoval"`
	RemoveLines   bool `json:"removeLines" yaml:"removeLines"`
	DPINormalize  bool `json:"dpiNormalize" yaml:"dpiNormalize"`
	QualityScore  int  `json:"qualityScore" yaml:"qualityScore"`
}

// LayoutSettings controls layout detection.
type LayoutSettings struct {
	PreserveLayout       bool `json:"preserveLayout" yaml:"preserveLayout"`
	KeepLineBreaks       bool `json:"keepLineBreaks" yaml:"keepLineBreaks"`
	DetectColumns        bool `json:"detectColumns" yaml:"detectColumns"`
	DetectHeadersFooters bool `json:"detectHeadersFooters" yaml:"detectHeadersFooters"`
	DetectLists          bool `json:"detectLists" yaml:"detectLists"`
	DetectForms          bool `json:"detectForms" yaml:"detectForms"`
}

// Region is a manually selected recognition area in source pixels.
type Region struct {
	ID string  `json:"id" yaml:"id"`
	X  float64 `json:"x" yaml:"x"`
	Y  float64 `json:"y" yaml:"y"`
	W  float64 `json:"w" yaml:"w"`
	H  float64 `json:"h" yaml:"h"`
}

// RegionSettings selects either the full page or manual regions.
type RegionSettings struct {
	Mode       string   `json:"mode" yaml:"mode"` // full, manual
	Regions    []Region `json:"regions" yaml:"regions"`
	ActivePage int      `json:"activePage" yaml:"activePage"`
}

// RegexCleanup toggles pattern-based cleanup passes.
type RegexCleanup struct {
	Phone bool `json:"phone" yaml:"phone"`
	Email bool `json:"email" yaml:"email"`
	Date  bool `json:"date" yaml:"date"`
	ID    bool `json:"id" yaml:"id"`
}

// PostSettings controls post-processing of recognized text.
type PostSettings struct {
	SpellCorrection        bool         `json:"spellCorrection" yaml:"spellCorrection"`
	CustomVocabulary       string       `json:"customVocabulary" yaml:"customVocabulary"`
	RegexCleanup           RegexCleanup `json:"regexCleanup" yaml:"regexCleanup"`
	NormalizeWhitespace    bool         `json:"normalizeWhitespace" yaml:"normalizeWhitespace"`
	MaskSensitive          bool         `json:"maskSensitive" yaml:"maskSensitive"`
	HighlightLowConfidence bool         `json:"highlightLowConfidence" yaml:"highlightLowConfidence"`
}

// IntelSettings toggles structured extraction.
type IntelSettings struct {
	TableExtraction    bool   `json:"tableExtraction" yaml:"tableExtraction"`
	KeyValueExtraction bool   `json:"keyValueExtraction" yaml:"keyValueExtraction"`
	EntityExtraction   bool   `json:"entityExtraction" yaml:"entityExtraction"`
	Template           string `json:"template" yaml:"template"`
}

// SecuritySettings controls retention and redaction.
type SecuritySettings struct {
	Retention    string `json:"retention" yaml:"retention"`
	PIIDetection bool   `json:"piiDetection" yaml:"piiDetection"`
	Redaction    bool   `json:"redaction" yaml:"redaction"`
}

// OutputSettings lists requested output formats.
type OutputSettings struct {
	ExportFormats     []string `json:"exportFormats" yaml:"exportFormats"`
	MergePages        bool     `json:"mergePages" yaml:"mergePages"`
	IncludeConfidence bool     `json:"includeConfidence" yaml:"includeConfidence"`
}

// ExtractSettings toggles backend content extraction.
type ExtractSettings struct {
	Tables    bool `json:"tables" yaml:"tables"`
	Equations bool `json:"equations" yaml:"equations"`
	Images    bool `json:"images" yaml:"images"`
}

// DefaultOcrSettings returns the settings used for batch submissions.
func DefaultOcrSettings() OcrSettings {
	return OcrSettings{
		Language: "auto",
		Mode:     "balanced",
		Preprocess: PreprocessSettings{
			AutoOrient:    true,
			Deskew:        true,
			Denoise:       true,
			ContrastBoost: true,
			DPINormalize:  true,
			QualityScore:  90,
		},
		Layout: LayoutSettings{
			PreserveLayout: true,
			KeepLineBreaks: true,
			DetectColumns:  true,
			DetectLists:    true,
		},
		Region: RegionSettings{Mode: "full", Regions: []Region{}, ActivePage: 1},
		Post: PostSettings{
			SpellCorrection:        true,
			RegexCleanup:           RegexCleanup{Phone: true, Email: true, Date: true},
			NormalizeWhitespace:    true,
			HighlightLowConfidence: true,
		},
		Intelligence: IntelSettings{
			TableExtraction:    true,
			KeyValueExtraction: true,
			EntityExtraction:   true,
			Template:           "invoice",
		},
		Security:       SecuritySettings{Retention: "30d"},
		Output:         OutputSettings{ExportFormats: []string{"txt", "md", "json"}, MergePages: true, IncludeConfidence: true},
		Parser:         "docling",
		ParseMethod:    "auto",
		PreserveLayout: true,
		ReturnLayout:   true,
		Extract:        ExtractSettings{Tables: true, Equations: true},
	}
}

// Clone returns a deep copy so the snapshot cannot be mutated through shared slices.
func (s OcrSettings) Clone() OcrSettings {
	out := s
	out.Region.Regions = append([]Region(nil), s.Region.Regions...)
	out.Output.ExportFormats = append([]string(nil), s.Output.ExportFormats...)
	if s.StartPage != nil {
		v := *s.StartPage
		out.StartPage = &v
	}
	if s.EndPage != nil {
		v := *s.EndPage
		out.EndPage = &v
	}
	return out
}

// Summary is the short human-readable description stored in a job's message.
func (s OcrSettings) Summary() string {
	return fmt.Sprintf("Parser: %s, Method: %s", orDefault(s.Parser, "docling"), orDefault(s.ParseMethod, "auto"))
}

// BackendPayload builds the settings_json form value expected by the OCR backend.
func (s OcrSettings) BackendPayload() map[string]any {
	payload := map[string]any{
		"parser":         orDefault(s.Parser, "docling"),
		"parse_method":   orDefault(s.ParseMethod, "auto"),
		"language":       orDefault(s.Language, "auto"),
		"mode":           orDefault(s.Mode, "balanced"),
		"preserveLayout": s.PreserveLayout,
		"returnLayout":   s.ReturnLayout,
		"preprocess": map[string]any{
			"autoOrientation": s.Preprocess.AutoOrient,
			"deskew":          s.Preprocess.Deskew,
			"denoise":         s.Preprocess.Denoise,
			"binarize":        s.Preprocess.Binarize,
			"contrastBoost":   s.Preprocess.ContrastBoost,
		},
		"extract": map[string]any{
			"tables":    s.Extract.Tables,
			"equations": s.Extract.Equations,
			"images":    s.Extract.Images,
		},
	}
	if s.StartPage != nil {
		payload["startPage"] = *s.StartPage
	}
	if s.EndPage != nil {
		payload["endPage"] = *s.EndPage
	}
	return payload
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
