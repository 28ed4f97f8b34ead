package types

import "time"

// PageMode is how a page's text was obtained. Assigned once per page.
type PageMode string

const (
	ModeExtract PageMode = "EXTRACT"
	ModeOCR     PageMode = "OCR"
)

// Settings is the immutable input to a single conversion run.
type Settings struct {
	OCRDPI                 int    `json:"ocrDpi" mapstructure:"ocr_dpi" yaml:"ocr_dpi"`
	TesseractPath          string `json:"tesseractPath" mapstructure:"tesseract_path" yaml:"tesseract_path"`
	Dehyphenate            bool   `json:"dehyphenate" mapstructure:"dehyphenate" yaml:"dehyphenate"`
	OCROnlyIfNoTextLayer   bool   `json:"ocrOnlyIfNoTextLayer" mapstructure:"ocr_only_if_no_text_layer" yaml:"ocr_only_if_no_text_layer"`
	PreprocessGrayscale    bool   `json:"preprocessGrayscale" mapstructure:"preprocess_grayscale" yaml:"preprocess_grayscale"`
	PreprocessAutocontrast bool   `json:"preprocessAutocontrast" mapstructure:"preprocess_autocontrast" yaml:"preprocess_autocontrast"`
	PreprocessThreshold    bool   `json:"preprocessThreshold" mapstructure:"preprocess_threshold" yaml:"preprocess_threshold"`
	PrescanPages           int    `json:"prescanPages" mapstructure:"prescan_pages" yaml:"prescan_pages"`
}

// MinOCRDPI is the lowest rasterization resolution accepted.
const MinOCRDPI = 72

// DefaultSettings mirrors the defaults of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		OCRDPI:                 300,
		OCROnlyIfNoTextLayer:   true,
		PreprocessGrayscale:    true,
		PreprocessAutocontrast: true,
		PrescanPages:           3,
	}
}

// EffectiveDPI clamps the configured DPI to MinOCRDPI.
func (s Settings) EffectiveDPI() int {
	if s.OCRDPI < MinOCRDPI {
		return MinOCRDPI
	}
	return s.OCRDPI
}

// EffectivePrescanPages returns the prescan window, never below 1.
func (s Settings) EffectivePrescanPages() int {
	if s.PrescanPages < 1 {
		return 1
	}
	return s.PrescanPages
}

// PageQuality holds the text-layer metrics of one page. Ratios are in [0,1].
type PageQuality struct {
	RawTextLen         int     `json:"rawTextLen"`
	NonWhitespaceLen   int     `json:"nonWhitespaceLen"`
	AlphaRatio         float64 `json:"alphaRatio"`
	UniqueTokenCount   int     `json:"uniqueTokenCount"`
	TextBlockCount     int     `json:"textBlockCount"`
	BBoxCoverage       float64 `json:"bboxCoverage"`
	ImageAreaRatio     float64 `json:"imageAreaRatio"`
	ControlCharRatio   float64 `json:"controlCharRatio"`
	LoneCharTokenRatio float64 `json:"loneCharTokenRatio"`
	LooksGarbage       bool    `json:"looksGarbage"`
}

type PageResult struct {
	PageNumber int           `json:"page_number"` // 1-based
	Mode       PageMode      `json:"mode"`
	Duration   time.Duration `json:"-"`
	TextLength int           `json:"text_length"`
	Error      string        `json:"error"`
}

// ProgressEvent is emitted after each page.
type ProgressEvent struct {
	CurrentPage int
	TotalPages  int
	Mode        PageMode
	Elapsed     time.Duration
	ETA         time.Duration
}

type ConversionResult struct {
	InputPath      string
	OutputDir      string
	MarkdownPath   string
	TextPath       string
	MetadataPath   string
	TotalPages     int
	ProcessedPages int
	ExtractedPages int
	OCRPages       int
	Cancelled      bool
	Duration       time.Duration
	Errors         []string
	Pages          []PageResult
}

// ── HTTP service types ───────────────────────────────────────────────────────

// SettingsOverrides lets a request override individual conversion settings.
type SettingsOverrides struct {
	OCRDPI                 *int  `json:"ocrDpi"`
	Dehyphenate            *bool `json:"dehyphenate"`
	OCROnlyIfNoTextLayer   *bool `json:"ocrOnlyIfNoTextLayer"`
	PreprocessGrayscale    *bool `json:"preprocessGrayscale"`
	PreprocessAutocontrast *bool `json:"preprocessAutocontrast"`
	PreprocessThreshold    *bool `json:"preprocessThreshold"`
	PrescanPages           *int  `json:"prescanPages"`
}

// Apply returns base with every non-nil override applied.
func (o SettingsOverrides) Apply(base Settings) Settings {
	if o.OCRDPI != nil {
		base.OCRDPI = *o.OCRDPI
	}
	if o.Dehyphenate != nil {
		base.Dehyphenate = *o.Dehyphenate
	}
	if o.OCROnlyIfNoTextLayer != nil {
		base.OCROnlyIfNoTextLayer = *o.OCROnlyIfNoTextLayer
	}
	if o.PreprocessGrayscale != nil {
		base.PreprocessGrayscale = *o.PreprocessGrayscale
	}
	if o.PreprocessAutocontrast != nil {
		base.PreprocessAutocontrast = *o.PreprocessAutocontrast
	}
	if o.PreprocessThreshold != nil {
		base.PreprocessThreshold = *o.PreprocessThreshold
	}
	if o.PrescanPages != nil {
		base.PrescanPages = *o.PrescanPages
	}
	return base
}

type ConvertRequest struct {
	PresignedURL string            `json:"presignedUrl"`
	Options      SettingsOverrides `json:"options"`
}

type ConvertAccepted struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

type PrescanResult struct {
	Success    bool    `json:"success"`
	NeedsOCR   bool    `json:"needsOcr"`
	TotalPages int     `json:"totalPages"`
	Error      *string `json:"error,omitempty"`
}

type PageSummary struct {
	PageNumber      int     `json:"pageNumber"`
	Mode            string  `json:"mode"`
	DurationSeconds float64 `json:"durationSeconds"`
	TextLength      int     `json:"textLength"`
	Error           string  `json:"error,omitempty"`
}

type JobProgress struct {
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	Mode        string  `json:"mode"`
	ElapsedSecs float64 `json:"elapsedSeconds"`
	ETASecs     float64 `json:"etaSeconds"`
}

type JobStatus struct {
	JobID          string        `json:"jobId"`
	Status         string        `json:"status"` // "queued" | "running" | "completed" | "cancelled" | "failed"
	Progress       *JobProgress  `json:"progress,omitempty"`
	Markdown       string        `json:"markdown,omitempty"`
	TotalPages     int           `json:"totalPages,omitempty"`
	ProcessedPages int           `json:"processedPages,omitempty"`
	ExtractedPages int           `json:"extractedPages,omitempty"`
	OCRPages       int           `json:"ocrPages,omitempty"`
	Pages          []PageSummary `json:"pages,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Error          *string       `json:"error,omitempty"`
}
