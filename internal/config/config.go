package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/toricodesthings/pdfmd/internal/extractor"
	"github.com/toricodesthings/pdfmd/internal/ocr"
	"github.com/toricodesthings/pdfmd/internal/types"
)

type Config struct {
	Conversion types.Settings  `mapstructure:"conversion"`
	OCR        OCRConfig       `mapstructure:"ocr"`
	Extractor  ExtractorConfig `mapstructure:"extractor"`
	OutputDir  string          `mapstructure:"output_dir"`
	Server     ServerConfig    `mapstructure:"server"`
}

type OCRConfig struct {
	Engine  string        `mapstructure:"engine"`
	Mistral MistralConfig `mapstructure:"mistral"`
}

type MistralConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Endpoint   string        `mapstructure:"endpoint"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ExtractorConfig struct {
	PDFToTextPath  string        `mapstructure:"pdftotext_path"`
	PDFToPPMPath   string        `mapstructure:"pdftoppm_path"`
	PDFImagesPath  string        `mapstructure:"pdfimages_path"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`

	InternalSharedSecret string `mapstructure:"internal_shared_secret"`

	// Limits
	MaxJSONBodyBytes int64 `mapstructure:"max_json_body_bytes"`
	MaxPDFBytes      int64 `mapstructure:"max_pdf_bytes"`
	MaxHeaderBytes   int   `mapstructure:"max_header_bytes"`

	// Concurrency
	MaxConcurrentRequests int64 `mapstructure:"max_concurrent_requests"`
	MaxConcurrentJobs     int64 `mapstructure:"max_concurrent_jobs"`

	// Server timeouts
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`

	// Request timeouts
	PrescanTimeout time.Duration `mapstructure:"prescan_timeout"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`

	// Download
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	DownloadRetries int           `mapstructure:"download_retries"`

	// rate limiting (per IP)
	RateLimitEvery time.Duration `mapstructure:"rate_limit_every"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`

	// housekeeping
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	JobRetention    time.Duration `mapstructure:"job_retention"`
	WorkDir         string        `mapstructure:"work_dir"`

	// health
	HealthDegradeRatio float64 `mapstructure:"health_degrade_ratio"`
}

// defaultValues is the single source of defaults, keyed by viper path.
func defaultValues() map[string]any {
	s := types.DefaultSettings()
	return map[string]any{
		"conversion.ocr_dpi":                   s.OCRDPI,
		"conversion.tesseract_path":            s.TesseractPath,
		"conversion.dehyphenate":               s.Dehyphenate,
		"conversion.ocr_only_if_no_text_layer": s.OCROnlyIfNoTextLayer,
		"conversion.preprocess_grayscale":      s.PreprocessGrayscale,
		"conversion.preprocess_autocontrast":   s.PreprocessAutocontrast,
		"conversion.preprocess_threshold":      s.PreprocessThreshold,
		"conversion.prescan_pages":             s.PrescanPages,

		"ocr.engine":              ocr.EngineTesseract,
		"ocr.mistral.api_key":     "${MISTRAL_API_KEY}",
		"ocr.mistral.model":       "mistral-ocr-latest",
		"ocr.mistral.endpoint":    "https://api.mistral.ai/v1/ocr",
		"ocr.mistral.rate_limit":  6.0,
		"ocr.mistral.max_retries": 5,
		"ocr.mistral.timeout":     2 * time.Minute,

		"extractor.pdftotext_path":  "pdftotext",
		"extractor.pdftoppm_path":   "pdftoppm",
		"extractor.pdfimages_path":  "pdfimages",
		"extractor.command_timeout": time.Minute,

		"output_dir": "",

		"server.port":                    "8080",
		"server.internal_shared_secret":  "",
		"server.max_json_body_bytes":     int64(2 << 20),
		"server.max_pdf_bytes":           int64(200 << 20),
		"server.max_header_bytes":        1 << 20,
		"server.max_concurrent_requests": int64(15),
		"server.max_concurrent_jobs":     int64(3),
		"server.read_header_timeout":     10 * time.Second,
		"server.read_timeout":            30 * time.Second,
		"server.write_timeout":           60 * time.Second,
		"server.idle_timeout":            60 * time.Second,
		"server.prescan_timeout":         60 * time.Second,
		"server.job_timeout":             30 * time.Minute,
		"server.download_timeout":        25 * time.Second,
		"server.download_retries":        3,
		"server.rate_limit_every":        600 * time.Millisecond,
		"server.rate_limit_burst":        20,
		"server.cleanup_interval":        5 * time.Minute,
		"server.job_retention":           time.Hour,
		"server.work_dir":                "",
		"server.health_degrade_ratio":    0.9,
	}
}

// envAliases are unprefixed variable names honoured alongside PDFMD_*.
var envAliases = map[string]string{
	"server.port":                   "PORT",
	"server.internal_shared_secret": "INTERNAL_SHARED_SECRET",
	"conversion.tesseract_path":     "TESSERACT_PATH",
}

// Settings returns the conversion settings with DPI and prescan window
// brought into range.
func (c *Config) Settings() types.Settings {
	s := c.Conversion
	s.OCRDPI = s.EffectiveDPI()
	s.PrescanPages = s.EffectivePrescanPages()
	return s
}

// Tools returns the poppler binaries to use.
func (c *Config) Tools() extractor.Tools {
	return extractor.Tools{
		PDFToText: c.Extractor.PDFToTextPath,
		PDFToPPM:  c.Extractor.PDFToPPMPath,
		PDFImages: c.Extractor.PDFImagesPath,
		Timeout:   c.Extractor.CommandTimeout,
	}
}

// OCREngine returns the engine configuration with ${ENV_VAR} references in
// the API key resolved.
func (c *Config) OCREngine() ocr.Config {
	m := c.OCR.Mistral
	return ocr.Config{
		Engine:        c.OCR.Engine,
		TesseractPath: c.Conversion.TesseractPath,
		DPI:           c.Settings().OCRDPI,
		Mistral: ocr.MistralConfig{
			APIKey:     ResolveEnvVars(m.APIKey),
			Model:      m.Model,
			Endpoint:   m.Endpoint,
			RateLimit:  m.RateLimit,
			MaxRetries: m.MaxRetries,
			Timeout:    m.Timeout,
		},
	}
}

// Validate checks the settings every front-end needs.
func (c *Config) Validate() error {
	switch strings.ToLower(c.OCR.Engine) {
	case ocr.EngineTesseract, ocr.EngineGosseract, ocr.EngineMistral:
	default:
		return fmt.Errorf("ocr.engine must be one of %s, %s or %s, got %q",
			ocr.EngineTesseract, ocr.EngineGosseract, ocr.EngineMistral, c.OCR.Engine)
	}
	if c.Conversion.OCRDPI < types.MinOCRDPI {
		return fmt.Errorf("conversion.ocr_dpi must be at least %d", types.MinOCRDPI)
	}
	return nil
}

// ValidateServer additionally checks the HTTP service settings.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(c.Server.InternalSharedSecret)) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	if c.Server.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("server.max_concurrent_jobs must be positive")
	}
	return nil
}
