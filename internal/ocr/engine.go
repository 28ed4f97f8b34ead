// Package ocr turns page images into text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// Language is the only recognition language used.
const Language = "eng"

var (
	ErrBinaryNotFound = errors.New("tesseract binary not found")
	ErrNotExecutable  = errors.New("tesseract binary could not be executed")
	ErrUnknownEngine  = errors.New("unknown OCR engine")
)

// Engine recognizes text in a preprocessed image. An empty string is a valid
// result.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// Engine names accepted by Resolve.
const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
	EngineMistral   = "mistral"
)

type Config struct {
	Engine        string
	TesseractPath string
	DPI           int
	Mistral       MistralConfig
}

type MistralConfig struct {
	APIKey     string
	Model      string
	Endpoint   string
	RateLimit  float64 // requests per second; zero disables limiting
	MaxRetries int
	Timeout    time.Duration
}

// Resolve builds the configured engine and checks that it can run.
func Resolve(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", EngineTesseract:
		path := DetectTesseract(cfg.TesseractPath)
		if path == "" {
			return nil, ErrBinaryNotFound
		}
		return NewTesseract(ctx, path, cfg.DPI)
	case EngineGosseract:
		return newGosseract(cfg.DPI)
	case EngineMistral:
		return NewMistral(cfg.Mistral)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}
