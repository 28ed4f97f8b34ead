package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
)

// Tesseract runs the tesseract command line tool, feeding each image as an
// uncompressed TIFF on stdin.
type Tesseract struct {
	path    string
	dpi     int
	version string
}

// NewTesseract probes path with --version before returning the engine.
func NewTesseract(ctx context.Context, path string, dpi int) (*Tesseract, error) {
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotExecutable, path, err)
	}
	return &Tesseract{path: path, dpi: dpi, version: firstLine(string(out))}, nil
}

func (t *Tesseract) Name() string { return "tesseract" }

// Path is the binary in use.
func (t *Tesseract) Path() string { return t.path }

// Version is the first line of the --version banner.
func (t *Tesseract) Version() string { return t.version }

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	var in bytes.Buffer
	if err := tiff.Encode(&in, img, &tiff.Options{Compression: tiff.Uncompressed}); err != nil {
		return "", fmt.Errorf("encode tiff: %w", err)
	}

	args := []string{"stdin", "stdout", "-l", lang}
	if t.dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(t.dpi))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stdin = &in
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("tesseract: %w", err)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, msg)
	}
	// tesseract terminates each page with a form feed
	return strings.TrimRight(stdout.String(), "\f"), nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
