//go:build gosseract

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes through libtesseract. One client is reused for the
// lifetime of the engine.
type Gosseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	dpi    int
}

func newGosseract(dpi int) (Engine, error) {
	c := gosseract.NewClient()
	if c.Version() == "" {
		c.Close()
		return nil, fmt.Errorf("%w: libtesseract did not report a version", ErrNotExecutable)
	}
	return &Gosseract{client: c, dpi: dpi}, nil
}

func (g *Gosseract) Name() string { return "gosseract" }

func (g *Gosseract) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if g.dpi > 0 {
		if err := g.client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(g.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := g.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := g.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

func (g *Gosseract) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client.Close()
}
