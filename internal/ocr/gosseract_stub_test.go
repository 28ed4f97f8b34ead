//go:build !gosseract

package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestResolveGosseractNotCompiled(t *testing.T) {
	_, err := Resolve(context.Background(), Config{Engine: EngineGosseract})
	if !errors.Is(err, ErrNotExecutable) {
		t.Errorf("expected ErrNotExecutable, got %v", err)
	}
}
