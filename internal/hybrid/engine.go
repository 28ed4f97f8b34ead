package hybrid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/toricodesthings/pdfmd/internal/ocr"
	"github.com/toricodesthings/pdfmd/internal/types"
)

// EngineFactory builds the OCR engine for a run.
type EngineFactory func(ctx context.Context, s types.Settings) (ocr.Engine, error)

// ResolveEngine returns a factory over ocr.Resolve. The run's tesseract path
// and DPI override those in base.
func ResolveEngine(base ocr.Config) EngineFactory {
	return func(ctx context.Context, s types.Settings) (ocr.Engine, error) {
		cfg := base
		if s.TesseractPath != "" {
			cfg.TesseractPath = s.TesseractPath
		}
		cfg.DPI = s.EffectiveDPI()
		return ocr.Resolve(ctx, cfg)
	}
}

type engineStatus int

const (
	engineUninitialized engineStatus = iota
	engineReady
	engineFailed
)

// lazyEngine initializes the OCR engine at most once per run and caches the
// outcome, including failure. A setup interrupted by ctx is not cached.
type lazyEngine struct {
	factory EngineFactory
	logger  *slog.Logger
	status  engineStatus
	engine  ocr.Engine
	err     error
}

func (l *lazyEngine) get(ctx context.Context, s types.Settings) (ocr.Engine, error) {
	switch l.status {
	case engineReady:
		return l.engine, nil
	case engineFailed:
		return nil, l.err
	}

	eng, err := l.factory(ctx, s)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.status = engineFailed
		l.err = classifyEngineError(err)
		l.logger.Error("ocr engine unavailable", "error", err)
		return nil, l.err
	}

	l.status = engineReady
	l.engine = eng
	l.logger.Info("ocr engine ready", "engine", eng.Name())
	return eng, nil
}

func (l *lazyEngine) close() {
	if c, ok := l.engine.(io.Closer); ok {
		_ = c.Close()
	}
}

func classifyEngineError(err error) error {
	switch {
	case isEngineError(err):
		return err
	case errors.Is(err, ocr.ErrBinaryNotFound):
		return fmt.Errorf("%w (%v)", ErrOCRUnavailable, err)
	default:
		return fmt.Errorf("%w (%v)", ErrOCRNotExecutable, err)
	}
}
