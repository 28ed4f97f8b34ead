// Package hybrid converts PDFs page by page, keeping the native text layer
// where it can be trusted and falling back to OCR where it cannot.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/toricodesthings/pdfmd/internal/extractor"
	"github.com/toricodesthings/pdfmd/internal/format"
	"github.com/toricodesthings/pdfmd/internal/ocr"
	"github.com/toricodesthings/pdfmd/internal/preprocess"
	"github.com/toricodesthings/pdfmd/internal/quality"
	"github.com/toricodesthings/pdfmd/internal/types"
)

// Opener opens a document for reading.
type Opener func(ctx context.Context, path string) (extractor.Source, error)

// PopplerOpener opens documents with extractor.Open.
func PopplerOpener(tools extractor.Tools) Opener {
	return func(ctx context.Context, path string) (extractor.Source, error) {
		return extractor.Open(ctx, path, tools)
	}
}

// Callbacks are invoked synchronously from the page loop, in page order.
type Callbacks struct {
	OnProgress func(types.ProgressEvent)
	OnPage     func(result types.PageResult, markdownBlock, textBlock string)
}

// Processor runs conversions. A Processor handles one run at a time; Cancel
// may be called from any goroutine.
type Processor struct {
	logger    *slog.Logger
	open      Opener
	newEngine EngineFactory
	cancelled atomic.Bool
}

type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithOpener(o Opener) Option {
	return func(p *Processor) { p.open = o }
}

func WithEngineFactory(f EngineFactory) Option {
	return func(p *Processor) { p.newEngine = f }
}

func New(opts ...Option) *Processor {
	p := &Processor{
		logger:    slog.Default(),
		open:      PopplerOpener(extractor.DefaultTools()),
		newEngine: ResolveEngine(ocr.Config{Engine: ocr.EngineTesseract}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Cancel asks the current or next run to stop before its next page. Pages
// already in progress complete.
func (p *Processor) Cancel() { p.cancelled.Store(true) }

func (p *Processor) isCancelled(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

// Convert processes every page of inputPath and writes <name>.md, <name>.txt
// and <name>.meta.json into outputDir (the input's directory when empty).
// Setup failures return an error wrapping one of the Err* sentinels; page
// failures are recorded on the result. Cancelling ctx stops the run the same
// way Cancel does: the page in progress finishes and partial artifacts are
// written.
func (p *Processor) Convert(ctx context.Context, inputPath, outputDir string, s types.Settings, cb Callbacks) (types.ConversionResult, error) {
	defer p.cancelled.Store(false)
	start := time.Now()

	// backend calls run under work; ctx is only checked between pages
	work := context.WithoutCancel(ctx)

	// 1) resolve paths
	input, err := filepath.Abs(inputPath)
	if err != nil {
		return types.ConversionResult{}, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}
	if st, err := os.Stat(input); err != nil || !st.Mode().IsRegular() {
		return types.ConversionResult{}, fmt.Errorf("%w: %s", ErrInputNotFound, input)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(input)
	}
	outDir, err := filepath.Abs(outputDir)
	if err != nil {
		return types.ConversionResult{}, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return types.ConversionResult{}, fmt.Errorf("create output dir: %w", err)
	}

	// 2) open document
	src, err := p.open(work, input)
	if err != nil {
		return types.ConversionResult{}, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}
	defer src.Close()

	total := src.PageCount()
	if total <= 0 {
		return types.ConversionResult{}, ErrEmptyDocument
	}
	p.logger.Info("starting conversion", "input", input, "pages", total)

	r := &run{
		p:        p,
		src:      src,
		settings: s,
		hist:     quality.NewHistogram(),
		engine:   &lazyEngine{factory: p.newEngine, logger: p.logger},
	}
	defer r.engine.close()

	// 3) initialize OCR up front when the first pages already need it
	if !p.isCancelled(ctx) {
		needsOCR, err := p.NeedsOCR(ctx, src, s)
		if err != nil && !p.isCancelled(ctx) {
			return types.ConversionResult{}, err
		}
		if needsOCR && !p.isCancelled(ctx) {
			if _, err := r.engine.get(ctx, s); err != nil && ctx.Err() == nil {
				return types.ConversionResult{}, err
			}
		}
	}

	// 4) sequential page loop
	res := types.ConversionResult{
		InputPath:  input,
		OutputDir:  outDir,
		TotalPages: total,
		Errors:     []string{},
	}
	var blocks []string
	for idx := 0; idx < total; idx++ {
		pageNumber := idx + 1
		if p.isCancelled(ctx) {
			p.logger.Info("cancellation requested", "page", pageNumber)
			res.Cancelled = true
			break
		}

		pageStart := time.Now()
		mode, text, err := r.page(work, idx)
		if err != nil {
			if isEngineError(err) {
				return types.ConversionResult{}, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("Page %d: %v", pageNumber, err))
			p.logger.Error("page failed", "page", pageNumber, "mode", mode, "error", err)
		} else if mode == types.ModeOCR {
			res.OCRPages++
		} else {
			res.ExtractedPages++
		}

		block := format.PageBlock(pageNumber, text)
		blocks = append(blocks, block)

		pr := types.PageResult{
			PageNumber: pageNumber,
			Mode:       mode,
			Duration:   time.Since(pageStart),
			TextLength: utf8.RuneCountInString(text),
		}
		if err != nil {
			pr.Error = err.Error()
		}
		res.Pages = append(res.Pages, pr)
		res.ProcessedPages++

		elapsed := time.Since(start)
		remaining := total - res.ProcessedPages
		eta := time.Duration(float64(elapsed) / float64(res.ProcessedPages) * float64(remaining))

		if cb.OnPage != nil {
			cb.OnPage(pr, block, block)
		}
		if cb.OnProgress != nil {
			cb.OnProgress(types.ProgressEvent{
				CurrentPage: pageNumber,
				TotalPages:  total,
				Mode:        mode,
				Elapsed:     elapsed,
				ETA:         eta,
			})
		}
	}

	// 5) artifacts
	content := format.Combine(blocks)
	res.Duration = time.Since(start)
	if err := writeArtifacts(&res, input, content, content); err != nil {
		return res, err
	}

	p.logger.Info("conversion completed",
		"processed", res.ProcessedPages,
		"extracted", res.ExtractedPages,
		"ocr", res.OCRPages,
		"cancelled", res.Cancelled,
		"errors", len(res.Errors),
		"signatures", r.hist.Len(),
		"duration", res.Duration,
	)
	return res, nil
}

// run is the state owned by a single Convert call.
type run struct {
	p        *Processor
	src      extractor.Source
	settings types.Settings
	hist     *quality.Histogram
	engine   *lazyEngine
}

// page returns the mode chosen for the page and its text. On error the text
// is whatever was produced before the failure.
func (r *run) page(ctx context.Context, idx int) (types.PageMode, string, error) {
	content, err := r.src.Page(ctx, idx)
	if err != nil {
		return types.ModeExtract, "", err
	}

	blocks, coverage := content.TextBlockStats()
	q := quality.Analyze(content.Text, blocks, coverage, content.ImageAreaRatio())
	sig := quality.Signature(content.Text)
	repeated := r.hist.Observe(sig, q.NonWhitespaceLen)
	if repeated {
		r.p.logger.Debug("repeated page signature", "page", idx+1, "seen", r.hist.Count(sig))
	}
	decision := quality.Decide(q, repeated)

	if r.settings.OCROnlyIfNoTextLayer && !decision.NeedsOCR {
		r.p.logger.Debug("page extracted", "page", idx+1, "reason", decision.Reason)
		return types.ModeExtract, r.normalize(content.Text), nil
	}

	r.p.logger.Debug("page needs ocr", "page", idx+1, "reason", decision.Reason, "forced", !r.settings.OCROnlyIfNoTextLayer)
	text, err := r.ocrPage(ctx, idx)
	if err != nil {
		return types.ModeOCR, "", err
	}
	return types.ModeOCR, r.normalize(text), nil
}

func (r *run) ocrPage(ctx context.Context, idx int) (string, error) {
	eng, err := r.engine.get(ctx, r.settings)
	if err != nil {
		return "", err
	}

	pm, err := r.src.Rasterize(ctx, idx, r.settings.EffectiveDPI())
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}
	img, err := pm.Image()
	if err != nil {
		return "", err
	}

	text, err := eng.Recognize(ctx, preprocess.Image(img, r.settings), ocr.Language)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return text, nil
}

func (r *run) normalize(text string) string {
	if r.settings.Dehyphenate {
		return format.Dehyphenate(text)
	}
	return text
}
