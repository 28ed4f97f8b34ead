package hybrid

import (
	"context"
	"fmt"

	"github.com/toricodesthings/pdfmd/internal/extractor"
	"github.com/toricodesthings/pdfmd/internal/quality"
	"github.com/toricodesthings/pdfmd/internal/types"
)

// NeedsOCR scans the first s.PrescanPages pages with a histogram of its own
// and reports whether any of them would be OCR'd. It is always true when
// OCROnlyIfNoTextLayer is off. Pages that cannot be read are skipped; the
// page loop reports them.
func (p *Processor) NeedsOCR(ctx context.Context, src extractor.Source, s types.Settings) (bool, error) {
	if !s.OCROnlyIfNoTextLayer {
		return true, nil
	}

	hist := quality.NewHistogram()
	n := min(src.PageCount(), s.EffectivePrescanPages())
	for idx := 0; idx < n; idx++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		content, err := src.Page(ctx, idx)
		if err != nil {
			p.logger.Warn("prescan page unreadable", "page", idx+1, "error", err)
			continue
		}

		blocks, coverage := content.TextBlockStats()
		q := quality.Analyze(content.Text, blocks, coverage, content.ImageAreaRatio())
		repeated := hist.Observe(quality.Signature(content.Text), q.NonWhitespaceLen)
		if d := quality.Decide(q, repeated); d.NeedsOCR {
			p.logger.Info("ocr likely needed", "prescan_page", idx+1, "reason", d.Reason)
			return true, nil
		}
	}

	p.logger.Info("ocr not needed for prescan pages", "pages", n)
	return false, nil
}

// Prescan opens inputPath and runs NeedsOCR on it.
func (p *Processor) Prescan(ctx context.Context, inputPath string, s types.Settings) (needsOCR bool, totalPages int, err error) {
	src, err := p.open(ctx, inputPath)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}
	defer src.Close()

	totalPages = src.PageCount()
	if totalPages <= 0 {
		return false, 0, ErrEmptyDocument
	}
	needsOCR, err = p.NeedsOCR(ctx, src, s)
	return needsOCR, totalPages, err
}
