// Package extractor reads pages out of PDF documents: native text, layout
// geometry, embedded image placement and rasterized pixels.
package extractor

import (
	"context"
	"strings"
)

// Source is an open document. Page indexes are 0-based.
type Source interface {
	PageCount() int
	Page(ctx context.Context, index int) (PageContent, error)
	Rasterize(ctx context.Context, index int, dpi int) (Pixmap, error)
	Close() error
}

// Rect is an axis-aligned box in PDF points.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Area() float64 {
	return max(r.X1-r.X0, 0) * max(r.Y1-r.Y0, 0)
}

// Block is a text-bearing layout block.
type Block struct {
	Rect Rect
	Text string
}

// PageContent is everything the quality analysis needs from one page.
type PageContent struct {
	Text   string
	Width  float64
	Height float64
	Blocks []Block
	Images []Rect
}

func (p PageContent) area() float64 {
	return max(p.Width*p.Height, 1)
}

// TextBlockStats counts blocks with non-blank text and returns the share of
// the page they cover, capped at 1.
func (p PageContent) TextBlockStats() (count int, coverage float64) {
	total := 0.0
	for _, b := range p.Blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		count++
		total += b.Rect.Area()
	}
	return count, min(total/p.area(), 1)
}

// ImageAreaRatio is the summed area of image placements over the page area,
// capped at 1.
func (p PageContent) ImageAreaRatio() float64 {
	total := 0.0
	for _, r := range p.Images {
		total += r.Area()
	}
	return min(total/p.area(), 1)
}
