package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Letter size, used when neither pdftotext nor pdfcpu report page dimensions.
const (
	fallbackWidth  = 612.0
	fallbackHeight = 792.0
)

// Tools locates the poppler-utils binaries.
type Tools struct {
	PDFToText string
	PDFToPPM  string
	PDFImages string
	Timeout   time.Duration // per command; zero means none
}

func DefaultTools() Tools {
	return Tools{
		PDFToText: "pdftotext",
		PDFToPPM:  "pdftoppm",
		PDFImages: "pdfimages",
	}
}

func (t Tools) withDefaults() Tools {
	d := DefaultTools()
	if t.PDFToText == "" {
		t.PDFToText = d.PDFToText
	}
	if t.PDFToPPM == "" {
		t.PDFToPPM = d.PDFToPPM
	}
	if t.PDFImages == "" {
		t.PDFImages = d.PDFImages
	}
	return t
}

// PopplerSource validates the document with pdfcpu and reads pages through
// poppler-utils.
type PopplerSource struct {
	path  string
	tools Tools
	pages int
	dims  []types.Dim
}

// Open reads and validates the PDF at path. The returned source may report
// zero pages; callers decide whether that is an error.
func Open(ctx context.Context, path string, tools Tools) (*PopplerSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	// Dimensions are a fallback only; a document whose boxes cannot be
	// resolved is still readable.
	dims, _ := pctx.PageDims()

	return &PopplerSource{
		path:  path,
		tools: tools.withDefaults(),
		pages: pctx.PageCount,
		dims:  dims,
	}, nil
}

func (s *PopplerSource) PageCount() int { return s.pages }

func (s *PopplerSource) Close() error { return nil }

func (s *PopplerSource) Page(ctx context.Context, index int) (PageContent, error) {
	if err := s.checkIndex(index); err != nil {
		return PageContent{}, err
	}
	page := strconv.Itoa(index + 1)

	text, err := s.run(ctx, s.tools.PDFToText, "-f", page, "-l", page, "-enc", "UTF-8", s.path, "-")
	if err != nil {
		return PageContent{}, err
	}

	layout, err := s.run(ctx, s.tools.PDFToText, "-bbox-layout", "-f", page, "-l", page, "-enc", "UTF-8", s.path, "-")
	if err != nil {
		return PageContent{}, err
	}
	bbox, err := parseBBoxLayout(bytes.NewReader(layout))
	if err != nil {
		return PageContent{}, err
	}

	list, err := s.run(ctx, s.tools.PDFImages, "-list", "-f", page, "-l", page, s.path)
	if err != nil {
		return PageContent{}, err
	}

	w, h := s.pageSize(index, bbox)
	return PageContent{
		// pdftotext ends every page with a form feed
		Text:   strings.ReplaceAll(string(text), "\f", ""),
		Width:  w,
		Height: h,
		Blocks: bbox.Blocks,
		Images: parseImageList(list),
	}, nil
}

func (s *PopplerSource) Rasterize(ctx context.Context, index int, dpi int) (Pixmap, error) {
	if err := s.checkIndex(index); err != nil {
		return Pixmap{}, err
	}
	page := strconv.Itoa(index + 1)

	out, err := s.run(ctx, s.tools.PDFToPPM,
		"-r", strconv.Itoa(dpi),
		"-f", page,
		"-l", page,
		"-png",
		"-singlefile",
		s.path,
	)
	if err != nil {
		return Pixmap{}, err
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return Pixmap{}, fmt.Errorf("decode raster of page %d: %w", index+1, err)
	}
	return PixmapFromImage(img), nil
}

func (s *PopplerSource) checkIndex(index int) error {
	if index < 0 || index >= s.pages {
		return fmt.Errorf("page index %d out of range [0,%d)", index, s.pages)
	}
	return nil
}

func (s *PopplerSource) pageSize(index int, bbox bboxPage) (float64, float64) {
	if bbox.Width > 0 && bbox.Height > 0 {
		return bbox.Width, bbox.Height
	}
	if index < len(s.dims) && s.dims[index].Width > 0 && s.dims[index].Height > 0 {
		return s.dims[index].Width, s.dims[index].Height
	}
	return fallbackWidth, fallbackHeight
}

func (s *PopplerSource) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.tools.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tools.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return out, nil
}
