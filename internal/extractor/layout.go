package extractor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// bboxPage is one <page> of pdftotext -bbox-layout output.
type bboxPage struct {
	Width  float64
	Height float64
	Blocks []Block
}

// parseBBoxLayout reads the XHTML written by pdftotext -bbox-layout. Block
// text is the block's words joined by spaces, one line per <line>.
func parseBBoxLayout(r io.Reader) (bboxPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return bboxPage{}, fmt.Errorf("parse bbox layout: %w", err)
	}

	var page bboxPage
	if p := doc.Find("page").First(); p.Length() > 0 {
		page.Width = attrFloat(p, "width")
		page.Height = attrFloat(p, "height")
	}

	doc.Find("block").Each(func(_ int, s *goquery.Selection) {
		var lines []string
		s.Find("line").Each(func(_ int, l *goquery.Selection) {
			var words []string
			l.Find("word").Each(func(_ int, w *goquery.Selection) {
				if t := strings.TrimSpace(w.Text()); t != "" {
					words = append(words, t)
				}
			})
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		})
		page.Blocks = append(page.Blocks, Block{
			Rect: Rect{
				X0: attrFloat(s, "xmin"),
				Y0: attrFloat(s, "ymin"),
				X1: attrFloat(s, "xmax"),
				Y1: attrFloat(s, "ymax"),
			},
			Text: strings.Join(lines, "\n"),
		})
	})
	return page, nil
}

// attrFloat reads a numeric attribute. The HTML parser lower-cases names.
func attrFloat(s *goquery.Selection, name string) float64 {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseImageList reads pdfimages -list output and returns the displayed
// size of each image in points. Placement is not reported by pdfimages, so
// every rect is anchored at the origin. Masks are skipped since they overlay
// an image already listed.
func parseImageList(out []byte) []Rect {
	var rects []Rect
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 14 {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue // header or separator
		}
		switch fields[2] {
		case "image", "stencil":
		default:
			continue
		}

		w, errW := strconv.ParseFloat(fields[3], 64)
		h, errH := strconv.ParseFloat(fields[4], 64)
		xppi, errX := strconv.ParseFloat(fields[12], 64)
		yppi, errY := strconv.ParseFloat(fields[13], 64)
		if errW != nil || errH != nil || errX != nil || errY != nil || xppi <= 0 || yppi <= 0 {
			continue
		}
		rects = append(rects, Rect{X1: w / xppi * 72, Y1: h / yppi * 72})
	}
	return rects
}
