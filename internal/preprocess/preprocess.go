// Package preprocess prepares rasterized pages for OCR.
package preprocess

import (
	"image"
	"image/color"

	"github.com/toricodesthings/pdfmd/internal/types"
)

// Image applies the enabled steps in a fixed order: grayscale, autocontrast,
// threshold. The result is *image.RGBA when no step converts to a single
// channel and *image.Gray otherwise.
func Image(src image.Image, s types.Settings) image.Image {
	var out image.Image = ToRGB(src)

	if s.PreprocessGrayscale {
		out = Grayscale(out)
	}

	if s.PreprocessAutocontrast {
		out = Autocontrast(out)
	}

	if s.PreprocessThreshold {
		gray, ok := out.(*image.Gray)
		if !ok {
			gray = Grayscale(out)
		}
		out = Binarize(gray, OtsuThreshold(Histogram(gray)))
	}

	return out
}

// ToRGB copies src into an opaque RGBA image. Alpha is discarded rather than
// composited, so transparent pixels keep their color channels.
func ToRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// Grayscale converts to 8-bit luma using ITU-R 601-2 weights.
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	rgb, ok := src.(*image.RGBA)
	if !ok {
		rgb = ToRGB(src)
	}
	b := rgb.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := rgb.PixOffset(b.Min.X+x, b.Min.Y+y)
			dst.Pix[dst.PixOffset(x, y)] = luma(rgb.Pix[i], rgb.Pix[i+1], rgb.Pix[i+2])
		}
	}
	return dst
}

func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}
