package extractor

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Pixmap is a rendered page. Samples are tightly packed rows of Channels
// bytes per pixel: 1 is gray, 4 is RGBA with alpha, anything else RGB.
type Pixmap struct {
	Width    int
	Height   int
	Channels int
	Samples  []byte
}

// PixmapFromImage packs img into a 3-channel Pixmap.
func PixmapFromImage(img image.Image) Pixmap {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	samples := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		samples = append(samples, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	return Pixmap{Width: b.Dx(), Height: b.Dy(), Channels: 3, Samples: samples}
}

// Image wraps the samples in the matching image type.
func (p Pixmap) Image() (image.Image, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid pixmap size %dx%d", p.Width, p.Height)
	}
	channels := p.Channels
	if channels != 1 && channels != 4 {
		channels = 3
	}
	n := p.Width * p.Height
	if len(p.Samples) < n*channels {
		return nil, fmt.Errorf("pixmap has %d bytes, need %d", len(p.Samples), n*channels)
	}

	rect := image.Rect(0, 0, p.Width, p.Height)
	switch channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, p.Samples[:n])
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, p.Samples[:n*4])
		return img, nil
	default:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < n*3; i, j = i+3, j+4 {
			img.Pix[j] = p.Samples[i]
			img.Pix[j+1] = p.Samples[i+1]
			img.Pix[j+2] = p.Samples[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	}
}
