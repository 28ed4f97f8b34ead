package preprocess

import "image"

// Autocontrast stretches each channel so its darkest value maps to 0 and its
// lightest to 255. Flat channels are left untouched. Gray input stays gray;
// anything else is handled as RGB.
func Autocontrast(src image.Image) image.Image {
	switch img := src.(type) {
	case *image.Gray:
		out := image.NewGray(img.Bounds())
		lut := stretchLUT(Histogram(img))
		for y := out.Rect.Min.Y; y < out.Rect.Max.Y; y++ {
			for x := out.Rect.Min.X; x < out.Rect.Max.X; x++ {
				out.Pix[out.PixOffset(x, y)] = lut[img.GrayAt(x, y).Y]
			}
		}
		return out
	default:
		rgb := ToRGB(src)
		for ch := 0; ch < 3; ch++ {
			lut := stretchLUT(channelHistogram(rgb.Pix, ch))
			for i := ch; i < len(rgb.Pix); i += 4 {
				rgb.Pix[i] = lut[rgb.Pix[i]]
			}
		}
		return rgb
	}
}

// channelHistogram counts one channel of tightly packed RGBA pixels.
func channelHistogram(pix []uint8, ch int) [256]int {
	var h [256]int
	for i := ch; i < len(pix); i += 4 {
		h[pix[i]]++
	}
	return h
}

func stretchLUT(h [256]int) [256]uint8 {
	var lut [256]uint8
	lo, hi := 0, 255
	for lo < 256 && h[lo] == 0 {
		lo++
	}
	for hi >= 0 && h[hi] == 0 {
		hi--
	}
	if hi <= lo {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	scale := 255.0 / float64(hi-lo)
	offset := -float64(lo) * scale
	for i := range lut {
		v := int(float64(i)*scale + offset)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}
