package preprocess

import "image"

// DefaultThreshold is used when a histogram has no usable split.
const DefaultThreshold = 127

// Histogram counts the pixels of each gray level.
func Histogram(g *image.Gray) [256]int {
	var h [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)]
		for _, v := range row {
			h[v]++
		}
	}
	return h
}

// OtsuThreshold returns the cutoff t maximizing between-class variance, where
// the background class holds levels below t and the foreground the rest.
// Candidates leaving either class empty are skipped.
func OtsuThreshold(h [256]int) int {
	total := 0
	sumTotal := 0.0
	for i, n := range h {
		total += n
		sumTotal += float64(i * n)
	}
	if total <= 0 {
		return DefaultThreshold
	}

	threshold := DefaultThreshold
	best := -1.0
	weightBG := 0
	sumBG := 0.0
	for t := 1; t < 256; t++ {
		weightBG += h[t-1]
		sumBG += float64((t - 1) * h[t-1])
		if weightBG == 0 {
			continue
		}
		weightFG := total - weightBG
		if weightFG == 0 {
			break
		}

		meanBG := sumBG / float64(weightBG)
		meanFG := (sumTotal - sumBG) / float64(weightFG)
		d := meanBG - meanFG
		variance := float64(weightBG) * float64(weightFG) * d * d
		if variance > best {
			best = variance
			threshold = t
		}
	}
	return threshold
}

// Binarize maps levels at or above t to 255 and the rest to 0.
func Binarize(g *image.Gray, t int) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if int(g.GrayAt(x, y).Y) >= t {
				out.Pix[out.PixOffset(x, y)] = 255
			}
		}
	}
	return out
}
