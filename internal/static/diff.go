package static

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
)

type Metric string

const (
	// MetricSSIM is the complement of the mean structural similarity.
	MetricSSIM Metric = "ssim"
	// MetricMAD is the mean absolute pixel difference normalized to [0,1].
	MetricMAD Metric = "mad"
)

const (
	DefaultScale = 0.25

	ssimBlock = 8
	ssimC1    = (0.01 * 255) * (0.01 * 255)
	ssimC2    = (0.03 * 255) * (0.03 * 255)
)

// decodeGray decodes an encoded frame and downsamples it to a grayscale
// image scaled by scale on each axis.
func decodeGray(data []byte, scale float64) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	src := img.Bounds()
	w := max(1, int(math.Round(float64(src.Dx())*scale)))
	h := max(1, int(math.Round(float64(src.Dy())*scale)))

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst, nil
}

// Difference returns 0 for identical frames and approaches 1 as they diverge.
// Frames of different sizes are maximally different.
func Difference(metric Metric, a, b *image.Gray) float64 {
	if a.Bounds().Size() != b.Bounds().Size() {
		return 1
	}
	switch metric {
	case MetricMAD:
		return meanAbsDiff(a, b)
	default:
		return clamp01(1 - ssim(a, b))
	}
}

func meanAbsDiff(a, b *image.Gray) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	var sum float64
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			sum += math.Abs(float64(ra[x]) - float64(rb[x]))
		}
	}
	return sum / float64(w*h) / 255
}

// ssim averages the structural similarity index over non-overlapping
// ssimBlock x ssimBlock windows.
func ssim(a, b *image.Gray) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	var total float64
	blocks := 0
	for by := 0; by < h; by += ssimBlock {
		for bx := 0; bx < w; bx += ssimBlock {
			total += blockSSIM(a, b, bx, by, min(bx+ssimBlock, w), min(by+ssimBlock, h))
			blocks++
		}
	}
	if blocks == 0 {
		return 1
	}
	return total / float64(blocks)
}

func blockSSIM(a, b *image.Gray, x0, y0, x1, y1 int) float64 {
	n := float64((x1 - x0) * (y1 - y0))

	var sumA, sumB float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sumA += float64(a.Pix[y*a.Stride+x])
			sumB += float64(b.Pix[y*b.Stride+x])
		}
	}
	muA, muB := sumA/n, sumB/n

	var varA, varB, cov float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			da := float64(a.Pix[y*a.Stride+x]) - muA
			db := float64(b.Pix[y*b.Stride+x]) - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*muA*muB + ssimC1) * (2*cov + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}

// stdDev is the standard deviation of the pixel values normalized to [0,1].
func stdDev(img *image.Gray) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	n := float64(w * h)
	var sum float64
	for y := 0; y < h; y++ {
		for _, p := range img.Pix[y*img.Stride : y*img.Stride+w] {
			sum += float64(p)
		}
	}
	mean := sum / n
	var sq float64
	for y := 0; y < h; y++ {
		for _, p := range img.Pix[y*img.Stride : y*img.Stride+w] {
			d := float64(p) - mean
			sq += d * d
		}
	}
	return math.Sqrt(sq/n) / 255
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
