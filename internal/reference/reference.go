// Package reference computes filters on the CPU without any device, for
// checking device output.
package reference

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/convolution"

	"github.com/cwbudde/imagefilter2d/internal/kernels"
)

// Tolerance is the largest per-channel deviation accepted between device
// and reference output. The two round differently at .5 boundaries.
const Tolerance = 1

// Gaussian3x3 applies the same 3x3 Gaussian as the gaussian_filter kernel,
// clamping reads at the image edges. Every channel, alpha included, is
// filtered straight, without premultiplying.
func Gaussian3x3(img *image.NRGBA) *image.NRGBA {
	k := convolution.NewKernel(3, 3)
	for i, w := range kernels.GaussianWeights {
		k.Matrix[i] = float64(w) / kernels.GaussianDivisor
	}

	// Same bytes under the RGBA type, rebased to the origin, so bild reads
	// them as they are instead of converting.
	r := img.Rect
	w, h := r.Dx(), r.Dy()
	raw := &image.RGBA{Pix: img.Pix[img.PixOffset(r.Min.X, r.Min.Y):], Stride: img.Stride, Rect: image.Rect(0, 0, w, h)}
	conv := convolution.Convolve(raw, k, &convolution.Options{Wrap: false})

	b := conv.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := conv.Pix[conv.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], row[:w*4])
	}
	return out
}

// Diff summarizes how far two same-sized images are apart.
type Diff struct {
	// MSE is the mean squared error over the R, G and B channels.
	MSE float64
	// MaxDelta is the largest absolute difference in any channel.
	MaxDelta int
	// Pixels counts pixels with any channel differing.
	Pixels int
}

// Within reports whether every channel is inside tolerance.
func (d Diff) Within(tolerance int) bool {
	return d.MaxDelta <= tolerance
}

// Compare measures current against want.
func Compare(current, want *image.NRGBA) (Diff, error) {
	cb, wb := current.Bounds(), want.Bounds()
	if cb.Dx() != wb.Dx() || cb.Dy() != wb.Dy() {
		return Diff{}, fmt.Errorf("image dimensions differ: %dx%d vs %dx%d", cb.Dx(), cb.Dy(), wb.Dx(), wb.Dy())
	}

	width, height := cb.Dx(), cb.Dy()
	var d Diff
	var sum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := current.PixOffset(cb.Min.X+x, cb.Min.Y+y)
			j := want.PixOffset(wb.Min.X+x, wb.Min.Y+y)

			differs := false
			for ch := 0; ch < 4; ch++ {
				delta := int(current.Pix[i+ch]) - int(want.Pix[j+ch])
				if delta < 0 {
					delta = -delta
				}
				if delta > d.MaxDelta {
					d.MaxDelta = delta
				}
				if delta != 0 {
					differs = true
				}
				if ch < 3 {
					sum += float64(delta * delta)
				}
			}
			if differs {
				d.Pixels++
			}
		}
	}
	if n := width * height; n > 0 {
		d.MSE = sum / float64(n*3)
	}
	return d, nil
}
