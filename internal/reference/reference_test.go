package reference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/imagefilter2d/internal/filter"
)

func noise(w, h int, opaque bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(12345)
	for i := 0; i < len(img.Pix); i += 4 {
		for ch := 0; ch < 4; ch++ {
			seed = seed*1664525 + 1013904223
			img.Pix[i+ch] = uint8(seed >> 24)
		}
		if opaque {
			img.Pix[i+3] = 255
		}
	}
	return img
}

func opaqueNoise(w, h int) *image.NRGBA {
	return noise(w, h, true)
}

func TestCompareIdentical(t *testing.T) {
	img := opaqueNoise(9, 4)
	d, err := Compare(img, img)
	require.NoError(t, err)
	assert.Zero(t, d.MSE)
	assert.Zero(t, d.MaxDelta)
	assert.Zero(t, d.Pixels)
	assert.True(t, d.Within(0))
}

func TestCompareDifferent(t *testing.T) {
	white := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	black := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			white.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
			black.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
		}
	}

	d, err := Compare(white, black)
	require.NoError(t, err)
	assert.Equal(t, 255.0*255.0, d.MSE)
	assert.Equal(t, 255, d.MaxDelta)
	assert.Equal(t, 4, d.Pixels)
	assert.False(t, d.Within(Tolerance))
}

func TestCompareSizeMismatch(t *testing.T) {
	_, err := Compare(image.NewNRGBA(image.Rect(0, 0, 2, 2)), image.NewNRGBA(image.Rect(0, 0, 3, 2)))
	assert.ErrorContains(t, err, "dimensions differ")
}

func TestGaussianUniformImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []byte{128, 64, 32, 255})
	}
	d, err := Compare(Gaussian3x3(img), img)
	require.NoError(t, err)
	assert.True(t, d.Within(Tolerance), "max delta %d", d.MaxDelta)
}

func TestHostDeviceMatchesReference(t *testing.T) {
	p, err := filter.New(filter.HostDriver(), filter.Options{})
	require.NoError(t, err)
	defer p.Close()

	tests := []struct {
		name string
		src  *image.NRGBA
	}{
		{"opaque", noise(45, 30, true)},
		{"translucent", noise(45, 30, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.RunImage(tt.src)
			require.NoError(t, err)

			d, err := Compare(got, Gaussian3x3(tt.src))
			require.NoError(t, err)
			assert.True(t, d.Within(Tolerance), "max delta %d, mse %.3f", d.MaxDelta, d.MSE)
			assert.Less(t, d.MSE, 1.0)
		})
	}
}

func TestGaussianFiltersStraightAlpha(t *testing.T) {
	// Opaque red next to nearly transparent blue: colour channels blend
	// by weight alone, not by alpha.
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	for x := 1; x < 4; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{0, 0, 255, 10})
	}

	got := Gaussian3x3(img).NRGBAAt(1, 0)
	assert.InDelta(t, 64, int(got.R), Tolerance)
	assert.InDelta(t, 0, int(got.G), Tolerance)
	assert.InDelta(t, 191, int(got.B), Tolerance)
	assert.InDelta(t, 71, int(got.A), Tolerance)

	p, err := filter.New(filter.HostDriver(), filter.Options{})
	require.NoError(t, err)
	defer p.Close()
	dev, err := p.RunImage(img)
	require.NoError(t, err)

	d, err := Compare(dev, Gaussian3x3(img))
	require.NoError(t, err)
	assert.True(t, d.Within(Tolerance), "max delta %d", d.MaxDelta)
}

func TestGaussianOnSubImage(t *testing.T) {
	full := noise(10, 8, false)
	sub := full.SubImage(image.Rect(3, 2, 9, 7)).(*image.NRGBA)

	got := Gaussian3x3(sub)
	assert.Equal(t, image.Rect(0, 0, 6, 5), got.Bounds())
	assert.Equal(t, 6*4, got.Stride)

	packed := image.NewNRGBA(image.Rect(0, 0, 6, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			packed.SetNRGBA(x, y, sub.NRGBAAt(3+x, 2+y))
		}
	}
	assert.Equal(t, Gaussian3x3(packed).Pix, got.Pix)
}
