package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 50), B: 99, A: 255})
		}
	}
	return img
}

func TestSaveLoadPNGIsLossless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	src := testImage()

	require.NoError(t, Save(path, src))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, src.Pix, got.Pix)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "a.bmp"), testImage()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.bmp", entries[0].Name())
}

func TestSaveUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	err := Save(filepath.Join(dir, "out.webp"), testImage())
	assert.ErrorIs(t, err, imaging.ErrUnsupportedFormat)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.ErrorContains(t, err, "failed to decode image")
}

func TestDecodeConvertsToNRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gray))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 200, B: 200, A: 255}, img.NRGBAAt(1, 1))
	assert.Equal(t, 3*4, img.Stride)
}

func TestPipes(t *testing.T) {
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)

	oldIn, oldOut := stdin, stdout
	stdin, stdout = inR, outW
	t.Cleanup(func() { stdin, stdout = oldIn, oldOut })

	src := testImage()
	go func() {
		_ = png.Encode(inW, src)
		inW.Close()
	}()

	img, err := Load(PipeName)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, img.Pix)

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(outR)
		done <- buf.Bytes()
	}()
	require.NoError(t, Save(PipeName, img))
	outW.Close()

	decoded, err := png.Decode(bytes.NewReader(<-done))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())
}

func TestFormatFor(t *testing.T) {
	f, err := FormatFor(PipeName)
	require.NoError(t, err)
	assert.Equal(t, imaging.PNG, f)

	f, err = FormatFor("photo.JPG")
	require.NoError(t, err)
	assert.Equal(t, imaging.JPEG, f)

	f, err = FormatFor("scan.tiff")
	require.NoError(t, err)
	assert.Equal(t, imaging.TIFF, f)
}
