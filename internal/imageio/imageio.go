// Package imageio decodes input images into tightly packed RGBA and writes
// results back out. The path "-" names stdin or stdout, which must then be
// a pipe rather than a terminal.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/term"
)

// PipeName selects stdin for input and stdout for output.
const PipeName = "-"

var (
	stdin  = os.Stdin
	stdout = os.Stdout
)

// ErrTerminal is returned when "-" is used while stdin or stdout is a terminal.
var ErrTerminal = errors.New("`-` should be used with a pipe")

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Decode reads any registered format (PNG, JPEG, GIF, BMP, TIFF, WebP),
// applies EXIF orientation and returns the pixels as NRGBA anchored at the
// origin.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return imaging.Clone(img), nil
}

// Load decodes the image at path, or stdin for PipeName.
func Load(path string) (*image.NRGBA, error) {
	if path == PipeName {
		if isTerminal(stdin) {
			return nil, fmt.Errorf("stdin: %w", ErrTerminal)
		}
		return Decode(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the source file: %w", err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("Image loaded", "path", path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

// FormatFor picks the encoder from the file extension. Stdout gets PNG.
func FormatFor(path string) (imaging.Format, error) {
	if path == PipeName {
		return imaging.PNG, nil
	}
	f, err := imaging.FormatFromFilename(path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Encode writes img to w in format.
func Encode(w io.Writer, img image.Image, format imaging.Format) error {
	return imaging.Encode(w, img, format, imaging.JPEGQuality(95))
}

// Save writes img to path, or stdout for PipeName. Files are encoded to a
// temporary sibling and renamed into place, so a failed save leaves no
// partial output.
func Save(path string, img image.Image) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	if path == PipeName {
		if isTerminal(stdout) {
			return fmt.Errorf("stdout: %w", ErrTerminal)
		}
		return Encode(stdout, img, format)
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	tempPath := tmp.Name()

	if err := Encode(tmp, img, format); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp output file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename output file: %w", err)
	}

	slog.Debug("Image saved", "path", path, "format", format.String())
	return nil
}
