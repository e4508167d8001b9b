package filter

import (
	"fmt"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// PixelFormat is the only layout the pipeline moves: four normalized 8-bit
// channels in R,G,B,A order.
var PixelFormat = cl.FormatRGBA8

const bytesPerPixel = 4

// Upload creates a read-only device image initialized from pix, which must
// hold exactly width*height*4 bytes of RGBA. The caller releases the image.
func (s *Session) Upload(pix []byte, width, height int) (cl.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%s: invalid image size %dx%d", StageUpload, width, height)
	}
	if want := width * height * bytesPerPixel; len(pix) != want {
		return nil, fmt.Errorf("%s: buffer holds %d bytes, %dx%d RGBA needs %d", StageUpload, len(pix), width, height, want)
	}
	if err := s.negotiateFormat(StageUpload, cl.MemReadOnly, width, height); err != nil {
		return nil, err
	}

	img, err := s.ctx.CreateImage2D(cl.MemReadOnly|cl.MemCopyHostPtr, PixelFormat, width, height, pix)
	if err != nil {
		return nil, s.imageError(StageUpload, width, height, err)
	}
	return img, nil
}

// AllocateOutput creates a write-only image of the given size with no
// initial content. The caller releases the image.
func (s *Session) AllocateOutput(width, height int) (cl.Image, error) {
	if err := s.negotiateFormat(StageAllocate, cl.MemWriteOnly, width, height); err != nil {
		return nil, err
	}
	img, err := s.ctx.CreateImage2D(cl.MemWriteOnly, PixelFormat, width, height, nil)
	if err != nil {
		return nil, s.imageError(StageAllocate, width, height, err)
	}
	return img, nil
}

func (s *Session) negotiateFormat(stage string, flags cl.MemFlags, width, height int) error {
	maxW, maxH := s.info.Image2DMaxWidth, s.info.Image2DMaxHeight
	if maxW > 0 && maxH > 0 && (width > maxW || height > maxH) {
		return &UnsupportedFormatError{
			Stage:  stage,
			Device: s.info.Name,
			Format: PixelFormat,
			Width:  width,
			Height: height,
			Err: fmt.Errorf("exceeds device maximum %dx%d: %w", maxW, maxH,
				cl.NewStatusError("clCreateImage", cl.InvalidImageSize)),
		}
	}

	formats, err := s.ctx.SupportedImageFormats(flags)
	if err != nil {
		return s.imageError(stage, width, height, err)
	}
	for _, f := range formats {
		if f == PixelFormat {
			return nil
		}
	}
	return &UnsupportedFormatError{
		Stage:  stage,
		Device: s.info.Name,
		Format: PixelFormat,
		Width:  width,
		Height: height,
		Err:    cl.NewStatusError("clGetSupportedImageFormats", cl.ImageFormatNotSupported),
	}
}

func (s *Session) imageError(stage string, width, height int, err error) error {
	if cl.StatusOf(err) == cl.DeviceNotAvailable {
		return &DeviceLostError{Stage: stage, Device: s.info.Name, Err: err}
	}
	return &UnsupportedFormatError{
		Stage:  stage,
		Device: s.info.Name,
		Format: PixelFormat,
		Width:  width,
		Height: height,
		Err:    err,
	}
}

// Download blocks until img has been read back into a new width*height*4
// buffer. dispatched is the event of the command that wrote img; when it
// failed, its error is reported instead of the read's.
func (s *Session) Download(q cl.CommandQueue, img cl.Image, dispatched cl.Event) ([]byte, error) {
	w, h := img.Width(), img.Height()
	out := make([]byte, w*h*bytesPerPixel)

	_, readErr := q.EnqueueReadImage(img, true, [3]int{0, 0, 0}, [3]int{w, h, 1}, out)

	if dispatched != nil {
		if err := dispatched.Wait(); err != nil {
			if cl.StatusOf(err) == cl.DeviceNotAvailable {
				return nil, &DeviceLostError{Stage: StageDispatch, Device: s.info.Name, Err: err}
			}
			return nil, &DispatchError{Device: s.info.Name, Err: err}
		}
	}
	if readErr != nil {
		if deviceLost(readErr) {
			return nil, &DeviceLostError{Stage: StageDownload, Device: s.info.Name, Err: readErr}
		}
		return nil, fmt.Errorf("%s: %w", StageDownload, readErr)
	}
	return out, nil
}
