package filter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

func TestErrorKindsMatchOnlyTheirSentinel(t *testing.T) {
	cause := cl.NewStatusError("clSomething", cl.InvalidValue)
	errs := []error{
		&NoPlatformError{Err: cause},
		&NoDeviceError{Err: cause},
		&BuildError{Err: cause},
		&UnsupportedFormatError{Err: cause},
		&DispatchError{Err: cause},
		&DeviceLostError{Err: cause},
	}
	sentinels := []error{ErrNoPlatform, ErrNoDevice, ErrBuild, ErrUnsupportedFormat, ErrDispatch, ErrDeviceLost}

	for i, err := range errs {
		wrapped := fmt.Errorf("outer: %w", err)
		for j, s := range sentinels {
			assert.Equal(t, i == j, errors.Is(wrapped, s), "%T vs sentinel %d", err, j)
		}
		assert.Equal(t, cl.InvalidValue, cl.StatusOf(wrapped))
	}
}

func TestErrorMessagesNameStage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&NoPlatformError{Driver: "opencl"}, "select: no compute platforms found (driver opencl)"},
		{&NoDeviceError{Platform: "P", Tried: []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU}}, `select: no usable device on platform "P" (tried GPU, CPU)`},
		{&BuildError{Device: "D", Log: "line 1"}, "build: program build failed on \"D\"\nline 1"},
		{&UnsupportedFormatError{Device: "D", Format: cl.FormatRGBA8, Width: 2, Height: 3}, `upload: "D" rejected 2x3 RGBA/UNormInt8 image`},
		{&UnsupportedFormatError{Stage: StageAllocate, Device: "D", Format: cl.FormatRGBA8, Width: 2, Height: 3}, `allocate: "D" rejected 2x3 RGBA/UNormInt8 image`},
		{
			&UnsupportedFormatError{Stage: StageAllocate, Device: "D", Format: cl.FormatRGBA8, Width: 9, Height: 1, Err: cl.NewStatusError("clCreateImage", cl.InvalidImageSize)},
			`allocate: "D" cannot hold a 9x1 image: clCreateImage: CL_INVALID_IMAGE_SIZE (-40)`,
		},
		{&DispatchError{Device: "D"}, `dispatch: command failed on "D"`},
		{&DispatchError{Device: "D", Kernel: "k", Global: [2]int{32, 16}, Local: [2]int{16, 16}}, `dispatch: kernel "k" on "D" (global 32x16, local 16x16)`},
		{&DeviceLostError{Stage: StageDownload, Device: "D"}, `download: device "D" lost`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
