package filter

import (
	"fmt"
	"strings"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// Pipeline stages, as reported by the error types.
const (
	StageSelect   = "select"
	StageBuild    = "build"
	StageUpload   = "upload"
	StageAllocate = "allocate"
	StageDispatch = "dispatch"
	StageDownload = "download"
)

// Sentinels for errors.Is. Every error of a kind matches its sentinel.
var (
	ErrNoPlatform        = &NoPlatformError{}
	ErrNoDevice          = &NoDeviceError{}
	ErrBuild             = &BuildError{}
	ErrUnsupportedFormat = &UnsupportedFormatError{}
	ErrDispatch          = &DispatchError{}
	ErrDeviceLost        = &DeviceLostError{}
)

// NoPlatformError means the driver reported no platforms.
type NoPlatformError struct {
	Driver string
	Err    error
}

func (e *NoPlatformError) Error() string {
	msg := StageSelect + ": no compute platforms found"
	if e.Driver != "" {
		msg += " (driver " + e.Driver + ")"
	}
	return withCause(msg, e.Err)
}

func (e *NoPlatformError) Unwrap() error { return e.Err }

func (e *NoPlatformError) Is(target error) bool {
	_, ok := target.(*NoPlatformError)
	return ok
}

// NoDeviceError means no device of any preferred class could be used.
type NoDeviceError struct {
	Platform string
	Tried    []cl.DeviceType
	Err      error
}

func (e *NoDeviceError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, t := range e.Tried {
		tried[i] = string(t)
	}
	msg := fmt.Sprintf("%s: no usable device on platform %q (tried %s)",
		StageSelect, e.Platform, strings.Join(tried, ", "))
	return withCause(msg, e.Err)
}

func (e *NoDeviceError) Unwrap() error { return e.Err }

func (e *NoDeviceError) Is(target error) bool {
	_, ok := target.(*NoDeviceError)
	return ok
}

// BuildError carries the device compiler's log verbatim.
type BuildError struct {
	Device string
	Log    string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%s: program build failed on %q", StageBuild, e.Device)
	msg = withCause(msg, e.Err)
	if e.Log != "" {
		msg += "\n" + e.Log
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

func (e *BuildError) Is(target error) bool {
	_, ok := target.(*BuildError)
	return ok
}

// UnsupportedFormatError means the device cannot create the image: either
// the layout is not supported or the size exceeds the device limits.
type UnsupportedFormatError struct {
	// Stage is StageUpload for the input image, StageAllocate for the output.
	Stage  string
	Device string
	Format cl.ImageFormat
	Width  int
	Height int
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	stage := e.Stage
	if stage == "" {
		stage = StageUpload
	}
	var msg string
	if cl.StatusOf(e.Err) == cl.InvalidImageSize {
		msg = fmt.Sprintf("%s: %q cannot hold a %dx%d image", stage, e.Device, e.Width, e.Height)
	} else {
		msg = fmt.Sprintf("%s: %q rejected %dx%d %s image", stage, e.Device, e.Width, e.Height, e.Format)
	}
	return withCause(msg, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

func (e *UnsupportedFormatError) Is(target error) bool {
	_, ok := target.(*UnsupportedFormatError)
	return ok
}

// DispatchError covers argument binding, invalid work-group sizes and
// failed kernel execution.
type DispatchError struct {
	Device string
	Kernel string
	Global [2]int
	Local  [2]int
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Kernel == "" {
		return withCause(fmt.Sprintf("%s: command failed on %q", StageDispatch, e.Device), e.Err)
	}
	msg := fmt.Sprintf("%s: kernel %q on %q (global %dx%d, local %dx%d)",
		StageDispatch, e.Kernel, e.Device, e.Global[0], e.Global[1], e.Local[0], e.Local[1])
	return withCause(msg, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool {
	_, ok := target.(*DispatchError)
	return ok
}

// DeviceLostError means the device stopped responding during a stage.
type DeviceLostError struct {
	Stage  string
	Device string
	Err    error
}

func (e *DeviceLostError) Error() string {
	msg := fmt.Sprintf("%s: device %q lost", e.Stage, e.Device)
	return withCause(msg, e.Err)
}

func (e *DeviceLostError) Unwrap() error { return e.Err }

func (e *DeviceLostError) Is(target error) bool {
	_, ok := target.(*DeviceLostError)
	return ok
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}

// deviceLost reports whether err indicates the device went away.
func deviceLost(err error) bool {
	switch cl.StatusOf(err) {
	case cl.DeviceNotAvailable, cl.OutOfResources, cl.OutOfHostMemory:
		return true
	}
	return false
}
