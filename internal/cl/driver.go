// Package cl defines the device-abstraction API shared by the compute drivers.
//
// The shapes follow OpenCL 1.2: a Driver exposes platforms, a platform exposes
// devices, and a device creates a Context that owns every allocation made
// within it. Work is submitted through an in-order CommandQueue. Two drivers
// implement the API: package opencl (cgo, built with -tags gpu) and package
// host (pure Go, always available).
package cl

// Driver is an entry point into a compute runtime.
type Driver interface {
	// Name identifies the driver in logs ("opencl", "host").
	Name() string

	// Platforms lists the installed platforms in runtime order.
	// An empty list is not an error.
	Platforms() ([]Platform, error)
}

// Platform groups the devices exposed by one vendor runtime.
type Platform interface {
	Info() PlatformInfo

	// Devices returns the devices of the requested class. A platform with
	// no such device returns an empty list or a DeviceNotFound status.
	Devices(t DeviceType) ([]Device, error)
}

// Device is an opaque handle to a compute unit.
type Device interface {
	Info() DeviceInfo

	// CreateContext binds a new execution scope to this device.
	CreateContext() (Context, error)
}

// Context owns every device-resident object created within it.
// Release frees anything still alive, in reverse creation order.
type Context interface {
	Device() Device

	CreateCommandQueue() (CommandQueue, error)

	// BuildProgram compiles source for the context's device. On failure the
	// returned error is a *BuildFailure carrying the compiler log.
	BuildProgram(source string) (Program, error)

	// SupportedImageFormats lists the 2D formats usable with flags.
	SupportedImageFormats(flags MemFlags) ([]ImageFormat, error)

	// CreateImage2D allocates an image. With MemCopyHostPtr, host must hold
	// exactly width*height*bytesPerPixel bytes; otherwise host must be nil.
	CreateImage2D(flags MemFlags, format ImageFormat, width, height int, host []byte) (Image, error)

	CreateSampler(desc SamplerDesc) (Sampler, error)

	Release()
}

// Program is an executable built for one device.
type Program interface {
	// CreateKernel looks up a __kernel entry point by name.
	CreateKernel(name string) (Kernel, error)
	Release()
}

// Kernel is an entry point with bound arguments.
type Kernel interface {
	Name() string

	// SetArgs binds arguments in declaration order. Supported values are
	// Image, Sampler and int32.
	SetArgs(args ...any) error
	Release()
}

// CommandQueue executes commands in submission order on one device.
type CommandQueue interface {
	// EnqueueNDRangeKernel submits k over a 2D grid without blocking. Global
	// must be a multiple of local on each axis.
	EnqueueNDRangeKernel(k Kernel, global, local [2]int) (Event, error)

	// EnqueueReadImage copies region from img into dst, a tightly packed
	// buffer. With blocking set the call returns after the copy completed.
	EnqueueReadImage(img Image, blocking bool, origin, region [3]int, dst []byte) (Event, error)

	// Finish blocks until every submitted command has completed.
	Finish() error
	Release()
}

// Event tracks a submitted command.
type Event interface {
	// Wait blocks until the command completes and returns its failure, if any.
	Wait() error
	Release()
}

// Image is a device-resident 2D pixel buffer.
type Image interface {
	Width() int
	Height() int
	Format() ImageFormat
	Flags() MemFlags
	Release()
}

// Sampler resolves image reads inside a kernel.
type Sampler interface {
	Desc() SamplerDesc
	Release()
}

// BuildFailure is returned by BuildProgram when compilation fails.
type BuildFailure struct {
	Err error
	Log string
}

func (e *BuildFailure) Error() string {
	return e.Err.Error()
}

func (e *BuildFailure) Unwrap() error {
	return e.Err
}

// BytesPerPixel returns the element size of f, or 0 for unknown formats.
func BytesPerPixel(f ImageFormat) int {
	channels := 0
	switch f.ChannelOrder {
	case ChannelOrderR:
		channels = 1
	case ChannelOrderRGBA, ChannelOrderBGRA, ChannelOrderARGB:
		channels = 4
	}
	switch f.ChannelDataType {
	case ChannelDataTypeUNormInt8:
		return channels
	case ChannelDataTypeUNormInt16:
		return channels * 2
	case ChannelDataTypeFloat:
		return channels * 4
	}
	return 0
}
