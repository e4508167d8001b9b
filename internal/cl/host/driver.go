// Package host implements the cl device API in pure Go.
//
// A host device behaves like an OpenCL 1.2 CPU device: contexts own their
// allocations, queues execute commands in order on a background goroutine,
// and kernels run one work-group per task on a bounded pool. Kernel source is
// OpenCL C; the build step checks it and links each __kernel entry point
// against a native Go implementation registered with WithKernels.
package host

import (
	"runtime"
	"sync/atomic"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// DeviceConfig describes one emulated device.
type DeviceConfig struct {
	Name             string
	Type             cl.DeviceType
	ComputeUnits     int
	MaxWorkGroupSize int
	ImageSupport     bool
	// Formats lists the 2D image formats the device accepts. Nil selects
	// RGBA/UNormInt8, BGRA/UNormInt8 and RGBA/Float.
	Formats []cl.ImageFormat
	// LoseAfter marks the device lost once this many queue commands have
	// executed. Zero disables the fault.
	LoseAfter int
}

// PlatformConfig describes one emulated platform.
type PlatformConfig struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceConfig
}

const (
	defaultMaxWorkGroupSize = 1024
	maxImageDimension       = 16384
)

var defaultFormats = []cl.ImageFormat{
	cl.FormatRGBA8,
	{ChannelOrder: cl.ChannelOrderBGRA, ChannelDataType: cl.ChannelDataTypeUNormInt8},
	{ChannelOrder: cl.ChannelOrderRGBA, ChannelDataType: cl.ChannelDataTypeFloat},
}

// DefaultPlatform is a single platform exposing one CPU device sized to the
// machine.
func DefaultPlatform() PlatformConfig {
	return PlatformConfig{
		Name:    "Go Host Platform",
		Vendor:  "imagefilter2d",
		Version: "OpenCL 1.2 host",
		Devices: []DeviceConfig{{
			Name:             "Go host device",
			Type:             cl.DeviceTypeCPU,
			ComputeUnits:     runtime.NumCPU(),
			MaxWorkGroupSize: defaultMaxWorkGroupSize,
			ImageSupport:     true,
		}},
	}
}

// Stats counts live objects across every context of a driver.
type Stats struct {
	Contexts int
	Queues   int
	Programs int
	Kernels  int
	Images   int
	Samplers int
}

// Option configures a Driver.
type Option func(*Driver)

// WithPlatforms replaces the default platform table.
func WithPlatforms(platforms ...PlatformConfig) Option {
	return func(d *Driver) {
		d.configs = platforms
	}
}

// WithKernels registers native kernel implementations by entry-point name.
func WithKernels(kernels map[string]NativeKernel) Option {
	return func(d *Driver) {
		for name, k := range kernels {
			d.kernels[name] = k
		}
	}
}

// Driver is the host compute runtime.
type Driver struct {
	configs   []PlatformConfig
	platforms []cl.Platform
	kernels   map[string]NativeKernel

	contexts atomic.Int64
	queues   atomic.Int64
	programs atomic.Int64
	kernelsN atomic.Int64
	images   atomic.Int64
	samplers atomic.Int64
}

// New creates a host driver. Without WithPlatforms it exposes DefaultPlatform.
func New(opts ...Option) *Driver {
	d := &Driver{
		configs: []PlatformConfig{DefaultPlatform()},
		kernels: make(map[string]NativeKernel),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.platforms = make([]cl.Platform, 0, len(d.configs))
	for _, pc := range d.configs {
		p := &platform{config: pc}
		for _, dc := range pc.Devices {
			p.devices = append(p.devices, newDevice(d, dc))
		}
		d.platforms = append(d.platforms, p)
	}
	return d
}

// Name implements cl.Driver.
func (d *Driver) Name() string {
	return "host"
}

// Platforms implements cl.Driver.
func (d *Driver) Platforms() ([]cl.Platform, error) {
	return d.platforms, nil
}

// Stats reports the objects currently alive.
func (d *Driver) Stats() Stats {
	return Stats{
		Contexts: int(d.contexts.Load()),
		Queues:   int(d.queues.Load()),
		Programs: int(d.programs.Load()),
		Kernels:  int(d.kernelsN.Load()),
		Images:   int(d.images.Load()),
		Samplers: int(d.samplers.Load()),
	}
}

type platform struct {
	config  PlatformConfig
	devices []*Device
}

func (p *platform) Info() cl.PlatformInfo {
	info := cl.PlatformInfo{
		Name:    p.config.Name,
		Vendor:  p.config.Vendor,
		Version: p.config.Version,
		Devices: make([]cl.DeviceInfo, len(p.devices)),
	}
	for i, d := range p.devices {
		info.Devices[i] = d.Info()
	}
	return info
}

func (p *platform) Devices(t cl.DeviceType) ([]cl.Device, error) {
	var out []cl.Device
	for _, d := range p.devices {
		if t == cl.DeviceTypeDefault || d.config.Type == t {
			out = append(out, d)
			if t == cl.DeviceTypeDefault {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, cl.NewStatusError("clGetDeviceIDs", cl.DeviceNotFound)
	}
	return out, nil
}

// Device is an emulated compute device.
type Device struct {
	driver *Driver
	config DeviceConfig

	executed atomic.Int64
	lost     atomic.Bool
}

func newDevice(d *Driver, cfg DeviceConfig) *Device {
	if cfg.ComputeUnits <= 0 {
		cfg.ComputeUnits = 1
	}
	if cfg.MaxWorkGroupSize <= 0 {
		cfg.MaxWorkGroupSize = defaultMaxWorkGroupSize
	}
	if cfg.Formats == nil {
		cfg.Formats = defaultFormats
	}
	if cfg.Type == "" {
		cfg.Type = cl.DeviceTypeCPU
	}
	return &Device{driver: d, config: cfg}
}

// Info implements cl.Device.
func (d *Device) Info() cl.DeviceInfo {
	info := cl.DeviceInfo{
		Name:             d.config.Name,
		Vendor:           "imagefilter2d",
		Version:          "OpenCL 1.2 host",
		Type:             d.config.Type,
		MaxComputeUnits:  uint32(d.config.ComputeUnits),
		MaxWorkGroupSize: d.config.MaxWorkGroupSize,
		ImageSupport:     d.config.ImageSupport,
	}
	if d.config.ImageSupport {
		info.Image2DMaxWidth = maxImageDimension
		info.Image2DMaxHeight = maxImageDimension
	}
	return info
}

// CreateContext implements cl.Device.
func (d *Device) CreateContext() (cl.Context, error) {
	if d.lost.Load() {
		return nil, cl.NewStatusError("clCreateContext", cl.DeviceNotAvailable)
	}
	d.driver.contexts.Add(1)
	return &Context{device: d}, nil
}

// commandExecuted counts a completed command and trips LoseAfter.
func (d *Device) commandExecuted() {
	n := d.executed.Add(1)
	if d.config.LoseAfter > 0 && n >= int64(d.config.LoseAfter) {
		d.lost.Store(true)
	}
}

func (d *Device) supportsFormat(f cl.ImageFormat) bool {
	for _, sf := range d.config.Formats {
		if sf == f {
			return true
		}
	}
	return false
}
