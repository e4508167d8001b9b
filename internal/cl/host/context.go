package host

import (
	"sync"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

type releaser interface {
	Release()
}

// Context owns the objects created on a host device.
type Context struct {
	device *Device

	mu       sync.Mutex
	owned    []releaser
	released bool
}

// Device implements cl.Context.
func (c *Context) Device() cl.Device {
	return c.device
}

func (c *Context) own(r releaser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return cl.NewStatusError("context", cl.InvalidContext)
	}
	c.owned = append(c.owned, r)
	return nil
}

// forget drops r from the owned list once it has been released directly.
func (c *Context) forget(r releaser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.owned {
		if o == r {
			c.owned = append(c.owned[:i], c.owned[i+1:]...)
			return
		}
	}
}

func (c *Context) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.released
}

// CreateCommandQueue implements cl.Context.
func (c *Context) CreateCommandQueue() (cl.CommandQueue, error) {
	if !c.alive() {
		return nil, cl.NewStatusError("clCreateCommandQueue", cl.InvalidContext)
	}
	q := newQueue(c)
	if err := c.own(q); err != nil {
		q.Release()
		return nil, err
	}
	return q, nil
}

// BuildProgram implements cl.Context.
func (c *Context) BuildProgram(source string) (cl.Program, error) {
	if !c.alive() {
		return nil, cl.NewStatusError("clBuildProgram", cl.InvalidContext)
	}
	entries, buildLog := compile(source, c.device.driver.kernels)
	if buildLog != "" {
		return nil, &cl.BuildFailure{
			Err: cl.NewStatusError("clBuildProgram", cl.BuildProgramFailure),
			Log: buildLog,
		}
	}

	p := &Program{ctx: c, entries: entries}
	c.device.driver.programs.Add(1)
	if err := c.own(p); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// SupportedImageFormats implements cl.Context.
func (c *Context) SupportedImageFormats(_ cl.MemFlags) ([]cl.ImageFormat, error) {
	if !c.device.config.ImageSupport {
		return nil, nil
	}
	out := make([]cl.ImageFormat, len(c.device.config.Formats))
	copy(out, c.device.config.Formats)
	return out, nil
}

// CreateImage2D implements cl.Context.
func (c *Context) CreateImage2D(flags cl.MemFlags, format cl.ImageFormat, width, height int, host []byte) (cl.Image, error) {
	const op = "clCreateImage"

	if !c.alive() {
		return nil, cl.NewStatusError(op, cl.InvalidContext)
	}
	if !c.device.config.ImageSupport {
		return nil, cl.NewStatusError(op, cl.InvalidOperation)
	}
	if !validAccess(flags) {
		return nil, cl.NewStatusError(op, cl.InvalidValue)
	}
	bpp := cl.BytesPerPixel(format)
	if bpp == 0 {
		return nil, cl.NewStatusError(op, cl.InvalidImageFormatDescriptor)
	}
	if !c.device.supportsFormat(format) {
		return nil, cl.NewStatusError(op, cl.ImageFormatNotSupported)
	}
	if width <= 0 || height <= 0 || width > maxImageDimension || height > maxImageDimension {
		return nil, cl.NewStatusError(op, cl.InvalidImageSize)
	}

	size := width * height * bpp
	copyHost := flags&cl.MemCopyHostPtr != 0
	if copyHost != (host != nil) || (copyHost && len(host) != size) {
		return nil, cl.NewStatusError(op, cl.InvalidHostPtr)
	}

	img := &Image{
		ctx:    c,
		flags:  flags,
		format: format,
		width:  width,
		height: height,
		bpp:    bpp,
		pix:    make([]byte, size),
	}
	if copyHost {
		copy(img.pix, host)
	}

	c.device.driver.images.Add(1)
	if err := c.own(img); err != nil {
		img.Release()
		return nil, err
	}
	return img, nil
}

func validAccess(flags cl.MemFlags) bool {
	n := 0
	for _, f := range []cl.MemFlags{cl.MemReadWrite, cl.MemWriteOnly, cl.MemReadOnly} {
		if flags&f != 0 {
			n++
		}
	}
	return n == 1
}

// CreateSampler implements cl.Context.
func (c *Context) CreateSampler(desc cl.SamplerDesc) (cl.Sampler, error) {
	const op = "clCreateSampler"

	if !c.alive() {
		return nil, cl.NewStatusError(op, cl.InvalidContext)
	}
	if !c.device.config.ImageSupport {
		return nil, cl.NewStatusError(op, cl.InvalidOperation)
	}
	// Kernels address host images with integer coordinates only.
	if desc.Filter != cl.FilterNearest || desc.NormalizedCoords || desc.Addressing == cl.AddressRepeat {
		return nil, cl.NewStatusError(op, cl.InvalidValue)
	}

	s := &Sampler{ctx: c, desc: desc}
	c.device.driver.samplers.Add(1)
	if err := c.own(s); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// Release implements cl.Context. Owned objects are released newest first,
// after every queue has drained.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	owned := c.owned
	c.owned = nil
	c.mu.Unlock()

	// Queues drain before the objects their commands reference go away.
	for _, r := range owned {
		if q, ok := r.(*queue); ok {
			q.Release()
		}
	}
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Release()
	}
	c.device.driver.contexts.Add(-1)
}

// Image is a host-resident image object.
type Image struct {
	ctx    *Context
	flags  cl.MemFlags
	format cl.ImageFormat
	width  int
	height int
	bpp    int
	pix    []byte

	once sync.Once
}

func (i *Image) Width() int             { return i.width }
func (i *Image) Height() int            { return i.height }
func (i *Image) Format() cl.ImageFormat { return i.format }
func (i *Image) Flags() cl.MemFlags     { return i.flags }

// Release implements cl.Image.
func (i *Image) Release() {
	i.once.Do(func() {
		i.ctx.forget(i)
		i.ctx.device.driver.images.Add(-1)
	})
}

// Sampler is a host sampler object.
type Sampler struct {
	ctx  *Context
	desc cl.SamplerDesc
	once sync.Once
}

// Desc implements cl.Sampler.
func (s *Sampler) Desc() cl.SamplerDesc {
	return s.desc
}

// Release implements cl.Sampler.
func (s *Sampler) Release() {
	s.once.Do(func() {
		s.ctx.device.driver.samplers.Add(-1)
	})
}
