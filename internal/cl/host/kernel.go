package host

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// ArgKind is the declared type of a kernel parameter.
type ArgKind int

const (
	ArgReadImage ArgKind = iota
	ArgWriteImage
	ArgSampler
	ArgInt32
)

func (k ArgKind) String() string {
	switch k {
	case ArgReadImage:
		return "__read_only image2d_t"
	case ArgWriteImage:
		return "__write_only image2d_t"
	case ArgSampler:
		return "sampler_t"
	case ArgInt32:
		return "int"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// KernelFunc is the body of a kernel, run once per work-item.
type KernelFunc func(item WorkItem, args Args)

// NativeKernel is a Go implementation linked to a __kernel entry point.
type NativeKernel struct {
	Params []ArgKind
	Func   KernelFunc
}

// WorkItem identifies one invocation within an NDRange.
type WorkItem struct {
	global [2]int
	local  [2]int
	group  [2]int
	size   [2]int
}

// GlobalID mirrors get_global_id.
func (w WorkItem) GlobalID(dim int) int { return w.global[dim] }

// LocalID mirrors get_local_id.
func (w WorkItem) LocalID(dim int) int { return w.local[dim] }

// GroupID mirrors get_group_id.
func (w WorkItem) GroupID(dim int) int { return w.group[dim] }

// GlobalSize mirrors get_global_size.
func (w WorkItem) GlobalSize(dim int) int { return w.size[dim] }

// Args holds the values bound to a kernel at enqueue time.
type Args []any

// Image returns argument i as an image.
func (a Args) Image(i int) *Image { return a[i].(*Image) }

// Sampler returns argument i as a sampler.
func (a Args) Sampler(i int) *Sampler { return a[i].(*Sampler) }

// Int32 returns argument i as an int.
func (a Args) Int32(i int) int32 { return a[i].(int32) }

// Program is a linked host program.
type Program struct {
	ctx     *Context
	entries map[string]NativeKernel
	once    sync.Once
}

// CreateKernel implements cl.Program.
func (p *Program) CreateKernel(name string) (cl.Kernel, error) {
	native, ok := p.entries[name]
	if !ok {
		return nil, cl.NewStatusError("clCreateKernel", cl.InvalidKernelName)
	}
	k := &Kernel{
		ctx:    p.ctx,
		name:   name,
		native: native,
	}
	p.ctx.device.driver.kernelsN.Add(1)
	if err := p.ctx.own(k); err != nil {
		k.Release()
		return nil, err
	}
	return k, nil
}

// Release implements cl.Program.
func (p *Program) Release() {
	p.once.Do(func() {
		p.ctx.device.driver.programs.Add(-1)
	})
}

// Kernel is a host kernel object.
type Kernel struct {
	ctx    *Context
	name   string
	native NativeKernel

	mu   sync.Mutex
	args Args
	once sync.Once
}

// Name implements cl.Kernel.
func (k *Kernel) Name() string {
	return k.name
}

// SetArgs implements cl.Kernel.
func (k *Kernel) SetArgs(args ...any) error {
	const op = "clSetKernelArg"

	if len(args) != len(k.native.Params) {
		return cl.NewStatusError(op, cl.InvalidArgIndex)
	}
	for i, kind := range k.native.Params {
		switch kind {
		case ArgReadImage, ArgWriteImage:
			img, ok := args[i].(*Image)
			if !ok {
				return cl.NewStatusError(op, cl.InvalidMemObject)
			}
			if img.ctx != k.ctx {
				return cl.NewStatusError(op, cl.InvalidMemObject)
			}
			if kind == ArgReadImage && img.flags&cl.MemWriteOnly != 0 {
				return cl.NewStatusError(op, cl.InvalidArgValue)
			}
			if kind == ArgWriteImage && img.flags&cl.MemReadOnly != 0 {
				return cl.NewStatusError(op, cl.InvalidArgValue)
			}
		case ArgSampler:
			s, ok := args[i].(*Sampler)
			if !ok || s.ctx != k.ctx {
				return cl.NewStatusError(op, cl.InvalidSampler)
			}
		case ArgInt32:
			if _, ok := args[i].(int32); !ok {
				return cl.NewStatusError(op, cl.InvalidArgSize)
			}
		}
	}

	k.mu.Lock()
	k.args = append(Args(nil), args...)
	k.mu.Unlock()
	return nil
}

func (k *Kernel) boundArgs() Args {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.args
}

// Release implements cl.Kernel.
func (k *Kernel) Release() {
	k.once.Do(func() {
		k.ctx.device.driver.kernelsN.Add(-1)
	})
}

// ReadImagef mirrors read_imagef(image2d_t, sampler_t, int2): the texel at
// (x, y) resolved through s, as normalized floats in R,G,B,A order.
func ReadImagef(img *Image, s *Sampler, x, y int) [4]float32 {
	if x < 0 || x >= img.width || y < 0 || y >= img.height {
		switch s.desc.Addressing {
		case cl.AddressClamp:
			return [4]float32{}
		default:
			x = clampInt(x, 0, img.width-1)
			y = clampInt(y, 0, img.height-1)
		}
	}
	return img.load(x, y)
}

// WriteImagef mirrors write_imagef(image2d_t, int2, float4). Writing outside
// the image or to a read-only image faults the work-group.
func WriteImagef(img *Image, x, y int, c [4]float32) {
	if img.flags&cl.MemReadOnly != 0 {
		panic(fmt.Sprintf("write_imagef on read-only image at (%d,%d)", x, y))
	}
	if x < 0 || x >= img.width || y < 0 || y >= img.height {
		panic(fmt.Sprintf("write_imagef out of bounds at (%d,%d) for %dx%d image", x, y, img.width, img.height))
	}
	img.store(x, y, c)
}

func (i *Image) load(x, y int) [4]float32 {
	off := (y*i.width + x) * i.bpp
	p := i.pix[off : off+i.bpp]
	switch i.format.ChannelDataType {
	case cl.ChannelDataTypeFloat:
		var c [4]float32
		for ch := 0; ch < 4; ch++ {
			c[ch] = math.Float32frombits(binary.LittleEndian.Uint32(p[ch*4:]))
		}
		return c
	default:
		c := [4]float32{
			float32(p[0]) / 255,
			float32(p[1]) / 255,
			float32(p[2]) / 255,
			float32(p[3]) / 255,
		}
		if i.format.ChannelOrder == cl.ChannelOrderBGRA {
			c[0], c[2] = c[2], c[0]
		}
		return c
	}
}

func (i *Image) store(x, y int, c [4]float32) {
	off := (y*i.width + x) * i.bpp
	p := i.pix[off : off+i.bpp]
	switch i.format.ChannelDataType {
	case cl.ChannelDataTypeFloat:
		for ch := 0; ch < 4; ch++ {
			binary.LittleEndian.PutUint32(p[ch*4:], math.Float32bits(c[ch]))
		}
	default:
		if i.format.ChannelOrder == cl.ChannelOrderBGRA {
			c[0], c[2] = c[2], c[0]
		}
		for ch := 0; ch < 4; ch++ {
			p[ch] = unorm8(c[ch])
		}
	}
}

// unorm8 mirrors convert_uchar_sat_rte(v * 255.0f).
func unorm8(v float32) uint8 {
	f := float64(v) * 255
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(f))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
