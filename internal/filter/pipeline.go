package filter

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/imagefilter2d/internal/cl"
	"github.com/cwbudde/imagefilter2d/internal/kernels"
)

// Options configures a Pipeline.
type Options struct {
	// Source is OpenCL C defining Entry. Empty selects the built-in source
	// for Entry.
	Source string
	// Entry is the kernel to run. Defaults to kernels.Gaussian.
	Entry string
	// Tile is the work-group edge length. Defaults to DefaultTile.
	Tile int
	// Prefer orders the device classes tried. Defaults to DefaultPreference.
	Prefer []cl.DeviceType
}

func (o Options) withDefaults() (Options, error) {
	if o.Entry == "" {
		o.Entry = kernels.Gaussian
	}
	if o.Tile == 0 {
		o.Tile = DefaultTile
	}
	if o.Tile < 0 {
		return o, fmt.Errorf("invalid tile size %d", o.Tile)
	}
	if len(o.Prefer) == 0 {
		o.Prefer = DefaultPreference
	}
	if o.Source == "" {
		src, err := kernels.Source(o.Entry)
		if err != nil {
			return o, err
		}
		o.Source = src
	}
	return o, nil
}

// Pipeline filters images on one device. Construction selects the device
// and builds the program; each Run uploads, dispatches once and downloads.
// Runs are serialized.
type Pipeline struct {
	opts    Options
	session *Session
	kernel  cl.Kernel
	queue   cl.CommandQueue
	sampler cl.Sampler

	mu sync.Mutex
}

// New selects a device on driver, builds the program and prepares the
// queue and sampler. On failure everything created so far is released.
func New(driver cl.Driver, opts Options) (*Pipeline, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	sess, err := Select(driver, opts.Prefer)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{opts: opts, session: sess}
	if err := p.prepare(); err != nil {
		sess.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) prepare() error {
	prog, err := p.session.Build(p.opts.Source)
	if err != nil {
		return err
	}
	if p.kernel, err = p.session.Kernel(prog, p.opts.Entry); err != nil {
		return err
	}
	if p.queue, err = p.session.NewQueue(); err != nil {
		return err
	}
	if p.sampler, err = p.session.NewSampler(); err != nil {
		return err
	}
	return nil
}

// Session exposes the device the pipeline runs on.
func (p *Pipeline) Session() *Session {
	return p.session
}

// Entry names the kernel the pipeline runs.
func (p *Pipeline) Entry() string {
	return p.opts.Entry
}

// Run filters a tightly packed width x height RGBA buffer and returns a new
// buffer of the same layout.
func (p *Pipeline) Run(pix []byte, width, height int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := slog.With("run", uuid.NewString(), "device", p.session.info.Name, "kernel", p.opts.Entry)
	start := time.Now()

	in, err := p.session.Upload(pix, width, height)
	if err != nil {
		return nil, err
	}
	defer in.Release()

	out, err := p.session.AllocateOutput(width, height)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	grid := NewWorkGrid(width, height, p.opts.Tile)
	log.Debug("Dispatching kernel", "width", width, "height", height, "grid", grid.String())

	ev, err := p.session.Dispatch(p.queue, p.kernel, in, out, p.sampler, grid)
	if err != nil {
		return nil, err
	}
	defer ev.Release()

	res, err := p.session.Download(p.queue, out, ev)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) && de.Kernel == "" {
			de.Kernel = p.kernel.Name()
			de.Global, de.Local = grid.Global, grid.Local
		}
		log.Error("Run failed", "error", err)
		// Fence the queue so the next run does not inherit the failure.
		_ = p.queue.Finish()
		return nil, err
	}

	log.Info("Filter run complete", "width", width, "height", height, "elapsed", time.Since(start))
	return res, nil
}

// RunImage filters img. The result has the same bounds, rebased to the
// origin.
func (p *Pipeline) RunImage(img *image.NRGBA) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	pix := img.Pix
	if img.Stride != w*bytesPerPixel || len(pix) != w*h*bytesPerPixel {
		pix = make([]byte, w*h*bytesPerPixel)
		for y := 0; y < h; y++ {
			row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(pix[y*w*bytesPerPixel:(y+1)*w*bytesPerPixel], row[:w*bytesPerPixel])
		}
	}

	out, err := p.Run(pix, w, h)
	if err != nil {
		return nil, err
	}
	return &image.NRGBA{Pix: out, Stride: w * bytesPerPixel, Rect: image.Rect(0, 0, w, h)}, nil
}

// Close releases the sampler, queue, kernel and program, then the context.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session.Close()
}
