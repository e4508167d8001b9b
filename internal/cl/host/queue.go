package host

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

const queueDepth = 64

type command struct {
	name string
	// run is nil for markers.
	run func() error
	ev  *event
}

// queue is an in-order command queue served by one worker goroutine.
type queue struct {
	ctx  *Context
	cmds chan command
	done chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newQueue(c *Context) *queue {
	q := &queue{
		ctx:  c,
		cmds: make(chan command, queueDepth),
		done: make(chan struct{}),
	}
	c.device.driver.queues.Add(1)
	go q.work()
	return q
}

func (q *queue) work() {
	defer close(q.done)

	dev := q.ctx.device
	failed := false
	for cmd := range q.cmds {
		var err error
		switch {
		case dev.lost.Load():
			err = cl.NewStatusError(cmd.name, cl.DeviceNotAvailable)
		case cmd.run == nil:
			// A marker fences off earlier failures.
			failed = false
		case failed:
			err = cl.NewStatusError(cmd.name, cl.ExecStatusErrorForEventsInWaitList)
		default:
			err = cmd.run()
			dev.commandExecuted()
		}
		if err != nil && cmd.run != nil {
			failed = true
		}
		cmd.ev.complete(err)
	}
}

func (q *queue) submit(name string, run func() error) (*event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, cl.NewStatusError(name, cl.InvalidCommandQueue)
	}
	ev := &event{done: make(chan struct{})}
	q.cmds <- command{name: name, run: run, ev: ev}
	return ev, nil
}

// EnqueueNDRangeKernel implements cl.CommandQueue.
func (q *queue) EnqueueNDRangeKernel(k cl.Kernel, global, local [2]int) (cl.Event, error) {
	const op = "clEnqueueNDRangeKernel"

	hk, ok := k.(*Kernel)
	if !ok || hk.ctx != q.ctx {
		return nil, cl.NewStatusError(op, cl.InvalidKernel)
	}
	args := hk.boundArgs()
	if args == nil {
		return nil, cl.NewStatusError(op, cl.InvalidKernelArgs)
	}
	if global[0] <= 0 || global[1] <= 0 {
		return nil, cl.NewStatusError(op, cl.InvalidGlobalWorkSize)
	}
	if local[0] <= 0 || local[1] <= 0 ||
		global[0]%local[0] != 0 || global[1]%local[1] != 0 ||
		local[0]*local[1] > q.ctx.device.config.MaxWorkGroupSize {
		return nil, cl.NewStatusError(op, cl.InvalidWorkGroupSize)
	}

	ev, err := q.submit(op, func() error {
		return q.ctx.device.runNDRange(hk, args, global, local)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// runNDRange executes every work-group of the grid, at most ComputeUnits at
// a time. Work-items within a group run sequentially.
func (d *Device) runNDRange(k *Kernel, args Args, global, local [2]int) error {
	groups := [2]int{global[0] / local[0], global[1] / local[1]}

	var g errgroup.Group
	g.SetLimit(d.config.ComputeUnits)
	for gy := 0; gy < groups[1]; gy++ {
		for gx := 0; gx < groups[0]; gx++ {
			gx, gy := gx, gy
			g.Go(func() error {
				return runGroup(k, args, [2]int{gx, gy}, global, local)
			})
		}
	}
	return g.Wait()
}

func runGroup(k *Kernel, args Args, group, global, local [2]int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel %s faulted in work-group (%d,%d): %v: %w",
				k.name, group[0], group[1], r,
				cl.NewStatusError("clEnqueueNDRangeKernel", cl.OutOfResources))
		}
	}()

	item := WorkItem{group: group, size: global}
	for ly := 0; ly < local[1]; ly++ {
		for lx := 0; lx < local[0]; lx++ {
			item.local = [2]int{lx, ly}
			item.global = [2]int{group[0]*local[0] + lx, group[1]*local[1] + ly}
			k.native.Func(item, args)
		}
	}
	return nil
}

// EnqueueReadImage implements cl.CommandQueue.
func (q *queue) EnqueueReadImage(img cl.Image, blocking bool, origin, region [3]int, dst []byte) (cl.Event, error) {
	const op = "clEnqueueReadImage"

	src, ok := img.(*Image)
	if !ok || src.ctx != q.ctx {
		return nil, cl.NewStatusError(op, cl.InvalidMemObject)
	}
	if origin[2] != 0 || region[2] != 1 ||
		origin[0] < 0 || origin[1] < 0 || region[0] <= 0 || region[1] <= 0 ||
		origin[0]+region[0] > src.width || origin[1]+region[1] > src.height {
		return nil, cl.NewStatusError(op, cl.InvalidValue)
	}
	rowBytes := region[0] * src.bpp
	if len(dst) != rowBytes*region[1] {
		return nil, cl.NewStatusError(op, cl.InvalidValue)
	}

	ev, err := q.submit(op, func() error {
		stride := src.width * src.bpp
		for y := 0; y < region[1]; y++ {
			off := (origin[1]+y)*stride + origin[0]*src.bpp
			copy(dst[y*rowBytes:(y+1)*rowBytes], src.pix[off:off+rowBytes])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blocking {
		if err := ev.Wait(); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// Finish implements cl.CommandQueue.
func (q *queue) Finish() error {
	ev, err := q.submit("clFinish", nil)
	if err != nil {
		return err
	}
	return ev.Wait()
}

// Release implements cl.CommandQueue. Commands already submitted run to
// completion first.
func (q *queue) Release() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.cmds)
		q.mu.Unlock()

		<-q.done
		q.ctx.device.driver.queues.Add(-1)
	})
}

type event struct {
	done chan struct{}
	err  error
}

func (e *event) complete(err error) {
	e.err = err
	close(e.done)
}

// Wait implements cl.Event.
func (e *event) Wait() error {
	<-e.done
	return e.err
}

// Release implements cl.Event.
func (e *event) Release() {}
