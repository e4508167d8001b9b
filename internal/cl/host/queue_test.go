package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

type invertRig struct {
	ctx     cl.Context
	queue   cl.CommandQueue
	kernel  cl.Kernel
	src     cl.Image
	dst     cl.Image
	sampler cl.Sampler
}

func newInvertRig(t *testing.T, d *Driver, entry string, w, h int, pix []byte) *invertRig {
	t.Helper()
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	t.Cleanup(ctx.Release)

	src := invertSource
	if entry == "unguarded" {
		src = `__kernel void unguarded(__read_only image2d_t a, __write_only image2d_t b, sampler_t s, int w, int h) {}`
	}
	prog, err := ctx.BuildProgram(src)
	require.NoError(t, err)
	k, err := prog.CreateKernel(entry)
	require.NoError(t, err)
	q, err := ctx.CreateCommandQueue()
	require.NoError(t, err)
	in, err := ctx.CreateImage2D(cl.MemReadOnly|cl.MemCopyHostPtr, cl.FormatRGBA8, w, h, pix)
	require.NoError(t, err)
	out, err := ctx.CreateImage2D(cl.MemWriteOnly, cl.FormatRGBA8, w, h, nil)
	require.NoError(t, err)
	s, err := ctx.CreateSampler(cl.SamplerDesc{Addressing: cl.AddressClampToEdge, Filter: cl.FilterNearest})
	require.NoError(t, err)
	require.NoError(t, k.SetArgs(in, out, s, int32(w), int32(h)))

	return &invertRig{ctx: ctx, queue: q, kernel: k, src: in, dst: out, sampler: s}
}

func (r *invertRig) read(t *testing.T) []byte {
	t.Helper()
	w, h := r.dst.Width(), r.dst.Height()
	out := make([]byte, w*h*4)
	_, err := r.queue.EnqueueReadImage(r.dst, true, [3]int{}, [3]int{w, h, 1}, out)
	require.NoError(t, err)
	return out
}

func TestNDRangeInvertsPaddedGrid(t *testing.T) {
	const w, h = 5, 3
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	r := newInvertRig(t, testDriver(), "invert", w, h, pix)

	// 8x4 covers the 5x3 image with padding on both axes.
	ev, err := r.queue.EnqueueNDRangeKernel(r.kernel, [2]int{8, 4}, [2]int{4, 2})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())

	out := r.read(t)
	for i := 0; i < len(pix); i += 4 {
		assert.Equal(t, 255-pix[i], out[i])
		assert.Equal(t, 255-pix[i+1], out[i+1])
		assert.Equal(t, 255-pix[i+2], out[i+2])
		assert.Equal(t, pix[i+3], out[i+3])
	}
}

func TestNDRangeValidation(t *testing.T) {
	d := New(
		WithKernels(map[string]NativeKernel{"invert": invertKernel}),
		WithPlatforms(PlatformConfig{
			Name:    "p",
			Devices: []DeviceConfig{{Name: "small", ImageSupport: true, MaxWorkGroupSize: 64}},
		}),
	)
	r := newInvertRig(t, d, "invert", 4, 4, make([]byte, 64))

	tests := []struct {
		name          string
		global, local [2]int
		want          cl.Status
	}{
		{"zero global", [2]int{0, 16}, [2]int{8, 8}, cl.InvalidGlobalWorkSize},
		{"not a multiple", [2]int{20, 16}, [2]int{8, 8}, cl.InvalidWorkGroupSize},
		{"zero local", [2]int{16, 16}, [2]int{0, 8}, cl.InvalidWorkGroupSize},
		{"group too large", [2]int{16, 16}, [2]int{16, 16}, cl.InvalidWorkGroupSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.queue.EnqueueNDRangeKernel(r.kernel, tt.global, tt.local)
			assert.Equal(t, tt.want, cl.StatusOf(err))
		})
	}
}

func TestNDRangeRequiresArgs(t *testing.T) {
	d := testDriver()
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, err := ctx.BuildProgram(invertSource)
	require.NoError(t, err)
	k, err := prog.CreateKernel("invert")
	require.NoError(t, err)
	q, err := ctx.CreateCommandQueue()
	require.NoError(t, err)

	_, err = q.EnqueueNDRangeKernel(k, [2]int{16, 16}, [2]int{16, 16})
	assert.Equal(t, cl.InvalidKernelArgs, cl.StatusOf(err))
}

func TestKernelFromOtherContextRejected(t *testing.T) {
	d := testDriver()
	a := newInvertRig(t, d, "invert", 2, 2, make([]byte, 16))
	b := newInvertRig(t, d, "invert", 2, 2, make([]byte, 16))

	_, err := a.queue.EnqueueNDRangeKernel(b.kernel, [2]int{16, 16}, [2]int{16, 16})
	assert.Equal(t, cl.InvalidKernel, cl.StatusOf(err))

	err = a.kernel.SetArgs(b.src, a.dst, a.sampler, int32(2), int32(2))
	assert.Equal(t, cl.InvalidMemObject, cl.StatusOf(err))
}

func TestSetArgsChecksAccess(t *testing.T) {
	r := newInvertRig(t, testDriver(), "invert", 2, 2, make([]byte, 16))

	err := r.kernel.SetArgs(r.dst, r.dst, r.sampler, int32(2), int32(2))
	assert.Equal(t, cl.InvalidArgValue, cl.StatusOf(err))
	err = r.kernel.SetArgs(r.src, r.src, r.sampler, int32(2), int32(2))
	assert.Equal(t, cl.InvalidArgValue, cl.StatusOf(err))
	err = r.kernel.SetArgs(r.src, r.dst, r.sampler, 2, int32(2))
	assert.Equal(t, cl.InvalidArgSize, cl.StatusOf(err))
	err = r.kernel.SetArgs(r.src, r.dst)
	assert.Equal(t, cl.InvalidArgIndex, cl.StatusOf(err))
}

func TestKernelFaultFailsLaterCommands(t *testing.T) {
	r := newInvertRig(t, testDriver(), "unguarded", 3, 3, make([]byte, 36))

	ev, err := r.queue.EnqueueNDRangeKernel(r.kernel, [2]int{4, 4}, [2]int{4, 4})
	require.NoError(t, err)
	err = ev.Wait()
	require.Error(t, err)
	assert.Equal(t, cl.OutOfResources, cl.StatusOf(err))
	assert.Contains(t, err.Error(), "out of bounds")

	out := make([]byte, 36)
	_, err = r.queue.EnqueueReadImage(r.dst, true, [3]int{}, [3]int{3, 3, 1}, out)
	assert.Equal(t, cl.ExecStatusErrorForEventsInWaitList, cl.StatusOf(err))

	// A marker still completes.
	assert.NoError(t, r.queue.Finish())
}

func TestDeviceLostAfterCommands(t *testing.T) {
	d := testDriver(WithPlatforms(PlatformConfig{
		Name:    "p",
		Devices: []DeviceConfig{{Name: "flaky", ImageSupport: true, LoseAfter: 1}},
	}))
	r := newInvertRig(t, d, "invert", 2, 2, make([]byte, 16))

	ev, err := r.queue.EnqueueNDRangeKernel(r.kernel, [2]int{2, 2}, [2]int{2, 2})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())

	out := make([]byte, 16)
	_, err = r.queue.EnqueueReadImage(r.dst, true, [3]int{}, [3]int{2, 2, 1}, out)
	assert.Equal(t, cl.DeviceNotAvailable, cl.StatusOf(err))
	assert.Equal(t, cl.DeviceNotAvailable, cl.StatusOf(r.queue.Finish()))
}

func TestReadImageRegion(t *testing.T) {
	const w, h = 4, 3
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	d := testDriver()
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	defer ctx.Release()
	q, err := ctx.CreateCommandQueue()
	require.NoError(t, err)
	img, err := ctx.CreateImage2D(cl.MemReadWrite|cl.MemCopyHostPtr, cl.FormatRGBA8, w, h, pix)
	require.NoError(t, err)

	out := make([]byte, 2*2*4)
	ev, err := q.EnqueueReadImage(img, false, [3]int{1, 1, 0}, [3]int{2, 2, 1}, out)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())

	want := append(append([]byte{}, pix[20:28]...), pix[36:44]...)
	assert.Equal(t, want, out)

	_, err = q.EnqueueReadImage(img, true, [3]int{3, 0, 0}, [3]int{2, 1, 1}, make([]byte, 8))
	assert.Equal(t, cl.InvalidValue, cl.StatusOf(err))
	_, err = q.EnqueueReadImage(img, true, [3]int{}, [3]int{4, 3, 1}, make([]byte, 10))
	assert.Equal(t, cl.InvalidValue, cl.StatusOf(err))
}

func TestReleasedQueueRejectsCommands(t *testing.T) {
	r := newInvertRig(t, testDriver(), "invert", 2, 2, make([]byte, 16))
	r.queue.Release()

	_, err := r.queue.EnqueueNDRangeKernel(r.kernel, [2]int{2, 2}, [2]int{2, 2})
	assert.Equal(t, cl.InvalidCommandQueue, cl.StatusOf(err))
	assert.Equal(t, cl.InvalidCommandQueue, cl.StatusOf(r.queue.Finish()))
}

func TestWorkItemIDs(t *testing.T) {
	seen := make(chan [4]int, 64)
	probe := NativeKernel{
		Params: []ArgKind{ArgInt32},
		Func: func(item WorkItem, args Args) {
			seen <- [4]int{item.GlobalID(0), item.GlobalID(1), item.GroupID(0)*4 + item.LocalID(0), item.GlobalSize(0)}
		},
	}
	d := New(WithKernels(map[string]NativeKernel{"probe": probe}))
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, err := ctx.BuildProgram(`kernel void probe(int n) {}`)
	require.NoError(t, err)
	k, err := prog.CreateKernel("probe")
	require.NoError(t, err)
	require.NoError(t, k.SetArgs(int32(0)))
	q, err := ctx.CreateCommandQueue()
	require.NoError(t, err)

	_, err = q.EnqueueNDRangeKernel(k, [2]int{8, 2}, [2]int{4, 1})
	require.NoError(t, err)
	require.NoError(t, q.Finish())
	close(seen)

	count := 0
	for ids := range seen {
		count++
		assert.Equal(t, ids[0], ids[2])
		assert.Equal(t, 8, ids[3])
	}
	assert.Equal(t, 16, count)
}
