package filter

import (
	"fmt"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// DefaultTile is the work-group edge length.
const DefaultTile = 16

// RoundUp returns the smallest multiple of tile that is >= dim.
func RoundUp(tile, dim int) int {
	return dim + (tile-dim%tile)%tile
}

// WorkGrid is an NDRange: Global is a multiple of Local on each axis.
type WorkGrid struct {
	Global [2]int
	Local  [2]int
}

// NewWorkGrid covers a width x height image with tile x tile work-groups,
// padding the edge tiles.
func NewWorkGrid(width, height, tile int) WorkGrid {
	return WorkGrid{
		Global: [2]int{RoundUp(tile, width), RoundUp(tile, height)},
		Local:  [2]int{tile, tile},
	}
}

func (g WorkGrid) String() string {
	return fmt.Sprintf("global=%dx%d local=%dx%d", g.Global[0], g.Global[1], g.Local[0], g.Local[1])
}

// Dispatch binds (in, out, sampler, width, height) to k and submits it over
// grid without waiting. The returned event completes when the kernel has
// finished writing out.
func (s *Session) Dispatch(q cl.CommandQueue, k cl.Kernel, in, out cl.Image, smp cl.Sampler, grid WorkGrid) (cl.Event, error) {
	fail := func(err error) error {
		if cl.StatusOf(err) == cl.DeviceNotAvailable {
			return &DeviceLostError{Stage: StageDispatch, Device: s.info.Name, Err: err}
		}
		return &DispatchError{
			Device: s.info.Name,
			Kernel: k.Name(),
			Global: grid.Global,
			Local:  grid.Local,
			Err:    err,
		}
	}

	if in.Width() != out.Width() || in.Height() != out.Height() {
		return nil, fail(fmt.Errorf("input %dx%d and output %dx%d differ",
			in.Width(), in.Height(), out.Width(), out.Height()))
	}
	if grid.Local[0]*grid.Local[1] > s.info.MaxWorkGroupSize {
		return nil, fail(fmt.Errorf("work-group of %d items exceeds device maximum %d: %w",
			grid.Local[0]*grid.Local[1], s.info.MaxWorkGroupSize,
			cl.NewStatusError("clEnqueueNDRangeKernel", cl.InvalidWorkGroupSize)))
	}

	if err := k.SetArgs(in, out, smp, int32(in.Width()), int32(in.Height())); err != nil {
		return nil, fail(err)
	}
	ev, err := q.EnqueueNDRangeKernel(k, grid.Global, grid.Local)
	if err != nil {
		return nil, fail(err)
	}
	return ev, nil
}
