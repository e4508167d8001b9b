//go:build !gpu

package opencl

import "github.com/cwbudde/imagefilter2d/internal/cl"

// New returns ErrNotBuilt when OpenCL support is not compiled in.
func New() (cl.Driver, error) {
	return nil, ErrNotBuilt
}
