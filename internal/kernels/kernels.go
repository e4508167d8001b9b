// Package kernels holds the filter programs: OpenCL C sources for real
// devices and matching native implementations for the host device.
//
// Every kernel takes (read-only image, write-only image, sampler, int width,
// int height). The dispatcher rounds the grid up to whole work-groups, so a
// kernel must return without writing for any work-item whose global ID lies
// outside width x height. The host device faults a work-group that writes
// out of bounds; real devices silently corrupt memory or drop the write.
package kernels

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/cwbudde/imagefilter2d/internal/cl/host"
)

const (
	Gaussian = "gaussian_filter"
	Box      = "box_filter"
	Copy     = "copy_image"
)

//go:embed cl/gaussian_filter.cl
var gaussianSource string

//go:embed cl/box_filter.cl
var boxSource string

//go:embed cl/copy_image.cl
var copySource string

var sources = map[string]string{
	Gaussian: gaussianSource,
	Box:      boxSource,
	Copy:     copySource,
}

// GaussianWeights is the 3x3 kernel applied by gaussian_filter, row major,
// before division by GaussianDivisor.
var GaussianWeights = [9]float32{
	1, 2, 1,
	2, 4, 2,
	1, 2, 1,
}

const GaussianDivisor = 16

// Source returns the embedded OpenCL C source defining entry.
func Source(entry string) (string, error) {
	src, ok := sources[entry]
	if !ok {
		return "", fmt.Errorf("no built-in kernel %q (have %v)", entry, Names())
	}
	return src, nil
}

// Names lists the built-in entry points.
func Names() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var imageArgs = []host.ArgKind{
	host.ArgReadImage,
	host.ArgWriteImage,
	host.ArgSampler,
	host.ArgInt32,
	host.ArgInt32,
}

// Host returns the native implementations keyed by entry point, ready for
// host.WithKernels.
func Host() map[string]host.NativeKernel {
	return map[string]host.NativeKernel{
		Gaussian: {Params: imageArgs, Func: gaussianFilter},
		Box:      {Params: imageArgs, Func: boxFilter},
		Copy:     {Params: imageArgs, Func: copyImage},
	}
}

func inBounds(item host.WorkItem, args host.Args) (x, y int, ok bool) {
	x, y = item.GlobalID(0), item.GlobalID(1)
	return x, y, x < int(args.Int32(3)) && y < int(args.Int32(4))
}

func gaussianFilter(item host.WorkItem, args host.Args) {
	x, y, ok := inBounds(item, args)
	if !ok {
		return
	}
	src, s := args.Image(0), args.Sampler(2)

	var acc [4]float32
	w := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := host.ReadImagef(src, s, x+dx, y+dy)
			k := GaussianWeights[w] / GaussianDivisor
			for ch := range acc {
				acc[ch] += c[ch] * k
			}
			w++
		}
	}
	host.WriteImagef(args.Image(1), x, y, acc)
}

func boxFilter(item host.WorkItem, args host.Args) {
	x, y, ok := inBounds(item, args)
	if !ok {
		return
	}
	src, s := args.Image(0), args.Sampler(2)

	var acc [4]float32
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := host.ReadImagef(src, s, x+dx, y+dy)
			for ch := range acc {
				acc[ch] += c[ch]
			}
		}
	}
	host.WriteImagef(args.Image(1), x, y, acc)
}

func copyImage(item host.WorkItem, args host.Args) {
	x, y, ok := inBounds(item, args)
	if !ok {
		return
	}
	host.WriteImagef(args.Image(1), x, y, host.ReadImagef(args.Image(0), args.Sampler(2), x, y))
}
