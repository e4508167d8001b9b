// Package opencl binds the cl API to the system OpenCL runtime through cgo.
// It is compiled only with -tags gpu; other builds get a stub whose New
// reports ErrNotBuilt.
package opencl

import "errors"

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")
