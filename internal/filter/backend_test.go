package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBackend(t *testing.T) {
	tests := map[string]Backend{
		"":       BackendAuto,
		" Auto ": BackendAuto,
		"GPU":    BackendOpenCL,
		"cl":     BackendOpenCL,
		"opencl": BackendOpenCL,
		"host":   BackendHost,
		"cpu":    BackendHost,
		"vulkan": Backend("vulkan"),
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeBackend(in), "NormalizeBackend(%q)", in)
	}
	assert.Len(t, SupportedBackends(), 3)
}

func TestOpenDriverHost(t *testing.T) {
	d, err := OpenDriver("host")
	require.NoError(t, err)
	assert.Equal(t, "host", d.Name())

	// The built-in kernels are linked.
	p, err := New(d, Options{})
	require.NoError(t, err)
	p.Close()
}

func TestOpenDriverUnknown(t *testing.T) {
	_, err := OpenDriver("vulkan")
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}
