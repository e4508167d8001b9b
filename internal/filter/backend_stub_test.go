//go:build !gpu

package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/imagefilter2d/internal/cl/opencl"
)

func TestOpenDriverWithoutOpenCL(t *testing.T) {
	_, err := OpenDriver("opencl")
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.True(t, errors.Is(err, opencl.ErrNotBuilt))

	d, err := OpenDriver("auto")
	require.NoError(t, err)
	assert.Equal(t, "host", d.Name())
}
