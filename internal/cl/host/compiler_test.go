package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

func TestCompileLinksEntries(t *testing.T) {
	natives := map[string]NativeKernel{"invert": invertKernel, "unused": unguardedKernel}

	entries, log := compile(invertSource, natives)
	require.Empty(t, log)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "invert")
}

func TestCompileDiagnostics(t *testing.T) {
	natives := map[string]NativeKernel{"invert": invertKernel}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "empty",
			source: "  /* nothing */ \n",
			want:   "<kernel source>:1:1: error: program source is empty",
		},
		{
			name:   "no kernels",
			source: "float helper(float x) { return x; }",
			want:   "no __kernel functions found",
		},
		{
			name:   "unknown kernel",
			source: "\n__kernel void sharpen(int w) {}",
			want:   "<kernel source>:2:15: error: kernel 'sharpen' has no native implementation",
		},
		{
			name:   "unbalanced braces",
			source: "__kernel void invert(__read_only image2d_t a, __write_only image2d_t b, sampler_t s, int w, int h) {",
			want:   "expected '}' to match this '{'",
		},
		{
			name:   "parameter count",
			source: "__kernel void invert(__read_only image2d_t a, __write_only image2d_t b) {}",
			want:   "declares 2 parameters, native implementation takes 5",
		},
		{
			name:   "parameter kind",
			source: "__kernel void invert(__read_only image2d_t a, __read_only image2d_t b, sampler_t s, int w, int h) {}",
			want:   "parameter 2 of 'invert' is '__read_only image2d_t b', expected __write_only image2d_t",
		},
		{
			name: "redefinition",
			source: "__kernel void invert(image2d_t a, write_only image2d_t b, sampler_t s, int w, int h) {}\n" +
				"__kernel void invert(image2d_t a, write_only image2d_t b, sampler_t s, int w, int h) {}",
			want: "<kernel source>:2:15: error: redefinition of 'invert'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, log := compile(tt.source, natives)
			assert.Nil(t, entries)
			assert.Contains(t, log, tt.want)
		})
	}
}

func TestCompileIgnoresCommentedKernels(t *testing.T) {
	src := "// __kernel void ghost(int x) {}\n/* __kernel void phantom(int y) { */\n" + invertSource
	entries, log := compile(src, map[string]NativeKernel{"invert": invertKernel})
	require.Empty(t, log)
	assert.Len(t, entries, 1)
}

func TestBuildProgramReportsLog(t *testing.T) {
	d := testDriver()
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	defer ctx.Release()

	_, err = ctx.BuildProgram("__kernel void invert(")
	require.Error(t, err)

	var bf *cl.BuildFailure
	require.True(t, errors.As(err, &bf))
	assert.NotEmpty(t, bf.Log)
	assert.Equal(t, cl.BuildProgramFailure, cl.StatusOf(err))
	assert.Zero(t, d.Stats().Programs)
}

func TestCreateKernelUnknownName(t *testing.T) {
	d := testDriver()
	ctx, err := firstDevice(t, d, cl.DeviceTypeCPU).CreateContext()
	require.NoError(t, err)
	defer ctx.Release()

	prog, err := ctx.BuildProgram(invertSource)
	require.NoError(t, err)
	_, err = prog.CreateKernel("gaussian_filter")
	assert.Equal(t, cl.InvalidKernelName, cl.StatusOf(err))
}
