package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundUp(t *testing.T) {
	tests := []struct {
		tile, dim, want int
	}{
		{16, 300, 304},
		{16, 320, 320},
		{16, 1, 16},
		{16, 16, 16},
		{16, 17, 32},
		{8, 9, 16},
		{1, 7, 7},
	}
	for _, tt := range tests {
		got := RoundUp(tt.tile, tt.dim)
		assert.Equal(t, tt.want, got, "RoundUp(%d, %d)", tt.tile, tt.dim)
		assert.Zero(t, got%tt.tile)
		assert.Less(t, got-tt.dim, tt.tile)
	}
}

func TestNewWorkGrid(t *testing.T) {
	g := NewWorkGrid(17, 9, DefaultTile)
	assert.Equal(t, [2]int{32, 16}, g.Global)
	assert.Equal(t, [2]int{16, 16}, g.Local)
	assert.Equal(t, "global=32x16 local=16x16", g.String())

	g = NewWorkGrid(300, 320, DefaultTile)
	assert.Equal(t, [2]int{304, 320}, g.Global)
}
