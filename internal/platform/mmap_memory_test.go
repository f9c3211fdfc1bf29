package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardedMemory_GrowAndBounds(t *testing.T) {
	g, err := NewGuardedMemory(1, 2)
	require.NoError(t, err)
	defer g.Close()

	require.Equal(t, WasmPageSize, len(g.Bytes()))

	g.Bytes()[0] = 0x42
	require.Equal(t, byte(0x42), g.Bytes()[0])

	require.NoError(t, g.Grow(2))
	require.Equal(t, 2*WasmPageSize, len(g.Bytes()))
	// Growing preserves previously committed bytes.
	require.Equal(t, byte(0x42), g.Bytes()[0])

	require.Error(t, g.Grow(3))
}

func TestGuardedMemory_ZeroMinPages(t *testing.T) {
	g, err := NewGuardedMemory(0, 1)
	require.NoError(t, err)
	defer g.Close()

	require.Equal(t, 0, len(g.Bytes()))
	require.NoError(t, g.Grow(1))
	require.Equal(t, WasmPageSize, len(g.Bytes()))
}
