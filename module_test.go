package wazero

import (
	"context"
	"testing"

	"github.com/wazerun/wazero/api"
	"github.com/wazerun/wazero/internal/testing/require"
)

const globalsModule = `(module $globals
  (global $mut (export "counter") (mut i32) i32.const 7)
  (global $const (export "answer") i32 i32.const 42)
)`

func TestExportedGlobal_Immutable(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(globalsModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	answer := mod.ExportedGlobal("answer")
	require.NotNil(t, answer)
	require.Equal(t, uint64(42), answer.Get(ctx))
	require.Equal(t, api.ValueTypeI32, answer.Type())

	_, ok := answer.(api.MutableGlobal)
	require.False(t, ok, "an immutable global must not satisfy api.MutableGlobal")
}

func TestExportedGlobal_Mutable(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(globalsModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	counter := mod.ExportedGlobal("counter")
	require.NotNil(t, counter)
	require.Equal(t, uint64(7), counter.Get(ctx))

	mutable, ok := counter.(api.MutableGlobal)
	require.True(t, ok, "a mutable global must satisfy api.MutableGlobal")

	mutable.Set(ctx, 100)
	require.Equal(t, uint64(100), counter.Get(ctx))
}

func TestModule_StringAndMissingMemory(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(globalsModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	require.Equal(t, "Module[globals]", mod.String())
	require.Nil(t, mod.Memory())
	require.Nil(t, mod.ExportedMemory("mem"))
}
