package wazero

import (
	"context"
	"testing"

	"github.com/wazerun/wazero/internal/testing/require"
)

func TestHostModuleBuilder_WithFunc(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	var gotCtx context.Context
	add := func(ctx context.Context, x, y uint32) uint32 {
		gotCtx = ctx
		return x + y
	}

	mod, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(add).WithParameterNames("x", "y").Export("add").
		Instantiate(ctx)
	require.NoError(t, err)
	require.Equal(t, "env", mod.Name())

	fn := mod.ExportedFunction("add")
	require.NotNil(t, fn)

	results, err := fn.Call(ctx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(7), results[0])
	require.NotNil(t, gotCtx)

	def := fn.Definition()
	require.Equal(t, []string{"x", "y"}, def.ParamNames())
}

func TestHostModuleBuilder_WithFuncNoContext(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	double := func(x uint64) uint64 { return x * 2 }

	mod, err := r.NewHostModuleBuilder("math").
		NewFunctionBuilder().WithFunc(double).Export("double").
		Instantiate(ctx)
	require.NoError(t, err)

	results, err := mod.ExportedFunction("double").Call(ctx, 21)
	require.NoError(t, err)
	require.Equal(t, uint64(42), results[0])
}

func TestHostModuleBuilder_ExportMemory(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	mod, err := r.NewHostModuleBuilder("env").
		ExportMemoryWithMax("mem", 1, 2).
		Instantiate(ctx)
	require.NoError(t, err)

	mem := mod.ExportedMemory("mem")
	require.NotNil(t, mem)
	require.Equal(t, uint32(65536), mem.Size(ctx))
}

func TestHostModuleBuilder_RejectsNonFunc(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(42).Export("broken").
		Instantiate(ctx)
	require.Error(t, err)
}

func TestHostModuleBuilder_RejectsUnsupportedType(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	bad := func(s string) {}
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(bad).Export("bad").
		Instantiate(ctx)
	require.Error(t, err)
}
