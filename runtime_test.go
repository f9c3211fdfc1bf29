package wazero

import (
	"context"
	"testing"

	"github.com/wazerun/wazero/internal/testing/require"
)

const addModule = `(module $add
  (func $add (param $x i32) (param $y i32) (result i32) local.get 0 local.get 1 i32.add)
  (export "add" (func $add))
  (memory (export "mem") 1 2)
)`

func TestCompileModule_TextFormat(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)
	require.NotNil(t, compiled)
}

func TestCompileModule_InvalidSource(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	_, err := r.CompileModule(ctx, []byte("(module (func (result i32) i32.const 1 i32.const 2))"))
	require.Error(t, err)
}

func TestInstantiateModule_DefaultsNameFromSource(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)
	require.Equal(t, "add", mod.Name())
}

func TestInstantiateModule_WithName(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("renamed"))
	require.NoError(t, err)
	require.Equal(t, "renamed", mod.Name())
}

func TestExportedFunction_Call(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	add := mod.ExportedFunction("add")
	require.NotNil(t, add)

	results, err := add.Call(ctx, 40, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(42), results[0])
}

func TestExportedFunction_Missing(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	require.Nil(t, mod.ExportedFunction("subtract"))
}

func TestExportedMemory_ReadWrite(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	mem := mod.ExportedMemory("mem")
	require.NotNil(t, mem)
	require.Equal(t, uint32(65536), mem.Size(ctx))

	require.True(t, mem.WriteUint32Le(ctx, 8, 0xdeadbeef))
	v, ok := mem.ReadUint32Le(ctx, 8)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v)

	_, ok = mem.ReadUint32Le(ctx, mem.Size(ctx)-3)
	require.False(t, ok)
}

func TestMemory_Grow(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	mem := mod.ExportedMemory("mem")
	previous, ok := mem.Grow(ctx, 1)
	require.True(t, ok)
	require.Equal(t, uint32(1), previous)
	require.Equal(t, uint32(2*65536), mem.Size(ctx))

	// mem's declared max is 2 pages; growing past it fails.
	_, ok = mem.Grow(ctx, 1)
	require.False(t, ok)
}

func TestCompileModule_UnrecognizedSourceFails(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime()
	defer r.Close(ctx)

	textCompiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)
	_ = textCompiled

	// Binary detection is driven purely off the leading magic bytes: confirm a short, non-"\0asm",
	// non-"(" input still reaches the text decoder and fails there rather than panicking.
	_, err = r.CompileModule(ctx, []byte("not wasm"))
	require.Error(t, err)
}

func TestRuntimeConfig_WithMemoryMaxPages(t *testing.T) {
	ctx := context.Background()
	r := NewRuntimeWithConfig(NewRuntimeConfigInterpreter().WithMemoryMaxPages(1))
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte(addModule))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil)
	require.NoError(t, err)

	mem := mod.ExportedMemory("mem")
	_, ok := mem.Grow(ctx, 1)
	require.False(t, ok, "RuntimeConfig.WithMemoryMaxPages(1) should cap growth below the module's own max of 2")
}
