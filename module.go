package wazero

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wazerun/wazero/api"
	"github.com/wazerun/wazero/internal/wasm"
)

// moduleInstance implements api.Module, wrapping the wasm.CallContext produced by Store.Instantiate or
// Store.InstantiateHostModule.
type moduleInstance struct {
	callCtx *wasm.CallContext
}

// String implements fmt.Stringer via api.Module.
func (m *moduleInstance) String() string {
	return fmt.Sprintf("Module[%s]", m.callCtx.Module().Name)
}

// Name implements api.Module.Name.
func (m *moduleInstance) Name() string {
	return m.callCtx.Module().Name
}

// Memory implements api.Module.Memory.
func (m *moduleInstance) Memory() api.Memory {
	mem := m.callCtx.Module().Memory
	if mem == nil {
		return nil
	}
	return &moduleMemory{mem: mem}
}

// ExportedFunction implements api.Module.ExportedFunction.
func (m *moduleInstance) ExportedFunction(name string) api.Function {
	exp, ok := m.callCtx.Module().Exports[name]
	if !ok || exp.Type != wasm.ExternTypeFunc {
		return nil
	}
	return &function{fn: exp.Function}
}

// ExportedMemory implements api.Module.ExportedMemory.
func (m *moduleInstance) ExportedMemory(name string) api.Memory {
	exp, ok := m.callCtx.Module().Exports[name]
	if !ok || exp.Type != wasm.ExternTypeMemory {
		return nil
	}
	return &moduleMemory{mem: exp.Memory}
}

// ExportedGlobal implements api.Module.ExportedGlobal.
func (m *moduleInstance) ExportedGlobal(name string) api.Global {
	exp, ok := m.callCtx.Module().Exports[name]
	if !ok || exp.Type != wasm.ExternTypeGlobal {
		return nil
	}
	return globalFor(exp.Global)
}

// CloseWithExitCode implements api.Module.CloseWithExitCode.
func (m *moduleInstance) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return m.callCtx.CloseWithExitCode(ctx, exitCode)
}

// Close implements api.Closer via api.Module.
func (m *moduleInstance) Close(ctx context.Context) error {
	return m.CloseWithExitCode(ctx, 0)
}

// functionDefinition implements api.FunctionDefinition.
type functionDefinition struct {
	fn *wasm.FunctionInstance
}

func (d *functionDefinition) ModuleName() string { return d.fn.ModuleName() }
func (d *functionDefinition) Index() uint32      { return d.fn.Index() }
func (d *functionDefinition) Name() string       { return d.fn.Name() }

func (d *functionDefinition) DebugName() string {
	if d.fn.DebugName != "" {
		return d.fn.DebugName
	}
	return fmt.Sprintf("%s.$%d", d.fn.ModuleName(), d.fn.Index())
}

// Import implements api.FunctionDefinition.Import. wazero shares a single FunctionInstance between an
// importing and its exporting module, so this always reports the function's own defining module rather than
// whether the module being queried imported it.
func (d *functionDefinition) Import() (moduleName, name string, isImport bool) {
	return d.fn.ModuleName(), d.fn.Name(), false
}

func (d *functionDefinition) ExportNames() []string       { return d.fn.ExportNames() }
func (d *functionDefinition) GoFunc() *reflect.Value      { return d.fn.GoFunc }
func (d *functionDefinition) ParamTypes() []api.ValueType { return d.fn.Type.Params }
func (d *functionDefinition) ParamNames() []string        { return d.fn.ParamNames() }
func (d *functionDefinition) ResultTypes() []api.ValueType {
	return d.fn.Type.Results
}

// function implements api.Function, calling through the owning ModuleInstance's ModuleEngine. A function
// reached via an import is the same FunctionInstance the exporting module built, so it dispatches through
// that module's own Engine/CallCtx regardless of which module's ExportedFunction returned it.
type function struct {
	fn *wasm.FunctionInstance
}

// Definition implements api.Function.Definition.
func (f *function) Definition() api.FunctionDefinition {
	return &functionDefinition{fn: f.fn}
}

// Call implements api.Function.Call.
func (f *function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return f.fn.Module.Engine.Call(ctx, f.fn.Module.CallCtx, f.fn, params...)
}

// global implements api.Global.
type global struct {
	g *wasm.GlobalInstance
}

// mutableGlobal implements api.MutableGlobal, embedding global.
type mutableGlobal struct {
	global
}

// globalFor wraps g as api.Global, upgrading to api.MutableGlobal when g.Type.Mutable.
func globalFor(g *wasm.GlobalInstance) api.Global {
	if g.Type.Mutable {
		return &mutableGlobal{global{g: g}}
	}
	return &global{g: g}
}

func (g *global) String() string {
	return fmt.Sprintf("Global[%s]", api.ValueTypeName(g.g.Type.Value))
}

func (g *global) Type() api.ValueType { return g.g.Type.Value }

func (g *global) Get(context.Context) uint64 { return g.g.Val }

func (g *mutableGlobal) Set(_ context.Context, v uint64) { g.g.Val = v }

// moduleMemory implements api.Memory over a wasm.MemoryInstance.
type moduleMemory struct {
	mem *wasm.MemoryInstance
}

func (m *moduleMemory) Size(context.Context) uint32 {
	return uint32(len(m.mem.Buffer()))
}

func (m *moduleMemory) Grow(_ context.Context, deltaPages uint32) (uint32, bool) {
	return m.mem.Grow(deltaPages)
}

func (m *moduleMemory) ReadByte(_ context.Context, offset uint32) (byte, bool) {
	buf := m.mem.Buffer()
	if offset >= uint32(len(buf)) {
		return 0, false
	}
	return buf[offset], true
}

func (m *moduleMemory) ReadUint16Le(_ context.Context, offset uint32) (uint16, bool) {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 2) {
		return 0, false
	}
	return uint16(buf[offset]) | uint16(buf[offset+1])<<8, true
}

func (m *moduleMemory) ReadUint32Le(_ context.Context, offset uint32) (uint32, bool) {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 4) {
		return 0, false
	}
	return le32(buf[offset:]), true
}

func (m *moduleMemory) ReadFloat32Le(ctx context.Context, offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(ctx, offset)
	if !ok {
		return 0, false
	}
	return api.DecodeF32(uint64(v)), true
}

func (m *moduleMemory) ReadUint64Le(_ context.Context, offset uint32) (uint64, bool) {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 8) {
		return 0, false
	}
	return uint64(le32(buf[offset:])) | uint64(le32(buf[offset+4:]))<<32, true
}

func (m *moduleMemory) ReadFloat64Le(ctx context.Context, offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(ctx, offset)
	if !ok {
		return 0, false
	}
	return api.DecodeF64(v), true
}

func (m *moduleMemory) Read(_ context.Context, offset, byteCount uint32) ([]byte, bool) {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, byteCount) {
		return nil, false
	}
	return buf[offset : offset+byteCount : offset+byteCount], true
}

func (m *moduleMemory) WriteByte(_ context.Context, offset uint32, v byte) bool {
	buf := m.mem.Buffer()
	if offset >= uint32(len(buf)) {
		return false
	}
	buf[offset] = v
	return true
}

func (m *moduleMemory) WriteUint16Le(_ context.Context, offset uint32, v uint16) bool {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 2) {
		return false
	}
	buf[offset], buf[offset+1] = byte(v), byte(v>>8)
	return true
}

func (m *moduleMemory) WriteUint32Le(_ context.Context, offset, v uint32) bool {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 4) {
		return false
	}
	putLE32(buf[offset:], v)
	return true
}

func (m *moduleMemory) WriteFloat32Le(ctx context.Context, offset uint32, v float32) bool {
	return m.WriteUint32Le(ctx, offset, uint32(api.EncodeF32(v)))
}

func (m *moduleMemory) WriteUint64Le(_ context.Context, offset uint32, v uint64) bool {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, 8) {
		return false
	}
	putLE32(buf[offset:], uint32(v))
	putLE32(buf[offset+4:], uint32(v>>32))
	return true
}

func (m *moduleMemory) WriteFloat64Le(ctx context.Context, offset uint32, v float64) bool {
	return m.WriteUint64Le(ctx, offset, api.EncodeF64(v))
}

func (m *moduleMemory) Write(_ context.Context, offset uint32, v []byte) bool {
	buf := m.mem.Buffer()
	if !inBounds(buf, offset, uint32(len(v))) {
		return false
	}
	copy(buf[offset:], v)
	return true
}

func inBounds(buf []byte, offset, byteCount uint32) bool {
	end := uint64(offset) + uint64(byteCount)
	return end <= uint64(len(buf))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
