package wasm

import (
	"context"
	"reflect"
)

// MemoryMaxPages is the maximum number of 64KiB pages a linear memory can grow to absent an explicit
// narrower Max in its MemoryType: 65536 pages, i.e. the full 4GiB addressable by a 32-bit offset.
const MemoryMaxPages = 65536

// Reference is an opaque table/externref value: either a function index (funcref) or a host-supplied
// pointer-shaped value (externref). RefTypeNull is the zero value for both.
type Reference = uint64

// RefTypeNull is the null reference, shared by funcref and externref.
const RefTypeNull Reference = 0

// FunctionKind classifies a FunctionInstance as either Wasm-defined or host-supplied.
type FunctionKind byte

const (
	FunctionKindWasm FunctionKind = iota
	FunctionKindGoNoContext
	FunctionKindGoContext
)

// FunctionInstance represents a function instance in a Store: the static Code plus the runtime identity
// (owning ModuleInstance, interned TypeID, index namespace position) assigned during instantiation.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-instances%E2%91%A0
type FunctionInstance struct {
	DebugName string
	Kind      FunctionKind
	Type      *FunctionType

	// LocalTypes and Body are set when Kind == FunctionKindWasm.
	LocalTypes []ValueType
	Body       []byte

	// GoFunc holds the reflect.Value of a host function. Set when Kind != FunctionKindWasm.
	GoFunc *reflect.Value

	Module *ModuleInstance
	TypeID FunctionTypeID
	Idx    Index

	moduleName  string
	name        string
	paramNames  []string
	exportNames []string
}

func (f *FunctionInstance) Index() uint32        { return f.Idx }
func (f *FunctionInstance) Name() string         { return f.name }
func (f *FunctionInstance) ModuleName() string   { return f.moduleName }
func (f *FunctionInstance) ExportNames() []string { return f.exportNames }
func (f *FunctionInstance) ParamNames() []string  { return f.paramNames }

// GlobalInstance represents a global instance in a Store: a GlobalType plus its current 64-bit-encoded
// value. Mutable globals are mutated in place by global.set and by host Global.Set; immutable globals are
// only ever read.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Type *GlobalType
	// Val holds a 64-bit representation of the actual value, reinterpreted per Type.Value.
	Val uint64
}

// MemoryInstance represents a memory instance in a Store backed by a platform.GuardedMemory reservation
// so that out-of-bounds byte accesses are caught by both the interpreter's explicit bounds check and, on
// supported platforms, a second line of defense from the guard region.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
type MemoryInstance struct {
	Min      uint32
	Max      uint32
	IsShared bool

	guarded guardedBacking
}

// guardedBacking is satisfied by platform.GuardedMemory; kept as an interface here so internal/wasm does not
// import internal/platform directly and pick up a build-tag dependency.
type guardedBacking interface {
	Bytes() []byte
	Grow(newPages uint32) error
	Close() error
}

// NewMemoryInstance wraps an already-allocated guarded backing store sized to mt.Min pages.
func NewMemoryInstance(mt *MemoryType, backing guardedBacking) *MemoryInstance {
	max := MemoryMaxPages
	if mt.Max != nil {
		max = int(*mt.Max)
	}
	return &MemoryInstance{Min: mt.Min, Max: uint32(max), IsShared: mt.IsShared, guarded: backing}
}

// Buffer returns the currently committed linear memory bytes.
func (m *MemoryInstance) Buffer() []byte { return m.guarded.Bytes() }

// PageSize returns the current size of the memory in 64KiB pages.
func (m *MemoryInstance) PageSize() uint32 { return uint32(len(m.guarded.Bytes()) / WasmPageSizeBytes) }

// WasmPageSizeBytes mirrors platform.WasmPageSize without importing internal/platform from this file.
const WasmPageSizeBytes = 65536

// Grow grows the memory by delta pages, returning the previous size in pages, or false if the grow would
// exceed Max or the guarded reservation cannot grow. Shared and non-shared memories grow alike: no check is
// made for other references to a shared memory. This never shrinks memory: the instruction has no facility
// to do so.
func (m *MemoryInstance) Grow(delta uint32) (previousPages uint32, ok bool) {
	previous := m.PageSize()
	next := previous + delta
	if next < previous /* overflow */ || next > m.Max {
		return previous, false
	}
	if err := m.guarded.Grow(next); err != nil {
		return previous, false
	}
	return previous, true
}

// Close releases the underlying guarded reservation.
func (m *MemoryInstance) Close() error { return m.guarded.Close() }

// TableInstance represents a table instance in a Store: a slice of Reference, growable up to Max.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	References []Reference
	Min        uint32
	Max        *uint32
	Type       ValueType
}

// Grow grows the table by delta elements, filling new slots with fillValue, returning the previous size in
// elements, or false if the grow would exceed Max.
func (t *TableInstance) Grow(delta uint32, fillValue Reference) (previous uint32, ok bool) {
	previous = uint32(len(t.References))
	next := previous + delta
	if next < previous {
		return previous, false
	}
	if t.Max != nil && next > *t.Max {
		return previous, false
	}
	grown := make([]Reference, next)
	copy(grown, t.References)
	for i := previous; i < next; i++ {
		grown[i] = fillValue
	}
	t.References = grown
	return previous, true
}

// ElementInstance holds the references produced by a passive ElementSegment, consumed by table.init.
//
// https://www.w3.org/TR/2022/WD-wasm-core-2-20220419/exec/runtime.html#element-instances
type ElementInstance struct {
	References []Reference
	Type       ValueType
}

// ExportInstance is an entry in a ModuleInstance's export namespace: exactly one of the typed fields is set,
// selected by Type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-exportinst
type ExportInstance struct {
	Type     ExternType
	Function *FunctionInstance
	Global   *GlobalInstance
	Memory   *MemoryInstance
	Table    *TableInstance
}

// DataInstance holds the bytes of a data segment, consumed by memory.init and, for active segments, already
// copied into the owning memory during instantiation.
type DataInstance = []byte

// SysContext carries the host-provided environment that a ModuleInstance was instantiated with: its program
// arguments. It holds no resource that needs closing. It intentionally excludes anything
// resembling WASI's ABI surface: providing a POSIX-like filesystem or process model to guest code is an
// external collaborator's job, not this runtime core's.
type SysContext struct {
	Args [][]byte
}

// NewSysContext constructs a SysContext with the given program arguments.
func NewSysContext(args ...string) *SysContext {
	c := &SysContext{}
	for _, a := range args {
		c.Args = append(c.Args, []byte(a))
	}
	return c
}

// CallContext is the default calling context passed to a ModuleInstance's host function invocations and
// Runtime API calls: effectively "this module, plus the Store and Sys environment it was instantiated
// with."
type CallContext struct {
	ctx    context.Context
	store  *Store
	module *ModuleInstance
	sys    *SysContext
}

// NewCallContext constructs the default CallContext for a freshly instantiated ModuleInstance.
func NewCallContext(s *Store, m *ModuleInstance, sys *SysContext) *CallContext {
	if sys == nil {
		sys = NewSysContext()
	}
	return &CallContext{store: s, module: m, sys: sys}
}

// Module returns the ModuleInstance this CallContext calls into.
func (c *CallContext) Module() *ModuleInstance { return c.module }

// Sys returns the SysContext this CallContext's module was instantiated with.
func (c *CallContext) Sys() *SysContext { return c.sys }

// WithContext returns a shallow copy of c carrying ctx as its default context for calls that receive a nil
// context.Context.
func (c *CallContext) WithContext(ctx context.Context) *CallContext {
	cp := *c
	cp.ctx = ctx
	return &cp
}

// Context returns the context.Context calls through this CallContext default to when passed nil.
func (c *CallContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Close closes the owning ModuleInstance's Memory, if present, and removes the module from its Store.
func (c *CallContext) Close(ctx context.Context) error {
	return c.CloseWithExitCode(ctx, 0)
}

// CloseWithExitCode closes the owning ModuleInstance, making its name available for a future Instantiate.
func (c *CallContext) CloseWithExitCode(ctx context.Context, exitCode uint32) (err error) {
	if c.module.Memory != nil {
		if cerr := c.module.Memory.Close(); cerr != nil {
			err = cerr
		}
	}
	c.store.deleteModule(c.module.Name)
	return
}

// TableInitEntry describes one contiguous run of an ElementSegment that a ModuleEngine must materialize as
// callable references inside a TableInstance at instantiation time.
type TableInitEntry struct {
	TableIndex Index
	Offset     uint32
	FunctionIndexes []Index
}

// Engine is a global, Compartment-scoped context responsible for compiling Modules into an executable form
// and instantiating that form per Store.Instantiate. An interpreter, a bytecode-compiling engine, and (were
// this runtime to grow one) a native-code-generating engine all implement this same contract.
type Engine interface {
	// CompileModule eagerly prepares module for instantiation, caching whatever intermediate form this
	// Engine needs to instantiate it cheaply and repeatedly.
	CompileModule(ctx context.Context, module *Module) error

	// CompiledModuleCount returns the number of modules currently cached by CompileModule.
	CompiledModuleCount() uint32

	// DeleteCompiledModule releases whatever CompileModule cached for module.
	DeleteCompiledModule(module *Module)

	// NewModuleEngine creates the per-instantiation ModuleEngine for module, named name, wiring tableInits
	// into tables as part of instantiation.
	NewModuleEngine(name string, module *Module, importedFunctions, moduleFunctions []*FunctionInstance,
		tables []*TableInstance, tableInits []TableInitEntry) (ModuleEngine, error)
}

// ModuleEngine is the per-ModuleInstance executable form produced by Engine.NewModuleEngine.
type ModuleEngine interface {
	Name() string

	// Call invokes f, which must belong to the ModuleInstance this ModuleEngine was created for (or be
	// reachable from it via import), passing params encoded per f.Type.Params and returning results encoded
	// per f.Type.Results.
	Call(ctx context.Context, callCtx *CallContext, f *FunctionInstance, params ...uint64) (results []uint64, err error)

	// CreateFuncElementInstance materializes indexes (a passive ElementSegment's Init) into an
	// ElementInstance of callable Reference values.
	CreateFuncElementInstance(indexes []Index) *ElementInstance
}
