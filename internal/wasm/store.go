package wasm

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Store is the runtime representation of every module instantiated within one Compartment: it tracks
// instance identity (so two modules can't claim the same name), resolves cross-module imports, and owns the
// Engine responsible for compiling and executing code.
//
// Every type whose name ends in "Instance" belongs to exactly one Store.
//
// Store itself is safe for concurrent use; the instances it hands out are not, beyond what their own docs
// promise.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#store%E2%91%A0
type Store struct {
	EnabledFeatures Features
	Engine          Engine

	mux         sync.RWMutex
	moduleNames map[string]struct{}
	modules     map[string]*ModuleInstance

	types *typeIDPool
}

// Compartment groups every Store that shares a single type-identity domain: two Stores in the same
// Compartment agree on FunctionTypeID assignment, so a funcref exported from one can be called indirectly
// through a table owned by the other without a type-identity mismatch. A Compartment with a single Store is
// the common case; multiple Stores per Compartment exist to let unrelated groups of modules share Engine
// compilation caches while still isolating their module-name namespaces.
type Compartment struct {
	types *typeIDPool
}

// NewCompartment creates an empty Compartment.
func NewCompartment() *Compartment {
	return &Compartment{types: newTypeIDPool()}
}

// NewStore creates a Store within c, running engine for every module instantiated through it.
func NewStore(c *Compartment, enabledFeatures Features, engine Engine) *Store {
	return &Store{
		EnabledFeatures: enabledFeatures,
		Engine:          engine,
		moduleNames:     map[string]struct{}{},
		modules:         map[string]*ModuleInstance{},
		types:           c.types,
	}
}

// ModuleInstance represents an instantiated Wasm module. Unlike the spec's address-indirection model, a
// ModuleInstance holds pointers directly to its Functions/Globals/etc for convenience, rather than indexes
// into per-kind Store-wide arrays.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
type ModuleInstance struct {
	Name    string
	Exports map[string]*ExportInstance

	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Tables    []*TableInstance
	Types     []FunctionType

	// Memory is set when Module.MemorySection declared a memory, whether or not it was exported.
	Memory *MemoryInstance

	// TypeIDs is index-correlated with Types, holding the Compartment-wide FunctionTypeID assigned to each.
	TypeIDs []FunctionTypeID

	DataInstances    []DataInstance
	ElementInstances []ElementInstance

	CallCtx *CallContext
	Engine  ModuleEngine
}

// Linker resolves an import by (moduleName, exportName) against the set of modules already instantiated in
// a Store; Store implements it via Resolve. Store.Instantiate takes no Linker: it resolves imports with
// Store.resolveImports against the modules registered in the Store, so no other Linker takes part in
// instantiation.
type Linker interface {
	// Resolve returns the export instance backing (moduleName, exportName), or ok=false if no such export is
	// currently visible.
	Resolve(moduleName, exportName string) (exp *ExportInstance, ok bool)
}

// Resolve implements Linker by looking up an already-instantiated module in the Store.
func (s *Store) Resolve(moduleName, exportName string) (*ExportInstance, bool) {
	m := s.module(moduleName)
	if m == nil {
		return nil, false
	}
	exp, ok := m.Exports[exportName]
	return exp, ok
}

func (m *ModuleInstance) getExport(name string, et ExternType) (*ExportInstance, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported in module %q", name, m.Name)
	}
	if exp.Type != et {
		return nil, fmt.Errorf("export %q in module %q is a %s, not a %s", name, m.Name, ExternTypeName(exp.Type), ExternTypeName(et))
	}
	return exp, nil
}

func (m *ModuleInstance) buildExports(exports map[string]*Export) {
	m.Exports = make(map[string]*ExportInstance, len(exports))
	for name, exp := range exports {
		index := exp.Index
		var ei *ExportInstance
		switch exp.Type {
		case ExternTypeFunc:
			ei = &ExportInstance{Type: exp.Type, Function: m.Functions[index]}
		case ExternTypeGlobal:
			ei = &ExportInstance{Type: exp.Type, Global: m.Globals[index]}
		case ExternTypeMemory:
			ei = &ExportInstance{Type: exp.Type, Memory: m.Memory}
		case ExternTypeTable:
			ei = &ExportInstance{Type: exp.Type, Table: m.Tables[index]}
		}
		m.Exports[name] = ei
	}
}

func (m *ModuleInstance) buildDataInstances(segments []*DataSegment) {
	for _, d := range segments {
		m.DataInstances = append(m.DataInstances, d.Init)
	}
}

// validateData checks every active DataSegment's offset against the already-materialized Memory, which
// Instantiate must do after imports/memory are resolved but before any segment is actually copied in: an
// out-of-bounds active segment must fail instantiation atomically, leaving no partial memory writes visible.
func (m *ModuleInstance) validateData(data []*DataSegment) error {
	for _, d := range data {
		if d.Passive {
			continue
		}
		offset, err := evaluateConstantExpressionI32(d.OffsetExpr, m.Globals)
		if err != nil {
			return err
		}
		ceil := int64(offset) + int64(len(d.Init))
		if offset < 0 || m.Memory == nil || ceil > int64(len(m.Memory.Buffer())) {
			return wrapTrap(NewTrap(TrapCodeOutOfBoundsMemoryAccess), "data segment out of bounds")
		}
	}
	return nil
}

func (m *ModuleInstance) applyData(data []*DataSegment) {
	for _, d := range data {
		if d.Passive {
			continue
		}
		offset, _ := evaluateConstantExpressionI32(d.OffsetExpr, m.Globals)
		copy(m.Memory.Buffer()[offset:], d.Init)
	}
}

func (m *ModuleInstance) buildElementInstances(elements []*ElementSegment) {
	m.ElementInstances = make([]ElementInstance, len(elements))
	for i, elm := range elements {
		if elm.Type == ValueTypeFuncref && elm.Mode == ElementModePassive {
			m.ElementInstances[i] = *m.Engine.CreateFuncElementInstance(elm.Init)
		}
	}
}

// Instantiate resolves module's imports against modules already visible in s, builds every runtime instance
// (globals, memory, tables, functions), hands them to s.Engine for compilation, applies active element and
// data segments, and finally runs the start function if declared — all per the seven-step protocol: resolve
// imports, allocate instances, initialize globals, initialize tables (validate only), initialize memory
// (validate only), apply table/memory initialization, run start. A failure at any step leaves no trace: name
// is freed and no partial instance becomes visible for import.
//
// Module.Validate (and, for a fresh decode, the decoder's own structural checks) must have already succeeded;
// Instantiate does not re-run validation.
func (s *Store) Instantiate(
	ctx context.Context,
	module *Module,
	name string,
	sys *SysContext,
	memAlloc func(mt *MemoryType) (*MemoryInstance, error),
) (*CallContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.requireModuleName(name); err != nil {
		return nil, err
	}

	typeIDs := s.internTypes(module.TypeSection)

	importedFunctions, importedGlobals, importedTables, importedMemory, err := s.resolveImports(module)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}

	m := &ModuleInstance{Name: name, Types: module.TypeSection, TypeIDs: typeIDs}

	globals := buildGlobals(module.GlobalSection, importedGlobals)
	m.Globals = append(append([]*GlobalInstance{}, importedGlobals...), globals...)

	tables, tableInits, err := buildTables(module, importedTables, m.Globals)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}
	m.Tables = tables

	if importedMemory != nil {
		m.Memory = importedMemory
	} else if len(module.MemorySection) > 0 {
		mem, err := memAlloc(module.MemorySection[0])
		if err != nil {
			s.deleteModule(name)
			return nil, err
		}
		m.Memory = mem
	}

	// release undoes this call's own memory allocation and frees name, for failures past this point.
	release := func() {
		if importedMemory == nil && m.Memory != nil {
			_ = m.Memory.Close()
		}
		s.deleteModule(name)
	}

	functions := buildFunctions(m, name, module, typeIDs)
	m.Functions = append(append([]*FunctionInstance{}, importedFunctions...), functions...)

	m.buildExports(module.ExportSection)
	m.buildDataInstances(module.DataSection)

	if err := m.validateData(module.DataSection); err != nil {
		release()
		return nil, err
	}

	m.Engine, err = s.Engine.NewModuleEngine(name, module, importedFunctions, functions, tables, tableInits)
	if err != nil {
		release()
		return nil, fmt.Errorf("compilation failed: %w", err)
	}

	m.buildElementInstances(module.ElementSection)
	m.applyData(module.DataSection)

	m.CallCtx = NewCallContext(s, m, sys)

	if module.StartSection != nil {
		f := m.Functions[*module.StartSection]
		if _, err := m.Engine.Call(ctx, m.CallCtx, f); err != nil {
			release()
			return nil, fmt.Errorf("start function failed: %w", err)
		}
	}

	s.addModule(m)
	return m.CallCtx, nil
}

func buildGlobals(defs []*Global, imported []*GlobalInstance) []*GlobalInstance {
	out := make([]*GlobalInstance, len(defs))
	for i, g := range defs {
		v, _ := evaluateConstantExpression(g.Init, imported)
		out[i] = &GlobalInstance{Type: g.Type, Val: v}
	}
	return out
}

func buildTables(module *Module, imported []*TableInstance, globals []*GlobalInstance) ([]*TableInstance, []TableInitEntry, error) {
	defined := make([]*TableInstance, len(module.TableSection))
	for i, tt := range module.TableSection {
		max := uint32(0)
		var maxPtr *uint32
		if tt.Limit.Max != nil {
			max = *tt.Limit.Max
			maxPtr = &max
		}
		defined[i] = &TableInstance{
			References: make([]Reference, tt.Limit.Min),
			Min:        tt.Limit.Min,
			Max:        maxPtr,
			Type:       tt.ElemType,
		}
	}
	all := append(append([]*TableInstance{}, imported...), defined...)

	var inits []TableInitEntry
	for _, elm := range module.ElementSection {
		if elm.Mode != ElementModeActive {
			continue
		}
		offset, err := evaluateConstantExpressionI32(elm.OffsetExpr, globals)
		if err != nil {
			return nil, nil, err
		}
		if int(elm.TableIndex) >= len(all) {
			return nil, nil, fmt.Errorf("element segment references out-of-range table %d", elm.TableIndex)
		}
		t := all[elm.TableIndex]
		ceil := int64(offset) + int64(len(elm.Init))
		if offset < 0 || ceil > int64(len(t.References)) {
			return nil, nil, wrapTrap(NewTrap(TrapCodeOutOfBoundsTableAccess), "active element segment out of bounds")
		}
		inits = append(inits, TableInitEntry{TableIndex: elm.TableIndex, Offset: uint32(offset), FunctionIndexes: elm.Init})
	}
	return all, inits, nil
}

func buildFunctions(m *ModuleInstance, moduleName string, module *Module, typeIDs []FunctionTypeID) []*FunctionInstance {
	importFuncCount := module.ImportFuncCount()
	out := make([]*FunctionInstance, len(module.CodeSection))
	for i, code := range module.CodeSection {
		typeIdx := module.FunctionSection[i]
		out[i] = &FunctionInstance{
			Kind:       FunctionKindWasm,
			Type:       &module.TypeSection[typeIdx],
			LocalTypes: code.LocalTypes,
			Body:       code.Body,
			Module:     m,
			TypeID:     typeIDs[typeIdx],
			Idx:        importFuncCount + Index(i),
			moduleName: moduleName,
		}
	}
	return out
}

func (s *Store) internTypes(ts []FunctionType) []FunctionTypeID {
	ids := make([]FunctionTypeID, len(ts))
	for i := range ts {
		ids[i] = s.types.getOrAdd(&ts[i])
	}
	return ids
}

// HostFunction describes one function a host module exports: a GoFunc-backed FunctionInstance plus the type
// signature the reflect-based call path marshals against.
type HostFunction struct {
	ExportName string
	DebugName  string
	Kind       FunctionKind
	Type       *FunctionType
	GoFunc     *reflect.Value
	ParamNames []string
}

// InstantiateHostModule registers a module of Go-implemented functions (and at most one exported memory,
// already allocated by the caller) under name, the same way Instantiate registers a Wasm-defined module: name
// must be unique, and the result is visible to Store.Resolve for subsequent imports.
func (s *Store) InstantiateHostModule(name string, funcs []HostFunction, memoryExportName string, memory *MemoryInstance) (*CallContext, error) {
	if err := s.requireModuleName(name); err != nil {
		return nil, err
	}

	m := &ModuleInstance{Name: name, Memory: memory}
	types := make([]FunctionType, len(funcs))
	for i, f := range funcs {
		types[i] = *f.Type
	}
	typeIDs := s.internTypes(types)

	m.Functions = make([]*FunctionInstance, len(funcs))
	exports := make(map[string]*ExportInstance, len(funcs)+1)
	for i, f := range funcs {
		fi := &FunctionInstance{
			DebugName:   f.DebugName,
			Kind:        f.Kind,
			Type:        f.Type,
			GoFunc:      f.GoFunc,
			Module:      m,
			TypeID:      typeIDs[i],
			Idx:         Index(i),
			moduleName:  name,
			name:        f.DebugName,
			paramNames:  f.ParamNames,
			exportNames: []string{f.ExportName},
		}
		m.Functions[i] = fi
		exports[f.ExportName] = &ExportInstance{Type: ExternTypeFunc, Function: fi}
	}
	if memory != nil {
		exports[memoryExportName] = &ExportInstance{Type: ExternTypeMemory, Memory: memory}
	}
	m.Exports = exports

	var err error
	m.Engine, err = s.Engine.NewModuleEngine(name, nil, nil, m.Functions, nil, nil)
	if err != nil {
		s.deleteModule(name)
		return nil, fmt.Errorf("compilation failed: %w", err)
	}

	m.CallCtx = NewCallContext(s, m, NewSysContext())
	s.addModule(m)
	return m.CallCtx, nil
}

func (s *Store) deleteModule(moduleName string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.modules, moduleName)
	delete(s.moduleNames, moduleName)
}

func (s *Store) requireModuleName(moduleName string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.moduleNames[moduleName]; ok {
		return fmt.Errorf("module %q has already been instantiated", moduleName)
	}
	s.moduleNames[moduleName] = struct{}{}
	return nil
}

func (s *Store) addModule(m *ModuleInstance) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.modules[m.Name] = m
}

func (s *Store) module(moduleName string) *ModuleInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.modules[moduleName]
}

func (s *Store) resolveImports(module *Module) (
	importedFunctions []*FunctionInstance, importedGlobals []*GlobalInstance,
	importedTables []*TableInstance, importedMemory *MemoryInstance, err error,
) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for idx, i := range module.ImportSection {
		m, ok := s.modules[i.Module]
		if !ok {
			err = fmt.Errorf("module[%s] not instantiated", i.Module)
			return
		}

		imported, ierr := m.getExport(i.Name, i.Type)
		if ierr != nil {
			err = ierr
			return
		}

		switch i.Type {
		case ExternTypeFunc:
			if int(i.DescFunc) >= len(module.TypeSection) {
				err = errorInvalidImport(i, idx, fmt.Errorf("function type out of range"))
				return
			}
			expectedType := &module.TypeSection[i.DescFunc]
			actualType := imported.Function.Type
			if !expectedType.EqualsSignature(actualType.Params, actualType.Results) {
				err = errorInvalidImport(i, idx, fmt.Errorf("signature mismatch: %s != %s", expectedType, actualType))
				return
			}
			importedFunctions = append(importedFunctions, imported.Function)
		case ExternTypeTable:
			expected := i.DescTable
			importedTable := imported.Table
			if expected.Limit.Min > importedTable.Min {
				err = errorMinSizeMismatch(i, idx, expected.Limit.Min, importedTable.Min)
				return
			}
			if expected.Limit.Max != nil {
				expectedMax := *expected.Limit.Max
				if importedTable.Max == nil {
					err = errorNoMax(i, idx, expectedMax)
					return
				} else if expectedMax < *importedTable.Max {
					err = errorMaxSizeMismatch(i, idx, expectedMax, *importedTable.Max)
					return
				}
			}
			importedTables = append(importedTables, importedTable)
		case ExternTypeMemory:
			expected := i.DescMem
			importedMemory = imported.Memory
			if expected.Min > importedMemory.Min {
				err = errorMinSizeMismatch(i, idx, expected.Min, importedMemory.Min)
				return
			}
			expectedMax := uint32(MemoryMaxPages)
			if expected.Max != nil {
				expectedMax = *expected.Max
			}
			if expectedMax < importedMemory.Max {
				err = errorMaxSizeMismatch(i, idx, expectedMax, importedMemory.Max)
				return
			}
		case ExternTypeGlobal:
			expected := i.DescGlobal
			importedGlobal := imported.Global
			if expected.Mutable != importedGlobal.Type.Mutable {
				err = errorInvalidImport(i, idx, fmt.Errorf("mutability mismatch: %t != %t", expected.Mutable, importedGlobal.Type.Mutable))
				return
			}
			if expected.Value != importedGlobal.Type.Value {
				err = errorInvalidImport(i, idx, fmt.Errorf("value type mismatch: %s != %s", ValueTypeName(expected.Value), ValueTypeName(importedGlobal.Type.Value)))
				return
			}
			importedGlobals = append(importedGlobals, importedGlobal)
		}
	}
	return
}

func errorMinSizeMismatch(i *Import, idx int, expected, actual uint32) error {
	return errorInvalidImport(i, idx, fmt.Errorf("minimum size mismatch: %d > %d", expected, actual))
}

func errorNoMax(i *Import, idx int, expected uint32) error {
	return errorInvalidImport(i, idx, fmt.Errorf("maximum size mismatch: %d, but actual has no max", expected))
}

func errorMaxSizeMismatch(i *Import, idx int, expected, actual uint32) error {
	return errorInvalidImport(i, idx, fmt.Errorf("maximum size mismatch: %d < %d", expected, actual))
}

func errorInvalidImport(i *Import, idx int, err error) error {
	return fmt.Errorf("import[%d] %s[%s.%s]: %w", idx, ExternTypeName(i.Type), i.Module, i.Name, err)
}

// wrapTrap adds msg to a Trap raised during instantiation-time checks, before any code has actually run.
func wrapTrap(t *Trap, msg string) error {
	return fmt.Errorf("%s: %w", msg, t)
}
