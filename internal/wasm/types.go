package wasm

import (
	"fmt"
	"strings"
	"sync"
)

// FunctionTypeID is a handle for a FunctionType, unique within the typeIDPool (one per Compartment) that
// assigned it. Two function types with identical signatures interned in the same pool always resolve to the
// same FunctionTypeID. The interpreter's call_indirect does not compare these IDs: it compares signatures with
// EqualsSignature.
type FunctionTypeID uint32

// maxFunctionTypes bounds each Compartment's intern table. 1<<27 matches the index space addressable by a
// FunctionTypeID without risk of wraparound even for pathological modules that declare a type per function.
const maxFunctionTypes = 1 << 27

// UninitializedFunctionTypeID is used to mark a FunctionTypeID that hasn't been resolved against a typeIDPool yet.
const UninitializedFunctionTypeID FunctionTypeID = 1<<32 - 1

// FunctionType is a function signature, e.g. (param i32 i32) (result i32) in the Text Format.
//
// Multiple instances with an identical Params/Results pair are intended to collapse onto the same
// FunctionTypeID once interned in a typeIDPool: see typeIDPool.getOrAdd.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType

	// paramNumInUint64 and resultNumInUint64 cache the number of uint64 stack slots consumed by Params and
	// produced by Results respectively. Every value type in this implementation, including v128, marshals to
	// one or more uint64 slots, so these are computed once via CacheNumInUint64 and reused by the interpreter
	// to size the value stack without walking Params/Results per call.
	paramNumInUint64, resultNumInUint64 int
	cached                             bool

	// key memoizes String, which is also used as the intern key.
	key string
}

// CacheNumInUint64 computes and memoizes the uint64-slot counts for Params and Results. It must be called at
// least once before ParamNumInUint64 or ResultNumInUint64 are trusted; typeIDPool.getOrAdd calls it as a
// side effect of interning so callers that only ever go through the Store need not call it directly.
func (t *FunctionType) CacheNumInUint64() {
	if t.cached {
		return
	}
	t.paramNumInUint64 = numInUint64(t.Params)
	t.resultNumInUint64 = numInUint64(t.Results)
	t.cached = true
}

func numInUint64(types []ValueType) int {
	n := 0
	for _, v := range types {
		if v == ValueTypeV128 {
			n += 2 // v128 occupies two uint64 stack slots (low, high).
		} else {
			n++
		}
	}
	return n
}

// ParamNumInUint64 returns the number of uint64 value-stack slots consumed by Params. CacheNumInUint64 must
// have run first.
func (t *FunctionType) ParamNumInUint64() int { return t.paramNumInUint64 }

// ResultNumInUint64 returns the number of uint64 value-stack slots produced by Results. CacheNumInUint64 must
// have run first.
func (t *FunctionType) ResultNumInUint64() int { return t.resultNumInUint64 }

// String implements fmt.Stringer, also used as the intern key: two *FunctionType with the same String are
// the same signature. The format is paramTypes_resultTypes, each side "null" when empty, e.g. "i32f64_i32".
func (t *FunctionType) String() string {
	if t.key != "" {
		return t.key
	}
	var sb strings.Builder
	writeValueTypes(&sb, t.Params)
	sb.WriteByte('_')
	writeValueTypes(&sb, t.Results)
	t.key = sb.String()
	return t.key
}

func writeValueTypes(sb *strings.Builder, types []ValueType) {
	if len(types) == 0 {
		sb.WriteString("null")
		return
	}
	for _, v := range types {
		sb.WriteString(ValueTypeName(v))
	}
}

// EqualsSignature returns true if params and results match Params and Results exactly, including order.
func (t *FunctionType) EqualsSignature(params, results []ValueType) bool {
	if len(t.Params) != len(params) || len(t.Results) != len(results) {
		return false
	}
	for i, p := range params {
		if t.Params[i] != p {
			return false
		}
	}
	for i, r := range results {
		if t.Results[i] != r {
			return false
		}
	}
	return true
}

// typeIDPool interns FunctionType values into FunctionTypeID handles, shared by every Store in a Compartment
// per the type-equivalence rules wasm gives call_indirect. The pool is process-wide-shaped but instantiated
// per Compartment so that two unrelated Compartments can't observe each other's type IDs.
type typeIDPool struct {
	mux     sync.RWMutex
	typeIDs map[string]FunctionTypeID
	types   []*FunctionType
}

func newTypeIDPool() *typeIDPool {
	return &typeIDPool{typeIDs: map[string]FunctionTypeID{}}
}

// getOrAdd interns ft, returning the canonical FunctionTypeID. ft.CacheNumInUint64 is invoked as a side effect.
func (p *typeIDPool) getOrAdd(ft *FunctionType) FunctionTypeID {
	ft.CacheNumInUint64()
	key := ft.String()

	p.mux.RLock()
	if id, ok := p.typeIDs[key]; ok {
		p.mux.RUnlock()
		return id
	}
	p.mux.RUnlock()

	p.mux.Lock()
	defer p.mux.Unlock()
	if id, ok := p.typeIDs[key]; ok {
		return id
	}
	if len(p.types) >= maxFunctionTypes {
		panic(fmt.Errorf("too many function types in a single compartment: exceeded %d", maxFunctionTypes))
	}
	id := FunctionTypeID(len(p.types))
	p.typeIDs[key] = id
	p.types = append(p.types, ft)
	return id
}

func (p *typeIDPool) lookup(id FunctionTypeID) *FunctionType {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return p.types[id]
}

// Limits describes the min/max page or element count shared by TableType and MemoryType.
type Limits struct {
	Min uint32
	Max *uint32
}

// TableType describes a table's element type and size constraints. Only ValueTypeFuncref and
// ValueTypeExternref are legal ElemType values.
type TableType struct {
	ElemType ValueType
	Limit    *Limits
}

// MemoryType describes a linear memory's size constraints in 64KiB pages, and whether it may be shared
// across Instances (FeatureThreads). A nil Max means unbounded up to MemoryMaxPages.
type MemoryType struct {
	Min      uint32
	Max      *uint32
	IsShared bool
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Value   ValueType
	Mutable bool
}

// ExceptionType, aka a "tag", describes the parameter types carried by a thrown exception under
// FeatureExceptionHandling. Exceptions have no results: throwing unwinds the stack rather than returning.
type ExceptionType struct {
	Params []ValueType
}

// ObjectKind classifies an entry in the import/export namespace. This intentionally mirrors api.ExternType
// byte-for-byte so decoding and validation can switch on either.
type ObjectKind = byte

const (
	ObjectKindFunction ObjectKind = 0x00
	ObjectKindTable    ObjectKind = 0x01
	ObjectKindMemory   ObjectKind = 0x02
	ObjectKindGlobal   ObjectKind = 0x03
	// ObjectKindException is wazero-proper's extension for the exception-handling proposal's tag imports/exports.
	ObjectKindException ObjectKind = 0x04
)

// ObjectType is the union of possible import/export types, discriminated by Kind.
type ObjectType struct {
	Kind ObjectKind

	FunctionType  *FunctionType
	TableType     *TableType
	MemoryType    *MemoryType
	GlobalType    *GlobalType
	ExceptionType *ExceptionType
}
