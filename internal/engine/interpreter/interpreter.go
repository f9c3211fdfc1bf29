// Package interpreter implements wasm.Engine by walking a validated function's instruction stream directly,
// rather than lowering it to an intermediate representation first. Control flow (block/loop/if) is handled
// structurally: a branch unwinds Go's call stack through execBlock rather than jumping through a
// precomputed program counter table. This trades the raw throughput of a flattened bytecode or native-code
// engine for a much smaller, more auditable implementation - an acceptable trade for a runtime whose
// contract is "any lowering is fine as long as trap semantics match."
package interpreter

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"github.com/wazerun/wazero/internal/leb128"
	"github.com/wazerun/wazero/internal/moremath"
	"github.com/wazerun/wazero/internal/wasm"
)

// engine is the interpreter implementation of wasm.Engine: it caches nothing beyond what validation already
// produced, since this interpreter operates directly on wasm.Code.Body.
type engine struct {
	enabledFeatures wasm.Features
	compiled        map[*wasm.Module]struct{}
}

// NewEngine constructs an interpreter-backed wasm.Engine.
func NewEngine(enabledFeatures wasm.Features) wasm.Engine {
	return &engine{enabledFeatures: enabledFeatures, compiled: map[*wasm.Module]struct{}{}}
}

func (e *engine) CompileModule(ctx context.Context, module *wasm.Module) error {
	// Validation (wasm.ValidateFunction, invoked by the decoder/Module.Validate) has already checked every
	// function body; there is no separate lowering step for this engine to do ahead of time.
	e.compiled[module] = struct{}{}
	return nil
}

func (e *engine) CompiledModuleCount() uint32 { return uint32(len(e.compiled)) }

func (e *engine) DeleteCompiledModule(module *wasm.Module) { delete(e.compiled, module) }

func (e *engine) NewModuleEngine(name string, module *wasm.Module, importedFunctions, moduleFunctions []*wasm.FunctionInstance,
	tables []*wasm.TableInstance, tableInits []wasm.TableInitEntry) (wasm.ModuleEngine, error) {
	me := &moduleEngine{name: name, tables: tables}
	for _, init := range tableInits {
		t := tables[init.TableIndex]
		for i, fnIdx := range init.FunctionIndexes {
			t.References[init.Offset+uint32(i)] = wasm.Reference(fnIdx)
		}
	}
	return me, nil
}

// moduleEngine is the per-ModuleInstance executable form: here, simply a handle back to the tables it
// initialized, since function bodies are interpreted directly from wasm.FunctionInstance.Body on every Call.
type moduleEngine struct {
	name   string
	tables []*wasm.TableInstance
}

func (m *moduleEngine) Name() string { return m.name }

func (m *moduleEngine) CreateFuncElementInstance(indexes []wasm.Index) *wasm.ElementInstance {
	refs := make([]wasm.Reference, len(indexes))
	for i, idx := range indexes {
		refs[i] = wasm.Reference(idx)
	}
	return &wasm.ElementInstance{References: refs, Type: wasm.ValueTypeFuncref}
}

func (m *moduleEngine) Call(ctx context.Context, callCtx *wasm.CallContext, f *wasm.FunctionInstance, params ...uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if tr, ok := r.(*wasm.Trap); ok {
				err = tr
				return
			}
			panic(r)
		}
	}()

	if f.Kind != wasm.FunctionKindWasm {
		return callGoFunc(ctx, f.Module.CallCtx, f, params)
	}

	locals := make([]uint64, len(f.Type.Params)+len(f.LocalTypes))
	copy(locals, params)

	ce := &callEngine{ctx: ctx, module: f.Module, locals: locals, frames: 0}
	if _, err := ce.execBlock(f.Body); err != nil {
		return nil, err
	}
	// A function body ends either by falling off its implicit OpcodeEnd or an explicit return; both leave
	// exactly len(f.Type.Results) values on top of the stack.

	results = make([]uint64, len(f.Type.Results))
	base := len(ce.stack) - len(results)
	copy(results, ce.stack[base:])
	return results, nil
}

func callGoFunc(ctx context.Context, callCtx *wasm.CallContext, f *wasm.FunctionInstance, params []uint64) ([]uint64, error) {
	return callWithReflection(ctx, callCtx, f, params)
}

// callEngine holds the per-Call mutable interpreter state: the uint64 value stack and the current function's
// locals. Unlike the teacher's original compiling engine, there is no separate call-frame stack object here:
// nested wasm-to-wasm calls recurse through moduleEngine.Call itself, so Go's own call stack does that job.
type callEngine struct {
	ctx    context.Context
	module *wasm.ModuleInstance
	stack  []uint64
	locals []uint64
	frames int
}

// branch signals a structured control transfer out of execBlock: either an explicit/implicit br of depth
// levels (0 meaning "this block's own label"), or a function return.
type branch struct {
	isReturn bool
	depth    int
}

func (ce *callEngine) push(v uint64)  { ce.stack = append(ce.stack, v) }
func (ce *callEngine) pop() uint64 {
	v := ce.stack[len(ce.stack)-1]
	ce.stack = ce.stack[:len(ce.stack)-1]
	return v
}
func (ce *callEngine) popN(n int) []uint64 {
	base := len(ce.stack) - n
	v := append([]uint64{}, ce.stack[base:]...)
	ce.stack = ce.stack[:base]
	return v
}

// execBlock interprets body (the instruction stream of a function, block, loop or if/else arm) to
// completion, returning the branch that escaped it (nil if it simply reached its end).
func (ce *callEngine) execBlock(body []byte) (*branch, error) {
	ce.frames++
	if ce.frames > callStackCeiling {
		ce.frames--
		panic(wasm.NewTrap(wasm.TrapCodeCallStackExhausted))
	}
	defer func() { ce.frames-- }()

	pc := 0
	for pc < len(body) {
		op := body[pc]
		pc++

		switch op {
		case wasm.OpcodeUnreachable:
			panic(wasm.NewTrap(wasm.TrapCodeUnreachable))
		case wasm.OpcodeNop:
		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			n, blockEnd, err := ce.readSubBlock(body[pc:])
			if err != nil {
				return nil, err
			}
			inner := body[pc+n : pc+blockEnd]
			pc += blockEnd + 1 // past the matching OpcodeEnd
			for {
				br, err := ce.execBlock(inner)
				if err != nil {
					return nil, err
				}
				if br == nil {
					break
				}
				if br.isReturn {
					return br, nil
				}
				if br.depth > 0 {
					return &branch{depth: br.depth - 1}, nil
				}
				if op == wasm.OpcodeLoop {
					continue // branch to a loop's label restarts the loop body
				}
				break // branch to a block's label falls through to after the block
			}
		case wasm.OpcodeIf:
			n, blockEnd, elseAt, err := ce.readIfBlock(body[pc:])
			if err != nil {
				return nil, err
			}
			cond := ce.pop()
			var armStart, armEnd int
			if cond != 0 {
				armStart, armEnd = pc+n, pc+elseAt
			} else if elseAt != blockEnd {
				armStart, armEnd = pc+elseAt+1, pc+blockEnd
			} else {
				armStart, armEnd = pc+blockEnd, pc+blockEnd
			}
			br, err := ce.execBlock(body[armStart:armEnd])
			pc += blockEnd + 1
			if err != nil {
				return nil, err
			}
			if br != nil {
				if br.isReturn {
					return br, nil
				}
				if br.depth > 0 {
					return &branch{depth: br.depth - 1}, nil
				}
			}
		case wasm.OpcodeElse:
			// Only reached when execBlock was called directly on a then/else arm slice, never mid-stream.
			return nil, nil
		case wasm.OpcodeEnd:
			return nil, nil
		case wasm.OpcodeBr:
			depth, n := readU32(body[pc:])
			pc += n
			return &branch{depth: int(depth)}, nil
		case wasm.OpcodeBrIf:
			depth, n := readU32(body[pc:])
			pc += n
			if ce.pop() != 0 {
				return &branch{depth: int(depth)}, nil
			}
		case wasm.OpcodeBrTable:
			count, n := readU32(body[pc:])
			pc += n
			targets := make([]uint32, count+1)
			for i := range targets {
				targets[i], n = readU32(body[pc:])
				pc += n
			}
			idx := uint32(ce.pop())
			if idx >= count {
				idx = count
			}
			return &branch{depth: int(targets[idx])}, nil
		case wasm.OpcodeReturn:
			return &branch{isReturn: true}, nil
		case wasm.OpcodeCall:
			idx, n := readU32(body[pc:])
			pc += n
			if err := ce.call(idx); err != nil {
				return nil, err
			}
		case wasm.OpcodeCallIndirect:
			typeIdx, n := readU32(body[pc:])
			pc += n
			tableIdx, n2 := readU32(body[pc:])
			pc += n2
			if err := ce.callIndirect(typeIdx, tableIdx); err != nil {
				return nil, err
			}
		case wasm.OpcodeDrop:
			ce.pop()
		case wasm.OpcodeSelect, wasm.OpcodeTypedSelect:
			if op == wasm.OpcodeTypedSelect {
				_, n := readU32(body[pc:]) // vector count, always 1 in this implementation
				pc += n
				pc++ // the single ValueType byte
			}
			c := ce.pop()
			b := ce.pop()
			a := ce.pop()
			if c != 0 {
				ce.push(a)
			} else {
				ce.push(b)
			}
		case wasm.OpcodeLocalGet:
			idx, n := readU32(body[pc:])
			pc += n
			ce.push(ce.locals[idx])
		case wasm.OpcodeLocalSet:
			idx, n := readU32(body[pc:])
			pc += n
			ce.locals[idx] = ce.pop()
		case wasm.OpcodeLocalTee:
			idx, n := readU32(body[pc:])
			pc += n
			ce.locals[idx] = ce.stack[len(ce.stack)-1]
		case wasm.OpcodeGlobalGet:
			idx, n := readU32(body[pc:])
			pc += n
			ce.push(ce.module.Globals[idx].Val)
		case wasm.OpcodeGlobalSet:
			idx, n := readU32(body[pc:])
			pc += n
			ce.module.Globals[idx].Val = ce.pop()
		case wasm.OpcodeI32Const:
			v, n, err := leb128.LoadInt32(body[pc:])
			if err != nil {
				return nil, err
			}
			pc += n
			ce.push(uint64(uint32(v)))
		case wasm.OpcodeI64Const:
			v, n, err := leb128.LoadInt64(body[pc:])
			if err != nil {
				return nil, err
			}
			pc += n
			ce.push(uint64(v))
		case wasm.OpcodeF32Const:
			bits32 := uint32(body[pc]) | uint32(body[pc+1])<<8 | uint32(body[pc+2])<<16 | uint32(body[pc+3])<<24
			pc += 4
			ce.push(uint64(bits32))
		case wasm.OpcodeF64Const:
			var bits64 uint64
			for i := 0; i < 8; i++ {
				bits64 |= uint64(body[pc+i]) << (8 * i)
			}
			pc += 8
			ce.push(bits64)
		case wasm.OpcodeMemorySize:
			pc++ // reserved memory index byte
			ce.push(uint64(ce.module.Memory.PageSize()))
		case wasm.OpcodeMemoryGrow:
			pc++ // reserved memory index byte
			delta := uint32(ce.pop())
			prev, ok := ce.module.Memory.Grow(delta)
			if !ok {
				ce.push(uint64(uint32(0xffffffff)))
			} else {
				ce.push(uint64(prev))
			}
		default:
			n, err := ce.execNumeric(op, body[pc:])
			if err != nil {
				return nil, err
			}
			pc += n
		}
	}
	return nil, nil
}

// callStackCeiling bounds recursion depth so that runaway or pathologically deep recursive Wasm programs
// trap instead of overflowing the host Go goroutine's stack.
const callStackCeiling = 8192

func (ce *callEngine) call(idx wasm.Index) error {
	f := ce.module.Functions[idx]
	args := ce.popN(len(f.Type.Params))
	results, err := f.Module.Engine.Call(ce.ctx, f.Module.CallCtx, f, args...)
	if err != nil {
		return err
	}
	for _, r := range results {
		ce.push(r)
	}
	return nil
}

func (ce *callEngine) callIndirect(typeIdx, tableIdx wasm.Index) error {
	t := ce.module.Tables[tableIdx]
	elemIdx := uint32(ce.pop())
	if elemIdx >= uint32(len(t.References)) {
		panic(wasm.NewTrap(wasm.TrapCodeOutOfBoundsTableAccess))
	}
	ref := t.References[elemIdx]
	if ref == wasm.RefTypeNull {
		panic(wasm.NewTrap(wasm.TrapCodeUninitializedElement))
	}
	m := ce.module
	f := m.Functions[wasm.Index(ref)]
	want := &m.Types[typeIdx]
	if !want.EqualsSignature(f.Type.Params, f.Type.Results) {
		panic(wasm.NewTrap(wasm.TrapCodeIndirectCallTypeMismatch))
	}
	args := ce.popN(len(f.Type.Params))
	results, err := f.Module.Engine.Call(ce.ctx, f.Module.CallCtx, f, args...)
	if err != nil {
		return err
	}
	for _, r := range results {
		ce.push(r)
	}
	return nil
}

// readU32 reads an unsigned LEB128 varint immediate, panicking (as a malformed-module bug, not a Trap) if
// buf is exhausted: execBlock only ever runs over bodies wasm.ValidateFunction already accepted.
func readU32(buf []byte) (uint32, int) {
	v, n, err := leb128.LoadUint32(buf)
	if err != nil {
		panic(fmt.Errorf("interpreter: corrupt immediate in validated function body: %w", err))
	}
	return v, n
}

// readSubBlock decodes a block/loop's block-type immediate header length and scans forward to find the
// offset, from the start of buf, of the matching OpcodeEnd, accounting for nested blocks.
func (ce *callEngine) readSubBlock(buf []byte) (headerLen, blockEnd int, err error) {
	_, headerLen, err = decodeBlockType(buf)
	if err != nil {
		return 0, 0, err
	}
	bodyLen, err := scanToMatchingEnd(buf[headerLen:])
	return headerLen, headerLen + bodyLen, err
}

// readIfBlock additionally reports the offset of a top-level OpcodeElse, if any, relative to the same base
// as blockEnd; elseAt == blockEnd means there was no else arm.
func (ce *callEngine) readIfBlock(buf []byte) (headerLen, blockEnd, elseAt int, err error) {
	_, headerLen, err = decodeBlockType(buf)
	if err != nil {
		return 0, 0, 0, err
	}
	blockEnd, elseAt, err = scanIfArms(buf[headerLen:])
	return headerLen, headerLen + blockEnd, headerLen + elseAt, err
}

// opensNestedBlock reports whether op introduces its own matching OpcodeEnd, requiring the scanner to track
// one more level of nesting. try/catch/catch_all share a single End with their owning try, exactly like an
// if/else arm pair shares one End with its owning if.
func opensNestedBlock(op byte) bool {
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeTry:
		return true
	}
	return false
}

func scanToMatchingEnd(buf []byte) (int, error) {
	depth := 0
	i := 0
	for i < len(buf) {
		op := buf[i]
		i++
		if opensNestedBlock(op) {
			depth++
			_, n, err := decodeBlockType(buf[i:])
			if err != nil {
				return 0, err
			}
			i += n
			continue
		}
		if op == wasm.OpcodeEnd {
			if depth == 0 {
				return i - 1, nil
			}
			depth--
			continue
		}
		n, err := immediateLen(op, buf[i:])
		if err != nil {
			return 0, err
		}
		i += n
	}
	return 0, fmt.Errorf("interpreter: missing end for block")
}

func scanIfArms(buf []byte) (blockEnd, elseAt int, err error) {
	depth := 0
	i := 0
	elseAt = -1
	for i < len(buf) {
		op := buf[i]
		i++
		if opensNestedBlock(op) {
			depth++
			_, n, derr := decodeBlockType(buf[i:])
			if derr != nil {
				return 0, 0, derr
			}
			i += n
			continue
		}
		switch op {
		case wasm.OpcodeElse:
			if depth == 0 && elseAt < 0 {
				elseAt = i - 1
			}
			continue
		case wasm.OpcodeEnd:
			if depth == 0 {
				if elseAt < 0 {
					elseAt = i - 1
				}
				return i - 1, elseAt, nil
			}
			depth--
			continue
		}
		n, nerr := immediateLen(op, buf[i:])
		if nerr != nil {
			return 0, 0, nerr
		}
		i += n
	}
	return 0, 0, fmt.Errorf("interpreter: missing end for if")
}

// decodeBlockType reads the signed 33-bit block type immediate and reports only how many bytes it occupies.
// The interpreter never needs the resolved FunctionType itself: by the time a validated function runs, the
// operand stack already holds exactly the values each block's type implies, so branching needs no arity
// bookkeeping beyond the byte offsets scanToMatchingEnd/scanIfArms compute.
func decodeBlockType(buf []byte) (int64, int, error) {
	return leb128.LoadInt33(buf)
}

// immediateLen reports how many bytes beyond the opcode itself op's immediate occupies, for any opcode that
// can legally appear inside a scanned-over nested block/if/try body (block-opening opcodes are handled
// separately by the caller via opensNestedBlock+decodeBlockType). Grounded on the same ImmediateKind shapes
// wasm.OperatorTable and func_validation.go's decodeImmediateHeader/validateMultiByte already encode, so the
// scanner and the validator agree on every instruction's byte length.
func immediateLen(op byte, rest []byte) (int, error) {
	switch op {
	case wasm.OpcodeMiscPrefix:
		sub, n, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		m, err := miscImmediateLen(sub, rest[n:])
		if err != nil {
			return 0, err
		}
		return n + m, nil
	case wasm.OpcodeVecPrefix:
		sub, n, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		m, err := vecImmediateLen(sub, rest[n:])
		if err != nil {
			return 0, err
		}
		return n + m, nil
	case wasm.OpcodeAtomicPrefix:
		sub, n, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		m, err := atomicImmediateLen(sub, rest[n:])
		if err != nil {
			return 0, err
		}
		return n + m, nil
	}

	info, ok := wasm.OperatorTable[op]
	if !ok {
		return 0, fmt.Errorf("interpreter: unknown opcode %#x while scanning", op)
	}
	switch info.Immediate {
	case wasm.ImmNone:
		return 0, nil
	case wasm.ImmValueType:
		return 1, nil
	case wasm.ImmI32:
		_, n, err := leb128.LoadInt32(rest)
		return n, err
	case wasm.ImmI64:
		_, n, err := leb128.LoadInt64(rest)
		return n, err
	case wasm.ImmF32:
		return 4, nil
	case wasm.ImmF64:
		return 8, nil
	case wasm.ImmLocalIndex, wasm.ImmGlobalIndex, wasm.ImmTableIndex, wasm.ImmFunctionIndex, wasm.ImmTypeIndex, wasm.ImmBranch:
		_, n, err := leb128.LoadUint32(rest)
		return n, err
	case wasm.ImmLoadStore:
		_, n1, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		_, n2, err := leb128.LoadUint32(rest[n1:])
		return n1 + n2, err
	case wasm.ImmBranchTable:
		count, n, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		total := n
		for i := uint32(0); i <= count; i++ {
			_, n2, err := leb128.LoadUint32(rest[total:])
			if err != nil {
				return 0, err
			}
			total += n2
		}
		return total, nil
	}
	return 0, fmt.Errorf("interpreter: unhandled immediate kind for opcode %#x while scanning", op)
}

// miscImmediateLen reports the byte length of a 0xFC-prefixed instruction's immediate beyond its sub-opcode
// varint, mirroring func_validation.go's validateMultiByte(isMisc=true, ...) byte accounting.
func miscImmediateLen(sub uint32, rest []byte) (int, error) {
	switch sub {
	case wasm.OpcodeMiscMemoryInit, wasm.OpcodeMiscTableInit, wasm.OpcodeMiscMemoryCopy, wasm.OpcodeMiscTableCopy:
		_, n1, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		_, n2, err := leb128.LoadUint32(rest[n1:])
		return n1 + n2, err
	case wasm.OpcodeMiscDataDrop, wasm.OpcodeMiscElemDrop:
		_, n, err := leb128.LoadUint32(rest)
		return n, err
	case wasm.OpcodeMiscMemoryFill:
		return 0, nil
	case wasm.OpcodeMiscTableGrow, wasm.OpcodeMiscTableSize, wasm.OpcodeMiscTableFill:
		_, n, err := leb128.LoadUint32(rest)
		return n, err
	default: // trunc_sat family: no immediate beyond the sub-opcode
		return 0, nil
	}
}

// vecImmediateLen reports the byte length of a 0xFD-prefixed instruction's immediate beyond its sub-opcode
// varint, mirroring validateMultiByte(isVec=true, ...).
func vecImmediateLen(sub uint32, rest []byte) (int, error) {
	switch sub {
	case wasm.OpcodeVecV128Load, wasm.OpcodeVecV128Store:
		_, n1, err := leb128.LoadUint32(rest)
		if err != nil {
			return 0, err
		}
		_, n2, err := leb128.LoadUint32(rest[n1:])
		return n1 + n2, err
	case wasm.OpcodeVecV128Const, wasm.OpcodeVecI8x16Shuffle:
		return 16, nil
	default: // binary lanewise ops: no immediate beyond the sub-opcode
		return 0, nil
	}
}

// atomicImmediateLen reports the byte length of a 0xFE-prefixed instruction's immediate beyond its
// sub-opcode varint, mirroring validateMultiByte(isAtomic=true, ...).
func atomicImmediateLen(sub uint32, rest []byte) (int, error) {
	if sub == wasm.OpcodeAtomicFence {
		return 1, nil
	}
	_, n1, err := leb128.LoadUint32(rest)
	if err != nil {
		return 0, err
	}
	_, n2, err := leb128.LoadUint32(rest[n1:])
	return n1 + n2, err
}

// execNumeric executes every single-byte arithmetic/comparison/conversion opcode plus memory load/store not
// already special-cased in execBlock's main switch, returning how many immediate bytes (load/store memarg,
// mostly) it consumed.
func (ce *callEngine) execNumeric(op byte, rest []byte) (int, error) {
	switch {
	case op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32:
		return ce.execLoadStore(op, rest)
	}
	switch op {
	case wasm.OpcodeI32Eqz:
		ce.push(b2u(uint32(ce.pop()) == 0))
	case wasm.OpcodeI32Eq:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) == uint32(b)))
	case wasm.OpcodeI32Ne:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) != uint32(b)))
	case wasm.OpcodeI32LtS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int32(a) < int32(b)))
	case wasm.OpcodeI32LtU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) < uint32(b)))
	case wasm.OpcodeI32GtS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int32(a) > int32(b)))
	case wasm.OpcodeI32GtU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) > uint32(b)))
	case wasm.OpcodeI32LeS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int32(a) <= int32(b)))
	case wasm.OpcodeI32LeU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) <= uint32(b)))
	case wasm.OpcodeI32GeS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int32(a) >= int32(b)))
	case wasm.OpcodeI32GeU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(uint32(a) >= uint32(b)))
	case wasm.OpcodeI32Add:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) + uint32(b)))
	case wasm.OpcodeI32Sub:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) - uint32(b)))
	case wasm.OpcodeI32Mul:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) * uint32(b)))
	case wasm.OpcodeI32DivS:
		b, a := int32(ce.pop()), int32(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		if a == math.MinInt32 && b == -1 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerOverflow))
		}
		ce.push(uint64(uint32(a / b)))
	case wasm.OpcodeI32DivU:
		b, a := uint32(ce.pop()), uint32(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		ce.push(uint64(a / b))
	case wasm.OpcodeI32RemS:
		b, a := int32(ce.pop()), int32(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		if a == math.MinInt32 && b == -1 {
			ce.push(0)
		} else {
			ce.push(uint64(uint32(a % b)))
		}
	case wasm.OpcodeI32RemU:
		b, a := uint32(ce.pop()), uint32(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		ce.push(uint64(a % b))
	case wasm.OpcodeI32And:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) & uint32(b)))
	case wasm.OpcodeI32Or:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) | uint32(b)))
	case wasm.OpcodeI32Xor:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) ^ uint32(b)))
	case wasm.OpcodeI32Shl:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) << (uint32(b) % 32)))
	case wasm.OpcodeI32ShrS:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(int32(a) >> (uint32(b) % 32))))
	case wasm.OpcodeI32ShrU:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(uint32(a) >> (uint32(b) % 32)))
	case wasm.OpcodeI32Rotl:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(bits.RotateLeft32(uint32(a), int(uint32(b)%32))))
	case wasm.OpcodeI32Rotr:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(bits.RotateLeft32(uint32(a), -int(uint32(b)%32))))
	case wasm.OpcodeI32Clz:
		ce.push(uint64(bits.LeadingZeros32(uint32(ce.pop()))))
	case wasm.OpcodeI32Ctz:
		ce.push(uint64(bits.TrailingZeros32(uint32(ce.pop()))))
	case wasm.OpcodeI32Popcnt:
		ce.push(uint64(bits.OnesCount32(uint32(ce.pop()))))

	case wasm.OpcodeI64Eqz:
		ce.push(b2u(ce.pop() == 0))
	case wasm.OpcodeI64Eq:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a == b))
	case wasm.OpcodeI64Ne:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a != b))
	case wasm.OpcodeI64LtS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int64(a) < int64(b)))
	case wasm.OpcodeI64LtU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a < b))
	case wasm.OpcodeI64GtS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int64(a) > int64(b)))
	case wasm.OpcodeI64GtU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a > b))
	case wasm.OpcodeI64LeS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int64(a) <= int64(b)))
	case wasm.OpcodeI64LeU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a <= b))
	case wasm.OpcodeI64GeS:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(int64(a) >= int64(b)))
	case wasm.OpcodeI64GeU:
		b, a := ce.pop(), ce.pop()
		ce.push(b2u(a >= b))
	case wasm.OpcodeI64Add:
		b, a := ce.pop(), ce.pop()
		ce.push(a + b)
	case wasm.OpcodeI64Sub:
		b, a := ce.pop(), ce.pop()
		ce.push(a - b)
	case wasm.OpcodeI64Mul:
		b, a := ce.pop(), ce.pop()
		ce.push(a * b)
	case wasm.OpcodeI64DivS:
		b, a := int64(ce.pop()), int64(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		if a == math.MinInt64 && b == -1 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerOverflow))
		}
		ce.push(uint64(a / b))
	case wasm.OpcodeI64DivU:
		b, a := ce.pop(), ce.pop()
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		ce.push(a / b)
	case wasm.OpcodeI64RemS:
		b, a := int64(ce.pop()), int64(ce.pop())
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		if a == math.MinInt64 && b == -1 {
			ce.push(0)
		} else {
			ce.push(uint64(a % b))
		}
	case wasm.OpcodeI64RemU:
		b, a := ce.pop(), ce.pop()
		if b == 0 {
			panic(wasm.NewTrap(wasm.TrapCodeIntegerDivideByZero))
		}
		ce.push(a % b)
	case wasm.OpcodeI64And:
		b, a := ce.pop(), ce.pop()
		ce.push(a & b)
	case wasm.OpcodeI64Or:
		b, a := ce.pop(), ce.pop()
		ce.push(a | b)
	case wasm.OpcodeI64Xor:
		b, a := ce.pop(), ce.pop()
		ce.push(a ^ b)
	case wasm.OpcodeI64Shl:
		b, a := ce.pop(), ce.pop()
		ce.push(a << (b % 64))
	case wasm.OpcodeI64ShrS:
		b, a := ce.pop(), ce.pop()
		ce.push(uint64(int64(a) >> (b % 64)))
	case wasm.OpcodeI64ShrU:
		b, a := ce.pop(), ce.pop()
		ce.push(a >> (b % 64))
	case wasm.OpcodeI64Rotl:
		b, a := ce.pop(), ce.pop()
		ce.push(bits.RotateLeft64(a, int(b%64)))
	case wasm.OpcodeI64Rotr:
		b, a := ce.pop(), ce.pop()
		ce.push(bits.RotateLeft64(a, -int(b%64)))
	case wasm.OpcodeI64Clz:
		ce.push(uint64(bits.LeadingZeros64(ce.pop())))
	case wasm.OpcodeI64Ctz:
		ce.push(uint64(bits.TrailingZeros64(ce.pop())))
	case wasm.OpcodeI64Popcnt:
		ce.push(uint64(bits.OnesCount64(ce.pop())))

	case wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt, wasm.OpcodeF32Le, wasm.OpcodeF32Ge:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(f32Compare(op, a, b))
	case wasm.OpcodeF32Abs:
		ce.push(uint64(math.Float32bits(float32(math.Abs(float64(math.Float32frombits(uint32(ce.pop()))))))))
	case wasm.OpcodeF32Neg:
		ce.push(uint64(math.Float32bits(-math.Float32frombits(uint32(ce.pop())))))
	case wasm.OpcodeF32Sqrt:
		ce.push(uint64(math.Float32bits(float32(math.Sqrt(float64(math.Float32frombits(uint32(ce.pop()))))))))
	case wasm.OpcodeF32Add:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(a + b)))
	case wasm.OpcodeF32Sub:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(a - b)))
	case wasm.OpcodeF32Mul:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(a * b)))
	case wasm.OpcodeF32Div:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(a / b)))
	case wasm.OpcodeF32Min:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(float32(moremath.WasmCompatMin(float64(a), float64(b))))))
	case wasm.OpcodeF32Max:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(float32(moremath.WasmCompatMax(float64(a), float64(b))))))
	case wasm.OpcodeF32Copysign:
		b, a := math.Float32frombits(uint32(ce.pop())), math.Float32frombits(uint32(ce.pop()))
		ce.push(uint64(math.Float32bits(float32(math.Copysign(float64(a), float64(b))))))
	case wasm.OpcodeF32Ceil:
		ce.push(uint64(math.Float32bits(float32(math.Ceil(float64(math.Float32frombits(uint32(ce.pop()))))))))
	case wasm.OpcodeF32Floor:
		ce.push(uint64(math.Float32bits(float32(math.Floor(float64(math.Float32frombits(uint32(ce.pop()))))))))
	case wasm.OpcodeF32Trunc:
		ce.push(uint64(math.Float32bits(float32(math.Trunc(float64(math.Float32frombits(uint32(ce.pop()))))))))
	case wasm.OpcodeF32Nearest:
		ce.push(uint64(math.Float32bits(float32(math.RoundToEven(float64(math.Float32frombits(uint32(ce.pop()))))))))

	case wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt, wasm.OpcodeF64Le, wasm.OpcodeF64Ge:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(f64Compare(op, a, b))
	case wasm.OpcodeF64Abs:
		ce.push(math.Float64bits(math.Abs(math.Float64frombits(ce.pop()))))
	case wasm.OpcodeF64Neg:
		ce.push(math.Float64bits(-math.Float64frombits(ce.pop())))
	case wasm.OpcodeF64Sqrt:
		ce.push(math.Float64bits(math.Sqrt(math.Float64frombits(ce.pop()))))
	case wasm.OpcodeF64Add:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(a + b))
	case wasm.OpcodeF64Sub:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(a - b))
	case wasm.OpcodeF64Mul:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(a * b))
	case wasm.OpcodeF64Div:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(a / b))
	case wasm.OpcodeF64Min:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(moremath.WasmCompatMin(a, b)))
	case wasm.OpcodeF64Max:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(moremath.WasmCompatMax(a, b)))
	case wasm.OpcodeF64Copysign:
		b, a := math.Float64frombits(ce.pop()), math.Float64frombits(ce.pop())
		ce.push(math.Float64bits(math.Copysign(a, b)))
	case wasm.OpcodeF64Ceil:
		ce.push(math.Float64bits(math.Ceil(math.Float64frombits(ce.pop()))))
	case wasm.OpcodeF64Floor:
		ce.push(math.Float64bits(math.Floor(math.Float64frombits(ce.pop()))))
	case wasm.OpcodeF64Trunc:
		ce.push(math.Float64bits(math.Trunc(math.Float64frombits(ce.pop()))))
	case wasm.OpcodeF64Nearest:
		ce.push(math.Float64bits(math.RoundToEven(math.Float64frombits(ce.pop()))))

	case wasm.OpcodeI32WrapI64:
		ce.push(uint64(uint32(ce.pop())))
	case wasm.OpcodeI64ExtendI32S:
		ce.push(uint64(int64(int32(uint32(ce.pop())))))
	case wasm.OpcodeI64ExtendI32U:
		ce.push(uint64(uint32(ce.pop())))
	case wasm.OpcodeI32ConvertF32S, wasm.OpcodeI32ConvertF32U, wasm.OpcodeI32ConvertF64S, wasm.OpcodeI32ConvertF64U,
		wasm.OpcodeI64ConvertF32S, wasm.OpcodeI64ConvertF32U, wasm.OpcodeI64ConvertF64S, wasm.OpcodeI64ConvertF64U:
		ce.push(execTruncConvert(op, ce.pop()))
	case wasm.OpcodeF32ConvertI32S:
		ce.push(uint64(math.Float32bits(float32(int32(uint32(ce.pop()))))))
	case wasm.OpcodeF32ConvertI32U:
		ce.push(uint64(math.Float32bits(float32(uint32(ce.pop())))))
	case wasm.OpcodeF32ConvertI64S:
		ce.push(uint64(math.Float32bits(float32(int64(ce.pop())))))
	case wasm.OpcodeF32ConvertI64U:
		ce.push(uint64(math.Float32bits(float32(ce.pop()))))
	case wasm.OpcodeF32DemoteF64:
		ce.push(uint64(math.Float32bits(float32(math.Float64frombits(ce.pop())))))
	case wasm.OpcodeF64ConvertI32S:
		ce.push(math.Float64bits(float64(int32(uint32(ce.pop())))))
	case wasm.OpcodeF64ConvertI32U:
		ce.push(math.Float64bits(float64(uint32(ce.pop()))))
	case wasm.OpcodeF64ConvertI64S:
		ce.push(math.Float64bits(float64(int64(ce.pop()))))
	case wasm.OpcodeF64ConvertI64U:
		ce.push(math.Float64bits(float64(ce.pop())))
	case wasm.OpcodeF64PromoteF32:
		ce.push(math.Float64bits(float64(math.Float32frombits(uint32(ce.pop())))))
	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeI64ReinterpretF64, wasm.OpcodeF32ReinterpretI32, wasm.OpcodeF64ReinterpretI64:
		// All four reinterpret opcodes are no-ops at the uint64 stack-slot level: bit patterns already match.
	case wasm.OpcodeI32Extend8S:
		ce.push(uint64(uint32(int32(int8(uint8(ce.pop()))))))
	case wasm.OpcodeI32Extend16S:
		ce.push(uint64(uint32(int32(int16(uint16(ce.pop()))))))
	case wasm.OpcodeI64Extend8S:
		ce.push(uint64(int64(int8(uint8(ce.pop())))))
	case wasm.OpcodeI64Extend16S:
		ce.push(uint64(int64(int16(uint16(ce.pop())))))
	case wasm.OpcodeI64Extend32S:
		ce.push(uint64(int64(int32(uint32(ce.pop())))))
	case wasm.OpcodeRefNull:
		ce.push(uint64(wasm.RefTypeNull))
		return 1, nil // ref type byte immediate
	case wasm.OpcodeRefIsNull:
		ce.push(b2u(ce.pop() == uint64(wasm.RefTypeNull)))
	case wasm.OpcodeRefFunc:
		idx, n := readU32(rest)
		ce.push(uint64(idx))
		return n, nil
	default:
		panic(wasm.NewTrap(wasm.TrapCodeUnimplemented))
	}
	return 0, nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32Compare(op byte, a, b float32) uint64 {
	switch op {
	case wasm.OpcodeF32Eq:
		return b2u(a == b)
	case wasm.OpcodeF32Ne:
		return b2u(a != b)
	case wasm.OpcodeF32Lt:
		return b2u(a < b)
	case wasm.OpcodeF32Gt:
		return b2u(a > b)
	case wasm.OpcodeF32Le:
		return b2u(a <= b)
	default: // wasm.OpcodeF32Ge
		return b2u(a >= b)
	}
}

func f64Compare(op byte, a, b float64) uint64 {
	switch op {
	case wasm.OpcodeF64Eq:
		return b2u(a == b)
	case wasm.OpcodeF64Ne:
		return b2u(a != b)
	case wasm.OpcodeF64Lt:
		return b2u(a < b)
	case wasm.OpcodeF64Gt:
		return b2u(a > b)
	case wasm.OpcodeF64Le:
		return b2u(a <= b)
	default: // wasm.OpcodeF64Ge
		return b2u(a >= b)
	}
}

// execTruncConvert implements the trapping (non-saturating) i32/i64.trunc_f32/f64 family: out-of-range or
// NaN input traps rather than producing an implementation-defined integer, per the MVP semantics.
func execTruncConvert(op byte, raw uint64) uint64 {
	switch op {
	case wasm.OpcodeI32ConvertF32S:
		f := math.Float32frombits(uint32(raw))
		checkTrunc(float64(f), math.MinInt32, math.MaxInt32)
		return uint64(uint32(int32(f)))
	case wasm.OpcodeI32ConvertF32U:
		f := math.Float32frombits(uint32(raw))
		checkTrunc(float64(f), 0, math.MaxUint32)
		return uint64(uint32(f))
	case wasm.OpcodeI32ConvertF64S:
		f := math.Float64frombits(raw)
		checkTrunc(f, math.MinInt32, math.MaxInt32)
		return uint64(uint32(int32(f)))
	case wasm.OpcodeI32ConvertF64U:
		f := math.Float64frombits(raw)
		checkTrunc(f, 0, math.MaxUint32)
		return uint64(uint32(f))
	case wasm.OpcodeI64ConvertF32S:
		f := math.Float32frombits(uint32(raw))
		checkTrunc(float64(f), math.MinInt64, math.MaxInt64)
		return uint64(int64(f))
	case wasm.OpcodeI64ConvertF32U:
		f := math.Float32frombits(uint32(raw))
		checkTrunc(float64(f), 0, math.MaxUint64)
		return uint64(f)
	case wasm.OpcodeI64ConvertF64S:
		f := math.Float64frombits(raw)
		checkTrunc(f, math.MinInt64, math.MaxInt64)
		return uint64(int64(f))
	default: // wasm.OpcodeI64ConvertF64U
		f := math.Float64frombits(raw)
		checkTrunc(f, 0, math.MaxUint64)
		return uint64(f)
	}
}

func checkTrunc(f, min, max float64) {
	if math.IsNaN(f) {
		panic(wasm.NewTrap(wasm.TrapCodeInvalidConversionToInteger))
	}
	if f < min || f > max {
		panic(wasm.NewTrap(wasm.TrapCodeIntegerOverflow))
	}
}

// execLoadStore implements the MVP load/store family. Every opcode in this range carries an align (u32) then
// offset (u32) memarg immediate.
func (ce *callEngine) execLoadStore(op byte, rest []byte) (int, error) {
	_, n1, err := leb128.LoadUint32(rest)
	if err != nil {
		return 0, err
	}
	offset, n2, err := leb128.LoadUint32(rest[n1:])
	if err != nil {
		return 0, err
	}
	n := n1 + n2

	mem := ce.module.Memory
	buf := mem.Buffer()

	readAt := func(addr, width uint32) []byte {
		effective := uint64(addr) + uint64(offset)
		if effective+uint64(width) > uint64(len(buf)) {
			panic(wasm.NewTrap(wasm.TrapCodeOutOfBoundsMemoryAccess))
		}
		return buf[effective : effective+uint64(width)]
	}

	switch op {
	case wasm.OpcodeI32Load:
		b := readAt(uint32(ce.pop()), 4)
		ce.push(uint64(le32(b)))
	case wasm.OpcodeI64Load:
		b := readAt(uint32(ce.pop()), 8)
		ce.push(le64(b))
	case wasm.OpcodeF32Load:
		b := readAt(uint32(ce.pop()), 4)
		ce.push(uint64(le32(b)))
	case wasm.OpcodeF64Load:
		b := readAt(uint32(ce.pop()), 8)
		ce.push(le64(b))
	case wasm.OpcodeI32Load8S:
		b := readAt(uint32(ce.pop()), 1)
		ce.push(uint64(uint32(int32(int8(b[0])))))
	case wasm.OpcodeI32Load8U:
		b := readAt(uint32(ce.pop()), 1)
		ce.push(uint64(b[0]))
	case wasm.OpcodeI32Load16S:
		b := readAt(uint32(ce.pop()), 2)
		ce.push(uint64(uint32(int32(int16(le16(b))))))
	case wasm.OpcodeI32Load16U:
		b := readAt(uint32(ce.pop()), 2)
		ce.push(uint64(le16(b)))
	case wasm.OpcodeI64Load8S:
		b := readAt(uint32(ce.pop()), 1)
		ce.push(uint64(int64(int8(b[0]))))
	case wasm.OpcodeI64Load8U:
		b := readAt(uint32(ce.pop()), 1)
		ce.push(uint64(b[0]))
	case wasm.OpcodeI64Load16S:
		b := readAt(uint32(ce.pop()), 2)
		ce.push(uint64(int64(int16(le16(b)))))
	case wasm.OpcodeI64Load16U:
		b := readAt(uint32(ce.pop()), 2)
		ce.push(uint64(le16(b)))
	case wasm.OpcodeI64Load32S:
		b := readAt(uint32(ce.pop()), 4)
		ce.push(uint64(int64(int32(le32(b)))))
	case wasm.OpcodeI64Load32U:
		b := readAt(uint32(ce.pop()), 4)
		ce.push(uint64(le32(b)))
	case wasm.OpcodeI32Store:
		v := uint32(ce.pop())
		b := readAt(uint32(ce.pop()), 4)
		putLE32(b, v)
	case wasm.OpcodeI64Store:
		v := ce.pop()
		b := readAt(uint32(ce.pop()), 8)
		putLE64(b, v)
	case wasm.OpcodeF32Store:
		v := uint32(ce.pop())
		b := readAt(uint32(ce.pop()), 4)
		putLE32(b, v)
	case wasm.OpcodeF64Store:
		v := ce.pop()
		b := readAt(uint32(ce.pop()), 8)
		putLE64(b, v)
	case wasm.OpcodeI32Store8:
		v := byte(ce.pop())
		b := readAt(uint32(ce.pop()), 1)
		b[0] = v
	case wasm.OpcodeI32Store16:
		v := uint16(ce.pop())
		b := readAt(uint32(ce.pop()), 2)
		putLE16(b, v)
	case wasm.OpcodeI64Store8:
		v := byte(ce.pop())
		b := readAt(uint32(ce.pop()), 1)
		b[0] = v
	case wasm.OpcodeI64Store16:
		v := uint16(ce.pop())
		b := readAt(uint32(ce.pop()), 2)
		putLE16(b, v)
	case wasm.OpcodeI64Store32:
		v := uint32(ce.pop())
		b := readAt(uint32(ce.pop()), 4)
		putLE32(b, v)
	default:
		panic(wasm.NewTrap(wasm.TrapCodeUnimplemented))
	}
	return n, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
