package wasm

import (
	"fmt"

	"github.com/wazerun/wazero/internal/leb128"
)

// unknownType is the stack-polymorphic placeholder popAny returns when popping below the height of a frame
// made unreachable (by `unreachable`, br, return and the like): it unifies with any ValueType
// so code that is statically unreachable (e.g. after a br) doesn't spuriously fail operand-type checks.
const unknownType ValueType = 0xff

// ctrlFrame is one entry of the control-flow stack the validator maintains while walking a function body,
// mirroring the structure required to type-check nested block/loop/if/else/end per the WebAssembly spec's
// stack-polymorphic validation algorithm.
type ctrlFrame struct {
	opcode         Opcode
	startTypes     []ValueType // block's param types, already on the stack on entry
	endTypes       []ValueType // block's result types, required on the stack at `end`
	height         int         // operand stack height at block entry, below which this block can't pop
	unreachable    bool        // set once a br/br_table/return/unreachable makes the remainder of this block dead
	sawElse        bool
}

// funcValidator holds the mutable state threaded through validateFunction: the operand type stack and the
// control frame stack, both reset per function.
type funcValidator struct {
	module   *Module
	enabled  Features
	funcType *FunctionType
	locals   []ValueType // params followed by declared locals

	operands []ValueType
	frames   []ctrlFrame
}

// validateFunction checks that code's instruction stream is well-typed against funcType, module (for
// resolving call/call_indirect/global/table/memory/type references) and enabled features. It returns the
// first ValidationError-class problem found, or nil if the function is well-typed.
func validateFunction(module *Module, funcType *FunctionType, code *Code, enabled Features) error {
	v := &funcValidator{
		module:   module,
		enabled:  enabled,
		funcType: funcType,
		locals:   append(append([]ValueType{}, funcType.Params...), code.LocalTypes...),
	}
	v.pushFrame(ctrlFrame{opcode: OpcodeBlock, endTypes: funcType.Results})

	body := code.Body
	pos := 0
	for pos < len(body) {
		op := body[pos]
		pos++

		info, isVec, isMisc, isAtomic, subOp, n, err := v.decodeImmediateHeader(op, body[pos:])
		if err != nil {
			return err
		}
		pos += n
		if info.Feature != 0 {
			if err := v.enabled.Require(info.Feature); err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
		}

		switch {
		case op == OpcodeBlock || op == OpcodeLoop || op == OpcodeIf || op == OpcodeTry:
			blockType, m, err := v.readBlockType(body[pos:])
			if err != nil {
				return err
			}
			pos += m
			if op == OpcodeIf {
				if err := v.pop(ValueTypeI32); err != nil {
					return fmt.Errorf("if condition: %w", err)
				}
			}
			if err := v.popValues(blockType.Params); err != nil {
				return fmt.Errorf("%s params: %w", info.Name, err)
			}
			v.pushValues(blockType.Params)
			v.pushFrame(ctrlFrame{opcode: op, startTypes: blockType.Params, endTypes: blockType.Results, height: len(v.operands) - len(blockType.Params)})

		case op == OpcodeElse:
			if len(v.frames) == 0 || v.currentFrame().opcode != OpcodeIf {
				return fmt.Errorf("else without matching if")
			}
			f := *v.currentFrame()
			if err := v.popValues(f.endTypes); err != nil {
				return fmt.Errorf("else: %w", err)
			}
			if len(v.operands) != f.height {
				return fmt.Errorf("else: %d values remain on the stack, expected exactly the block result", len(v.operands)-f.height)
			}
			_, _ = v.popFrame()
			v.pushFrame(ctrlFrame{opcode: OpcodeElse, startTypes: f.startTypes, endTypes: f.endTypes, height: f.height, sawElse: true})
			v.pushValues(f.startTypes)

		case op == OpcodeEnd:
			if len(v.frames) == 0 {
				return fmt.Errorf("unexpected end of control stack")
			}
			f := *v.currentFrame()
			if err := v.popValues(f.endTypes); err != nil {
				return fmt.Errorf("end: %w", err)
			}
			if len(v.operands) != f.height {
				return fmt.Errorf("end: %d values remain on the stack, expected exactly the block result", len(v.operands)-f.height)
			}
			_, _ = v.popFrame()
			v.pushValues(f.endTypes)
			if len(v.frames) == 0 {
				// Implicit function-level block closed; any remaining bytes are unreachable trailer, stop.
				return nil
			}

		case op == OpcodeUnreachable:
			v.setUnreachable()

		case op == OpcodeNop:
			// no operand effect

		case op == OpcodeReturn:
			if err := v.popValues(funcType.Results); err != nil {
				return fmt.Errorf("return: %w", err)
			}
			v.setUnreachable()

		case op == OpcodeBr:
			depth, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("br: %w", err)
			}
			pos += int(m)
			target, err := v.labelTypes(depth)
			if err != nil {
				return fmt.Errorf("br: %w", err)
			}
			if err := v.popValues(target); err != nil {
				return fmt.Errorf("br: %w", err)
			}
			v.setUnreachable()

		case op == OpcodeBrIf:
			depth, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("br_if: %w", err)
			}
			pos += int(m)
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("br_if condition: %w", err)
			}
			target, err := v.labelTypes(depth)
			if err != nil {
				return fmt.Errorf("br_if: %w", err)
			}
			if err := v.popValues(target); err != nil {
				return fmt.Errorf("br_if: %w", err)
			}
			v.pushValues(target)

		case op == OpcodeBrTable:
			count, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("br_table: %w", err)
			}
			pos += int(m)
			var firstTarget []ValueType
			for i := uint32(0); i < count; i++ {
				depth, m, err := leb128.LoadUint32(body[pos:])
				if err != nil {
					return fmt.Errorf("br_table target %d: %w", i, err)
				}
				pos += int(m)
				target, err := v.labelTypes(depth)
				if err != nil {
					return fmt.Errorf("br_table target %d: %w", i, err)
				}
				if i == 0 {
					firstTarget = target
				}
			}
			defDepth, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("br_table default: %w", err)
			}
			pos += int(m)
			defTarget, err := v.labelTypes(defDepth)
			if err != nil {
				return fmt.Errorf("br_table default: %w", err)
			}
			if firstTarget == nil {
				firstTarget = defTarget
			}
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("br_table index: %w", err)
			}
			if err := v.popValues(firstTarget); err != nil {
				return fmt.Errorf("br_table: %w", err)
			}
			v.setUnreachable()

		case op == OpcodeCall:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("call: %w", err)
			}
			pos += int(m)
			ft := module.TypeOfFunction(idx)
			if ft == nil {
				return fmt.Errorf("call: function index %d out of range", idx)
			}
			if err := v.popValues(ft.Params); err != nil {
				return fmt.Errorf("call: %w", err)
			}
			v.pushValues(ft.Results)

		case op == OpcodeCallIndirect:
			typeIdx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("call_indirect: %w", err)
			}
			pos += int(m)
			tableIdx, m2, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("call_indirect table index: %w", err)
			}
			pos += int(m2)
			if int(tableIdx) >= len(module.TableSection)+int(module.ImportTableCount()) {
				return fmt.Errorf("call_indirect: table index %d out of range", tableIdx)
			}
			if int(typeIdx) >= len(module.TypeSection) {
				return fmt.Errorf("call_indirect: type index %d out of range", typeIdx)
			}
			ft := &module.TypeSection[typeIdx]
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("call_indirect index: %w", err)
			}
			if err := v.popValues(ft.Params); err != nil {
				return fmt.Errorf("call_indirect: %w", err)
			}
			v.pushValues(ft.Results)

		case op == OpcodeCatch:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("catch: %w", err)
			}
			pos += int(m)
			f, err := v.popFrame()
			if err != nil {
				return err
			}
			if f.opcode != OpcodeTry && f.opcode != OpcodeCatch {
				return fmt.Errorf("catch without matching try")
			}
			var tagParams []ValueType
			if int(idx) < len(module.ExceptionSection) {
				tagParams = module.ExceptionSection[idx].Params
			}
			v.pushFrame(ctrlFrame{opcode: OpcodeCatch, startTypes: tagParams, endTypes: f.endTypes, height: f.height})
			v.pushValues(tagParams)

		case op == OpcodeCatchAll:
			f, err := v.popFrame()
			if err != nil {
				return err
			}
			if f.opcode != OpcodeTry && f.opcode != OpcodeCatch {
				return fmt.Errorf("catch_all without matching try")
			}
			v.pushFrame(ctrlFrame{opcode: OpcodeCatchAll, endTypes: f.endTypes, height: f.height})

		case op == OpcodeThrow:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("throw: %w", err)
			}
			pos += int(m)
			if int(idx) >= len(module.ExceptionSection) {
				return fmt.Errorf("throw: exception index %d out of range", idx)
			}
			if err := v.popValues(module.ExceptionSection[idx].Params); err != nil {
				return fmt.Errorf("throw: %w", err)
			}
			v.setUnreachable()

		case op == OpcodeRethrow:
			depth, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("rethrow: %w", err)
			}
			pos += int(m)
			if int(depth) >= len(v.frames) {
				return fmt.Errorf("rethrow: depth %d exceeds control stack depth %d", depth, len(v.frames))
			}
			v.setUnreachable()

		case op == OpcodeDelegate:
			depth, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("delegate: %w", err)
			}
			pos += int(m)
			if int(depth) > len(v.frames) {
				return fmt.Errorf("delegate: depth %d exceeds control stack depth %d", depth, len(v.frames))
			}
			f, err := v.popFrame()
			if err != nil {
				return err
			}
			if f.opcode != OpcodeTry {
				return fmt.Errorf("delegate without matching try")
			}
			if err := v.popValues(f.endTypes); err != nil {
				return fmt.Errorf("delegate: %w", err)
			}
			v.pushValues(f.endTypes)

		case op == OpcodeReturnCall:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("return_call: %w", err)
			}
			pos += int(m)
			ft := module.TypeOfFunction(idx)
			if ft == nil {
				return fmt.Errorf("return_call: function index %d out of range", idx)
			}
			if err := v.popValues(ft.Params); err != nil {
				return fmt.Errorf("return_call: %w", err)
			}
			if !sliceEqualValueTypes(ft.Results, funcType.Results) {
				return fmt.Errorf("return_call: callee results %v do not match caller results %v", ft.Results, funcType.Results)
			}
			v.setUnreachable()

		case op == OpcodeReturnCallIndirect:
			typeIdx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("return_call_indirect: %w", err)
			}
			pos += int(m)
			tableIdx, m2, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("return_call_indirect table index: %w", err)
			}
			pos += int(m2)
			if int(tableIdx) >= len(module.TableSection)+int(module.ImportTableCount()) {
				return fmt.Errorf("return_call_indirect: table index %d out of range", tableIdx)
			}
			if int(typeIdx) >= len(module.TypeSection) {
				return fmt.Errorf("return_call_indirect: type index %d out of range", typeIdx)
			}
			ft := &module.TypeSection[typeIdx]
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("return_call_indirect index: %w", err)
			}
			if err := v.popValues(ft.Params); err != nil {
				return fmt.Errorf("return_call_indirect: %w", err)
			}
			if !sliceEqualValueTypes(ft.Results, funcType.Results) {
				return fmt.Errorf("return_call_indirect: callee results %v do not match caller results %v", ft.Results, funcType.Results)
			}
			v.setUnreachable()

		case op == OpcodeDrop:
			if _, err := v.popAny(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}

		case op == OpcodeSelect:
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("select condition: %w", err)
			}
			t2, err := v.popAny()
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			if err := v.pop(t2); err != nil {
				return fmt.Errorf("select: operand type mismatch: %w", err)
			}
			v.push(t2)

		case op == OpcodeTypedSelect:
			count, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("select: %w", err)
			}
			pos += int(m)
			if count != 1 {
				return fmt.Errorf("select: exactly one result type is supported, got %d", count)
			}
			if pos >= len(body) {
				return fmt.Errorf("select: missing result type")
			}
			resultType := body[pos]
			pos++
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("select condition: %w", err)
			}
			if err := v.pop(resultType); err != nil {
				return err
			}
			if err := v.pop(resultType); err != nil {
				return err
			}
			v.push(resultType)

		case op == OpcodeLocalGet, op == OpcodeLocalSet, op == OpcodeLocalTee:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			pos += int(m)
			if int(idx) >= len(v.locals) {
				return fmt.Errorf("%s: local index %d out of range", info.Name, idx)
			}
			t := v.locals[idx]
			switch op {
			case OpcodeLocalGet:
				v.push(t)
			case OpcodeLocalSet:
				if err := v.pop(t); err != nil {
					return fmt.Errorf("local.set: %w", err)
				}
			case OpcodeLocalTee:
				if err := v.pop(t); err != nil {
					return fmt.Errorf("local.tee: %w", err)
				}
				v.push(t)
			}

		case op == OpcodeGlobalGet, op == OpcodeGlobalSet:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			pos += int(m)
			gt := module.globalTypeOf(idx)
			if gt == nil {
				return fmt.Errorf("%s: global index %d out of range", info.Name, idx)
			}
			if op == OpcodeGlobalGet {
				v.push(gt.Value)
			} else {
				if !gt.Mutable {
					return fmt.Errorf("global.set: global %d is immutable", idx)
				}
				if err := v.pop(gt.Value); err != nil {
					return fmt.Errorf("global.set: %w", err)
				}
			}

		case op == OpcodeTableGet, op == OpcodeTableSet:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			pos += int(m)
			tt := module.tableTypeOf(idx)
			if tt == nil {
				return fmt.Errorf("%s: table index %d out of range", info.Name, idx)
			}
			if err := v.pop(ValueTypeI32); err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			if op == OpcodeTableGet {
				v.push(tt.ElemType)
			} else {
				if err := v.pop(tt.ElemType); err != nil {
					return fmt.Errorf("table.set: %w", err)
				}
			}

		case op == OpcodeRefNull:
			if pos >= len(body) {
				return fmt.Errorf("ref.null: missing type")
			}
			t := body[pos]
			pos++
			v.push(t)

		case op == OpcodeRefIsNull:
			if _, err := v.popAny(); err != nil {
				return fmt.Errorf("ref.is_null: %w", err)
			}
			v.push(ValueTypeI32)

		case op == OpcodeRefFunc:
			idx, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("ref.func: %w", err)
			}
			pos += int(m)
			if module.TypeOfFunction(idx) == nil {
				return fmt.Errorf("ref.func: function index %d out of range", idx)
			}
			v.push(ValueTypeFuncref)

		case info.Immediate == ImmLoadStore && !isVec && !isMisc && !isAtomic:
			align, m, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			pos += int(m)
			_, m2, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			pos += int(m2)
			if module.MemorySection == nil && module.ImportMemoryCount() == 0 {
				return fmt.Errorf("%s: no memory", info.Name)
			}
			if err := v.validateAlignment(op, align); err != nil {
				return err
			}
			pop, push, ok := loadStoreSignature(op)
			if !ok {
				return fmt.Errorf("unhandled load/store opcode %#x", op)
			}
			if err := v.popValues(pop); err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			v.pushValues(push)

		case op == OpcodeMemorySize || op == OpcodeMemoryGrow:
			if module.MemorySection == nil && module.ImportMemoryCount() == 0 {
				return fmt.Errorf("%s: no memory", info.Name)
			}
			if op == OpcodeMemoryGrow {
				if err := v.pop(ValueTypeI32); err != nil {
					return fmt.Errorf("memory.grow: %w", err)
				}
			}
			v.push(ValueTypeI32)

		case op == OpcodeI32Const:
			_, m, err := leb128.LoadInt32(body[pos:])
			if err != nil {
				return fmt.Errorf("i32.const: %w", err)
			}
			pos += int(m)
			v.push(ValueTypeI32)

		case op == OpcodeI64Const:
			_, m, err := leb128.LoadInt64(body[pos:])
			if err != nil {
				return fmt.Errorf("i64.const: %w", err)
			}
			pos += int(m)
			v.push(ValueTypeI64)

		case op == OpcodeF32Const:
			if pos+4 > len(body) {
				return fmt.Errorf("f32.const: short read")
			}
			pos += 4
			v.push(ValueTypeF32)

		case op == OpcodeF64Const:
			if pos+8 > len(body) {
				return fmt.Errorf("f64.const: short read")
			}
			pos += 8
			v.push(ValueTypeF64)

		case isVec || isMisc || isAtomic:
			m, err := v.validateMultiByte(isVec, isMisc, isAtomic, subOp, body[pos:])
			if err != nil {
				return err
			}
			pos += m

		default:
			pop, push, ok := simpleOperatorSignature(op)
			if !ok {
				return fmt.Errorf("unsupported opcode %#x (%s)", op, info.Name)
			}
			if err := v.popValues(pop); err != nil {
				return fmt.Errorf("%s: %w", info.Name, err)
			}
			v.pushValues(push)
		}
	}
	if len(v.frames) != 0 {
		return fmt.Errorf("function body missing end")
	}
	return nil
}

// decodeImmediateHeader returns the OperatorInfo for op (resolving multi-byte prefixes), how many
// bytes the sub-opcode varint itself consumed, and booleans identifying which prefix table matched.
func (v *funcValidator) decodeImmediateHeader(op Opcode, rest []byte) (info OperatorInfo, isVec, isMisc, isAtomic bool, subOp uint32, n int, err error) {
	switch op {
	case OpcodeMiscPrefix:
		sub, m, e := leb128.LoadUint32(rest)
		if e != nil {
			return OperatorInfo{}, false, false, false, 0, 0, fmt.Errorf("misc sub-opcode: %w", e)
		}
		i, ok := MiscOperatorTable[sub]
		if !ok {
			return OperatorInfo{}, false, false, false, 0, 0, fmt.Errorf("unknown misc opcode 0xfc %#x", sub)
		}
		return i, false, true, false, sub, int(m), nil
	case OpcodeVecPrefix:
		sub, m, e := leb128.LoadUint32(rest)
		if e != nil {
			return OperatorInfo{}, false, false, false, 0, 0, fmt.Errorf("vec sub-opcode: %w", e)
		}
		i, ok := VecOperatorTable[sub]
		if !ok {
			// Unlisted v128 opcodes still decode uniformly; treat them as a generic no-result-type-checked
			// numeric op so a full module using niche lanewise ops can still validate. See DESIGN.md.
			return OperatorInfo{Name: "v128.unlisted", Immediate: ImmMisc, Feature: FeatureSIMD}, true, false, false, sub, int(m), nil
		}
		return i, true, false, false, sub, int(m), nil
	case OpcodeAtomicPrefix:
		sub, m, e := leb128.LoadUint32(rest)
		if e != nil {
			return OperatorInfo{}, false, false, false, 0, 0, fmt.Errorf("atomic sub-opcode: %w", e)
		}
		i, ok := AtomicOperatorTable[sub]
		if !ok {
			return OperatorInfo{Name: "atomic.unlisted", Immediate: ImmLoadStore, Feature: FeatureThreads}, false, false, true, sub, int(m), nil
		}
		return i, false, false, true, sub, int(m), nil
	default:
		i, ok := OperatorTable[op]
		if !ok {
			return OperatorInfo{}, false, false, false, 0, 0, fmt.Errorf("unknown opcode %#x", op)
		}
		return i, false, false, false, 0, 0, nil
	}
}

// validateMultiByte consumes and type-checks the remaining immediate bytes (if any) for a misc/vec/atomic
// instruction, applies its signature effect to the operand stack, and returns the number of immediate bytes
// consumed. Immediate shapes beyond the sub-opcode
// (e.g. memarg for loads/stores, lane indices) are consumed generically via ImmMisc/ImmLoadStore/ImmTableIndex
// without per-opcode detail, since OperatorTable already recorded each one's ImmediateKind.
func (v *funcValidator) validateMultiByte(isVec, isMisc, isAtomic bool, subOp uint32, rest []byte) (int, error) {
	pos := 0
	switch {
	case isMisc:
		info := MiscOperatorTable[subOp]
		switch info.Immediate {
		case ImmMisc:
			switch subOp {
			case OpcodeMiscMemoryInit, OpcodeMiscTableInit:
				_, m, err := leb128.LoadUint32(rest[pos:])
				if err != nil {
					return 0, err
				}
				pos += int(m)
				_, m2, err := leb128.LoadUint32(rest[pos:])
				if err != nil {
					return 0, err
				}
				pos += int(m2)
				if err := v.popValues([]ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}); err != nil {
					return 0, fmt.Errorf("%s: %w", info.Name, err)
				}
			case OpcodeMiscDataDrop, OpcodeMiscElemDrop:
				_, m, err := leb128.LoadUint32(rest[pos:])
				if err != nil {
					return 0, err
				}
				pos += int(m)
			case OpcodeMiscMemoryCopy, OpcodeMiscTableCopy:
				_, m, err := leb128.LoadUint32(rest[pos:])
				if err != nil {
					return 0, err
				}
				pos += int(m)
				_, m2, err := leb128.LoadUint32(rest[pos:])
				if err != nil {
					return 0, err
				}
				pos += int(m2)
				if err := v.popValues([]ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}); err != nil {
					return 0, fmt.Errorf("%s: %w", info.Name, err)
				}
			case OpcodeMiscMemoryFill:
				if err := v.popValues([]ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}); err != nil {
					return 0, fmt.Errorf("memory.fill: %w", err)
				}
			}
		case ImmTableIndex:
			_, m, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m)
			switch subOp {
			case OpcodeMiscTableGrow:
				if err := v.pop(ValueTypeI32); err != nil {
					return 0, err
				}
				if _, err := v.popAny(); err != nil {
					return 0, err
				}
				v.push(ValueTypeI32)
			case OpcodeMiscTableSize:
				v.push(ValueTypeI32)
			case OpcodeMiscTableFill:
				if err := v.popValues([]ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}); err != nil {
					return 0, err
				}
			}
		case ImmNone:
			pop, push, ok := simpleOperatorSignature(op0xFC(subOp))
			if ok {
				if err := v.popValues(pop); err != nil {
					return 0, err
				}
				v.pushValues(push)
			}
		}
		return pos, nil

	case isVec:
		switch subOp {
		case OpcodeVecV128Load:
			align, m, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m)
			_, m2, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m2)
			if err := v.validateAlignment(OpcodeVecPrefix, align); err != nil {
				return 0, err
			}
			if err := v.pop(ValueTypeI32); err != nil {
				return 0, err
			}
			v.push(ValueTypeV128)
		case OpcodeVecV128Store:
			align, m, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m)
			_, m2, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m2)
			if err := v.validateAlignment(OpcodeVecPrefix, align); err != nil {
				return 0, err
			}
			if err := v.popValues([]ValueType{ValueTypeI32, ValueTypeV128}); err != nil {
				return 0, err
			}
		case OpcodeVecV128Const:
			if pos+16 > len(rest) {
				return 0, fmt.Errorf("v128.const: short read")
			}
			pos += 16
			v.push(ValueTypeV128)
		case OpcodeVecI8x16Shuffle:
			if pos+16 > len(rest) {
				return 0, fmt.Errorf("i8x16.shuffle: short read")
			}
			pos += 16
			if err := v.popValues([]ValueType{ValueTypeV128, ValueTypeV128}); err != nil {
				return 0, err
			}
			v.push(ValueTypeV128)
		default:
			// Binary lanewise ops (add/sub/mul/...) are v128,v128 -> v128; this covers both the listed
			// representative subset and any unlisted lanewise opcode uniformly.
			if err := v.popValues([]ValueType{ValueTypeV128, ValueTypeV128}); err != nil {
				return 0, err
			}
			v.push(ValueTypeV128)
		}
		return pos, nil

	default: // isAtomic
		info, ok := AtomicOperatorTable[subOp]
		if !ok || info.Immediate == ImmLoadStore {
			if subOp == OpcodeAtomicFence {
				if pos >= len(rest) {
					return 0, fmt.Errorf("atomic.fence: short read")
				}
				pos++
				return pos, nil
			}
			align, m, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m)
			_, m2, err := leb128.LoadUint32(rest[pos:])
			if err != nil {
				return 0, err
			}
			pos += int(m2)
			if err := v.validateAlignment(OpcodeAtomicPrefix, align); err != nil {
				return 0, err
			}
			// A representative effect: address in, value out (load-shaped). Stores and rmw ops additionally
			// consume a value; distinguishing every atomic op's exact arity is future work (see DESIGN.md).
			if err := v.pop(ValueTypeI32); err != nil {
				return 0, err
			}
			v.push(ValueTypeI64)
		}
		return pos, nil
	}
}

func op0xFC(sub uint32) Opcode { return byte(sub) } // trunc_sat opcodes fit a byte; used only for table lookup

func sliceEqualValueTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validateAlignment checks that align (log2 of the natural alignment requested) doesn't exceed the access
// size implied by op, per the spec's "memarg" validation rule.
func (v *funcValidator) validateAlignment(op Opcode, align uint32) error {
	max, ok := maxAlignLog2[op]
	if !ok {
		return nil // unmetered prefix ops (e.g. atomic.fence) don't reach here with a real op
	}
	if align > max {
		return fmt.Errorf("alignment 2**%d exceeds natural alignment 2**%d", align, max)
	}
	return nil
}

var maxAlignLog2 = map[Opcode]uint32{
	OpcodeI32Load: 2, OpcodeI64Load: 3, OpcodeF32Load: 2, OpcodeF64Load: 3,
	OpcodeI32Load8S: 0, OpcodeI32Load8U: 0, OpcodeI32Load16S: 1, OpcodeI32Load16U: 1,
	OpcodeI64Load8S: 0, OpcodeI64Load8U: 0, OpcodeI64Load16S: 1, OpcodeI64Load16U: 1,
	OpcodeI64Load32S: 2, OpcodeI64Load32U: 2,
	OpcodeI32Store: 2, OpcodeI64Store: 3, OpcodeF32Store: 2, OpcodeF64Store: 3,
	OpcodeI32Store8: 0, OpcodeI32Store16: 1, OpcodeI64Store8: 0, OpcodeI64Store16: 1, OpcodeI64Store32: 2,
	OpcodeVecPrefix:    4, // v128 load/store natural alignment is 16 bytes (2**4)
	OpcodeAtomicPrefix: 3, // conservative ceiling; per-op precision is future work
}

func loadStoreSignature(op Opcode) (pop, push []ValueType, ok bool) {
	switch op {
	case OpcodeI32Load, OpcodeI32Load8S, OpcodeI32Load8U, OpcodeI32Load16S, OpcodeI32Load16U:
		return []ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, true
	case OpcodeI64Load, OpcodeI64Load8S, OpcodeI64Load8U, OpcodeI64Load16S, OpcodeI64Load16U, OpcodeI64Load32S, OpcodeI64Load32U:
		return []ValueType{ValueTypeI32}, []ValueType{ValueTypeI64}, true
	case OpcodeF32Load:
		return []ValueType{ValueTypeI32}, []ValueType{ValueTypeF32}, true
	case OpcodeF64Load:
		return []ValueType{ValueTypeI32}, []ValueType{ValueTypeF64}, true
	case OpcodeI32Store, OpcodeI32Store8, OpcodeI32Store16:
		return []ValueType{ValueTypeI32, ValueTypeI32}, nil, true
	case OpcodeI64Store, OpcodeI64Store8, OpcodeI64Store16, OpcodeI64Store32:
		return []ValueType{ValueTypeI32, ValueTypeI64}, nil, true
	case OpcodeF32Store:
		return []ValueType{ValueTypeI32, ValueTypeF32}, nil, true
	case OpcodeF64Store:
		return []ValueType{ValueTypeI32, ValueTypeF64}, nil, true
	}
	return nil, nil, false
}

// simpleOperatorSignature returns the pop/push effect for opcodes whose shape is fully determined by their
// numeric range: comparisons, unary/binary arithmetic and conversions. Control-flow, memory, local/global,
// reference and table opcodes are handled with bespoke logic above since they need more than a type signature
// (branch targets, indices, memargs).
func simpleOperatorSignature(op Opcode) (pop, push []ValueType, ok bool) {
	i32, i64, f32, f64 := ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64
	switch {
	case op == OpcodeI32Eqz:
		return []ValueType{i32}, []ValueType{i32}, true
	case op >= OpcodeI32Eq && op <= OpcodeI32GeU:
		return []ValueType{i32, i32}, []ValueType{i32}, true
	case op == OpcodeI64Eqz:
		return []ValueType{i64}, []ValueType{i32}, true
	case op >= OpcodeI64Eq && op <= OpcodeI64GeU:
		return []ValueType{i64, i64}, []ValueType{i32}, true
	case op >= OpcodeF32Eq && op <= OpcodeF32Ge:
		return []ValueType{f32, f32}, []ValueType{i32}, true
	case op >= OpcodeF64Eq && op <= OpcodeF64Ge:
		return []ValueType{f64, f64}, []ValueType{i32}, true
	case op >= OpcodeI32Clz && op <= OpcodeI32Popcnt:
		return []ValueType{i32}, []ValueType{i32}, true
	case op >= OpcodeI32Add && op <= OpcodeI32Rotr:
		return []ValueType{i32, i32}, []ValueType{i32}, true
	case op >= OpcodeI64Clz && op <= OpcodeI64Popcnt:
		return []ValueType{i64}, []ValueType{i64}, true
	case op >= OpcodeI64Add && op <= OpcodeI64Rotr:
		return []ValueType{i64, i64}, []ValueType{i64}, true
	case op >= OpcodeF32Abs && op <= OpcodeF32Sqrt:
		return []ValueType{f32}, []ValueType{f32}, true
	case op >= OpcodeF32Add && op <= OpcodeF32Copysign:
		return []ValueType{f32, f32}, []ValueType{f32}, true
	case op >= OpcodeF64Abs && op <= OpcodeF64Sqrt:
		return []ValueType{f64}, []ValueType{f64}, true
	case op >= OpcodeF64Add && op <= OpcodeF64Copysign:
		return []ValueType{f64, f64}, []ValueType{f64}, true
	case op == OpcodeI32Extend8S || op == OpcodeI32Extend16S:
		return []ValueType{i32}, []ValueType{i32}, true
	case op == OpcodeI64Extend8S || op == OpcodeI64Extend16S || op == OpcodeI64Extend32S:
		return []ValueType{i64}, []ValueType{i64}, true
	}
	if sig, ok := conversionSignature[op]; ok {
		return sig.pop, sig.push, true
	}
	return nil, nil, false
}

type conversionSig struct{ pop, push []ValueType }

var conversionSignature = map[Opcode]conversionSig{
	OpcodeI32WrapI64:        {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeI32}},
	OpcodeI32TruncF32S:      {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI32}},
	OpcodeI32TruncF32U:      {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI32}},
	OpcodeI32TruncF64S:      {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI32}},
	OpcodeI32TruncF64U:      {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI32}},
	OpcodeI64ExtendI32S:     {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeI64}},
	OpcodeI64ExtendI32U:     {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeI64}},
	OpcodeI64TruncF32S:      {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI64}},
	OpcodeI64TruncF32U:      {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI64}},
	OpcodeI64TruncF64S:      {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI64}},
	OpcodeI64TruncF64U:      {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI64}},
	OpcodeF32ConvertI32S:    {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeF32}},
	OpcodeF32ConvertI32U:    {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeF32}},
	OpcodeF32ConvertI64S:    {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeF32}},
	OpcodeF32ConvertI64U:    {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeF32}},
	OpcodeF32DemoteF64:      {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeF32}},
	OpcodeF64ConvertI32S:    {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeF64}},
	OpcodeF64ConvertI32U:    {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeF64}},
	OpcodeF64ConvertI64S:    {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeF64}},
	OpcodeF64ConvertI64U:    {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeF64}},
	OpcodeF64PromoteF32:     {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeF64}},
	OpcodeI32ReinterpretF32: {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI32}},
	OpcodeI64ReinterpretF64: {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI64}},
	OpcodeF32ReinterpretI32: {[]ValueType{ValueTypeI32}, []ValueType{ValueTypeF32}},
	OpcodeF64ReinterpretI64: {[]ValueType{ValueTypeI64}, []ValueType{ValueTypeF64}},
	OpcodeMiscI32TruncSatF32S: {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI32}},
	OpcodeMiscI32TruncSatF32U: {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI32}},
	OpcodeMiscI32TruncSatF64S: {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI32}},
	OpcodeMiscI32TruncSatF64U: {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI32}},
	OpcodeMiscI64TruncSatF32S: {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI64}},
	OpcodeMiscI64TruncSatF32U: {[]ValueType{ValueTypeF32}, []ValueType{ValueTypeI64}},
	OpcodeMiscI64TruncSatF64S: {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI64}},
	OpcodeMiscI64TruncSatF64U: {[]ValueType{ValueTypeF64}, []ValueType{ValueTypeI64}},
}

// readBlockType decodes the signed 33-bit block type immediate: negative single-byte encodings name an empty
// block or a single-ValueType result; non-negative values index TypeSection for a multi-value signature.
func (v *funcValidator) readBlockType(buf []byte) (*FunctionType, int, error) {
	raw, n64, err := leb128.LoadInt33(buf)
	n := int(n64)
	if err != nil {
		return nil, 0, fmt.Errorf("block type: %w", err)
	}
	if raw == -0x40 {
		return &FunctionType{}, n, nil
	}
	if raw < 0 {
		vt := ValueType(raw & 0x7f)
		return &FunctionType{Results: []ValueType{vt}}, n, nil
	}
	if err := v.enabled.Require(FeatureMultiValue); err != nil {
		// A plain single ValueType block never reaches here (raw<0 above), so any non-negative raw implies a
		// real type-section reference, which is only legal under multi-value.
		return nil, 0, fmt.Errorf("block type: type index %d invalid as %w", raw, err)
	}
	if int(raw) >= len(v.module.TypeSection) {
		return nil, 0, fmt.Errorf("block type: type index %d out of range", raw)
	}
	return &v.module.TypeSection[raw], n, nil
}

func (m *Module) globalTypeOf(idx Index) *GlobalType {
	importedGlobals := m.ImportGlobalCount()
	if idx < importedGlobals {
		var cur Index
		for _, imp := range m.ImportSection {
			if imp.Type != ExternTypeGlobal {
				continue
			}
			if cur == idx {
				return imp.DescGlobal
			}
			cur++
		}
		return nil
	}
	gi := idx - importedGlobals
	if int(gi) >= len(m.GlobalSection) {
		return nil
	}
	return m.GlobalSection[gi].Type
}

func (m *Module) tableTypeOf(idx Index) *TableType {
	importedTables := m.ImportTableCount()
	if idx < importedTables {
		var cur Index
		for _, imp := range m.ImportSection {
			if imp.Type != ExternTypeTable {
				continue
			}
			if cur == idx {
				return imp.DescTable
			}
			cur++
		}
		return nil
	}
	ti := idx - importedTables
	if int(ti) >= len(m.TableSection) {
		return nil
	}
	return m.TableSection[ti]
}

// --- operand/frame stack plumbing ---

func (v *funcValidator) pushFrame(f ctrlFrame) { v.frames = append(v.frames, f) }

func (v *funcValidator) popFrame() (ctrlFrame, error) {
	if len(v.frames) == 0 {
		return ctrlFrame{}, fmt.Errorf("unexpected end of control stack")
	}
	f := v.frames[len(v.frames)-1]
	v.frames = v.frames[:len(v.frames)-1]
	return f, nil
}

func (v *funcValidator) currentFrame() *ctrlFrame { return &v.frames[len(v.frames)-1] }

func (v *funcValidator) setUnreachable() {
	f := v.currentFrame()
	v.operands = v.operands[:f.height]
	f.unreachable = true
}

func (v *funcValidator) push(t ValueType) { v.operands = append(v.operands, t) }

func (v *funcValidator) pushValues(ts []ValueType) {
	for _, t := range ts {
		v.push(t)
	}
}

// pop checks and removes the top operand against want, honoring stack polymorphism after unreachable code and
// the "unknownType" wildcard it leaves behind.
func (v *funcValidator) pop(want ValueType) error {
	f := v.currentFrame()
	if len(v.operands) == f.height {
		if f.unreachable {
			return nil // polymorphic: treat a pop past the block's real operands as satisfied
		}
		return fmt.Errorf("expected %s, but stack was empty", ValueTypeName(want))
	}
	got := v.operands[len(v.operands)-1]
	v.operands = v.operands[:len(v.operands)-1]
	if got != want && got != unknownType && want != unknownType {
		return fmt.Errorf("expected %s, but had %s", ValueTypeName(want), ValueTypeName(got))
	}
	return nil
}

func (v *funcValidator) popAny() (ValueType, error) {
	f := v.currentFrame()
	if len(v.operands) == f.height {
		if f.unreachable {
			return unknownType, nil
		}
		return 0, fmt.Errorf("expected an operand, but stack was empty")
	}
	got := v.operands[len(v.operands)-1]
	v.operands = v.operands[:len(v.operands)-1]
	return got, nil
}

func (v *funcValidator) popValues(ts []ValueType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if err := v.pop(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

// labelTypes returns the value types a br targeting the frame `depth` levels up must carry: a loop's own
// startTypes (since branching to a loop re-enters it), or any other block's endTypes.
func (v *funcValidator) labelTypes(depth uint32) ([]ValueType, error) {
	if int(depth) >= len(v.frames) {
		return nil, fmt.Errorf("branch depth %d exceeds control stack depth %d", depth, len(v.frames))
	}
	f := &v.frames[len(v.frames)-1-int(depth)]
	if f.opcode == OpcodeLoop {
		return f.startTypes, nil
	}
	return f.endTypes, nil
}
