package wasm

import (
	"fmt"

	"github.com/wazerun/wazero/internal/leb128"
)

// ConstantExpression is the decoded form of an "init expr": the single-instruction constant expression used
// to initialize globals, and to compute table/data segment offsets. The binary format allows i32.const,
// i64.const, f32.const, f64.const, global.get (of an immutable imported global), and, under
// FeatureReferenceTypes, ref.null and ref.func.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// evaluateConstantExpression computes the uint64-encoded value of expr, resolving global.get against the
// already-instantiated imported globals of the module (globals may only reference an imported global, never
// a module-defined one, since forward references aren't legal in the init-expr grammar).
func evaluateConstantExpression(expr ConstantExpression, globals []*GlobalInstance) (uint64, error) {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, err := leb128.LoadInt32(expr.Data)
		if err != nil {
			return 0, fmt.Errorf("read i32.const: %w", err)
		}
		return uint64(uint32(v)), nil
	case OpcodeI64Const:
		v, _, err := leb128.LoadInt64(expr.Data)
		if err != nil {
			return 0, fmt.Errorf("read i64.const: %w", err)
		}
		return uint64(v), nil
	case OpcodeF32Const:
		if len(expr.Data) < 4 {
			return 0, fmt.Errorf("f32.const: short read")
		}
		bits := uint32(expr.Data[0]) | uint32(expr.Data[1])<<8 | uint32(expr.Data[2])<<16 | uint32(expr.Data[3])<<24
		return uint64(bits), nil
	case OpcodeF64Const:
		if len(expr.Data) < 8 {
			return 0, fmt.Errorf("f64.const: short read")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(expr.Data[i]) << (8 * i)
		}
		return bits, nil
	case OpcodeGlobalGet:
		idx, _, err := leb128.LoadUint32(expr.Data)
		if err != nil {
			return 0, fmt.Errorf("read global.get index: %w", err)
		}
		if int(idx) >= len(globals) {
			return 0, fmt.Errorf("global.get index %d out of range of imported globals", idx)
		}
		return globals[idx].Val, nil
	case OpcodeRefNull:
		return 0, nil
	case OpcodeRefFunc:
		idx, _, err := leb128.LoadUint32(expr.Data)
		if err != nil {
			return 0, fmt.Errorf("read ref.func index: %w", err)
		}
		return uint64(idx), nil
	default:
		return 0, fmt.Errorf("invalid constant expression opcode: %#x", expr.Opcode)
	}
}

// evaluateConstantExpressionI32 is a convenience for offsets, which the spec requires to be i32.
func evaluateConstantExpressionI32(expr ConstantExpression, globals []*GlobalInstance) (uint32, error) {
	v, err := evaluateConstantExpression(expr, globals)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
