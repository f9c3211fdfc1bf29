package wasm

import "github.com/wazerun/wazero/api"

// ValueType re-exports api.ValueType so internal packages need not import both.
type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeExternref = api.ValueTypeExternref
	// ValueTypeFuncref is the funcref type, used as the element type of tables holding callable references.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeV128 is the 128-bit vector type decoded under FeatureSIMD.
	ValueTypeV128 ValueType = 0x7b
)

// ValueTypeName extends api.ValueTypeName with funcref and v128.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeV128:
		return "v128"
	default:
		return api.ValueTypeName(t)
	}
}
