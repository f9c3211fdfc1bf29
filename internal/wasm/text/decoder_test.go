package text

import (
	"testing"

	"github.com/wazerun/wazero/internal/testing/require"
	"github.com/wazerun/wazero/internal/wasm"
)

func u32(v uint32) *uint32 { return &v }

func TestDecodeModule_Empty(t *testing.T) {
	m, err := DecodeModule([]byte("(module)"), wasm.Features20191205)
	require.NoError(t, err)
	require.Nil(t, m.TypeSection)
	require.Nil(t, m.FunctionSection)
}

func TestDecodeModule_Name(t *testing.T) {
	m, err := DecodeModule([]byte("(module $test)"), wasm.Features20191205)
	require.NoError(t, err)
	require.Equal(t, "test", m.NameSection.ModuleName)
}

func TestDecodeModule_FuncBody(t *testing.T) {
	tests := []struct {
		name, source string
		expected     []byte
	}{
		{
			name:     "empty",
			source:   "(module (func))",
			expected: []byte{wasm.OpcodeEnd},
		},
		{
			name:     "local.get",
			source:   "(module (func (param i32) local.get 0 drop))",
			expected: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeDrop, wasm.OpcodeEnd},
		},
		{
			name:     "local.get twice and add",
			source:   "(module (func (param i32 i32) (result i32) local.get 0 local.get 1 i32.add))",
			expected: []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeLocalGet, 0x01, wasm.OpcodeI32Add, wasm.OpcodeEnd},
		},
		{
			name:     "i32.const",
			source:   "(module (func (result i32) i32.const 42))",
			expected: []byte{wasm.OpcodeI32Const, 42, wasm.OpcodeEnd},
		},
		{
			name:   "block",
			source: "(module (func block end))",
			expected: []byte{
				wasm.OpcodeBlock, 0x40, wasm.OpcodeEnd,
				wasm.OpcodeEnd,
			},
		},
		{
			name:   "if/else",
			source: "(module (func (param i32) (result i32) local.get 0 if (result i32) i32.const 1 else i32.const 2 end))",
			expected: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeIf, wasm.ValueTypeI32,
				wasm.OpcodeI32Const, 1,
				wasm.OpcodeElse,
				wasm.OpcodeI32Const, 2,
				wasm.OpcodeEnd,
				wasm.OpcodeEnd,
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m, err := DecodeModule([]byte(tc.source), wasm.Features20220419)
			require.NoError(t, err)
			require.Equal(t, 1, len(m.CodeSection))
			require.Equal(t, tc.expected, m.CodeSection[0].Body)
		})
	}
}

func TestDecodeModule_TypesImportsExports(t *testing.T) {
	source := `(module
  (type $t (func (param i32) (result i32)))
  (import "env" "double" (func $double (type $t)))
  (func $inc (param i32) (result i32) local.get 0 i32.const 1 i32.add)
  (func $init)
  (export "inc" (func $inc))
  (export "double" (func $double))
  (memory (export "mem") 1 2)
  (global $g (mut i32) i32.const 0)
  (export "g" (global $g))
  (start $init)
)`
	m, err := DecodeModule([]byte(source), wasm.Features20220419)
	require.NoError(t, err)

	require.Equal(t, 1, len(m.ImportSection))
	require.Equal(t, "env", m.ImportSection[0].Module)
	require.Equal(t, "double", m.ImportSection[0].Name)
	require.Equal(t, wasm.ExternTypeFunc, m.ImportSection[0].Type)

	require.Equal(t, 2, len(m.FunctionSection))
	require.Equal(t, 1, len(m.MemorySection))
	require.Equal(t, uint32(1), m.MemorySection[0].Min)
	require.Equal(t, *u32(2), *m.MemorySection[0].Max)

	require.Equal(t, 1, len(m.GlobalSection))
	require.True(t, m.GlobalSection[0].Type.Mutable)

	require.Equal(t, 4, len(m.ExportSection)) // "mem" (inline on the memory), "inc", "double", "g"
	incExport, ok := m.ExportSection["inc"]
	require.True(t, ok)
	require.Equal(t, m.ImportFuncCount(), incExport.Index) // first module-defined func follows the one import

	require.NotNil(t, m.StartSection)
	initExport := m.ImportFuncCount() + 1 // $inc then $init, in declaration order
	require.Equal(t, initExport, *m.StartSection)

	require.NoError(t, m.Validate(wasm.Features20220419))
}

func TestDecodeModule_Table(t *testing.T) {
	m, err := DecodeModule([]byte(`(module (table 1 10 funcref))`), wasm.Features20191205)
	require.NoError(t, err)
	require.Equal(t, 1, len(m.TableSection))
	require.Equal(t, wasm.ValueTypeFuncref, m.TableSection[0].ElemType)
	require.Equal(t, uint32(1), m.TableSection[0].Limit.Min)
	require.Equal(t, *u32(10), *m.TableSection[0].Limit.Max)
}

func TestWriteModule_RoundTripsThroughOpcodeNames(t *testing.T) {
	source := `(module (func (param i32 i32) (result i32) local.get 0 local.get 1 i32.add))`
	m, err := DecodeModule([]byte(source), wasm.Features20191205)
	require.NoError(t, err)

	text := WriteModule(m)
	require.Contains(t, text, "local.get 0")
	require.Contains(t, text, "i32.add")
}
