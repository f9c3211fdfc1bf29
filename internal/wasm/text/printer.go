// Package text implements the WebAssembly Text Format (S-expressions): DecodeModule parses a textual module
// into the same *wasm.Module the binary decoder produces, and WriteModule renders a *wasm.Module back to text,
// both built on internal/wasm's OperatorTable so the instruction mnemonics can never drift from what the
// binary decoder/encoder and the interpreter agree an opcode means.
package text

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wazerun/wazero/internal/leb128"
	"github.com/wazerun/wazero/internal/wasm"
)

// mnemonics is built once from wasm.OperatorTable: name -> opcode, the inverse of InstructionName.
var mnemonics = func() map[string]wasm.Opcode {
	m := make(map[string]wasm.Opcode, len(wasm.OperatorTable))
	for op, info := range wasm.OperatorTable {
		m[info.Name] = op
	}
	return m
}()

// WriteModule renders m as WebAssembly Text Format. This always uses the unfolded (flat) instruction syntax:
// `block ... end` rather than `(block ...)`, since every folded form has an equivalent flat one and the flat
// form is what a function's raw Body already is.
func WriteModule(m *wasm.Module) string {
	var sb strings.Builder
	sb.WriteString("(module")
	if m.NameSection != nil && m.NameSection.ModuleName != "" {
		fmt.Fprintf(&sb, " $%s", m.NameSection.ModuleName)
	}

	for i := range m.TypeSection {
		writeFuncType(&sb, &m.TypeSection[i])
	}
	for _, imp := range m.ImportSection {
		writeImport(&sb, m, imp)
	}
	for i, code := range m.CodeSection {
		writeFunc(&sb, m, i, code)
	}
	for i, tt := range m.TableSection {
		fmt.Fprintf(&sb, "\n  (table (;%d;) %s %s)", i, limitString(tt.Limit), wasm.ValueTypeName(tt.ElemType))
	}
	for i, mt := range m.MemorySection {
		fmt.Fprintf(&sb, "\n  (memory (;%d;) %s)", i, memLimitString(mt))
	}
	for i, g := range m.GlobalSection {
		fmt.Fprintf(&sb, "\n  (global (;%d;) %s %s)", i, globalTypeString(g.Type), writeConstExpr(g.Init))
	}
	names := sortedNames(m.ExportSection)
	for _, name := range names {
		exp := m.ExportSection[name]
		fmt.Fprintf(&sb, "\n  (export %q (%s %d))", name, wasm.ExternTypeName(exp.Type), exp.Index)
	}
	if m.StartSection != nil {
		fmt.Fprintf(&sb, "\n  (start %d)", *m.StartSection)
	}
	sb.WriteString(")")
	return sb.String()
}

func sortedNames(exports map[string]*wasm.Export) []string {
	names := make([]string, 0, len(exports))
	for n := range exports {
		names = append(names, n)
	}
	// Insertion sort: export counts are small and this avoids a sort.Strings dependency duplicated from the
	// binary package purely for a cosmetic rendering order.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func writeFuncType(sb *strings.Builder, ft *wasm.FunctionType) {
	sb.WriteString("\n  (type (;;) (func")
	writeParamsResults(sb, ft.Params, ft.Results)
	sb.WriteString("))")
}

func writeParamsResults(sb *strings.Builder, params, results []wasm.ValueType) {
	if len(params) > 0 {
		sb.WriteString(" (param")
		for _, p := range params {
			sb.WriteByte(' ')
			sb.WriteString(wasm.ValueTypeName(p))
		}
		sb.WriteByte(')')
	}
	if len(results) > 0 {
		sb.WriteString(" (result")
		for _, r := range results {
			sb.WriteByte(' ')
			sb.WriteString(wasm.ValueTypeName(r))
		}
		sb.WriteByte(')')
	}
}

func writeImport(sb *strings.Builder, m *wasm.Module, imp *wasm.Import) {
	switch imp.Type {
	case wasm.ExternTypeFunc:
		ft := &m.TypeSection[imp.DescFunc]
		fmt.Fprintf(sb, "\n  (import %q %q (func", imp.Module, imp.Name)
		writeParamsResults(sb, ft.Params, ft.Results)
		sb.WriteString("))")
	case wasm.ExternTypeTable:
		fmt.Fprintf(sb, "\n  (import %q %q (table %s %s))", imp.Module, imp.Name,
			limitString(imp.DescTable.Limit), wasm.ValueTypeName(imp.DescTable.ElemType))
	case wasm.ExternTypeMemory:
		fmt.Fprintf(sb, "\n  (import %q %q (memory %s))", imp.Module, imp.Name, memLimitString(imp.DescMem))
	case wasm.ExternTypeGlobal:
		fmt.Fprintf(sb, "\n  (import %q %q (global %s))", imp.Module, imp.Name, globalTypeString(imp.DescGlobal))
	}
}

func writeFunc(sb *strings.Builder, m *wasm.Module, idx int, code *wasm.Code) {
	importCount := int(m.ImportFuncCount())
	typeIdx := m.FunctionSection[idx]
	ft := &m.TypeSection[typeIdx]
	fmt.Fprintf(sb, "\n  (func (;%d;)", importCount+idx)
	writeParamsResults(sb, ft.Params, nil)
	if len(ft.Results) > 0 {
		sb.WriteString(" (result")
		for _, r := range ft.Results {
			sb.WriteByte(' ')
			sb.WriteString(wasm.ValueTypeName(r))
		}
		sb.WriteByte(')')
	}
	for _, lt := range code.LocalTypes {
		fmt.Fprintf(sb, " (local %s)", wasm.ValueTypeName(lt))
	}
	sb.WriteString("\n    ")
	sb.WriteString(writeBody(code.Body))
	sb.WriteString(")")
}

// writeConstExpr renders a ConstantExpression as a single instruction, e.g. "(i32.const 1)".
func writeConstExpr(expr wasm.ConstantExpression) string {
	body := append(append([]byte{}, expr.Opcode), expr.Data...)
	body = append(body, wasm.OpcodeEnd)
	s := writeBody(body)
	return "(" + strings.TrimSuffix(s, " end") + ")"
}

func limitString(l *wasm.Limits) string {
	if l.Max != nil {
		return fmt.Sprintf("%d %d", l.Min, *l.Max)
	}
	return strconv.FormatUint(uint64(l.Min), 10)
}

func memLimitString(mt *wasm.MemoryType) string {
	if mt.Max != nil {
		return fmt.Sprintf("%d %d", mt.Min, *mt.Max)
	}
	return strconv.FormatUint(uint64(mt.Min), 10)
}

func globalTypeString(gt *wasm.GlobalType) string {
	if gt.Mutable {
		return fmt.Sprintf("(mut %s)", wasm.ValueTypeName(gt.Value))
	}
	return wasm.ValueTypeName(gt.Value)
}

// writeBody renders a raw instruction stream (as found in wasm.Code.Body) back to mnemonic text, using
// OperatorTable to look up each opcode's name and ImmediateKind to know how many immediate bytes follow.
// This covers the single-byte opcodes in OperatorTable, exception-handling ones included. Prefixed opcodes
// (0xFC, 0xFD, 0xFE: bulk memory, SIMD, atomics) have no entry there: the prefix byte prints as
// "(unknown 0xXX)" and the bytes after it are read as further opcodes, since this printer's purpose is
// debugging the core module shapes, not full disassembly.
func writeBody(body []byte) string {
	var sb strings.Builder
	r := &byteCursor{b: body}
	first := true
	for !r.done() {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		op := r.readByte()
		info, ok := wasm.OperatorTable[op]
		if !ok {
			fmt.Fprintf(&sb, "(unknown 0x%02x)", op)
			continue
		}
		sb.WriteString(info.Name)
		writeImmediate(&sb, r, info.Immediate)
	}
	return sb.String()
}

func writeImmediate(sb *strings.Builder, r *byteCursor, kind wasm.ImmediateKind) {
	switch kind {
	case wasm.ImmNone:
	case wasm.ImmI32:
		v, _ := r.leb128I32()
		fmt.Fprintf(sb, " %d", v)
	case wasm.ImmI64:
		v, _ := r.leb128I64()
		fmt.Fprintf(sb, " %d", v)
	case wasm.ImmF32:
		fmt.Fprintf(sb, " 0x%08x", r.readN(4))
	case wasm.ImmF64:
		fmt.Fprintf(sb, " 0x%016x", r.readN(8))
	case wasm.ImmValueType:
		fmt.Fprintf(sb, " %s", wasm.ValueTypeName(r.readByte()))
	case wasm.ImmLocalIndex, wasm.ImmGlobalIndex, wasm.ImmFunctionIndex, wasm.ImmTableIndex, wasm.ImmTypeIndex, wasm.ImmBranch:
		v, _ := r.leb128U32()
		fmt.Fprintf(sb, " %d", v)
	case wasm.ImmLoadStore:
		align, _ := r.leb128U32()
		offset, _ := r.leb128U32()
		fmt.Fprintf(sb, " align=%d offset=%d", align, offset)
	case wasm.ImmBranchTable:
		n, _ := r.leb128U32()
		for i := uint32(0); i < n; i++ {
			v, _ := r.leb128U32()
			fmt.Fprintf(sb, " %d", v)
		}
		def, _ := r.leb128U32()
		fmt.Fprintf(sb, " %d", def)
	case wasm.ImmBlock:
		// Block-type byte or LEB128 type index; a single 0x40 (empty) is the common case.
		b := r.peekByte()
		if b == 0x40 || b == wasm.ValueTypeI32 || b == wasm.ValueTypeI64 || b == wasm.ValueTypeF32 ||
			b == wasm.ValueTypeF64 || b == wasm.ValueTypeFuncref || b == wasm.ValueTypeExternref {
			r.readByte()
		} else {
			r.leb128I64()
		}
	case wasm.ImmMisc:
		r.leb128U32()
	}
}

// byteCursor is a tiny forward-only reader over a raw instruction stream, used only by writeBody: it never
// needs error-returning LEB128 decode since a Body that reached this printer already passed validateFunction.
type byteCursor struct {
	b []byte
	i int
}

func (c *byteCursor) done() bool { return c.i >= len(c.b) }

func (c *byteCursor) readByte() byte {
	if c.done() {
		return 0
	}
	v := c.b[c.i]
	c.i++
	return v
}

func (c *byteCursor) peekByte() byte {
	if c.done() {
		return 0
	}
	return c.b[c.i]
}

func (c *byteCursor) readN(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(c.readByte()) << (8 * i)
	}
	return v
}

func (c *byteCursor) leb128U32() (uint32, error) {
	v, _, err := leb128.DecodeUint32(&sliceByteReader{c})
	return v, err
}

func (c *byteCursor) leb128I32() (int32, error) {
	v, _, err := leb128.DecodeInt32(&sliceByteReader{c})
	return v, err
}

func (c *byteCursor) leb128I64() (int64, error) {
	v, _, err := leb128.DecodeInt64(&sliceByteReader{c})
	return v, err
}

// sliceByteReader adapts byteCursor to io.ByteReader for the streaming leb128 decoders.
type sliceByteReader struct{ c *byteCursor }

func (s *sliceByteReader) ReadByte() (byte, error) {
	if s.c.done() {
		return 0, fmt.Errorf("unexpected end of instruction stream")
	}
	return s.c.readByte(), nil
}
