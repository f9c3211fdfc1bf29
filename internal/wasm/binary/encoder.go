package binary

import (
	"sort"

	"github.com/wazerun/wazero/internal/leb128"
	"github.com/wazerun/wazero/internal/wasm"
)

// EncodeModule serializes m into the WebAssembly binary format. It is the left inverse of DecodeModule: for
// any bin accepted by DecodeModule, EncodeModule(m) reproduces an equivalent (not necessarily byte-identical,
// e.g. custom sections beyond "name" are dropped) binary.
func EncodeModule(m *wasm.Module) []byte {
	out := append([]byte{}, Magic...)
	out = append(out, version...)

	if len(m.TypeSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.TypeSection)))...)
		for i := range m.TypeSection {
			body = append(body, encodeFunctionType(&m.TypeSection[i])...)
		}
		out = append(out, encodeSection(wasm.SectionIDType, body)...)
	}
	if len(m.ImportSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.ImportSection)))...)
		for _, imp := range m.ImportSection {
			body = append(body, encodeImport(imp)...)
		}
		out = append(out, encodeSection(wasm.SectionIDImport, body)...)
	}
	if len(m.FunctionSection) > 0 {
		out = append(out, encodeFunctionSection(m.FunctionSection)...)
	}
	if len(m.TableSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.TableSection)))...)
		for _, t := range m.TableSection {
			body = append(body, encodeTableType(t)...)
		}
		out = append(out, encodeSection(wasm.SectionIDTable, body)...)
	}
	if len(m.MemorySection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.MemorySection)))...)
		for _, mt := range m.MemorySection {
			body = append(body, encodeMemoryType(mt)...)
		}
		out = append(out, encodeSection(wasm.SectionIDMemory, body)...)
	}
	if len(m.GlobalSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.GlobalSection)))...)
		for _, g := range m.GlobalSection {
			body = append(body, encodeGlobal(g)...)
		}
		out = append(out, encodeSection(wasm.SectionIDGlobal, body)...)
	}
	if len(m.ExportSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.ExportSection)))...)
		for _, name := range sortedExportNames(m.ExportSection) {
			body = append(body, encodeExport(m.ExportSection[name])...)
		}
		out = append(out, encodeSection(wasm.SectionIDExport, body)...)
	}
	if m.StartSection != nil {
		out = append(out, encodeStartSection(*m.StartSection)...)
	}
	if len(m.ElementSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.ElementSection)))...)
		for _, es := range m.ElementSection {
			body = append(body, encodeElementSegment(es)...)
		}
		out = append(out, encodeSection(wasm.SectionIDElement, body)...)
	}
	if m.DataCountSection != nil {
		out = append(out, encodeSection(wasm.SectionIDDataCount, leb128.EncodeUint32(*m.DataCountSection))...)
	}
	if len(m.CodeSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.CodeSection)))...)
		for _, c := range m.CodeSection {
			body = append(body, encodeCode(c)...)
		}
		out = append(out, encodeSection(wasm.SectionIDCode, body)...)
	}
	if len(m.DataSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.DataSection)))...)
		for _, ds := range m.DataSection {
			body = append(body, encodeDataSegment(ds)...)
		}
		out = append(out, encodeSection(wasm.SectionIDData, body)...)
	}
	if len(m.ExceptionSection) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(m.ExceptionSection)))...)
		for _, et := range m.ExceptionSection {
			body = append(body, encodeValueTypes(et.Params)...)
		}
		out = append(out, encodeSection(wasm.SectionIDException, body)...)
	}
	if m.NameSection != nil {
		out = append(out, encodeCustomSection(nameSectionName, encodeNameSection(m.NameSection))...)
	}
	return out
}

func encodeSection(id wasm.SectionID, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	return append(out, body...)
}

func encodeCustomSection(name string, body []byte) []byte {
	full := encodeString(name)
	full = append(full, body...)
	return encodeSection(wasm.SectionIDCustom, full)
}

func encodeString(s string) []byte {
	out := leb128.EncodeUint32(uint32(len(s)))
	return append(out, s...)
}

func encodeValueTypes(types []wasm.ValueType) []byte {
	out := leb128.EncodeUint32(uint32(len(types)))
	return append(out, types...)
}

func encodeFunctionType(ft *wasm.FunctionType) []byte {
	out := []byte{0x60}
	out = append(out, encodeValueTypes(ft.Params)...)
	out = append(out, encodeValueTypes(ft.Results)...)
	return out
}

func encodeLimits(l *wasm.Limits) []byte {
	if l.Max == nil {
		out := []byte{0x00}
		return append(out, leb128.EncodeUint32(l.Min)...)
	}
	out := []byte{0x01}
	out = append(out, leb128.EncodeUint32(l.Min)...)
	return append(out, leb128.EncodeUint32(*l.Max)...)
}

func encodeTableType(t *wasm.TableType) []byte {
	out := []byte{t.ElemType}
	return append(out, encodeLimits(t.Limit)...)
}

func encodeMemoryType(mt *wasm.MemoryType) []byte {
	return encodeLimits(&wasm.Limits{Min: mt.Min, Max: mt.Max})
}

func encodeGlobalType(gt *wasm.GlobalType) []byte {
	mut := byte(0)
	if gt.Mutable {
		mut = 1
	}
	return []byte{gt.Value, mut}
}

func encodeImport(imp *wasm.Import) []byte {
	out := encodeString(imp.Module)
	out = append(out, encodeString(imp.Name)...)
	out = append(out, imp.Type)
	switch imp.Type {
	case wasm.ExternTypeFunc:
		out = append(out, leb128.EncodeUint32(imp.DescFunc)...)
	case wasm.ExternTypeTable:
		out = append(out, encodeTableType(imp.DescTable)...)
	case wasm.ExternTypeMemory:
		out = append(out, encodeMemoryType(imp.DescMem)...)
	case wasm.ExternTypeGlobal:
		out = append(out, encodeGlobalType(imp.DescGlobal)...)
	}
	return out
}

func encodeExport(exp *wasm.Export) []byte {
	out := encodeString(exp.Name)
	out = append(out, exp.Type)
	return append(out, leb128.EncodeUint32(exp.Index)...)
}

func encodeGlobal(g *wasm.Global) []byte {
	out := encodeGlobalType(g.Type)
	return append(out, encodeConstantExpression(g.Init)...)
}

// encodeConstantExpression reassembles a ConstantExpression.Opcode/Data pair (split apart by
// decodeConstantExpression) back into its wire form, appending the terminating OpcodeEnd.
func encodeConstantExpression(expr wasm.ConstantExpression) []byte {
	var out []byte
	if expr.Opcode == wasm.OpcodeVecV128Const {
		out = append(out, wasm.OpcodeVecPrefix, wasm.OpcodeVecV128Const)
	} else {
		out = append(out, expr.Opcode)
	}
	out = append(out, expr.Data...)
	return append(out, wasm.OpcodeEnd)
}

func encodeFunctionSection(funcs []wasm.Index) []byte {
	var body []byte
	body = append(body, leb128.EncodeUint32(uint32(len(funcs)))...)
	for _, idx := range funcs {
		body = append(body, leb128.EncodeUint32(idx)...)
	}
	return encodeSection(wasm.SectionIDFunction, body)
}

func encodeStartSection(idx wasm.Index) []byte {
	return encodeSection(wasm.SectionIDStart, leb128.EncodeUint32(idx))
}

func encodeElementSegment(es *wasm.ElementSegment) []byte {
	var out []byte
	switch es.Mode {
	case wasm.ElementModeActive:
		if es.TableIndex == 0 {
			out = append(out, leb128.EncodeUint32(0)...)
			out = append(out, encodeConstantExpression(es.OffsetExpr)...)
		} else {
			out = append(out, leb128.EncodeUint32(2)...)
			out = append(out, leb128.EncodeUint32(es.TableIndex)...)
			out = append(out, encodeConstantExpression(es.OffsetExpr)...)
			out = append(out, 0x00) // elemkind: funcref
		}
	case wasm.ElementModePassive:
		out = append(out, leb128.EncodeUint32(1)...)
		out = append(out, 0x00)
	case wasm.ElementModeDeclarative:
		out = append(out, leb128.EncodeUint32(3)...)
		out = append(out, 0x00)
	}
	out = append(out, leb128.EncodeUint32(uint32(len(es.Init)))...)
	for _, idx := range es.Init {
		out = append(out, leb128.EncodeUint32(idx)...)
	}
	return out
}

func encodeDataSegment(ds *wasm.DataSegment) []byte {
	var out []byte
	if ds.Passive {
		out = append(out, leb128.EncodeUint32(1)...)
	} else if ds.MemoryIndex == 0 {
		out = append(out, leb128.EncodeUint32(0)...)
		out = append(out, encodeConstantExpression(ds.OffsetExpr)...)
	} else {
		out = append(out, leb128.EncodeUint32(2)...)
		out = append(out, leb128.EncodeUint32(ds.MemoryIndex)...)
		out = append(out, encodeConstantExpression(ds.OffsetExpr)...)
	}
	out = append(out, leb128.EncodeUint32(uint32(len(ds.Init)))...)
	return append(out, ds.Init...)
}

// encodeCode re-run-length-encodes Code.LocalTypes into local blocks of one type each, which is legal (if not
// maximally compact) per the format: a decoder must accept any partition into uniform-type runs.
func encodeCode(c *wasm.Code) []byte {
	var locals []byte
	blocks := runLengthEncodeLocals(c.LocalTypes)
	locals = append(locals, leb128.EncodeUint32(uint32(len(blocks)))...)
	for _, b := range blocks {
		locals = append(locals, leb128.EncodeUint32(b.count)...)
		locals = append(locals, b.valType)
	}
	body := append(locals, c.Body...)
	return append(leb128.EncodeUint32(uint32(len(body))), body...)
}

type localBlock struct {
	count   uint32
	valType wasm.ValueType
}

func runLengthEncodeLocals(types []wasm.ValueType) []localBlock {
	var blocks []localBlock
	for _, t := range types {
		if n := len(blocks); n > 0 && blocks[n-1].valType == t {
			blocks[n-1].count++
		} else {
			blocks = append(blocks, localBlock{count: 1, valType: t})
		}
	}
	return blocks
}

func encodeNameSection(ns *wasm.NameSection) []byte {
	var out []byte
	if ns.ModuleName != "" {
		out = append(out, encodeNameSubsection(subsectionIDModuleName, encodeString(ns.ModuleName))...)
	}
	if len(ns.FunctionNames) > 0 {
		out = append(out, encodeNameSubsection(subsectionIDFunctionNames, encodeNameMap(ns.FunctionNames))...)
	}
	if len(ns.LocalNames) > 0 {
		var body []byte
		body = append(body, leb128.EncodeUint32(uint32(len(ns.LocalNames)))...)
		for _, assoc := range ns.LocalNames {
			body = append(body, leb128.EncodeUint32(assoc.Index)...)
			body = append(body, encodeNameMap(assoc.NameMap)...)
		}
		out = append(out, encodeNameSubsection(subsectionIDLocalNames, body)...)
	}
	return out
}

func encodeNameSubsection(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	return append(out, body...)
}

func encodeNameMap(nm wasm.NameMap) []byte {
	out := leb128.EncodeUint32(uint32(len(nm)))
	for _, assoc := range nm {
		out = append(out, leb128.EncodeUint32(assoc.Index)...)
		out = append(out, encodeString(assoc.Name)...)
	}
	return out
}

func sortedExportNames(exports map[string]*wasm.Export) []string {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
