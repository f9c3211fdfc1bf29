// Package binary implements the WebAssembly binary format: decoding bytes into a *wasm.Module and encoding a
// *wasm.Module back into bytes. Decoding never validates instruction-level invariants (that is
// func_validation.go's job): it only establishes that the binary is well-formed enough to build a Module,
// deferring semantic checks to the validator that runs next in the pipeline.
package binary

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/wazerun/wazero/internal/leb128"
	"github.com/wazerun/wazero/internal/wasm"
)

// Magic is the 4-byte preamble every WebAssembly binary starts with: the string "\0asm".
var Magic = []byte{0x00, 'a', 's', 'm'}

// version is the only binary format version this decoder understands.
var version = []byte{0x01, 0x00, 0x00, 0x00}

const nameSectionName = "name"

const (
	subsectionIDModuleName byte = iota
	subsectionIDFunctionNames
	subsectionIDLocalNames
)

// DecodeModule parses a complete binary-format module. features gates which sections/sub-opcodes are
// accepted; a section or instruction whose defining proposal isn't in features is reported as invalid
// rather than silently ignored, mirroring the reference interpreter's strictness.
func DecodeModule(bin []byte, features wasm.Features) (*wasm.Module, error) {
	r := bytes.NewReader(bin)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, Magic) {
		return nil, fmt.Errorf("invalid magic number")
	}
	ver := make([]byte, 4)
	if _, err := io.ReadFull(r, ver); err != nil || !bytes.Equal(ver, version) {
		return nil, fmt.Errorf("invalid version header")
	}

	m := &wasm.Module{ExportSection: map[string]*wasm.Export{}}
	var prevID wasm.SectionID = wasm.SectionIDCustom
	sawNameSection := false

	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}

		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("section %s: could not read size: %w", wasm.SectionIDName(id), err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("section %s: could not read contents: %w", wasm.SectionIDName(id), err)
		}
		sr := bytes.NewReader(body)

		if id != wasm.SectionIDCustom {
			// DataCount is explicitly permitted to sort between Element and Code, ahead of where its
			// SectionID constant (after Data) would otherwise place it, so order is compared by rank.
			rank := func(s wasm.SectionID) int {
				if s == wasm.SectionIDDataCount {
					return int(wasm.SectionIDElement)*2 + 1
				}
				return int(s) * 2
			}
			if rank(id) <= rank(prevID) {
				return nil, fmt.Errorf("section %s out of order", wasm.SectionIDName(id))
			}
			prevID = id
		}

		switch id {
		case wasm.SectionIDCustom:
			name, _, err := decodeUTF8(sr, "custom section name")
			if err != nil {
				return nil, err
			}
			if name == nameSectionName {
				if sawNameSection {
					return nil, fmt.Errorf("section custom: redundant custom section name")
				}
				sawNameSection = true
				ns, err := decodeNameSection(sr)
				if err != nil {
					return nil, fmt.Errorf("section custom: %w", err)
				}
				m.NameSection = ns
			}
			// Other custom sections are preserved only by the name check above; this implementation has no
			// general-purpose custom-section passthrough since nothing in SPEC_FULL.md consumes one.
		case wasm.SectionIDType:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section type: %w", err)
			}
			m.TypeSection = make([]wasm.FunctionType, count)
			for i := range m.TypeSection {
				if err := decodeFunctionType(sr, features, &m.TypeSection[i]); err != nil {
					return nil, fmt.Errorf("section type[%d]: %w", i, err)
				}
			}
		case wasm.SectionIDImport:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section import: %w", err)
			}
			m.ImportSection = make([]*wasm.Import, count)
			for i := range m.ImportSection {
				imp, err := decodeImport(sr, features)
				if err != nil {
					return nil, fmt.Errorf("section import[%d]: %w", i, err)
				}
				m.ImportSection[i] = imp
			}
		case wasm.SectionIDFunction:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section function: %w", err)
			}
			m.FunctionSection = make([]wasm.Index, count)
			for i := range m.FunctionSection {
				idx, _, err := leb128.DecodeUint32(sr)
				if err != nil {
					return nil, fmt.Errorf("section function[%d]: %w", i, err)
				}
				m.FunctionSection[i] = idx
			}
		case wasm.SectionIDTable:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section table: %w", err)
			}
			m.TableSection = make([]*wasm.TableType, count)
			for i := range m.TableSection {
				tt, err := decodeTableType(sr)
				if err != nil {
					return nil, fmt.Errorf("section table[%d]: %w", i, err)
				}
				m.TableSection[i] = tt
			}
		case wasm.SectionIDMemory:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section memory: %w", err)
			}
			m.MemorySection = make([]*wasm.MemoryType, count)
			for i := range m.MemorySection {
				mt, err := decodeMemoryType(sr)
				if err != nil {
					return nil, fmt.Errorf("section memory[%d]: %w", i, err)
				}
				m.MemorySection[i] = mt
			}
		case wasm.SectionIDGlobal:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section global: %w", err)
			}
			m.GlobalSection = make([]*wasm.Global, count)
			for i := range m.GlobalSection {
				g, err := decodeGlobal(sr, features)
				if err != nil {
					return nil, fmt.Errorf("section global[%d]: %w", i, err)
				}
				m.GlobalSection[i] = g
			}
		case wasm.SectionIDExport:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section export: %w", err)
			}
			for i := uint32(0); i < count; i++ {
				exp, err := decodeExport(sr)
				if err != nil {
					return nil, fmt.Errorf("section export[%d]: %w", i, err)
				}
				if _, ok := m.ExportSection[exp.Name]; ok {
					return nil, fmt.Errorf("section export[%d] duplicates name %q", i, exp.Name)
				}
				m.ExportSection[exp.Name] = exp
			}
		case wasm.SectionIDStart:
			idx, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section start: %w", err)
			}
			m.StartSection = &idx
		case wasm.SectionIDElement:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section element: %w", err)
			}
			m.ElementSection = make([]*wasm.ElementSegment, count)
			for i := range m.ElementSection {
				es, err := decodeElementSegment(sr, features)
				if err != nil {
					return nil, fmt.Errorf("section element[%d]: %w", i, err)
				}
				m.ElementSection[i] = es
			}
		case wasm.SectionIDDataCount:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section data count: %w", err)
			}
			m.DataCountSection = &count
		case wasm.SectionIDCode:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section code: %w", err)
			}
			m.CodeSection = make([]*wasm.Code, count)
			for i := range m.CodeSection {
				c, err := decodeCode(sr)
				if err != nil {
					return nil, fmt.Errorf("section code[%d]: %w", i, err)
				}
				m.CodeSection[i] = c
			}
		case wasm.SectionIDData:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section data: %w", err)
			}
			m.DataSection = make([]*wasm.DataSegment, count)
			for i := range m.DataSection {
				ds := &wasm.DataSegment{}
				if err := decodeDataSegment(sr, features, ds); err != nil {
					return nil, fmt.Errorf("section data[%d]: %w", i, err)
				}
				m.DataSection[i] = ds
			}
		case wasm.SectionIDException:
			if err := features.Require(wasm.FeatureExceptionHandling); err != nil {
				return nil, fmt.Errorf("section exception: %w", err)
			}
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("section exception: %w", err)
			}
			m.ExceptionSection = make([]*wasm.ExceptionType, count)
			for i := range m.ExceptionSection {
				params, err := decodeValueTypes(sr)
				if err != nil {
					return nil, fmt.Errorf("section exception[%d]: %w", i, err)
				}
				m.ExceptionSection[i] = &wasm.ExceptionType{Params: params}
			}
		default:
			return nil, fmt.Errorf("invalid section id: %#x", id)
		}
	}

	return m, nil
}

func decodeUTF8(r io.ByteReader, contextMsg string) (string, uint32, error) {
	size, n, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", 0, fmt.Errorf("could not read %s size: %w", contextMsg, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", 0, fmt.Errorf("could not read %s: %w", contextMsg, err)
		}
		buf[i] = b
	}
	if !utf8.Valid(buf) {
		return "", 0, fmt.Errorf("%s is not valid UTF-8", contextMsg)
	}
	return string(buf), uint32(n) + size, nil
}

func decodeLimits(r io.ByteReader) (*wasm.Limits, error) {
	hasMax, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read limits flag: %w", err)
	}
	min, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read limits min: %w", err)
	}
	l := &wasm.Limits{Min: min}
	if hasMax != 0 {
		max, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read limits max: %w", err)
		}
		l.Max = &max
	}
	return l, nil
}

func decodeTableType(r io.ByteReader) (*wasm.TableType, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read table element type: %w", err)
	}
	if elemType != wasm.ValueTypeFuncref && elemType != wasm.ValueTypeExternref {
		return nil, fmt.Errorf("invalid table element type: %#x", elemType)
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return nil, fmt.Errorf("read table limits: %w", err)
	}
	return &wasm.TableType{ElemType: elemType, Limit: limits}, nil
}

func decodeMemoryType(r io.ByteReader) (*wasm.MemoryType, error) {
	limits, err := decodeLimits(r)
	if err != nil {
		return nil, fmt.Errorf("read memory limits: %w", err)
	}
	if limits.Min > wasm.MemoryMaxPages {
		return nil, fmt.Errorf("memory min must be at most %d pages", wasm.MemoryMaxPages)
	}
	mt := &wasm.MemoryType{Min: limits.Min, Max: limits.Max}
	if mt.Max != nil && *mt.Max > wasm.MemoryMaxPages {
		return nil, fmt.Errorf("memory max must be at most %d pages", wasm.MemoryMaxPages)
	}
	return mt, nil
}

func decodeGlobalType(r io.ByteReader) (*wasm.GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read global value type: %w", err)
	}
	mutFlag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read global mutability: %w", err)
	}
	return &wasm.GlobalType{Value: vt, Mutable: mutFlag != 0}, nil
}

func decodeValueTypes(r io.ByteReader) ([]wasm.ValueType, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	types := make([]wasm.ValueType, count)
	for i := range types {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read value type: %w", err)
		}
		types[i] = b
	}
	return types, nil
}

func decodeFunctionType(r io.ByteReader, features wasm.Features, ft *wasm.FunctionType) error {
	tag, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read leading byte: %w", err)
	}
	if tag != 0x60 {
		return fmt.Errorf("invalid leading byte: %#x", tag)
	}
	params, err := decodeValueTypes(r)
	if err != nil {
		return fmt.Errorf("could not read parameter types: %w", err)
	}
	results, err := decodeValueTypes(r)
	if err != nil {
		return fmt.Errorf("could not read result types: %w", err)
	}
	if len(results) > 1 {
		if err := features.Require(wasm.FeatureMultiValue); err != nil {
			return fmt.Errorf("multiple result types invalid as %w", err)
		}
	}
	ft.Params, ft.Results = params, results
	ft.CacheNumInUint64()
	return nil
}

func decodeImport(r io.ByteReader, features wasm.Features) (*wasm.Import, error) {
	mod, _, err := decodeUTF8(r, "import module")
	if err != nil {
		return nil, err
	}
	name, _, err := decodeUTF8(r, "import name")
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read import kind: %w", err)
	}
	imp := &wasm.Import{Type: kind, Module: mod, Name: name}
	switch kind {
	case wasm.ExternTypeFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read import type index: %w", err)
		}
		imp.DescFunc = idx
	case wasm.ExternTypeTable:
		tt, err := decodeTableType(r)
		if err != nil {
			return nil, err
		}
		imp.DescTable = tt
	case wasm.ExternTypeMemory:
		mt, err := decodeMemoryType(r)
		if err != nil {
			return nil, err
		}
		imp.DescMem = mt
	case wasm.ExternTypeGlobal:
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, err
		}
		if gt.Mutable {
			if err := features.Require(wasm.FeatureMutableGlobal); err != nil {
				return nil, fmt.Errorf("mutable global import invalid as %w", err)
			}
		}
		imp.DescGlobal = gt
	default:
		return nil, fmt.Errorf("invalid import kind: %#x", kind)
	}
	return imp, nil
}

func decodeExport(r io.ByteReader) (*wasm.Export, error) {
	name, _, err := decodeUTF8(r, "export name")
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read export kind: %w", err)
	}
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read export index: %w", err)
	}
	return &wasm.Export{Type: kind, Name: name, Index: idx}, nil
}

func decodeGlobal(r io.ByteReader, features wasm.Features) (*wasm.Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, err
	}
	if gt.Mutable {
		if err := features.Require(wasm.FeatureMutableGlobal); err != nil {
			return nil, fmt.Errorf("mutable global invalid as %w", err)
		}
	}
	var init wasm.ConstantExpression
	if err := decodeConstantExpression(r, features, &init); err != nil {
		return nil, fmt.Errorf("read init expression: %w", err)
	}
	return &wasm.Global{Type: gt, Init: init}, nil
}

// decodeConstantExpression splits a single-instruction init expr into its Opcode and the raw immediate bytes
// that follow, stopping at (and not including) the terminating OpcodeEnd. Most opcodes carry a single LEB128
// or fixed-width immediate; OpcodeVecV128Const carries 16 raw bytes.
func decodeConstantExpression(r io.ByteReader, features wasm.Features, out *wasm.ConstantExpression) error {
	op, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read opcode: %w", err)
	}
	var data []byte
	switch op {
	case wasm.OpcodeI32Const:
		data, err = readLEB(r, 5)
	case wasm.OpcodeI64Const:
		data, err = readLEB(r, 10)
	case wasm.OpcodeF32Const:
		data, err = readN(r, 4)
	case wasm.OpcodeF64Const:
		data, err = readN(r, 8)
	case wasm.OpcodeGlobalGet:
		data, err = readLEB(r, 5)
	case wasm.OpcodeRefNull:
		if err := features.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.null is not supported as %w", err)
		}
		b, rerr := r.ReadByte()
		if rerr != nil {
			return fmt.Errorf("read reference type for ref.null: %w", rerr)
		}
		if b != wasm.ValueTypeFuncref && b != wasm.ValueTypeExternref {
			return fmt.Errorf("invalid type for ref.null: %#x", b)
		}
		data = []byte{b}
	case wasm.OpcodeRefFunc:
		if err := features.Require(wasm.FeatureReferenceTypes); err != nil {
			return fmt.Errorf("ref.func is not supported as %w", err)
		}
		data, err = readLEB(r, 5)
	case wasm.OpcodeVecPrefix:
		if err := features.Require(wasm.FeatureSIMD); err != nil {
			return fmt.Errorf("vector instructions are not supported as %w", err)
		}
		sub, serr := r.ReadByte()
		if serr != nil {
			return fmt.Errorf("read vector instruction opcode suffix: %w", serr)
		}
		if sub != wasm.OpcodeVecV128Const {
			return fmt.Errorf("invalid vector opcode for const expression: %#x", sub)
		}
		op = wasm.OpcodeVecV128Const
		data, err = readN(r, 16)
		if err != nil {
			err = fmt.Errorf("read vector const instruction immediates: %w", err)
		}
	default:
		return fmt.Errorf("invalid opcode for const expression: %#x", op)
	}
	if err != nil {
		return err
	}
	end, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("look for end opcode: %w", err)
	}
	if end != wasm.OpcodeEnd {
		return fmt.Errorf("constant expression has been not terminated")
	}
	out.Opcode, out.Data = op, data
	return nil
}

// readLEB reads the LEB128-encoded value at r byte-by-byte, up to maxBytes, returning exactly the bytes that
// make up the encoding (through the first byte with its continuation bit clear).
func readLEB(r io.ByteReader, maxBytes int) ([]byte, error) {
	var out []byte
	for i := 0; i < maxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		out = append(out, b)
		if b&0x80 == 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("leb128 value too long")
}

func readN(r io.ByteReader, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("needs %d bytes but was %d bytes", n, i)
		}
		out[i] = b
	}
	return out, nil
}

func decodeElementSegment(r io.ByteReader, features wasm.Features) (*wasm.ElementSegment, error) {
	prefix, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read prefix: %w", err)
	}
	if prefix != 0 {
		if err := features.Require(wasm.FeatureBulkMemoryOperations); err != nil {
			return nil, fmt.Errorf("non-zero prefix for element segment is invalid as %w", err)
		}
	}
	es := &wasm.ElementSegment{Type: wasm.ValueTypeFuncref}
	switch prefix {
	case 0:
		if err := decodeConstantExpression(r, features, &es.OffsetExpr); err != nil {
			return nil, fmt.Errorf("read offset expression: %w", err)
		}
		es.Mode = wasm.ElementModeActive
		return es, decodeElementInitIndicesVec(r, es)
	case 1:
		es.Mode = wasm.ElementModePassive
		return es, decodeElementKindAndInitIndicesVec(r, es)
	case 2:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read table index: %w", err)
		}
		es.TableIndex = idx
		if err := decodeConstantExpression(r, features, &es.OffsetExpr); err != nil {
			return nil, fmt.Errorf("read offset expression: %w", err)
		}
		es.Mode = wasm.ElementModeActive
		return es, decodeElementKindAndInitIndicesVec(r, es)
	case 3:
		es.Mode = wasm.ElementModeDeclarative
		return es, decodeElementKindAndInitIndicesVec(r, es)
	default:
		return nil, fmt.Errorf("invalid element segment prefix: %#x", prefix)
	}
}

func decodeElementKindAndInitIndicesVec(r io.ByteReader, es *wasm.ElementSegment) error {
	kind, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read element kind: %w", err)
	}
	if kind != 0x00 {
		return fmt.Errorf("invalid element kind: %#x", kind)
	}
	return decodeElementInitIndicesVec(r, es)
}

func decodeElementInitIndicesVec(r io.ByteReader, es *wasm.ElementSegment) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	es.Init = make([]wasm.Index, count)
	for i := range es.Init {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read init index[%d]: %w", i, err)
		}
		es.Init[i] = idx
	}
	return nil
}

func decodeDataSegment(r io.ByteReader, features wasm.Features, out *wasm.DataSegment) error {
	prefix, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read prefix: %w", err)
	}
	if prefix != 0 {
		if err := features.Require(wasm.FeatureBulkMemoryOperations); err != nil {
			return fmt.Errorf("non-zero prefix for data segment is invalid as %w", err)
		}
	}
	switch prefix {
	case 0, 2:
		if prefix == 2 {
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return fmt.Errorf("read memory index: %w", err)
			}
			if idx != 0 {
				return fmt.Errorf("memory index must be zero but was %d", idx)
			}
			out.MemoryIndex = idx
		}
		if err := decodeConstantExpression(r, features, &out.OffsetExpr); err != nil {
			return fmt.Errorf("read offset expression: %w", err)
		}
	case 1:
		out.Passive = true
	default:
		return fmt.Errorf("invalid data segment prefix: %#x", prefix)
	}
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read data segment size: %w", err)
	}
	init := make([]byte, size)
	for i := range init {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read data segment contents: %w", err)
		}
		init[i] = b
	}
	out.Init = init
	return nil
}

// decodeCode reads a function body verbatim: the declared locals, run-length-decoded into LocalTypes, and the
// raw instruction bytes through the terminating OpcodeEnd. Instructions aren't interpreted here; that is
// func_validation.go's and the interpreter's job, operating on Body directly.
func decodeCode(r io.ByteReader) (*wasm.Code, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}
	buf := make([]byte, size)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read contents: %w", err)
		}
		buf[i] = b
	}
	br := bytes.NewReader(buf)
	localBlockCount, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("read number of local blocks: %w", err)
	}
	var locals []wasm.ValueType
	for i := uint32(0); i < localBlockCount; i++ {
		n, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("read local block[%d] count: %w", i, err)
		}
		vt, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read local block[%d] type: %w", i, err)
		}
		for j := uint32(0); j < n; j++ {
			locals = append(locals, vt)
		}
	}
	body := make([]byte, br.Len())
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &wasm.Code{LocalTypes: locals, Body: body}, nil
}

func decodeNameSection(r io.ByteReader) (*wasm.NameSection, error) {
	ns := &wasm.NameSection{}
	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read subsection id: %w", err)
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read subsection size: %w", err)
		}
		buf := make([]byte, size)
		for i := range buf {
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("read subsection contents: %w", err)
			}
			buf[i] = b
		}
		sr := bytes.NewReader(buf)
		switch id {
		case subsectionIDModuleName:
			name, _, err := decodeUTF8(sr, "module name")
			if err != nil {
				return nil, err
			}
			ns.ModuleName = name
		case subsectionIDFunctionNames:
			nm, err := decodeNameMap(sr)
			if err != nil {
				return nil, fmt.Errorf("function names: %w", err)
			}
			ns.FunctionNames = nm
		case subsectionIDLocalNames:
			count, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, fmt.Errorf("local names: %w", err)
			}
			inm := make(wasm.IndirectNameMap, count)
			for i := range inm {
				idx, _, err := leb128.DecodeUint32(sr)
				if err != nil {
					return nil, fmt.Errorf("local names[%d]: %w", i, err)
				}
				nm, err := decodeNameMap(sr)
				if err != nil {
					return nil, fmt.Errorf("local names[%d]: %w", i, err)
				}
				inm[i] = &wasm.NameMapAssoc{Index: idx, NameMap: nm}
			}
			ns.LocalNames = inm
		}
	}
	return ns, nil
}

func decodeNameMap(r io.ByteReader) (wasm.NameMap, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	nm := make(wasm.NameMap, count)
	for i := range nm {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		name, _, err := decodeUTF8(r, "name")
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		nm[i] = &wasm.NameAssoc{Index: idx, Name: name}
	}
	return nm, nil
}
