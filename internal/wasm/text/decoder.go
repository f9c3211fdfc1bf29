package text

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wazerun/wazero/internal/leb128"
	"github.com/wazerun/wazero/internal/wasm"
)

// DecodeModule parses the WebAssembly 1.0 Text Format (S-expressions) into the same *wasm.Module shape the
// binary decoder produces. Only the unfolded instruction syntax is required to compile: folded s-expression
// instructions such as `(i32.add (local.get 0) (local.get 1))` are not supported, only the flat
// `local.get 0 local.get 1 i32.add` form, since every folded instruction has an equivalent flat rewrite and
// supporting both would mean carrying a second, stack-rewriting instruction parser alongside the one that
// already walks flat streams for validateFunction.
func DecodeModule(source []byte, features wasm.Features) (*wasm.Module, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	if err := p.expectAtom("module"); err != nil {
		return nil, err
	}

	m := &wasm.Module{ExportSection: map[string]*wasm.Export{}}
	ns := newNamespaces()

	if p.peekIsID() {
		name := p.next().text[1:]
		m.NameSection = &wasm.NameSection{ModuleName: name}
	}

	// First pass: register names/signatures so forward references ($foo used before its own declaration,
	// e.g. an export referencing a function declared later) resolve. A full implementation would need two
	// passes over bodies too; this parser only needs it for top-level declaration order.
	save := p.i
	if err := p.collectNamespaces(ns); err != nil {
		return nil, err
	}
	p.i = save

	for !p.atRParen() {
		if err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		kw := p.next().text
		switch kw {
		case "type":
			if err := p.parseType(m); err != nil {
				return nil, err
			}
		case "import":
			if err := p.parseImport(m, ns); err != nil {
				return nil, err
			}
		case "func":
			if err := p.parseFunc(m, ns, features); err != nil {
				return nil, err
			}
		case "table":
			if err := p.parseTable(m, ns); err != nil {
				return nil, err
			}
		case "memory":
			if err := p.parseMemory(m, ns); err != nil {
				return nil, err
			}
		case "global":
			if err := p.parseGlobal(m, ns); err != nil {
				return nil, err
			}
		case "export":
			if err := p.parseExport(m, ns); err != nil {
				return nil, err
			}
		case "start":
			idx, err := p.parseIndex(ns.funcs)
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen); err != nil {
				return nil, err
			}
			m.StartSection = &idx
		default:
			if err := p.skipSExpr(); err != nil {
				return nil, err
			}
			continue
		}
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if len(m.ExportSection) == 0 {
		m.ExportSection = nil
	}
	return m, nil
}

// namespaces tracks the $name -> index assignment for each of the five index spaces, built in textual
// declaration order, which matches the binary format's imports-first index space only when a kind's imports
// precede its definitions in the source.
type namespaces struct {
	funcs, types, tables, mems, globals map[string]uint32
	nFunc, nType, nTable, nMem, nGlobal uint32
}

func newNamespaces() *namespaces {
	return &namespaces{
		funcs: map[string]uint32{}, types: map[string]uint32{}, tables: map[string]uint32{},
		mems: map[string]uint32{}, globals: map[string]uint32{},
	}
}

// collectNamespaces does a lightweight pre-pass assigning indices to every named top-level declaration so
// later instruction parsing ($id references) and exports can resolve regardless of declaration order.
func (p *parser) collectNamespaces(ns *namespaces) error {
	// depth starts at 1 as if the module's own (already-consumed) open paren were still on the stack, so a
	// direct child form sits at depth 2 and only the module's own close paren brings depth back to 0.
	depth := 1
	for {
		t := p.next()
		switch t.kind {
		case tokEOF:
			return fmt.Errorf("unexpected end of input while scanning module fields")
		case tokLParen:
			depth++
			if depth == 2 && p.peekKeywordIn("type", "func", "table", "memory", "global") {
				kw := p.next().text
				var counter *uint32
				var table map[string]uint32
				switch kw {
				case "type":
					counter, table = &ns.nType, ns.types
				case "func":
					counter, table = &ns.nFunc, ns.funcs
				case "table":
					counter, table = &ns.nTable, ns.tables
				case "memory":
					counter, table = &ns.nMem, ns.mems
				case "global":
					counter, table = &ns.nGlobal, ns.globals
				}
				if p.peekIsID() {
					table[p.next().text[1:]] = *counter
				}
				*counter++
			} else if depth == 2 && p.peekKeywordIn("import") {
				p.next() // "import"
				p.next() // module string
				p.next() // name string
				if err := p.expect(tokLParen); err != nil {
					return err
				}
				kw := p.next().text
				var counter *uint32
				var table map[string]uint32
				switch kw {
				case "func":
					counter, table = &ns.nFunc, ns.funcs
				case "table":
					counter, table = &ns.nTable, ns.tables
				case "memory":
					counter, table = &ns.nMem, ns.mems
				case "global":
					counter, table = &ns.nGlobal, ns.globals
				}
				if counter != nil {
					if p.peekIsID() {
						table[p.next().text[1:]] = *counter
					}
					*counter++
				}
				// Consume through the descriptor's own close paren (inclusive), then the import's.
				if err := p.skipBalanced(); err != nil {
					return err
				}
				if err := p.expect(tokRParen); err != nil {
					return err
				}
				depth-- // mirrors the depth++ this case's enclosing tokLParen already recorded
				continue
			}
		case tokRParen:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

// skipBalanced consumes tokens through the close paren matching one already-open, unconsumed "(" — used
// wherever a form's open paren and keyword were consumed to inspect it, but the rest of its body should be
// skipped without a dedicated parse (collectNamespaces' import descriptors, skipSExpr's unknown module fields).
func (p *parser) skipBalanced() error {
	depth := 1
	for depth > 0 {
		t := p.next()
		switch t.kind {
		case tokEOF:
			return fmt.Errorf("unexpected end of input")
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		}
	}
	return nil
}

func (p *parser) peekKeywordIn(kws ...string) bool {
	t := p.peek()
	if t.kind != tokAtom {
		return false
	}
	for _, kw := range kws {
		if t.text == kw {
			return true
		}
	}
	return false
}

func (p *parser) parseType(m *wasm.Module) error {
	if p.peekIsID() {
		p.next()
	}
	ft, err := p.parseFuncTypeForm()
	if err != nil {
		return err
	}
	m.TypeSection = append(m.TypeSection, *ft)
	return p.expect(tokRParen)
}

// parseFuncTypeForm parses "(func (param ...)* (result ...)*)".
func (p *parser) parseFuncTypeForm() (*wasm.FunctionType, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	if err := p.expectAtom("func"); err != nil {
		return nil, err
	}
	ft := &wasm.FunctionType{}
	for p.peekIsLParenKeyword("param", "result") {
		p.expect(tokLParen)
		kw := p.next().text
		if p.peekIsID() { // named param: (param $x i32) always has exactly one type
			p.next()
			vt, err := p.parseValueType()
			if err != nil {
				return nil, err
			}
			if kw == "param" {
				ft.Params = append(ft.Params, vt)
			} else {
				ft.Results = append(ft.Results, vt)
			}
		} else {
			for !p.atRParen() {
				vt, err := p.parseValueType()
				if err != nil {
					return nil, err
				}
				if kw == "param" {
					ft.Params = append(ft.Params, vt)
				} else {
					ft.Results = append(ft.Results, vt)
				}
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return ft, nil
}

func (p *parser) peekIsLParenKeyword(kws ...string) bool {
	if p.peek().kind != tokLParen {
		return false
	}
	save := p.i
	p.next()
	ok := p.peekKeywordIn(kws...)
	p.i = save
	return ok
}

func (p *parser) parseValueType() (wasm.ValueType, error) {
	t := p.next()
	switch t.text {
	case "i32":
		return wasm.ValueTypeI32, nil
	case "i64":
		return wasm.ValueTypeI64, nil
	case "f32":
		return wasm.ValueTypeF32, nil
	case "f64":
		return wasm.ValueTypeF64, nil
	case "funcref":
		return wasm.ValueTypeFuncref, nil
	case "externref":
		return wasm.ValueTypeExternref, nil
	}
	return 0, fmt.Errorf("unknown value type %q", t.text)
}

func (p *parser) parseImport(m *wasm.Module, ns *namespaces) error {
	mod, err := p.parseString()
	if err != nil {
		return err
	}
	name, err := p.parseString()
	if err != nil {
		return err
	}
	if err := p.expect(tokLParen); err != nil {
		return err
	}
	kind := p.next().text
	imp := &wasm.Import{Module: mod, Name: name}
	switch kind {
	case "func":
		if p.peekIsID() {
			p.next()
		}
		var ft wasm.FunctionType
		if p.peekIsLParenKeyword("type") {
			idx, err := p.parseInlineType(ns)
			if err != nil {
				return err
			}
			ft = m.TypeSection[idx]
			imp.DescFunc = idx
		} else {
			parsed, err := p.parseInlineFuncSig()
			if err != nil {
				return err
			}
			ft = *parsed
			imp.DescFunc = uint32(len(m.TypeSection))
			m.TypeSection = append(m.TypeSection, ft)
		}
		imp.Type = wasm.ExternTypeFunc
	case "table":
		if p.peekIsID() {
			p.next()
		}
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Type, imp.DescTable = wasm.ExternTypeTable, tt
	case "memory":
		if p.peekIsID() {
			p.next()
		}
		mt, err := p.parseMemoryType()
		if err != nil {
			return err
		}
		imp.Type, imp.DescMem = wasm.ExternTypeMemory, mt
	case "global":
		if p.peekIsID() {
			p.next()
		}
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Type, imp.DescGlobal = wasm.ExternTypeGlobal, gt
	default:
		return fmt.Errorf("unsupported import descriptor %q", kind)
	}
	if err := p.expect(tokRParen); err != nil { // close descriptor
		return err
	}
	if err := p.expect(tokRParen); err != nil { // close import
		return err
	}
	m.ImportSection = append(m.ImportSection, imp)
	return nil
}

// parseInlineType handles "(type $id|idx)" appearing inside a func/import's signature position.
func (p *parser) parseInlineType(ns *namespaces) (uint32, error) {
	p.expect(tokLParen)
	p.expectAtom("type")
	idx, err := p.parseIndex(ns.types)
	if err != nil {
		return 0, err
	}
	if err := p.expect(tokRParen); err != nil {
		return 0, err
	}
	return idx, nil
}

// parseInlineFuncSig parses the bare "(param ...)* (result ...)*" sequence appearing directly inside a func or
// import, without the enclosing "(func ...)" wrapper parseFuncTypeForm expects.
func (p *parser) parseInlineFuncSig() (*wasm.FunctionType, error) {
	ft := &wasm.FunctionType{}
	for p.peekIsLParenKeyword("param", "result") {
		p.expect(tokLParen)
		kw := p.next().text
		if p.peekIsID() {
			p.next()
			vt, err := p.parseValueType()
			if err != nil {
				return nil, err
			}
			if kw == "param" {
				ft.Params = append(ft.Params, vt)
			} else {
				ft.Results = append(ft.Results, vt)
			}
		} else {
			for !p.atRParen() {
				vt, err := p.parseValueType()
				if err != nil {
					return nil, err
				}
				if kw == "param" {
					ft.Params = append(ft.Params, vt)
				} else {
					ft.Results = append(ft.Results, vt)
				}
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
	}
	return ft, nil
}

func (p *parser) parseTableType() (*wasm.TableType, error) {
	lim, err := p.parseLimits()
	if err != nil {
		return nil, err
	}
	vt, err := p.parseValueType()
	if err != nil {
		return nil, err
	}
	return &wasm.TableType{ElemType: vt, Limit: lim}, nil
}

func (p *parser) parseMemoryType() (*wasm.MemoryType, error) {
	lim, err := p.parseLimits()
	if err != nil {
		return nil, err
	}
	return &wasm.MemoryType{Min: lim.Min, Max: lim.Max}, nil
}

func (p *parser) parseLimits() (*wasm.Limits, error) {
	min, err := p.parseUint32()
	if err != nil {
		return nil, err
	}
	l := &wasm.Limits{Min: min}
	if t := p.peek(); t.kind == tokAtom {
		if v, err := strconv.ParseUint(t.text, 10, 32); err == nil {
			p.next()
			max := uint32(v)
			l.Max = &max
		}
	}
	return l, nil
}

func (p *parser) parseGlobalType() (*wasm.GlobalType, error) {
	if p.peekIsLParenKeyword("mut") {
		p.expect(tokLParen)
		p.expectAtom("mut")
		vt, err := p.parseValueType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return &wasm.GlobalType{Value: vt, Mutable: true}, nil
	}
	vt, err := p.parseValueType()
	if err != nil {
		return nil, err
	}
	return &wasm.GlobalType{Value: vt}, nil
}

func (p *parser) parseTable(m *wasm.Module, ns *namespaces) error {
	if p.peekIsID() {
		p.next()
	}
	for p.peekIsLParenKeyword("export") {
		p.expect(tokLParen)
		p.expectAtom("export")
		name, err := p.parseString()
		if err != nil {
			return err
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
		m.ExportSection[name] = &wasm.Export{Type: wasm.ExternTypeTable, Name: name, Index: m.ImportTableCount() + uint32(len(m.TableSection))}
	}
	tt, err := p.parseTableType()
	if err != nil {
		return err
	}
	m.TableSection = append(m.TableSection, tt)
	return p.expect(tokRParen)
}

func (p *parser) parseMemory(m *wasm.Module, ns *namespaces) error {
	if p.peekIsID() {
		p.next()
	}
	for p.peekIsLParenKeyword("export") {
		p.expect(tokLParen)
		p.expectAtom("export")
		name, err := p.parseString()
		if err != nil {
			return err
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
		m.ExportSection[name] = &wasm.Export{Type: wasm.ExternTypeMemory, Name: name, Index: m.ImportMemoryCount() + uint32(len(m.MemorySection))}
	}
	mt, err := p.parseMemoryType()
	if err != nil {
		return err
	}
	m.MemorySection = append(m.MemorySection, mt)
	return p.expect(tokRParen)
}

func (p *parser) parseGlobal(m *wasm.Module, ns *namespaces) error {
	if p.peekIsID() {
		p.next()
	}
	for p.peekIsLParenKeyword("export") {
		p.expect(tokLParen)
		p.expectAtom("export")
		name, err := p.parseString()
		if err != nil {
			return err
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
		m.ExportSection[name] = &wasm.Export{Type: wasm.ExternTypeGlobal, Name: name, Index: m.ImportGlobalCount() + uint32(len(m.GlobalSection))}
	}
	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}
	init, err := p.parseSingleInstrExpr()
	if err != nil {
		return err
	}
	m.GlobalSection = append(m.GlobalSection, &wasm.Global{Type: gt, Init: init})
	return p.expect(tokRParen)
}

// parseSingleInstrExpr parses one unparenthesized init-expr instruction, e.g. "i32.const 1", returning it as a
// ConstantExpression.
func (p *parser) parseSingleInstrExpr() (wasm.ConstantExpression, error) {
	name := p.next().text
	op, ok := mnemonics[name]
	if !ok {
		return wasm.ConstantExpression{}, fmt.Errorf("unknown instruction %q in constant expression", name)
	}
	var data []byte
	switch op {
	case wasm.OpcodeI32Const:
		v, err := p.parseInt64()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leb128.EncodeInt32(int32(v))
	case wasm.OpcodeI64Const:
		v, err := p.parseInt64()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leb128.EncodeInt64(v)
	case wasm.OpcodeGlobalGet, wasm.OpcodeRefFunc:
		v, err := p.parseUint32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leb128.EncodeUint32(v)
	case wasm.OpcodeRefNull:
		vt, err := p.parseValueType()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = []byte{vt}
	default:
		return wasm.ConstantExpression{}, fmt.Errorf("unsupported constant expression instruction %q", name)
	}
	return wasm.ConstantExpression{Opcode: op, Data: data}, nil
}

func (p *parser) parseExport(m *wasm.Module, ns *namespaces) error {
	name, err := p.parseString()
	if err != nil {
		return err
	}
	if err := p.expect(tokLParen); err != nil {
		return err
	}
	kind := p.next().text
	var idx uint32
	var et wasm.ExternType
	switch kind {
	case "func":
		et = wasm.ExternTypeFunc
		idx, err = p.parseIndex(ns.funcs)
	case "table":
		et = wasm.ExternTypeTable
		idx, err = p.parseIndex(ns.tables)
	case "memory":
		et = wasm.ExternTypeMemory
		idx, err = p.parseIndex(ns.mems)
	case "global":
		et = wasm.ExternTypeGlobal
		idx, err = p.parseIndex(ns.globals)
	default:
		return fmt.Errorf("unsupported export descriptor %q", kind)
	}
	if err != nil {
		return err
	}
	if err := p.expect(tokRParen); err != nil {
		return err
	}
	if err := p.expect(tokRParen); err != nil {
		return err
	}
	m.ExportSection[name] = &wasm.Export{Type: et, Name: name, Index: idx}
	return nil
}

func (p *parser) parseFunc(m *wasm.Module, ns *namespaces, features wasm.Features) error {
	if p.peekIsID() {
		p.next()
	}
	for p.peekIsLParenKeyword("export") {
		p.expect(tokLParen)
		p.expectAtom("export")
		name, err := p.parseString()
		if err != nil {
			return err
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
		m.ExportSection[name] = &wasm.Export{Type: wasm.ExternTypeFunc, Name: name, Index: m.ImportFuncCount() + uint32(len(m.FunctionSection))}
	}

	locals := newNamespaces() // reused only for its map fields, to host the local index space
	localNames := locals.funcs

	ft := &wasm.FunctionType{}
	if p.peekIsLParenKeyword("type") {
		idx, err := p.parseInlineType(ns)
		if err != nil {
			return err
		}
		// Copy rather than alias: later (param)/(result) parsing below only adds local $names for an
		// already-declared signature and must never mutate the shared TypeSection entry.
		copied := m.TypeSection[idx]
		ft = &copied
	}
	for p.peekIsLParenKeyword("param", "result") {
		p.expect(tokLParen)
		kw := p.next().text
		if p.peekIsID() {
			localNames[p.next().text[1:]] = uint32(len(ft.Params))
			vt, err := p.parseValueType()
			if err != nil {
				return err
			}
			if kw == "param" {
				ft.Params = append(ft.Params, vt)
			} else {
				ft.Results = append(ft.Results, vt)
			}
		} else {
			for !p.atRParen() {
				vt, err := p.parseValueType()
				if err != nil {
					return err
				}
				if kw == "param" {
					ft.Params = append(ft.Params, vt)
				} else {
					ft.Results = append(ft.Results, vt)
				}
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
	}

	var localTypes []wasm.ValueType
	for p.peekIsLParenKeyword("local") {
		p.expect(tokLParen)
		p.expectAtom("local")
		if p.peekIsID() {
			localNames[p.next().text[1:]] = uint32(len(ft.Params) + len(localTypes))
			vt, err := p.parseValueType()
			if err != nil {
				return err
			}
			localTypes = append(localTypes, vt)
		} else {
			for !p.atRParen() {
				vt, err := p.parseValueType()
				if err != nil {
					return err
				}
				localTypes = append(localTypes, vt)
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return err
		}
	}

	body, elseSeen, err := p.parseInstrs(ns, localNames, features)
	if err != nil {
		return err
	}
	if elseSeen {
		return fmt.Errorf("unexpected \"else\" outside an if body")
	}
	// parseFunc itself consumes the function's own closing ")", not a bare "end" keyword (a func body's final
	// instruction stream always ends at the enclosing s-expression's close paren), so the implicit terminating
	// OpcodeEnd every encoded function body needs is appended here rather than by parseInstrs.
	body = append(body, wasm.OpcodeEnd)

	typeIdx := uint32(len(m.TypeSection))
	// Reuse an identical, already-declared type rather than always appending a fresh one, matching how the
	// binary format's own producers typically dedup.
	found := false
	for i := range m.TypeSection {
		if m.TypeSection[i].EqualsSignature(ft.Params, ft.Results) {
			typeIdx, found = uint32(i), true
			break
		}
	}
	if !found {
		m.TypeSection = append(m.TypeSection, *ft)
	}
	m.FunctionSection = append(m.FunctionSection, typeIdx)
	m.CodeSection = append(m.CodeSection, &wasm.Code{LocalTypes: localTypes, Body: body})
	return p.expect(tokRParen)
}

// parseInstrs parses a flat instruction sequence until the enclosing ")" (the func body's own close paren) or
// an unparenthesized "end"/"else" keyword, returning the raw encoded bytes for just the instructions seen —
// a terminating "end" or "else" is consumed but not encoded here, since what each one means (whether to
// append OpcodeEnd directly, or OpcodeElse followed by a second parseInstrs call for the else-branch) depends
// on whether the enclosing instruction was an "if", a "block", or a "loop". sawElse reports which keyword (if
// either) stopped the scan, so the caller — parseFunc for a function body, or the ImmBlock case below for a
// nested block/loop/if — can encode the right control-flow opcode(s); the closing ")" is left for the caller.
func (p *parser) parseInstrs(ns *namespaces, locals map[string]uint32, features wasm.Features) (out []byte, sawElse bool, err error) {
	for {
		t := p.peek()
		if t.kind == tokRParen || t.kind == tokEOF {
			return out, false, nil
		}
		if t.kind == tokAtom && (t.text == "end" || t.text == "else") {
			p.next()
			return out, t.text == "else", nil
		}
		name := p.next().text
		op, ok := mnemonics[name]
		if !ok {
			return nil, false, fmt.Errorf("unknown instruction %q", name)
		}
		out = append(out, op)
		info := wasm.OperatorTable[op]
		switch info.Immediate {
		case wasm.ImmNone:
		case wasm.ImmI32:
			v, e := p.parseInt64()
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeInt32(int32(v))...)
		case wasm.ImmI64:
			v, e := p.parseInt64()
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeInt64(v)...)
		case wasm.ImmLocalIndex:
			idx, e := p.parseIndex(locals)
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(idx)...)
		case wasm.ImmGlobalIndex:
			idx, e := p.parseIndex(ns.globals)
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(idx)...)
		case wasm.ImmFunctionIndex:
			idx, e := p.parseIndex(ns.funcs)
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(idx)...)
		case wasm.ImmTableIndex:
			idx, e := p.parseIndex(ns.tables)
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(idx)...)
		case wasm.ImmTypeIndex:
			idx, e := p.parseIndex(ns.types)
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(idx)...)
			if op == wasm.OpcodeCallIndirect {
				tidx, e := p.parseIndex(ns.tables)
				if e != nil {
					return nil, false, e
				}
				out = append(out, leb128.EncodeUint32(tidx)...)
			}
		case wasm.ImmBranch:
			v, e := p.parseUint32()
			if e != nil {
				return nil, false, e
			}
			out = append(out, leb128.EncodeUint32(v)...)
		case wasm.ImmLoadStore:
			align, offset := uint32(0), uint32(0)
			for p.peekAtomHasPrefix("align=") || p.peekAtomHasPrefix("offset=") {
				tk := p.next().text
				kv := strings.SplitN(tk, "=", 2)
				v, e := strconv.ParseUint(kv[1], 10, 32)
				if e != nil {
					return nil, false, e
				}
				if kv[0] == "align" {
					align = uint32(log2(uint32(v)))
				} else {
					offset = uint32(v)
				}
			}
			out = append(out, leb128.EncodeUint32(align)...)
			out = append(out, leb128.EncodeUint32(offset)...)
		case wasm.ImmBlock:
			// Optional block signature: "(result t)"; default is the empty block type.
			bt := byte(0x40)
			if p.peekIsLParenKeyword("result") {
				p.expect(tokLParen)
				p.expectAtom("result")
				vt, e := p.parseValueType()
				if e != nil {
					return nil, false, e
				}
				bt = vt
				if e := p.expect(tokRParen); e != nil {
					return nil, false, e
				}
			}
			out = append(out, bt)
			if op == wasm.OpcodeIf {
				thenBody, elseSeen, e := p.parseInstrs(ns, locals, features)
				if e != nil {
					return nil, false, e
				}
				out = append(out, thenBody...)
				if elseSeen {
					out = append(out, wasm.OpcodeElse)
					elseBody, elseAgain, e := p.parseInstrs(ns, locals, features)
					if e != nil {
						return nil, false, e
					}
					if elseAgain {
						return nil, false, fmt.Errorf("unexpected second \"else\" in if body")
					}
					out = append(out, elseBody...)
				}
				out = append(out, wasm.OpcodeEnd)
			} else {
				// block / loop: a single body terminated only by "end"; "else" is not legal here.
				inner, elseSeen, e := p.parseInstrs(ns, locals, features)
				if e != nil {
					return nil, false, e
				}
				if elseSeen {
					return nil, false, fmt.Errorf("unexpected \"else\" outside an if body")
				}
				out = append(out, inner...)
				out = append(out, wasm.OpcodeEnd)
			}
		case wasm.ImmValueType:
			vt, e := p.parseValueType()
			if e != nil {
				return nil, false, e
			}
			out = append(out, vt)
		default:
			return nil, false, fmt.Errorf("instruction %q has an immediate shape this text parser does not support", name)
		}
	}
}

func log2(v uint32) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func (p *parser) peekAtomHasPrefix(prefix string) bool {
	t := p.peek()
	return t.kind == tokAtom && strings.HasPrefix(t.text, prefix)
}

func (p *parser) parseIndex(table map[string]uint32) (uint32, error) {
	t := p.next()
	if strings.HasPrefix(t.text, "$") {
		idx, ok := table[t.text[1:]]
		if !ok {
			return 0, fmt.Errorf("undefined identifier %s", t.text)
		}
		return idx, nil
	}
	return p.parseUint32FromText(t.text)
}

func (p *parser) parseUint32() (uint32, error) {
	return p.parseUint32FromText(p.next().text)
}

func (p *parser) parseUint32FromText(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q: %w", s, err)
	}
	return uint32(v), nil
}

func (p *parser) parseInt64() (int64, error) {
	s := p.next().text
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q: %w", s, err)
	}
	return v, nil
}

func (p *parser) parseString() (string, error) {
	t := p.next()
	if t.kind != tokString {
		return "", fmt.Errorf("expected a string literal, got %q", t.text)
	}
	return t.text, nil
}

// skipSExpr consumes one already-opened "(kw ...)" form this parser doesn't recognize at the top level
// (e.g. "(elem ...)"/"(data ...)", left for a future session since this spec's bulk-memory segments are
// exercised directly via the binary format in this implementation's own tests).
func (p *parser) skipSExpr() error {
	return p.skipBalanced()
}
