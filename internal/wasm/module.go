package wasm

import "github.com/wazerun/wazero/api"

// Index is a position in one of a Module's index namespaces, i.e. a function, table, memory, global or type
// index. Imports occupy the low end of each namespace, in import-declaration order, before module-defined
// entries.
type Index = uint32

// ExternType re-exports api.ExternType, the discriminant shared by Import, Export and ObjectType.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

// ExternTypeName delegates to api.ExternTypeName.
func ExternTypeName(et ExternType) string { return api.ExternTypeName(et) }

// SectionID identifies a top-level section of the binary format, in the order sections must appear.
type SectionID = byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
	// SectionIDDataCount precedes SectionIDCode per the bulk-memory-operations proposal, declaring the data
	// segment count up front so memory.init / data.drop can be validated before the code section is seen.
	SectionIDDataCount
	// SectionIDException carries the ExceptionType ("tag") declarations under FeatureExceptionHandling. It
	// sorts after data count in this implementation's encoding, mirroring where wasm-tools places custom
	// proposal sections relative to the finished MVP ones.
	SectionIDException
)

var sectionIDNames = map[SectionID]string{
	SectionIDCustom:    "custom",
	SectionIDType:      "type",
	SectionIDImport:    "import",
	SectionIDFunction:  "function",
	SectionIDTable:     "table",
	SectionIDMemory:    "memory",
	SectionIDGlobal:    "global",
	SectionIDExport:    "export",
	SectionIDStart:     "start",
	SectionIDElement:   "element",
	SectionIDCode:      "code",
	SectionIDData:      "data",
	SectionIDDataCount: "data count",
	SectionIDException: "exception",
}

// SectionIDName returns the human-readable name of a SectionID, or "unknown" if not recognized.
func SectionIDName(id SectionID) string {
	if name, ok := sectionIDNames[id]; ok {
		return name
	}
	return "unknown"
}

// Import describes a single entry in the import section. Exactly one of the Desc* fields is meaningful,
// selected by Type.
type Import struct {
	Type ExternType

	Module, Name string

	DescFunc   Index
	DescTable  *TableType
	DescMem    *MemoryType
	DescGlobal *GlobalType
	DescExcept *ExceptionType
}

// Export describes a single entry in the export section.
type Export struct {
	Type  ExternType
	Name  string
	Index Index
}

// Global is a module-defined (non-imported) global: its type plus the constant expression initializing it.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// Code is a module-defined (non-imported) function body: its declared locals plus the instruction stream,
// which always ends with OpcodeEnd.
type Code struct {
	// LocalTypes is flattened from the binary format's run-length-encoded local groups, one entry per local
	// variable, in declaration order, after the function's Params.
	LocalTypes []ValueType
	Body       []byte
}

// ElementSegment initializes a range of a table with function references, or stands alone as a "passive" or
// "declarative" segment consumed only by table.init under FeatureBulkMemoryOperations.
type ElementSegment struct {
	// TableIndex and OffsetExpr are meaningful only when Mode is ElementModeActive.
	TableIndex Index
	OffsetExpr ConstantExpression

	Mode ElementMode
	Type ValueType
	Init []Index // function indexes; RefNull entries are encoded as Index(math.MaxUint32)
}

// ElementMode classifies an ElementSegment per the bulk-memory-operations proposal.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// DataSegment initializes a range of linear memory, or stands alone as a "passive" segment consumed only by
// memory.init under FeatureBulkMemoryOperations.
type DataSegment struct {
	MemoryIndex Index
	OffsetExpr  ConstantExpression
	Passive     bool
	Init        []byte
}

// NameSection holds the optional debug names decoded from the "name" custom section.
type NameSection struct {
	ModuleName    string
	FunctionNames NameMap
	LocalNames    IndirectNameMap
}

// NameAssoc associates an Index with a debug Name, as found in NameMap.
type NameAssoc struct {
	Index Index
	Name  string
}

// NameMap is a sorted-by-Index list of NameAssoc, e.g. function or global names.
type NameMap []*NameAssoc

// IndirectNameMap associates an outer Index (e.g. a function) with a NameMap of its inner indices (e.g. its
// locals).
type IndirectNameMap []*NameMapAssoc

// NameMapAssoc is one entry of an IndirectNameMap.
type NameMapAssoc struct {
	Index   Index
	NameMap NameMap
}

// Module is the decoded, but not yet instantiated, form of a WebAssembly binary: the output of the decoder and
// the input to the validator, printer and Store.Instantiate.
type Module struct {
	TypeSection     []FunctionType
	ImportSection   []*Import
	FunctionSection []Index // indexes into TypeSection, one per module-defined function
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*Global
	ExportSection   map[string]*Export
	StartSection    *Index
	ElementSection  []*ElementSegment
	CodeSection     []*Code
	DataSection     []*DataSegment
	ExceptionSection []*ExceptionType

	// DataCountSection, when non-nil, is the count declared by SectionIDDataCount. Validation checks it
	// against len(DataSection).
	DataCountSection *uint32

	NameSection *NameSection
}

// ImportFuncCount returns the number of function imports, i.e. the count of entries in the function index
// namespace that come before any module-defined function.
func (m *Module) ImportFuncCount() uint32 { return m.importCount(ExternTypeFunc) }

// ImportTableCount returns the number of table imports.
func (m *Module) ImportTableCount() uint32 { return m.importCount(ExternTypeTable) }

// ImportMemoryCount returns the number of memory imports.
func (m *Module) ImportMemoryCount() uint32 { return m.importCount(ExternTypeMemory) }

// ImportGlobalCount returns the number of global imports.
func (m *Module) ImportGlobalCount() uint32 { return m.importCount(ExternTypeGlobal) }

func (m *Module) importCount(t ExternType) (n uint32) {
	for _, imp := range m.ImportSection {
		if imp.Type == t {
			n++
		}
	}
	return
}

// TypeOfFunction resolves the FunctionType of the function at the given index in the function index
// namespace (imports first), or nil if idx is out of range.
func (m *Module) TypeOfFunction(idx Index) *FunctionType {
	importedFuncCount := m.ImportFuncCount()
	if idx < importedFuncCount {
		var cur Index
		for _, imp := range m.ImportSection {
			if imp.Type != ExternTypeFunc {
				continue
			}
			if cur == idx {
				if int(imp.DescFunc) >= len(m.TypeSection) {
					return nil
				}
				return &m.TypeSection[imp.DescFunc]
			}
			cur++
		}
		return nil
	}
	codeIdx := idx - importedFuncCount
	if int(codeIdx) >= len(m.FunctionSection) {
		return nil
	}
	typeIdx := m.FunctionSection[codeIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil
	}
	return &m.TypeSection[typeIdx]
}

// AllDeclarations returns the function index namespace (type index into TypeSection) for every function,
// imports first, used by the validator to resolve call/call_indirect/ref.func targets without repeatedly
// walking ImportSection.
func (m *Module) AllDeclarations() (functions []Index) {
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeFunc {
			functions = append(functions, imp.DescFunc)
		}
	}
	return append(functions, m.FunctionSection...)
}
