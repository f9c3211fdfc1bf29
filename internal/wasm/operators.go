package wasm

// Opcode is a byte that identifies a WebAssembly instruction. Multi-byte instructions are reached by one of the
// prefix opcodes (OpcodeMiscPrefix, OpcodeVecPrefix, OpcodeAtomicPrefix) followed by a LEB128 u32 sub-opcode; a
// sub-opcode is not an Opcode but a uint32 key of MiscOperatorTable, VecOperatorTable or AtomicOperatorTable.
type Opcode = byte

const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05

	// OpcodeTry, OpcodeCatch, OpcodeThrow, OpcodeRethrow and OpcodeDelegate decode under FeatureExceptionHandling.
	OpcodeTry      Opcode = 0x06
	OpcodeCatch    Opcode = 0x07
	OpcodeThrow    Opcode = 0x08
	OpcodeRethrow  Opcode = 0x09
	OpcodeDelegate Opcode = 0x18
	OpcodeCatchAll Opcode = 0x19

	OpcodeEnd    Opcode = 0x0b
	OpcodeBr     Opcode = 0x0c
	OpcodeBrIf   Opcode = 0x0d
	OpcodeBrTable Opcode = 0x0e
	OpcodeReturn Opcode = 0x0f
	OpcodeCall   Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11

	// OpcodeReturnCall and OpcodeReturnCallIndirect decode under FeatureTailCall.
	OpcodeReturnCall         Opcode = 0x12
	OpcodeReturnCallIndirect Opcode = 0x13

	OpcodeDrop        Opcode = 0x1a
	OpcodeSelect      Opcode = 0x1b
	OpcodeTypedSelect Opcode = 0x1c

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	// OpcodeTableGet and OpcodeTableSet decode under FeatureReferenceTypes.
	OpcodeTableGet Opcode = 0x25
	OpcodeTableSet Opcode = 0x26

	OpcodeI32Load    Opcode = 0x28
	OpcodeI64Load    Opcode = 0x29
	OpcodeF32Load    Opcode = 0x2a
	OpcodeF64Load    Opcode = 0x2b
	OpcodeI32Load8S  Opcode = 0x2c
	OpcodeI32Load8U  Opcode = 0x2d
	OpcodeI32Load16S Opcode = 0x2e
	OpcodeI32Load16U Opcode = 0x2f
	OpcodeI64Load8S  Opcode = 0x30
	OpcodeI64Load8U  Opcode = 0x31
	OpcodeI64Load16S Opcode = 0x32
	OpcodeI64Load16U Opcode = 0x33
	OpcodeI64Load32S Opcode = 0x34
	OpcodeI64Load32U Opcode = 0x35
	OpcodeI32Store   Opcode = 0x36
	OpcodeI64Store   Opcode = 0x37
	OpcodeF32Store   Opcode = 0x38
	OpcodeF64Store   Opcode = 0x39
	OpcodeI32Store8  Opcode = 0x3a
	OpcodeI32Store16 Opcode = 0x3b
	OpcodeI64Store8  Opcode = 0x3c
	OpcodeI64Store16 Opcode = 0x3d
	OpcodeI64Store32 Opcode = 0x3e

	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	OpcodeI32Eqz Opcode = 0x45
	OpcodeI32Eq  Opcode = 0x46
	OpcodeI32Ne  Opcode = 0x47
	OpcodeI32LtS Opcode = 0x48
	OpcodeI32LtU Opcode = 0x49
	OpcodeI32GtS Opcode = 0x4a
	OpcodeI32GtU Opcode = 0x4b
	OpcodeI32LeS Opcode = 0x4c
	OpcodeI32LeU Opcode = 0x4d
	OpcodeI32GeS Opcode = 0x4e
	OpcodeI32GeU Opcode = 0x4f

	OpcodeI64Eqz Opcode = 0x50
	OpcodeI64Eq  Opcode = 0x51
	OpcodeI64Ne  Opcode = 0x52
	OpcodeI64LtS Opcode = 0x53
	OpcodeI64LtU Opcode = 0x54
	OpcodeI64GtS Opcode = 0x55
	OpcodeI64GtU Opcode = 0x56
	OpcodeI64LeS Opcode = 0x57
	OpcodeI64LeU Opcode = 0x58
	OpcodeI64GeS Opcode = 0x59
	OpcodeI64GeU Opcode = 0x5a

	OpcodeF32Eq Opcode = 0x5b
	OpcodeF32Ne Opcode = 0x5c
	OpcodeF32Lt Opcode = 0x5d
	OpcodeF32Gt Opcode = 0x5e
	OpcodeF32Le Opcode = 0x5f
	OpcodeF32Ge Opcode = 0x60

	OpcodeF64Eq Opcode = 0x61
	OpcodeF64Ne Opcode = 0x62
	OpcodeF64Lt Opcode = 0x63
	OpcodeF64Gt Opcode = 0x64
	OpcodeF64Le Opcode = 0x65
	OpcodeF64Ge Opcode = 0x66

	OpcodeI32Clz    Opcode = 0x67
	OpcodeI32Ctz    Opcode = 0x68
	OpcodeI32Popcnt Opcode = 0x69
	OpcodeI32Add    Opcode = 0x6a
	OpcodeI32Sub    Opcode = 0x6b
	OpcodeI32Mul    Opcode = 0x6c
	OpcodeI32DivS   Opcode = 0x6d
	OpcodeI32DivU   Opcode = 0x6e
	OpcodeI32RemS   Opcode = 0x6f
	OpcodeI32RemU   Opcode = 0x70
	OpcodeI32And    Opcode = 0x71
	OpcodeI32Or     Opcode = 0x72
	OpcodeI32Xor    Opcode = 0x73
	OpcodeI32Shl    Opcode = 0x74
	OpcodeI32ShrS   Opcode = 0x75
	OpcodeI32ShrU   Opcode = 0x76
	OpcodeI32Rotl   Opcode = 0x77
	OpcodeI32Rotr   Opcode = 0x78

	OpcodeI64Clz    Opcode = 0x79
	OpcodeI64Ctz    Opcode = 0x7a
	OpcodeI64Popcnt Opcode = 0x7b
	OpcodeI64Add    Opcode = 0x7c
	OpcodeI64Sub    Opcode = 0x7d
	OpcodeI64Mul    Opcode = 0x7e
	OpcodeI64DivS   Opcode = 0x7f
	OpcodeI64DivU   Opcode = 0x80
	OpcodeI64RemS   Opcode = 0x81
	OpcodeI64RemU   Opcode = 0x82
	OpcodeI64And    Opcode = 0x83
	OpcodeI64Or     Opcode = 0x84
	OpcodeI64Xor    Opcode = 0x85
	OpcodeI64Shl    Opcode = 0x86
	OpcodeI64ShrS   Opcode = 0x87
	OpcodeI64ShrU   Opcode = 0x88
	OpcodeI64Rotl   Opcode = 0x89
	OpcodeI64Rotr   Opcode = 0x8a

	OpcodeF32Abs      Opcode = 0x8b
	OpcodeF32Neg      Opcode = 0x8c
	OpcodeF32Ceil     Opcode = 0x8d
	OpcodeF32Floor    Opcode = 0x8e
	OpcodeF32Trunc    Opcode = 0x8f
	OpcodeF32Nearest  Opcode = 0x90
	OpcodeF32Sqrt     Opcode = 0x91
	OpcodeF32Add      Opcode = 0x92
	OpcodeF32Sub      Opcode = 0x93
	OpcodeF32Mul      Opcode = 0x94
	OpcodeF32Div      Opcode = 0x95
	OpcodeF32Min      Opcode = 0x96
	OpcodeF32Max      Opcode = 0x97
	OpcodeF32Copysign Opcode = 0x98

	OpcodeF64Abs      Opcode = 0x99
	OpcodeF64Neg      Opcode = 0x9a
	OpcodeF64Ceil     Opcode = 0x9b
	OpcodeF64Floor    Opcode = 0x9c
	OpcodeF64Trunc    Opcode = 0x9d
	OpcodeF64Nearest  Opcode = 0x9e
	OpcodeF64Sqrt     Opcode = 0x9f
	OpcodeF64Add      Opcode = 0xa0
	OpcodeF64Sub      Opcode = 0xa1
	OpcodeF64Mul      Opcode = 0xa2
	OpcodeF64Div      Opcode = 0xa3
	OpcodeF64Min      Opcode = 0xa4
	OpcodeF64Max      Opcode = 0xa5
	OpcodeF64Copysign Opcode = 0xa6

	OpcodeI32WrapI64        Opcode = 0xa7
	OpcodeI32TruncF32S      Opcode = 0xa8
	OpcodeI32TruncF32U      Opcode = 0xa9
	OpcodeI32TruncF64S      Opcode = 0xaa
	OpcodeI32TruncF64U      Opcode = 0xab
	OpcodeI64ExtendI32S     Opcode = 0xac
	OpcodeI64ExtendI32U     Opcode = 0xad
	OpcodeI64TruncF32S      Opcode = 0xae
	OpcodeI64TruncF32U      Opcode = 0xaf
	OpcodeI64TruncF64S      Opcode = 0xb0
	OpcodeI64TruncF64U      Opcode = 0xb1
	OpcodeF32ConvertI32S    Opcode = 0xb2
	OpcodeF32ConvertI32U    Opcode = 0xb3
	OpcodeF32ConvertI64S    Opcode = 0xb4
	OpcodeF32ConvertI64U    Opcode = 0xb5
	OpcodeF32DemoteF64      Opcode = 0xb6
	OpcodeF64ConvertI32S    Opcode = 0xb7
	OpcodeF64ConvertI32U    Opcode = 0xb8
	OpcodeF64ConvertI64S    Opcode = 0xb9
	OpcodeF64ConvertI64U    Opcode = 0xba
	OpcodeF64PromoteF32     Opcode = 0xbb
	OpcodeI32ReinterpretF32 Opcode = 0xbc
	OpcodeI64ReinterpretF64 Opcode = 0xbd
	OpcodeF32ReinterpretI32 Opcode = 0xbe
	OpcodeF64ReinterpretI64 Opcode = 0xbf

	// The sign-extension opcodes decode under FeatureSignExtensionOps.
	OpcodeI32Extend8S  Opcode = 0xc0
	OpcodeI32Extend16S Opcode = 0xc1
	OpcodeI64Extend8S  Opcode = 0xc2
	OpcodeI64Extend16S Opcode = 0xc3
	OpcodeI64Extend32S Opcode = 0xc4

	// OpcodeRefNull, OpcodeRefIsNull and OpcodeRefFunc decode under FeatureReferenceTypes.
	OpcodeRefNull   Opcode = 0xd0
	OpcodeRefIsNull Opcode = 0xd1
	OpcodeRefFunc   Opcode = 0xd2

	// OpcodeMiscPrefix, OpcodeVecPrefix and OpcodeAtomicPrefix introduce a LEB128 u32 sub-opcode.
	OpcodeMiscPrefix   Opcode = 0xfc
	OpcodeVecPrefix    Opcode = 0xfd
	OpcodeAtomicPrefix Opcode = 0xfe
)

// Sub-opcodes following OpcodeMiscPrefix (0xFC). Decode under FeatureNonTrappingFloatToIntConversion (the
// saturating truncations) or FeatureBulkMemoryOperations (everything else).
const (
	OpcodeMiscI32TruncSatF32S = 0
	OpcodeMiscI32TruncSatF32U = 1
	OpcodeMiscI32TruncSatF64S = 2
	OpcodeMiscI32TruncSatF64U = 3
	OpcodeMiscI64TruncSatF32S = 4
	OpcodeMiscI64TruncSatF32U = 5
	OpcodeMiscI64TruncSatF64S = 6
	OpcodeMiscI64TruncSatF64U = 7

	OpcodeMiscMemoryInit = 8
	OpcodeMiscDataDrop   = 9
	OpcodeMiscMemoryCopy = 10
	OpcodeMiscMemoryFill = 11
	OpcodeMiscTableInit  = 12
	OpcodeMiscElemDrop   = 13
	OpcodeMiscTableCopy  = 14
	OpcodeMiscTableGrow  = 15
	OpcodeMiscTableSize  = 16
	OpcodeMiscTableFill  = 17
)

// A representative subset of sub-opcodes following OpcodeVecPrefix (0xFD), decoded under FeatureSIMD. The full
// SIMD opcode space exceeds 230 lanewise variants; the interpreter executes none of them.
const (
	OpcodeVecV128Load   = 0
	OpcodeVecV128Store  = 11
	OpcodeVecV128Const  = 12
	OpcodeVecI8x16Shuffle = 13

	OpcodeVecI32x4Add = 174
	OpcodeVecI32x4Sub = 177
	OpcodeVecI32x4Mul = 181
	OpcodeVecF32x4Add = 228
	OpcodeVecF32x4Sub = 229
	OpcodeVecF32x4Mul = 230
)

// A representative subset of sub-opcodes following OpcodeAtomicPrefix (0xFE), decoded under FeatureThreads.
const (
	OpcodeAtomicMemoryNotify = 0x00
	OpcodeAtomicMemoryWait32 = 0x01
	OpcodeAtomicMemoryWait64 = 0x02
	OpcodeAtomicFence        = 0x03

	OpcodeAtomicI32Load = 0x10
	OpcodeAtomicI64Load = 0x11

	OpcodeAtomicI32Store = 0x17
	OpcodeAtomicI64Store = 0x18

	OpcodeAtomicI32RmwAdd = 0x1e
	OpcodeAtomicI64RmwAdd = 0x1f
)

// ImmediateKind classifies the shape of an Opcode's immediate operand(s), letting the decoder, validator,
// printer and compiler share one dispatch table instead of four duplicated switches.
type ImmediateKind int

const (
	ImmNone ImmediateKind = iota
	ImmI32
	ImmI64
	ImmF32
	ImmF64
	ImmValueType     // ref.null
	ImmLocalIndex    // local.get/set/tee
	ImmGlobalIndex   // global.get/set
	ImmTableIndex    // table.get/set, call_indirect's table immediate
	ImmFunctionIndex // call, ref.func
	ImmTypeIndex     // call_indirect, block types with multi-value
	ImmLoadStore     // alignLog2 + offset
	ImmBranch        // relative depth
	ImmBranchTable   // vector of relative depths + default
	ImmBlock         // block/loop/if signature
	ImmMisc          // sub-opcode behind OpcodeMiscPrefix/OpcodeVecPrefix/OpcodeAtomicPrefix
)

// OperatorInfo describes the static shape of one Opcode: its mnemonic, the feature gating it, and the kind of
// immediate that follows it in the binary format. The decoder, validator, printer and interpreter compiler all
// key off this table instead of re-deriving the shape per component.
type OperatorInfo struct {
	Name      string
	Immediate ImmediateKind
	Feature   Features // 0 means always available (WebAssembly 1.0 MVP)
}

// OperatorTable maps every Opcode this implementation decodes to its OperatorInfo. Multi-byte instructions
// (OpcodeMiscPrefix, OpcodeVecPrefix, OpcodeAtomicPrefix) are looked up in MiscOperatorTable, VecOperatorTable
// and AtomicOperatorTable respectively, keyed by the LEB128 u32 sub-opcode that follows the prefix byte.
var OperatorTable = map[Opcode]OperatorInfo{
	OpcodeUnreachable: {"unreachable", ImmNone, 0},
	OpcodeNop:         {"nop", ImmNone, 0},
	OpcodeBlock:       {"block", ImmBlock, 0},
	OpcodeLoop:        {"loop", ImmBlock, 0},
	OpcodeIf:          {"if", ImmBlock, 0},
	OpcodeElse:        {"else", ImmNone, 0},
	OpcodeEnd:         {"end", ImmNone, 0},

	OpcodeTry:      {"try", ImmBlock, FeatureExceptionHandling},
	OpcodeCatch:    {"catch", ImmTypeIndex, FeatureExceptionHandling},
	OpcodeCatchAll: {"catch_all", ImmNone, FeatureExceptionHandling},
	OpcodeThrow:    {"throw", ImmTypeIndex, FeatureExceptionHandling},
	OpcodeRethrow:  {"rethrow", ImmBranch, FeatureExceptionHandling},
	OpcodeDelegate: {"delegate", ImmBranch, FeatureExceptionHandling},

	OpcodeBr:                 {"br", ImmBranch, 0},
	OpcodeBrIf:               {"br_if", ImmBranch, 0},
	OpcodeBrTable:            {"br_table", ImmBranchTable, 0},
	OpcodeReturn:             {"return", ImmNone, 0},
	OpcodeCall:               {"call", ImmFunctionIndex, 0},
	OpcodeCallIndirect:       {"call_indirect", ImmTypeIndex, 0},
	OpcodeReturnCall:         {"return_call", ImmFunctionIndex, FeatureTailCall},
	OpcodeReturnCallIndirect: {"return_call_indirect", ImmTypeIndex, FeatureTailCall},

	OpcodeDrop:        {"drop", ImmNone, 0},
	OpcodeSelect:      {"select", ImmNone, 0},
	OpcodeTypedSelect: {"select", ImmValueType, FeatureReferenceTypes},

	OpcodeLocalGet:  {"local.get", ImmLocalIndex, 0},
	OpcodeLocalSet:  {"local.set", ImmLocalIndex, 0},
	OpcodeLocalTee:  {"local.tee", ImmLocalIndex, 0},
	OpcodeGlobalGet: {"global.get", ImmGlobalIndex, 0},
	OpcodeGlobalSet: {"global.set", ImmGlobalIndex, 0},

	OpcodeTableGet: {"table.get", ImmTableIndex, FeatureReferenceTypes},
	OpcodeTableSet: {"table.set", ImmTableIndex, FeatureReferenceTypes},

	OpcodeI32Load:    {"i32.load", ImmLoadStore, 0},
	OpcodeI64Load:    {"i64.load", ImmLoadStore, 0},
	OpcodeF32Load:    {"f32.load", ImmLoadStore, 0},
	OpcodeF64Load:    {"f64.load", ImmLoadStore, 0},
	OpcodeI32Load8S:  {"i32.load8_s", ImmLoadStore, 0},
	OpcodeI32Load8U:  {"i32.load8_u", ImmLoadStore, 0},
	OpcodeI32Load16S: {"i32.load16_s", ImmLoadStore, 0},
	OpcodeI32Load16U: {"i32.load16_u", ImmLoadStore, 0},
	OpcodeI64Load8S:  {"i64.load8_s", ImmLoadStore, 0},
	OpcodeI64Load8U:  {"i64.load8_u", ImmLoadStore, 0},
	OpcodeI64Load16S: {"i64.load16_s", ImmLoadStore, 0},
	OpcodeI64Load16U: {"i64.load16_u", ImmLoadStore, 0},
	OpcodeI64Load32S: {"i64.load32_s", ImmLoadStore, 0},
	OpcodeI64Load32U: {"i64.load32_u", ImmLoadStore, 0},
	OpcodeI32Store:   {"i32.store", ImmLoadStore, 0},
	OpcodeI64Store:   {"i64.store", ImmLoadStore, 0},
	OpcodeF32Store:   {"f32.store", ImmLoadStore, 0},
	OpcodeF64Store:   {"f64.store", ImmLoadStore, 0},
	OpcodeI32Store8:  {"i32.store8", ImmLoadStore, 0},
	OpcodeI32Store16: {"i32.store16", ImmLoadStore, 0},
	OpcodeI64Store8:  {"i64.store8", ImmLoadStore, 0},
	OpcodeI64Store16: {"i64.store16", ImmLoadStore, 0},
	OpcodeI64Store32: {"i64.store32", ImmLoadStore, 0},

	OpcodeMemorySize: {"memory.size", ImmNone, 0},
	OpcodeMemoryGrow: {"memory.grow", ImmNone, 0},

	OpcodeI32Const: {"i32.const", ImmI32, 0},
	OpcodeI64Const: {"i64.const", ImmI64, 0},
	OpcodeF32Const: {"f32.const", ImmF32, 0},
	OpcodeF64Const: {"f64.const", ImmF64, 0},

	OpcodeI32Eqz: {"i32.eqz", ImmNone, 0}, OpcodeI32Eq: {"i32.eq", ImmNone, 0}, OpcodeI32Ne: {"i32.ne", ImmNone, 0},
	OpcodeI32LtS: {"i32.lt_s", ImmNone, 0}, OpcodeI32LtU: {"i32.lt_u", ImmNone, 0},
	OpcodeI32GtS: {"i32.gt_s", ImmNone, 0}, OpcodeI32GtU: {"i32.gt_u", ImmNone, 0},
	OpcodeI32LeS: {"i32.le_s", ImmNone, 0}, OpcodeI32LeU: {"i32.le_u", ImmNone, 0},
	OpcodeI32GeS: {"i32.ge_s", ImmNone, 0}, OpcodeI32GeU: {"i32.ge_u", ImmNone, 0},

	OpcodeI64Eqz: {"i64.eqz", ImmNone, 0}, OpcodeI64Eq: {"i64.eq", ImmNone, 0}, OpcodeI64Ne: {"i64.ne", ImmNone, 0},
	OpcodeI64LtS: {"i64.lt_s", ImmNone, 0}, OpcodeI64LtU: {"i64.lt_u", ImmNone, 0},
	OpcodeI64GtS: {"i64.gt_s", ImmNone, 0}, OpcodeI64GtU: {"i64.gt_u", ImmNone, 0},
	OpcodeI64LeS: {"i64.le_s", ImmNone, 0}, OpcodeI64LeU: {"i64.le_u", ImmNone, 0},
	OpcodeI64GeS: {"i64.ge_s", ImmNone, 0}, OpcodeI64GeU: {"i64.ge_u", ImmNone, 0},

	OpcodeF32Eq: {"f32.eq", ImmNone, 0}, OpcodeF32Ne: {"f32.ne", ImmNone, 0},
	OpcodeF32Lt: {"f32.lt", ImmNone, 0}, OpcodeF32Gt: {"f32.gt", ImmNone, 0},
	OpcodeF32Le: {"f32.le", ImmNone, 0}, OpcodeF32Ge: {"f32.ge", ImmNone, 0},

	OpcodeF64Eq: {"f64.eq", ImmNone, 0}, OpcodeF64Ne: {"f64.ne", ImmNone, 0},
	OpcodeF64Lt: {"f64.lt", ImmNone, 0}, OpcodeF64Gt: {"f64.gt", ImmNone, 0},
	OpcodeF64Le: {"f64.le", ImmNone, 0}, OpcodeF64Ge: {"f64.ge", ImmNone, 0},

	OpcodeI32Clz: {"i32.clz", ImmNone, 0}, OpcodeI32Ctz: {"i32.ctz", ImmNone, 0}, OpcodeI32Popcnt: {"i32.popcnt", ImmNone, 0},
	OpcodeI32Add: {"i32.add", ImmNone, 0}, OpcodeI32Sub: {"i32.sub", ImmNone, 0}, OpcodeI32Mul: {"i32.mul", ImmNone, 0},
	OpcodeI32DivS: {"i32.div_s", ImmNone, 0}, OpcodeI32DivU: {"i32.div_u", ImmNone, 0},
	OpcodeI32RemS: {"i32.rem_s", ImmNone, 0}, OpcodeI32RemU: {"i32.rem_u", ImmNone, 0},
	OpcodeI32And: {"i32.and", ImmNone, 0}, OpcodeI32Or: {"i32.or", ImmNone, 0}, OpcodeI32Xor: {"i32.xor", ImmNone, 0},
	OpcodeI32Shl: {"i32.shl", ImmNone, 0}, OpcodeI32ShrS: {"i32.shr_s", ImmNone, 0}, OpcodeI32ShrU: {"i32.shr_u", ImmNone, 0},
	OpcodeI32Rotl: {"i32.rotl", ImmNone, 0}, OpcodeI32Rotr: {"i32.rotr", ImmNone, 0},

	OpcodeI64Clz: {"i64.clz", ImmNone, 0}, OpcodeI64Ctz: {"i64.ctz", ImmNone, 0}, OpcodeI64Popcnt: {"i64.popcnt", ImmNone, 0},
	OpcodeI64Add: {"i64.add", ImmNone, 0}, OpcodeI64Sub: {"i64.sub", ImmNone, 0}, OpcodeI64Mul: {"i64.mul", ImmNone, 0},
	OpcodeI64DivS: {"i64.div_s", ImmNone, 0}, OpcodeI64DivU: {"i64.div_u", ImmNone, 0},
	OpcodeI64RemS: {"i64.rem_s", ImmNone, 0}, OpcodeI64RemU: {"i64.rem_u", ImmNone, 0},
	OpcodeI64And: {"i64.and", ImmNone, 0}, OpcodeI64Or: {"i64.or", ImmNone, 0}, OpcodeI64Xor: {"i64.xor", ImmNone, 0},
	OpcodeI64Shl: {"i64.shl", ImmNone, 0}, OpcodeI64ShrS: {"i64.shr_s", ImmNone, 0}, OpcodeI64ShrU: {"i64.shr_u", ImmNone, 0},
	OpcodeI64Rotl: {"i64.rotl", ImmNone, 0}, OpcodeI64Rotr: {"i64.rotr", ImmNone, 0},

	OpcodeF32Abs: {"f32.abs", ImmNone, 0}, OpcodeF32Neg: {"f32.neg", ImmNone, 0},
	OpcodeF32Ceil: {"f32.ceil", ImmNone, 0}, OpcodeF32Floor: {"f32.floor", ImmNone, 0},
	OpcodeF32Trunc: {"f32.trunc", ImmNone, 0}, OpcodeF32Nearest: {"f32.nearest", ImmNone, 0},
	OpcodeF32Sqrt: {"f32.sqrt", ImmNone, 0}, OpcodeF32Add: {"f32.add", ImmNone, 0}, OpcodeF32Sub: {"f32.sub", ImmNone, 0},
	OpcodeF32Mul: {"f32.mul", ImmNone, 0}, OpcodeF32Div: {"f32.div", ImmNone, 0},
	OpcodeF32Min: {"f32.min", ImmNone, 0}, OpcodeF32Max: {"f32.max", ImmNone, 0}, OpcodeF32Copysign: {"f32.copysign", ImmNone, 0},

	OpcodeF64Abs: {"f64.abs", ImmNone, 0}, OpcodeF64Neg: {"f64.neg", ImmNone, 0},
	OpcodeF64Ceil: {"f64.ceil", ImmNone, 0}, OpcodeF64Floor: {"f64.floor", ImmNone, 0},
	OpcodeF64Trunc: {"f64.trunc", ImmNone, 0}, OpcodeF64Nearest: {"f64.nearest", ImmNone, 0},
	OpcodeF64Sqrt: {"f64.sqrt", ImmNone, 0}, OpcodeF64Add: {"f64.add", ImmNone, 0}, OpcodeF64Sub: {"f64.sub", ImmNone, 0},
	OpcodeF64Mul: {"f64.mul", ImmNone, 0}, OpcodeF64Div: {"f64.div", ImmNone, 0},
	OpcodeF64Min: {"f64.min", ImmNone, 0}, OpcodeF64Max: {"f64.max", ImmNone, 0}, OpcodeF64Copysign: {"f64.copysign", ImmNone, 0},

	OpcodeI32WrapI64: {"i32.wrap_i64", ImmNone, 0},
	OpcodeI32TruncF32S: {"i32.trunc_f32_s", ImmNone, 0}, OpcodeI32TruncF32U: {"i32.trunc_f32_u", ImmNone, 0},
	OpcodeI32TruncF64S: {"i32.trunc_f64_s", ImmNone, 0}, OpcodeI32TruncF64U: {"i32.trunc_f64_u", ImmNone, 0},
	OpcodeI64ExtendI32S: {"i64.extend_i32_s", ImmNone, 0}, OpcodeI64ExtendI32U: {"i64.extend_i32_u", ImmNone, 0},
	OpcodeI64TruncF32S: {"i64.trunc_f32_s", ImmNone, 0}, OpcodeI64TruncF32U: {"i64.trunc_f32_u", ImmNone, 0},
	OpcodeI64TruncF64S: {"i64.trunc_f64_s", ImmNone, 0}, OpcodeI64TruncF64U: {"i64.trunc_f64_u", ImmNone, 0},
	OpcodeF32ConvertI32S: {"f32.convert_i32_s", ImmNone, 0}, OpcodeF32ConvertI32U: {"f32.convert_i32_u", ImmNone, 0},
	OpcodeF32ConvertI64S: {"f32.convert_i64_s", ImmNone, 0}, OpcodeF32ConvertI64U: {"f32.convert_i64_u", ImmNone, 0},
	OpcodeF32DemoteF64: {"f32.demote_f64", ImmNone, 0},
	OpcodeF64ConvertI32S: {"f64.convert_i32_s", ImmNone, 0}, OpcodeF64ConvertI32U: {"f64.convert_i32_u", ImmNone, 0},
	OpcodeF64ConvertI64S: {"f64.convert_i64_s", ImmNone, 0}, OpcodeF64ConvertI64U: {"f64.convert_i64_u", ImmNone, 0},
	OpcodeF64PromoteF32: {"f64.promote_f32", ImmNone, 0},
	OpcodeI32ReinterpretF32: {"i32.reinterpret_f32", ImmNone, 0}, OpcodeI64ReinterpretF64: {"i64.reinterpret_f64", ImmNone, 0},
	OpcodeF32ReinterpretI32: {"f32.reinterpret_i32", ImmNone, 0}, OpcodeF64ReinterpretI64: {"f64.reinterpret_i64", ImmNone, 0},

	OpcodeI32Extend8S:  {"i32.extend8_s", ImmNone, FeatureSignExtensionOps},
	OpcodeI32Extend16S: {"i32.extend16_s", ImmNone, FeatureSignExtensionOps},
	OpcodeI64Extend8S:  {"i64.extend8_s", ImmNone, FeatureSignExtensionOps},
	OpcodeI64Extend16S: {"i64.extend16_s", ImmNone, FeatureSignExtensionOps},
	OpcodeI64Extend32S: {"i64.extend32_s", ImmNone, FeatureSignExtensionOps},

	OpcodeRefNull:   {"ref.null", ImmValueType, FeatureReferenceTypes},
	OpcodeRefIsNull: {"ref.is_null", ImmNone, FeatureReferenceTypes},
	OpcodeRefFunc:   {"ref.func", ImmFunctionIndex, FeatureReferenceTypes},
}

// MiscOperatorTable holds the sub-opcodes following OpcodeMiscPrefix.
var MiscOperatorTable = map[uint32]OperatorInfo{
	OpcodeMiscI32TruncSatF32S: {"i32.trunc_sat_f32_s", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI32TruncSatF32U: {"i32.trunc_sat_f32_u", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI32TruncSatF64S: {"i32.trunc_sat_f64_s", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI32TruncSatF64U: {"i32.trunc_sat_f64_u", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI64TruncSatF32S: {"i64.trunc_sat_f32_s", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI64TruncSatF32U: {"i64.trunc_sat_f32_u", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI64TruncSatF64S: {"i64.trunc_sat_f64_s", ImmNone, FeatureNonTrappingFloatToIntConversion},
	OpcodeMiscI64TruncSatF64U: {"i64.trunc_sat_f64_u", ImmNone, FeatureNonTrappingFloatToIntConversion},

	OpcodeMiscMemoryInit: {"memory.init", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscDataDrop:   {"data.drop", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscMemoryCopy: {"memory.copy", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscMemoryFill: {"memory.fill", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscTableInit:  {"table.init", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscElemDrop:   {"elem.drop", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscTableCopy:  {"table.copy", ImmMisc, FeatureBulkMemoryOperations},
	OpcodeMiscTableGrow:  {"table.grow", ImmTableIndex, FeatureReferenceTypes},
	OpcodeMiscTableSize:  {"table.size", ImmTableIndex, FeatureReferenceTypes},
	OpcodeMiscTableFill:  {"table.fill", ImmTableIndex, FeatureReferenceTypes},
}

// VecOperatorTable holds a representative subset of SIMD sub-opcodes. Every v128 opcode not listed here still
// decodes and validates (the shape is uniform: immediate kind ImmLoadStore for loads and stores, ImmMisc
// otherwise). The interpreter executes no v128 opcode, listed or not: each traps with TrapCodeUnimplemented.
var VecOperatorTable = map[uint32]OperatorInfo{
	OpcodeVecV128Load:     {"v128.load", ImmLoadStore, FeatureSIMD},
	OpcodeVecV128Store:    {"v128.store", ImmLoadStore, FeatureSIMD},
	OpcodeVecV128Const:    {"v128.const", ImmMisc, FeatureSIMD},
	OpcodeVecI8x16Shuffle: {"i8x16.shuffle", ImmMisc, FeatureSIMD},
	OpcodeVecI32x4Add:     {"i32x4.add", ImmNone, FeatureSIMD},
	OpcodeVecI32x4Sub:     {"i32x4.sub", ImmNone, FeatureSIMD},
	OpcodeVecI32x4Mul:     {"i32x4.mul", ImmNone, FeatureSIMD},
	OpcodeVecF32x4Add:     {"f32x4.add", ImmNone, FeatureSIMD},
	OpcodeVecF32x4Sub:     {"f32x4.sub", ImmNone, FeatureSIMD},
	OpcodeVecF32x4Mul:     {"f32x4.mul", ImmNone, FeatureSIMD},
}

// AtomicOperatorTable holds the representative threads/atomics sub-opcodes. As with VecOperatorTable, every
// atomic opcode decodes and validates uniformly (ImmLoadStore); the interpreter executes none of them, each
// traps with TrapCodeUnimplemented.
var AtomicOperatorTable = map[uint32]OperatorInfo{
	OpcodeAtomicMemoryNotify: {"memory.atomic.notify", ImmLoadStore, FeatureThreads},
	OpcodeAtomicMemoryWait32: {"memory.atomic.wait32", ImmLoadStore, FeatureThreads},
	OpcodeAtomicMemoryWait64: {"memory.atomic.wait64", ImmLoadStore, FeatureThreads},
	OpcodeAtomicFence:        {"atomic.fence", ImmNone, FeatureThreads},
	OpcodeAtomicI32Load:      {"i32.atomic.load", ImmLoadStore, FeatureThreads},
	OpcodeAtomicI64Load:      {"i64.atomic.load", ImmLoadStore, FeatureThreads},
	OpcodeAtomicI32Store:     {"i32.atomic.store", ImmLoadStore, FeatureThreads},
	OpcodeAtomicI64Store:     {"i64.atomic.store", ImmLoadStore, FeatureThreads},
	OpcodeAtomicI32RmwAdd:    {"i32.atomic.rmw.add", ImmLoadStore, FeatureThreads},
	OpcodeAtomicI64RmwAdd:    {"i64.atomic.rmw.add", ImmLoadStore, FeatureThreads},
}

// InstructionName returns the opcode's mnemonic, or "unknown" if it isn't in OperatorTable.
func InstructionName(op Opcode) string {
	if info, ok := OperatorTable[op]; ok {
		return info.Name
	}
	return "unknown"
}
