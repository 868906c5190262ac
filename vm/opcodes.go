package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single SLang instruction. The numeric values are the
// wire format: binary images carry opcodes as these integers, so the order
// below must never change.
type Opcode int

// Loader directives
const (
	OpCMalloc  Opcode = iota // size the constant pool
	OpVMalloc                // allocate variable holders in the current scope
	OpConstant               // install a constant (kind, value, refcount follow)
	OpNoop
	OpPopOp
)

// Loads
const (
	OpLoadNull Opcode = iota + 5
	OpLoadConstant
	OpLoadName
	OpLoadNameGlobal
	OpLoadInt
	OpLoadFloat
	OpLoadChar
)

// Subscripts
const (
	OpBinarySubscr Opcode = iota + 12
	OpStoreSubscr
	OpStoreSubscrInplace
	OpStoreSubscrNopop
)

// Stores
const (
	OpStoreName Opcode = iota + 16
	OpStoreNameGlobal
	OpStoreNameNopop
	OpStoreNameGlobalNopop
)

// Arrays, operators, jumps
const (
	OpBuildArr Opcode = iota + 20
	OpBinaryOp
	OpUnaryOp
	OpJmp
	OpJmpTrue
	OpJmpFalse
)

// Frames and the global operand stack
const (
	OpPush Opcode = iota + 26
	OpRet
	OpCall
	OpLoadGlobal
	OpStoreGlobal
)

// Termination and debugging
const (
	OpHalt Opcode = iota + 31
	OpPrintk
)

// NumOpcodes is one past the highest opcode value.
const NumOpcodes = int(OpPrintk) + 1

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name       string // mnemonic used by the textual formats
	HasOperand bool   // true if one immediate operand follows on the wire
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpCMalloc:  {"CMALLOC", true},
	OpVMalloc:  {"VMALLOC", true},
	OpConstant: {"CONSTANT", false}, // kind/value/refcount are read specially
	OpNoop:     {"NOOP", false},
	OpPopOp:    {"POP_OP", false},

	OpLoadNull:       {"LOAD_NULL", false},
	OpLoadConstant:   {"LOAD_CONSTANT", true},
	OpLoadName:       {"LOAD_NAME", true},
	OpLoadNameGlobal: {"LOAD_NAME_GLOBAL", true},
	OpLoadInt:        {"LOAD_INT", true},
	OpLoadFloat:      {"LOAD_FLOAT", true},
	OpLoadChar:       {"LOAD_CHAR", true},

	OpBinarySubscr:       {"BINARY_SUBSCR", false},
	OpStoreSubscr:        {"STORE_SUBSCR", false},
	OpStoreSubscrInplace: {"STORE_SUBSCR_INPLACE", false},
	OpStoreSubscrNopop:   {"STORE_SUBSCR_NOPOP", false},

	OpStoreName:            {"STORE_NAME", true},
	OpStoreNameGlobal:      {"STORE_NAME_GLOBAL", true},
	OpStoreNameNopop:       {"STORE_NAME_NOPOP", true},
	OpStoreNameGlobalNopop: {"STORE_NAME_GLOBAL_NOPOP", true},

	OpBuildArr: {"BUILD_ARR", true},
	OpBinaryOp: {"BINARY_OP", true},
	OpUnaryOp:  {"UNARY_OP", true},
	OpJmp:      {"JMP", true},
	OpJmpTrue:  {"JMP_TRUE", true},
	OpJmpFalse: {"JMP_FALSE", true},

	OpPush:        {"PUSH", false},
	OpRet:         {"RET", false},
	OpCall:        {"CALL", true},
	OpLoadGlobal:  {"LOAD_GLOBAL", false},
	OpStoreGlobal: {"STORE_GLOBAL", false},

	OpHalt:   {"HALT", false},
	OpPrintk: {"PRINTK", false},
}

// opcodeByName is the inverse of opcodeTable, for the textual formats.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%d", int(op))}
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// HasOperand reports whether one immediate operand follows the opcode.
func (op Opcode) HasOperand() bool {
	return op.Info().HasOperand
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// OpcodeByName resolves a mnemonic to its opcode.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}
