package vm

import "testing"

// TestOpcodeWireValues pins the numeric wire values. Binary images carry
// these integers; any drift here silently corrupts every existing image.
func TestOpcodeWireValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		code int
	}{
		{OpCMalloc, 0},
		{OpVMalloc, 1},
		{OpConstant, 2},
		{OpNoop, 3},
		{OpPopOp, 4},
		{OpLoadNull, 5},
		{OpLoadConstant, 6},
		{OpLoadName, 7},
		{OpLoadNameGlobal, 8},
		{OpLoadInt, 9},
		{OpLoadFloat, 10},
		{OpLoadChar, 11},
		{OpBinarySubscr, 12},
		{OpStoreSubscr, 13},
		{OpStoreSubscrInplace, 14},
		{OpStoreSubscrNopop, 15},
		{OpStoreName, 16},
		{OpStoreNameGlobal, 17},
		{OpStoreNameNopop, 18},
		{OpStoreNameGlobalNopop, 19},
		{OpBuildArr, 20},
		{OpBinaryOp, 21},
		{OpUnaryOp, 22},
		{OpJmp, 23},
		{OpJmpTrue, 24},
		{OpJmpFalse, 25},
		{OpPush, 26},
		{OpRet, 27},
		{OpCall, 28},
		{OpLoadGlobal, 29},
		{OpStoreGlobal, 30},
		{OpHalt, 31},
		{OpPrintk, 32},
	}
	for _, tt := range tests {
		if int(tt.op) != tt.code {
			t.Errorf("%s = %d, want %d", tt.op.Name(), int(tt.op), tt.code)
		}
	}
	if NumOpcodes != 33 {
		t.Errorf("NumOpcodes = %d, want 33", NumOpcodes)
	}
}

func TestOpcodeNameRoundTrip(t *testing.T) {
	for op, info := range opcodeTable {
		got, ok := OpcodeByName(info.Name)
		if !ok {
			t.Errorf("OpcodeByName(%q) not found", info.Name)
			continue
		}
		if got != op {
			t.Errorf("OpcodeByName(%q) = %d, want %d", info.Name, int(got), int(op))
		}
	}
	if _, ok := OpcodeByName("FROBNICATE"); ok {
		t.Error("OpcodeByName accepted an unknown mnemonic")
	}
}

func TestOpcodeOperandArity(t *testing.T) {
	withOperand := []Opcode{
		OpCMalloc, OpVMalloc, OpLoadConstant, OpLoadName, OpLoadNameGlobal,
		OpLoadInt, OpLoadFloat, OpLoadChar, OpStoreName, OpStoreNameGlobal,
		OpStoreNameNopop, OpStoreNameGlobalNopop, OpBuildArr, OpBinaryOp,
		OpUnaryOp, OpJmp, OpJmpTrue, OpJmpFalse, OpCall,
	}
	without := []Opcode{
		OpConstant, OpNoop, OpPopOp, OpLoadNull, OpBinarySubscr,
		OpStoreSubscr, OpStoreSubscrInplace, OpStoreSubscrNopop,
		OpPush, OpRet, OpLoadGlobal, OpStoreGlobal, OpHalt, OpPrintk,
	}
	for _, op := range withOperand {
		if !op.HasOperand() {
			t.Errorf("%s should take an operand", op)
		}
	}
	for _, op := range without {
		if op.HasOperand() {
			t.Errorf("%s should not take an operand", op)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(200)
	if op.Valid() {
		t.Error("Opcode(200) reported valid")
	}
	if op.Name() != "UNKNOWN_200" {
		t.Errorf("Name() = %q, want UNKNOWN_200", op.Name())
	}
}
