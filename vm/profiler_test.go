package vm

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestProfilerCounts(t *testing.T) {
	m := NewMachine()
	m.Out = &bytes.Buffer{}
	prof := NewProfiler()
	m.AttachProfiler(prof)
	for _, i := range []Instruction{
		{0, OpLoadInt, 1},
		{1, OpLoadInt, 2},
		{2, OpBinaryOp, 0},
		{3, OpPrintk, 0},
		{4, OpHalt, 0},
	} {
		m.AddInstruction(i)
	}
	m.Dispatch()
	m.Close()

	if got := prof.Count(OpLoadInt); got != 2 {
		t.Errorf("Count(LOAD_INT) = %d, want 2", got)
	}
	if got := prof.Count(OpBinaryOp); got != 1 {
		t.Errorf("Count(BINARY_OP) = %d, want 1", got)
	}
	if got := prof.Count(OpJmp); got != 0 {
		t.Errorf("Count(JMP) = %d, want 0", got)
	}
	if got := prof.Total(); got != 5 {
		t.Errorf("Total = %d, want 5", got)
	}
}

func TestSaveAndLoadProfile(t *testing.T) {
	prof := NewProfiler()
	prof.Record(OpLoadInt)
	prof.Record(OpLoadInt)
	prof.Record(OpHalt)

	path := filepath.Join(t.TempDir(), "profile.db")
	if err := SaveProfile(path, prof); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	counts, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if counts["LOAD_INT"] != 2 || counts["HALT"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	// A second save accumulates into the same rows.
	if err := SaveProfile(path, prof); err != nil {
		t.Fatalf("SaveProfile again: %v", err)
	}
	counts, err = LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile again: %v", err)
	}
	if counts["LOAD_INT"] != 4 {
		t.Errorf("accumulated LOAD_INT = %d, want 4", counts["LOAD_INT"])
	}
}
