package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/tliron/commonlog"
)

var loaderLog = commonlog.GetLogger("svm.loader")

// ---------------------------------------------------------------------------
// Loader: record stream -> program image
// ---------------------------------------------------------------------------

// LoadBinary feeds a decrypted binary record stream (numeric opcodes) into
// the machine's program image. The stream must already have its magic
// stripped.
func LoadBinary(r io.Reader, m *Machine) error {
	return load(r, m, false, false)
}

// LoadText feeds a textual record stream (mnemonic opcodes) into the
// machine. With interact set, a bare -1 address dispatches the accumulated
// instructions and loading resumes afterwards.
func LoadText(r io.Reader, m *Machine, interact bool) error {
	return load(r, m, true, interact)
}

func load(r io.Reader, m *Machine, mnemonic, interact bool) error {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	for sc.Scan() {
		addr, err := strconv.Atoi(sc.Text())
		if err != nil {
			return fmt.Errorf("malformed address %q", sc.Text())
		}
		if interact && addr == -1 {
			m.Dispatch()
			continue
		}

		op, err := scanOpcode(sc, mnemonic)
		if err != nil {
			return err
		}

		switch op {
		case OpCMalloc:
			n, err := scanInt(sc, "CMALLOC size")
			if err != nil {
				return err
			}
			m.Program().AllocConstants(int(n))
			continue

		case OpConstant:
			if err := loadConstant(sc, m, addr); err != nil {
				return err
			}
			continue
		}

		ins := Instruction{Addr: addr, Op: op}
		if op.HasOperand() {
			operand, err := scanInt(sc, op.Name()+" operand")
			if err != nil {
				return err
			}
			ins.Operand = operand
		}
		m.AddInstruction(ins)
	}
	return sc.Err()
}

// loadConstant consumes a CONSTANT record: kind, value (in the kind's
// natural lexical form, char as integer code), and the seed refcount. The
// record's address is the pool index.
func loadConstant(sc *bufio.Scanner, m *Machine, idx int) error {
	kind, err := scanInt(sc, "CONSTANT kind")
	if err != nil {
		return err
	}
	if !sc.Scan() {
		return fmt.Errorf("unexpected end of stream reading CONSTANT value")
	}
	raw := sc.Text()

	var s *Slot
	switch Kind(kind) {
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed int constant %q", raw)
		}
		s = NewInt(v)
	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("malformed float constant %q", raw)
		}
		s = NewFloat(v)
	case KindChar:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed char constant %q", raw)
		}
		s = NewChar(byte(v))
	default:
		return fmt.Errorf("constant kind %d is not int, float, or char", kind)
	}

	refs, err := scanInt(sc, "CONSTANT refcount")
	if err != nil {
		s.Release()
		return err
	}
	if err := m.Program().InstallConstant(idx, s, int32(refs)); err != nil {
		s.Release()
		return err
	}
	loaderLog.Debugf("installed constant %d = %s (refs %d)", idx, s, refs)
	return nil
}

func scanOpcode(sc *bufio.Scanner, mnemonic bool) (Opcode, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("unexpected end of stream reading opcode")
	}
	if mnemonic {
		op, ok := OpcodeByName(sc.Text())
		if !ok {
			return 0, fmt.Errorf("unknown opcode name %q", sc.Text())
		}
		return op, nil
	}
	code, err := strconv.Atoi(sc.Text())
	if err != nil {
		return 0, fmt.Errorf("malformed opcode %q", sc.Text())
	}
	op := Opcode(code)
	if !op.Valid() {
		return 0, fmt.Errorf("unknown opcode %d", code)
	}
	return op, nil
}

func scanInt(sc *bufio.Scanner, what string) (int64, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("unexpected end of stream reading %s", what)
	}
	v, err := strconv.ParseInt(sc.Text(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s %q", what, sc.Text())
	}
	return v, nil
}
