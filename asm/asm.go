// Package asm converts between the textual SLang assembly format and the
// obfuscated binary image format.
//
// Assembly source is a whitespace-separated stream of records, one
// instruction per record: an address label, an opcode mnemonic, and the
// immediate operand when the opcode takes one. CONSTANT records carry their
// kind, value, and refcount through to the image verbatim. The binary form
// replaces mnemonics with numeric opcode values, prepends the magic, and
// XORs the whole stream with a repeating key.
package asm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/chazu/svm/vm"
)

// Assemble reads textual assembly from r and returns the obfuscated binary
// image. An empty key leaves the image in the clear.
func Assemble(r io.Reader, key string) ([]byte, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var buf bytes.Buffer
	buf.WriteString(vm.Magic)
	buf.WriteByte(' ')

	for sc.Scan() {
		addr, err := strconv.Atoi(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("malformed address %q", sc.Text())
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("unexpected end of input after address %d", addr)
		}
		name := sc.Text()
		op, ok := vm.OpcodeByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown opcode name %q", name)
		}
		fmt.Fprintf(&buf, "%d %d ", addr, int(op))

		switch {
		case op == vm.OpConstant:
			// kind, value, refcount pass through verbatim
			for i := 0; i < 3; i++ {
				if !sc.Scan() {
					return nil, fmt.Errorf("truncated CONSTANT record at address %d", addr)
				}
				buf.WriteString(sc.Text())
				buf.WriteByte(' ')
			}
		case op.HasOperand():
			operand, err := scanOperand(sc, op)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&buf, "%d ", operand)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return vm.Obfuscate(buf.Bytes(), key), nil
}

// Disassemble decrypts a binary image, verifies its magic, and writes the
// textual form to w, one record per line.
func Disassemble(data []byte, key string, w io.Writer) error {
	body, err := vm.StripMagic(vm.Obfuscate(data, key))
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Split(bufio.ScanWords)

	for sc.Scan() {
		addr, err := strconv.Atoi(sc.Text())
		if err != nil {
			return fmt.Errorf("malformed address %q", sc.Text())
		}
		if !sc.Scan() {
			return fmt.Errorf("unexpected end of image after address %d", addr)
		}
		code, err := strconv.Atoi(sc.Text())
		if err != nil {
			return fmt.Errorf("malformed opcode %q", sc.Text())
		}
		op := vm.Opcode(code)
		if !op.Valid() {
			return fmt.Errorf("unknown opcode %d at address %d", code, addr)
		}

		switch {
		case op == vm.OpConstant:
			rest := make([]string, 3)
			for i := range rest {
				if !sc.Scan() {
					return fmt.Errorf("truncated CONSTANT record at address %d", addr)
				}
				rest[i] = sc.Text()
			}
			fmt.Fprintf(w, "%d %s %s %s %s\n", addr, op, rest[0], rest[1], rest[2])
		case op.HasOperand():
			operand, err := scanOperand(sc, op)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d %s %d\n", addr, op, operand)
		default:
			fmt.Fprintf(w, "%d %s\n", addr, op)
		}
	}
	return sc.Err()
}

func scanOperand(sc *bufio.Scanner, op vm.Opcode) (int64, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("missing operand for %s", op)
	}
	operand, err := strconv.ParseInt(sc.Text(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed operand %q for %s", sc.Text(), op)
	}
	return operand, nil
}
