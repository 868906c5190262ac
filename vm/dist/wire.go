// Package dist defines the CBOR interchange form of a decoded program
// image, used to snapshot assembled programs for tooling.
package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/svm/vm"
)

// cborEncMode uses canonical mode so equal images encode byte-identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is the wire form of a decoded program: the instruction sequence
// plus the constant pool descriptors. The globals area is not captured; it
// is allocated by the program itself when it runs.
type Image struct {
	Instructions []Instruction `cbor:"1,keyasint"`
	Constants    []Constant    `cbor:"2,keyasint"`
}

// Instruction mirrors vm.Instruction in wire form.
type Instruction struct {
	Addr    int   `cbor:"1,keyasint"`
	Op      int   `cbor:"2,keyasint"`
	Operand int64 `cbor:"3,keyasint"`
}

// Constant describes one constant pool entry.
type Constant struct {
	Index int     `cbor:"1,keyasint"`
	Kind  int     `cbor:"2,keyasint"`
	Int   int64   `cbor:"3,keyasint,omitempty"`
	Float float64 `cbor:"4,keyasint,omitempty"`
	Char  byte    `cbor:"5,keyasint,omitempty"`
	Refs  int32   `cbor:"6,keyasint"`
}

// FromProgram captures a program image in wire form.
func FromProgram(p *vm.Program) *Image {
	img := &Image{}
	for _, ins := range p.Instructions {
		img.Instructions = append(img.Instructions, Instruction{
			Addr:    ins.Addr,
			Op:      int(ins.Op),
			Operand: ins.Operand,
		})
	}
	for i, c := range p.Constants {
		if c == nil {
			continue
		}
		wc := Constant{Index: i, Kind: int(c.Kind), Refs: c.Refs()}
		switch c.Kind {
		case vm.KindInt:
			wc.Int = c.Int
		case vm.KindFloat:
			wc.Float = c.Float
		case vm.KindChar:
			wc.Char = c.Char
		}
		img.Constants = append(img.Constants, wc)
	}
	return img
}

// Program rebuilds a decoded program image from the wire form.
func (img *Image) Program() (*vm.Program, error) {
	p := vm.NewProgram()
	for _, ins := range img.Instructions {
		op := vm.Opcode(ins.Op)
		if !op.Valid() {
			return nil, fmt.Errorf("dist: unknown opcode %d at address %d", ins.Op, ins.Addr)
		}
		p.Append(vm.Instruction{Addr: ins.Addr, Op: op, Operand: ins.Operand})
	}
	if len(img.Constants) > 0 {
		size := 0
		for _, c := range img.Constants {
			if c.Index >= size {
				size = c.Index + 1
			}
		}
		p.AllocConstants(size)
		for _, c := range img.Constants {
			var s *vm.Slot
			switch vm.Kind(c.Kind) {
			case vm.KindInt:
				s = vm.NewInt(c.Int)
			case vm.KindFloat:
				s = vm.NewFloat(c.Float)
			case vm.KindChar:
				s = vm.NewChar(c.Char)
			default:
				return nil, fmt.Errorf("dist: constant %d has kind %d, want int, float, or char", c.Index, c.Kind)
			}
			if err := p.InstallConstant(c.Index, s, c.Refs); err != nil {
				return nil, fmt.Errorf("dist: %w", err)
			}
		}
	}
	return p, nil
}

// MarshalImage serializes an Image to CBOR bytes.
func MarshalImage(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalImage deserializes an Image from CBOR bytes.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("dist: unmarshal image: %w", err)
	}
	return &img, nil
}
