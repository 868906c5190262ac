package vm

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Kind: the slot type tag
// ---------------------------------------------------------------------------

// Kind tags the payload carried by a Slot. The numeric values are part of
// the wire format: BUILD_ARR immediates and CONSTANT records use them.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindChar
	KindVoid
	KindArray
)

// String returns the lowercase name used in rendered values.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindVoid:
		return "void"
	case KindArray:
		return "array"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ---------------------------------------------------------------------------
// Slot: the tagged, refcounted value
// ---------------------------------------------------------------------------

// Slot is a tagged value carried on an operand stack, in a variable cell, or
// inside an array. Every slot except the Null singleton is refcounted: it is
// created with one reference, Retain adds a holder, Release drops one and
// destroys the slot when the count reaches zero. Destroying an array
// releases each element.
type Slot struct {
	Kind     Kind
	Int      int64
	Float    float64
	Char     byte
	Elems    []*Slot // array payload; shared by every holder of this slot
	ElemKind Kind

	refs int32
}

// Null is the singleton void value. It is never destroyed; Retain and
// Release on it are no-ops.
var Null = &Slot{Kind: KindVoid}

// liveSlots counts currently allocated slots (the Null singleton excluded).
// The dispatcher's ownership discipline keeps this at zero after a program
// has been torn down; tests assert on it.
var liveSlots atomic.Int64

// LiveSlots returns the number of slots currently alive.
func LiveSlots() int64 {
	return liveSlots.Load()
}

// NewInt creates an Int slot with one reference.
func NewInt(v int64) *Slot {
	liveSlots.Add(1)
	return &Slot{Kind: KindInt, Int: v, refs: 1}
}

// NewBool creates an Int slot holding 1 for true and 0 for false.
func NewBool(b bool) *Slot {
	if b {
		return NewInt(1)
	}
	return NewInt(0)
}

// NewFloat creates a Float slot with one reference.
func NewFloat(v float64) *Slot {
	liveSlots.Add(1)
	return &Slot{Kind: KindFloat, Float: v, refs: 1}
}

// NewChar creates a Char slot with one reference.
func NewChar(c byte) *Slot {
	liveSlots.Add(1)
	return &Slot{Kind: KindChar, Char: c, refs: 1}
}

// NewArray creates an Array slot of the given length whose elements are
// fresh zero values of elem. Arrays cannot nest: elem must be one of
// Int, Float, or Char.
func NewArray(length int, elem Kind) (*Slot, error) {
	if elem != KindInt && elem != KindFloat && elem != KindChar {
		return nil, fmt.Errorf("array element kind must be int, float, or char, got %s", elem)
	}
	if length < 0 {
		return nil, fmt.Errorf("negative array length %d", length)
	}
	elems := make([]*Slot, length)
	for i := range elems {
		switch elem {
		case KindInt:
			elems[i] = NewInt(0)
		case KindFloat:
			elems[i] = NewFloat(0)
		case KindChar:
			elems[i] = NewChar(0)
		}
	}
	liveSlots.Add(1)
	return &Slot{Kind: KindArray, Elems: elems, ElemKind: elem, refs: 1}, nil
}

// Retain adds a holder to the slot.
func (s *Slot) Retain() *Slot {
	if s == Null {
		return s
	}
	s.refs++
	return s
}

// Release drops a holder. When the last holder is gone the slot is
// destroyed; destroying an array releases every element. Releasing an
// already-destroyed slot is a programmer error and panics.
func (s *Slot) Release() {
	if s == Null {
		return
	}
	if s.refs <= 0 {
		panic(fmt.Sprintf("release of freed slot %s", s))
	}
	s.refs--
	if s.refs == 0 {
		if s.Kind == KindArray {
			for _, e := range s.Elems {
				e.Release()
			}
			s.Elems = nil
		}
		liveSlots.Add(-1)
	}
}

// Refs returns the current reference count.
func (s *Slot) Refs() int32 {
	return s.refs
}

// String renders the slot in the debug form printed by PRINTK:
// N(int), X(float), C(char), array[N], or (null).
func (s *Slot) String() string {
	switch s.Kind {
	case KindInt:
		return strconv.FormatInt(s.Int, 10) + "(int)"
	case KindFloat:
		return strconv.FormatFloat(s.Float, 'g', -1, 64) + "(float)"
	case KindChar:
		return string(s.Char) + "(char)"
	case KindArray:
		return fmt.Sprintf("array[%d]", len(s.Elems))
	case KindVoid:
		return "(null)"
	}
	return fmt.Sprintf("(bad kind %d)", s.Kind)
}
