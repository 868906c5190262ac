package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var machineLog = commonlog.GetLogger("svm.machine")

// ---------------------------------------------------------------------------
// Machine: the SLang virtual machine
// ---------------------------------------------------------------------------

// Machine executes a program image. It owns the frame chain, the global
// operand stack, and the instruction pointer. A machine is single-threaded:
// exactly one instruction executes at a time and nothing suspends.
type Machine struct {
	prog      *Program
	frame     *Frame // top of the frame chain, nil at global scope
	globalOps operandStack
	ip        int

	verbose  bool
	profiler *Profiler

	// Out receives PRINTK output. Defaults to stdout.
	Out io.Writer
}

// NewMachine creates a machine with an empty program image.
func NewMachine() *Machine {
	return NewMachineWith(NewProgram())
}

// NewMachineWith creates a machine that executes an existing program image,
// e.g. one rebuilt from a snapshot.
func NewMachineWith(p *Program) *Machine {
	return &Machine{
		prog:      p,
		globalOps: newOperandStack(),
		ip:        -1,
		Out:       os.Stdout,
	}
}

// SetVerbose enables the per-instruction execution trace.
func (m *Machine) SetVerbose(v bool) {
	m.verbose = v
}

// AttachProfiler starts recording per-opcode execution counts into p.
func (m *Machine) AttachProfiler(p *Profiler) {
	m.profiler = p
}

// Program returns the machine's program image.
func (m *Machine) Program() *Program {
	return m.prog
}

// AddInstruction appends a decoded instruction to the program image.
func (m *Machine) AddInstruction(ins Instruction) {
	m.prog.Append(ins)
}

// FrameDepth returns the number of frames currently linked.
func (m *Machine) FrameDepth() int {
	n := 0
	for f := m.frame; f != nil; f = f.caller {
		n++
	}
	return n
}

// GlobalOperandDepth returns the height of the global operand stack.
func (m *Machine) GlobalOperandDepth() int {
	return m.globalOps.depth()
}

// currentOps returns the active operand stack: the top frame's if one
// exists, the global stack otherwise.
func (m *Machine) currentOps() *operandStack {
	if m.frame != nil {
		return &m.frame.operands
	}
	return &m.globalOps
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// Dispatch runs the fetch/decode/execute loop from the current instruction
// pointer until a HALT executes or the instruction stream is exhausted. The
// active operand stack is bound once on entry and re-bound whenever the
// frame chain changes (PUSH, RET).
//
// Programmer errors — operand stack under/overflow, out-of-range subscript,
// a jump or call to an unmapped address — abort with a panic carrying a
// diagnostic; no in-band error value exists at this level.
func (m *Machine) Dispatch() {
	ops := m.currentOps()
	for {
		next := m.ip + 1
		if next >= len(m.prog.Instructions) {
			return
		}
		m.ip = next
		ins := m.prog.Instructions[m.ip]

		if m.profiler != nil {
			m.profiler.Record(ins.Op)
		}
		if m.verbose {
			if ins.Op.HasOperand() {
				machineLog.Infof("#%d $ %s %d", ins.Addr, ins.Op, ins.Operand)
			} else {
				machineLog.Infof("#%d $ %s", ins.Addr, ins.Op)
			}
		}

		switch ins.Op {
		case OpNoop:
			// nothing

		case OpVMalloc:
			n := int(ins.Operand)
			if m.frame == nil {
				m.prog.AllocGlobals(n)
			} else {
				m.frame.locals = make([]*Slot, n)
			}

		case OpCMalloc:
			// Loader-only in practice; executing it sizes the pool.
			m.prog.AllocConstants(int(ins.Operand))

		case OpConstant:
			// Constants are installed by the loader before dispatch; the
			// record carries no meaning at execution time.

		case OpPopOp:
			ops.pop().Release()

		case OpLoadNull:
			ops.push(Null.Retain())
			if m.verbose {
				machineLog.Info("NULL value (type: void) was loaded to operand stack")
			}

		case OpLoadInt:
			ops.push(NewInt(ins.Operand))
			if m.verbose {
				machineLog.Infof("Int value %d was loaded to operand stack", ins.Operand)
			}

		case OpLoadFloat:
			ops.push(NewFloat(float64(ins.Operand)))
			if m.verbose {
				machineLog.Infof("Float value %d was loaded to operand stack", ins.Operand)
			}

		case OpLoadChar:
			ops.push(NewChar(byte(ins.Operand)))
			if m.verbose {
				machineLog.Infof("Char value %d was loaded to operand stack", ins.Operand)
			}

		case OpLoadConstant:
			c := m.constantAt(int(ins.Operand))
			ops.push(c.Retain())

		case OpLoadName:
			v := m.localAt(int(ins.Operand))
			ops.push(v.Retain())

		case OpLoadNameGlobal:
			v := m.globalAt(int(ins.Operand))
			ops.push(v.Retain())

		case OpStoreName, OpStoreNameNopop:
			cell := m.localCell(int(ins.Operand))
			if *cell != nil {
				(*cell).Release()
			}
			if ins.Op == OpStoreName {
				*cell = ops.pop()
			} else {
				*cell = ops.top().Retain()
			}
			if m.verbose {
				machineLog.Infof("Stored %s to name %d in locals", *cell, ins.Operand)
			}

		case OpStoreNameGlobal, OpStoreNameGlobalNopop:
			cell := m.globalCell(int(ins.Operand))
			if *cell != nil {
				(*cell).Release()
			}
			if ins.Op == OpStoreNameGlobal {
				*cell = ops.pop()
			} else {
				*cell = ops.top().Retain()
			}
			if m.verbose {
				machineLog.Infof("Stored %s to name %d in globals", *cell, ins.Operand)
			}

		case OpBuildArr:
			length := ops.pop()
			if length.Kind != KindInt {
				panic(fmt.Sprintf("BUILD_ARR length is %s, want int", length.Kind))
			}
			n := int(length.Int)
			length.Release()
			arr, err := NewArray(n, Kind(ins.Operand))
			if err != nil {
				panic(fmt.Sprintf("BUILD_ARR: %v", err))
			}
			ops.push(arr)
			if m.verbose {
				machineLog.Infof("Built array %d[%d]", ins.Operand, n)
			}

		case OpBinarySubscr:
			idx := ops.pop()
			arr := ops.pop()
			elem := subscript(arr, idx)
			ops.push(elem.Retain())
			idx.Release()
			arr.Release()

		case OpStoreSubscr, OpStoreSubscrInplace, OpStoreSubscrNopop:
			val := ops.pop()
			idx := ops.pop()
			arr := ops.top()
			elem := subscript(arr, idx)
			switch arr.ElemKind {
			case KindInt:
				elem.Int = val.Int
			case KindFloat:
				elem.Float = val.Float
			case KindChar:
				elem.Char = val.Char
			}
			if m.verbose {
				machineLog.Infof("Changed element with index %d of the array to %s", idx.Int, val)
			}
			idx.Release()
			switch ins.Op {
			case OpStoreSubscr:
				ops.pop().Release() // the array
				val.Release()
			case OpStoreSubscrNopop:
				ops.pop().Release() // the array; the written value stays
				ops.push(val)
			case OpStoreSubscrInplace:
				val.Release() // the array stays
			}

		case OpJmp:
			m.jump(int(ins.Operand))

		case OpJmpTrue:
			v := ops.pop()
			if v.Int != 0 {
				m.jump(int(ins.Operand))
			}
			v.Release()

		case OpJmpFalse:
			v := ops.pop()
			if v.Int == 0 {
				m.jump(int(ins.Operand))
			}
			v.Release()

		case OpUnaryOp:
			m.unaryOp(ops, int(ins.Operand))

		case OpBinaryOp:
			right := ops.pop()
			left := ops.pop()
			res := binaryOp(int(ins.Operand), left, right)
			ops.push(res)
			if m.verbose {
				machineLog.Infof("Pop %s and %s, calculate with binary operator %d. Result %s is pushed into the stack",
					left, right, ins.Operand, res)
			}
			left.Release()
			right.Release()

		case OpPush:
			m.frame = newFrame(m.frame)
			ops = m.currentOps()
			if m.verbose {
				machineLog.Info("Frame is pushed into the control stack")
			}

		case OpCall:
			if m.frame == nil {
				panic("CALL with no frame pushed")
			}
			m.frame.returnIP = m.ip + 1
			if m.verbose {
				machineLog.Infof("Call subroutine defined at address %d", ins.Operand)
			}
			m.jump(int(ins.Operand))

		case OpRet:
			f := m.frame
			if f == nil {
				panic("RET with no frame pushed")
			}
			m.ip = f.returnIP - 1
			ret := f.operands.pop()
			if f.caller == nil {
				m.globalOps.push(ret)
			} else {
				f.caller.operands.push(ret)
			}
			if m.verbose {
				machineLog.Infof("Frame is poped from the control stack with return value %s", ret)
			}
			f.release()
			m.frame = f.caller
			ops = m.currentOps()

		case OpStoreGlobal:
			v := ops.pop()
			m.globalOps.push(v)
			if m.verbose {
				machineLog.Infof("Pushed local value %s into global operands", v)
			}

		case OpLoadGlobal:
			v := m.globalOps.pop()
			ops.push(v)
			if m.verbose {
				machineLog.Infof("Pushed global value %s into local operands", v)
			}

		case OpPrintk:
			v := ops.pop()
			fmt.Fprintln(m.Out, v)
			v.Release()

		case OpHalt:
			if m.verbose {
				machineLog.Info("Program received HALT signal, terminating...")
			}
			return

		default:
			panic(fmt.Sprintf("unknown opcode %d at address %d", int(ins.Op), ins.Addr))
		}
	}
}

// jump redirects the instruction pointer to the instruction labelled addr.
func (m *Machine) jump(addr int) {
	idx, ok := m.prog.IndexOf(addr)
	if !ok {
		panic(fmt.Sprintf("jump to unmapped address %d", addr))
	}
	m.ip = idx - 1
}

// unaryOp executes UNARY_OP. Operators 2 and 3 mutate the popped slot in
// place and push nothing; the mutation is visible through every alias of
// the slot.
func (m *Machine) unaryOp(ops *operandStack, op int) {
	v := ops.pop()
	switch op {
	case 0, 1:
		res := unaryResult(op, v)
		ops.push(res)
		if m.verbose {
			machineLog.Infof("Pop %s, calculate with unary operator %d. Result %s is pushed into the stack", v, op, res)
		}
		v.Release()
	case 2:
		v.Int++
		v.Release()
	case 3:
		v.Int--
		v.Release()
	default:
		panic(fmt.Sprintf("unknown unary operator %d", op))
	}
}

// subscript bounds-checks an array access and returns the element slot.
func subscript(arr, idx *Slot) *Slot {
	if arr.Kind != KindArray {
		panic(fmt.Sprintf("subscript of %s, want array", arr.Kind))
	}
	i := int(idx.Int)
	if i < 0 || i >= len(arr.Elems) {
		panic(fmt.Sprintf("subscript %d outside array[%d]", i, len(arr.Elems)))
	}
	return arr.Elems[i]
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// Close releases everything the machine still holds: the frame chain (in
// case of abnormal termination), the global operand stack, the global
// variables, and the constant pool. Each holder is released exactly once.
// Close leaves the loaded instructions and the instruction pointer in place:
// a later Dispatch resumes after the last instruction that executed.
func (m *Machine) Close() {
	for m.frame != nil {
		f := m.frame
		f.release()
		m.frame = f.caller
	}
	m.globalOps.drain()
	for i, g := range m.prog.Globals {
		if g != nil {
			g.Release()
			m.prog.Globals[i] = nil
		}
	}
	for i, c := range m.prog.Constants {
		if c != nil {
			c.Release()
			m.prog.Constants[i] = nil
		}
	}
}

// ---------------------------------------------------------------------------
// Scope access helpers
// ---------------------------------------------------------------------------

func (m *Machine) constantAt(i int) *Slot {
	if i < 0 || i >= len(m.prog.Constants) || m.prog.Constants[i] == nil {
		panic(fmt.Sprintf("load of missing constant %d", i))
	}
	return m.prog.Constants[i]
}

func (m *Machine) localAt(i int) *Slot {
	cell := m.localCell(i)
	if *cell == nil {
		panic(fmt.Sprintf("load of unbound local %d", i))
	}
	return *cell
}

func (m *Machine) globalAt(i int) *Slot {
	cell := m.globalCell(i)
	if *cell == nil {
		panic(fmt.Sprintf("load of unbound global %d", i))
	}
	return *cell
}

func (m *Machine) localCell(i int) **Slot {
	if m.frame == nil {
		panic("local variable access at global scope")
	}
	if i < 0 || i >= len(m.frame.locals) {
		panic(fmt.Sprintf("local index %d outside %d allocated", i, len(m.frame.locals)))
	}
	return &m.frame.locals[i]
}

func (m *Machine) globalCell(i int) **Slot {
	if i < 0 || i >= len(m.prog.Globals) {
		panic(fmt.Sprintf("global index %d outside %d allocated", i, len(m.prog.Globals)))
	}
	return &m.prog.Globals[i]
}
