// Package vm implements the SLang stack-based virtual machine.
//
// A Machine executes a Program: a linear instruction stream decoded by the
// loader from the textual or obfuscated-binary record formats. Instructions
// manipulate refcounted Slot values on per-frame operand stacks, per-frame
// local variables, a shared global variable area, and a global operand
// stack that carries values between frames.
//
// Execution is single-threaded and synchronous: one instruction pointer,
// one active operand stack, no suspension points. The refcount discipline
// gives deterministic destruction without a tracing collector; the value
// graph is a DAG because arrays cannot nest.
package vm
