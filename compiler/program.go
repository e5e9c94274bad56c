package compiler

import (
	"fmt"

	"github.com/scriptcore/unitscript/diag"
	"github.com/scriptcore/unitscript/invariant"
)

// Instruction is one bytecode instruction: an opcode, an operand whose
// meaning depends on the opcode (constant index, variable/attribute name,
// jump target, or arity), and the source line it was lowered from.
type Instruction struct {
	Op   Op
	Arg  interface{} // int (const index / jump target / arity) or string (name)
	Line int
}

// IntArg returns Arg as an int, panicking if the instruction's Arg is not
// an int - a compiler bug, since callers only call this on opcodes whose
// Arg is documented as an index/target/arity.
func (i Instruction) IntArg() int {
	n, ok := i.Arg.(int)
	invariant.Precondition(ok, "%s operand must be int, got %T", i.Op, i.Arg)
	return n
}

// StringArg returns Arg as a string, panicking if Arg is not a string.
func (i Instruction) StringArg() string {
	s, ok := i.Arg.(string)
	invariant.Precondition(ok, "%s operand must be string, got %T", i.Op, i.Arg)
	return s
}

// String renders the debugger textual form `<line>: <op> <arg?>` (spec.md §6).
func (i Instruction) String() string {
	if i.Arg == nil {
		return fmt.Sprintf("%d: %s", i.Line, i.Op)
	}
	return fmt.Sprintf("%d: %s %v", i.Line, i.Op, i.Arg)
}

// Program is a compiled unit: its linear code, the constants it indexes
// into, the nested function Programs it can MAKE_FUNCTION, and any
// diagnostics produced while compiling it. A Program with non-empty
// Diagnostics has empty Code (spec.md §4.3: "on fatal diagnostic, code is
// empty/absent").
type Program struct {
	Code        []Instruction
	Constants   []interface{} // literal values: float64, string, bool, or nil (None)
	Functions   []*Program
	Diagnostics []*diag.Error

	// Params names the function's parameters, in call order. Empty for
	// the top-level Program; set only on a Program reached via
	// MAKE_FUNCTION (compiler.compileFunctionDef).
	Params []string
}

// Failed reports whether compilation produced any diagnostics.
func (p *Program) Failed() bool {
	return len(p.Diagnostics) > 0
}

// Validate checks the structural invariants spec.md §3/§8 require of every
// successfully compiled Program: HALT terminates the code, and every jump
// target lands within [0, len(Code)] (0-based; spec.md's "len(code)+1" in
// 1-based terms).
func (p *Program) Validate() error {
	if len(p.Code) == 0 {
		return fmt.Errorf("program has no code")
	}
	last := p.Code[len(p.Code)-1]
	if last.Op != HALT {
		return fmt.Errorf("program does not end in HALT")
	}
	for idx, instr := range p.Code {
		if !jumpOps[instr.Op] {
			continue
		}
		target := instr.IntArg()
		if target < 0 || target > len(p.Code) {
			return fmt.Errorf("instruction %d (%s): jump target %d out of range [0,%d]", idx, instr.Op, target, len(p.Code))
		}
	}
	for _, fn := range p.Functions {
		if err := fn.Validate(); err != nil {
			return fmt.Errorf("nested function program invalid: %w", err)
		}
	}
	return nil
}

// Disassemble renders every instruction using its debugger textual form,
// one per line.
func (p *Program) Disassemble() string {
	out := ""
	for _, instr := range p.Code {
		out += instr.String() + "\n"
	}
	return out
}
