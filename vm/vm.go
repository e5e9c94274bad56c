package vm

import (
	"math"

	"github.com/scriptcore/unitscript/compiler"
	"github.com/scriptcore/unitscript/invariant"
)

// callFrame is an activation record for a language-level function call
// (spec.md §3 "call_frames: stack of {return_ip, saved_vars_snapshot,
// local_names}"). snapshot records which variable names existed before the
// call, so RETURN_VALUE can tell a pre-existing (global) binding the
// function mutated from a brand-new local/parameter binding it introduced
// - spec.md §9's documented single-scope limitation, implemented here as:
// keep the current value of every name present in snapshot, drop every
// name absent from it.
type callFrame struct {
	returnProgram *compiler.Program
	returnIP      int
	snapshot      map[string]Value
}

// VM is the stack-based bytecode interpreter (spec.md §4.4). It is
// single-threaded and deterministic; concurrency is the host's concern
// (spec.md §5).
type VM struct {
	host Host

	program        *compiler.Program // the Program Load was called with; root of Functions lookups from the top level
	currentProgram *compiler.Program // the Program ip currently indexes into
	ip             int
	stack          []Value
	vars           map[string]Value
	callFrames     []callFrame

	running bool
	paused  bool
	halted  bool
	err     *Fault

	// callJumped records, for the duration of one execCall, whether it
	// already repositioned ip (entering a language function, or leaving
	// it untouched for a host yield retry) so Step's trailing
	// `if !jumped { ip++ }` doesn't also advance past it.
	callJumped bool

	// hostYielded is set by execCall when the host answers a CALL with
	// yielded=true, so Run returns at once and the retry happens on the
	// next Run call.
	hostYielded bool
}

// New builds a VM bound to host, with no program loaded. Load must be
// called before Step/Run.
func New(host Host) *VM {
	invariant.NotNil(host, "host")
	return &VM{host: host}
}

// Load installs program and resets all state: ip to 0, stack and call
// frames cleared, vars reset to an empty map, running=true,
// paused=halted=false, error=nil. Calling Load again on an already-loaded
// VM (spec.md §8 "compiling then start()-ing the same source twice resets
// ip to 1 and clears stack") is exactly this reset.
func (m *VM) Load(program *compiler.Program) {
	invariant.NotNil(program, "program")
	invariant.Precondition(!program.Failed(), "Load must not be called on a Program with diagnostics")
	m.program = program
	m.currentProgram = program
	m.ip = 0
	m.stack = nil
	m.vars = map[string]Value{}
	m.callFrames = nil
	m.running = true
	m.paused = false
	m.halted = false
	m.err = nil
}

// SetEnvironment installs name->Value bindings into the VM's global vars,
// overwriting any existing entry of the same name (spec.md §6
// "environment injection").
func (m *VM) SetEnvironment(env map[string]Value) {
	for name, v := range env {
		m.vars[name] = v
	}
}

// Pause sets a flag causing subsequent Step calls to be a no-op until
// Resume is called.
func (m *VM) Pause() { m.paused = true }

// Resume clears a prior Pause.
func (m *VM) Resume() { m.paused = false }

// Stop retires the program: running=false, halted=true. State remains
// inspectable via GetState (spec.md §4.4 "does not clear state").
func (m *VM) Stop() {
	m.running = false
	m.halted = true
}

// State is the read-only snapshot GetState returns (spec.md §4.4).
type State struct {
	IP      int
	Stack   []Value
	Vars    map[string]Value
	Running bool
	Paused  bool
	Halted  bool
	Error   *Fault
}

// GetState returns a snapshot safe for the host to inspect or serialize
// (see host/snapshot) without aliasing the VM's live stack/vars.
func (m *VM) GetState() State {
	stackCopy := make([]Value, len(m.stack))
	copy(stackCopy, m.stack)
	varsCopy := make(map[string]Value, len(m.vars))
	for k, v := range m.vars {
		varsCopy[k] = v
	}
	return State{
		IP:      m.ip,
		Stack:   stackCopy,
		Vars:    varsCopy,
		Running: m.running,
		Paused:  m.paused,
		Halted:  m.halted,
		Error:   m.err,
	}
}

func (m *VM) push(v Value) { m.stack = append(m.stack, v) }

func (m *VM) pop() Value {
	invariant.Precondition(len(m.stack) > 0, "pop on empty stack")
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *VM) peek() Value {
	invariant.Precondition(len(m.stack) > 0, "peek on empty stack")
	return m.stack[len(m.stack)-1]
}

func (m *VM) fail(f *Fault) {
	m.err = f
	m.running = false
	m.halted = true
}

func (m *VM) currentLine() int {
	if m.ip < len(m.currentProgram.Code) {
		return m.currentProgram.Code[m.ip].Line
	}
	return 0
}

// Step executes exactly one instruction unless the VM is halted or
// paused; returns true iff the VM is still running after the step
// (spec.md §4.4 "step contract").
func (m *VM) Step() bool {
	if m.halted {
		return false
	}
	if m.paused {
		return m.running
	}

	instr := m.currentProgram.Code[m.ip]
	jumped := false

	switch instr.Op {
	case compiler.LOAD_CONST:
		m.push(constToValue(m.currentProgram.Constants[instr.IntArg()]))

	case compiler.LOAD_VAR:
		name := instr.StringArg()
		v, ok := m.vars[name]
		if !ok {
			m.fail(newFault(RuntimeNameError, m.currentLine(), "%s is not defined", name))
			return false
		}
		m.push(v)

	case compiler.STORE_VAR:
		m.vars[instr.StringArg()] = m.pop()

	case compiler.LOAD_ATTR:
		obj := m.pop()
		name := instr.StringArg()
		v, err := m.host.GetAttr(obj, name)
		if err != nil {
			m.fail(newFault(RuntimeAttributeError, m.currentLine(), "%s", err.Error()))
			return false
		}
		m.push(v)

	case compiler.BUILD_LIST:
		n := instr.IntArg()
		elems := make([]Value, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = m.pop()
		}
		m.push(List(elems))

	case compiler.GET_INDEX:
		key := m.pop()
		container := m.pop()
		if container.Kind != KindList {
			m.fail(newFault(RuntimeTypeError, m.currentLine(), "%s is not subscriptable", container.Kind))
			return false
		}
		idx, ok := numberOf(key)
		if !ok {
			m.fail(newFault(RuntimeTypeError, m.currentLine(), "list index must be a number, got %s", key.Kind))
			return false
		}
		i := int(idx)
		if i < 0 || i >= len(container.List) {
			m.fail(newFault(RuntimeIndexError, m.currentLine(), "list index %d out of range (len %d)", i, len(container.List)))
			return false
		}
		m.push(container.List[i])

	case compiler.BINARY_ADD, compiler.BINARY_SUB, compiler.BINARY_MUL, compiler.BINARY_DIV,
		compiler.BINARY_FLOORDIV, compiler.BINARY_MOD, compiler.BINARY_POW:
		if !m.execBinaryOp(instr.Op) {
			return false
		}

	case compiler.COMPARE_EQ:
		b, a := m.pop(), m.pop()
		m.push(Bool(Equal(a, b)))
	case compiler.COMPARE_NE:
		b, a := m.pop(), m.pop()
		m.push(Bool(!Equal(a, b)))
	case compiler.COMPARE_LT, compiler.COMPARE_GT, compiler.COMPARE_LE, compiler.COMPARE_GE:
		if !m.execCompareOp(instr.Op) {
			return false
		}

	case compiler.UNARY_NEG:
		v := m.pop()
		n, ok := numberOf(v)
		if !ok {
			m.fail(newFault(RuntimeTypeError, m.currentLine(), "bad operand type for unary -: %s", v.Kind))
			return false
		}
		m.push(Number(-n))

	case compiler.UNARY_NOT:
		v := m.pop()
		m.push(Bool(!Truthy(v)))

	case compiler.JUMP:
		m.ip = instr.IntArg()
		jumped = true

	case compiler.POP_JUMP_IF_FALSE:
		v := m.pop()
		if !Truthy(v) {
			m.ip = instr.IntArg()
			jumped = true
		}

	case compiler.JUMP_IF_FALSE:
		if !Truthy(m.peek()) {
			m.ip = instr.IntArg()
			jumped = true
		}

	case compiler.JUMP_IF_TRUE:
		if Truthy(m.peek()) {
			m.ip = instr.IntArg()
			jumped = true
		}

	case compiler.GET_ITER:
		v := m.pop()
		if v.Kind != KindList {
			m.fail(newFault(RuntimeTypeError, m.currentLine(), "%s is not iterable", v.Kind))
			return false
		}
		m.push(Value{Kind: kindIterator, List: v.List, Num: 0})

	case compiler.FOR_ITER:
		it := m.peek()
		invariant.Precondition(it.Kind == kindIterator, "FOR_ITER expects an iterator on top of stack")
		idx := int(it.Num)
		if idx < len(it.List) {
			elem := it.List[idx]
			m.stack[len(m.stack)-1] = Value{Kind: kindIterator, List: it.List, Num: float64(idx + 1)}
			m.push(elem)
		} else {
			m.pop()
			m.ip = instr.IntArg()
			jumped = true
		}

	case compiler.CALL:
		if !m.execCall(instr.IntArg()) {
			return false
		}
		jumped = m.callJumped

	case compiler.MAKE_FUNCTION:
		fnProgram := m.currentProgram.Functions[instr.IntArg()]
		m.push(FunctionValue(&Function{Program: fnProgram, Params: fnProgram.Params}))

	case compiler.RETURN_VALUE:
		m.execReturn()
		jumped = true

	case compiler.NOP:
		// no-op

	case compiler.POP:
		m.pop()

	case compiler.HALT:
		m.running = false
		m.halted = true
		return false

	default:
		invariant.Invariant(false, "unhandled opcode %s", instr.Op)
	}

	if !jumped {
		m.ip++
	}
	if m.ip >= len(m.currentProgram.Code) {
		m.running = false
		m.halted = true
	}
	return m.running
}

// Run executes up to budget steps, short-circuiting on halt or error, and
// returns the still_running status (spec.md §4.4/§5 "budgets are per
// call"). A host call that yields ends the Run after that step, which
// counts against the budget.
func (m *VM) Run(budget int) bool {
	for i := 0; i < budget; i++ {
		m.hostYielded = false
		if !m.Step() {
			break
		}
		if m.hostYielded {
			break
		}
	}
	return m.running
}

func constToValue(c interface{}) Value {
	switch v := c.(type) {
	case float64:
		return Number(v)
	case string:
		return String(v)
	case bool:
		return Bool(v)
	case nil:
		return None
	default:
		invariant.Invariant(false, "unknown constant type %T", c)
		return None
	}
}

func (m *VM) execBinaryOp(op compiler.Op) bool {
	b, a := m.pop(), m.pop()

	if op == compiler.BINARY_ADD && a.Kind == KindString && b.Kind == KindString {
		m.push(String(a.Str + b.Str))
		return true
	}

	an, aok := numberOf(a)
	bn, bok := numberOf(b)
	if !aok || !bok {
		m.fail(newFault(RuntimeTypeError, m.currentLine(), "unsupported operand types for %s: %s and %s", op, a.Kind, b.Kind))
		return false
	}

	var result float64
	switch op {
	case compiler.BINARY_ADD:
		result = an + bn
	case compiler.BINARY_SUB:
		result = an - bn
	case compiler.BINARY_MUL:
		result = an * bn
	case compiler.BINARY_DIV:
		result = an / bn // IEEE: a/0 -> +-Inf, 0/0 -> NaN, never an error (spec.md §4.4)
	case compiler.BINARY_FLOORDIV:
		result = math.Floor(an / bn)
	case compiler.BINARY_MOD:
		result = math.Mod(an, bn)
	case compiler.BINARY_POW:
		result = math.Pow(an, bn)
	}
	m.push(Number(result))
	return true
}

func (m *VM) execCompareOp(op compiler.Op) bool {
	b, a := m.pop(), m.pop()

	if a.Kind == KindString && b.Kind == KindString {
		m.push(Bool(stringCompare(op, a.Str, b.Str)))
		return true
	}

	an, aok := numberOf(a)
	bn, bok := numberOf(b)
	if !aok || !bok {
		m.fail(newFault(RuntimeTypeError, m.currentLine(), "unsupported operand types for %s: %s and %s", op, a.Kind, b.Kind))
		return false
	}
	m.push(Bool(numberCompare(op, an, bn)))
	return true
}

func numberCompare(op compiler.Op, a, b float64) bool {
	switch op {
	case compiler.COMPARE_LT:
		return a < b
	case compiler.COMPARE_GT:
		return a > b
	case compiler.COMPARE_LE:
		return a <= b
	case compiler.COMPARE_GE:
		return a >= b
	default:
		return false
	}
}

func stringCompare(op compiler.Op, a, b string) bool {
	switch op {
	case compiler.COMPARE_LT:
		return a < b
	case compiler.COMPARE_GT:
		return a > b
	case compiler.COMPARE_LE:
		return a <= b
	case compiler.COMPARE_GE:
		return a >= b
	default:
		return false
	}
}

func (m *VM) execCall(argc int) bool {
	m.callJumped = false
	args := make([]Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = m.pop()
	}
	calleeIdx := len(m.stack) - 1
	callee := m.stack[calleeIdx]

	switch callee.Kind {
	case KindFunction:
		m.stack = m.stack[:calleeIdx] // drop callee; args already popped
		m.callFrames = append(m.callFrames, callFrame{
			returnProgram: m.currentProgram,
			returnIP:      m.ip + 1,
			snapshot:      snapshotVars(m.vars),
		})
		for i, name := range callee.Fn.Params {
			if i < len(args) {
				m.vars[name] = args[i]
			} else {
				m.vars[name] = None
			}
		}
		m.currentProgram = callee.Fn.Program
		m.ip = 0
		m.callJumped = true
		return true

	case KindHostObject:
		result, yielded, err := m.host.Call(callee, args)
		if err != nil {
			m.fail(newFault(RuntimeTypeError, m.currentLine(), "%s", err.Error()))
			return false
		}
		if yielded {
			// callee is still on the stack (only args were popped above);
			// push args back so the stack matches its pre-CALL state
			// exactly, and the same CALL is re-attempted on the next
			// run(budget) call.
			m.stack = append(m.stack, args...)
			m.callJumped = true // don't advance ip past this CALL
			m.hostYielded = true
			return true
		}
		m.stack = m.stack[:calleeIdx]
		m.push(result)
		return true

	default:
		m.fail(newFault(RuntimeTypeError, m.currentLine(), "%s is not callable", callee.Kind))
		return false
	}
}

func (m *VM) execReturn() {
	retval := m.pop()
	if len(m.callFrames) == 0 {
		// A `return` outside any function: nothing to return to, so it
		// ends the program (spec.md leaves this case undocumented).
		m.running = false
		m.halted = true
		return
	}
	frame := m.callFrames[len(m.callFrames)-1]
	m.callFrames = m.callFrames[:len(m.callFrames)-1]

	restored := make(map[string]Value, len(frame.snapshot))
	for k, v := range m.vars {
		if _, existed := frame.snapshot[k]; existed {
			restored[k] = v
		}
	}
	m.vars = restored
	m.currentProgram = frame.returnProgram
	m.ip = frame.returnIP
	m.push(retval)
}

func snapshotVars(vars map[string]Value) map[string]Value {
	snap := make(map[string]Value, len(vars))
	for k, v := range vars {
		snap[k] = v
	}
	return snap
}
