// Package vm implements the stack-based bytecode interpreter: the tagged
// Value taxonomy, the host-value protocol (Host interface), and the
// stepwise VM state machine.
package vm

import (
	"fmt"

	"github.com/scriptcore/unitscript/compiler"
)

// Kind tags a runtime Value (spec.md §3 "Value taxonomy (runtime)").
type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindString
	KindBool
	KindList
	KindHostObject
	KindFunction

	// kindIterator is not part of the language-visible Value taxonomy
	// (spec.md §3 lists only Number/String/Bool/None/List/HostObject/
	// Function) - it is the VM's own operand-stack representation of a
	// GET_ITER result, reusing Value's List/Num fields (remaining
	// elements, next index) so FOR_ITER can pop/push it like any other
	// stack slot. Never constructed by compiled code, never exposed to a
	// host, never compared with Equal.
	kindIterator
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindBool:
		return "Bool"
	case KindList:
		return "List"
	case KindHostObject:
		return "HostObject"
	case KindFunction:
		return "Function"
	default:
		return "Unknown"
	}
}

// Function is a Value's payload when Kind == KindFunction: a reference to
// a nested compiled Program plus the parameter names CALL binds arguments
// to positionally.
type Function struct {
	Program *compiler.Program
	Params  []string
}

// Value is the VM's single runtime representation, tagged by Kind. Only
// the field matching Kind is meaningful; the others are zero.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	List []Value
	Host interface{} // opaque handle; identity and semantics are the host's
	Fn   *Function
}

// None is the language's null value.
var None = Value{Kind: KindNone}

// Number builds a Number Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// String builds a String Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool builds a Bool Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List builds a List Value from elements, copying the slice header (not
// the elements) - ownership of the backing array transfers to the VM,
// matching spec.md §5's "ownership transfers to the VM upon push".
func List(elements []Value) Value { return Value{Kind: KindList, List: elements} }

// HostObject builds an opaque HostObject Value wrapping handle, whose
// attribute/call semantics are defined entirely by the Host implementation
// passed to vm.New - the VM itself never interprets handle.
func HostObject(handle interface{}) Value { return Value{Kind: KindHostObject, Host: handle} }

// FunctionValue builds a Function Value.
func FunctionValue(fn *Function) Value { return Value{Kind: KindFunction, Fn: fn} }

// Truthy implements spec.md §6's truthiness rule: Number 0/0.0, empty
// String, empty List, and None are false; Bool passes through as itself;
// everything else (non-empty String/List, any HostObject, any Function,
// non-zero Number) is true.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindNone:
		return false
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	default:
		return true
	}
}

// Equal reports value equality per the language's == operator: same Kind
// and same payload; Lists compare elementwise; HostObjects compare by
// handle identity (==, which requires handle to be a comparable type).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNone:
		return true
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindHostObject:
		return a.Host == b.Host
	case KindFunction:
		return a.Fn == b.Fn
	default:
		return false
	}
}

// numberOf coerces Bool to 0/1 at the operator boundary (Open Question
// decision #2, DESIGN.md) and returns the Value's numeric payload
// otherwise; ok is false for operand kinds arithmetic cannot act on
// (String, List, None, HostObject, Function), letting the caller raise
// TypeError.
func numberOf(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindList:
		return fmt.Sprintf("%v", v.List)
	case KindHostObject:
		return fmt.Sprintf("<host %v>", v.Host)
	case KindFunction:
		return "<function>"
	default:
		return "<unknown>"
	}
}
