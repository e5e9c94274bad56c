package vm

import "fmt"

// FaultKind partitions runtime errors (spec.md §7's second, runtime
// taxonomy - disjoint from diag.Kind's compile-time one).
type FaultKind int

const (
	RuntimeNameError FaultKind = iota
	RuntimeAttributeError
	RuntimeTypeError
	RuntimeIndexError
)

func (k FaultKind) String() string {
	switch k {
	case RuntimeNameError:
		return "NameError"
	case RuntimeAttributeError:
		return "AttributeError"
	case RuntimeTypeError:
		return "TypeError"
	case RuntimeIndexError:
		return "IndexError"
	default:
		return "Error"
	}
}

// Fault is a runtime error: it halts the VM (spec.md §7's post-error
// invariant) but is never raised as a language-level exception - there is
// no try/except in this language.
type Fault struct {
	Kind    FaultKind
	Message string
	Line    int
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s (line %d)", f.Kind, f.Message, f.Line)
}

func newFault(kind FaultKind, line int, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line}
}
