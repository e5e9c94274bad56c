// Package diag defines the structured compile-time diagnostic shared by
// the parser and compiler, with a Rust/Clang-style caret snippet.
package diag

import (
	"fmt"
	"strings"
)

// Kind partitions compile-time diagnostics by phase (spec.md §7: two
// taxonomies, disjoint by phase - these three are the compile-time one).
type Kind int

const (
	SyntaxError Kind = iota
	NameError
	AttributeError
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case NameError:
		return "NameError"
	case AttributeError:
		return "AttributeError"
	default:
		return "Error"
	}
}

// Error is a single compile-time diagnostic: kind, message, and source
// position, with the offending source line rendered for display.
type Error struct {
	Kind    Kind
	Message string
	Line    int
	Column  int
	Source  string // full source text, for the caret snippet; may be empty
}

func (e *Error) Error() string {
	snippet := e.snippet()
	if snippet == "" {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s\n%s", e.Kind, e.Message, snippet)
}

func (e *Error) snippet() string {
	if e.Source == "" || e.Line <= 0 {
		return ""
	}
	lines := strings.Split(e.Source, "\n")
	if e.Line > len(lines) {
		return ""
	}
	lineContent := lines[e.Line-1]

	var b strings.Builder
	fmt.Fprintf(&b, "  --> %d:%d\n", e.Line, e.Column)
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", e.Line, lineContent)
	b.WriteString("   | ")
	if e.Column > 0 && e.Column <= len(lineContent)+1 {
		b.WriteString(strings.Repeat(" ", e.Column-1) + "^")
	}
	return b.String()
}

// New builds an Error without a suggestion tail.
func New(kind Kind, source string, line, column int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  column,
		Source:  source,
	}
}

// WithSuggestion appends a "did you mean '<name>'?" tail to the message,
// following the fuzzy-match convention used for AttributeError diagnostics.
func (e *Error) WithSuggestion(name string) *Error {
	e.Message = fmt.Sprintf("%s; did you mean '%s'?", e.Message, name)
	return e
}
