// Package lexer tokenizes unitscript source text into a token stream with
// indentation-aware INDENT/DEDENT tokens.
package lexer

import (
	"fmt"
	"strings"

	"github.com/scriptcore/unitscript/token"
)

// SyntaxError is a fatal lexical error with source position.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: syntax error: %s", e.Line, e.Column, e.Message)
}

// tabWidth is the column a tab expands to the next multiple of (spec.md §9
// Open Question: tabs accepted, expanding to the next multiple of 8).
const tabWidth = 8

// Lexer turns source text into a flat token.Token stream, handling Python-
// style block structure via an indent stack.
type Lexer struct {
	src  []rune
	pos  int // index of current rune
	line int
	col  int // 1-based column of current rune

	indents        []int // indent stack, always starts at [0]
	atLineStart    bool  // true when about to measure a new logical line's indent
	pendingDedents int   // extra DEDENTs still owed from the last measureIndent call
	done           bool  // true while the last token emitted is a NEWLINE (real or synthetic)
}

// New creates a Lexer over source.
func New(source string) *Lexer {
	return &Lexer{
		src:         []rune(source),
		line:        1,
		col:         1,
		indents:     []int{0},
		atLineStart: true,
	}
}

// Tokenize runs the lexer to completion, returning every token including
// the trailing EOF, or the first SyntaxError encountered.
func Tokenize(source string) ([]token.Token, error) {
	l := New(source)
	var tokens []token.Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) advance() rune {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.src)
}

// NextToken returns the next token in the stream.
func (l *Lexer) NextToken() (token.Token, error) {
	if l.pendingDedents > 0 {
		l.pendingDedents--
		return token.Token{Kind: token.DEDENT, Line: l.line, Column: l.col}, nil
	}

	if l.atLineStart {
		tok, produced, err := l.measureIndent()
		if err != nil {
			return token.Token{}, err
		}
		if produced {
			return tok, nil
		}
	}

	l.skipHorizontalSpaceAndComments()

	if l.atEOF() {
		return l.handleEOF()
	}

	ch := l.peek()

	if ch == '\n' {
		l.advance()
		l.atLineStart = true
		l.done = true // a real NEWLINE was already emitted; handleEOF must not synthesize another
		return token.Token{Kind: token.NEWLINE, Line: l.line - 1, Column: l.col}, nil
	}

	l.done = false // a real token follows the last NEWLINE
	line, col := l.line, l.col

	if ch == '"' || ch == '\'' {
		return l.readString(line, col)
	}

	if isDigit(ch) {
		return l.readNumber(line, col)
	}

	if isIdentStart(ch) {
		return l.readIdentifier(line, col)
	}

	return l.readOperator(line, col)
}

// measureIndent is called at the start of a logical line. It measures
// leading whitespace, compares to the indent stack, and emits INDENT,
// DEDENT(s), or nothing. Blank and comment-only lines are skipped
// entirely and never affect the indent stack or emit layout tokens,
// preserving line numbers for later tokens (spec.md §4.1 line tracking).
func (l *Lexer) measureIndent() (token.Token, bool, error) {
	for {
		width := 0
		for !l.atEOF() {
			ch := l.peek()
			if ch == ' ' {
				width++
				l.advance()
			} else if ch == '\t' {
				width += tabWidth - (width % tabWidth)
				l.advance()
			} else {
				break
			}
		}

		if l.atEOF() {
			l.atLineStart = false
			return token.Token{}, false, nil
		}

		ch := l.peek()
		if ch == '\n' {
			// blank line: consume and retry without touching the indent stack
			l.advance()
			continue
		}
		if ch == '#' {
			l.skipComment()
			if l.atEOF() {
				l.atLineStart = false
				return token.Token{}, false, nil
			}
			l.advance() // consume the newline after the comment
			continue
		}

		l.atLineStart = false
		top := l.indents[len(l.indents)-1]

		switch {
		case width > top:
			l.indents = append(l.indents, width)
			return token.Token{Kind: token.INDENT, Line: l.line, Column: 1}, true, nil

		case width == top:
			return token.Token{}, false, nil

		default:
			popped := 0
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				popped++
			}
			if l.indents[len(l.indents)-1] != width {
				return token.Token{}, false, &SyntaxError{
					Line: l.line, Column: 1,
					Message: fmt.Sprintf("unindent does not match any outer indentation level (got %d)", width),
				}
			}
			l.pendingDedents = popped - 1
			return token.Token{Kind: token.DEDENT, Line: l.line, Column: 1}, true, nil
		}
	}
}

// handleEOF flushes one DEDENT per remaining indent level, then synthesizes
// the trailing NEWLINE (if the source didn't end with one), then EOF
// forever after (spec.md §4.1: end-of-file DEDENT-flush + NEWLINE + EOF).
func (l *Lexer) handleEOF() (token.Token, error) {
	if len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		return token.Token{Kind: token.DEDENT, Line: l.line, Column: l.col}, nil
	}
	if !l.done {
		l.done = true
		return token.Token{Kind: token.NEWLINE, Line: l.line, Column: l.col}, nil
	}
	return token.Token{Kind: token.EOF, Line: l.line, Column: l.col}, nil
}

func (l *Lexer) skipHorizontalSpaceAndComments() {
	for !l.atEOF() {
		ch := l.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		if ch == '#' {
			l.skipComment()
			continue
		}
		break
	}
}

func (l *Lexer) skipComment() {
	for !l.atEOF() && l.peek() != '\n' {
		l.advance()
	}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func (l *Lexer) readIdentifier(line, col int) (token.Token, error) {
	start := l.pos
	for !l.atEOF() && isIdentPart(l.peek()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])
	return token.Token{Kind: token.LookupIdent(text), Value: text, Line: line, Column: col}, nil
}

func (l *Lexer) readNumber(line, col int) (token.Token, error) {
	start := l.pos
	for !l.atEOF() && isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance()
		for !l.atEOF() && isDigit(l.peek()) {
			l.advance()
		}
	}
	return token.Token{Kind: token.NUMBER, Value: string(l.src[start:l.pos]), Line: line, Column: col}, nil
}

func (l *Lexer) readString(line, col int) (token.Token, error) {
	quote := l.advance()
	var sb strings.Builder
	for {
		if l.atEOF() {
			return token.Token{}, &SyntaxError{Line: line, Column: col, Message: "unterminated string literal"}
		}
		ch := l.peek()
		if ch == quote {
			l.advance()
			break
		}
		if ch == '\n' {
			return token.Token{}, &SyntaxError{Line: line, Column: col, Message: "unterminated string literal"}
		}
		if ch == '\\' {
			l.advance()
			if l.atEOF() {
				return token.Token{}, &SyntaxError{Line: line, Column: col, Message: "unterminated string literal"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\':
				sb.WriteRune('\\')
			case '"':
				sb.WriteRune('"')
			case '\'':
				sb.WriteRune('\'')
			default:
				return token.Token{}, &SyntaxError{
					Line: l.line, Column: l.col,
					Message: fmt.Sprintf("unknown escape sequence '\\%c'", esc),
				}
			}
			continue
		}
		sb.WriteRune(l.advance())
	}
	return token.Token{Kind: token.STRING, Value: sb.String(), Line: line, Column: col}, nil
}

// operators lists multi-character operators before their single-character
// prefixes so the greedy match always wins (spec.md §4.1).
var operators = []struct {
	text string
	kind token.Kind
}{
	{"**", token.DSTAR},
	{"//", token.DSLASH},
	{"==", token.EQ},
	{"!=", token.NEQ},
	{"<=", token.LE},
	{">=", token.GE},
	{"+=", token.PLUSEQ},
	{"-=", token.MINUSEQ},
	{"*=", token.STAREQ},
	{"/=", token.SLASHEQ},
	{"+", token.PLUS},
	{"-", token.MINUS},
	{"*", token.STAR},
	{"/", token.SLASH},
	{"%", token.PERCENT},
	{"=", token.ASSIGN},
	{"<", token.LT},
	{">", token.GT},
	{"(", token.LPAREN},
	{")", token.RPAREN},
	{"[", token.LBRACKET},
	{"]", token.RBRACKET},
	{",", token.COMMA},
	{":", token.COLON},
	{".", token.DOT},
}

func (l *Lexer) readOperator(line, col int) (token.Token, error) {
	for _, op := range operators {
		if l.matches(op.text) {
			for range op.text {
				l.advance()
			}
			return token.Token{Kind: op.kind, Value: op.text, Line: line, Column: col}, nil
		}
	}
	ch := l.advance()
	return token.Token{}, &SyntaxError{Line: line, Column: col, Message: fmt.Sprintf("unexpected character %q", ch)}
}

func (l *Lexer) matches(text string) bool {
	for i, want := range text {
		if l.peekAt(i) != want {
			return false
		}
	}
	return true
}
