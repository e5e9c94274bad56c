// Package parser implements a recursive-descent parser over the lexer's
// token stream, producing an ast.Program.
package parser

import (
	"strconv"

	"github.com/scriptcore/unitscript/ast"
	"github.com/scriptcore/unitscript/diag"
	"github.com/scriptcore/unitscript/invariant"
	"github.com/scriptcore/unitscript/lexer"
	"github.com/scriptcore/unitscript/token"
)

// Parse lexes and parses source into a Program. It returns the first fatal
// error encountered (a *diag.Error of Kind SyntaxError) with no recovery -
// per spec.md §4.2 there is exactly one error policy: fail fast.
func Parse(source string) (*ast.Program, error) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		if se, ok := err.(*lexer.SyntaxError); ok {
			return nil, diag.New(diag.SyntaxError, source, se.Line, se.Column, "%s", se.Message)
		}
		return nil, err
	}

	p := &parser{tokens: tokens, source: source}
	return p.parseProgram()
}

type parser struct {
	tokens []token.Token
	pos    int
	source string
}

func (p *parser) cur() token.Token {
	invariant.Precondition(p.pos < len(p.tokens), "parser position in range")
	return p.tokens[p.pos]
}

func (p *parser) peekKind(offset int) token.Kind {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return token.EOF
	}
	return p.tokens[i].Kind
}

func (p *parser) at(k token.Kind) bool {
	return p.cur().Kind == k
}

func (p *parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token.Token, format string, args ...interface{}) error {
	return diag.New(diag.SyntaxError, p.source, t.Line, t.Column, format, args...)
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, p.fail(p.cur(), "expected %s, got %s", k, p.cur())
	}
	return p.advance(), nil
}

// skipNewlines consumes any run of blank NEWLINE tokens, which appear
// between statements and at the top of blocks.
func (p *parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

func (p *parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	p.skipNewlines()
	for !p.at(token.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
		p.skipNewlines()
	}
	return prog, nil
}

// parseBlock parses `INDENT statement+ DEDENT`.
func (p *parser) parseBlock() ([]ast.Statement, error) {
	p.skipNewlines()
	if _, err := p.expect(token.INDENT); err != nil {
		return nil, err
	}
	var stmts []ast.Statement
	p.skipNewlines()
	for !p.at(token.DEDENT) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	if _, err := p.expect(token.DEDENT); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseStatement() (ast.Statement, error) {
	switch p.cur().Kind {
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.DEF:
		return p.parseFunctionDef()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		t := p.advance()
		return &ast.Break{Position: posOf(t)}, p.endStatement()
	case token.CONTINUE:
		t := p.advance()
		return &ast.Continue{Position: posOf(t)}, p.endStatement()
	default:
		return p.parseAssignOrExpr()
	}
}

// endStatement consumes the statement-terminating NEWLINE, if present; the
// final statement before EOF or DEDENT may lack one.
func (p *parser) endStatement() error {
	if p.at(token.NEWLINE) {
		p.advance()
		return nil
	}
	if p.at(token.EOF) || p.at(token.DEDENT) {
		return nil
	}
	return p.fail(p.cur(), "expected end of statement, got %s", p.cur())
}

func (p *parser) parseIf() (ast.Statement, error) {
	start := p.cur()
	p.advance() // IF
	var branches []ast.IfBranch

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	branches = append(branches, ast.IfBranch{Cond: cond, Body: body})

	for p.at(token.ELIF) {
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		branches = append(branches, ast.IfBranch{Cond: c, Body: b})
	}

	if p.at(token.ELSE) {
		p.advance()
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		branches = append(branches, ast.IfBranch{Cond: nil, Body: b})
	}

	return &ast.If{Position: posOf(start), Branches: branches}, nil
}

func (p *parser) parseWhile() (ast.Statement, error) {
	start := p.advance() // WHILE
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.While{Position: posOf(start), Cond: cond, Body: body}, nil
}

func (p *parser) parseFor() (ast.Statement, error) {
	start := p.advance() // FOR
	varTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.For{Position: posOf(start), Var: varTok.Value, Iter: iter, Body: body}, nil
}

func (p *parser) parseFunctionDef() (ast.Statement, error) {
	start := p.advance() // DEF
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []string
	if !p.at(token.RPAREN) {
		for {
			pt, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			params = append(params, pt.Value)
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COLON); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDef{Position: posOf(start), Name: nameTok.Value, Params: params, Body: body}, nil
}

func (p *parser) parseReturn() (ast.Statement, error) {
	start := p.advance() // RETURN
	if p.at(token.NEWLINE) || p.at(token.EOF) || p.at(token.DEDENT) {
		return &ast.Return{Position: posOf(start)}, p.endStatement()
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Return{Position: posOf(start), Value: val}, p.endStatement()
}

var augOps = map[token.Kind]bool{
	token.PLUSEQ: true, token.MINUSEQ: true, token.STAREQ: true, token.SLASHEQ: true,
}

func (p *parser) parseAssignOrExpr() (ast.Statement, error) {
	start := p.cur()
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.at(token.ASSIGN) {
		p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Position: posOf(start), Target: expr, Value: rhs}, p.endStatement()
	}

	if augOps[p.cur().Kind] {
		op := p.advance().Kind
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AugAssign{Position: posOf(start), Target: expr, Op: op, Value: rhs}, p.endStatement()
	}

	return &ast.ExprStmt{Position: posOf(start), X: expr}, p.endStatement()
}

// ---- expressions, lowest to highest precedence ----
// or < and < not < comparison < additive < multiplicative < unary minus
// < power (right-assoc) < atom.

func (p *parser) parseExpr() (ast.Expression, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.OR) {
		t := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Logical{Position: posOf(t), Op: token.OR, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(token.AND) {
		t := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.Logical{Position: posOf(t), Op: token.AND, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expression, error) {
	if p.at(token.NOT) {
		t := p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Not{Position: posOf(t), X: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[token.Kind]bool{
	token.EQ: true, token.NEQ: true, token.LT: true, token.GT: true, token.LE: true, token.GE: true,
}

// Chained comparisons (a < b < c) are treated as ordinary left-associative
// binary Compare nodes, per spec.md §9's recommended choice.
func (p *parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for compareOps[p.cur().Kind] {
		t := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &ast.Compare{Position: posOf(t), Op: t.Kind, Left: left, Right: right}
	}
	return left, nil
}

var additiveOps = map[token.Kind]bool{token.PLUS: true, token.MINUS: true}

func (p *parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for additiveOps[p.cur().Kind] {
		t := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Position: posOf(t), Op: t.Kind, Left: left, Right: right}
	}
	return left, nil
}

var multiplicativeOps = map[token.Kind]bool{
	token.STAR: true, token.SLASH: true, token.DSLASH: true, token.PERCENT: true,
}

func (p *parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for multiplicativeOps[p.cur().Kind] {
		t := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Position: posOf(t), Op: t.Kind, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expression, error) {
	if p.at(token.MINUS) {
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Position: posOf(t), Op: token.MINUS, X: x}, nil
	}
	return p.parsePower()
}

// parsePower is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
func (p *parser) parsePower() (ast.Expression, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.at(token.DSTAR) {
		t := p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Position: posOf(t), Op: token.DSTAR, Left: base, Right: exp}, nil
	}
	return base, nil
}

// parsePostfix handles call/attr/index chains binding tighter than any
// binary operator: a.b(c)[d].
func (p *parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.DOT:
			t := p.advance()
			nameTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			expr = &ast.Attr{Position: posOf(t), Object: expr, Name: nameTok.Value}
		case token.LPAREN:
			t := p.advance()
			var args []ast.Expression
			if !p.at(token.RPAREN) {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.at(token.COMMA) {
						p.advance()
						continue
					}
					break
				}
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			expr = &ast.Call{Position: posOf(t), Callee: expr, Args: args}
		case token.LBRACKET:
			t := p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			expr = &ast.Index{Position: posOf(t), Container: expr, Key: key}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseAtom() (ast.Expression, error) {
	t := p.cur()
	switch t.Kind {
	case token.NUMBER:
		p.advance()
		v, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, p.fail(t, "invalid number literal %q", t.Value)
		}
		return &ast.Number{Position: posOf(t), Value: v}, nil
	case token.STRING:
		p.advance()
		return &ast.String{Position: posOf(t), Value: t.Value}, nil
	case token.TRUE:
		p.advance()
		return &ast.Bool{Position: posOf(t), Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.Bool{Position: posOf(t), Value: false}, nil
	case token.NONE:
		p.advance()
		return &ast.None{Position: posOf(t)}, nil
	case token.IDENT:
		p.advance()
		return &ast.Name{Position: posOf(t), Value: t.Value}, nil
	case token.LPAREN:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBRACKET:
		p.advance()
		var elems []ast.Expression
		if !p.at(token.RBRACKET) {
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}
		return &ast.List{Position: posOf(t), Elements: elems}, nil
	default:
		return nil, p.fail(t, "unexpected token %s", t)
	}
}

func posOf(t token.Token) ast.Position {
	return ast.Position{Line: t.Line, Column: t.Column}
}
