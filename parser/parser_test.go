package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/ast"
	"github.com/scriptcore/unitscript/token"
)

func TestParse_SimpleAssign(t *testing.T) {
	prog, err := Parse("x = 1 + 2\n")
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)

	assign, ok := prog.Statements[0].(*ast.Assign)
	require.True(t, ok)
	name, ok := assign.Target.(*ast.Name)
	require.True(t, ok)
	assert.Equal(t, "x", name.Value)

	bin, ok := assign.Value.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, token.PLUS, bin.Op)
}

func TestParse_OperatorPrecedence(t *testing.T) {
	prog, err := Parse("x = 2 + 3 * 4\n")
	require.NoError(t, err)
	assign := prog.Statements[0].(*ast.Assign)
	top := assign.Value.(*ast.BinaryOp)
	require.Equal(t, token.PLUS, top.Op)
	_, leftIsNumber := top.Left.(*ast.Number)
	require.True(t, leftIsNumber)
	mul, ok := top.Right.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, token.STAR, mul.Op)
}

func TestParse_PowerIsRightAssociative(t *testing.T) {
	prog, err := Parse("x = 2 ** 3 ** 2\n")
	require.NoError(t, err)
	assign := prog.Statements[0].(*ast.Assign)
	top := assign.Value.(*ast.BinaryOp)
	require.Equal(t, token.DSTAR, top.Op)
	_, leftIsNumber := top.Left.(*ast.Number)
	require.True(t, leftIsNumber, "2 must be the immediate left operand of the outer **")
	inner, ok := top.Right.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, token.DSTAR, inner.Op)
}

func TestParse_ChainedComparisonIsLeftAssociativeBinary(t *testing.T) {
	prog, err := Parse("x = a < b < c\n")
	require.NoError(t, err)
	assign := prog.Statements[0].(*ast.Assign)
	outer := assign.Value.(*ast.Compare)
	assert.Equal(t, token.LT, outer.Op)
	_, rightIsName := outer.Right.(*ast.Name)
	require.True(t, rightIsName)
	inner, ok := outer.Left.(*ast.Compare)
	require.True(t, ok, "a < b < c must nest as (a < b) < c")
	assert.Equal(t, token.LT, inner.Op)
}

func TestParse_IfElifElse(t *testing.T) {
	src := "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n"
	prog, err := Parse(src)
	require.NoError(t, err)
	ifStmt := prog.Statements[0].(*ast.If)
	require.Len(t, ifStmt.Branches, 3)
	require.NotNil(t, ifStmt.Branches[0].Cond)
	require.NotNil(t, ifStmt.Branches[1].Cond)
	require.Nil(t, ifStmt.Branches[2].Cond)
}

func TestParse_WhileLoop(t *testing.T) {
	src := "while x < 10:\n    x = x + 1\n"
	prog, err := Parse(src)
	require.NoError(t, err)
	w := prog.Statements[0].(*ast.While)
	require.Len(t, w.Body, 1)
}

func TestParse_ForLoop(t *testing.T) {
	src := "for i in [1, 2, 3]:\n    total = total + i\n"
	prog, err := Parse(src)
	require.NoError(t, err)
	f := prog.Statements[0].(*ast.For)
	assert.Equal(t, "i", f.Var)
	list, ok := f.Iter.(*ast.List)
	require.True(t, ok)
	assert.Len(t, list.Elements, 3)
}

func TestParse_FunctionDefAndCall(t *testing.T) {
	src := "def factorial(n):\n    if n <= 1:\n        return 1\n    return n * factorial(n - 1)\nx = factorial(5)\n"
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
	def := prog.Statements[0].(*ast.FunctionDef)
	assert.Equal(t, "factorial", def.Name)
	assert.Equal(t, []string{"n"}, def.Params)
}

func TestParse_AttrAndIndexChain(t *testing.T) {
	prog, err := Parse("x = self.scan()[0].hp\n")
	require.NoError(t, err)
	assign := prog.Statements[0].(*ast.Assign)
	attr, ok := assign.Value.(*ast.Attr)
	require.True(t, ok)
	assert.Equal(t, "hp", attr.Name)
	idx, ok := attr.Object.(*ast.Index)
	require.True(t, ok)
	_, callOK := idx.Container.(*ast.Call)
	require.True(t, callOK)
}

func TestParse_AugAssign(t *testing.T) {
	prog, err := Parse("x += 1\n")
	require.NoError(t, err)
	aug, ok := prog.Statements[0].(*ast.AugAssign)
	require.True(t, ok)
	assert.Equal(t, token.PLUSEQ, aug.Op)
}

func TestParse_BreakContinueAndShortCircuit(t *testing.T) {
	src := "while True:\n    if x == 3:\n        continue\n    if x > 5 and x < 9:\n        break\n"
	prog, err := Parse(src)
	require.NoError(t, err)
	w := prog.Statements[0].(*ast.While)
	require.Len(t, w.Body, 2)
	second := w.Body[1].(*ast.If)
	logical, ok := second.Branches[0].Cond.(*ast.Logical)
	require.True(t, ok, "x > 5 and x < 9 must parse as a short-circuit Logical node")
	assert.Equal(t, token.AND, logical.Op)
}

func TestParse_UnexpectedTokenIsFatalSyntaxError(t *testing.T) {
	_, err := Parse("x = = 1\n")
	require.Error(t, err)
}

func TestParse_MissingColonIsFatalSyntaxError(t *testing.T) {
	_, err := Parse("if x\n    y = 1\n")
	require.Error(t, err)
}
