package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/diag"
)

func compileOK(t *testing.T, source string) *Program {
	t.Helper()
	prog := Compile(source, "", nil)
	require.False(t, prog.Failed(), "unexpected diagnostics: %v", prog.Diagnostics)
	require.NoError(t, prog.Validate())
	return prog
}

func TestCompile_SimpleArithmeticEndsInHalt(t *testing.T) {
	prog := compileOK(t, "x = 1 + 2 * 3\n")
	require.NotEmpty(t, prog.Code)
	assert.Equal(t, HALT, prog.Code[len(prog.Code)-1].Op)
}

func TestCompile_WhileLoopJumpTargetsInRange(t *testing.T) {
	prog := compileOK(t, "x = 0\nwhile x < 10:\n    x = x + 1\n")
	for i, instr := range prog.Code {
		if !jumpOps[instr.Op] {
			continue
		}
		target := instr.IntArg()
		assert.True(t, target >= 0 && target <= len(prog.Code),
			"instruction %d (%s) target %d out of range", i, instr.Op, target)
	}
}

func TestCompile_ForLoopSumsList(t *testing.T) {
	prog := compileOK(t, "total = 0\nfor i in [1, 2, 3]:\n    total = total + i\n")
	var sawGetIter, sawForIter bool
	for _, instr := range prog.Code {
		switch instr.Op {
		case GET_ITER:
			sawGetIter = true
		case FOR_ITER:
			sawForIter = true
		}
	}
	assert.True(t, sawGetIter)
	assert.True(t, sawForIter)
}

func TestCompile_BreakInsideForLoopPopsIteratorFirst(t *testing.T) {
	prog := compileOK(t, "for i in [1, 2, 3]:\n    if i == 2:\n        break\n")
	var breakJumpIdx int = -1
	for i, instr := range prog.Code {
		if instr.Op == JUMP && i > 0 && prog.Code[i-1].Op == POP {
			breakJumpIdx = i
		}
	}
	assert.GreaterOrEqual(t, breakJumpIdx, 0, "break must emit POP immediately before its JUMP")
}

func TestCompile_BreakOutsideLoopIsSyntaxError(t *testing.T) {
	prog := Compile("break\n", "", nil)
	require.True(t, prog.Failed())
	assert.Equal(t, diag.SyntaxError, prog.Diagnostics[0].Kind)
}

func TestCompile_ContinueOutsideLoopIsSyntaxError(t *testing.T) {
	prog := Compile("continue\n", "", nil)
	require.True(t, prog.Failed())
	assert.Equal(t, diag.SyntaxError, prog.Diagnostics[0].Kind)
}

func TestCompile_UndefinedNameIsNameError(t *testing.T) {
	prog := Compile("x = y + 1\n", "", nil)
	require.True(t, prog.Failed())
	assert.Equal(t, diag.NameError, prog.Diagnostics[0].Kind)
	assert.Contains(t, prog.Diagnostics[0].Message, "y")
}

func TestCompile_UnknownAttributeSuggestsClosestMatch(t *testing.T) {
	prog := Compile("self.forw()\n", TypeBot, nil)
	require.True(t, prog.Failed())
	assert.Equal(t, diag.AttributeError, prog.Diagnostics[0].Kind)
	assert.Contains(t, prog.Diagnostics[0].Message, "forward")
}

func TestCompile_KnownAttributeOnSelfCompiles(t *testing.T) {
	prog := Compile("self.forward()\n", TypeBot, nil)
	require.False(t, prog.Failed(), "unexpected diagnostics: %v", prog.Diagnostics)
	require.NoError(t, prog.Validate())
	var sawCall bool
	for _, instr := range prog.Code {
		if instr.Op == CALL {
			sawCall = true
		}
	}
	assert.True(t, sawCall)
}

func TestCompile_AssignToAttributeIsSyntaxError(t *testing.T) {
	prog := Compile("self.hp = 1\n", TypeBot, nil)
	require.True(t, prog.Failed())
	assert.Equal(t, diag.SyntaxError, prog.Diagnostics[0].Kind)
}

func TestCompile_RecursiveFunctionDefProducesNestedProgram(t *testing.T) {
	src := "def factorial(n):\n    if n <= 1:\n        return 1\n    return n * factorial(n - 1)\nx = factorial(5)\n"
	prog := compileOK(t, src)
	require.Len(t, prog.Functions, 1)
	fn := prog.Functions[0]
	require.NoError(t, fn.Validate())
	assert.Equal(t, HALT, fn.Code[len(fn.Code)-1].Op)
}

func TestCompile_FunctionWithoutExplicitReturnGetsImplicitNone(t *testing.T) {
	src := "def noop():\n    x = 1\nnoop()\n"
	prog := compileOK(t, src)
	require.Len(t, prog.Functions, 1)
	fn := prog.Functions[0]
	var sawReturn bool
	for _, instr := range fn.Code {
		if instr.Op == RETURN_VALUE {
			sawReturn = true
		}
	}
	assert.True(t, sawReturn, "implicit return None must still emit RETURN_VALUE")
}

func TestCompile_AndOrShortCircuitLowering(t *testing.T) {
	prog := compileOK(t, "a = 1\nb = 2\nx = a and b\ny = a or b\n")
	var sawJumpIfFalse, sawJumpIfTrue bool
	for _, instr := range prog.Code {
		switch instr.Op {
		case JUMP_IF_FALSE:
			sawJumpIfFalse = true
		case JUMP_IF_TRUE:
			sawJumpIfTrue = true
		}
	}
	assert.True(t, sawJumpIfFalse, "and must lower to JUMP_IF_FALSE")
	assert.True(t, sawJumpIfTrue, "or must lower to JUMP_IF_TRUE")
}

func TestCompile_ChainedComparisonIsLeftAssociativeBinary(t *testing.T) {
	prog := compileOK(t, "x = 1\ny = 2\nz = 3\nw = x < y < z\n")
	var compareCount int
	for _, instr := range prog.Code {
		if instr.Op == COMPARE_LT {
			compareCount++
		}
	}
	assert.Equal(t, 2, compareCount, "a < b < c must lower to two ordinary COMPARE_LT instructions")
}

// TestCompile_StackEffectNetsZeroAtTopLevelStatementBoundaries is the
// documented property test for StackEffect: it walks only the top-level
// statement boundaries of a program with no loops or functions (where the
// per-instruction linear rule actually holds; GET_ITER/FOR_ITER's two
// diverging paths and break's extra POP make it not hold inside a loop
// body, see DESIGN.md).
func TestCompile_StackEffectNetsZeroAtTopLevelStatementBoundaries(t *testing.T) {
	prog := compileOK(t, "x = 1 + 2\ny = x * 3\nz = (x + y) / 2\n")
	running := 0
	for _, instr := range prog.Code {
		if instr.Op == HALT {
			continue
		}
		running += StackEffect(instr.Op, instr.Arg)
		if instr.Op == STORE_VAR {
			assert.Equal(t, 0, running, "stack must be empty immediately after each top-level STORE_VAR")
		}
	}
}

func TestCompile_EnvTypesBindingIsVisible(t *testing.T) {
	undeclared := Compile("x = enemy.hp\n", "", nil)
	require.True(t, undeclared.Failed(), "enemy must be undefined without an env_types binding")

	bound := Compile("x = enemy.hp\n", "", map[string]TypeTag{"enemy": TypeEnemy})
	require.False(t, bound.Failed(), "diagnostics: %v", bound.Diagnostics)
}

func TestCompile_ForLoopOverScanResultPropagatesEnemyElementType(t *testing.T) {
	prog := Compile("for e in self.scan():\n    h = e.hp\n", TypeBot, nil)
	require.False(t, prog.Failed(), "diagnostics: %v", prog.Diagnostics)
	require.NoError(t, prog.Validate())

	misspelled := Compile("for e in self.scan():\n    h = e.hpp\n", TypeBot, nil)
	require.True(t, misspelled.Failed(), "e is typed Enemy, so an unknown attribute on it must be rejected")
	assert.Equal(t, diag.AttributeError, misspelled.Diagnostics[0].Kind)
}
