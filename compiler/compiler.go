package compiler

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/scriptcore/unitscript/ast"
	"github.com/scriptcore/unitscript/diag"
	"github.com/scriptcore/unitscript/invariant"
	"github.com/scriptcore/unitscript/parser"
	"github.com/scriptcore/unitscript/token"
)

// builtinTags lists the reserved global names spec.md §6 requires to
// resolve, with their compile-time type tags. True/False/None are lexed
// as their own literal tokens, not NAME references, so they are absent
// here.
func builtinTags() map[string]TypeTag {
	return map[string]TypeTag{
		"len": TypeAny, "range": TypeAny, "abs": TypeAny,
		"nearest": TypeAny, "furthest": TypeAny, "weakest": TypeAny, "strongest": TypeAny,
		"BULLET": TypeAny, "ROCKET": TypeAny, "LASER": TypeAny, "ICE": TypeAny, "GRENADE": TypeAny,
		"CORE": TypeCore,
	}
}

// Compile lexes, parses, and lowers source to a bytecode Program against
// an environment built from selfType (the `self` binding; TypeAny if
// empty) and envTypes (additional env_types bindings). On any fatal
// diagnostic the returned Program has empty Code and non-empty
// Diagnostics (spec.md §4.3).
func Compile(source string, selfType TypeTag, envTypes map[string]TypeTag) *Program {
	prog, err := parser.Parse(source)
	if err != nil {
		if de, ok := err.(*diag.Error); ok {
			return &Program{Diagnostics: []*diag.Error{de}}
		}
		return &Program{Diagnostics: []*diag.Error{diag.New(diag.SyntaxError, source, 0, 0, "%s", err.Error())}}
	}

	schema := NewSchema()
	if selfType != "" {
		schema.Bind("self", selfType)
	}
	for name, tag := range envTypes {
		schema.Bind(name, tag)
	}

	global := map[string]TypeTag{}
	for name, tag := range builtinTags() {
		global[name] = tag
	}

	e := &emitter{
		source: source,
		schema: schema,
		scopes: []map[string]TypeTag{global},
	}
	e.compileStatements(prog.Statements)
	if len(e.diagnostics) > 0 {
		return &Program{Diagnostics: e.diagnostics}
	}

	e.emitNoArg(HALT, e.lastLine())
	out := &Program{Code: e.code, Constants: e.consts, Functions: e.functions}
	invariant.ExpectNoError(out.Validate(), "freshly compiled program")
	return out
}

// loopFrame tracks the compile-time targets for break/continue inside the
// loop currently being compiled.
type loopFrame struct {
	continueTarget int
	breakPatches   []int
	isForLoop      bool
}

// emitter lowers one Program's worth of statements (the top-level program,
// or a single FUNCTION_DEF body) to bytecode. Nested function bodies get
// their own emitter, sharing the Schema and diagnostics sink.
type emitter struct {
	source      string
	schema      *Schema
	scopes      []map[string]TypeTag
	diagnostics []*diag.Error

	code      []Instruction
	consts    []interface{}
	functions []*Program
	loopStack []loopFrame
}

func (e *emitter) lastLine() int {
	if len(e.code) == 0 {
		return 1
	}
	return e.code[len(e.code)-1].Line
}

func (e *emitter) errorf(kind diag.Kind, line, col int, format string, args ...interface{}) {
	e.diagnostics = append(e.diagnostics, diag.New(kind, e.source, line, col, format, args...))
}

func (e *emitter) failed() bool { return len(e.diagnostics) > 0 }

func (e *emitter) emit(op Op, arg interface{}, line int) int {
	e.code = append(e.code, Instruction{Op: op, Arg: arg, Line: line})
	return len(e.code) - 1
}

func (e *emitter) emitNoArg(op Op, line int) int {
	return e.emit(op, nil, line)
}

func (e *emitter) patch(index, target int) {
	invariant.Precondition(index >= 0 && index < len(e.code), "patch index in range")
	e.code[index].Arg = target
}

func (e *emitter) constIndex(v interface{}) int {
	for i, c := range e.consts {
		if c == v {
			return i
		}
	}
	e.consts = append(e.consts, v)
	return len(e.consts) - 1
}

// ---- scope handling ----
// Compile-time scopes exist purely for name-existence/attribute-type
// checking; every STORE_VAR/LOAD_VAR still addresses one flat runtime
// vars map regardless of which scope declared the name (spec.md §9
// "single-scope limitation" - a deliberate, documented deviation).

func (e *emitter) pushScope(initial map[string]TypeTag) {
	e.scopes = append(e.scopes, initial)
}

func (e *emitter) popScope() {
	e.scopes = e.scopes[:len(e.scopes)-1]
}

func (e *emitter) current() map[string]TypeTag {
	return e.scopes[len(e.scopes)-1]
}

// resolve looks up name across the scope stack, then the schema (self,
// env_types, B1-4/G1-30 patterns).
func (e *emitter) resolve(name string) (TypeTag, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if tag, ok := e.scopes[i][name]; ok {
			return tag, true
		}
	}
	return e.schema.Lookup(name)
}

// declare binds name in the innermost scope if it isn't already visible
// anywhere (an assignment to a fresh name implicitly declares it).
func (e *emitter) declare(name string) {
	if _, ok := e.resolve(name); ok {
		return
	}
	e.current()[name] = TypeAny
}

// exprType computes a best-effort static TypeTag for expr, never emitting
// diagnostics (spec.md §4.3 rule 3: unknown falls back to "any").
func (e *emitter) exprType(expr ast.Expression) TypeTag {
	switch n := expr.(type) {
	case *ast.Name:
		if tag, ok := e.resolve(n.Value); ok {
			return tag
		}
		return TypeAny
	case *ast.Attr:
		objType := e.exprType(n.Object)
		if attr, ok := e.schema.Attribute(objType, n.Name); ok {
			return attr.Result
		}
		return TypeAny
	case *ast.Index:
		containerType := e.exprType(n.Container)
		if elem, ok := e.schema.ElementType(containerType); ok {
			return elem
		}
		return TypeAny
	case *ast.Call:
		if attr, ok := n.Callee.(*ast.Attr); ok {
			objType := e.exprType(attr.Object)
			if a, ok2 := e.schema.Attribute(objType, attr.Name); ok2 {
				return a.Result
			}
		}
		return TypeAny
	default:
		return TypeAny
	}
}

// ---- statements ----

func (e *emitter) compileStatements(stmts []ast.Statement) {
	for _, s := range stmts {
		e.compileStatement(s)
		if e.failed() {
			return
		}
	}
}

func (e *emitter) compileStatement(s ast.Statement) {
	switch n := s.(type) {
	case *ast.Assign:
		e.compileAssign(n)
	case *ast.AugAssign:
		e.compileAugAssign(n)
	case *ast.ExprStmt:
		e.compileExpr(n.X)
		if !e.failed() {
			e.emitNoArg(POP, n.Position.Line)
		}
	case *ast.If:
		e.compileIf(n)
	case *ast.While:
		e.compileWhile(n)
	case *ast.For:
		e.compileFor(n)
	case *ast.FunctionDef:
		e.compileFunctionDef(n)
	case *ast.Return:
		e.compileReturn(n)
	case *ast.Break:
		e.compileBreak(n)
	case *ast.Continue:
		e.compileContinue(n)
	}
}

// StackEffect returns op's net operand-stack effect in isolation (ignoring
// the two diverging paths through FOR_ITER, which nets to zero only across
// the whole for-loop it belongs to, not per instruction). Used by
// compiler_test.go's statement-boundary property test, which sums it over
// a compiled Program's instructions and checks the running total after
// each top-level STORE_VAR.
func StackEffect(op Op, arg interface{}) int {
	switch op {
	case LOAD_CONST, LOAD_VAR, MAKE_FUNCTION:
		return 1
	case STORE_VAR, POP, RETURN_VALUE:
		return -1
	case LOAD_ATTR: // pop obj, push attr
		return 0
	case BUILD_LIST:
		n, _ := arg.(int)
		return 1 - n
	case GET_INDEX: // pop key, pop container, push value
		return -1
	case BINARY_ADD, BINARY_SUB, BINARY_MUL, BINARY_DIV, BINARY_FLOORDIV, BINARY_MOD, BINARY_POW:
		return -1
	case COMPARE_EQ, COMPARE_NE, COMPARE_LT, COMPARE_GT, COMPARE_LE, COMPARE_GE:
		return -1
	case UNARY_NEG, UNARY_NOT:
		return 0
	case JUMP, NOP, HALT, GET_ITER, FOR_ITER:
		return 0
	case POP_JUMP_IF_FALSE:
		return -1
	case JUMP_IF_FALSE, JUMP_IF_TRUE:
		return 0
	case CALL:
		n, _ := arg.(int)
		return -n // pops n args + callee, pushes 1 result
	default:
		return 0
	}
}

func (e *emitter) compileAssign(n *ast.Assign) {
	name, ok := n.Target.(*ast.Name)
	if !ok {
		e.errorf(diag.SyntaxError, n.Position.Line, n.Position.Column,
			"assignment target must be a plain name")
		return
	}
	e.compileExpr(n.Value)
	if e.failed() {
		return
	}
	e.declare(name.Value)
	e.emit(STORE_VAR, name.Value, n.Position.Line)
}

var augToBinary = map[token.Kind]Op{
	token.PLUSEQ:  BINARY_ADD,
	token.MINUSEQ: BINARY_SUB,
	token.STAREQ:  BINARY_MUL,
	token.SLASHEQ: BINARY_DIV,
}

func (e *emitter) compileAugAssign(n *ast.AugAssign) {
	name, ok := n.Target.(*ast.Name)
	if !ok {
		e.errorf(diag.SyntaxError, n.Position.Line, n.Position.Column,
			"assignment target must be a plain name")
		return
	}
	if _, found := e.resolve(name.Value); !found {
		e.errorf(diag.NameError, n.Position.Line, n.Position.Column, "%s is not defined", name.Value)
		return
	}
	e.emit(LOAD_VAR, name.Value, n.Position.Line)
	e.compileExpr(n.Value)
	if e.failed() {
		return
	}
	e.emit(augToBinary[n.Op], nil, n.Position.Line)
	e.emit(STORE_VAR, name.Value, n.Position.Line)
}

func (e *emitter) compileBody(stmts []ast.Statement) {
	e.compileStatements(stmts)
}

func (e *emitter) compileIf(n *ast.If) {
	var endPatches []int
	for i, branch := range n.Branches {
		if branch.Cond == nil {
			e.compileBody(branch.Body)
			continue
		}
		e.compileExpr(branch.Cond)
		if e.failed() {
			return
		}
		falsyJump := e.emit(POP_JUMP_IF_FALSE, -1, branch.Cond.Pos().Line)
		e.compileBody(branch.Body)
		if e.failed() {
			return
		}
		if i < len(n.Branches)-1 {
			endPatches = append(endPatches, e.emit(JUMP, -1, n.Position.Line))
		}
		e.patch(falsyJump, len(e.code))
	}
	for _, p := range endPatches {
		e.patch(p, len(e.code))
	}
}

func (e *emitter) compileWhile(n *ast.While) {
	start := len(e.code)
	e.compileExpr(n.Cond)
	if e.failed() {
		return
	}
	falsyJump := e.emit(POP_JUMP_IF_FALSE, -1, n.Cond.Pos().Line)

	e.loopStack = append(e.loopStack, loopFrame{continueTarget: start})
	e.compileBody(n.Body)
	frame := e.loopStack[len(e.loopStack)-1]
	e.loopStack = e.loopStack[:len(e.loopStack)-1]
	if e.failed() {
		return
	}

	e.emit(JUMP, start, n.Position.Line)
	end := len(e.code)
	e.patch(falsyJump, end)
	for _, p := range frame.breakPatches {
		e.patch(p, end)
	}
}

func (e *emitter) compileFor(n *ast.For) {
	e.compileExpr(n.Iter)
	if e.failed() {
		return
	}
	e.emitNoArg(GET_ITER, n.Position.Line)
	start := len(e.code)
	forIter := e.emit(FOR_ITER, -1, n.Position.Line)
	_, existed := e.resolve(n.Var)
	e.declare(n.Var)
	if elem, ok := e.schema.ElementType(e.exprType(n.Iter)); ok && !existed {
		e.current()[n.Var] = elem // a fresh loop variable takes the iterable's element type
	}
	e.emit(STORE_VAR, n.Var, n.Position.Line)

	e.loopStack = append(e.loopStack, loopFrame{continueTarget: start, isForLoop: true})
	e.compileBody(n.Body)
	frame := e.loopStack[len(e.loopStack)-1]
	e.loopStack = e.loopStack[:len(e.loopStack)-1]
	if e.failed() {
		return
	}

	e.emit(JUMP, start, n.Position.Line)
	end := len(e.code)
	e.patch(forIter, end)
	for _, p := range frame.breakPatches {
		e.patch(p, end)
	}
}

func (e *emitter) compileFunctionDef(n *ast.FunctionDef) {
	e.declare(n.Name)
	e.current()[n.Name] = TypeAny

	funcScope := map[string]TypeTag{n.Name: TypeAny}
	for _, p := range n.Params {
		funcScope[p] = TypeAny
	}
	inner := &emitter{
		source: e.source,
		schema: e.schema,
		scopes: append(append([]map[string]TypeTag{}, e.scopes...), funcScope),
	}
	inner.compileStatements(n.Body)
	if inner.failed() {
		e.diagnostics = append(e.diagnostics, inner.diagnostics...)
		return
	}
	if len(inner.code) == 0 || inner.code[len(inner.code)-1].Op != RETURN_VALUE {
		noneIdx := inner.constIndex(nil)
		inner.emit(LOAD_CONST, noneIdx, n.Position.Line)
		inner.emitNoArg(RETURN_VALUE, n.Position.Line)
	}
	inner.emitNoArg(HALT, n.Position.Line)

	fnProgram := &Program{Code: inner.code, Constants: inner.consts, Functions: inner.functions, Params: n.Params}
	e.functions = append(e.functions, fnProgram)
	e.emit(MAKE_FUNCTION, len(e.functions)-1, n.Position.Line)
	e.emit(STORE_VAR, n.Name, n.Position.Line)
}

func (e *emitter) compileReturn(n *ast.Return) {
	if n.Value == nil {
		noneIdx := e.constIndex(nil)
		e.emit(LOAD_CONST, noneIdx, n.Position.Line)
		e.emitNoArg(RETURN_VALUE, n.Position.Line)
		return
	}
	e.compileExpr(n.Value)
	if e.failed() {
		return
	}
	e.emitNoArg(RETURN_VALUE, n.Position.Line)
}

func (e *emitter) compileBreak(n *ast.Break) {
	if len(e.loopStack) == 0 {
		e.errorf(diag.SyntaxError, n.Position.Line, n.Position.Column, "'break' outside loop")
		return
	}
	top := len(e.loopStack) - 1
	if e.loopStack[top].isForLoop {
		e.emitNoArg(POP, n.Position.Line) // discard the live iterator before leaving the loop
	}
	idx := e.emit(JUMP, -1, n.Position.Line)
	e.loopStack[top].breakPatches = append(e.loopStack[top].breakPatches, idx)
}

func (e *emitter) compileContinue(n *ast.Continue) {
	if len(e.loopStack) == 0 {
		e.errorf(diag.SyntaxError, n.Position.Line, n.Position.Column, "'continue' outside loop")
		return
	}
	target := e.loopStack[len(e.loopStack)-1].continueTarget
	e.emit(JUMP, target, n.Position.Line)
}

// ---- expressions ----

func (e *emitter) compileExpr(expr ast.Expression) {
	switch n := expr.(type) {
	case *ast.Number:
		e.emit(LOAD_CONST, e.constIndex(n.Value), n.Position.Line)
	case *ast.String:
		e.emit(LOAD_CONST, e.constIndex(n.Value), n.Position.Line)
	case *ast.Bool:
		e.emit(LOAD_CONST, e.constIndex(n.Value), n.Position.Line)
	case *ast.None:
		e.emit(LOAD_CONST, e.constIndex(nil), n.Position.Line)
	case *ast.Name:
		e.compileName(n)
	case *ast.BinaryOp:
		e.compileBinaryOp(n)
	case *ast.UnaryOp:
		e.compileExpr(n.X)
		if !e.failed() {
			e.emitNoArg(UNARY_NEG, n.Position.Line)
		}
	case *ast.Compare:
		e.compileCompare(n)
	case *ast.Logical:
		e.compileLogical(n)
	case *ast.Not:
		e.compileExpr(n.X)
		if !e.failed() {
			e.emitNoArg(UNARY_NOT, n.Position.Line)
		}
	case *ast.Call:
		e.compileCall(n)
	case *ast.Attr:
		e.compileAttr(n)
	case *ast.Index:
		e.compileIndex(n)
	case *ast.List:
		e.compileList(n)
	}
}

func (e *emitter) compileName(n *ast.Name) {
	if _, ok := e.resolve(n.Value); !ok {
		e.errorf(diag.NameError, n.Position.Line, n.Position.Column, "%s is not defined", n.Value)
		return
	}
	e.emit(LOAD_VAR, n.Value, n.Position.Line)
}

var binaryOps = map[token.Kind]Op{
	token.PLUS: BINARY_ADD, token.MINUS: BINARY_SUB, token.STAR: BINARY_MUL,
	token.SLASH: BINARY_DIV, token.DSLASH: BINARY_FLOORDIV, token.PERCENT: BINARY_MOD,
	token.DSTAR: BINARY_POW,
}

func (e *emitter) compileBinaryOp(n *ast.BinaryOp) {
	e.compileExpr(n.Left)
	if e.failed() {
		return
	}
	e.compileExpr(n.Right)
	if e.failed() {
		return
	}
	e.emitNoArg(binaryOps[n.Op], n.Position.Line)
}

var compareOpsMap = map[token.Kind]Op{
	token.EQ: COMPARE_EQ, token.NEQ: COMPARE_NE, token.LT: COMPARE_LT,
	token.GT: COMPARE_GT, token.LE: COMPARE_LE, token.GE: COMPARE_GE,
}

func (e *emitter) compileCompare(n *ast.Compare) {
	e.compileExpr(n.Left)
	if e.failed() {
		return
	}
	e.compileExpr(n.Right)
	if e.failed() {
		return
	}
	e.emitNoArg(compareOpsMap[n.Op], n.Position.Line)
}

func (e *emitter) compileLogical(n *ast.Logical) {
	e.compileExpr(n.Left)
	if e.failed() {
		return
	}
	var jump Op
	if n.Op == token.AND {
		jump = JUMP_IF_FALSE
	} else {
		jump = JUMP_IF_TRUE
	}
	shortCircuit := e.emit(jump, -1, n.Position.Line)
	e.emitNoArg(POP, n.Position.Line)
	e.compileExpr(n.Right)
	if e.failed() {
		return
	}
	e.patch(shortCircuit, len(e.code))
}

func (e *emitter) compileCall(n *ast.Call) {
	e.compileExpr(n.Callee)
	if e.failed() {
		return
	}
	for _, arg := range n.Args {
		e.compileExpr(arg)
		if e.failed() {
			return
		}
	}
	e.emit(CALL, len(n.Args), n.Position.Line)
}

func (e *emitter) compileAttr(n *ast.Attr) {
	e.compileExpr(n.Object)
	if e.failed() {
		return
	}
	objType := e.exprType(n.Object)
	if _, hasDescriptor := e.schema.Descriptors[objType]; hasDescriptor {
		if _, ok := e.schema.Attribute(objType, n.Name); !ok {
			msg := diag.New(diag.AttributeError, e.source, n.Position.Line, n.Position.Column,
				"%s has no attribute %s", objType, n.Name)
			if suggestion := suggestName(n.Name, e.schema.AttributeNames(objType)); suggestion != "" {
				msg = msg.WithSuggestion(suggestion)
			}
			e.diagnostics = append(e.diagnostics, msg)
			return
		}
	}
	e.emit(LOAD_ATTR, n.Name, n.Position.Line)
}

// suggestName ranks candidates against name using fuzzy folded matching
// and returns the best match, or "" when nothing is close.
func suggestName(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

func (e *emitter) compileIndex(n *ast.Index) {
	e.compileExpr(n.Container)
	if e.failed() {
		return
	}
	e.compileExpr(n.Key)
	if e.failed() {
		return
	}
	e.emitNoArg(GET_INDEX, n.Position.Line)
}

func (e *emitter) compileList(n *ast.List) {
	for _, el := range n.Elements {
		e.compileExpr(el)
		if e.failed() {
			return
		}
	}
	e.emit(BUILD_LIST, len(n.Elements), n.Position.Line)
}
