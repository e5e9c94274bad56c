package vm_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/compiler"
	"github.com/scriptcore/unitscript/vm"
)

// fakeHost is a minimal vm.Host for tests: both hooks are optional closures
// so each test only wires the behavior it exercises.
type fakeHost struct {
	getAttr func(vm.Value, string) (vm.Value, error)
	call    func(vm.Value, []vm.Value) (vm.Value, bool, error)
}

func (h *fakeHost) GetAttr(object vm.Value, name string) (vm.Value, error) {
	if h.getAttr != nil {
		return h.getAttr(object, name)
	}
	return vm.None, fmt.Errorf("%s has no attribute %s", object.Kind, name)
}

func (h *fakeHost) Call(object vm.Value, args []vm.Value) (vm.Value, bool, error) {
	if h.call != nil {
		return h.call(object, args)
	}
	return vm.None, false, fmt.Errorf("%s is not callable", object.Kind)
}

func runToHalt(t *testing.T, m *vm.VM, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if !m.Run(50) {
			return
		}
	}
	t.Fatalf("program did not halt within %d ticks of budget 50", maxTicks)
}

func compileAndLoad(t *testing.T, m *vm.VM, source string, selfType compiler.TypeTag, env map[string]compiler.TypeTag) {
	t.Helper()
	prog := compiler.Compile(source, selfType, env)
	require.False(t, prog.Failed(), "diagnostics: %v", prog.Diagnostics)
	m.Load(prog)
}

func TestVM_ArithmeticExpression(t *testing.T) {
	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, "x = (2 + 3) * 4 - 6 / 2\n", "", nil)
	runToHalt(t, m, 10)

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(17), st.Vars["x"])
}

func TestVM_FibonacciWhileLoop(t *testing.T) {
	m := vm.New(&fakeHost{})
	src := "a=0\nb=1\ncount=0\nwhile count<10:\n    temp=a\n    a=b\n    b=temp+b\n    count=count+1\n"
	compileAndLoad(t, m, src, "", nil)
	runToHalt(t, m, 20)

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(55), st.Vars["a"])
}

func TestVM_ForLoopSumOfSquares(t *testing.T) {
	m := vm.New(&fakeHost{})
	src := "total=0\nfor i in [1, 2, 3, 4, 5]:\n    total=total+i*i\n"
	compileAndLoad(t, m, src, "", nil)
	runToHalt(t, m, 20)

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(55), st.Vars["total"])
}

func TestVM_RecursiveFactorial(t *testing.T) {
	m := vm.New(&fakeHost{})
	src := "def factorial(n):\n    if n <= 1:\n        return 1\n    return n * factorial(n - 1)\nx = factorial(5)\n"
	compileAndLoad(t, m, src, "", nil)
	runToHalt(t, m, 50)

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(120), st.Vars["x"])
}

func TestVM_ContinueSkipsExactlyOneIteration(t *testing.T) {
	m := vm.New(&fakeHost{})
	src := "x=0\nskipped=0\nvisited=0\nwhile x<5:\n    x=x+1\n    if x==3:\n        skipped=skipped+1\n        continue\n    visited=visited+1\n"
	compileAndLoad(t, m, src, "", nil)
	runToHalt(t, m, 20)

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(1), st.Vars["skipped"])
	assert.Equal(t, vm.Number(4), st.Vars["visited"])
}

func TestVM_HostFunctionCallInvokedExactlyOnce(t *testing.T) {
	calls := 0
	host := &fakeHost{
		call: func(object vm.Value, args []vm.Value) (vm.Value, bool, error) {
			calls++
			return vm.Number(args[0].Num * 2), false, nil
		},
	}
	m := vm.New(host)
	compileAndLoad(t, m, "x = myFunc(21)\n", "", map[string]compiler.TypeTag{"myFunc": compiler.TypeAny})
	m.SetEnvironment(map[string]vm.Value{"myFunc": vm.HostObject("myFunc")})
	runToHalt(t, m, 10)

	st := m.GetState()
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(42), st.Vars["x"])
	assert.Equal(t, 1, calls)
}

func TestVM_BlockingHostCallRetriesWithoutAdvancing(t *testing.T) {
	attempts := 0
	host := &fakeHost{
		call: func(object vm.Value, args []vm.Value) (vm.Value, bool, error) {
			attempts++
			if attempts < 3 {
				return vm.None, true, nil // yielded: not ready yet
			}
			return vm.String("done"), false, nil
		},
	}
	m := vm.New(host)
	compileAndLoad(t, m, "x = fire()\n", "", map[string]compiler.TypeTag{"fire": compiler.TypeAny})
	m.SetEnvironment(map[string]vm.Value{"fire": vm.HostObject("fire")})

	for i := 0; i < 5 && m.GetState().Running; i++ {
		m.Run(1)
	}

	st := m.GetState()
	require.Nil(t, st.Error)
	assert.Equal(t, 3, attempts, "must reattempt the same CALL until the host stops yielding")
	assert.Equal(t, vm.String("done"), st.Vars["x"])
}

func TestVM_RuntimeAttributeErrorOnUnknownHostAttribute(t *testing.T) {
	host := &fakeHost{
		getAttr: func(object vm.Value, name string) (vm.Value, error) {
			if name == "hp" {
				return vm.Number(10), nil
			}
			return vm.None, fmt.Errorf("%v has no attribute %s", object.Host, name)
		},
	}
	m := vm.New(host)
	compileAndLoad(t, m, "x = obj.missing\n", "", map[string]compiler.TypeTag{"obj": compiler.TypeAny})
	m.SetEnvironment(map[string]vm.Value{"obj": vm.HostObject("unit1")})
	runToHalt(t, m, 5)

	st := m.GetState()
	require.NotNil(t, st.Error)
	assert.Equal(t, vm.RuntimeAttributeError, st.Error.Kind)
}

func TestVM_RunBudgetCompletesInCeilTotalOverBudgetCalls(t *testing.T) {
	const src = "count=0\nwhile count<100:\n    count=count+1\n"

	// total_instructions: single-step a second VM over the same program,
	// counting every executed instruction including the final HALT.
	counter := vm.New(&fakeHost{})
	compileAndLoad(t, counter, src, "", nil)
	total := 0
	for {
		total++
		if !counter.Step() {
			break
		}
		require.Less(t, total, 100000, "must not spin forever")
	}

	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, src, "", nil)

	ticks := 0
	for m.GetState().Running {
		m.Run(50)
		ticks++
		require.Less(t, ticks, 1000, "must not spin forever")
	}

	st := m.GetState()
	require.True(t, st.Halted)
	require.Nil(t, st.Error)
	assert.Equal(t, vm.Number(100), st.Vars["count"])
	assert.LessOrEqual(t, ticks, (total+49)/50, "must finish within ceil(total_instructions/50) run() calls")
	assert.Greater(t, ticks, 1, "a 100-iteration loop must take more than one budget-50 run() call")
}

func TestVM_RecompileThenLoadResetsIPAndStack(t *testing.T) {
	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, "x = 1 + 2\ny = x * 3\n", "", nil)
	m.Run(1)
	require.NotZero(t, m.GetState().IP)

	compileAndLoad(t, m, "x = 1 + 2\ny = x * 3\n", "", nil)
	st := m.GetState()
	assert.Equal(t, 0, st.IP)
	assert.Empty(t, st.Stack)
	assert.True(t, st.Running)
	assert.False(t, st.Halted)
}

func TestVM_DivisionByZeroProducesInfNotError(t *testing.T) {
	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, "x = 1 / 0\n", "", nil)
	runToHalt(t, m, 5)

	st := m.GetState()
	require.Nil(t, st.Error)
	assert.True(t, st.Vars["x"].Num > 0 && st.Vars["x"].Kind == vm.KindNumber)
}

func TestVM_IndexOutOfRangeIsRuntimeIndexError(t *testing.T) {
	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, "x = [1, 2][5]\n", "", nil)
	runToHalt(t, m, 5)

	st := m.GetState()
	require.NotNil(t, st.Error)
	assert.Equal(t, vm.RuntimeIndexError, st.Error.Kind)
}

func TestVM_StopSetsRunningFalseButKeepsStateInspectable(t *testing.T) {
	m := vm.New(&fakeHost{})
	compileAndLoad(t, m, "x = 1 + 2\ny = x * 3\n", "", nil)
	m.Run(1)
	m.Stop()

	st := m.GetState()
	assert.False(t, st.Running)
	assert.True(t, st.Halted)
	assert.False(t, m.Step(), "stepping a stopped VM must be a no-op")
}
