package host_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/host"
	"github.com/scriptcore/unitscript/vm"
)

func TestEnvironment_GetAttrReturnsDataAttribute(t *testing.T) {
	env := host.NewEnvironment()
	v, err := env.GetAttr(host.B1.Value(), "hp")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(100), v)
}

func TestEnvironment_GetAttrUnknownAttributeErrors(t *testing.T) {
	env := host.NewEnvironment()
	_, err := env.GetAttr(host.B1.Value(), "warp")
	assert.Error(t, err)
}

func TestEnvironment_CallBoundMethodForward(t *testing.T) {
	env := host.NewEnvironment()
	method, err := env.GetAttr(host.B1.Value(), "forward")
	require.NoError(t, err)

	result, yielded, err := env.Call(method, nil)
	require.NoError(t, err)
	assert.False(t, yielded)
	assert.Equal(t, vm.None, result)
}

func TestEnvironment_FireYieldsUntilCooldownElapses(t *testing.T) {
	env := host.NewEnvironment()
	b := &host.Unit{Kind: "Bot", Attrs: map[string]vm.Value{"hp": vm.Number(100)}}
	method, err := env.GetAttr(b.Value(), "fire")
	require.NoError(t, err)

	// A fresh unit fires at once; that shot starts the cooldown.
	result0, yielded0, err0 := env.Call(method, nil)
	require.NoError(t, err0)
	assert.False(t, yielded0)
	assert.Equal(t, vm.Bool(true), result0)

	_, yielded1, err1 := env.Call(method, nil)
	_, yielded2, err2 := env.Call(method, nil)
	result3, yielded3, err3 := env.Call(method, nil)

	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.True(t, yielded1)
	assert.True(t, yielded2)
	assert.False(t, yielded3)
	assert.Equal(t, vm.Bool(true), result3)
}

func TestEnvironment_BuiltinLen(t *testing.T) {
	env := host.NewEnvironment()
	builtins := env.Builtins()
	lenFn, ok := builtins["len"]
	require.True(t, ok)

	result, yielded, err := env.Call(lenFn, []vm.Value{vm.List([]vm.Value{vm.Number(1), vm.Number(2), vm.Number(3)})})
	require.NoError(t, err)
	assert.False(t, yielded)
	assert.Equal(t, vm.Number(3), result)
}

func TestEnvironment_BuiltinRange(t *testing.T) {
	env := host.NewEnvironment()
	rangeFn := env.Builtins()["range"]

	result, _, err := env.Call(rangeFn, []vm.Value{vm.Number(3)})
	require.NoError(t, err)
	require.Equal(t, vm.KindList, result.Kind)
	assert.Equal(t, []vm.Value{vm.Number(0), vm.Number(1), vm.Number(2)}, result.List)
}

func TestEnvironment_GlobalsIncludesAmmoConstantsAndCore(t *testing.T) {
	env := host.NewEnvironment()
	globals := env.Globals()

	assert.Equal(t, host.Bullet, globals["BULLET"])
	require.Contains(t, globals, "CORE")
	assert.Same(t, host.CORE, globals["CORE"].Host)
	assert.Contains(t, globals, "len")
}

func TestEnvironment_SelectorWeakestPicksLowestHP(t *testing.T) {
	env := host.NewEnvironment()
	weak := &host.Unit{Kind: "Enemy", Attrs: map[string]vm.Value{"hp": vm.Number(10)}}
	strong := &host.Unit{Kind: "Enemy", Attrs: map[string]vm.Value{"hp": vm.Number(90)}}
	enemies := vm.List([]vm.Value{strong.Value(), weak.Value()})

	weakestFn := env.Builtins()["weakest"]
	result, _, err := env.Call(weakestFn, []vm.Value{enemies})
	require.NoError(t, err)
	assert.Same(t, weak, result.Host)
}
