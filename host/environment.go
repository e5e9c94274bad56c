package host

import (
	"fmt"
	"math"
	"sort"

	"github.com/scriptcore/unitscript/vm"
)

// boundMethod is the Value payload GetAttr returns for a callable attribute
// (forward, turn, fire, boost, scan): Call later dispatches on it without
// needing to re-resolve the unit/name pair.
type boundMethod struct {
	unit *Unit
	name string
}

// builtinFunc is a free (non-method) builtin: len, range, abs, and the
// selector family (nearest/furthest/weakest/strongest).
type builtinFunc func(args []vm.Value) (vm.Value, error)

// Environment is the reference Host (spec.md §6): it resolves attribute
// access and invocation on the Unit/builtin Values the rest of this package
// constructs. A real game host replaces this wholesale; this one exists so
// the engine has a runnable, host-complete example and a place for the
// engine's own tests to exercise the host-value protocol end to end.
type Environment struct {
	builtins map[string]builtinFunc
}

// NewEnvironment builds the reference Environment with every SPEC_FULL.md
// §6.1 builtin registered.
func NewEnvironment() *Environment {
	e := &Environment{builtins: map[string]builtinFunc{}}
	e.builtins["len"] = builtinLen
	e.builtins["range"] = builtinRange
	e.builtins["abs"] = builtinAbs
	e.builtins["nearest"] = selector(func(a, b float64) bool { return a < b }, distanceOf)
	e.builtins["furthest"] = selector(func(a, b float64) bool { return a > b }, distanceOf)
	e.builtins["weakest"] = selector(func(a, b float64) bool { return a < b }, hpOf)
	e.builtins["strongest"] = selector(func(a, b float64) bool { return a > b }, hpOf)
	return e
}

// Globals returns every reserved global name spec.md §6 requires to
// resolve (compiler/compiler.go's builtinTags) bound to a runtime Value:
// the callable builtins, the ammo constants, and CORE.
func (e *Environment) Globals() map[string]vm.Value {
	out := e.Builtins()
	out["BULLET"] = Bullet
	out["ROCKET"] = Rocket
	out["LASER"] = Laser
	out["ICE"] = Ice
	out["GRENADE"] = Grenade
	out["CORE"] = CORE.Value()
	return out
}

// Builtins returns name->Value bindings suitable for vm.SetEnvironment,
// wrapping each registered builtin as a callable HostObject.
func (e *Environment) Builtins() map[string]vm.Value {
	out := make(map[string]vm.Value, len(e.builtins))
	for name := range e.builtins {
		out[name] = vm.HostObject(name)
	}
	return out
}

// GetAttr implements vm.Host.
func (e *Environment) GetAttr(object vm.Value, name string) (vm.Value, error) {
	u, ok := object.Host.(*Unit)
	if !ok {
		return vm.None, fmt.Errorf("%s has no attribute %s", object.Kind, name)
	}
	if callableSet[name] {
		return vm.HostObject(boundMethod{unit: u, name: name}), nil
	}
	if v, ok := u.Attrs[name]; ok {
		return v, nil
	}
	return vm.None, fmt.Errorf("%s has no attribute %q", u.Kind, name)
}

// Call implements vm.Host.
func (e *Environment) Call(object vm.Value, args []vm.Value) (vm.Value, bool, error) {
	switch h := object.Host.(type) {
	case string:
		fn, ok := e.builtins[h]
		if !ok {
			return vm.None, false, fmt.Errorf("%q is not callable", h)
		}
		result, err := fn(args)
		return result, false, err
	case boundMethod:
		return h.unit.invoke(h.name, args)
	default:
		return vm.None, false, fmt.Errorf("%s is not callable", object.Kind)
	}
}

// invoke dispatches a method call on u. forward/turn/boost are movement
// stubs (the game world itself is out of scope, spec.md §1); fire models
// spec.md §5's resumable-CALL example with a fixed cooldown; scan returns
// whatever Enemy units were passed in as candidates, since the reference
// host has no actual battlefield to scan.
func (u *Unit) invoke(name string, args []vm.Value) (vm.Value, bool, error) {
	switch name {
	case "forward", "turn", "boost":
		return vm.None, false, nil

	case "fire":
		if u.fireCooldown > 0 {
			u.fireCooldown--
			return vm.None, true, nil
		}
		u.fireCooldown = 2
		return vm.Bool(true), false, nil

	case "scan":
		if len(args) > 0 && args[0].Kind == vm.KindList {
			return args[0], false, nil
		}
		return vm.List(nil), false, nil

	default:
		return vm.None, false, fmt.Errorf("%s has no method %q", u.Kind, name)
	}
}

func builtinLen(args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("len() takes exactly one argument (%d given)", len(args))
	}
	switch args[0].Kind {
	case vm.KindList:
		return vm.Number(float64(len(args[0].List))), nil
	case vm.KindString:
		return vm.Number(float64(len(args[0].Str))), nil
	default:
		return vm.None, fmt.Errorf("object of type %s has no len()", args[0].Kind)
	}
}

func builtinRange(args []vm.Value) (vm.Value, error) {
	if len(args) != 1 || args[0].Kind != vm.KindNumber {
		return vm.None, fmt.Errorf("range() takes exactly one number argument")
	}
	n := int(args[0].Num)
	out := make([]vm.Value, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, vm.Number(float64(i)))
	}
	return vm.List(out), nil
}

func builtinAbs(args []vm.Value) (vm.Value, error) {
	if len(args) != 1 || args[0].Kind != vm.KindNumber {
		return vm.None, fmt.Errorf("abs() takes exactly one number argument")
	}
	return vm.Number(math.Abs(args[0].Num)), nil
}

func distanceOf(v vm.Value) (float64, bool) {
	u, ok := v.Host.(*Unit)
	if !ok {
		return 0, false
	}
	d, ok := u.Attrs["distance"]
	if !ok {
		return 0, false
	}
	return d.Num, true
}

func hpOf(v vm.Value) (float64, bool) {
	u, ok := v.Host.(*Unit)
	if !ok {
		return 0, false
	}
	hp, ok := u.Attrs["hp"]
	if !ok {
		return 0, false
	}
	return hp.Num, true
}

// selector builds a nearest/furthest/weakest/strongest builtin: scan args[0]
// (a List of HostObject Enemy candidates) and keep the element for which
// better(metric(candidate), metric(best)) holds, per spec.md §6's selector
// helper family.
func selector(better func(a, b float64) bool, metric func(vm.Value) (float64, bool)) builtinFunc {
	return func(args []vm.Value) (vm.Value, error) {
		if len(args) != 1 || args[0].Kind != vm.KindList {
			return vm.None, fmt.Errorf("selector builtin takes exactly one List argument")
		}
		candidates := args[0].List
		if len(candidates) == 0 {
			return vm.None, nil
		}
		scored := make([]struct {
			v vm.Value
			m float64
		}, 0, len(candidates))
		for _, c := range candidates {
			m, ok := metric(c)
			if !ok {
				continue
			}
			scored = append(scored, struct {
				v vm.Value
				m float64
			}{c, m})
		}
		if len(scored) == 0 {
			return vm.None, nil
		}
		sort.Slice(scored, func(i, j int) bool { return better(scored[i].m, scored[j].m) })
		return scored[0].v, nil
	}
}
