// Package host is a reference (non-authoritative) implementation of the
// host-value protocol spec.md §6 requires every embedder to supply, so the
// engine is runnable and testable standalone without the real game host
// (spec.md §1 non-goal: the game world itself).
package host

import "github.com/scriptcore/unitscript/vm"

// Ammo constants (SPEC_FULL.md §6.1): plain host-defined values, not a core
// language concept.
var (
	Bullet  = vm.String("BULLET")
	Rocket  = vm.String("ROCKET")
	Laser   = vm.String("LASER")
	Ice     = vm.String("ICE")
	Grenade = vm.String("GRENADE")
)

// callableSet lists which attribute names on a Unit are methods (dispatched
// through Call) rather than data (returned directly from GetAttr). Mirrors
// compiler/schema.go's Callable flag for the same names.
var callableSet = map[string]bool{
	"forward": true, "turn": true, "fire": true, "boost": true, "scan": true,
}

// Unit is the reference stand-in for a controllable or observable game
// object (Bot, Gundam, Player, Enemy, Core) - enough of an attribute/method
// surface to exercise the compiler's static attribute checking and the VM's
// host-value protocol, without any actual game-world simulation behind it.
type Unit struct {
	Kind  string
	Attrs map[string]vm.Value

	// fireCooldown counts down on successive fire() calls before it
	// resolves, modeling spec.md §5's "fire() blocks until cooldown
	// elapses" example via the yielded=true contract.
	fireCooldown int
}

func newUnit(kind string, attrs map[string]vm.Value) *Unit {
	return &Unit{Kind: kind, Attrs: attrs}
}

// Reference objects (SPEC_FULL.md §6.1): enough to drive both compile-time
// attribute checks (against compiler/schema.go's descriptors) and runtime
// GetAttr/Call without depending on the out-of-scope game world.
var (
	CORE = newUnit("Core", map[string]vm.Value{
		"hp":       vm.Number(1000),
		"position": vm.List([]vm.Value{vm.Number(0), vm.Number(0)}),
	})

	B1 = newBot("B1", 0)
	B2 = newBot("B2", 1)
	B3 = newBot("B3", 2)
	B4 = newBot("B4", 3)
)

// G1..G30 are reference Gundam stand-ins, built in a loop rather than
// spelled out 30 times.
var gundams = buildGundams()

func buildGundams() map[string]*Unit {
	m := make(map[string]*Unit, 30)
	for i := 1; i <= 30; i++ {
		name := gundamName(i)
		m[name] = newUnit("Gundam", map[string]vm.Value{
			"hp":       vm.Number(150),
			"ammo":     vm.Number(20),
			"position": vm.List([]vm.Value{vm.Number(float64(i)), vm.Number(0)}),
		})
	}
	return m
}

func gundamName(i int) string {
	digits := [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}
	if i < 10 {
		return "G" + string(digits[i])
	}
	return "G" + string(digits[i/10]) + string(digits[i%10])
}

// Gundam looks up one of the 30 reference Gundam stand-ins by its G1..G30
// name, for tests and cmd/unitscript's default environment.
func Gundam(name string) (*Unit, bool) {
	u, ok := gundams[name]
	return u, ok
}

func newBot(name string, lane int) *Unit {
	return newUnit("Bot", map[string]vm.Value{
		"hp":       vm.Number(100),
		"ammo":     vm.Number(10),
		"position": vm.List([]vm.Value{vm.Number(float64(lane)), vm.Number(0)}),
	})
}

// Value wraps u as a HostObject Value, the form env bindings and List
// elements take on the operand stack.
func (u *Unit) Value() vm.Value { return vm.HostObject(u) }
