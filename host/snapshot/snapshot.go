// Package snapshot renders a vm.State as human-readable YAML
// (SPEC_FULL.md §6.1), for golden-style tests and manual inspection of a
// paused VM outside the game host.
package snapshot

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/scriptcore/unitscript/vm"
)

// doc is the YAML-friendly projection of a vm.State: vm.Value has
// unexported-by-convention payload fields (only the one matching Kind is
// meaningful), so it is flattened to its printable form rather than
// marshaled directly.
type doc struct {
	IP      int               `yaml:"ip"`
	Stack   []string          `yaml:"stack"`
	Vars    map[string]string `yaml:"vars"`
	Running bool              `yaml:"running"`
	Paused  bool              `yaml:"paused"`
	Halted  bool              `yaml:"halted"`
	Error   string            `yaml:"error,omitempty"`
}

// Dump renders state as YAML.
func Dump(state vm.State) ([]byte, error) {
	d := doc{
		IP:      state.IP,
		Stack:   make([]string, len(state.Stack)),
		Vars:    make(map[string]string, len(state.Vars)),
		Running: state.Running,
		Paused:  state.Paused,
		Halted:  state.Halted,
	}
	for i, v := range state.Stack {
		d.Stack[i] = v.String()
	}
	for name, v := range state.Vars {
		d.Vars[name] = v.String()
	}
	if state.Error != nil {
		d.Error = fmt.Sprintf("%s: %s (line %d)", state.Error.Kind, state.Error.Message, state.Error.Line)
	}
	return yaml.Marshal(d)
}
