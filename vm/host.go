package vm

// Host implements the host-value protocol spec.md §6 requires: attribute
// lookup and invocation on a HostObject Value are both resolved entirely
// outside the VM. The reference implementation lives in the host package;
// cmd/unitscript wires it in for standalone testing.
type Host interface {
	// GetAttr resolves object.name to a Value, or an error (surfaced by
	// the VM as a runtime AttributeError).
	GetAttr(object Value, name string) (Value, error)

	// Call invokes object (a HostObject or a bare host function value,
	// never a language-level Function - those are handled inside the VM)
	// with args and returns its result.
	//
	// A blocking operation (spec.md §5, e.g. "fire() blocking until a
	// weapon cooldown elapses") signals it has nothing to return yet by
	// returning yielded=true; the VM then leaves ip on the CALL
	// instruction so the next run(budget) re-attempts the same call,
	// still counting the attempt as one budgeted step.
	Call(object Value, args []Value) (result Value, yielded bool, err error)
}
