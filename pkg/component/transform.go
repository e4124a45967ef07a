package component

import "fmt"

// CallRewrite records that calls to Function matching Witness should be
// redirected to Target — the output of specialization and the input the
// rewriter replays against client modules.
type CallRewrite struct {
	Function string
	Witness  []ConcreteArgument
	Target   string

	// ArgPerm lists, for each parameter the clone still takes, the index
	// into the original call's argument list it should be fed from, so
	// call sites can be retargeted without re-deriving which original
	// arguments survive specialization.
	ArgPerm []int
}

// Matches reports whether an observed call's arguments satisfy this
// rewrite's witness, per the first-match-wins rule in LookupRewrite.
func (r CallRewrite) Matches(callee string, args []ConcreteArgument) bool {
	if r.Function != callee || len(r.Witness) != len(args) {
		return false
	}
	for i, w := range r.Witness {
		if !w.Matches(args[i]) {
			return false
		}
	}
	return true
}

// ComponentInterfaceTransform is the ordered set of rewrite rules produced
// by specializing a component against an interface. Rules are tried in the
// order recorded; the first whose witness matches an
// observed call wins, so more specific witnesses should be recorded before
// more general (less-constrained) ones.
type ComponentInterfaceTransform struct {
	Iface    *ComponentInterface
	Rewrites []CallRewrite
}

func NewTransform() *ComponentInterfaceTransform {
	return &ComponentInterfaceTransform{}
}

// RecordRewrite appends r to the transform. It is an invariant violation to
// record a rewrite for a witness the interface never declared as a call —
// callers in pkg/specializer are expected to derive r.Witness from an
// interface CallInfo they already hold, never to fabricate one, so this
// never actually happens in correct driver code; it is here to document the
// invariant the specializer driver must uphold.
func (t *ComponentInterfaceTransform) RecordRewrite(r CallRewrite) {
	t.Rewrites = append(t.Rewrites, r)
}

// LookupRewrite returns the first rewrite whose witness matches the given
// observed call, or false if no rewrite applies. First match in insertion
// order wins; the ordering is part of the contract.
func (t *ComponentInterfaceTransform) LookupRewrite(callee string, args []ConcreteArgument) (CallRewrite, bool) {
	for _, r := range t.Rewrites {
		if r.Matches(callee, args) {
			return r, true
		}
	}
	return CallRewrite{}, false
}

// Merge appends o's rewrites after t's own, preserving t's priority for
// witnesses that would otherwise collide.
func (t *ComponentInterfaceTransform) Merge(o *ComponentInterfaceTransform) {
	t.Rewrites = append(t.Rewrites, o.Rewrites...)
	if o.Iface != nil {
		if t.Iface == nil {
			t.Iface = NewInterface()
		}
		t.Iface.Merge(o.Iface)
	}
}

func (r CallRewrite) String() string {
	return fmt.Sprintf("%s(%v) -> %s", r.Function, r.Witness, r.Target)
}
