package component

// CallInfo is one observed call site into a component's interface: the
// callee name and the concrete (or unknown) arguments
// observed at that site. Multiple CallInfos for the same callee accumulate
// into a ComponentInterface's Calls map as distinct observed argument
// tuples; specialization treats each tuple as a candidate specialization
// point.
type CallInfo struct {
	Callee string
	Args   []ConcreteArgument
}

// Arity is the number of arguments observed at this call site.
func (c CallInfo) Arity() int { return len(c.Args) }

// Equal reports whether c and o observed identical arguments for the same
// callee, used to dedupe repeated observations of the same call shape.
func (c CallInfo) Equal(o CallInfo) bool {
	if c.Callee != o.Callee || len(c.Args) != len(o.Args) {
		return false
	}
	for i := range c.Args {
		if !c.Args[i].Matches(o.Args[i]) || !o.Args[i].Matches(c.Args[i]) {
			return false
		}
	}
	return true
}
