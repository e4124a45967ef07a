package ir

// RetargetCall builds a new call/invoke/indirect-call instruction of the
// same kind as c, calling target with only the arguments at keep (c's
// original argument indices to forward, in order), preserving calling
// convention, debug location, attribute set, and — for invoke — the
// normal/unwind successors. It does not splice the result into any block;
// the caller does that.
func RetargetCall(c *Instruction, target *Function, keep []int) *Instruction {
	nc := &Instruction{
		Op:       c.Op,
		Name:     c.Name,
		Type:     c.Type,
		Callee:   GlobalRef{Name: target.Name, T: FuncPointer(target.Signature())},
		CallConv: c.CallConv,
		Attrs:    append([]string(nil), c.Attrs...),
		DebugLoc: c.DebugLoc,
	}
	nc.Args = make([]Value, len(keep))
	for i, idx := range keep {
		nc.Args[i] = c.Args[idx]
	}
	if c.Op == OpInvoke && c.Invoke != nil {
		edges := *c.Invoke
		nc.Invoke = &edges
	}
	return nc
}

// Splice replaces old with the single instruction new in b's instruction
// list, in place.
func (b *BasicBlock) Splice(old, new *Instruction) {
	for i, instr := range b.Instrs {
		if instr == old {
			b.Instrs[i] = new
			return
		}
	}
}
