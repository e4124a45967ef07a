package ir

import "fmt"

// RunGlobalDCE removes functions and globals that are unreachable from the
// module's roots: every External/ExternalWeak/Appending-linkage function or
// global (the parts of the module visible to the outside world) plus
// anything transitively referenced from one.
func RunGlobalDCE(m *Module) bool {
	reachable := reachableFromRoots(m)

	modified := false
	for _, name := range append([]string(nil), m.FuncOrder...) {
		f := m.Functions[name]
		if f.Linkage == External || f.Linkage == ExternalWeak || f.Linkage == Appending {
			continue
		}
		if !reachable[name] {
			m.RemoveFunction(name)
			modified = true
		}
	}
	for _, name := range append([]string(nil), m.GlobalOrder...) {
		g := m.Globals[name]
		if g.Linkage == External || g.Linkage == ExternalWeak || g.Linkage == Appending {
			continue
		}
		if !reachable["@"+name] {
			m.RemoveGlobal(name)
			modified = true
		}
	}
	return modified
}

func reachableFromRoots(m *Module) map[string]bool {
	reachable := make(map[string]bool)
	var worklist []string

	for _, name := range m.FuncOrder {
		f := m.Functions[name]
		if f.Linkage == External || f.Linkage == ExternalWeak || f.Linkage == Appending {
			if !reachable[name] {
				reachable[name] = true
				worklist = append(worklist, name)
			}
		}
	}
	for _, name := range m.GlobalOrder {
		g := m.Globals[name]
		if g.Linkage == External || g.Linkage == ExternalWeak || g.Linkage == Appending {
			key := "@" + name
			if !reachable[key] {
				reachable[key] = true
				worklist = append(worklist, key)
			}
			markValueReachable(m, g.Initializer, reachable, &worklist)
		}
	}

	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		name, isGlobal := cur, false
		if len(cur) > 0 && cur[0] == '@' {
			name, isGlobal = cur[1:], true
		}
		if isGlobal {
			if g, ok := m.Globals[name]; ok {
				markValueReachable(m, g.Initializer, reachable, &worklist)
			}
			continue
		}
		f, ok := m.Functions[name]
		if !ok {
			continue
		}
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				markInstrReachable(m, instr, reachable, &worklist)
			}
		}
	}
	return reachable
}

func markInstrReachable(m *Module, instr *Instruction, reachable map[string]bool, worklist *[]string) {
	markValueReachable(m, instr.Callee, reachable, worklist)
	markValueReachable(m, instr.Cond, reachable, worklist)
	markValueReachable(m, instr.RetVal, reachable, worklist)
	for _, a := range instr.Args {
		markValueReachable(m, a, reachable, worklist)
	}
	for _, o := range instr.Operands {
		markValueReachable(m, o, reachable, worklist)
	}
}

func markValueReachable(m *Module, v Value, reachable map[string]bool, worklist *[]string) {
	if v == nil {
		return
	}
	switch val := v.(type) {
	case GlobalRef:
		key := val.Name
		if _, isFunc := m.Functions[val.Name]; !isFunc {
			key = "@" + val.Name
		}
		if !reachable[key] {
			reachable[key] = true
			*worklist = append(*worklist, key)
		}
	case ConstAggregate:
		for _, e := range val.Elems {
			markValueReachable(m, e, reachable, worklist)
		}
	}
}

// MergeConstants merges globals whose initializers are structurally
// identical constants, rewriting every reference to the duplicate so it
// names the (lexicographically first, for determinism) survivor, and
// removing the duplicate. Globals with External/ExternalWeak/Appending
// linkage are visible outside the module and are never merged.
func MergeConstants(m *Module) bool {
	byInit := make(map[string][]string) // printed initializer -> global names sharing it
	for _, name := range m.GlobalOrder {
		g := m.Globals[name]
		if !g.HasInitializer || g.Initializer == nil {
			continue
		}
		if g.Linkage == External || g.Linkage == ExternalWeak || g.Linkage == Appending {
			continue
		}
		key := fmt.Sprintf("%s|%s", g.Type.String(), g.Initializer.String())
		byInit[key] = append(byInit[key], name)
	}

	rename := make(map[string]string)
	for _, names := range byInit {
		if len(names) < 2 {
			continue
		}
		survivor := names[0]
		for _, n := range names[1:] {
			if n < survivor {
				survivor = n
			}
		}
		for _, n := range names {
			if n != survivor {
				rename[n] = survivor
			}
		}
	}
	if len(rename) == 0 {
		return false
	}

	for _, f := range m.OrderedFunctions() {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				renameInstrGlobals(instr, rename)
			}
		}
	}
	for _, g := range m.OrderedGlobals() {
		g.Initializer = renameValueGlobals(g.Initializer, rename)
	}
	for dup := range rename {
		m.RemoveGlobal(dup)
	}
	return true
}

func renameInstrGlobals(instr *Instruction, rename map[string]string) {
	instr.Callee = renameValueGlobals(instr.Callee, rename)
	instr.Cond = renameValueGlobals(instr.Cond, rename)
	instr.RetVal = renameValueGlobals(instr.RetVal, rename)
	for i, a := range instr.Args {
		instr.Args[i] = renameValueGlobals(a, rename)
	}
	for i, o := range instr.Operands {
		instr.Operands[i] = renameValueGlobals(o, rename)
	}
}

func renameValueGlobals(v Value, rename map[string]string) Value {
	if v == nil {
		return v
	}
	switch val := v.(type) {
	case GlobalRef:
		if to, ok := rename[val.Name]; ok {
			val.Name = to
			return val
		}
		return val
	case ConstAggregate:
		elems := make([]Value, len(val.Elems))
		for i, e := range val.Elems {
			elems[i] = renameValueGlobals(e, rename)
		}
		val.Elems = elems
		return val
	default:
		return v
	}
}
