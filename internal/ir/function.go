package ir

// Param is a single formal parameter slot of a Function.
type Param struct {
	Name string
	Type Type
}

// Function is a named function: either a definition (len(Blocks) > 0) or a
// declaration (no blocks — the module does not own a body for it).
type Function struct {
	Name     string
	Params   []Param
	Result   Type
	Variadic bool
	Linkage  Linkage

	// Intrinsic marks a compiler builtin: a body-less function the backend
	// lowers directly. Intrinsics are never indirect-call targets and are
	// excluded from devirtualization candidate sets.
	Intrinsic bool

	Blocks []*BasicBlock

	Module *Module // owning module, set once inserted
}

func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

func (f *Function) Signature() Signature {
	sig := Signature{Result: f.Result, Variadic: f.Variadic}
	sig.Params = make([]Type, len(f.Params))
	for i, p := range f.Params {
		sig.Params[i] = p.Type
	}
	return sig
}

// EntryBlock returns the function's first basic block, or nil for a
// declaration.
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AddrTaken reports whether any instruction anywhere in the module
// references f by name other than as the direct callee of a call/invoke.
// A local-linkage function that is never address-taken cannot leak out of
// the module, so it can never be the target of an indirect call.
func (f *Function) AddrTaken() bool {
	if f.Module == nil {
		return false
	}
	for _, other := range f.Module.Functions {
		for _, b := range other.Blocks {
			for _, instr := range b.Instrs {
				// The callee position of a direct call/invoke is not
				// address-taking; every other operand position is.
				if !instr.IsCallSite() && valueRefersTo(instr.Callee, f.Name) {
					return true
				}
				for _, v := range [][]Value{instr.Args, instr.Operands} {
					for _, o := range v {
						if valueRefersTo(o, f.Name) {
							return true
						}
					}
				}
				if valueRefersTo(instr.Cond, f.Name) || valueRefersTo(instr.RetVal, f.Name) {
					return true
				}
			}
		}
	}
	for _, g := range f.Module.Globals {
		if valueRefersTo(g.Initializer, f.Name) {
			return true
		}
	}
	return false
}

func valueRefersTo(v Value, name string) bool {
	switch val := v.(type) {
	case GlobalRef:
		return val.Name == name
	case ConstAggregate:
		for _, e := range val.Elems {
			if valueRefersTo(e, name) {
				return true
			}
		}
	}
	return false
}

// CloneFunction deep-copies f under a new name, with identical parameters,
// result type, and body, and external linkage so the clone stays callable
// from another module. Callers needing a partial-argument binding perform
// the substitution on the returned clone via SubstituteParams.
func CloneFunction(f *Function, newName string) *Function {
	nf := &Function{
		Name:     newName,
		Params:   append([]Param(nil), f.Params...),
		Result:   f.Result,
		Variadic: f.Variadic,
		Linkage:  External,
	}
	nf.Blocks = make([]*BasicBlock, len(f.Blocks))
	for i, b := range f.Blocks {
		nb := b.Clone()
		nb.Func = nf
		nf.Blocks[i] = nb
	}
	return nf
}

// SubstituteParams rewrites every ParamRef in f's body according to subst:
// subst[i] is the replacement Value for ParamRef{Index: i}, or nil to leave
// that parameter reference untouched (the "hole" case, where the index will
// instead be renumbered by the caller). It also drops f.Params entries for
// indices that have a non-nil substitution, leaving only the holes, in the
// order they originally appeared.
func SubstituteParams(f *Function, subst []Value) {
	remap := make(map[int]int) // old hole index -> new hole index
	var newParams []Param
	for i, p := range f.Params {
		if i < len(subst) && subst[i] != nil {
			continue
		}
		remap[i] = len(newParams)
		newParams = append(newParams, p)
	}
	replace := func(v Value) Value {
		pr, ok := v.(ParamRef)
		if !ok {
			return v
		}
		if pr.Index < len(subst) && subst[pr.Index] != nil {
			return subst[pr.Index]
		}
		if ni, ok := remap[pr.Index]; ok {
			pr.Index = ni
			return pr
		}
		return v
	}
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			substituteInstr(instr, replace)
		}
	}
	f.Params = newParams
}

func substituteInstr(instr *Instruction, replace func(Value) Value) {
	if instr.Callee != nil {
		instr.Callee = substituteValue(instr.Callee, replace)
	}
	if instr.Cond != nil {
		instr.Cond = substituteValue(instr.Cond, replace)
	}
	if instr.RetVal != nil {
		instr.RetVal = substituteValue(instr.RetVal, replace)
	}
	for i, a := range instr.Args {
		instr.Args[i] = substituteValue(a, replace)
	}
	for i, o := range instr.Operands {
		instr.Operands[i] = substituteValue(o, replace)
	}
}

func substituteValue(v Value, replace func(Value) Value) Value {
	if agg, ok := v.(ConstAggregate); ok {
		elems := make([]Value, len(agg.Elems))
		for i, e := range agg.Elems {
			elems[i] = substituteValue(e, replace)
		}
		agg.Elems = elems
		return agg
	}
	return replace(v)
}
