package ir

// Global is a module-level variable.
type Global struct {
	Name           string
	Type           Type
	Linkage        Linkage
	HasInitializer bool
	Initializer    Value // nil if HasInitializer is false

	Module *Module
}

// Alias is a named alias for another global symbol (function or global),
// resolved one level deep by name. The minimizer leaves aliases untouched;
// the specializer's resolver follows one level of alias when resolving an
// interface name to a definition.
type Alias struct {
	Name    string
	Aliasee string
	Linkage Linkage
}

// Module is a named collection of functions, globals, and aliases — the
// unit the previrtualizer's passes operate on. Functions/Globals/Aliases
// are keyed by name; FuncOrder/GlobalOrder/AliasOrder record insertion
// order for deterministic iteration, matching a real IR module's function
// list ordering.
type Module struct {
	Name string

	Functions map[string]*Function
	FuncOrder []string

	Globals     map[string]*Global
	GlobalOrder []string

	Aliases    map[string]*Alias
	AliasOrder []string
}

func NewModule(name string) *Module {
	return &Module{
		Name:      name,
		Functions: make(map[string]*Function),
		Globals:   make(map[string]*Global),
		Aliases:   make(map[string]*Alias),
	}
}

// AddFunction inserts f into the module, taking ownership of it. Re-adding
// a function already owned by m is a no-op, mirroring the specializer
// driver's "already in module" check.
func (m *Module) AddFunction(f *Function) {
	if f.Module == m {
		return
	}
	if _, exists := m.Functions[f.Name]; !exists {
		m.FuncOrder = append(m.FuncOrder, f.Name)
	}
	f.Module = m
	m.Functions[f.Name] = f
	for _, b := range f.Blocks {
		b.Func = f
	}
}

func (m *Module) RemoveFunction(name string) {
	if _, ok := m.Functions[name]; !ok {
		return
	}
	delete(m.Functions, name)
	m.FuncOrder = removeName(m.FuncOrder, name)
}

func (m *Module) AddGlobal(g *Global) {
	if _, exists := m.Globals[g.Name]; !exists {
		m.GlobalOrder = append(m.GlobalOrder, g.Name)
	}
	g.Module = m
	m.Globals[g.Name] = g
}

func (m *Module) RemoveGlobal(name string) {
	if _, ok := m.Globals[name]; !ok {
		return
	}
	delete(m.Globals, name)
	m.GlobalOrder = removeName(m.GlobalOrder, name)
}

func (m *Module) AddAlias(a *Alias) {
	if _, exists := m.Aliases[a.Name]; !exists {
		m.AliasOrder = append(m.AliasOrder, a.Name)
	}
	m.Aliases[a.Name] = a
}

func removeName(order []string, name string) []string {
	out := order[:0]
	for _, n := range order {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// OrderedFunctions returns the module's functions in insertion order.
func (m *Module) OrderedFunctions() []*Function {
	fs := make([]*Function, 0, len(m.FuncOrder))
	for _, n := range m.FuncOrder {
		if f, ok := m.Functions[n]; ok {
			fs = append(fs, f)
		}
	}
	return fs
}

// OrderedGlobals returns the module's globals in insertion order.
func (m *Module) OrderedGlobals() []*Global {
	gs := make([]*Global, 0, len(m.GlobalOrder))
	for _, n := range m.GlobalOrder {
		if g, ok := m.Globals[n]; ok {
			gs = append(gs, g)
		}
	}
	return gs
}

// Uses returns every call-site instruction anywhere in the module whose
// Callee directly names fn — the use-list the rewriter's use-driven
// strategy consults.
func (m *Module) Uses(fnName string) []*Instruction {
	var uses []*Instruction
	for _, f := range m.OrderedFunctions() {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				if !instr.IsCallSite() {
					continue
				}
				if g, ok := instr.Callee.(GlobalRef); ok && g.Name == fnName {
					uses = append(uses, instr)
				}
			}
		}
	}
	return uses
}
