package component

import "sort"

// ComponentInterface is the observed usage surface of a component:
// every call made into it by its clients, and every other
// symbol referenced across the component boundary (address-taken functions,
// referenced globals). Built by scanning client modules, or loaded from a
// manifest produced by an earlier such scan.
type ComponentInterface struct {
	// Calls maps a callee name to the distinct argument-observation tuples
	// recorded against it. Each entry is a specialization candidate.
	Calls map[string][]CallInfo

	// References is the set of symbol names referenced other than as a
	// direct callee (e.g. taken as a function pointer, or a referenced
	// global variable). The minimizer must not hide or internalize any of
	// these.
	References map[string]bool
}

func NewInterface() *ComponentInterface {
	return &ComponentInterface{
		Calls:      make(map[string][]CallInfo),
		References: make(map[string]bool),
	}
}

// RecordCall adds an observed call, deduping against calls already recorded
// for the same callee.
func (ci *ComponentInterface) RecordCall(c CallInfo) {
	for _, existing := range ci.Calls[c.Callee] {
		if existing.Equal(c) {
			return
		}
	}
	ci.Calls[c.Callee] = append(ci.Calls[c.Callee], c)
}

// RecordReference marks name as referenced across the component boundary
// other than as a direct call.
func (ci *ComponentInterface) RecordReference(name string) {
	ci.References[name] = true
}

// IsCalled reports whether name appears as a callee anywhere in the
// interface.
func (ci *ComponentInterface) IsCalled(name string) bool {
	_, ok := ci.Calls[name]
	return ok
}

// IsReferenced reports whether name is referenced, either as a call target
// or otherwise. Anything in either set must survive minimization.
func (ci *ComponentInterface) IsReferenced(name string) bool {
	return ci.IsCalled(name) || ci.References[name]
}

// CalledNames returns every callee name in the interface, sorted, for
// deterministic iteration in the specializer driver.
func (ci *ComponentInterface) CalledNames() []string {
	names := make([]string, 0, len(ci.Calls))
	for n := range ci.Calls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge folds o's calls and references into ci, used when manifest loading
// combines interfaces observed from multiple client modules.
func (ci *ComponentInterface) Merge(o *ComponentInterface) {
	for _, callee := range o.CalledNames() {
		for _, c := range o.Calls[callee] {
			ci.RecordCall(c)
		}
	}
	for name := range o.References {
		ci.RecordReference(name)
	}
}
