// Package devirt resolves indirect call sites to a finite candidate set
// and rewrites each site into a direct call or a bounded dispatch over the
// candidates.
package devirt

import (
	"sort"
	"strings"

	"github.com/sri-occam/previrt/internal/ir"
)

// Resolver maps an indirect call site's signature to a finite, possibly
// incomplete, set of candidate callee names. The returned incomplete bit
// reports whether the resolver's analysis might be missing targets (true)
// or is guaranteed closed-world (false).
type Resolver interface {
	Candidates(sig ir.Signature) (names []string, incomplete bool)
}

// typeAliasID canonicalizes a function-pointer type for bucketing, looking
// through at most one level of pointer-to-pointer indirection — the common
// pattern where a function of one signature is called through a pointer of
// another.
func typeAliasID(t ir.Type) string {
	if t.IsPointer() && t.Pointee().IsPointer() {
		return t.Pointee().String()
	}
	return t.String()
}

// excludedByName reports whether fn is excluded from every candidate set
// regardless of signature match: the entry point, and the seahorn/verifier
// instrumentation namespaces that a program never legitimately calls
// through a function pointer.
func excludedByName(fn string) bool {
	if fn == "main" {
		return true
	}
	return strings.HasPrefix(fn, "seahorn.") || strings.HasPrefix(fn, "verifier.")
}

// TypeSignatureResolver buckets every function definition or declaration in
// a module by its (canonicalized) function-pointer type, then answers
// Candidates by signature lookup. It excludes intrinsics, instrumentation
// names, and any function with Internal/WeakODR linkage that is not
// address-taken anywhere in the module — such a function cannot leak and so
// can never be an indirect-call target.
type TypeSignatureResolver struct {
	buckets map[string][]string // typeAliasID(funcPointerType) -> sorted candidate names
}

func NewTypeSignatureResolver(m *ir.Module) *TypeSignatureResolver {
	r := &TypeSignatureResolver{buckets: make(map[string][]string)}
	for _, f := range m.OrderedFunctions() {
		if f.Intrinsic || excludedByName(f.Name) {
			continue
		}
		if (f.Linkage == ir.Internal || f.Linkage == ir.WeakODR) && !f.AddrTaken() {
			continue
		}
		key := typeAliasID(ir.FuncPointer(f.Signature()))
		r.buckets[key] = append(r.buckets[key], f.Name)
	}
	for key := range r.buckets {
		sort.Strings(r.buckets[key])
	}
	return r
}

// Candidates implements Resolver. Type-signature matching is always
// closed-world within the current module, so it never claims
// incompleteness.
func (r *TypeSignatureResolver) Candidates(sig ir.Signature) (names []string, incomplete bool) {
	key := typeAliasID(ir.FuncPointer(sig))
	return r.buckets[key], false
}

// PointsToResolver marks a resolver backed by a whole-program points-to
// analysis. The analysis itself lives outside this module; it reports
// non-closed-world answers as incomplete so the driver can honor the
// resolve-incomplete flag.
type PointsToResolver interface {
	Resolver
}

// CHAResolver marks a resolver backed by an external class-hierarchy
// analysis that recognizes virtual-dispatch sites and collects override
// candidates. Consulted first when configured.
type CHAResolver interface {
	Resolver
}

// ResolverChain tries each Resolver in order; the first one that produces
// a non-empty candidate set wins.
type ResolverChain []Resolver

func (chain ResolverChain) Candidates(sig ir.Signature) ([]string, bool) {
	for _, r := range chain {
		if r == nil {
			continue
		}
		names, incomplete := r.Candidates(sig)
		if len(names) > 0 {
			return names, incomplete
		}
	}
	return nil, true
}
