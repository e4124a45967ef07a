// Package specializer clones component functions under partial argument
// bindings derived from observed calls, and records a rewrite rule for each
// clone so client call sites can later be redirected to it.
package specializer

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sri-occam/previrt/internal/callgraph"
	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
)

// ResolveFunction looks up name in m, following at most one alias hop.
// Returns nil if name names neither a function nor a function-aliasing
// alias.
func ResolveFunction(m *ir.Module, name string) *ir.Function {
	if f, ok := m.Functions[name]; ok {
		return f
	}
	if a, ok := m.Aliases[name]; ok {
		if f, ok := m.Functions[a.Aliasee]; ok {
			return f
		}
	}
	return nil
}

// nameCache memoizes per-function clone counters so every clone of the same
// source function gets a distinct serial suffix, and concurrent callers
// never mint the same name twice.
type nameCache struct {
	seen *xsync.Map[string, *atomic.Int64]
}

func newNameCache() *nameCache {
	return &nameCache{seen: xsync.NewMap[string, *atomic.Int64]()}
}

// mangle returns a clone name derived from base, unique within this cache:
// base.0, base.1, ... The first call for a given base returns base.0.
func (c *nameCache) mangle(base string) string {
	counter, _ := c.seen.LoadOrStore(base, &atomic.Int64{})
	n := counter.Add(1) - 1
	return fmt.Sprintf("%s.%d", base, n)
}

// CloneWithBinding clones fn under a fresh mangled name, substituting the
// witness's concrete arguments for the parameters selected by mask and
// renumbering the rest ("holes") as the clone's surviving parameters.
// Returns the clone and the arg permutation: for each surviving parameter,
// in order, the original argument index that feeds it. Fails without
// producing a clone if any selected witness value cannot be materialized
// against its parameter's declared type.
func CloneWithBinding(fn *ir.Function, witness []component.ConcreteArgument, mask []bool, names *nameCache) (*ir.Function, []int, error) {
	if len(witness) != len(fn.Params) {
		return nil, nil, fmt.Errorf("clone %s: witness arity %d != param arity %d: %w",
			fn.Name, len(witness), len(fn.Params), component.ErrArityMismatch)
	}

	subst := make([]ir.Value, len(witness))
	// argPerm is always non-nil once specialization runs, even if it ends up
	// empty (a fully-bound clone takes zero surviving parameters) — the
	// rewriter distinguishes "no permutation recorded, forward all args" (a
	// nil ArgPerm on a hand-authored rewrite) from "recorded, and it's the
	// empty list" (this clone).
	argPerm := make([]int, 0, len(witness))
	for i, w := range witness {
		if i >= len(mask) || !mask[i] {
			argPerm = append(argPerm, i)
			continue
		}
		v, err := w.Materialize(fn.Params[i].Type)
		if err != nil {
			return nil, nil, fmt.Errorf("clone %s: %w", fn.Name, err)
		}
		subst[i] = v
	}

	clone := ir.CloneFunction(fn, names.mangle(fn.Name))
	ir.SubstituteParams(clone, subst)
	return clone, argPerm, nil
}

// Policy selects which argument slots of an observed call are worth binding.
// The returned mask has one entry per argument slot; a nil or all-false mask
// means the call is not specialized. The driver never inspects a policy
// beyond this one call — composition happens at construction.
type Policy interface {
	SpecializeOn(fn string, call component.CallInfo) []bool
}

// AggressivePolicy binds every slot whose witness is a known constant.
type AggressivePolicy struct{}

func (AggressivePolicy) SpecializeOn(_ string, call component.CallInfo) []bool {
	mask := make([]bool, len(call.Args))
	any := false
	for i, a := range call.Args {
		if !a.IsUnknown() {
			mask[i] = true
			any = true
		}
	}
	if !any {
		return nil
	}
	return mask
}

// RecursiveGuardedPolicy wraps an inner policy and refuses to specialize any
// function participating in a call-graph cycle. Each clone of a recursive
// function may itself be specializable again, so unguarded recursive
// specialization risks unbounded clone growth.
type RecursiveGuardedPolicy struct {
	Inner Policy
	Graph *callgraph.Graph
}

func (p RecursiveGuardedPolicy) SpecializeOn(fn string, call component.CallInfo) []bool {
	if p.Graph != nil && p.Graph.HasCycleThrough(fn) {
		return nil
	}
	return p.Inner.SpecializeOn(fn, call)
}

func anySet(mask []bool) bool {
	for _, b := range mask {
		if b {
			return true
		}
	}
	return false
}

// Specialize drives specialization of every function named in iface's Calls
// against m, under policy, appending a CallRewrite to the returned transform
// for each successful clone. Existing functions are never mutated — only
// clones are added. Declarations and variadic functions are never
// specialized, and a witness whose arity mismatches the resolved function's
// is skipped (logged) rather than aborting the whole pass.
func Specialize(m *ir.Module, iface *component.ComponentInterface, policy Policy, log *slog.Logger) (*component.ComponentInterfaceTransform, error) {
	if log == nil {
		log = slog.Default()
	}
	names := newNameCache()
	transform := component.NewTransform()
	transform.Iface = iface

	rewriteCount := 0
	for _, callee := range iface.CalledNames() {
		fn := ResolveFunction(m, callee)
		if fn == nil {
			log.Warn("specializer: callee not found, skipping", "callee", callee)
			continue
		}
		if fn.IsDeclaration() {
			continue // nothing to clone
		}
		if fn.Variadic {
			continue // binding positional args to a variadic signature is unsound
		}

		for _, call := range iface.Calls[callee] {
			if len(call.Args) != len(fn.Params) {
				log.Warn("specializer: arity mismatch, skipping witness",
					"callee", callee, "witness_arity", len(call.Args), "param_arity", len(fn.Params))
				continue
			}
			mask := policy.SpecializeOn(callee, call)
			if !anySet(mask) {
				continue
			}

			clone, argPerm, err := CloneWithBinding(fn, call.Args, mask, names)
			if err != nil {
				log.Warn("specializer: skipping witness", "callee", callee, "error", err)
				continue
			}
			clone.Linkage = ir.External
			m.AddFunction(clone)

			transform.RecordRewrite(component.CallRewrite{
				Function: callee,
				Witness:  call.Args,
				Target:   clone.Name,
				ArgPerm:  argPerm,
			})
			rewriteCount++
		}
	}
	log.Info("specializer: pass complete", "rewrites", rewriteCount)
	return transform, nil
}
