// Package rewriter replays a previously recorded
// ComponentInterfaceTransform's rewrite rules against a client module's
// call sites, retargeting matching calls to their specialized clones.
package rewriter

import (
	"log/slog"

	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
)

// callArgs converts a call instruction's materialized Values back into
// ConcreteArgument form for witness matching, treating anything that is not
// a recognized constant as unknown — an argument that is itself computed
// (an InstrRef or ParamRef) carries no compile-time constraint here.
func callArgs(instr *ir.Instruction) []component.ConcreteArgument {
	args := make([]component.ConcreteArgument, len(instr.Args))
	for i, v := range instr.Args {
		args[i] = fromValue(v)
	}
	return args
}

func fromValue(v ir.Value) component.ConcreteArgument {
	switch val := v.(type) {
	case ir.ConstInt:
		return component.Int(val.Width, val.Val)
	case ir.ConstFloat:
		return component.Float(val.Width, val.Val)
	case ir.ConstNull:
		return component.Null()
	case ir.ConstUndef:
		return component.Undef()
	case ir.GlobalRef:
		return component.Global(val.Name)
	case ir.ConstAggregate:
		elems := make([]component.ConcreteArgument, len(val.Elems))
		for i, e := range val.Elems {
			elems[i] = fromValue(e)
		}
		return component.Aggregate(elems...)
	default:
		return component.Unknown()
	}
}

// applyRewriteToCall retargets instr in place within block b: build the
// replacement call against rw.Target, forwarding the arguments named by
// rw.ArgPerm (or all of them, in order, if none were recorded), then
// splice it in.
func applyRewriteToCall(m *ir.Module, b *ir.BasicBlock, instr *ir.Instruction, rw component.CallRewrite, log *slog.Logger) {
	target := m.Functions[rw.Target]
	if target == nil {
		log.Warn("rewriter: rewrite target not found in module, skipping", "target", rw.Target, "error", component.ErrInvariantViolated)
		return
	}
	keep := rw.ArgPerm
	if keep == nil {
		// No permutation recorded: assume the rewrite only swaps the callee
		// and the signature is unchanged, forwarding every original
		// argument in place.
		keep = make([]int, len(instr.Args))
		for i := range instr.Args {
			keep[i] = i
		}
	}
	nc := ir.RetargetCall(instr, target, keep)
	b.Splice(instr, nc)
}

// RewriteWithUse applies transform's rewrites to every call site reachable
// through m.Uses — the primary, use-list-driven strategy. Uses that are not
// callee positions (a function pointer stored or passed as data) never show
// up in m.Uses and so are skipped; redirecting those would take pointer
// reasoning this pass does not perform. Returns whether any call site was
// rewritten.
func RewriteWithUse(m *ir.Module, transform *component.ComponentInterfaceTransform, log *slog.Logger) bool {
	if log == nil {
		log = slog.Default()
	}
	modified := false
	for _, fn := range distinctFunctions(transform) {
		for _, instr := range m.Uses(fn) {
			rw, ok := transform.LookupRewrite(fn, callArgs(instr))
			if !ok {
				continue
			}
			owner := ownerBlock(m, instr)
			if owner == nil {
				continue
			}
			applyRewriteToCall(m, owner, instr, rw, log)
			modified = true
		}
	}
	return modified
}

// RewriteWithScan applies transform's rewrites by scanning every call site
// in the module directly, restricted to calls whose callee is still a
// declaration (no body) in m: the interesting case, where m imports and
// calls into the specialized module. This fallback strategy is quadratic
// in total instructions but does not rely on use-lists being kept current
// by upstream passes. Indirect calls are skipped and left for pkg/devirt.
func RewriteWithScan(m *ir.Module, transform *component.ComponentInterfaceTransform, log *slog.Logger) bool {
	if log == nil {
		log = slog.Default()
	}
	modified := false
	for _, f := range m.OrderedFunctions() {
		for _, b := range f.Blocks {
			for _, instr := range append([]*ir.Instruction(nil), b.Instrs...) {
				if instr.Op == ir.OpIndirectCall || !instr.IsCallSite() {
					continue
				}
				callee, ok := instr.Callee.(ir.GlobalRef)
				if !ok {
					continue
				}
				target := m.Functions[callee.Name]
				if target == nil || !target.IsDeclaration() {
					continue
				}
				rw, ok := transform.LookupRewrite(callee.Name, callArgs(instr))
				if !ok {
					continue
				}
				applyRewriteToCall(m, b, instr, rw, log)
				modified = true
			}
		}
	}
	return modified
}

// Rewrite applies transform with the primary use-driven strategy.
func Rewrite(m *ir.Module, transform *component.ComponentInterfaceTransform, log *slog.Logger) bool {
	return RewriteWithUse(m, transform, log)
}

// distinctFunctions returns the set of callee names any rewrite in
// transform applies to, in first-seen order.
func distinctFunctions(transform *component.ComponentInterfaceTransform) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range transform.Rewrites {
		if !seen[r.Function] {
			seen[r.Function] = true
			names = append(names, r.Function)
		}
	}
	return names
}

func ownerBlock(m *ir.Module, instr *ir.Instruction) *ir.BasicBlock {
	for _, f := range m.OrderedFunctions() {
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				if i == instr {
					return b
				}
			}
		}
	}
	return nil
}
