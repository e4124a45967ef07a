// Package minimizer shrinks a module's external surface to its component
// interface: symbols not visible across the interface are demoted to local
// linkage, then dead-code elimination and constant merging run to a
// fixpoint.
package minimizer

import (
	"log/slog"

	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
)

// maxFixpointIterations bounds the DCE/constant-merge loop. A normal
// fixpoint lands within tens of iterations; the cap protects against
// pathological inputs that oscillate or converge arbitrarily slowly.
const maxFixpointIterations = 10000

// localizeLinkage demotes a linkage one step: external becomes internal,
// external-weak becomes weak-one-definition-rule, and appending is left
// unchanged. Internal and weak-one-definition-rule are already local and
// are returned unchanged without a warning; OtherLinkage is left unchanged
// with a warning.
func localizeLinkage(l ir.Linkage, log *slog.Logger) ir.Linkage {
	demoted, ok := l.Demote()
	if !ok && l == ir.OtherLinkage {
		log.Warn("minimizer: unrecognized linkage, leaving unchanged", "linkage", l)
	}
	return demoted
}

// Minimize demotes linkage on every function definition and every global
// with an initializer not referenced across iface, then runs internal/ir.RunGlobalDCE and MergeConstants
// alternately until neither reports a change or the iteration cap is hit.
// Aliases are intentionally never touched: internalizing a system-library
// alias has broken real programs before, so the conservative behavior
// stands until someone analyzes the cases properly. Returns whether the
// module was modified.
func Minimize(m *ir.Module, iface *component.ComponentInterface, log *slog.Logger) (bool, error) {
	if log == nil {
		log = slog.Default()
	}
	if iface == nil {
		iface = component.NewInterface()
	}

	modified := false
	for _, f := range m.OrderedFunctions() {
		// Only definitions are demoted: a declaration's symbol is owned by
		// whichever module defines it, and internal linkage without a body
		// is malformed.
		if f.IsDeclaration() || iface.IsReferenced(f.Name) {
			continue
		}
		demoted := localizeLinkage(f.Linkage, log)
		if demoted != f.Linkage {
			f.Linkage = demoted
			modified = true
		}
	}
	for _, g := range m.OrderedGlobals() {
		if !g.HasInitializer || iface.IsReferenced(g.Name) {
			continue
		}
		demoted := localizeLinkage(g.Linkage, log)
		if demoted != g.Linkage {
			g.Linkage = demoted
			modified = true
		}
	}

	iterations := 0
	for {
		iterations++
		if iterations > maxFixpointIterations {
			log.Warn("minimizer: fixpoint iteration cap reached", "cap", maxFixpointIterations,
				"error", component.ErrFixpointExhausted)
			break
		}
		dceChanged := ir.RunGlobalDCE(m)
		mergeChanged := ir.MergeConstants(m)
		if dceChanged || mergeChanged {
			modified = true
			continue
		}
		break
	}
	log.Info("minimizer: pass complete", "modified", modified, "iterations", iterations)
	return modified, nil
}
