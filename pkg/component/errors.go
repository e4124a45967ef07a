// Package component defines the data model a previrtualized component is
// described by: concrete arguments, observed calls, the component
// interface, rewrite rules, and the rewrite manifest, plus their versioned
// YAML serialization.
package component

import "errors"

// Sentinel errors for every recoverable failure the passes can hit. Driver
// loops across pkg/specializer, pkg/minimizer, pkg/rewriter, and pkg/devirt
// log them (directly or wrapped) and continue; none of them abort a pass.
// Callers can match them with errors.Is.
var (
	// ErrManifestMalformed: a manifest file failed to parse or failed its
	// version check. The pass becomes inert (its interface/transform field
	// is absent downstream).
	ErrManifestMalformed = errors.New("component: manifest malformed")

	// ErrArityMismatch: a witness's argument count does not match the
	// callee's parameter count.
	ErrArityMismatch = errors.New("component: arity mismatch")

	// ErrTypeCoercionFailed: a concrete argument could not be materialized
	// against its parameter's declared type.
	ErrTypeCoercionFailed = errors.New("component: type coercion failed")

	// ErrResolutionIncomplete: a devirtualization candidate set is not
	// closed-world and incomplete resolution is not permitted.
	ErrResolutionIncomplete = errors.New("component: devirt resolution incomplete")

	// ErrTooManyCandidates: a devirtualization candidate set exceeds the
	// configured cap.
	ErrTooManyCandidates = errors.New("component: too many devirt candidates")

	// ErrUnknownLinkage: the minimizer encountered a linkage kind it does
	// not know how to demote.
	ErrUnknownLinkage = errors.New("component: unknown linkage")

	// ErrFixpointExhausted: the minimizer's iteration cap was reached
	// before a fixpoint; the module may retain residual dead code.
	ErrFixpointExhausted = errors.New("component: fixpoint exhausted")

	// ErrInvariantViolated marks a programmer-error condition: pkg/rewriter
	// reports it when a rewrite rule's target function is missing from the
	// module, logs it, and leaves that call site unchanged without aborting
	// the pass.
	ErrInvariantViolated = errors.New("component: internal invariant violated")
)
