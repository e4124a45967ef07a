// Package ir models a compiled intermediate-representation module: named
// functions with basic blocks and instructions, globals, aliases, linkage,
// and the clone/retarget/DCE primitives the previrtualizer passes consume.
// It is deliberately partial — call sites and control flow are modeled
// structurally, everything else rides along as opaque operands — since the
// passes only ever inspect and rewrite calls.
package ir

import "strings"

// Linkage is the subset of object-level linkage kinds the minimizer's
// demotion table distinguishes.
type Linkage int

const (
	External Linkage = iota
	Internal
	ExternalWeak
	WeakODR
	Appending
	OtherLinkage
)

func (l Linkage) String() string {
	switch l {
	case External:
		return "external"
	case Internal:
		return "internal"
	case ExternalWeak:
		return "external-weak"
	case WeakODR:
		return "weak-one-definition-rule"
	case Appending:
		return "appending"
	default:
		return "other"
	}
}

// Demote returns the linkage demoted one visibility step: external becomes
// internal, external-weak becomes weak-one-definition-rule, appending stays
// appending. The bool reports whether the demotion is recognized; it is
// false, with l returned unchanged, for internal, weak-one-definition-rule,
// and "other".
func (l Linkage) Demote() (Linkage, bool) {
	switch l {
	case External:
		return Internal, true
	case ExternalWeak:
		return WeakODR, true
	case Appending:
		return Appending, true
	default:
		return l, false
	}
}

// Type is a lightweight structural type: either a scalar named primitive
// ("i32", "i64", "float", "double", "ptr", "void", ...), a pointer to
// another Type, or a function signature (for values that denote function
// pointers, needed by the devirtualizer's type-signature resolver).
type Type struct {
	Name string // non-empty for scalar/aggregate-by-name types
	Elem *Type  // non-nil for pointer types: Elem is the pointee
	Sig  *Signature
}

// Signature is a function type: parameter types, result type, variadic bit.
type Signature struct {
	Params   []Type
	Result   Type
	Variadic bool
}

func Scalar(name string) Type { return Type{Name: name} }

func PointerTo(elem Type) Type {
	e := elem
	return Type{Elem: &e}
}

func FuncPointer(sig Signature) Type {
	return Type{Sig: &sig}
}

func (t Type) IsPointer() bool { return t.Elem != nil }
func (t Type) IsFuncPtr() bool { return t.Sig != nil }

func (t Type) Pointee() Type {
	if t.Elem == nil {
		return Type{}
	}
	return *t.Elem
}

// Equal reports structural equality, used for materialization checks and
// for grouping function pointers by signature in the devirtualizer.
func (t Type) Equal(o Type) bool {
	switch {
	case t.Sig != nil && o.Sig != nil:
		return t.Sig.Equal(*o.Sig)
	case t.Sig != nil || o.Sig != nil:
		return false
	case t.Elem != nil && o.Elem != nil:
		return t.Elem.Equal(*o.Elem)
	case t.Elem != nil || o.Elem != nil:
		return false
	default:
		return t.Name == o.Name
	}
}

func (s Signature) Equal(o Signature) bool {
	if s.Variadic != o.Variadic || len(s.Params) != len(o.Params) || !s.Result.Equal(o.Result) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch {
	case t.Sig != nil:
		var b strings.Builder
		b.WriteByte('(')
		for i, p := range t.Sig.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		if t.Sig.Variadic {
			b.WriteString(", ...")
		}
		b.WriteString(") -> ")
		b.WriteString(t.Sig.Result.String())
		return b.String()
	case t.Elem != nil:
		return t.Elem.String() + "*"
	default:
		return t.Name
	}
}

func (s Signature) String() string {
	return Type{Sig: &s}.String()
}
