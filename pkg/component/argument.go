package component

import (
	"fmt"

	"github.com/sri-occam/previrt/internal/ir"
)

// ArgKind discriminates the concrete-argument sum type.
type ArgKind int

const (
	ArgInt ArgKind = iota
	ArgFloat
	ArgNull
	ArgUndef
	ArgGlobal
	ArgAggregate
	ArgUnknown
)

// ConcreteArgument is a compile-time-known value appearing in an observed
// call, or "unknown" meaning "not constrained". Every field beyond Kind is
// only meaningful for the corresponding kind.
type ConcreteArgument struct {
	Kind ArgKind

	IntWidth int
	IntVal   int64

	FloatWidth int
	FloatVal   float64

	GlobalName string

	AggregateElems []ConcreteArgument
}

func Int(width int, val int64) ConcreteArgument {
	return ConcreteArgument{Kind: ArgInt, IntWidth: width, IntVal: val}
}

func Float(width int, val float64) ConcreteArgument {
	return ConcreteArgument{Kind: ArgFloat, FloatWidth: width, FloatVal: val}
}

func Null() ConcreteArgument { return ConcreteArgument{Kind: ArgNull} }

func Undef() ConcreteArgument { return ConcreteArgument{Kind: ArgUndef} }

func Global(name string) ConcreteArgument {
	return ConcreteArgument{Kind: ArgGlobal, GlobalName: name}
}

func Aggregate(elems ...ConcreteArgument) ConcreteArgument {
	return ConcreteArgument{Kind: ArgAggregate, AggregateElems: elems}
}

func Unknown() ConcreteArgument { return ConcreteArgument{Kind: ArgUnknown} }

// IsUnknown reports whether the argument carries no constraint.
func (a ConcreteArgument) IsUnknown() bool { return a.Kind == ArgUnknown }

// Materialize coerces a to a concrete ir.Value of type t, wrapping
// ErrTypeCoercionFailed when the value cannot be coerced to the expected
// type.
func (a ConcreteArgument) Materialize(t ir.Type) (ir.Value, error) {
	switch a.Kind {
	case ArgInt:
		if !isIntType(t) {
			return nil, fmt.Errorf("materialize %s as %s: %w", a, t, ErrTypeCoercionFailed)
		}
		return ir.ConstInt{Width: a.IntWidth, Val: a.IntVal}, nil
	case ArgFloat:
		if t.Name != "float" && t.Name != "double" {
			return nil, fmt.Errorf("materialize %s as %s: %w", a, t, ErrTypeCoercionFailed)
		}
		return ir.ConstFloat{Width: a.FloatWidth, Val: a.FloatVal}, nil
	case ArgNull:
		if !t.IsPointer() && !t.IsFuncPtr() {
			return nil, fmt.Errorf("materialize null as %s: %w", t, ErrTypeCoercionFailed)
		}
		return ir.ConstNull{PtrType: t}, nil
	case ArgUndef:
		return ir.ConstUndef{T: t}, nil
	case ArgGlobal:
		return ir.GlobalRef{Name: a.GlobalName, T: t}, nil
	case ArgAggregate:
		vals := make([]ir.Value, len(a.AggregateElems))
		for i, e := range a.AggregateElems {
			v, err := e.Materialize(t) // element type unknown to this generic substrate; reuse t
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return ir.ConstAggregate{T: t, Elems: vals}, nil
	case ArgUnknown:
		return nil, fmt.Errorf("materialize unknown argument: %w", ErrTypeCoercionFailed)
	default:
		return nil, fmt.Errorf("materialize: unrecognized argument kind %d: %w", a.Kind, ErrTypeCoercionFailed)
	}
}

func isIntType(t ir.Type) bool {
	if t.IsPointer() || t.IsFuncPtr() || len(t.Name) == 0 {
		return false
	}
	return t.Name[0] == 'i'
}

// Matches implements the witness-matching rule: w (the witness slot)
// matches actual iff w is unknown, or actual is a constant
// structurally equal to w — integers equal numerically regardless of width
// (so long as actual's declared width does not exceed the witness's),
// globals equal by symbol name, nulls/undefs equal by kind, aggregates
// equal element-wise.
func (w ConcreteArgument) Matches(actual ConcreteArgument) bool {
	if w.IsUnknown() {
		return true
	}
	if actual.IsUnknown() {
		return false
	}
	if w.Kind != actual.Kind {
		return false
	}
	switch w.Kind {
	case ArgInt:
		return w.IntVal == actual.IntVal && actual.IntWidth <= w.IntWidth
	case ArgFloat:
		return w.FloatVal == actual.FloatVal
	case ArgNull, ArgUndef:
		return true
	case ArgGlobal:
		return w.GlobalName == actual.GlobalName
	case ArgAggregate:
		if len(w.AggregateElems) != len(actual.AggregateElems) {
			return false
		}
		for i := range w.AggregateElems {
			if !w.AggregateElems[i].Matches(actual.AggregateElems[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (a ConcreteArgument) String() string {
	switch a.Kind {
	case ArgInt:
		return fmt.Sprintf("i%d %d", a.IntWidth, a.IntVal)
	case ArgFloat:
		return fmt.Sprintf("f%d %v", a.FloatWidth, a.FloatVal)
	case ArgNull:
		return "null"
	case ArgUndef:
		return "undef"
	case ArgGlobal:
		return "@" + a.GlobalName
	case ArgAggregate:
		return fmt.Sprintf("aggregate(%d elems)", len(a.AggregateElems))
	default:
		return "?"
	}
}
