package ir

import "fmt"

// Value is the IR-level counterpart of component.ConcreteArgument once it
// has been materialized against a target type, plus the two non-constant
// kinds a cloned function body can reference: a reference to one of its own
// parameters, and the result of a preceding instruction.
type Value interface {
	ValueType() Type
	String() string
}

// ConstInt is an integer constant of a given bit width.
type ConstInt struct {
	Width int
	Val   int64
}

func (c ConstInt) ValueType() Type { return Scalar(fmt.Sprintf("i%d", c.Width)) }
func (c ConstInt) String() string  { return fmt.Sprintf("i%d %d", c.Width, c.Val) }

// ConstFloat is a floating-point constant.
type ConstFloat struct {
	Width int // 32 or 64
	Val   float64
}

func (c ConstFloat) ValueType() Type {
	if c.Width == 32 {
		return Scalar("float")
	}
	return Scalar("double")
}
func (c ConstFloat) String() string { return fmt.Sprintf("%s %v", c.ValueType(), c.Val) }

// ConstNull is a null pointer constant of a given pointer type.
type ConstNull struct {
	PtrType Type
}

func (c ConstNull) ValueType() Type { return c.PtrType }
func (c ConstNull) String() string  { return c.PtrType.String() + " null" }

// ConstUndef represents an unconstrained ("undef") value of a given type.
type ConstUndef struct {
	T Type
}

func (c ConstUndef) ValueType() Type { return c.T }
func (c ConstUndef) String() string  { return c.T.String() + " undef" }

// GlobalRef is a reference to a named global symbol (function or global
// variable) by name, typed at the referee's declared type.
type GlobalRef struct {
	Name string
	T    Type
}

func (g GlobalRef) ValueType() Type { return g.T }
func (g GlobalRef) String() string  { return "@" + g.Name }

// ConstAggregate is a constant aggregate (struct/array/vector) built from
// element values.
type ConstAggregate struct {
	T     Type
	Elems []Value
}

func (c ConstAggregate) ValueType() Type { return c.T }
func (c ConstAggregate) String() string {
	s := c.T.String() + " {"
	for i, e := range c.Elems {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + "}"
}

// ParamRef refers to one of the enclosing function's own parameters, by
// positional index. Only meaningful inside a Function's body.
type ParamRef struct {
	Index int
	Name  string
	T     Type
}

func (p ParamRef) ValueType() Type { return p.T }
func (p ParamRef) String() string  { return "%" + p.Name }

// InstrRef refers to the result of a preceding instruction in the same
// function, identified by the result register name assigned to it.
type InstrRef struct {
	Name string
	T    Type
}

func (i InstrRef) ValueType() Type { return i.T }
func (i InstrRef) String() string  { return "%" + i.Name }
