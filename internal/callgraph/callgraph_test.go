package callgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sri-occam/previrt/internal/ir"
)

func callInstr(name string) *ir.Instruction {
	return &ir.Instruction{
		Op:     ir.OpCall,
		Type:   ir.Scalar("void"),
		Callee: ir.GlobalRef{Name: name, T: ir.Scalar("ptr")},
	}
}

func fn(name string, calls ...string) *ir.Function {
	b := &ir.BasicBlock{Name: "entry"}
	for _, c := range calls {
		b.Instrs = append(b.Instrs, callInstr(c))
	}
	return &ir.Function{Name: name, Result: ir.Scalar("void"), Linkage: ir.External, Blocks: []*ir.BasicBlock{b}}
}

func TestBuildAndCycle(t *testing.T) {
	m := ir.NewModule("t")
	m.AddFunction(fn("main", "a"))
	m.AddFunction(fn("a", "b"))
	m.AddFunction(fn("b", "a")) // a -> b -> a cycle
	m.AddFunction(fn("leaf"))

	g := Build(m)
	require.True(t, g.HasCycleThrough("a"))
	require.True(t, g.HasCycleThrough("b"))
	require.False(t, g.HasCycleThrough("main"))
	require.False(t, g.HasCycleThrough("leaf"))
}

func TestSuccessors(t *testing.T) {
	m := ir.NewModule("t")
	m.AddFunction(fn("main", "a", "b"))
	m.AddFunction(fn("a"))
	m.AddFunction(fn("b"))

	g := Build(m)
	succ := g.Successors("main")
	require.ElementsMatch(t, []string{"a", "b"}, succ)
}
