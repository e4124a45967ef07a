package rewriter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
	"github.com/sri-occam/previrt/pkg/specializer"
)

func buildModule() *ir.Module {
	m := ir.NewModule("t")

	target := &ir.Function{
		Name: "work.0", Result: ir.Scalar("i32"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpRet, Type: ir.Scalar("void"), RetVal: ir.ConstInt{Width: 32, Val: 0}},
		}}},
	}
	work := &ir.Function{
		Name: "work", Params: []ir.Param{{Name: "x", Type: ir.Scalar("i32")}}, Result: ir.Scalar("i32"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpRet, Type: ir.Scalar("void"), RetVal: ir.ConstInt{Width: 32, Val: 0}},
		}}},
	}
	caller := &ir.Function{
		Name: "main", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpCall, Name: "r", Type: ir.Scalar("i32"),
				Callee: ir.GlobalRef{Name: "work", T: ir.Scalar("ptr")},
				Args:   []ir.Value{ir.ConstInt{Width: 32, Val: 7}}},
			{Op: ir.OpRet, Type: ir.Scalar("void")},
		}}},
	}
	m.AddFunction(target)
	m.AddFunction(work)
	m.AddFunction(caller)
	return m
}

func TestRewriteWithUseRetargetsMatchingCall(t *testing.T) {
	m := buildModule()
	transform := component.NewTransform()
	transform.RecordRewrite(component.CallRewrite{
		Function: "work",
		Witness:  []component.ConcreteArgument{component.Int(32, 7)},
		Target:   "work.0",
	})

	modified := RewriteWithUse(m, transform, nil)
	require.True(t, modified)

	caller := m.Functions["main"]
	callInstr := caller.Blocks[0].Instrs[0]
	callee, ok := callInstr.Callee.(ir.GlobalRef)
	require.True(t, ok)
	require.Equal(t, "work.0", callee.Name)
}

func TestRewriteWithUseLeavesNonMatchingCallAlone(t *testing.T) {
	m := buildModule()
	transform := component.NewTransform()
	transform.RecordRewrite(component.CallRewrite{
		Function: "work",
		Witness:  []component.ConcreteArgument{component.Int(32, 99)}, // does not match the 7 in the fixture
		Target:   "work.0",
	})

	modified := RewriteWithUse(m, transform, nil)
	require.False(t, modified)

	caller := m.Functions["main"]
	callee := caller.Blocks[0].Instrs[0].Callee.(ir.GlobalRef)
	require.Equal(t, "work", callee.Name)
}

func TestRewriteWithScanOnlyTouchesDeclarations(t *testing.T) {
	m := buildModule() // "work" has a body, so the scan strategy must not touch calls to it
	transform := component.NewTransform()
	transform.RecordRewrite(component.CallRewrite{
		Function: "work",
		Witness:  []component.ConcreteArgument{component.Int(32, 7)},
		Target:   "work.0",
	})

	modified := RewriteWithScan(m, transform, nil)
	require.False(t, modified)
}

// Exercises the whole offline/online flow: specialize a library module
// against an observed call, then replay the resulting transform against a
// client module that makes both a matching and a non-matching call.
func TestSpecializeThenRewritePropagates(t *testing.T) {
	lib := ir.NewModule("lib")
	lib.AddFunction(&ir.Function{
		Name:    "add",
		Params:  []ir.Param{{Name: "a", Type: ir.Scalar("i32")}, {Name: "b", Type: ir.Scalar("i32")}},
		Result:  ir.Scalar("i32"),
		Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpOther, Name: "sum", Type: ir.Scalar("i32"), Operands: []ir.Value{
				ir.ParamRef{Index: 0, Name: "a", T: ir.Scalar("i32")},
				ir.ParamRef{Index: 1, Name: "b", T: ir.Scalar("i32")},
			}},
			{Op: ir.OpRet, Type: ir.Scalar("void"), RetVal: ir.InstrRef{Name: "sum", T: ir.Scalar("i32")}},
		}}},
	})

	iface := component.NewInterface()
	iface.RecordCall(component.CallInfo{Callee: "add", Args: []component.ConcreteArgument{component.Int(32, 3), component.Unknown()}})

	transform, err := specializer.Specialize(lib, iface, specializer.AggressivePolicy{}, nil)
	require.NoError(t, err)
	require.Len(t, transform.Rewrites, 1)
	require.Equal(t, []int{1}, transform.Rewrites[0].ArgPerm)

	clone := lib.Functions["add.0"]
	require.NotNil(t, clone)
	require.Len(t, clone.Params, 1)
	require.Equal(t, ir.External, clone.Linkage)

	client := ir.NewModule("client")
	client.AddFunction(&ir.Function{Name: "add.0", Params: []ir.Param{{Name: "b", Type: ir.Scalar("i32")}}, Result: ir.Scalar("i32"), Linkage: ir.External})
	client.AddFunction(&ir.Function{
		Name: "main", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpCall, Name: "r1", Type: ir.Scalar("i32"),
				Callee: ir.GlobalRef{Name: "add", T: ir.Scalar("ptr")},
				Args:   []ir.Value{ir.ConstInt{Width: 32, Val: 3}, ir.InstrRef{Name: "x", T: ir.Scalar("i32")}}},
			{Op: ir.OpCall, Name: "r2", Type: ir.Scalar("i32"),
				Callee: ir.GlobalRef{Name: "add", T: ir.Scalar("ptr")},
				Args:   []ir.Value{ir.ConstInt{Width: 32, Val: 4}, ir.InstrRef{Name: "x", T: ir.Scalar("i32")}}},
			{Op: ir.OpRet, Type: ir.Scalar("void")},
		}}},
	})

	modified := RewriteWithUse(client, transform, nil)
	require.True(t, modified)

	instrs := client.Functions["main"].Blocks[0].Instrs
	first := instrs[0]
	require.Equal(t, "add.0", first.Callee.(ir.GlobalRef).Name)
	require.Len(t, first.Args, 1) // the bound constant is gone; only x is forwarded
	require.Equal(t, "r1", first.Name)

	second := instrs[1]
	require.Equal(t, "add", second.Callee.(ir.GlobalRef).Name) // 4 does not match the witness
	require.Len(t, second.Args, 2)
}

func TestRewriteWithScanRewritesDeclaration(t *testing.T) {
	m := ir.NewModule("t")
	decl := &ir.Function{Name: "ext", Result: ir.Scalar("i32"), Linkage: ir.External} // declaration: no blocks
	target := &ir.Function{
		Name: "ext.0", Result: ir.Scalar("i32"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{{Op: ir.OpRet, Type: ir.Scalar("void")}}}},
	}
	caller := &ir.Function{
		Name: "main", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpCall, Type: ir.Scalar("i32"), Callee: ir.GlobalRef{Name: "ext", T: ir.Scalar("ptr")}},
			{Op: ir.OpRet, Type: ir.Scalar("void")},
		}}},
	}
	m.AddFunction(decl)
	m.AddFunction(target)
	m.AddFunction(caller)

	transform := component.NewTransform()
	transform.RecordRewrite(component.CallRewrite{Function: "ext", Witness: []component.ConcreteArgument{}, Target: "ext.0"})

	modified := RewriteWithScan(m, transform, nil)
	require.True(t, modified)
	require.Equal(t, "ext.0", caller.Blocks[0].Instrs[0].Callee.(ir.GlobalRef).Name)
}
