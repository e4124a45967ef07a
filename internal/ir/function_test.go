package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneFunctionIsDeep(t *testing.T) {
	f := &Function{
		Name:    "f",
		Params:  []Param{{Name: "x", Type: Scalar("i32")}},
		Result:  Scalar("i32"),
		Linkage: Internal,
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{
			{Op: OpRet, Type: Scalar("void"), RetVal: ParamRef{Index: 0, Name: "x", T: Scalar("i32")}},
		}}},
	}

	clone := CloneFunction(f, "f.0")
	require.Equal(t, "f.0", clone.Name)
	require.Equal(t, External, clone.Linkage)
	require.Len(t, clone.Blocks, 1)
	require.NotSame(t, f.Blocks[0], clone.Blocks[0])
	require.NotSame(t, f.Blocks[0].Instrs[0], clone.Blocks[0].Instrs[0])
}

func TestSubstituteParamsBindsAndRenumbers(t *testing.T) {
	f := &Function{
		Name: "f",
		Params: []Param{
			{Name: "a", Type: Scalar("i32")},
			{Name: "b", Type: Scalar("i32")},
			{Name: "c", Type: Scalar("i32")},
		},
		Result: Scalar("i32"),
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{
			{Op: OpOther, Name: "t", Type: Scalar("i32"), Operands: []Value{
				ParamRef{Index: 0, Name: "a", T: Scalar("i32")},
				ParamRef{Index: 1, Name: "b", T: Scalar("i32")},
				ParamRef{Index: 2, Name: "c", T: Scalar("i32")},
			}},
			{Op: OpRet, Type: Scalar("void"), RetVal: InstrRef{Name: "t", T: Scalar("i32")}},
		}}},
	}

	// bind the middle parameter; a and c remain as holes 0 and 1
	SubstituteParams(f, []Value{nil, ConstInt{Width: 32, Val: 5}, nil})

	require.Len(t, f.Params, 2)
	require.Equal(t, "a", f.Params[0].Name)
	require.Equal(t, "c", f.Params[1].Name)

	ops := f.Blocks[0].Instrs[0].Operands
	require.Equal(t, 0, ops[0].(ParamRef).Index)
	require.Equal(t, ConstInt{Width: 32, Val: 5}, ops[1])
	require.Equal(t, 1, ops[2].(ParamRef).Index)
}

func TestAddrTaken(t *testing.T) {
	m := NewModule("t")
	callee := &Function{Name: "callee", Result: Scalar("void"), Linkage: Internal,
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{{Op: OpRet, Type: Scalar("void")}}}}}
	leaked := &Function{Name: "leaked", Result: Scalar("void"), Linkage: Internal,
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{{Op: OpRet, Type: Scalar("void")}}}}}
	user := &Function{
		Name: "user", Result: Scalar("void"), Linkage: External,
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{
			// direct call: callee's address is not taken by this
			{Op: OpCall, Type: Scalar("void"), Callee: GlobalRef{Name: "callee", T: Scalar("ptr")}},
			// leaked passed as data
			{Op: OpCall, Type: Scalar("void"), Callee: GlobalRef{Name: "sink", T: Scalar("ptr")},
				Args: []Value{GlobalRef{Name: "leaked", T: Scalar("ptr")}}},
			{Op: OpRet, Type: Scalar("void")},
		}}},
	}
	m.AddFunction(callee)
	m.AddFunction(leaked)
	m.AddFunction(user)

	require.False(t, callee.AddrTaken())
	require.True(t, leaked.AddrTaken())
}

func TestAddrTakenThroughGlobalInitializer(t *testing.T) {
	m := NewModule("t")
	fp := &Function{Name: "handler", Result: Scalar("void"), Linkage: Internal,
		Blocks: []*BasicBlock{{Name: "entry", Instrs: []*Instruction{{Op: OpRet, Type: Scalar("void")}}}}}
	m.AddFunction(fp)
	m.AddGlobal(&Global{
		Name: "vtable", Type: Scalar("table"), Linkage: Internal, HasInitializer: true,
		Initializer: ConstAggregate{T: Scalar("table"), Elems: []Value{GlobalRef{Name: "handler", T: Scalar("ptr")}}},
	})

	require.True(t, fp.AddrTaken())
}
