package devirt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sri-occam/previrt/internal/ir"
)

func sig() ir.Signature {
	return ir.Signature{Params: []ir.Type{ir.Scalar("i32")}, Result: ir.Scalar("i32")}
}

func fnOfSig(name string) *ir.Function {
	return &ir.Function{
		Name: name, Params: []ir.Param{{Name: "x", Type: ir.Scalar("i32")}}, Result: ir.Scalar("i32"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpRet, Type: ir.Scalar("void"), RetVal: ir.ConstInt{Width: 32, Val: 0}},
		}}},
	}
}

func TestTypeSignatureResolverSingleCandidate(t *testing.T) {
	m := ir.NewModule("t")
	m.AddFunction(fnOfSig("only"))

	r := NewTypeSignatureResolver(m)
	names, incomplete := r.Candidates(sig())
	require.False(t, incomplete)
	require.Equal(t, []string{"only"}, names)
}

func TestTypeSignatureResolverExcludesMain(t *testing.T) {
	m := ir.NewModule("t")
	main := fnOfSig("main")
	m.AddFunction(main)

	r := NewTypeSignatureResolver(m)
	names, _ := r.Candidates(sig())
	require.Empty(t, names)
}

func TestTypeSignatureResolverExcludesIntrinsic(t *testing.T) {
	m := ir.NewModule("t")
	memcpy := fnOfSig("llvm.memcpy")
	memcpy.Intrinsic = true
	memcpy.Blocks = nil
	m.AddFunction(memcpy)

	r := NewTypeSignatureResolver(m)
	names, _ := r.Candidates(sig())
	require.Empty(t, names)
}

func TestTypeSignatureResolverExcludesUnaddressedInternal(t *testing.T) {
	m := ir.NewModule("t")
	hidden := fnOfSig("hidden")
	hidden.Linkage = ir.Internal
	m.AddFunction(hidden)

	r := NewTypeSignatureResolver(m)
	names, _ := r.Candidates(sig())
	require.Empty(t, names)
}

func buildIndirectCallModule() (*ir.Module, *ir.Function) {
	m := ir.NewModule("t")
	a := fnOfSig("a")
	b := fnOfSig("b")
	m.AddFunction(a)
	m.AddFunction(b)

	caller := &ir.Function{
		Name: "caller", Params: []ir.Param{{Name: "fp", Type: ir.PointerTo(ir.Scalar("i8"))}}, Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpIndirectCall, Name: "r", Type: ir.Scalar("i32"),
				Callee: ir.ParamRef{Index: 0, Name: "fp", T: ir.PointerTo(ir.Scalar("i8"))},
				Args:   []ir.Value{ir.ConstInt{Width: 32, Val: 1}}},
			{Op: ir.OpRet, Type: ir.Scalar("void")},
		}}},
	}
	m.AddFunction(caller)
	return m, caller
}

func TestDevirtualizeSingleCandidatePromotesDirectly(t *testing.T) {
	m := ir.NewModule("t")
	m.AddFunction(fnOfSig("only"))
	_, caller := buildIndirectCallModule()
	m.AddFunction(caller)

	chain := ResolverChain{NewTypeSignatureResolver(m)}
	stats, err := Devirtualize(m, chain, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DirectPromotions)
	require.Equal(t, 0, stats.BounceSites)
	require.True(t, stats.Modified())

	promoted := caller.Blocks[0].Instrs[0]
	require.Equal(t, ir.OpCall, promoted.Op)
	callee, ok := promoted.Callee.(ir.GlobalRef)
	require.True(t, ok)
	require.Equal(t, "only", callee.Name)
}

func TestDevirtualizeMultiCandidateExpandsInlineDispatch(t *testing.T) {
	m, caller := buildIndirectCallModule()

	chain := ResolverChain{NewTypeSignatureResolver(m)}
	stats, err := Devirtualize(m, chain, Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DirectPromotions)
	require.Equal(t, 0, stats.BounceSites)

	// entry now branches into the dispatch chain; the chain holds one
	// test+call block pair per candidate, a default, and the continuation
	// carrying entry's old suffix.
	entry := caller.Blocks[0]
	require.Equal(t, ir.OpBr, entry.Instrs[len(entry.Instrs)-1].Op)
	require.Len(t, caller.Blocks, 7)

	var directCallees []string
	var sawUnreachable bool
	for _, b := range caller.Blocks[1:] {
		for _, instr := range b.Instrs {
			if instr.Op == ir.OpCall {
				directCallees = append(directCallees, instr.Callee.(ir.GlobalRef).Name)
				require.Equal(t, "r", instr.Name) // result lands in the original register
			}
			if instr.Op == ir.OpUnreachable {
				sawUnreachable = true
			}
		}
	}
	require.ElementsMatch(t, []string{"a", "b"}, directCallees)
	require.True(t, sawUnreachable)
}

func TestDevirtualizeAllowIndirectKeepsOriginalAsDefaultArm(t *testing.T) {
	m, caller := buildIndirectCallModule()

	chain := ResolverChain{NewTypeSignatureResolver(m)}
	_, err := Devirtualize(m, chain, Options{AllowIndirect: true}, nil)
	require.NoError(t, err)

	indirect, unreachable := 0, 0
	for _, b := range caller.Blocks {
		for _, instr := range b.Instrs {
			if instr.Op == ir.OpIndirectCall {
				indirect++
			}
			if instr.Op == ir.OpUnreachable {
				unreachable++
			}
		}
	}
	require.Equal(t, 1, indirect) // retained in the default arm only
	require.Zero(t, unreachable)
}

func TestDevirtualizeBounceMode(t *testing.T) {
	m, caller := buildIndirectCallModule()

	chain := ResolverChain{NewTypeSignatureResolver(m)}
	stats, err := Devirtualize(m, chain, Options{UseBounce: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.BounceSites)
	require.Equal(t, 0, stats.DirectPromotions)

	call := caller.Blocks[0].Instrs[0]
	require.Equal(t, ir.OpCall, call.Op)
	callee, ok := call.Callee.(ir.GlobalRef)
	require.True(t, ok)
	require.Contains(t, callee.Name, "__occam.bounce")

	bounce := m.Functions[callee.Name]
	require.NotNil(t, bounce)
	require.Equal(t, ir.Internal, bounce.Linkage)
	require.Len(t, bounce.Params, 2) // callee pointer + forwarded i32
	// bounce forwards the original callee pointer as its first argument
	require.Len(t, call.Args, 2)
}

func TestDevirtualizeTooManyCandidatesSkipsSite(t *testing.T) {
	m, _ := buildIndirectCallModule()

	chain := ResolverChain{NewTypeSignatureResolver(m)}
	stats, err := Devirtualize(m, chain, Options{MaxTargets: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TooManyCandidates)
	require.Equal(t, 0, stats.DirectPromotions)
	require.Equal(t, 0, stats.BounceSites)
}
