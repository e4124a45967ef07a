package ir

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModuleRoundTrip(t *testing.T) {
	m := NewModule("t")
	m.AddGlobal(&Global{Name: "g", Type: Scalar("i32"), Linkage: Internal, HasInitializer: true, Initializer: ConstInt{Width: 32, Val: 9}})
	m.AddFunction(&Function{
		Name:    "main",
		Result:  Scalar("void"),
		Linkage: External,
		Blocks: []*BasicBlock{{
			Name: "entry",
			Instrs: []*Instruction{
				{Op: OpCall, Type: Scalar("void"), Callee: GlobalRef{Name: "helper", T: Scalar("ptr")},
					Args: []Value{ConstInt{Width: 32, Val: 1}, GlobalRef{Name: "g", T: PointerTo(Scalar("i32"))}}},
				{Op: OpRet, Type: Scalar("void")},
			},
		}},
	})
	m.AddAlias(&Alias{Name: "a", Aliasee: "main", Linkage: External})

	path := filepath.Join(t.TempDir(), "module.yaml")
	require.NoError(t, StoreModule(path, m))

	loaded, err := LoadModule(path)
	require.NoError(t, err)
	require.Equal(t, "t", loaded.Name)
	require.NotNil(t, loaded.Functions["main"])
	require.Equal(t, External, loaded.Functions["main"].Linkage)
	require.Len(t, loaded.Functions["main"].Blocks[0].Instrs, 2)

	callInstr := loaded.Functions["main"].Blocks[0].Instrs[0]
	callee, ok := callInstr.Callee.(GlobalRef)
	require.True(t, ok)
	require.Equal(t, "helper", callee.Name)
	require.Len(t, callInstr.Args, 2)

	require.Equal(t, int64(9), loaded.Globals["g"].Initializer.(ConstInt).Val)
	require.Equal(t, "main", loaded.Aliases["a"].Aliasee)
}
