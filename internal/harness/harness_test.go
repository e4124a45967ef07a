package harness

import (
	"testing"

	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
	"github.com/sri-occam/previrt/pkg/minimizer"
)

func fixtureModule() *ir.Module {
	m := ir.NewModule("fixture")
	main := &ir.Function{
		Name: "main", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{
			{Op: ir.OpCall, Type: ir.Scalar("void"), Callee: ir.GlobalRef{Name: "helper", T: ir.Scalar("ptr")}},
			{Op: ir.OpRet, Type: ir.Scalar("void")},
		}}},
	}
	helper := &ir.Function{
		Name: "helper", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{{Op: ir.OpRet, Type: ir.Scalar("void")}}}},
	}
	dead := &ir.Function{
		Name: "dead", Result: ir.Scalar("void"), Linkage: ir.External,
		Blocks: []*ir.BasicBlock{{Name: "entry", Instrs: []*ir.Instruction{{Op: ir.OpRet, Type: ir.Scalar("void")}}}},
	}
	m.AddFunction(main)
	m.AddFunction(helper)
	m.AddFunction(dead)
	return m
}

func TestHarnessMinimizePass(t *testing.T) {
	internal := ir.Internal
	external := ir.External

	Run(t, []TestCase{
		{
			Name:        "minimize demotes and removes dead function",
			BuildModule: fixtureModule,
			Pass: func(m *ir.Module) (bool, error) {
				iface := component.NewInterface()
				iface.RecordReference("main")
				return minimizer.Minimize(m, iface, nil)
			},
			ExpectedModified: true,
			ExpectedFunctions: []ExpectedFunc{
				{Name: "main", Linkage: &external},
				{Name: "helper", Linkage: &internal},
			},
			ExpectedAbsentFunctions: []string{"dead"},
		},
	})
}
