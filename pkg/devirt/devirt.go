package devirt

import (
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
)

// Options configures Devirtualize.
type Options struct {
	// ResolveIncomplete permits rewriting a site even when the resolver
	// cannot guarantee its candidate set is closed-world.
	ResolveIncomplete bool

	// AllowIndirect keeps the original indirect call as the dispatch's
	// default arm instead of an unreachable. Leaving the indirect call
	// defeats part of the purpose, but removing it is unsound whenever the
	// candidate set may be incomplete, so the choice is an explicit flag
	// rather than a silent default.
	AllowIndirect bool

	// MaxTargets abandons a site if its candidate count exceeds this.
	// 0 means unbounded.
	MaxTargets int

	// UseBounce emits one cached internal dispatch function per distinct
	// (signature, candidate set) and redirects call sites to it, instead of
	// expanding the dispatch inline at each site.
	UseBounce bool
}

// Stats counts the outcomes of one Devirtualize run.
type Stats struct {
	TotalCallSites    int
	CompleteCallSites int
	ResolvedCallSites int
	DirectPromotions  int
	BounceSites       int
	IncompleteSkipped int
	TooManyCandidates int
}

// Modified reports whether the run rewrote anything.
func (s *Stats) Modified() bool { return s.ResolvedCallSites > 0 }

type bounceKey struct {
	sig        string
	candidates string
}

// callSite is one worklist entry: an indirect call instruction and the
// function it was found in. The owning block is re-located at drain time,
// since rewriting an earlier site may have split the block this one
// originally lived in.
type callSite struct {
	fn    *ir.Function
	instr *ir.Instruction
}

// Devirtualize collects every indirect call site in m into a worklist, then
// drains it, resolving each site via chain and rewriting what it can: a
// single-candidate site becomes a direct call; a multi-candidate site
// becomes a chain of callee-pointer equality tests branching to direct
// calls (or, under opts.UseBounce, a call to a cached dispatch function).
// A site that cannot be soundly resolved is left indirect and logged rather
// than aborting the pass.
func Devirtualize(m *ir.Module, chain ResolverChain, opts Options, log *slog.Logger) (*Stats, error) {
	if log == nil {
		log = slog.Default()
	}
	stats := &Stats{}
	bounceCache := xsync.NewMap[bounceKey, string]()

	var worklist []callSite
	for _, f := range m.OrderedFunctions() {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				if instr.Op == ir.OpIndirectCall {
					worklist = append(worklist, callSite{fn: f, instr: instr})
				}
			}
		}
	}

	serial := 0
	for _, site := range worklist {
		stats.TotalCallSites++
		instr := site.instr

		sig := calleeSignature(instr)
		candidates, incomplete := chain.Candidates(sig)
		if !incomplete {
			stats.CompleteCallSites++
		}

		if incomplete && !opts.ResolveIncomplete {
			stats.IncompleteSkipped++
			log.Debug("devirt: skipping incompletely resolved call site",
				"func", site.fn.Name, "error", component.ErrResolutionIncomplete)
			continue
		}
		if opts.MaxTargets > 0 && len(candidates) > opts.MaxTargets {
			stats.TooManyCandidates++
			log.Warn("devirt: too many candidates, skipping site",
				"func", site.fn.Name, "count", len(candidates), "error", component.ErrTooManyCandidates)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		b, idx := locate(site.fn, instr)
		if b == nil {
			continue // a prior rewrite consumed this site
		}

		stats.ResolvedCallSites++
		switch {
		case len(candidates) == 1:
			target := m.Functions[candidates[0]]
			if target == nil {
				stats.ResolvedCallSites--
				continue
			}
			nc := ir.RetargetCall(instr, target, identityPerm(len(instr.Args)))
			nc.Op = ir.OpCall
			b.Splice(instr, nc)
			stats.DirectPromotions++
		case opts.UseBounce:
			bounce := bounceFunction(m, sig, candidates, opts.AllowIndirect, bounceCache)
			nc := retargetToBounce(instr, bounce, instr.Callee)
			b.Splice(instr, nc)
			stats.BounceSites++
		default:
			expandInlineDispatch(site.fn, b, idx, instr, sig, candidates, opts.AllowIndirect, serial)
			serial++
			stats.DirectPromotions++
		}
	}
	log.Info("devirt: pass complete", "total", stats.TotalCallSites, "resolved", stats.ResolvedCallSites,
		"direct", stats.DirectPromotions, "bounce", stats.BounceSites)
	return stats, nil
}

// locate finds the block currently holding instr within f, and its index in
// that block.
func locate(f *ir.Function, instr *ir.Instruction) (*ir.BasicBlock, int) {
	for _, b := range f.Blocks {
		for i, cur := range b.Instrs {
			if cur == instr {
				return b, i
			}
		}
	}
	return nil, -1
}

func calleeSignature(instr *ir.Instruction) ir.Signature {
	argTypes := make([]ir.Type, len(instr.Args))
	for i, a := range instr.Args {
		argTypes[i] = a.ValueType()
	}
	return ir.Signature{Params: argTypes, Result: instr.Type}
}

func identityPerm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

func isVoid(t ir.Type) bool { return t.Name == "void" }

// expandInlineDispatch splits b at the call site and replaces the indirect
// call with a chain of test blocks, each comparing the callee pointer
// against one candidate and branching to a direct call of the match. Every
// call arm writes its result under the original instruction's register
// name, so downstream uses resolve unchanged. The default arm is
// unreachable, or the original indirect call when allowIndirect is set.
func expandInlineDispatch(f *ir.Function, b *ir.BasicBlock, idx int, instr *ir.Instruction, sig ir.Signature, candidates []string, allowIndirect bool, serial int) {
	contName := fmt.Sprintf("devirt.cont.%d", serial)
	defaultName := fmt.Sprintf("devirt.default.%d", serial)
	testName := func(i int) string { return fmt.Sprintf("devirt.test.%d.%d", serial, i) }
	callName := func(i int) string { return fmt.Sprintf("devirt.call.%d.%d", serial, i) }

	cont := &ir.BasicBlock{Name: contName, Func: f}
	cont.Instrs = append(cont.Instrs, b.Instrs[idx+1:]...)

	var blocks []*ir.BasicBlock
	for i, cand := range candidates {
		next := defaultName
		if i+1 < len(candidates) {
			next = testName(i + 1)
		}
		cmp := &ir.Instruction{
			Op:   ir.OpOther,
			Name: fmt.Sprintf("devirt.cmp.%d.%d", serial, i),
			Type: ir.Scalar("i1"),
			Operands: []ir.Value{
				instr.Callee,
				ir.GlobalRef{Name: cand, T: ir.FuncPointer(sig)},
			},
		}
		test := &ir.BasicBlock{Name: testName(i), Func: f, Instrs: []*ir.Instruction{
			cmp,
			{Op: ir.OpCondBr, Type: ir.Scalar("void"), Cond: cmp.Result(), Targets: []string{callName(i), next}},
		}}
		direct := &ir.Instruction{
			Op:       ir.OpCall,
			Name:     instr.Name,
			Type:     instr.Type,
			Callee:   ir.GlobalRef{Name: cand, T: ir.FuncPointer(sig)},
			Args:     append([]ir.Value(nil), instr.Args...),
			CallConv: instr.CallConv,
			Attrs:    append([]string(nil), instr.Attrs...),
			DebugLoc: instr.DebugLoc,
		}
		call := &ir.BasicBlock{Name: callName(i), Func: f, Instrs: []*ir.Instruction{
			direct,
			{Op: ir.OpBr, Type: ir.Scalar("void"), Targets: []string{contName}},
		}}
		blocks = append(blocks, test, call)
	}

	def := &ir.BasicBlock{Name: defaultName, Func: f}
	if allowIndirect {
		def.Instrs = []*ir.Instruction{
			instr.Clone(),
			{Op: ir.OpBr, Type: ir.Scalar("void"), Targets: []string{contName}},
		}
	} else {
		def.Instrs = []*ir.Instruction{{Op: ir.OpUnreachable, Type: ir.Scalar("void")}}
	}
	blocks = append(blocks, def, cont)

	b.Instrs = append(b.Instrs[:idx:idx], &ir.Instruction{
		Op: ir.OpBr, Type: ir.Scalar("void"), Targets: []string{testName(0)},
	})

	for bi, cur := range f.Blocks {
		if cur == b {
			rest := append([]*ir.BasicBlock(nil), f.Blocks[bi+1:]...)
			f.Blocks = append(append(f.Blocks[:bi+1:bi+1], blocks...), rest...)
			break
		}
	}
}

// retargetToBounce builds a call to bounce, forwarding the original callee
// pointer as the first argument followed by the original call's arguments
// unchanged — the bounce function itself performs the dispatch.
func retargetToBounce(c *ir.Instruction, bounce *ir.Function, origCallee ir.Value) *ir.Instruction {
	nc := &ir.Instruction{
		Op:       ir.OpCall,
		Name:     c.Name,
		Type:     c.Type,
		Callee:   ir.GlobalRef{Name: bounce.Name, T: ir.FuncPointer(bounce.Signature())},
		CallConv: c.CallConv,
		Attrs:    append([]string(nil), c.Attrs...),
		DebugLoc: c.DebugLoc,
	}
	nc.Args = append([]ir.Value{origCallee}, c.Args...)
	return nc
}

// bounceFunction returns the cached bounce function dispatching among
// candidates for signature sig, creating and inserting it into m on first
// use. Caching is keyed by (signature, candidate set), not signature alone,
// so two sites that share a signature but resolve to different candidate
// sets get separate bounces instead of a stale reuse.
func bounceFunction(m *ir.Module, sig ir.Signature, candidates []string, allowIndirect bool, cache *xsync.Map[bounceKey, string]) *ir.Function {
	key := bounceKey{sig: sig.String(), candidates: fmt.Sprint(candidates)}
	if name, ok := cache.Load(key); ok {
		return m.Functions[name]
	}

	name := fmt.Sprintf("__occam.bounce.%d", bounceOrdinal(cache))
	bounce := mkBounceFn(name, sig, candidates, allowIndirect)
	m.AddFunction(bounce)
	cache.Store(key, name)
	return bounce
}

func bounceOrdinal(cache *xsync.Map[bounceKey, string]) int {
	n := 0
	cache.Range(func(bounceKey, string) bool { n++; return true })
	return n
}

// mkBounceFn builds an internal function of type (ptr, params...) -> result
// whose body compares its first parameter against each candidate in turn,
// tail-calling the matching one. The default arm is unreachable unless
// allowIndirect is set, in which case it is an indirect call through the
// original (unresolved) pointer.
func mkBounceFn(name string, sig ir.Signature, candidates []string, allowIndirect bool) *ir.Function {
	calleeParam := ir.Param{Name: "callee", Type: ir.PointerTo(ir.Scalar("i8"))}
	params := make([]ir.Param, len(sig.Params)+1)
	params[0] = calleeParam
	for i, t := range sig.Params {
		params[i+1] = ir.Param{Name: fmt.Sprintf("a%d", i), Type: t}
	}

	calleeRef := ir.ParamRef{Index: 0, Name: "callee", T: calleeParam.Type}
	forwarded := make([]ir.Value, len(sig.Params))
	for i, t := range sig.Params {
		forwarded[i] = ir.ParamRef{Index: i + 1, Name: fmt.Sprintf("a%d", i), T: t}
	}
	void := isVoid(sig.Result)

	retOf := func(resultName string) *ir.Instruction {
		ret := &ir.Instruction{Op: ir.OpRet, Type: ir.Scalar("void")}
		if !void {
			ret.RetVal = ir.InstrRef{Name: resultName, T: sig.Result}
		}
		return ret
	}
	armCall := func(resultName string, callee ir.Value, op ir.Opcode) *ir.Instruction {
		c := &ir.Instruction{Op: op, Type: sig.Result, Callee: callee, Args: forwarded}
		if !void {
			c.Name = resultName
		}
		return c
	}

	var blocks []*ir.BasicBlock
	testName := func(i int) string { return fmt.Sprintf("test%d", i) }
	for i, cand := range candidates {
		next := "default"
		if i+1 < len(candidates) {
			next = testName(i + 1)
		}
		cmp := &ir.Instruction{
			Op:       ir.OpOther,
			Name:     fmt.Sprintf("cmp%d", i),
			Type:     ir.Scalar("i1"),
			Operands: []ir.Value{calleeRef, ir.GlobalRef{Name: cand, T: ir.FuncPointer(sig)}},
		}
		blocks = append(blocks, &ir.BasicBlock{Name: testName(i), Instrs: []*ir.Instruction{
			cmp,
			{Op: ir.OpCondBr, Type: ir.Scalar("void"), Cond: cmp.Result(), Targets: []string{fmt.Sprintf("call%d", i), next}},
		}})

		result := fmt.Sprintf("r%d", i)
		blocks = append(blocks, &ir.BasicBlock{Name: fmt.Sprintf("call%d", i), Instrs: []*ir.Instruction{
			armCall(result, ir.GlobalRef{Name: cand, T: ir.FuncPointer(sig)}, ir.OpCall),
			retOf(result),
		}})
	}

	def := &ir.BasicBlock{Name: "default"}
	if allowIndirect {
		def.Instrs = []*ir.Instruction{
			armCall("rdefault", calleeRef, ir.OpIndirectCall),
			retOf("rdefault"),
		}
	} else {
		def.Instrs = []*ir.Instruction{{Op: ir.OpUnreachable, Type: ir.Scalar("void")}}
	}
	blocks = append(blocks, def)

	return &ir.Function{
		Name:    name,
		Params:  params,
		Result:  sig.Result,
		Linkage: ir.Internal,
		Blocks:  blocks,
	}
}
