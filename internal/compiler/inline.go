package compiler

import (
	"github.com/tinyrange/armaot/internal/ir"
)

// maxInlineDepth bounds how many inlined calls may be nested in one another.
const maxInlineDepth = 8

type annotatable interface {
	AddAnnotation(an ir.Annotation) bool
	RemoveAnnotation(an ir.Annotation) bool
}

// InlineCalls replaces direct static calls to methods marked Inline by a
// copy of the callee's body. Every copied operator records the chain of
// methods it was inlined through.
func InlineCalls(d *Driver, p *Program) error {
	for _, md := range p.Methods() {
		n := 0
		for {
			call, path := nextInlineCandidate(md.Graph)
			if call == nil {
				break
			}
			inlineCall(md.Graph, call, path)
			n++
		}
		if n > 0 {
			d.logger.Debug("inlined calls", "method", md.String(), "count", n)
		}
	}
	return nil
}

// nextInlineCandidate returns the first call that can be inlined and the
// inlining path its copied operators will carry.
func nextInlineCandidate(g *ir.Graph) (*ir.StaticCallOperator, *ir.InliningPathAnnotation) {
	for _, op := range g.Operators() {
		call, ok := op.(*ir.StaticCallOperator)
		if !ok || call.CallKind() != ir.CallDirect {
			continue
		}
		callee := call.TargetMethod()
		if callee == nil || !callee.Inline || callee.Graph == nil || callee == g.Method() {
			continue
		}
		outer, ok := ir.FindAnnotation[*ir.InliningPathAnnotation](call)
		if !ok {
			outer = &ir.InliningPathAnnotation{}
		}
		if len(outer.Path) >= maxInlineDepth || containsMethod(outer.Path, callee) {
			continue
		}
		if phiFrom(call.Block()) {
			continue
		}
		path := g.TypeSystem().CreateUniqueAnnotation(outer.Extend(callee))
		return call, path.(*ir.InliningPathAnnotation)
	}
	return nil, nil
}

func containsMethod(path []*ir.MethodRepresentation, md *ir.MethodRepresentation) bool {
	for _, m := range path {
		if m == md {
			return true
		}
	}
	return false
}

// phiFrom reports whether a successor of bb merges a value flowing out of
// bb. Splitting bb would leave that edge dangling.
func phiFrom(bb *ir.BasicBlock) bool {
	for _, succ := range bb.Successors() {
		for _, op := range succ.Operators() {
			phi, ok := op.(*ir.PhiOperator)
			if !ok {
				continue
			}
			for _, origin := range phi.Origins() {
				if origin == bb {
					return true
				}
			}
		}
	}
	return false
}

// inlineCall splits the block at call, copies the callee between the two
// halves and turns each of its returns into an assignment of the call's
// result and a jump to the second half.
func inlineCall(g *ir.Graph, call *ir.StaticCallOperator, path *ir.InliningPathAnnotation) {
	bb := call.Block()
	callee := call.TargetMethod()
	debug := call.DebugInfo()

	cont := g.NewBasicBlock()
	ops := bb.Operators()
	at := -1
	for i, op := range ops {
		if op == ir.Operator(call) {
			at = i
			break
		}
	}
	ir.Assert(at >= 0, "%s is not in %s", call, bb)
	for _, op := range ops[at+1:] {
		bb.RemoveOperator(op)
		cont.AddOperator(op)
	}

	ctx := ir.NewCloningContext(callee.Graph, g)
	args := call.Arguments()
	for _, arg := range callee.Graph.Arguments() {
		ir.Assert(arg.Index < len(args), "call %s has no argument %d for %s", call, arg.Index, callee)
		tmp := g.AllocateTemporary(arg.Type(), arg.DebugInfo())
		ctx.Map(arg, tmp)
		bb.AddOperatorBefore(ir.NewSingleAssignment(debug, tmp, args[arg.Index]), call)
	}

	entry := ctx.CloneBlock(callee.Graph.Entry())
	body := callee.Graph.ReachableBlocks()
	for _, src := range body {
		ctx.CloneBlock(src)
	}
	for _, src := range body {
		n, _ := ctx.Lookup(src)
		nb := n.(*ir.BasicBlock)
		if ret, ok := nb.FlowControl().(*ir.ReturnControlOperator); ok {
			if res := call.Results(); len(res) > 0 && len(ret.Arguments()) > 0 {
				nb.AddOperator(ir.NewSingleAssignment(ret.DebugInfo(), res[0], ret.FirstArgument()))
			}
			nb.SetFlowControl(ir.NewUnconditionalControl(ret.DebugInfo(), cont))
		}
		for _, op := range nb.Operators() {
			annotate(g.TypeSystem(), op, path)
		}
	}

	bb.RemoveOperator(call)
	bb.SetFlowControl(ir.NewUnconditionalControl(debug, entry))
}

// annotate prefixes any inlining path op already carries with path.
func annotate(ts *ir.TypeSystem, op ir.Operator, path *ir.InliningPathAnnotation) {
	a, ok := op.(annotatable)
	if !ok {
		return
	}
	full := path
	if inner, ok := ir.FindAnnotation[*ir.InliningPathAnnotation](op); ok {
		a.RemoveAnnotation(inner)
		joined := append(append([]*ir.MethodRepresentation(nil), path.Path...), inner.Path...)
		full = ts.CreateUniqueAnnotation(&ir.InliningPathAnnotation{Path: joined}).(*ir.InliningPathAnnotation)
	}
	a.AddAnnotation(full)
}
