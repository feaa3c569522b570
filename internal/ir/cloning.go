package ir

// CloningContext copies nodes from a source graph into a destination graph
// while preserving identity: each source node is cloned at most once and
// every later reference resolves to the same clone.
//
// Source and destination may be the same graph; the inliner clones a
// callee into its caller with a distinct context per call site.
type CloningContext struct {
	src *Graph
	dst *Graph

	remap map[NodeID]Node

	// TypeMapper, when set, converts types of cloned nodes.
	TypeMapper func(*TypeRepresentation) *TypeRepresentation
	// MethodMapper, when set, converts method references.
	MethodMapper func(*MethodRepresentation) *MethodRepresentation
}

func NewCloningContext(src, dst *Graph) *CloningContext {
	Assert(src != nil && dst != nil, "cloning needs a source and a destination graph")
	Assert(src.ts == dst.ts, "cloning across type systems is not supported")
	return &CloningContext{src: src, dst: dst, remap: make(map[NodeID]Node)}
}

func (ctx *CloningContext) Source() *Graph          { return ctx.src }
func (ctx *CloningContext) Destination() *Graph     { return ctx.dst }
func (ctx *CloningContext) TypeSystem() *TypeSystem { return ctx.dst.ts }

// Register records dst as the clone of src. Registering a node twice is a
// compiler bug.
func (ctx *CloningContext) Register(src, dst Node) {
	id := src.ID()
	Assert(id != InvalidNode, "cannot register %v: not owned by a graph", src)
	Assert(ctx.src.Owns(src), "cannot register %v: not owned by the source graph", src)
	_, exists := ctx.remap[id]
	Assert(!exists, "node %v cloned twice", src)
	ctx.remap[id] = dst
}

// Map pre-seeds the remap table so references to src resolve to dst
// without cloning. The inliner maps callee arguments to actual values this
// way; dst may be any expression, including a constant.
func (ctx *CloningContext) Map(src Node, dst Node) {
	ctx.Register(src, dst)
}

// Lookup returns the registered clone of src.
func (ctx *CloningContext) Lookup(src Node) (Node, bool) {
	if src == nil || src.ID() == InvalidNode {
		return nil, false
	}
	if !ctx.src.Owns(src) {
		return nil, false
	}
	n, ok := ctx.remap[src.ID()]
	return n, ok
}

// Len is the number of registered nodes.
func (ctx *CloningContext) Len() int { return len(ctx.remap) }

func (ctx *CloningContext) CloneExpression(ex Expression) Expression {
	if ex == nil {
		return nil
	}
	if ex.ID() != InvalidNode {
		if n, ok := ctx.Lookup(ex); ok {
			return n.(Expression)
		}
		Assert(ctx.src.Owns(ex), "expression %s does not belong to %s", ex, ctx.src)
	}
	return ex.Clone(ctx)
}

func (ctx *CloningContext) CloneVariable(v VariableExpression) VariableExpression {
	if v == nil {
		return nil
	}
	ex := ctx.CloneExpression(v)
	nv, ok := ex.(VariableExpression)
	Assert(ok, "clone of variable %s is %s, not a variable", v, ex)
	return nv
}

func (ctx *CloningContext) CloneExpressions(in []Expression) []Expression {
	if in == nil {
		return nil
	}
	out := make([]Expression, len(in))
	for i, ex := range in {
		out[i] = ctx.CloneExpression(ex)
	}
	return out
}

func (ctx *CloningContext) CloneVariables(in []VariableExpression) []VariableExpression {
	if in == nil {
		return nil
	}
	out := make([]VariableExpression, len(in))
	for i, v := range in {
		out[i] = ctx.CloneVariable(v)
	}
	return out
}

func (ctx *CloningContext) CloneOperator(op Operator) Operator {
	if op == nil {
		return nil
	}
	if n, ok := ctx.Lookup(op); ok {
		return n.(Operator)
	}
	Assert(ctx.src.Owns(op), "operator %s does not belong to %s", op, ctx.src)
	return op.Clone(ctx)
}

func (ctx *CloningContext) CloneOperators(in []Operator) []Operator {
	out := make([]Operator, len(in))
	for i, op := range in {
		out[i] = ctx.CloneOperator(op)
	}
	return out
}

func (ctx *CloningContext) CloneBlock(bb *BasicBlock) *BasicBlock {
	if bb == nil {
		return nil
	}
	if n, ok := ctx.Lookup(bb); ok {
		return n.(*BasicBlock)
	}
	Assert(ctx.src.Owns(bb), "block %s does not belong to %s", bb, ctx.src)
	return bb.Clone(ctx)
}

func (ctx *CloningContext) CloneBlocks(in []*BasicBlock) []*BasicBlock {
	if in == nil {
		return nil
	}
	out := make([]*BasicBlock, len(in))
	for i, bb := range in {
		out[i] = ctx.CloneBlock(bb)
	}
	return out
}

func (ctx *CloningContext) CloneAnnotation(an Annotation) Annotation {
	if an == nil {
		return nil
	}
	return an.Clone(ctx)
}

func (ctx *CloningContext) CloneAnnotations(in []Annotation) []Annotation {
	if in == nil {
		return nil
	}
	out := make([]Annotation, 0, len(in))
	for _, an := range in {
		c := ctx.CloneAnnotation(an)
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// UniqueAnnotation interns an through the destination type system.
func (ctx *CloningContext) UniqueAnnotation(an Annotation) Annotation {
	return ctx.dst.ts.CreateUniqueAnnotation(an)
}

func (ctx *CloningContext) ConvertType(t *TypeRepresentation) *TypeRepresentation {
	if ctx.TypeMapper == nil || t == nil {
		return t
	}
	return ctx.TypeMapper(t)
}

func (ctx *CloningContext) ConvertMethod(md *MethodRepresentation) *MethodRepresentation {
	if ctx.MethodMapper == nil || md == nil {
		return md
	}
	return ctx.MethodMapper(md)
}

// CloneGraph copies src into a new graph for md. Variables are cloned in
// allocation order so numbering is stable, then every block.
func CloneGraph(src *Graph, md *MethodRepresentation) (*Graph, *CloningContext) {
	dst := newGraph(src.ts, md)
	ctx := NewCloningContext(src, dst)
	for _, v := range src.variables {
		ctx.CloneVariable(v)
	}
	dst.entry = ctx.CloneBlock(src.entry)
	for _, bb := range src.blocks {
		ctx.CloneBlock(bb)
	}
	for id, version := range src.phiVersions {
		if n, ok := ctx.remap[id]; ok {
			dst.phiVersions[n.ID()] = version
		}
	}
	return dst, ctx
}
