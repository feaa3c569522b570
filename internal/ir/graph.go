package ir

import (
	"fmt"
	"slices"
)

// Graph is the control-flow graph of one method. It owns an arena of nodes
// addressed by NodeID.
type Graph struct {
	method *MethodRepresentation
	ts     *TypeSystem

	nodes       []Node
	variables   []VariableExpression
	blocks      []*BasicBlock
	entry       *BasicBlock
	phiVersions map[NodeID]int
}

// NewGraph returns an empty graph with an entry block.
func NewGraph(ts *TypeSystem, md *MethodRepresentation) *Graph {
	g := newGraph(ts, md)
	g.entry = g.NewBasicBlock()
	g.entry.kind = BlockEntry
	return g
}

func newGraph(ts *TypeSystem, md *MethodRepresentation) *Graph {
	Assert(ts != nil, "graph needs a type system")
	g := &Graph{
		method:      md,
		ts:          ts,
		nodes:       []Node{nil},
		phiVersions: make(map[NodeID]int),
	}
	if md != nil && md.Graph == nil {
		md.Graph = g
	}
	return g
}

func (g *Graph) Method() *MethodRepresentation { return g.method }
func (g *Graph) TypeSystem() *TypeSystem       { return g.ts }
func (g *Graph) Entry() *BasicBlock            { return g.entry }

func (g *Graph) String() string {
	if g.method != nil {
		return "graph(" + g.method.String() + ")"
	}
	return "graph"
}

// Node resolves a handle. It returns nil for InvalidNode and unknown ids.
func (g *Graph) Node(id NodeID) Node {
	if id <= InvalidNode || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Owns reports whether n was allocated by g.
func (g *Graph) Owns(n Node) bool {
	id := n.ID()
	return id != InvalidNode && int(id) < len(g.nodes) && g.nodes[id] == n
}

func (g *Graph) allocate(n Node) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return id
}

func (g *Graph) adopt(op Operator) {
	b := op.base()
	if b.graph == g {
		return
	}
	Assert(b.graph == nil, "%s belongs to %s, not %s", op, b.graph, g)
	b.graph = g
	b.id = g.allocate(op)
	for i, an := range b.annotations {
		b.annotations[i] = g.ts.CreateUniqueAnnotation(an)
	}
}

func (g *Graph) newVariable(v VariableExpression, t *TypeRepresentation, name string, debug *DebugInfo) {
	vb := v.variable()
	vb.graph = g
	vb.typ = t
	vb.name = name
	vb.debug = debug
	vb.self = v
	vb.number = len(g.variables)
	vb.id = g.allocate(v)
	g.variables = append(g.variables, v)
}

func (g *Graph) AllocateLocal(t *TypeRepresentation, name string, debug *DebugInfo) *LocalVariableExpression {
	v := &LocalVariableExpression{}
	g.newVariable(v, t, name, debug)
	return v
}

func (g *Graph) AllocateArgument(t *TypeRepresentation, index int, name string, debug *DebugInfo) *ArgumentVariableExpression {
	v := &ArgumentVariableExpression{Index: index}
	g.newVariable(v, t, name, debug)
	return v
}

func (g *Graph) AllocateTemporary(t *TypeRepresentation, debug *DebugInfo) *TemporaryVariableExpression {
	v := &TemporaryVariableExpression{}
	g.newVariable(v, t, "", debug)
	return v
}

func (g *Graph) AllocatePseudoRegister(t *TypeRepresentation, debug *DebugInfo) *PseudoRegisterExpression {
	v := &PseudoRegisterExpression{}
	g.newVariable(v, t, "", debug)
	return v
}

func (g *Graph) AllocatePhysicalRegister(reg *RegisterDescriptor, t *TypeRepresentation, debug *DebugInfo) *PhysicalRegisterExpression {
	Assert(reg != nil, "physical register needs a descriptor")
	v := &PhysicalRegisterExpression{reg: reg}
	g.newVariable(v, t, reg.Name, debug)
	return v
}

func (g *Graph) AllocateStackLocation(placement StackPlacement, t *TypeRepresentation, debug *DebugInfo) *StackLocationExpression {
	v := &StackLocationExpression{placement: placement}
	g.newVariable(v, t, "", debug)
	return v
}

func (g *Graph) AllocateConditionCode(debug *DebugInfo) *ConditionCodeExpression {
	v := &ConditionCodeExpression{}
	g.newVariable(v, g.ts.UInt32, "", debug)
	return v
}

// AllocatePhiVariable returns the next SSA version of target.
func (g *Graph) AllocatePhiVariable(target VariableExpression) *PhiVariableExpression {
	Assert(target.Graph() == g, "phi target %s belongs to another graph", target)
	g.phiVersions[target.ID()]++
	v := g.allocatePhi(target.Type(), g.phiVersions[target.ID()], target.DebugInfo())
	v.target = target
	return v
}

func (g *Graph) allocatePhi(t *TypeRepresentation, version int, debug *DebugInfo) *PhiVariableExpression {
	v := &PhiVariableExpression{version: version}
	g.newVariable(v, t, "", debug)
	return v
}

// NewBasicBlock appends an empty block.
func (g *Graph) NewBasicBlock() *BasicBlock {
	bb := &BasicBlock{graph: g}
	bb.id = g.allocate(bb)
	g.blocks = append(g.blocks, bb)
	return bb
}

// Variables returns every variable in allocation order.
func (g *Graph) Variables() []VariableExpression {
	return append([]VariableExpression(nil), g.variables...)
}

// Arguments returns the argument variables ordered by Index.
func (g *Graph) Arguments() []*ArgumentVariableExpression {
	var out []*ArgumentVariableExpression
	for _, v := range g.variables {
		if a, ok := v.(*ArgumentVariableExpression); ok {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b *ArgumentVariableExpression) int { return a.Index - b.Index })
	return out
}

// Blocks returns every block in allocation order.
func (g *Graph) Blocks() []*BasicBlock {
	return append([]*BasicBlock(nil), g.blocks...)
}

// ReachableBlocks returns the blocks reachable from the entry in
// depth-first preorder.
func (g *Graph) ReachableBlocks() []*BasicBlock {
	var out []*BasicBlock
	seen := make(map[*BasicBlock]bool)
	var walk func(bb *BasicBlock)
	walk = func(bb *BasicBlock) {
		if bb == nil || seen[bb] {
			return
		}
		seen[bb] = true
		out = append(out, bb)
		for _, succ := range bb.Successors() {
			walk(succ)
		}
	}
	walk(g.entry)
	return out
}

// Predecessors computes the blocks with an edge to bb.
func (g *Graph) Predecessors(bb *BasicBlock) []*BasicBlock {
	var out []*BasicBlock
	for _, b := range g.blocks {
		if slices.Contains(b.Successors(), bb) {
			out = append(out, b)
		}
	}
	return out
}

// RemoveBlock drops an unreachable block from the graph.
func (g *Graph) RemoveBlock(bb *BasicBlock) {
	Assert(bb != g.entry, "cannot remove the entry block")
	Assert(len(g.Predecessors(bb)) == 0, "%s still has predecessors", bb)
	g.blocks = slices.DeleteFunc(g.blocks, func(b *BasicBlock) bool { return b == bb })
}

// Operators lists every operator, block by block.
func (g *Graph) Operators() []Operator {
	var out []Operator
	for _, bb := range g.blocks {
		out = append(out, bb.operators...)
	}
	return out
}

// Substitute replaces every occurrence of old with repl: operands, results,
// annotations and fragment links. A variable replacement must respect the
// storage progression.
func (g *Graph) Substitute(old VariableExpression, repl Expression) {
	if v, ok := repl.(VariableExpression); ok {
		Assert(old.StorageClass().CanBecome(v.StorageClass()),
			"cannot lower %s (%s) to %s (%s)", old, old.StorageClass(), v, v.StorageClass())
	}
	g.SubstituteAll(map[Expression]Expression{old: repl})
}

// SubstituteAll applies several replacements in one walk.
func (g *Graph) SubstituteAll(mapping map[Expression]Expression) {
	sub := NewSubstitution(g.ts, mapping)
	for _, bb := range g.blocks {
		sub.TransformBlock(&bb)
	}
	for _, v := range g.variables {
		v.ApplyTransformation(sub)
	}
}

// CheckLevel reports the first operator whose level exceeds max.
func (g *Graph) CheckLevel(max OperatorLevel, h LevelHelper) error {
	for _, op := range g.Operators() {
		if lvl := op.Level(h); lvl > max {
			return fmt.Errorf("ir: %s: operator %q is at level %s, above %s", g, op, lvl, max)
		}
	}
	return nil
}

// MaxLevel returns the highest operator level in the graph.
func (g *Graph) MaxLevel(h LevelHelper) OperatorLevel {
	level := LevelRegisters
	for _, op := range g.Operators() {
		level = maxLevel(level, op.Level(h))
	}
	return level
}
