package ir

import "fmt"

// BlockKind distinguishes special blocks of a graph.
type BlockKind int

const (
	BlockNormal BlockKind = iota
	BlockEntry
	BlockExit
)

// BasicBlock is a straight-line sequence of operators. When present, the
// control operator is always last.
type BasicBlock struct {
	id        NodeID
	graph     *Graph
	kind      BlockKind
	operators []Operator
}

func (bb *BasicBlock) ID() NodeID      { return bb.id }
func (bb *BasicBlock) Graph() *Graph   { return bb.graph }
func (bb *BasicBlock) Kind() BlockKind { return bb.kind }
func (bb *BasicBlock) Len() int        { return len(bb.operators) }

func (bb *BasicBlock) String() string {
	if bb == nil {
		return "<nil block>"
	}
	return fmt.Sprintf("BB%d", bb.id)
}

// Operators returns a snapshot of the block's operators.
func (bb *BasicBlock) Operators() []Operator {
	return append([]Operator(nil), bb.operators...)
}

// FlowControl returns the terminating operator, or nil.
func (bb *BasicBlock) FlowControl() ControlOperator {
	if n := len(bb.operators); n > 0 {
		if ctrl, ok := bb.operators[n-1].(ControlOperator); ok {
			return ctrl
		}
	}
	return nil
}

// SetFlowControl installs ctrl as the terminator, replacing any existing one.
func (bb *BasicBlock) SetFlowControl(ctrl ControlOperator) {
	if old := bb.FlowControl(); old != nil {
		bb.operators = bb.operators[:len(bb.operators)-1]
		old.base().block = nil
	}
	bb.adopt(ctrl)
	bb.operators = append(bb.operators, ctrl)
}

// Successors lists the blocks control may flow to.
func (bb *BasicBlock) Successors() []*BasicBlock {
	if ctrl := bb.FlowControl(); ctrl != nil {
		return ctrl.Successors()
	}
	return nil
}

func (bb *BasicBlock) adopt(op Operator) {
	b := op.base()
	Assert(b.block == nil, "%s already belongs to %s", op, b.block)
	bb.graph.adopt(op)
	b.block = bb
}

func (bb *BasicBlock) indexOf(op Operator) int {
	for i, o := range bb.operators {
		if o == op {
			return i
		}
	}
	return -1
}

func (bb *BasicBlock) insert(i int, op Operator) {
	bb.operators = append(bb.operators, nil)
	copy(bb.operators[i+1:], bb.operators[i:])
	bb.operators[i] = op
}

// AddOperator appends op ahead of the control operator.
func (bb *BasicBlock) AddOperator(op Operator) {
	if ctrl, ok := op.(ControlOperator); ok {
		bb.SetFlowControl(ctrl)
		return
	}
	bb.adopt(op)
	pos := len(bb.operators)
	if bb.FlowControl() != nil {
		pos--
	}
	bb.insert(pos, op)
}

// AddOperatorBefore inserts op immediately before anchor.
func (bb *BasicBlock) AddOperatorBefore(op, anchor Operator) {
	i := bb.indexOf(anchor)
	Assert(i >= 0, "%s is not in %s", anchor, bb)
	_, isCtrl := op.(ControlOperator)
	Assert(!isCtrl, "control operator %s must terminate its block", op)
	bb.adopt(op)
	bb.insert(i, op)
}

// AddOperatorAfter inserts op immediately after anchor, which must not be
// the control operator.
func (bb *BasicBlock) AddOperatorAfter(op, anchor Operator) {
	i := bb.indexOf(anchor)
	Assert(i >= 0, "%s is not in %s", anchor, bb)
	_, anchorCtrl := anchor.(ControlOperator)
	_, isCtrl := op.(ControlOperator)
	Assert(!anchorCtrl && !isCtrl, "cannot insert %s after %s", op, anchor)
	bb.adopt(op)
	bb.insert(i+1, op)
}

// RemoveOperator unlinks op. It reports false if op is not in bb.
func (bb *BasicBlock) RemoveOperator(op Operator) bool {
	i := bb.indexOf(op)
	if i < 0 {
		return false
	}
	bb.operators = append(bb.operators[:i], bb.operators[i+1:]...)
	op.base().block = nil
	return true
}

// SubstituteOperator replaces old by repl in place.
func (bb *BasicBlock) SubstituteOperator(old, repl Operator) {
	i := bb.indexOf(old)
	Assert(i >= 0, "%s is not in %s", old, bb)
	_, oldCtrl := old.(ControlOperator)
	_, newCtrl := repl.(ControlOperator)
	Assert(oldCtrl == newCtrl, "cannot substitute %s with %s", old, repl)
	bb.adopt(repl)
	bb.operators[i] = repl
	old.base().block = nil
}

// Clone copies the block and, through the cloning context, its operators
// and successors.
func (bb *BasicBlock) Clone(ctx *CloningContext) *BasicBlock {
	nb := ctx.Destination().NewBasicBlock()
	nb.kind = bb.kind
	if bb.kind == BlockEntry && ctx.Destination().entry != nil {
		// Inlined bodies are ordinary blocks of the caller.
		nb.kind = BlockNormal
	}
	ctx.Register(bb, nb)
	for _, op := range bb.operators {
		nop := ctx.CloneOperator(op)
		nb.adopt(nop)
		nb.operators = append(nb.operators, nop)
	}
	return nb
}

func (bb *BasicBlock) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(bb) {
		return
	}
	defer ctx.Pop()
	ctx.TransformValue(&bb.kind)
	ctx.TransformOperators(&bb.operators)
}
