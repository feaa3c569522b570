package ir

// ControlOperator ends a basic block.
type ControlOperator interface {
	Operator
	Successors() []*BasicBlock
	// RetargetSuccessor replaces every edge to old with repl.
	RetargetSuccessor(old, repl *BasicBlock) bool
}

// UnconditionalControlOperator jumps to Target.
type UnconditionalControlOperator struct {
	operatorBase
	target *BasicBlock
}

func NewUnconditionalControl(debug *DebugInfo, target *BasicBlock) *UnconditionalControlOperator {
	op := &UnconditionalControlOperator{target: target}
	op.init(op, debug, CapsControl, LevelRegisters)
	return op
}

func (op *UnconditionalControlOperator) Kind() OperatorKind        { return OpUnconditionalControl }
func (op *UnconditionalControlOperator) Target() *BasicBlock       { return op.target }
func (op *UnconditionalControlOperator) Successors() []*BasicBlock { return []*BasicBlock{op.target} }

func (op *UnconditionalControlOperator) RetargetSuccessor(old, repl *BasicBlock) bool {
	if op.target != old {
		return false
	}
	op.target = repl
	return true
}

func (op *UnconditionalControlOperator) String() string {
	return op.format("Goto", op.target.String())
}

func (op *UnconditionalControlOperator) Clone(ctx *CloningContext) Operator {
	n := &UnconditionalControlOperator{}
	op.cloneInto(ctx, n)
	n.target = ctx.CloneBlock(op.target)
	return n
}

func (op *UnconditionalControlOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformBlock(&op.target)
}

// ConditionCodeConditionalControlOperator branches to TakenBranch when
// Condition holds for the condition code in rhs[0].
type ConditionCodeConditionalControlOperator struct {
	operatorBase
	Condition Comparison
	taken     *BasicBlock
	notTaken  *BasicBlock
}

func NewConditionCodeConditionalControl(debug *DebugInfo, cond Comparison, cc *ConditionCodeExpression, notTaken, taken *BasicBlock) *ConditionCodeConditionalControlOperator {
	op := &ConditionCodeConditionalControlOperator{Condition: cond, taken: taken, notTaken: notTaken}
	op.init(op, debug, CapsControl, LevelRegisters)
	op.setOperands(nil, []Expression{cc})
	return op
}

func (op *ConditionCodeConditionalControlOperator) Kind() OperatorKind {
	return OpConditionCodeConditionalControl
}

func (op *ConditionCodeConditionalControlOperator) TakenBranch() *BasicBlock    { return op.taken }
func (op *ConditionCodeConditionalControlOperator) NotTakenBranch() *BasicBlock { return op.notTaken }

func (op *ConditionCodeConditionalControlOperator) Successors() []*BasicBlock {
	return []*BasicBlock{op.notTaken, op.taken}
}

func (op *ConditionCodeConditionalControlOperator) RetargetSuccessor(old, repl *BasicBlock) bool {
	changed := false
	if op.taken == old {
		op.taken = repl
		changed = true
	}
	if op.notTaken == old {
		op.notTaken = repl
		changed = true
	}
	return changed
}

// Invert swaps the branches and negates the condition, leaving the
// semantics unchanged.
func (op *ConditionCodeConditionalControlOperator) Invert() error {
	neg, err := op.Condition.Negate()
	if err != nil {
		return err
	}
	op.Condition = neg
	op.taken, op.notTaken = op.notTaken, op.taken
	return nil
}

func (op *ConditionCodeConditionalControlOperator) String() string {
	return op.format("If", op.Condition.String(), "then", op.taken.String(), "else", op.notTaken.String())
}

func (op *ConditionCodeConditionalControlOperator) Clone(ctx *CloningContext) Operator {
	n := &ConditionCodeConditionalControlOperator{Condition: op.Condition}
	op.cloneInto(ctx, n)
	n.taken = ctx.CloneBlock(op.taken)
	n.notTaken = ctx.CloneBlock(op.notTaken)
	return n
}

func (op *ConditionCodeConditionalControlOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.Condition)
	ctx.TransformBlock(&op.taken)
	ctx.TransformBlock(&op.notTaken)
}

// ReturnControlOperator leaves the method, returning rhs[0] if present.
type ReturnControlOperator struct {
	operatorBase
}

func NewReturnControl(debug *DebugInfo, value Expression) *ReturnControlOperator {
	op := &ReturnControlOperator{}
	op.init(op, debug, CapsControl, LevelRegisters)
	if value != nil {
		op.setOperands(nil, []Expression{value})
	}
	return op
}

func (op *ReturnControlOperator) Kind() OperatorKind                      { return OpReturnControl }
func (op *ReturnControlOperator) Successors() []*BasicBlock               { return nil }
func (op *ReturnControlOperator) RetargetSuccessor(_, _ *BasicBlock) bool { return false }
func (op *ReturnControlOperator) String() string                          { return op.format("Return") }

func (op *ReturnControlOperator) Clone(ctx *CloningContext) Operator {
	n := &ReturnControlOperator{}
	op.cloneInto(ctx, n)
	return n
}

var (
	_ ControlOperator = (*UnconditionalControlOperator)(nil)
	_ ControlOperator = (*ConditionCodeConditionalControlOperator)(nil)
	_ ControlOperator = (*ReturnControlOperator)(nil)
)
