package ir

import (
	"fmt"
	"strings"
)

// Node is anything addressable by a graph handle.
type Node interface {
	ID() NodeID
}

// OperatorKind enumerates the closed set of operators.
type OperatorKind int

const (
	OpSingleAssignment OperatorKind = iota
	OpBinary
	OpUnary
	OpCompare
	OpCompareAndSet
	OpStaticCall
	OpInstanceCall
	OpIndirectCall
	OpExternalCall
	OpAddActivationRecordEvent
	OpPhi
	OpUnconditionalControl
	OpConditionCodeConditionalControl
	OpReturnControl
)

var operatorKindNames = [...]string{
	"SingleAssignment",
	"Binary",
	"Unary",
	"Compare",
	"CompareAndSet",
	"StaticCall",
	"InstanceCall",
	"IndirectCall",
	"ExternalCall",
	"AddActivationRecordEvent",
	"Phi",
	"UnconditionalControl",
	"ConditionCodeConditionalControl",
	"ReturnControl",
}

func (k OperatorKind) String() string {
	if k >= 0 && int(k) < len(operatorKindNames) {
		return operatorKindNames[k]
	}
	return fmt.Sprintf("OperatorKind(%d)", int(k))
}

// Operator is an action with results (LHS) and arguments (RHS).
type Operator interface {
	Node
	Kind() OperatorKind
	DebugInfo() *DebugInfo
	Capabilities() OperatorCapabilities
	Level(h LevelHelper) OperatorLevel
	Block() *BasicBlock
	Results() []VariableExpression
	Arguments() []Expression
	Annotations() []Annotation

	Clone(ctx *CloningContext) Operator
	ApplyTransformation(ctx TransformationContext)
	String() string

	base() *operatorBase
}

type operatorBase struct {
	id          NodeID
	graph       *Graph
	block       *BasicBlock
	debug       *DebugInfo
	caps        OperatorCapabilities
	level       OperatorLevel
	lhs         []VariableExpression
	rhs         []Expression
	annotations []Annotation

	self Operator
}

func (b *operatorBase) init(self Operator, debug *DebugInfo, caps OperatorCapabilities, level OperatorLevel) {
	if err := caps.Validate(); err != nil {
		Fail("%s: %v", self.Kind(), err)
	}
	b.self = self
	b.debug = debug
	b.caps = caps
	b.level = level
}

func (b *operatorBase) base() *operatorBase                { return b }
func (b *operatorBase) ID() NodeID                         { return b.id }
func (b *operatorBase) Graph() *Graph                      { return b.graph }
func (b *operatorBase) Block() *BasicBlock                 { return b.block }
func (b *operatorBase) DebugInfo() *DebugInfo              { return b.debug }
func (b *operatorBase) Capabilities() OperatorCapabilities { return b.caps }
func (b *operatorBase) BaseLevel() OperatorLevel           { return b.level }
func (b *operatorBase) Results() []VariableExpression      { return b.lhs }
func (b *operatorBase) Arguments() []Expression            { return b.rhs }
func (b *operatorBase) Annotations() []Annotation          { return b.annotations }

// FirstResult returns the single result of operators that produce one.
func (b *operatorBase) FirstResult() VariableExpression {
	Assert(len(b.lhs) > 0, "%s has no results", b.self)
	return b.lhs[0]
}

func (b *operatorBase) FirstArgument() Expression {
	Assert(len(b.rhs) > 0, "%s has no arguments", b.self)
	return b.rhs[0]
}

func (b *operatorBase) SecondArgument() Expression {
	Assert(len(b.rhs) > 1, "%s has fewer than two arguments", b.self)
	return b.rhs[1]
}

// Level is the highest of the operator's own level and the levels of its
// results, arguments and annotations.
func (b *operatorBase) Level(h LevelHelper) OperatorLevel {
	level := b.level
	for _, ex := range b.lhs {
		level = maxLevel(level, ex.Level(h))
	}
	for _, ex := range b.rhs {
		level = maxLevel(level, ex.Level(h))
	}
	for _, an := range b.annotations {
		level = maxLevel(level, an.Level(h))
	}
	return level
}

func (b *operatorBase) setOperands(lhs []VariableExpression, rhs []Expression) {
	b.lhs = lhs
	b.rhs = rhs
}

// AddAnnotation attaches an, interned through the owning type system when
// the operator belongs to a graph. It returns false when an equal
// annotation is already present.
func (b *operatorBase) AddAnnotation(an Annotation) bool {
	if b.graph != nil {
		an = b.graph.ts.CreateUniqueAnnotation(an)
	}
	if b.HasAnnotation(an) {
		return false
	}
	b.annotations = append(b.annotations[:len(b.annotations):len(b.annotations)], an)
	return true
}

func (b *operatorBase) HasAnnotation(an Annotation) bool {
	for _, existing := range b.annotations {
		if existing == an || existing.Equal(an) {
			return true
		}
	}
	return false
}

func (b *operatorBase) RemoveAnnotation(an Annotation) bool {
	for i, existing := range b.annotations {
		if existing == an || existing.Equal(an) {
			out := make([]Annotation, 0, len(b.annotations)-1)
			out = append(out, b.annotations[:i]...)
			b.annotations = append(out, b.annotations[i+1:]...)
			return true
		}
	}
	return false
}

// FindAnnotation returns the first annotation of type T on op.
func FindAnnotation[T Annotation](op Operator) (T, bool) {
	for _, an := range op.Annotations() {
		if t, ok := an.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// SubstituteDefinition replaces every result equal to old with repl. The
// result slice is copied before modification since clones may share it.
func (b *operatorBase) SubstituteDefinition(old, repl VariableExpression) bool {
	var out []VariableExpression
	for i, ex := range b.lhs {
		if ex == old {
			if out == nil {
				out = append([]VariableExpression(nil), b.lhs...)
			}
			out[i] = repl
		}
	}
	if out == nil {
		return false
	}
	b.lhs = out
	return true
}

// SubstituteUsage replaces every argument equal to old with repl.
func (b *operatorBase) SubstituteUsage(old, repl Expression) bool {
	var out []Expression
	for i, ex := range b.rhs {
		if ex == old {
			if out == nil {
				out = append([]Expression(nil), b.rhs...)
			}
			out[i] = repl
		}
	}
	if out == nil {
		return false
	}
	b.rhs = out
	return true
}

// IsSourceOfExpression reports whether the operator defines ex.
func (b *operatorBase) IsSourceOfExpression(ex Expression) bool {
	for _, res := range b.lhs {
		if Expression(res) == ex {
			return true
		}
	}
	return false
}

// Uses reports whether ex appears among the arguments.
func (b *operatorBase) Uses(ex Expression) bool {
	for _, arg := range b.rhs {
		if arg == ex {
			return true
		}
	}
	return false
}

// EnsureConstantToTheRight swaps the operands of a commutative binary
// operator so a constant, if any, is the second argument.
func (b *operatorBase) EnsureConstantToTheRight() bool {
	if !b.caps.Has(IsCommutative) || len(b.rhs) != 2 {
		return false
	}
	_, leftConst := b.rhs[0].(*ConstantExpression)
	_, rightConst := b.rhs[1].(*ConstantExpression)
	if !leftConst || rightConst {
		return false
	}
	b.rhs = []Expression{b.rhs[1], b.rhs[0]}
	return true
}

// Remove unlinks the operator from its block.
func (b *operatorBase) Remove() {
	if b.block != nil {
		b.block.RemoveOperator(b.self)
	}
}

// cloneInto registers dst as the clone of the receiver before cloning the
// operands, then copies the shared state.
func (b *operatorBase) cloneInto(ctx *CloningContext, dst Operator) {
	ctx.Register(b.self, dst)
	d := dst.base()
	d.self = dst
	d.debug = b.debug
	d.caps = b.caps
	d.level = b.level
	d.lhs = ctx.CloneVariables(b.lhs)
	d.rhs = ctx.CloneExpressions(b.rhs)
	d.annotations = ctx.CloneAnnotations(b.annotations)
}

func (b *operatorBase) transformState(ctx TransformationContext) {
	ctx.TransformDebugInfo(&b.debug)
	ctx.TransformValue(&b.caps)
	ctx.TransformVariables(&b.lhs)
	ctx.TransformExpressions(&b.rhs)
	ctx.TransformAnnotations(&b.annotations)
}

func (b *operatorBase) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(b.self) {
		return
	}
	defer ctx.Pop()
	b.transformState(ctx)
}

func (b *operatorBase) format(name string, extra ...string) string {
	var sb strings.Builder
	for i, ex := range b.lhs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ex.String())
	}
	if len(b.lhs) > 0 {
		sb.WriteString(" = ")
	}
	sb.WriteString(name)
	for _, e := range extra {
		sb.WriteString(" ")
		sb.WriteString(e)
	}
	if len(b.rhs) > 0 {
		sb.WriteString("(")
		for i, ex := range b.rhs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(ex.String())
		}
		sb.WriteString(")")
	}
	for _, an := range b.annotations {
		sb.WriteString(" ")
		sb.WriteString(an.String())
	}
	return sb.String()
}

// SingleAssignmentOperator copies its argument into its result.
type SingleAssignmentOperator struct {
	operatorBase
}

func NewSingleAssignment(debug *DebugInfo, lhs VariableExpression, rhs Expression) *SingleAssignmentOperator {
	op := &SingleAssignmentOperator{}
	op.init(op, debug, CapsPureArithmetic, LevelRegisters)
	op.setOperands([]VariableExpression{lhs}, []Expression{rhs})
	return op
}

func (op *SingleAssignmentOperator) Kind() OperatorKind { return OpSingleAssignment }
func (op *SingleAssignmentOperator) String() string     { return op.format("Assign") }

func (op *SingleAssignmentOperator) Clone(ctx *CloningContext) Operator {
	n := &SingleAssignmentOperator{}
	op.cloneInto(ctx, n)
	return n
}

// BinaryALU selects the arithmetic of a BinaryOperator.
type BinaryALU int

const (
	ALUAdd BinaryALU = iota
	ALUSub
	ALUMul
	ALUDiv
	ALURem
	ALUAnd
	ALUOr
	ALUXor
	ALUShl
	ALUShr
)

var binaryALUNames = [...]string{"ADD", "SUB", "MUL", "DIV", "REM", "AND", "OR", "XOR", "SHL", "SHR"}

func (a BinaryALU) String() string {
	if a >= 0 && int(a) < len(binaryALUNames) {
		return binaryALUNames[a]
	}
	return fmt.Sprintf("BinaryALU(%d)", int(a))
}

func (a BinaryALU) commutative() bool {
	switch a {
	case ALUAdd, ALUMul, ALUAnd, ALUOr, ALUXor:
		return true
	}
	return false
}

// BinaryOperator computes lhs = rhs[0] ALU rhs[1].
type BinaryOperator struct {
	operatorBase
	ALU           BinaryALU
	Signed        bool
	CheckOverflow bool
}

func NewBinary(debug *DebugInfo, alu BinaryALU, signed, overflow bool, lhs VariableExpression, left, right Expression) *BinaryOperator {
	caps := CapsPureArithmetic
	if alu.commutative() {
		caps = CapsCommutativeArithmetic
	}
	level := LevelRegisters
	if overflow || alu == ALUDiv || alu == ALURem {
		caps = caps&^DoesNotThrow | MayThrow
	}
	if overflow {
		level = LevelConcreteTypes
	}
	op := &BinaryOperator{ALU: alu, Signed: signed, CheckOverflow: overflow}
	op.init(op, debug, caps, level)
	op.setOperands([]VariableExpression{lhs}, []Expression{left, right})
	return op
}

func (op *BinaryOperator) Kind() OperatorKind { return OpBinary }

func (op *BinaryOperator) String() string {
	return op.format("Binary", op.ALU.String())
}

func (op *BinaryOperator) Clone(ctx *CloningContext) Operator {
	n := &BinaryOperator{ALU: op.ALU, Signed: op.Signed, CheckOverflow: op.CheckOverflow}
	op.cloneInto(ctx, n)
	return n
}

func (op *BinaryOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.ALU)
	ctx.TransformValue(&op.Signed)
	ctx.TransformValue(&op.CheckOverflow)
}

// UnaryALU selects the arithmetic of a UnaryOperator.
type UnaryALU int

const (
	ALUNeg UnaryALU = iota
	ALUNot
	ALUFinite
)

func (a UnaryALU) String() string {
	switch a {
	case ALUNeg:
		return "NEG"
	case ALUNot:
		return "NOT"
	case ALUFinite:
		return "FINITE"
	}
	return fmt.Sprintf("UnaryALU(%d)", int(a))
}

// UnaryOperator computes lhs = ALU rhs[0].
type UnaryOperator struct {
	operatorBase
	ALU           UnaryALU
	Signed        bool
	CheckOverflow bool
}

func NewUnary(debug *DebugInfo, alu UnaryALU, signed, overflow bool, lhs VariableExpression, arg Expression) *UnaryOperator {
	caps := CapsPureArithmetic
	level := LevelRegisters
	if overflow || alu == ALUFinite {
		caps = caps&^DoesNotThrow | MayThrow
		level = LevelConcreteTypes
	}
	op := &UnaryOperator{ALU: alu, Signed: signed, CheckOverflow: overflow}
	op.init(op, debug, caps, level)
	op.setOperands([]VariableExpression{lhs}, []Expression{arg})
	return op
}

func (op *UnaryOperator) Kind() OperatorKind { return OpUnary }
func (op *UnaryOperator) String() string     { return op.format("Unary", op.ALU.String()) }

func (op *UnaryOperator) Clone(ctx *CloningContext) Operator {
	n := &UnaryOperator{ALU: op.ALU, Signed: op.Signed, CheckOverflow: op.CheckOverflow}
	op.cloneInto(ctx, n)
	return n
}

func (op *UnaryOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.ALU)
	ctx.TransformValue(&op.Signed)
	ctx.TransformValue(&op.CheckOverflow)
}

// CompareOperator sets a condition code from rhs[0] - rhs[1].
type CompareOperator struct {
	operatorBase
}

func NewCompare(debug *DebugInfo, cc *ConditionCodeExpression, left, right Expression) *CompareOperator {
	op := &CompareOperator{}
	op.init(op, debug, CapsPureArithmetic, LevelRegisters)
	op.setOperands([]VariableExpression{cc}, []Expression{left, right})
	return op
}

func (op *CompareOperator) Kind() OperatorKind { return OpCompare }
func (op *CompareOperator) String() string     { return op.format("Compare") }

func (op *CompareOperator) Clone(ctx *CloningContext) Operator {
	n := &CompareOperator{}
	op.cloneInto(ctx, n)
	return n
}

// CompareAndSetOperator stores 1 in its result when Condition holds for
// rhs[0] and rhs[1], else 0.
type CompareAndSetOperator struct {
	operatorBase
	Condition Comparison
	Signed    bool
}

func NewCompareAndSet(debug *DebugInfo, cond Comparison, signed bool, lhs VariableExpression, left, right Expression) *CompareAndSetOperator {
	op := &CompareAndSetOperator{Condition: cond, Signed: signed}
	op.init(op, debug, CapsPureArithmetic, LevelConcreteTypesNoExceptions)
	op.setOperands([]VariableExpression{lhs}, []Expression{left, right})
	return op
}

func (op *CompareAndSetOperator) Kind() OperatorKind { return OpCompareAndSet }

func (op *CompareAndSetOperator) String() string {
	return op.format("CompareAndSet", op.Condition.String())
}

func (op *CompareAndSetOperator) Clone(ctx *CloningContext) Operator {
	n := &CompareAndSetOperator{Condition: op.Condition, Signed: op.Signed}
	op.cloneInto(ctx, n)
	return n
}

func (op *CompareAndSetOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.Condition)
	ctx.TransformValue(&op.Signed)
}

// ActivationRecordEvent marks a change in the state of the current frame.
type ActivationRecordEvent int

const (
	EventConstructed ActivationRecordEvent = iota
	EventReturnToCaller
	EventReturnFromException
	EventLongJump
	EventInterrupt
)

func (e ActivationRecordEvent) String() string {
	switch e {
	case EventConstructed:
		return "Constructed"
	case EventReturnToCaller:
		return "ReturnToCaller"
	case EventReturnFromException:
		return "ReturnFromException"
	case EventLongJump:
		return "LongJump"
	case EventInterrupt:
		return "Interrupt"
	}
	return fmt.Sprintf("ActivationRecordEvent(%d)", int(e))
}

// AddActivationRecordEventOperator is a meta operator that produces no
// code; it only informs frame layout.
type AddActivationRecordEventOperator struct {
	operatorBase
	Event ActivationRecordEvent
}

func NewAddActivationRecordEvent(debug *DebugInfo, ev ActivationRecordEvent) *AddActivationRecordEventOperator {
	op := &AddActivationRecordEventOperator{Event: ev}
	op.init(op, debug, CapsMeta, LevelRegisters)
	return op
}

func (op *AddActivationRecordEventOperator) Kind() OperatorKind { return OpAddActivationRecordEvent }

func (op *AddActivationRecordEventOperator) String() string {
	return op.format("ActivationRecordEvent", op.Event.String())
}

func (op *AddActivationRecordEventOperator) Clone(ctx *CloningContext) Operator {
	n := &AddActivationRecordEventOperator{Event: op.Event}
	op.cloneInto(ctx, n)
	return n
}

func (op *AddActivationRecordEventOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.Event)
}

// PhiOperator merges Arguments()[i], arriving from Origins()[i].
type PhiOperator struct {
	operatorBase
	origins []*BasicBlock
}

func NewPhi(debug *DebugInfo, lhs VariableExpression) *PhiOperator {
	op := &PhiOperator{}
	op.init(op, debug, CapsPureArithmetic, LevelRegisters)
	op.setOperands([]VariableExpression{lhs}, nil)
	return op
}

func (op *PhiOperator) Kind() OperatorKind     { return OpPhi }
func (op *PhiOperator) Origins() []*BasicBlock { return op.origins }

// AddEdge records that value flows in from origin.
func (op *PhiOperator) AddEdge(origin *BasicBlock, value Expression) {
	op.rhs = append(op.rhs[:len(op.rhs):len(op.rhs)], value)
	op.origins = append(op.origins[:len(op.origins):len(op.origins)], origin)
}

func (op *PhiOperator) String() string {
	names := make([]string, len(op.origins))
	for i, bb := range op.origins {
		names[i] = bb.String()
	}
	return op.format("Phi", "["+strings.Join(names, ",")+"]")
}

func (op *PhiOperator) Clone(ctx *CloningContext) Operator {
	n := &PhiOperator{}
	op.cloneInto(ctx, n)
	n.origins = ctx.CloneBlocks(op.origins)
	return n
}

func (op *PhiOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformBlocks(&op.origins)
}

var (
	_ Operator = (*SingleAssignmentOperator)(nil)
	_ Operator = (*BinaryOperator)(nil)
	_ Operator = (*UnaryOperator)(nil)
	_ Operator = (*CompareOperator)(nil)
	_ Operator = (*CompareAndSetOperator)(nil)
	_ Operator = (*AddActivationRecordEventOperator)(nil)
	_ Operator = (*PhiOperator)(nil)
)
