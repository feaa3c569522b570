package ir

import "fmt"

// CallKind tells how the callee of a call operator is chosen.
type CallKind int

const (
	CallDirect CallKind = iota
	CallIndirect
	CallVirtual
	CallOverridden
	CallOverriddenNoCheck
)

func (k CallKind) String() string {
	switch k {
	case CallDirect:
		return "Direct"
	case CallIndirect:
		return "Indirect"
	case CallVirtual:
		return "Virtual"
	case CallOverridden:
		return "Overridden"
	case CallOverriddenNoCheck:
		return "OverriddenNoCheck"
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// MatchSignature reports whether a call of the given kind binding lhs and
// rhs is consistent with md's signature.
//
// The receiver is not checked for Virtual and Overridden calls, no
// parameter is checked for OverriddenNoCheck, and Indirect calls carry the
// function pointer as rhs[0] in addition to skipping the receiver. A null
// constant satisfies any parameter that is not a value type, and scalar
// types are interchangeable since stack widening is resolved later.
func MatchSignature(kind CallKind, md *MethodRepresentation, lhs []VariableExpression, rhs []Expression) bool {
	if md == nil {
		return false
	}
	params := md.ThisPlusArguments

	argOffset, skip := 0, 0
	switch kind {
	case CallDirect:
	case CallVirtual, CallOverridden:
		skip = 1
	case CallOverriddenNoCheck:
		skip = len(params)
	case CallIndirect:
		argOffset, skip = 1, 1
	}

	if len(rhs)-argOffset != len(params) {
		return false
	}
	if skip > len(params) {
		skip = len(params)
	}

	for i := skip; i < len(params); i++ {
		if !argumentMatches(params[i], rhs[argOffset+i]) {
			return false
		}
	}

	if md.ReturnType.IsVoid() {
		return len(lhs) == 0
	}
	return len(lhs) == 1
}

func argumentMatches(param *TypeRepresentation, arg Expression) bool {
	if c, ok := arg.(*ConstantExpression); ok && c.IsNull() {
		return !param.IsValueType()
	}
	argType := arg.Type()
	if param.CanBeAssignedFrom(argType) {
		return true
	}
	return param.IsScalar() && argType.IsScalar()
}

// callBase is shared by the managed call operators.
type callBase struct {
	operatorBase
	callKind CallKind
	target   *MethodRepresentation
}

func (c *callBase) CallKind() CallKind                  { return c.callKind }
func (c *callBase) TargetMethod() *MethodRepresentation { return c.target }

// SetTargetMethod retargets the call, for example after devirtualization.
func (c *callBase) SetTargetMethod(md *MethodRepresentation) { c.target = md }

func (c *callBase) cloneCall(ctx *CloningContext, dst Operator, d *callBase) {
	d.callKind = c.callKind
	d.target = ctx.ConvertMethod(c.target)
	c.cloneInto(ctx, dst)
	Assert(MatchSignature(d.callKind, d.target, d.lhs, d.rhs),
		"cloned call %s does not match signature of %s", dst, d.target)
}

func (c *callBase) transformCall(ctx TransformationContext) {
	c.transformState(ctx)
	ctx.TransformValue(&c.callKind)
	ctx.TransformMethod(&c.target)
}

func (c *callBase) MatchSignature() bool {
	return MatchSignature(c.callKind, c.target, c.lhs, c.rhs)
}

func callLevel(caps OperatorCapabilities) OperatorLevel {
	if caps.Has(DoesNotThrow) {
		return LevelConcreteTypesNoExceptions
	}
	return LevelConcreteTypes
}

// StaticCallOperator calls a method with no dynamic dispatch.
type StaticCallOperator struct {
	callBase
}

func NewStaticCall(debug *DebugInfo, kind CallKind, md *MethodRepresentation, lhs []VariableExpression, rhs []Expression) *StaticCallOperator {
	op := &StaticCallOperator{}
	op.callKind = kind
	op.target = md
	op.init(op, debug, CapsCall, callLevel(CapsCall))
	op.setOperands(lhs, rhs)
	return op
}

func (op *StaticCallOperator) Kind() OperatorKind { return OpStaticCall }

func (op *StaticCallOperator) String() string {
	return op.format("StaticCall", op.callKind.String(), op.target.String())
}

func (op *StaticCallOperator) Clone(ctx *CloningContext) Operator {
	n := &StaticCallOperator{}
	op.cloneCall(ctx, n, &n.callBase)
	return n
}

func (op *StaticCallOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformCall(ctx)
}

// InstanceCallOperator calls through the receiver in rhs[0].
type InstanceCallOperator struct {
	callBase
}

func NewInstanceCall(debug *DebugInfo, kind CallKind, md *MethodRepresentation, lhs []VariableExpression, rhs []Expression) *InstanceCallOperator {
	op := &InstanceCallOperator{}
	op.callKind = kind
	op.target = md
	op.init(op, debug, CapsCall, callLevel(CapsCall))
	op.setOperands(lhs, rhs)
	return op
}

func (op *InstanceCallOperator) Kind() OperatorKind { return OpInstanceCall }

func (op *InstanceCallOperator) String() string {
	return op.format("InstanceCall", op.callKind.String(), op.target.String())
}

func (op *InstanceCallOperator) Clone(ctx *CloningContext) Operator {
	n := &InstanceCallOperator{}
	op.cloneCall(ctx, n, &n.callBase)
	return n
}

func (op *InstanceCallOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformCall(ctx)
}

// IndirectCallOperator calls the code address in rhs[0]; the remaining
// arguments follow the signature of the method it stands for.
type IndirectCallOperator struct {
	callBase
}

func NewIndirectCall(debug *DebugInfo, md *MethodRepresentation, lhs []VariableExpression, fnPtr Expression, args []Expression) *IndirectCallOperator {
	op := &IndirectCallOperator{}
	op.callKind = CallIndirect
	op.target = md
	op.init(op, debug, CapsCall, callLevel(CapsCall))
	op.setOperands(lhs, append([]Expression{fnPtr}, args...))
	return op
}

func (op *IndirectCallOperator) Kind() OperatorKind { return OpIndirectCall }

// FunctionPointer is the called address.
func (op *IndirectCallOperator) FunctionPointer() Expression { return op.FirstArgument() }

func (op *IndirectCallOperator) String() string {
	return op.format("IndirectCall", op.target.String())
}

func (op *IndirectCallOperator) Clone(ctx *CloningContext) Operator {
	n := &IndirectCallOperator{}
	op.cloneCall(ctx, n, &n.callBase)
	return n
}

func (op *IndirectCallOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformCall(ctx)
}

// ExternalCallContext is the linker's handle on an imported routine. The
// concrete type lives in the link package.
type ExternalCallContext interface {
	SymbolName() string
}

// ExternalCallOperator calls a routine compiled outside the managed
// program, identified by Symbol.
type ExternalCallOperator struct {
	operatorBase
	Symbol   string
	Library  string
	contexts []ExternalCallContext
}

func NewExternalCall(debug *DebugInfo, symbol, library string, lhs []VariableExpression, rhs []Expression) *ExternalCallOperator {
	op := &ExternalCallOperator{Symbol: symbol, Library: library}
	op.init(op, debug, CapsCall, LevelScalarValues)
	op.setOperands(lhs, rhs)
	return op
}

func (op *ExternalCallOperator) Kind() OperatorKind { return OpExternalCall }

// Contexts returns the imported routines bound to this call site, the
// callee first.
func (op *ExternalCallOperator) Contexts() []ExternalCallContext { return op.contexts }

// BindContexts attaches the routines discovered for Symbol.
func (op *ExternalCallOperator) BindContexts(ctxs []ExternalCallContext) {
	op.contexts = append([]ExternalCallContext(nil), ctxs...)
}

func (op *ExternalCallOperator) IsBound() bool { return len(op.contexts) > 0 }

func (op *ExternalCallOperator) String() string {
	return op.format("ExternalCall", op.Symbol)
}

func (op *ExternalCallOperator) Clone(ctx *CloningContext) Operator {
	n := &ExternalCallOperator{Symbol: op.Symbol, Library: op.Library}
	op.cloneInto(ctx, n)
	n.contexts = op.contexts
	return n
}

func (op *ExternalCallOperator) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(op) {
		return
	}
	defer ctx.Pop()
	op.transformState(ctx)
	ctx.TransformValue(&op.Symbol)
	ctx.TransformValue(&op.Library)
}

var (
	_ Operator = (*StaticCallOperator)(nil)
	_ Operator = (*InstanceCallOperator)(nil)
	_ Operator = (*IndirectCallOperator)(nil)
	_ Operator = (*ExternalCallOperator)(nil)
)
