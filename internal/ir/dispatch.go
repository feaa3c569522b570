package ir

// Visitor has one method per operator kind. Back ends implement it so that
// adding an operator kind breaks the build of every consumer instead of
// falling through a default case.
type Visitor interface {
	VisitSingleAssignment(op *SingleAssignmentOperator) error
	VisitBinary(op *BinaryOperator) error
	VisitUnary(op *UnaryOperator) error
	VisitCompare(op *CompareOperator) error
	VisitCompareAndSet(op *CompareAndSetOperator) error
	VisitStaticCall(op *StaticCallOperator) error
	VisitInstanceCall(op *InstanceCallOperator) error
	VisitIndirectCall(op *IndirectCallOperator) error
	VisitExternalCall(op *ExternalCallOperator) error
	VisitAddActivationRecordEvent(op *AddActivationRecordEventOperator) error
	VisitPhi(op *PhiOperator) error
	VisitUnconditionalControl(op *UnconditionalControlOperator) error
	VisitConditionCodeConditionalControl(op *ConditionCodeConditionalControlOperator) error
	VisitReturnControl(op *ReturnControlOperator) error
}

// Dispatch calls the Visitor method for op's kind. The operator set is
// closed, so an unknown operator is a compiler bug.
func Dispatch(op Operator, v Visitor) error {
	switch o := op.(type) {
	case *SingleAssignmentOperator:
		return v.VisitSingleAssignment(o)
	case *BinaryOperator:
		return v.VisitBinary(o)
	case *UnaryOperator:
		return v.VisitUnary(o)
	case *CompareOperator:
		return v.VisitCompare(o)
	case *CompareAndSetOperator:
		return v.VisitCompareAndSet(o)
	case *StaticCallOperator:
		return v.VisitStaticCall(o)
	case *InstanceCallOperator:
		return v.VisitInstanceCall(o)
	case *IndirectCallOperator:
		return v.VisitIndirectCall(o)
	case *ExternalCallOperator:
		return v.VisitExternalCall(o)
	case *AddActivationRecordEventOperator:
		return v.VisitAddActivationRecordEvent(o)
	case *PhiOperator:
		return v.VisitPhi(o)
	case *UnconditionalControlOperator:
		return v.VisitUnconditionalControl(o)
	case *ConditionCodeConditionalControlOperator:
		return v.VisitConditionCodeConditionalControl(o)
	case *ReturnControlOperator:
		return v.VisitReturnControl(o)
	default:
		Fail("unexpected operator %T", op)
		return nil
	}
}

// DispatchGraph visits every operator of g in block order and stops at the
// first error.
func DispatchGraph(g *Graph, v Visitor) error {
	for _, op := range g.Operators() {
		if err := Dispatch(op, v); err != nil {
			return err
		}
	}
	return nil
}
