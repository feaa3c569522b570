package compiler

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/asm/arm"
	"github.com/tinyrange/armaot/internal/ir"
)

// Every method saves the allocatable callee-saved registers and LR.
var savedRegisters = arm.Regs(arm.R4, arm.R5, arm.R6, arm.R7, arm.R8, arm.R9, arm.R10, arm.R11, arm.LR)

const savedBytes = 9 * wordSize

// R12 and LR are free between calls and never hold a variable.
const (
	scratch0 = arm.R12
	scratch1 = arm.LR
)

// largestStackImmediate is the largest SP adjustment encoded directly.
const largestStackImmediate = 0xFF << 2

// codegen turns one register-allocated graph into A32 fragments.
type codegen struct {
	g         *ir.Graph
	frame     *frame
	fragments asm.Group
	frameSize int32
	// pushed counts bytes of outgoing arguments currently on the stack.
	pushed int32
	exit   asm.Label
	next   *ir.BasicBlock
}

// compileGraph emits the code of a method whose variables have all been
// given a register or stack home. The code starts with a label named after
// the method.
func compileGraph(g *ir.Graph, f *frame) (asm.Fragment, error) {
	md := g.Method()
	if md == nil {
		return nil, fmt.Errorf("compiler: graph %s has no method", g)
	}
	if f == nil {
		f = &frame{}
	}
	c := &codegen{
		g:         g,
		frame:     f,
		frameSize: f.localBytes(),
		exit:      asm.Label(md.Name + ".exit"),
	}

	c.emit(asm.MarkLabel(asm.Label(md.Name)), arm.Push(savedRegisters))
	c.adjustStack(-c.frameSize)
	for i, h := range f.arguments {
		if i >= argumentRegisters {
			break
		}
		if h != nil {
			if err := c.store(h, arm.Reg(i)); err != nil {
				return nil, err
			}
		}
	}

	blocks := g.ReachableBlocks()
	for i, bb := range blocks {
		c.next = nil
		if i+1 < len(blocks) {
			c.next = blocks[i+1]
		}
		c.emit(asm.MarkLabel(c.label(bb)))
		for _, op := range bb.Operators() {
			if err := ir.Dispatch(op, c); err != nil {
				return nil, fmt.Errorf("compiler: %s: %s: %w", md, op, err)
			}
		}
	}

	c.emit(asm.MarkLabel(c.exit))
	c.adjustStack(c.frameSize)
	c.emit(arm.Pop(savedRegisters), arm.Return())
	return c.fragments, nil
}

func (c *codegen) emit(frags ...asm.Fragment) {
	c.fragments = append(c.fragments, frags...)
}

func (c *codegen) label(bb *ir.BasicBlock) asm.Label {
	return asm.Label(fmt.Sprintf("%s.%s", c.g.Method().Name, bb))
}

// adjustStack adds delta to SP.
func (c *codegen) adjustStack(delta int32) {
	switch {
	case delta == 0:
	case delta > 0 && delta <= largestStackImmediate:
		c.emit(arm.AddImm(arm.SP, arm.SP, uint32(delta)))
	case delta < 0 && -delta <= largestStackImmediate:
		c.emit(arm.SubImm(arm.SP, arm.SP, uint32(-delta)))
	case delta > 0:
		c.emit(arm.MovImmediate(scratch0, uint32(delta)), arm.AddReg(arm.SP, arm.SP, scratch0))
	default:
		c.emit(arm.MovImmediate(scratch0, uint32(-delta)), arm.SubReg(arm.SP, arm.SP, scratch0))
	}
}

func (c *codegen) slot(v *ir.StackLocationExpression) (arm.Memory, error) {
	off, ok := v.AllocationOffset()
	if !ok {
		return arm.Memory{}, fmt.Errorf("stack slot %s has no offset", v)
	}
	disp := c.pushed + int32(off)
	switch v.Placement() {
	case ir.PlacementLocal:
	case ir.PlacementIn:
		disp += c.frameSize + savedBytes
	default:
		return arm.Memory{}, fmt.Errorf("stack slot %s is not addressable here", v)
	}
	return arm.Mem(arm.SP).WithDisp(disp), nil
}

// operand makes ex available in a register, loading it into scratch when it
// does not already live in one.
func (c *codegen) operand(ex ir.Expression, scratch arm.Reg) (arm.Reg, error) {
	switch e := ex.(type) {
	case *ir.PhysicalRegisterExpression:
		return arm.Reg(e.Register().Encoding), nil
	case *ir.StackLocationExpression:
		mem, err := c.slot(e)
		if err != nil {
			return 0, err
		}
		c.emit(arm.LoadWord(scratch, mem))
		return scratch, nil
	case *ir.ConstantExpression:
		v, ok := e.AsSignedInteger()
		if !ok {
			return 0, fmt.Errorf("constant %s is not an integer", e)
		}
		c.emit(arm.MovImmediate(scratch, uint32(v)))
		return scratch, nil
	}
	return 0, fmt.Errorf("%s has not been given a register", ex)
}

// destination is the register a result is computed into before store.
func (c *codegen) destination(v ir.VariableExpression) arm.Reg {
	if r, ok := v.(*ir.PhysicalRegisterExpression); ok {
		return arm.Reg(r.Register().Encoding)
	}
	return scratch0
}

func (c *codegen) store(v ir.VariableExpression, src arm.Reg) error {
	switch e := v.(type) {
	case *ir.PhysicalRegisterExpression:
		if dst := arm.Reg(e.Register().Encoding); dst != src {
			c.emit(arm.MovReg(dst, src))
		}
		return nil
	case *ir.StackLocationExpression:
		mem, err := c.slot(e)
		if err != nil {
			return err
		}
		c.emit(arm.StoreWord(src, mem))
		return nil
	}
	return fmt.Errorf("cannot store to %s", v)
}

var _ ir.Visitor = (*codegen)(nil)

func (c *codegen) VisitSingleAssignment(op *ir.SingleAssignmentOperator) error {
	src, err := c.operand(op.FirstArgument(), scratch0)
	if err != nil {
		return err
	}
	return c.store(op.FirstResult(), src)
}

func (c *codegen) VisitBinary(op *ir.BinaryOperator) error {
	if op.CheckOverflow {
		return fmt.Errorf("overflow checks are not supported")
	}
	left, err := c.operand(op.FirstArgument(), scratch0)
	if err != nil {
		return err
	}
	right, err := c.operand(op.SecondArgument(), scratch1)
	if err != nil {
		return err
	}
	dst := c.destination(op.FirstResult())
	switch op.ALU {
	case ir.ALUAdd:
		c.emit(arm.AddReg(dst, left, right))
	case ir.ALUSub:
		c.emit(arm.SubReg(dst, left, right))
	case ir.ALUAnd:
		c.emit(arm.AndReg(dst, left, right))
	case ir.ALUOr:
		c.emit(arm.OrrReg(dst, left, right))
	case ir.ALUXor:
		c.emit(arm.EorReg(dst, left, right))
	case ir.ALUShl:
		c.emit(arm.LslReg(dst, left, right))
	case ir.ALUShr:
		if op.Signed {
			c.emit(arm.AsrReg(dst, left, right))
		} else {
			c.emit(arm.LsrReg(dst, left, right))
		}
	case ir.ALUMul:
		// MUL on ARMv4 and ARMv5 needs Rd distinct from Rm.
		if dst == left {
			left, right = right, left
		}
		if dst == left {
			c.emit(arm.MovReg(scratch1, left))
			left = scratch1
		}
		c.emit(arm.Mul(dst, left, right))
	default:
		return fmt.Errorf("%s has no A32 instruction", op.ALU)
	}
	return c.store(op.FirstResult(), dst)
}

func (c *codegen) VisitUnary(op *ir.UnaryOperator) error {
	if op.CheckOverflow {
		return fmt.Errorf("overflow checks are not supported")
	}
	src, err := c.operand(op.FirstArgument(), scratch0)
	if err != nil {
		return err
	}
	dst := c.destination(op.FirstResult())
	switch op.ALU {
	case ir.ALUNeg:
		c.emit(arm.RsbImm(dst, src, 0))
	case ir.ALUNot:
		c.emit(arm.MvnReg(dst, src))
	default:
		return fmt.Errorf("%s has no A32 instruction", op.ALU)
	}
	return c.store(op.FirstResult(), dst)
}

func (c *codegen) compare(left, right ir.Expression) error {
	l, err := c.operand(left, scratch0)
	if err != nil {
		return err
	}
	r, err := c.operand(right, scratch1)
	if err != nil {
		return err
	}
	c.emit(arm.CmpReg(l, r))
	return nil
}

func (c *codegen) VisitCompare(op *ir.CompareOperator) error {
	return c.compare(op.FirstArgument(), op.SecondArgument())
}

func (c *codegen) VisitCompareAndSet(op *ir.CompareAndSetOperator) error {
	if err := c.compare(op.FirstArgument(), op.SecondArgument()); err != nil {
		return err
	}
	dst := c.destination(op.FirstResult())
	c.emit(arm.SetCond(dst, op.Condition))
	return c.store(op.FirstResult(), dst)
}

// call passes args in R0-R3 and on the stack, emits the branch and stores
// R0 into the result.
func (c *codegen) call(args []ir.Expression, results []ir.VariableExpression, branch func() error) error {
	var stacked int32
	if extra := len(args) - argumentRegisters; extra > 0 {
		if extra%2 == 1 {
			c.adjustStack(-wordSize)
			c.pushed += wordSize
			stacked += wordSize
		}
		for i := len(args) - 1; i >= argumentRegisters; i-- {
			r, err := c.operand(args[i], scratch0)
			if err != nil {
				return err
			}
			c.emit(arm.Push(arm.Regs(r)))
			c.pushed += wordSize
			stacked += wordSize
		}
	}
	for i := 0; i < len(args) && i < argumentRegisters; i++ {
		dst := arm.Reg(i)
		r, err := c.operand(args[i], dst)
		if err != nil {
			return err
		}
		if r != dst {
			c.emit(arm.MovReg(dst, r))
		}
	}
	if err := branch(); err != nil {
		return err
	}
	if stacked > 0 {
		c.adjustStack(stacked)
		c.pushed -= stacked
	}
	if len(results) > 0 {
		return c.store(results[0], arm.R0)
	}
	return nil
}

func (c *codegen) callSymbol(symbol string) func() error {
	return func() error {
		c.emit(arm.CallSymbol(symbol))
		return nil
	}
}

func (c *codegen) VisitStaticCall(op *ir.StaticCallOperator) error {
	if op.CallKind() != ir.CallDirect {
		return fmt.Errorf("%s calls are not supported", op.CallKind())
	}
	return c.call(op.Arguments(), op.Results(), c.callSymbol(op.TargetMethod().Name))
}

func (c *codegen) VisitInstanceCall(op *ir.InstanceCallOperator) error {
	switch op.CallKind() {
	case ir.CallDirect, ir.CallOverriddenNoCheck:
	default:
		return fmt.Errorf("%s calls are not supported", op.CallKind())
	}
	return c.call(op.Arguments(), op.Results(), c.callSymbol(op.TargetMethod().Name))
}

func (c *codegen) VisitIndirectCall(op *ir.IndirectCallOperator) error {
	args := op.Arguments()
	return c.call(args[1:], op.Results(), func() error {
		// Loaded last so that argument set-up cannot clobber it.
		r, err := c.operand(op.FunctionPointer(), scratch0)
		if err != nil {
			return err
		}
		if r != scratch0 {
			c.emit(arm.MovReg(scratch0, r))
		}
		c.emit(arm.CallReg(scratch0))
		return nil
	})
}

func (c *codegen) VisitExternalCall(op *ir.ExternalCallOperator) error {
	if !op.IsBound() {
		return c.call(op.Arguments(), op.Results(), func() error {
			c.emit(arm.UnresolvedCall())
			return nil
		})
	}
	return c.call(op.Arguments(), op.Results(), c.callSymbol(op.Symbol))
}

func (c *codegen) VisitAddActivationRecordEvent(op *ir.AddActivationRecordEventOperator) error {
	return nil
}

func (c *codegen) VisitPhi(op *ir.PhiOperator) error {
	return fmt.Errorf("phi reached code generation")
}

func (c *codegen) VisitUnconditionalControl(op *ir.UnconditionalControlOperator) error {
	if op.Target() != c.next {
		c.emit(arm.Jump(c.label(op.Target())))
	}
	return nil
}

func (c *codegen) VisitConditionCodeConditionalControl(op *ir.ConditionCodeConditionalControlOperator) error {
	taken, notTaken := op.TakenBranch(), op.NotTakenBranch()
	if op.Condition == ir.Always {
		if taken != c.next {
			c.emit(arm.Jump(c.label(taken)))
		}
		return nil
	}
	c.emit(arm.BranchIf(op.Condition, c.label(taken)))
	if notTaken != c.next {
		c.emit(arm.Jump(c.label(notTaken)))
	}
	return nil
}

func (c *codegen) VisitReturnControl(op *ir.ReturnControlOperator) error {
	if len(op.Arguments()) > 0 {
		r, err := c.operand(op.FirstArgument(), arm.R0)
		if err != nil {
			return err
		}
		if r != arm.R0 {
			c.emit(arm.MovReg(arm.R0, r))
		}
	}
	if c.next != nil {
		c.emit(arm.Jump(c.exit))
	}
	return nil
}
