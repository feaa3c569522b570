package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a readable listing of g.
func (g *Graph) Dump(w io.Writer) error {
	p := &printer{w: w}
	p.printf("%s\n", g)
	for _, v := range g.variables {
		p.printf("  var %s : %s\n", v, v.Type())
	}
	for _, bb := range g.blocks {
		marker := ""
		if bb == g.entry {
			marker = " (entry)"
		}
		p.printf("%s%s:\n", bb, marker)
		for _, op := range bb.operators {
			if err := Dispatch(op, p); err != nil {
				return err
			}
		}
	}
	return p.err
}

// DumpString is Dump into a string.
func (g *Graph) DumpString() string {
	var sb strings.Builder
	_ = g.Dump(&sb)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) op(op Operator) error {
	p.printf("    %s\n", op)
	return p.err
}

func (p *printer) VisitSingleAssignment(op *SingleAssignmentOperator) error { return p.op(op) }
func (p *printer) VisitBinary(op *BinaryOperator) error                     { return p.op(op) }
func (p *printer) VisitUnary(op *UnaryOperator) error                       { return p.op(op) }
func (p *printer) VisitCompare(op *CompareOperator) error                   { return p.op(op) }
func (p *printer) VisitCompareAndSet(op *CompareAndSetOperator) error       { return p.op(op) }
func (p *printer) VisitStaticCall(op *StaticCallOperator) error             { return p.op(op) }
func (p *printer) VisitInstanceCall(op *InstanceCallOperator) error         { return p.op(op) }
func (p *printer) VisitIndirectCall(op *IndirectCallOperator) error         { return p.op(op) }
func (p *printer) VisitPhi(op *PhiOperator) error                           { return p.op(op) }
func (p *printer) VisitReturnControl(op *ReturnControlOperator) error       { return p.op(op) }

func (p *printer) VisitExternalCall(op *ExternalCallOperator) error {
	p.printf("    %s", op)
	for _, c := range op.Contexts() {
		p.printf(" [bound %s]", c.SymbolName())
	}
	p.printf("\n")
	return p.err
}

func (p *printer) VisitAddActivationRecordEvent(op *AddActivationRecordEventOperator) error {
	return p.op(op)
}

func (p *printer) VisitUnconditionalControl(op *UnconditionalControlOperator) error {
	return p.op(op)
}

func (p *printer) VisitConditionCodeConditionalControl(op *ConditionCodeConditionalControlOperator) error {
	return p.op(op)
}
