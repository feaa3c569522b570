package compiler

import (
	"fmt"
	"slices"

	"github.com/tinyrange/armaot/internal/ir"
)

const (
	wordSize = 4

	// argumentRegisters is the number of arguments passed in R0-R3. These
	// registers are clobbered by every call and are never allocated.
	argumentRegisters = 4
)

// frame is what the code generator needs to know about a method once its
// variables have homes.
type frame struct {
	// arguments holds the home of each argument by index, nil when the
	// argument is never used.
	arguments []ir.VariableExpression
	// locals is the number of spill slots.
	locals int
}

func (f *frame) localBytes() int32 {
	size := int32(f.locals * wordSize)
	// Keep SP 8-byte aligned below the saved registers.
	if (size+savedBytes)%8 != 0 {
		size += wordSize
	}
	return size
}

// AllocateRegisters gives every variable used by a method a home: one of
// the callee-saved core registers while they last, then a stack slot.
// Arguments past the fourth stay in the caller's outgoing area. Variables
// are assigned in VariableKind order and replaced in one substitution walk.
//
// The allocator does not track liveness, so a register is never shared
// between two variables.
func AllocateRegisters(d *Driver, p *Program) error {
	for _, md := range p.Methods() {
		f, err := allocateGraph(md.Graph, d.target)
		if err != nil {
			return fmt.Errorf("%s: %w", md, err)
		}
		d.frames[md.Graph] = f
		d.logger.Debug("allocated registers", "method", md.String(), "arguments", len(f.arguments), "spills", f.locals)
	}
	return nil
}

type allocator struct {
	g      *ir.Graph
	target *ir.Target
	pool   []*ir.RegisterDescriptor
	next   int
	homes  map[ir.VariableExpression]ir.VariableExpression
	frame  *frame
}

func allocateGraph(g *ir.Graph, target *ir.Target) (*frame, error) {
	eliminatePhis(g)

	a := &allocator{
		g:      g,
		target: target,
		homes:  make(map[ir.VariableExpression]ir.VariableExpression),
		frame:  &frame{},
	}
	for _, r := range target.Registers.Allocatable(ir.ClassInteger) {
		if r.Encoding >= argumentRegisters {
			a.pool = append(a.pool, r)
		}
	}

	used := usedVariables(g)
	slices.SortStableFunc(used, func(x, y ir.VariableExpression) int {
		return x.VariableKind() - y.VariableKind()
	})
	for _, v := range used {
		if _, err := a.home(v); err != nil {
			return nil, err
		}
	}

	mapping := make(map[ir.Expression]ir.Expression, len(a.homes))
	for v, h := range a.homes {
		if v != h {
			mapping[v] = h
		}
	}
	g.SubstituteAll(mapping)
	return a.frame, nil
}

// usedVariables lists the variables operators read or write, in first-use
// order.
func usedVariables(g *ir.Graph) []ir.VariableExpression {
	var out []ir.VariableExpression
	seen := make(map[ir.VariableExpression]bool)
	add := func(ex ir.Expression) {
		v, ok := ex.(ir.VariableExpression)
		if !ok || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, op := range g.Operators() {
		for _, v := range op.Results() {
			add(v)
		}
		for _, ex := range op.Arguments() {
			add(ex)
		}
	}
	return out
}

func (a *allocator) home(v ir.VariableExpression) (ir.VariableExpression, error) {
	if h, ok := a.homes[v]; ok {
		return h, nil
	}
	switch v.StorageClass() {
	case ir.StoragePhysical, ir.StorageStack, ir.StorageConditionCode:
		return v, nil
	case ir.StoragePhi:
		// Every version of a variable shares the variable's home.
		if t := v.(*ir.PhiVariableExpression).Target(); t != nil {
			h, err := a.home(t)
			if err != nil {
				return nil, err
			}
			a.homes[v] = h
			return h, nil
		}
	}
	if !a.target.FitsInPhysicalRegister(v.Type()) {
		return nil, fmt.Errorf("%s of type %s does not fit in a register", v, v.Type())
	}

	var h ir.VariableExpression
	arg, isArg := v.(*ir.ArgumentVariableExpression)
	switch {
	case isArg && arg.Index >= argumentRegisters:
		slot := a.g.AllocateStackLocation(ir.PlacementIn, v.Type(), v.DebugInfo())
		slot.SetAllocationOffset((arg.Index - argumentRegisters) * wordSize)
		h = slot
	case a.next < len(a.pool):
		h = a.g.AllocatePhysicalRegister(a.pool[a.next], v.Type(), v.DebugInfo())
		a.next++
	default:
		slot := a.g.AllocateStackLocation(ir.PlacementLocal, v.Type(), v.DebugInfo())
		slot.SetAllocationOffset(a.frame.locals * wordSize)
		a.frame.locals++
		h = slot
	}
	ir.Assert(v.StorageClass().CanBecome(h.StorageClass()),
		"cannot lower %s (%s) to %s (%s)", v, v.StorageClass(), h, h.StorageClass())

	a.homes[v] = h
	if isArg {
		for len(a.frame.arguments) <= arg.Index {
			a.frame.arguments = append(a.frame.arguments, nil)
		}
		a.frame.arguments[arg.Index] = h
	}
	return h, nil
}

// eliminatePhis turns each phi into a copy at the end of every block it
// merges from.
func eliminatePhis(g *ir.Graph) {
	for _, bb := range g.Blocks() {
		for _, op := range bb.Operators() {
			phi, ok := op.(*ir.PhiOperator)
			if !ok {
				continue
			}
			lhs := phi.FirstResult()
			values := phi.Arguments()
			for i, origin := range phi.Origins() {
				origin.AddOperator(ir.NewSingleAssignment(phi.DebugInfo(), lhs, values[i]))
			}
			bb.RemoveOperator(phi)
		}
	}
}
