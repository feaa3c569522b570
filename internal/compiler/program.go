// Package compiler lowers managed method graphs to A32 code and links them,
// together with the native routines they call, into a flat image.
package compiler

import (
	"github.com/tinyrange/armaot/internal/ir"
)

// Program is the unit of compilation: a type system and the methods defined
// in it that have a body.
type Program struct {
	Types *ir.TypeSystem
}

func NewProgram(ts *ir.TypeSystem) *Program {
	return &Program{Types: ts}
}

// Methods lists the methods with a graph, in definition order.
func (p *Program) Methods() []*ir.MethodRepresentation {
	var out []*ir.MethodRepresentation
	for _, md := range p.Types.Methods() {
		if md.Graph != nil {
			out = append(out, md)
		}
	}
	return out
}

// Method finds a method with a body by name.
func (p *Program) Method(name string) (*ir.MethodRepresentation, bool) {
	for _, md := range p.Methods() {
		if md.Name == name {
			return md, true
		}
	}
	return nil, false
}
