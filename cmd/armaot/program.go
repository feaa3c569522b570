package main

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/compiler"
	"github.com/tinyrange/armaot/internal/ir"
)

// entryProgram builds the managed side of an image: a single exported
// method that calls root and then spins.
//
//	entry: call root; goto halt
//	halt:  goto halt
func entryProgram(name, root string) (*compiler.Program, error) {
	if name == "" || root == "" {
		return nil, fmt.Errorf("entry and root names are required")
	}
	if name == root {
		return nil, fmt.Errorf("entry method %q cannot also be the root routine", name)
	}

	ts := ir.NewTypeSystem()
	md := ts.DefineMethod(&ir.MethodRepresentation{
		Name:       name,
		IsStatic:   true,
		IsExported: true,
	})
	g := ir.NewGraph(ts, md)
	debug := &ir.DebugInfo{File: "<entry>", Method: name}

	halt := g.NewBasicBlock()
	g.Entry().AddOperator(ir.NewExternalCall(debug, root, "", nil, nil))
	g.Entry().AddOperator(ir.NewUnconditionalControl(debug, halt))
	halt.AddOperator(ir.NewUnconditionalControl(debug, halt))

	return compiler.NewProgram(ts), nil
}
