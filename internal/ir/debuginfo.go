package ir

import "fmt"

// DebugInfo ties a node back to a source range.
type DebugInfo struct {
	File        string
	Method      string
	BeginLine   int
	BeginColumn int
	EndLine     int
	EndColumn   int
}

func (d *DebugInfo) String() string {
	if d == nil {
		return "<no debug info>"
	}
	return fmt.Sprintf("%s:%d:%d (%s)", d.File, d.BeginLine, d.BeginColumn, d.Method)
}
