package asm

import (
	"fmt"
	"sort"
)

type Context interface {
	EmitBytes(data []byte)

	GetLabel(label Label) (int, bool)
	SetLabel(label Label)
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

type Label string

type labelDef struct {
	label Label
}

func MarkLabel(label Label) Fragment {
	return &labelDef{label: label}
}

func (l *labelDef) Emit(ctx Context) error {
	if _, exists := ctx.GetLabel(l.label); exists {
		return fmt.Errorf("label %q already defined", l.label)
	}
	ctx.SetLabel(l.label)
	return nil
}

// ReferenceKind says how a symbol reference inside a Program is patched once
// the symbol has an address.
type ReferenceKind uint8

const (
	// ReferenceCall is a BL whose 24-bit offset field targets the symbol.
	ReferenceCall ReferenceKind = iota
	// ReferenceJump is a B whose 24-bit offset field targets the symbol.
	ReferenceJump
	// ReferenceAbsolute is a 32-bit word that receives the symbol address.
	ReferenceAbsolute
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceCall:
		return "call"
	case ReferenceJump:
		return "jump"
	case ReferenceAbsolute:
		return "abs32"
	default:
		return fmt.Sprintf("ReferenceKind(%d)", uint8(k))
	}
}

// SymbolReference is a use of a symbol that could not be resolved while
// emitting. Offset is relative to the start of the Program.
type SymbolReference struct {
	Offset int
	Symbol string
	Kind   ReferenceKind
}

type Program struct {
	code       []byte
	references []SymbolReference
	labels     map[Label]int
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Len() int { return len(p.code) }

func (p Program) References() []SymbolReference {
	return append([]SymbolReference(nil), p.references...)
}

// Label returns the offset a label was bound to.
func (p Program) Label(label Label) (int, bool) {
	off, ok := p.labels[label]
	return off, ok
}

// Labels returns the bound labels sorted by offset.
func (p Program) Labels() []Label {
	out := make([]Label, 0, len(p.labels))
	for l := range p.labels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := p.labels[out[i]], p.labels[out[j]]
		if oi != oj {
			return oi < oj
		}
		return out[i] < out[j]
	})
	return out
}

func (p Program) Clone() Program {
	return NewProgram(p.code, p.references, p.labels)
}

func NewProgram(code []byte, references []SymbolReference, labels map[Label]int) Program {
	prog := Program{
		code:       append([]byte(nil), code...),
		references: append([]SymbolReference(nil), references...),
		labels:     make(map[Label]int, len(labels)),
	}
	for l, off := range labels {
		prog.labels[l] = off
	}
	return prog
}
