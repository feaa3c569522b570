package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/ir"
)

type Context struct {
	order      binary.ByteOrder
	text       []byte
	labels     map[asm.Label]int
	branches   []branchPatch
	references []asm.SymbolReference
}

type branchPatch struct {
	label asm.Label
	pos   int
	cond  ir.Comparison
	link  bool
}

func newContext(order binary.ByteOrder) *Context {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Context{
		order:  order,
		labels: make(map[asm.Label]int),
	}
}

func requireContext(ctx asm.Context) (*Context, error) {
	if c, ok := ctx.(*Context); ok {
		return c, nil
	}
	return nil, fmt.Errorf("arm asm: unsupported context %T", ctx)
}

func (c *Context) EmitBytes(data []byte) {
	c.text = append(c.text, data...)
}

func (c *Context) emit32(word uint32) int {
	pos := len(c.text)
	var buf [4]byte
	c.order.PutUint32(buf[:], word)
	c.text = append(c.text, buf[:]...)
	return pos
}

func (c *Context) SetLabel(label asm.Label) {
	c.labels[label] = len(c.text)
}

func (c *Context) GetLabel(label asm.Label) (int, bool) {
	pos, ok := c.labels[label]
	return pos, ok
}

func (c *Context) alignWord() {
	if rem := len(c.text) % 4; rem != 0 {
		c.text = append(c.text, make([]byte, 4-rem)...)
	}
}

func (c *Context) emitBranch(label asm.Label, cond ir.Comparison, link bool) error {
	word, err := encodeBranch(cond, 0, link)
	if err != nil {
		return err
	}
	pos := c.emit32(word)
	c.branches = append(c.branches, branchPatch{
		label: label,
		pos:   pos,
		cond:  cond,
		link:  link,
	})
	return nil
}

// emitSymbolBranch leaves a B/BL with offset -PCOffset (branch to self) for
// the linker to fill in.
func (c *Context) emitSymbolBranch(symbol string, link bool) error {
	word, err := encodeBranch(ir.Always, -PCOffset, link)
	if err != nil {
		return err
	}
	pos := c.emit32(word)
	kind := asm.ReferenceJump
	if link {
		kind = asm.ReferenceCall
	}
	c.references = append(c.references, asm.SymbolReference{
		Offset: pos,
		Symbol: symbol,
		Kind:   kind,
	})
	return nil
}

func (c *Context) emitSymbolWord(symbol string, addend uint32) {
	pos := c.emit32(addend)
	c.references = append(c.references, asm.SymbolReference{
		Offset: pos,
		Symbol: symbol,
		Kind:   asm.ReferenceAbsolute,
	})
}

func (c *Context) finalize() (asm.Program, error) {
	c.alignWord()
	for _, br := range c.branches {
		if err := c.patchBranch(br); err != nil {
			return asm.Program{}, err
		}
	}
	return asm.NewProgram(c.text, c.references, c.labels), nil
}

func (c *Context) patchBranch(p branchPatch) error {
	target, ok := c.labels[p.label]
	if !ok {
		return fmt.Errorf("arm asm: undefined label %q", p.label)
	}
	if p.pos+4 > len(c.text) {
		return fmt.Errorf("arm asm: branch patch out of range")
	}
	word, err := encodeBranch(p.cond, int32(target-p.pos-PCOffset), p.link)
	if err != nil {
		return fmt.Errorf("arm asm: branch to %q: %w", p.label, err)
	}
	c.order.PutUint32(c.text[p.pos:p.pos+4], word)
	return nil
}
