package compiler

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/asm/arm"
	"github.com/tinyrange/armaot/internal/image"
)

const (
	managedRegion  = "managed"
	externalRegion = "external"
)

type compiledMethod struct {
	name string
	prog asm.Program
	at   uint32
}

// Link lays out the image: compiled methods first, then space reserved for
// managed exports without a body, then the imported routines, each followed
// by the data they use. Every reference between them is patched once the
// image has an address.
func Link(d *Driver, p *Program) error {
	b := d.builder
	region, err := b.AddRegion(managedRegion, image.RegionCode, 0)
	if err != nil {
		return err
	}

	var methods []compiledMethod
	var offset uint32
	for _, md := range p.Methods() {
		if _, dup := d.placed[md.Name]; dup {
			return fmt.Errorf("method name %s is used twice", md.Name)
		}
		frag, err := compileGraph(md.Graph, d.frames[md.Graph])
		if err != nil {
			return err
		}
		prog, err := arm.EmitProgramOrder(frag, b.ByteOrder())
		if err != nil {
			return fmt.Errorf("%s: %w", md, err)
		}
		methods = append(methods, compiledMethod{name: md.Name, prog: prog, at: offset})
		d.placed[md.Name] = region.At(offset)
		offset += uint32(prog.Len())
	}

	// Exports are placed before any native code is linked against them.
	type reservation struct {
		name string
		size uint32
		at   uint32
	}
	var reserved []reservation
	for _, m := range d.cfg.Managed {
		if loc, ok := d.placed[m.Name]; ok {
			d.exports.Place(m.Name, loc)
			continue
		}
		if m.Size == 0 {
			return fmt.Errorf("managed export %s has no method and no size", m.Name)
		}
		size := (m.Size + wordSize - 1) &^ (wordSize - 1)
		reserved = append(reserved, reservation{name: m.Name, size: size, at: offset})
		d.placed[m.Name] = region.At(offset)
		d.exports.Place(m.Name, region.At(offset))
		offset += size
	}
	for _, md := range p.Types.ExportedMethods() {
		if loc, ok := d.placed[md.Name]; ok {
			d.exports.Place(md.Name, loc)
		}
	}

	sec := region.Section()
	resolver := &managedResolver{d: d}
	for _, m := range methods {
		start, err := b.EmitProgram(sec, m.prog, resolver)
		if err != nil {
			return err
		}
		if start != m.at {
			return fmt.Errorf("%s emitted at %#x, expected %#x", m.name, start, m.at)
		}
	}
	for _, r := range reserved {
		sec.Write(make([]byte, r.size))
		region.Define(r.name, r.at)
	}

	external, err := b.AddRegion(externalRegion, image.RegionExternalCode, 0)
	if err != nil {
		return err
	}
	for _, ctx := range d.imported {
		if err := ctx.PerformCodeLinkage(b, external.Section()); err != nil {
			return err
		}
	}
	if err := d.session.Err(); err != nil {
		return err
	}

	base, err := d.cfg.BaseAddress()
	if err != nil {
		return err
	}
	if err := b.Layout(base, d.cfg.Image.Alignment); err != nil {
		return err
	}
	if err := b.ApplyRelocations(); err != nil {
		return err
	}
	d.logger.Info("linked image",
		"base", fmt.Sprintf("%#x", b.Base()),
		"size", b.End()-b.Base(),
		"methods", len(methods),
		"routines", len(d.imported),
		"relocations", len(b.Relocations()))
	return nil
}

// managedResolver resolves references made by compiled methods: other
// managed methods first, then whatever the linking session knows.
type managedResolver struct {
	d *Driver
}

func (r *managedResolver) ResolveTarget(symbol string) (image.Target, uint32, bool) {
	if loc, ok := r.d.placed[symbol]; ok {
		return loc, 0, true
	}
	return r.d.session.ResolveTarget(symbol)
}
