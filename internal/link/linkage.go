package link

import (
	"debug/elf"
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/elfobj"
	"github.com/tinyrange/armaot/internal/image"
)

// PerformCodeLinkage copies the routine into sec and records a deferred
// relocation for every reference it makes. The data sections of the
// routine's object are added to b as external data regions first.
func (c *ExternalCallContext) PerformCodeLinkage(b *image.Builder, sec *image.Section) error {
	s := c.session
	if c.region != nil {
		return fmt.Errorf("link: %s linked twice", c.section.Name)
	}
	if c.section.Object.ByteOrder != b.ByteOrder() {
		return fmt.Errorf("link: %s: object byte order %s does not match the image", c.FileName(), c.section.Object.ByteOrder)
	}
	if err := s.addExternalData(b, c.section.Object.DataSections(), c); err != nil {
		return err
	}

	sec.AlignTo(max(4, c.section.Align))
	c.offset = sec.Offset()
	c.region = sec.Region()
	sec.Write(c.section.Raw)
	sec.AlignToWord()

	c.region.Define(c.section.Name, c.offset)
	for alias, off := range c.section.Aliases {
		c.region.Define(alias, c.offset+off)
	}
	s.RegisterMethodCall(c.section.Name, c.offset, c)

	for _, ref := range c.section.References {
		site := c.region.At(c.offset + ref.Offset)
		if err := s.linkReference(b, c, site, c.section, ref); err != nil {
			return fmt.Errorf("link: %s+%#x (%s): %w", c.section.Name, ref.Offset, c.FileName(), err)
		}
	}

	s.advance(c.section.Name, StateLinked)
	for alias := range c.section.Aliases {
		s.advance(alias, StateLinked)
	}
	s.logger.Debug("linked routine", "symbol", c.section.Name, "file", c.FileName(),
		"region", c.region.Name(), "offset", c.offset, "references", len(c.section.References))
	return nil
}

// codeLike reports whether ref points at a routine rather than data.
func codeLike(ref elfobj.Reference) bool {
	switch ref.Symbol.Type {
	case elf.STT_FUNC, elf.STT_NOTYPE:
		return true
	case elf.STT_SECTION:
		return ref.Target != nil && !ref.Target.IsData()
	}
	return false
}

func isPointerRelocation(typ elf.R_ARM) bool {
	return typ == elf.R_ARM_ABS32 || typ == elf.R_ARM_TARGET1
}

func unsupported(ref elfobj.Reference) error {
	return fmt.Errorf("%w: %s against %s (%s)", ErrUnsupportedRelocation, ref.Type, ref.SymbolName(), ref.Symbol.Type)
}

func (s *Session) linkReference(b *image.Builder, owner *ExternalCallContext, site image.Location, sec *elfobj.Section, ref elfobj.Reference) error {
	word, err := sec.Word(ref.Offset)
	if err != nil {
		return err
	}
	name := ref.SymbolName()
	missing := Diagnostic{Symbol: name, From: sec.Name, File: sec.Object.FileName(), Offset: ref.Offset}

	switch ref.Symbol.Type {
	case elf.STT_FUNC, elf.STT_NOTYPE, elf.STT_SECTION, elf.STT_OBJECT:
	default:
		return unsupported(ref)
	}

	if codeLike(ref) && s.isa.Decode(word).Class() == asm.ClassBranch {
		if ref.Type != elf.R_ARM_CALL && ref.Type != elf.R_ARM_JUMP24 {
			return unsupported(ref)
		}
		target, methodOffset, ok := s.GetCodeForMethod(name)
		if !ok {
			s.unresolved(missing)
			return nil
		}
		b.AddRelocation(image.NewExternMethodCallRelocation(site, target, methodOffset, s.isa.PCOffset()))
		return nil
	}

	if !isPointerRelocation(ref.Type) {
		return unsupported(ref)
	}
	addend := word
	if ref.HasAddend {
		addend = uint32(ref.Addend)
	}
	target, offset, ok, err := s.dataTarget(b, owner, name, ref, addend)
	if err != nil {
		return err
	}
	if !ok && codeLike(ref) {
		var methodOffset uint32
		target, methodOffset, ok = s.GetCodeForMethod(name)
		offset = methodOffset + addend
	}
	if !ok {
		s.unresolved(missing)
		return nil
	}
	b.AddRelocation(image.NewExternalPointerRelocation(site, target, offset))
	return nil
}

// dataTarget finds the data region holding name and the offset of the
// referenced byte inside it. The symbol's own offset is cached so later
// references from other objects resolve to the same place.
func (s *Session) dataTarget(b *image.Builder, owner *ExternalCallContext, name string, ref elfobj.Reference, addend uint32) (image.Target, uint32, bool, error) {
	sec := ref.Target
	if sec == nil {
		if ctx, ok := s.dataContexts[name]; ok {
			return ctx, s.dataOffsets[name] + addend, true, nil
		}
		found, err := s.FindExternSymbol(name)
		if err != nil {
			return nil, 0, false, err
		}
		if found == nil || !found.IsData() {
			return nil, 0, false, nil
		}
		sec = found
	}
	if !sec.IsData() {
		return nil, 0, false, nil
	}
	if _, ok := s.dataRegions[sec]; !ok {
		if err := s.addExternalData(b, sec.Object.DataSections(), owner); err != nil {
			return nil, 0, false, err
		}
	}
	ctx := s.dataRegions[sec]

	var symOffset uint32
	if off, ok := sec.Aliases[name]; ok {
		symOffset = off
	} else if ref.Target != nil && ref.Symbol.Type != elf.STT_SECTION {
		symOffset = ref.Symbol.Value
	}
	s.dataContexts[name] = ctx
	s.dataOffsets[name] = symOffset
	return ctx, symOffset + addend, true, nil
}

// addExternalData gives each data section not yet placed its own region and
// links the pointers it holds.
func (s *Session) addExternalData(b *image.Builder, sections []*elfobj.Section, owner *ExternalCallContext) error {
	var added []*ExternalDataContext
	for _, sec := range sections {
		if _, ok := s.dataRegions[sec]; ok {
			continue
		}
		name := fmt.Sprintf("%s[%s#%d]", sec.Name, sec.Object.FileName(), sec.Index)
		region, err := b.AddRegion(name, image.RegionExternalData, sec.Size)
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		if err := region.RequireAlignment(sec.Align); err != nil {
			return fmt.Errorf("link: %s: %w", sec.Object.FileName(), err)
		}
		if sec.Kind != elfobj.KindBSS {
			region.Section().Write(sec.Raw)
		}
		region.Define(sec.Name, 0)
		for alias, off := range sec.Aliases {
			region.Define(alias, off)
		}
		ctx := &ExternalDataContext{section: sec, owner: owner, region: region}
		region.Context = ctx
		s.dataRegions[sec] = ctx
		added = append(added, ctx)
		s.logger.Debug("added external data", "section", sec.Name, "file", sec.Object.FileName(), "size", sec.Size)
	}
	for _, ctx := range added {
		if err := s.linkDataSection(b, ctx); err != nil {
			return err
		}
	}
	return nil
}

// linkDataSection patches the pointers stored in an imported data section.
// Pointers to routines that were never imported are left as they are.
func (s *Session) linkDataSection(b *image.Builder, ctx *ExternalDataContext) error {
	sec := ctx.section
	for _, ref := range sec.References {
		if !isPointerRelocation(ref.Type) {
			return fmt.Errorf("link: %s+%#x (%s): %w", sec.Name, ref.Offset, sec.Object.FileName(), unsupported(ref))
		}
		word, err := sec.Word(ref.Offset)
		if err != nil {
			return err
		}
		addend := word
		if ref.HasAddend {
			addend = uint32(ref.Addend)
		}
		name := ref.SymbolName()
		site := ctx.region.At(ref.Offset)

		if codeLike(ref) {
			target, methodOffset, ok := s.GetCodeForMethod(name)
			if !ok {
				s.logger.Debug("leaving pointer to routine that was not imported", "symbol", name, "section", sec.Name)
				continue
			}
			b.AddRelocation(image.NewExternalPointerRelocation(site, target, methodOffset+addend))
			continue
		}
		target, offset, ok, err := s.dataTarget(b, ctx.owner, name, ref, addend)
		if err != nil {
			return err
		}
		if !ok {
			s.unresolved(Diagnostic{Symbol: name, From: sec.Name, File: sec.Object.FileName(), Offset: ref.Offset})
			continue
		}
		b.AddRelocation(image.NewExternalPointerRelocation(site, target, offset))
	}
	return nil
}

// RegisterMethodCall records that the routine of ctx starts at
// sectionOffset. Each alias is recorded at its own offset.
func (s *Session) RegisterMethodCall(name string, sectionOffset uint32, ctx *ExternalCallContext) {
	s.placedOffsets[name] = sectionOffset
	s.placedContexts[name] = ctx
	s.advance(name, StatePlaced)
	for alias, off := range ctx.section.Aliases {
		s.placedOffsets[alias] = sectionOffset + off
		s.placedContexts[alias] = ctx
		s.advance(alias, StatePlaced)
	}
}

// PlacedOffset returns the offset RegisterMethodCall recorded for name.
func (s *Session) PlacedOffset(name string) (uint32, bool) {
	off, ok := s.placedOffsets[name]
	return off, ok
}

// IsSymbolPlaced reports whether name is a placed routine, a managed
// export, or data already placed from section.
func (s *Session) IsSymbolPlaced(name string, section *elfobj.Section) bool {
	if _, ok := s.placedContexts[name]; ok {
		return true
	}
	if s.cfg.Managed.IsManaged(name) {
		return true
	}
	if ctx, ok := s.dataContexts[name]; ok && ctx.section == section {
		return true
	}
	return false
}

// GetCodeForMethod returns where calls to name go: the imported routine and
// the offset of name inside it, or the managed method's target.
func (s *Session) GetCodeForMethod(name string) (image.Target, uint32, bool) {
	if ctx, ok := s.callContexts[name]; ok {
		return ctx, ctx.section.Aliases[name], true
	}
	if target, ok := s.cfg.Managed.ManagedTarget(name); ok {
		return target, 0, true
	}
	return nil, 0, false
}

var _ image.TargetResolver = (*Session)(nil)

// ResolveTarget lets managed code reference imported routines and data.
func (s *Session) ResolveTarget(symbol string) (image.Target, uint32, bool) {
	if target, off, ok := s.GetCodeForMethod(symbol); ok {
		return target, off, true
	}
	if ctx, ok := s.dataContexts[symbol]; ok {
		return ctx, s.dataOffsets[symbol], true
	}
	return nil, 0, false
}
