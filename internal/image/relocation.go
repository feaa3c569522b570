package image

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
)

// Target is anything a relocation can point at. Targets are resolved when
// relocations are applied, so they may be placed after the relocation is
// created.
type Target interface {
	Address() (uint32, error)
	String() string
}

// Location is an offset inside a region.
type Location struct {
	Region *SequentialRegion
	Offset uint32
}

func (l Location) Address() (uint32, error) {
	if l.Region == nil {
		return 0, fmt.Errorf("image: location has no region")
	}
	base, err := l.Region.Address()
	if err != nil {
		return 0, err
	}
	return base + l.Offset, nil
}

func (l Location) String() string {
	if l.Region == nil {
		return fmt.Sprintf("?+%#x", l.Offset)
	}
	return fmt.Sprintf("%s+%#x", l.Region.name, l.Offset)
}

// Relocation is a patch deferred until every region has an address.
type Relocation interface {
	Site() Location
	Apply(b *Builder) error
	String() string
}

// ExternMethodCallRelocation retargets the branch at Site to Callee plus
// MethodOffset. The branch keeps its condition and link bit.
type ExternMethodCallRelocation struct {
	site         Location
	Callee       Target
	MethodOffset uint32
	PCOffset     int32
}

func NewExternMethodCallRelocation(site Location, callee Target, methodOffset uint32, pcOffset int32) *ExternMethodCallRelocation {
	return &ExternMethodCallRelocation{
		site:         site,
		Callee:       callee,
		MethodOffset: methodOffset,
		PCOffset:     pcOffset,
	}
}

func (r *ExternMethodCallRelocation) Site() Location { return r.site }

func (r *ExternMethodCallRelocation) Apply(b *Builder) error {
	caller, err := r.site.Address()
	if err != nil {
		return err
	}
	callee, err := r.Callee.Address()
	if err != nil {
		return fmt.Errorf("callee %s: %w", r.Callee, err)
	}
	callee += r.MethodOffset

	word, err := b.readWord(r.site)
	if err != nil {
		return err
	}
	br, ok := b.isa.Decode(word).(asm.BranchOpcode)
	if !ok {
		return fmt.Errorf("image: %s: expected a branch, found %#08x", r.site, word)
	}
	disp := int64(callee) - int64(caller) - int64(r.PCOffset)
	if disp < -(1<<31) || disp >= 1<<31 {
		return fmt.Errorf("image: %s: displacement to %#x out of range", r.site, callee)
	}
	if err := br.Prepare(br.Condition(), int32(disp), br.IsLink()); err != nil {
		return fmt.Errorf("image: %s: %w", r.site, err)
	}
	patched, err := br.Encode()
	if err != nil {
		return fmt.Errorf("image: %s: %w", r.site, err)
	}
	return b.writeWord(r.site, patched)
}

func (r *ExternMethodCallRelocation) String() string {
	return fmt.Sprintf("call %s -> %s+%#x", r.site, r.Callee, r.MethodOffset)
}

// ExternalPointerRelocation stores the address of Target plus DataOffset in
// the word at Site.
type ExternalPointerRelocation struct {
	site       Location
	Target     Target
	DataOffset uint32
}

func NewExternalPointerRelocation(site Location, target Target, dataOffset uint32) *ExternalPointerRelocation {
	return &ExternalPointerRelocation{
		site:       site,
		Target:     target,
		DataOffset: dataOffset,
	}
}

func (r *ExternalPointerRelocation) Site() Location { return r.site }

func (r *ExternalPointerRelocation) Apply(b *Builder) error {
	if _, err := r.site.Address(); err != nil {
		return err
	}
	addr, err := r.Target.Address()
	if err != nil {
		return fmt.Errorf("target %s: %w", r.Target, err)
	}
	return b.writeWord(r.site, addr+r.DataOffset)
}

func (r *ExternalPointerRelocation) String() string {
	return fmt.Sprintf("abs32 %s -> %s+%#x", r.site, r.Target, r.DataOffset)
}
