// Package image lays out code and data regions into a flat ARM image and
// patches the relocations recorded against them.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/armaot/internal/asm"
)

// Builder collects regions and deferred relocations.
type Builder struct {
	isa    asm.InstructionSet
	order  binary.ByteOrder
	logger *slog.Logger

	regions     []*SequentialRegion
	byName      map[string]*SequentialRegion
	relocations []Relocation

	base    uint32
	end     uint32
	laidOut bool
	applied bool
}

type Option func(*Builder)

func WithByteOrder(order binary.ByteOrder) Option {
	return func(b *Builder) { b.order = order }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func NewBuilder(isa asm.InstructionSet, opts ...Option) *Builder {
	b := &Builder{
		isa:    isa,
		order:  binary.LittleEndian,
		logger: slog.Default(),
		byName: make(map[string]*SequentialRegion),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) InstructionSet() asm.InstructionSet { return b.isa }
func (b *Builder) ByteOrder() binary.ByteOrder        { return b.order }

// AddRegion appends a region of at least size bytes. Region names are unique.
func (b *Builder) AddRegion(name string, kind RegionKind, size uint32) (*SequentialRegion, error) {
	if b.laidOut {
		return nil, fmt.Errorf("image: cannot add region %s after layout", name)
	}
	if _, dup := b.byName[name]; dup {
		return nil, fmt.Errorf("image: region %s already exists", name)
	}
	r := &SequentialRegion{
		name:    name,
		kind:    kind,
		reserve: size,
		builder: b,
	}
	b.regions = append(b.regions, r)
	b.byName[name] = r
	return r, nil
}

func (b *Builder) Region(name string) (*SequentialRegion, bool) {
	r, ok := b.byName[name]
	return r, ok
}

func (b *Builder) Regions() []*SequentialRegion {
	return append([]*SequentialRegion(nil), b.regions...)
}

func (b *Builder) AddRelocation(r Relocation) {
	b.relocations = append(b.relocations, r)
}

func (b *Builder) Relocations() []Relocation {
	return append([]Relocation(nil), b.relocations...)
}

// Layout assigns consecutive addresses to the regions in creation order,
// each aligned to align bytes or to its own alignment when that is larger.
func (b *Builder) Layout(base, align uint32) error {
	if align == 0 {
		align = 4
	}
	if align&(align-1) != 0 {
		return fmt.Errorf("image: alignment %#x is not a power of two", align)
	}
	if base%align != 0 {
		return fmt.Errorf("image: base %#x is not aligned to %#x", base, align)
	}
	addr := uint64(base)
	for _, r := range b.regions {
		addr = alignUp(addr, uint64(max(align, r.align)))
		r.address = uint32(addr)
		r.placed = true
		addr += uint64(r.Size())
		if addr > 1<<32 {
			return fmt.Errorf("image: region %s overflows the address space", r.name)
		}
		b.logger.Debug("placed region", "region", r.name, "kind", r.kind.String(), "address", fmt.Sprintf("%#x", r.address), "size", r.Size())
	}
	b.base = base
	b.end = uint32(addr)
	b.laidOut = true
	return nil
}

// ApplyRelocations patches every recorded relocation. All failures are
// reported together.
func (b *Builder) ApplyRelocations() error {
	if !b.laidOut {
		return errors.New("image: ApplyRelocations before Layout")
	}
	var errs []error
	for _, r := range b.relocations {
		if err := r.Apply(b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r, err))
		}
	}
	b.applied = len(errs) == 0
	return errors.Join(errs...)
}

// Base and End bound the laid out image.
func (b *Builder) Base() uint32 { return b.base }
func (b *Builder) End() uint32  { return b.end }

// Bytes returns the flat image from Base to End with gaps zero-filled.
func (b *Builder) Bytes() ([]byte, error) {
	if !b.laidOut {
		return nil, errors.New("image: Bytes before Layout")
	}
	out := make([]byte, b.end-b.base)
	for _, r := range b.regions {
		copy(out[r.address-b.base:], r.data)
	}
	return out, nil
}

// EmitProgram writes prog at the section cursor and turns its symbol
// references into relocations against targets. It returns the offset the
// program starts at.
func (b *Builder) EmitProgram(sec *Section, prog asm.Program, targets TargetResolver) (uint32, error) {
	sec.AlignToWord()
	start := sec.Offset()
	sec.Write(prog.Bytes())
	region := sec.Region()
	for _, ref := range prog.References() {
		target, offset, ok := targets.ResolveTarget(ref.Symbol)
		if !ok {
			return start, fmt.Errorf("image: %s: unresolved symbol %q", region.name, ref.Symbol)
		}
		site := region.At(start + uint32(ref.Offset))
		switch ref.Kind {
		case asm.ReferenceCall, asm.ReferenceJump:
			b.AddRelocation(NewExternMethodCallRelocation(site, target, offset, b.isa.PCOffset()))
		case asm.ReferenceAbsolute:
			addend, err := b.readWord(site)
			if err != nil {
				return start, err
			}
			b.AddRelocation(NewExternalPointerRelocation(site, target, addend+offset))
		default:
			return start, fmt.Errorf("image: unknown reference kind %s", ref.Kind)
		}
	}
	for _, label := range prog.Labels() {
		off, _ := prog.Label(label)
		region.Define(string(label), start+uint32(off))
	}
	return start, nil
}

// TargetResolver maps a symbol to where it will live and the offset to add.
type TargetResolver interface {
	ResolveTarget(symbol string) (Target, uint32, bool)
}

func (b *Builder) readWord(loc Location) (uint32, error) {
	data := loc.Region.data
	if uint64(loc.Offset)+4 > uint64(len(data)) {
		return 0, fmt.Errorf("image: %s: word outside written data", loc)
	}
	return b.order.Uint32(data[loc.Offset:]), nil
}

func (b *Builder) writeWord(loc Location, word uint32) error {
	data := loc.Region.data
	if uint64(loc.Offset)+4 > uint64(len(data)) {
		return fmt.Errorf("image: %s: word outside written data", loc)
	}
	b.order.PutUint32(data[loc.Offset:], word)
	return nil
}

func alignUp(value, align uint64) uint64 {
	if rem := value % align; rem != 0 {
		return value + align - rem
	}
	return value
}
