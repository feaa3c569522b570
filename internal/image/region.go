package image

import (
	"fmt"
	"sort"
)

// RegionKind says what a region holds.
type RegionKind uint8

const (
	// RegionCode holds compiled managed methods.
	RegionCode RegionKind = iota
	// RegionExternalCode holds routines imported from ELF objects.
	RegionExternalCode
	// RegionExternalData holds data sections imported from ELF objects.
	RegionExternalData
	// RegionData holds other initialised data.
	RegionData
)

func (k RegionKind) String() string {
	switch k {
	case RegionCode:
		return "code"
	case RegionExternalCode:
		return "external-code"
	case RegionExternalData:
		return "external-data"
	case RegionData:
		return "data"
	default:
		return fmt.Sprintf("RegionKind(%d)", uint8(k))
	}
}

// SequentialRegion is a block of the image filled front to back through its
// Section cursor. Its address is known once the builder has been laid out.
type SequentialRegion struct {
	name    string
	kind    RegionKind
	reserve uint32
	align   uint32
	data    []byte
	symbols map[string]uint32

	// Context is whatever the region was created for, such as an imported
	// data section or a method.
	Context any

	builder *Builder
	address uint32
	placed  bool
	cursor  *Section
}

func (r *SequentialRegion) Name() string     { return r.name }
func (r *SequentialRegion) Kind() RegionKind { return r.kind }

// Size is the larger of the reserved size and the bytes written.
func (r *SequentialRegion) Size() uint32 {
	if n := uint32(len(r.data)); n > r.reserve {
		return n
	}
	return r.reserve
}

// Address returns the region's load address. It fails before Layout.
func (r *SequentialRegion) Address() (uint32, error) {
	if !r.placed {
		return 0, fmt.Errorf("image: region %s has not been laid out", r.name)
	}
	return r.address, nil
}

func (r *SequentialRegion) String() string { return r.name }

// Alignment is the boundary the region start needs beyond the image-wide
// alignment passed to Layout. Zero means none.
func (r *SequentialRegion) Alignment() uint32 { return r.align }

// RequireAlignment raises the region's start alignment to at least align.
// Values of 0 and 1 are no-ops.
func (r *SequentialRegion) RequireAlignment(align uint32) error {
	if align <= 1 {
		return nil
	}
	if align&(align-1) != 0 {
		return fmt.Errorf("image: region %s: alignment %#x is not a power of two", r.name, align)
	}
	if r.builder != nil && r.builder.laidOut {
		return fmt.Errorf("image: region %s: alignment changed after layout", r.name)
	}
	r.align = max(r.align, align)
	return nil
}

// Section returns the region's write cursor.
func (r *SequentialRegion) Section() *Section {
	if r.cursor == nil {
		r.cursor = &Section{region: r}
	}
	return r.cursor
}

// Define names an offset inside the region for the link map.
func (r *SequentialRegion) Define(name string, offset uint32) {
	if r.symbols == nil {
		r.symbols = make(map[string]uint32)
	}
	r.symbols[name] = offset
}

// Symbols returns the names defined in the region, sorted by offset.
func (r *SequentialRegion) Symbols() []string {
	names := make([]string, 0, len(r.symbols))
	for name := range r.symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := r.symbols[names[i]], r.symbols[names[j]]
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

// Lookup returns the offset of a defined name.
func (r *SequentialRegion) Lookup(name string) (uint32, bool) {
	off, ok := r.symbols[name]
	return off, ok
}

// Bytes returns the region contents padded to Size.
func (r *SequentialRegion) Bytes() []byte {
	out := make([]byte, r.Size())
	copy(out, r.data)
	return out
}

// At returns the location offset bytes into the region.
func (r *SequentialRegion) At(offset uint32) Location {
	return Location{Region: r, Offset: offset}
}

// Section is an append cursor over a region.
type Section struct {
	region *SequentialRegion
}

func (s *Section) Region() *SequentialRegion { return s.region }

// Offset is where the next Write lands, relative to the region start.
func (s *Section) Offset() uint32 { return uint32(len(s.region.data)) }

func (s *Section) Write(data []byte) {
	s.region.data = append(s.region.data, data...)
}

// WriteWord appends a 32-bit word in the image byte order.
func (s *Section) WriteWord(word uint32) {
	var buf [4]byte
	s.region.builder.order.PutUint32(buf[:], word)
	s.Write(buf[:])
}

// AlignToWord pads with zeros up to the next 4-byte boundary.
func (s *Section) AlignToWord() {
	s.AlignTo(4)
}

// AlignTo pads to a multiple of align from the region start. A power of two
// is also required of the region start, so the padding holds once laid out.
func (s *Section) AlignTo(align uint32) {
	if align == 0 {
		return
	}
	if align&(align-1) == 0 && align > s.region.align {
		s.region.align = align
	}
	for uint32(len(s.region.data))%align != 0 {
		s.region.data = append(s.region.data, 0)
	}
}
