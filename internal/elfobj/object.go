// Package elfobj reads ARM ELF32 relocatable objects into a per-symbol view:
// each allocatable section is named after the routine or data blob it holds,
// other symbols defined in it become aliases, and its relocations become
// references to other symbols.
package elfobj

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// SectionKind separates code from data sections.
type SectionKind uint8

const (
	KindCode SectionKind = iota
	KindData
	KindBSS
)

func (k SectionKind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindData:
		return "data"
	case KindBSS:
		return "bss"
	default:
		return fmt.Sprintf("SectionKind(%d)", uint8(k))
	}
}

// Object is one parsed relocatable object. Objects pulled out of an archive
// share the archive path and carry the member name.
type Object struct {
	Path      string
	Member    string
	Machine   elf.Machine
	ByteOrder binary.ByteOrder
	Flags     uint32

	Sections []*Section
	Symbols  []Symbol

	byName map[string]*Section
}

// FileName is the path plus the archive member, if any.
func (o *Object) FileName() string {
	if o.Member == "" {
		return o.Path
	}
	return o.Path + "(" + o.Member + ")"
}

// Lookup finds the section a symbol lives in and its offset from the start
// of that section.
func (o *Object) Lookup(name string) (*Section, uint32, bool) {
	sec, ok := o.byName[name]
	if !ok {
		return nil, 0, false
	}
	if sec.Name == name {
		return sec, 0, true
	}
	return sec, sec.Aliases[name], true
}

// DataSections returns the non-code sections in section-index order.
func (o *Object) DataSections() []*Section {
	var out []*Section
	for _, sec := range o.Sections {
		if sec.IsData() {
			out = append(out, sec)
		}
	}
	return out
}

// Section is one allocatable ELF section.
type Section struct {
	// Name is the primary symbol defined at the start of the section, or the
	// ELF section name when no symbol is defined there.
	Name    string
	ELFName string
	Index   int
	Kind    SectionKind
	Align   uint32
	Size    uint32

	// Raw holds the section contents. BSS sections are zero-filled.
	Raw []byte

	// Aliases maps every other symbol defined in the section to its offset.
	Aliases map[string]uint32

	References []Reference

	Object *Object
}

func (s *Section) IsData() bool { return s.Kind != KindCode }

// AliasNames returns the alias names sorted by offset then name.
func (s *Section) AliasNames() []string {
	names := make([]string, 0, len(s.Aliases))
	for name := range s.Aliases {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := s.Aliases[names[i]], s.Aliases[names[j]]
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

// Defines reports whether name is the section's primary name or one of its
// aliases.
func (s *Section) Defines(name string) bool {
	if s.Name == name {
		return true
	}
	_, ok := s.Aliases[name]
	return ok
}

// Word reads the 32-bit word at off in the object's byte order.
func (s *Section) Word(off uint32) (uint32, error) {
	if uint64(off)+4 > uint64(len(s.Raw)) {
		return 0, fmt.Errorf("elfobj: word at %#x outside section %s (size %#x)", off, s.Name, len(s.Raw))
	}
	return s.Object.ByteOrder.Uint32(s.Raw[off:]), nil
}

func (s *Section) String() string {
	return fmt.Sprintf("%s [%s %s, %d bytes]", s.Name, s.ELFName, s.Kind, s.Size)
}

// Symbol is a symbol table entry.
type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Type    elf.SymType
	Bind    elf.SymBind
	Section elf.SectionIndex
}

func (s Symbol) IsUndefined() bool { return s.Section == elf.SHN_UNDEF }

// Reference is one relocation inside a section.
type Reference struct {
	// Offset of the relocation site from the start of the owning section.
	Offset uint32
	Type   elf.R_ARM
	Symbol Symbol

	// Target is the referenced section when it is defined in the same object.
	Target *Section

	// Addend is set for RELA relocations. REL relocations keep the addend in
	// the relocated word.
	Addend    int32
	HasAddend bool
}

// SymbolName is the name the linker resolves. Section symbols resolve to the
// primary name of the section they point at.
func (r Reference) SymbolName() string {
	if r.Symbol.Type == elf.STT_SECTION && r.Target != nil {
		return r.Target.Name
	}
	return r.Symbol.Name
}

// skippedSection reports sections that never hold linkable code or data.
func skippedSection(name string) bool {
	return strings.HasPrefix(name, ".rel") || strings.HasPrefix(name, ".debug")
}

// mappingSymbol reports ARM mapping symbols ($a, $d, $t and their
// dotted variants).
func mappingSymbol(name string) bool {
	if len(name) < 2 || name[0] != '$' {
		return false
	}
	switch name[1] {
	case 'a', 'd', 't':
		return len(name) == 2 || name[2] == '.'
	}
	return false
}
