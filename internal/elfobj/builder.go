package elfobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// eabiVersion5 is the e_flags value of objects from current ARM toolchains.
const eabiVersion5 = 0x05000000

// Builder writes ARM ELF32 relocatable objects with one section per symbol,
// the layout produced by -ffunction-sections -fdata-sections.
type Builder struct {
	Order binary.ByteOrder

	sections []*BuilderSection
}

// BuilderSection is a section under construction.
type BuilderSection struct {
	name    string
	elfName string
	kind    SectionKind
	data    []byte
	size    uint32
	align   uint32
	aliases []builderAlias
	relocs  []builderReloc
}

type builderAlias struct {
	name   string
	offset uint32
}

type builderReloc struct {
	offset  uint32
	typ     elf.R_ARM
	symbol  string
	section *BuilderSection
}

func NewBuilder() *Builder {
	return &Builder{Order: binary.LittleEndian}
}

func (b *Builder) add(sec *BuilderSection) *BuilderSection {
	b.sections = append(b.sections, sec)
	return sec
}

// Code adds a .text.<name> section defining the function name.
func (b *Builder) Code(name string, code []byte) *BuilderSection {
	return b.add(&BuilderSection{
		name:    name,
		elfName: ".text." + name,
		kind:    KindCode,
		data:    append([]byte(nil), code...),
		size:    uint32(len(code)),
	})
}

// Words is Code for a sequence of instruction words.
func (b *Builder) Words(name string, words ...uint32) *BuilderSection {
	code := make([]byte, 4*len(words))
	for i, w := range words {
		b.Order.PutUint32(code[4*i:], w)
	}
	return b.Code(name, code)
}

// Data adds a .data.<name> section defining the object name.
func (b *Builder) Data(name string, data []byte) *BuilderSection {
	return b.add(&BuilderSection{
		name:    name,
		elfName: ".data." + name,
		kind:    KindData,
		data:    append([]byte(nil), data...),
		size:    uint32(len(data)),
	})
}

// BSS adds a zero-initialised .bss.<name> section.
func (b *Builder) BSS(name string, size uint32) *BuilderSection {
	return b.add(&BuilderSection{
		name:    name,
		elfName: ".bss." + name,
		kind:    KindBSS,
		size:    size,
	})
}

// Alias defines another global symbol inside the section.
func (s *BuilderSection) Alias(name string, offset uint32) *BuilderSection {
	s.aliases = append(s.aliases, builderAlias{name: name, offset: offset})
	return s
}

// Align sets sh_addralign. The default is 4.
func (s *BuilderSection) Align(align uint32) *BuilderSection {
	s.align = align
	return s
}

// Relocate records a relocation against a named symbol. Symbols not defined
// by the builder become undefined globals.
func (s *BuilderSection) Relocate(offset uint32, typ elf.R_ARM, symbol string) *BuilderSection {
	s.relocs = append(s.relocs, builderReloc{offset: offset, typ: typ, symbol: symbol})
	return s
}

// RelocateSection records a relocation against the section symbol of target.
func (s *BuilderSection) RelocateSection(offset uint32, typ elf.R_ARM, target *BuilderSection) *BuilderSection {
	s.relocs = append(s.relocs, builderReloc{offset: offset, typ: typ, section: target})
	return s
}

type stringTable struct {
	buf   []byte
	index map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{buf: []byte{0}, index: map[string]uint32{"": 0}}
}

func (t *stringTable) add(s string) uint32 {
	if off, ok := t.index[s]; ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	t.index[s] = off
	return off
}

// Bytes serializes the object.
func (b *Builder) Bytes() ([]byte, error) {
	order := b.Order
	if order == nil {
		order = binary.LittleEndian
	}

	strtab := newStringTable()
	shstrtab := newStringTable()

	// Section indices: null, content sections, relocation sections, then
	// .symtab, .strtab and .shstrtab.
	secIndex := make(map[*BuilderSection]int, len(b.sections))
	for i, sec := range b.sections {
		secIndex[sec] = i + 1
	}

	syms := []elf.Sym32{{}}
	symIndex := map[string]int{}
	sectionSym := map[*BuilderSection]int{}

	for _, sec := range b.sections {
		shndx := uint16(secIndex[sec])
		sectionSym[sec] = len(syms)
		syms = append(syms, elf.Sym32{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: shndx,
		})
		mapping := "$d"
		if sec.kind == KindCode {
			mapping = "$a"
		}
		syms = append(syms, elf.Sym32{
			Name:  strtab.add(mapping),
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_NOTYPE),
			Shndx: shndx,
		})
	}
	firstGlobal := len(syms)

	define := func(name string, value, size uint32, typ elf.SymType, shndx uint16) error {
		if _, dup := symIndex[name]; dup {
			return fmt.Errorf("elfobj: symbol %q defined twice", name)
		}
		symIndex[name] = len(syms)
		syms = append(syms, elf.Sym32{
			Name:  strtab.add(name),
			Value: value,
			Size:  size,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, typ),
			Shndx: shndx,
		})
		return nil
	}
	for _, sec := range b.sections {
		typ := elf.STT_OBJECT
		if sec.kind == KindCode {
			typ = elf.STT_FUNC
		}
		shndx := uint16(secIndex[sec])
		if err := define(sec.name, 0, sec.size, typ, shndx); err != nil {
			return nil, err
		}
		for _, a := range sec.aliases {
			if a.offset > sec.size {
				return nil, fmt.Errorf("elfobj: alias %q at %#x outside %s", a.name, a.offset, sec.name)
			}
			if err := define(a.name, a.offset, 0, typ, shndx); err != nil {
				return nil, err
			}
		}
	}
	var externs []string
	for _, sec := range b.sections {
		for _, r := range sec.relocs {
			if r.section != nil {
				continue
			}
			if _, ok := symIndex[r.symbol]; !ok {
				symIndex[r.symbol] = -1
				externs = append(externs, r.symbol)
			}
		}
	}
	sort.Strings(externs)
	for _, name := range externs {
		symIndex[name] = len(syms)
		syms = append(syms, elf.Sym32{
			Name: strtab.add(name),
			Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE),
		})
	}

	type relSection struct {
		target  *BuilderSection
		entries []elf.Rel32
	}
	var rels []relSection
	for _, sec := range b.sections {
		if len(sec.relocs) == 0 {
			continue
		}
		if sec.kind == KindBSS {
			return nil, fmt.Errorf("elfobj: relocation in bss section %s", sec.name)
		}
		rs := relSection{target: sec}
		for _, r := range sec.relocs {
			if r.offset+4 > sec.size {
				return nil, fmt.Errorf("elfobj: relocation at %#x outside %s", r.offset, sec.name)
			}
			idx := symIndex[r.symbol]
			if r.section != nil {
				idx = sectionSym[r.section]
			}
			rs.entries = append(rs.entries, elf.Rel32{
				Off:  r.offset,
				Info: elf.R_INFO32(uint32(idx), uint32(r.typ)),
			})
		}
		rels = append(rels, rs)
	}

	relBase := len(b.sections) + 1
	symtabIndex := relBase + len(rels)
	strtabIndex := symtabIndex + 1
	shstrtabIndex := strtabIndex + 1
	shnum := shstrtabIndex + 1

	var body bytes.Buffer
	body.Write(make([]byte, binary.Size(elf.Header32{})))
	pad := func(align int) {
		for body.Len()%align != 0 {
			body.WriteByte(0)
		}
	}

	headers := make([]elf.Section32, shnum)
	for _, sec := range b.sections {
		hdr := elf.Section32{
			Name:      shstrtab.add(sec.elfName),
			Addralign: 4,
			Size:      sec.size,
		}
		if sec.align != 0 {
			hdr.Addralign = sec.align
		}
		switch sec.kind {
		case KindCode:
			hdr.Type = uint32(elf.SHT_PROGBITS)
			hdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR)
		case KindData:
			hdr.Type = uint32(elf.SHT_PROGBITS)
			hdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_WRITE)
		case KindBSS:
			hdr.Type = uint32(elf.SHT_NOBITS)
			hdr.Flags = uint32(elf.SHF_ALLOC | elf.SHF_WRITE)
		}
		pad(int(max(4, hdr.Addralign)))
		hdr.Off = uint32(body.Len())
		if sec.kind != KindBSS {
			body.Write(sec.data)
		}
		headers[secIndex[sec]] = hdr
	}
	for i, rs := range rels {
		pad(4)
		off := body.Len()
		if err := binary.Write(&body, order, rs.entries); err != nil {
			return nil, err
		}
		headers[relBase+i] = elf.Section32{
			Name:      shstrtab.add(".rel" + rs.target.elfName),
			Type:      uint32(elf.SHT_REL),
			Flags:     uint32(elf.SHF_INFO_LINK),
			Off:       uint32(off),
			Size:      uint32(body.Len() - off),
			Link:      uint32(symtabIndex),
			Info:      uint32(secIndex[rs.target]),
			Addralign: 4,
			Entsize:   uint32(binary.Size(elf.Rel32{})),
		}
	}

	pad(4)
	symOff := body.Len()
	if err := binary.Write(&body, order, syms); err != nil {
		return nil, err
	}
	headers[symtabIndex] = elf.Section32{
		Name:      shstrtab.add(".symtab"),
		Type:      uint32(elf.SHT_SYMTAB),
		Off:       uint32(symOff),
		Size:      uint32(body.Len() - symOff),
		Link:      uint32(strtabIndex),
		Info:      uint32(firstGlobal),
		Addralign: 4,
		Entsize:   uint32(binary.Size(elf.Sym32{})),
	}

	strOff := body.Len()
	body.Write(strtab.buf)
	headers[strtabIndex] = elf.Section32{
		Name:      shstrtab.add(".strtab"),
		Type:      uint32(elf.SHT_STRTAB),
		Off:       uint32(strOff),
		Size:      uint32(len(strtab.buf)),
		Addralign: 1,
	}

	headers[shstrtabIndex].Name = shstrtab.add(".shstrtab")
	shstrOff := body.Len()
	body.Write(shstrtab.buf)
	headers[shstrtabIndex].Type = uint32(elf.SHT_STRTAB)
	headers[shstrtabIndex].Off = uint32(shstrOff)
	headers[shstrtabIndex].Size = uint32(len(shstrtab.buf))
	headers[shstrtabIndex].Addralign = 1

	pad(4)
	shoff := body.Len()
	if err := binary.Write(&body, order, headers); err != nil {
		return nil, err
	}

	ehdr := elf.Header32{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint32(shoff),
		Flags:     eabiVersion5,
		Ehsize:    uint16(binary.Size(elf.Header32{})),
		Shentsize: uint16(binary.Size(elf.Section32{})),
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shstrtabIndex),
	}
	copy(ehdr.Ident[:], elf.ELFMAG)
	ehdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	ehdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	if order == binary.BigEndian {
		ehdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	}
	ehdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	out := body.Bytes()
	var hdr bytes.Buffer
	if err := binary.Write(&hdr, order, ehdr); err != nil {
		return nil, err
	}
	copy(out, hdr.Bytes())
	return out, nil
}

// WriteFile serializes the object to path.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Archive packs members into a GNU ar archive without a symbol index.
func Archive(members ...ArchiveMember) []byte {
	var buf bytes.Buffer
	buf.WriteString(arMagic)
	for _, m := range members {
		name := m.Name + "/"
		if len(name) > 16 {
			name = name[:16]
		}
		fmt.Fprintf(&buf, "%-16s%-12s%-6s%-6s%-8s%-10s`\n",
			name, "0", "0", "0", "644", strconv.Itoa(len(m.Data)))
		buf.Write(m.Data)
		if len(m.Data)%2 == 1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
