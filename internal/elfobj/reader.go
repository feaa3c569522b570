package elfobj

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrNotRelocatable is returned for ELF files that are not ARM ELF32
// relocatable objects.
var ErrNotRelocatable = errors.New("elfobj: not an ARM ELF32 relocatable object")

// Parse reads one relocatable object. path is only recorded.
func Parse(r io.ReaderAt, path string) (*Object, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("elfobj: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 || f.Machine != elf.EM_ARM || f.Type != elf.ET_REL {
		return nil, fmt.Errorf("%w: %s (class %s, machine %s, type %s)", ErrNotRelocatable, path, f.Class, f.Machine, f.Type)
	}

	obj := &Object{
		Path:      path,
		Machine:   f.Machine,
		ByteOrder: f.ByteOrder,
		byName:    make(map[string]*Section),
	}

	byIndex := make(map[int]*Section)
	for idx, hdr := range f.Sections {
		if hdr.Flags&elf.SHF_ALLOC == 0 || skippedSection(hdr.Name) {
			continue
		}
		var kind SectionKind
		switch {
		case hdr.Type == elf.SHT_NOBITS:
			kind = KindBSS
		case hdr.Type != elf.SHT_PROGBITS && hdr.Type != elf.SHT_INIT_ARRAY && hdr.Type != elf.SHT_FINI_ARRAY:
			continue
		case hdr.Flags&elf.SHF_EXECINSTR != 0:
			kind = KindCode
		default:
			kind = KindData
		}
		if hdr.Size > 1<<32-1 {
			return nil, fmt.Errorf("elfobj: %s: section %s too large", path, hdr.Name)
		}
		sec := &Section{
			Name:    hdr.Name,
			ELFName: hdr.Name,
			Index:   idx,
			Kind:    kind,
			Align:   uint32(hdr.Addralign),
			Size:    uint32(hdr.Size),
			Aliases: make(map[string]uint32),
			Object:  obj,
		}
		if kind == KindBSS {
			sec.Raw = make([]byte, hdr.Size)
		} else {
			data, err := hdr.Data()
			if err != nil {
				return nil, fmt.Errorf("elfobj: %s: read section %s: %w", path, hdr.Name, err)
			}
			sec.Raw = data
		}
		obj.Sections = append(obj.Sections, sec)
		byIndex[idx] = sec
	}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("elfobj: %s: read symbols: %w", path, err)
	}
	for _, s := range syms {
		obj.Symbols = append(obj.Symbols, Symbol{
			Name:    s.Name,
			Value:   uint32(s.Value),
			Size:    uint32(s.Size),
			Type:    elf.ST_TYPE(s.Info),
			Bind:    elf.ST_BIND(s.Info),
			Section: s.Section,
		})
	}
	nameSections(obj, byIndex)

	for _, hdr := range f.Sections {
		if hdr.Type != elf.SHT_REL && hdr.Type != elf.SHT_RELA {
			continue
		}
		owner, ok := byIndex[int(hdr.Info)]
		if !ok {
			// Relocations for debug or discarded sections.
			continue
		}
		if err := readRelocations(obj, owner, hdr, byIndex); err != nil {
			return nil, fmt.Errorf("elfobj: %s: %w", path, err)
		}
	}
	return obj, nil
}

// nameSections gives each section its primary name and aliases. The primary
// name is the symbol at offset zero, preferring global symbols and functions
// or objects over untyped ones.
func nameSections(obj *Object, byIndex map[int]*Section) {
	defined := make(map[*Section][]Symbol)
	for _, sym := range obj.Symbols {
		if sym.Name == "" || mappingSymbol(sym.Name) {
			continue
		}
		switch sym.Type {
		case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE:
		default:
			continue
		}
		sec, ok := byIndex[int(sym.Section)]
		if !ok {
			continue
		}
		defined[sec] = append(defined[sec], sym)
	}
	for _, sec := range obj.Sections {
		syms := defined[sec]
		sort.SliceStable(syms, func(i, j int) bool {
			return symbolRank(syms[i]) < symbolRank(syms[j])
		})
		for i, sym := range syms {
			if i == 0 && sym.Value == 0 {
				sec.Name = sym.Name
				continue
			}
			if sym.Name == sec.Name {
				continue
			}
			if _, dup := sec.Aliases[sym.Name]; !dup {
				sec.Aliases[sym.Name] = sym.Value
			}
		}
		if _, taken := obj.byName[sec.Name]; !taken {
			obj.byName[sec.Name] = sec
		}
		for alias := range sec.Aliases {
			if _, taken := obj.byName[alias]; !taken {
				obj.byName[alias] = sec
			}
		}
	}
}

func symbolRank(sym Symbol) int {
	rank := int(sym.Value) * 8
	if sym.Bind == elf.STB_LOCAL {
		rank += 4
	}
	if sym.Type == elf.STT_NOTYPE {
		rank += 2
	}
	return rank
}

const (
	relEntrySize  = 8
	relaEntrySize = 12
)

func readRelocations(obj *Object, owner *Section, hdr *elf.Section, byIndex map[int]*Section) error {
	data, err := hdr.Data()
	if err != nil {
		return fmt.Errorf("read %s: %w", hdr.Name, err)
	}
	entry := relEntrySize
	if hdr.Type == elf.SHT_RELA {
		entry = relaEntrySize
	}
	if len(data)%entry != 0 {
		return fmt.Errorf("%s: size %d is not a multiple of %d", hdr.Name, len(data), entry)
	}
	order := obj.ByteOrder
	for r := bytes.NewReader(data); r.Len() > 0; {
		var raw [relaEntrySize]byte
		if _, err := io.ReadFull(r, raw[:entry]); err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
		offset := order.Uint32(raw[0:])
		info := order.Uint32(raw[4:])
		typ := elf.R_ARM(elf.R_TYPE32(info))
		if typ == elf.R_ARM_NONE || typ == elf.R_ARM_V4BX {
			continue
		}
		symIndex := int(elf.R_SYM32(info))
		if symIndex == 0 || symIndex > len(obj.Symbols) {
			return fmt.Errorf("%s: relocation at %#x references symbol %d", hdr.Name, offset, symIndex)
		}
		sym := obj.Symbols[symIndex-1] // debug/elf drops the null symbol
		ref := Reference{
			Offset: offset,
			Type:   typ,
			Symbol: sym,
		}
		if !sym.IsUndefined() {
			ref.Target = byIndex[int(sym.Section)]
		}
		if entry == relaEntrySize {
			ref.Addend = int32(order.Uint32(raw[8:]))
			ref.HasAddend = true
		}
		owner.References = append(owner.References, ref)
	}
	return nil
}
