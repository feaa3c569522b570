package image

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// LinkMap describes where everything ended up.
type LinkMap struct {
	Base        string        `yaml:"base"`
	Size        uint32        `yaml:"size"`
	Regions     []RegionEntry `yaml:"regions"`
	Relocations int           `yaml:"relocations"`
}

type RegionEntry struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	Address string        `yaml:"address"`
	Size    uint32        `yaml:"size"`
	Symbols []SymbolEntry `yaml:"symbols,omitempty"`
}

type SymbolEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

func hex32(v uint32) string { return fmt.Sprintf("0x%08x", v) }

// LinkMap summarizes the laid out image.
func (b *Builder) LinkMap() (LinkMap, error) {
	if !b.laidOut {
		return LinkMap{}, fmt.Errorf("image: LinkMap before Layout")
	}
	m := LinkMap{
		Base:        hex32(b.base),
		Size:        b.end - b.base,
		Relocations: len(b.relocations),
	}
	for _, r := range b.regions {
		entry := RegionEntry{
			Name:    r.name,
			Kind:    r.kind.String(),
			Address: hex32(r.address),
			Size:    r.Size(),
		}
		for _, name := range r.Symbols() {
			off, _ := r.Lookup(name)
			entry.Symbols = append(entry.Symbols, SymbolEntry{
				Name:    name,
				Address: hex32(r.address + off),
			})
		}
		m.Regions = append(m.Regions, entry)
	}
	return m, nil
}

// WriteLinkMap encodes the link map as YAML.
func (b *Builder) WriteLinkMap(w io.Writer) error {
	m, err := b.LinkMap()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&m); err != nil {
		return fmt.Errorf("image: encode link map: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("image: close link map: %w", err)
	}
	return nil
}

// ReadLinkMap decodes a link map written by WriteLinkMap.
func ReadLinkMap(r io.Reader) (LinkMap, error) {
	var m LinkMap
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return LinkMap{}, fmt.Errorf("image: decode link map: %w", err)
	}
	return m, nil
}

// Symbol finds a symbol's address string in the map.
func (m LinkMap) Symbol(name string) (string, bool) {
	for _, r := range m.Regions {
		for _, s := range r.Symbols {
			if s.Name == name {
				return s.Address, true
			}
		}
	}
	return "", false
}
