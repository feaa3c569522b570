package image

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	elfHeaderSize        = 52
	elfProgramHeaderSize = 32
)

var defaultStandaloneELFConfig = StandaloneELFConfig{
	SegmentAlignment: 0x1000,
	SegmentFlags:     elf.PF_R | elf.PF_W | elf.PF_X,
	Flags:            0x05000000, // EABI version 5
}

// StandaloneELFConfig shapes the single-segment executable WriteELF emits.
// A zero SegmentOffset is derived from the base address.
type StandaloneELFConfig struct {
	Entry            uint32
	SegmentOffset    uint32
	SegmentAlignment uint32
	SegmentFlags     elf.ProgFlag
	Flags            uint32
}

func DefaultStandaloneELFConfig() StandaloneELFConfig {
	return defaultStandaloneELFConfig
}

// WriteELF wraps the flat image in an ELF32 ARM executable with one
// PT_LOAD segment at the image base.
func (b *Builder) WriteELF(w io.Writer, cfg StandaloneELFConfig) error {
	code, err := b.Bytes()
	if err != nil {
		return err
	}
	if !b.applied && len(b.relocations) > 0 {
		return errors.New("image: WriteELF before ApplyRelocations")
	}
	cfg = cfg.withDefaults(b.base)
	if err := cfg.validate(b.base); err != nil {
		return err
	}
	if cfg.Entry == 0 {
		cfg.Entry = b.base
	}

	prefix := make([]byte, cfg.SegmentOffset)
	fillELFHeader(prefix[:elfHeaderSize], cfg, b.order)
	fillProgramHeader(prefix[elfHeaderSize:elfHeaderSize+elfProgramHeaderSize], cfg, b.base, uint32(len(code)), b.order)

	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("image: write ELF headers: %w", err)
	}
	if _, err := w.Write(code); err != nil {
		return fmt.Errorf("image: write ELF segment: %w", err)
	}
	return nil
}

func (cfg StandaloneELFConfig) withDefaults(base uint32) StandaloneELFConfig {
	def := DefaultStandaloneELFConfig()
	if cfg.SegmentAlignment == 0 {
		cfg.SegmentAlignment = def.SegmentAlignment
	}
	if cfg.SegmentFlags == 0 {
		cfg.SegmentFlags = def.SegmentFlags
	}
	if cfg.Flags == 0 {
		cfg.Flags = def.Flags
	}
	if cfg.SegmentOffset == 0 && cfg.SegmentAlignment&(cfg.SegmentAlignment-1) == 0 {
		// Smallest offset past the headers congruent to base.
		off := base % cfg.SegmentAlignment
		for off < elfHeaderSize+elfProgramHeaderSize {
			off += cfg.SegmentAlignment
		}
		cfg.SegmentOffset = off
	}
	return cfg
}

func (cfg StandaloneELFConfig) validate(base uint32) error {
	headerSize := uint32(elfHeaderSize + elfProgramHeaderSize)
	if cfg.SegmentOffset < headerSize {
		return fmt.Errorf("segment offset %#x too small for ELF headers (%#x)", cfg.SegmentOffset, headerSize)
	}
	if cfg.SegmentAlignment == 0 || cfg.SegmentAlignment&(cfg.SegmentAlignment-1) != 0 {
		return fmt.Errorf("segment alignment %#x is not a power of two", cfg.SegmentAlignment)
	}
	if cfg.SegmentOffset%cfg.SegmentAlignment != base%cfg.SegmentAlignment {
		return fmt.Errorf("segment offset %#x and base address %#x disagree modulo alignment %#x",
			cfg.SegmentOffset, base, cfg.SegmentAlignment)
	}
	return nil
}

func fillELFHeader(buf []byte, cfg StandaloneELFConfig, order binary.ByteOrder) {
	for idx := range buf {
		buf[idx] = 0
	}
	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	if order == binary.BigEndian {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	}
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	order.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	order.PutUint16(buf[18:], uint16(elf.EM_ARM))
	order.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	order.PutUint32(buf[24:], cfg.Entry)
	order.PutUint32(buf[28:], elfHeaderSize) // program header offset
	order.PutUint32(buf[32:], 0)             // section header offset
	order.PutUint32(buf[36:], cfg.Flags)
	order.PutUint16(buf[40:], elfHeaderSize)
	order.PutUint16(buf[42:], elfProgramHeaderSize)
	order.PutUint16(buf[44:], 1) // one program header
}

func fillProgramHeader(buf []byte, cfg StandaloneELFConfig, base, size uint32, order binary.ByteOrder) {
	for idx := range buf {
		buf[idx] = 0
	}
	order.PutUint32(buf[0:], uint32(elf.PT_LOAD))
	order.PutUint32(buf[4:], cfg.SegmentOffset)
	order.PutUint32(buf[8:], base)  // vaddr
	order.PutUint32(buf[12:], base) // paddr
	order.PutUint32(buf[16:], size) // filesz
	order.PutUint32(buf[20:], size) // memsz
	order.PutUint32(buf[24:], uint32(cfg.SegmentFlags))
	order.PutUint32(buf[28:], cfg.SegmentAlignment)
}
