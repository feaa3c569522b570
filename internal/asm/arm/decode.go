package arm

import (
	"fmt"
	"math/bits"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/ir"
)

// PCOffset is how far past an A32 instruction the PC reads.
const PCOffset = 8

// A32 decodes and re-encodes the ARM instruction set.
type A32 struct{}

var (
	_ asm.InstructionSet = A32{}

	_ asm.BranchOpcode         = (*BranchOpcode)(nil)
	_ asm.DataProcessingOpcode = (*DataProcessingOpcode)(nil)
	_ asm.Opcode               = (*OtherOpcode)(nil)
)

func init() {
	asm.RegisterInstructionSet("a32", func() asm.InstructionSet { return A32{} })
}

func (A32) Name() string    { return "a32" }
func (A32) PCOffset() int32 { return PCOffset }

func (A32) NewBranch() asm.BranchOpcode {
	return &BranchOpcode{cond: ir.Always}
}

// Decode classifies word. It never fails; anything that is neither a branch
// nor a data-processing instruction comes back as an OtherOpcode.
func (A32) Decode(word uint32) asm.Opcode {
	cond := ir.Comparison(word >> 28)
	if cond == ir.NotValid {
		// Unconditional space (BLX imm, PLD, ...).
		return &OtherOpcode{word: word}
	}
	switch (word >> 25) & 0x7 {
	case 0x5:
		imm := int32(word<<8) >> 6
		return &BranchOpcode{
			cond:   cond,
			offset: imm,
			link:   word&(1<<24) != 0,
		}
	case 0x0:
		// Multiplies and extra load/stores share this space.
		if word&(1<<4) != 0 && word&(1<<7) != 0 {
			return &OtherOpcode{word: word}
		}
		// TST/TEQ/CMP/CMN without S are the miscellaneous group (BX, MRS, ...).
		if (word>>23)&0x3 == 0x2 && word&(1<<20) == 0 {
			return &OtherOpcode{word: word}
		}
		return &DataProcessingOpcode{word: word}
	case 0x1:
		// MOVW/MOVT and MSR immediate.
		if (word>>23)&0x3 == 0x2 && word&(1<<20) == 0 {
			return &OtherOpcode{word: word}
		}
		return &DataProcessingOpcode{word: word}
	default:
		return &OtherOpcode{word: word}
	}
}

// BranchOpcode is B or BL.
type BranchOpcode struct {
	cond   ir.Comparison
	offset int32
	link   bool
}

func (b *BranchOpcode) Class() asm.OpcodeClass   { return asm.ClassBranch }
func (b *BranchOpcode) Condition() ir.Comparison { return b.cond }
func (b *BranchOpcode) Offset() int32            { return b.offset }
func (b *BranchOpcode) IsLink() bool             { return b.link }

// Target returns the branch destination for an instruction at addr.
func (b *BranchOpcode) Target(addr uint32) uint32 {
	return addr + PCOffset + uint32(b.offset)
}

func (b *BranchOpcode) Prepare(cond ir.Comparison, offset int32, isLink bool) error {
	if _, err := encodeBranch(cond, offset, isLink); err != nil {
		return err
	}
	b.cond = cond
	b.offset = offset
	b.link = isLink
	return nil
}

func (b *BranchOpcode) Encode() (uint32, error) {
	return encodeBranch(b.cond, b.offset, b.link)
}

func (b *BranchOpcode) String() string {
	mnemonic := "b"
	if b.link {
		mnemonic = "bl"
	}
	if b.cond != ir.Always {
		mnemonic += b.cond.Suffix()
	}
	return fmt.Sprintf("%s pc%+d", mnemonic, b.offset+PCOffset)
}

// DataProcessingOpcode is an ALU instruction. It is kept as the raw word.
type DataProcessingOpcode struct {
	word uint32
}

func (d *DataProcessingOpcode) Class() asm.OpcodeClass   { return asm.ClassDataProcessing }
func (d *DataProcessingOpcode) Condition() ir.Comparison { return ir.Comparison(d.word >> 28) }
func (d *DataProcessingOpcode) Encode() (uint32, error)  { return d.word, nil }

func (d *DataProcessingOpcode) op() aluOp { return aluOp((d.word >> 21) & 0xF) }

func (d *DataProcessingOpcode) Operation() string { return d.op().String() }
func (d *DataProcessingOpcode) SetsFlags() bool   { return d.word&(1<<20) != 0 }
func (d *DataProcessingOpcode) Rd() Reg           { return Reg((d.word >> 12) & 0xF) }
func (d *DataProcessingOpcode) Rn() Reg           { return Reg((d.word >> 16) & 0xF) }

// Immediate returns the rotated operand when the instruction has one.
func (d *DataProcessingOpcode) Immediate() (uint32, bool) {
	if d.word&(1<<25) == 0 {
		return 0, false
	}
	rot := int((d.word >> 8) & 0xF)
	return bits.RotateLeft32(d.word&0xFF, -2*rot), true
}

func (d *DataProcessingOpcode) String() string {
	name := d.Operation()
	if d.SetsFlags() && !d.op().isCompare() {
		name += "s"
	}
	if c := d.Condition(); c != ir.Always {
		name += c.Suffix()
	}
	return fmt.Sprintf("%s %#08x", name, d.word)
}

// OtherOpcode is any instruction the linker does not need to look into.
type OtherOpcode struct {
	word uint32
}

func (o *OtherOpcode) Class() asm.OpcodeClass   { return asm.ClassOther }
func (o *OtherOpcode) Condition() ir.Comparison { return ir.Comparison(o.word >> 28) }
func (o *OtherOpcode) Encode() (uint32, error)  { return o.word, nil }
func (o *OtherOpcode) String() string           { return fmt.Sprintf(".word %#08x", o.word) }
