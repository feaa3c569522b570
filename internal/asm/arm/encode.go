package arm

import (
	"fmt"
	"math/bits"

	"github.com/tinyrange/armaot/internal/ir"
)

// ALU operation field of a data-processing instruction.
type aluOp uint32

const (
	opAND aluOp = iota
	opEOR
	opSUB
	opRSB
	opADD
	opADC
	opSBC
	opRSC
	opTST
	opTEQ
	opCMP
	opCMN
	opORR
	opMOV
	opBIC
	opMVN
)

var aluNames = [...]string{
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc",
	"tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
}

func (op aluOp) String() string { return aluNames[op&0xF] }

// compare-class operations write only the flags.
func (op aluOp) isCompare() bool { return op >= opTST && op <= opCMN }

// moves ignore Rn.
func (op aluOp) isMove() bool { return op == opMOV || op == opMVN }

type shiftType uint32

const (
	shiftLSL shiftType = iota
	shiftLSR
	shiftASR
	shiftROR
)

const (
	minBranchOffset = -(1 << 25)
	maxBranchOffset = (1 << 25) - 4
)

func encodeCond(cond ir.Comparison) (uint32, error) {
	if cond > ir.Always {
		return 0, fmt.Errorf("arm asm: condition %s cannot be encoded", cond)
	}
	return uint32(cond) << 28, nil
}

// encodeImmediate finds the rotate/imm8 form of value.
func encodeImmediate(value uint32) (uint32, bool) {
	for rot := uint32(0); rot < 16; rot++ {
		v := bits.RotateLeft32(value, int(rot*2))
		if v <= 0xFF {
			return rot<<8 | v, true
		}
	}
	return 0, false
}

func encodeDataProcessingImm(cond ir.Comparison, op aluOp, setFlags bool, rd, rn Reg, value uint32) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	imm, ok := encodeImmediate(value)
	if !ok {
		return 0, fmt.Errorf("arm asm: immediate %#x cannot be encoded for %s", value, op)
	}
	if op.isCompare() {
		setFlags = true
		rd = 0
	}
	if op.isMove() {
		rn = 0
	}
	word := c | 1<<25 | uint32(op)<<21 | uint32(rn)<<16 | uint32(rd)<<12 | imm
	if setFlags {
		word |= 1 << 20
	}
	return word, nil
}

func encodeDataProcessingReg(cond ir.Comparison, op aluOp, setFlags bool, rd, rn, rm Reg) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	if op.isCompare() {
		setFlags = true
		rd = 0
	}
	if op.isMove() {
		rn = 0
	}
	word := c | uint32(op)<<21 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(rm)
	if setFlags {
		word |= 1 << 20
	}
	return word, nil
}

// encodeShiftReg encodes MOV rd, rm, <shift> rs.
func encodeShiftReg(cond ir.Comparison, shift shiftType, rd, rm, rs Reg) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	return c | uint32(opMOV)<<21 | uint32(rd)<<12 | uint32(rs)<<8 | uint32(shift)<<5 | 1<<4 | uint32(rm), nil
}

func encodeMul(cond ir.Comparison, rd, rm, rs Reg) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	if rd == PC || rm == PC || rs == PC {
		return 0, fmt.Errorf("arm asm: MUL cannot use pc")
	}
	return c | 0x00000090 | uint32(rd)<<16 | uint32(rs)<<8 | uint32(rm), nil
}

func encodeBranch(cond ir.Comparison, offset int32, link bool) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	if offset%4 != 0 {
		return 0, fmt.Errorf("arm asm: branch offset %d must be a multiple of 4", offset)
	}
	if offset < minBranchOffset || offset > maxBranchOffset {
		return 0, fmt.Errorf("arm asm: branch offset %d out of range", offset)
	}
	word := c | 0x0A000000 | (uint32(offset>>2) & 0x00FFFFFF)
	if link {
		word |= 1 << 24
	}
	return word, nil
}

func encodeBX(cond ir.Comparison, rm Reg) (uint32, error) {
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	return c | 0x012FFF10 | uint32(rm), nil
}

func encodeLoadStore(cond ir.Comparison, load bool, rt Reg, mem Memory) (uint32, error) {
	if err := mem.validate(); err != nil {
		return 0, err
	}
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	word := c | 0x05000000 | uint32(mem.base)<<16 | uint32(rt)<<12
	disp := mem.disp
	if disp >= 0 {
		word |= 1 << 23
	} else {
		disp = -disp
	}
	if load {
		word |= 1 << 20
	}
	return word | uint32(disp), nil
}

// encodeBlockTransfer encodes PUSH (STMDB sp!) and POP (LDMIA sp!).
func encodeBlockTransfer(cond ir.Comparison, load bool, list RegList) (uint32, error) {
	if list == 0 {
		return 0, fmt.Errorf("arm asm: empty register list")
	}
	c, err := encodeCond(cond)
	if err != nil {
		return 0, err
	}
	if load {
		return c | 0x08BD0000 | uint32(list), nil
	}
	if list&(1<<SP) != 0 {
		return 0, fmt.Errorf("arm asm: cannot push sp")
	}
	return c | 0x092D0000 | uint32(list), nil
}
