package arm

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
)

// Reg is an A32 core register number.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
)

func (r Reg) validate() error {
	if r > PC {
		return fmt.Errorf("arm: invalid register %d", r)
	}
	return nil
}

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	default:
		return fmt.Sprintf("r%d", uint8(r))
	}
}

// RegList is a bitmask of registers for block transfers.
type RegList uint16

func Regs(regs ...Reg) RegList {
	var l RegList
	for _, r := range regs {
		l |= 1 << r
	}
	return l
}

// Memory is [base, #disp] addressing with a 12-bit displacement.
type Memory struct {
	base Reg
	disp int32
}

func Mem(base Reg) Memory {
	return Memory{base: base}
}

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if err := m.base.validate(); err != nil {
		return err
	}
	if m.disp <= -(1<<12) || m.disp >= 1<<12 {
		return fmt.Errorf("arm asm: displacement %d out of range", m.disp)
	}
	return nil
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}
