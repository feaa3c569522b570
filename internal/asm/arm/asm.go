package arm

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/ir"
)

func emitWord(ctx asm.Context, encode func() (uint32, error)) error {
	c, err := requireContext(ctx)
	if err != nil {
		return err
	}
	word, err := encode()
	if err != nil {
		return err
	}
	c.emit32(word)
	return nil
}

func validateRegs(regs ...Reg) error {
	for _, r := range regs {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

// MovImmediate loads an arbitrary 32-bit value. Values that do not fit a
// rotated immediate are built byte by byte with ORR, which works on every
// architecture revision.
func MovImmediate(dst Reg, value uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := dst.validate(); err != nil {
			return err
		}
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return emitMovImmediate(c, ir.Always, dst, value)
	})
}

func emitMovImmediate(c *Context, cond ir.Comparison, dst Reg, value uint32) error {
	if _, ok := encodeImmediate(value); ok {
		word, err := encodeDataProcessingImm(cond, opMOV, false, dst, 0, value)
		if err != nil {
			return err
		}
		c.emit32(word)
		return nil
	}
	if _, ok := encodeImmediate(^value); ok {
		word, err := encodeDataProcessingImm(cond, opMVN, false, dst, 0, ^value)
		if err != nil {
			return err
		}
		c.emit32(word)
		return nil
	}
	first := true
	for shift := uint32(0); shift < 32; shift += 8 {
		chunk := value & (0xFF << shift)
		if chunk == 0 {
			continue
		}
		op := opORR
		if first {
			op = opMOV
		}
		word, err := encodeDataProcessingImm(cond, op, false, dst, dst, chunk)
		if err != nil {
			return err
		}
		c.emit32(word)
		first = false
	}
	return nil
}

func MovReg(dst, src Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, src); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingReg(ir.Always, opMOV, false, dst, 0, src)
		})
	})
}

// SetCond writes 1 to dst when cond holds for the current flags, else 0.
func SetCond(dst Reg, cond ir.Comparison) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := dst.validate(); err != nil {
			return err
		}
		neg, err := cond.Negate()
		if err != nil {
			return fmt.Errorf("arm asm: SetCond: %w", err)
		}
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		if err := emitMovImmediate(c, cond, dst, 1); err != nil {
			return err
		}
		return emitMovImmediate(c, neg, dst, 0)
	})
}

func aluReg(op aluOp, setFlags bool, dst, left, right Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, left, right); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingReg(ir.Always, op, setFlags, dst, left, right)
		})
	})
}

func aluImm(op aluOp, dst, src Reg, value uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, src); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingImm(ir.Always, op, false, dst, src, value)
		})
	})
}

func AddReg(dst, left, right Reg) asm.Fragment { return aluReg(opADD, false, dst, left, right) }
func SubReg(dst, left, right Reg) asm.Fragment { return aluReg(opSUB, false, dst, left, right) }
func AndReg(dst, left, right Reg) asm.Fragment { return aluReg(opAND, false, dst, left, right) }
func OrrReg(dst, left, right Reg) asm.Fragment { return aluReg(opORR, false, dst, left, right) }
func EorReg(dst, left, right Reg) asm.Fragment { return aluReg(opEOR, false, dst, left, right) }

// AddsReg is ADD with the S bit, used for overflow-checked additions.
func AddsReg(dst, left, right Reg) asm.Fragment { return aluReg(opADD, true, dst, left, right) }
func SubsReg(dst, left, right Reg) asm.Fragment { return aluReg(opSUB, true, dst, left, right) }

func AddImm(dst, src Reg, value uint32) asm.Fragment { return aluImm(opADD, dst, src, value) }
func SubImm(dst, src Reg, value uint32) asm.Fragment { return aluImm(opSUB, dst, src, value) }

// RsbImm computes value - src, so RsbImm(dst, src, 0) negates.
func RsbImm(dst, src Reg, value uint32) asm.Fragment { return aluImm(opRSB, dst, src, value) }

func MvnReg(dst, src Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, src); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingReg(ir.Always, opMVN, false, dst, 0, src)
		})
	})
}

func CmpReg(left, right Reg) asm.Fragment { return aluReg(opCMP, true, 0, left, right) }

func CmpImm(left Reg, value uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := left.validate(); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingImm(ir.Always, opCMP, true, 0, left, value)
		})
	})
}

func Mul(dst, left, right Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, left, right); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeMul(ir.Always, dst, left, right)
		})
	})
}

func shiftReg(shift shiftType, dst, src, amount Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(dst, src, amount); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeShiftReg(ir.Always, shift, dst, src, amount)
		})
	})
}

func LslReg(dst, src, amount Reg) asm.Fragment { return shiftReg(shiftLSL, dst, src, amount) }
func LsrReg(dst, src, amount Reg) asm.Fragment { return shiftReg(shiftLSR, dst, src, amount) }
func AsrReg(dst, src, amount Reg) asm.Fragment { return shiftReg(shiftASR, dst, src, amount) }

func LoadWord(dst Reg, mem Memory) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := dst.validate(); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeLoadStore(ir.Always, true, dst, mem)
		})
	})
}

func StoreWord(src Reg, mem Memory) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := src.validate(); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeLoadStore(ir.Always, false, src, mem)
		})
	})
}

func Push(list RegList) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		return emitWord(ctx, func() (uint32, error) {
			return encodeBlockTransfer(ir.Always, false, list)
		})
	})
}

func Pop(list RegList) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		return emitWord(ctx, func() (uint32, error) {
			return encodeBlockTransfer(ir.Always, true, list)
		})
	})
}

// Return is BX lr.
func Return() asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		return emitWord(ctx, func() (uint32, error) {
			return encodeBX(ir.Always, LR)
		})
	})
}

func Jump(label asm.Label) asm.Fragment {
	return BranchIf(ir.Always, label)
}

func BranchIf(cond ir.Comparison, label asm.Label) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return c.emitBranch(label, cond, false)
	})
}

// Call is BL to a label inside the same program.
func Call(label asm.Label) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return c.emitBranch(label, ir.Always, true)
	})
}

// CallReg calls the address in target with MOV lr, pc then BX target, which
// also runs on cores without BLX.
func CallReg(target Reg) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err := validateRegs(target); err != nil {
			return err
		}
		if target == LR || target == PC {
			return fmt.Errorf("arm asm: cannot call through %s", target)
		}
		if err := emitWord(ctx, func() (uint32, error) {
			return encodeDataProcessingReg(ir.Always, opMOV, false, LR, 0, PC)
		}); err != nil {
			return err
		}
		return emitWord(ctx, func() (uint32, error) {
			return encodeBX(ir.Always, target)
		})
	})
}

// UnresolvedCall is the BL placeholder of a call nothing could be linked
// to. It branches to itself.
func UnresolvedCall() asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		return emitWord(ctx, func() (uint32, error) {
			return encodeBranch(ir.Always, -PCOffset, true)
		})
	})
}

// CallSymbol is BL to a symbol placed by the linker.
func CallSymbol(symbol string) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return c.emitSymbolBranch(symbol, true)
	})
}

// JumpSymbol is a tail branch to a symbol placed by the linker.
func JumpSymbol(symbol string) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		return c.emitSymbolBranch(symbol, false)
	})
}

// Word emits a raw data word.
func Word(value uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		c.alignWord()
		c.emit32(value)
		return nil
	})
}

// SymbolWord emits a word that receives the address of symbol plus addend.
func SymbolWord(symbol string, addend uint32) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		c.alignWord()
		c.emitSymbolWord(symbol, addend)
		return nil
	})
}
