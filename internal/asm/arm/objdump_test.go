package arm

import (
	"testing"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/asm/testutil"
	"github.com/tinyrange/armaot/internal/ir"
)

func TestDisassemblyAgreesA32(t *testing.T) {
	tests := []struct {
		frag asm.Fragment
		want []testutil.Want
	}{
		{Push(Regs(R4, LR)), []testutil.Want{{Name: "push", Mnemonic: "push", Operands: []string{"r4", "lr"}}}},
		{asm.MarkLabel("loop"), nil},
		{MovImmediate(R0, 42), []testutil.Want{{Name: "mov imm", Mnemonic: "mov", Operands: []string{"r0", "#42"}}}},
		{MovReg(R1, R0), []testutil.Want{{Name: "mov reg", Mnemonic: "mov", Operands: []string{"r1", "r0"}}}},
		{AddReg(R2, R0, R1), []testutil.Want{{Name: "add", Mnemonic: "add", Operands: []string{"r2", "r0", "r1"}}}},
		{SubImm(R3, R3, 4), []testutil.Want{{Name: "sub imm", Mnemonic: "sub", Operands: []string{"r3", "#4"}}}},
		{Mul(R4, R0, R1), []testutil.Want{{Name: "mul", Mnemonic: "mul", Operands: []string{"r4"}}}},
		{CmpImm(R0, 10), []testutil.Want{{Name: "cmp", Mnemonic: "cmp", Operands: []string{"r0", "#10"}}}},
		{LoadWord(R0, Mem(SP).WithDisp(8)), []testutil.Want{{Name: "ldr", Mnemonic: "ldr", Operands: []string{"[sp, #8]"}}}},
		{StoreWord(R0, Mem(SP).WithDisp(4)), []testutil.Want{{Name: "str", Mnemonic: "str", Operands: []string{"[sp, #4]"}}}},
		{BranchIf(ir.NotEqual, "loop"), []testutil.Want{{Name: "bne", Mnemonic: "bne"}}},
		{CallReg(R12), []testutil.Want{
			{Name: "call reg link", Mnemonic: "mov", Operands: []string{"lr", "pc"}},
			{Name: "call reg branch", Mnemonic: "bx", Operands: []string{"r12"}},
		}},
		{Return(), []testutil.Want{{Name: "return", Mnemonic: "bx", Operands: []string{"lr"}}}},
		{Pop(Regs(R4, PC)), []testutil.Want{{Name: "pop", Mnemonic: "pop", Operands: []string{"r4", "pc"}}}},
	}

	var frags asm.Group
	var want []testutil.Want
	for _, tt := range tests {
		frags = append(frags, tt.frag)
		want = append(want, tt.want...)
	}
	prog, err := EmitProgram(frags)
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}
	testutil.Expect(t, testutil.Disassemble(t, prog.Bytes()), want)
}
