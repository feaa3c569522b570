package arm

import (
	"testing"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/ir"
)

func TestDecodeClasses(t *testing.T) {
	isa := A32{}
	tests := []struct {
		word  uint32
		class asm.OpcodeClass
	}{
		{0xEBFFFFFE, asm.ClassBranch},         // bl .
		{0x0A000010, asm.ClassBranch},         // beq
		{0xE0810002, asm.ClassDataProcessing}, // add r0, r1, r2
		{0xE3A00001, asm.ClassDataProcessing}, // mov r0, #1
		{0xE1500001, asm.ClassDataProcessing}, // cmp r0, r1
		{0xE12FFF1E, asm.ClassOther},          // bx lr
		{0xE0000291, asm.ClassOther},          // mul
		{0xE59D0004, asm.ClassOther},          // ldr
		{0xE92D4010, asm.ClassOther},          // push
		{0xE3001234, asm.ClassOther},          // movw
		{0xFA000000, asm.ClassOther},          // blx imm
	}
	for _, tt := range tests {
		op := isa.Decode(tt.word)
		if op.Class() != tt.class {
			t.Fatalf("Decode(%#08x) class = %s, want %s", tt.word, op.Class(), tt.class)
		}
		if tt.class == asm.ClassBranch {
			continue
		}
		word, err := op.Encode()
		if err != nil || word != tt.word {
			t.Fatalf("Encode(Decode(%#08x)) = %#08x, %v", tt.word, word, err)
		}
	}
}

func TestDecodeBranch(t *testing.T) {
	isa := A32{}
	op, ok := isa.Decode(0xEBFFFFFE).(asm.BranchOpcode)
	if !ok {
		t.Fatalf("expected branch opcode")
	}
	if !op.IsLink() || op.Offset() != -8 || op.Condition() != ir.Always {
		t.Fatalf("decoded %s: link=%v offset=%d cond=%s", op, op.IsLink(), op.Offset(), op.Condition())
	}

	op = isa.Decode(0x0A000010).(asm.BranchOpcode)
	if op.IsLink() || op.Offset() != 0x40 || op.Condition() != ir.Equal {
		t.Fatalf("decoded %s: link=%v offset=%d cond=%s", op, op.IsLink(), op.Offset(), op.Condition())
	}
	if target := op.(*BranchOpcode).Target(0x100); target != 0x148 {
		t.Fatalf("Target = %#x, want 0x148", target)
	}
}

func TestBranchPrepare(t *testing.T) {
	isa := A32{}
	op := isa.Decode(0xEBFFFFFE).(asm.BranchOpcode)
	if err := op.Prepare(op.Condition(), 0x1000, op.IsLink()); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	word, err := op.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if word != 0xEB000400 {
		t.Fatalf("Encode = %#08x, want 0xEB000400", word)
	}

	// Round trip through the negative range limit.
	if err := op.Prepare(ir.Always, minBranchOffset, false); err != nil {
		t.Fatalf("Prepare(min) failed: %v", err)
	}
	word, _ = op.Encode()
	again := isa.Decode(word).(asm.BranchOpcode)
	if again.Offset() != minBranchOffset || again.IsLink() {
		t.Fatalf("round trip offset = %d", again.Offset())
	}

	bad := []struct {
		cond   ir.Comparison
		offset int32
	}{
		{ir.Always, 2},
		{ir.Always, 1 << 25},
		{ir.Always, minBranchOffset - 4},
		{ir.NotValid, 0},
	}
	for _, tt := range bad {
		if err := op.Prepare(tt.cond, tt.offset, true); err == nil {
			t.Fatalf("Prepare(%s, %d) succeeded", tt.cond, tt.offset)
		}
	}
	// A failed Prepare leaves the opcode untouched.
	if op.Offset() != minBranchOffset {
		t.Fatalf("offset changed to %d after failed Prepare", op.Offset())
	}
}

func TestDataProcessingFields(t *testing.T) {
	op := A32{}.Decode(0xE3800C56).(*DataProcessingOpcode)
	if op.Operation() != "orr" || op.SetsFlags() {
		t.Fatalf("decoded %s", op)
	}
	if imm, ok := op.Immediate(); !ok || imm != 0x5600 {
		t.Fatalf("Immediate = %#x, %v", imm, ok)
	}
	if op.Rd() != R0 || op.Rn() != R0 {
		t.Fatalf("registers rd=%s rn=%s", op.Rd(), op.Rn())
	}
	cmp := A32{}.Decode(0xE1500001).(*DataProcessingOpcode)
	if cmp.Operation() != "cmp" || !cmp.SetsFlags() {
		t.Fatalf("decoded %s", cmp)
	}
	if _, ok := cmp.Immediate(); ok {
		t.Fatalf("register form reported an immediate")
	}
}

func TestNewBranchAndRegistry(t *testing.T) {
	isa, err := asm.LookupInstructionSet("a32")
	if err != nil {
		t.Fatalf("LookupInstructionSet failed: %v", err)
	}
	if isa.PCOffset() != PCOffset {
		t.Fatalf("PCOffset = %d", isa.PCOffset())
	}
	br := isa.NewBranch()
	if err := br.Prepare(ir.Always, -PCOffset, true); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if word, _ := br.Encode(); word != 0xEBFFFFFE {
		t.Fatalf("Encode = %#08x", word)
	}
	if _, err := asm.LookupInstructionSet("thumb"); err == nil {
		t.Fatalf("expected unknown instruction set error")
	}
}
