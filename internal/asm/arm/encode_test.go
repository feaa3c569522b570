package arm

import (
	"encoding/binary"
	"testing"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/ir"
)

func words(t *testing.T, frag asm.Fragment) []uint32 {
	t.Helper()
	code, err := EmitBytes(frag)
	if err != nil {
		t.Fatalf("EmitBytes failed: %v", err)
	}
	if len(code)%4 != 0 {
		t.Fatalf("code length %d is not word aligned", len(code))
	}
	out := make([]uint32, len(code)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return out
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		frag asm.Fragment
		want []uint32
	}{
		{"mov imm", MovImmediate(R0, 1), []uint32{0xE3A00001}},
		{"mvn imm", MovImmediate(R0, 0xFFFFFFFF), []uint32{0xE3E00000}},
		{"mov wide", MovImmediate(R0, 0x12345678), []uint32{0xE3A00078, 0xE3800C56, 0xE380070D, 0xE3800412}},
		{"mov reg", MovReg(R1, R2), []uint32{0xE1A01002}},
		{"add reg", AddReg(R0, R1, R2), []uint32{0xE0810002}},
		{"sub imm", SubImm(R3, R3, 4), []uint32{0xE2433004}},
		{"cmp reg", CmpReg(R0, R1), []uint32{0xE1500001}},
		{"cmp imm", CmpImm(R0, 10), []uint32{0xE350000A}},
		{"mul", Mul(R0, R1, R2), []uint32{0xE0000291}},
		{"lsl reg", LslReg(R0, R1, R2), []uint32{0xE1A00211}},
		{"bx lr", Return(), []uint32{0xE12FFF1E}},
		{"call reg", CallReg(R12), []uint32{0xE1A0E00F, 0xE12FFF1C}},
		{"unresolved call", UnresolvedCall(), []uint32{0xEBFFFFFE}},
		{"ldr", LoadWord(R0, Mem(SP).WithDisp(4)), []uint32{0xE59D0004}},
		{"str negative", StoreWord(R1, Mem(SP).WithDisp(-8)), []uint32{0xE50D1008}},
		{"push", Push(Regs(R4, LR)), []uint32{0xE92D4010}},
		{"pop", Pop(Regs(R4, PC)), []uint32{0xE8BD8010}},
		{"set cond", SetCond(R0, ir.Equal), []uint32{0x03A00001, 0x13A00000}},
		{"backward branch", asm.Group{
			asm.MarkLabel("top"),
			MovImmediate(R0, 0),
			Jump("top"),
		}, []uint32{0xE3A00000, 0xEAFFFFFD}},
		{"forward conditional", asm.Group{
			BranchIf(ir.NotEqual, "out"),
			MovImmediate(R0, 0),
			asm.MarkLabel("out"),
			Return(),
		}, []uint32{0x1A000000, 0xE3A00000, 0xE12FFF1E}},
	}
	for _, tt := range tests {
		got := words(t, tt.frag)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %d words %#x, want %d", tt.name, len(got), got, len(tt.want))
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%s: word %d = %#08x, want %#08x", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestMovImmediateChunksRebuildValue(t *testing.T) {
	for _, value := range []uint32{0x12345678, 0x00340000, 0xDEADBEEF, 0x0000FF00, 0x80000001} {
		var sum uint32
		for i, w := range words(t, MovImmediate(R0, value)) {
			dp, ok := A32{}.Decode(w).(*DataProcessingOpcode)
			if !ok {
				t.Fatalf("%#x: word %d (%#08x) is not data processing", value, i, w)
			}
			imm, ok := dp.Immediate()
			if !ok {
				t.Fatalf("%#x: word %d (%#08x) has no immediate", value, i, w)
			}
			switch dp.Operation() {
			case "mov":
				sum = imm
			case "orr":
				sum |= imm
			case "mvn":
				sum = ^imm
			default:
				t.Fatalf("%#x: unexpected %s", value, dp.Operation())
			}
		}
		if sum != value {
			t.Fatalf("chunks of %#x rebuild %#x", value, sum)
		}
	}
}

func TestEncodingErrors(t *testing.T) {
	tests := []struct {
		name string
		frag asm.Fragment
	}{
		{"undefined label", Jump("nowhere")},
		{"unencodable add", AddImm(R0, R0, 0x101)},
		{"bad register", MovReg(Reg(16), R0)},
		{"displacement", LoadWord(R0, Mem(SP).WithDisp(4096))},
		{"push sp", Push(Regs(SP))},
		{"empty pop", Pop(0)},
		{"set always", SetCond(R0, ir.Always)},
		{"call through lr", CallReg(LR)},
		{"duplicate label", asm.Group{asm.MarkLabel("a"), asm.MarkLabel("a")}},
	}
	for _, tt := range tests {
		if _, err := EmitProgram(tt.frag); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestSymbolReferences(t *testing.T) {
	prog, err := EmitProgram(asm.Group{
		asm.MarkLabel("entry"),
		CallSymbol("puts"),
		JumpSymbol("exit"),
		SymbolWord("table", 8),
	})
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}
	refs := prog.References()
	want := []asm.SymbolReference{
		{Offset: 0, Symbol: "puts", Kind: asm.ReferenceCall},
		{Offset: 4, Symbol: "exit", Kind: asm.ReferenceJump},
		{Offset: 8, Symbol: "table", Kind: asm.ReferenceAbsolute},
	}
	if len(refs) != len(want) {
		t.Fatalf("got %d references, want %d", len(refs), len(want))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("reference %d = %+v, want %+v", i, refs[i], want[i])
		}
	}
	code := prog.Bytes()
	if got := binary.LittleEndian.Uint32(code[0:]); got != 0xEBFFFFFE {
		t.Fatalf("call placeholder = %#08x, want branch to self", got)
	}
	if got := binary.LittleEndian.Uint32(code[8:]); got != 8 {
		t.Fatalf("addend = %d, want 8", got)
	}
	if off, ok := prog.Label("entry"); !ok || off != 0 {
		t.Fatalf("entry label = %d, %v", off, ok)
	}
}

func TestBigEndianProgram(t *testing.T) {
	prog, err := EmitProgramOrder(Return(), binary.BigEndian)
	if err != nil {
		t.Fatalf("EmitProgramOrder failed: %v", err)
	}
	if got := binary.BigEndian.Uint32(prog.Bytes()); got != 0xE12FFF1E {
		t.Fatalf("got %#08x", got)
	}
}
