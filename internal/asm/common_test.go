package asm

import "testing"

func TestProgramCopies(t *testing.T) {
	code := []byte{1, 2, 3, 4}
	refs := []SymbolReference{{Offset: 0, Symbol: "f", Kind: ReferenceCall}}
	labels := map[Label]int{"b": 4, "a": 4, "start": 0}
	prog := NewProgram(code, refs, labels)

	code[0] = 9
	refs[0].Symbol = "g"
	labels["start"] = 8

	if prog.Bytes()[0] != 1 || prog.References()[0].Symbol != "f" {
		t.Fatalf("program aliases its inputs")
	}
	if off, _ := prog.Label("start"); off != 0 {
		t.Fatalf("label start = %d, want 0", off)
	}
	got := prog.Labels()
	want := []Label{"start", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Labels = %v, want %v", got, want)
		}
	}

	clone := prog.Clone()
	out := clone.Bytes()
	out[1] = 7
	if prog.Bytes()[1] != 2 || clone.Len() != 4 {
		t.Fatalf("clone shares storage")
	}
}

func TestDuplicateInstructionSetPanics(t *testing.T) {
	RegisterInstructionSet("test-isa", func() InstructionSet { return nil })
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	RegisterInstructionSet("test-isa", func() InstructionSet { return nil })
}
