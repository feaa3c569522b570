package testutil

import (
	"slices"
	"strings"
	"testing"
)

func TestDisassemblersSelectArchitecture(t *testing.T) {
	for _, d := range Disassemblers {
		args := d.command(d.Name, "code.o").Args
		if args[len(args)-1] != "code.o" {
			t.Fatalf("%s: object is not the last argument: %v", d.Name, args)
		}
		switch d.Name {
		case "llvm-objdump":
			if !slices.ContainsFunc(args, func(a string) bool { return strings.HasPrefix(a, "--triple=armv5") }) {
				t.Fatalf("llvm-objdump runs without an A32 triple: %v", args)
			}
		case "arm-none-eabi-objdump":
			if i := slices.Index(args, "-m"); i < 0 || args[i+1] != "arm" {
				t.Fatalf("objdump runs without -m arm: %v", args)
			}
		}
	}
}

func TestParseKeepsUnknownWords(t *testing.T) {
	out := `
code.o:	file format elf32-littlearm

Disassembly of section .text:

00000000 <code>:
       0:      	push	{r4, lr}
       4:      	<unknown>
       8:      	bx	lr
`
	got := parse(out)
	want := []string{"push {r4, lr}", "<unknown>", "bx lr"}
	if len(got) != len(want) {
		t.Fatalf("parsed %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("instruction %d = %q, want %q", i, got[i], want[i])
		}
	}
}
