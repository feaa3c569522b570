// Package testutil cross-checks emitted code against an external
// disassembler when one is installed.
package testutil

import (
	"bufio"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/armaot/internal/elfobj"
)

// Disassembler is an objdump-compatible tool and the flags that make it
// decode A32 without relying on build attributes in the object.
type Disassembler struct {
	Name string
	Args []string
}

// Disassemblers are tried in order.
var Disassemblers = []Disassembler{
	{Name: "arm-none-eabi-objdump", Args: []string{"-m", "arm"}},
	{Name: "llvm-objdump", Args: []string{"--triple=armv5te-none-eabi"}},
}

// command builds the invocation of d over path.
func (d Disassembler) command(tool, path string) *exec.Cmd {
	args := append([]string{"-d", "--no-show-raw-insn"}, d.Args...)
	return exec.Command(tool, append(args, path)...)
}

// Instruction is one decoded line of disassembler output.
type Instruction struct {
	Mnemonic string
	Operands string
}

func (i Instruction) String() string {
	return strings.TrimSpace(i.Mnemonic + " " + i.Operands)
}

// Want matches an instruction by mnemonic and operand substrings.
type Want struct {
	Name     string
	Mnemonic string
	Operands []string
}

// Disassemble wraps code in a relocatable object and runs the first
// available disassembler over it. The test is skipped when none is found.
func Disassemble(t *testing.T, code []byte) []Instruction {
	t.Helper()

	var (
		tool  string
		dis   Disassembler
		tried []string
	)
	for _, d := range Disassemblers {
		tried = append(tried, d.Name)
		if path, err := exec.LookPath(d.Name); err == nil {
			tool, dis = path, d
			break
		}
	}
	if tool == "" {
		t.Skipf("no ARM disassembler found (tried %s)", strings.Join(tried, ", "))
	}

	b := elfobj.NewBuilder()
	b.Code("code", code)
	path := filepath.Join(t.TempDir(), "code.o")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("write object: %v", err)
	}

	out, err := dis.command(tool, path).CombinedOutput()
	if err != nil {
		t.Fatalf("%s failed: %v\n%s", filepath.Base(tool), err, out)
	}
	insns := parse(string(out))
	if len(insns) == 0 {
		t.Fatalf("%s produced no instructions:\n%s", filepath.Base(tool), out)
	}
	return insns
}

// parse keeps the "addr: mnemonic operands" lines of objdump output.
func parse(out string) []Instruction {
	var insns []Instruction
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		_, text, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 || strings.HasPrefix(fields[0], ".") || fields[0] == "file" {
			continue
		}
		// Symbol headers; undecodable words stay in as "<unknown>".
		if strings.HasPrefix(fields[0], "<") && fields[0] != "<unknown>" {
			continue
		}
		insns = append(insns, Instruction{
			Mnemonic: strings.ToLower(fields[0]),
			Operands: strings.Join(fields[1:], " "),
		})
	}
	return insns
}

// Expect checks that got begins with instructions matching want. Trailing
// instructions are ignored.
func Expect(t *testing.T, got []Instruction, want []Want) {
	t.Helper()
	if len(got) < len(want) {
		t.Fatalf("disassembled %d instructions, want at least %d", len(got), len(want))
	}
	for i, w := range want {
		g := got[i]
		if w.Mnemonic != "" && g.Mnemonic != w.Mnemonic {
			t.Fatalf("%s: instruction %d is %q, want mnemonic %s", w.Name, i, g, w.Mnemonic)
		}
		for _, op := range w.Operands {
			if !strings.Contains(g.Operands, op) {
				t.Fatalf("%s: instruction %d is %q, missing %q", w.Name, i, g, op)
			}
		}
	}
}
