package link

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/asm/arm"
	"github.com/tinyrange/armaot/internal/elfobj"
	"github.com/tinyrange/armaot/internal/image"
)

func writeObject(t *testing.T, path string, build func(b *elfobj.Builder)) string {
	t.Helper()
	b := elfobj.NewBuilder()
	build(b)
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
	return path
}

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

// buildLibraries writes entry.o, which calls ext_helper and points at
// counter_hi, and a library directory whose helpers.o defines both.
func buildLibraries(t *testing.T) (file, dir string) {
	t.Helper()
	root := t.TempDir()
	file = writeObject(t, filepath.Join(root, "entry.o"), func(b *elfobj.Builder) {
		b.Words("entry",
			0xE92D4010, // push {r4, lr}
			0xEBFFFFFE, // bl ext_helper
			0xE8BD8010, // pop {r4, pc}
			0x00000000, // .word counter_hi
		).
			Relocate(4, elf.R_ARM_CALL, "ext_helper").
			Relocate(12, elf.R_ARM_ABS32, "counter_hi")
	})
	dir = filepath.Join(root, "lib")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("not an object\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	writeObject(t, filepath.Join(dir, "helpers.o"), func(b *elfobj.Builder) {
		b.Words("ext_helper",
			0xE3A00001, // mov r0, #1
			0xE12FFF1E, // bx lr
		)
		b.Data("counter", []byte{0, 0, 0, 0, 0, 0, 0, 0}).Alias("counter_hi", 4)
	})
	return file, dir
}

func TestLoadDiscoversReferences(t *testing.T) {
	file, dir := buildLibraries(t)
	s := newSession(t, Config{Files: []string{file}, Directories: []string{dir}})

	ctxs, err := s.Load("", "entry")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ctxs) != 2 || ctxs[0].SymbolName() != "entry" || ctxs[1].SymbolName() != "ext_helper" {
		t.Fatalf("unexpected contexts %v", ctxs)
	}
	if got := s.State("ext_helper"); got != StateRegistered {
		t.Fatalf("State(ext_helper) = %s", got)
	}
	if got := s.State("counter_hi"); got != StateQueued {
		t.Fatalf("State(counter_hi) = %s, want queued", got)
	}
	if len(s.Diagnostics()) != 0 {
		t.Fatalf("unexpected diagnostics %v", s.Diagnostics())
	}

	again, err := s.Load("", "ext_helper")
	if err != nil || len(again) != 1 || again[0] != ctxs[1] {
		t.Fatalf("second Load = %v, %v", again, err)
	}
}

func TestPerformCodeLinkage(t *testing.T) {
	file, dir := buildLibraries(t)
	s := newSession(t, Config{Files: []string{file}, Directories: []string{dir}})
	ctxs, err := s.Load(file, "entry")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	b := image.NewBuilder(s.InstructionSet())
	code, err := b.AddRegion("external", image.RegionExternalCode, 0)
	if err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	for _, ctx := range ctxs {
		if err := ctx.PerformCodeLinkage(b, code.Section()); err != nil {
			t.Fatalf("PerformCodeLinkage(%s) failed: %v", ctx.SymbolName(), err)
		}
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
	if off, ok := s.PlacedOffset("ext_helper"); !ok || off != 16 {
		t.Fatalf("PlacedOffset(ext_helper) = %d, %v", off, ok)
	}
	if !s.IsSymbolPlaced("ext_helper", nil) || s.State("entry") != StateLinked {
		t.Fatalf("ext_helper not placed or entry not linked")
	}

	if err := b.Layout(0x2000, 4); err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if err := b.ApplyRelocations(); err != nil {
		t.Fatalf("ApplyRelocations failed: %v", err)
	}

	entryAddr, _ := ctxs[0].Address()
	helperAddr, _ := ctxs[1].Address()
	img, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	word := func(addr uint32) uint32 {
		off := addr - b.Base()
		return b.ByteOrder().Uint32(img[off:])
	}

	br, ok := s.InstructionSet().Decode(word(entryAddr + 4)).(asm.BranchOpcode)
	if !ok {
		t.Fatalf("call site no longer a branch: %#08x", word(entryAddr+4))
	}
	if want := int32(helperAddr) - int32(entryAddr+4) - arm.PCOffset; br.Offset() != want {
		t.Fatalf("branch offset = %d, want %d", br.Offset(), want)
	}

	target, off, ok := s.ResolveTarget("counter_hi")
	if !ok || off != 4 {
		t.Fatalf("ResolveTarget(counter_hi) = %v, %d, %v", target, off, ok)
	}
	dataAddr, err := target.Address()
	if err != nil {
		t.Fatalf("data address: %v", err)
	}
	if got := word(entryAddr + 12); got != dataAddr+4 {
		t.Fatalf("pointer = %#x, want %#x", got, dataAddr+4)
	}
}

func TestDataSectionAlignment(t *testing.T) {
	file := writeObject(t, filepath.Join(t.TempDir(), "wide.o"), func(b *elfobj.Builder) {
		b.Words("load_wide",
			0xE59F0000, // ldr r0, [pc, #0]
			0xE12FFF1E, // bx lr
			0x00000000, // .word wide
		).Relocate(8, elf.R_ARM_ABS32, "wide")
		b.Data("wide", []byte{1, 2, 3, 4, 5, 6, 7, 8}).Align(8)
	})
	s := newSession(t, Config{Files: []string{file}})
	ctxs, err := s.Load("", "load_wide")
	if err != nil || len(ctxs) != 1 {
		t.Fatalf("Load = %v, %v", ctxs, err)
	}

	b := image.NewBuilder(s.InstructionSet())
	code, _ := b.AddRegion("external", image.RegionExternalCode, 0)
	if err := ctxs[0].PerformCodeLinkage(b, code.Section()); err != nil {
		t.Fatalf("PerformCodeLinkage failed: %v", err)
	}
	if err := b.Layout(0x2000, 4); err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if err := b.ApplyRelocations(); err != nil {
		t.Fatalf("ApplyRelocations failed: %v", err)
	}

	target, off, ok := s.ResolveTarget("wide")
	if !ok || off != 0 {
		t.Fatalf("ResolveTarget(wide) = %v, %d, %v", target, off, ok)
	}
	addr, err := target.Address()
	if err != nil {
		t.Fatalf("data address: %v", err)
	}
	if addr%8 != 0 {
		t.Fatalf("data section with alignment 8 placed at %#x", addr)
	}
	img, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if got := b.ByteOrder().Uint32(img[8:]); got != addr {
		t.Fatalf("pointer = %#x, want %#x", got, addr)
	}
	if img[addr-b.Base()] != 1 {
		t.Fatalf("data not copied to %#x", addr)
	}
}

func TestManagedExportsShortCircuit(t *testing.T) {
	scans := 0
	exports := NewExportTable([]string{"managed_cb"})
	root := t.TempDir()
	file := writeObject(t, filepath.Join(root, "native.o"), func(b *elfobj.Builder) {
		b.Words("native_entry", 0xEAFFFFFE).Relocate(0, elf.R_ARM_JUMP24, "managed_cb")
	})
	s := newSession(t, Config{
		Files:   []string{file},
		Managed: exports,
		OnScan:  func(string) { scans++ },
	})

	sec, err := s.FindExternSymbol("managed_cb")
	if err != nil || sec != nil {
		t.Fatalf("FindExternSymbol(managed_cb) = %v, %v", sec, err)
	}
	if scans != 0 {
		t.Fatalf("managed lookup scanned %d files", scans)
	}

	ctxs, err := s.Load("", "native_entry")
	if err != nil || len(ctxs) != 1 {
		t.Fatalf("Load = %v, %v", ctxs, err)
	}
	if len(s.Diagnostics()) != 0 {
		t.Fatalf("managed reference reported as unresolved: %v", s.Diagnostics())
	}

	b := image.NewBuilder(s.InstructionSet())
	managed, _ := b.AddRegion("managed", image.RegionCode, 0)
	managed.Section().WriteWord(0xE12FFF1E)
	exports.Place("managed_cb", managed.At(0))
	native, _ := b.AddRegion("native", image.RegionExternalCode, 0)
	if err := ctxs[0].PerformCodeLinkage(b, native.Section()); err != nil {
		t.Fatalf("PerformCodeLinkage failed: %v", err)
	}
	if err := b.Layout(0, 4); err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if err := b.ApplyRelocations(); err != nil {
		t.Fatalf("ApplyRelocations failed: %v", err)
	}
	img, _ := b.Bytes()
	// native at 4 jumping back to 0: 0 - 4 - 8
	if got := b.ByteOrder().Uint32(img[4:]); got != 0xEAFFFFFD {
		t.Fatalf("jump = %#08x, want 0xeafffffd", got)
	}
}

func TestResolutionOrder(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	define := func(path, name string) string {
		return writeObject(t, path, func(b *elfobj.Builder) {
			b.Words(name, 0xE12FFF1E)
		})
	}
	listed := define(filepath.Join(root, "listed.o"), "dup")
	define(filepath.Join(dir, "a.o"), "dup")
	define(filepath.Join(dir, "b.o"), "only_dir")
	define(filepath.Join(dir, "c.o"), "only_dir")

	s := newSession(t, Config{Files: []string{listed}, Directories: []string{dir, filepath.Join(root, "missing")}})

	tests := []struct {
		symbol string
		file   string
	}{
		{"dup", listed},
		{"only_dir", filepath.Join(dir, "b.o")},
	}
	for _, tt := range tests {
		sec, err := s.FindExternSymbol(tt.symbol)
		if err != nil {
			t.Fatalf("FindExternSymbol(%s) failed: %v", tt.symbol, err)
		}
		if sec == nil || sec.Object.Path != tt.file {
			t.Fatalf("FindExternSymbol(%s) = %v, want section from %s", tt.symbol, sec, tt.file)
		}
		if s.State(tt.symbol) != StateLocated {
			t.Fatalf("State(%s) = %s", tt.symbol, s.State(tt.symbol))
		}
	}
	if sec, err := s.FindExternSymbol("nowhere"); err != nil || sec != nil {
		t.Fatalf("FindExternSymbol(nowhere) = %v, %v", sec, err)
	}
}

func TestArchiveMembers(t *testing.T) {
	member := func(name string) []byte {
		b := elfobj.NewBuilder()
		b.Words(name, 0xE12FFF1E)
		data, err := b.Bytes()
		if err != nil {
			t.Fatalf("Bytes failed: %v", err)
		}
		return data
	}
	path := filepath.Join(t.TempDir(), "libsupport.a")
	archive := elfobj.Archive(
		elfobj.ArchiveMember{Name: "one.o", Data: member("one")},
		elfobj.ArchiveMember{Name: "two.o", Data: member("two")},
	)
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s := newSession(t, Config{Files: []string{path}})
	ctxs, err := s.Load("", "two")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ctxs[0].FileName(); got != path+"(two.o)" {
		t.Fatalf("FileName = %q", got)
	}
	dbg := ctxs[0].DebugInfo()
	if dbg.File != path+"(two.o)" || dbg.Method != "two" || dbg.BeginLine != 1 {
		t.Fatalf("unexpected debug info %+v", dbg)
	}
}

func TestUnsupportedRelocation(t *testing.T) {
	file := writeObject(t, filepath.Join(t.TempDir(), "movw.o"), func(b *elfobj.Builder) {
		b.Data("value", []byte{1, 2, 3, 4})
		b.Words("load_value",
			0xE3000000, // movw r0, #:lower16:value
			0xE12FFF1E,
		).Relocate(0, elf.R_ARM_MOVW_ABS_NC, "value")
	})
	s := newSession(t, Config{Files: []string{file}})
	ctxs, err := s.Load("", "load_value")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b := image.NewBuilder(s.InstructionSet())
	code, _ := b.AddRegion("code", image.RegionExternalCode, 0)
	err = ctxs[0].PerformCodeLinkage(b, code.Section())
	if !errors.Is(err, ErrUnsupportedRelocation) {
		t.Fatalf("PerformCodeLinkage error = %v, want ErrUnsupportedRelocation", err)
	}
}

func TestUnresolvedSymbols(t *testing.T) {
	file := writeObject(t, filepath.Join(t.TempDir(), "caller.o"), func(b *elfobj.Builder) {
		b.Words("caller", 0xEBFFFFFE, 0xE12FFF1E).Relocate(0, elf.R_ARM_CALL, "missing_fn")
	})

	for _, allow := range []bool{false, true} {
		s := newSession(t, Config{Files: []string{file}, AllowUnresolved: allow})
		if _, err := s.Load("", "not_anywhere"); !errors.Is(err, ErrUnresolvedSymbol) {
			t.Fatalf("Load of a missing root = %v", err)
		}
		ctxs, err := s.Load("", "caller")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		b := image.NewBuilder(s.InstructionSet())
		code, _ := b.AddRegion("code", image.RegionExternalCode, 0)
		if err := ctxs[0].PerformCodeLinkage(b, code.Section()); err != nil {
			t.Fatalf("PerformCodeLinkage failed: %v", err)
		}

		diags := s.Diagnostics()
		if len(diags) != 3 {
			t.Fatalf("got %d diagnostics, want 3: %v", len(diags), diags)
		}
		if diags[1].Symbol != "missing_fn" || diags[1].From != "caller" || diags[1].Offset != 0 {
			t.Fatalf("unexpected diagnostic %+v", diags[1])
		}
		err = s.Err()
		if allow && err != nil {
			t.Fatalf("Err with unresolved allowed = %v", err)
		}
		if !allow && !errors.Is(err, ErrUnresolvedSymbol) {
			t.Fatalf("Err = %v, want ErrUnresolvedSymbol", err)
		}
	}
}

func TestUnknownInstructionSet(t *testing.T) {
	if _, err := New(Config{InstructionSet: "m68k"}); err == nil {
		t.Fatalf("New accepted an unknown instruction set")
	}
}
