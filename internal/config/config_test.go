package config

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `version: 1
requires: "0.2"
target:
  arch: armv4
  fpu: soft
imports:
  files:
    - lib/startup.o
    - /opt/arm/libc.a
  directories:
    - native
image:
  baseAddress: "0x0800_0000"
  alignment: 16
  format: elf
linker:
  allowUnresolved: true
  pcOffset: 8
managed:
  - name: Program_Main
  - name: Isr_Timer
    size: 64
`
	path := filepath.Join(dir, Filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvImportDir, "")
	t.Setenv(EnvDebug, "")

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if c.Target.Arch != "armv4" || c.Target.FPU != FPUSoft {
		t.Errorf("Target = %+v", c.Target)
	}
	if got := c.Imports.Files[0]; got != filepath.Join(dir, "lib/startup.o") {
		t.Errorf("relative file not resolved: %s", got)
	}
	if got := c.Imports.Files[1]; got != "/opt/arm/libc.a" {
		t.Errorf("absolute file changed: %s", got)
	}
	if got := c.Imports.Directories[0]; got != filepath.Join(dir, "native") {
		t.Errorf("relative directory not resolved: %s", got)
	}
	base, err := c.BaseAddress()
	if err != nil || base != 0x08000000 {
		t.Errorf("BaseAddress = %#x, %v", base, err)
	}
	if _, ok, err := c.EntryAddress(); ok || err != nil {
		t.Errorf("EntryAddress without an entry = %v, %v", ok, err)
	}
	if c.Image.Format != FormatELF || c.Image.Alignment != 16 {
		t.Errorf("Image = %+v", c.Image)
	}
	if !c.Linker.AllowUnresolved || c.Linker.InstructionSet != "a32" {
		t.Errorf("Linker = %+v", c.Linker)
	}
	if names := c.ManagedNames(); len(names) != 2 || names[1] != "Isr_Timer" || c.Managed[1].Size != 64 {
		t.Errorf("Managed = %+v", c.Managed)
	}
	if c.ByteOrder() != binary.LittleEndian {
		t.Errorf("ByteOrder = %v", c.ByteOrder())
	}
}

func TestDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader(""), "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Version != 1 || c.Target.Arch != "armv5" || c.Image.Format != FormatRaw || c.Image.Alignment != 4 {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"arch", func(c *Config) { c.Target.Arch = "x86" }, "target.arch"},
		{"fpu", func(c *Config) { c.Target.FPU = "neon" }, "target.fpu"},
		{"format", func(c *Config) { c.Image.Format = "hex" }, "image.format"},
		{"alignment", func(c *Config) { c.Image.Alignment = 12 }, "power of two"},
		{"base", func(c *Config) { c.Image.BaseAddress = "flash" }, "image.baseAddress"},
		{"misaligned", func(c *Config) { c.Image.BaseAddress = "0x1002" }, "not aligned"},
		{"entry", func(c *Config) { c.Image.Entry = "main" }, "image.entry"},
		{"version", func(c *Config) { c.Version = 2 }, "unsupported version"},
		{"requires", func(c *Config) { c.Requires = "v9.0.0" }, "requires armaot"},
		{"requires syntax", func(c *Config) { c.Requires = "latest" }, "semantic version"},
		{"managed name", func(c *Config) { c.Managed = []ManagedExport{{}} }, "missing name"},
		{"managed twice", func(c *Config) {
			c.Managed = []ManagedExport{{Name: "A"}, {Name: "A"}}
		}, "listed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("target:\n  cpu: cortex-m4\n"), "")
	if err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("imports:\n  directories: [a]\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	extra := strings.Join([]string{"/x", "/y"}, string(os.PathListSeparator))
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvImportDir, extra)

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.Debug {
		t.Errorf("Debug not set from %s", EnvDebug)
	}
	want := []string{filepath.Join(dir, "a"), "/x", "/y"}
	if len(c.Imports.Directories) != len(want) {
		t.Fatalf("Directories = %v, want %v", c.Imports.Directories, want)
	}
	for i := range want {
		if c.Imports.Directories[i] != want[i] {
			t.Fatalf("Directories = %v, want %v", c.Imports.Directories, want)
		}
	}
}

func TestEnvironmentChangesBetweenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), Filename)
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvImportDir, "")
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if c.Debug || len(c.Imports.Directories) != 0 {
		t.Fatalf("environment applied before it was set: %+v", c)
	}

	t.Setenv(EnvDebug, "1")
	t.Setenv(EnvImportDir, "/late")
	c, err = LoadFile(path)
	if err != nil {
		t.Fatalf("second LoadFile failed: %v", err)
	}
	if !c.Debug {
		t.Errorf("Debug not set from %s on the second load", EnvDebug)
	}
	if len(c.Imports.Directories) != 1 || c.Imports.Directories[0] != "/late" {
		t.Errorf("Directories = %v, want [/late]", c.Imports.Directories)
	}
}

func TestLoadMissingDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvImportDir, "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load without a config file failed: %v", err)
	}
	if c.Target.Arch != "armv5" {
		t.Fatalf("expected defaults, got %+v", c.Target)
	}
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatalf("explicit missing path accepted")
	}
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := Default()
	in.Target.BigEndian = true
	in.Managed = []ManagedExport{{Name: "Main"}}
	if err := WriteTemplate(dir, in); err != nil {
		t.Fatalf("WriteTemplate failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if !bytes.Contains(data, []byte("bigEndian: true")) {
		t.Fatalf("template missing bigEndian:\n%s", data)
	}
	out, err := Parse(bytes.NewReader(data), dir)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.ByteOrder() != binary.BigEndian || len(out.Managed) != 1 || out.Managed[0].Name != "Main" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
