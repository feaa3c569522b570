// Package config loads armaot.yaml, the description of a build: the target,
// where native code is imported from, and how the image is laid out.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/armaot/internal/ir"
)

const (
	Filename = "armaot.yaml"

	// ToolVersion is compared against the requires field.
	ToolVersion = "v0.3.0"

	EnvConfig    = "ARMAOT_CONFIG"
	EnvDebug     = "ARMAOT_DEBUG"
	EnvImportDir = "ARMAOT_IMPORT_DIR"

	FormatRaw = "raw"
	FormatELF = "elf"

	FPUNone = "none"
	FPUSoft = "soft"
	FPUVFP  = "vfp"
)

// Config is the contents of armaot.yaml.
type Config struct {
	Version  int    `yaml:"version"`
	Requires string `yaml:"requires,omitempty"`

	Target  TargetConfig    `yaml:"target"`
	Imports ImportConfig    `yaml:"imports"`
	Image   ImageConfig     `yaml:"image"`
	Linker  LinkerConfig    `yaml:"linker"`
	Managed []ManagedExport `yaml:"managed,omitempty"`

	// Debug is set from the environment, never from the file.
	Debug bool `yaml:"-"`
}

type TargetConfig struct {
	Arch      string `yaml:"arch"`
	FPU       string `yaml:"fpu"`
	BigEndian bool   `yaml:"bigEndian,omitempty"`
}

// ImportConfig is the search path for native symbols. Files are tried in
// order, then every file of each directory.
type ImportConfig struct {
	Files       []string `yaml:"files,omitempty"`
	Directories []string `yaml:"directories,omitempty"`
}

type ImageConfig struct {
	BaseAddress string `yaml:"baseAddress"`
	Alignment   uint32 `yaml:"alignment"`
	Format      string `yaml:"format"`
	Entry       string `yaml:"entry,omitempty"`
}

type LinkerConfig struct {
	AllowUnresolved bool   `yaml:"allowUnresolved,omitempty"`
	InstructionSet  string `yaml:"instructionSet,omitempty"`
	// PCOffset, when set, must match the instruction set.
	PCOffset int32 `yaml:"pcOffset,omitempty"`
}

// ManagedExport names a managed method native code may call. Size reserves
// space for exports whose body is supplied outside the compiler.
type ManagedExport struct {
	Name string `yaml:"name"`
	Size uint32 `yaml:"size,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var c Config
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Target.Arch == "" {
		c.Target.Arch = "armv5"
	}
	if c.Target.FPU == "" {
		c.Target.FPU = FPUNone
	}
	if c.Image.BaseAddress == "" {
		c.Image.BaseAddress = "0x00000000"
	}
	if c.Image.Alignment == 0 {
		c.Image.Alignment = 4
	}
	if c.Image.Format == "" {
		c.Image.Format = FormatRaw
	}
	if c.Linker.InstructionSet == "" {
		c.Linker.InstructionSet = "a32"
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported version %d", c.Version)
	}
	if err := CheckRequires(c.Requires); err != nil {
		return err
	}
	if _, err := ir.LookupTarget(c.Target.Arch); err != nil {
		return fmt.Errorf("target.arch: %w", err)
	}
	switch c.Target.FPU {
	case FPUNone, FPUSoft, FPUVFP:
	default:
		return fmt.Errorf("target.fpu: unknown floating point mode %q", c.Target.FPU)
	}
	switch c.Image.Format {
	case FormatRaw, FormatELF:
	default:
		return fmt.Errorf("image.format: unknown format %q", c.Image.Format)
	}
	if a := c.Image.Alignment; a == 0 || a&(a-1) != 0 {
		return fmt.Errorf("image.alignment: %d is not a power of two", a)
	}
	base, err := c.BaseAddress()
	if err != nil {
		return err
	}
	if base%c.Image.Alignment != 0 {
		return fmt.Errorf("image.baseAddress: %#x is not aligned to %d", base, c.Image.Alignment)
	}
	if c.Image.Entry != "" {
		if _, err := parseAddress(c.Image.Entry); err != nil {
			return fmt.Errorf("image.entry: %w", err)
		}
	}
	if c.Linker.PCOffset < 0 {
		return fmt.Errorf("linker.pcOffset: %d is negative", c.Linker.PCOffset)
	}
	seen := make(map[string]bool)
	for i, m := range c.Managed {
		if m.Name == "" {
			return fmt.Errorf("managed[%d]: missing name", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("managed[%d]: %s listed twice", i, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// BaseAddress parses image.baseAddress.
func (c *Config) BaseAddress() (uint32, error) {
	addr, err := parseAddress(c.Image.BaseAddress)
	if err != nil {
		return 0, fmt.Errorf("image.baseAddress: %w", err)
	}
	return addr, nil
}

// EntryAddress parses image.entry. ok is false when no entry is set.
func (c *Config) EntryAddress() (addr uint32, ok bool, err error) {
	if c.Image.Entry == "" {
		return 0, false, nil
	}
	addr, err = parseAddress(c.Image.Entry)
	if err != nil {
		return 0, false, fmt.Errorf("image.entry: %w", err)
	}
	return addr, true, nil
}

func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}

func (c *Config) ByteOrder() binary.ByteOrder {
	if c.Target.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ManagedNames lists the managed exports in file order.
func (c *Config) ManagedNames() []string {
	names := make([]string, 0, len(c.Managed))
	for _, m := range c.Managed {
		names = append(names, m.Name)
	}
	return names
}

// CheckRequires fails if required names a newer tool than this one. An empty
// requirement is always met.
func CheckRequires(required string) error {
	if required == "" {
		return nil
	}
	v := required
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("requires: %q is not a semantic version", required)
	}
	if semver.Compare(ToolVersion, v) < 0 {
		return fmt.Errorf("requires armaot %s, this is %s", semver.Canonical(v), ToolVersion)
	}
	return nil
}

// Parse decodes a configuration. Relative import paths are resolved against
// dir.
func Parse(r io.Reader, dir string) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", Filename, err)
	}
	c.normalize()
	c.resolvePaths(dir)
	return c, nil
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	for i, f := range c.Imports.Files {
		if !filepath.IsAbs(f) {
			c.Imports.Files[i] = filepath.Join(dir, f)
		}
	}
	for i, d := range c.Imports.Directories {
		if !filepath.IsAbs(d) {
			c.Imports.Directories[i] = filepath.Join(dir, d)
		}
	}
}

// LoadFile reads and validates the configuration at path, then applies the
// environment overrides.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	c, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return Config{}, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load finds the configuration the way the command line does: path if
// given, else $ARMAOT_CONFIG, else armaot.yaml in the working directory.
// A missing armaot.yaml in the working directory yields Default.
func Load(path string) (Config, error) {
	env.Load()
	explicit := path != ""
	if !explicit {
		path = env.Str(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = Filename
	}
	c, err := LoadFile(path)
	if err == nil || explicit || !errors.Is(err, fs.ErrNotExist) {
		return c, err
	}
	c = Default()
	c.applyEnv()
	return c, c.Validate()
}

// applyEnv rereads the process environment; env caches it on first use.
func (c *Config) applyEnv() {
	env.Load()
	if env.Bool(EnvDebug) {
		c.Debug = true
	}
	if dirs := env.Str(EnvImportDir); dirs != "" {
		c.Imports.Directories = append(c.Imports.Directories, filepath.SplitList(dirs)...)
	}
}

// Write encodes c as YAML.
func Write(w io.Writer, c Config) error {
	c.normalize()
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&c); err != nil {
		return fmt.Errorf("encode %s: %w", Filename, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", Filename, err)
	}
	return nil
}

// WriteTemplate writes a starting armaot.yaml into dir.
func WriteTemplate(dir string, c Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, Filename))
	if err != nil {
		return fmt.Errorf("create %s: %w", Filename, err)
	}
	defer f.Close()
	return Write(f, c)
}
