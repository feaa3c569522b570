// Package link resolves the native routines a managed program calls, pulls
// them out of ARM ELF relocatable objects and links them into an image.
//
// A Session holds every cache for one compilation. Sessions share nothing,
// so independent compilations may run concurrently, but a single Session is
// not safe for concurrent use.
package link

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/armaot/internal/asm"
	_ "github.com/tinyrange/armaot/internal/asm/arm"
	"github.com/tinyrange/armaot/internal/elfobj"
	"github.com/tinyrange/armaot/internal/image"
)

var (
	// ErrUnsupportedRelocation is returned for relocation types or symbol
	// kinds the linker has no patch for.
	ErrUnsupportedRelocation = errors.New("link: unsupported relocation")
	// ErrUnresolvedSymbol is returned when a referenced symbol is found
	// neither in the managed program nor in any search location.
	ErrUnresolvedSymbol = errors.New("link: unresolved symbol")
)

// DefaultInstructionSet is used when Config.InstructionSet is empty.
const DefaultInstructionSet = "a32"

// Config describes where a session looks for native code.
type Config struct {
	// Files are searched in order before Directories.
	Files []string
	// Directories are searched in order, each file in os.ReadDir order.
	Directories []string

	InstructionSet  string
	Managed         ManagedSymbols
	AllowUnresolved bool
	Logger          *slog.Logger

	// OnScan, if set, is called before a file is parsed for the first time.
	OnScan func(path string)
}

// SymbolState tracks how far a native symbol has come through the linker.
type SymbolState uint8

const (
	StateUnresolved SymbolState = iota
	StateLocated
	StateQueued
	StateRegistered
	StatePlaced
	StateLinked
)

func (s SymbolState) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateLocated:
		return "located"
	case StateQueued:
		return "queued"
	case StateRegistered:
		return "registered"
	case StatePlaced:
		return "placed"
	case StateLinked:
		return "linked"
	default:
		return fmt.Sprintf("SymbolState(%d)", uint8(s))
	}
}

// Diagnostic records a symbol the linker could not resolve.
type Diagnostic struct {
	Symbol string
	// From is the section that referenced Symbol, empty for a root lookup.
	From   string
	File   string
	Offset uint32
}

func (d Diagnostic) String() string {
	if d.From == "" {
		return fmt.Sprintf("unresolved symbol %s", d.Symbol)
	}
	return fmt.Sprintf("unresolved symbol %s referenced from %s+%#x (%s)", d.Symbol, d.From, d.Offset, d.File)
}

// Session is the linking cache for one compilation.
type Session struct {
	cfg    Config
	isa    asm.InstructionSet
	logger *slog.Logger

	// objects by absolute path. A nil entry marks a file that failed to parse.
	objects map[string][]*elfobj.Object
	scanned map[string]bool

	sections  map[string]*elfobj.Section
	fileHints map[string]string

	callContexts map[string]*ExternalCallContext

	placedOffsets  map[string]uint32
	placedContexts map[string]*ExternalCallContext

	dataContexts map[string]*ExternalDataContext
	dataOffsets  map[string]uint32
	dataRegions  map[*elfobj.Section]*ExternalDataContext

	states      map[string]SymbolState
	diagnostics []Diagnostic
}

// New creates a session. The instruction set must have been registered
// with asm.RegisterInstructionSet.
func New(cfg Config) (*Session, error) {
	name := cfg.InstructionSet
	if name == "" {
		name = DefaultInstructionSet
	}
	isa, err := asm.LookupInstructionSet(name)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	managed := cfg.Managed
	if managed == nil {
		managed = NewExportTable(nil)
	}
	cfg.Managed = managed
	return &Session{
		cfg:            cfg,
		isa:            isa,
		logger:         logger,
		objects:        make(map[string][]*elfobj.Object),
		scanned:        make(map[string]bool),
		sections:       make(map[string]*elfobj.Section),
		fileHints:      make(map[string]string),
		callContexts:   make(map[string]*ExternalCallContext),
		placedOffsets:  make(map[string]uint32),
		placedContexts: make(map[string]*ExternalCallContext),
		dataContexts:   make(map[string]*ExternalDataContext),
		dataOffsets:    make(map[string]uint32),
		dataRegions:    make(map[*elfobj.Section]*ExternalDataContext),
		states:         make(map[string]SymbolState),
	}, nil
}

func (s *Session) InstructionSet() asm.InstructionSet { return s.isa }
func (s *Session) Managed() ManagedSymbols            { return s.cfg.Managed }

// State reports how far name has progressed.
func (s *Session) State(name string) SymbolState {
	return s.states[name]
}

func (s *Session) advance(name string, st SymbolState) {
	if st > s.states[name] {
		s.states[name] = st
	}
}

// Diagnostics returns the unresolved symbols recorded so far.
func (s *Session) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), s.diagnostics...)
}

// Err reports ErrUnresolvedSymbol if anything was left unresolved and the
// session does not allow it.
func (s *Session) Err() error {
	if len(s.diagnostics) == 0 || s.cfg.AllowUnresolved {
		return nil
	}
	errs := make([]error, 0, len(s.diagnostics))
	for _, d := range s.diagnostics {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnresolvedSymbol, d))
	}
	return errors.Join(errs...)
}

func (s *Session) unresolved(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
	s.logger.Warn("unresolved external symbol", "symbol", d.Symbol, "from", d.From, "file", d.File, "offset", d.Offset)
}

// ManagedSymbols is the managed program's side of symbol resolution: names
// it exports to native code and, once emitted, where they live.
type ManagedSymbols interface {
	IsManaged(name string) bool
	ManagedTarget(name string) (image.Target, bool)
}

// ExportTable is the ManagedSymbols of a compiled program.
type ExportTable struct {
	names   map[string]bool
	targets map[string]image.Target
}

func NewExportTable(names []string) *ExportTable {
	t := &ExportTable{
		names:   make(map[string]bool),
		targets: make(map[string]image.Target),
	}
	for _, name := range names {
		t.names[name] = true
	}
	return t
}

func (t *ExportTable) Add(name string) { t.names[name] = true }

// Place records where an exported name was emitted.
func (t *ExportTable) Place(name string, target image.Target) {
	t.names[name] = true
	t.targets[name] = target
}

func (t *ExportTable) IsManaged(name string) bool { return t.names[name] }

func (t *ExportTable) ManagedTarget(name string) (image.Target, bool) {
	target, ok := t.targets[name]
	return target, ok
}
