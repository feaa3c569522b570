package compiler

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/tinyrange/armaot/internal/asm"
	"github.com/tinyrange/armaot/internal/config"
	"github.com/tinyrange/armaot/internal/image"
	"github.com/tinyrange/armaot/internal/ir"
	"github.com/tinyrange/armaot/internal/link"
)

// Phase is one step of a compilation. A phase that lowers the program sets
// Lowers, and every operator must be at or below Level once it has run.
type Phase struct {
	Name   string
	Run    func(d *Driver, p *Program) error
	Lowers bool
	Level  ir.OperatorLevel
}

// DefaultPhases is the full pipeline from method graphs to a linked image.
func DefaultPhases() []Phase {
	return []Phase{
		{Name: "InlineCalls", Run: InlineCalls},
		{Name: "AllocateRegisters", Run: AllocateRegisters, Lowers: true, Level: ir.LevelConcreteTypes},
		{Name: "CheckLevel", Run: CheckLevel},
		{Name: "ImportExternalCalls", Run: ImportExternalCalls},
		{Name: "Link", Run: Link},
	}
}

// a32Targets are the architectures that execute A32 code.
var a32Targets = map[string]bool{"armv4": true, "armv5": true}

type Option func(*Driver)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithMaxLevel bounds the operators CheckLevel accepts.
func WithMaxLevel(level ir.OperatorLevel) Option {
	return func(d *Driver) { d.maxLevel = level }
}

func WithPhases(phases ...Phase) Option {
	return func(d *Driver) { d.phases = phases }
}

// WithScanHook is called before each object file is searched for symbols.
func WithScanHook(fn func(path string)) Option {
	return func(d *Driver) { d.onScan = fn }
}

// Driver runs the phases of one compilation. It owns the linking session and
// the image being built, so a Driver is used for a single Program.
type Driver struct {
	cfg      config.Config
	logger   *slog.Logger
	phases   []Phase
	maxLevel ir.OperatorLevel
	onScan   func(string)

	target  *ir.Target
	isa     asm.InstructionSet
	exports *link.ExportTable
	session *link.Session
	builder *image.Builder

	frames   map[*ir.Graph]*frame
	imported []*link.ExternalCallContext
	seen     map[*link.ExternalCallContext]bool
	placed   map[string]image.Location
}

func New(cfg config.Config, opts ...Option) (*Driver, error) {
	d := &Driver{
		cfg:      cfg,
		logger:   slog.Default(),
		phases:   DefaultPhases(),
		maxLevel: ir.LevelConcreteTypes,
		frames:   make(map[*ir.Graph]*frame),
		seen:     make(map[*link.ExternalCallContext]bool),
		placed:   make(map[string]image.Location),
	}
	for _, opt := range opts {
		opt(d)
	}

	target, err := ir.LookupTarget(cfg.Target.Arch)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	d.target = target

	d.exports = link.NewExportTable(cfg.ManagedNames())
	session, err := link.New(link.Config{
		Files:           cfg.Imports.Files,
		Directories:     cfg.Imports.Directories,
		InstructionSet:  cfg.Linker.InstructionSet,
		Managed:         d.exports,
		AllowUnresolved: cfg.Linker.AllowUnresolved,
		Logger:          d.logger,
		OnScan:          d.onScan,
	})
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	d.session = session
	d.isa = session.InstructionSet()

	if d.isa.Name() == "a32" && !a32Targets[target.Name] {
		return nil, fmt.Errorf("compiler: target %s does not execute a32 code", target.Name)
	}
	if off := cfg.Linker.PCOffset; off != 0 && off != d.isa.PCOffset() {
		return nil, fmt.Errorf("compiler: linker.pcOffset %d does not match %s (%d)", off, d.isa.Name(), d.isa.PCOffset())
	}
	d.builder = image.NewBuilder(d.isa, image.WithByteOrder(cfg.ByteOrder()), image.WithLogger(d.logger))
	return d, nil
}

func (d *Driver) Config() config.Config      { return d.cfg }
func (d *Driver) Target() *ir.Target         { return d.target }
func (d *Driver) Session() *link.Session     { return d.session }
func (d *Driver) Builder() *image.Builder    { return d.builder }
func (d *Driver) Exports() *link.ExportTable { return d.exports }

// Imported lists the native routines found by ImportExternalCalls, each
// once.
func (d *Driver) Imported() []*link.ExternalCallContext {
	return append([]*link.ExternalCallContext(nil), d.imported...)
}

// MethodLocation reports where Link placed a managed method.
func (d *Driver) MethodLocation(name string) (image.Location, bool) {
	loc, ok := d.placed[name]
	return loc, ok
}

// Run executes every phase in order. Internal compiler errors raised while
// a phase runs are returned rather than propagated as panics.
func (d *Driver) Run(p *Program) error {
	for _, ph := range d.phases {
		d.logger.Debug("running phase", "phase", ph.Name)
		if err := ir.Protect(func() error { return ph.Run(d, p) }); err != nil {
			return fmt.Errorf("compiler: %s: %w", ph.Name, err)
		}
		if !ph.Lowers {
			continue
		}
		for _, md := range p.Methods() {
			if err := md.Graph.CheckLevel(ph.Level, d.target); err != nil {
				return fmt.Errorf("compiler: after %s: %w", ph.Name, err)
			}
		}
	}
	return nil
}

// CheckLevel fails if any operator is above the driver's maximum level.
func CheckLevel(d *Driver, p *Program) error {
	for _, md := range p.Methods() {
		if err := md.Graph.CheckLevel(d.maxLevel, d.target); err != nil {
			return err
		}
	}
	return nil
}

// WriteImage writes the linked image in the configured format.
func (d *Driver) WriteImage(w io.Writer) error {
	switch d.cfg.Image.Format {
	case config.FormatELF:
		elfCfg := image.DefaultStandaloneELFConfig()
		entry, ok, err := d.cfg.EntryAddress()
		if err != nil {
			return err
		}
		if ok {
			elfCfg.Entry = entry
		}
		return d.builder.WriteELF(w, elfCfg)
	default:
		data, err := d.builder.Bytes()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}
