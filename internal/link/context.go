package link

import (
	"fmt"

	"github.com/tinyrange/armaot/internal/elfobj"
	"github.com/tinyrange/armaot/internal/image"
	"github.com/tinyrange/armaot/internal/ir"
)

// ExternalCallContext is an imported routine: the code section it came from
// and, once linked, where it was copied to. It is the image.Target of calls
// into the routine.
type ExternalCallContext struct {
	session *Session
	name    string
	section *elfobj.Section
	debug   *ir.DebugInfo

	region *image.SequentialRegion
	offset uint32
}

var (
	_ ir.ExternalCallContext = (*ExternalCallContext)(nil)
	_ image.Target           = (*ExternalCallContext)(nil)
)

func (c *ExternalCallContext) SymbolName() string       { return c.name }
func (c *ExternalCallContext) Section() *elfobj.Section { return c.section }
func (c *ExternalCallContext) FileName() string         { return c.section.Object.FileName() }

// Offset is where the routine starts inside its region. It is only
// meaningful once Placed reports true.
func (c *ExternalCallContext) Offset() uint32 { return c.offset }
func (c *ExternalCallContext) Placed() bool   { return c.region != nil }

func (c *ExternalCallContext) Region() *image.SequentialRegion { return c.region }

func (c *ExternalCallContext) Address() (uint32, error) {
	if c.region == nil {
		return 0, fmt.Errorf("link: %s has not been placed", c.name)
	}
	base, err := c.region.Address()
	if err != nil {
		return 0, err
	}
	return base + c.offset, nil
}

func (c *ExternalCallContext) String() string {
	return fmt.Sprintf("%s (%s)", c.section.Name, c.FileName())
}

// DebugInfo attributes the routine to its section and file.
func (c *ExternalCallContext) DebugInfo() *ir.DebugInfo {
	if c.debug == nil {
		c.debug = &ir.DebugInfo{
			File:        c.FileName(),
			Method:      c.section.Name,
			BeginLine:   1,
			BeginColumn: 1,
			EndLine:     2,
			EndColumn:   2,
		}
	}
	return c.debug
}

// ExternalDataContext is an imported data section placed in its own region.
type ExternalDataContext struct {
	section *elfobj.Section
	owner   *ExternalCallContext
	region  *image.SequentialRegion
}

var _ image.Target = (*ExternalDataContext)(nil)

func (d *ExternalDataContext) Section() *elfobj.Section        { return d.section }
func (d *ExternalDataContext) Owner() *ExternalCallContext     { return d.owner }
func (d *ExternalDataContext) Region() *image.SequentialRegion { return d.region }

func (d *ExternalDataContext) Address() (uint32, error) { return d.region.Address() }

func (d *ExternalDataContext) String() string {
	return fmt.Sprintf("%s (%s)", d.section.Name, d.section.Object.FileName())
}

func (s *Session) newCallContext(name string, sec *elfobj.Section) *ExternalCallContext {
	return &ExternalCallContext{session: s, name: name, section: sec}
}

// registerCallContext makes ctx the routine for its section name and every
// alias.
func (s *Session) registerCallContext(ctx *ExternalCallContext) {
	s.callContexts[ctx.section.Name] = ctx
	s.advance(ctx.section.Name, StateRegistered)
	for alias := range ctx.section.Aliases {
		s.callContexts[alias] = ctx
		s.advance(alias, StateRegistered)
	}
}

// CallContext returns the routine registered under name.
func (s *Session) CallContext(name string) (*ExternalCallContext, bool) {
	ctx, ok := s.callContexts[name]
	return ctx, ok
}

func (s *Session) findSection(filePath, name string) (*elfobj.Section, error) {
	if filePath != "" {
		sec, err := s.parseFileForSymbol(name, filePath)
		if err != nil || sec != nil {
			return sec, err
		}
	}
	return s.FindExternSymbol(name)
}

// Load discovers rootName, starting in filePath if given, and every routine
// it transitively references. The returned contexts are the newly found code
// routines with the root first. Data sections are followed for their own
// references but not returned.
//
// A root that cannot be found is an ErrUnresolvedSymbol error. Missing
// transitive references become diagnostics.
func (s *Session) Load(filePath, rootName string) ([]*ExternalCallContext, error) {
	if ctx, ok := s.callContexts[rootName]; ok {
		return []*ExternalCallContext{ctx}, nil
	}
	root, err := s.findSection(filePath, rootName)
	if err != nil {
		return nil, err
	}
	if root == nil {
		s.unresolved(Diagnostic{Symbol: rootName, File: filePath})
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedSymbol, rootName)
	}
	if root.IsData() {
		return nil, fmt.Errorf("link: %s is a data symbol in %s", rootName, root.Object.FileName())
	}

	item := s.newCallContext(rootName, root)
	list := []*ExternalCallContext{item}
	s.registerCallContext(item)
	s.logger.Info("imported routine", "file", item.FileName(), "symbol", rootName)

	dataSyms := make(map[string]bool)
	queue := []*ExternalCallContext{item}
	for len(queue) > 0 {
		item, queue = queue[0], queue[1:]
		for _, ref := range item.section.References {
			name := ref.SymbolName()
			if _, ok := s.callContexts[name]; ok {
				continue
			}
			if s.cfg.Managed.IsManaged(name) || dataSyms[name] {
				continue
			}

			sec := ref.Target
			if sec == nil {
				sec, err = s.findSection(item.section.Object.Path, name)
				if err != nil {
					return list, err
				}
			}
			if sec == nil {
				s.unresolved(Diagnostic{
					Symbol: name,
					From:   item.section.Name,
					File:   item.FileName(),
					Offset: ref.Offset,
				})
				continue
			}

			next := s.newCallContext(name, sec)
			queue = append(queue, next)
			s.advance(name, StateQueued)
			if sec.IsData() {
				dataSyms[name] = true
				continue
			}
			list = append(list, next)
			s.registerCallContext(next)
			s.logger.Info("imported routine", "file", next.FileName(), "symbol", name)
		}
	}
	return list, nil
}
