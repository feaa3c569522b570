package compiler

import (
	"errors"

	"github.com/tinyrange/armaot/internal/ir"
	"github.com/tinyrange/armaot/internal/link"
)

// ImportExternalCalls loads the native routine behind every external call,
// with everything it references, and binds the routines to the call.
// Library, when set, is the object file searched first.
//
// With linker.allowUnresolved a call whose routine cannot be found stays
// unbound and is emitted as a placeholder.
func ImportExternalCalls(d *Driver, p *Program) error {
	// Native code calling an exported method must not go looking for it.
	for _, md := range p.Types.ExportedMethods() {
		d.exports.Add(md.Name)
	}
	for _, md := range p.Methods() {
		for _, op := range md.Graph.Operators() {
			ext, ok := op.(*ir.ExternalCallOperator)
			if !ok || ext.IsBound() {
				continue
			}
			ctxs, err := d.session.Load(ext.Library, ext.Symbol)
			if errors.Is(err, link.ErrUnresolvedSymbol) && d.cfg.Linker.AllowUnresolved {
				continue
			}
			if err != nil {
				return err
			}
			bound := make([]ir.ExternalCallContext, 0, len(ctxs))
			for _, ctx := range ctxs {
				bound = append(bound, ctx)
				if !d.seen[ctx] {
					d.seen[ctx] = true
					d.imported = append(d.imported, ctx)
				}
			}
			ext.BindContexts(bound)
			d.logger.Debug("bound external call", "method", md.String(), "symbol", ext.Symbol, "routines", len(ctxs))
		}
	}
	return nil
}
