package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/tinyrange/armaot/internal/link"
)

// printRoutines writes one row per imported routine. When width is
// positive, rows are cut to fit.
func printRoutines(w io.Writer, ctxs []*link.ExternalCallContext, width int) error {
	rows := [][]string{{"SYMBOL", "ADDRESS", "SIZE", "FILE"}}
	for _, ctx := range ctxs {
		addr := "-"
		if a, err := ctx.Address(); err == nil {
			addr = fmt.Sprintf("0x%08x", a)
		}
		rows = append(rows, []string{
			ctx.SymbolName(),
			addr,
			fmt.Sprint(ctx.Section().Size),
			ctx.FileName(),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.Reset()
		for i, cell := range row {
			sb.WriteString(cell)
			if i < len(row)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)+2))
			}
		}
		line := sb.String()
		if width > 0 {
			line = ansi.Truncate(line, width, "…")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
