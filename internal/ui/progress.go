package ui

import (
	"fmt"

	"github.com/desertthunder/tdx/internal/tasks"
)

// Progress formats one progress update as a status line, e.g. "[2/4] resolve  Resolving stream for Song".
func (p *Palette) Progress(u tasks.ProgressUpdate) string {
	step := p.help.Render(fmt.Sprintf("[%d/%d]", u.Step, u.Total))
	switch u.Phase {
	case tasks.Done, tasks.CacheHit:
		return step + " " + p.ok.Render(u.Message)
	case tasks.Failed:
		return step + " " + p.err.Render(u.Message)
	default:
		return fmt.Sprintf("%s %-9s %s", step, u.Phase, u.Message)
	}
}
