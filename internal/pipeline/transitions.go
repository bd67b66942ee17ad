package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/starford/mailwright/internal/apperr"
)

// NewProject discards the current design and returns to the empty state.
// Any load in flight is abandoned and auto-save stops until a save target
// exists again.
func (p *Pipeline) NewProject() {
	p.disarm(func() {
		p.invalidateLoadsLocked()
		p.state.ResetForNewProject()
	})

	p.logger.Info("pipeline: new project")
	p.changed()
}

// SelectTemplate switches to the template key. Every value entered under the
// previous template is discarded and the new template's defaults are
// seeded. The design identity is kept, so the next save overwrites the same
// design.
func (p *Pipeline) SelectTemplate(key string) error {
	tmpl, err := p.catalog.Get(key)
	if err != nil {
		return err
	}

	p.loadMu.Lock()
	if p.state.LoadInFlight() {
		p.loadMu.Unlock()
		return fmt.Errorf("pipeline: select template: %w", apperr.ErrConcurrentLoad)
	}
	p.epoch++
	p.state.ResetForTemplateChange(tmpl)
	p.loadMu.Unlock()

	p.logger.Info("pipeline: template selected", slog.String("template", key))
	p.changed()
	return nil
}
