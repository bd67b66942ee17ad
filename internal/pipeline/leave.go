package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/watch"
)

// LeaveChoice is the user's answer to the unsaved-changes prompt.
type LeaveChoice string

// Leave choices.
const (
	LeaveSave    LeaveChoice = "save"
	LeaveDiscard LeaveChoice = "discard"
	LeaveCancel  LeaveChoice = "cancel"
)

// ConfirmLeave resolves a navigation away from the editor. It reports
// whether the navigation may proceed; when it does the session is reset to
// a new project. A clean session always leaves.
func (p *Pipeline) ConfirmLeave(ctx context.Context, choice LeaveChoice) (bool, error) {
	if !p.state.Dirty() {
		p.NewProject()
		return true, nil
	}
	switch choice {
	case LeaveCancel:
		return false, nil
	case LeaveDiscard:
		p.logger.Info("pipeline: leaving with unsaved changes discarded")
		p.NewProject()
		return true, nil
	case LeaveSave:
		id, err := p.Save(ctx)
		if err != nil {
			return false, err
		}
		if !id.HasTarget() {
			// Destination prompt dismissed.
			return false, nil
		}
		p.NewProject()
		return true, nil
	default:
		return false, fmt.Errorf("pipeline: leave: unknown choice %q", choice)
	}
}

// FileChanged is called by the designs directory watcher. When the open
// design's file was changed by someone else, or removed, the user is told;
// nothing is reloaded.
func (p *Pipeline) FileChanged(kind, rel, sum string) {
	if p.files == nil {
		return
	}
	if p.state.Identity() != models.FileHandle(rel) {
		return
	}
	if kind != watch.Removed && !p.files.ChangedExternally(rel, sum) {
		return
	}
	p.logger.Info("pipeline: open file changed on disk", slog.String("path", rel), slog.String("kind", kind))
	p.notify(EventFileChanged, map[string]string{"path": rel, "kind": kind})
}

// WithSaveLock runs fn while no save is writing, so fn can rewrite a stored
// design without losing a concurrent save.
func (p *Pipeline) WithSaveLock(fn func() error) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	return fn()
}

// DesignMoved keeps the open design's folder in step with a library move.
func (p *Pipeline) DesignMoved(id string, folderID *string) {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.state.LoadInFlight() || p.state.Identity() != models.ServerID(id) {
		return
	}
	p.state.SetFolder(folderID)
}
