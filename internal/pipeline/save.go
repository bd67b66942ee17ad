package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/session"
	"github.com/starford/mailwright/internal/store"
)

type saveMode int

const (
	modeSave saveMode = iota
	modeSaveAs
	modeAuto
)

func (m saveMode) String() string {
	switch m {
	case modeSaveAs:
		return "save_as"
	case modeAuto:
		return "auto_save"
	default:
		return "save"
	}
}

// errSkipped marks an auto-save attempt that had nothing to do.
var errSkipped = errors.New("skipped")

// Save writes the design to its current target, prompting for one when the
// design has none. It returns the identity written to. A dismissed prompt
// returns the zero identity and a nil error with nothing changed.
func (p *Pipeline) Save(ctx context.Context) (models.Identity, error) {
	id, err := p.save(ctx, modeSave, models.Identity{})
	if err != nil {
		p.surface(modeSave.String(), err)
	}
	return id, err
}

// SaveAs writes the design to target and repoints the identity there. A
// zero target prompts for a destination.
func (p *Pipeline) SaveAs(ctx context.Context, target models.Identity) (models.Identity, error) {
	id, err := p.save(ctx, modeSaveAs, target)
	if err != nil {
		p.surface(modeSaveAs.String(), err)
	}
	return id, err
}

// AutoSave is called by the scheduler on every tick. It writes only when
// the design is dirty and has a target. Failures are logged and swallowed.
func (p *Pipeline) AutoSave(ctx context.Context) error {
	if p.state.LoadInFlight() || !p.state.Dirty() || !p.state.Identity().HasTarget() {
		return nil
	}
	_, err := p.save(ctx, modeAuto, models.Identity{})
	switch {
	case err == nil:
	case errors.Is(err, errSkipped):
		p.logger.Debug("pipeline: auto-save skipped", slog.String("reason", err.Error()))
	default:
		p.logger.Warn("pipeline: auto-save failed", slog.String("error", err.Error()))
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, mode saveMode, explicit models.Identity) (models.Identity, error) {
	id, arm, err := p.write(ctx, mode, explicit)
	if err != nil || !id.HasTarget() {
		return id, err
	}
	if arm != nil {
		p.armAutoSave(*arm)
	}
	p.rememberLastOpened(id)
	p.notify(EventDesignSaved, map[string]any{"identity": id})
	p.changed()
	return id, nil
}

// write does the save under saveMu. A non-nil arm is the generation the
// caller must arm the scheduler for.
func (p *Pipeline) write(ctx context.Context, mode saveMode, explicit models.Identity) (models.Identity, *uint64, error) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	snap := p.state.Snapshot()
	if snap.LoadInFlight {
		if mode == modeAuto {
			return models.Identity{}, nil, fmt.Errorf("%w: load in flight", errSkipped)
		}
		return models.Identity{}, nil, fmt.Errorf("pipeline: %s: %w", mode, apperr.ErrConcurrentLoad)
	}
	tmpl, err := p.catalog.Get(snap.TemplateKey)
	if err != nil {
		if mode == modeAuto {
			return models.Identity{}, nil, fmt.Errorf("%w: no template", errSkipped)
		}
		return models.Identity{}, nil, fmt.Errorf("%w: select a template first", apperr.ErrValidation)
	}
	gen := p.generation()

	fields, images := tmpl.Declared(snap.Fields, snap.Images)
	if err := tmpl.Validate(fields, images, false); err != nil {
		if mode == modeAuto {
			return models.Identity{}, nil, fmt.Errorf("%w: %v", errSkipped, err)
		}
		return models.Identity{}, nil, fmt.Errorf("pipeline: %s: %w", mode, err)
	}

	d := snap.Design()
	d.FieldValues = fields
	d.ImageSlots = images

	target, err := p.target(ctx, mode, snap.Identity, explicit, d)
	if err != nil {
		return models.Identity{}, nil, err
	}
	if !target.HasTarget() {
		return models.Identity{}, nil, nil
	}

	now := p.now()
	d.SavedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.Status == "" {
		d.Status = models.StatusDraft
	}
	d.ID = ""
	if target.Kind == models.IdentityServer {
		d.ID = target.Value
	}

	if err := p.put(ctx, target, d); err != nil {
		return models.Identity{}, nil, fmt.Errorf("pipeline: %s %s: %w", mode, target, err)
	}

	p.loadMu.Lock()
	if gen != p.gen {
		// A load or reset replaced the session while writing; the write
		// stands but the new session is left alone.
		p.loadMu.Unlock()
		p.logger.Info("pipeline: save finished after session changed", slog.String("target", target.String()))
		return target, nil, nil
	}
	if p.state.Identity() != target {
		p.state.SetIdentity(target)
	}
	p.state.SetCreatedAt(d.CreatedAt)
	cleared := p.state.MarkSaved(snap.EditSeq)
	p.loadMu.Unlock()

	p.logger.Info("pipeline: saved",
		slog.String("mode", mode.String()),
		slog.String("target", target.String()),
		slog.Bool("clean", cleared),
	)
	if mode == modeAuto || p.scheduler.Running() {
		return target, nil, nil
	}
	return target, &gen, nil
}

// target resolves where a save goes. It returns the zero identity when the
// user dismissed the destination prompt.
func (p *Pipeline) target(ctx context.Context, mode saveMode, current, explicit models.Identity, d models.Design) (models.Identity, error) {
	switch {
	case mode == modeSaveAs && explicit.Kind != models.IdentityNone:
		return p.assign(explicit), nil
	case mode != modeSaveAs && current.HasTarget():
		return current, nil
	case mode == modeAuto:
		return models.Identity{}, fmt.Errorf("%w: no save target", errSkipped)
	}

	if p.prompter == nil {
		return models.Identity{}, fmt.Errorf("pipeline: %s: no destination: %w", mode, apperr.ErrIO)
	}
	id, err := p.prompter.PromptDestination(ctx, d)
	if errors.Is(err, apperr.ErrCancelled) {
		p.logger.Info("pipeline: destination prompt dismissed", slog.String("mode", mode.String()))
		return models.Identity{}, nil
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("pipeline: %s: prompt: %w", mode, apperr.IO(err))
	}
	if id.Kind == models.IdentityNone {
		return models.Identity{}, nil
	}
	return p.assign(id), nil
}

// assign gives a new remote design its id and cleans file handles.
func (p *Pipeline) assign(id models.Identity) models.Identity {
	switch {
	case id.Kind == models.IdentityServer && id.Value == "":
		return models.ServerID(p.newID())
	case id.Kind == models.IdentityFile && id.Value != "":
		return models.FileHandle(designfile.Normalize(id.Value))
	}
	return id
}

func (p *Pipeline) put(ctx context.Context, target models.Identity, d models.Design) error {
	switch target.Kind {
	case models.IdentityServer:
		if _, err := codec.Marshal(d, p.maxBytes); err != nil {
			return err
		}
		return apperr.Store(store.PutJSON(ctx, p.designs, target.Value, d, d.Labels()))
	case models.IdentityFile:
		if p.files == nil {
			return errNoDesignsDir
		}
		return apperr.IO(p.files.Save(target.Value, d, d.SavedAt))
	case models.IdentityLocal:
		if _, err := codec.Marshal(d, p.maxBytes); err != nil {
			return err
		}
		return apperr.Store(store.PutJSON(ctx, p.drafts, target.Value, d, d.Labels()))
	default:
		return fmt.Errorf("%w: unknown target kind %q", apperr.ErrIO, target.Kind)
	}
}

// snapshotContent returns the live content with undeclared keys dropped.
func (p *Pipeline) snapshotContent() (session.Snapshot, error) {
	snap := p.state.Snapshot()
	if snap.LoadInFlight {
		return snap, apperr.ErrConcurrentLoad
	}
	tmpl, err := p.catalog.Get(snap.TemplateKey)
	if err != nil {
		return snap, fmt.Errorf("%w: select a template first", apperr.ErrValidation)
	}
	snap.Fields, snap.Images = tmpl.Declared(snap.Fields, snap.Images)
	return snap, nil
}
