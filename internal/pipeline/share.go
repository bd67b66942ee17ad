package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/preview"
	"github.com/starford/mailwright/internal/session"
	"github.com/starford/mailwright/internal/store"
)

// Preview returns the on-screen HTML for the current state. Between a reset
// and the next commit it returns the neutral placeholder.
func (p *Pipeline) Preview() (string, error) {
	if html, ok := p.state.CachedPreview(); ok {
		return html, nil
	}
	snap := p.state.Snapshot()
	if snap.TemplateKey == "" {
		return session.PlaceholderHTML, nil
	}
	tmpl, err := p.catalog.Get(snap.TemplateKey)
	if err != nil {
		return "", err
	}
	html, err := p.screen.Render(input(tmpl, snap))
	if err != nil {
		return "", fmt.Errorf("pipeline: preview: %w", err)
	}
	p.state.StorePreview(snap.Revision, html)
	return html, nil
}

// Export renders the design without hints and records it. Every required
// field must be filled in.
func (p *Pipeline) Export(ctx context.Context) (models.Export, error) {
	e, err := p.export(ctx)
	if err != nil {
		p.surface("export", err)
	}
	return e, err
}

func (p *Pipeline) export(ctx context.Context) (models.Export, error) {
	snap, tmpl, err := p.complete("export")
	if err != nil {
		return models.Export{}, err
	}
	html, err := p.exporter.Render(input(tmpl, snap))
	if err != nil {
		return models.Export{}, fmt.Errorf("pipeline: export: %w", err)
	}

	e := models.Export{
		ID:          p.newID(),
		TemplateKey: snap.TemplateKey,
		ProjectName: snap.ProjectName,
		HTML:        html,
		Status:      models.StatusReady,
		CreatedAt:   p.now(),
	}
	labels := map[string]string{"templateKey": e.TemplateKey}
	if snap.Identity.Kind == models.IdentityServer {
		e.DesignID = snap.Identity.Value
		labels["design"] = e.DesignID
	}
	if _, err := codec.Marshal(e, p.maxBytes); err != nil {
		return models.Export{}, fmt.Errorf("pipeline: export: %w", err)
	}
	if err := store.PutJSON(ctx, p.exports, e.ID, e, labels); err != nil {
		return models.Export{}, fmt.Errorf("pipeline: export: %w", apperr.Store(err))
	}

	p.logger.Info("pipeline: exported", slog.String("export", e.ID), slog.String("template", e.TemplateKey))
	p.notify(EventDesignExported, map[string]any{"id": e.ID, "designId": e.DesignID})
	return e, nil
}

// CreateShare stores an immutable snapshot of the design and returns its id.
func (p *Pipeline) CreateShare(ctx context.Context) (string, error) {
	id, err := p.createShare(ctx)
	if err != nil {
		p.surface("share", err)
	}
	return id, err
}

func (p *Pipeline) createShare(ctx context.Context) (string, error) {
	snap, _, err := p.complete("share")
	if err != nil {
		return "", err
	}
	s := models.ShareSnapshot{
		TemplateKey:       snap.TemplateKey,
		FieldValues:       snap.Fields,
		ImageSlots:        snap.Images,
		ProjectName:       snap.ProjectName,
		CreativeDirection: snap.CreativeDirection,
		CreatedAt:         p.now().UnixMilli(),
		SchemaVersion:     models.ShareSchemaVersion,
	}
	if _, err := codec.Marshal(s, p.maxBytes); err != nil {
		return "", fmt.Errorf("pipeline: share: %w", err)
	}
	id := p.newID()
	if err := store.PutJSON(ctx, p.shares, id, s, map[string]string{"templateKey": s.TemplateKey}); err != nil {
		return "", fmt.Errorf("pipeline: share: %w", apperr.Store(err))
	}

	p.logger.Info("pipeline: share created", slog.String("share", id))
	p.notify(EventShareCreated, map[string]any{"id": id})
	return id, nil
}

// Share returns a stored share snapshot without touching the session.
func (p *Pipeline) Share(ctx context.Context, id string) (models.ShareSnapshot, error) {
	var s models.ShareSnapshot
	if err := store.GetJSON(ctx, p.shares, id, &s); err != nil {
		return models.ShareSnapshot{}, fmt.Errorf("pipeline: share %s: %w", id, apperr.Store(err))
	}
	return s, nil
}

// complete returns a declared-only snapshot that passes full validation.
func (p *Pipeline) complete(op string) (session.Snapshot, *catalog.Template, error) {
	snap, err := p.snapshotContent()
	if err != nil {
		return snap, nil, fmt.Errorf("pipeline: %s: %w", op, err)
	}
	tmpl, err := p.catalog.Get(snap.TemplateKey)
	if err != nil {
		return snap, nil, err
	}
	if err := tmpl.Validate(snap.Fields, snap.Images, true); err != nil {
		return snap, nil, fmt.Errorf("pipeline: %s: %w", op, err)
	}
	return snap, tmpl, nil
}

func input(tmpl *catalog.Template, snap session.Snapshot) preview.Input {
	return preview.Input{
		Template:          tmpl,
		Fields:            snap.Fields,
		Images:            snap.Images,
		ProjectName:       snap.ProjectName,
		CreativeDirection: snap.CreativeDirection,
	}
}
