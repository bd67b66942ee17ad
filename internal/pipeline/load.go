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

var errNoDesignsDir = fmt.Errorf("%w: no designs directory configured", apperr.ErrIO)

type fetchFunc func(ctx context.Context) (session.Content, error)

type fetchResult struct {
	content session.Content
	err     error
}

// LoadDesign loads a design from the remote store.
func (p *Pipeline) LoadDesign(ctx context.Context, id string) error {
	return p.load(ctx, "load_design", models.ServerID(id), func(ctx context.Context) (session.Content, error) {
		var d models.Design
		if err := store.GetJSON(ctx, p.designs, id, &d); err != nil {
			return session.Content{}, apperr.Store(err)
		}
		return contentOf(d), nil
	})
}

// LoadFile opens a local design file by handle.
func (p *Pipeline) LoadFile(ctx context.Context, handle string) error {
	handle = designfile.Normalize(handle)
	return p.load(ctx, "load_file", models.FileHandle(handle), func(context.Context) (session.Content, error) {
		if p.files == nil {
			return session.Content{}, errNoDesignsDir
		}
		d, err := p.files.Open(handle)
		if err != nil {
			return session.Content{}, apperr.IO(err)
		}
		return contentOf(d), nil
	})
}

// LoadLocal loads a draft kept in local storage.
func (p *Pipeline) LoadLocal(ctx context.Context, key string) error {
	return p.load(ctx, "load_local", models.LocalKey(key), func(ctx context.Context) (session.Content, error) {
		var d models.Design
		if err := store.GetJSON(ctx, p.drafts, key, &d); err != nil {
			return session.Content{}, apperr.Store(err)
		}
		return contentOf(d), nil
	})
}

// LoadShare opens a share link: an opaque snapshot id, a legacy inline
// payload, or a URL carrying either. Shared designs have no save target.
func (p *Pipeline) LoadShare(ctx context.Context, address string) error {
	addr, err := codec.ParseShareAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}
	return p.load(ctx, "load_share", models.Identity{}, func(ctx context.Context) (session.Content, error) {
		snap := addr.Payload
		if snap == nil {
			snap = &models.ShareSnapshot{}
			if err := store.GetJSON(ctx, p.shares, addr.ID, snap); err != nil {
				return session.Content{}, apperr.Store(err)
			}
		}
		return session.Content{
			TemplateKey:       snap.TemplateKey,
			ProjectName:       snap.ProjectName,
			CreativeDirection: snap.CreativeDirection,
			Fields:            snap.FieldValues,
			Images:            snap.ImageSlots,
		}, nil
	})
}

// Resume reopens the design recorded as last opened.
func (p *Pipeline) Resume(ctx context.Context) error {
	var last models.LastOpened
	if err := store.GetJSON(ctx, p.metadata, lastOpenedKey, &last); err != nil {
		return apperr.Store(err)
	}
	switch last.Identity.Kind {
	case models.IdentityServer:
		return p.LoadDesign(ctx, last.Identity.Value)
	case models.IdentityFile:
		return p.LoadFile(ctx, last.Identity.Value)
	case models.IdentityLocal:
		return p.LoadLocal(ctx, last.Identity.Value)
	default:
		return fmt.Errorf("pipeline: resume: %w", apperr.ErrNotFound)
	}
}

// load runs one load through the blackout window:
//
//	stop auto-save -> reset before load -> fetch (bounded) -> commit or restore
//
// Only the newest generation commits; older ones return ErrConcurrentLoad.
func (p *Pipeline) load(ctx context.Context, op string, target models.Identity, fetch fetchFunc) error {
	var gen uint64
	p.disarm(func() {
		p.gen++
		p.epoch++
		gen = p.gen
		if p.chain == nil {
			m := p.state.Capture()
			p.chain = &m
		}
		p.state.ResetBeforeLoad(target)
	})

	p.logger.Info("pipeline: load started", slog.String("op", op), slog.String("target", target.String()))
	p.changed()

	content, err := p.fetchBounded(ctx, fetch)
	if err == nil {
		err = p.checkTemplate(content.TemplateKey)
	}
	return p.finishLoad(op, gen, target, content, err)
}

// fetchBounded returns when fetch does or when the load timeout expires,
// whichever comes first, so a hung backend cannot hold the blackout open.
func (p *Pipeline) fetchBounded(ctx context.Context, fetch fetchFunc) (session.Content, error) {
	lctx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		c, err := fetch(lctx)
		ch <- fetchResult{content: c, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return session.Content{}, fmt.Errorf("%w: %v", apperr.ErrLoadTimeout, r.err)
		}
		return r.content, r.err
	case <-lctx.Done():
		if ctx.Err() != nil {
			return session.Content{}, ctx.Err()
		}
		return session.Content{}, fmt.Errorf("%w after %s", apperr.ErrLoadTimeout, p.loadTimeout)
	}
}

func (p *Pipeline) checkTemplate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: design has no template", apperr.ErrValidation)
	}
	if _, err := p.catalog.Get(key); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) finishLoad(op string, gen uint64, target models.Identity, content session.Content, err error) error {
	p.loadMu.Lock()
	if gen != p.gen {
		p.loadMu.Unlock()
		p.logger.Info("pipeline: load superseded", slog.String("op", op), slog.String("target", target.String()))
		return fmt.Errorf("pipeline: %s %s: %w", op, target, apperr.ErrConcurrentLoad)
	}

	if err != nil {
		prev := *p.chain
		p.chain = nil
		p.state.Restore(prev)
		restored := p.state.Identity()
		p.loadMu.Unlock()

		if restored.HasTarget() {
			p.armAutoSave(gen)
		}
		p.surface(op, err)
		p.changed()
		return err
	}

	p.state.CommitLoadedState(content)
	p.chain = nil
	p.loadMu.Unlock()

	if target.HasTarget() {
		p.armAutoSave(gen)
		p.rememberLastOpened(target)
	}
	p.logger.Info("pipeline: load committed", slog.String("op", op), slog.String("target", target.String()))
	p.notify(EventDesignLoaded, map[string]any{"identity": target, "templateKey": content.TemplateKey})
	p.changed()
	return nil
}

// rememberLastOpened records target for Resume. Failures only get logged.
func (p *Pipeline) rememberLastOpened(target models.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), p.loadTimeout)
	defer cancel()
	last := models.LastOpened{Identity: target, At: p.now()}
	if err := store.PutJSON(ctx, p.metadata, lastOpenedKey, last, nil); err != nil {
		p.logger.Warn("pipeline: record last opened failed", slog.String("error", err.Error()))
	}
}

func contentOf(d models.Design) session.Content {
	return session.Content{
		TemplateKey:       d.TemplateKey,
		ProjectName:       d.ProjectName,
		CreativeDirection: d.CreativeDirection,
		FolderID:          d.FolderID,
		CreatedAt:         d.CreatedAt,
		Fields:            d.FieldValues,
		Images:            d.ImageSlots,
	}
}
