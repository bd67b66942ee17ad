package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/imagesrc"
	"github.com/starford/mailwright/internal/session"
)

// SetField stores a plain field value.
func (p *Pipeline) SetField(key, value string) (session.Outcome, error) {
	return p.mutateField(session.SetField, key, value)
}

// SetRichText stores an HTML fragment for a rich text field.
func (p *Pipeline) SetRichText(key, html string) (session.Outcome, error) {
	return p.mutateField(session.SetRichText, key, html)
}

// SetCreativeDirection stores the creative direction note.
func (p *Pipeline) SetCreativeDirection(text string) (session.Outcome, error) {
	return p.apply(session.Mutation{Op: session.SetCreativeDirection, Value: text}), nil
}

// SetProjectName renames the design.
func (p *Pipeline) SetProjectName(name string) (session.Outcome, error) {
	return p.apply(session.Mutation{Op: session.SetProjectName, Value: name}), nil
}

// SetImageURL points slot at an already hosted image.
func (p *Pipeline) SetImageURL(slot, url string) (session.Outcome, error) {
	if p.state.LoadInFlight() {
		return session.DiscardedLoading, nil
	}
	if err := p.checkSlot(slot); err != nil {
		return session.DiscardedInvalid, err
	}
	return p.apply(session.Mutation{Op: session.SetImage, Key: slot, Value: url}), nil
}

// RemoveImage empties slot.
func (p *Pipeline) RemoveImage(slot string) (session.Outcome, error) {
	if p.state.LoadInFlight() {
		return session.DiscardedLoading, nil
	}
	if err := p.checkSlot(slot); err != nil {
		return session.DiscardedInvalid, err
	}
	return p.apply(session.Mutation{Op: session.RemoveImage, Key: slot}), nil
}

// UploadImage stores data in the blob store and points slot at it.
func (p *Pipeline) UploadImage(ctx context.Context, slot string, data []byte, filename string) (session.Outcome, error) {
	return p.placeImage(ctx, slot, func(context.Context) (imagesrc.Image, error) {
		return p.loader.Prepare(data, filename)
	})
}

// DropImage is UploadImage for a file dropped onto a slot; the filename
// decides the extension check.
func (p *Pipeline) DropImage(ctx context.Context, slot, filename string, data []byte) (session.Outcome, error) {
	if filename == "" {
		return session.DiscardedInvalid, fmt.Errorf("%w: dropped file has no name", apperr.ErrValidation)
	}
	return p.UploadImage(ctx, slot, data, filename)
}

// PasteImage resolves a pasted data URI or remote URL, re-hosts it and
// points slot at it.
func (p *Pipeline) PasteImage(ctx context.Context, slot, src string) (session.Outcome, error) {
	return p.placeImage(ctx, slot, func(ctx context.Context) (imagesrc.Image, error) {
		return p.loader.Resolve(ctx, src, "")
	})
}

// placeImage guards the edit twice: before the upload starts and again when
// applying. An upload that finishes after the session was replaced (a load,
// a new project or a template switch) is discarded and its blob removed.
func (p *Pipeline) placeImage(ctx context.Context, slot string, get func(context.Context) (imagesrc.Image, error)) (session.Outcome, error) {
	p.loadMu.Lock()
	epoch, loading := p.epoch, p.state.LoadInFlight()
	p.loadMu.Unlock()
	if loading {
		return session.DiscardedLoading, nil
	}
	if err := p.checkSlot(slot); err != nil {
		return session.DiscardedInvalid, err
	}
	if p.images == nil {
		return session.DiscardedInvalid, fmt.Errorf("pipeline: upload image: %w: no image store configured", apperr.ErrIO)
	}

	img, err := get(ctx)
	if err != nil {
		if !apperr.Known(err) {
			err = fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		return session.DiscardedInvalid, fmt.Errorf("pipeline: place image: %w", err)
	}
	name := p.newID() + strings.ToLower(filepath.Ext(img.Filename))
	url, err := p.images.Upload(ctx, name, img.Data, img.ContentType)
	if err != nil {
		err = fmt.Errorf("pipeline: upload image: %w", apperr.Store(err))
		p.surface("upload_image", err)
		return session.DiscardedInvalid, err
	}

	out := p.applySince(epoch, session.Mutation{Op: session.SetImage, Key: slot, Value: url})
	if out != session.Applied {
		if err := p.images.Delete(context.WithoutCancel(ctx), name); err != nil {
			p.logger.Warn("pipeline: remove discarded upload failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	return out, nil
}

func (p *Pipeline) mutateField(op session.Op, key, value string) (session.Outcome, error) {
	tmpl := p.Template()
	if tmpl == nil || p.state.LoadInFlight() {
		return p.apply(session.Mutation{Op: op, Key: key, Value: value}), nil
	}
	f, ok := tmpl.Field(key)
	if !ok || f.IsImage() {
		return session.DiscardedInvalid, fmt.Errorf("%w: unknown field %q", apperr.ErrValidation, key)
	}
	if op == session.SetField && f.Kind == catalog.KindRichText {
		op = session.SetRichText
	}
	return p.apply(session.Mutation{Op: op, Key: key, Value: value}), nil
}

func (p *Pipeline) checkSlot(slot string) error {
	tmpl := p.Template()
	if tmpl == nil {
		return nil
	}
	if !tmpl.DeclaresImage(slot) {
		return fmt.Errorf("%w: unknown image slot %q", apperr.ErrValidation, slot)
	}
	return nil
}

// apply runs m through the session guard and publishes the change.
func (p *Pipeline) apply(m session.Mutation) session.Outcome {
	return p.report(m, p.state.Mutate(m))
}

// applySince is apply for an edit started at epoch. If the session was
// replaced in between, m is discarded as if a load were in flight.
func (p *Pipeline) applySince(epoch uint64, m session.Mutation) session.Outcome {
	p.loadMu.Lock()
	out := session.DiscardedLoading
	if epoch == p.epoch {
		out = p.state.Mutate(m)
	}
	p.loadMu.Unlock()
	return p.report(m, out)
}

func (p *Pipeline) report(m session.Mutation, out session.Outcome) session.Outcome {
	if out == session.Applied {
		p.changed()
	} else {
		p.logger.Debug("pipeline: edit discarded", slog.String("op", m.Op.String()), slog.String("outcome", out.String()))
	}
	return out
}
