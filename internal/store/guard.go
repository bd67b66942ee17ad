package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/codec"
)

// WithSizeLimit rejects saves whose data exceeds limit bytes before they
// reach the backend. The error matches apperr.ErrPayloadTooLarge.
func WithSizeLimit(s Store, limit int) Store {
	return &sizeLimited{Store: s, limit: limit}
}

type sizeLimited struct {
	Store
	limit int
}

func (s *sizeLimited) Collection(name string) Collection {
	return &sizeLimitedCollection{Collection: s.Store.Collection(name), limit: s.limit}
}

type sizeLimitedCollection struct {
	Collection
	limit int
}

func (c *sizeLimitedCollection) Save(ctx context.Context, doc Document) error {
	if err := codec.CheckSize(doc.Data, c.limit); err != nil {
		return fmt.Errorf("store: save %s: %w", doc.ID, err)
	}
	return c.Collection.Save(ctx, doc)
}

// pingInterval is the delay between readiness probes.
var pingInterval = 250 * time.Millisecond

// WithReadiness makes every operation wait until the backend has answered
// a Ping once. Callers queue behind a single probe loop bounded by timeout;
// if it expires they get apperr.ErrStoreUnavailable and the next caller
// starts a fresh wait.
func WithReadiness(s Store, timeout time.Duration) Store {
	return &gated{Store: s, timeout: timeout}
}

type gated struct {
	Store
	timeout time.Duration
	mu      sync.Mutex
	ready   atomic.Bool
}

func (g *gated) wait(ctx context.Context) error {
	if g.ready.Load() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready.Load() {
		return nil
	}

	wctx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	for {
		err := g.Store.Ping(wctx)
		if err == nil {
			g.ready.Store(true)
			return nil
		}
		select {
		case <-wctx.Done():
			return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		case <-time.After(pingInterval):
		}
	}
}

func (g *gated) Collection(name string) Collection {
	return &gatedCollection{g: g, inner: g.Store.Collection(name)}
}

type gatedCollection struct {
	g     *gated
	inner Collection
}

func (c *gatedCollection) Save(ctx context.Context, doc Document) error {
	if err := c.g.wait(ctx); err != nil {
		return err
	}
	return c.inner.Save(ctx, doc)
}

func (c *gatedCollection) Get(ctx context.Context, id string) (Document, error) {
	if err := c.g.wait(ctx); err != nil {
		return Document{}, err
	}
	return c.inner.Get(ctx, id)
}

func (c *gatedCollection) List(ctx context.Context, f Filter) ([]Document, error) {
	if err := c.g.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.List(ctx, f)
}

func (c *gatedCollection) Delete(ctx context.Context, id string) error {
	if err := c.g.wait(ctx); err != nil {
		return err
	}
	return c.inner.Delete(ctx, id)
}
