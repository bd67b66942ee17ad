package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/starford/mailwright/internal/apperr"
)

// Memory is an in-process Store used for tests and the "memory" driver.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]Document
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]Document{}}
}

func (m *Memory) Collection(name string) Collection { return &memCollection{m: m, name: name} }

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

type memCollection struct {
	m    *Memory
	name string
}

func (c *memCollection) Save(_ context.Context, doc Document) error {
	doc = stamp(doc)
	doc.Data = slices.Clone(doc.Data)
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	coll := c.m.data[c.name]
	if coll == nil {
		coll = map[string]Document{}
		c.m.data[c.name] = coll
	}
	coll[doc.ID] = doc
	return nil
}

func (c *memCollection) Get(_ context.Context, id string) (Document, error) {
	c.m.mu.RLock()
	doc, ok := c.m.data[c.name][id]
	c.m.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	return clone(doc), nil
}

func (c *memCollection) List(_ context.Context, f Filter) ([]Document, error) {
	c.m.mu.RLock()
	out := make([]Document, 0, len(c.m.data[c.name]))
	for _, d := range c.m.data[c.name] {
		out = append(out, clone(d))
	}
	c.m.mu.RUnlock()
	return f.apply(out), nil
}

func (c *memCollection) Delete(_ context.Context, id string) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if _, ok := c.m.data[c.name][id]; !ok {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	delete(c.m.data[c.name], id)
	return nil
}

func clone(d Document) Document {
	d.Data = slices.Clone(d.Data)
	d.Labels = maps.Clone(d.Labels)
	return d
}
