// Package store is the document persistence layer: named collections of
// JSON documents behind interchangeable backends.
package store

import (
	"context"
	"encoding/json"
	"maps"
	"sort"
	"time"
)

// Collection names.
const (
	Designs  = "designs"
	Folders  = "folders"
	Exports  = "exports"
	Feedback = "feedback"
	Shares   = "shares"
	Metadata = "metadata"
	Drafts   = "drafts"
)

// Document is one stored JSON value. Labels are indexed string attributes
// usable in Filter.
type Document struct {
	ID        string
	Data      json.RawMessage
	Labels    map[string]string
	UpdatedAt time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Labels map[string]string
	Since  time.Time
	Limit  int
}

// Collection is a set of documents keyed by id. Get and Delete wrap
// apperr.ErrNotFound for unknown ids. List returns newest first.
type Collection interface {
	Save(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)
	Delete(ctx context.Context, id string) error
}

// Store hands out collections backed by one connection.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close() error
}

// Match reports whether doc passes the label and time parts of f.
func (f Filter) Match(doc Document) bool {
	if !f.Since.IsZero() && doc.UpdatedAt.Before(f.Since) {
		return false
	}
	for k, v := range f.Labels {
		if doc.Labels[k] != v {
			return false
		}
	}
	return true
}

// apply filters, sorts newest first, and truncates to the limit.
func (f Filter) apply(docs []Document) []Document {
	out := docs[:0]
	for _, d := range docs {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func stamp(doc Document) Document {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	doc.Labels = maps.Clone(doc.Labels)
	return doc
}

// PutJSON marshals v and saves it under id.
func PutJSON(ctx context.Context, c Collection, id string, v any, labels map[string]string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Save(ctx, Document{ID: id, Data: data, Labels: labels})
}

// GetJSON loads id and unmarshals it into v.
func GetJSON(ctx context.Context, c Collection, id string, v any) error {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(doc.Data, v)
}
