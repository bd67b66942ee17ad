package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/starford/mailwright/internal/apperr"
)

// Firestore is a Store over Cloud Firestore. Each collection maps to a
// top-level Firestore collection named {prefix}{name}.
type Firestore struct {
	client *firestore.Client
	prefix string
}

// OpenFirestore initializes the Firebase Admin SDK for projectID and returns
// a Store over its Firestore client. credentialsPath may be empty to use
// application default credentials.
func OpenFirestore(ctx context.Context, projectID, credentialsPath, prefix string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: firestore client: %w", err)
	}
	return &Firestore{client: client, prefix: prefix}, nil
}

func (s *Firestore) Collection(name string) Collection {
	return &firestoreCollection{ref: s.client.Collection(s.prefix + name), name: name}
}

// Ping reads a sentinel document; NotFound still proves the backend answers.
func (s *Firestore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.prefix + "_health").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (s *Firestore) Close() error { return s.client.Close() }

type firestoreCollection struct {
	ref  *firestore.CollectionRef
	name string
}

func (c *firestoreCollection) Save(ctx context.Context, doc Document) error {
	doc = stamp(doc)
	labels := doc.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	_, err := c.ref.Doc(doc.ID).Set(ctx, map[string]any{
		"data":      string(doc.Data),
		"labels":    labels,
		"updatedAt": doc.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("store: save %s/%s: %w", c.name, doc.ID, err)
	}
	return nil
}

func (c *firestoreCollection) Get(ctx context.Context, id string) (Document, error) {
	snap, err := c.ref.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, err)
	}
	return fromSnapshot(snap), nil
}

// List pushes the time bound and ordering to Firestore. Label matching runs
// client side to avoid composite indexes, so the limit only goes to the
// query when no labels are requested.
func (c *firestoreCollection) List(ctx context.Context, f Filter) ([]Document, error) {
	q := c.ref.Query
	if !f.Since.IsZero() {
		q = q.Where("updatedAt", ">=", f.Since)
	}
	q = q.OrderBy("updatedAt", firestore.Desc)
	if f.Limit > 0 && len(f.Labels) == 0 {
		q = q.Limit(f.Limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.name, err)
	}
	out := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, fromSnapshot(snap))
	}
	return f.apply(out), nil
}

func (c *firestoreCollection) Delete(ctx context.Context, id string) error {
	_, err := c.ref.Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) Document {
	raw := snap.Data()
	doc := Document{ID: snap.Ref.ID}
	if s, ok := raw["data"].(string); ok {
		doc.Data = []byte(s)
	}
	if ts, ok := raw["updatedAt"].(time.Time); ok {
		doc.UpdatedAt = ts.UTC()
	}
	if m, ok := raw["labels"].(map[string]any); ok && len(m) > 0 {
		doc.Labels = make(map[string]string, len(m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				doc.Labels[k] = s
			}
		}
	}
	return doc
}
