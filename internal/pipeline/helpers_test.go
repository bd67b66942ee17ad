package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/store"
	"github.com/starford/mailwright/internal/testutil"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// hookColl counts writes and lets a test hold a Get or Save open.
type hookColl struct {
	store.Collection

	mu         sync.Mutex
	saves      int
	beforeGet  func(id string) error
	beforeSave func(id string) error
}

func (c *hookColl) Get(ctx context.Context, id string) (store.Document, error) {
	c.mu.Lock()
	hook := c.beforeGet
	c.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return store.Document{}, err
		}
	}
	return c.Collection.Get(ctx, id)
}

func (c *hookColl) Save(ctx context.Context, doc store.Document) error {
	c.mu.Lock()
	hook := c.beforeSave
	c.mu.Unlock()
	if hook != nil {
		if err := hook(doc.ID); err != nil {
			return err
		}
	}
	if err := c.Collection.Save(ctx, doc); err != nil {
		return err
	}
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return nil
}

func (c *hookColl) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func (c *hookColl) onGet(f func(id string) error) {
	c.mu.Lock()
	c.beforeGet = f
	c.mu.Unlock()
}

func (c *hookColl) onSave(f func(id string) error) {
	c.mu.Lock()
	c.beforeSave = f
	c.mu.Unlock()
}

type hookStore struct {
	*store.Memory

	mu    sync.Mutex
	colls map[string]*hookColl
}

func newHookStore() *hookStore {
	return &hookStore{Memory: store.NewMemory(), colls: map[string]*hookColl{}}
}

func (s *hookStore) Collection(name string) store.Collection {
	return s.coll(name)
}

func (s *hookStore) coll(name string) *hookColl {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		c = &hookColl{Collection: s.Memory.Collection(name)}
		s.colls[name] = c
	}
	return c
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Notify(kind string, _ any) {
	r.mu.Lock()
	r.events = append(r.events, kind)
	r.mu.Unlock()
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == kind {
			n++
		}
	}
	return n
}

type fakePrompter struct {
	mu    sync.Mutex
	id    models.Identity
	err   error
	calls int
}

func (f *fakePrompter) PromptDestination(context.Context, models.Design) (models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.id, f.err
}

// fakeBlob records uploads. When gate is set Upload signals started and
// waits for the gate to close.
type fakeBlob struct {
	mu      sync.Mutex
	uploads map[string]int
	deleted []string
	started chan struct{}
	gate    chan struct{}
}

func (b *fakeBlob) Upload(_ context.Context, name string, data []byte, _ string) (string, error) {
	if b.gate != nil {
		close(b.started)
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploads == nil {
		b.uploads = map[string]int{}
	}
	b.uploads[name] = len(data)
	return "https://cdn.example.com/" + name, nil
}

func (b *fakeBlob) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, name)
	return nil
}

type env struct {
	p      *Pipeline
	store  *hookStore
	dir    string
	files  *designfile.Files
	blob   *fakeBlob
	events *recorder
	prompt *fakePrompter
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	e := &env{
		store:  newHookStore(),
		blob:   &fakeBlob{},
		events: &recorder{},
		prompt: &fakePrompter{err: apperr.ErrCancelled},
	}
	e.dir, e.files = testutil.Designs(t)

	var seq atomic.Int64
	base := []Option{
		WithNotifier(e.events),
		WithPrompter(e.prompt),
		WithAutoSaveInterval(time.Hour),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}
	e.p = New(Deps{
		Catalog: testutil.Catalog(t),
		Store:   e.store,
		Files:   e.files,
		Images:  e.blob,
	}, append(base, opts...)...)
	t.Cleanup(e.p.Close)
	return e
}

func (e *env) designs() *hookColl { return e.store.coll(store.Designs) }

// seed stores a webinar design under id.
func (e *env) seed(t *testing.T, id string, fields map[string]string) {
	t.Helper()
	d := models.Design{
		ID:          id,
		ProjectName: "Project " + id,
		TemplateKey: "webinar-invite",
		FieldValues: fields,
		ImageSlots:  map[string]string{},
		SavedAt:     fixedNow.Add(-time.Hour),
	}
	require.NoError(t, store.PutJSON(context.Background(), e.store.Memory.Collection(store.Designs), id, d, nil))
}

func (e *env) stored(t *testing.T, id string) models.Design {
	t.Helper()
	var d models.Design
	require.NoError(t, store.GetJSON(context.Background(), e.store.Memory.Collection(store.Designs), id, &d))
	return d
}

// blockGet holds Get of id in the designs collection until the returned
// release func runs. Cleanup releases it too.
func (e *env) blockGet(t *testing.T, id string) func() {
	t.Helper()
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	prev := e.designs().beforeGet
	e.designs().onGet(func(got string) error {
		if got == id {
			<-gate
		}
		if prev != nil {
			return prev(got)
		}
		return nil
	})
	t.Cleanup(release)
	return release
}

// loadAsync starts LoadDesign and waits until the blackout is raised.
func (e *env) loadAsync(t *testing.T, id string) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- e.p.LoadDesign(context.Background(), id) }()
	require.Eventually(t, func() bool { return e.p.Snapshot().LoadInFlight }, time.Second, time.Millisecond)
	return errc
}

func completeWebinar() map[string]string {
	return map[string]string{
		"eyebrow":  "Webinar",
		"headline": "Scaling Postgres",
		"date":     "Thursday, 10:00 AM PT",
		"cta":      "Register today",
		"cta_url":  "https://example.com/register",
	}
}
