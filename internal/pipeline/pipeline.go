// Package pipeline reconciles every design source (new project, template
// switch, stored design, share link, local file, local draft) into the one
// session state, and writes that state back through save, save-as and
// auto-save.
//
// Loads follow a latest-load-wins policy: each load takes a new generation
// number and only the newest generation may commit. A failed or timed-out
// load restores the state that existed before the first load of the chain.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mailwright/internal/autosave"
	"github.com/starford/mailwright/internal/blob"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/imagesrc"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/preview"
	"github.com/starford/mailwright/internal/session"
	"github.com/starford/mailwright/internal/store"
)

// DefaultLoadTimeout bounds a single load.
const DefaultLoadTimeout = 30 * time.Second

// lastOpenedKey is the metadata document pointing at the last opened design.
const lastOpenedKey = "last-design"

// Event kinds published through the Notifier.
const (
	EventSessionChanged = "session.changed"
	EventDesignLoaded   = "design.loaded"
	EventDesignSaved    = "design.saved"
	EventDesignExported = "design.exported"
	EventShareCreated   = "share.created"
	EventFileChanged    = "file.changed"
	EventError          = "error"
)

// DestinationPrompter asks the user where a design without a save target
// should go. Returning an error matching apperr.ErrCancelled means the user
// dismissed the dialog. A server identity with an empty value asks for a
// new remote design.
type DestinationPrompter interface {
	PromptDestination(ctx context.Context, d models.Design) (models.Identity, error)
}

// Notifier receives pipeline events for the presentation layer.
type Notifier interface {
	Notify(kind string, data any)
}

// Deps are the collaborators a Pipeline needs.
type Deps struct {
	Catalog *catalog.Catalog
	// Store holds designs, shares, exports and metadata.
	Store store.Store
	// Drafts is the local-storage collection for local-key designs.
	Drafts store.Collection
	Files  *designfile.Files
	Images blob.Store
	Loader *imagesrc.Loader
}

// Pipeline is the load/save state machine around one session.State.
type Pipeline struct {
	state    *session.State
	catalog  *catalog.Catalog
	designs  store.Collection
	shares   store.Collection
	exports  store.Collection
	metadata store.Collection
	drafts   store.Collection
	files    *designfile.Files
	images   blob.Store
	loader   *imagesrc.Loader

	screen   *preview.Renderer
	exporter *preview.Renderer

	scheduler *autosave.Scheduler
	prompter  DestinationPrompter
	notifier  Notifier
	logger    *slog.Logger

	loadTimeout  time.Duration
	autoInterval time.Duration
	maxBytes     int
	now          func() time.Time
	newID        func() string

	// loadMu guards gen and chain. State transitions that must not race a
	// load commit happen while it is held. Never call scheduler.Stop with
	// it held: an auto-save attempt in progress takes it too.
	loadMu sync.Mutex
	gen    uint64
	chain  *session.Memento
	// epoch changes whenever the session content is replaced wholesale.
	// Edits that wait on I/O apply only if it is unchanged. Guarded by loadMu.
	epoch uint64

	// armMu orders arming the auto-save timer against loads and resets, so
	// the timer is never left running after a newer load began.
	armMu sync.Mutex

	// saveMu serializes writes so two saves never overlap.
	saveMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPrompter sets the destination dialog used when saving a design that
// has no save target.
func WithPrompter(p DestinationPrompter) Option {
	return func(pl *Pipeline) { pl.prompter = p }
}

// WithNotifier sets where events go.
func WithNotifier(n Notifier) Option {
	return func(pl *Pipeline) { pl.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithLoadTimeout bounds each load.
func WithLoadTimeout(d time.Duration) Option {
	return func(pl *Pipeline) { pl.loadTimeout = d }
}

// WithAutoSaveInterval sets the auto-save period.
func WithAutoSaveInterval(d time.Duration) Option {
	return func(pl *Pipeline) { pl.autoInterval = d }
}

// WithMaxDocumentBytes overrides the serialized size ceiling.
func WithMaxDocumentBytes(n int) Option {
	return func(pl *Pipeline) { pl.maxBytes = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// WithIDGenerator replaces the uuid generator for new documents.
func WithIDGenerator(f func() string) Option {
	return func(pl *Pipeline) { pl.newID = f }
}

// New builds a pipeline around a fresh, empty session state.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		state:        session.New(),
		catalog:      deps.Catalog,
		designs:      deps.Store.Collection(store.Designs),
		shares:       deps.Store.Collection(store.Shares),
		exports:      deps.Store.Collection(store.Exports),
		metadata:     deps.Store.Collection(store.Metadata),
		drafts:       deps.Drafts,
		files:        deps.Files,
		images:       deps.Images,
		loader:       deps.Loader,
		screen:       preview.New(preview.WithHints()),
		exporter:     preview.New(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		loadTimeout:  DefaultLoadTimeout,
		autoInterval: autosave.DefaultInterval,
		maxBytes:     codec.MaxDocumentBytes,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(p)
	}
	if p.drafts == nil {
		p.drafts = deps.Store.Collection(store.Drafts)
	}
	if p.loader == nil {
		p.loader = imagesrc.NewLoader(0)
	}
	p.scheduler = autosave.New(p, p.autoInterval, p.logger)
	return p
}

// Close stops the auto-save timer.
func (p *Pipeline) Close() {
	p.scheduler.Stop()
}

// Scheduler exposes the auto-save scheduler.
func (p *Pipeline) Scheduler() *autosave.Scheduler { return p.scheduler }

// Snapshot returns a consistent copy of the session state.
func (p *Pipeline) Snapshot() session.Snapshot { return p.state.Snapshot() }

// HasUnsavedChanges reports whether leaving now would lose edits.
func (p *Pipeline) HasUnsavedChanges() bool { return p.state.Dirty() }

// Catalog returns the template catalog.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// Template returns the active template, or nil when none is selected.
func (p *Pipeline) Template() *catalog.Template {
	key := p.state.Snapshot().TemplateKey
	if key == "" {
		return nil
	}
	t, err := p.catalog.Get(key)
	if err != nil {
		return nil
	}
	return t
}

func (p *Pipeline) notify(kind string, data any) {
	if p.notifier != nil {
		p.notifier.Notify(kind, data)
	}
}

// surface logs an error the user must see and publishes it.
func (p *Pipeline) surface(op string, err error) {
	p.logger.Warn("pipeline: "+op+" failed", slog.String("error", err.Error()))
	p.notify(EventError, map[string]string{"op": op, "message": err.Error()})
}

func (p *Pipeline) changed() {
	s := p.state.Snapshot()
	p.notify(EventSessionChanged, map[string]any{
		"templateKey": s.TemplateKey,
		"identity":    s.Identity,
		"dirty":       s.Dirty,
		"loading":     s.LoadInFlight,
		"revision":    s.Revision,
	})
}

// generation returns the current load generation.
func (p *Pipeline) generation() uint64 {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.gen
}

// invalidateLoadsLocked makes every in-flight load stale. Callers hold loadMu.
func (p *Pipeline) invalidateLoadsLocked() {
	p.gen++
	p.epoch++
	p.chain = nil
}

// disarm stops the auto-save timer and then runs replace under loadMu.
func (p *Pipeline) disarm(replace func()) {
	p.armMu.Lock()
	defer p.armMu.Unlock()
	p.scheduler.Stop()
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	replace()
}

// armAutoSave starts the auto-save timer unless a load or reset happened
// after generation gen.
func (p *Pipeline) armAutoSave(gen uint64) {
	p.armMu.Lock()
	defer p.armMu.Unlock()
	p.loadMu.Lock()
	current := gen == p.gen && !p.state.LoadInFlight()
	p.loadMu.Unlock()
	if !current {
		p.logger.Debug("pipeline: auto-save not armed, session moved on")
		return
	}
	p.scheduler.Start()
}
