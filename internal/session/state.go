// Package session holds the single mutable editing state of a running
// Mailwright instance. Wholesale replacement of field and image maps goes
// through the reset and commit transitions; individual edits go through
// Mutate, which refuses everything while a load is in flight.
package session

import (
	"maps"
	"sync"
	"time"

	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/models"
)

// PlaceholderHTML is the neutral preview shown between a reset and the
// commit of new content.
const PlaceholderHTML = `<!doctype html><html><body style="font-family:sans-serif;color:#868e96;text-align:center;padding:48px">Preview will appear here.</body></html>`

// Content is the design content committed by a load.
type Content struct {
	TemplateKey       string
	ProjectName       string
	CreativeDirection string
	FolderID          *string
	CreatedAt         time.Time
	Fields            map[string]string
	Images            map[string]string
}

// Snapshot is a consistent deep copy of the state.
type Snapshot struct {
	Content
	Identity     models.Identity
	Dirty        bool
	LoadInFlight bool
	// EditSeq counts accepted mutations.
	EditSeq uint64
	// Revision changes on every transition or mutation.
	Revision uint64
}

// Design returns the snapshot as a design record.
func (s Snapshot) Design() models.Design {
	d := models.Design{
		ProjectName:       s.ProjectName,
		TemplateKey:       s.TemplateKey,
		FieldValues:       maps.Clone(s.Fields),
		ImageSlots:        maps.Clone(s.Images),
		CreativeDirection: s.CreativeDirection,
		FolderID:          s.FolderID,
		CreatedAt:         s.CreatedAt,
	}
	if s.Identity.Kind == models.IdentityServer {
		d.ID = s.Identity.Value
	}
	return d
}

// Memento is an opaque copy of the state used to undo a failed load.
type Memento struct {
	content  Content
	identity models.Identity
	dirty    bool
}

type previewCache struct {
	html string
	rev  uint64
}

// State is the application state registry. The zero value is not usable;
// call New.
type State struct {
	mu sync.Mutex

	templateKey       string
	projectName       string
	creativeDirection string
	folderID          *string
	createdAt         time.Time

	// fields and images are cleared in place so references held elsewhere
	// see the reset.
	fields map[string]string
	images map[string]string

	identity     models.Identity
	dirty        bool
	loadInFlight bool
	editSeq      uint64
	revision     uint64
	preview      previewCache
}

// New returns an empty state with no template selected.
func New() *State {
	s := &State{fields: map[string]string{}, images: map[string]string{}}
	s.preview = previewCache{html: PlaceholderHTML}
	return s
}

// ResetForNewProject clears content and identity. Calling it twice is the
// same as calling it once.
func (s *State) ResetForNewProject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.templateKey = ""
	s.identity = models.Identity{}
	s.loadInFlight = false
	s.dirty = false
}

// ResetForTemplateChange discards every value entered under the previous
// template and seeds the maps with t's defaults. Placeholders are never
// copied. The identity is kept.
func (s *State) ResetForTemplateChange(t *catalog.Template) {
	fields, images := t.Defaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.templateKey = t.Key
	maps.Copy(s.fields, fields)
	maps.Copy(s.images, images)
	s.revision++
	s.dirty = false
}

// ResetBeforeLoad clears content, points the identity at the design being
// loaded, and raises the load guard.
func (s *State) ResetBeforeLoad(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.identity = id
	s.loadInFlight = true
}

// CommitLoadedState replaces the content wholesale, lowers the load guard,
// and marks the state clean.
func (s *State) CommitLoadedState(c Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fields)
	clear(s.images)
	maps.Copy(s.fields, c.Fields)
	maps.Copy(s.images, c.Images)
	s.templateKey = c.TemplateKey
	s.projectName = c.ProjectName
	s.creativeDirection = c.CreativeDirection
	s.folderID = cloneID(c.FolderID)
	s.createdAt = c.CreatedAt
	s.loadInFlight = false
	s.dirty = false
	s.revision++
}

// Capture returns a memento of the current content, identity and dirty flag.
func (s *State) Capture() Memento {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Memento{content: s.contentLocked(), identity: s.identity, dirty: s.dirty}
}

// Restore puts back a memento and lowers the load guard.
func (s *State) Restore(m Memento) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.fields)
	clear(s.images)
	maps.Copy(s.fields, m.content.Fields)
	maps.Copy(s.images, m.content.Images)
	s.templateKey = m.content.TemplateKey
	s.projectName = m.content.ProjectName
	s.creativeDirection = m.content.CreativeDirection
	s.folderID = cloneID(m.content.FolderID)
	s.createdAt = m.content.CreatedAt
	s.identity = m.identity
	s.dirty = m.dirty
	s.loadInFlight = false
	s.revision++
}

// clearLocked empties the content and swaps the preview for the
// placeholder. Callers hold mu.
func (s *State) clearLocked() {
	clear(s.fields)
	clear(s.images)
	s.projectName = ""
	s.creativeDirection = ""
	s.folderID = nil
	s.createdAt = time.Time{}
	s.revision++
	s.preview = previewCache{html: PlaceholderHTML, rev: s.revision}
}

func (s *State) contentLocked() Content {
	return Content{
		TemplateKey:       s.templateKey,
		ProjectName:       s.projectName,
		CreativeDirection: s.creativeDirection,
		FolderID:          cloneID(s.folderID),
		CreatedAt:         s.createdAt,
		Fields:            maps.Clone(s.fields),
		Images:            maps.Clone(s.images),
	}
}

// Snapshot returns a deep copy of the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Content:      s.contentLocked(),
		Identity:     s.identity,
		Dirty:        s.dirty,
		LoadInFlight: s.loadInFlight,
		EditSeq:      s.editSeq,
		Revision:     s.revision,
	}
}

// Identity returns the current save target.
func (s *State) Identity() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity repoints the save target without touching content.
func (s *State) SetIdentity(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// SetFolder records a folder move done directly in the library. It is not
// an edit and leaves the dirty flag alone.
func (s *State) SetFolder(folderID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderID = cloneID(folderID)
}

// SetCreatedAt records the creation time assigned by a first save.
func (s *State) SetCreatedAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createdAt.IsZero() {
		s.createdAt = t
	}
}

// Dirty reports whether there are unsaved edits.
func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// LoadInFlight reports whether the load guard is raised.
func (s *State) LoadInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadInFlight
}

// MarkSaved clears the dirty flag if no mutation was accepted since the
// snapshot with sequence seq was taken. It reports whether it did.
func (s *State) MarkSaved(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editSeq != seq || s.loadInFlight {
		return false
	}
	s.dirty = false
	return true
}

// CachedPreview returns the preview rendered for the current revision, or
// the placeholder installed by the last reset.
func (s *State) CachedPreview() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview.rev == s.revision && s.preview.html != "" {
		return s.preview.html, true
	}
	return "", false
}

// StorePreview caches html if rev is still current.
func (s *State) StorePreview(rev uint64, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rev == s.revision {
		s.preview = previewCache{html: html, rev: rev}
	}
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
