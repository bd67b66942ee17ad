// Package models defines the domain types for Mailwright.
package models

import (
	"maps"
	"time"
)

// IdentityKind names where a design lives.
type IdentityKind string

// Identity kinds.
const (
	IdentityNone   IdentityKind = ""
	IdentityServer IdentityKind = "server"
	IdentityFile   IdentityKind = "file"
	IdentityLocal  IdentityKind = "local"
)

// Identity is the save target of a design: a server-assigned id, a local
// file handle, or a local-storage key. At most one is set at a time.
type Identity struct {
	Kind  IdentityKind `json:"kind,omitempty"`
	Value string       `json:"value,omitempty"`
}

// ServerID returns an identity for a remote store document.
func ServerID(id string) Identity { return Identity{Kind: IdentityServer, Value: id} }

// FileHandle returns an identity for a local design file.
func FileHandle(path string) Identity { return Identity{Kind: IdentityFile, Value: path} }

// LocalKey returns an identity for a local-storage draft.
func LocalKey(key string) Identity { return Identity{Kind: IdentityLocal, Value: key} }

// HasTarget reports whether the identity can be written to.
func (i Identity) HasTarget() bool {
	return i.Kind != IdentityNone && i.Value != ""
}

func (i Identity) String() string {
	if !i.HasTarget() {
		return "none"
	}
	return string(i.Kind) + ":" + i.Value
}

// Design is the persisted design record.
type Design struct {
	ID                string            `json:"id"`
	ProjectName       string            `json:"projectName"`
	TemplateKey       string            `json:"templateKey"`
	FieldValues       map[string]string `json:"fieldValues"`
	ImageSlots        map[string]string `json:"imageSlots"`
	CreativeDirection string            `json:"creativeDirection"`
	FolderID          *string           `json:"folderId"`
	Status            string            `json:"status,omitempty"`
	CreatedAt         time.Time         `json:"createdAt,omitzero"`
	SavedAt           time.Time         `json:"savedAt"`
}

// Design statuses.
const (
	StatusDraft    = "draft"
	StatusExported = "exported"
)

// Clone returns a deep copy.
func (d Design) Clone() Design {
	out := d
	out.FieldValues = maps.Clone(d.FieldValues)
	out.ImageSlots = maps.Clone(d.ImageSlots)
	if d.FolderID != nil {
		f := *d.FolderID
		out.FolderID = &f
	}
	return out
}

// Labels returns the indexed attributes stored alongside the design.
func (d Design) Labels() map[string]string {
	labels := map[string]string{
		"templateKey": d.TemplateKey,
		"status":      d.Status,
	}
	if d.FolderID != nil {
		labels["folder"] = *d.FolderID
	}
	return labels
}

// Folder groups designs in the library.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Export is a rendered HTML export of a design.
type Export struct {
	ID          string    `json:"id"`
	DesignID    string    `json:"designId,omitempty"`
	TemplateKey string    `json:"templateKey"`
	ProjectName string    `json:"projectName"`
	HTML        string    `json:"html"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Feedback is a user-submitted comment about a design or the tool.
type Feedback struct {
	ID        string    `json:"id"`
	DesignID  string    `json:"designId,omitempty"`
	Message   string    `json:"message"`
	Rating    int       `json:"rating,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Export and feedback statuses.
const (
	StatusReady = "ready"
	StatusNew   = "new"
)

// LastOpened is the metadata pointer used to resume the previous session.
type LastOpened struct {
	Identity Identity  `json:"identity"`
	At       time.Time `json:"at"`
}
