// Package storage defines the local file-system abstraction used for design
// files and locally hosted images.
package storage

import "time"

// FileInfo describes one file under the provider root.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provider is the interface for rooted file operations. All paths are
// relative to the provider root.
type Provider interface {
	// List returns metadata for every matching file under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
