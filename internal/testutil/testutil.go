// Package testutil provides shared test helpers for catalogs, stores and
// design directories.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/mailwright/internal/blob"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/storage"
	"github.com/starford/mailwright/internal/store"
)

// Catalog returns the built-in template catalog.
func Catalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// SQLiteStore opens a temporary SQLite store that is closed on cleanup.
func SQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "mailwright-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Designs creates a temporary designs directory.
func Designs(t *testing.T) (string, *designfile.Files) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir, designfile.Ext)
	if err != nil {
		t.Fatal(err)
	}
	return dir, designfile.New(fs, codec.MaxDocumentBytes)
}

// Images creates a temporary file-system image store served under /images.
func Images(t *testing.T) *blob.FS {
	t.Helper()
	b, err := blob.NewFS(t.TempDir(), "/images")
	if err != nil {
		t.Fatal(err)
	}
	return b
}
