// Package designfile reads and writes designs as JSON files under the local
// designs directory and remembers the checksum of each file it touched.
package designfile

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/mailwright/internal/checksum"
	"github.com/starford/mailwright/internal/codec"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/storage"
)

// Ext is the design file extension.
const Ext = ".json"

// Files is a handle on the designs directory.
type Files struct {
	fs    storage.Provider
	limit int

	mu   sync.Mutex
	sums map[string]string
}

// New returns Files over fs. limit is the serialized size ceiling.
func New(fs storage.Provider, limit int) *Files {
	return &Files{fs: fs, limit: limit, sums: map[string]string{}}
}

// Normalize cleans a file handle and ensures the design extension.
func Normalize(handle string) string {
	handle = path.Clean(strings.ReplaceAll(strings.TrimSpace(handle), `\`, "/"))
	if !strings.HasSuffix(strings.ToLower(handle), Ext) {
		handle += Ext
	}
	return handle
}

// Open reads and decodes the design at handle.
func (f *Files) Open(handle string) (models.Design, error) {
	handle = Normalize(handle)
	data, err := f.fs.Read(handle)
	if err != nil {
		return models.Design{}, err
	}
	d, err := codec.DecodeDesignFile(data)
	if err != nil {
		return models.Design{}, fmt.Errorf("designfile: open %s: %w", handle, err)
	}
	f.remember(handle, checksum.Sum(data))
	return d, nil
}

// Save encodes d and writes it atomically to handle.
func (f *Files) Save(handle string, d models.Design, savedAt time.Time) error {
	handle = Normalize(handle)
	data, err := codec.EncodeDesignFile(d, savedAt, f.limit)
	if err != nil {
		return err
	}
	if err := f.fs.Write(handle, data); err != nil {
		return err
	}
	f.remember(handle, checksum.Sum(data))
	return nil
}

// List returns every design file in the directory.
func (f *Files) List() ([]storage.FileInfo, error) {
	return f.fs.List("")
}

// Known returns the checksum recorded by the last Open or Save of handle.
func (f *Files) Known(handle string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sums[Normalize(handle)]
}

// ChangedExternally reports whether sum differs from what we last read or
// wrote at handle. Files we never touched are not reported.
func (f *Files) ChangedExternally(handle, sum string) bool {
	known := f.Known(handle)
	return known != "" && known != sum
}

func (f *Files) remember(handle, sum string) {
	f.mu.Lock()
	f.sums[handle] = sum
	f.mu.Unlock()
}
