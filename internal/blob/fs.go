package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/starford/mailwright/internal/storage"
)

// FS stores images on local disk; the API serves them under baseURL.
type FS struct {
	files   *storage.FS
	baseURL string
}

// NewFS creates dir if needed and stores images there.
func NewFS(dir, baseURL string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: mkdir: %w", err)
	}
	files, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return &FS{files: files, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory images are written to.
func (f *FS) Root() string { return f.files.Root() }

func (f *FS) Upload(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := f.files.Write(name, data); err != nil {
		return "", fmt.Errorf("blob: upload %s: %w", name, err)
	}
	return f.baseURL + "/" + name, nil
}

func (f *FS) Delete(_ context.Context, name string) error {
	if err := f.files.Delete(name); err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	return nil
}
