package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ImageHandler serves images uploaded to the filesystem blob store.
type ImageHandler struct {
	root string
}

// NewImageHandler creates a handler serving files under root.
func NewImageHandler(root string) *ImageHandler {
	return &ImageHandler{root: filepath.Clean(root)}
}

// safeName resolves a plain file name (no separators, no traversal) under
// the image root.
func (h *ImageHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.root, cleaned)
	if !strings.HasPrefix(abs, h.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes image directory")
	}
	return abs, nil
}

// ServeFile handles GET /images/{filename}.
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, statErr := os.Stat(abs); statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, abs)
}
