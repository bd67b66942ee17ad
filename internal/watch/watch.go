// Package watch reports changes made to design files by other programs.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mailwright/internal/checksum"
)

// Event kinds.
const (
	Written = "written"
	Removed = "removed"
)

// Callback receives the kind, the path relative to root, and the checksum
// of the current content (empty for Removed).
type Callback func(kind, path, sum string)

// Watch starts an fsnotify watcher on root and reports every change to a
// file with extension ext until ctx is cancelled. New directories created
// at runtime are added to the watch list.
func Watch(ctx context.Context, root, ext string, logger *slog.Logger, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handle(w, root, ext, ev, logger, cb)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func handle(w *fsnotify.Watcher, root, ext string, ev fsnotify.Event, logger *slog.Logger, cb Callback) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			return
		}
	}

	base := filepath.Base(absPath)
	if strings.HasPrefix(base, ".") || !strings.EqualFold(filepath.Ext(base), ext) {
		return
	}
	rel, relErr := filepath.Rel(root, absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, readErr := os.ReadFile(absPath)
		if readErr != nil {
			logger.Debug("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return
		}
		logger.Debug("watcher: written", slog.String("path", rel))
		cb(Written, rel, checksum.Sum(data))

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		logger.Debug("watcher: removed", slog.String("path", rel))
		cb(Removed, rel, "")
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
