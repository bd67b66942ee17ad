package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/mailwright/internal/blob"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/imagesrc"
	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/pipeline"
	"github.com/starford/mailwright/internal/preview"
	"github.com/starford/mailwright/internal/storage"
	"github.com/starford/mailwright/internal/store"
)

// components are the long-lived services shared by the HTTP and MCP
// front-ends.
type components struct {
	store    store.Store
	drafts   store.Store
	images   blob.Store
	files    *designfile.Files
	pipeline *pipeline.Pipeline
	library  *library.Service
}

func (c *components) Close() error {
	if c.pipeline != nil {
		c.pipeline.Close()
	}
	var errs []error
	if c.drafts != nil {
		errs = append(errs, c.drafts.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

// LoadCatalog returns the configured template catalog, or the built-in one.
func LoadCatalog(cfg *Config) (*catalog.Catalog, error) {
	if cfg.Editor.CatalogPath != "" {
		return catalog.Load(cfg.Editor.CatalogPath)
	}
	return catalog.Builtin()
}

func newLogger(a *application) *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens the stores and assembles the pipeline. n receives pipeline
// events; it may be nil.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, n pipeline.Notifier) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	cat, err := LoadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := preview.New().Check(cat); err != nil {
		return nil, fmt.Errorf("check catalog: %w", err)
	}

	if cfg.Store.Driver == store.DriverSQLite {
		if err := ensureParent(cfg.Store.SQLitePath); err != nil {
			return nil, err
		}
	}
	c.store, err = store.Open(ctx, cfg.Store.Options())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := ensureParent(cfg.Local.DraftsSQLitePath); err != nil {
		return nil, err
	}
	drafts, err := store.OpenSQLite(cfg.Local.DraftsSQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open drafts: %w", err)
	}
	c.drafts = store.WithSizeLimit(drafts, cfg.Store.MaxDocumentBytes)

	if cfg.Images.Driver == blob.DriverFS || cfg.Images.Driver == "" {
		if err := os.MkdirAll(cfg.Images.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create images dir: %w", err)
		}
	}
	c.images, err = blob.Open(ctx, cfg.Images.Options())
	if err != nil {
		return nil, fmt.Errorf("open images: %w", err)
	}

	if cfg.Local.DesignsDir != "" {
		if err := os.MkdirAll(cfg.Local.DesignsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create designs dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Local.DesignsDir, designfile.Ext)
		if err != nil {
			return nil, fmt.Errorf("init designs dir: %w", err)
		}
		c.files = designfile.New(fs, cfg.Store.MaxDocumentBytes)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithPrompter(pipeline.ContextPrompter{}),
		pipeline.WithLoadTimeout(cfg.Editor.LoadTimeout),
		pipeline.WithAutoSaveInterval(cfg.Editor.AutosaveInterval),
		pipeline.WithMaxDocumentBytes(cfg.Store.MaxDocumentBytes),
	}
	if n != nil {
		opts = append(opts, pipeline.WithNotifier(n))
	}
	c.pipeline = pipeline.New(pipeline.Deps{
		Catalog: cat,
		Store:   c.store,
		Drafts:  c.drafts.Collection(store.Drafts),
		Files:   c.files,
		Images:  c.images,
		Loader:  imagesrc.NewLoader(cfg.Images.MaxBytes),
	}, opts...)
	c.library = library.NewService(c.store, c.files, c.pipeline)

	logger.Info("Components ready",
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("images_driver", cfg.Images.Driver),
		slog.String("designs_dir", cfg.Local.DesignsDir),
		slog.Int("templates", len(cat.List())),
		slog.Int("max_document_bytes", cfg.Store.MaxDocumentBytes))
	return c, nil
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	return nil
}
