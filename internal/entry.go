// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mailwright/internal/api"
	"github.com/starford/mailwright/internal/blob"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/mcpserver"
	"github.com/starford/mailwright/internal/sse"
	"github.com/starford/mailwright/internal/watch"
)

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	return app, newLogger(app), nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker receives every pipeline event.
	broker := sse.NewBroker(cfg.Editor.EventThrottle)
	defer broker.Close()

	c, err := build(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	apiRouter := api.NewRouter(api.Deps{
		Pipeline: c.pipeline,
		Library:  c.library,
		Events:   broker,
		Auth: api.AuthConfig{
			Mode:      cfg.Auth.Mode,
			Token:     cfg.Auth.Token,
			JWTSecret: cfg.Auth.JWTSecret,
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.store.Ping(pingCtx); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	// Images hosted on the local file system are served from here.
	if fsImages, ok := c.images.(*blob.FS); ok {
		r.Get("/images/{filename}", api.NewImageHandler(fsImages.Root()).ServeFile)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the designs directory for edits made by other programs.
	if cfg.Local.DesignsDir != "" {
		g.Go(func() error {
			err := watch.Watch(gCtx, cfg.Local.DesignsDir, designfile.Ext, logger, c.pipeline.FileChanged)
			if err != nil {
				logger.Warn("designs watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stop the watcher as well when a signal, not ctx, ended the run.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	c, err := build(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.pipeline, c.library).ServeStdio()
}
