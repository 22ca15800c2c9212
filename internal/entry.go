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

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// components holds the wired application graph shared by all run modes.
type components struct {
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	ing    *index.Ingestor
	svc    *docservice.Service
}

// build constructs storage, index, embedder, and services from the config.
// The caller owns closing c.db.
func build(app *application) (*components, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	// Ensure corpus directory exists.
	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Corpus.Path, cfg.Corpus.Extensions)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	emb := app.embedder
	if emb == nil {
		emb, err = newEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}

	db, err := index.Open(cfg.SQLite.Path, emb.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	split := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	ing := index.NewIngestor(emb, split)

	gen, err := newGenerator(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}
	ans := answer.New(db, emb, gen, cfg.Answer.TopK)

	svc := docservice.NewService(store, db, ing, emb, ans, logger)

	return &components{logger: logger, store: store, db: db, ing: ing, svc: svc}, nil
}

// newEmbedder builds the configured embedding provider.
func newEmbedder(cfg *Config) (embed.Embedder, error) {
	switch cfg.Embedding.Provider {
	case EmbeddingProviderOpenAI:
		return embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		return embed.NewLocal(cfg.Embedding.Dimensions), nil
	}
}

// newGenerator builds the answer generator: OpenAI chat when an API key is
// configured, the extractive fallback otherwise.
func newGenerator(cfg *Config) (answer.Generator, error) {
	if cfg.Embedding.Provider == EmbeddingProviderOpenAI {
		return answer.NewOpenAIGenerator(answer.OpenAIConfig{
			APIKey: cfg.Embedding.APIKey,
			Model:  cfg.Answer.Model,
		})
	}
	return answer.NewExtractive(), nil
}

// Run starts the HTTP server and the corpus watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Run initial reconciliation.
	if err := index.Sync(ctx, c.db, c.store, c.ing, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API router.
	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start corpus watcher with SSE callback.
	g.Go(func() error {
		return index.Watch(gCtx, c.db, c.store, c.ing, cfg.Corpus.Path, logger, func(kind, path string) {
			broker.PublishDocEvent(kind, path)
		})
	})

	// Start HTTP server.
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunSync runs a single detect-and-reconcile pass and exits.
func RunSync(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.db.Close()

	changed, skipped, err := index.Changed(c.db, c.store)
	if err != nil {
		return fmt.Errorf("detect changes: %w", err)
	}
	c.logger.Info("Detected changes",
		slog.Int("changed", len(changed)),
		slog.Int("skipped", len(skipped)))

	if err := index.Sync(ctx, c.db, c.store, c.ing, c.logger); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	c.logger.Info("Sync complete")
	return nil
}

// RunMCP serves the MCP tools over stdio until the transport closes.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.db.Close()

	return mcpserver.New(c.svc).ServeStdio()
}
