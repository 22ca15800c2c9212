package internal

import "github.com/starford/ansuz/internal/embed"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	embedder embed.Embedder
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithEmbedder overrides the configured embedding provider. Used by tests
// and callers that bring their own embedder.
func WithEmbedder(e embed.Embedder) Option {
	return func(a *application) {
		a.embedder = e
	}
}
