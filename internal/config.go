package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Embedding providers.
const (
	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Chunking  ChunkingConfig    `yaml:"chunking"`
	Answer    AnswerConfig      `yaml:"answer"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Corpus.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if err := c.Answer.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig holds the corpus directory and accepted file extensions.
type CorpusConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EmbeddingConfig selects and configures the embedding provider.
//
// Provider controls how chunk vectors are produced:
//   - "local" (default): deterministic offline hashing embedder, suitable for
//     development and tests.
//   - "openai": the OpenAI Embeddings API; APIKey must be non-empty.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = EmbeddingProviderLocal
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(EmbeddingProviderLocal, EmbeddingProviderOpenAI)),
		validation.Field(&c.Dimensions, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Provider == EmbeddingProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("embedding: provider is %q but api_key is empty", EmbeddingProviderOpenAI)
	}
	return nil
}

// ChunkingConfig holds splitter parameters in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Validate validates the chunking configuration.
func (c *ChunkingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Size, validation.Min(0)),
		validation.Field(&c.Overlap, validation.Min(0)),
	)
}

// AnswerConfig holds question-answering configuration. Model is the chat
// model used for answer generation; when the embedding provider is "local"
// (no API key) an extractive fallback is used instead.
type AnswerConfig struct {
	Model string `yaml:"model"`
	TopK  int    `yaml:"top_k"`
}

// Validate validates the answer configuration.
func (c *AnswerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopK, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Path:       "./corpus",
			Extensions: []string{".md", ".txt"},
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Embedding: EmbeddingConfig{
			Provider:   EmbeddingProviderLocal,
			Dimensions: 256,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Answer: AnswerConfig{
			TopK: 4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
