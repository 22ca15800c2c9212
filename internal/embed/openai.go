package embed

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when the config names no embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAI implements Embedder on the OpenAI Embeddings API.
type OpenAI struct {
	client openaisdk.Client
	model  string
	dims   int
}

// OpenAIConfig holds OpenAI embedder configuration.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string // optional, useful for testing against a mock server
}

// NewOpenAI creates an OpenAI embedder. Returns an error if the API key is missing.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embed: missing openai api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openaisdk.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (o *OpenAI) Dimensions() int { return o.dims }

// Embed requests embeddings for the whole batch in a single API call.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	res, err := o.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openaisdk.EmbeddingModel(o.model),
		Dimensions: openaisdk.Int(int64(o.dims)),
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai request: %w", err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d inputs", len(res.Data), len(texts))
	}

	out := make([][]float32, len(res.Data))
	for i, d := range res.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
