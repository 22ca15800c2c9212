package answer

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when the config names no answer model.
const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAIGenerator implements Generator on the OpenAI Chat Completions API.
type OpenAIGenerator struct {
	client openaisdk.Client
	model  string
}

// OpenAIConfig holds OpenAI generator configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, useful for testing against a mock server
}

// NewOpenAIGenerator creates an OpenAI-backed generator. Returns an error if
// the API key is missing.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer: missing openai api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{client: openaisdk.NewClient(opts...), model: cfg.Model}, nil
}

// Generate runs one chat completion and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	res, err := g.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("answer: openai request: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("answer: empty completion")
	}
	return res.Choices[0].Message.Content, nil
}

// Extractive is the offline fallback generator: it returns the retrieved
// context verbatim instead of a synthesised answer. Used when no API key is
// configured so /ask keeps working in local setups.
type Extractive struct{}

// NewExtractive creates the fallback generator.
func NewExtractive() *Extractive {
	return &Extractive{}
}

// Generate strips the trailing question off the prompt and echoes the
// context block.
func (e *Extractive) Generate(_ context.Context, _ string, user string) (string, error) {
	body := user
	if i := strings.LastIndex(body, "Question:"); i >= 0 {
		body = body[:i]
	}
	body = strings.TrimPrefix(body, "Context:")
	return "Most relevant passages:\n\n" + strings.TrimSpace(body), nil
}
