package modelexec

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openrouterTierModels maps our tiers onto OpenRouter's model slugs.
// openrouter is the last resort in the provider priority list (§4.9).
var openrouterTierModels = map[string]string{
	"opus":   "anthropic/claude-opus-4.1",
	"sonnet": "anthropic/claude-sonnet-4.5",
	"haiku":  "anthropic/claude-haiku-4.5",
}

// OpenRouterClient reuses openai-go against OpenRouter's OpenAI-compatible
// endpoint rather than hand-rolling another HTTP client.
type OpenRouterClient struct {
	client openai.Client
}

// NewOpenRouterClient constructs an OpenRouterClient.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL("https://openrouter.ai/api/v1"),
		),
	}
}

func (c *OpenRouterClient) Provider() string { return "openrouter" }

func (c *OpenRouterClient) ModelForTier(tier string) (string, bool) {
	model, ok := openrouterTierModels[tier]
	return model, ok
}

func (c *OpenRouterClient) Complete(ctx context.Context, req ClientRequest) (ClientResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return ClientResponse{}, fmt.Errorf("openrouter: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ClientResponse{}, fmt.Errorf("openrouter: empty completion")
	}

	return ClientResponse{
		Blocks:       []Block{{Type: "text", Text: completion.Choices[0].Message.Content}},
		Stopped:      true,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}
