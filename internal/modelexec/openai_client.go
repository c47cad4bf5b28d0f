package modelexec

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAITierModels maps our fixed tiers onto OpenAI's nearest equivalent
// chat models. OpenAI sits behind anthropic in the provider priority list
// (§4.9); it is only reached when the anthropic client errors or is
// unconfigured.
var openAITierModels = map[string]string{
	"opus":   "gpt-4.1",
	"sonnet": "gpt-4o",
	"haiku":  "gpt-4o-mini",
}

// OpenAIClient is a thin ModelClient binding over openai-go. It does not
// implement OpenAI's native tool-calling: as a fallback-tier provider it
// only needs to serve plain completions, so Complete always reports
// Stopped=true.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient constructs an OpenAIClient from an API key.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (c *OpenAIClient) Provider() string { return "openai" }

func (c *OpenAIClient) ModelForTier(tier string) (string, bool) {
	model, ok := openAITierModels[tier]
	return model, ok
}

func (c *OpenAIClient) Complete(ctx context.Context, req ClientRequest) (ClientResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return ClientResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ClientResponse{}, fmt.Errorf("openai: empty completion")
	}

	text := completion.Choices[0].Message.Content
	return ClientResponse{
		Blocks:       []Block{{Type: "text", Text: text}},
		Stopped:      true,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}, nil
}
