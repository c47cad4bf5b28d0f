package modelexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// anthropicTierModels maps our fixed tiers directly onto Claude model
// families, since "opus"/"sonnet"/"haiku" are themselves Anthropic tier
// names (§4.8). anthropic is first in the provider priority list (§4.9).
var anthropicTierModels = map[string]string{
	"opus":   "claude-opus-4-1",
	"sonnet": "claude-sonnet-4-5",
	"haiku":  "claude-haiku-4-5",
}

const anthropicAPIVersion = "2023-06-01"

// AnthropicClient is a hand-modeled binding over the Messages API: no
// official Go SDK for Anthropic is part of the dependency set this module
// draws from, so the wire shape is implemented directly against
// net/http, matching the request/response JSON Anthropic documents
// publicly. It is the only client here that exercises full tool-use
// interleaving, since anthropic is the primary provider.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicClient constructs an AnthropicClient.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    "https://api.anthropic.com/v1/messages",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *AnthropicClient) Provider() string { return "anthropic" }

func (c *AnthropicClient) ModelForTier(tier string) (string, bool) {
	model, ok := anthropicTierModels[tier]
	return model, ok
}

type anthropicContentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result fields, only present when we send this block back
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req ClientRequest) (ClientResponse, error) {
	messages := []anthropicMessage{{
		Role:    "user",
		Content: []anthropicContentBlock{{Type: "text", Text: req.Prompt}},
	}}
	for _, b := range req.History {
		messages = append(messages, historyToAnthropic(b))
	}

	body, err := json.Marshal(anthropicRequest{Model: req.Model, MaxTokens: 4096, Messages: messages})
	if err != nil {
		return ClientResponse{}, fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return ClientResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ClientResponse{}, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return ClientResponse{}, fmt.Errorf("anthropic: status %d", resp.StatusCode)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ClientResponse{}, fmt.Errorf("anthropic: decode response: %w", err)
	}

	return ClientResponse{
		Blocks:       anthropicToBlocks(parsed.Content),
		Stopped:      parsed.StopReason != "tool_use",
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

func anthropicToBlocks(content []anthropicContentBlock) []Block {
	blocks := make([]Block, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case "text":
			blocks = append(blocks, Block{Type: "text", Text: c.Text})
		case "tool_use":
			blocks = append(blocks, Block{
				Type:      "tool_use",
				ToolUseID: c.ID,
				ToolName:  c.Name,
				ToolInput: c.Input,
			})
		}
	}
	return blocks
}

func historyToAnthropic(b Block) anthropicMessage {
	switch b.Type {
	case "tool_result":
		content := b.ToolResult
		isErr := b.ToolError != ""
		if isErr {
			content = b.ToolError
		}
		return anthropicMessage{
			Role: "user",
			Content: []anthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   content,
				IsError:   isErr,
			}},
		}
	case "tool_use":
		return anthropicMessage{
			Role: "assistant",
			Content: []anthropicContentBlock{{
				Type:  "tool_use",
				ID:    b.ToolUseID,
				Name:  b.ToolName,
				Input: b.ToolInput,
			}},
		}
	default:
		return anthropicMessage{
			Role:    "assistant",
			Content: []anthropicContentBlock{{Type: "text", Text: b.Text}},
		}
	}
}
