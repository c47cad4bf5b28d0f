package modelexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// googleTierModels maps our tiers onto Gemini models.
var googleTierModels = map[string]string{
	"opus":   "gemini-2.5-pro",
	"sonnet": "gemini-2.5-flash",
	"haiku":  "gemini-2.5-flash-lite",
}

// GoogleClient is a hand-modeled binding over the Gemini generateContent
// REST endpoint; no Google generative-AI SDK is part of this module's
// dependency set, so the request/response shape is implemented directly.
type GoogleClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewGoogleClient constructs a GoogleClient.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{apiKey: apiKey, httpClient: &http.Client{Timeout: 60 * time.Second}}
}

func (c *GoogleClient) Provider() string { return "google" }

func (c *GoogleClient) ModelForTier(tier string) (string, bool) {
	model, ok := googleTierModels[tier]
	return model, ok
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *GoogleClient) Complete(ctx context.Context, req ClientRequest) (ClientResponse, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
	})
	if err != nil {
		return ClientResponse{}, fmt.Errorf("google: encode request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", req.Model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ClientResponse{}, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ClientResponse{}, fmt.Errorf("google: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return ClientResponse{}, fmt.Errorf("google: status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ClientResponse{}, fmt.Errorf("google: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return ClientResponse{}, fmt.Errorf("google: no candidates returned")
	}

	var text string
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}

	return ClientResponse{
		Blocks:       []Block{{Type: "text", Text: text}},
		Stopped:      true,
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}
