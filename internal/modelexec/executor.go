package modelexec

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/ratecontrol"
)

// maxToolTurns bounds the tool-use interleaving loop within a single
// execute() call; a model that never stops calling tools after this many
// turns is treated as failed rather than looped forever.
const maxToolTurns = 12

// Executor is the Model Executor (§4.9). Clients are tried in the fixed
// provider priority order: anthropic > openai > google > openrouter.
type Executor struct {
	logger   *zap.Logger
	clients  []ModelClient // priority order
	tools    ToolDispatcher
}

// New constructs an Executor. clients should already be ordered by
// priority; OrderClients below builds that order from a map.
func New(logger *zap.Logger, clients []ModelClient, tools ToolDispatcher) *Executor {
	return &Executor{logger: logger, clients: clients, tools: tools}
}

// ProviderPriority is the fixed provider fallback order (§4.9).
var ProviderPriority = []string{"anthropic", "openai", "google", "openrouter"}

// OrderClients sorts an unordered client set into ProviderPriority order,
// dropping any provider not present in ProviderPriority.
func OrderClients(byProvider map[string]ModelClient) []ModelClient {
	ordered := make([]ModelClient, 0, len(byProvider))
	for _, name := range ProviderPriority {
		if c, ok := byProvider[name]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// Execute runs one model turn (plus any tool-use interleaving) for the
// given category/skills/prompt. It never returns a Go error for ordinary
// model failure; failure is represented by Result.Status=StatusFailed.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	start := time.Now()
	tier, ok := budget.CategoryTier[req.Category]
	if !ok {
		return failure("unknown category: "+string(req.Category), start)
	}

	var lastErr error
	for _, client := range e.clients {
		model, ok := client.ModelForTier(string(tier))
		if !ok {
			continue
		}
		result, err := e.runWithClient(ctx, client, model, req, start)
		if err == nil {
			return result
		}
		lastErr = err
		e.logger.Warn("model client failed, trying next provider",
			zap.String("provider", client.Provider()), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errNoProviderForTier(tier)
	}
	return failure(lastErr.Error(), start)
}

func (e *Executor) runWithClient(ctx context.Context, client ModelClient, model string, req Request, start time.Time) (Result, error) {
	history := []Block{{Type: "text", Text: req.Prompt}}
	var inTokens, outTokens int64

	tier, _ := budget.CategoryTier[req.Category]

	for turn := 0; turn < maxToolTurns; turn++ {
		if delay := ratecontrol.DelayForRequest(client.Provider(), string(tier), estimateTokens(req.Prompt)); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		resp, err := client.Complete(ctx, ClientRequest{Model: model, Prompt: req.Prompt, History: history})
		if err != nil {
			return Result{}, err
		}
		inTokens += resp.InputTokens
		outTokens += resp.OutputTokens
		history = append(history, resp.Blocks...)

		pending := toolUseBlocks(resp.Blocks)
		if resp.Stopped || len(pending) == 0 {
			cents, _ := budget.EstimateCostCents(req.Category, &inTokens, &outTokens)
			return Result{
				Status: StatusSuccess,
				Output: renderText(resp.Blocks),
				Metadata: Metadata{
					Model:        model,
					InputTokens:  inTokens,
					OutputTokens: outTokens,
					Duration:     time.Since(start),
					CostCents:    cents,
				},
			}, nil
		}

		for _, block := range pending {
			result, toolErr := e.tools.Dispatch(ctx, req.OrganizationID, block.ToolName, block.ToolInput)
			fed := Block{Type: "tool_result", ToolUseID: block.ToolUseID}
			if toolErr != nil {
				fed.ToolError = toolErr.Error()
			} else {
				fed.ToolResult = result
			}
			history = append(history, fed)
		}
	}

	return Result{}, errToolLoopExceeded
}

func toolUseBlocks(blocks []Block) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

func renderText(blocks []Block) string {
	var out string
	for _, b := range blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// estimateTokens is a cheap chars/4 approximation used only to size the
// rate-limit delay before a provider call, not for billing.
func estimateTokens(prompt string) int {
	return len(prompt) / 4
}

func failure(reason string, start time.Time) Result {
	return Result{
		Status: StatusFailed,
		Metadata: Metadata{
			Duration: time.Since(start),
			Error:    reason,
		},
	}
}
