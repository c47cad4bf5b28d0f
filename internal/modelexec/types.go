// Package modelexec implements the Model Executor contract (spec §4.9):
// a provider-agnostic execute() that never raises for ordinary model
// errors, interleaving tool-use blocks through a ToolDispatcher until the
// model stops calling tools.
package modelexec

import (
	"time"

	"github.com/agentforge/orchestrator-core/internal/budget"
)

// Status values for Result.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Block is one piece of a model turn: plain text, a tool invocation
// request, or the result fed back for a prior tool invocation.
type Block struct {
	Type       string // "text", "tool_use", "tool_result"
	Text       string
	ToolUseID  string
	ToolName   string // "provider:tool"
	ToolInput  map[string]interface{}
	ToolResult string
	ToolError  string
}

// Metadata is the execution accounting attached to every Result.
type Metadata struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	CostCents    float64
	Error        string
}

// Result is execute()'s return value. Ordinary model failures surface as
// Status=StatusFailed with Metadata.Error populated, never as a Go error.
type Result struct {
	Status   string
	Output   string
	Metadata Metadata
}

// Request is what callers (the Agent Coordinator, the Router's LLM
// fallback) pass to Execute.
type Request struct {
	Category       budget.Category
	Skills         []string
	Prompt         string
	SessionID      string
	OrganizationID string
	UserID         string
	Context        map[string]interface{}
}
