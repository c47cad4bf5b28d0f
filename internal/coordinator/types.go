// Package coordinator implements the Agent Coordinator (spec §4.3):
// single-agent execution, sequential and parallel multi-agent execution,
// and result aggregation.
package coordinator

import (
	"fmt"

	"github.com/agentforge/orchestrator-core/internal/modelexec"
)

// ExecutionContext carries the depth/budget bookkeeping every coordinator
// operation enforces before delegating to the Model Executor.
type ExecutionContext struct {
	Depth           int
	MaxDepth        int
	RootExecutionID string
}

// ErrDepthExceeded-shaped results never surface as a Go error (§7): they
// populate AgentExecutionResult.Success=false instead.
const depthExceededError = "max delegation depth exceeded"
const dependenciesNotMetError = "Dependencies not met"

// AgentExecutionResult is execute_with_agent's return shape.
type AgentExecutionResult struct {
	AgentLabel string
	Success    bool
	Output     string
	Error      string
	Metadata   modelexec.Metadata
}

func buildPrompt(systemPrompt, userPrompt string) string {
	return fmt.Sprintf("%s\n---\nUSER REQUEST:\n%s\n---\nGUIDELINES: respond only with the work product, "+
		"state any assumptions explicitly, and flag anything you could not complete.", systemPrompt, userPrompt)
}
