// Package orchestrator implements the Multi-Agent Orchestrator (spec §4.4)
// and its Loop Detector (§4.4a): the top-level entry point that turns a
// free-text request into a routed, decomposed, coordinated execution and
// guards it against runaway delegation loops.
package orchestrator

import (
	"context"
	"time"

	"github.com/agentforge/orchestrator-core/internal/coordinator"
)

// Execution modes recorded on Result.
const (
	ModeSingleAgent = "single_agent"
	ModeSequential  = "sequential"
	ModeParallel    = "parallel"
)

const (
	defaultMaxAgents = 5
	defaultMaxDepth  = 3
	defaultTimeout   = 120 * time.Second
)

// Options tunes one Orchestrate call; zero values fall back to the spec's
// defaults.
type Options struct {
	MaxAgents      int
	MaxDepth       int
	Timeout        time.Duration
	OrganizationID string
	UserID         string
	SessionID      string
}

func (o Options) withDefaults() Options {
	if o.MaxAgents <= 0 {
		o.MaxAgents = defaultMaxAgents
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Result is Orchestrate's return value. It never represents failure as a
// Go error (§7): TimedOut / LoopDetected / BudgetExhausted / per-subtask
// failures are all structured fields a caller inspects. For a single-agent
// run Success is the agent's own result; for a multi-agent run it is false
// only when a loop was detected, and per-subtask failures do not clear it.
type Result struct {
	RootExecutionID string
	Mode            string
	Complexity      string
	Output          string
	SubtaskResults  map[string]coordinator.AgentExecutionResult
	Success         bool
	TimedOut        bool
	LoopDetected    bool
	DetectedLoops   []string
	IterationCount  int
	BudgetExhausted bool
}

// ExecutionStore persists the root execution record. All methods are
// best-effort from the orchestrator's point of view: a nil store, or a
// store that returns an error, never fails Orchestrate itself.
type ExecutionStore interface {
	CreateExecution(rootExecutionID, orgID, userID, sessionID, request string) error
	UpdateExecution(rootExecutionID, status, output string) error
	// RecordBudgetExhausted persists a run rejected by the budget preflight
	// (§4.8/§4.4 scenario 3): terminal status "failed" with
	// metadata.reason="budget_exhausted".
	RecordBudgetExhausted(rootExecutionID, output string) error
}

// BudgetChecker is the preflight collaborator consulted before dispatch
// (§4.4 scenario 3). A nil BudgetChecker skips the preflight entirely.
type BudgetChecker interface {
	GetRemaining(ctx context.Context, orgID string) (float64, error)
}
