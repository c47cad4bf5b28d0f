// Package spawner implements the Sub-Agent Spawner (spec §4.5): the guard
// rails an already-running agent must pass before it is allowed to spawn a
// child agent of its own, and the bounded, structured-result-only
// execution of that child.
package spawner

import (
	"context"
	"time"

	"github.com/agentforge/orchestrator-core/internal/coordinator"
)

// HardSpawnDepth is the absolute ceiling on delegation depth regardless of
// any per-request MaxDepth a caller configures (§4.5).
const HardSpawnDepth = 5

// Request is what a running agent passes to spawn a child.
type Request struct {
	ParentDepth     int
	MaxDepth        int // the request's configured depth ceiling, <= HardSpawnDepth
	RootExecutionID string
	ParentAgentID   string
	OrganizationID  string
	UserID          string
	SessionID       string

	ChildAgentID string
	Task         string
	Context      map[string]interface{} // inherited context propagated to the child
}

// Result is Spawn's return value. A rejected spawn (depth, rate limit,
// budget) is reported here, never as a Go error (§7).
type Result struct {
	Spawned    bool
	Rejected   string // reason, set iff !Spawned
	ChildLabel string
	Execution  coordinator.AgentExecutionResult
}

// BudgetChecker is the subset of budget.Manager the spawner needs: the
// remaining-budget guard (§4.5 "remaining_budget < MIN_REQUIRED_BUDGET").
type BudgetChecker interface {
	GetRemaining(ctx context.Context, organizationID string) (float64, error)
}

// ExecutionRecorder persists the child execution record (§4.5 "tree
// invariant on root_execution_id / parent_execution_id"). Best-effort: a
// nil recorder, or one that errors, never blocks the spawn itself.
type ExecutionRecorder interface {
	CreateChildExecution(childExecutionID, rootExecutionID, parentExecutionID, agentID string) error
}

const childTimeoutDefault = 300 * time.Second
