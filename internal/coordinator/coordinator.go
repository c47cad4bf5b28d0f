package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/agents"
	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/metrics"
	"github.com/agentforge/orchestrator-core/internal/modelexec"
)

// Coordinator is the Agent Coordinator. maxParallel is config-driven
// (MAX_PARALLEL_AGENTS, default 5, spec §6).
type Coordinator struct {
	logger      *zap.Logger
	executor    *modelexec.Executor
	budget      *budget.Manager // may be nil: execution proceeds without reservation
	maxParallel int
}

// New constructs a Coordinator. budgetMgr may be nil in tests or a
// deployment that runs without per-organization budgets.
func New(logger *zap.Logger, executor *modelexec.Executor, budgetMgr *budget.Manager, maxParallel int) *Coordinator {
	if maxParallel <= 0 {
		maxParallel = 5
	}
	return &Coordinator{logger: logger, executor: executor, budget: budgetMgr, maxParallel: maxParallel}
}

// ExecuteWithAgent builds the composite system+user prompt and delegates to
// the Model Executor. It never returns a Go error: failures (including
// depth-exceeded) become AgentExecutionResult{Success: false}.
//
// Budget accounting (§4.8) brackets the call: an estimated cost is reserved
// before dispatch and always refunded afterward, then the model's actual
// cost is committed via update_spend on success, so the net movement across
// the three calls equals the real spend and a failed call costs nothing.
func (c *Coordinator) ExecuteWithAgent(ctx context.Context, agentID agents.ID, prompt string, ectx ExecutionContext, sessionID, orgID, userID string) AgentExecutionResult {
	label := string(agentID)
	start := time.Now()
	if ectx.Depth >= ectx.MaxDepth {
		metrics.RecordAgentExecution(label, "depth_exceeded", 0)
		return AgentExecutionResult{AgentLabel: label, Success: false, Error: depthExceededError}
	}

	agent, ok := agents.Get(agentID)
	if !ok {
		metrics.RecordAgentExecution(label, "unknown_agent", 0)
		return AgentExecutionResult{AgentLabel: label, Success: false, Error: fmt.Sprintf("unknown agent %q", agentID)}
	}

	category := categoryFor(agent)
	if c.budget != nil && orgID != "" {
		if estimateCents, err := budget.EstimateCostCents(category, nil, nil); err != nil {
			c.logger.Warn("budget estimate failed, proceeding without reservation", zap.Error(err))
		} else if allowed, _, err := c.budget.Reserve(ctx, orgID, estimateCents); err != nil {
			c.logger.Warn("budget reserve failed, proceeding without reservation", zap.Error(err))
		} else if allowed {
			defer func() {
				if err := c.budget.Refund(ctx, orgID, estimateCents); err != nil {
					c.logger.Warn("budget refund failed", zap.Error(err))
				}
			}()
		}
	}

	composite := buildPrompt(agent.SystemPrompt, prompt)
	result := c.executor.Execute(ctx, modelexec.Request{
		Category:       category,
		Skills:         agent.Skills,
		Prompt:         composite,
		SessionID:      sessionID,
		OrganizationID: orgID,
		UserID:         userID,
	})
	durationMs := float64(time.Since(start).Milliseconds())

	if result.Status != modelexec.StatusSuccess {
		metrics.RecordAgentExecution(agent.Name, "failed", durationMs)
		return AgentExecutionResult{AgentLabel: agent.Name, Success: false, Error: result.Metadata.Error, Metadata: result.Metadata}
	}

	if c.budget != nil && orgID != "" {
		if err := c.budget.UpdateSpend(ctx, orgID, result.Metadata.CostCents); err != nil {
			c.logger.Warn("budget update_spend failed", zap.Error(err))
		}
	}

	metrics.RecordAgentExecution(agent.Name, "success", durationMs)
	return AgentExecutionResult{AgentLabel: agent.Name, Success: true, Output: result.Output, Metadata: result.Metadata}
}

func categoryFor(agent agents.Agent) budget.Category {
	return budget.Category(agent.Category)
}

// CoordinateSequential executes subtasks in dependency order, concatenating
// completed dependency outputs into each task's prompt as
// "CONTEXT FROM PREVIOUS AGENTS" (§4.3). A subtask whose dependency failed
// is skipped with AgentExecutionResult.Error = "Dependencies not met".
func (c *Coordinator) CoordinateSequential(ctx context.Context, subtasks []decomposer.SubTask, ectx ExecutionContext, sessionID, orgID, userID string) map[string]AgentExecutionResult {
	order := topoOrder(subtasks)
	byID := make(map[string]decomposer.SubTask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}

	results := make(map[string]AgentExecutionResult, len(subtasks))
	for _, id := range order {
		st := byID[id]

		depsFailed := false
		var context string
		for _, dep := range st.DependsOn {
			depResult, ok := results[dep]
			if !ok || !depResult.Success {
				depsFailed = true
				break
			}
			context += fmt.Sprintf("[%s]: %s\n", depResult.AgentLabel, depResult.Output)
		}
		if depsFailed {
			results[id] = AgentExecutionResult{AgentLabel: string(st.AgentID), Success: false, Error: dependenciesNotMetError}
			continue
		}

		prompt := st.Description
		if context != "" {
			prompt = fmt.Sprintf("CONTEXT FROM PREVIOUS AGENTS:\n%s\n%s", context, st.Description)
		}
		results[id] = c.ExecuteWithAgent(ctx, st.AgentID, prompt, ectx, sessionID, orgID, userID)
	}
	return results
}

// CoordinateParallel launches all tasks concurrently, capped at
// maxParallel, and waits for all to finish; no short-circuit on first
// failure (§4.3).
func (c *Coordinator) CoordinateParallel(ctx context.Context, tasks []decomposer.SubTask, ectx ExecutionContext, sessionID, orgID, userID string) map[string]AgentExecutionResult {
	results := make(map[string]AgentExecutionResult, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.maxParallel)

	for _, st := range tasks {
		st := st
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res := c.ExecuteWithAgent(ctx, st.AgentID, st.Description, ectx, sessionID, orgID, userID)
			mu.Lock()
			results[st.ID] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Aggregate concatenates successful outputs in insertion order (prefixed by
// agent label) and appends a section listing failed agents (§4.3).
func (c *Coordinator) Aggregate(order []string, results map[string]AgentExecutionResult) string {
	var out string
	var failures []string

	for _, id := range order {
		res, ok := results[id]
		if !ok {
			continue
		}
		if res.Success {
			out += fmt.Sprintf("[%s]\n%s\n\n", res.AgentLabel, res.Output)
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", res.AgentLabel, res.Error))
		}
	}

	if len(failures) > 0 {
		out += "FAILED AGENTS:\n"
		for _, f := range failures {
			out += "- " + f + "\n"
		}
	}
	return out
}

// topoOrder returns subtask IDs ordered so every dependency precedes its
// dependents, falling back to declaration order for independent tasks.
func topoOrder(subtasks []decomposer.SubTask) []string {
	byID := make(map[string]decomposer.SubTask, len(subtasks))
	var declOrder []string
	for _, st := range subtasks {
		byID[st.ID] = st
		declOrder = append(declOrder, st.ID)
	}

	placed := make(map[string]bool, len(subtasks))
	var order []string
	for len(order) < len(subtasks) {
		progressed := false
		for _, id := range declOrder {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range byID[id].DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, id)
				placed[id] = true
				progressed = true
			}
		}
		if !progressed {
			break // circular dependency: stop rather than loop forever
		}
	}
	return order
}
