package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/metrics"
)

// Orchestrator is the Multi-Agent Orchestrator (§4.4): it decomposes a
// request, picks single/sequential/parallel execution, races the whole
// run against a wall-clock timeout, and aggregates the result.
type Orchestrator struct {
	logger      *zap.Logger
	decomposer  *decomposer.Decomposer
	coordinator *coordinator.Coordinator
	store       ExecutionStore // may be nil
	budget      BudgetChecker  // may be nil: preflight simply never fires
	maxParallel int
}

// New constructs an Orchestrator. store and budgetChecker may both be nil:
// execution-record persistence and the budget preflight are then skipped
// without affecting Orchestrate's result.
func New(logger *zap.Logger, d *decomposer.Decomposer, c *coordinator.Coordinator, store ExecutionStore, budgetChecker BudgetChecker, maxParallel int) *Orchestrator {
	if maxParallel <= 0 {
		maxParallel = defaultMaxAgents
	}
	return &Orchestrator{logger: logger, decomposer: d, coordinator: c, store: store, budget: budgetChecker, maxParallel: maxParallel}
}

// Orchestrate is the top-level entry point (§4.4). It never returns a Go
// error: every failure mode (timeout, loop detection, per-agent failure)
// is reported as a structured Result field.
func (o *Orchestrator) Orchestrate(ctx context.Context, request string, opts Options) Result {
	opts = opts.withDefaults()
	rootID := uuid.NewString()

	if o.store != nil {
		if err := o.store.CreateExecution(rootID, opts.OrganizationID, opts.UserID, opts.SessionID, request); err != nil {
			o.logger.Warn("orchestrator: failed to record root execution", zap.Error(err), zap.String("root_execution_id", rootID))
		}
	}

	if res, rejected := o.checkBudget(ctx, rootID, opts); rejected {
		return res
	}

	decomposition := o.decomposer.Decompose(request)
	subtasks := capSubtasks(decomposition.Subtasks, opts.MaxAgents)

	type run struct {
		result Result
	}
	done := make(chan run, 1)
	start := time.Now()

	go func() {
		done <- run{result: o.execute(ctx, rootID, subtasks, decomposition.Complexity, opts)}
	}()

	var final Result
	select {
	case r := <-done:
		final = r.result
	case <-time.After(opts.Timeout):
		final = Result{
			RootExecutionID: rootID,
			Mode:            ModeSequential,
			Complexity:      decomposition.Complexity,
			TimedOut:        true,
			Output:          "orchestration timed out before completion",
		}
	case <-ctx.Done():
		final = Result{
			RootExecutionID: rootID,
			Complexity:      decomposition.Complexity,
			TimedOut:        true,
			Output:          "orchestration canceled: " + ctx.Err().Error(),
		}
	}

	// metricsStatus keeps the fine-grained reason (for observability);
	// persistedStatus collapses to the executions table's fixed
	// running/completed/failed vocabulary.
	metricsStatus := "completed"
	persistedStatus := "completed"
	switch {
	case final.TimedOut:
		metricsStatus = "timed_out"
		persistedStatus = "failed"
	case final.LoopDetected:
		metricsStatus = "loop_detected"
		persistedStatus = "failed"
	}
	metrics.RecordOrchestration(final.Mode, metricsStatus, time.Since(start).Seconds())
	for _, reason := range final.DetectedLoops {
		metrics.LoopDetectorTrips.WithLabelValues(loopKind(reason)).Inc()
	}

	if o.store != nil {
		if err := o.store.UpdateExecution(rootID, persistedStatus, final.Output); err != nil {
			o.logger.Warn("orchestrator: failed to update root execution", zap.Error(err), zap.String("root_execution_id", rootID))
		}
	}

	return final
}

// checkBudget is the §4.4 scenario-3 preflight: a request for an
// organization whose remaining budget is already exhausted is rejected
// before decomposition or any model call, and the rejection is persisted
// with metadata.reason="budget_exhausted" rather than the ordinary
// completed/failed status.
func (o *Orchestrator) checkBudget(ctx context.Context, rootID string, opts Options) (Result, bool) {
	if o.budget == nil || opts.OrganizationID == "" {
		return Result{}, false
	}

	remaining, err := o.budget.GetRemaining(ctx, opts.OrganizationID)
	if err != nil {
		o.logger.Warn("orchestrator: budget preflight check failed, proceeding without it",
			zap.Error(err), zap.String("root_execution_id", rootID))
		return Result{}, false
	}
	if !budget.IsExhausted(remaining) {
		return Result{}, false
	}

	output := fmt.Sprintf("budget exhausted for organization %s: request rejected before dispatch", opts.OrganizationID)
	if o.store != nil {
		if err := o.store.RecordBudgetExhausted(rootID, output); err != nil {
			o.logger.Warn("orchestrator: failed to record budget-exhausted execution",
				zap.Error(err), zap.String("root_execution_id", rootID))
		}
	}
	metrics.RecordOrchestration(ModeSingleAgent, "budget_exhausted", 0)
	metrics.BudgetExhaustedTotal.WithLabelValues(opts.OrganizationID).Inc()

	return Result{
		RootExecutionID: rootID,
		Mode:            ModeSingleAgent,
		BudgetExhausted: true,
		Output:          output,
	}, true
}

// execute runs the decomposed plan to completion: single-agent shortcut,
// or layered sequential/parallel coordination with loop detection.
func (o *Orchestrator) execute(ctx context.Context, rootID string, subtasks []decomposer.SubTask, complexity string, opts Options) Result {
	if len(subtasks) == 0 {
		return Result{RootExecutionID: rootID, Mode: ModeSingleAgent, Complexity: complexity, Output: "", Success: true}
	}

	ectx := coordinator.ExecutionContext{Depth: 0, MaxDepth: opts.MaxDepth, RootExecutionID: rootID}

	if len(subtasks) == 1 {
		st := subtasks[0]
		res := o.coordinator.ExecuteWithAgent(ctx, st.AgentID, st.Description, ectx, opts.SessionID, opts.OrganizationID, opts.UserID)
		return Result{
			RootExecutionID: rootID,
			Mode:            ModeSingleAgent,
			Complexity:      complexity,
			Output:          res.Output,
			SubtaskResults:  map[string]coordinator.AgentExecutionResult{st.ID: res},
			Success:         res.Success,
		}
	}

	layers := layerSubtasks(subtasks)
	mode := ModeSequential
	for _, layer := range layers {
		if len(layer) > 1 {
			mode = ModeParallel
			break
		}
	}

	detector := NewLoopDetector(10, opts.MaxDepth+2)
	order := make([]string, 0, len(subtasks))
	results := make(map[string]coordinator.AgentExecutionResult, len(subtasks))

	for _, layer := range layers {
		layerResults := o.runLayer(ctx, layer, subtasks, results, detector, ectx, opts)
		for id, res := range layerResults {
			results[id] = res
			order = append(order, id)
		}
	}

	summary := detector.Summary()
	output := o.coordinator.Aggregate(order, results)
	loopDetected := len(summary.DetectedLoops) > 0
	if loopDetected {
		output = loopExitSummary(summary) + "\n\n" + output
	}

	return Result{
		RootExecutionID: rootID,
		Mode:            mode,
		Complexity:      complexity,
		Output:          output,
		SubtaskResults:  results,
		Success:         !loopDetected,
		LoopDetected:    loopDetected,
		DetectedLoops:   summary.DetectedLoops,
		IterationCount:  summary.IterationCount,
	}
}

// loopExitSummary builds the §4.4a exit report prepended to the aggregated
// output whenever the loop detector terminated a run: the literal phrase
// callers match on, followed by which checks tripped and the full
// delegation chain that led there.
func loopExitSummary(summary Summary) string {
	return fmt.Sprintf("Circular dependency detected: %s (execution chain: %s)",
		strings.Join(summary.DetectedLoops, "; "), strings.Join(summary.ExecutionChain, " -> "))
}

// runLayer executes every subtask in one topological layer concurrently
// (bounded by maxParallel), injecting "CONTEXT FROM PREVIOUS AGENTS" from
// already-completed dependencies and consulting the loop detector first.
func (o *Orchestrator) runLayer(ctx context.Context, layerIDs []string, subtasks []decomposer.SubTask, completed map[string]coordinator.AgentExecutionResult, detector *LoopDetector, ectx coordinator.ExecutionContext, opts Options) map[string]coordinator.AgentExecutionResult {
	byID := make(map[string]decomposer.SubTask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}

	out := make(map[string]coordinator.AgentExecutionResult, len(layerIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.maxParallel)

	for _, id := range layerIDs {
		id := id
		st := byID[id]

		depsFailed := false
		var depContext string
		for _, dep := range st.DependsOn {
			depResult, ok := completed[dep]
			if !ok || !depResult.Success {
				depsFailed = true
				break
			}
			depContext += fmt.Sprintf("[%s]: %s\n", depResult.AgentLabel, depResult.Output)
		}
		if depsFailed {
			mu.Lock()
			out[id] = coordinator.AgentExecutionResult{AgentLabel: string(st.AgentID), Success: false, Error: "Dependencies not met"}
			mu.Unlock()
			continue
		}

		prompt := st.Description
		if depContext != "" {
			prompt = fmt.Sprintf("CONTEXT FROM PREVIOUS AGENTS:\n%s\n%s", depContext, st.Description)
		}

		if ok, reason := detector.CheckBefore(string(st.AgentID), prompt); !ok {
			mu.Lock()
			out[id] = coordinator.AgentExecutionResult{AgentLabel: string(st.AgentID), Success: false, Error: reason}
			mu.Unlock()
			continue
		}
		detector.RecordExecution(string(st.AgentID), prompt)

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res := o.coordinator.ExecuteWithAgent(ctx, st.AgentID, prompt, ectx, opts.SessionID, opts.OrganizationID, opts.UserID)
			mu.Lock()
			out[id] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// loopKind buckets a detected-loop reason down to a low-cardinality label
// for metrics, since the reason string itself embeds agent names/counts.
func loopKind(reason string) string {
	switch {
	case strings.Contains(reason, "max iterations"):
		return "max_iterations"
	case strings.Contains(reason, "circular"):
		return "circular_dependency"
	case strings.Contains(reason, "repeat"):
		return "task_repetition"
	default:
		return "other"
	}
}

// capSubtasks truncates subtasks to max entries (§4.4 "cap at max_agents"),
// dropping DependsOn references that point outside the kept set so no
// surviving subtask is stuck waiting on a dependency that was cut.
func capSubtasks(subtasks []decomposer.SubTask, max int) []decomposer.SubTask {
	if len(subtasks) <= max {
		return subtasks
	}
	kept := subtasks[:max]
	keptIDs := make(map[string]bool, len(kept))
	for _, st := range kept {
		keptIDs[st.ID] = true
	}
	out := make([]decomposer.SubTask, len(kept))
	for i, st := range kept {
		var deps []string
		for _, d := range st.DependsOn {
			if keptIDs[d] {
				deps = append(deps, d)
			}
		}
		st.DependsOn = deps
		out[i] = st
	}
	return out
}

// layerSubtasks groups subtasks into topological layers by Kahn's
// algorithm, same fail-safe-break-on-cycle idiom as the Task Decomposer's
// own layering, but keyed by subtask ID rather than agent ID so the
// orchestrator can run each layer through the coordinator directly.
func layerSubtasks(subtasks []decomposer.SubTask) [][]string {
	if len(subtasks) == 0 {
		return nil
	}
	placed := make(map[string]bool, len(subtasks))
	var layers [][]string

	for len(placed) < len(subtasks) {
		var layer []string
		for _, st := range subtasks {
			if placed[st.ID] {
				continue
			}
			ready := true
			for _, dep := range st.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, st.ID)
			}
		}
		if len(layer) == 0 {
			break // circular dependency: stop rather than loop forever
		}
		for _, id := range layer {
			placed[id] = true
		}
		layers = append(layers, layer)
	}
	return layers
}
