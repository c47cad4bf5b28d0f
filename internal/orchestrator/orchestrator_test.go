package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentforge/orchestrator-core/internal/agents"
	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/modelexec"
)

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, organizationID, toolName string, input map[string]interface{}) (string, error) {
	return "", nil
}

type stubClient struct {
	fail  bool
	delay time.Duration
}

func (c *stubClient) Provider() string { return "anthropic" }
func (c *stubClient) ModelForTier(tier string) (string, bool) {
	return "claude-" + tier, true
}
func (c *stubClient) Complete(ctx context.Context, req modelexec.ClientRequest) (modelexec.ClientResponse, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail {
		return modelexec.ClientResponse{}, errors.New("stub failure")
	}
	return modelexec.ClientResponse{Blocks: []modelexec.Block{{Type: "text", Text: "ok: " + req.Prompt}}, Stopped: true}, nil
}

type memStore struct {
	created         []string
	updated         []string
	budgetExhausted []string
}

func (m *memStore) CreateExecution(rootExecutionID, orgID, userID, sessionID, request string) error {
	m.created = append(m.created, rootExecutionID)
	return nil
}
func (m *memStore) UpdateExecution(rootExecutionID, status, output string) error {
	m.updated = append(m.updated, status)
	return nil
}
func (m *memStore) RecordBudgetExhausted(rootExecutionID, output string) error {
	m.budgetExhausted = append(m.budgetExhausted, rootExecutionID)
	return nil
}

type stubBudgetChecker struct {
	remaining float64
}

func (s stubBudgetChecker) GetRemaining(ctx context.Context, orgID string) (float64, error) {
	return s.remaining, nil
}

func newTestOrchestrator(t *testing.T, fail bool, delay time.Duration, store ExecutionStore) *Orchestrator {
	return newTestOrchestratorWithBudget(t, fail, delay, store, nil)
}

func newTestOrchestratorWithBudget(t *testing.T, fail bool, delay time.Duration, store ExecutionStore, budgetChecker BudgetChecker) *Orchestrator {
	exec := modelexec.New(zaptest.NewLogger(t), []modelexec.ModelClient{&stubClient{fail: fail, delay: delay}}, stubDispatcher{})
	coord := coordinator.New(zaptest.NewLogger(t), exec, nil, 3)
	decomp := decomposer.New(zaptest.NewLogger(t))
	return New(zaptest.NewLogger(t), decomp, coord, store, budgetChecker, 3)
}

func TestOrchestrate_SingleAgentRequest(t *testing.T) {
	o := newTestOrchestrator(t, false, 0, nil)
	result := o.Orchestrate(context.Background(), "search for recent go releases", Options{})

	require.Equal(t, ModeSingleAgent, result.Mode)
	require.NotEmpty(t, result.RootExecutionID)
	require.Contains(t, result.Output, "search for recent go releases")
	require.False(t, result.TimedOut)
}

func TestOrchestrate_MultiAgentChainAggregatesOutput(t *testing.T) {
	o := newTestOrchestrator(t, false, 0, nil)
	result := o.Orchestrate(context.Background(), "report from the data", Options{})

	require.Equal(t, ModeSequential, result.Mode)
	require.Len(t, result.SubtaskResults, 2)
	require.NotContains(t, result.Output, "FAILED AGENTS:")
	require.False(t, result.LoopDetected)
}

func TestOrchestrate_ParallelFanOutUsesParallelMode(t *testing.T) {
	o := newTestOrchestrator(t, false, 0, nil)
	result := o.Orchestrate(context.Background(), "search the market and analyze competitors", Options{})

	require.Equal(t, ModeParallel, result.Mode)
	require.Len(t, result.SubtaskResults, 3)
}

func TestOrchestrate_RecordsRootExecutionInStore(t *testing.T) {
	store := &memStore{}
	o := newTestOrchestrator(t, false, 0, store)
	result := o.Orchestrate(context.Background(), "search for recent go releases", Options{})

	require.Len(t, store.created, 1)
	require.Equal(t, store.created[0], result.RootExecutionID)
	require.Equal(t, []string{"completed"}, store.updated)
}

func TestOrchestrate_TimesOutOnSlowAgent(t *testing.T) {
	o := newTestOrchestrator(t, false, 50*time.Millisecond, nil)
	result := o.Orchestrate(context.Background(), "search for recent go releases", Options{Timeout: 5 * time.Millisecond})

	require.True(t, result.TimedOut)
}

func TestOrchestrate_RejectsWhenBudgetExhausted(t *testing.T) {
	store := &memStore{}
	o := newTestOrchestratorWithBudget(t, false, 0, store, stubBudgetChecker{remaining: 5})
	result := o.Orchestrate(context.Background(), "search for recent go releases", Options{OrganizationID: "org-1"})

	require.False(t, result.Success)
	require.True(t, result.BudgetExhausted)
	require.Contains(t, result.Output, "budget")
	require.Contains(t, result.Output, "exhausted")
	require.Empty(t, result.SubtaskResults)
	require.Len(t, store.budgetExhausted, 1)
	require.Equal(t, store.budgetExhausted[0], result.RootExecutionID)
	require.Empty(t, store.updated) // budget rejection bypasses the ordinary UpdateExecution path
}

func TestOrchestrate_ProceedsWhenBudgetAvailable(t *testing.T) {
	o := newTestOrchestratorWithBudget(t, false, 0, nil, stubBudgetChecker{remaining: 10000})
	result := o.Orchestrate(context.Background(), "search for recent go releases", Options{OrganizationID: "org-1"})

	require.False(t, result.BudgetExhausted)
	require.True(t, result.Success)
}

func TestOrchestrate_LoopDetectedMarksRunFailedWithExitSummary(t *testing.T) {
	o := newTestOrchestrator(t, false, 0, nil)
	detector := NewLoopDetector(1, 5)

	subtasks := []decomposer.SubTask{
		{ID: "t1", AgentID: agents.IDSearch, Description: "search"},
		{ID: "t2", AgentID: agents.IDData, Description: "gather", DependsOn: []string{"t1"}},
	}
	ectx := coordinator.ExecutionContext{MaxDepth: 3}
	results := o.runLayer(context.Background(), []string{"t1"}, subtasks, map[string]coordinator.AgentExecutionResult{}, detector, ectx, Options{})
	require.True(t, results["t1"].Success)

	// Exhaust the detector's iteration budget so the next layer trips it.
	layerResults := o.runLayer(context.Background(), []string{"t2"}, subtasks, results, detector, ectx, Options{})
	require.False(t, layerResults["t2"].Success)

	summary := detector.Summary()
	require.NotEmpty(t, summary.DetectedLoops)
	output := loopExitSummary(summary)
	require.Contains(t, output, "Circular dependency detected")
}

func TestCapSubtasks_DropsDanglingDependencies(t *testing.T) {
	subtasks := []decomposer.SubTask{
		{ID: "t1", AgentID: agents.IDSearch},
		{ID: "t2", AgentID: agents.IDData, DependsOn: []string{"t1"}},
		{ID: "t3", AgentID: agents.IDReport, DependsOn: []string{"t1", "t2"}},
	}
	capped := capSubtasks(subtasks, 2)

	require.Len(t, capped, 2)
	require.Equal(t, []string{"t1"}, capped[1].DependsOn)
}

func TestLoopDetector_FlagsExactTaskRepetition(t *testing.T) {
	// A window of 1 keeps the circular check (which runs first) from firing
	// once another agent has run in between.
	d := NewLoopDetector(10, 1)
	ok, _ := d.CheckBefore("data-agent", "fetch rows")
	require.True(t, ok)
	d.RecordExecution("data-agent", "fetch rows")
	d.RecordExecution("report-agent", "summarize")

	ok, reason := d.CheckBefore("data-agent", "fetch rows")
	require.False(t, ok)
	require.Contains(t, reason, "repeat")
}

func TestLoopDetector_FlagsMaxIterations(t *testing.T) {
	d := NewLoopDetector(2, 5)
	d.RecordExecution("a", "1")
	d.RecordExecution("a", "2")

	ok, reason := d.CheckBefore("a", "3")
	require.False(t, ok)
	require.Contains(t, reason, "max iterations")
}
