package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentforge/orchestrator-core/internal/agents"
	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/decomposer"
	"github.com/agentforge/orchestrator-core/internal/modelexec"
)

var errAlways = errors.New("stub failure")

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, organizationID, toolName string, input map[string]interface{}) (string, error) {
	return "", nil
}

type stubClient struct{ fail bool }

func (c *stubClient) Provider() string { return "anthropic" }
func (c *stubClient) ModelForTier(tier string) (string, bool) {
	return "claude-" + tier, true
}
func (c *stubClient) Complete(ctx context.Context, req modelexec.ClientRequest) (modelexec.ClientResponse, error) {
	if c.fail {
		return modelexec.ClientResponse{}, errAlways
	}
	return modelexec.ClientResponse{Blocks: []modelexec.Block{{Type: "text", Text: "ok: " + req.Prompt}}, Stopped: true}, nil
}

func newTestCoordinator(t *testing.T, fail bool) *Coordinator {
	exec := modelexec.New(zaptest.NewLogger(t), []modelexec.ModelClient{&stubClient{fail: fail}}, stubDispatcher{})
	return New(zaptest.NewLogger(t), exec, nil, 2)
}

func newTestCoordinatorWithBudget(t *testing.T, fail bool) (*Coordinator, sqlmock.Sqlmock) {
	exec := modelexec.New(zaptest.NewLogger(t), []modelexec.ModelClient{&stubClient{fail: fail}}, stubDispatcher{})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	budgetMgr := budget.NewManager(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t))

	return New(zaptest.NewLogger(t), exec, budgetMgr, 2), mock
}

func TestExecuteWithAgent_RejectsWhenDepthExceeded(t *testing.T) {
	c := newTestCoordinator(t, false)
	result := c.ExecuteWithAgent(context.Background(), agents.IDData, "do it", ExecutionContext{Depth: 3, MaxDepth: 3}, "s1", "o1", "u1")
	require.False(t, result.Success)
	require.Equal(t, depthExceededError, result.Error)
}

func TestExecuteWithAgent_Succeeds(t *testing.T) {
	c := newTestCoordinator(t, false)
	result := c.ExecuteWithAgent(context.Background(), agents.IDData, "do it", ExecutionContext{Depth: 0, MaxDepth: 3}, "s1", "o1", "u1")
	require.True(t, result.Success)
	require.Contains(t, result.Output, "do it")
}

func TestCoordinateSequential_SkipsWhenDependencyFails(t *testing.T) {
	c := newTestCoordinator(t, true)
	subtasks := []decomposer.SubTask{
		{ID: "t1", AgentID: agents.IDData, Description: "gather"},
		{ID: "t2", AgentID: agents.IDReport, Description: "report", DependsOn: []string{"t1"}},
	}
	results := c.CoordinateSequential(context.Background(), subtasks, ExecutionContext{MaxDepth: 3}, "s1", "o1", "u1")

	require.False(t, results["t1"].Success)
	require.False(t, results["t2"].Success)
	require.Equal(t, dependenciesNotMetError, results["t2"].Error)
}

func TestCoordinateParallel_RunsAllDespiteFailures(t *testing.T) {
	c := newTestCoordinator(t, false)
	tasks := []decomposer.SubTask{
		{ID: "t1", AgentID: agents.IDSearch, Description: "a"},
		{ID: "t2", AgentID: agents.IDData, Description: "b"},
		{ID: "t3", AgentID: agents.IDAnalytics, Description: "c"},
	}
	results := c.CoordinateParallel(context.Background(), tasks, ExecutionContext{MaxDepth: 3}, "s1", "o1", "u1")
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.Success)
	}
}

func TestExecuteWithAgent_ReservesRefundsAndCommitsSpendOnSuccess(t *testing.T) {
	c, mock := newTestCoordinatorWithBudget(t, false)

	// Call order within ExecuteWithAgent: Reserve (before dispatch), then on
	// success UpdateSpend (the actual cost), then the deferred Refund last.
	reserveRows := sqlmock.NewRows([]string{"id", "monthly_budget_cents", "current_month_spend_cents", "budget_reset_at"}).
		AddRow("o1", int64(10000), int64(0), time.Now())
	mock.ExpectQuery("SELECT id, monthly_budget_cents").WillReturnRows(reserveRows)
	mock.ExpectExec("INSERT INTO organizations").WillReturnResult(sqlmock.NewResult(1, 1))

	updateRows := sqlmock.NewRows([]string{"id", "monthly_budget_cents", "current_month_spend_cents", "budget_reset_at"}).
		AddRow("o1", int64(10000), int64(60), time.Now())
	mock.ExpectQuery("SELECT id, monthly_budget_cents").WillReturnRows(updateRows)
	mock.ExpectExec("INSERT INTO organizations").WillReturnResult(sqlmock.NewResult(1, 1))

	refundRows := sqlmock.NewRows([]string{"id", "monthly_budget_cents", "current_month_spend_cents", "budget_reset_at"}).
		AddRow("o1", int64(10000), int64(72), time.Now())
	mock.ExpectQuery("SELECT id, monthly_budget_cents").WillReturnRows(refundRows)
	mock.ExpectExec("INSERT INTO organizations").WillReturnResult(sqlmock.NewResult(1, 1))

	result := c.ExecuteWithAgent(context.Background(), agents.IDData, "do it", ExecutionContext{Depth: 0, MaxDepth: 3}, "s1", "o1", "u1")
	require.True(t, result.Success)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregate_ListsFailuresSeparately(t *testing.T) {
	c := newTestCoordinator(t, false)
	results := map[string]AgentExecutionResult{
		"t1": {AgentLabel: "Data Agent", Success: true, Output: "found data"},
		"t2": {AgentLabel: "Report Agent", Success: false, Error: "timeout"},
	}
	out := c.Aggregate([]string{"t1", "t2"}, results)
	require.Contains(t, out, "found data")
	require.Contains(t, out, "FAILED AGENTS:")
	require.Contains(t, out, "timeout")
}
