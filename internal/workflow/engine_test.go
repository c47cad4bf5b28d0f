package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/agentforge/orchestrator-core/internal/coordinator"
	"github.com/agentforge/orchestrator-core/internal/modelexec"
)

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
		return modelexec.ClientResponse{}, errors.New("stub failure")
	}
	return modelexec.ClientResponse{Blocks: []modelexec.Block{{Type: "text", Text: "ok: " + req.Prompt}}, Stopped: true}, nil
}

type fakeApprovals struct{ approvalID string }

func (f fakeApprovals) RequestApproval(ctx context.Context, approverID, reason string, variables map[string]interface{}) (string, error) {
	return f.approvalID, nil
}

func newTestActivities(t *testing.T, fail bool, defs *Definitions) *Activities {
	exec := modelexec.New(zaptest.NewLogger(t), []modelexec.ModelClient{&stubClient{fail: fail}}, stubDispatcher{})
	coord := coordinator.New(zaptest.NewLogger(t), exec, nil, 3)
	return &Activities{Coordinator: coord, Approvals: fakeApprovals{approvalID: "appr-1"}, Definitions: defs}
}

func registerActivities(env *testsuite.TestWorkflowEnvironment, a *Activities) {
	env.RegisterActivityWithOptions(a.ExecuteAgent, activity.RegisterOptions{Name: ExecuteAgentActivityName})
	env.RegisterActivityWithOptions(a.ExecuteParallel, activity.RegisterOptions{Name: ExecuteParallelActivityName})
	env.RegisterActivityWithOptions(a.RequestApproval, activity.RegisterOptions{Name: RequestApprovalActivityName})
	env.RegisterActivityWithOptions(a.GetWorkflowDefinition, activity.RegisterOptions{Name: GetWorkflowDefinitionActivityName})
}

func TestExecute_SingleAgentNodeCompletes(t *testing.T) {
	def := WorkflowDefinition{
		Name:  "single-agent",
		Nodes: []WorkflowNode{{ID: "n1", Kind: NodeAgent, AgentID: "search"}},
		Edges: []Edge{
			{From: StartNode, To: "n1"},
			{From: "n1", To: EndNode},
		},
		DefaultTimeoutMs: 5000,
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.ExecuteWorkflow(Execute, ExecuteInput{WorkflowName: "single-agent", Request: "find recent releases"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusCompleted, result.Status)
	require.Contains(t, result.Context.NodeResults["n1"].Output, "find recent releases")
}

func TestExecute_AgentFailurePropagatesAsWorkflowFailed(t *testing.T) {
	def := WorkflowDefinition{
		Name:  "single-agent",
		Nodes: []WorkflowNode{{ID: "n1", Kind: NodeAgent, AgentID: "search"}},
		Edges: []Edge{
			{From: StartNode, To: "n1"},
			{From: "n1", To: EndNode},
		},
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, true, defs))
	env.RegisterWorkflow(Execute)

	env.ExecuteWorkflow(Execute, ExecuteInput{WorkflowName: "single-agent", Request: "anything"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusFailed, result.Status)
}

func TestExecute_ConditionGatesDownstreamEdge(t *testing.T) {
	def := WorkflowDefinition{
		Name: "conditional",
		Nodes: []WorkflowNode{
			{ID: "cond", Kind: NodeCondition, Expr: `flag == true`},
			{ID: "yes", Kind: NodeAgent, AgentID: "report"},
			{ID: "no", Kind: NodeAgent, AgentID: "comms"},
		},
		Edges: []Edge{
			{From: StartNode, To: "cond"},
			{From: "cond", To: "yes", Condition: `condition:cond == true`},
			{From: "cond", To: "no", Condition: `condition:cond == false`},
			{From: "yes", To: EndNode},
			{From: "no", To: EndNode},
		},
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.ExecuteWorkflow(Execute, ExecuteInput{
		WorkflowName:     "conditional",
		Request:          "route me",
		InitialVariables: map[string]interface{}{"flag": true},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusCompleted, result.Status)
	_, ranNo := result.Context.NodeResults["no"]
	require.False(t, ranNo)
	_, ranYes := result.Context.NodeResults["yes"]
	require.True(t, ranYes)
}

func TestExecute_ParallelNodeRunsAllAgents(t *testing.T) {
	def := WorkflowDefinition{
		Name: "fanout",
		Nodes: []WorkflowNode{
			{ID: "p1", Kind: NodeParallel, Agents: []string{"search", "analytics"}},
		},
		Edges: []Edge{
			{From: StartNode, To: "p1"},
			{From: "p1", To: EndNode},
		},
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.ExecuteWorkflow(Execute, ExecuteInput{WorkflowName: "fanout", Request: "scan the market"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusCompleted, result.Status)
	require.Contains(t, result.Context.NodeResults["p1"].Output, "search")
	require.Contains(t, result.Context.NodeResults["p1"].Output, "analytics")
}

func TestExecute_HumanApprovalSignalApproves(t *testing.T) {
	def := WorkflowDefinition{
		Name: "needs-approval",
		Nodes: []WorkflowNode{
			{ID: "gate", Kind: NodeHumanApproval, ApprovalType: "spend"},
			{ID: "after", Kind: NodeAgent, AgentID: "comms"},
		},
		Edges: []Edge{
			{From: StartNode, To: "gate"},
			{From: "gate", To: "after"},
			{From: "after", To: EndNode},
		},
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalName("appr-1"), ApprovalDecision{Approved: true})
	}, 0)

	env.ExecuteWorkflow(Execute, ExecuteInput{
		WorkflowName:     "needs-approval",
		Request:          "send the report",
		InitialVariables: map[string]interface{}{"approverId": "user-1"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, "appr-1", result.ApprovalID)
}

func TestExecute_HumanApprovalDeniedFailsWorkflow(t *testing.T) {
	def := WorkflowDefinition{
		Name: "needs-approval",
		Nodes: []WorkflowNode{
			{ID: "gate", Kind: NodeHumanApproval, ApprovalType: "spend"},
		},
		Edges: []Edge{
			{From: StartNode, To: "gate"},
			{From: "gate", To: EndNode},
		},
	}
	defs, err := Load([]WorkflowDefinition{def})
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalName("appr-1"), ApprovalDecision{Approved: false, Feedback: "too risky"})
	}, 0)

	env.ExecuteWorkflow(Execute, ExecuteInput{
		WorkflowName:     "needs-approval",
		Request:          "send the report",
		InitialVariables: map[string]interface{}{"approverId": "user-1"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ExecuteResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, StatusFailed, result.Status)
	require.Contains(t, result.Context.NodeResults["gate"].Error, "too risky")
}

func TestExecute_UnknownWorkflowNameErrors(t *testing.T) {
	defs, err := Load(nil)
	require.NoError(t, err)

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	registerActivities(env, newTestActivities(t, false, defs))
	env.RegisterWorkflow(Execute)

	env.ExecuteWorkflow(Execute, ExecuteInput{WorkflowName: "does-not-exist"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
