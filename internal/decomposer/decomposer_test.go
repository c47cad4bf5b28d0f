package decomposer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentforge/orchestrator-core/internal/agents"
)

func newTestDecomposer(t *testing.T) *Decomposer {
	return New(zaptest.NewLogger(t))
}

func TestDecompose_SingleAgentRequest(t *testing.T) {
	d := newTestDecomposer(t)
	result := d.Decompose("fix the typo in README")

	require.False(t, result.RequiresMultiAgent)
	require.Equal(t, "low", result.Complexity)
	require.Len(t, result.Subtasks, 1)
}

func TestDecompose_SendReportPatternLinearizesThreeAgents(t *testing.T) {
	d := newTestDecomposer(t)
	result := d.Decompose("send a report to the team")

	require.True(t, result.RequiresMultiAgent)
	require.Len(t, result.Subtasks, 3)
	require.Equal(t, agents.IDData, result.Subtasks[0].AgentID)
	require.Equal(t, agents.IDReport, result.Subtasks[1].AgentID)
	require.Equal(t, agents.IDComms, result.Subtasks[2].AgentID)
	require.Equal(t, "medium", result.Complexity)
}

func TestDecompose_SearchAndAnalyzeProducesParallelGroup(t *testing.T) {
	d := newTestDecomposer(t)
	result := d.Decompose("search the web and analyze the results then report")

	require.Len(t, result.ParallelGroups, 2)
	require.Len(t, result.ParallelGroups[0], 2)
	require.ElementsMatch(t, []agents.ID{agents.IDSearch, agents.IDAnalytics}, result.ParallelGroups[0])
	require.Equal(t, []agents.ID{agents.IDReport}, result.ParallelGroups[1])
}

func TestDecompose_KeywordFallbackLinearizesByPriority(t *testing.T) {
	d := newTestDecomposer(t)
	result := d.Decompose("approve the request and notify the team")

	require.True(t, result.RequiresMultiAgent)
	require.Equal(t, agents.IDApproval, result.Subtasks[0].AgentID)
	require.Equal(t, agents.IDComms, result.Subtasks[1].AgentID)
}

func TestLayer_CircularDependencyBreaksWithoutHanging(t *testing.T) {
	d := newTestDecomposer(t)
	subtasks := []SubTask{
		{ID: "a", AgentID: agents.IDData, DependsOn: []string{"b"}},
		{ID: "b", AgentID: agents.IDReport, DependsOn: []string{"a"}},
	}
	groups := d.layer(subtasks)
	require.Empty(t, groups)
}

func TestEstimateComplexity(t *testing.T) {
	require.Equal(t, "low", estimateComplexity(1))
	require.Equal(t, "medium", estimateComplexity(3))
	require.Equal(t, "high", estimateComplexity(4))
}
