package agents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityIndex_MatchesFixedOrder(t *testing.T) {
	require.Less(t, PriorityIndex(IDSearch), PriorityIndex(IDData))
	require.Less(t, PriorityIndex(IDData), PriorityIndex(IDAnalytics))
	require.Less(t, PriorityIndex(IDAnalytics), PriorityIndex(IDTask))
	require.Less(t, PriorityIndex(IDTask), PriorityIndex(IDApproval))
	require.Less(t, PriorityIndex(IDApproval), PriorityIndex(IDReport))
	require.Less(t, PriorityIndex(IDReport), PriorityIndex(IDComms))
}

func TestPriorityIndex_UnknownSortsLast(t *testing.T) {
	require.Equal(t, len(priorityOrder), PriorityIndex(ID("bogus")))
}

func TestCanDelegate_HonorsRegistryEdges(t *testing.T) {
	require.True(t, CanDelegate(IDData, IDReport))
	require.False(t, CanDelegate(IDComms, IDSearch))
}

func TestSpawnLabel_DeterministicAcrossCalls(t *testing.T) {
	a := SpawnLabel("root-exec-1", 3)
	b := SpawnLabel("root-exec-1", 3)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}
