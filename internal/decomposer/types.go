package decomposer

import "github.com/agentforge/orchestrator-core/internal/agents"

// SubTask is one unit of work in a decomposition, depending on zero or more
// earlier subtasks by ID.
type SubTask struct {
	ID          string
	AgentID     agents.ID
	Description string
	DependsOn   []string
}

// Result is what Decompose returns.
type Result struct {
	Subtasks           []SubTask
	RequiresMultiAgent bool
	Complexity         string // "low", "medium", "high"
	ParallelGroups     [][]agents.ID
}
