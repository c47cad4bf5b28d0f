// Package decomposer implements the Task Decomposer (spec §4.2): turning a
// raw request into an ordered set of subtasks with declared dependencies,
// and layering those subtasks into parallel execution groups.
package decomposer

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/agents"
)

// Decomposer is stateless; a single instance is safe for concurrent use.
type Decomposer struct {
	logger *zap.Logger
}

// New constructs a Decomposer.
func New(logger *zap.Logger) *Decomposer {
	return &Decomposer{logger: logger}
}

// Decompose turns request into a Result. It never returns an error: an
// unrecognized request degrades to a single generic task subtask.
func (d *Decomposer) Decompose(request string) Result {
	subtasks := d.matchPattern(request)
	if subtasks == nil {
		subtasks = d.matchKeywords(request)
	}

	groups := d.layer(subtasks)
	return Result{
		Subtasks:           subtasks,
		RequiresMultiAgent: len(subtasks) > 1,
		Complexity:         estimateComplexity(len(subtasks)),
		ParallelGroups:     groups,
	}
}

func (d *Decomposer) matchPattern(request string) []SubTask {
	for _, p := range patterns {
		if !p.match.MatchString(request) {
			continue
		}
		if len(p.parallel) > 0 {
			return d.subtasksFromParallel(request, p)
		}
		return d.subtasksFromChain(request, p.chain)
	}
	return nil
}

func (d *Decomposer) subtasksFromChain(request string, chain []agents.ID) []SubTask {
	subtasks := make([]SubTask, 0, len(chain))
	var prev string
	for i, agentID := range chain {
		id := fmt.Sprintf("t%d", i+1)
		var deps []string
		if prev != "" {
			deps = []string{prev}
		}
		subtasks = append(subtasks, SubTask{
			ID:          id,
			AgentID:     agentID,
			Description: request,
			DependsOn:   deps,
		})
		prev = id
	}
	return subtasks
}

func (d *Decomposer) subtasksFromParallel(request string, p pattern) []SubTask {
	subtasks := make([]SubTask, 0, len(p.parallel)+1)
	var ids []string
	for i, agentID := range p.parallel {
		id := fmt.Sprintf("t%d", i+1)
		subtasks = append(subtasks, SubTask{ID: id, AgentID: agentID, Description: request})
		ids = append(ids, id)
	}
	if p.then != "" {
		subtasks = append(subtasks, SubTask{
			ID:          fmt.Sprintf("t%d", len(subtasks)+1),
			AgentID:     p.then,
			Description: request,
			DependsOn:   ids,
		})
	}
	return subtasks
}

// matchKeywords detects agents mentioned in the request; if at most one is
// found the request is single-agent, otherwise the detected agents are
// linearized via the fixed priority order (§4.2).
func (d *Decomposer) matchKeywords(request string) []SubTask {
	lower := strings.ToLower(request)
	seen := make(map[agents.ID]bool)
	for kw, agentID := range keywordAgents {
		if strings.Contains(lower, kw) {
			seen[agentID] = true
		}
	}

	if len(seen) == 0 {
		return []SubTask{{ID: "t1", AgentID: agents.IDTask, Description: request}}
	}
	if len(seen) == 1 {
		var only agents.ID
		for id := range seen {
			only = id
		}
		return []SubTask{{ID: "t1", AgentID: only, Description: request}}
	}

	ordered := make([]agents.ID, 0, len(seen))
	for id := range seen {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return agents.PriorityIndex(ordered[i]) < agents.PriorityIndex(ordered[j])
	})
	return d.subtasksFromChain(request, ordered)
}

// layer computes parallel_groups by Kahn's topological layering: repeatedly
// collect subtasks whose dependencies have all already been placed in an
// earlier layer. A circular dependency is logged and breaks out rather than
// looping forever (spec §4.2 "fail-safe: break").
func (d *Decomposer) layer(subtasks []SubTask) [][]agents.ID {
	if len(subtasks) == 0 {
		return nil
	}

	byID := make(map[string]SubTask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}

	placed := make(map[string]bool, len(subtasks))
	var groups [][]agents.ID

	for len(placed) < len(subtasks) {
		var layer []agents.ID
		var layerIDs []string
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
				layer = append(layer, st.AgentID)
				layerIDs = append(layerIDs, st.ID)
			}
		}
		if len(layer) == 0 {
			d.logger.Error("decomposer: circular dependency detected, breaking layering",
				zap.Int("unplaced", len(subtasks)-len(placed)))
			break
		}
		for _, id := range layerIDs {
			placed[id] = true
		}
		groups = append(groups, layer)
	}
	return groups
}

func estimateComplexity(subtaskCount int) string {
	switch {
	case subtaskCount <= 1:
		return "low"
	case subtaskCount <= 3:
		return "medium"
	default:
		return "high"
	}
}
