package agents

import "fmt"

// Get looks up an agent by ID.
func Get(id ID) (Agent, bool) {
	a, ok := Catalog[id]
	return a, ok
}

// MustGet looks up an agent by ID and panics if it is not cataloged; used at
// startup for IDs that are compile-time constants, never for user input.
func MustGet(id ID) Agent {
	a, ok := Catalog[id]
	if !ok {
		panic(fmt.Sprintf("agents: unknown agent id %q", id))
	}
	return a
}

// PriorityIndex returns the fixed linearization rank used by the Task
// Decomposer (§4.2) to order agents when more than one is detected in a
// request: search < data < analytics < task < approval < report < comms.
// Unknown IDs sort last.
func PriorityIndex(id ID) int {
	for i, candidate := range priorityOrder {
		if candidate == id {
			return i
		}
	}
	return len(priorityOrder)
}

// CanDelegate reports whether from is permitted to delegate to to per the
// static registry's can_delegate_to edges.
func CanDelegate(from, to ID) bool {
	a, ok := Catalog[from]
	if !ok {
		return false
	}
	for _, candidate := range a.CanDelegateTo {
		if candidate == to {
			return true
		}
	}
	return false
}

func init() {
	for id, a := range Catalog {
		if a.ID != id {
			panic(fmt.Sprintf("agents: catalog key %q does not match Agent.ID %q", id, a.ID))
		}
		for _, target := range a.CanDelegateTo {
			if _, ok := Catalog[target]; !ok {
				panic(fmt.Sprintf("agents: %q declares can_delegate_to unknown agent %q", id, target))
			}
		}
	}
}
