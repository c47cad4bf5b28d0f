package workflow

import (
	"fmt"
	"sync"
)

// Definitions holds the set of named WorkflowDefinitions a worker process
// serves. Unlike the agent/skill catalogs this set is externally supplied
// (loaded from config at startup, §4.6), so it is a registry rather than a
// closed compile-time table — but once Load returns, workflow code only
// ever reads it, which keeps lookups replay-safe.
type Definitions struct {
	mu  sync.RWMutex
	byName map[string]WorkflowDefinition
}

// NewDefinitions constructs an empty registry.
func NewDefinitions() *Definitions {
	return &Definitions{byName: make(map[string]WorkflowDefinition)}
}

// Load validates and installs defs, replacing any previously loaded set.
func Load(defs []WorkflowDefinition) (*Definitions, error) {
	d := NewDefinitions()
	for _, def := range defs {
		if err := validate(def); err != nil {
			return nil, fmt.Errorf("workflow: definition %q: %w", def.Name, err)
		}
		d.byName[def.Name] = def
	}
	return d, nil
}

// Lookup returns the named definition.
func (d *Definitions) Lookup(name string) (WorkflowDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.byName[name]
	return def, ok
}

func validate(def WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("empty name")
	}
	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.ID == "" || n.ID == StartNode || n.ID == EndNode {
			return fmt.Errorf("node id %q is reserved or empty", n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		switch n.Kind {
		case NodeAgent, NodeParallel, NodeCondition, NodeHumanApproval:
		default:
			return fmt.Errorf("node %q: unknown kind %q", n.ID, n.Kind)
		}
	}
	for _, e := range def.Edges {
		if e.From != StartNode && !seen[e.From] {
			return fmt.Errorf("edge from unknown node %q", e.From)
		}
		if e.To != EndNode && !seen[e.To] {
			return fmt.Errorf("edge to unknown node %q", e.To)
		}
	}
	return nil
}
