package tools

import (
	"fmt"
	"strings"
)

// Registry is the closed set of provider:tool pairs this core is allowed
// to dispatch. Unlike the Agent/Skill catalogs, entries here name the
// external surface agents are permitted to reach, so the set stays small
// and deliberate rather than growing with every agent's prompt.
var Registry = map[string]Descriptor{
	"search:query":          {Provider: "search", Tool: "query"},
	"data:query":            {Provider: "data", Tool: "query"},
	"analytics:compute":     {Provider: "analytics", Tool: "compute"},
	"report:generate":       {Provider: "report", Tool: "generate"},
	"git:create_pr":         {Provider: "git", Tool: "create_pr"},
	"git:create_review":     {Provider: "git", Tool: "create_review"},
	"playwright:screenshot": {Provider: "playwright", Tool: "screenshot"},
	"mcp:invoke":            {Provider: "mcp", Tool: "invoke"},
	"approval:request":      {Provider: "approval", Tool: "request"},
	"comms:send_message":    {Provider: "comms", Tool: "send_message", IdempotentErrors: []string{"already_sent"}},
	"comms:react":           {Provider: "comms", Tool: "react", IdempotentErrors: []string{"already_reacted", "no_reaction"}},
}

func init() {
	for key, d := range Registry {
		if d.Key() != key {
			panic(fmt.Sprintf("tools: registry key %q does not match descriptor %q", key, d.Key()))
		}
		if d.Provider == "" || d.Tool == "" {
			panic(fmt.Sprintf("tools: registry entry %q has an empty provider or tool", key))
		}
	}
}

// Lookup resolves a canonical "provider:tool" name against the registry.
func Lookup(canonical string) (Descriptor, bool) {
	d, ok := Registry[canonical]
	return d, ok
}

// IsIdempotentError reports whether errMsg matches one of d's known
// idempotent-failure substrings.
func (d Descriptor) IsIdempotentError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, substr := range d.IdempotentErrors {
		if strings.Contains(lower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
