// Package agents defines the closed registry of named agent specializations
// the Coordinator and Decomposer dispatch work to (spec §3 "Agent").
package agents

// ID identifies one member of the closed agent registry.
type ID string

const (
	IDSearch     ID = "search"
	IDData       ID = "data"
	IDAnalytics  ID = "analytics"
	IDTask       ID = "task"
	IDApproval   ID = "approval"
	IDReport     ID = "report"
	IDComms      ID = "comms"
)

// Agent is a named specialization with a fixed system prompt, default
// category, and skill set.
type Agent struct {
	ID                 ID
	Name               string
	Category           string
	Skills             []string
	Capabilities       []string
	SystemPrompt       string
	CanDelegateTo      []ID
	MaxConcurrentTasks int
	TimeoutMs          int
}

// priorityOrder is the fixed linearization priority from §4.2:
// search < data < analytics < task < approval < report < comms.
var priorityOrder = []ID{IDSearch, IDData, IDAnalytics, IDTask, IDApproval, IDReport, IDComms}

// Catalog is the closed agent registry, keyed by ID.
var Catalog = map[ID]Agent{
	IDSearch: {
		ID:           IDSearch,
		Name:         "Search Agent",
		Category:     "unspecified-high",
		Skills:       []string{"research"},
		Capabilities: []string{"web_search", "document_search"},
		SystemPrompt: "You locate and summarize source material relevant to the user's request. " +
			"Cite what you found; do not fabricate sources.",
		CanDelegateTo:      []ID{IDData, IDAnalytics},
		MaxConcurrentTasks: 3,
		TimeoutMs:          60_000,
	},
	IDData: {
		ID:           IDData,
		Name:         "Data Agent",
		Category:     "unspecified-high",
		Skills:       []string{"data-analysis"},
		Capabilities: []string{"query_dataset", "aggregate"},
		SystemPrompt: "You retrieve and aggregate the structured data needed to answer the request. " +
			"Report the query you ran alongside the result.",
		CanDelegateTo:      []ID{IDAnalytics, IDReport},
		MaxConcurrentTasks: 5,
		TimeoutMs:          90_000,
	},
	IDAnalytics: {
		ID:           IDAnalytics,
		Name:         "Analytics Agent",
		Category:     "unspecified-high",
		Skills:       []string{"data-analysis"},
		Capabilities: []string{"compute_metric", "trend_detection"},
		SystemPrompt: "You compute metrics and trends from data supplied by a previous agent. " +
			"State your assumptions and the formula used.",
		CanDelegateTo:      []ID{IDReport},
		MaxConcurrentTasks: 5,
		TimeoutMs:          90_000,
	},
	IDTask: {
		ID:           IDTask,
		Name:         "Task Agent",
		Category:     "unspecified-high",
		Skills:       []string{"git-master", "mcp-integration"},
		Capabilities: []string{"run_tool", "code_change"},
		SystemPrompt: "You carry out a concrete action (a code change, a tool invocation) on behalf " +
			"of the request. Report exactly what you changed or invoked.",
		CanDelegateTo:      []ID{IDApproval, IDReport},
		MaxConcurrentTasks: 5,
		TimeoutMs:          120_000,
	},
	IDApproval: {
		ID:           IDApproval,
		Name:         "Approval Agent",
		Category:     "unspecified-high",
		Skills:       []string{"approval-workflow"},
		Capabilities: []string{"request_approval"},
		SystemPrompt: "You determine whether a proposed action requires human sign-off and, if so, " +
			"describe what the approver needs to decide.",
		CanDelegateTo:      []ID{IDReport},
		MaxConcurrentTasks: 2,
		TimeoutMs:          60_000,
	},
	IDReport: {
		ID:           IDReport,
		Name:         "Report Agent",
		Category:     "writing",
		Skills:       []string{"report-writing"},
		Capabilities: []string{"summarize", "format_document"},
		SystemPrompt: "You assemble the findings of prior agents into a single structured report. " +
			"Preserve attribution to the agent that produced each finding.",
		CanDelegateTo:      []ID{IDComms},
		MaxConcurrentTasks: 3,
		TimeoutMs:          90_000,
	},
	IDComms: {
		ID:           IDComms,
		Name:         "Comms Agent",
		Category:     "writing",
		Skills:       []string{"communications"},
		Capabilities: []string{"send_message", "draft_email"},
		SystemPrompt: "You turn a finished report into an outward-facing message in the tone the " +
			"request implies. Never invent a recipient that wasn't specified.",
		MaxConcurrentTasks: 3,
		TimeoutMs:          45_000,
	},
}
