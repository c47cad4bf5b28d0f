package decomposer

import (
	"regexp"

	"github.com/agentforge/orchestrator-core/internal/agents"
)

// pattern is one row of the fixed pattern table (§4.2): a regex that, when
// it matches the raw request, produces an ordered agent chain with each
// agent depending on the one before it.
type pattern struct {
	name string
	match *regexp.Regexp
	// chain declares a linear agent sequence: each depends on the one
	// before it.
	chain []agents.ID
	// parallel declares a set of agents with no dependency between them;
	// if set, then (if non-empty) depends on every member of parallel.
	// chain is ignored when parallel is set.
	parallel []agents.ID
	then     agents.ID
}

// patterns is checked in order; the first match wins.
var patterns = []pattern{
	{
		name:  "report-from-data",
		match: regexp.MustCompile(`(?i)report\s+(from|on|using)\s+(the\s+)?data`),
		chain: []agents.ID{agents.IDData, agents.IDReport},
	},
	{
		name:  "send-report",
		match: regexp.MustCompile(`(?i)send\s+(a\s+|the\s+)?report`),
		chain: []agents.ID{agents.IDData, agents.IDReport, agents.IDComms},
	},
	{
		name:  "search-and-analyze",
		match: regexp.MustCompile(`(?i)search\s+.*\s+and\s+analy[sz]e`),
		parallel: []agents.ID{agents.IDSearch, agents.IDAnalytics},
		then:     agents.IDReport,
	},
	{
		name:  "research-and-report",
		match: regexp.MustCompile(`(?i)research\s+.*\s+and\s+(write|summarize|report)`),
		chain: []agents.ID{agents.IDSearch, agents.IDReport},
	},
	{
		name:  "analyze-and-approve",
		match: regexp.MustCompile(`(?i)analy[sz]e\s+.*\s+(and\s+)?(get|request|need)\s+approval`),
		chain: []agents.ID{agents.IDAnalytics, agents.IDApproval},
	},
	{
		name:  "review-and-send",
		match: regexp.MustCompile(`(?i)review\s+.*\s+and\s+(send|notify|email)`),
		chain: []agents.ID{agents.IDTask, agents.IDComms},
	},
}

// keywordAgents maps a lowercase substring to the agent it implies, for the
// fallback path when no pattern in the table matches.
var keywordAgents = map[string]agents.ID{
	"search":     agents.IDSearch,
	"look up":    agents.IDSearch,
	"find":       agents.IDSearch,
	"data":       agents.IDData,
	"query":      agents.IDData,
	"analyze":    agents.IDAnalytics,
	"analyse":    agents.IDAnalytics,
	"metric":     agents.IDAnalytics,
	"trend":      agents.IDAnalytics,
	"fix":        agents.IDTask,
	"implement":  agents.IDTask,
	"change":     agents.IDTask,
	"approve":    agents.IDApproval,
	"approval":   agents.IDApproval,
	"sign off":   agents.IDApproval,
	"report":     agents.IDReport,
	"summarize":  agents.IDReport,
	"send":       agents.IDComms,
	"notify":     agents.IDComms,
	"email":      agents.IDComms,
}
