package router

import "github.com/agentforge/orchestrator-core/internal/budget"

// Entry is one row of the unified keyword table used by the single-pass
// scan (§4.1). A request is scored against every entry exactly once;
// entries may contribute to both a category score and a skill score in the
// same pass.
type Entry struct {
	Term       string
	Categories []budget.Category
	Skills     []string
	Weight     float64
	Language   string // "en" unless noted; reserved for future i18n entries
}

// Table is the fixed unified keyword table. It is intentionally small and
// hand-curated: the LLM fallback (§4.1) exists precisely so this table does
// not need to anticipate every phrasing.
var Table = []Entry{
	{Term: "fix typo", Categories: []budget.Category{budget.CategoryQuick}, Weight: 1.0, Language: "en"},
	{Term: "rename", Categories: []budget.Category{budget.CategoryQuick}, Weight: 0.8, Language: "en"},
	{Term: "quick fix", Categories: []budget.Category{budget.CategoryQuick}, Weight: 1.0, Language: "en"},
	{Term: "one-liner", Categories: []budget.Category{budget.CategoryQuick}, Weight: 0.8, Language: "en"},

	{Term: "architecture", Categories: []budget.Category{budget.CategoryUltrabrain}, Weight: 1.2, Language: "en"},
	{Term: "design a system", Categories: []budget.Category{budget.CategoryUltrabrain}, Weight: 1.3, Language: "en"},
	{Term: "security audit", Categories: []budget.Category{budget.CategoryUltrabrain}, Skills: []string{"security-audit"}, Weight: 1.3, Language: "en"},
	{Term: "vulnerability", Categories: []budget.Category{budget.CategoryUltrabrain}, Skills: []string{"security-audit"}, Weight: 1.1, Language: "en"},
	{Term: "root cause", Categories: []budget.Category{budget.CategoryUltrabrain}, Weight: 1.0, Language: "en"},

	{Term: "layout", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"frontend-ui-ux"}, Weight: 1.0, Language: "en"},
	{Term: "css", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"frontend-ui-ux"}, Weight: 0.9, Language: "en"},
	{Term: "component", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"frontend-ui-ux"}, Weight: 0.7, Language: "en"},
	{Term: "responsive", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"frontend-ui-ux"}, Weight: 0.8, Language: "en"},
	{Term: "e2e test", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"playwright"}, Weight: 1.0, Language: "en"},
	{Term: "screenshot test", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"playwright"}, Weight: 1.0, Language: "en"},
	{Term: "visual regression", Categories: []budget.Category{budget.CategoryVisualEngineering}, Skills: []string{"playwright"}, Weight: 1.1, Language: "en"},

	{Term: "write a poem", Categories: []budget.Category{budget.CategoryArtistry}, Weight: 1.2, Language: "en"},
	{Term: "creative writing", Categories: []budget.Category{budget.CategoryArtistry}, Weight: 1.1, Language: "en"},
	{Term: "brand voice", Categories: []budget.Category{budget.CategoryArtistry}, Weight: 1.0, Language: "en"},

	{Term: "write a report", Categories: []budget.Category{budget.CategoryWriting}, Skills: []string{"report-writing"}, Weight: 1.1, Language: "en"},
	{Term: "summarize", Categories: []budget.Category{budget.CategoryWriting}, Skills: []string{"report-writing"}, Weight: 0.9, Language: "en"},
	{Term: "draft an email", Categories: []budget.Category{budget.CategoryWriting}, Skills: []string{"communications"}, Weight: 1.0, Language: "en"},
	{Term: "send a message", Categories: []budget.Category{budget.CategoryWriting}, Skills: []string{"communications"}, Weight: 0.9, Language: "en"},
	{Term: "notify", Categories: []budget.Category{budget.CategoryWriting}, Skills: []string{"communications"}, Weight: 0.8, Language: "en"},

	{Term: "analyze", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"data-analysis"}, Weight: 0.9, Language: "en"},
	{Term: "aggregate", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"data-analysis"}, Weight: 0.8, Language: "en"},
	{Term: "research", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"research"}, Weight: 0.9, Language: "en"},
	{Term: "investigate", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"research"}, Weight: 0.9, Language: "en"},
	{Term: "code review", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"code-review"}, Weight: 1.0, Language: "en"},
	{Term: "review this pr", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"code-review", "git-master"}, Weight: 1.1, Language: "en"},
	{Term: "approve", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"approval-workflow"}, Weight: 0.9, Language: "en"},
	{Term: "mcp", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"mcp-integration"}, Weight: 0.8, Language: "en"},
	{Term: "rebase", Categories: []budget.Category{budget.CategoryUnspecifiedHigh}, Skills: []string{"git-master"}, Weight: 0.8, Language: "en"},
}

// referentialTokens marks a request as a plausible follow-up for the
// session-bias pass: short, and referencing something not named inline.
var referentialTokens = []string{"it", "that", "this", "again", "also", "same", "those", "them"}
