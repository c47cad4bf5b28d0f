package router

import (
	"context"
	"time"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/skills"
)

// Analysis carries pre-computed signal the caller already has about the
// request, so the router does not need to re-derive it.
type Analysis struct {
	ComplexityHint string // "low", "medium", "high", or "" (unknown)
}

// Options tunes one route() call.
type Options struct {
	MinConfidence    float64       // default 0.7
	LLMAvailable     bool          // an LLM key/budget is available for fallback
	TimeBudget       time.Duration // remaining time budget for this call
	OrganizationID   string
	SessionID        string
	RequestStartedAt time.Time
}

// Method values record which §4.1 path actually produced the final
// category, for observability and debugging of routing decisions.
const (
	MethodKeywordFast        = "keyword-fast"
	MethodKeywordLLMHybrid   = "keyword-llm-hybrid"
	MethodComplexityFallback = "complexity-fallback"
	MethodLLMFallback        = "llm-fallback"
)

// CategorySelection is route()'s category output.
type CategorySelection struct {
	Category        budget.Category
	BaseCategory    budget.Category // pre-downgrade category
	Confidence      float64
	Downgraded      bool
	UsedLLM         bool
	Reasoning       string // set when UsedLLM
	Method          string // one of the Method* constants
	MatchedKeywords []string
}

// SkillSelection is route()'s skill output: the resolved, conflict-checked,
// dependency-closed, priority-sorted skill set.
type SkillSelection struct {
	Skills   []skills.Selected
	Warnings []string // conflict rule ActionWarn messages
}

// Names returns the selected skill names in priority order.
func (s SkillSelection) Names() []string {
	names := make([]string, 0, len(s.Skills))
	for _, sel := range s.Skills {
		names = append(names, sel.Name)
	}
	return names
}

// Classification is what a Classifier returns for the LLM fallback path.
type Classification struct {
	Category  budget.Category
	Skills    []string
	Reasoning string
}

// Classifier is the contract the Model Executor fulfils for the router's
// LLM fallback (§4.1). A single call; failures fall back to the keyword
// result rather than propagating.
type Classifier interface {
	Classify(ctx context.Context, request string) (Classification, error)
}
