// Package router implements the Request Router (spec §4.1): a hybrid
// keyword/LLM classifier that turns free-text into a (category, skill set)
// pair, with caching, session bias, and budget-aware downgrade.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
	"github.com/agentforge/orchestrator-core/internal/session"
	"github.com/agentforge/orchestrator-core/internal/skills"
)

const defaultMinConfidence = 0.7

// sessionBiasBoost is the small constant added to a follow-up request's
// confidence when it shares the session's recent category (§4.1).
const sessionBiasBoost = 0.1

// Router is the Request Router. It holds no per-request state; a single
// instance is safe for concurrent use.
type Router struct {
	logger     *zap.Logger
	classifier Classifier // may be nil: LLM fallback simply never fires
	cache      *routeCache
	budget     *budget.Manager
	sessions   *session.Manager
}

// New constructs a Router. classifier and redis may both be nil in tests or
// in a deployment that only wants the keyword fast path.
func New(logger *zap.Logger, classifier Classifier, redisWrapper *circuitbreaker.RedisWrapper, cacheTTL time.Duration, budgetMgr *budget.Manager, sessionMgr *session.Manager) *Router {
	var cache *routeCache
	if redisWrapper != nil {
		cache = newRouteCache(redisWrapper, cacheTTL, logger)
	}
	return &Router{
		logger:     logger,
		classifier: classifier,
		cache:      cache,
		budget:     budgetMgr,
		sessions:   sessionMgr,
	}
}

// Route classifies request into a category and skill set. It never
// returns an error for classification failure (§4.1 "Selection must never
// throw"); it always yields a usable CategorySelection.
func (r *Router) Route(ctx context.Context, request string, analysis Analysis, opts Options) (CategorySelection, SkillSelection) {
	if opts.MinConfidence == 0 {
		opts.MinConfidence = defaultMinConfidence
	}

	result := scan(request)
	cat, hits := result.topCategory(analysis.ComplexityHint)
	conf := confidence(hits, analysis.ComplexityHint)
	matchedKeywords := result.categoryMatches[cat]
	method := MethodKeywordFast
	if cat == "" {
		cat = fallbackCategory(analysis.ComplexityHint)
		method = MethodComplexityFallback
		matchedKeywords = nil
	}

	selection := r.buildSkillSelection(result)
	prevCat := cat
	conf, cat = r.applyCombinations(selection, conf, cat)
	if cat != prevCat && method != MethodComplexityFallback {
		method = MethodKeywordLLMHybrid
	}

	sel := CategorySelection{
		Category:        cat,
		BaseCategory:    cat,
		Confidence:      conf,
		Method:          method,
		MatchedKeywords: matchedKeywords,
	}

	sel = r.applySessionBias(request, opts, sel)

	if sel.Confidence < opts.MinConfidence && r.classifier != nil && opts.LLMAvailable && !budgetExhaustedForTime(opts) {
		sel, selection = r.tryLLMFallback(ctx, request, sel, selection)
	}

	selection = r.resolveConflicts(&sel, selection)

	sel = r.applyDowngrade(ctx, opts, sel, analysis)

	return sel, selection
}

func fallbackCategory(complexityHint string) budget.Category {
	if complexityHint == "low" {
		return budget.CategoryQuick
	}
	return budget.CategoryUnspecifiedLow
}

// buildSkillSelection converts a scan's skill hits into a skills.Set with
// dependency closure already resolved.
func (r *Router) buildSkillSelection(result scanResult) SkillSelection {
	set := skills.NewSet()
	for name, score := range result.skillScores {
		set.Add(name, score, result.skillMatches[name], false)
	}
	set.ResolveDependencies()
	return SkillSelection{Skills: set.Sorted()}
}

func skillSet(sel SkillSelection) *skills.Set {
	set := skills.NewSet()
	for _, s := range sel.Skills {
		set.Add(s.Name, s.Score, s.MatchedKeywords, s.FromDependency)
	}
	return set
}

// applyCombinations applies the skill-combination confidence boost and
// lets a strong emergent category override a weak one.
func (r *Router) applyCombinations(sel SkillSelection, conf float64, cat budget.Category) (float64, budget.Category) {
	set := skillSet(sel)
	for _, rule := range set.MatchingCombinations() {
		conf += rule.ConfidenceBoost
		if conf > 1 {
			conf = 1
		}
		if cat == budget.CategoryQuick || cat == budget.CategoryUnspecifiedLow {
			cat = budget.Category(rule.EmergentCategory)
		}
	}
	return conf, cat
}

// applySessionBias boosts confidence for a same-category follow-up.
func (r *Router) applySessionBias(request string, opts Options, sel CategorySelection) CategorySelection {
	if r.sessions == nil || opts.SessionID == "" || !isFollowUp(request) {
		return sel
	}
	sessCtx, err := r.sessions.GetContext(context.Background(), opts.SessionID)
	if err != nil || sessCtx.RecentCategory == "" {
		return sel
	}
	if budget.Category(sessCtx.RecentCategory) == sel.Category {
		sel.Confidence += sessionBiasBoost
		if sel.Confidence > 1 {
			sel.Confidence = 1
		}
	}
	return sel
}

func isFollowUp(request string) bool {
	if len(request) > 60 {
		return false
	}
	lower := request
	for _, tok := range referentialTokens {
		if containsWord(lower, tok) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for _, part := range splitWords(s) {
		if part == word {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if isLetter {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			words = append(words, lowerASCII(s[start:i]))
			start = -1
		}
	}
	if start != -1 {
		words = append(words, lowerASCII(s[start:]))
	}
	return words
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// tryLLMFallback invokes the classifier once and, on success, replaces the
// keyword result outright per §4.1. On failure it returns the keyword
// result untouched.
func (r *Router) tryLLMFallback(ctx context.Context, request string, sel CategorySelection, skillSel SkillSelection) (CategorySelection, SkillSelection) {
	fp := Fingerprint(request)
	if cached, ok := r.cache.get(ctx, fp); ok {
		return fromClassification(cached, sel), r.fromSkillNames(cached.Skills)
	}

	cls, err := r.classifier.Classify(ctx, request)
	if err != nil {
		r.logger.Warn("llm classification failed, keeping keyword result", zap.Error(err))
		return sel, skillSel
	}

	r.cache.set(ctx, fp, cls)
	return fromClassification(cls, sel), r.fromSkillNames(cls.Skills)
}

func fromClassification(cls Classification, previous CategorySelection) CategorySelection {
	return CategorySelection{
		Category:     cls.Category,
		BaseCategory: cls.Category,
		Confidence:   1.0,
		UsedLLM:      true,
		Reasoning:    cls.Reasoning,
		Method:       MethodLLMFallback,
	}
}

func (r *Router) fromSkillNames(names []string) SkillSelection {
	set := skills.NewSet()
	for _, name := range names {
		if _, ok := skills.Catalog[name]; ok {
			set.Add(name, 1.0, nil, false)
		}
	}
	set.ResolveDependencies()
	return SkillSelection{Skills: set.Sorted()}
}

// resolveConflicts applies the fixed (category, skill) conflict table and
// returns the (possibly narrowed) skill selection.
func (r *Router) resolveConflicts(sel *CategorySelection, skillSel SkillSelection) SkillSelection {
	set := skillSet(skillSel)
	var warnings []string
	for _, rule := range skills.Conflicts {
		if sel.Category != budget.Category(rule.Category) || !set.Has(rule.Skill) {
			continue
		}
		switch rule.Action {
		case skills.ActionUpgradeCategory:
			sel.Category = budget.Category(rule.UpgradeTo)
		case skills.ActionRemoveSkill:
			set.Remove(rule.Skill)
		case skills.ActionWarn:
			r.logger.Info("skill conflict warning",
				zap.String("category", rule.Category), zap.String("skill", rule.Skill))
			warnings = append(warnings, "skill "+rule.Skill+" conflicts with category "+rule.Category)
		}
	}
	return SkillSelection{Skills: set.Sorted(), Warnings: warnings}
}

// applyDowngrade implements the §4.1 budget-aware downgrade rule.
func (r *Router) applyDowngrade(ctx context.Context, opts Options, sel CategorySelection, analysis Analysis) CategorySelection {
	if r.budget == nil || opts.OrganizationID == "" {
		return sel
	}
	remaining, err := r.budget.GetRemaining(ctx, opts.OrganizationID)
	if err != nil {
		r.logger.Warn("budget lookup failed during downgrade check", zap.Error(err))
		return sel
	}

	downgrade := false
	switch {
	case remaining < 100 && sel.Category == budget.CategoryUltrabrain:
		downgrade = true
	case remaining < 20 && isExpensiveNonUltra(sel.Category):
		downgrade = true
	case analysis.ComplexityHint == "low" && isExpensive(sel.Category):
		downgrade = true
	}

	if downgrade {
		sel.BaseCategory = sel.Category
		sel.Category = budget.CategoryQuick
		sel.Downgraded = true
	}
	return sel
}

func isExpensiveNonUltra(cat budget.Category) bool {
	switch cat {
	case budget.CategoryVisualEngineering, budget.CategoryWriting, budget.CategoryArtistry:
		return true
	default:
		return false
	}
}

func isExpensive(cat budget.Category) bool {
	return cat != budget.CategoryQuick && cat != budget.CategoryUnspecifiedLow
}

func budgetExhaustedForTime(opts Options) bool {
	if opts.TimeBudget <= 0 {
		return false
	}
	return time.Since(opts.RequestStartedAt) >= opts.TimeBudget
}
