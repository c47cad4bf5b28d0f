package router

import (
	"strings"

	"github.com/agentforge/orchestrator-core/internal/budget"
)

// scanResult is the per-category and per-skill tally from one single pass
// over the request text.
type scanResult struct {
	categoryScores  map[budget.Category]float64
	categoryHits    map[budget.Category]int
	categoryMatches map[budget.Category][]string
	skillScores     map[string]float64
	skillMatches    map[string][]string
}

// scan performs the §4.1 single-pass keyword scan: the request text is
// lowercased once, then every table entry is checked with a single
// substring probe, incrementing whichever categories/skills it declares.
func scan(request string) scanResult {
	lower := strings.ToLower(request)
	res := scanResult{
		categoryScores:  make(map[budget.Category]float64),
		categoryHits:    make(map[budget.Category]int),
		categoryMatches: make(map[budget.Category][]string),
		skillScores:     make(map[string]float64),
		skillMatches:    make(map[string][]string),
	}

	for _, entry := range Table {
		if !strings.Contains(lower, entry.Term) {
			continue
		}
		for _, cat := range entry.Categories {
			res.categoryScores[cat] += entry.Weight
			res.categoryHits[cat]++
			res.categoryMatches[cat] = append(res.categoryMatches[cat], entry.Term)
		}
		for _, skill := range entry.Skills {
			res.skillScores[skill] += entry.Weight
			res.skillMatches[skill] = append(res.skillMatches[skill], entry.Term)
		}
	}
	return res
}

// topCategory picks the highest-scoring category, tie-breaking by the
// complexity hint: low favors quick, high favors ultrabrain. Returns "" if
// nothing scored.
func (r scanResult) topCategory(complexityHint string) (budget.Category, int) {
	var best budget.Category
	var bestScore float64
	var bestHits int
	found := false

	for cat, score := range r.categoryScores {
		switch {
		case !found:
			best, bestScore, bestHits, found = cat, score, r.categoryHits[cat], true
		case score > bestScore:
			best, bestScore, bestHits = cat, score, r.categoryHits[cat]
		case score == bestScore:
			best = tieBreak(best, cat, complexityHint)
			bestHits = r.categoryHits[best]
		}
	}
	return best, bestHits
}

func tieBreak(a, b budget.Category, complexityHint string) budget.Category {
	switch complexityHint {
	case "low":
		if a == budget.CategoryQuick || b == budget.CategoryQuick {
			return budget.CategoryQuick
		}
	case "high":
		if a == budget.CategoryUltrabrain || b == budget.CategoryUltrabrain {
			return budget.CategoryUltrabrain
		}
	}
	// Stable tie-break: lexicographically smaller category wins so repeated
	// calls with the same input are deterministic.
	if string(a) < string(b) {
		return a
	}
	return b
}

// confidence derives the §4.1 confidence from match count, falling back to
// a complexity-based default when nothing matched.
func confidence(hits int, complexityHint string) float64 {
	switch {
	case hits >= 3:
		return 0.9
	case hits == 2:
		return 0.8
	case hits == 1:
		return 0.65
	default:
		if complexityHint == "high" {
			return 0.5
		}
		return 0.4
	}
}
