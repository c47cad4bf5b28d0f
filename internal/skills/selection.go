package skills

import "sort"

// Selected is one skill chosen for a request, with the scoring and
// provenance the router needs to explain and order the final set.
type Selected struct {
	Name            string
	Score           float64
	MatchedKeywords []string
	FromDependency  bool
}

// Set is an ordered collection of Selected skills, keyed by name so the
// dependency closure pass can cheaply check membership.
type Set struct {
	byName map[string]*Selected
}

// NewSet returns an empty selection set.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Selected)}
}

// Add inserts or merges a skill into the set. A skill already present keeps
// its FromDependency=false status if it was directly matched; scores are not
// summed, the higher of the two wins.
func (s *Set) Add(name string, score float64, matched []string, fromDependency bool) {
	if existing, ok := s.byName[name]; ok {
		if score > existing.Score {
			existing.Score = score
		}
		existing.MatchedKeywords = append(existing.MatchedKeywords, matched...)
		if !fromDependency {
			existing.FromDependency = false
		}
		return
	}
	s.byName[name] = &Selected{
		Name:            name,
		Score:           score,
		MatchedKeywords: matched,
		FromDependency:  fromDependency,
	}
}

// Has reports whether a skill is already present in the set.
func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Remove drops a skill from the set (used by conflict resolution).
func (s *Set) Remove(name string) {
	delete(s.byName, name)
}

// Names returns the skill names currently in the set, unsorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	return names
}

// ResolveDependencies expands the set with each member's Requires set
// (transitively, marked FromDependency=true) and Suggests set (one level,
// only added if absent). Unknown skill names are ignored defensively since
// Add can only ever be called with catalog-validated names by the router.
func (s *Set) ResolveDependencies() {
	// Requires: transitive closure via repeated passes until the set is
	// stable. The catalog is small and acyclic (validated at init), so a
	// fixed-point loop bounded by len(Catalog) always terminates.
	for pass := 0; pass < len(Catalog)+1; pass++ {
		added := false
		for _, name := range s.Names() {
			skill, ok := Catalog[name]
			if !ok {
				continue
			}
			for _, req := range skill.Requires {
				if !s.Has(req) {
					s.Add(req, 0, nil, true)
					added = true
				}
			}
		}
		if !added {
			break
		}
	}

	// Suggests: single level, only fill gaps.
	for _, name := range s.Names() {
		skill, ok := Catalog[name]
		if !ok {
			continue
		}
		for _, sug := range skill.Suggests {
			if !s.Has(sug) {
				s.Add(sug, 0, nil, true)
			}
		}
	}
}

// Sorted returns the set's members ordered by the catalog's fixed priority,
// then by name for a stable tie-break.
func (s *Set) Sorted() []Selected {
	out := make([]Selected, 0, len(s.byName))
	for _, sel := range s.byName {
		out = append(out, *sel)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorityOf(out[i].Name), priorityOf(out[j].Name)
		if pi != pj {
			return pi < pj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func priorityOf(name string) int {
	if skill, ok := Catalog[name]; ok {
		return skill.Priority
	}
	return 1 << 30
}

// MatchingCombinations returns the combination rules whose full skill set is
// present in s, used by the router to apply a confidence boost and consider
// an emergent-category override.
func (s *Set) MatchingCombinations() []CombinationRule {
	var matches []CombinationRule
	for _, rule := range Combinations {
		all := true
		for _, name := range rule.Skills {
			if !s.Has(name) {
				all = false
				break
			}
		}
		if all {
			matches = append(matches, rule)
		}
	}
	return matches
}
