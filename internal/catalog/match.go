package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// MatchResult is the drug chosen for a free-text medication name.
type MatchResult struct {
	Drug Drug
	// Candidates counts every active drug whose name contained the query.
	Candidates int
	Exact      bool
}

// Ambiguous reports whether more than one catalog entry matched.
func (m MatchResult) Ambiguous() bool {
	return m.Candidates > 1
}

// MatchMedication resolves a prescription medication name against the catalog by
// case-insensitive substring match on generic and brand names. Inactive drugs never
// match. When several drugs match, an exact name match wins, then the shorter name,
// then the lower drug id, so the same catalog always yields the same drug.
func MatchMedication(drugs []Drug, name string) (MatchResult, bool) {
	folder := cases.Fold()
	query := folder.String(strings.TrimSpace(name))
	if query == "" {
		return MatchResult{}, false
	}
	type candidate struct {
		drug   Drug
		exact  bool
		length int
	}
	var found []candidate
	for _, d := range drugs {
		if !d.IsActive {
			continue
		}
		best := candidate{drug: d, length: -1}
		for _, n := range []string{d.GenericName, d.BrandName} {
			folded := folder.String(strings.TrimSpace(n))
			if folded == "" || !strings.Contains(folded, query) {
				continue
			}
			exact := folded == query
			if best.length < 0 || (exact && !best.exact) || (exact == best.exact && len(folded) < best.length) {
				best.exact = exact
				best.length = len(folded)
			}
		}
		if best.length >= 0 {
			found = append(found, best)
		}
	}
	if len(found) == 0 {
		return MatchResult{}, false
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].exact != found[j].exact {
			return found[i].exact
		}
		if found[i].length != found[j].length {
			return found[i].length < found[j].length
		}
		return found[i].drug.ID < found[j].drug.ID
	})
	return MatchResult{Drug: found[0].drug, Candidates: len(found), Exact: found[0].exact}, true
}
