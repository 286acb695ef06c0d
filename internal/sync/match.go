package sync

import (
	"github.com/bunburya/uzak/internal/archive"
)

// MatchResult maps each desired identity to at most one catalog record,
// or explains why none could be selected.
type MatchResult struct {
	Selected    map[archive.Reference]archive.Record
	Unavailable []archive.Reference
	Ambiguous   []archive.Reference
}

// Match pairs desired identities against catalog records. Pure: no side
// effects, no network. When the catalog lists several records for one
// identity the latest dated one wins; a dated record always beats an
// undated one; duplicates with the same URL collapse. Records that
// still tie with different URLs make the identity ambiguous and it is
// excluded from further processing.
func Match(desired []archive.Reference, records []archive.Record) MatchResult {
	byRef := make(map[archive.Reference][]archive.Record)
	for _, rec := range records {
		ref := rec.Reference.Normalize()
		byRef[ref] = append(byRef[ref], rec)
	}

	result := MatchResult{Selected: make(map[archive.Reference]archive.Record)}
	for _, want := range desired {
		ref := want.Normalize()
		candidates := byRef[ref]
		if len(candidates) == 0 {
			result.Unavailable = append(result.Unavailable, ref)
			continue
		}

		best, ambiguous := selectLatest(candidates)
		if ambiguous {
			result.Ambiguous = append(result.Ambiguous, ref)
			continue
		}
		result.Selected[ref] = best
	}
	return result
}

// selectLatest picks the most recently dated record. The zero month
// sorts before any dated month, so any dated record beats all undated
// ones. Two distinct records (different URLs) sharing the latest month
// cannot be told apart and are reported as ambiguous rather than
// guessed at.
func selectLatest(candidates []archive.Record) (archive.Record, bool) {
	best := candidates[0]
	ambiguous := false
	for _, c := range candidates[1:] {
		switch best.Created.Compare(c.Created) {
		case -1:
			best = c
			ambiguous = false
		case 0:
			if c.URL != best.URL {
				ambiguous = true
			}
		}
	}
	return best, ambiguous
}
