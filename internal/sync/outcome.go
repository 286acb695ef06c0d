package sync

import (
	"fmt"

	"github.com/bunburya/uzak/internal/archive"
)

// OutcomeKind classifies what a sync run did (or failed to do) for one
// identity.
type OutcomeKind string

const (
	OutcomeDownloaded         OutcomeKind = "downloaded"
	OutcomeUnchanged          OutcomeKind = "unchanged"
	OutcomeUnavailable        OutcomeKind = "unavailable"
	OutcomeAmbiguous          OutcomeKind = "ambiguous"
	OutcomeFetchFailed        OutcomeKind = "fetch-failed"
	OutcomeIntegrityFailed    OutcomeKind = "integrity-failed"
	OutcomeRegistrationFailed OutcomeKind = "registration-failed"
	OutcomePromotionFailed    OutcomeKind = "promotion-failed"
)

// Failure reports whether the outcome is a per-identity failure.
func (k OutcomeKind) Failure() bool {
	switch k {
	case OutcomeDownloaded, OutcomeUnchanged:
		return false
	}
	return true
}

// Outcome is the result of a sync run for one identity.
type Outcome struct {
	Reference archive.Reference
	Kind      OutcomeKind
	Err       error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", o.Reference, o.Kind, o.Err)
	}
	return fmt.Sprintf("%s: %s", o.Reference, o.Kind)
}

// Report accumulates per-identity outcomes for a whole run.
type Report struct {
	Outcomes []Outcome
}

func (r *Report) add(ref archive.Reference, kind OutcomeKind, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Reference: ref, Kind: kind, Err: err})
}

// Counts returns the number of outcomes of each kind.
func (r *Report) Counts() map[OutcomeKind]int {
	counts := make(map[OutcomeKind]int)
	for _, o := range r.Outcomes {
		counts[o.Kind]++
	}
	return counts
}

// Failures returns the outcomes that represent per-identity failures.
func (r *Report) Failures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if o.Kind.Failure() {
			failures = append(failures, o)
		}
	}
	return failures
}
