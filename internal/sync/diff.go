package sync

import (
	"github.com/bunburya/uzak/internal/archive"
)

// DiffResult classifies the local collection against a catalog record.
type DiffResult string

const (
	// DiffAbsent means no non-deleted local version exists.
	DiffAbsent DiffResult = "absent"
	// DiffCurrent means the active local version is at least as new as
	// the catalog's. No transfer needed.
	DiffCurrent DiffResult = "current"
	// DiffStale means the catalog has a newer version than the local
	// collection.
	DiffStale DiffResult = "stale"
)

// Diff decides whether the local collection needs the catalog's version
// of an identity. Pure: rows are the non-deleted local rows for the
// record's identity. Month comparison is at year-month granularity; a
// missing month is treated as older than any dated version, except that
// matching digests always mean current (never refetch bytes we already
// hold).
func Diff(rec archive.Record, rows []*archive.Row) DiffResult {
	var active *archive.Row
	nonDeleted := 0
	for _, r := range rows {
		if r.State == archive.StateDeleted {
			continue
		}
		nonDeleted++
		if r.State == archive.StateActive {
			active = r
		}
	}
	if nonDeleted == 0 {
		return DiffAbsent
	}
	if active == nil {
		// Rows exist (e.g. superseded leftovers) but nothing is being
		// served; the catalog version is wanted either way.
		return DiffStale
	}

	if rec.SHA256 != "" && active.SHA256 == rec.SHA256 {
		return DiffCurrent
	}
	if active.Created.IsZero() && rec.Created.IsZero() {
		// No dates, digests differ: prefer a refetch over silently
		// serving bytes of unknown vintage.
		return DiffStale
	}
	if active.Created.Compare(rec.Created) >= 0 {
		return DiffCurrent
	}
	return DiffStale
}
