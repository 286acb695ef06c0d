// Package archive defines the value types shared across the sync engine:
// archive identities, year-month version stamps, catalog records and the
// persisted local archive rows with their lifecycle states.
package archive

import (
	"fmt"
	"strings"
	"time"
)

// Reference identifies a logical archive on the catalog, independent of
// version: the (project, language, flavor) triple. Comparison is exact
// after normalization; the catalog is case-significant and flavor token
// order is significant ("all nopic" and "nopic all" are different
// archives).
type Reference struct {
	Project  string
	Language string
	Flavor   string
}

// NewReference builds a normalized Reference. Normalization is
// whitespace trimming only.
func NewReference(project, language, flavor string) Reference {
	return Reference{
		Project:  strings.TrimSpace(project),
		Language: strings.TrimSpace(language),
		Flavor:   strings.TrimSpace(flavor),
	}
}

// Normalize returns the trimmed form of r. Safe to call on an
// already-normalized reference.
func (r Reference) Normalize() Reference {
	return NewReference(r.Project, r.Language, r.Flavor)
}

func (r Reference) String() string {
	if r.Flavor == "" {
		return fmt.Sprintf("%s/%s", r.Project, r.Language)
	}
	return fmt.Sprintf("%s/%s/%s", r.Project, r.Language, r.Flavor)
}

// FileName returns the download file name for this reference at the
// given month, following the convention used on download.kiwix.org
// (see https://download.kiwix.org/zim/README).
func (r Reference) FileName(m Month) string {
	flavor := strings.ReplaceAll(r.Flavor, " ", "_")
	return fmt.Sprintf("%s_%s_%s_%s.zim", r.Project, r.Language, flavor, m)
}

// Record is one catalog entry: the current published version of an
// archive as advertised by the remote catalog. SHA256 may be empty
// until resolved from SHA256URL; Created may be zero when the catalog
// omits or garbles the date column.
type Record struct {
	Reference Reference
	Created   Month
	URL       string
	SizeBytes int64
	SHA256    string
	SHA256URL string

	// Alternative transports advertised alongside the direct link.
	// Carried for completeness, not used as transfer mechanisms.
	TorrentURL string
	MagnetURL  string
}

// State is the lifecycle state of a local archive row.
type State string

const (
	// StatePending marks a row whose download has been initiated but
	// whose file is not yet fully written. Its path points at scratch
	// space and must never be trusted across runs.
	StatePending State = "pending"

	// StateVerifying marks a fully written file whose promotion is not
	// yet complete. Like pending, discardable on startup.
	StateVerifying State = "verifying"

	// StateActive marks the verified, registered, servable version of
	// an identity. At most one row per identity may be active.
	StateActive State = "active"

	// StateSuperseded marks a previously active version displaced by a
	// newer one. Its file still exists on disk.
	StateSuperseded State = "superseded"

	// StateDeleted marks a retention tombstone: the file is gone.
	StateDeleted State = "deleted"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateVerifying, StateActive, StateSuperseded, StateDeleted:
		return true
	}
	return false
}

// Row is a persisted record of one downloaded archive version.
// (Reference, Created) is the natural key.
type Row struct {
	ID        int64
	Reference Reference
	Created   Month
	Path      string
	SHA256    string
	SizeBytes int64
	State     State
	AddedAt   time.Time
	UpdatedAt time.Time
}
