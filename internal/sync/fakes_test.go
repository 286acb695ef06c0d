package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/bunburya/uzak/internal/archive"
)

// memStore is an in-memory Store that mirrors the sqlite store's
// behavior, including the one-active-per-identity constraint.
type memStore struct {
	mu     gosync.Mutex
	rows   map[int64]*archive.Row
	nextID int64

	failUpdateState error // returned by every UpdateArchiveState call when set
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*archive.Row)}
}

func (s *memStore) activeLocked(ref archive.Reference) *archive.Row {
	for _, r := range s.rows {
		if r.Reference == ref && r.State == archive.StateActive {
			return r
		}
	}
	return nil
}

func (s *memStore) InsertArchive(r *archive.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.State == archive.StateActive && s.activeLocked(r.Reference) != nil {
		return fmt.Errorf("identity %s already has an active row", r.Reference)
	}
	s.nextID++
	r.ID = s.nextID
	cp := *r
	s.rows[r.ID] = &cp
	return nil
}

func (s *memStore) UpdateArchiveState(id int64, state archive.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateState != nil {
		return s.failUpdateState
	}
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("row %d not found", id)
	}
	if state == archive.StateActive {
		if cur := s.activeLocked(r.Reference); cur != nil && cur.ID != id {
			return fmt.Errorf("identity %s already has an active row", r.Reference)
		}
	}
	r.State = state
	return nil
}

func (s *memStore) UpdateArchivePath(id int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("row %d not found", id)
	}
	r.Path = path
	return nil
}

func (s *memStore) UpdateArchiveDigest(id int64, sha string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("row %d not found", id)
	}
	r.SHA256 = sha
	r.SizeBytes = size
	return nil
}

func (s *memStore) DeleteArchive(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memStore) ActiveArchive(ref archive.Reference) (*archive.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.activeLocked(ref); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) FindArchives(ref archive.Reference) ([]*archive.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*archive.Row
	for _, r := range s.rows {
		if r.Reference == ref {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *memStore) ArchivesInStates(states ...archive.State) ([]*archive.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*archive.Row
	for _, r := range s.rows {
		for _, st := range states {
			if r.State == st {
				cp := *r
				result = append(result, &cp)
				break
			}
		}
	}
	return result, nil
}

// snapshot returns a copy of all rows keyed by (reference, month).
func (s *memStore) snapshot() map[string]archive.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]archive.Row)
	for _, r := range s.rows {
		out[r.Reference.String()+"@"+r.Created.String()] = *r
	}
	return out
}

// fakeIndex records serving-index mutations and can be told to fail.
// It also tracks how many Register calls overlap, since the real
// kiwix-manage library is a single-writer resource.
type fakeIndex struct {
	mu          gosync.Mutex
	registered  map[string]bool
	registers   int
	unregisters int
	failWith    error

	active atomic.Int32
	peak   atomic.Int32
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{registered: make(map[string]bool)}
}

func (f *fakeIndex) Register(ctx context.Context, path string) error {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	// Give any overlapping caller a chance to show up in peak.
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.registers++
	f.registered[path] = true
	return nil
}

func (f *fakeIndex) Unregister(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregisters++
	delete(f.registered, path)
	return nil
}

// fakeSource serves a fixed set of records and digests.
type fakeSource struct {
	records []archive.Record
	digests map[string]string // URL -> sha256
	err     error
}

func (f *fakeSource) Records(ctx context.Context) ([]archive.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeSource) ResolveDigest(ctx context.Context, rec *archive.Record) error {
	if rec.SHA256 != "" {
		return nil
	}
	d, ok := f.digests[rec.URL]
	if !ok {
		return fmt.Errorf("no digest for %s", rec.URL)
	}
	rec.SHA256 = d
	return nil
}

// fakePipeline simulates downloads by running a per-URL script.
type fakePipeline struct {
	mu      gosync.Mutex
	store   Store
	fetches []string
	fail    map[string]error // URL -> error to return instead of fetching
}

func newFakePipeline(store Store) *fakePipeline {
	return &fakePipeline{store: store, fail: make(map[string]error)}
}

// Fetch mimics the real pipeline's contract: on success a verifying row
// is persisted at its final path; on failure nothing is left behind.
func (f *fakePipeline) Fetch(ctx context.Context, rec archive.Record) (*archive.Row, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, rec.URL)
	err := f.fail[rec.URL]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	row := &archive.Row{
		Reference: rec.Reference,
		Created:   rec.Created,
		Path:      "/archives/" + rec.Reference.FileName(rec.Created),
		SHA256:    rec.SHA256,
		SizeBytes: rec.SizeBytes,
		State:     archive.StateVerifying,
	}
	if err := f.store.InsertArchive(row); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *fakePipeline) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}
