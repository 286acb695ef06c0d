package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	version, err := s.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"archives", "schema_version"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := s.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on fresh database: %v", err)
	}
}

func TestArchiveInsertAndRetrieve(t *testing.T) {
	s := openTestStore(t)

	ref := archive.NewReference("wiktionary", "en", "simple all maxi")
	row := &archive.Row{
		Reference: ref,
		Created:   archive.Month{Year: 2024, Month: 6},
		Path:      "/data/archives/wiktionary_en_simple_all_maxi_2024-06.zim",
		SHA256:    "d1",
		SizeBytes: 1024,
		State:     archive.StateActive,
	}
	if err := s.InsertArchive(row); err != nil {
		t.Fatalf("failed to insert archive: %v", err)
	}
	if row.ID == 0 {
		t.Error("expected InsertArchive to set row ID")
	}

	rows, err := s.FindArchives(ref)
	if err != nil {
		t.Fatalf("failed to find archives: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.Reference != ref {
		t.Errorf("reference = %+v, want %+v", got.Reference, ref)
	}
	if got.Created != row.Created {
		t.Errorf("month = %v, want %v", got.Created, row.Created)
	}
	if got.SHA256 != "d1" || got.SizeBytes != 1024 || got.State != archive.StateActive {
		t.Errorf("row round trip mismatch: %+v", got)
	}

	// Different flavor is a different identity
	other, err := s.FindArchives(archive.NewReference("wiktionary", "en", "maxi all simple"))
	if err != nil {
		t.Fatalf("failed to find archives: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no rows for different flavor, got %d", len(other))
	}
}

func TestActiveArchive(t *testing.T) {
	s := openTestStore(t)
	ref := archive.NewReference("wikipedia", "en", "all nopic")

	active, err := s.ActiveArchive(ref)
	if err != nil {
		t.Fatalf("failed to get active archive: %v", err)
	}
	if active != nil {
		t.Errorf("expected nil active archive, got %+v", active)
	}

	old := &archive.Row{
		Reference: ref,
		Created:   archive.Month{Year: 2024, Month: 3},
		Path:      "/data/archives/old.zim",
		State:     archive.StateSuperseded,
	}
	cur := &archive.Row{
		Reference: ref,
		Created:   archive.Month{Year: 2024, Month: 6},
		Path:      "/data/archives/new.zim",
		State:     archive.StateActive,
	}
	if err := s.InsertArchive(old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertArchive(cur); err != nil {
		t.Fatalf("insert: %v", err)
	}

	active, err = s.ActiveArchive(ref)
	if err != nil {
		t.Fatalf("failed to get active archive: %v", err)
	}
	if active == nil || active.ID != cur.ID {
		t.Errorf("active = %+v, want row %d", active, cur.ID)
	}
}

func TestOneActivePerIdentityEnforced(t *testing.T) {
	s := openTestStore(t)
	ref := archive.NewReference("wikipedia", "fr", "mini")

	first := &archive.Row{
		Reference: ref,
		Created:   archive.Month{Year: 2024, Month: 1},
		Path:      "/a.zim",
		State:     archive.StateActive,
	}
	if err := s.InsertArchive(first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := &archive.Row{
		Reference: ref,
		Created:   archive.Month{Year: 2024, Month: 2},
		Path:      "/b.zim",
		State:     archive.StateActive,
	}
	if err := s.InsertArchive(second); err == nil {
		t.Error("expected unique index to reject second active row for same identity")
	}
}

func TestUpdateArchiveStateAndPath(t *testing.T) {
	s := openTestStore(t)
	row := &archive.Row{
		Reference: archive.NewReference("gutenberg", "en", "all"),
		Created:   archive.Month{Year: 2024, Month: 5},
		Path:      "/tmp/part",
		State:     archive.StatePending,
	}
	if err := s.InsertArchive(row); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.UpdateArchiveState(row.ID, archive.StateVerifying); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if err := s.UpdateArchivePath(row.ID, "/final.zim"); err != nil {
		t.Fatalf("update path: %v", err)
	}
	if err := s.UpdateArchiveDigest(row.ID, "abc123", 42); err != nil {
		t.Fatalf("update digest: %v", err)
	}

	rows, err := s.FindArchives(row.Reference)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got := rows[0]
	if got.State != archive.StateVerifying || got.Path != "/final.zim" || got.SHA256 != "abc123" || got.SizeBytes != 42 {
		t.Errorf("row after updates: %+v", got)
	}

	if err := s.UpdateArchiveState(9999, archive.StateActive); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("updating nonexistent row: err = %v, want ErrNotFound", err)
	}
}

func TestArchivesInStates(t *testing.T) {
	s := openTestStore(t)
	ref := archive.NewReference("wikivoyage", "de", "maxi")

	states := []archive.State{archive.StatePending, archive.StateVerifying, archive.StateActive}
	for i, st := range states {
		r := &archive.Row{
			Reference: ref,
			Created:   archive.Month{Year: 2024, Month: i + 1},
			Path:      "/p",
			State:     st,
		}
		if err := s.InsertArchive(r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	rows, err := s.ArchivesInStates(archive.StatePending, archive.StateVerifying)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 scratch rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.State != archive.StatePending && r.State != archive.StateVerifying {
			t.Errorf("unexpected state %q", r.State)
		}
	}
}

func TestDeleteArchive(t *testing.T) {
	s := openTestStore(t)
	row := &archive.Row{
		Reference: archive.NewReference("wikipedia", "es", "all"),
		Created:   archive.Month{Year: 2024, Month: 4},
		Path:      "/x.zim",
		State:     archive.StateActive,
	}
	if err := s.InsertArchive(row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteArchive(row.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, err := s.FindArchives(row.Reference)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows after delete, got %d", len(rows))
	}
}
