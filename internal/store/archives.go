package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/util"
)

const archiveColumns = `id, project, language, flavor, month, path,
	sha256, size_bytes, state, added_at, updated_at`

func scanRow(scanner interface{ Scan(...any) error }) (*archive.Row, error) {
	r := &archive.Row{}
	var month string
	err := scanner.Scan(
		&r.ID, &r.Reference.Project, &r.Reference.Language, &r.Reference.Flavor,
		&month, &r.Path, &r.SHA256, &r.SizeBytes, &r.State,
		&r.AddedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if month != "" {
		m, err := archive.ParseMonth(month)
		if err != nil {
			return nil, fmt.Errorf("corrupt month %q in row %d: %w", month, r.ID, err)
		}
		r.Created = m
	}
	return r, nil
}

// InsertArchive inserts a new archive row and sets its ID.
func (s *Store) InsertArchive(r *archive.Row) error {
	if !r.State.Valid() {
		return fmt.Errorf("invalid state %q", r.State)
	}
	result, err := s.db.Exec(`
		INSERT INTO archives (project, language, flavor, month, path, sha256, size_bytes, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Reference.Project, r.Reference.Language, r.Reference.Flavor,
		r.Created.String(), r.Path, r.SHA256, r.SizeBytes, string(r.State))
	if err != nil {
		return fmt.Errorf("failed to insert archive: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get archive ID: %w", err)
	}
	r.ID = id
	return nil
}

// FindArchives returns all rows for an identity, newest month first.
func (s *Store) FindArchives(ref archive.Reference) ([]*archive.Row, error) {
	rows, err := s.db.Query(`
		SELECT `+archiveColumns+`
		FROM archives
		WHERE project = ? AND language = ? AND flavor = ?
		ORDER BY month DESC
	`, ref.Project, ref.Language, ref.Flavor)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// ActiveArchive returns the active row for an identity, or nil if the
// identity has no active version.
func (s *Store) ActiveArchive(ref archive.Reference) (*archive.Row, error) {
	row := s.db.QueryRow(`
		SELECT `+archiveColumns+`
		FROM archives
		WHERE project = ? AND language = ? AND flavor = ? AND state = ?
	`, ref.Project, ref.Language, ref.Flavor, string(archive.StateActive))

	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active archive: %w", err)
	}
	return r, nil
}

// ArchivesInStates returns all rows in any of the given states.
func (s *Store) ArchivesInStates(states ...archive.State) ([]*archive.Row, error) {
	if len(states) == 0 {
		return nil, nil
	}
	query := `SELECT ` + archiveColumns + ` FROM archives WHERE state IN (?`
	args := []any{string(states[0])}
	for _, st := range states[1:] {
		query += ", ?"
		args = append(args, string(st))
	}
	query += ") ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives by state: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// AllArchives returns every row in the store, ordered by identity then
// newest month first.
func (s *Store) AllArchives() ([]*archive.Row, error) {
	rows, err := s.db.Query(`
		SELECT ` + archiveColumns + `
		FROM archives
		ORDER BY project, language, flavor, month DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// UpdateArchiveState updates the lifecycle state of a row.
func (s *Store) UpdateArchiveState(id int64, state archive.State) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	res, err := s.db.Exec(`
		UPDATE archives SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update archive state: %w", err)
	}
	return requireOneRow(res, id)
}

// UpdateArchivePath updates the filesystem path of a row, used when a
// completed download moves from its temp path to its final path.
func (s *Store) UpdateArchivePath(id int64, path string) error {
	res, err := s.db.Exec(`
		UPDATE archives SET path = ?, updated_at = ? WHERE id = ?
	`, path, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update archive path: %w", err)
	}
	return requireOneRow(res, id)
}

// UpdateArchiveDigest records the digest and size computed for a row at
// download time.
func (s *Store) UpdateArchiveDigest(id int64, sha256 string, sizeBytes int64) error {
	res, err := s.db.Exec(`
		UPDATE archives SET sha256 = ?, size_bytes = ?, updated_at = ? WHERE id = ?
	`, sha256, sizeBytes, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update archive digest: %w", err)
	}
	return requireOneRow(res, id)
}

// DeleteArchive removes a row entirely.
func (s *Store) DeleteArchive(id int64) error {
	_, err := s.db.Exec("DELETE FROM archives WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func collectRows(rows *sql.Rows) ([]*archive.Row, error) {
	var result []*archive.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archives: %w", err)
	}
	return result, nil
}

func requireOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("archive row %d: %w", id, util.ErrNotFound)
	}
	return nil
}
