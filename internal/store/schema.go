package store

// Schema v1 - Initial database schema
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Downloaded archive versions. One row per (identity, month); an
-- identity accumulates rows over time as new versions are fetched.
CREATE TABLE IF NOT EXISTS archives (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project TEXT NOT NULL,
  language TEXT NOT NULL,
  flavor TEXT NOT NULL DEFAULT '',
  month TEXT NOT NULL DEFAULT '',
  path TEXT NOT NULL,
  sha256 TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  state TEXT NOT NULL,
  added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (project, language, flavor, month)
);

CREATE INDEX IF NOT EXISTS idx_archives_identity ON archives(project, language, flavor);
CREATE INDEX IF NOT EXISTS idx_archives_state ON archives(state);

-- At most one active version per identity.
CREATE UNIQUE INDEX IF NOT EXISTS idx_archives_one_active
  ON archives(project, language, flavor) WHERE state = 'active';
`
