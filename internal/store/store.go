// Package store owns the persistent session index: schema, transactional
// writes, structured queries, full-text search and sandboxed ad-hoc reads.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/digitarald/vscode-session-trace/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// SchemaVersion tracks the current database schema version. A mismatch at
// startup drops and recreates all tables; a subsequent full re-index
// recovers the data.
const SchemaVersion = 1

// Store wraps the SQLite session index. The write connection is
// single-owner (the indexer serializes writers); a second read-only
// connection serves ad-hoc queries so they cannot block or be blocked by
// an indexing transaction.
type Store struct {
	rw   *sql.DB
	ro   *sql.DB
	path string
	gate rebuildGate
}

// Open creates or opens the index database at dbPath with WAL mode and a
// busy timeout, gates the schema on its version marker, and opens the
// independent read-only connection.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	// Pragmas ride the DSN so every pooled connection gets them. An Exec'd
	// pragma configures only whichever connection runs it; a later write on
	// a fresh pooled connection would then run with foreign_keys=0 and skip
	// the annotation cascade. recursive_triggers is needed so the
	// conflict-delete inside INSERT OR REPLACE fires the full-text delete
	// trigger.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=recursive_triggers(1)"
	rw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	s := &Store{rw: rw, path: dbPath}
	if err := s.migrate(); err != nil {
		rw.Close()
		return nil, err
	}

	roDSN := "file:" + dbPath +
		"?mode=ro" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=query_only(1)"
	ro, err := sql.Open("sqlite", roDSN)
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("store: open read-only: %w", err)
	}
	s.ro = ro

	return s, nil
}

// Close checkpoints WAL and closes both connections.
func (s *Store) Close() error {
	if s.ro != nil {
		_ = s.ro.Close()
	}
	_, _ = s.rw.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.rw.Close()
}

// DB returns the underlying write connection for advanced use (testing).
func (s *Store) DB() *sql.DB {
	return s.rw
}

// BeginRebuild establishes the indexing barrier: read operations wait
// until EndRebuild. Establishing it while already active is a no-op.
func (s *Store) BeginRebuild() {
	s.gate.Begin()
}

// EndRebuild releases the indexing barrier and wakes all waiting readers.
func (s *Store) EndRebuild() {
	s.gate.End()
}

// awaitReadable blocks until no structural rebuild is in progress.
func (s *Store) awaitReadable(ctx context.Context) error {
	return s.gate.Wait(ctx)
}

// migrate ensures the schema exists. On a schema-version mismatch all
// tables are dropped and recreated; data loss here is expected and
// recovered by the next full re-index.
func (s *Store) migrate() error {
	if _, err := s.rw.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: create metadata: %w", err)
	}

	var stored string
	err := s.rw.QueryRow(
		"SELECT value FROM metadata WHERE key = 'schema_version'",
	).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if stored != "" && stored != strconv.Itoa(SchemaVersion) {
		storeLog.Warn("schema_version_mismatch",
			slog.String("stored", stored),
			slog.Int("current", SchemaVersion))
		if err := s.dropAll(); err != nil {
			return err
		}
	}

	return s.createSchema()
}

func (s *Store) dropAll() error {
	stmts := []string{
		"DROP TABLE IF EXISTS turns_fts",
		"DROP TABLE IF EXISTS annotations",
		"DROP TABLE IF EXISTS turns",
		"DROP TABLE IF EXISTS sessions",
	}
	for _, stmt := range stmts {
		if _, err := s.rw.Exec(stmt); err != nil {
			return fmt.Errorf("store: %s: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	tx, err := s.rw.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id     TEXT PRIMARY KEY,
			file_path      TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			creation_date  INTEGER NOT NULL DEFAULT 0,
			request_count  INTEGER NOT NULL DEFAULT 0,
			last_message   TEXT NOT NULL DEFAULT '',
			model_ids      TEXT NOT NULL DEFAULT '[]',
			agents         TEXT NOT NULL DEFAULT '[]',
			total_tokens   INTEGER NOT NULL DEFAULT 0,
			has_votes      INTEGER NOT NULL DEFAULT 0,
			file_size      INTEGER NOT NULL DEFAULT 0,
			storage_type   TEXT NOT NULL DEFAULT 'global',
			workspace_path TEXT NOT NULL DEFAULT '',
			file_mtime     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_file_path ON sessions(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_creation ON sessions(creation_date)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			turn_index        INTEGER NOT NULL,
			prompt            TEXT NOT NULL DEFAULT '',
			response          TEXT NOT NULL DEFAULT '',
			agent             TEXT NOT NULL DEFAULT '',
			model             TEXT NOT NULL DEFAULT '',
			timestamp         INTEGER NOT NULL DEFAULT 0,
			duration_ms       INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			vote              INTEGER NOT NULL DEFAULT 0,
			UNIQUE(session_id, turn_index)
		)`,
		`CREATE TABLE IF NOT EXISTS annotations (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id INTEGER NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			kind    TEXT NOT NULL,
			name    TEXT NOT NULL DEFAULT '',
			uri     TEXT NOT NULL DEFAULT '',
			detail  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_turn ON annotations(turn_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(
			prompt, response, agent, model,
			content='turns', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS turns_fts_insert AFTER INSERT ON turns BEGIN
			INSERT INTO turns_fts(rowid, prompt, response, agent, model)
			VALUES (new.id, new.prompt, new.response, new.agent, new.model);
		END`,
		`CREATE TRIGGER IF NOT EXISTS turns_fts_delete AFTER DELETE ON turns BEGIN
			INSERT INTO turns_fts(turns_fts, rowid, prompt, response, agent, model)
			VALUES ('delete', old.id, old.prompt, old.response, old.agent, old.model);
		END`,
		`CREATE TRIGGER IF NOT EXISTS turns_fts_update AFTER UPDATE ON turns BEGIN
			INSERT INTO turns_fts(turns_fts, rowid, prompt, response, agent, model)
			VALUES ('delete', old.id, old.prompt, old.response, old.agent, old.model);
			INSERT INTO turns_fts(rowid, prompt, response, agent, model)
			VALUES (new.id, new.prompt, new.response, new.agent, new.model);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}
