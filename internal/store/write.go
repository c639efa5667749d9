package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// execer is satisfied by both *sql.DB and *sql.Tx so the write helpers can
// run standalone or inside the per-session transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// IndexSession writes one session transactionally: stale rows sharing the
// file path are removed, the summary is upserted, all previous turns are
// wiped, and the new turns with their annotations are inserted. Any
// failure rolls the whole session back; readers never observe a session
// with some-but-not-all of its turns replaced.
func (s *Store) IndexSession(summary SessionSummary, turns []TurnRecord) error {
	tx, err := s.rw.Begin()
	if err != nil {
		return fmt.Errorf("store: begin index session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteSessionsByFilePath(tx, summary.FilePath, summary.SessionID); err != nil {
		return err
	}
	if err := upsertSession(tx, summary); err != nil {
		return err
	}
	// Full wipe before re-insert: a log that shrank must not leave
	// orphaned high-index turns behind.
	if err := deleteTurnsForSession(tx, summary.SessionID); err != nil {
		return err
	}
	for _, rec := range turns {
		turnID, err := upsertTurn(tx, rec.Turn)
		if err != nil {
			return err
		}
		if err := addAnnotations(tx, turnID, rec.Annotations); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertSession inserts or replaces a session summary keyed by sessionId.
func (s *Store) UpsertSession(summary SessionSummary) error {
	return upsertSession(s.rw, summary)
}

func upsertSession(db execer, sm SessionSummary) error {
	modelIDs, _ := json.Marshal(stringSet(sm.ModelIDs))
	agents, _ := json.Marshal(stringSet(sm.Agents))
	hasVotes := 0
	if sm.HasVotes {
		hasVotes = 1
	}

	_, err := db.Exec(`
		INSERT OR REPLACE INTO sessions (
			session_id, file_path, title, creation_date, request_count,
			last_message, model_ids, agents, total_tokens, has_votes,
			file_size, storage_type, workspace_path, file_mtime
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sm.SessionID, sm.FilePath, sm.Title, sm.CreationDate, sm.RequestCount,
		sm.LastMessage, string(modelIDs), string(agents), sm.TotalTokens, hasVotes,
		sm.FileSize, sm.StorageType, sm.WorkspacePath, sm.FileMtime,
	)
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", sm.SessionID, err)
	}
	return nil
}

// UpsertTurn inserts or replaces a turn keyed by (sessionId, turnIndex)
// and returns the assigned row identity. The identity comes from a
// post-write lookup: the replace path does not reliably surface an
// auto-increment id.
func (s *Store) UpsertTurn(turn TurnRow) (int64, error) {
	return upsertTurn(s.rw, turn)
}

func upsertTurn(db execer, t TurnRow) (int64, error) {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO turns (
			session_id, turn_index, prompt, response, agent, model,
			timestamp, duration_ms, total_tokens, prompt_tokens,
			completion_tokens, vote
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.SessionID, t.TurnIndex, t.Prompt, t.Response, t.Agent, t.Model,
		t.Timestamp, t.DurationMs, t.TotalTokens, t.PromptTokens,
		t.CompletionTokens, t.Vote,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert turn %s/%d: %w", t.SessionID, t.TurnIndex, err)
	}

	var id int64
	err = db.QueryRow(
		"SELECT id FROM turns WHERE session_id = ? AND turn_index = ?",
		t.SessionID, t.TurnIndex,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: lookup turn %s/%d: %w", t.SessionID, t.TurnIndex, err)
	}
	return id, nil
}

// DeleteSessionsByFilePath removes rows sharing a file path but a
// different session identity. Guards against a file whose session id
// changed between runs.
func (s *Store) DeleteSessionsByFilePath(filePath, exceptSessionID string) error {
	return deleteSessionsByFilePath(s.rw, filePath, exceptSessionID)
}

func deleteSessionsByFilePath(db execer, filePath, exceptSessionID string) error {
	// Turns are deleted explicitly so the shadow-index triggers fire.
	_, err := db.Exec(`
		DELETE FROM turns WHERE session_id IN (
			SELECT session_id FROM sessions WHERE file_path = ? AND session_id != ?
		)
	`, filePath, exceptSessionID)
	if err != nil {
		return fmt.Errorf("store: delete stale turns for %s: %w", filePath, err)
	}
	_, err = db.Exec(
		"DELETE FROM sessions WHERE file_path = ? AND session_id != ?",
		filePath, exceptSessionID,
	)
	if err != nil {
		return fmt.Errorf("store: delete stale sessions for %s: %w", filePath, err)
	}
	return nil
}

// DeleteTurnsForSession wipes all turns (and, by cascade, annotations)
// for a session.
func (s *Store) DeleteTurnsForSession(sessionID string) error {
	return deleteTurnsForSession(s.rw, sessionID)
}

func deleteTurnsForSession(db execer, sessionID string) error {
	_, err := db.Exec("DELETE FROM turns WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("store: delete turns for %s: %w", sessionID, err)
	}
	return nil
}

// AddAnnotations batch-inserts annotations for a turn. No-op on an empty
// list.
func (s *Store) AddAnnotations(turnID int64, anns []AnnotationRow) error {
	return addAnnotations(s.rw, turnID, anns)
}

func addAnnotations(db execer, turnID int64, anns []AnnotationRow) error {
	for _, a := range anns {
		_, err := db.Exec(
			"INSERT INTO annotations (turn_id, kind, name, uri, detail) VALUES (?, ?, ?, ?, ?)",
			turnID, a.Kind, a.Name, a.URI, a.Detail,
		)
		if err != nil {
			return fmt.Errorf("store: add annotation: %w", err)
		}
	}
	return nil
}

// DeleteSessions removes the given sessions with their turns and
// annotations. Used by pruning when source files vanish.
func (s *Store) DeleteSessions(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.rw.Begin()
	if err != nil {
		return fmt.Errorf("store: begin delete sessions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.Exec(
		"DELETE FROM turns WHERE session_id IN ("+placeholders+")", args...,
	); err != nil {
		return fmt.Errorf("store: delete turns: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM sessions WHERE session_id IN ("+placeholders+")", args...,
	); err != nil {
		return fmt.Errorf("store: delete sessions: %w", err)
	}

	return tx.Commit()
}

// WipeAll clears every indexed row but keeps the schema. Used by the full
// wipe-and-rebuild path.
func (s *Store) WipeAll() error {
	tx, err := s.rw.Begin()
	if err != nil {
		return fmt.Errorf("store: begin wipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM turns",
		"DELETE FROM annotations",
		"DELETE FROM sessions",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("store: wipe: %w", err)
		}
	}
	return tx.Commit()
}

// stringSet deduplicates while keeping first-seen order.
func stringSet(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
