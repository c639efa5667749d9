package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const sessionColumns = `session_id, file_path, title, creation_date, request_count,
	last_message, model_ids, agents, total_tokens, has_votes,
	file_size, storage_type, workspace_path, file_mtime`

// ListSessions returns indexed sessions, newest first, honoring the
// indexing barrier.
func (s *Store) ListSessions(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	if err := s.awaitReadable(ctx); err != nil {
		return nil, err
	}

	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	var args []any

	if opts.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -opts.MaxAgeDays).UnixMilli()
		query += " AND creation_date >= ?"
		args = append(args, cutoff)
	}
	if opts.StorageType != "" {
		query += " AND storage_type = ?"
		args = append(args, opts.StorageType)
	}
	if opts.WorkspacePath != "" {
		query += " AND workspace_path = ?"
		args = append(args, opts.WorkspacePath)
	}

	query += " ORDER BY creation_date DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.rw.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var result []SessionSummary
	for rows.Next() {
		var sm SessionSummary
		var modelIDs, agents string
		var hasVotes int
		if err := rows.Scan(
			&sm.SessionID, &sm.FilePath, &sm.Title, &sm.CreationDate, &sm.RequestCount,
			&sm.LastMessage, &modelIDs, &agents, &sm.TotalTokens, &hasVotes,
			&sm.FileSize, &sm.StorageType, &sm.WorkspacePath, &sm.FileMtime,
		); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sm.HasVotes = hasVotes != 0
		_ = json.Unmarshal([]byte(modelIDs), &sm.ModelIDs)
		_ = json.Unmarshal([]byte(agents), &sm.Agents)
		result = append(result, sm)
	}
	return result, rows.Err()
}

// TurnsForSession returns all turns of a session ordered by turn index,
// honoring the indexing barrier.
func (s *Store) TurnsForSession(ctx context.Context, sessionID string) ([]TurnRow, error) {
	if err := s.awaitReadable(ctx); err != nil {
		return nil, err
	}

	rows, err := s.rw.QueryContext(ctx, `
		SELECT id, session_id, turn_index, prompt, response, agent, model,
			timestamp, duration_ms, total_tokens, prompt_tokens,
			completion_tokens, vote
		FROM turns WHERE session_id = ? ORDER BY turn_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var result []TurnRow
	for rows.Next() {
		var t TurnRow
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.TurnIndex, &t.Prompt, &t.Response,
			&t.Agent, &t.Model, &t.Timestamp, &t.DurationMs,
			&t.TotalTokens, &t.PromptTokens, &t.CompletionTokens, &t.Vote,
		); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// IndexedFiles returns the bulk staleness map: every recorded file path
// with its session id and last-observed mtime. Fetched once per reindex
// cycle so classification never re-reads unchanged files.
func (s *Store) IndexedFiles(ctx context.Context) (map[string]FileStamp, error) {
	rows, err := s.rw.QueryContext(ctx,
		"SELECT file_path, session_id, file_mtime FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("store: indexed files: %w", err)
	}
	defer rows.Close()

	result := make(map[string]FileStamp)
	for rows.Next() {
		var path string
		var stamp FileStamp
		if err := rows.Scan(&path, &stamp.SessionID, &stamp.Mtime); err != nil {
			return nil, fmt.Errorf("store: scan file stamp: %w", err)
		}
		result[path] = stamp
	}
	return result, rows.Err()
}
