package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultSearchLimit = 50

var ftsOperators = map[string]bool{"AND": true, "OR": true, "NOT": true}

// buildMatchExpression turns a free-form query into a safe FTS5 match
// expression: operator keywords are upper-cased and preserved, every other
// token is quoted and prefix-matched. Dangling leading/trailing operators
// are trimmed rather than passed through. Returns "" for a query with no
// usable tokens.
func buildMatchExpression(query string) string {
	var parts []string
	for _, tok := range strings.Fields(query) {
		if up := strings.ToUpper(tok); ftsOperators[up] {
			parts = append(parts, up)
			continue
		}
		escaped := strings.ReplaceAll(tok, `"`, `""`)
		parts = append(parts, `"`+escaped+`"*`)
	}

	for len(parts) > 0 && ftsOperators[parts[0]] {
		parts = parts[1:]
	}
	for len(parts) > 0 && ftsOperators[parts[len(parts)-1]] {
		parts = parts[:len(parts)-1]
	}

	return strings.Join(parts, " ")
}

// Search runs a ranked full-text query over turn prompts, responses,
// agents and models, joining hits back to their session context. An empty
// or operator-only query yields an empty result, not an error. Honors the
// indexing barrier.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	if err := s.awaitReadable(ctx); err != nil {
		return nil, err
	}

	match := buildMatchExpression(query)
	if match == "" {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sqlQuery := `
		SELECT s.session_id, s.title, s.file_path, s.workspace_path, s.storage_type,
			t.turn_index, t.prompt, t.response, t.agent, t.model, f.rank
		FROM turns_fts f
		JOIN turns t ON t.id = f.rowid
		JOIN sessions s ON s.session_id = t.session_id
		WHERE turns_fts MATCH ?
	`
	args := []any{match}

	if opts.WorkspacePath != "" {
		sqlQuery += " AND s.workspace_path = ?"
		args = append(args, opts.WorkspacePath)
	}
	if opts.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -opts.MaxAgeDays).UnixMilli()
		sqlQuery += " AND s.creation_date >= ?"
		args = append(args, cutoff)
	}

	// FTS5 rank is a negative bm25 score: ascending order is most
	// relevant first.
	sqlQuery += " ORDER BY f.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.rw.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", s.redactError(err))
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(
			&h.SessionID, &h.Title, &h.FilePath, &h.WorkspacePath, &h.StorageType,
			&h.TurnIndex, &h.Prompt, &h.Response, &h.Agent, &h.Model, &h.Rank,
		); err != nil {
			return nil, fmt.Errorf("store: scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
