package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// QueryError is a structured, actionable rejection of an ad-hoc query.
// Engine errors behind it are redacted before surfacing.
type QueryError struct {
	Message string
	Hint    string
}

func (e *QueryError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + " (" + e.Hint + ")"
}

// AdHocResult carries rows plus a truncation flag so callers can tell a
// capped result from a complete one.
type AdHocResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

var recursiveRe = regexp.MustCompile(`(?i)\brecursive\b`)

// AdHocQuery executes an arbitrary read-only statement against the
// independent read-only connection, capped at rowCap rows. Only
// select-family statements are permitted; recursive queries are rejected
// before execution. Honors the indexing barrier.
func (s *Store) AdHocQuery(ctx context.Context, stmt string, rowCap int) (*AdHocResult, error) {
	if err := s.awaitReadable(ctx); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if trimmed == "" {
		return nil, &QueryError{
			Message: "empty statement",
			Hint:    "try: SELECT session_id, title FROM sessions LIMIT 10",
		}
	}

	first := strings.ToUpper(firstWord(trimmed))
	if first != "SELECT" {
		return nil, &QueryError{
			Message: fmt.Sprintf("only SELECT statements are allowed, got %s", first),
			Hint:    "rewrite the statement as a SELECT; the index is read-only",
		}
	}
	if recursiveRe.MatchString(trimmed) {
		return nil, &QueryError{
			Message: "recursive queries are not allowed",
			Hint:    "drop the RECURSIVE clause or restructure as a plain SELECT",
		}
	}

	if rowCap <= 0 {
		rowCap = 200
	}

	// One row above the cap so truncation is detectable and reportable.
	wrapped := fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", trimmed, rowCap+1)

	rows, err := s.ro.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, &QueryError{
			Message: s.redactError(err).Error(),
			Hint:    "use describe to see available tables and columns",
		}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("store: columns: %w", s.redactError(err))
	}

	result := &AdHocResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("store: scan: %w", s.redactError(err))
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		if len(result.Rows) == rowCap {
			result.Truncated = true
			break
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", s.redactError(err))
	}

	return result, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// redactError strips filesystem paths from engine errors before they
// surface to callers.
func (s *Store) redactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		msg = strings.ReplaceAll(msg, dir, "<index>")
	}
	msg = strings.ReplaceAll(msg, s.path, "<index>")
	return errors.New(msg)
}
