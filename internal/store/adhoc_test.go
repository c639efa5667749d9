package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAdHocQuerySelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.IndexSession(testSession("s-1", "/logs/a.json"), []TurnRecord{
		testTurn("s-1", 0, "hello", "world"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	res, err := s.AdHocQuery(ctx, "SELECT session_id, title FROM sessions;", 100)
	if err != nil {
		t.Fatalf("AdHocQuery: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "session_id" {
		t.Fatalf("columns = %v", res.Columns)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "s-1" {
		t.Fatalf("rows = %v", res.Rows)
	}
	if res.Truncated {
		t.Fatal("unexpected truncation")
	}
}

func TestAdHocQueryRejectsNonSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, stmt := range []string{
		"DELETE FROM sessions",
		"INSERT INTO sessions (session_id, file_path) VALUES ('x', 'y')",
		"UPDATE sessions SET title = 'x'",
		"DROP TABLE sessions",
		"PRAGMA journal_mode=DELETE",
		"",
		"   ;  ",
	} {
		_, err := s.AdHocQuery(ctx, stmt, 100)
		var qe *QueryError
		if !errors.As(err, &qe) {
			t.Errorf("%q: expected QueryError, got %v", stmt, err)
			continue
		}
		if qe.Hint == "" {
			t.Errorf("%q: rejection carries no hint", stmt)
		}
	}
}

func TestAdHocQueryRejectsRecursive(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AdHocQuery(context.Background(),
		"SELECT * FROM sessions WHERE session_id IN (WITH RECURSIVE c(x) AS (SELECT 1) SELECT x FROM c)", 100)
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if !strings.Contains(strings.ToLower(qe.Message), "recursive") {
		t.Fatalf("message = %q", qe.Message)
	}
}

func TestAdHocQueryTruncates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sm := testSession("s-1", "/logs/a.json")
	var turns []TurnRecord
	for i := 0; i < 20; i++ {
		turns = append(turns, testTurn("s-1", i, fmt.Sprintf("p%d", i), ""))
	}
	if err := s.IndexSession(sm, turns); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	res, err := s.AdHocQuery(ctx, "SELECT turn_index FROM turns ORDER BY turn_index", 5)
	if err != nil {
		t.Fatalf("AdHocQuery: %v", err)
	}
	if len(res.Rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(res.Rows))
	}
	if !res.Truncated {
		t.Fatal("expected truncation flag")
	}

	// Exactly at the cap: complete result, no flag.
	res, err = s.AdHocQuery(ctx, "SELECT turn_index FROM turns ORDER BY turn_index", 20)
	if err != nil {
		t.Fatalf("AdHocQuery: %v", err)
	}
	if len(res.Rows) != 20 || res.Truncated {
		t.Fatalf("rows = %d truncated = %v, want 20/false", len(res.Rows), res.Truncated)
	}
}

func TestAdHocQueryErrorRedactsPath(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AdHocQuery(context.Background(), "SELECT nope FROM missing_table", 100)
	if err == nil {
		t.Fatal("expected an error")
	}
	if strings.Contains(err.Error(), s.path) {
		t.Fatalf("error leaks database path: %v", err)
	}
}

func TestAdHocQueryCanReadFTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.IndexSession(testSession("s-1", "/logs/a.json"), []TurnRecord{
		testTurn("s-1", 0, "findme in fts", ""),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	res, err := s.AdHocQuery(ctx,
		"SELECT rowid FROM turns_fts WHERE turns_fts MATCH 'findme'", 10)
	if err != nil {
		t.Fatalf("AdHocQuery over fts: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %v", res.Rows)
	}
}
