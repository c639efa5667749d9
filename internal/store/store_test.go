package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id, path string) SessionSummary {
	return SessionSummary{
		SessionID:    id,
		FilePath:     path,
		Title:        "Session " + id,
		CreationDate: time.Now().UnixMilli(),
		RequestCount: 1,
		ModelIDs:     []string{"gpt-test"},
		StorageType:  "global",
		FileMtime:    time.Now().UnixNano(),
	}
}

func testTurn(sessionID string, idx int, prompt, response string) TurnRecord {
	return TurnRecord{Turn: TurnRow{
		SessionID: sessionID,
		TurnIndex: idx,
		Prompt:    prompt,
		Response:  response,
		Model:     "gpt-test",
	}}
}

func TestOpenReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	s1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.IndexSession(testSession("s-1", "/logs/a.json"), nil); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	s1.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer s2.Close()

	sessions, err := s2.ListSessions(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-1" {
		t.Fatalf("expected s-1 to survive reopen, got %+v", sessions)
	}
}

func TestSchemaVersionMismatchRecreates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	s1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.IndexSession(testSession("s-old", "/logs/old.json"), nil); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	// Simulate a database written by an older build.
	if _, err := s1.DB().Exec(
		"UPDATE metadata SET value = '0' WHERE key = 'schema_version'",
	); err != nil {
		t.Fatalf("downgrade version: %v", err)
	}
	s1.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer s2.Close()

	sessions, err := s2.ListSessions(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty index after schema recreate, got %d sessions", len(sessions))
	}

	var stored string
	if err := s2.DB().QueryRow(
		"SELECT value FROM metadata WHERE key = 'schema_version'",
	).Scan(&stored); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if stored != fmt.Sprint(SchemaVersion) {
		t.Fatalf("version = %s, want %d", stored, SchemaVersion)
	}
}

func TestPragmasReachEveryPooledConnection(t *testing.T) {
	s := newTestStore(t)

	// Pin the first pooled connection with an open cursor so the pragma
	// reads below are forced onto a different connection.
	pin, err := s.DB().Query("SELECT 1")
	if err != nil {
		t.Fatalf("pin connection: %v", err)
	}
	defer pin.Close()

	for _, pragma := range []string{"foreign_keys", "recursive_triggers"} {
		var enabled int
		if err := s.DB().QueryRow("PRAGMA " + pragma).Scan(&enabled); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if enabled != 1 {
			t.Fatalf("PRAGMA %s = %d on a fresh pooled connection, want 1", pragma, enabled)
		}
	}
}

func TestAnnotationCascadeUnderConcurrentReads(t *testing.T) {
	s := newTestStore(t)

	rec := testTurn("s-1", 0, "prompt", "")
	rec.Annotations = []AnnotationRow{{Kind: "tool", Name: "readFile"}}
	if err := s.IndexSession(testSession("s-1", "/logs/a.json"), []TurnRecord{rec}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	// Hold a cursor so the re-index transaction lands on another pooled
	// connection; the turn wipe must still cascade to annotations there.
	pin, err := s.DB().Query("SELECT session_id FROM sessions")
	if err != nil {
		t.Fatalf("pin connection: %v", err)
	}
	if err := s.IndexSession(testSession("s-1", "/logs/a.json"), nil); err != nil {
		t.Fatalf("re-IndexSession: %v", err)
	}
	pin.Close()

	for _, q := range []string{
		"SELECT COUNT(*) FROM turns",
		"SELECT COUNT(*) FROM annotations",
	} {
		var n int
		if err := s.DB().QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if n != 0 {
			t.Fatalf("%s = %d, want 0 (orphaned rows survived the cascade)", q, n)
		}
	}
}

func TestIndexSessionReplacesTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sm := testSession("s-1", "/logs/a.json")
	var turns []TurnRecord
	for i := 0; i < 5; i++ {
		turns = append(turns, testTurn("s-1", i, fmt.Sprintf("prompt %d", i), "obsoleteword response"))
	}
	if err := s.IndexSession(sm, turns); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	// The log shrank: re-index with only three turns.
	if err := s.IndexSession(sm, []TurnRecord{
		testTurn("s-1", 0, "prompt 0", "fresh response"),
		testTurn("s-1", 1, "prompt 1", "fresh response"),
		testTurn("s-1", 2, "prompt 2", "fresh response"),
	}); err != nil {
		t.Fatalf("re-IndexSession: %v", err)
	}

	got, err := s.TurnsForSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("TurnsForSession: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("turns = %d, want 3", len(got))
	}

	// The full-text shadow must not retain the replaced rows.
	hits, err := s.Search(ctx, "obsoleteword", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("stale FTS rows survived replacement: %+v", hits)
	}
}

func TestIndexSessionIdentityChange(t *testing.T) {
	s := newTestStore(t)

	if err := s.IndexSession(testSession("s-old", "/logs/a.json"), nil); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	// Same file now carries a different session id.
	if err := s.IndexSession(testSession("s-new", "/logs/a.json"), nil); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	sessions, err := s.ListSessions(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-new" {
		t.Fatalf("expected only s-new for the file, got %+v", sessions)
	}
}

func TestDeleteSessionsCleansEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testTurn("s-1", 0, "ephemeral prompt", "")
	rec.Annotations = []AnnotationRow{{Kind: "tool", Name: "readFile"}}
	if err := s.IndexSession(testSession("s-1", "/logs/a.json"), []TurnRecord{rec}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	if err := s.DeleteSessions([]string{"s-1"}); err != nil {
		t.Fatalf("DeleteSessions: %v", err)
	}

	for _, q := range []string{
		"SELECT COUNT(*) FROM sessions",
		"SELECT COUNT(*) FROM turns",
		"SELECT COUNT(*) FROM annotations",
	} {
		var n int
		if err := s.DB().QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if n != 0 {
			t.Fatalf("%s = %d, want 0", q, n)
		}
	}

	hits, err := s.Search(ctx, "ephemeral", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("FTS rows survived deletion: %+v", hits)
	}
}

func TestListSessionsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testSession("s-old", "/logs/old.json")
	old.CreationDate = time.Now().AddDate(0, 0, -30).UnixMilli()
	recent := testSession("s-new", "/logs/new.json")
	recent.StorageType = "workspace"
	recent.WorkspacePath = "myproject"

	for _, sm := range []SessionSummary{old, recent} {
		if err := s.IndexSession(sm, nil); err != nil {
			t.Fatalf("IndexSession: %v", err)
		}
	}

	got, err := s.ListSessions(ctx, ListOptions{MaxAgeDays: 7})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "s-new" {
		t.Fatalf("age filter: got %+v", got)
	}

	got, err = s.ListSessions(ctx, ListOptions{StorageType: "workspace"})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 || got[0].WorkspacePath != "myproject" {
		t.Fatalf("storage filter: got %+v", got)
	}

	got, err = s.ListSessions(ctx, ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("pagination: got %d rows, want 1", len(got))
	}
}

func TestBarrierBlocksReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.BeginRebuild()
	// Reentrant begin must not deadlock the later end.
	s.BeginRebuild()

	released := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		close(released)
		_, err := s.ListSessions(ctx, ListOptions{})
		result <- err
	}()

	<-released
	select {
	case err := <-result:
		t.Fatalf("read completed during rebuild (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.EndRebuild()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("ListSessions after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read never woke after EndRebuild")
	}
}

func TestBarrierRespectsContext(t *testing.T) {
	s := newTestStore(t)

	s.BeginRebuild()
	defer s.EndRebuild()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ListSessions(ctx, ListOptions{})
	if err == nil {
		t.Fatal("expected context error while barrier held")
	}
}
