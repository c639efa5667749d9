package store

import (
	"context"
	"testing"
)

func TestBuildMatchExpression(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"hello", `"hello"*`},
		{"hello world", `"hello"* "world"*`},
		{"foo AND bar", `"foo"* AND "bar"*`},
		{"foo or bar", `"foo"* OR "bar"*`},
		{"NOT", ""},
		{"AND foo OR", `"foo"*`},
		{`say "hi"`, `"say"* """hi"""*`},
	}

	for _, tc := range cases {
		if got := buildMatchExpression(tc.in); got != tc.want {
			t.Errorf("buildMatchExpression(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchPrefixMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sm := testSession("s-1", "/logs/a.json")
	if err := s.IndexSession(sm, []TurnRecord{
		testTurn("s-1", 0, "refactor the authentication flow", "done, moved tokens to middleware"),
		testTurn("s-1", 1, "add logging", "added structured logging"),
	}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	hits, err := s.Search(ctx, "authen", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].TurnIndex != 0 {
		t.Fatalf("prefix search: got %+v", hits)
	}

	hits, err = s.Search(ctx, "logging NOT structured", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("NOT operator: got %+v", hits)
	}
}

func TestSearchOperatorOnlyQuery(t *testing.T) {
	s := newTestStore(t)

	hits, err := s.Search(context.Background(), "AND OR NOT", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Fatalf("operator-only query should match nothing, got %+v", hits)
	}
}

func TestSearchWorkspaceFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testSession("s-a", "/logs/a.json")
	a.WorkspacePath = "alpha"
	b := testSession("s-b", "/logs/b.json")
	b.WorkspacePath = "beta"

	if err := s.IndexSession(a, []TurnRecord{testTurn("s-a", 0, "shared keyword", "")}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}
	if err := s.IndexSession(b, []TurnRecord{testTurn("s-b", 0, "shared keyword", "")}); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	hits, err := s.Search(ctx, "shared", SearchOptions{WorkspacePath: "alpha"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].SessionID != "s-a" {
		t.Fatalf("workspace filter: got %+v", hits)
	}
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sm := testSession("s-1", "/logs/a.json")
	var turns []TurnRecord
	for i := 0; i < 10; i++ {
		turns = append(turns, testTurn("s-1", i, "repeated term", ""))
	}
	if err := s.IndexSession(sm, turns); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	hits, err := s.Search(ctx, "repeated", SearchOptions{Limit: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("limit: got %d hits, want 3", len(hits))
	}
}
