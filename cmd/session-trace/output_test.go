package main

import "testing"

func TestClip(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"a bit too long", 5, "a bit…"},
		{"multi\nline\ttext here", 50, "multi line text here"},
		{"", 5, ""},
		// Cut lands mid-rune (each character is 3 bytes): back up cleanly.
		{"日本語テキスト", 4, "日…"},
	}
	for _, tc := range cases {
		if got := clip(tc.in, tc.maxLen); got != tc.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}

func TestVoteLabel(t *testing.T) {
	if got := voteLabel(1); got != "up" {
		t.Errorf("voteLabel(1) = %q", got)
	}
	if got := voteLabel(-1); got != "down" {
		t.Errorf("voteLabel(-1) = %q", got)
	}
	if got := voteLabel(0); got != "-" {
		t.Errorf("voteLabel(0) = %q", got)
	}
}

func TestFormatMillis(t *testing.T) {
	if got := formatMillis(0); got != "-" {
		t.Errorf("formatMillis(0) = %q", got)
	}
	if got := formatMillis(1700000000000); got == "-" {
		t.Error("formatMillis(nonzero) should render a timestamp")
	}
}
