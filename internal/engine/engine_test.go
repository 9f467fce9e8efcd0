package engine

import (
	"testing"

	"github.com/steward-bot/steward/internal/config"
)

func TestNewSelectsProvider(t *testing.T) {
	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"", false},
		{"anthropic", false},
		{"cohere", true},
	}
	for _, tc := range cases {
		_, err := New(config.EngineConfig{Provider: tc.provider, APIKey: "k"})
		if tc.wantErr && err == nil {
			t.Errorf("provider %q: expected error", tc.provider)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("provider %q: unexpected error: %v", tc.provider, err)
		}
	}
}

func TestTranscriptWindow(t *testing.T) {
	ts := newTranscripts()
	handle := ts.open()

	for i := 0; i < maxTranscriptTurns; i++ {
		ts.commit(handle, "q", "a")
	}

	turns := ts.snapshot(handle, "latest")
	if len(turns) != maxTranscriptTurns+1 {
		t.Fatalf("expected window of %d turns plus pending, got %d", maxTranscriptTurns, len(turns))
	}
	last := turns[len(turns)-1]
	if last.role != "user" || last.content != "latest" {
		t.Errorf("pending turn not appended: %+v", last)
	}
}

func TestTranscriptHandlesAreIndependent(t *testing.T) {
	ts := newTranscripts()
	h1 := ts.open()
	h2 := ts.open()
	if h1 == h2 {
		t.Fatal("handles must be unique")
	}

	ts.commit(h1, "hello", "hi")
	if got := ts.snapshot(h2, "x"); len(got) != 1 {
		t.Errorf("h2 transcript should only hold the pending turn, got %d entries", len(got))
	}
}
