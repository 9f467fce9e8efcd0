package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/steward-bot/steward/internal/config"
)

// Reply is the engine's answer to one invocation.
type Reply struct {
	Content   string
	CostUnits int // consumed cost units (token total), reported to the quota gate
}

// Engine is the conversational-completion backend. A conversation handle is
// opaque to callers; the session manager stores it, the scheduler borrows it.
type Engine interface {
	OpenConversation(ctx context.Context) (string, error)
	Invoke(ctx context.Context, handle, instruction string) (*Reply, error)
}

// New selects an engine implementation from config.
func New(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	case "anthropic":
		return NewAnthropicEngine(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}

// maxTranscriptTurns bounds the per-conversation history window sent upstream.
const maxTranscriptTurns = 40

type turn struct {
	role    string // "user" or "assistant"
	content string
}

// transcripts holds process-local conversation history per handle. Handles
// outlive the process (they are persisted with sessions); history does not —
// after a restart the conversation simply continues fresh.
type transcripts struct {
	mu       sync.Mutex
	byHandle map[string][]turn
}

func newTranscripts() *transcripts {
	return &transcripts{byHandle: make(map[string][]turn)}
}

func (t *transcripts) open() string {
	handle := uuid.NewString()
	t.mu.Lock()
	t.byHandle[handle] = nil
	t.mu.Unlock()
	return handle
}

// snapshot returns the history for handle plus the pending user turn.
func (t *transcripts) snapshot(handle, instruction string) []turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	history := t.byHandle[handle]
	out := make([]turn, 0, len(history)+1)
	out = append(out, history...)
	return append(out, turn{role: "user", content: instruction})
}

// commit records a completed exchange, trimming the window from the front.
func (t *transcripts) commit(handle, instruction, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	history := append(t.byHandle[handle],
		turn{role: "user", content: instruction},
		turn{role: "assistant", content: reply},
	)
	if len(history) > maxTranscriptTurns {
		history = history[len(history)-maxTranscriptTurns:]
	}
	t.byHandle[handle] = history
}
