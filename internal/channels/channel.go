package channels

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/steward-bot/steward/internal/bus"
)

// Transport is a chat platform adapter. Start begins consuming platform
// events and publishing them inbound; Send delivers an outbound message to a
// platform channel.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.Outbound) error
	Allowed(senderID string) bool
}

// Factory creates a Transport from its JSON config block.
type Factory func(cfg json.RawMessage, b *bus.Bus) (Transport, error)

var registry = map[string]Factory{}

// Register adds a transport factory under its name. Called from init.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup returns the factory registered for a transport name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// RegisteredNames returns all registered transport names, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
