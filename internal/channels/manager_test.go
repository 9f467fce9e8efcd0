package channels

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-bot/steward/internal/bus"
)

type fakeTransport struct {
	name string
	mu   sync.Mutex
	sent []bus.Outbound
}

func (f *fakeTransport) Name() string                    { return f.name }
func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Stop() error                     { return nil }
func (f *fakeTransport) Allowed(senderID string) bool    { return true }

func (f *fakeTransport) Send(msg bus.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestRegistryLookup(t *testing.T) {
	Register("faketest", func(cfg json.RawMessage, b *bus.Bus) (Transport, error) {
		return &fakeTransport{name: "faketest"}, nil
	})

	_, ok := Lookup("faketest")
	assert.True(t, ok)
	_, ok = Lookup("no-such-transport")
	assert.False(t, ok)
	assert.Contains(t, RegisteredNames(), "faketest")
}

func TestAddTransportUnknownFactory(t *testing.T) {
	m := NewManager(bus.New(0))
	err := m.AddTransport("nonexistent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no factory registered")
}

func TestDeliverRoutesByTransport(t *testing.T) {
	b := bus.New(0)
	m := NewManager(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	alpha := &fakeTransport{name: "alpha"}
	beta := &fakeTransport{name: "beta"}
	m.mu.Lock()
	m.transports = append(m.transports, alpha, beta)
	m.mu.Unlock()

	m.Deliver("beta", "chan-9", "task result")

	require.Eventually(t, func() bool {
		return beta.sentCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, alpha.sentCount())

	beta.mu.Lock()
	defer beta.mu.Unlock()
	assert.Equal(t, "chan-9", beta.sent[0].ChannelID)
	assert.Equal(t, "task result", beta.sent[0].Content)
}
