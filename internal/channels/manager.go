package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/steward-bot/steward/internal/bus"
)

// Manager owns the configured transports and routes outbound messages from
// the bus to the transport they name.
type Manager struct {
	bus        *bus.Bus
	mu         sync.Mutex
	transports []Transport
}

func NewManager(b *bus.Bus) *Manager {
	m := &Manager{bus: b}
	m.bus.Subscribe("", m.route)
	return m
}

// AddTransport creates a transport from its registered factory and config
// block.
func (m *Manager) AddTransport(name string, cfgJSON json.RawMessage) error {
	factory, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("no factory registered for transport %q", name)
	}
	tr, err := factory(cfgJSON, m.bus)
	if err != nil {
		return fmt.Errorf("failed to create transport %q: %w", name, err)
	}
	m.mu.Lock()
	m.transports = append(m.transports, tr)
	m.mu.Unlock()
	return nil
}

// StartAll starts every configured transport.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, tr := range m.snapshot() {
		if err := tr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start transport %q: %w", tr.Name(), err)
		}
		log.Info().Str("transport", tr.Name()).Msg("transport started")
	}
	return nil
}

// StopAll stops every transport, returning the first error encountered.
func (m *Manager) StopAll() error {
	var firstErr error
	for _, tr := range m.snapshot() {
		if err := tr.Stop(); err != nil {
			log.Error().Err(err).Str("transport", tr.Name()).Msg("failed to stop transport")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Deliver publishes a message for a transport channel onto the outbound bus.
// Used by the scheduler to report task results back to the task's channel.
func (m *Manager) Deliver(transport, channelID, content string) {
	m.bus.PublishOutbound(bus.Outbound{
		Transport: transport,
		ChannelID: channelID,
		Content:   content,
		Kind:      "text",
	})
}

// route hands an outbound message to the transport it names.
func (m *Manager) route(msg bus.Outbound) {
	for _, tr := range m.snapshot() {
		if tr.Name() != msg.Transport {
			continue
		}
		if err := tr.Send(msg); err != nil {
			log.Error().Err(err).Str("transport", tr.Name()).
				Str("channel", msg.ChannelID).Msg("failed to send message")
		}
		return
	}
	log.Warn().Str("transport", msg.Transport).Msg("outbound message for unknown transport")
}

func (m *Manager) snapshot() []Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transport, len(m.transports))
	copy(out, m.transports)
	return out
}
