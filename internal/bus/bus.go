package bus

import (
	"context"
	"sync"
)

// Bus is a hub-and-spoke message bus between chat transports and the
// orchestrator, built on Go channels.
type Bus struct {
	inbound  chan Inbound
	outbound chan Outbound
	subs     map[string][]func(Outbound) // transport name -> subscribers
	mu       sync.RWMutex
}

// New creates a Bus with the given buffer size. Zero means 100.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Bus{
		inbound:  make(chan Inbound, bufSize),
		outbound: make(chan Outbound, bufSize),
		subs:     make(map[string][]func(Outbound)),
	}
}

// PublishInbound sends an inbound message onto the bus.
func (b *Bus) PublishInbound(msg Inbound) {
	b.inbound <- msg
}

// PublishOutbound sends an outbound message onto the bus.
func (b *Bus) PublishOutbound(msg Outbound) {
	b.outbound <- msg
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (b *Bus) ConsumeInbound(ctx context.Context) (Inbound, error) {
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return Inbound{}, context.Canceled
		}
		return msg, nil
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	}
}

// Subscribe registers fn to receive outbound messages for the given transport.
// An empty transport string subscribes to all of them.
func (b *Bus) Subscribe(transport string, fn func(Outbound)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[transport] = append(b.subs[transport], fn)
}

// DispatchOutbound reads outbound messages and delivers them to matching
// subscribers. Returns when ctx is cancelled or the bus is closed.
func (b *Bus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg, ok := <-b.outbound:
			if !ok {
				return
			}
			b.dispatch(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(msg Outbound) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, fn := range b.subs[msg.Transport] {
		fn(msg)
	}
	for _, fn := range b.subs[""] {
		fn(msg)
	}
}

// Close closes both the inbound and outbound channels.
func (b *Bus) Close() {
	close(b.inbound)
	close(b.outbound)
}
