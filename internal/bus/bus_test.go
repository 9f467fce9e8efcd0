package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := New(10)
	b.PublishInbound(Inbound{Transport: "discord", ChannelID: "c1", TenantID: "g1", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	if msg.ChannelID != "c1" || msg.TenantID != "g1" || msg.Content != "hi" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestConsumeInboundCancellation(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.ConsumeInbound(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestOutboundDispatchRouting(t *testing.T) {
	b := New(10)

	got := make(chan Outbound, 2)
	b.Subscribe("telegram", func(msg Outbound) { got <- msg })

	wildcard := make(chan Outbound, 2)
	b.Subscribe("", func(msg Outbound) { wildcard <- msg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(Outbound{Transport: "telegram", ChannelID: "c9", Content: "pong"})
	b.PublishOutbound(Outbound{Transport: "discord", ChannelID: "c2", Content: "other"})

	select {
	case msg := <-got:
		if msg.ChannelID != "c9" {
			t.Errorf("expected channel c9, got %q", msg.ChannelID)
		}
	case <-time.After(time.Second):
		t.Fatal("telegram subscriber never received message")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-wildcard:
		case <-time.After(time.Second):
			t.Fatalf("wildcard subscriber received %d of 2 messages", i)
		}
	}

	select {
	case msg := <-got:
		t.Errorf("telegram subscriber received foreign message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
