package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/steward-bot/steward/internal/bus"
	"github.com/steward-bot/steward/internal/engine"
	"github.com/steward-bot/steward/internal/session"
	"github.com/steward-bot/steward/internal/tools"
)

// Gate decides whether an interactive turn may proceed and receives usage
// reports.
type Gate interface {
	CanProceed(ctx context.Context, tenantID string) bool
	TrackUsage(ctx context.Context, tenantID, kind string, cost int, success bool)
}

// Sessions resolves the active session for a channel.
type Sessions interface {
	GetOrCreate(ctx context.Context, channelID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string) error
}

// Invoker executes a message against an engine conversation.
type Invoker interface {
	Invoke(ctx context.Context, handle, instruction string) (*engine.Reply, error)
}

// Orchestrator consumes inbound messages and routes them: /task admin
// commands go to the schedule tool, everything else becomes an interactive
// engine turn on the channel's session.
type Orchestrator struct {
	bus      *bus.Bus
	gate     Gate
	sessions Sessions
	invoker  Invoker
	registry *tools.Registry
}

type Config struct {
	Bus      *bus.Bus
	Gate     Gate
	Sessions Sessions
	Invoker  Invoker
	Registry *tools.Registry
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		bus:      cfg.Bus,
		gate:     cfg.Gate,
		sessions: cfg.Sessions,
		invoker:  cfg.Invoker,
		registry: cfg.Registry,
	}
}

// Run consumes inbound messages until ctx is cancelled. Messages are handled
// sequentially, preserving per-channel ordering.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msg, err := o.bus.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		o.handle(ctx, msg)
	}
}

func (o *Orchestrator) handle(ctx context.Context, msg bus.Inbound) {
	if cmd, ok := parseCommand(msg.Content); ok {
		o.handleCommand(ctx, msg, cmd)
		return
	}
	o.handleConversation(ctx, msg)
}

func (o *Orchestrator) handleCommand(ctx context.Context, msg bus.Inbound, cmd command) {
	if cmd.help != "" {
		o.reply(msg, cmd.help, "text")
		return
	}

	params := make(map[string]string, len(cmd.params)+3)
	for k, v := range cmd.params {
		params[k] = v
	}
	params["channel_id"] = msg.ChannelID
	params["tenant_id"] = msg.TenantID
	params["transport"] = msg.Transport

	raw, err := json.Marshal(params)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode command params")
		o.reply(msg, "Internal error handling command.", "error")
		return
	}

	result := o.registry.Execute(ctx, "manage_schedule", raw)
	o.reply(msg, result, "text")
}

func (o *Orchestrator) handleConversation(ctx context.Context, msg bus.Inbound) {
	if !o.gate.CanProceed(ctx, msg.TenantID) {
		o.reply(msg, "Usage limit reached for this workspace. Upgrade or wait for the quota to reset.", "error")
		return
	}

	sess, err := o.sessions.GetOrCreate(ctx, msg.ChannelID)
	if err != nil {
		log.Error().Err(err).Str("channel", msg.ChannelID).Msg("failed to resolve session")
		o.reply(msg, "Something went wrong, please try again.", "error")
		return
	}

	reply, invokeErr := o.invoker.Invoke(ctx, sess.EngineHandle, msg.Content)

	cost := 0
	if reply != nil {
		cost = reply.CostUnits
	}
	o.gate.TrackUsage(ctx, msg.TenantID, "interactive", cost, invokeErr == nil)

	if invokeErr != nil {
		log.Error().Err(invokeErr).Str("channel", msg.ChannelID).Msg("engine invocation failed")
		o.reply(msg, fmt.Sprintf("Engine error: %v", invokeErr), "error")
		return
	}

	if err := o.sessions.Touch(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("failed to touch session")
	}
	o.reply(msg, reply.Content, "text")
}

func (o *Orchestrator) reply(msg bus.Inbound, content, kind string) {
	if content == "" {
		return
	}
	o.bus.PublishOutbound(bus.Outbound{
		Transport: msg.Transport,
		ChannelID: msg.ChannelID,
		Content:   content,
		Kind:      kind,
	})
}
