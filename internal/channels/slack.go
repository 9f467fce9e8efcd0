package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/steward-bot/steward/internal/bus"
)

func init() {
	Register("slack", newSlackTransport)
}

type slackConfig struct {
	BotToken     string   `json:"botToken"`
	AppToken     string   `json:"appToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

// SlackTransport connects via socket mode. The workspace (team) id resolved
// at startup is the quota tenant for every message on this connection.
type SlackTransport struct {
	client       *slack.Client
	socketClient *socketmode.Client
	bus          *bus.Bus
	allowedUsers map[string]bool
	teamID       string
}

func newSlackTransport(cfg json.RawMessage, b *bus.Bus) (Transport, error) {
	var scfg slackConfig
	if err := json.Unmarshal(cfg, &scfg); err != nil {
		return nil, fmt.Errorf("failed to parse slack config: %w", err)
	}
	allowed := make(map[string]bool, len(scfg.AllowedUsers))
	for _, u := range scfg.AllowedUsers {
		allowed[u] = true
	}
	client := slack.New(scfg.BotToken, slack.OptionAppLevelToken(scfg.AppToken))
	return &SlackTransport{
		client:       client,
		socketClient: socketmode.New(client),
		bus:          b,
		allowedUsers: allowed,
	}, nil
}

func (t *SlackTransport) Name() string { return "slack" }

func (t *SlackTransport) Start(ctx context.Context) error {
	auth, err := t.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test failed: %w", err)
	}
	t.teamID = auth.TeamID

	go func() {
		for evt := range t.socketClient.Events {
			if evt.Type != socketmode.EventTypeEventsAPI {
				if evt.Request != nil {
					t.socketClient.Ack(*evt.Request)
				}
				continue
			}
			eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				t.socketClient.Ack(*evt.Request)
				continue
			}
			t.socketClient.Ack(*evt.Request)
			if eventsAPI.Type != slackevents.CallbackEvent {
				continue
			}
			inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok {
				continue
			}
			if inner.BotID != "" {
				continue
			}
			if !t.Allowed(inner.User) {
				log.Warn().Str("user", inner.User).Msg("slack: message from disallowed user")
				continue
			}
			t.bus.PublishInbound(bus.Inbound{
				Transport: "slack",
				SenderID:  inner.User,
				ChannelID: inner.Channel,
				TenantID:  t.teamID,
				Content:   inner.Text,
			})
		}
	}()

	go func() {
		if err := t.socketClient.RunContext(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("slack: socket mode stopped")
		}
	}()
	return nil
}

func (t *SlackTransport) Stop() error { return nil }

func (t *SlackTransport) Send(msg bus.Outbound) error {
	_, _, err := t.client.PostMessage(msg.ChannelID, slack.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func (t *SlackTransport) Allowed(senderID string) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	return t.allowedUsers[senderID]
}
