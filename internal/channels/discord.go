package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/steward-bot/steward/internal/bus"
)

func init() {
	Register("discord", newDiscordTransport)
}

type discordConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

// DiscordTransport bridges a Discord bot gateway connection onto the bus.
// The guild a message arrives from is the quota tenant; direct messages fall
// back to the DM channel id.
type DiscordTransport struct {
	session      *discordgo.Session
	bus          *bus.Bus
	allowedUsers map[string]bool
}

func newDiscordTransport(cfg json.RawMessage, b *bus.Bus) (Transport, error) {
	var dcfg discordConfig
	if err := json.Unmarshal(cfg, &dcfg); err != nil {
		return nil, fmt.Errorf("failed to parse discord config: %w", err)
	}
	session, err := discordgo.New("Bot " + dcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	allowed := make(map[string]bool, len(dcfg.AllowedUsers))
	for _, u := range dcfg.AllowedUsers {
		allowed[u] = true
	}
	return &DiscordTransport{
		session:      session,
		bus:          b,
		allowedUsers: allowed,
	}, nil
}

func (t *DiscordTransport) Name() string { return "discord" }

func (t *DiscordTransport) Start(ctx context.Context) error {
	t.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if !t.Allowed(m.Author.ID) {
			log.Warn().Str("user", m.Author.ID).Msg("discord: message from disallowed user")
			return
		}
		tenant := m.GuildID
		if tenant == "" {
			tenant = m.ChannelID
		}
		t.bus.PublishInbound(bus.Inbound{
			Transport: "discord",
			SenderID:  m.Author.ID,
			ChannelID: m.ChannelID,
			TenantID:  tenant,
			Content:   m.Content,
		})
	})
	if err := t.session.Open(); err != nil {
		return fmt.Errorf("discord: failed to open gateway: %w", err)
	}
	return nil
}

func (t *DiscordTransport) Stop() error {
	return t.session.Close()
}

func (t *DiscordTransport) Send(msg bus.Outbound) error {
	if _, err := t.session.ChannelMessageSend(msg.ChannelID, msg.Content); err != nil {
		return fmt.Errorf("discord: failed to send message: %w", err)
	}
	return nil
}

func (t *DiscordTransport) Allowed(senderID string) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	return t.allowedUsers[senderID]
}
