package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/steward-bot/steward/internal/bus"
)

func init() {
	Register("telegram", newTelegramTransport)
}

type telegramConfig struct {
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowedUsers"`
}

// TelegramTransport consumes bot updates via long polling. Telegram has no
// grouping above the chat, so the chat id doubles as the quota tenant.
type TelegramTransport struct {
	bot          *tgbotapi.BotAPI
	bus          *bus.Bus
	allowedUsers map[string]bool
	stopCh       chan struct{}
}

func newTelegramTransport(cfg json.RawMessage, b *bus.Bus) (Transport, error) {
	var tcfg telegramConfig
	if err := json.Unmarshal(cfg, &tcfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(tcfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	allowed := make(map[string]bool, len(tcfg.AllowedUsers))
	for _, u := range tcfg.AllowedUsers {
		allowed[u] = true
	}
	return &TelegramTransport{
		bot:          bot,
		bus:          b,
		allowedUsers: allowed,
		stopCh:       make(chan struct{}),
	}, nil
}

func (t *TelegramTransport) Name() string { return "telegram" }

func (t *TelegramTransport) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.From == nil {
					continue
				}
				senderID := strconv.FormatInt(update.Message.From.ID, 10)
				if !t.Allowed(senderID) {
					log.Warn().Str("user", senderID).Msg("telegram: message from disallowed user")
					continue
				}
				chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
				t.bus.PublishInbound(bus.Inbound{
					Transport: "telegram",
					SenderID:  senderID,
					ChannelID: chatID,
					TenantID:  chatID,
					Content:   update.Message.Text,
				})
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case <-t.stopCh:
				t.bot.StopReceivingUpdates()
				return
			}
		}
	}()
	return nil
}

func (t *TelegramTransport) Stop() error {
	close(t.stopCh)
	return nil
}

func (t *TelegramTransport) Send(msg bus.Outbound) error {
	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChannelID, err)
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, msg.Content))
	return err
}

func (t *TelegramTransport) Allowed(senderID string) bool {
	if len(t.allowedUsers) == 0 {
		return true
	}
	return t.allowedUsers[senderID]
}
