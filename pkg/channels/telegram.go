package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dotsetgreg/jarvis/pkg/bus"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/logger"
)

const (
	telegramChannelName = "telegram"
	// Telegram caps messages at 4096 characters; leave headroom.
	telegramMaxMessageLen = 4000
)

const telegramGreeting = "Hello! I'm Jarvis, your AI business assistant. I remember our conversations, so feel free to pick up where we left off. How can I help you today?"

// TelegramBot is the slice of the bot API the channel uses, kept narrow so
// tests can substitute a fake.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances; tests swap in their own.
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	*BaseChannel
	token      string
	proxy      string
	bot        TelegramBot
	botFactory BotFactory
	cancel     context.CancelFunc
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if strings.TrimSpace(t.proxy) != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	}

	bot, err := t.botFactory(t.token, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	logger.InfoCF("telegram", "Authorized", map[string]interface{}{
		"username": bot.GetSelf().UserName,
	})
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleUpdate(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.setRunning(true)
	logger.InfoC("telegram", "Polling started")
	return nil
}

func (t *TelegramChannel) Stop(ctx context.Context) error {
	t.setRunning(false)
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	logger.InfoC("telegram", "Stopped")
	return nil
}

func (t *TelegramChannel) handleUpdate(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	compound := senderID
	if msg.From.UserName != "" {
		compound = senderID + "|" + msg.From.UserName
	}
	if !t.IsAllowed(compound) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"sender_id": senderID,
			"username":  msg.From.UserName,
		})
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	// /start never reaches the reply pipeline; answer it directly.
	if msg.IsCommand() && msg.Command() == "start" {
		if err := t.sendText(chatID, telegramGreeting); err != nil {
			logger.ErrorCF("telegram", "Failed to send greeting", map[string]interface{}{
				"chat_id": chatID,
				"error":   err.Error(),
			})
		}
		return
	}

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	displayName := strings.TrimSpace(msg.From.FirstName)
	if displayName == "" {
		displayName = msg.From.UserName
	}

	t.HandleMessage(senderID, chatID, content, displayName, map[string]string{
		"username":   msg.From.UserName,
		"message_id": strconv.Itoa(msg.MessageID),
	})
}

func (t *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}
	return t.sendText(msg.ChatID, msg.Content)
}

func (t *TelegramChannel) sendText(chatIDStr, content string) error {
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatIDStr, err)
	}

	for _, chunk := range chunkText(content, telegramMaxMessageLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// chunkText splits content into pieces of at most maxLen bytes, preferring to
// break at the last newline inside the limit.
func chunkText(content string, maxLen int) []string {
	var chunks []string
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			chunk = chunk[:maxLen]
			if idx := strings.LastIndex(chunk, "\n"); idx > 0 {
				chunk = chunk[:idx]
			}
		}
		content = strings.TrimLeft(content[len(chunk):], "\n")
		chunks = append(chunks, chunk)
	}
	return chunks
}

// SetBot overrides the bot instance; used by tests.
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}
