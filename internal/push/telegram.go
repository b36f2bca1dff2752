package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

// Telegram sends a chat message through a bot. The bot is created on first
// use since creating it calls getMe.
type Telegram struct {
	cfg      config.TelegramConfig
	endpoint string
	log      *logger.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(cfg config.TelegramConfig, log *logger.Logger) *Telegram {
	return &Telegram{cfg: cfg, endpoint: tgbotapi.APIEndpoint, log: log}
}

func newTelegramFromConfig(cfg *config.Config, log *logger.Logger) (Channel, bool) {
	return NewTelegram(cfg.Telegram, log), cfg.Telegram.Enabled
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) ValidateConfig() error {
	var errs []error
	if t.cfg.Token == "" {
		errs = append(errs, errors.New("telegram: token is empty"))
	}
	if t.cfg.ChatID == 0 {
		errs = append(errs, errors.New("telegram: chat_id is empty"))
	}
	return errors.Join(errs...)
}

func (t *Telegram) Test(ctx context.Context) error { return sendTest(ctx, t) }

func (t *Telegram) Send(ctx context.Context, title, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.client()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.cfg.ChatID, title+"\n"+content)
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: failed to send: %w", err)
	}
	return nil
}

func (t *Telegram) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.endpoint, newHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create bot: %w", err)
	}
	t.log.Debug("Telegram bot ready", "bot", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}
