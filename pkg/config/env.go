package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override push channel secrets.
const (
	EnvWxPusherToken  = "POE_AUTOTRADE_WXPUSHER_TOKEN"
	EnvEmailPassword  = "POE_AUTOTRADE_EMAIL_PASSWORD"
	EnvServerChanKey  = "POE_AUTOTRADE_SERVERCHAN_KEY"
	EnvQmsgKey        = "POE_AUTOTRADE_QMSG_KEY"
	EnvDiscordWebhook = "POE_AUTOTRADE_DISCORD_WEBHOOK"
	EnvTelegramToken  = "POE_AUTOTRADE_TELEGRAM_TOKEN"
	EnvTelegramChatID = "POE_AUTOTRADE_TELEGRAM_CHAT_ID"
	EnvClassifierURL  = "POE_AUTOTRADE_CLASSIFIER_URL"
)

// LoadEnv reads a .env file from dir into the process environment, keeping
// variables that are already set, and then applies the overrides.
func (c *Config) LoadEnv(dir string) error {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	c.ApplyEnv()
	return nil
}

// ApplyEnv copies secrets from the environment over the file values.
func (c *Config) ApplyEnv() {
	setString(&c.WxPusher.AppToken, EnvWxPusherToken)
	setString(&c.Email.Password, EnvEmailPassword)
	setString(&c.ServerChan.SendKey, EnvServerChanKey)
	setString(&c.QmsgChan.Key, EnvQmsgKey)
	setString(&c.Discord.WebhookURL, EnvDiscordWebhook)
	setString(&c.Telegram.Token, EnvTelegramToken)
	setString(&c.Classifier.URL, EnvClassifierURL)

	if v := os.Getenv(EnvTelegramChatID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		} else if c.log != nil {
			c.log.Warn("Ignoring invalid telegram chat id from environment", "value", v)
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
