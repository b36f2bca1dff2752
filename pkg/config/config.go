package config

import (
	"time"

	"poe-autotrade/internal/models"
	"poe-autotrade/pkg/logger"
)

// Config holds the application configuration. It is built once at startup and
// handed to each component; nothing reads it through a global.
type Config struct {
	Interval     int                  `json:"interval"`      // log poll interval, ms
	PushInterval int                  `json:"push_interval"` // minimum gap between pushes, ms
	Keywords     []models.KeywordRule `json:"keywords"`
	LogPath      string               `json:"log_path"`
	GameWindow   string               `json:"game_window"`
	SteamApps    []SteamAppSpec       `json:"steam_apps"`
	SocketPath   string               `json:"socket_path"`

	// HistoryRetentionHours bounds how long finished trades stay in sqlite.
	HistoryRetentionHours int `json:"history_retention_hours"`

	AutoTrade  AutoTradeConfig  `json:"auto_trade"`
	Stash      StashConfig      `json:"stash"`
	WxPusher   WxPusherConfig   `json:"wxpusher"`
	Email      EmailConfig      `json:"email"`
	ServerChan ServerChanConfig `json:"serverchan"`
	QmsgChan   QmsgChanConfig   `json:"qmsgchan"`
	Discord    DiscordConfig    `json:"discord"`
	Telegram   TelegramConfig   `json:"telegram"`
	Desktop    DesktopConfig    `json:"desktop"`
	Sound      SoundConfig      `json:"sound"`
	Classifier ClassifierConfig `json:"classifier"`

	Currencies []CurrencyAlias `json:"currencies"`
	Accounts   []Account       `json:"accounts"`

	path string
	log  *logger.Logger
}

// TradeCommands are chat command templates; {user} is replaced by the buyer.
type TradeCommands struct {
	Invite string `json:"invite"`
	Kick   string `json:"kick"`
	Trade  string `json:"trade"`
}

type AutoTradeConfig struct {
	Enabled         bool `json:"enabled"`
	PartyTimeoutMs  int  `json:"party_timeout_ms"`
	TradeTimeoutMs  int  `json:"trade_timeout_ms"`
	StashIntervalMs int  `json:"stash_interval_ms"`
	TradeIntervalMs int  `json:"trade_interval_ms"`
	ActionDelayMs   int  `json:"action_delay_ms"`

	ModifierKey string `json:"modifier_key"`
	CloseKey    string `json:"close_key"`

	// Event patterns use "*" wildcards and the {user} variable.
	JoinPattern      string `json:"join_pattern"`
	AcceptedPattern  string `json:"accepted_pattern"`
	CompletedPattern string `json:"completed_pattern"`
	CancelledPattern string `json:"cancelled_pattern"`

	Commands TradeCommands `json:"commands"`
}

type StashConfig struct {
	MarkerTemplate  string  `json:"marker_template"`
	StashTemplate   string  `json:"stash_template"`
	PreviewDir      string  `json:"preview_dir"`
	MinScale        float64 `json:"min_scale"`
	MaxScale        float64 `json:"max_scale"`
	ScaleSamples    int     `json:"scale_samples"`
	DetectThreshold float64 `json:"detect_threshold"`
	PoolThreshold   float64 `json:"pool_threshold"`
	AreaTolerance   float64 `json:"area_tolerance"`
	StashThreshold  float64 `json:"stash_threshold"`
}

type WxPusherConfig struct {
	Enabled  bool     `json:"enabled"`
	AppToken string   `json:"app_token"`
	UIDs     []string `json:"uids"`
	BaseURL  string   `json:"base_url"`
}

type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	SSL      bool     `json:"ssl"`
}

type ServerChanConfig struct {
	Enabled bool   `json:"enabled"`
	SendKey string `json:"send_key"`
	BaseURL string `json:"base_url"`
}

type QmsgChanConfig struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key"`
	QQ      string `json:"qq"`
	BaseURL string `json:"base_url"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

type DesktopConfig struct {
	Enabled bool `json:"enabled"`
	// Command forces a notification tool; empty picks the first one found.
	Command string `json:"command"`
}

type SoundConfig struct {
	Enabled bool   `json:"enabled"`
	File    string `json:"file"`
}

type ClassifierConfig struct {
	Enabled            bool    `json:"enabled"`
	URL                string  `json:"url"`
	DetectionThreshold float64 `json:"detection_threshold"`
	TimeoutMs          int     `json:"timeout_ms"`
}

// CurrencyAlias maps the names a currency shows up as onto one canonical name.
type CurrencyAlias struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Account is a trading account known to the operator. Verification happens
// outside this program; the list is kept so whispers to alts can be ignored.
type Account struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// New creates an empty Config bound to the provided logger.
func New(log *logger.Logger) *Config {
	return &Config{
		log: log,
	}
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// PollInterval returns Interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return ms(c.Interval)
}

// PushGap returns PushInterval as a duration.
func (c *Config) PushGap() time.Duration {
	return ms(c.PushInterval)
}

// HistoryRetention returns how long finished trades are kept.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionHours) * time.Hour
}

// NormalizeCurrency maps a currency name through the configured aliases.
func (c *Config) NormalizeCurrency(name string) string {
	for _, cur := range c.Currencies {
		if cur.Name == name {
			return cur.Name
		}
		for _, alias := range cur.Aliases {
			if alias == name {
				return cur.Name
			}
		}
	}
	return name
}

// IsOwnAccount reports whether name is one of the configured accounts.
func (c *Config) IsOwnAccount(name string) bool {
	for _, a := range c.Accounts {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (a AutoTradeConfig) PartyTimeout() time.Duration  { return ms(a.PartyTimeoutMs) }
func (a AutoTradeConfig) TradeTimeout() time.Duration  { return ms(a.TradeTimeoutMs) }
func (a AutoTradeConfig) StashInterval() time.Duration { return ms(a.StashIntervalMs) }
func (a AutoTradeConfig) TradeInterval() time.Duration { return ms(a.TradeIntervalMs) }
func (a AutoTradeConfig) ActionDelay() time.Duration   { return ms(a.ActionDelayMs) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
