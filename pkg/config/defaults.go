package config

import (
	"fmt"
	"os"
	"path/filepath"

	"poe-autotrade/internal/models"
	"poe-autotrade/pkg/logger"
)

// AppName names the config directory and socket.
const AppName = "poe-autotrade"

// DefaultTradeTemplate parses the whisper the official trade site generates.
const DefaultTradeTemplate = `*@From {@user}: Hi, I would like to buy your {@item} listed for {@price} {@currency} in * (stash tab "{@tab}"; position: {@p1} {@p1_num}, {@p2} {@p2_num})`

// DefaultConfig creates a default configuration. Every field has a usable
// value so a partial file loaded on top of it yields a complete config.
func DefaultConfig(log *logger.Logger) *Config {
	log.Debug("Creating default configuration")

	configDir := defaultConfigDir()
	assetsDir := filepath.Join(configDir, "assets")

	logPath, err := getDefaultPoeLogPath(log)
	if err != nil {
		log.Warn("No PoE log file found, set log_path in the config", "error", err.Error())
	}

	config := &Config{
		Interval:     500,
		PushInterval: 5000,
		Keywords: []models.KeywordRule{
			{Mode: models.ModeTrade, Pattern: DefaultTradeTemplate},
			{Mode: models.ModeMessage, Pattern: "@From"},
		},
		LogPath:               logPath,
		GameWindow:            "Path of Exile",
		SteamApps:             append([]SteamAppSpec(nil), defaultSteamApps...),
		SocketPath:            filepath.Join(os.TempDir(), AppName+".sock"),
		HistoryRetentionHours: 24,
		AutoTrade: AutoTradeConfig{
			Enabled:          false,
			PartyTimeoutMs:   30000,
			TradeTimeoutMs:   10000,
			StashIntervalMs:  1000,
			TradeIntervalMs:  1000,
			ActionDelayMs:    300,
			ModifierKey:      "ctrl",
			CloseKey:         "esc",
			JoinPattern:      "*{user} entered the area.",
			AcceptedPattern:  "*Trade with {user} accepted.",
			CompletedPattern: "*Trade with {user} completed.",
			CancelledPattern: "*Trade with {user} cancelled.",
			Commands: TradeCommands{
				Invite: "/invite {user}",
				Kick:   "/kick {user}",
				Trade:  "/tradewith {user}",
			},
		},
		Stash: StashConfig{
			MarkerTemplate:  filepath.Join(assetsDir, "marker.png"),
			StashTemplate:   filepath.Join(assetsDir, "stash.png"),
			PreviewDir:      "",
			MinScale:        0.2,
			MaxScale:        2.5,
			ScaleSamples:    47,
			DetectThreshold: 0.65,
			PoolThreshold:   0.75,
			AreaTolerance:   0.7,
			StashThreshold:  0.8,
		},
		WxPusher:   WxPusherConfig{BaseURL: "https://wxpusher.zjiecode.com"},
		Email:      EmailConfig{Port: 465, SSL: true},
		ServerChan: ServerChanConfig{BaseURL: "https://sctapi.ftqq.com"},
		QmsgChan:   QmsgChanConfig{BaseURL: "https://qmsg.zendee.cn"},
		Desktop:    DesktopConfig{Enabled: true},
		Sound:      SoundConfig{Enabled: false, File: filepath.Join(assetsDir, "trade.wav")},
		Classifier: ClassifierConfig{
			URL:                "http://127.0.0.1:8765",
			DetectionThreshold: 0.5,
			TimeoutMs:          5000,
		},
		Currencies: []CurrencyAlias{
			{Name: "chaos", Aliases: []string{"chaos orb", "c"}},
			{Name: "divine", Aliases: []string{"divine orb", "div", "d"}},
			{Name: "exalted", Aliases: []string{"exalted orb", "ex", "exa"}},
		},
		log: log,
	}

	log.Info("Created default configuration",
		"log_path", logPath,
		"keyword_count", len(config.Keywords))

	return config
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// getDefaultPoeLogPath finds the default Path of Exile log file.
func getDefaultPoeLogPath(log *logger.Logger) (string, error) {
	return GetDefaultPoeLogPathFor(log, "Path of Exile")
}

// GetDefaultPoeLogPathFor looks for Client.txt of the named game in the
// usual Steam and Lutris install locations.
func GetDefaultPoeLogPathFor(log *logger.Logger, game string) (string, error) {
	log.Debug("Looking for default POE log path", "game", game)

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	possiblePaths := []string{
		filepath.Join(home, ".local", "share", "Steam", "steamapps", "common", game, "logs", "Client.txt"),
		filepath.Join(home, ".steam", "steam", "steamapps", "common", game, "logs", "Client.txt"),
		filepath.Join(home, "Games", game, "logs", "Client.txt"),
		filepath.Join("/mnt", "data", "SteamLibrary", "steamapps", "common", game, "logs", "Client.txt"),
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			log.Info("Found POE log file", "path", path)
			return path, nil
		}
	}

	return "", fmt.Errorf("no Client.txt for %s found in common locations", game)
}
