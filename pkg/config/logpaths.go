package config

import (
	"fmt"
	"os"

	"poe-autotrade/pkg/logger"
)

// ResolveLogPath returns the Client.txt to tail. A configured log_path must
// exist; otherwise each known game's default install locations are searched.
func (c *Config) ResolveLogPath(log *logger.Logger) (string, error) {
	if c.LogPath != "" {
		if _, err := os.Stat(c.LogPath); err != nil {
			return "", fmt.Errorf("configured log_path %s: %w", c.LogPath, err)
		}
		log.Debug("Using configured log path", "path", c.LogPath)
		return c.LogPath, nil
	}

	for _, app := range c.GetSteamApps() {
		if p, err := GetDefaultPoeLogPathFor(log, app.Name); err == nil {
			log.Debug("Resolved log path via default search", "game", app.Name, "path", p)
			return p, nil
		}
	}

	return "", fmt.Errorf("no Client.txt found; add log_path to %s", c.path)
}
