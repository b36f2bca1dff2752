package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"poe-autotrade/pkg/logger"
)

// arrayKeys replace their default wholesale. encoding/json reuses the backing
// array of a non-nil slice, so they are cleared before decoding.
var arrayKeys = []string{"keywords", "steam_apps", "currencies", "accounts"}

// LoadFromFile merges the JSON file at path into c. Objects merge key by key,
// arrays replace, keys absent from the file keep their current value.
func (c *Config) LoadFromFile(path string, log *logger.Logger) error {
	log.Debug("Loading configuration from file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read config file", err, "path", path)
		return err
	}
	log.Debug("Config file read successfully", "size_bytes", len(data))

	if err := c.merge(data); err != nil {
		log.Error("Failed to parse config JSON", err, "path", path)
		return err
	}

	c.path = path
	c.log = log
	return c.Validate()
}

func (c *Config) merge(data []byte) error {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	for _, key := range arrayKeys {
		if _, ok := present[key]; !ok {
			continue
		}
		switch key {
		case "keywords":
			c.Keywords = nil
		case "steam_apps":
			c.SteamApps = nil
		case "currencies":
			c.Currencies = nil
		case "accounts":
			c.Accounts = nil
		}
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.path = path
	return nil
}

// loadConfigFromPath loads the file at path on top of the defaults.
func loadConfigFromPath(path string, log *logger.Logger) (*Config, error) {
	config := DefaultConfig(log)
	if err := config.LoadFromFile(path, log); err != nil {
		return nil, err
	}
	return config, nil
}
