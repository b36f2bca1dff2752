package config

import (
	"fmt"
	"os"
	"path/filepath"

	"poe-autotrade/pkg/logger"
)

// initializeConfig creates or loads the configuration.
func initializeConfig(providedPath string, defaultPath string, log *logger.Logger) (*Config, error) {
	// Try provided path first if specified
	if providedPath != "" {
		config, err := loadConfigFromPath(providedPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from provided path: %w", err)
		}
		return config, nil
	}

	// Default path is created on first run
	if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
		config := DefaultConfig(log)
		if err := config.Save(defaultPath); err != nil {
			return nil, err
		}
		log.Info("Wrote default configuration", "path", defaultPath)
		return config, nil
	}

	config, err := loadConfigFromPath(defaultPath, log)
	if err != nil {
		log.Error("Falling back to default configuration", err, "path", defaultPath)
		config = DefaultConfig(log)
		config.path = defaultPath
	}
	return config, nil
}

// FindConfig locates and initializes the configuration, then applies
// environment overrides from the process and an optional .env file.
func FindConfig(providedPath string, log *logger.Logger) (*Config, error) {
	log.Info("Looking for configuration", "provided_path", providedPath)

	defaultConfigDir := defaultConfigDir()
	defaultConfigPath := filepath.Join(defaultConfigDir, "config.json")

	log.Debug("Configuration paths",
		"config_dir", defaultConfigDir,
		"config_path", defaultConfigPath)

	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		log.Error("Failed to create directory", err, "path", defaultConfigDir)
		return nil, err
	}

	config, err := initializeConfig(providedPath, defaultConfigPath, log)
	if err != nil {
		return nil, err
	}

	envDir := defaultConfigDir
	if providedPath != "" {
		envDir = filepath.Dir(providedPath)
	}
	if err := config.LoadEnv(envDir); err != nil {
		log.Warn("Failed to read .env file", "dir", envDir, "error", err.Error())
	}

	return config, nil
}
