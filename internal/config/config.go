// Package config handles application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"arcadl/internal/model"
)

// Environment variables. Values set here override the YAML file.
const (
	configPathEnv  = "ARCADL_CONFIG"
	databaseEnv    = "ARCADL_DB"
	downloadDirEnv = "ARCADL_DOWNLOAD_DIR"
	saveModeEnv    = "ARCADL_SAVE_MODE"
	logLevelEnv    = "ARCADL_LOG_LEVEL"
	tgTokenEnv     = "TELEGRAM_BOT_TOKEN"
	tgChatEnv      = "TELEGRAM_CHAT_ID"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string         `yaml:"databasePath"`
	DownloadDir  string         `yaml:"downloadDir"`
	SaveMode     string         `yaml:"saveMode"`
	LogLevel     string         `yaml:"logLevel"`
	Telegram     TelegramConfig `yaml:"telegram"`
}

// TelegramConfig enables job-completion notifications when both fields are set.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatId"`
}

// Load reads the YAML file named by ARCADL_CONFIG (optional), applies
// environment overrides, and validates the result. An empty DownloadDir
// means the current working directory.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: "./data/arcadl.db",
		SaveMode:     "per-source-category",
		LogLevel:     "info",
	}

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if _, ok := model.ParseSaveMode(cfg.SaveMode); !ok {
		return nil, fmt.Errorf("invalid save mode %q", cfg.SaveMode)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(databaseEnv); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(downloadDirEnv); v != "" {
		c.DownloadDir = v
	}
	if v := os.Getenv(saveModeEnv); v != "" {
		c.SaveMode = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(tgTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(tgChatEnv); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", tgChatEnv, v, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Mode returns the parsed save mode. Load guarantees it is valid.
func (c *Config) Mode() model.SaveMode {
	mode, _ := model.ParseSaveMode(c.SaveMode)
	return mode
}

// NotificationsEnabled reports whether Telegram notifications are configured.
func (c *Config) NotificationsEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}
