package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Neutral/pkg/ipc"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// DaemonConfig holds the process-level settings.
type DaemonConfig struct {
	LogLevel string `json:"log_level"`
	// StatsDatabasePath enables render stats when set.
	StatsDatabasePath string `json:"stats_database_path"`
	WatchTemplates    bool   `json:"watch_templates"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Daemon    *DaemonConfig      `json:"daemon_config"`
	Templates *templating.Config `json:"template_config"`
	IPC       *ipc.ServerConfig  `json:"ipc_config"`
}

// DefaultDaemonConfig creates a daemon configuration with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		LogLevel:          "info",
		StatsDatabasePath: "./data/neutral_stats.db",
		WatchTemplates:    true,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Daemon:    DefaultDaemonConfig(),
		Templates: templating.DefaultConfig(),
		IPC:       ipc.DefaultServerConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Daemon == nil {
		config.Daemon = DefaultDaemonConfig()
	}
	if config.Templates == nil {
		config.Templates = templating.DefaultConfig()
	}
	if config.IPC == nil {
		config.IPC = ipc.DefaultServerConfig()
	}
	return config, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
