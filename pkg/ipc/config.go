package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is where clients look for their settings.
const DefaultConfigFile = "/etc/neutral-ipc-cfg.json"

// Config holds the client settings. Timeout is in seconds.
type Config struct {
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	Timeout    int    `mapstructure:"timeout" json:"timeout"`
	BufferSize int    `mapstructure:"buffer_size" json:"buffer_size"`
	// SchemaFormat selects how schemas are sent: "json" or "msgpack".
	SchemaFormat string `mapstructure:"schema_format" json:"schema_format"`
	// MaxRecordSize caps the content of a response record, in bytes.
	MaxRecordSize int `mapstructure:"max_record_size" json:"max_record_size"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Host:          "127.0.0.1",
		Port:          4273,
		Timeout:       10,
		BufferSize:    8192,
		SchemaFormat:  "json",
		MaxRecordSize: 16 << 20,
	}
}

// LoadConfig reads client settings from path, which may be empty to use
// DefaultConfigFile. A missing file yields the defaults. Every key can be
// overridden from the environment, e.g. NEUTRAL_IPC_PORT=5000.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("buffer_size", def.BufferSize)
	v.SetDefault("schema_format", def.SchemaFormat)
	v.SetDefault("max_record_size", def.MaxRecordSize)
	v.SetEnvPrefix("NEUTRAL_IPC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read ipc config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ipc config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() *Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.MaxRecordSize <= 0 {
		c.MaxRecordSize = def.MaxRecordSize
	}
	c.SchemaFormat = strings.ToLower(c.SchemaFormat)
	if c.SchemaFormat != "msgpack" {
		c.SchemaFormat = "json"
	}
	return &c
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
