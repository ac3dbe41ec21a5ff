package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/linechat/internal/log"
)

// ErrInvalidConfig is returned by Validate for unusable values.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds server and client configuration values.
type Config struct {
	Addr                 string        `mapstructure:"addr" yaml:"addr"`
	StatusAddr           string        `mapstructure:"status_addr" yaml:"status_addr"`
	ReadBufferSize       int           `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessagesPerMinute int           `mapstructure:"max_messages_per_minute" yaml:"max_messages_per_minute"`
	DatabasePath         string        `mapstructure:"database_path" yaml:"database_path"`
	NATSURL              string        `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubject          string        `mapstructure:"nats_subject" yaml:"nats_subject"`
	Log                  log.Options   `mapstructure:"log" yaml:"log"`
}

// Default returns configuration matching the classic chat setup on 127.0.0.1:5555.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:5555",
		ReadBufferSize:  1024,
		ShutdownTimeout: 5 * time.Second,
		NATSSubject:     "linechat.events",
		Log: log.Options{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.ReadBufferSize != 0 {
		c.ReadBufferSize = other.ReadBufferSize
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.MaxMessagesPerMinute != 0 {
		c.MaxMessagesPerMinute = other.MaxMessagesPerMinute
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
	if other.NATSSubject != "" {
		c.NATSSubject = other.NATSSubject
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// Validate reports values the server cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalidConfig)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read_buffer_size must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	}
	if c.MaxMessagesPerMinute < 0 {
		return fmt.Errorf("%w: max_messages_per_minute must not be negative", ErrInvalidConfig)
	}
	return nil
}
