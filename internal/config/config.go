// Package config loads the controller's TOML configuration: listener
// definitions, TLS material, and the timing constants the timer thread
// uses for heartbeat cadence and reply timeouts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// TLSConfig names the certificate/key (and, for mutual auth, CA) files a
// TLS listener or dialer loads.
type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	CAFile   string `toml:"ca_file"`
	Mutual   bool   `toml:"mutual"`
}

// ServerConfig describes one listener definition. Load validates it;
// NewController does not open listeners from Config.Servers.
type ServerConfig struct {
	Kind string    `toml:"kind"` // "tcp", "tls", or "local"
	Port int       `toml:"port"`
	Path string    `toml:"path"` // for kind=="local"
	TLS  TLSConfig `toml:"tls"`
}

// Config is the controller's full configuration surface.
type Config struct {
	Servers []ServerConfig `toml:"servers"`

	// HeartbeatInterval is how often the timer thread emits Heartbeat_Start
	// on each SESSION_READY session. Default 2s, per §4.6/§9.
	HeartbeatInterval time.Duration `toml:"-"`
	HeartbeatSeconds  int           `toml:"heartbeat_seconds"`

	// ReplyTimeout is how long the timer thread waits for a reply before
	// emitting MESSAGE_TIMEOUT. Default 10s, per §4.5/§9.
	ReplyTimeout     time.Duration `toml:"-"`
	ReplyTimeoutSecs int           `toml:"reply_timeout_seconds"`

	// MaxFrameSize bounds a single frame's total wire size (header + body
	// + end marker), rejecting oversized claims before allocating a buffer.
	MaxFrameSize uint32 `toml:"max_frame_size"`
}

// Default timing and framing constants used when a loaded config omits
// them (zero value).
const (
	DefaultHeartbeatSeconds  = 2
	DefaultReplyTimeoutSecs  = 10
	DefaultMaxFrameSize      = 64 * 1024
)

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatSeconds * time.Second,
		HeartbeatSeconds:  DefaultHeartbeatSeconds,
		ReplyTimeout:      DefaultReplyTimeoutSecs * time.Second,
		ReplyTimeoutSecs:  DefaultReplyTimeoutSecs,
		MaxFrameSize:      DefaultMaxFrameSize,
	}
}

// Load reads and parses a TOML config file at path, applying defaults to
// any omitted field.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HeartbeatSeconds <= 0 {
		c.HeartbeatSeconds = DefaultHeartbeatSeconds
	}
	if c.ReplyTimeoutSecs <= 0 {
		c.ReplyTimeoutSecs = DefaultReplyTimeoutSecs
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	c.HeartbeatInterval = time.Duration(c.HeartbeatSeconds) * time.Second
	c.ReplyTimeout = time.Duration(c.ReplyTimeoutSecs) * time.Second
}

// Validate checks every listener definition for the fields its kind
// requires.
func (c Config) Validate() error {
	for i, s := range c.Servers {
		switch s.Kind {
		case "tcp":
			if s.Port <= 0 {
				return fmt.Errorf("config: servers[%d]: tcp listener requires a port", i)
			}
		case "tls":
			if s.Port <= 0 {
				return fmt.Errorf("config: servers[%d]: tls listener requires a port", i)
			}
			if s.TLS.CertFile == "" || s.TLS.KeyFile == "" {
				return fmt.Errorf("config: servers[%d]: tls listener requires cert_file and key_file", i)
			}
		case "local":
			if s.Path == "" {
				return fmt.Errorf("config: servers[%d]: local listener requires a path", i)
			}
		default:
			return fmt.Errorf("config: servers[%d]: unknown kind %q", i, s.Kind)
		}
	}
	return nil
}
