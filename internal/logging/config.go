// Package logging configures the process-wide zerolog logger used by every
// sessionmux package and exposes short leveled-log helpers in the idiom the
// rest of the module calls them with (Debugf/Infof/Warnf/Errf).
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "SESSIONMUX_LOG_LEVEL"
	EnvLogTimestamp = "SESSIONMUX_LOG_TIMESTAMP"
	EnvLogNoColor   = "SESSIONMUX_LOG_NOCOLOR"
	EnvLogBypass    = "SESSIONMUX_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the process-wide logger.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Bypass    bool
}

var (
	configureOnce sync.Once
	mu            sync.RWMutex
	logger        = zerolog.New(io.Discard).Level(zerolog.Disabled)
)

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		install(cfg)
	})
}

func defaultConfig(profile Profile) Config {
	cfg := Config{Level: zerolog.InfoLevel, Timestamp: true}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	}
	return cfg
}

func install(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Bypass {
		logger = zerolog.Nop()
		return
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: cfg.NoColor}
	l := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		l = l.Timestamp()
	}
	logger = l.Str("component", "sessionmux").Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Tracef logs at trace level.
func Tracef(format string, args ...any) { get().Trace().Msgf(format, args...) }

// Debugf logs at debug level.
func Debugf(format string, args ...any) { get().Debug().Msgf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...any) { get().Info().Msgf(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...any) { get().Warn().Msgf(format, args...) }

// Errf logs at error level.
func Errf(format string, args ...any) { get().Error().Msgf(format, args...) }

func get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &logger
}
