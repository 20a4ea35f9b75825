// Package observability builds the process logger.
package observability

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	// ProfileStructured writes JSON lines for machine consumption.
	ProfileStructured = "STRUCTURED"

	// ProfileConsole writes human-readable lines for terminals.
	ProfileConsole = "CONSOLE"
)

// Config selects the logger level and output profile.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string

	// Profile is STRUCTURED or CONSOLE. Default: STRUCTURED
	Profile string
}

var (
	mu sync.Mutex

	// Logger is the process logger. It discards everything until Init runs.
	Logger = zap.NewNop()
)

// Validate checks the level and profile names.
func (c Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToUpper(c.Profile) {
	case "", ProfileStructured, ProfileConsole:
		return nil
	}
	return fmt.Errorf("invalid log profile %q", c.Profile)
}

func (c Config) level() (zapcore.Level, error) {
	level := zapcore.InfoLevel
	if c.Level == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// NewLogger builds a logger for cfg.
func NewLogger(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.level()

	var zc zap.Config
	switch strings.ToUpper(cfg.Profile) {
	case "", ProfileStructured:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case ProfileConsole:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build(zap.Fields(zap.String("service", "nimbusdir")))
}

// Init replaces Logger with one built from cfg and returns it. On error
// Logger is left unchanged.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	Logger = l
	mu.Unlock()
	return l, nil
}
