package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for captured child output.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes both the gateway's own structured logging and the file
// capture of the child's combined output. Rotation parameters follow
// lumberjack semantics.
type Config struct {
	Level  string `toml:"level" mapstructure:"level"`   // debug|info|warn|error
	Format string `toml:"format" mapstructure:"format"` // text|json
	Color  bool   `toml:"color" mapstructure:"color"`

	Dir        string `toml:"dir" mapstructure:"dir"` // base directory for child output logs
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// NewSlogger builds the gateway's structured logger from the config.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	var h slog.Handler
	switch {
	case c.Format == "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	case c.Color:
		h = NewColorTextHandler(os.Stdout, opts, true)
	default:
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

func (c Config) level() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ChildWriter returns a rotating writer for the child's combined output at
// Dir/<name>.log, or nil when no directory is configured.
func (c Config) ChildWriter(name string) io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	_ = os.MkdirAll(c.Dir, 0o750)
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, fmt.Sprintf("%s.log", name)),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
