package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// Logger is the zap logger shared by sessions, trackers and the HTTP layer.
type Logger struct {
	*zap.Logger
}

// Config selects the level, encoding and sinks of a Logger. The zero value
// logs info and above as JSON to stdout.
type Config struct {
	Level       string // "debug", "info", "warn", "error"; empty means info, or debug in development
	Development bool   // console encoding with colored levels and stack traces on warn
	OutputPaths []string
}

func (c Config) normalized() Config {
	if c.Level == "" {
		c.Level = "info"
		if c.Development {
			c.Level = "debug"
		}
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
	return c
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	cfg = cfg.normalized()

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	encoding := "json"
	if cfg.Development {
		encoding = "console"
	}
	built, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding,
		EncoderConfig:     encoderFor(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return &Logger{Logger: built}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Session returns a zap field for a session ID.
func Session(sid id.SessionID) zap.Field {
	return zap.Stringer("session_id", sid)
}

// Resource returns a zap field for a resource ID.
func Resource(rid id.ResourceID) zap.Field {
	return zap.Stringer("resource_id", rid)
}

// encoderFor uses the same keys in both modes.
func encoderFor(development bool) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeDuration = zapcore.StringDurationEncoder
	}
	return enc
}
