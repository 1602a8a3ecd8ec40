// Package logger builds zerolog loggers from configuration and adapts them
// to the middleware.Logger interface.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/felixgeelhaar/onion/middleware"
)

// New creates a logger writing to the configured output.
func New(cfg Config) zerolog.Logger {
	cfg.ApplyDefaults()
	return NewWithWriter(cfg, outputWriter(cfg.Output))
}

// NewWithWriter creates a logger writing to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(cfg.Format) == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			NoColor:    cfg.NoColor,
		}
	}

	zl := zerolog.New(w).Level(level)
	if cfg.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	if cfg.Caller {
		zl = zl.With().Caller().Logger()
	}
	return zl
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// Adapter satisfies middleware.Logger on top of zerolog.
type Adapter struct {
	zl zerolog.Logger
}

var _ middleware.Logger = (*Adapter)(nil)

// NewAdapter wraps zl.
func NewAdapter(zl zerolog.Logger) *Adapter {
	return &Adapter{zl: zl}
}

// Zerolog returns the wrapped logger.
func (a *Adapter) Zerolog() zerolog.Logger {
	return a.zl
}

func (a *Adapter) Info(msg string, fields ...middleware.Field) {
	emit(a.zl.Info(), msg, fields)
}

func (a *Adapter) Error(msg string, fields ...middleware.Field) {
	emit(a.zl.Error(), msg, fields)
}

func (a *Adapter) Debug(msg string, fields ...middleware.Field) {
	emit(a.zl.Debug(), msg, fields)
}

func (a *Adapter) Warn(msg string, fields ...middleware.Field) {
	emit(a.zl.Warn(), msg, fields)
}

func emit(e *zerolog.Event, msg string, fields []middleware.Field) {
	// Disabled levels return a nil event.
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			e = e.AnErr(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}
