// ==============================================================================
// LOGGER PACKAGE - pkg/logger/logger.go
// ==============================================================================
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Info(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Debug(message string, fields map[string]interface{})
	Fatal(message string, fields map[string]interface{})
}

type zeroLogger struct {
	logger zerolog.Logger
}

// New returns a JSON logger on stdout tagged with the service name.
// LOG_LEVEL selects the minimum level (debug, info, warn, error); info by default.
func New(serviceName string) Logger {
	return NewWithWriter(serviceName, os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL")))
}

func NewWithWriter(serviceName string, w io.Writer, level zerolog.Level) Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &zeroLogger{logger: zl}
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Info(message string, fields map[string]interface{}) {
	l.logger.Info().Fields(fields).Msg(message)
}

func (l *zeroLogger) Error(message string, fields map[string]interface{}) {
	l.logger.Error().Fields(fields).Msg(message)
}

func (l *zeroLogger) Warn(message string, fields map[string]interface{}) {
	l.logger.Warn().Fields(fields).Msg(message)
}

func (l *zeroLogger) Debug(message string, fields map[string]interface{}) {
	l.logger.Debug().Fields(fields).Msg(message)
}

// Fatal logs and exits the process.
func (l *zeroLogger) Fatal(message string, fields map[string]interface{}) {
	l.logger.Fatal().Fields(fields).Msg(message)
}

func NewNop() Logger {
	return &zeroLogger{logger: zerolog.Nop()}
}
