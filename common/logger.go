// Package common provides shared logging, error, and environment helpers used
// across every package of the knowledge-base engine.
package common

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents standard logging levels accepted by NewLogger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggerConfig configures a logger instance for one package or service.
type LoggerConfig struct {
	Level   LogLevel
	Format  string // "json" or "text"
	Service string
}

// NewLogger creates a logrus.Entry pre-tagged with a "component" field so
// that log lines from different packages are distinguishable in aggregate
// output.
func NewLogger(component string, cfg LoggerConfig) *logrus.Entry {
	logger := logrus.New()

	switch cfg.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	logger.SetOutput(os.Stderr)

	fields := logrus.Fields{"component": component}
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	return logger.WithFields(fields)
}

// DefaultLoggerConfig returns sensible defaults, honoring LOG_LEVEL / LOG_FORMAT
// environment variables when set.
func DefaultLoggerConfig(service string) LoggerConfig {
	level := LogLevel(GetEnv("LOG_LEVEL", "info"))
	format := GetEnv("LOG_FORMAT", "text")
	return LoggerConfig{Level: level, Format: format, Service: service}
}

// fieldsOf is a small helper so call sites can build logrus.Fields without an
// extra import in every package.
func fieldsOf(kv ...interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		f[key] = kv[i+1]
	}
	return f
}

// KV is a thin convenience wrapper so packages can log
// `log.WithFields(common.KV("version_id", v, "stage", s)).Info(...)`.
func KV(kv ...interface{}) logrus.Fields {
	return fieldsOf(kv...)
}
