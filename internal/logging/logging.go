// Package logging provides structured logging setup for the bot and its HTTP API.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/config"
)

const serviceName = "tma-demo-bot"

var baseLogger *logrus.Entry

// Context carries optional identifiers attached to an entry. Zero values are skipped.
type Context struct {
	UserID    int64
	ChatID    int64
	UpdateID  int64
	RequestID string
	Event     string
}

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Setup builds the process logger from cfg and installs it as the base logger.
// Configured secrets are masked in every entry written through it.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	logger := newLogger(level, cfg.AppEnv)
	if hook := newRedactHook(cfg.TelegramToken, cfg.RedisPassword, cfg.GooglePrivateKey); hook != nil {
		logger.AddHook(hook)
	}

	baseLogger = withServiceFields(logger, cfg.AppEnv)
	return baseLogger, nil
}

// Logger returns the base logger. Before Setup runs it falls back to an
// info-level logger for the default environment so boot errors still print.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = withServiceFields(newLogger(logrus.InfoLevel, config.DefaultAppEnv), config.DefaultAppEnv)
	}
	return baseLogger
}

// Entry scopes logger, or the base logger when nil, with the non-zero fields of ctx.
func Entry(logger *logrus.Entry, ctx Context) *logrus.Entry {
	if logger == nil {
		logger = Logger()
	}

	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}

// Info logs msg on the base logger.
func Info(msg string, fields Fields) {
	Logger().WithFields(fields).Info(msg)
}

// Error logs msg on the base logger.
func Error(msg string, fields Fields) {
	Logger().WithFields(fields).Error(msg)
}

func contextFields(ctx Context) Fields {
	fields := Fields{}

	if ctx.UserID != 0 {
		fields["user_id"] = ctx.UserID
	}
	if ctx.ChatID != 0 {
		fields["chat_id"] = ctx.ChatID
	}
	if ctx.UpdateID != 0 {
		fields["update_id"] = ctx.UpdateID
	}
	if id := strings.TrimSpace(ctx.RequestID); id != "" {
		fields["request_id"] = id
	}
	if event := strings.TrimSpace(ctx.Event); event != "" {
		fields["event"] = event
	}

	return fields
}

func newLogger(level logrus.Level, appEnv string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))
	return logger
}

func withServiceFields(logger *logrus.Logger, appEnv string) *logrus.Entry {
	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

// formatterForEnv writes readable text in development and JSON lines elsewhere.
func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}
