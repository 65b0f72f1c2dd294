// Package logging wraps zap with the structured-field conventions the
// rest of this codebase expects at its boundaries (HTTP, dispatch,
// ledger events). Adapted from the shared service-logger pattern the
// teacher's services each wired independently in main.go.
package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with this core's structured-field helpers.
type Logger struct {
	*zap.Logger
	serviceName string
	environment string
}

// Config holds logger construction options.
type Config struct {
	Level            string
	ServiceName      string
	Environment      string
	OutputPath       string
	Format           string // json or console
	EnableCaller     bool
	EnableStacktrace bool
}

// RequestIDKey is the context key carrying an inbound request id.
const RequestIDKey = "request_id"

// New builds a Logger for serviceName, applying opts[0] over sane
// defaults (info level, JSON to stdout).
func New(serviceName string, opts ...Config) *Logger {
	cfg := Config{
		Level:            "info",
		ServiceName:      serviceName,
		Environment:      getEnv("CORE_ENV", "development"),
		OutputPath:       "stdout",
		Format:           "json",
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	if len(opts) > 0 {
		o := opts[0]
		if o.Level != "" {
			cfg.Level = o.Level
		}
		if o.Environment != "" {
			cfg.Environment = o.Environment
		}
		if o.OutputPath != "" {
			cfg.OutputPath = o.OutputPath
		}
		if o.Format != "" {
			cfg.Format = o.Format
		}
		cfg.EnableCaller = o.EnableCaller
		cfg.EnableStacktrace = o.EnableStacktrace
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	if cfg.OutputPath == "stdout" || cfg.OutputPath == "" {
		writeSyncer = zapcore.AddSync(os.Stdout)
	} else {
		file, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			writeSyncer = zapcore.AddSync(os.Stdout)
		} else {
			writeSyncer = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	var zapOpts []zap.Option
	if cfg.EnableCaller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	base := zap.New(core, zapOpts...).With(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	)

	return &Logger{Logger: base, serviceName: cfg.ServiceName, environment: cfg.Environment}
}

// WithRequestID adds a request id to the logger's context fields.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("request_id", requestID)), serviceName: l.serviceName, environment: l.environment}
}

// WithContext extracts a request id from ctx, if present, and binds it.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return l.WithRequestID(requestID)
	}
	return l
}

// HTTPRequestLogger logs one handled HTTP request.
func (l *Logger) HTTPRequestLogger(method, path, remoteAddr string, duration time.Duration, statusCode int) {
	l.Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("remote_addr", remoteAddr),
		zap.Duration("duration", duration),
		zap.Int("status_code", statusCode),
	)
}

// BusinessEventLogger logs a domain event (lead scored, dispatched,
// reconciled, ...).
func (l *Logger) BusinessEventLogger(eventType, eventID string, data map[string]interface{}) {
	fields := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("event_id", eventID),
	}
	for key, value := range data {
		fields = append(fields, zap.Any(key, value))
	}
	l.Info("business event", fields...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.Logger.Sync() }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
