// Package logger provides structured logging on top of zap.
// It sets up a JSON logger with service-level context and provides trace
// ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Options controls the encoder. Format is "json" (default) or "console".
type Options struct {
	Level  string
	Format string
	Stderr bool // write to stderr, for commands whose stdout is data
}

// Init creates a logger for the given service and installs it as the zap
// global. An unknown level falls back to info.
func Init(service string, opts Options) *zap.Logger {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	out := os.Stdout
	if opts.Stderr {
		out = os.Stderr
	}
	core := zapcore.NewCore(enc, zapcore.Lock(out), level)
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", service))

	zap.ReplaceGlobals(log)
	return log
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a prefix and timestamp.
// Format: "{prefix}-{unixNano}".
func GenerateTraceID(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, ts.UnixNano())
}

// Fields returns zap fields carrying the trace ID from ctx.
// Usage: log.Info("msg", logger.Fields(ctx)...)
func Fields(ctx context.Context) []zap.Field {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []zap.Field{zap.String("trace_id", tid)}
}

// From returns log with the trace ID of ctx attached.
func From(ctx context.Context, log *zap.Logger) *zap.Logger {
	if f := Fields(ctx); f != nil {
		return log.With(f...)
	}
	return log
}
