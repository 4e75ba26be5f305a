package logger

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	log := Init("test-service", Options{Level: "debug"})
	if log == nil {
		t.Fatal("expected non-nil logger")
	}
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}

	log = Init("test-service", Options{Level: "nonsense"})
	if log.Core().Enabled(zap.DebugLevel) {
		t.Error("unknown level should fall back to info")
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("cycle", ts)

	if !strings.HasPrefix(tid, "cycle-") {
		t.Errorf("expected trace id to start with 'cycle-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestFields(t *testing.T) {
	ctx := context.Background()
	if f := Fields(ctx); f != nil {
		t.Errorf("expected nil fields when no trace id, got %v", f)
	}

	ctx = WithTraceID(ctx, "abc-123")
	if f := Fields(ctx); len(f) != 1 || f[0].Key != "trace_id" {
		t.Fatalf("expected one trace_id field, got %v", f)
	}
}

func TestFrom(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	From(WithTraceID(context.Background(), "t-1"), base).Info("hello")
	From(context.Background(), base).Info("plain")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["trace_id"]; got != "t-1" {
		t.Errorf("expected trace_id t-1, got %v", got)
	}
	if _, ok := entries[1].ContextMap()["trace_id"]; ok {
		t.Error("expected no trace_id on plain entry")
	}
}
