// pkg/logger/logger_test.go
package logger_test

import (
	"context"
	"testing"

	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(logger.Config{Level: "invalid", DevMode: false})
	if err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNew_ValidLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error"}
	for _, lvl := range levels {
		log, err := logger.New(logger.Config{Level: lvl, DevMode: true})
		if err != nil {
			t.Errorf("level %q: unexpected error: %v", lvl, err)
			continue
		}
		log.Info("probe")
		log.Sync()
	}
}

func TestNew_DefaultLevel(t *testing.T) {
	log, err := logger.New(logger.Config{DevMode: true})
	if err != nil {
		t.Fatalf("empty level must fall back to default: %v", err)
	}
	log.Debug("not shown at default level")
}

func TestNamed(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "info", DevMode: true})
	named := log.Named("subsystem")
	if named == nil {
		t.Fatal("Named returned nil")
	}
	named.Info("probe from named logger")
}

func TestWithContext(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "info", DevMode: true})

	ctx := context.Background()
	if got := log.WithContext(ctx); got == nil {
		t.Fatal("WithContext(empty) returned nil")
	}

	ctx = logger.ContextWithTraceID(ctx, "trace-123")
	ctx = logger.ContextWithMessageID(ctx, "msg-456")
	enriched := log.WithContext(ctx)
	if enriched == nil {
		t.Fatal("WithContext(enriched) returned nil")
	}
	enriched.Info("probe with trace and message ids")
}
