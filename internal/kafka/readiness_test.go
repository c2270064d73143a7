// internal/kafka/readiness_test.go
package kafka_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	ingestkafka "github.com/iamjai-3/clickhouse-kafka-streaming/internal/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func fastGate(maxRetries int) ingestkafka.GateConfig {
	return ingestkafka.GateConfig{
		InitialDelay: time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     5 * time.Millisecond,
		MaxRetries:   maxRetries,
	}
}

func TestWaitForCoordinatorImmediateSuccess(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		return nil
	}
	if err := ingestkafka.WaitForCoordinator(context.Background(), fastGate(15), testLogger(t), probe); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 probe, got %d", calls)
	}
}

// Координатор появляется на третьей попытке; между попытками ждём.
func TestWaitForCoordinatorEventualSuccess(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		if calls < 3 {
			return sarama.ErrConsumerCoordinatorNotAvailable
		}
		return nil
	}

	start := time.Now()
	err := ingestkafka.WaitForCoordinator(context.Background(), fastGate(15), testLogger(t), probe)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 probes, got %d", calls)
	}
	// Две задержки: 1ms + 1.5ms.
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Errorf("expected at least two backoff delays, elapsed %v", elapsed)
	}
}

func TestWaitForCoordinatorExhaustsRetries(t *testing.T) {
	calls := 0
	probe := func(context.Context) error {
		calls++
		return sarama.ErrOffsetsLoadInProgress
	}
	err := ingestkafka.WaitForCoordinator(context.Background(), fastGate(4), testLogger(t), probe)
	if !errors.Is(err, sarama.ErrOffsetsLoadInProgress) {
		t.Fatalf("expected last probe error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 probes, got %d", calls)
	}
}

// Исчерпание ретраев отдаёт ошибку стратегии с числом попыток.
func TestWaitForCoordinatorRetryExhaustionShape(t *testing.T) {
	probe := func(context.Context) error {
		return sarama.ErrConsumerCoordinatorNotAvailable
	}
	err := ingestkafka.WaitForCoordinator(context.Background(), fastGate(3), testLogger(t), probe)
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if maxErr.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", maxErr.Attempts)
	}
}

// Не «координаторная» ошибка не ретраится.
func TestWaitForCoordinatorUnexpectedError(t *testing.T) {
	boom := errors.New("auth failed")
	calls := 0
	probe := func(context.Context) error {
		calls++
		return boom
	}
	err := ingestkafka.WaitForCoordinator(context.Background(), fastGate(15), testLogger(t), probe)
	if !errors.Is(err, boom) {
		t.Fatalf("expected probe error passthrough, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 probe, got %d", calls)
	}
}

func TestWaitForCoordinatorContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	probe := func(context.Context) error {
		cancel()
		return sarama.ErrBrokerNotAvailable
	}
	cfg := ingestkafka.GateConfig{InitialDelay: time.Minute, Multiplier: 1.5, MaxDelay: time.Minute, MaxRetries: 5}
	err := ingestkafka.WaitForCoordinator(ctx, cfg, testLogger(t), probe)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
