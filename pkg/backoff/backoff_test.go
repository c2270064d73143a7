// pkg/backoff/backoff_test.go
package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	cfg := backoff.Config{MaxElapsedTime: time.Second}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	called := 0
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		return nil
	})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

func TestExecute_EventualSuccess(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 10 * time.Millisecond, Multiplier: 1, MaxElapsedTime: 100 * time.Millisecond}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	attemptsBeforeSuccess := 3
	called := 0
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		if called < attemptsBeforeSuccess {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if called != attemptsBeforeSuccess {
		t.Errorf("expected %d attempts, got %d", attemptsBeforeSuccess, called)
	}
}

func TestExecute_MaxElapsedTimeExceeded(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 10 * time.Millisecond, Multiplier: 1, MaxElapsedTime: 50 * time.Millisecond}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	called := 0
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		return errors.New("always fail")
	})
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if maxErr.Attempts != called {
		t.Errorf("attempts mismatch: ErrMaxRetries.Attempts=%d, actual=%d", maxErr.Attempts, called)
	}
}

func TestExecute_MaxRetriesBound(t *testing.T) {
	cfg := backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxRetries: 3}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	called := 0
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		return errors.New("always fail")
	})
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if called != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", called)
	}
}

func TestExecute_PermanentStopsRetries(t *testing.T) {
	cfg := backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxElapsedTime: time.Second}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	boom := errors.New("fatal")
	called := 0
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		return backoff.Permanent(boom)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if called != 1 {
		t.Errorf("permanent error must not be retried, got %d attempts", called)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 50 * time.Millisecond, Multiplier: 1}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	ctx, cancel := context.WithCancel(context.Background())
	called := 0
	err := backoff.Execute(ctx, cfg, log, func(ctx context.Context) error {
		called++
		cancel()
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if called != 1 {
		t.Errorf("expected no retries after cancellation, got %d attempts", called)
	}
}

// Нулевой джиттер сохраняет расписание: две задержки по 4ms минимум.
func TestExecute_ZeroJitterKeepsSchedule(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 4 * time.Millisecond, RandomizationFactor: 0, Multiplier: 1, MaxRetries: 3}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	called := 0
	start := time.Now()
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error {
		called++
		if called < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Errorf("expected two full-interval delays, elapsed %v", elapsed)
	}
}

func TestConfig_InvalidRandomizationFactor(t *testing.T) {
	cfg := backoff.Config{RandomizationFactor: 2.0}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	err := backoff.Execute(context.Background(), cfg, log, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("expected config validation error")
	}
}
