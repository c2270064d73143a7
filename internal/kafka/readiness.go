// internal/kafka/readiness.go

// Пакет kafka содержит предстартовую проверку координатора consumer
// group: подписка начинается только после того, как координирующий
// брокер доступен, либо после исчерпания ретраев (с предупреждением).
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// ProbeFunc — одна попытка найти координатора группы.
type ProbeFunc func(ctx context.Context) error

// GateConfig задаёт расписание пробинга.
type GateConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

func (c *GateConfig) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1.5
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 15
	}
}

// CoordinatorProbe строит ProbeFunc поверх sarama-клиента.
func CoordinatorProbe(client sarama.Client, groupID string) ProbeFunc {
	return func(_ context.Context) error {
		_, err := client.Coordinator(groupID)
		return err
	}
}

// WaitForCoordinator пробует найти координатора с экспоненциальной
// задержкой. «Координатор ещё не доступен» ретраится; любая другая
// ошибка останавливает пробинг сразу. Ошибка гейта не фатальна —
// вызывающая сторона логирует предупреждение и подписывается в любом
// случае (доступность важнее строгого порядка старта).
func WaitForCoordinator(ctx context.Context, cfg GateConfig, log *logger.Logger, probe ProbeFunc) error {
	cfg.applyDefaults()
	log = log.Named("coordinator-gate")

	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		err := probe(ctx)
		if err != nil && !isCoordinatorUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	// Без джиттера: расписание гейта фиксированное (1s, ×1.5, cap 5s).
	err := backoff.Execute(ctx, backoff.Config{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
		MaxRetries:          cfg.MaxRetries,
	}, log, op)
	if err != nil {
		return err
	}
	log.Info("group coordinator is available", zap.Int("attempts", attempts))
	return nil
}

// isCoordinatorUnavailable распознаёт типизированные ошибки Sarama,
// означающие «координатор ещё не выбран/не доступен».
func isCoordinatorUnavailable(err error) bool {
	return errors.Is(err, sarama.ErrConsumerCoordinatorNotAvailable) ||
		errors.Is(err, sarama.ErrNotCoordinatorForConsumer) ||
		errors.Is(err, sarama.ErrOffsetsLoadInProgress) ||
		errors.Is(err, sarama.ErrBrokerNotAvailable)
}
