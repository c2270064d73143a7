// internal/consumer/processor.go

// Пакет consumer реализует батчевый цикл обработки: каждое сообщение
// батча проходит parse → validate → transform → write независимо и
// конкурентно, сбой одного сообщения не прерывает остальные, а батч
// завершается единственной сводной записью в лог.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/engine"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/metrics"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/schema"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/transform"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// Applier применяет одну запись (реализуется Write Engine).
type Applier interface {
	Apply(ctx context.Context, entity model.Entity, messageID string) (engine.Result, error)
}

// DeadLetter маршрутизирует упавшее сообщение (реализуется dlq.Router).
type DeadLetter interface {
	Route(ctx context.Context, original []byte, procErr error)
}

// Processor обрабатывает батчи, собранные consumer group'ой.
type Processor struct {
	engine Applier
	dlq    DeadLetter
	log    *logger.Logger
}

// New создаёт Processor.
func New(applier Applier, dlq DeadLetter, log *logger.Logger) *Processor {
	return &Processor{
		engine: applier,
		dlq:    dlq,
		log:    log.Named("batch-processor"),
	}
}

// outcome — итог обработки одного сообщения внутри батча.
type outcome struct {
	table     string
	applied   bool
	duplicate bool
}

// HandleBatch обрабатывает все сообщения батча конкурентно и всегда
// возвращает nil: ошибка из колбэка заставила бы брокер передоставить
// весь батч, а упавшие сообщения уже учтены через DLQ и аудит.
func (p *Processor) HandleBatch(ctx context.Context, msgs []*kafka.Message) error {
	start := time.Now()
	stats := model.NewBatchStats()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, msg := range msgs {
		wg.Add(1)
		go func(m *kafka.Message) {
			defer wg.Done()
			out := p.processMessage(ctx, m)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case out.applied:
				stats.AddSuccess(out.table)
			case out.duplicate:
				stats.AddDuplicate(out.table)
			default:
				stats.AddFailure(out.table)
			}
		}(msg)
	}
	wg.Wait()

	latency := time.Since(start)
	metrics.BatchesTotal.Inc()
	metrics.BatchLatency.Observe(latency.Seconds())

	var topic string
	var partition int32
	if len(msgs) > 0 {
		topic = msgs[0].Topic
		partition = msgs[0].Partition
	}

	// Единственная запись на батч: на успешном пути помессажных логов нет.
	p.log.WithContext(ctx).Info("batch processed",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int("message_count", len(msgs)),
		zap.Int("success_count", stats.Success),
		zap.Int("failure_count", stats.Failure),
		zap.Int("duplicate_count", stats.Duplicate),
		zap.Int64("processing_time_ms", latency.Milliseconds()),
		zap.Any("table_stats", stats.PerTable),
	)
	return nil
}

// processMessage прогоняет одно сообщение через конвейер. Любая ошибка
// любого этапа перехватывается здесь: сообщение уходит в DLQ, исход
// учитывается в статистике, наружу ошибка не выходит.
func (p *Processor) processMessage(ctx context.Context, m *kafka.Message) outcome {
	env, err := schema.ParseEnvelope(m.Value)
	if err != nil {
		metrics.ParseErrors.Inc()
		return p.fail(ctx, m.Value, "unknown", err)
	}

	messageID := resolveMessageID(env, m)
	ctx = logger.ContextWithMessageID(ctx, messageID)

	// Таблица уже проверена при разборе конверта.
	table := model.Table(env.Table)

	fields, err := schema.Validate(table, env.Data)
	if err != nil {
		return p.fail(ctx, m.Value, env.Table, err)
	}

	entity, err := transform.Apply(table, fields)
	if err != nil {
		return p.fail(ctx, m.Value, env.Table, err)
	}

	res, err := p.engine.Apply(ctx, entity, messageID)
	if err != nil {
		return p.fail(ctx, m.Value, env.Table, err)
	}

	if !res.Applied && res.Reason == model.ReasonDuplicate {
		// Дубликаты ожидаемы: аудит-запись уже есть, DLQ не нужен.
		metrics.MessagesTotal.WithLabelValues(env.Table, "duplicate").Inc()
		return outcome{table: env.Table, duplicate: true}
	}

	metrics.MessagesTotal.WithLabelValues(env.Table, "success").Inc()
	return outcome{table: env.Table, applied: true}
}

// fail учитывает сбой: детальный лог уровня error, маршрут в DLQ, счётчик.
func (p *Processor) fail(ctx context.Context, original []byte, table string, err error) outcome {
	p.log.WithContext(ctx).Error("message processing failed",
		zap.String("table", table),
		zap.String("reason", model.ClassifyError(err)),
		zap.Error(err),
	)

	p.dlq.Route(ctx, original, err)
	metrics.MessagesTotal.WithLabelValues(table, "failure").Inc()
	return outcome{table: table}
}

// resolveMessageID берёт messageId из конверта, затем из заголовка записи,
// иначе синтезирует новый.
func resolveMessageID(env *model.Envelope, m *kafka.Message) string {
	if env.MessageID != "" {
		return env.MessageID
	}
	if h, ok := m.Headers["messageId"]; ok && len(h) > 0 {
		return string(h)
	}
	return fmt.Sprintf("auto-%s", uuid.NewString())
}
