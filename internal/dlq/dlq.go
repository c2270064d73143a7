// internal/dlq/dlq.go

// Пакет dlq публикует упавшие сообщения в dead-letter топик вместе с
// метаданными сбоя. Публикация всегда best-effort: сбой самого роутера
// логируется и никогда не блокирует обработку батча.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/metrics"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// Router отправляет DLQ-сообщения через Kafka-продьюсер.
type Router struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// New создаёт Router для заданного топика.
func New(producer kafka.Producer, topic string, log *logger.Logger) *Router {
	return &Router{
		producer: producer,
		topic:    topic,
		log:      log.Named("dlq"),
	}
}

// Route публикует оригинальное сообщение (разобранный конверт, либо сырые
// байты, если разбор не удался) с причиной сбоя. Причина определяется по
// типу ошибки в фиксированном порядке приоритета.
func (r *Router) Route(ctx context.Context, original []byte, procErr error) {
	reason := model.ClassifyError(procErr)

	now := time.Now().UTC().Format(time.RFC3339)
	msg := model.DLQMessage{
		OriginalMessage: json.RawMessage(original),
		Error:           model.DLQError{Message: procErr.Error()},
		Reason:          reason,
		Timestamp:       now,
		ProcessedAt:     now,
	}

	value, err := json.Marshal(msg)
	if err != nil {
		r.log.WithContext(ctx).Error("dlq message marshal failed", zap.Error(err))
		return
	}

	key := fmt.Sprintf("dlq-%d", time.Now().UnixMilli())
	headers := map[string]string{
		"originalTopic": originalTable(original),
		"errorReason":   reason,
	}

	if err := r.producer.Publish(ctx, r.topic, []byte(key), value, headers); err != nil {
		// Каскадный отказ недопустим: ошибку публикации только логируем.
		r.log.WithContext(ctx).Error("dlq publish failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	metrics.DLQPublished.Inc()
	r.log.WithContext(ctx).Warn("message sent to dlq",
		zap.String("reason", reason),
		zap.String("original_table", originalTable(original)),
		zap.String("error", procErr.Error()),
	)
}

// originalTable вытаскивает имя таблицы из конверта для заголовка
// originalTopic; для неразборного payload'а возвращает "unknown".
func originalTable(original []byte) string {
	var env model.Envelope
	if err := json.Unmarshal(original, &env); err != nil || env.Table == "" {
		return "unknown"
	}
	return env.Table
}
