// pkg/kafka/consumer/consumer.go
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
	commonkafka "github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// -----------------------------------------------------------------------------
// Service label
// -----------------------------------------------------------------------------

var serviceLabel = "unknown"

// SetServiceLabel задаёт единое имя сервиса для метрик.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Prometheus-метрики
// -----------------------------------------------------------------------------

var consumerMetrics = struct {
	ConnectAttempts *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
	ConsumeErrors   *prometheus.CounterVec
	BatchesConsumed *prometheus.CounterVec
	BatchSize       *prometheus.HistogramVec
}{
	ConnectAttempts: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "kafka_consumer", Name: "connect_attempts_total",
			Help: "Kafka consumer group connect attempts",
		},
		[]string{"service"},
	),
	ConnectErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "kafka_consumer", Name: "connect_errors_total",
			Help: "Kafka consumer connect errors",
		},
		[]string{"service"},
	),
	ConsumeErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "kafka_consumer", Name: "consume_errors_total",
			Help: "Errors during consumption sessions",
		},
		[]string{"service"},
	),
	BatchesConsumed: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "kafka_consumer", Name: "batches_total",
			Help: "Batches delivered to the handler",
		},
		[]string{"service"},
	),
	BatchSize: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ingestor", Subsystem: "kafka_consumer", Name: "batch_size",
			Help:    "Messages per delivered batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service"},
	),
}

var tracer = otel.Tracer("kafka-consumer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config содержит параметры для Kafka ConsumerGroup.
//
// Brokers — адреса брокеров.
// GroupID — идентификатор consumer group.
// Version — строка версии Kafka (например, "2.8.0").
// BatchSize — максимальный размер батча на раздел.
// FlushInterval — максимальное время накопления неполного батча.
// Backoff — стратегия ретраев при подключении и сбоях сессий.
type Config struct {
	Brokers       []string
	GroupID       string
	Version       string
	BatchSize     int
	FlushInterval time.Duration
	Backoff       backoff.Config
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka consumer: GroupID required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Consumer implementation
// -----------------------------------------------------------------------------

type kafkaConsumerGroup struct {
	group         sarama.ConsumerGroup
	log           *logger.Logger
	backoffCfg    backoff.Config
	batchSize     int
	flushInterval time.Duration
}

// New создаёт и подключает ConsumerGroup с ретраями.
// Чтение начинается с текущего смещения (OffsetNewest), не с начала топика.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Consumer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid Version %q: %w", cfg.Version, err)
	}
	sarCfg := sarama.NewConfig()
	sarCfg.Version = version
	sarCfg.Consumer.Return.Errors = true
	sarCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	sarCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}

	var group sarama.ConsumerGroup
	connectOp := func(ctx context.Context) error {
		consumerMetrics.ConnectAttempts.WithLabelValues(serviceLabel).Inc()
		g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sarCfg)
		if err != nil {
			consumerMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		group = g
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers), attribute.String("group", cfg.GroupID)))
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, connectOp); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("kafka consumer: connect failed: %w", err)
	}
	span.End()

	log.Info("kafka consumer group connected",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.GroupID),
	)
	return &kafkaConsumerGroup{
		group:         group,
		log:           log,
		backoffCfg:    cfg.Backoff,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}, nil
}

// Consume запускает бесконечное чтение топиков, оборачивая сессии в backoff.
func (kc *kafkaConsumerGroup) Consume(
	ctx context.Context,
	topics []string,
	handler commonkafka.BatchHandler,
) error {
	h := &consumerGroupHandler{
		handler:       handler,
		log:           kc.log,
		batchSize:     kc.batchSize,
		flushInterval: kc.flushInterval,
	}
	for {
		ctxSess, span := tracer.Start(ctx, "ConsumeSession",
			trace.WithAttributes(attribute.StringSlice("topics", topics)))
		err := kc.group.Consume(ctxSess, topics, h)
		span.End()

		if err != nil {
			consumerMetrics.ConsumeErrors.WithLabelValues(serviceLabel).Inc()
			kc.log.Error("consume session error", zap.Error(err))

			pause := func(ctx context.Context) error {
				select {
				case <-time.After(100 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if berr := backoff.Execute(ctx, kc.backoffCfg, kc.log, pause); berr != nil {
				return fmt.Errorf("kafka consumer: pause between sessions failed: %w", berr)
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close закрывает ConsumerGroup.
func (kc *kafkaConsumerGroup) Close() error {
	return kc.group.Close()
}

// -----------------------------------------------------------------------------
// Internal handler
// -----------------------------------------------------------------------------

type consumerGroupHandler struct {
	handler       commonkafka.BatchHandler
	log           *logger.Logger
	batchSize     int
	flushInterval time.Duration
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim вызывается Sarama по одной горутине на раздел: внутри раздела
// батчи обрабатываются строго последовательно, следующий батч не собирается,
// пока handler не завершил предыдущий.
func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	var (
		pending []*sarama.ConsumerMessage
		timer   = time.NewTimer(h.flushInterval)
	)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		h.dispatch(sess, claim, pending)
		pending = pending[:0]
	}

	for {
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			pending = append(pending, m)
			if len(pending) >= h.batchSize {
				flush()
				resetTimer(timer, h.flushInterval)
			}
		case <-timer.C:
			flush()
			timer.Reset(h.flushInterval)
		case <-sess.Context().Done():
			flush()
			return nil
		}
	}
}

// dispatch передаёт собранный батч обработчику и коммитит смещения
// только после его успешного завершения.
func (h *consumerGroupHandler) dispatch(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, raw []*sarama.ConsumerMessage) {
	ctxBatch, span := tracer.Start(sess.Context(), "HandleBatch",
		trace.WithAttributes(
			attribute.String("topic", claim.Topic()),
			attribute.Int64("partition", int64(claim.Partition())),
			attribute.Int("messages", len(raw)),
		),
	)
	defer span.End()

	msgs := make([]*commonkafka.Message, 0, len(raw))
	for _, m := range raw {
		headers := make(map[string][]byte, len(m.Headers))
		for _, hdr := range m.Headers {
			if hdr != nil && hdr.Key != nil && hdr.Value != nil {
				headers[string(hdr.Key)] = hdr.Value
			}
		}
		msgs = append(msgs, &commonkafka.Message{
			Key:       m.Key,
			Value:     m.Value,
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Timestamp: m.Timestamp,
			Headers:   headers,
		})
	}

	consumerMetrics.BatchesConsumed.WithLabelValues(serviceLabel).Inc()
	consumerMetrics.BatchSize.WithLabelValues(serviceLabel).Observe(float64(len(msgs)))

	if err := h.handler(ctxBatch, msgs); err != nil {
		// Смещения не двигаем: брокер передоставит батч целиком.
		span.RecordError(err)
		h.log.WithContext(ctxBatch).Error("batch handler error",
			zap.String("topic", claim.Topic()),
			zap.Int32("partition", claim.Partition()),
			zap.Error(err),
		)
		return
	}

	for _, m := range raw {
		sess.MarkMessage(m, "")
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
