// internal/app/ingestor.go
package app

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/config"
	batchconsumer "github.com/iamjai-3/clickhouse-kafka-streaming/internal/consumer"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/dlq"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/engine"
	ingestkafka "github.com/iamjai-3/clickhouse-kafka-streaming/internal/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/metrics"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/storage/clickhouse"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/httpserver"
	commonkafka "github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka/consumer"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka/producer"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/telemetry"
)

// Run собирает зависимости и запускает сервис ингестии.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// -------------------------------------------------------------------------
	// 0) Сквозной service-label для всех подсистем
	// -------------------------------------------------------------------------
	backoff.SetServiceLabel(cfg.ServiceName)
	consumer.SetServiceLabel(cfg.ServiceName)
	producer.SetServiceLabel(cfg.ServiceName)

	// -------------------------------------------------------------------------
	// 1) Prometheus-метрики
	// -------------------------------------------------------------------------
	metrics.Register(nil)

	// -------------------------------------------------------------------------
	// 2) OpenTelemetry
	// -------------------------------------------------------------------------
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// -------------------------------------------------------------------------
	// 3) ClickHouse: соединение, схема служебных таблиц
	// -------------------------------------------------------------------------
	db, err := clickhouse.New(ctx, cfg.ClickHouse, log)
	if err != nil {
		return fmt.Errorf("clickhouse init: %w", err)
	}

	// -------------------------------------------------------------------------
	// 4) Kafka producer (DLQ)
	// -------------------------------------------------------------------------
	kafkaProducer, err := producer.New(ctx, producer.Config{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.Acks,
		Timeout:      cfg.Kafka.Timeout,
		Compression:  cfg.Kafka.Compression,
		Backoff:      cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}

	// -------------------------------------------------------------------------
	// 5) Coordinator gate: ждём группового координатора, но не падаем.
	// Группа может догнать координатора и после старта consumer'а.
	// -------------------------------------------------------------------------
	if err := waitCoordinator(ctx, cfg, log); err != nil {
		log.Warn("coordinator gate: not ready, continuing anyway", zap.Error(err))
	}

	// -------------------------------------------------------------------------
	// 6) Kafka consumer
	// -------------------------------------------------------------------------
	kafkaConsumer, err := consumer.New(ctx, consumer.Config{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.GroupID,
		Version:       cfg.Kafka.Version,
		BatchSize:     cfg.Kafka.BatchSize,
		FlushInterval: cfg.Kafka.FlushInterval,
		Backoff:       cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka consumer init: %w", err)
	}

	// -------------------------------------------------------------------------
	// 7) Write engine, DLQ router, batch processor
	// -------------------------------------------------------------------------
	writeEngine := engine.New(db, db, db, log)
	dlqRouter := dlq.New(kafkaProducer, cfg.Kafka.DLQTopic, log)
	proc := batchconsumer.New(writeEngine, dlqRouter, log)

	// -------------------------------------------------------------------------
	// 8) HTTP-server
	// -------------------------------------------------------------------------
	readiness := func(ctx context.Context) error { return db.Ping(ctx) }

	httpSrv, err := httpserver.New(
		httpserver.Config{
			Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			MetricsPath:     cfg.HTTP.MetricsPath,
			HealthzPath:     cfg.HTTP.HealthzPath,
			ReadyzPath:      cfg.HTTP.ReadyzPath,
		},
		readiness,
		log,
	)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	log.Info("ingestor: components initialized, entering run-loop",
		zap.Strings("topics", cfg.Kafka.Topics()),
		zap.String("group_id", cfg.Kafka.GroupID))

	// -------------------------------------------------------------------------
	// 9) Concurrent loops
	// -------------------------------------------------------------------------
	g, ctx := errgroup.WithContext(ctx)

	// HTTP
	g.Go(func() error { return httpSrv.Start(ctx) })

	// Kafka consume → batch processor
	g.Go(func() error {
		return kafkaConsumer.Consume(ctx, cfg.Kafka.Topics(), func(ctx context.Context, msgs []*commonkafka.Message) error {
			return proc.HandleBatch(ctx, msgs)
		})
	})

	// -------------------------------------------------------------------------
	// 10) Wait & graceful shutdown
	// -------------------------------------------------------------------------
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.WithContext(ctx).Error("runtime error", zap.Error(err))
	}

	if err := kafkaConsumer.Close(); err != nil {
		log.Error("kafka consumer close", zap.Error(err))
	}
	if err := kafkaProducer.Close(); err != nil {
		log.Error("kafka producer close", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("clickhouse close", zap.Error(err))
	}

	log.Info("ingestor shutdown complete")
	return ctx.Err()
}

// waitCoordinator пробует координатора consumer group через отдельный
// короткоживущий клиент.
func waitCoordinator(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	sc := sarama.NewConfig()
	if v, err := sarama.ParseKafkaVersion(cfg.Kafka.Version); err == nil {
		sc.Version = v
	}
	client, err := sarama.NewClient(cfg.Kafka.Brokers, sc)
	if err != nil {
		return fmt.Errorf("coordinator gate: new client: %w", err)
	}
	defer func() { _ = client.Close() }()

	probe := ingestkafka.CoordinatorProbe(client, cfg.Kafka.GroupID)
	return ingestkafka.WaitForCoordinator(ctx, cfg.Kafka.Gate, log, probe)
}
