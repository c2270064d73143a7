// cmd/producer/main.go

// Генератор тестовых сообщений: создаёт топики, наполняет их
// синтетическими пользователями, товарами и заказами, опционально
// подмешивает заведомо невалидные сообщения для проверки DLQ-маршрута.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/config"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	commonkafka "github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/kafka/producer"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

var productCategories = []string{
	"Electronics", "Furniture", "Clothing", "Books",
	"Sports", "Home & Garden", "Toys", "Automotive",
}

// envelope — исходящий формат сообщения; зеркалит model.Envelope,
// но с data в виде произвольной карты до сериализации.
type envelope struct {
	Table     string         `json:"table"`
	Data      map[string]any `json:"data"`
	MessageID string         `json:"messageId"`
	Timestamp string         `json:"timestamp"`
}

func newEnvelope(table string, data map[string]any) envelope {
	return envelope{
		Table:     table,
		Data:      data,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func generateUsers(count int) []envelope {
	msgs := make([]envelope, 0, count)
	for i := 1; i <= count; i++ {
		msgs = append(msgs, newEnvelope("users", map[string]any{
			"id":    i,
			"name":  gofakeit.Name(),
			"email": gofakeit.Email(),
			"age":   gofakeit.Number(18, 80),
			"city":  gofakeit.City(),
		}))
	}
	return msgs
}

func generateProducts(count int) []envelope {
	msgs := make([]envelope, 0, count)
	for i := 1; i <= count; i++ {
		msgs = append(msgs, newEnvelope("products", map[string]any{
			"id":          i,
			"name":        gofakeit.ProductName(),
			"category":    gofakeit.RandomString(productCategories),
			"price":       gofakeit.Price(10, 1000),
			"stock":       gofakeit.Number(0, 500),
			"description": gofakeit.ProductDescription(),
		}))
	}
	return msgs
}

func generateOrders(count, maxUserID, maxProductID int) []envelope {
	msgs := make([]envelope, 0, count)
	for i := 1; i <= count; i++ {
		quantity := gofakeit.Number(1, 10)
		unitPrice := gofakeit.Price(10, 500)
		msgs = append(msgs, newEnvelope("orders", map[string]any{
			"id":          i,
			"user_id":     gofakeit.Number(1, maxUserID),
			"product_id":  gofakeit.Number(1, maxProductID),
			"quantity":    quantity,
			"total_price": float64(quantity) * unitPrice,
			"status":      gofakeit.RandomString(model.OrderStatuses),
		}))
	}
	return msgs
}

// invalidSamples — сообщения, которые валидатор обязан отклонить.
func invalidSamples() []envelope {
	return []envelope{
		newEnvelope("invalid_table", map[string]any{"id": 1, "name": "Test"}),
		newEnvelope("users", map[string]any{
			"id": 999, "name": "Test User", "age": 25, "city": "Test City",
		}),
		newEnvelope("users", map[string]any{
			"id": 999, "name": "Test User", "email": "invalid-email", "age": 25, "city": "Test City",
		}),
		newEnvelope("users", map[string]any{
			"id": 999, "name": "Test User", "email": "test@example.com", "age": 200, "city": "Test City",
		}),
		newEnvelope("products", map[string]any{
			"id": 999, "name": "Test Product", "category": "Electronics", "stock": 10,
		}),
		newEnvelope("orders", map[string]any{
			"id": 999, "user_id": 1, "product_id": 1, "quantity": 0, "total_price": 10.0, "status": "pending",
		}),
	}
}

// ensureTopicsExist создаёт недостающие топики (3 партиции, RF=1).
func ensureTopicsExist(cfg *config.Config, log *logger.Logger) error {
	sc := sarama.NewConfig()
	if v, err := sarama.ParseKafkaVersion(cfg.Kafka.Version); err == nil {
		sc.Version = v
	}
	admin, err := sarama.NewClusterAdmin(cfg.Kafka.Brokers, sc)
	if err != nil {
		return fmt.Errorf("cluster admin: %w", err)
	}
	defer func() { _ = admin.Close() }()

	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	want := append(cfg.Kafka.Topics(), cfg.Kafka.DLQTopic)
	for _, topic := range want {
		if _, ok := existing[topic]; ok {
			continue
		}
		detail := &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			return fmt.Errorf("create topic %q: %w", topic, err)
		}
		log.Info("created topic", zap.String("topic", topic))
	}
	return nil
}

func sendBatch(ctx context.Context, prod commonkafka.Producer, topic string, msgs []envelope, log *logger.Logger) error {
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal %s message: %w", m.Table, err)
		}
		key := []byte(fmt.Sprintf("%s-%v", m.Table, m.Data["id"]))
		headers := map[string]string{
			"table":     m.Table,
			"messageId": m.MessageID,
			"timestamp": m.Timestamp,
		}
		if err := prod.Publish(ctx, topic, key, value, headers); err != nil {
			return fmt.Errorf("publish to %q: %w", topic, err)
		}
	}
	log.Info("sent messages", zap.String("topic", topic), zap.Int("count", len(msgs)))
	return nil
}

func main() {
	var (
		configPath    string
		usersCount    int
		productsCount int
		ordersCount   int
		withInvalid   bool
	)

	root := &cobra.Command{
		Use:   "producer",
		Short: "Synthetic data producer for the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}

			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			producer.SetServiceLabel("producer")

			if err := ensureTopicsExist(cfg, log); err != nil {
				return err
			}

			prod, err := producer.New(ctx, producer.Config{
				Brokers:      cfg.Kafka.Brokers,
				RequiredAcks: cfg.Kafka.Acks,
				Timeout:      cfg.Kafka.Timeout,
				Compression:  cfg.Kafka.Compression,
				Backoff:      cfg.Kafka.Backoff,
			}, log)
			if err != nil {
				return fmt.Errorf("kafka producer init: %w", err)
			}
			defer func() { _ = prod.Close() }()

			if err := sendBatch(ctx, prod, cfg.Kafka.UsersTopic, generateUsers(usersCount), log); err != nil {
				return err
			}
			if err := sendBatch(ctx, prod, cfg.Kafka.ProductsTopic, generateProducts(productsCount), log); err != nil {
				return err
			}
			orders := generateOrders(ordersCount, usersCount, productsCount)
			if err := sendBatch(ctx, prod, cfg.Kafka.OrdersTopic, orders, log); err != nil {
				return err
			}

			if withInvalid {
				for _, m := range invalidSamples() {
					topic := cfg.Kafka.UsersTopic
					switch m.Table {
					case "products":
						topic = cfg.Kafka.ProductsTopic
					case "orders":
						topic = cfg.Kafka.OrdersTopic
					}
					if err := sendBatch(ctx, prod, topic, []envelope{m}, log); err != nil {
						return err
					}
				}
			}

			log.Info("all messages sent")
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (optional, env overrides)")
	root.Flags().IntVar(&usersCount, "users", 10, "number of user messages")
	root.Flags().IntVar(&productsCount, "products", 10, "number of product messages")
	root.Flags().IntVar(&ordersCount, "orders", 20, "number of order messages")
	root.Flags().BoolVar(&withInvalid, "with-invalid", false, "also send messages that fail validation")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "producer: %v\n", err)
		os.Exit(1)
	}
}
