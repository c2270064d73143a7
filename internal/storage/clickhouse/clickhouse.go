// internal/storage/clickhouse/clickhouse.go

// Пакет clickhouse реализует запись в аналитическое хранилище: вставку
// бизнес-записей, леджер идемпотентности (processed_events) и append-only
// журнал миграций (migration_logs).
package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

var tracer = otel.Tracer("storage/clickhouse")

// Config описывает подключение к ClickHouse (native-протокол).
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:9000"
	}
	if c.Database == "" {
		c.Database = "test"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// DB — продакшен-реализация Inserter/Ledger/AuditLog поверх clickhouse-go.
type DB struct {
	conn driver.Conn
	log  *logger.Logger
}

// New открывает соединение, проверяет его и гарантирует наличие
// служебных таблиц (леджер и журнал миграций).
func New(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	cfg.applyDefaults()
	log = log.Named("clickhouse")

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	db := &DB{conn: conn, log: log}
	if err := db.initTables(ctx); err != nil {
		return nil, err
	}

	log.Info("clickhouse connected",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)
	return db, nil
}

// initTables создаёт служебные таблицы, если их ещё нет. DDL бизнес-таблиц
// выполняет отдельный seed-скрипт.
func (db *DB) initTables(ctx context.Context) error {
	const processedEventsDDL = `
CREATE TABLE IF NOT EXISTS processed_events (
	message_id String,
	table_name String,
	record_id  UInt64,
	processed_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(processed_at)
ORDER BY (message_id, table_name, record_id)`

	const migrationLogsDDL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	id UUID DEFAULT generateUUIDv4(),
	table_name String,
	record_id  UInt64,
	message_id String,
	status     String,
	operation  String,
	error_message String,
	processed_at  DateTime DEFAULT now(),
	metadata   String
) ENGINE = MergeTree()
ORDER BY (table_name, processed_at, record_id)`

	if err := db.conn.Exec(ctx, processedEventsDDL); err != nil {
		return fmt.Errorf("clickhouse: create processed_events: %w", err)
	}
	if err := db.conn.Exec(ctx, migrationLogsDDL); err != nil {
		return fmt.Errorf("clickhouse: create migration_logs: %w", err)
	}
	return nil
}

// InsertEntity вставляет одну сущность в её целевую таблицу.
// Сетевые сбои и прочие ошибки вставки различаются в точке сбоя.
func (db *DB) InsertEntity(ctx context.Context, e model.Entity) error {
	ctx, span := tracer.Start(ctx, "InsertEntity",
		trace.WithAttributes(
			attribute.String("table", string(e.TableName())),
			attribute.Int64("record_id", int64(e.RecordID())),
		))
	defer span.End()

	var err error
	switch v := e.(type) {
	case *model.User:
		err = db.conn.Exec(ctx,
			`INSERT INTO users (id, name, email, age, city, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			v.ID, v.Name, v.Email, v.Age, v.City, v.CreatedAt)
	case *model.Product:
		err = db.conn.Exec(ctx,
			`INSERT INTO products (id, name, category, price, stock, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.Name, v.Category, v.Price, v.Stock, v.Description, v.CreatedAt)
	case *model.Order:
		err = db.conn.Exec(ctx,
			`INSERT INTO orders (id, user_id, product_id, quantity, total_price, status, order_date) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.ProductID, v.Quantity, v.TotalPrice, v.Status, v.OrderDate)
	default:
		return &model.ProcessingError{Op: "insert", Err: fmt.Errorf("unsupported entity %T", e)}
	}

	if err != nil {
		span.RecordError(err)
		if isConnectionError(err) {
			return &model.ConnectionError{Op: "insert", Err: err}
		}
		return &model.ProcessingError{Op: "insert", Err: err}
	}
	return nil
}

// IsDuplicate — точечный lookup в леджере. Контракт fail-open: если сам
// lookup упал, считаем запись не дубликатом, чтобы не останавливать
// раздел; риск повторной вставки принят осознанно.
func (db *DB) IsDuplicate(ctx context.Context, messageID string, table model.Table, recordID uint64) bool {
	ctx, span := tracer.Start(ctx, "IsDuplicate")
	defer span.End()

	var count uint64
	row := db.conn.QueryRow(ctx,
		`SELECT count() FROM processed_events WHERE message_id = ? AND table_name = ? AND record_id = ?`,
		messageID, string(table), recordID)
	if err := row.Scan(&count); err != nil {
		span.RecordError(err)
		db.log.WithContext(ctx).Error("duplicate check failed, assuming not duplicate",
			zap.String("table", string(table)),
			zap.String("message_id", messageID),
			zap.Uint64("record_id", recordID),
			zap.Error(err),
		)
		return false
	}
	return count > 0
}

// RecordProcessed добавляет запись в леджер. Сбой логируется, но не
// прерывает обработку: запись в целевую таблицу уже состоялась.
func (db *DB) RecordProcessed(ctx context.Context, messageID string, table model.Table, recordID uint64) {
	ctx, span := tracer.Start(ctx, "RecordProcessed")
	defer span.End()

	err := db.conn.Exec(ctx,
		`INSERT INTO processed_events (message_id, table_name, record_id) VALUES (?, ?, ?)`,
		messageID, string(table), recordID)
	if err != nil {
		span.RecordError(err)
		db.log.WithContext(ctx).Error("record processed failed",
			zap.String("table", string(table)),
			zap.String("message_id", messageID),
			zap.Uint64("record_id", recordID),
			zap.Error(err),
		)
	}
}

// LogMigration пишет одну append-only запись аудита. Best-effort: сбой
// аудита не должен валить конвейер.
func (db *DB) LogMigration(ctx context.Context, entry model.MigrationLogEntry) {
	ctx, span := tracer.Start(ctx, "LogMigration",
		trace.WithAttributes(attribute.String("status", entry.Status)))
	defer span.End()

	meta := "{}"
	if len(entry.Metadata) > 0 {
		if b, err := json.Marshal(entry.Metadata); err == nil {
			meta = string(b)
		}
	}

	err := db.conn.Exec(ctx,
		`INSERT INTO migration_logs (table_name, record_id, message_id, status, operation, error_message, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TableName, entry.RecordID, entry.MessageID, entry.Status, entry.Operation, entry.ErrorMessage, meta)
	if err != nil {
		span.RecordError(err)
		db.log.WithContext(ctx).Error("migration log write failed",
			zap.String("table", entry.TableName),
			zap.Uint64("record_id", entry.RecordID),
			zap.Error(err),
		)
	}
}

// Ping проверяет доступность хранилища.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Close закрывает соединение.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isConnectionError отличает сетевые сбои от прикладных ошибок вставки.
func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
