// internal/model/model.go

// Пакет model описывает доменные записи потока: конверт сообщения,
// бизнес-сущности трёх таблиц и служебные записи (леджер идемпотентности,
// журнал миграций, DLQ-сообщение).
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table — логическое имя целевой таблицы.
type Table string

const (
	TableUsers    Table = "users"
	TableProducts Table = "products"
	TableOrders   Table = "orders"
)

// ParseTable проверяет, что имя таблицы входит в известный набор.
func ParseTable(s string) (Table, error) {
	switch Table(s) {
	case TableUsers, TableProducts, TableOrders:
		return Table(s), nil
	default:
		return "", &ValidationError{Field: "table", Rule: fmt.Sprintf("must be one of [users products orders], got %q", s)}
	}
}

// Envelope — конверт одного бизнес-события. Создаётся продьюсером один раз
// и доезжает без изменений либо до Write Engine, либо до DLQ.
type Envelope struct {
	Table     string          `json:"table"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
}

// Entity — валидированная запись, готовая к вставке в целевую таблицу.
type Entity interface {
	// RecordID возвращает первичный идентификатор записи.
	RecordID() uint64
	// TableName возвращает целевую таблицу сущности.
	TableName() Table
}

// User — запись таблицы users.
type User struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Age       int64   `json:"age"`
	City      string  `json:"city"`
	CreatedAt string  `json:"created_at"`
}

func (u *User) RecordID() uint64  { return u.ID }
func (u *User) TableName() Table  { return TableUsers }

// Product — запись таблицы products.
type Product struct {
	ID          uint64  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

func (p *Product) RecordID() uint64 { return p.ID }
func (p *Product) TableName() Table { return TableProducts }

// Order — запись таблицы orders. user_id/product_id — внешние ключи,
// хранилищем не проверяются.
type Order struct {
	ID         uint64  `json:"id"`
	UserID     uint64  `json:"user_id"`
	ProductID  uint64  `json:"product_id"`
	Quantity   int64   `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
	Status     string  `json:"status"`
	OrderDate  string  `json:"order_date"`
}

func (o *Order) RecordID() uint64 { return o.ID }
func (o *Order) TableName() Table { return TableOrders }

// OrderStatuses — допустимые значения поля status.
var OrderStatuses = []string{"pending", "completed", "shipped", "cancelled"}

// ProcessedEvent — одна логическая запись леджера идемпотентности.
// Физически ReplacingMergeTree может держать дубликаты до фонового слияния;
// «есть хотя бы одна строка» трактуется как «уже обработано».
type ProcessedEvent struct {
	MessageID   string    `json:"message_id"`
	TableName   string    `json:"table_name"`
	RecordID    uint64    `json:"record_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Статусы и операции журнала миграций.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusDuplicate = "duplicate"

	OpInsert = "insert"
	OpUpdate = "update"
	OpSkip   = "skip"
)

// MigrationLogEntry — append-only запись аудита: одна на каждую попытку
// обработки (ретраи дают несколько записей).
type MigrationLogEntry struct {
	TableName    string            `json:"table_name"`
	RecordID     uint64            `json:"record_id"`
	MessageID    string            `json:"message_id"`
	Status       string            `json:"status"`    // success | error | duplicate
	Operation    string            `json:"operation"` // insert | update | skip
	ErrorMessage string            `json:"error_message"`
	Metadata     map[string]string `json:"metadata"`
}

// DLQMessage публикуется в dead-letter топик при любом сбое обработки.
type DLQMessage struct {
	OriginalMessage json.RawMessage `json:"originalMessage"`
	Error           DLQError        `json:"error"`
	Reason          string          `json:"reason"`
	Timestamp       string          `json:"timestamp"`
	ProcessedAt     string          `json:"processedAt"`
}

// DLQError — описание ошибки внутри DLQ-сообщения.
type DLQError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// BatchStats — счётчики одного батча, живут только внутри batch-колбэка.
type BatchStats struct {
	Success   int
	Duplicate int
	Failure   int
	PerTable  map[string]*TableStats
}

// TableStats — разрез счётчиков по одной таблице.
type TableStats struct {
	Success   int
	Duplicate int
	Failure   int
}

// NewBatchStats создаёт пустую статистику.
func NewBatchStats() *BatchStats {
	return &BatchStats{PerTable: make(map[string]*TableStats)}
}

func (s *BatchStats) table(name string) *TableStats {
	ts, ok := s.PerTable[name]
	if !ok {
		ts = &TableStats{}
		s.PerTable[name] = ts
	}
	return ts
}

// AddSuccess учитывает успешную вставку.
func (s *BatchStats) AddSuccess(table string) {
	s.Success++
	s.table(table).Success++
}

// AddDuplicate учитывает пропуск дубликата.
func (s *BatchStats) AddDuplicate(table string) {
	s.Duplicate++
	s.table(table).Duplicate++
}

// AddFailure учитывает сбой; table может быть "unknown", если конверт
// не удалось разобрать.
func (s *BatchStats) AddFailure(table string) {
	s.Failure++
	s.table(table).Failure++
}
