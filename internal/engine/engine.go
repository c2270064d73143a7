// internal/engine/engine.go

// Пакет engine применяет одну трансформированную запись к целевой таблице
// с проверкой идемпотентности и записью аудита на каждую попытку.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

// Ledger — леджер идемпотентности поверх хранилища.
// IsDuplicate обязана быть fail-open: при недоступности леджера запись
// считается новой, конвейер не останавливается.
type Ledger interface {
	IsDuplicate(ctx context.Context, messageID string, table model.Table, recordID uint64) bool
	RecordProcessed(ctx context.Context, messageID string, table model.Table, recordID uint64)
}

// Inserter вставляет сущность в её целевую таблицу.
type Inserter interface {
	InsertEntity(ctx context.Context, e model.Entity) error
}

// AuditLog пишет append-only журнал попыток (best-effort).
type AuditLog interface {
	LogMigration(ctx context.Context, entry model.MigrationLogEntry)
}

// Result — исход применения одной записи.
type Result struct {
	Applied  bool
	Reason   string // "" при успехе, "duplicate" при пропуске
	RecordID uint64
}

// Engine связывает вставку, леджер и аудит.
type Engine struct {
	ledger Ledger
	store  Inserter
	audit  AuditLog
	log    *logger.Logger
}

// New создаёт Engine с внедрёнными зависимостями.
func New(ledger Ledger, store Inserter, audit AuditLog, log *logger.Logger) *Engine {
	return &Engine{
		ledger: ledger,
		store:  store,
		audit:  audit,
		log:    log.Named("write-engine"),
	}
}

// Apply применяет запись: проверка дубликата, вставка, отметка в леджере,
// аудит. Схема check-then-act не атомарна: конкурентные доставки одного
// (messageId, table, recordId) могут обе пройти проверку до того, как
// одна из них отметится в леджере — слабая гарантия идемпотентности
// принята контрактом, строгим потребителям нужна дедупликация на чтении.
func (e *Engine) Apply(ctx context.Context, entity model.Entity, messageID string) (Result, error) {
	table := entity.TableName()
	recordID := entity.RecordID()

	if e.ledger.IsDuplicate(ctx, messageID, table, recordID) {
		e.audit.LogMigration(ctx, model.MigrationLogEntry{
			TableName: string(table),
			RecordID:  recordID,
			MessageID: messageID,
			Status:    model.StatusDuplicate,
			Operation: model.OpSkip,
			Metadata:  map[string]string{"reason": "Duplicate message"},
		})
		return Result{Applied: false, Reason: model.ReasonDuplicate, RecordID: recordID}, nil
	}

	if err := e.store.InsertEntity(ctx, entity); err != nil {
		e.log.WithContext(ctx).Error("insert failed",
			zap.String("table", string(table)),
			zap.Uint64("record_id", recordID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		e.audit.LogMigration(ctx, model.MigrationLogEntry{
			TableName:    string(table),
			RecordID:     recordID,
			MessageID:    messageID,
			Status:       model.StatusError,
			Operation:    model.OpInsert,
			ErrorMessage: err.Error(),
		})
		return Result{Applied: false, RecordID: recordID}, err
	}

	e.ledger.RecordProcessed(ctx, messageID, table, recordID)
	e.audit.LogMigration(ctx, model.MigrationLogEntry{
		TableName: string(table),
		RecordID:  recordID,
		MessageID: messageID,
		Status:    model.StatusSuccess,
		Operation: model.OpInsert,
	})

	return Result{Applied: true, RecordID: recordID}, nil
}
