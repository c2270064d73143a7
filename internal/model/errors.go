// internal/model/errors.go

package model

import (
	"errors"
	"fmt"
)

// Таксономия ошибок конвейера. Каждая падающая операция возвращает
// типизированную ошибку в точке сбоя; классификация для DLQ идёт через
// errors.As/Is, а не по подстрокам текста.

// ValidationError — payload не прошёл схему. Не ретраится, всегда
// уходит в DLQ.
type ValidationError struct {
	Field string // путь поля, например "data.age"
	Rule  string // нарушенное правило в человекочитаемом виде
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Rule)
}

// ErrDuplicate — сигнал нормального потока управления: запись уже
// применена. Не исключение и не повод для DLQ.
var ErrDuplicate = errors.New("record already applied")

// ConnectionError — хранилище или брокер недоступны.
type ConnectionError struct {
	Op  string // операция, на которой упало соединение
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed during %s: %v", e.Op, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// ProcessingError — любой прочий сбой обработки (например, вставка
// упала не по сетевой причине).
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed during %s: %v", e.Op, e.Err)
}
func (e *ProcessingError) Unwrap() error { return e.Err }

// Причины отказа для DLQ и журнала миграций.
const (
	ReasonDuplicate  = "duplicate"
	ReasonValidation = "validation_error"
	ReasonConnection = "connection_error"
	ReasonProcessing = "processing_error"
)

// ClassifyError сводит ошибку к причине отказа. Порядок приоритета
// фиксирован контрактом: duplicate, затем validation, затем connection,
// иначе processing.
func ClassifyError(err error) string {
	var (
		vErr *ValidationError
		cErr *ConnectionError
	)
	switch {
	case errors.Is(err, ErrDuplicate):
		return ReasonDuplicate
	case errors.As(err, &vErr):
		return ReasonValidation
	case errors.As(err, &cErr):
		return ReasonConnection
	default:
		return ReasonProcessing
	}
}
