// internal/transform/transform.go

// Пакет transform отображает валидированные поля на сущности схемы
// хранилища: выставляет отсутствующие таймстемпы и приводит числовые
// поля к числовому представлению. Чистое отображение без I/O.
package transform

import (
	"time"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/schema"
)

// TimeLayout — текстовая форма синтезируемых таймстемпов (секундная точность).
const TimeLayout = "2006-01-02 15:04:05"

// Apply строит типизированную сущность из валидированных полей.
// Текстовый таймстемп, если он был в payload'е, проходит без изменений —
// переформатирование здесь намеренно не делается. Некорректный числовой
// текст, проскочивший мимо валидации, отклоняется (fail closed).
func Apply(table model.Table, fields map[string]any) (model.Entity, error) {
	switch table {
	case model.TableUsers:
		return applyUser(fields)
	case model.TableProducts:
		return applyProduct(fields)
	case model.TableOrders:
		return applyOrder(fields)
	default:
		return nil, &model.ValidationError{Field: "table", Rule: "unknown table"}
	}
}

func applyUser(f map[string]any) (*model.User, error) {
	id, err := uintField(f, "id")
	if err != nil {
		return nil, err
	}
	age, err := intField(f, "age")
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:        id,
		Name:      stringField(f, "name"),
		Email:     stringField(f, "email"),
		Age:       age,
		City:      stringField(f, "city"),
		CreatedAt: timestampField(f, "created_at"),
	}, nil
}

func applyProduct(f map[string]any) (*model.Product, error) {
	id, err := uintField(f, "id")
	if err != nil {
		return nil, err
	}
	price, err := floatField(f, "price")
	if err != nil {
		return nil, err
	}
	stock, err := intField(f, "stock")
	if err != nil {
		return nil, err
	}
	return &model.Product{
		ID:          id,
		Name:        stringField(f, "name"),
		Category:    stringField(f, "category"),
		Price:       price,
		Stock:       stock,
		Description: stringField(f, "description"),
		CreatedAt:   timestampField(f, "created_at"),
	}, nil
}

func applyOrder(f map[string]any) (*model.Order, error) {
	id, err := uintField(f, "id")
	if err != nil {
		return nil, err
	}
	userID, err := uintField(f, "user_id")
	if err != nil {
		return nil, err
	}
	productID, err := uintField(f, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, err := intField(f, "quantity")
	if err != nil {
		return nil, err
	}
	total, err := floatField(f, "total_price")
	if err != nil {
		return nil, err
	}
	return &model.Order{
		ID:         id,
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		TotalPrice: total,
		Status:     stringField(f, "status"),
		OrderDate:  timestampField(f, "order_date"),
	}, nil
}

// -----------------------------------------------------------------------------
// Приведение полей
// -----------------------------------------------------------------------------

func stringField(f map[string]any, name string) string {
	if s, ok := f[name].(string); ok {
		return s
	}
	return ""
}

func intField(f map[string]any, name string) (int64, error) {
	n, err := schema.Integer(f[name])
	if err != nil {
		return 0, &model.ValidationError{Field: "data." + name, Rule: "is not coercible to an integer"}
	}
	return n, nil
}

func uintField(f map[string]any, name string) (uint64, error) {
	n, err := intField(f, name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &model.ValidationError{Field: "data." + name, Rule: "is not coercible to an unsigned integer"}
	}
	return uint64(n), nil
}

func floatField(f map[string]any, name string) (float64, error) {
	n, err := schema.Float(f[name])
	if err != nil {
		return 0, &model.ValidationError{Field: "data." + name, Rule: "is not coercible to a number"}
	}
	return n, nil
}

func timestampField(f map[string]any, name string) string {
	if s, ok := f[name].(string); ok && s != "" {
		return s
	}
	return time.Now().UTC().Format(TimeLayout)
}
