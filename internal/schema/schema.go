// internal/schema/schema.go

// Пакет schema проверяет сырые конверты и payload'ы сущностей против
// пер-табличных схем. Чистые функции без I/O: на выходе либо полностью
// соответствующая схеме запись, либо ValidationError с путём поля и
// первым нарушенным правилом.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
)

// Продьюсеры сериализуют числа и строками, поэтому числовые правила
// применяются к разобранному значению, а не к JSON-типу.

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ParseEnvelope разбирает внешний конверт и проверяет его собственные поля.
// Содержимое data на этом шаге не проверяется.
func ParseEnvelope(raw []byte) (*model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &model.ValidationError{Field: "message", Rule: fmt.Sprintf("must be valid JSON: %v", err)}
	}
	if _, err := model.ParseTable(env.Table); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &model.ValidationError{Field: "data", Rule: "is required"}
	}
	if env.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
			return nil, &model.ValidationError{Field: "timestamp", Rule: "must be an ISO timestamp"}
		}
	}
	return &env, nil
}

// Validate проверяет payload против схемы таблицы и возвращает разобранные
// поля. Частичной валидации нет: первое нарушение прерывает проверку.
func Validate(table model.Table, data json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &model.ValidationError{Field: "data", Rule: fmt.Sprintf("must be a JSON object: %v", err)}
	}

	var err error
	switch table {
	case model.TableUsers:
		err = validateUser(fields)
	case model.TableProducts:
		err = validateProduct(fields)
	case model.TableOrders:
		err = validateOrder(fields)
	default:
		err = &model.ValidationError{Field: "table", Rule: fmt.Sprintf("unknown table %q", table)}
	}
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func validateUser(f map[string]any) error {
	if err := positiveInt(f, "id"); err != nil {
		return err
	}
	if err := stringLen(f, "name", 1, 255, true); err != nil {
		return err
	}
	if err := email(f, "email"); err != nil {
		return err
	}
	if err := intRange(f, "age", 1, 150); err != nil {
		return err
	}
	if err := stringLen(f, "city", 1, 100, true); err != nil {
		return err
	}
	return optionalTimestamp(f, "created_at")
}

func validateProduct(f map[string]any) error {
	if err := positiveInt(f, "id"); err != nil {
		return err
	}
	if err := stringLen(f, "name", 1, 255, true); err != nil {
		return err
	}
	if err := stringLen(f, "category", 1, 100, true); err != nil {
		return err
	}
	if err := positiveFloatMax(f, "price", 999999.99); err != nil {
		return err
	}
	if err := intRange(f, "stock", 0, -1); err != nil {
		return err
	}
	if err := stringLen(f, "description", 0, 1000, false); err != nil {
		return err
	}
	return optionalTimestamp(f, "created_at")
}

func validateOrder(f map[string]any) error {
	if err := positiveInt(f, "id"); err != nil {
		return err
	}
	if err := positiveInt(f, "user_id"); err != nil {
		return err
	}
	if err := positiveInt(f, "product_id"); err != nil {
		return err
	}
	if err := intRange(f, "quantity", 1, 1000); err != nil {
		return err
	}
	if err := positiveFloatMax(f, "total_price", 999999.99); err != nil {
		return err
	}
	if err := oneOf(f, "status", model.OrderStatuses); err != nil {
		return err
	}
	return optionalTimestamp(f, "order_date")
}

// -----------------------------------------------------------------------------
// Правила
// -----------------------------------------------------------------------------

func fieldPath(name string) string { return "data." + name }

// Integer извлекает целое из json.Number или числовой строки.
func Integer(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.ParseInt(n.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("not a number")
	}
}

// Float извлекает число с плавающей точкой из json.Number или строки.
func Float(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func positiveInt(f map[string]any, name string) error {
	v, ok := f[name]
	if !ok || v == nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "is required"}
	}
	n, err := Integer(v)
	if err != nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be an integer"}
	}
	if n <= 0 {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a positive integer"}
	}
	return nil
}

// intRange проверяет целое в [min, max]; max < 0 означает «без верхней границы».
func intRange(f map[string]any, name string, min, max int64) error {
	v, ok := f[name]
	if !ok || v == nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "is required"}
	}
	n, err := Integer(v)
	if err != nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be an integer"}
	}
	if n < min {
		return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be >= %d", min)}
	}
	if max >= 0 && n > max {
		return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be <= %d", max)}
	}
	return nil
}

func positiveFloatMax(f map[string]any, name string, max float64) error {
	v, ok := f[name]
	if !ok || v == nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "is required"}
	}
	n, err := Float(v)
	if err != nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a number"}
	}
	if n <= 0 {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be positive"}
	}
	if n > max {
		return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be <= %.2f", max)}
	}
	return nil
}

// stringLen проверяет строку длиной в [min, max] символов (рун, не байт);
// required=false делает поле опциональным.
func stringLen(f map[string]any, name string, min, max int, required bool) error {
	v, ok := f[name]
	if !ok || v == nil {
		if required {
			return &model.ValidationError{Field: fieldPath(name), Rule: "is required"}
		}
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a string"}
	}
	n := utf8.RuneCountInString(s)
	if n < min {
		return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be at least %d character(s)", min)}
	}
	if n > max {
		return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be at most %d character(s)", max)}
	}
	return nil
}

func email(f map[string]any, name string) error {
	if err := stringLen(f, name, 1, 255, true); err != nil {
		return err
	}
	s := f[name].(string)
	if !emailRe.MatchString(s) {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a valid email"}
	}
	return nil
}

func oneOf(f map[string]any, name string, allowed []string) error {
	v, ok := f[name]
	if !ok || v == nil {
		return &model.ValidationError{Field: fieldPath(name), Rule: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a string"}
	}
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return &model.ValidationError{Field: fieldPath(name), Rule: fmt.Sprintf("must be one of [%s]", strings.Join(allowed, " "))}
}

func optionalTimestamp(f map[string]any, name string) error {
	v, ok := f[name]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return &model.ValidationError{Field: fieldPath(name), Rule: "must be a string"}
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		if _, err2 := time.Parse("2006-01-02 15:04:05", s); err2 != nil {
			return &model.ValidationError{Field: fieldPath(name), Rule: "must be an ISO timestamp"}
		}
	}
	return nil
}
