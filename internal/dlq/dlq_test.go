// internal/dlq/dlq_test.go
package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/dlq"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/metrics"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/model"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/logger"
)

func init() { metrics.Register(nil) }

type published struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

// fakeProducer записывает публикации, опционально фейлит их.
type fakeProducer struct {
	published []published
	err       error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{topic: topic, key: string(key), value: value, headers: headers})
	return nil
}

func (p *fakeProducer) Ping(context.Context) error { return nil }
func (p *fakeProducer) Close() error               { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func TestRoutePublishesClassifiedMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason string
	}{
		{"validation", &model.ValidationError{Field: "data.age", Rule: "must be >= 1"}, model.ReasonValidation},
		{"connection", &model.ConnectionError{Op: "insert", Err: errors.New("refused")}, model.ReasonConnection},
		{"processing", errors.New("boom"), model.ReasonProcessing},
	}

	original := []byte(`{"table":"users","data":{"id":1},"messageId":"m1"}`)

	for _, tc := range tests {
		prod := &fakeProducer{}
		router := dlq.New(prod, "dlq-topic", testLogger(t))

		router.Route(context.Background(), original, tc.err)

		if len(prod.published) != 1 {
			t.Fatalf("%s: expected 1 publish, got %d", tc.name, len(prod.published))
		}
		pub := prod.published[0]
		if pub.topic != "dlq-topic" {
			t.Errorf("%s: wrong topic %q", tc.name, pub.topic)
		}
		if !strings.HasPrefix(pub.key, "dlq-") {
			t.Errorf("%s: key must start with dlq-, got %q", tc.name, pub.key)
		}
		if pub.headers["errorReason"] != tc.wantReason {
			t.Errorf("%s: errorReason = %q, want %q", tc.name, pub.headers["errorReason"], tc.wantReason)
		}
		if pub.headers["originalTopic"] != "users" {
			t.Errorf("%s: originalTopic = %q, want users", tc.name, pub.headers["originalTopic"])
		}

		var msg model.DLQMessage
		if err := json.Unmarshal(pub.value, &msg); err != nil {
			t.Fatalf("%s: dlq payload is not JSON: %v", tc.name, err)
		}
		if msg.Reason != tc.wantReason {
			t.Errorf("%s: payload reason = %q, want %q", tc.name, msg.Reason, tc.wantReason)
		}
		if string(msg.OriginalMessage) != string(original) {
			t.Errorf("%s: original message must ride along unchanged", tc.name)
		}
		if msg.Error.Message == "" {
			t.Errorf("%s: error message must be present", tc.name)
		}
	}
}

// Неразборный payload уходит в DLQ с originalTopic=unknown.
func TestRouteUnparsableOriginal(t *testing.T) {
	prod := &fakeProducer{}
	router := dlq.New(prod, "dlq-topic", testLogger(t))

	router.Route(context.Background(), []byte(`{broken`), errors.New("parse failed"))

	if len(prod.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(prod.published))
	}
	if got := prod.published[0].headers["originalTopic"]; got != "unknown" {
		t.Errorf("originalTopic = %q, want unknown", got)
	}
}

// Отказ публикации в DLQ не должен приводить ни к панике, ни к каскаду:
// Route молча завершает работу, счётчик публикаций не растёт.
func TestRouteBestEffort(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	router := dlq.New(prod, "dlq-topic", testLogger(t))

	before := testutil.ToFloat64(metrics.DLQPublished)
	router.Route(context.Background(), []byte(`{"table":"users","data":{}}`), errors.New("boom"))

	if len(prod.published) != 0 {
		t.Errorf("expected no successful publishes, got %d", len(prod.published))
	}
	if got := testutil.ToFloat64(metrics.DLQPublished); got != before {
		t.Errorf("dlq counter must not grow on failed publish: %v -> %v", before, got)
	}
}

// Счётчик публикаций растёт только после подтверждённой отправки.
func TestRouteCountsSuccessfulPublish(t *testing.T) {
	prod := &fakeProducer{}
	router := dlq.New(prod, "dlq-topic", testLogger(t))

	before := testutil.ToFloat64(metrics.DLQPublished)
	router.Route(context.Background(), []byte(`{"table":"users","data":{}}`), errors.New("boom"))

	if got := testutil.ToFloat64(metrics.DLQPublished); got != before+1 {
		t.Errorf("dlq counter = %v, want %v", got, before+1)
	}
}
