// pkg/kafka/interface.go
//
// Пакет kafka задаёт минимальные контракты обмена сообщениями, не тянет
// за собой Sarama и никак не зависит от конкретной реализации.
package kafka

import (
	"context"
	"time"
)

// Message представляет запись, полученную из Kafka.
type Message struct {
	Key       []byte            // ключ сообщения (может быть nil)
	Value     []byte            // полезная нагрузка
	Topic     string            // имя топика
	Partition int32             // раздел
	Offset    int64             // смещение
	Timestamp time.Time         // время записи в брокере
	Headers   map[string][]byte // заголовки записи
}

// BatchHandler обрабатывает один батч сообщений одного раздела.
// Возврат ошибки означает «батч не обработан»: смещения не коммитятся,
// и брокер передоставит весь батч.
type BatchHandler func(ctx context.Context, msgs []*Message) error

// Consumer описывает читателя одного или нескольких топиков.
//
//	Consume(ctx, topics, handler) блокирует, пока:
//	  - контекст не будет отменён;
//	  - либо произойдёт невосстанавливаемая ошибка, которую метод вернёт.
//	Сообщения каждого раздела группируются в батчи; следующий батч не
//	читается, пока handler не вернул управление (at-least-once).
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler BatchHandler) error
	Close() error
}

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish гарантирует доставку согласно политике RequiredAcks;
	// возможен внутренний retry согласно стратегии back-off.
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
