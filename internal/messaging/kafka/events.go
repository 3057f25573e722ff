package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// Topics для Kafka
const (
	TopicInventoryEvents = "workshop.inventory.events"
	// TopicDeadLetterQueue получает события, не доставленные после всех попыток.
	TopicDeadLetterQueue = "workshop.inventory.dlq"
)

// Kafka headers, по которым потребители маршрутизируют события без разбора тела.
const (
	HeaderEventID       = "x-event-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
)

// Envelope — конверт события складского учёта в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает сообщение outbox. Пустой payload кодируется как null.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   at.UTC(),
	}
}

// PartitionKey — ключ партиции: события одного агрегата попадают в одну партицию по порядку.
func PartitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateType + ":" + msg.AggregateID
	}
	return msg.ID
}
