package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicInventoryEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDLQPublisher создаёт паблишер в топик недоставленных событий.
func NewDLQPublisher(producer *Producer) *OutboxTopicPublisher {
	return &OutboxTopicPublisher{producer: producer, topic: TopicDeadLetterQueue}
}

// Topic возвращает топик публикации.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение в конверте Envelope с ключом агрегата.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("%w: kafka outbox publisher is not initialized", domain.ErrOutboxPublish)
	}

	value, err := json.Marshal(NewEnvelope(event, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	headers := map[string]string{
		HeaderEventID:       event.ID,
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	}
	if p.topic == TopicDeadLetterQueue {
		headers[HeaderOriginalTopic] = TopicInventoryEvents
	}
	return p.producer.Send(ctx, p.topic, PartitionKey(event), value, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
