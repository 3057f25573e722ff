package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
)

// Emitter пишет события в outbox и журнал в рамках текущей единицы работы.
// Ошибка записи откатывает единицу работы вместе с бизнес-изменениями.
type Emitter struct {
	metrics *metrics.FulfillmentMetrics
}

// NewEmitter создаёт Emitter. Метрики могут быть nil.
func NewEmitter(m *metrics.FulfillmentMetrics) *Emitter {
	return &Emitter{metrics: m}
}

// Do выполняет fn в единице работы uow и считает записи в outbox и журнал.
// Счётчики попадают в метрики только после фиксации: откаченные попытки не учитываются.
func (e *Emitter) Do(ctx context.Context, uow domain.UnitOfWork, fn func(r domain.Repositories) error) error {
	var outboxed, recorded int
	err := uow.Do(ctx, func(r domain.Repositories) error {
		outboxed, recorded = 0, 0
		r.Outbox = countingOutbox{OutboxWriter: r.Outbox, n: &outboxed}
		r.Timeline = countingTimeline{TimelineRepository: r.Timeline, n: &recorded}
		return fn(r)
	})
	if err != nil {
		return err
	}
	e.metrics.RecordOutboxEvents(outboxed)
	e.metrics.RecordTimelineEvents(recorded)
	return nil
}

// Enqueue сериализует payload и ставит событие в outbox.
// В payload всегда добавляются идентификатор агрегата и время события.
func (e *Emitter) Enqueue(r domain.Repositories, aggregateType, aggregateID, eventType string, payload map[string]interface{}, at time.Time) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload[aggregateType+"_id"] = aggregateID
	payload["ts"] = at.UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := r.Outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}

// Record добавляет запись в журнал агрегата.
func (e *Emitter) Record(r domain.Repositories, aggregateType, aggregateID, eventType, reason string, at time.Time) error {
	if err := r.Timeline.Append(domain.TimelineEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Reason:        reason,
		Occurred:      at.UTC(),
	}); err != nil {
		return fmt.Errorf("append timeline %s: %w", eventType, err)
	}
	return nil
}

type countingOutbox struct {
	domain.OutboxWriter
	n *int
}

func (c countingOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	out, err := c.OutboxWriter.Enqueue(msg)
	if err == nil {
		*c.n++
	}
	return out, err
}

type countingTimeline struct {
	domain.TimelineRepository
	n *int
}

func (c countingTimeline) Append(event domain.TimelineEvent) error {
	if err := c.TimelineRepository.Append(event); err != nil {
		return err
	}
	*c.n++
	return nil
}
