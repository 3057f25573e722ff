package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу. Повторная доставка допустима: потребители
	// дедуплицируют события по OutboxMessage.ID.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxWriter ставит событие в outbox внутри текущей единицы работы.
type OutboxWriter interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	OutboxWriter
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит журнал аудита по агрегатам.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(aggregateType, aggregateID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// ReceiptStore сохраняет файлы чеков и возвращает URL для последующей проверки.
type ReceiptStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Типы агрегатов для outbox и журнала.
const (
	AggregateSKU            = "sku"
	AggregateCart           = "cart"
	AggregateOrder          = "order"
	AggregatePartsRequest   = "parts_request"
	AggregateInvoice        = "invoice"
	AggregateInvoicePayment = "invoice_payment"
)

// Типы событий outbox.
const (
	EventOrderCreated                = "order.created"
	EventOrderStatusChanged          = "order.status_changed"
	EventPartsRequestApproved        = "parts_request.approved"
	EventStockLow                    = "stock.low"
	EventInvoiceGenerated            = "invoice.generated"
	EventInvoicePaymentStatusChanged = "invoice_payment.status_changed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
