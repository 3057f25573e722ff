package memory

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxWriter ставит события в outbox в рамках единицы работы.
type outboxWriter struct {
	tx *tx
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (w *outboxWriter) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	now := time.Now().UTC()
	w.tx.store.outboxSeq++
	put(w.tx, w.tx.store.outbox, msg.ID, outboxRecord{
		msg:       msg,
		seq:       w.tx.store.outboxSeq,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	})
	return msg, nil
}

// OutboxRepository — представление outbox для воркера публикации вне единиц работы.
type OutboxRepository struct {
	store *Store
}

// Outbox возвращает репозиторий outbox, разделяющий данные с единицами работы.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

// Enqueue ставит событие в outbox отдельной единицей работы.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t := &tx{store: r.store}
	return (&outboxWriter{tx: t}).Enqueue(msg)
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxStatusFailed)
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	msgs, _ := r.PullPending(math.MaxInt)
	return msgs
}

func (r *OutboxRepository) mark(id, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.store.outbox[id] = record
	return nil
}

func (r *OutboxRepository) pendingLocked() []outboxRecord {
	pending := make([]outboxRecord, 0)
	for _, rec := range r.store.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].seq < pending[j].seq
	})
	return pending
}

var (
	_ domain.OutboxWriter     = (*outboxWriter)(nil)
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
)
