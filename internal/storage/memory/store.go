package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// Store — in-memory хранилище для локальной разработки и тестов.
// Каждая единица работы выполняется под одним мьютексом, поэтому проверка и
// списание остатка атомарны для всех конкурентных вызовов.
type Store struct {
	mu sync.Mutex

	skus     map[string]domain.SKU
	carts    map[string]domain.Cart
	orders   map[string]domain.Order
	requests map[string]domain.PartsRequest
	bookings map[string]domain.Booking
	services map[string]domain.WorkshopService
	invoices map[string]domain.Invoice
	payments map[string]domain.InvoicePayment
	outbox   map[string]outboxRecord
	// outboxSeq задаёт порядок постановки событий в outbox.
	outboxSeq int64
	timeline map[string][]domain.TimelineEvent

	seqMu sync.Mutex
	seq   map[int]int64
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		skus:     make(map[string]domain.SKU),
		carts:    make(map[string]domain.Cart),
		orders:   make(map[string]domain.Order),
		requests: make(map[string]domain.PartsRequest),
		bookings: make(map[string]domain.Booking),
		services: make(map[string]domain.WorkshopService),
		invoices: make(map[string]domain.Invoice),
		payments: make(map[string]domain.InvoicePayment),
		outbox:   make(map[string]outboxRecord),
		timeline: make(map[string][]domain.TimelineEvent),
		seq:      make(map[int]int64),
	}
}

// Do выполняет fn под глобальной блокировкой. При ошибке все изменения откатываются.
func (s *Store) Do(ctx context.Context, fn func(r domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
	}()

	return fn(t.repositories())
}

// Next выдаёт следующий номер счёта в пределах года.
func (s *Store) Next(_ context.Context, year int) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	s.seq[year]++
	return s.seq[year], nil
}

// tx — журнал отмены текущей единицы работы.
type tx struct {
	store *Store
	undo  []func()
}

func (t *tx) repositories() domain.Repositories {
	return domain.Repositories{
		SKUs:            &skuRepository{tx: t},
		Carts:           &cartRepository{tx: t},
		Orders:          &orderRepository{tx: t},
		PartsRequests:   &partsRequestRepository{tx: t},
		Bookings:        &bookingRepository{tx: t},
		Services:        &serviceRepository{tx: t},
		Invoices:        &invoiceRepository{tx: t},
		InvoicePayments: &invoicePaymentRepository{tx: t},
		Outbox:          &outboxWriter{tx: t},
		Timeline:        &timelineRepository{tx: t},
	}
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// put записывает значение и запоминает предыдущее состояние ключа для отката.
func put[T any](t *tx, m map[string]T, key string, value T) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}

var (
	_ domain.UnitOfWork      = (*Store)(nil)
	_ domain.InvoiceSequence = (*Store)(nil)
)
