package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository поверх Store.
type orderRepository struct {
	tx *tx
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(order domain.Order) error {
	s := r.tx.store
	if _, exists := s.orders[order.ID]; exists {
		return domain.ErrAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	put(r.tx, s.orders, order.ID, order.Clone())
	return nil
}

// Get возвращает заказ или NotFoundError, если его нет.
func (r *orderRepository) Get(id string) (domain.Order, error) {
	order, ok := r.tx.store.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFound(domain.EntityOrder, id)
	}
	return order.Clone(), nil
}

func (r *orderRepository) GetForUpdate(id string) (domain.Order, error) {
	return r.Get(id)
}

// List возвращает заказы по фильтру, ограничивая выборку limit (если >0).
func (r *orderRepository) List(filter domain.OrderFilter) ([]domain.Order, error) {
	result := make([]domain.Order, 0, len(r.tx.store.orders))
	for _, order := range r.tx.store.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepository) Save(order domain.Order) error {
	s := r.tx.store
	current, ok := s.orders[order.ID]
	if !ok {
		return domain.NewNotFound(domain.EntityOrder, order.ID)
	}
	if current.Version != order.Version {
		return domain.ErrConcurrencyConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	put(r.tx, s.orders, order.ID, order.Clone())
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
