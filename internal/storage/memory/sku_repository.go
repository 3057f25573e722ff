package memory

import (
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type skuRepository struct {
	tx *tx
}

// Create сохраняет новый SKU, проверяя уникальность кода и названия.
func (r *skuRepository) Create(sku domain.SKU) error {
	s := r.tx.store
	if _, exists := s.skus[sku.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if err := s.checkUniqueSKU(sku); err != nil {
		return err
	}
	put(r.tx, s.skus, sku.ID, sku.Clone())
	return nil
}

// Get возвращает копию SKU, включая удалённые.
func (r *skuRepository) Get(id string) (domain.SKU, error) {
	sku, ok := r.tx.store.skus[id]
	if !ok {
		return domain.SKU{}, domain.NewNotFound(domain.EntitySKU, id)
	}
	return sku.Clone(), nil
}

// GetForUpdate совпадает с Get: единица работы уже удерживает глобальную блокировку.
func (r *skuRepository) GetForUpdate(id string) (domain.SKU, error) {
	return r.Get(id)
}

// Save перезаписывает SKU, проверяя версию (optimistic locking).
func (r *skuRepository) Save(sku domain.SKU) error {
	s := r.tx.store
	current, ok := s.skus[sku.ID]
	if !ok {
		return domain.NewNotFound(domain.EntitySKU, sku.ID)
	}
	if current.Version != sku.Version {
		return domain.ErrConcurrencyConflict
	}
	if err := sku.CheckInvariants(); err != nil {
		return err
	}
	if err := s.checkUniqueSKU(sku); err != nil {
		return err
	}
	// Инкрементируем версию перед сохранением.
	sku.Version++
	put(r.tx, s.skus, sku.ID, sku.Clone())
	return nil
}

// List возвращает SKU по фильтру, отсортированные по названию.
func (r *skuRepository) List(filter domain.SKUFilter) ([]domain.SKU, error) {
	result := make([]domain.SKU, 0, len(r.tx.store.skus))
	for _, sku := range r.tx.store.skus {
		switch {
		case filter.OnlyDeleted && !sku.Deleted:
			continue
		case !filter.OnlyDeleted && !filter.IncludeDeleted && sku.Deleted:
			continue
		}
		result = append(result, sku.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CountReferences считает ссылки на SKU из заказов, корзин и заявок.
func (r *skuRepository) CountReferences(id string) (domain.SKUDependencies, error) {
	s := r.tx.store
	if _, ok := s.skus[id]; !ok {
		return domain.SKUDependencies{}, domain.NewNotFound(domain.EntitySKU, id)
	}

	var deps domain.SKUDependencies
	for _, order := range s.orders {
		for _, line := range order.Lines {
			if line.SKUID == id {
				deps.OrderLines++
			}
		}
	}
	for _, cart := range s.carts {
		for _, line := range cart.Lines {
			if line.SKUID == id {
				deps.CartLines++
			}
		}
	}
	for _, req := range s.requests {
		if req.SKUID == id {
			deps.PartsRequests++
		}
	}
	return deps, nil
}

func (s *Store) checkUniqueSKU(sku domain.SKU) error {
	code := strings.TrimSpace(sku.Code)
	name := strings.TrimSpace(sku.Name)
	for id, other := range s.skus {
		if id == sku.ID {
			continue
		}
		if strings.TrimSpace(other.Code) == code || strings.TrimSpace(other.Name) == name {
			return domain.ErrAlreadyExists
		}
	}
	return nil
}

var _ domain.SKURepository = (*skuRepository)(nil)
