package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type partsRequestRepository struct {
	tx *tx
}

// Create сохраняет заявку; вторая PENDING-заявка на пару (бронь, SKU) отклоняется.
func (r *partsRequestRepository) Create(req domain.PartsRequest) error {
	s := r.tx.store
	if _, exists := s.requests[req.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if req.Status == domain.PartsRequestPending && s.hasPendingRequest(req.BookingID, req.SKUID) {
		return domain.ErrDuplicateRequest
	}
	put(r.tx, s.requests, req.ID, req.Clone())
	return nil
}

func (r *partsRequestRepository) Get(id string) (domain.PartsRequest, error) {
	req, ok := r.tx.store.requests[id]
	if !ok {
		return domain.PartsRequest{}, domain.NewNotFound(domain.EntityPartsRequest, id)
	}
	return req.Clone(), nil
}

func (r *partsRequestRepository) GetForUpdate(id string) (domain.PartsRequest, error) {
	return r.Get(id)
}

func (r *partsRequestRepository) Save(req domain.PartsRequest) error {
	s := r.tx.store
	current, ok := s.requests[req.ID]
	if !ok {
		return domain.NewNotFound(domain.EntityPartsRequest, req.ID)
	}
	if current.Version != req.Version {
		return domain.ErrConcurrencyConflict
	}
	req.Version++
	put(r.tx, s.requests, req.ID, req.Clone())
	return nil
}

// List возвращает заявки по фильтру, новые первыми.
func (r *partsRequestRepository) List(filter domain.PartsRequestFilter) ([]domain.PartsRequest, error) {
	result := make([]domain.PartsRequest, 0)
	for _, req := range r.tx.store.requests {
		if filter.BookingID != "" && req.BookingID != filter.BookingID {
			continue
		}
		if filter.MechanicID != "" && req.MechanicID != filter.MechanicID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		result = append(result, req.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.After(result[j].RequestedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *partsRequestRepository) HasPending(bookingID, skuID string) (bool, error) {
	return r.tx.store.hasPendingRequest(bookingID, skuID), nil
}

func (s *Store) hasPendingRequest(bookingID, skuID string) bool {
	for _, req := range s.requests {
		if req.BookingID == bookingID && req.SKUID == skuID && req.Status == domain.PartsRequestPending {
			return true
		}
	}
	return false
}

var _ domain.PartsRequestRepository = (*partsRequestRepository)(nil)
