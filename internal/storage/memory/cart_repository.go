package memory

import "github.com/vladislavdragonenkov/workshop/internal/domain"

type cartRepository struct {
	tx *tx
}

func (r *cartRepository) Create(cart domain.Cart) error {
	s := r.tx.store
	if _, exists := s.carts[cart.CustomerID]; exists {
		return domain.ErrAlreadyExists
	}
	put(r.tx, s.carts, cart.CustomerID, cart.Clone())
	return nil
}

func (r *cartRepository) GetByCustomer(customerID string) (domain.Cart, error) {
	cart, ok := r.tx.store.carts[customerID]
	if !ok {
		return domain.Cart{}, domain.NewNotFound(domain.EntityCart, customerID)
	}
	return cart.Clone(), nil
}

func (r *cartRepository) GetByCustomerForUpdate(customerID string) (domain.Cart, error) {
	return r.GetByCustomer(customerID)
}

func (r *cartRepository) Save(cart domain.Cart) error {
	s := r.tx.store
	current, ok := s.carts[cart.CustomerID]
	if !ok {
		return domain.NewNotFound(domain.EntityCart, cart.CustomerID)
	}
	if current.Version != cart.Version {
		return domain.ErrConcurrencyConflict
	}
	cart.Version++
	put(r.tx, s.carts, cart.CustomerID, cart.Clone())
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
