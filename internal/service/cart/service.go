package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
)

// Service управляет корзинами клиентов. Проверки остатка носят рекомендательный характер:
// товар не резервируется, окончательная проверка выполняется при оформлении заказа.
type Service struct {
	uow     domain.UnitOfWork
	retrier *retry.Retrier
	logger  *log.Entry
}

// AddLineInput — добавление позиции в корзину.
type AddLineInput struct {
	SKUID     string
	Quantity  int
	Selection map[string]string
}

// NewService создаёт сервис корзин. nil-зависимости заменяются значениями по умолчанию.
func NewService(uow domain.UnitOfWork, retrier *retry.Retrier, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	if retrier == nil {
		retrier = retry.New(retry.DefaultConfig(), logger, nil)
	}
	return &Service{uow: uow, retrier: retrier, logger: logger}
}

// GetCart возвращает корзину клиента, создавая её при первом обращении.
func (s *Service) GetCart(ctx context.Context, actor domain.Actor, customerID string) (domain.Cart, error) {
	if err := actor.Authorize(customerID); err != nil {
		return domain.Cart{}, err
	}

	var result domain.Cart
	err := s.retrier.Do(ctx, "get_cart", func(ctx context.Context) error {
		return s.uow.Do(ctx, func(r domain.Repositories) error {
			var err error
			result, err = loadOrCreate(r, customerID, false)
			return err
		})
	})
	return result, err
}

// AddLine добавляет позицию или увеличивает количество совпадающей строки.
// Остаток проверяется для итогового количества строки.
func (s *Service) AddLine(ctx context.Context, actor domain.Actor, customerID string, in AddLineInput) (domain.Cart, error) {
	if err := actor.Authorize(customerID); err != nil {
		return domain.Cart{}, err
	}
	if in.Quantity < 1 {
		return domain.Cart{}, domain.Invalidf("quantity must be at least 1, got %d", in.Quantity)
	}

	return s.mutate(ctx, "cart_add_line", customerID, func(r domain.Repositories, cart *domain.Cart) error {
		sku, err := inventory.Lookup(r, in.SKUID)
		if err != nil {
			return err
		}
		key, err := sku.SelectionKey(in.Selection)
		if err != nil {
			return err
		}

		// Количество больше доступного отклоняется до сложения со строкой корзины.
		if err := sku.CheckAvailable(key, in.Quantity); err != nil {
			return err
		}
		idx, found := cart.FindLine(sku.ID, key)
		want := in.Quantity
		if found {
			want += cart.Lines[idx].Quantity
		}
		if err := sku.CheckAvailable(key, want); err != nil {
			return err
		}

		if found {
			cart.Lines[idx].Quantity = want
			cart.Lines[idx].UnitPriceMinor = sku.UnitPriceMinor
			return nil
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:             uuid.NewString(),
			SKUID:          sku.ID,
			Quantity:       in.Quantity,
			Selection:      domain.ParseVariationKey(key),
			VariationKey:   key,
			UnitPriceMinor: sku.UnitPriceMinor,
			AddedAt:        time.Now().UTC(),
		})
		return nil
	})
}

// UpdateLineQty задаёт новое количество строки с повторной проверкой остатка.
func (s *Service) UpdateLineQty(ctx context.Context, actor domain.Actor, customerID, lineID string, qty int) (domain.Cart, error) {
	if err := actor.Authorize(customerID); err != nil {
		return domain.Cart{}, err
	}
	if qty < 1 {
		return domain.Cart{}, domain.Invalidf("quantity must be at least 1, got %d", qty)
	}

	return s.mutate(ctx, "cart_update_line", customerID, func(r domain.Repositories, cart *domain.Cart) error {
		idx, ok := cart.LineIndex(lineID)
		if !ok {
			return domain.NewNotFound(domain.EntityCartLine, lineID)
		}
		line := &cart.Lines[idx]
		sku, err := inventory.Lookup(r, line.SKUID)
		if err != nil {
			return err
		}
		if err := sku.CheckAvailable(line.VariationKey, qty); err != nil {
			return err
		}
		line.Quantity = qty
		return nil
	})
}

// RemoveLine удаляет строку без проверок остатка.
func (s *Service) RemoveLine(ctx context.Context, actor domain.Actor, customerID, lineID string) (domain.Cart, error) {
	if err := actor.Authorize(customerID); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, "cart_remove_line", customerID, func(_ domain.Repositories, cart *domain.Cart) error {
		if _, ok := cart.LineIndex(lineID); !ok {
			return domain.NewNotFound(domain.EntityCartLine, lineID)
		}
		cart.RemoveLine(lineID)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, operation, customerID string, fn func(r domain.Repositories, cart *domain.Cart) error) (domain.Cart, error) {
	var result domain.Cart
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.uow.Do(ctx, func(r domain.Repositories) error {
			cart, err := loadOrCreate(r, customerID, true)
			if err != nil {
				return err
			}
			if err := fn(r, &cart); err != nil {
				return err
			}
			cart.UpdatedAt = time.Now().UTC()
			if err := r.Carts.Save(cart); err != nil {
				return fmt.Errorf("save cart: %w", err)
			}
			cart.Version++
			result = cart
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": customerID,
			"operation":   operation,
		}).Warn("cart mutation failed")
		return domain.Cart{}, err
	}
	return result, nil
}

func loadOrCreate(r domain.Repositories, customerID string, forUpdate bool) (domain.Cart, error) {
	var (
		cart domain.Cart
		err  error
	)
	if forUpdate {
		cart, err = r.Carts.GetByCustomerForUpdate(customerID)
	} else {
		cart, err = r.Carts.GetByCustomer(customerID)
	}
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, err
	}

	now := time.Now().UTC()
	cart = domain.Cart{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.Carts.Create(cart); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Cart{}, fmt.Errorf("create cart: %w", domain.ErrConcurrencyConflict)
		}
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}
