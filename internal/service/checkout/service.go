package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
	"github.com/vladislavdragonenkov/workshop/internal/service/events"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
)

// Service оформляет заказы из корзин и ведёт проверку оплаты заказа.
type Service struct {
	uow      domain.UnitOfWork
	ledger   *inventory.Service
	receipts domain.ReceiptStore
	retrier  *retry.Retrier
	emitter  *events.Emitter
	logger   *log.Entry
	metrics  *metrics.FulfillmentMetrics
}

// NewService создаёт сервис оформления заказов.
func NewService(
	uow domain.UnitOfWork,
	ledger *inventory.Service,
	receipts domain.ReceiptStore,
	retrier *retry.Retrier,
	logger *log.Entry,
	m *metrics.FulfillmentMetrics,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if retrier == nil {
		retrier = retry.New(retry.DefaultConfig(), logger, m)
	}
	return &Service{
		uow:      uow,
		ledger:   ledger,
		receipts: receipts,
		retrier:  retrier,
		emitter:  events.NewEmitter(m),
		logger:   logger,
		metrics:  m,
	}
}

// CreateOrder превращает корзину клиента в заказ. Все списания, создание заказа и очистка
// корзины фиксируются вместе; при ошибке по любой строке не меняется ничего.
func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, customerID string) (domain.Order, error) {
	if err := actor.Authorize(customerID); err != nil {
		return domain.Order{}, err
	}
	defer s.metrics.TrackOperation("checkout")()

	var (
		order    domain.Order
		deducted []inventory.Deducted
	)
	err := s.retrier.Do(ctx, "checkout", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			var err error
			order, deducted, err = s.createOrder(r, customerID)
			return err
		})
	})
	if err != nil {
		s.metrics.RecordCheckoutFailure(failureReason(err))
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("checkout failed")
		return domain.Order{}, err
	}

	s.ledger.RecordDeducted(deducted...)
	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"total":       order.TotalAmountMinor,
	}).Info("order created")
	return order, nil
}

func (s *Service) createOrder(r domain.Repositories, customerID string) (domain.Order, []inventory.Deducted, error) {
	cart, err := r.Carts.GetByCustomerForUpdate(customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, nil, domain.ErrEmptyCart
		}
		return domain.Order{}, nil, err
	}
	if len(cart.Lines) == 0 {
		return domain.Order{}, nil, domain.ErrEmptyCart
	}

	bySKU := make(map[string][]int, len(cart.Lines))
	ids := make([]string, 0, len(cart.Lines))
	for i, line := range cart.Lines {
		bySKU[line.SKUID] = append(bySKU[line.SKUID], i)
		ids = append(ids, line.SKUID)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		Lines:         make([]domain.OrderLine, len(cart.Lines)),
		PaymentReview: domain.NewPaymentReview(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	deducted := make([]inventory.Deducted, 0, len(bySKU))
	// Блокировки берутся в порядке идентификаторов SKU, чтобы параллельные заказы не взаимоблокировались.
	for _, skuID := range inventory.SortedIDs(ids) {
		sku, err := inventory.Lock(r, skuID)
		if err != nil {
			return domain.Order{}, nil, err
		}

		deductions := make([]inventory.Deduction, 0, len(bySKU[skuID]))
		for _, idx := range bySKU[skuID] {
			line := cart.Lines[idx]
			key, err := sku.SelectionKey(line.Selection)
			if err != nil {
				return domain.Order{}, nil, err
			}
			deductions = append(deductions, inventory.Deduction{VariationKey: key, Qty: line.Quantity})
			order.Lines[idx] = domain.OrderLine{
				ID:             uuid.NewString(),
				SKUID:          sku.ID,
				SKUCode:        sku.Code,
				SKUName:        sku.Name,
				Quantity:       line.Quantity,
				UnitPriceMinor: line.UnitPriceMinor,
				Selection:      domain.ParseVariationKey(key),
				VariationKey:   key,
			}
		}

		d, err := s.ledger.Deduct(r, &sku, deductions, metrics.SourceOrder, "order "+order.ID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		deducted = append(deducted, d)
	}

	for _, line := range order.Lines {
		order.TotalAmountMinor += int64(line.Quantity) * line.UnitPriceMinor
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, nil, errors.Join(errs...)
	}
	if err := r.Orders.Create(order); err != nil {
		return domain.Order{}, nil, fmt.Errorf("create order: %w", err)
	}

	cart.Clear()
	cart.UpdatedAt = now
	if err := r.Carts.Save(cart); err != nil {
		return domain.Order{}, nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := s.emitter.Enqueue(r, domain.AggregateOrder, order.ID, domain.EventOrderCreated, map[string]interface{}{
		"customer_id":        order.CustomerID,
		"status":             order.Status,
		"total_amount_minor": order.TotalAmountMinor,
		"lines":              len(order.Lines),
	}, now); err != nil {
		return domain.Order{}, nil, err
	}
	if err := s.emitter.Record(r, domain.AggregateOrder, order.ID, domain.TimelineOrderCreated, "", now); err != nil {
		return domain.Order{}, nil, err
	}
	return order, deducted, nil
}

// SubmitReceipt прикладывает чек к заказу клиента и переводит его на проверку.
func (s *Service) SubmitReceipt(ctx context.Context, actor domain.Actor, orderID string, upload domain.ReceiptUpload) (domain.Order, error) {
	current, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if current.Status != domain.PaymentStatusPending && current.Status != domain.PaymentStatusRejected {
		return domain.Order{}, fmt.Errorf("%w: cannot submit receipt in status %s", domain.ErrInvalidStateTransition, current.Status)
	}

	receipt, err := domain.StoreReceipt(ctx, s.receipts, upload, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	return s.review(ctx, "order_submit_receipt", orderID, domain.TimelineReceiptSubmitted, "", func(order *domain.Order) error {
		if err := actor.Authorize(order.CustomerID); err != nil {
			return err
		}
		return order.SubmitReceipt(receipt)
	})
}

// ApproveOrder подтверждает оплату. Остаток не затрагивается: он списан при создании заказа.
func (s *Service) ApproveOrder(ctx context.Context, orderID, adminID string) (domain.Order, error) {
	order, err := s.review(ctx, "order_approve", orderID, domain.TimelinePaymentApproved, "", func(order *domain.Order) error {
		return order.Approve(adminID, time.Now().UTC())
	})
	if err == nil {
		s.metrics.RecordPaymentReview(domain.AggregateOrder, "approved")
	}
	return order, err
}

// RejectOrder отклоняет оплату с указанием причины.
func (s *Service) RejectOrder(ctx context.Context, orderID, adminID, reason string) (domain.Order, error) {
	order, err := s.review(ctx, "order_reject", orderID, domain.TimelinePaymentRejected, reason, func(order *domain.Order) error {
		return order.Reject(adminID, reason, time.Now().UTC())
	})
	if err == nil {
		s.metrics.RecordPaymentReview(domain.AggregateOrder, "rejected")
	}
	return order, err
}

// GetOrder возвращает заказ с проверкой владельца.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	var order domain.Order
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		order, err = r.Orders.Get(orderID)
		if err != nil {
			return err
		}
		return actor.Authorize(order.CustomerID)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListOrders возвращает заказы клиента, а администратору все заказы по фильтру.
func (s *Service) ListOrders(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) ([]domain.Order, error) {
	if !actor.IsAdmin() {
		if filter.CustomerID == "" {
			filter.CustomerID = actor.ID
		}
		if err := actor.Authorize(filter.CustomerID); err != nil {
			return nil, err
		}
	}

	var orders []domain.Order
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		orders, err = r.Orders.List(filter)
		return err
	})
	return orders, err
}

// Timeline возвращает журнал заказа.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	var entries []domain.TimelineEvent
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		entries, err = r.Timeline.List(domain.AggregateOrder, orderID)
		return err
	})
	return entries, err
}

// review применяет переход проверки оплаты и публикует смену статуса.
func (s *Service) review(ctx context.Context, operation, orderID, timelineType, reason string, fn func(order *domain.Order) error) (domain.Order, error) {
	var result domain.Order
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			order, err := r.Orders.GetForUpdate(orderID)
			if err != nil {
				return err
			}
			previous := order.Status
			if err := fn(&order); err != nil {
				return err
			}

			now := time.Now().UTC()
			order.UpdatedAt = now
			if err := r.Orders.Save(order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			order.Version++

			if err := s.emitter.Enqueue(r, domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, map[string]interface{}{
				"customer_id":     order.CustomerID,
				"previous_status": previous,
				"status":          order.Status,
				"reason":          reason,
			}, now); err != nil {
				return err
			}
			if err := s.emitter.Record(r, domain.AggregateOrder, order.ID, timelineType, reason, now); err != nil {
				return err
			}
			result = order
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":  orderID,
			"operation": operation,
		}).Warn("order review failed")
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": result.ID,
		"status":   result.Status,
	}).Info("order status changed")
	return result, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidVariationSelection):
		return "invalid_selection"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	default:
		return "error"
	}
}
