package checkout_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/storage/memory"
)

type receiptStub struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *receiptStub) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[name] = data
	return "mem://receipts/" + name, nil
}

type CheckoutSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	inventory *inventory.Service
	carts     *cart.Service
	checkout  *checkout.Service
	receipts  *receiptStub
	registry  *prometheus.Registry

	customer domain.Actor
	admin    domain.Actor
	pads     domain.SKU
	oil      domain.SKU
}

func (s *CheckoutSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "checkout-test")
	s.registry = prometheus.NewRegistry()
	m := metrics.NewFulfillmentMetricsWithRegisterer(s.registry)

	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.receipts = &receiptStub{}
	s.inventory = inventory.NewService(s.store, inventory.WithLogger(logger), inventory.WithMetrics(m))
	s.carts = cart.NewService(s.store, nil, logger)
	s.checkout = checkout.NewService(s.store, s.inventory, s.receipts, nil, logger, m)
	s.customer = domain.Actor{ID: "customer-1", Role: domain.RoleCustomer}
	s.admin = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}

	var err error
	s.pads, err = s.inventory.CreateSKU(s.ctx, inventory.CreateSKUInput{
		Code: "BRK-PAD", Name: "Brake pads", UnitPriceMinor: 2500, TotalQty: 10,
		VariationSchema: []domain.VariationOption{{ID: "color", Name: "Color", Type: "select", AllowedValues: []string{"red", "blue"}, Required: true}},
		Allocations:     map[string]int{"color:red": 4, "color:blue": 3},
	})
	require.NoError(s.T(), err)
	s.oil, err = s.inventory.CreateSKU(s.ctx, inventory.CreateSKUInput{
		Code: "OIL", Name: "Engine oil", UnitPriceMinor: 1500, TotalQty: 5,
	})
	require.NoError(s.T(), err)
}

func (s *CheckoutSuite) add(actor domain.Actor, skuID string, qty int, selection map[string]string) domain.Cart {
	c, err := s.carts.AddLine(s.ctx, actor, actor.ID, cart.AddLineInput{SKUID: skuID, Quantity: qty, Selection: selection})
	require.NoError(s.T(), err)
	return c
}

func (s *CheckoutSuite) sku(id string) domain.SKU {
	sku, err := s.inventory.GetSKU(s.ctx, id)
	require.NoError(s.T(), err)
	return sku
}

func (s *CheckoutSuite) TestCreateOrderDeductsAndClearsCart() {
	s.add(s.customer, s.pads.ID, 5, map[string]string{"color": "red"})
	s.add(s.customer, s.pads.ID, 2, map[string]string{"color": "blue"})
	s.add(s.customer, s.oil.ID, 1, nil)

	// Цена фиксируется в корзине и не меняется после правки каталога.
	price := int64(9999)
	_, err := s.inventory.UpdateSKU(s.ctx, s.oil.ID, inventory.UpdateSKUInput{UnitPriceMinor: &price})
	require.NoError(s.T(), err)

	order, err := s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusPending, order.Status)
	require.Len(s.T(), order.Lines, 3)
	require.Equal(s.T(), int64(7*2500+1500), order.TotalAmountMinor)
	require.Empty(s.T(), order.ValidateInvariants())

	pads := s.sku(s.pads.ID)
	require.Equal(s.T(), 3, pads.TotalQty)
	require.Equal(s.T(), map[string]int{"color:red": 0, "color:blue": 1}, pads.VariationStock.Allocations)
	require.Equal(s.T(), 2, pads.VariationStock.Unallocated)
	require.NoError(s.T(), pads.CheckInvariants())
	require.Equal(s.T(), 4, s.sku(s.oil.ID).TotalQty)

	c, err := s.carts.GetCart(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)
	require.Empty(s.T(), c.Lines)

	var created int
	for _, msg := range s.store.Outbox().AllPending() {
		if msg.EventType == domain.EventOrderCreated {
			created++
			require.Equal(s.T(), order.ID, msg.AggregateID)
		}
	}
	require.Equal(s.T(), 1, created)
}

func (s *CheckoutSuite) TestCreateOrderIsAtomic() {
	s.add(s.customer, s.oil.ID, 2, nil)
	s.add(s.customer, s.pads.ID, 6, map[string]string{"color": "red"})

	// После добавления в корзину остаток уменьшился: строка с колодками больше не проходит.
	_, err := s.inventory.UpdateStock(s.ctx, s.pads.ID, 8)
	require.NoError(s.T(), err)
	_, err = s.inventory.Reallocate(s.ctx, s.pads.ID, map[string]int{"color:red": 2, "color:blue": 3})
	require.NoError(s.T(), err)

	_, err = s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(s.T(), err, &stockErr)
	require.Equal(s.T(), s.pads.ID, stockErr.SKUID)
	require.Equal(s.T(), 5, stockErr.Available)
	require.Equal(s.T(), 6, stockErr.Requested)

	require.Equal(s.T(), 5, s.sku(s.oil.ID).TotalQty)
	pads := s.sku(s.pads.ID)
	require.Equal(s.T(), 8, pads.TotalQty)
	require.Equal(s.T(), 2, pads.VariationStock.Allocations["color:red"])

	c, err := s.carts.GetCart(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), c.Lines, 2)

	orders, err := s.checkout.ListOrders(s.ctx, s.admin, domain.OrderFilter{})
	require.NoError(s.T(), err)
	require.Empty(s.T(), orders)
	require.Empty(s.T(), s.store.Outbox().AllPending())
}

// counter суммирует все серии метрики name в реестре сервиса.
func (s *CheckoutSuite) counter(name string) float64 {
	families, err := s.registry.Gather()
	require.NoError(s.T(), err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func (s *CheckoutSuite) TestRolledBackCheckoutRecordsNoDeductions() {
	a, err := s.inventory.CreateSKU(s.ctx, inventory.CreateSKUInput{Code: "FLT-A", Name: "Filter A", UnitPriceMinor: 100, TotalQty: 5})
	require.NoError(s.T(), err)
	b, err := s.inventory.CreateSKU(s.ctx, inventory.CreateSKUInput{Code: "FLT-B", Name: "Filter B", UnitPriceMinor: 100, TotalQty: 5})
	require.NoError(s.T(), err)

	// SKU списываются в порядке идентификаторов: первая строка проходит, вторая нет.
	ids := []string{a.ID, b.ID}
	sort.Strings(ids)
	first, second := ids[0], ids[1]

	s.add(s.customer, first, 2, nil)
	s.add(s.customer, second, 5, nil)
	_, err = s.inventory.UpdateStock(s.ctx, second, 1)
	require.NoError(s.T(), err)

	outboxBefore := s.counter("workshop_outbox_events_total")
	timelineBefore := s.counter("workshop_timeline_events_total")

	_, err = s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.True(s.T(), domain.IsInsufficientStock(err))
	require.Equal(s.T(), 5, s.sku(first).TotalQty)

	require.Zero(s.T(), s.counter("workshop_stock_deducted_units_total"))
	require.Zero(s.T(), s.counter("workshop_stock_deductions_total"))
	require.Zero(s.T(), s.counter("workshop_low_stock_events_total"))
	require.Equal(s.T(), outboxBefore, s.counter("workshop_outbox_events_total"))
	require.Equal(s.T(), timelineBefore, s.counter("workshop_timeline_events_total"))
	require.Equal(s.T(), 1.0, s.counter("workshop_checkout_failures_total"))

	_, err = s.inventory.UpdateStock(s.ctx, second, 5)
	require.NoError(s.T(), err)
	outboxBefore = s.counter("workshop_outbox_events_total")
	timelineBefore = s.counter("workshop_timeline_events_total")

	_, err = s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)

	require.Equal(s.T(), 7.0, s.counter("workshop_stock_deducted_units_total"))
	require.Equal(s.T(), 2.0, s.counter("workshop_stock_deductions_total"))
	require.Greater(s.T(), s.counter("workshop_outbox_events_total"), outboxBefore)
	require.Equal(s.T(), timelineBefore+3, s.counter("workshop_timeline_events_total"))
}

func (s *CheckoutSuite) TestCreateOrderFailures() {
	_, err := s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.ErrorIs(s.T(), err, domain.ErrEmptyCart)

	_, err = s.carts.GetCart(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)
	_, err = s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.ErrorIs(s.T(), err, domain.ErrEmptyCart)

	s.add(s.customer, s.oil.ID, 1, nil)
	_, err = s.inventory.SoftDelete(s.ctx, s.oil.ID)
	require.NoError(s.T(), err)
	_, err = s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.True(s.T(), domain.IsNotFound(err))

	other := domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}
	_, err = s.checkout.CreateOrder(s.ctx, other, s.customer.ID)
	require.ErrorIs(s.T(), err, domain.ErrNotAuthorized)
}

func (s *CheckoutSuite) TestConcurrentCheckoutsNeverOversell() {
	const customers = 12
	actors := make([]domain.Actor, customers)
	for i := range actors {
		actors[i] = domain.Actor{ID: fmt.Sprintf("customer-%d", i+10), Role: domain.RoleCustomer}
		s.add(actors[i], s.oil.ID, 2, nil)
	}

	var (
		wg         sync.WaitGroup
		succeeded  atomic.Int64
		unexpected atomic.Int64
	)
	for _, actor := range actors {
		wg.Add(1)
		go func(actor domain.Actor) {
			defer wg.Done()
			switch _, err := s.checkout.CreateOrder(s.ctx, actor, actor.ID); {
			case err == nil:
				succeeded.Add(1)
			case !domain.IsInsufficientStock(err):
				unexpected.Add(1)
			}
		}(actor)
	}
	wg.Wait()

	require.Zero(s.T(), unexpected.Load())
	require.Equal(s.T(), int64(2), succeeded.Load())
	require.Equal(s.T(), 1, s.sku(s.oil.ID).TotalQty)
}

func (s *CheckoutSuite) TestReceiptReviewFlow() {
	s.add(s.customer, s.oil.ID, 1, nil)
	order, err := s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)

	_, err = s.checkout.ApproveOrder(s.ctx, order.ID, s.admin.ID)
	require.ErrorIs(s.T(), err, domain.ErrInvalidStateTransition)

	other := domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}
	_, err = s.checkout.SubmitReceipt(s.ctx, other, order.ID, domain.ReceiptUpload{FileURL: "x", DeclaredAmountMinor: 1})
	require.ErrorIs(s.T(), err, domain.ErrNotAuthorized)

	submitted, err := s.checkout.SubmitReceipt(s.ctx, s.customer, order.ID, domain.ReceiptUpload{
		FileName: "receipt.jpg", ContentType: "image/jpeg", Data: []byte("jpeg"), DeclaredAmountMinor: 1500,
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusSubmitted, submitted.Status)
	require.Equal(s.T(), "mem://receipts/receipt.jpg", submitted.Receipt.FileURL)

	_, err = s.checkout.SubmitReceipt(s.ctx, s.customer, order.ID, domain.ReceiptUpload{FileURL: "x", DeclaredAmountMinor: 1})
	require.ErrorIs(s.T(), err, domain.ErrInvalidStateTransition)

	rejected, err := s.checkout.RejectOrder(s.ctx, order.ID, s.admin.ID, "blurry photo")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusRejected, rejected.Status)
	require.Equal(s.T(), "blurry photo", rejected.AdminNotes)

	resubmitted, err := s.checkout.SubmitReceipt(s.ctx, s.customer, order.ID, domain.ReceiptUpload{FileURL: "mem://receipts/2", DeclaredAmountMinor: 1500})
	require.NoError(s.T(), err)
	require.Empty(s.T(), resubmitted.AdminNotes)

	approved, err := s.checkout.ApproveOrder(s.ctx, order.ID, s.admin.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusApproved, approved.Status)
	require.Equal(s.T(), s.admin.ID, approved.ReviewedBy)
	require.Equal(s.T(), 4, s.sku(s.oil.ID).TotalQty)

	entries, err := s.checkout.Timeline(s.ctx, s.customer, order.ID)
	require.NoError(s.T(), err)
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	require.Equal(s.T(), []string{
		domain.TimelineOrderCreated,
		domain.TimelineReceiptSubmitted,
		domain.TimelinePaymentRejected,
		domain.TimelineReceiptSubmitted,
		domain.TimelinePaymentApproved,
	}, types)
}

func (s *CheckoutSuite) TestListAndGetOrders() {
	s.add(s.customer, s.oil.ID, 1, nil)
	mine, err := s.checkout.CreateOrder(s.ctx, s.customer, s.customer.ID)
	require.NoError(s.T(), err)

	other := domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}
	s.add(other, s.oil.ID, 1, nil)
	_, err = s.checkout.CreateOrder(s.ctx, other, other.ID)
	require.NoError(s.T(), err)

	own, err := s.checkout.ListOrders(s.ctx, s.customer, domain.OrderFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), own, 1)
	require.Equal(s.T(), mine.ID, own[0].ID)

	_, err = s.checkout.ListOrders(s.ctx, s.customer, domain.OrderFilter{CustomerID: other.ID})
	require.ErrorIs(s.T(), err, domain.ErrNotAuthorized)

	all, err := s.checkout.ListOrders(s.ctx, s.admin, domain.OrderFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 2)

	_, err = s.checkout.GetOrder(s.ctx, other, mine.ID)
	require.ErrorIs(s.T(), err, domain.ErrNotAuthorized)
	_, err = s.checkout.GetOrder(s.ctx, s.customer, "missing")
	require.True(s.T(), domain.IsNotFound(err))
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}
