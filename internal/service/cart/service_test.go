package cart_test

import (
	"context"
	"math"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/storage/memory"
)

type fixture struct {
	ctx       context.Context
	carts     *cart.Service
	inventory *inventory.Service
	customer  domain.Actor
	plain     domain.SKU
	varied    domain.SKU
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "cart-test")

	store := memory.NewStore()
	f := &fixture{
		ctx:       context.Background(),
		carts:     cart.NewService(store, nil, logger),
		inventory: inventory.NewService(store, inventory.WithLogger(logger)),
		customer:  domain.Actor{ID: "customer-1", Role: domain.RoleCustomer},
	}

	var err error
	f.plain, err = f.inventory.CreateSKU(f.ctx, inventory.CreateSKUInput{
		Code: "OIL-5W30", Name: "Engine oil", UnitPriceMinor: 1500, TotalQty: 5,
	})
	require.NoError(t, err)
	f.varied, err = f.inventory.CreateSKU(f.ctx, inventory.CreateSKUInput{
		Code: "WIPER", Name: "Wiper blade", UnitPriceMinor: 700, TotalQty: 6,
		VariationSchema: []domain.VariationOption{{ID: "size", Name: "Size", Type: "select", AllowedValues: []string{"S", "M"}, Required: true}},
		Allocations:     map[string]int{"size:S": 2, "size:M": 2},
	})
	require.NoError(t, err)
	return f
}

func TestGetCartCreatesLazily(t *testing.T) {
	f := newFixture(t)

	first, err := f.carts.GetCart(f.ctx, f.customer, f.customer.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Empty(t, first.Lines)

	second, err := f.carts.GetCart(f.ctx, f.customer, f.customer.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestAddLineMergesSameSelection(t *testing.T) {
	f := newFixture(t)

	_, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{
		SKUID: f.varied.ID, Quantity: 2, Selection: map[string]string{"size": "M"},
	})
	require.NoError(t, err)

	got, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{
		SKUID: f.varied.ID, Quantity: 1, Selection: map[string]string{" size ": "M", "ignored": "x"},
	})
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	require.Equal(t, 3, got.Lines[0].Quantity)
	require.Equal(t, "size:M", got.Lines[0].VariationKey)
	require.Equal(t, map[string]string{"size": "M"}, got.Lines[0].Selection)

	got, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	require.Equal(t, 5, got.TotalItems())
	require.Equal(t, int64(3*700+2*1500), got.TotalAmountMinor())
}

func TestAddLineValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.varied.ID, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidVariationSelection)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{
		SKUID: f.varied.ID, Quantity: 1, Selection: map[string]string{"size": "XL"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidVariationSelection)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{
		SKUID: f.plain.ID, Quantity: 1, Selection: map[string]string{"size": "S"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidVariationSelection)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 0})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: "missing", Quantity: 1})
	require.True(t, domain.IsNotFound(err))
}

func TestAddLineChecksWouldBeTotal(t *testing.T) {
	f := newFixture(t)

	_, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 2})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, 6, stockErr.Requested)

	current, err := f.carts.GetCart(f.ctx, f.customer, f.customer.ID)
	require.NoError(t, err)
	require.Equal(t, 4, current.Lines[0].Quantity)

	// Вариация S: собственный пул 2 плюс общий 2.
	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{
		SKUID: f.varied.ID, Quantity: 5, Selection: map[string]string{"size": "S"},
	})
	require.True(t, domain.IsInsufficientStock(err))
}

func TestAddLineRejectsHugeQuantityOnExistingLine(t *testing.T) {
	f := newFixture(t)

	_, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: math.MaxInt})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, math.MaxInt, stockErr.Requested)

	current, err := f.carts.GetCart(f.ctx, f.customer, f.customer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, current.Lines[0].Quantity)
}

func TestUpdateAndRemoveLine(t *testing.T) {
	f := newFixture(t)

	c, err := f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 1})
	require.NoError(t, err)
	lineID := c.Lines[0].ID

	_, err = f.carts.UpdateLineQty(f.ctx, f.customer, f.customer.ID, lineID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.carts.UpdateLineQty(f.ctx, f.customer, f.customer.ID, lineID, 6)
	require.True(t, domain.IsInsufficientStock(err))

	c, err = f.carts.UpdateLineQty(f.ctx, f.customer, f.customer.ID, lineID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, c.TotalItems())

	_, err = f.carts.UpdateLineQty(f.ctx, f.customer, f.customer.ID, "missing", 1)
	require.True(t, domain.IsNotFound(err))

	c, err = f.carts.RemoveLine(f.ctx, f.customer, f.customer.ID, lineID)
	require.NoError(t, err)
	require.Empty(t, c.Lines)
	require.Zero(t, c.TotalAmountMinor())

	_, err = f.carts.RemoveLine(f.ctx, f.customer, f.customer.ID, lineID)
	require.True(t, domain.IsNotFound(err))
}

func TestCartOwnership(t *testing.T) {
	f := newFixture(t)
	other := domain.Actor{ID: "customer-2", Role: domain.RoleCustomer}

	_, err := f.carts.GetCart(f.ctx, other, f.customer.ID)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.carts.AddLine(f.ctx, other, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	_, err = f.carts.GetCart(f.ctx, admin, f.customer.ID)
	require.NoError(t, err)
}

func TestAddLineRejectsDeletedSKU(t *testing.T) {
	f := newFixture(t)

	_, err := f.inventory.SoftDelete(f.ctx, f.plain.ID)
	require.NoError(t, err)

	_, err = f.carts.AddLine(f.ctx, f.customer, f.customer.ID, cart.AddLineInput{SKUID: f.plain.ID, Quantity: 1})
	require.True(t, domain.IsNotFound(err))
}
