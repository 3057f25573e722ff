package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/filestore"
	"github.com/vladislavdragonenkov/workshop/internal/service/booking"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/workshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/invoice"
	"github.com/vladislavdragonenkov/workshop/internal/service/partsrequest"
	"github.com/vladislavdragonenkov/workshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/workshop/internal/transport/httpapi"
)

var (
	customer = domain.Actor{ID: "customer-1", Role: domain.RoleCustomer}
	mechanic = domain.Actor{ID: "mechanic-1", Role: domain.RoleMechanic}
	admin    = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func newServices(t *testing.T, logger *log.Entry) (httpapi.Services, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	receipts := filestore.NewMemoryStore()
	ledger := inventory.NewService(store, inventory.WithLogger(logger))
	invoices, err := invoice.NewService(store, invoice.Config{Sequence: store, Receipts: receipts, Logger: logger})
	require.NoError(t, err)

	return httpapi.Services{
		Inventory:     ledger,
		Carts:         cart.NewService(store, nil, logger),
		Checkout:      checkout.NewService(store, ledger, receipts, nil, logger, nil),
		PartsRequests: partsrequest.NewService(store, ledger, nil, logger, nil),
		Bookings:      booking.NewService(store, logger),
		Invoices:      invoices,
		Idempotency:   idempotency.NewGuard(memory.NewIdempotencyRepository(time.Hour), time.Hour, logger, nil),
	}, store
}

type RouterSuite struct {
	suite.Suite
	router http.Handler
}

func (s *RouterSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.ErrorLevel)
	logger := baseLogger.WithField("component", "http-api-test")

	services, _ := newServices(s.T(), logger)
	s.router = httpapi.NewRouter(services, httpapi.Config{Logger: logger})
}

func (s *RouterSuite) do(method, path string, actor domain.Actor, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type skuView struct {
	ID       string `json:"id"`
	TotalQty int    `json:"total_qty"`
	LowStock bool   `json:"low_stock"`
}

type orderView struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer_id"`
	TotalAmountMinor int64  `json:"total_amount_minor"`
	PaymentStatus    string `json:"payment_status"`
	Receipt          *struct {
		FileURL string `json:"file_url"`
	} `json:"receipt"`
}

type errorView struct {
	Error struct {
		Code      string `json:"code"`
		Available *int   `json:"available"`
		Requested *int   `json:"requested"`
	} `json:"error"`
}

func (s *RouterSuite) createSKU(code string, qty int) skuView {
	rec := s.do(http.MethodPost, "/skus", admin, map[string]any{
		"code":             code,
		"name":             "Part " + code,
		"unit_price_minor": 2500,
		"total_qty":        qty,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return decode[skuView](s.T(), rec)
}

func (s *RouterSuite) addToCart(skuID string, qty int) {
	rec := s.do(http.MethodPost, "/customers/"+customer.ID+"/cart/lines", customer, map[string]any{
		"sku_id":   skuID,
		"quantity": qty,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestRequiresActor() {
	rec := s.do(http.MethodGet, "/skus", domain.Actor{}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/skus", domain.Actor{ID: "x", Role: "GUEST"}, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestAdminRoutesRejectCustomers() {
	rec := s.do(http.MethodPost, "/skus", customer, map[string]any{"code": "X", "name": "X", "total_qty": 1})
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("not_authorized", decode[errorView](s.T(), rec).Error.Code)
}

func (s *RouterSuite) TestRejectsUnknownFields() {
	rec := s.do(http.MethodPost, "/skus", admin, map[string]any{"code": "X", "name": "X", "qty": 1})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_argument", decode[errorView](s.T(), rec).Error.Code)
}

func (s *RouterSuite) TestCheckoutDeductsStock() {
	pads := s.createSKU("BRK-PAD", 5)
	s.addToCart(pads.ID, 2)

	rec := s.do(http.MethodPost, "/orders", customer, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[orderView](s.T(), rec)
	s.Equal(customer.ID, order.CustomerID)
	s.Equal(int64(5000), order.TotalAmountMinor)
	s.Equal(string(domain.PaymentStatusPending), order.PaymentStatus)

	rec = s.do(http.MethodGet, "/skus/"+pads.ID, customer, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(3, decode[skuView](s.T(), rec).TotalQty)

	rec = s.do(http.MethodPost, "/orders", customer, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal("empty_cart", decode[errorView](s.T(), rec).Error.Code)
}

func (s *RouterSuite) TestCheckoutReportsShortage() {
	pads := s.createSKU("BRK-PAD", 5)
	s.addToCart(pads.ID, 3)

	rec := s.do(http.MethodPut, "/skus/"+pads.ID+"/stock", admin, map[string]any{"quantity": 1})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/orders", customer, nil)
	s.Require().Equal(http.StatusConflict, rec.Code)
	body := decode[errorView](s.T(), rec)
	s.Equal("insufficient_stock", body.Error.Code)
	s.Require().NotNil(body.Error.Available)
	s.Require().NotNil(body.Error.Requested)
	s.Equal(1, *body.Error.Available)
	s.Equal(3, *body.Error.Requested)
}

func (s *RouterSuite) TestIdempotentCheckout() {
	pads := s.createSKU("BRK-PAD", 5)
	s.addToCart(pads.ID, 2)

	first := s.do(http.MethodPost, "/orders", customer, nil, "Idempotency-Key", "checkout-1")
	s.Require().Equal(http.StatusCreated, first.Code, first.Body.String())

	replay := s.do(http.MethodPost, "/orders", customer, nil, "Idempotency-Key", "checkout-1")
	s.Require().Equal(http.StatusCreated, replay.Code)
	s.Equal("true", replay.Header().Get("Idempotent-Replayed"))
	s.JSONEq(first.Body.String(), replay.Body.String())

	other := s.do(http.MethodPost, "/orders", admin, map[string]any{"customer_id": customer.ID}, "Idempotency-Key", "checkout-1")
	s.Equal(http.StatusConflict, other.Code)
	s.Equal("idempotency_key_reused", decode[errorView](s.T(), other).Error.Code)

	rec := s.do(http.MethodGet, "/skus/"+pads.ID, customer, nil)
	s.Equal(3, decode[skuView](s.T(), rec).TotalQty)

	rec = s.do(http.MethodGet, "/orders", customer, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[[]orderView](s.T(), rec), 1)
}

func (s *RouterSuite) TestCustomerCannotReadForeignCart() {
	rec := s.do(http.MethodGet, "/customers/customer-2/cart", customer, nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestReceiptReview() {
	pads := s.createSKU("BRK-PAD", 5)
	s.addToCart(pads.ID, 1)
	rec := s.do(http.MethodPost, "/orders", customer, nil)
	s.Require().Equal(http.StatusCreated, rec.Code)
	order := decode[orderView](s.T(), rec)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "receipt.png")
	s.Require().NoError(err)
	_, err = part.Write([]byte("png-bytes"))
	s.Require().NoError(err)
	s.Require().NoError(form.WriteField("amount", "2500"))
	s.Require().NoError(form.WriteField("notes", "bank transfer"))
	s.Require().NoError(form.Close())

	req := httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/receipt", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-Actor-ID", customer.ID)
	req.Header.Set("X-Actor-Role", string(customer.Role))
	upload := httptest.NewRecorder()
	s.router.ServeHTTP(upload, req)
	s.Require().Equal(http.StatusOK, upload.Code, upload.Body.String())

	submitted := decode[orderView](s.T(), upload)
	s.Equal(string(domain.PaymentStatusSubmitted), submitted.PaymentStatus)
	s.Require().NotNil(submitted.Receipt)
	s.True(strings.HasPrefix(submitted.Receipt.FileURL, "mem://receipts/"))

	rec = s.do(http.MethodPost, "/orders/"+order.ID+"/approve", customer, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/orders/"+order.ID+"/approve", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(string(domain.PaymentStatusApproved), decode[orderView](s.T(), rec).PaymentStatus)

	rec = s.do(http.MethodPost, "/orders/"+order.ID+"/reject", admin, map[string]any{"reason": "late"})
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("invalid_state_transition", decode[errorView](s.T(), rec).Error.Code)
}

func (s *RouterSuite) TestPartsRequestToInvoice() {
	pads := s.createSKU("BRK-PAD", 5)

	rec := s.do(http.MethodPost, "/services", admin, map[string]any{"name": "Brake service", "base_price_minor": 12000})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	service := decode[struct {
		ID string `json:"id"`
	}](s.T(), rec)

	rec = s.do(http.MethodPost, "/bookings", customer, map[string]any{"service_id": service.ID})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	bookingID := decode[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID

	rec = s.do(http.MethodPost, "/bookings/"+bookingID+"/assign", admin, map[string]any{"mechanic_id": mechanic.ID})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/bookings/"+bookingID+"/parts-eligibility", mechanic, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.False(decode[struct {
		CanRequest bool `json:"can_request"`
	}](s.T(), rec).CanRequest)

	rec = s.do(http.MethodPut, "/bookings/"+bookingID+"/status", mechanic, map[string]any{"status": "CONFIRMED"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	request := map[string]any{"booking_id": bookingID, "sku_id": pads.ID, "quantity": 2, "reason": "worn pads"}
	rec = s.do(http.MethodPost, "/parts-requests", mechanic, request)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	requestID := decode[struct {
		ID string `json:"id"`
	}](s.T(), rec).ID

	rec = s.do(http.MethodGet, "/parts-requests/"+requestID, mechanic, nil)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/parts-requests/"+requestID, domain.Actor{ID: "mechanic-2", Role: domain.RoleMechanic}, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/parts-requests/"+requestID, admin, nil)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/parts-requests", mechanic, request)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("duplicate_request", decode[errorView](s.T(), rec).Error.Code)

	rec = s.do(http.MethodGet, "/parts-requests?status=pending", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[[]map[string]any](s.T(), rec), 1)

	rec = s.do(http.MethodPost, "/parts-requests/"+requestID+"/approve", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/skus/"+pads.ID, mechanic, nil)
	s.Equal(3, decode[skuView](s.T(), rec).TotalQty)

	rec = s.do(http.MethodPost, "/bookings/"+bookingID+"/invoice", admin, nil)
	s.Equal(http.StatusConflict, rec.Code)

	for _, status := range []string{"IN_PROGRESS", "COMPLETED"} {
		rec = s.do(http.MethodPut, "/bookings/"+bookingID+"/status", mechanic, map[string]any{"status": status})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/bookings/"+bookingID+"/invoice", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	inv := decode[struct {
		ID               string `json:"id"`
		Number           string `json:"number"`
		TotalAmountMinor int64  `json:"total_amount_minor"`
	}](s.T(), rec)
	s.Equal(int64(12000+2*2500), inv.TotalAmountMinor)
	s.NotEmpty(inv.Number)

	rec = s.do(http.MethodGet, "/bookings/"+bookingID+"/invoice", customer, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/invoices/"+inv.ID+"/payment/receipt", customer, map[string]any{
		"file_url":              "https://files.example/invoice.pdf",
		"declared_amount_minor": inv.TotalAmountMinor,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/invoice-payments", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	payments := decode[[]struct {
		ID            string `json:"id"`
		PaymentStatus string `json:"payment_status"`
	}](s.T(), rec)
	s.Require().Len(payments, 1)
	s.Equal(string(domain.PaymentStatusSubmitted), payments[0].PaymentStatus)

	rec = s.do(http.MethodPost, "/invoice-payments/"+payments[0].ID+"/approve", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestAllocateSingleVariation() {
	rec := s.do(http.MethodPost, "/skus", admin, map[string]any{
		"code":             "WIPER",
		"name":             "Wiper blade",
		"unit_price_minor": 700,
		"total_qty":        6,
		"variation_schema": []map[string]any{{"variationId": "size", "name": "Size", "type": "select", "allowedValues": []string{"S", "M"}, "required": true}},
		"allocations":      map[string]int{"size:S": 2},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	sku := decode[skuView](s.T(), rec)

	rec = s.do(http.MethodPatch, "/skus/"+sku.ID+"/allocations", admin, map[string]any{"variation_key": "size:M", "quantity": 3})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	stock := decode[struct {
		VariationStock domain.VariationStock `json:"variation_stock"`
	}](s.T(), rec).VariationStock
	s.Equal(map[string]int{"size:S": 2, "size:M": 3}, stock.Allocations)
	s.Equal(1, stock.Unallocated)

	rec = s.do(http.MethodPatch, "/skus/"+sku.ID+"/allocations", admin, map[string]any{"variation_key": "size:M", "quantity": 5})
	s.Equal(http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPatch, "/skus/"+sku.ID+"/allocations", mechanic, map[string]any{"variation_key": "size:M", "quantity": 1})
	s.Equal(http.StatusForbidden, rec.Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func TestJWTAuthentication(t *testing.T) {
	logger := log.New().WithField("component", "http-api-test")
	logger.Logger.SetLevel(log.ErrorLevel)
	services, _ := newServices(t, logger)
	router := httpapi.NewRouter(services, httpapi.Config{JWTSecret: "secret", Logger: logger})

	call := func(token string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, "/skus", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	valid, err := httpapi.SignToken([]byte("secret"), admin, time.Minute)
	require.NoError(t, err)
	forged, err := httpapi.SignToken([]byte("other"), admin, time.Minute)
	require.NoError(t, err)
	expired, err := httpapi.SignToken([]byte("secret"), admin, -time.Minute)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, call(valid, nil))
	require.Equal(t, http.StatusUnauthorized, call(forged, nil))
	require.Equal(t, http.StatusUnauthorized, call(expired, nil))
	require.Equal(t, http.StatusUnauthorized, call("", map[string]string{"X-Actor-ID": "admin-1", "X-Actor-Role": "ADMIN"}))
}

func TestCancelledRequestIsNotServed(t *testing.T) {
	logger := log.New().WithField("component", "http-api-test")
	services, _ := newServices(t, logger)
	router := httpapi.NewRouter(services, httpapi.Config{RequestTimeout: time.Second, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/skus", nil).WithContext(ctx)
	req.Header.Set("X-Actor-ID", admin.ID)
	req.Header.Set("X-Actor-Role", string(admin.Role))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.NotEqual(t, http.StatusOK, rec.Code)
}
