// Package httpapi публикует операции мастерской по HTTP: корзина, заказы, склад,
// заявки механиков и счета.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/booking"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/workshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/invoice"
	"github.com/vladislavdragonenkov/workshop/internal/service/partsrequest"
)

const defaultRequestTimeout = 15 * time.Second

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Inventory     *inventory.Service
	Carts         *cart.Service
	Checkout      *checkout.Service
	PartsRequests *partsrequest.Service
	Bookings      *booking.Service
	Invoices      *invoice.Service
	// Idempotency необязателен: без него заголовок Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
}

// Config задаёт параметры HTTP-слоя.
type Config struct {
	// JWTSecret включает проверку HS256-токенов. Пустой секрет означает доверие
	// заголовкам X-Actor-ID и X-Actor-Role.
	JWTSecret      string
	RequestTimeout time.Duration
	Logger         *log.Entry
}

type handler struct {
	Services
	auth   authenticator
	logger *log.Entry
}

// NewRouter собирает chi-роутер со всеми маршрутами API.
func NewRouter(services Services, cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &handler{
		Services: services,
		auth:     authenticator{secret: []byte(cfg.JWTSecret)},
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.logRequests, middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/skus", h.skuRoutes)
		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.Get("/cart", h.getCart)
			r.Post("/cart/lines", h.addCartLine)
			r.Patch("/cart/lines/{lineID}", h.updateCartLine)
			r.Delete("/cart/lines/{lineID}", h.removeCartLine)
			r.Get("/invoices", h.listCustomerInvoices)
		})
		r.Route("/orders", h.orderRoutes)
		r.Route("/parts-requests", h.partsRequestRoutes)
		r.Route("/services", func(r chi.Router) {
			r.With(h.requireRole(domain.RoleAdmin)).Post("/", h.createService)
		})
		r.Route("/bookings", h.bookingRoutes)
		r.Route("/invoices", h.invoiceRoutes)
		r.Route("/invoice-payments", func(r chi.Router) {
			r.Use(h.requireRole(domain.RoleAdmin))
			r.Get("/", h.listPendingPayments)
			r.Post("/{paymentID}/approve", h.approvePayment)
			r.Post("/{paymentID}/reject", h.rejectPayment)
		})
	})

	return r
}

// logRequests пишет access-лог запроса в logrus.
func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		entry := h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeResponse(w, errorResponse(h.logger, r, err))
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, v)
}
