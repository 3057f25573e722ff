package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/booking"
	"github.com/vladislavdragonenkov/workshop/internal/service/partsrequest"
)

type createPartsRequestRequest struct {
	BookingID string            `json:"booking_id"`
	SKUID     string            `json:"sku_id"`
	Quantity  int               `json:"quantity"`
	Selection map[string]string `json:"selection"`
	Reason    string            `json:"reason"`
}

type createServiceRequest struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	BasePriceMinor int64  `json:"base_price_minor"`
}

type createBookingRequest struct {
	CustomerID  string    `json:"customer_id"`
	ServiceID   string    `json:"service_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type assignMechanicRequest struct {
	MechanicID string `json:"mechanic_id"`
}

type bookingStatusRequest struct {
	Status domain.BookingStatus `json:"status"`
}

type eligibilityResponse struct {
	BookingID  string `json:"booking_id"`
	MechanicID string `json:"mechanic_id"`
	CanRequest bool   `json:"can_request"`
}

func (h *handler) partsRequestRoutes(r chi.Router) {
	admin := h.requireRole(domain.RoleAdmin)

	r.Use(h.requireRole(domain.RoleMechanic, domain.RoleAdmin))
	r.Get("/", h.listPartsRequests)
	r.With(h.requireRole(domain.RoleMechanic)).Post("/", h.createPartsRequest)
	r.Get("/{requestID}", h.getPartsRequest)
	r.With(admin).Post("/{requestID}/approve", h.approvePartsRequest)
	r.With(admin).Post("/{requestID}/reject", h.rejectPartsRequest)
}

// createPartsRequest создаёт заявку от имени механика, выполняющего запрос.
func (h *handler) createPartsRequest(w http.ResponseWriter, r *http.Request) {
	var req createPartsRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.PartsRequests.Create(r.Context(), partsrequest.CreateInput{
		BookingID:  req.BookingID,
		MechanicID: actorFrom(r).ID,
		SKUID:      req.SKUID,
		Quantity:   req.Quantity,
		Selection:  req.Selection,
		Reason:     req.Reason,
	})
	h.respond(w, r, http.StatusCreated, toPartsRequest(created), err)
}

// listPartsRequests выбирает заявки по брони, по механику или ожидающие решения.
// Механик без фильтра видит свои заявки.
func (h *handler) listPartsRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actor := actorFrom(r)

	var (
		items []domain.PartsRequest
		err   error
	)
	switch bookingID, mechanicID := q.Get("booking_id"), q.Get("mechanic_id"); {
	case bookingID != "":
		items, err = h.PartsRequests.ListForBooking(r.Context(), bookingID)
	case strings.EqualFold(q.Get("status"), string(domain.PartsRequestPending)):
		if !actor.IsAdmin() {
			h.fail(w, r, forbidden(actor, "list pending requests"))
			return
		}
		items, err = h.PartsRequests.ListPending(r.Context())
	case mechanicID != "":
		if !actor.IsAdmin() && mechanicID != actor.ID {
			h.fail(w, r, forbidden(actor, "list requests of another mechanic"))
			return
		}
		items, err = h.PartsRequests.ListForMechanic(r.Context(), mechanicID)
	case actor.Role == domain.RoleMechanic:
		items, err = h.PartsRequests.ListForMechanic(r.Context(), actor.ID)
	default:
		h.fail(w, r, domain.Invalidf("booking_id, mechanic_id or status=PENDING is required"))
		return
	}
	h.respond(w, r, http.StatusOK, toPartsRequests(items), err)
}

// getPartsRequest отдаёт механику только его собственные заявки.
func (h *handler) getPartsRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	actor := actorFrom(r)

	var (
		found domain.PartsRequest
		err   error
	)
	if actor.IsAdmin() {
		found, err = h.PartsRequests.Get(r.Context(), requestID)
	} else {
		found, err = h.PartsRequests.GetForMechanic(r.Context(), requestID, actor.ID)
	}
	h.respond(w, r, http.StatusOK, toPartsRequest(found), err)
}

func (h *handler) approvePartsRequest(w http.ResponseWriter, r *http.Request) {
	approved, err := h.PartsRequests.Approve(r.Context(), chi.URLParam(r, "requestID"), actorFrom(r).ID)
	h.respond(w, r, http.StatusOK, toPartsRequest(approved), err)
}

func (h *handler) rejectPartsRequest(w http.ResponseWriter, r *http.Request) {
	rejected, err := h.PartsRequests.Reject(r.Context(), chi.URLParam(r, "requestID"), actorFrom(r).ID)
	h.respond(w, r, http.StatusOK, toPartsRequest(rejected), err)
}

func (h *handler) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	svc, err := h.Bookings.CreateService(r.Context(), req.Name, req.Category, req.BasePriceMinor)
	h.respond(w, r, http.StatusCreated, serviceResponse{
		ID:             svc.ID,
		Name:           svc.Name,
		Category:       svc.Category,
		BasePriceMinor: svc.BasePriceMinor,
		Active:         svc.Active,
	}, err)
}

func (h *handler) bookingRoutes(r chi.Router) {
	admin := h.requireRole(domain.RoleAdmin)
	staff := h.requireRole(domain.RoleAdmin, domain.RoleMechanic)

	r.Post("/", h.createBooking)
	r.Route("/{bookingID}", func(r chi.Router) {
		r.With(staff).Get("/", h.getBooking)
		r.With(admin).Post("/assign", h.assignMechanic)
		r.With(staff).Put("/status", h.updateBookingStatus)
		r.With(h.requireRole(domain.RoleMechanic)).Get("/parts-eligibility", h.partsEligibility)
		r.With(admin).Post("/invoice", h.generateInvoice)
		r.Get("/invoice", h.getBookingInvoice)
	})
}

// createBooking создаёт бронь. Клиент бронирует только за себя.
func (h *handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	actor := actorFrom(r)
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = actor.ID
	}
	if err := actor.Authorize(customerID); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Bookings.CreateBooking(r.Context(), booking.CreateBookingInput{
		CustomerID:  customerID,
		ServiceID:   req.ServiceID,
		ScheduledAt: req.ScheduledAt,
	})
	h.respond(w, r, http.StatusCreated, toBooking(b), err)
}

func (h *handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "bookingID"))
	h.respond(w, r, http.StatusOK, toBooking(b), err)
}

func (h *handler) assignMechanic(w http.ResponseWriter, r *http.Request) {
	var req assignMechanicRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Bookings.AssignMechanic(r.Context(), chi.URLParam(r, "bookingID"), req.MechanicID)
	h.respond(w, r, http.StatusOK, toBooking(b), err)
}

// updateBookingStatus меняет статус брони. Механик может менять только назначенную ему бронь.
func (h *handler) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req bookingStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bookingID := chi.URLParam(r, "bookingID")
	actor := actorFrom(r)
	if !actor.IsAdmin() {
		current, err := h.Bookings.Get(r.Context(), bookingID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !current.AssignedTo(actor.ID) {
			h.fail(w, r, forbidden(actor, "update booking "+bookingID))
			return
		}
	}
	status := domain.BookingStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	b, err := h.Bookings.UpdateStatus(r.Context(), bookingID, status)
	h.respond(w, r, http.StatusOK, toBooking(b), err)
}

func (h *handler) partsEligibility(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	mechanicID := actorFrom(r).ID
	ok, err := h.PartsRequests.CanRequest(r.Context(), bookingID, mechanicID)
	h.respond(w, r, http.StatusOK, eligibilityResponse{BookingID: bookingID, MechanicID: mechanicID, CanRequest: ok}, err)
}
