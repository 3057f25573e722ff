package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type pdfURLRequest struct {
	URL string `json:"url"`
}

func (h *handler) invoiceRoutes(r chi.Router) {
	r.Route("/{invoiceID}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.With(h.requireRole(domain.RoleAdmin)).Put("/pdf-url", h.updatePDFURL)
		r.Get("/timeline", h.invoiceTimeline)
		r.Post("/payment", h.initiatePayment)
		r.Get("/payment", h.getPayment)
		r.Post("/payment/receipt", h.submitPaymentReceipt)
	})
}

func (h *handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Generate(r.Context(), chi.URLParam(r, "bookingID"))
	h.respond(w, r, http.StatusOK, toInvoice(inv), err)
}

func (h *handler) getBookingInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.GetForBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"))
	h.respond(w, r, http.StatusOK, toInvoice(inv), err)
}

func (h *handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Get(r.Context(), actorFrom(r), chi.URLParam(r, "invoiceID"))
	h.respond(w, r, http.StatusOK, toInvoice(inv), err)
}

func (h *handler) listCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	items, err := h.Invoices.ListForCustomer(r.Context(), actorFrom(r), chi.URLParam(r, "customerID"))
	out := make([]invoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, toInvoice(inv))
	}
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *handler) updatePDFURL(w http.ResponseWriter, r *http.Request) {
	var req pdfURLRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.Invoices.UpdatePDFURL(r.Context(), chi.URLParam(r, "invoiceID"), req.URL)
	h.respond(w, r, http.StatusOK, toInvoice(inv), err)
}

func (h *handler) invoiceTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Invoices.Timeline(r.Context(), actorFrom(r), chi.URLParam(r, "invoiceID"))
	h.respond(w, r, http.StatusOK, toTimeline(entries), err)
}

func (h *handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Invoices.InitiatePayment(r.Context(), actorFrom(r), chi.URLParam(r, "invoiceID"))
	h.respond(w, r, http.StatusOK, toInvoicePayment(payment), err)
}

func (h *handler) getPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Invoices.GetPayment(r.Context(), actorFrom(r), chi.URLParam(r, "invoiceID"))
	h.respond(w, r, http.StatusOK, toInvoicePayment(payment), err)
}

func (h *handler) submitPaymentReceipt(w http.ResponseWriter, r *http.Request) {
	upload, err := readReceipt(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.Invoices.SubmitPaymentReceipt(r.Context(), actorFrom(r), chi.URLParam(r, "invoiceID"), upload)
	h.respond(w, r, http.StatusOK, toInvoicePayment(payment), err)
}

func (h *handler) listPendingPayments(w http.ResponseWriter, r *http.Request) {
	items, err := h.Invoices.ListPendingPayments(r.Context())
	out := make([]invoicePaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toInvoicePayment(p))
	}
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Invoices.ApprovePayment(r.Context(), chi.URLParam(r, "paymentID"), actorFrom(r).ID)
	h.respond(w, r, http.StatusOK, toInvoicePayment(payment), err)
}

func (h *handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.Invoices.RejectPayment(r.Context(), chi.URLParam(r, "paymentID"), actorFrom(r).ID, req.Reason)
	h.respond(w, r, http.StatusOK, toInvoicePayment(payment), err)
}
