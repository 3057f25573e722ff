package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/service/cart"
	"github.com/vladislavdragonenkov/workshop/internal/service/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	maxReceiptSize = 10 << 20
)

type addLineRequest struct {
	SKUID     string            `json:"sku_id"`
	Quantity  int               `json:"quantity"`
	Selection map[string]string `json:"selection"`
}

type createOrderRequest struct {
	CustomerID string `json:"customer_id"`
}

type receiptRequest struct {
	FileURL             string `json:"file_url"`
	DeclaredAmountMinor int64  `json:"declared_amount_minor"`
	Notes               string `json:"notes"`
}

type reviewRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.GetCart(r.Context(), actorFrom(r), chi.URLParam(r, "customerID"))
	h.respond(w, r, http.StatusOK, toCart(c), err)
}

func (h *handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Carts.AddLine(r.Context(), actorFrom(r), chi.URLParam(r, "customerID"), cart.AddLineInput{
		SKUID:     req.SKUID,
		Quantity:  req.Quantity,
		Selection: req.Selection,
	})
	h.respond(w, r, http.StatusOK, toCart(c), err)
}

func (h *handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Carts.UpdateLineQty(r.Context(), actorFrom(r), chi.URLParam(r, "customerID"), chi.URLParam(r, "lineID"), req.Quantity)
	h.respond(w, r, http.StatusOK, toCart(c), err)
}

func (h *handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.RemoveLine(r.Context(), actorFrom(r), chi.URLParam(r, "customerID"), chi.URLParam(r, "lineID"))
	h.respond(w, r, http.StatusOK, toCart(c), err)
}

func (h *handler) orderRoutes(r chi.Router) {
	admin := h.requireRole(domain.RoleAdmin)

	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Get("/timeline", h.orderTimeline)
		r.Post("/receipt", h.submitOrderReceipt)
		r.With(admin).Post("/approve", h.approveOrder)
		r.With(admin).Post("/reject", h.rejectOrder)
	})
}

// createOrder оформляет заказ из корзины. С заголовком Idempotency-Key повторный запрос
// получает сохранённый ответ, а сам заказ создаётся не больше одного раза.
func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	actor := actorFrom(r)
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = actor.ID
	}

	run := func() idempotency.Response {
		order, err := h.Checkout.CreateOrder(r.Context(), actor, customerID)
		if err != nil {
			return errorResponse(h.logger, r, err)
		}
		return encode(http.StatusCreated, toOrder(order))
	}

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || h.Idempotency == nil {
		writeResponse(w, run())
		return
	}

	hash := idempotency.HashRequest([]byte(r.Method), []byte(r.URL.Path), []byte(actor.ID), []byte(customerID))
	resp, replayed, err := h.Idempotency.Do(key, hash, run)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeResponse(w, resp)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Status:     domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.fail(w, r, domain.Invalidf("unknown payment status %q", q.Get("status")))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.fail(w, r, domain.Invalidf("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	orders, err := h.Checkout.ListOrders(r.Context(), actorFrom(r), filter)
	h.respond(w, r, http.StatusOK, toOrders(orders), err)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Checkout.GetOrder(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	h.respond(w, r, http.StatusOK, toOrder(order), err)
}

func (h *handler) orderTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Checkout.Timeline(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"))
	h.respond(w, r, http.StatusOK, toTimeline(entries), err)
}

func (h *handler) submitOrderReceipt(w http.ResponseWriter, r *http.Request) {
	upload, err := readReceipt(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.Checkout.SubmitReceipt(r.Context(), actorFrom(r), chi.URLParam(r, "orderID"), upload)
	h.respond(w, r, http.StatusOK, toOrder(order), err)
}

func (h *handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Checkout.ApproveOrder(r.Context(), chi.URLParam(r, "orderID"), actorFrom(r).ID)
	h.respond(w, r, http.StatusOK, toOrder(order), err)
}

func (h *handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.Checkout.RejectOrder(r.Context(), chi.URLParam(r, "orderID"), actorFrom(r).ID, req.Reason)
	h.respond(w, r, http.StatusOK, toOrder(order), err)
}

// readReceipt принимает чек либо multipart-формой (поле file, amount, notes),
// либо JSON со ссылкой на уже загруженный файл.
func readReceipt(w http.ResponseWriter, r *http.Request) (domain.ReceiptUpload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req receiptRequest
		if err := decodeJSON(r, &req); err != nil {
			return domain.ReceiptUpload{}, err
		}
		return domain.ReceiptUpload{
			FileURL:             req.FileURL,
			DeclaredAmountMinor: req.DeclaredAmountMinor,
			Notes:               req.Notes,
		}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptSize)
	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		return domain.ReceiptUpload{}, domain.Invalidf("malformed multipart form: %v", err)
	}

	upload := domain.ReceiptUpload{
		FileURL: r.FormValue("file_url"),
		Notes:   r.FormValue("notes"),
	}
	if raw := strings.TrimSpace(r.FormValue("amount")); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ReceiptUpload{}, domain.Invalidf("amount must be an integer in minor units")
		}
		upload.DeclaredAmountMinor = amount
	}

	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return upload, nil
	}
	if err != nil {
		return domain.ReceiptUpload{}, domain.Invalidf("read receipt file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.ReceiptUpload{}, domain.Invalidf("read receipt file: %v", err)
	}
	upload.FileName = header.Filename
	upload.ContentType = header.Header.Get("Content-Type")
	upload.Data = data
	return upload, nil
}
