package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/filestore"
	"github.com/vladislavdragonenkov/workshop/internal/service/idempotency"
)

const maxJSONBody = 1 << 20

// errorBody — тело ответа с ошибкой.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SKUID     string `json:"sku_id,omitempty"`
	Variation string `json:"variation_key,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// decodeJSON читает тело запроса. Неизвестные поля и лишние данные после объекта отклоняются.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalidf("request body is required")
		}
		return domain.Invalidf("malformed json: %v", err)
	}
	if dec.More() {
		return domain.Invalidf("request body must contain a single json object")
	}
	return nil
}

// encode сериализует ответ в форму, пригодную для сохранения под idempotency-key.
func encode(status int, v any) idempotency.Response {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(errorEnvelope{Error: errorBody{Code: "internal", Message: "failed to encode response"}})
		status = http.StatusInternalServerError
	}
	return idempotency.Response{Status: status, Body: body}
}

func writeResponse(w http.ResponseWriter, resp idempotency.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeResponse(w, encode(status, v))
}

// errorResponse переводит доменную ошибку в HTTP-статус. Неожиданные ошибки логируются,
// а клиент получает обезличенное сообщение.
func errorResponse(logger *log.Entry, r *http.Request, err error) idempotency.Response {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	return encode(status, errorEnvelope{Error: body})
}

func classify(err error) (int, errorBody) {
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		available, requested := stock.Available, stock.Requested
		return http.StatusConflict, errorBody{
			Code:      "insufficient_stock",
			Message:   err.Error(),
			SKUID:     stock.SKUID,
			Variation: stock.VariationKey,
			Available: &available,
			Requested: &requested,
		}
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, errorBody{Code: "insufficient_stock", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidVariationSelection):
		return http.StatusUnprocessableEntity, errorBody{Code: "invalid_variation_selection", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidAllocation):
		return http.StatusUnprocessableEntity, errorBody{Code: "invalid_allocation", Message: err.Error()}
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, errorBody{Code: "empty_cart", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, errorBody{Code: "invalid_argument", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, errorBody{Code: "duplicate_request", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, errorBody{Code: "invalid_state_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden, errorBody{Code: "not_authorized", Message: err.Error()}
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, errorBody{Code: "concurrency_conflict", Message: "resource was modified concurrently, retry the request"}
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, errorBody{Code: "already_exists", Message: err.Error()}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, errorBody{Code: "idempotency_key_reused", Message: err.Error()}
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return http.StatusConflict, errorBody{Code: "idempotency_key_in_progress", Message: err.Error()}
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: err.Error()}
	case errors.Is(err, filestore.ErrUnavailable):
		return http.StatusServiceUnavailable, errorBody{Code: "receipt_storage_unavailable", Message: "receipt storage is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal server error"}
	}
}

func forbidden(actor domain.Actor, action string) error {
	return fmt.Errorf("%w: role %s cannot %s", domain.ErrNotAuthorized, actor.Role, action)
}
