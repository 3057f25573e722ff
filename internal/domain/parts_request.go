package domain

import (
	"fmt"
	"time"
)

// PartsRequestStatus — статус заявки механика на запчасть.
type PartsRequestStatus string

const (
	PartsRequestPending  PartsRequestStatus = "PENDING"
	PartsRequestApproved PartsRequestStatus = "APPROVED"
	PartsRequestRejected PartsRequestStatus = "REJECTED"
)

// PartsRequest — заявка механика на списание запчасти под бронь.
// Остаток списывается только при одобрении.
type PartsRequest struct {
	ID           string
	BookingID    string
	MechanicID   string
	SKUID        string
	Quantity     int
	Selection    map[string]string
	VariationKey string
	Reason       string
	Status       PartsRequestStatus
	// UnitPriceMinor фиксируется при одобрении.
	UnitPriceMinor int64
	ReviewedBy     string
	ReviewedAt     time.Time
	RequestedAt    time.Time
	Version        int64
}

// Approve переводит заявку в APPROVED с ценой на момент списания.
func (r *PartsRequest) Approve(adminID string, unitPriceMinor int64, at time.Time) error {
	if r.Status != PartsRequestPending {
		return fmt.Errorf("%w: only pending requests can be approved, got %s", ErrInvalidStateTransition, r.Status)
	}
	r.Status = PartsRequestApproved
	r.UnitPriceMinor = unitPriceMinor
	r.ReviewedBy = adminID
	r.ReviewedAt = at
	return nil
}

// Reject переводит заявку в REJECTED, остаток не затрагивается.
func (r *PartsRequest) Reject(adminID string, at time.Time) error {
	if r.Status != PartsRequestPending {
		return fmt.Errorf("%w: only pending requests can be rejected, got %s", ErrInvalidStateTransition, r.Status)
	}
	r.Status = PartsRequestRejected
	r.ReviewedBy = adminID
	r.ReviewedAt = at
	return nil
}

// Clone возвращает глубокую копию заявки.
func (r PartsRequest) Clone() PartsRequest {
	out := r
	out.Selection = cloneSelection(r.Selection)
	return out
}
