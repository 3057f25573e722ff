package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCartTotalsAreDerived(t *testing.T) {
	cart := Cart{
		Lines: []CartLine{
			{ID: "l1", SKUID: "a", Quantity: 2, UnitPriceMinor: 150},
			{ID: "l2", SKUID: "b", VariationKey: "color:red", Quantity: 3, UnitPriceMinor: 100},
		},
	}

	if got := cart.TotalAmountMinor(); got != 600 {
		t.Fatalf("total amount = %d, want 600", got)
	}
	if got := cart.TotalItems(); got != 5 {
		t.Fatalf("total items = %d, want 5", got)
	}

	cart.RemoveLine("l1")
	if got := cart.TotalAmountMinor(); got != 300 {
		t.Fatalf("total after remove = %d, want 300", got)
	}
	cart.RemoveLine("missing")
	if len(cart.Lines) != 1 {
		t.Fatal("removing unknown line must be a no-op")
	}

	cart.Clear()
	if cart.TotalItems() != 0 || cart.TotalAmountMinor() != 0 {
		t.Fatal("cleared cart must be empty")
	}
}

func TestCartFindLineMatchesSKUAndVariation(t *testing.T) {
	cart := Cart{Lines: []CartLine{
		{ID: "l1", SKUID: "a", VariationKey: "color:red"},
		{ID: "l2", SKUID: "a", VariationKey: "color:blue"},
	}}

	if idx, ok := cart.FindLine("a", "color:blue"); !ok || idx != 1 {
		t.Fatalf("FindLine = %d,%v", idx, ok)
	}
	if _, ok := cart.FindLine("a", ""); ok {
		t.Fatal("different variation must not match")
	}
	if _, ok := cart.LineIndex("l2"); !ok {
		t.Fatal("LineIndex must find l2")
	}
}

func TestPartsRequestTransitions(t *testing.T) {
	now := time.Now().UTC()

	req := PartsRequest{ID: "r1", Status: PartsRequestPending}
	if err := req.Approve("admin", 1200, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if req.Status != PartsRequestApproved || req.UnitPriceMinor != 1200 || req.ReviewedBy != "admin" {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := req.Reject("admin", now); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("reject after approve must fail, got %v", err)
	}

	other := PartsRequest{ID: "r2", Status: PartsRequestPending}
	if err := other.Reject("admin", now); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := other.Approve("admin", 1, now); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("approve after reject must fail, got %v", err)
	}
}

func TestBookingPreconditions(t *testing.T) {
	booking := Booking{AssignedMechanicID: "m1", Status: BookingConfirmed}
	if !booking.AcceptsPartsRequests() || !booking.AssignedTo("m1") {
		t.Fatal("confirmed booking assigned to m1 must accept requests from m1")
	}
	if booking.AssignedTo("m2") {
		t.Fatal("booking is not assigned to m2")
	}

	for _, status := range []BookingStatus{BookingPending, BookingCompleted, BookingCancelled} {
		booking.Status = status
		if booking.AcceptsPartsRequests() {
			t.Fatalf("status %s must not accept requests", status)
		}
	}

	unassigned := Booking{Status: BookingInProgress}
	if unassigned.AssignedTo("") {
		t.Fatal("empty mechanic must never match")
	}
}

func TestFormatInvoiceNumber(t *testing.T) {
	if got := FormatInvoiceNumber(2026, 42); got != "INV-2026-000042" {
		t.Fatalf("FormatInvoiceNumber = %q", got)
	}
	inv := Invoice{ServiceAmountMinor: 100, PartsAmountMinor: 50, TotalAmountMinor: 150}
	if !inv.Consistent() {
		t.Fatal("invoice should be consistent")
	}
}

func TestActorAccess(t *testing.T) {
	customer := Actor{ID: "c1", Role: RoleCustomer}
	admin := Actor{ID: "a1", Role: RoleAdmin}

	if !customer.CanAccessCustomer("c1") || customer.CanAccessCustomer("c2") {
		t.Fatal("customer must access only own resources")
	}
	if !admin.CanAccessCustomer("c2") {
		t.Fatal("admin must access any customer")
	}
	if Role("ROOT").Valid() {
		t.Fatal("unexpected valid role")
	}
	if err := customer.Authorize("c2"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := admin.Authorize("c2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBookingTransitions(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	booking := Booking{ID: "b1", Status: BookingPending}

	for _, next := range []BookingStatus{BookingConfirmed, BookingInProgress, BookingCompleted} {
		if err := booking.TransitionTo(next, at); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !booking.CompletedAt.Equal(at) {
		t.Fatalf("completed at not set: %v", booking.CompletedAt)
	}
	if err := booking.TransitionTo(BookingCancelled, at); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	skipped := Booking{ID: "b2", Status: BookingPending}
	if err := skipped.TransitionTo(BookingCompleted, at); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
