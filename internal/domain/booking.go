package domain

import (
	"fmt"
	"time"
)

// BookingStatus — статус записи клиента на обслуживание.
type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingInProgress BookingStatus = "IN_PROGRESS"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingCancelled  BookingStatus = "CANCELLED"
)

// Booking — запись на обслуживание. Ведётся внешним модулем, ядру нужны
// статус, назначенный механик и услуга.
type Booking struct {
	ID                 string
	CustomerID         string
	ServiceID          string
	AssignedMechanicID string
	Status             BookingStatus
	ScheduledAt        time.Time
	CompletedAt        time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AcceptsPartsRequests сообщает, может ли механик заказывать запчасти под бронь.
func (b *Booking) AcceptsPartsRequests() bool {
	return b.Status == BookingConfirmed || b.Status == BookingInProgress
}

// AssignedTo проверяет, что бронь назначена указанному механику.
func (b *Booking) AssignedTo(mechanicID string) bool {
	return b.AssignedMechanicID != "" && b.AssignedMechanicID == mechanicID
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
}

// TransitionTo меняет статус брони. Завершённые и отменённые брони не меняются.
func (b *Booking) TransitionTo(status BookingStatus, at time.Time) error {
	for _, allowed := range bookingTransitions[b.Status] {
		if allowed != status {
			continue
		}
		b.Status = status
		b.UpdatedAt = at
		if status == BookingCompleted {
			b.CompletedAt = at
		}
		return nil
	}
	return fmt.Errorf("%w: booking %s cannot move from %s to %s", ErrInvalidStateTransition, b.ID, b.Status, status)
}

// WorkshopService — услуга мастерской с базовой ценой.
type WorkshopService struct {
	ID             string
	Name           string
	Category       string
	BasePriceMinor int64
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
