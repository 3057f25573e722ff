package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// Service — минимальный доступ к броням и услугам, которые ведёт модуль записи.
// Нужен для назначения механиков и смены статусов, от которых зависят заявки и счета.
type Service struct {
	uow    domain.UnitOfWork
	logger *log.Entry
}

// CreateBookingInput — параметры новой брони.
type CreateBookingInput struct {
	CustomerID  string
	ServiceID   string
	ScheduledAt time.Time
}

// NewService создаёт сервис броней.
func NewService(uow domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "booking")
	}
	return &Service{uow: uow, logger: logger}
}

// CreateService добавляет услугу в справочник.
func (s *Service) CreateService(ctx context.Context, name, category string, basePriceMinor int64) (domain.WorkshopService, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.WorkshopService{}, domain.Invalidf("service name is required")
	}
	if basePriceMinor < 0 {
		return domain.WorkshopService{}, domain.Invalidf("base price must be non-negative")
	}

	now := time.Now().UTC()
	svc := domain.WorkshopService{
		ID:             uuid.NewString(),
		Name:           name,
		Category:       category,
		BasePriceMinor: basePriceMinor,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.uow.Do(ctx, func(r domain.Repositories) error {
		return r.Services.Create(svc)
	})
	if err != nil {
		return domain.WorkshopService{}, err
	}
	return svc, nil
}

// CreateBooking записывает клиента на активную услугу.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (domain.Booking, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return domain.Booking{}, domain.Invalidf("customer id is required")
	}

	now := time.Now().UTC()
	booking := domain.Booking{
		ID:          uuid.NewString(),
		CustomerID:  in.CustomerID,
		ServiceID:   in.ServiceID,
		Status:      domain.BookingPending,
		ScheduledAt: in.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.uow.Do(ctx, func(r domain.Repositories) error {
		svc, err := r.Services.Get(in.ServiceID)
		if err != nil {
			return err
		}
		if !svc.Active {
			return domain.Invalidf("service %s is not active", svc.ID)
		}
		return r.Bookings.Create(booking)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	s.logger.WithFields(log.Fields{"booking_id": booking.ID, "customer_id": booking.CustomerID}).Info("booking created")
	return booking, nil
}

// AssignMechanic назначает механика на бронь.
func (s *Service) AssignMechanic(ctx context.Context, bookingID, mechanicID string) (domain.Booking, error) {
	if strings.TrimSpace(mechanicID) == "" {
		return domain.Booking{}, domain.Invalidf("mechanic id is required")
	}
	return s.update(ctx, bookingID, func(b *domain.Booking) error {
		if b.Status == domain.BookingCompleted || b.Status == domain.BookingCancelled {
			return fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidStateTransition, b.ID, b.Status)
		}
		b.AssignedMechanicID = mechanicID
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// UpdateStatus переводит бронь в новый статус.
func (s *Service) UpdateStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (domain.Booking, error) {
	return s.update(ctx, bookingID, func(b *domain.Booking) error {
		return b.TransitionTo(status, time.Now().UTC())
	})
}

// Get возвращает бронь.
func (s *Service) Get(ctx context.Context, bookingID string) (domain.Booking, error) {
	var booking domain.Booking
	err := s.uow.Do(ctx, func(r domain.Repositories) error {
		var err error
		booking, err = r.Bookings.Get(bookingID)
		return err
	})
	return booking, err
}

func (s *Service) update(ctx context.Context, bookingID string, fn func(b *domain.Booking) error) (domain.Booking, error) {
	var booking domain.Booking
	err := s.uow.Do(ctx, func(r domain.Repositories) error {
		var err error
		booking, err = r.Bookings.Get(bookingID)
		if err != nil {
			return err
		}
		if err := fn(&booking); err != nil {
			return err
		}
		return r.Bookings.Save(booking)
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Warn("booking update failed")
		return domain.Booking{}, err
	}
	return booking, nil
}
