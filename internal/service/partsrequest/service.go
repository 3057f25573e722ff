package partsrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
	"github.com/vladislavdragonenkov/workshop/internal/service/events"
	"github.com/vladislavdragonenkov/workshop/internal/service/inventory"
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
)

// Service обрабатывает заявки механиков на запчасти по брони.
// Остаток списывается только при одобрении заявки администратором.
type Service struct {
	uow     domain.UnitOfWork
	ledger  *inventory.Service
	retrier *retry.Retrier
	emitter *events.Emitter
	logger  *log.Entry
	metrics *metrics.FulfillmentMetrics
}

// CreateInput — параметры новой заявки.
type CreateInput struct {
	BookingID  string
	MechanicID string
	SKUID      string
	Quantity   int
	Selection  map[string]string
	Reason     string
}

// NewService создаёт сервис заявок.
func NewService(uow domain.UnitOfWork, ledger *inventory.Service, retrier *retry.Retrier, logger *log.Entry, m *metrics.FulfillmentMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "parts-request")
	}
	if retrier == nil {
		retrier = retry.New(retry.DefaultConfig(), logger, m)
	}
	return &Service{
		uow:     uow,
		ledger:  ledger,
		retrier: retrier,
		emitter: events.NewEmitter(m),
		logger:  logger,
		metrics: m,
	}
}

// Create регистрирует заявку в статусе PENDING после проверки брони, дублей и остатка.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.PartsRequest, error) {
	if in.Quantity < 1 {
		return domain.PartsRequest{}, domain.Invalidf("quantity must be at least 1, got %d", in.Quantity)
	}

	var req domain.PartsRequest
	err := s.retrier.Do(ctx, "parts_request_create", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			booking, err := r.Bookings.Get(in.BookingID)
			if err != nil {
				return err
			}
			if err := checkBooking(booking, in.MechanicID); err != nil {
				return err
			}

			pending, err := r.PartsRequests.HasPending(in.BookingID, in.SKUID)
			if err != nil {
				return err
			}
			if pending {
				return fmt.Errorf("%w: booking %s, sku %s", domain.ErrDuplicateRequest, in.BookingID, in.SKUID)
			}

			sku, err := inventory.Lookup(r, in.SKUID)
			if err != nil {
				return err
			}
			key, err := sku.SelectionKey(in.Selection)
			if err != nil {
				return err
			}
			if err := sku.CheckAvailable(key, in.Quantity); err != nil {
				return err
			}

			now := time.Now().UTC()
			req = domain.PartsRequest{
				ID:           uuid.NewString(),
				BookingID:    booking.ID,
				MechanicID:   in.MechanicID,
				SKUID:        sku.ID,
				Quantity:     in.Quantity,
				Selection:    domain.ParseVariationKey(key),
				VariationKey: key,
				Reason:       strings.TrimSpace(in.Reason),
				Status:       domain.PartsRequestPending,
				RequestedAt:  now,
			}
			if err := r.PartsRequests.Create(req); err != nil {
				return fmt.Errorf("create parts request: %w", err)
			}
			return s.emitter.Record(r, domain.AggregatePartsRequest, req.ID, domain.TimelineRequestCreated, req.Reason, now)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			s.metrics.RecordPartsRequest("duplicate")
		}
		s.logger.WithError(err).WithFields(log.Fields{
			"booking_id":  in.BookingID,
			"mechanic_id": in.MechanicID,
			"sku_id":      in.SKUID,
		}).Warn("parts request rejected")
		return domain.PartsRequest{}, err
	}

	s.metrics.RecordPartsRequest("created")
	s.logger.WithFields(log.Fields{
		"request_id": req.ID,
		"booking_id": req.BookingID,
		"sku_id":     req.SKUID,
	}).Info("parts request created")
	return req, nil
}

// Approve списывает остаток и фиксирует цену SKU на момент одобрения.
// При нехватке остатка заявка остаётся в PENDING.
func (s *Service) Approve(ctx context.Context, requestID, adminID string) (domain.PartsRequest, error) {
	defer s.metrics.TrackOperation("parts_request_approve")()

	var (
		req      domain.PartsRequest
		deducted inventory.Deducted
	)
	err := s.retrier.Do(ctx, "parts_request_approve", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			var err error
			req, err = r.PartsRequests.GetForUpdate(requestID)
			if err != nil {
				return err
			}
			if req.Status != domain.PartsRequestPending {
				return fmt.Errorf("%w: only pending requests can be approved, got %s", domain.ErrInvalidStateTransition, req.Status)
			}

			sku, err := inventory.Lock(r, req.SKUID)
			if err != nil {
				return err
			}
			key, err := sku.SelectionKey(req.Selection)
			if err != nil {
				return err
			}
			deducted, err = s.ledger.Deduct(r, &sku, []inventory.Deduction{{VariationKey: key, Qty: req.Quantity}},
				metrics.SourcePartsRequest, "parts request "+req.ID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if err := req.Approve(adminID, sku.UnitPriceMinor, now); err != nil {
				return err
			}
			if err := r.PartsRequests.Save(req); err != nil {
				return fmt.Errorf("save parts request: %w", err)
			}
			req.Version++

			if err := s.emitter.Enqueue(r, domain.AggregatePartsRequest, req.ID, domain.EventPartsRequestApproved, map[string]interface{}{
				"booking_id":       req.BookingID,
				"sku_id":           req.SKUID,
				"variation_key":    req.VariationKey,
				"quantity":         req.Quantity,
				"unit_price_minor": req.UnitPriceMinor,
				"approved_by":      adminID,
			}, now); err != nil {
				return err
			}
			return s.emitter.Record(r, domain.AggregatePartsRequest, req.ID, domain.TimelineRequestApproved, "", now)
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Warn("parts request approval failed")
		return domain.PartsRequest{}, err
	}

	s.ledger.RecordDeducted(deducted)
	s.metrics.RecordPartsRequest("approved")
	s.logger.WithFields(log.Fields{
		"request_id": req.ID,
		"sku_id":     req.SKUID,
		"quantity":   req.Quantity,
	}).Info("parts request approved")
	return req, nil
}

// Reject отклоняет заявку без движения остатка.
func (s *Service) Reject(ctx context.Context, requestID, adminID string) (domain.PartsRequest, error) {
	var req domain.PartsRequest
	err := s.retrier.Do(ctx, "parts_request_reject", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			var err error
			req, err = r.PartsRequests.GetForUpdate(requestID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := req.Reject(adminID, now); err != nil {
				return err
			}
			if err := r.PartsRequests.Save(req); err != nil {
				return fmt.Errorf("save parts request: %w", err)
			}
			req.Version++
			return s.emitter.Record(r, domain.AggregatePartsRequest, req.ID, domain.TimelineRequestRejected, "", now)
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Warn("parts request rejection failed")
		return domain.PartsRequest{}, err
	}

	s.metrics.RecordPartsRequest("rejected")
	return req, nil
}

// Get возвращает заявку.
func (s *Service) Get(ctx context.Context, requestID string) (domain.PartsRequest, error) {
	var req domain.PartsRequest
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		req, err = r.PartsRequests.Get(requestID)
		return err
	})
	return req, err
}

// GetForMechanic возвращает заявку, только если её создал mechanicID.
// Чужая заявка неотличима от отсутствующей.
func (s *Service) GetForMechanic(ctx context.Context, requestID, mechanicID string) (domain.PartsRequest, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return domain.PartsRequest{}, err
	}
	if req.MechanicID != mechanicID {
		return domain.PartsRequest{}, domain.NewNotFound(domain.EntityPartsRequest, requestID)
	}
	return req, nil
}

// ListForBooking возвращает заявки по брони.
func (s *Service) ListForBooking(ctx context.Context, bookingID string) ([]domain.PartsRequest, error) {
	var result []domain.PartsRequest
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		if _, err := r.Bookings.Get(bookingID); err != nil {
			return err
		}
		var err error
		result, err = r.PartsRequests.List(domain.PartsRequestFilter{BookingID: bookingID})
		return err
	})
	return result, err
}

// ListForMechanic возвращает заявки механика.
func (s *Service) ListForMechanic(ctx context.Context, mechanicID string) ([]domain.PartsRequest, error) {
	return s.list(ctx, domain.PartsRequestFilter{MechanicID: mechanicID})
}

// ListPending возвращает заявки, ожидающие решения администратора.
func (s *Service) ListPending(ctx context.Context) ([]domain.PartsRequest, error) {
	return s.list(ctx, domain.PartsRequestFilter{Status: domain.PartsRequestPending})
}

// CanRequest сообщает, может ли механик запрашивать запчасти по брони.
func (s *Service) CanRequest(ctx context.Context, bookingID, mechanicID string) (bool, error) {
	var allowed bool
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		booking, err := r.Bookings.Get(bookingID)
		if err != nil {
			return err
		}
		allowed = checkBooking(booking, mechanicID) == nil
		return nil
	})
	return allowed, err
}

func (s *Service) list(ctx context.Context, filter domain.PartsRequestFilter) ([]domain.PartsRequest, error) {
	var result []domain.PartsRequest
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		result, err = r.PartsRequests.List(filter)
		return err
	})
	return result, err
}

func checkBooking(booking domain.Booking, mechanicID string) error {
	if !booking.AssignedTo(mechanicID) {
		return fmt.Errorf("%w: booking %s is not assigned to mechanic %s", domain.ErrNotAuthorized, booking.ID, mechanicID)
	}
	if !booking.AcceptsPartsRequests() {
		return fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidStateTransition, booking.ID, booking.Status)
	}
	return nil
}
