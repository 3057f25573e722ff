package invoice

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
	"github.com/vladislavdragonenkov/workshop/internal/service/retry"
)

// maxNumberAttempts ограничивает поиск свободного номера счёта.
const maxNumberAttempts = 5

// Service формирует счета по завершённым броням и ведёт проверку их оплаты.
type Service struct {
	uow      domain.UnitOfWork
	sequence domain.InvoiceSequence
	receipts domain.ReceiptStore
	pricing  domain.PartsPricing
	retrier  *retry.Retrier
	emitter  *events.Emitter
	logger   *log.Entry
	metrics  *metrics.FulfillmentMetrics
}

// Config — зависимости и политика сервиса счетов.
type Config struct {
	Sequence domain.InvoiceSequence
	Receipts domain.ReceiptStore
	Pricing  domain.PartsPricing
	Retrier  *retry.Retrier
	Logger   *log.Entry
	Metrics  *metrics.FulfillmentMetrics
}

// NewService создаёт сервис счетов. По умолчанию запчасти оцениваются по текущей цене SKU.
func NewService(uow domain.UnitOfWork, cfg Config) (*Service, error) {
	if cfg.Sequence == nil {
		return nil, errors.New("invoice sequence is required")
	}
	if cfg.Pricing == "" {
		cfg.Pricing = domain.PartsPricingCurrent
	}
	if !cfg.Pricing.Valid() {
		return nil, fmt.Errorf("unknown parts pricing %q", cfg.Pricing)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "invoice")
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.DefaultConfig(), cfg.Logger, cfg.Metrics)
	}
	return &Service{
		uow:      uow,
		sequence: cfg.Sequence,
		receipts: cfg.Receipts,
		pricing:  cfg.Pricing,
		retrier:  cfg.Retrier,
		emitter:  events.NewEmitter(cfg.Metrics),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Generate формирует счёт по завершённой брони. Повторный вызов возвращает тот же счёт.
func (s *Service) Generate(ctx context.Context, bookingID string) (domain.Invoice, error) {
	defer s.metrics.TrackOperation("invoice_generate")()

	var (
		invoice domain.Invoice
		created bool
	)
	err := s.retrier.Do(ctx, "invoice_generate", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			var err error
			invoice, created, err = s.generate(ctx, r, bookingID)
			return err
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Warn("invoice generation failed")
		return domain.Invoice{}, err
	}

	if created {
		s.metrics.RecordInvoiceGenerated()
		s.logger.WithFields(log.Fields{
			"invoice_id": invoice.ID,
			"number":     invoice.Number,
			"booking_id": bookingID,
			"total":      invoice.TotalAmountMinor,
		}).Info("invoice generated")
	}
	return invoice, nil
}

func (s *Service) generate(ctx context.Context, r domain.Repositories, bookingID string) (domain.Invoice, bool, error) {
	booking, err := r.Bookings.Get(bookingID)
	if err != nil {
		return domain.Invoice{}, false, err
	}
	if booking.Status != domain.BookingCompleted {
		return domain.Invoice{}, false, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidStateTransition, booking.ID, booking.Status)
	}

	existing, err := r.Invoices.GetByBooking(bookingID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Invoice{}, false, err
	}

	service, err := r.Services.Get(booking.ServiceID)
	if err != nil {
		return domain.Invoice{}, false, err
	}
	partsAmount, err := s.partsAmount(r, bookingID)
	if err != nil {
		return domain.Invoice{}, false, err
	}

	now := time.Now().UTC()
	number, err := s.allocateNumber(ctx, r, now.Year())
	if err != nil {
		return domain.Invoice{}, false, err
	}

	invoice := domain.Invoice{
		ID:                 uuid.NewString(),
		BookingID:          booking.ID,
		CustomerID:         booking.CustomerID,
		Number:             number,
		ServiceAmountMinor: service.BasePriceMinor,
		PartsAmountMinor:   partsAmount,
		TotalAmountMinor:   service.BasePriceMinor + partsAmount,
		GeneratedAt:        now,
	}
	if err := r.Invoices.Create(invoice); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Счёт по брони или номер заняты параллельной транзакцией: повторяем целиком.
			return domain.Invoice{}, false, fmt.Errorf("create invoice: %w", domain.ErrConcurrencyConflict)
		}
		return domain.Invoice{}, false, fmt.Errorf("create invoice: %w", err)
	}

	if err := s.emitter.Enqueue(r, domain.AggregateInvoice, invoice.ID, domain.EventInvoiceGenerated, map[string]interface{}{
		"booking_id":           invoice.BookingID,
		"customer_id":          invoice.CustomerID,
		"number":               invoice.Number,
		"service_amount_minor": invoice.ServiceAmountMinor,
		"parts_amount_minor":   invoice.PartsAmountMinor,
		"total_amount_minor":   invoice.TotalAmountMinor,
	}, now); err != nil {
		return domain.Invoice{}, false, err
	}
	if err := s.emitter.Record(r, domain.AggregateInvoice, invoice.ID, domain.TimelineInvoiceGenerated, invoice.Number, now); err != nil {
		return domain.Invoice{}, false, err
	}
	return invoice, true, nil
}

// partsAmount суммирует одобренные заявки по брони.
func (s *Service) partsAmount(r domain.Repositories, bookingID string) (int64, error) {
	requests, err := r.PartsRequests.List(domain.PartsRequestFilter{BookingID: bookingID, Status: domain.PartsRequestApproved})
	if err != nil {
		return 0, err
	}

	var total int64
	for _, req := range requests {
		price := req.UnitPriceMinor
		if s.pricing == domain.PartsPricingCurrent {
			sku, err := r.SKUs.Get(req.SKUID)
			if err != nil {
				return 0, fmt.Errorf("price parts request %s: %w", req.ID, err)
			}
			price = sku.UnitPriceMinor
		}
		total += price * int64(req.Quantity)
	}
	return total, nil
}

func (s *Service) allocateNumber(ctx context.Context, r domain.Repositories, year int) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		seq, err := s.sequence.Next(ctx, year)
		if err != nil {
			return "", fmt.Errorf("next invoice number: %w", err)
		}
		number := domain.FormatInvoiceNumber(year, seq)
		exists, err := r.Invoices.NumberExists(number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		s.logger.WithField("number", number).Warn("invoice number already taken, skipping")
	}
	return "", fmt.Errorf("allocate invoice number: %w", domain.ErrConcurrencyConflict)
}

// Get возвращает счёт с проверкой владельца.
func (s *Service) Get(ctx context.Context, actor domain.Actor, invoiceID string) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		invoice, err = r.Invoices.Get(invoiceID)
		if err != nil {
			return err
		}
		return actor.Authorize(invoice.CustomerID)
	})
	return invoice, err
}

// GetForBooking возвращает счёт по брони.
func (s *Service) GetForBooking(ctx context.Context, actor domain.Actor, bookingID string) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		invoice, err = r.Invoices.GetByBooking(bookingID)
		if err != nil {
			return err
		}
		return actor.Authorize(invoice.CustomerID)
	})
	return invoice, err
}

// ListForCustomer возвращает счета клиента, новые первыми.
func (s *Service) ListForCustomer(ctx context.Context, actor domain.Actor, customerID string) ([]domain.Invoice, error) {
	if err := actor.Authorize(customerID); err != nil {
		return nil, err
	}
	var invoices []domain.Invoice
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		invoices, err = r.Invoices.ListByCustomer(customerID)
		return err
	})
	return invoices, err
}

// UpdatePDFURL задаёт ссылку на PDF счёта; это единственное изменяемое поле счёта.
func (s *Service) UpdatePDFURL(ctx context.Context, invoiceID, url string) (domain.Invoice, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.Invoice{}, domain.Invalidf("pdf url is required")
	}

	var invoice domain.Invoice
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		if err := r.Invoices.UpdatePDFURL(invoiceID, url); err != nil {
			return err
		}
		var err error
		invoice, err = r.Invoices.Get(invoiceID)
		if err != nil {
			return err
		}
		return s.emitter.Record(r, domain.AggregateInvoice, invoiceID, domain.TimelineInvoicePDFSet, url, time.Now().UTC())
	})
	return invoice, err
}
