package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// InitiatePayment открывает проверку оплаты счёта. Повторный вызов возвращает существующую.
func (s *Service) InitiatePayment(ctx context.Context, actor domain.Actor, invoiceID string) (domain.InvoicePayment, error) {
	var payment domain.InvoicePayment
	err := s.retrier.Do(ctx, "invoice_payment_initiate", func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			var err error
			payment, err = s.loadOrCreatePayment(r, actor, invoiceID)
			return err
		})
	})
	if err != nil {
		return domain.InvoicePayment{}, err
	}
	return payment, nil
}

// SubmitPaymentReceipt прикладывает чек к оплате счёта. Допустимо без чека или после отклонения.
func (s *Service) SubmitPaymentReceipt(ctx context.Context, actor domain.Actor, invoiceID string, upload domain.ReceiptUpload) (domain.InvoicePayment, error) {
	// Статус проверяется до загрузки файла, чтобы не сохранять чек к закрытой оплате.
	invoice, err := s.Get(ctx, actor, invoiceID)
	if err != nil {
		return domain.InvoicePayment{}, err
	}
	if current, err := s.paymentForInvoice(ctx, invoice.ID); err == nil {
		if current.Status != domain.PaymentStatusPending && current.Status != domain.PaymentStatusRejected {
			return domain.InvoicePayment{}, fmt.Errorf("%w: cannot submit receipt in status %s", domain.ErrInvalidStateTransition, current.Status)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.InvoicePayment{}, err
	}

	receipt, err := domain.StoreReceipt(ctx, s.receipts, upload, time.Now().UTC())
	if err != nil {
		return domain.InvoicePayment{}, err
	}

	return s.review(ctx, "invoice_payment_submit", domain.TimelineReceiptSubmitted, "", func(r domain.Repositories) (domain.InvoicePayment, error) {
		payment, err := s.loadOrCreatePayment(r, actor, invoiceID)
		if err != nil {
			return domain.InvoicePayment{}, err
		}
		return r.InvoicePayments.GetForUpdate(payment.ID)
	}, func(p *domain.InvoicePayment) error {
		return p.SubmitReceipt(receipt)
	})
}

// ApprovePayment подтверждает оплату счёта.
func (s *Service) ApprovePayment(ctx context.Context, paymentID, adminID string) (domain.InvoicePayment, error) {
	payment, err := s.review(ctx, "invoice_payment_approve", domain.TimelinePaymentApproved, "", lockPayment(paymentID), func(p *domain.InvoicePayment) error {
		return p.Approve(adminID, time.Now().UTC())
	})
	if err == nil {
		s.metrics.RecordPaymentReview(domain.AggregateInvoice, "approved")
	}
	return payment, err
}

// RejectPayment отклоняет чек по счёту с указанием причины.
func (s *Service) RejectPayment(ctx context.Context, paymentID, adminID, reason string) (domain.InvoicePayment, error) {
	payment, err := s.review(ctx, "invoice_payment_reject", domain.TimelinePaymentRejected, reason, lockPayment(paymentID), func(p *domain.InvoicePayment) error {
		return p.Reject(adminID, reason, time.Now().UTC())
	})
	if err == nil {
		s.metrics.RecordPaymentReview(domain.AggregateInvoice, "rejected")
	}
	return payment, err
}

// GetPayment возвращает оплату по счёту с проверкой владельца.
func (s *Service) GetPayment(ctx context.Context, actor domain.Actor, invoiceID string) (domain.InvoicePayment, error) {
	if _, err := s.Get(ctx, actor, invoiceID); err != nil {
		return domain.InvoicePayment{}, err
	}
	return s.paymentForInvoice(ctx, invoiceID)
}

// ListPendingPayments возвращает оплаты, ожидающие решения администратора.
func (s *Service) ListPendingPayments(ctx context.Context) ([]domain.InvoicePayment, error) {
	var payments []domain.InvoicePayment
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		payments, err = r.InvoicePayments.ListByStatus(domain.PaymentStatusSubmitted)
		return err
	})
	return payments, err
}

// Timeline возвращает журнал счёта и его оплаты.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, invoiceID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, actor, invoiceID); err != nil {
		return nil, err
	}
	var entries []domain.TimelineEvent
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		entries, err = r.Timeline.List(domain.AggregateInvoice, invoiceID)
		if err != nil {
			return err
		}
		payment, err := r.InvoicePayments.GetByInvoice(invoiceID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		paymentEntries, err := r.Timeline.List(domain.AggregateInvoicePayment, payment.ID)
		if err != nil {
			return err
		}
		entries = append(entries, paymentEntries...)
		return nil
	})
	return entries, err
}

func (s *Service) paymentForInvoice(ctx context.Context, invoiceID string) (domain.InvoicePayment, error) {
	var payment domain.InvoicePayment
	err := s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
		var err error
		payment, err = r.InvoicePayments.GetByInvoice(invoiceID)
		return err
	})
	return payment, err
}

func (s *Service) loadOrCreatePayment(r domain.Repositories, actor domain.Actor, invoiceID string) (domain.InvoicePayment, error) {
	invoice, err := r.Invoices.Get(invoiceID)
	if err != nil {
		return domain.InvoicePayment{}, err
	}
	if err := actor.Authorize(invoice.CustomerID); err != nil {
		return domain.InvoicePayment{}, err
	}

	payment, err := r.InvoicePayments.GetByInvoice(invoiceID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.InvoicePayment{}, err
	}

	now := time.Now().UTC()
	payment = domain.InvoicePayment{
		ID:            uuid.NewString(),
		InvoiceID:     invoiceID,
		PaymentReview: domain.NewPaymentReview(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.InvoicePayments.Create(payment); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.InvoicePayment{}, fmt.Errorf("create invoice payment: %w", domain.ErrConcurrencyConflict)
		}
		return domain.InvoicePayment{}, fmt.Errorf("create invoice payment: %w", err)
	}
	return payment, nil
}

func lockPayment(paymentID string) func(r domain.Repositories) (domain.InvoicePayment, error) {
	return func(r domain.Repositories) (domain.InvoicePayment, error) {
		return r.InvoicePayments.GetForUpdate(paymentID)
	}
}

// review применяет переход проверки оплаты счёта и публикует смену статуса.
func (s *Service) review(
	ctx context.Context,
	operation, timelineType, reason string,
	load func(r domain.Repositories) (domain.InvoicePayment, error),
	fn func(p *domain.InvoicePayment) error,
) (domain.InvoicePayment, error) {
	var result domain.InvoicePayment
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.emitter.Do(ctx, s.uow, func(r domain.Repositories) error {
			payment, err := load(r)
			if err != nil {
				return err
			}
			previous := payment.Status
			if err := fn(&payment); err != nil {
				return err
			}

			now := time.Now().UTC()
			payment.UpdatedAt = now
			if err := r.InvoicePayments.Save(payment); err != nil {
				return fmt.Errorf("save invoice payment: %w", err)
			}
			payment.Version++

			if err := s.emitter.Enqueue(r, domain.AggregateInvoicePayment, payment.ID, domain.EventInvoicePaymentStatusChanged, map[string]interface{}{
				"invoice_id":      payment.InvoiceID,
				"previous_status": previous,
				"status":          payment.Status,
				"reason":          reason,
			}, now); err != nil {
				return err
			}
			if err := s.emitter.Record(r, domain.AggregateInvoicePayment, payment.ID, timelineType, reason, now); err != nil {
				return err
			}
			result = payment
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("operation", operation).Warn("invoice payment review failed")
		return domain.InvoicePayment{}, err
	}

	s.logger.WithFields(log.Fields{
		"payment_id": result.ID,
		"invoice_id": result.InvoiceID,
		"status":     result.Status,
	}).Info("invoice payment status changed")
	return result, nil
}
