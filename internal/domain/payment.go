package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PaymentStatus описывает ручную проверку оплаты (заказа или счёта) администратором.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ещё не подтверждена чеком.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusSubmitted — клиент загрузил чек, ожидается решение администратора.
	PaymentStatusSubmitted PaymentStatus = "PAYMENT_SUBMITTED"
	// PaymentStatusApproved — администратор подтвердил оплату.
	PaymentStatusApproved PaymentStatus = "APPROVED"
	// PaymentStatusRejected — чек отклонён; клиент может загрузить новый.
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSubmitted, PaymentStatusApproved, PaymentStatusRejected:
		return true
	default:
		return false
	}
}

// Receipt — чек об оплате, загруженный клиентом.
type Receipt struct {
	FileURL             string
	DeclaredAmountMinor int64
	Notes               string
	SubmittedAt         time.Time
}

// Validate проверяет поля чека.
func (r Receipt) Validate() error {
	if strings.TrimSpace(r.FileURL) == "" {
		return Invalidf("receipt file is required")
	}
	if r.DeclaredAmountMinor <= 0 {
		return Invalidf("declared amount must be positive")
	}
	return nil
}

// PaymentReview — общий автомат проверки оплаты:
// PENDING → PAYMENT_SUBMITTED → {APPROVED | REJECTED}, REJECTED → PAYMENT_SUBMITTED.
type PaymentReview struct {
	Status     PaymentStatus
	Receipt    *Receipt
	ReviewedBy string
	ReviewedAt time.Time
	AdminNotes string
}

// NewPaymentReview возвращает проверку в начальном статусе.
func NewPaymentReview() PaymentReview {
	return PaymentReview{Status: PaymentStatusPending}
}

// SubmitReceipt сохраняет (или заменяет) чек и очищает прежние замечания администратора.
func (p *PaymentReview) SubmitReceipt(receipt Receipt) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusRejected {
		return fmt.Errorf("%w: cannot submit receipt in status %s", ErrInvalidStateTransition, p.Status)
	}
	if err := receipt.Validate(); err != nil {
		return err
	}
	stored := receipt
	p.Receipt = &stored
	p.Status = PaymentStatusSubmitted
	p.AdminNotes = ""
	p.ReviewedBy = ""
	p.ReviewedAt = time.Time{}
	return nil
}

// Approve подтверждает оплату.
func (p *PaymentReview) Approve(adminID string, at time.Time) error {
	if p.Status != PaymentStatusSubmitted {
		return fmt.Errorf("%w: cannot approve payment in status %s", ErrInvalidStateTransition, p.Status)
	}
	p.Status = PaymentStatusApproved
	p.ReviewedBy = adminID
	p.ReviewedAt = at
	return nil
}

// Reject отклоняет чек с указанием причины.
func (p *PaymentReview) Reject(adminID, reason string, at time.Time) error {
	if p.Status != PaymentStatusSubmitted {
		return fmt.Errorf("%w: cannot reject payment in status %s", ErrInvalidStateTransition, p.Status)
	}
	p.Status = PaymentStatusRejected
	p.ReviewedBy = adminID
	p.ReviewedAt = at
	p.AdminNotes = strings.TrimSpace(reason)
	return nil
}

func (p PaymentReview) clone() PaymentReview {
	out := p
	if p.Receipt != nil {
		r := *p.Receipt
		out.Receipt = &r
	}
	return out
}

// ReceiptUpload — чек в том виде, в котором его передаёт клиент: файл или готовая ссылка.
type ReceiptUpload struct {
	FileName            string
	ContentType         string
	Data                []byte
	FileURL             string
	DeclaredAmountMinor int64
	Notes               string
}

// StoreReceipt сохраняет файл чека (если он передан) и возвращает запись для проверки оплаты.
func StoreReceipt(ctx context.Context, store ReceiptStore, upload ReceiptUpload, at time.Time) (Receipt, error) {
	receipt := Receipt{
		FileURL:             strings.TrimSpace(upload.FileURL),
		DeclaredAmountMinor: upload.DeclaredAmountMinor,
		Notes:               strings.TrimSpace(upload.Notes),
		SubmittedAt:         at,
	}
	if len(upload.Data) > 0 {
		if store == nil {
			return Receipt{}, Invalidf("receipt storage is not configured")
		}
		url, err := store.Put(ctx, upload.FileName, upload.ContentType, upload.Data)
		if err != nil {
			return Receipt{}, fmt.Errorf("store receipt: %w", err)
		}
		receipt.FileURL = url
	}
	if err := receipt.Validate(); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
