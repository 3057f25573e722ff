package domain

import (
	"fmt"
	"time"
)

// FormatInvoiceNumber форматирует номер счёта: INV-<год>-<6 цифр>.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%04d-%06d", year, seq)
}

// Invoice — неизменяемый счёт по завершённой брони. Меняться может только PDFURL.
type Invoice struct {
	ID                 string
	BookingID          string
	CustomerID         string
	Number             string
	ServiceAmountMinor int64
	PartsAmountMinor   int64
	TotalAmountMinor   int64
	PDFURL             string
	GeneratedAt        time.Time
}

// Consistent проверяет, что итог равен сумме услуги и запчастей.
func (i *Invoice) Consistent() bool {
	return i.TotalAmountMinor == i.ServiceAmountMinor+i.PartsAmountMinor
}

// InvoicePayment — проверка оплаты счёта, тот же автомат, что и у заказа.
type InvoicePayment struct {
	ID        string
	InvoiceID string
	PaymentReview
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает глубокую копию платежа.
func (p InvoicePayment) Clone() InvoicePayment {
	out := p
	out.PaymentReview = p.PaymentReview.clone()
	return out
}

// PartsPricing задаёт, по какой цене считаются запчасти в счёте.
type PartsPricing string

const (
	// PartsPricingCurrent — текущая цена SKU на момент генерации счёта.
	PartsPricingCurrent PartsPricing = "current"
	// PartsPricingApproval — цена, зафиксированная при одобрении заявки.
	PartsPricingApproval PartsPricing = "approval"
)

// Valid проверяет значение режима.
func (p PartsPricing) Valid() bool {
	return p == PartsPricingCurrent || p == PartsPricingApproval
}
