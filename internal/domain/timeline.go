package domain

import "time"

// TimelineEvent описывает событие аудита по агрегату (SKU, заказ, заявка, счёт).
type TimelineEvent struct {
	AggregateType string
	AggregateID   string
	Type          string
	Reason        string
	Occurred      time.Time
}

// Типы событий журнала.
const (
	TimelineSKUCreated       = "sku_created"
	TimelineSKUUpdated       = "sku_updated"
	TimelineStockSet         = "stock_set"
	TimelineStockAdded       = "stock_added"
	TimelineStockDeducted    = "stock_deducted"
	TimelineStockReallocated = "stock_reallocated"
	TimelineSKUDeleted       = "sku_deleted"
	TimelineSKURestored      = "sku_restored"
	TimelineOrderCreated     = "order_created"
	TimelineReceiptSubmitted = "receipt_submitted"
	TimelinePaymentApproved  = "payment_approved"
	TimelinePaymentRejected  = "payment_rejected"
	TimelineRequestCreated   = "request_created"
	TimelineRequestApproved  = "request_approved"
	TimelineRequestRejected  = "request_rejected"
	TimelineInvoiceGenerated = "invoice_generated"
	TimelineInvoicePDFSet    = "invoice_pdf_updated"
)
