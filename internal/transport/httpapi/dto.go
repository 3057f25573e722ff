package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type skuResponse struct {
	ID              string                   `json:"id"`
	Code            string                   `json:"code"`
	Name            string                   `json:"name"`
	Description     string                   `json:"description,omitempty"`
	Category        string                   `json:"category,omitempty"`
	Brand           string                   `json:"brand,omitempty"`
	ImageURL        string                   `json:"image_url,omitempty"`
	UnitPriceMinor  int64                    `json:"unit_price_minor"`
	TotalQty        int                      `json:"total_qty"`
	MinStockLevel   int                      `json:"min_stock_level"`
	LowStock        bool                     `json:"low_stock"`
	VariationSchema []domain.VariationOption `json:"variation_schema,omitempty"`
	VariationStock  *domain.VariationStock   `json:"variation_stock,omitempty"`
	Active          bool                     `json:"active"`
	Deleted         bool                     `json:"deleted"`
	Version         int64                    `json:"version"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func toSKU(s domain.SKU) skuResponse {
	return skuResponse{
		ID:              s.ID,
		Code:            s.Code,
		Name:            s.Name,
		Description:     s.Description,
		Category:        s.Category,
		Brand:           s.Brand,
		ImageURL:        s.ImageURL,
		UnitPriceMinor:  s.UnitPriceMinor,
		TotalQty:        s.TotalQty,
		MinStockLevel:   s.MinStockLevel,
		LowStock:        s.IsLowStock(),
		VariationSchema: s.VariationSchema,
		VariationStock:  s.VariationStock,
		Active:          s.Active,
		Deleted:         s.Deleted,
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toSKUs(items []domain.SKU) []skuResponse {
	out := make([]skuResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toSKU(s))
	}
	return out
}

type stockSummaryResponse struct {
	SKUID       string         `json:"sku_id"`
	Allocations map[string]int `json:"allocations"`
	Allocated   int            `json:"allocated"`
	Unallocated int            `json:"unallocated"`
	Total       int            `json:"total"`
	LowStock    bool           `json:"low_stock"`
}

type dependenciesResponse struct {
	OrderLines    int  `json:"order_lines"`
	CartLines     int  `json:"cart_lines"`
	PartsRequests int  `json:"parts_requests"`
	Total         int  `json:"total"`
	SafeToDelete  bool `json:"safe_to_delete"`
}

type cartLineResponse struct {
	ID             string            `json:"id"`
	SKUID          string            `json:"sku_id"`
	Quantity       int               `json:"quantity"`
	Selection      map[string]string `json:"selection,omitempty"`
	VariationKey   string            `json:"variation_key,omitempty"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	AddedAt        time.Time         `json:"added_at"`
}

type cartResponse struct {
	ID         string             `json:"id"`
	CustomerID string             `json:"customer_id"`
	Lines      []cartLineResponse `json:"lines"`
	Version    int64              `json:"version"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func toCart(c domain.Cart) cartResponse {
	lines := make([]cartLineResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, cartLineResponse{
			ID:             l.ID,
			SKUID:          l.SKUID,
			Quantity:       l.Quantity,
			Selection:      l.Selection,
			VariationKey:   l.VariationKey,
			UnitPriceMinor: l.UnitPriceMinor,
			AddedAt:        l.AddedAt,
		})
	}
	return cartResponse{ID: c.ID, CustomerID: c.CustomerID, Lines: lines, Version: c.Version, UpdatedAt: c.UpdatedAt}
}

type receiptResponse struct {
	FileURL             string    `json:"file_url"`
	DeclaredAmountMinor int64     `json:"declared_amount_minor"`
	Notes               string    `json:"notes,omitempty"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

// reviewResponse — поля проверки оплаты, общие для заказа и платежа по счёту.
type reviewResponse struct {
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Receipt       *receiptResponse     `json:"receipt,omitempty"`
	ReviewedBy    string               `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time           `json:"reviewed_at,omitempty"`
	AdminNotes    string               `json:"admin_notes,omitempty"`
}

func toReview(p domain.PaymentReview) reviewResponse {
	out := reviewResponse{PaymentStatus: p.Status, ReviewedBy: p.ReviewedBy, AdminNotes: p.AdminNotes}
	if p.Receipt != nil {
		out.Receipt = &receiptResponse{
			FileURL:             p.Receipt.FileURL,
			DeclaredAmountMinor: p.Receipt.DeclaredAmountMinor,
			Notes:               p.Receipt.Notes,
			SubmittedAt:         p.Receipt.SubmittedAt,
		}
	}
	if !p.ReviewedAt.IsZero() {
		at := p.ReviewedAt
		out.ReviewedAt = &at
	}
	return out
}

type orderLineResponse struct {
	ID             string            `json:"id"`
	SKUID          string            `json:"sku_id"`
	SKUCode        string            `json:"sku_code"`
	SKUName        string            `json:"sku_name"`
	Quantity       int               `json:"quantity"`
	UnitPriceMinor int64             `json:"unit_price_minor"`
	Selection      map[string]string `json:"selection,omitempty"`
	VariationKey   string            `json:"variation_key,omitempty"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	CustomerID       string              `json:"customer_id"`
	Lines            []orderLineResponse `json:"lines"`
	TotalAmountMinor int64               `json:"total_amount_minor"`
	reviewResponse
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrder(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ID:             l.ID,
			SKUID:          l.SKUID,
			SKUCode:        l.SKUCode,
			SKUName:        l.SKUName,
			Quantity:       l.Quantity,
			UnitPriceMinor: l.UnitPriceMinor,
			Selection:      l.Selection,
			VariationKey:   l.VariationKey,
		})
	}
	return orderResponse{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		Lines:            lines,
		TotalAmountMinor: o.TotalAmountMinor,
		reviewResponse:   toReview(o.PaymentReview),
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrders(items []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(items))
	for _, o := range items {
		out = append(out, toOrder(o))
	}
	return out
}

type partsRequestResponse struct {
	ID             string                    `json:"id"`
	BookingID      string                    `json:"booking_id"`
	MechanicID     string                    `json:"mechanic_id"`
	SKUID          string                    `json:"sku_id"`
	Quantity       int                       `json:"quantity"`
	Selection      map[string]string         `json:"selection,omitempty"`
	VariationKey   string                    `json:"variation_key,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
	Status         domain.PartsRequestStatus `json:"status"`
	UnitPriceMinor int64                     `json:"unit_price_minor,omitempty"`
	ReviewedBy     string                    `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time                `json:"reviewed_at,omitempty"`
	RequestedAt    time.Time                 `json:"requested_at"`
}

func toPartsRequest(p domain.PartsRequest) partsRequestResponse {
	out := partsRequestResponse{
		ID:             p.ID,
		BookingID:      p.BookingID,
		MechanicID:     p.MechanicID,
		SKUID:          p.SKUID,
		Quantity:       p.Quantity,
		Selection:      p.Selection,
		VariationKey:   p.VariationKey,
		Reason:         p.Reason,
		Status:         p.Status,
		UnitPriceMinor: p.UnitPriceMinor,
		ReviewedBy:     p.ReviewedBy,
		RequestedAt:    p.RequestedAt,
	}
	if !p.ReviewedAt.IsZero() {
		at := p.ReviewedAt
		out.ReviewedAt = &at
	}
	return out
}

func toPartsRequests(items []domain.PartsRequest) []partsRequestResponse {
	out := make([]partsRequestResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toPartsRequest(p))
	}
	return out
}

type serviceResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	BasePriceMinor int64  `json:"base_price_minor"`
	Active         bool   `json:"active"`
}

type bookingResponse struct {
	ID                 string               `json:"id"`
	CustomerID         string               `json:"customer_id"`
	ServiceID          string               `json:"service_id"`
	AssignedMechanicID string               `json:"assigned_mechanic_id,omitempty"`
	Status             domain.BookingStatus `json:"status"`
	ScheduledAt        *time.Time           `json:"scheduled_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func toBooking(b domain.Booking) bookingResponse {
	out := bookingResponse{
		ID:                 b.ID,
		CustomerID:         b.CustomerID,
		ServiceID:          b.ServiceID,
		AssignedMechanicID: b.AssignedMechanicID,
		Status:             b.Status,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	if !b.ScheduledAt.IsZero() {
		at := b.ScheduledAt
		out.ScheduledAt = &at
	}
	if !b.CompletedAt.IsZero() {
		at := b.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

type invoiceResponse struct {
	ID                 string    `json:"id"`
	BookingID          string    `json:"booking_id"`
	CustomerID         string    `json:"customer_id"`
	Number             string    `json:"number"`
	ServiceAmountMinor int64     `json:"service_amount_minor"`
	PartsAmountMinor   int64     `json:"parts_amount_minor"`
	TotalAmountMinor   int64     `json:"total_amount_minor"`
	PDFURL             string    `json:"pdf_url,omitempty"`
	GeneratedAt        time.Time `json:"generated_at"`
}

func toInvoice(i domain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                 i.ID,
		BookingID:          i.BookingID,
		CustomerID:         i.CustomerID,
		Number:             i.Number,
		ServiceAmountMinor: i.ServiceAmountMinor,
		PartsAmountMinor:   i.PartsAmountMinor,
		TotalAmountMinor:   i.TotalAmountMinor,
		PDFURL:             i.PDFURL,
		GeneratedAt:        i.GeneratedAt,
	}
}

type invoicePaymentResponse struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	reviewResponse
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toInvoicePayment(p domain.InvoicePayment) invoicePaymentResponse {
	return invoicePaymentResponse{
		ID:             p.ID,
		InvoiceID:      p.InvoiceID,
		reviewResponse: toReview(p.PaymentReview),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type timelineEventResponse struct {
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	Occurred      time.Time `json:"occurred"`
}

func toTimeline(items []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, timelineEventResponse{
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			Type:          e.Type,
			Reason:        e.Reason,
			Occurred:      e.Occurred,
		})
	}
	return out
}
