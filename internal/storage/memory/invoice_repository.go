package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type invoiceRepository struct {
	tx *tx
}

// Create сохраняет счёт; повтор брони или номера даёт ErrAlreadyExists.
func (r *invoiceRepository) Create(invoice domain.Invoice) error {
	s := r.tx.store
	if _, exists := s.invoices[invoice.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, other := range s.invoices {
		if other.BookingID == invoice.BookingID || other.Number == invoice.Number {
			return domain.ErrAlreadyExists
		}
	}
	put(r.tx, s.invoices, invoice.ID, invoice)
	return nil
}

func (r *invoiceRepository) Get(id string) (domain.Invoice, error) {
	invoice, ok := r.tx.store.invoices[id]
	if !ok {
		return domain.Invoice{}, domain.NewNotFound(domain.EntityInvoice, id)
	}
	return invoice, nil
}

func (r *invoiceRepository) GetByBooking(bookingID string) (domain.Invoice, error) {
	for _, invoice := range r.tx.store.invoices {
		if invoice.BookingID == bookingID {
			return invoice, nil
		}
	}
	return domain.Invoice{}, domain.NewNotFound(domain.EntityInvoice, "booking:"+bookingID)
}

func (r *invoiceRepository) NumberExists(number string) (bool, error) {
	for _, invoice := range r.tx.store.invoices {
		if invoice.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *invoiceRepository) ListByCustomer(customerID string) ([]domain.Invoice, error) {
	result := make([]domain.Invoice, 0)
	for _, invoice := range r.tx.store.invoices {
		if invoice.CustomerID == customerID {
			result = append(result, invoice)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GeneratedAt.After(result[j].GeneratedAt)
	})
	return result, nil
}

func (r *invoiceRepository) UpdatePDFURL(id, url string) error {
	s := r.tx.store
	invoice, ok := s.invoices[id]
	if !ok {
		return domain.NewNotFound(domain.EntityInvoice, id)
	}
	invoice.PDFURL = url
	put(r.tx, s.invoices, id, invoice)
	return nil
}

type invoicePaymentRepository struct {
	tx *tx
}

func (r *invoicePaymentRepository) Create(payment domain.InvoicePayment) error {
	s := r.tx.store
	if _, exists := s.payments[payment.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, other := range s.payments {
		if other.InvoiceID == payment.InvoiceID {
			return domain.ErrAlreadyExists
		}
	}
	put(r.tx, s.payments, payment.ID, payment.Clone())
	return nil
}

func (r *invoicePaymentRepository) Get(id string) (domain.InvoicePayment, error) {
	payment, ok := r.tx.store.payments[id]
	if !ok {
		return domain.InvoicePayment{}, domain.NewNotFound(domain.EntityInvoicePayment, id)
	}
	return payment.Clone(), nil
}

func (r *invoicePaymentRepository) GetForUpdate(id string) (domain.InvoicePayment, error) {
	return r.Get(id)
}

func (r *invoicePaymentRepository) GetByInvoice(invoiceID string) (domain.InvoicePayment, error) {
	for _, payment := range r.tx.store.payments {
		if payment.InvoiceID == invoiceID {
			return payment.Clone(), nil
		}
	}
	return domain.InvoicePayment{}, domain.NewNotFound(domain.EntityInvoicePayment, "invoice:"+invoiceID)
}

func (r *invoicePaymentRepository) Save(payment domain.InvoicePayment) error {
	s := r.tx.store
	current, ok := s.payments[payment.ID]
	if !ok {
		return domain.NewNotFound(domain.EntityInvoicePayment, payment.ID)
	}
	if current.Version != payment.Version {
		return domain.ErrConcurrencyConflict
	}
	payment.Version++
	put(r.tx, s.payments, payment.ID, payment.Clone())
	return nil
}

func (r *invoicePaymentRepository) ListByStatus(status domain.PaymentStatus) ([]domain.InvoicePayment, error) {
	result := make([]domain.InvoicePayment, 0)
	for _, payment := range r.tx.store.payments {
		if status == "" || payment.Status == status {
			result = append(result, payment.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

var (
	_ domain.InvoiceRepository        = (*invoiceRepository)(nil)
	_ domain.InvoicePaymentRepository = (*invoicePaymentRepository)(nil)
)
