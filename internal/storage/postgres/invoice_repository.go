package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const invoiceColumns = `id, booking_id, customer_id, number, service_amount_minor, parts_amount_minor,
	total_amount_minor, pdf_url, generated_at`

type invoiceRepository struct {
	conn
}

// Create сохраняет счёт; повтор брони или номера даёт ErrAlreadyExists.
func (r *invoiceRepository) Create(inv domain.Invoice) error {
	_, err := r.q.ExecContext(r.ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		inv.ID, inv.BookingID, inv.CustomerID, inv.Number, inv.ServiceAmountMinor, inv.PartsAmountMinor,
		inv.TotalAmountMinor, inv.PDFURL, inv.GeneratedAt.UTC(),
	)
	return mapError("insert invoice", err)
}

func (r *invoiceRepository) Get(id string) (domain.Invoice, error) {
	return r.getBy("id", id, id)
}

func (r *invoiceRepository) GetByBooking(bookingID string) (domain.Invoice, error) {
	return r.getBy("booking_id", bookingID, "booking:"+bookingID)
}

func (r *invoiceRepository) getBy(column, value, notFoundID string) (domain.Invoice, error) {
	row := r.q.QueryRowContext(r.ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+column+` = $1`, value)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, domain.NewNotFound(domain.EntityInvoice, notFoundID)
	}
	if err != nil {
		return domain.Invoice{}, mapError("select invoice", err)
	}
	return inv, nil
}

func (r *invoiceRepository) NumberExists(number string) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(r.ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE number = $1)`, number,
	).Scan(&exists); err != nil {
		return false, mapError("check invoice number", err)
	}
	return exists, nil
}

func (r *invoiceRepository) ListByCustomer(customerID string) ([]domain.Invoice, error) {
	rows, err := r.q.QueryContext(r.ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE customer_id = $1
		ORDER BY generated_at DESC, id DESC
	`, customerID)
	if err != nil {
		return nil, mapError("list invoices", err)
	}
	defer rows.Close()

	result := make([]domain.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return result, nil
}

func (r *invoiceRepository) UpdatePDFURL(id, url string) error {
	res, err := r.q.ExecContext(r.ctx, `UPDATE invoices SET pdf_url = $1 WHERE id = $2`, url, id)
	if err != nil {
		return mapError("update invoice pdf url", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound(domain.EntityInvoice, id)
	}
	return nil
}

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	if err := row.Scan(
		&inv.ID, &inv.BookingID, &inv.CustomerID, &inv.Number, &inv.ServiceAmountMinor, &inv.PartsAmountMinor,
		&inv.TotalAmountMinor, &inv.PDFURL, &inv.GeneratedAt,
	); err != nil {
		return domain.Invoice{}, err
	}
	inv.GeneratedAt = inv.GeneratedAt.UTC()
	return inv, nil
}

const invoicePaymentColumns = `id, invoice_id, payment_status, receipt, reviewed_by, reviewed_at,
	admin_notes, version, created_at, updated_at`

type invoicePaymentRepository struct {
	conn
}

func (r *invoicePaymentRepository) Create(p domain.InvoicePayment) error {
	receipt, err := encodeReceipt(p.Receipt)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(r.ctx, `
		INSERT INTO invoice_payments (`+invoicePaymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID, p.InvoiceID, string(p.Status), receipt, p.ReviewedBy, nullTime(p.ReviewedAt),
		p.AdminNotes, p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return mapError("insert invoice payment", err)
}

func (r *invoicePaymentRepository) Get(id string) (domain.InvoicePayment, error) {
	return r.getBy("id", id, id, "")
}

func (r *invoicePaymentRepository) GetForUpdate(id string) (domain.InvoicePayment, error) {
	return r.getBy("id", id, id, " FOR UPDATE")
}

func (r *invoicePaymentRepository) GetByInvoice(invoiceID string) (domain.InvoicePayment, error) {
	return r.getBy("invoice_id", invoiceID, "invoice:"+invoiceID, "")
}

func (r *invoicePaymentRepository) getBy(column, value, notFoundID, suffix string) (domain.InvoicePayment, error) {
	row := r.q.QueryRowContext(r.ctx,
		`SELECT `+invoicePaymentColumns+` FROM invoice_payments WHERE `+column+` = $1`+suffix, value)
	p, err := scanInvoicePayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InvoicePayment{}, domain.NewNotFound(domain.EntityInvoicePayment, notFoundID)
	}
	if err != nil {
		return domain.InvoicePayment{}, mapError("select invoice payment", err)
	}
	return p, nil
}

func (r *invoicePaymentRepository) Save(p domain.InvoicePayment) error {
	receipt, err := encodeReceipt(p.Receipt)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(r.ctx, `
		UPDATE invoice_payments
		SET payment_status = $1,
		    receipt = $2,
		    reviewed_by = $3,
		    reviewed_at = $4,
		    admin_notes = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(p.Status), receipt, p.ReviewedBy, nullTime(p.ReviewedAt), p.AdminNotes,
		p.UpdatedAt.UTC(), p.ID, p.Version,
	)
	if err != nil {
		return mapError("update invoice payment", err)
	}
	return r.checkAffected(res, "invoice_payments", domain.EntityInvoicePayment, p.ID)
}

// ListByStatus возвращает платежи в порядке последнего изменения. Пустой статус не фильтрует.
func (r *invoicePaymentRepository) ListByStatus(status domain.PaymentStatus) ([]domain.InvoicePayment, error) {
	rows, err := r.q.QueryContext(r.ctx, `
		SELECT `+invoicePaymentColumns+`
		FROM invoice_payments
		WHERE $1 = '' OR payment_status = $1
		ORDER BY updated_at, id
	`, string(status))
	if err != nil {
		return nil, mapError("list invoice payments", err)
	}
	defer rows.Close()

	result := make([]domain.InvoicePayment, 0)
	for rows.Next() {
		p, err := scanInvoicePayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice payment row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice payment rows: %w", err)
	}
	return result, nil
}

func scanInvoicePayment(row rowScanner) (domain.InvoicePayment, error) {
	var (
		p          domain.InvoicePayment
		status     string
		receipt    []byte
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.InvoiceID, &status, &receipt, &p.ReviewedBy, &reviewedAt,
		&p.AdminNotes, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.InvoicePayment{}, err
	}
	decoded, err := decodeReceipt(receipt)
	if err != nil {
		return domain.InvoicePayment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	p.Receipt = decoded
	p.ReviewedAt = timeOf(reviewedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

var (
	_ domain.InvoiceRepository        = (*invoiceRepository)(nil)
	_ domain.InvoicePaymentRepository = (*invoicePaymentRepository)(nil)
)
