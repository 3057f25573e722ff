package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const orderColumns = `id, customer_id, total_amount_minor, payment_status, receipt,
	reviewed_by, reviewed_at, admin_notes, version, created_at, updated_at`

type orderRepository struct {
	conn
}

func (r *orderRepository) Create(order domain.Order) error {
	receipt, err := encodeReceipt(order.Receipt)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(r.ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.CustomerID, order.TotalAmountMinor, string(order.Status), receipt,
		order.ReviewedBy, nullTime(order.ReviewedAt), order.AdminNotes, order.Version,
		order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapError("insert order", err)
	}

	for i, line := range order.Lines {
		selection, err := encodeSelection(line.Selection)
		if err != nil {
			return err
		}
		if _, err := r.q.ExecContext(r.ctx, `
			INSERT INTO order_lines (
				id, order_id, position, sku_id, sku_code, sku_name, quantity, unit_price_minor, selection, variation_key
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			line.ID, order.ID, i, line.SKUID, line.SKUCode, line.SKUName, line.Quantity,
			line.UnitPriceMinor, selection, line.VariationKey,
		); err != nil {
			return mapError("insert order line", err)
		}
	}
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	return r.get(id, "")
}

func (r *orderRepository) GetForUpdate(id string) (domain.Order, error) {
	return r.get(id, " FOR UPDATE")
}

func (r *orderRepository) get(id, suffix string) (domain.Order, error) {
	row := r.q.QueryRowContext(r.ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+suffix, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NewNotFound(domain.EntityOrder, id)
	}
	if err != nil {
		return domain.Order{}, mapError("select order", err)
	}

	if order.Lines, err = r.lines(order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// List возвращает заказы от новых к старым.
func (r *orderRepository) List(filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, mapError("list orders", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Курсор закрывается до чтения позиций, иначе соединение транзакции занято.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close order rows: %w", err)
	}

	for i := range orders {
		if orders[i].Lines, err = r.lines(orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save обновляет статус оплаты заказа. Позиции после создания не меняются.
func (r *orderRepository) Save(order domain.Order) error {
	receipt, err := encodeReceipt(order.Receipt)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(r.ctx, `
		UPDATE orders
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
		string(order.Status), receipt, order.ReviewedBy, nullTime(order.ReviewedAt), order.AdminNotes,
		order.UpdatedAt.UTC(), order.ID, order.Version,
	)
	if err != nil {
		return mapError("update order", err)
	}
	return r.checkAffected(res, "orders", domain.EntityOrder, order.ID)
}

func (r *orderRepository) lines(orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(r.ctx, `
		SELECT id, sku_id, sku_code, sku_name, quantity, unit_price_minor, selection, variation_key
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, mapError("select order lines", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			line      domain.OrderLine
			selection []byte
		)
		if err := rows.Scan(
			&line.ID, &line.SKUID, &line.SKUCode, &line.SKUName, &line.Quantity,
			&line.UnitPriceMinor, &selection, &line.VariationKey,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if line.Selection, err = decodeSelection(selection); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order      domain.Order
		status     string
		receipt    []byte
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.TotalAmountMinor, &status, &receipt,
		&order.ReviewedBy, &reviewedAt, &order.AdminNotes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	decoded, err := decodeReceipt(receipt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.PaymentStatus(status)
	order.Receipt = decoded
	order.ReviewedAt = timeOf(reviewedAt)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
