package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type cartRepository struct {
	conn
}

func (r *cartRepository) Create(cart domain.Cart) error {
	_, err := r.q.ExecContext(r.ctx, `
		INSERT INTO carts (id, customer_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cart.ID, cart.CustomerID, cart.Version, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC())
	if err != nil {
		return mapError("insert cart", err)
	}
	return r.insertLines(cart)
}

func (r *cartRepository) GetByCustomer(customerID string) (domain.Cart, error) {
	return r.get(customerID, "")
}

func (r *cartRepository) GetByCustomerForUpdate(customerID string) (domain.Cart, error) {
	return r.get(customerID, " FOR UPDATE")
}

func (r *cartRepository) get(customerID, suffix string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(r.ctx, `
		SELECT id, customer_id, version, created_at, updated_at
		FROM carts
		WHERE customer_id = $1`+suffix, customerID,
	).Scan(&cart.ID, &cart.CustomerID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.NewNotFound(domain.EntityCart, customerID)
	}
	if err != nil {
		return domain.Cart{}, mapError("select cart", err)
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	lines, err := r.lines(cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Lines = lines
	return cart, nil
}

// Save сверяет версию корзины и полностью перезаписывает её позиции.
func (r *cartRepository) Save(cart domain.Cart) error {
	res, err := r.q.ExecContext(r.ctx, `
		UPDATE carts
		SET version = version + 1,
		    updated_at = $1
		WHERE customer_id = $2
		  AND version = $3
	`, cart.UpdatedAt.UTC(), cart.CustomerID, cart.Version)
	if err != nil {
		return mapError("update cart", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var found bool
		if err := r.q.QueryRowContext(r.ctx,
			`SELECT EXISTS (SELECT 1 FROM carts WHERE customer_id = $1)`, cart.CustomerID,
		).Scan(&found); err != nil {
			return mapError("check cart exists", err)
		}
		if !found {
			return domain.NewNotFound(domain.EntityCart, cart.CustomerID)
		}
		return domain.ErrConcurrencyConflict
	}

	if _, err := r.q.ExecContext(r.ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cart.ID); err != nil {
		return mapError("delete cart lines", err)
	}
	return r.insertLines(cart)
}

func (r *cartRepository) insertLines(cart domain.Cart) error {
	for i, line := range cart.Lines {
		selection, err := encodeSelection(line.Selection)
		if err != nil {
			return err
		}
		_, err = r.q.ExecContext(r.ctx, `
			INSERT INTO cart_lines (id, cart_id, position, sku_id, quantity, selection, variation_key, unit_price_minor, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, line.ID, cart.ID, i, line.SKUID, line.Quantity, selection, line.VariationKey, line.UnitPriceMinor, line.AddedAt.UTC())
		if err != nil {
			return mapError("insert cart line", err)
		}
	}
	return nil
}

func (r *cartRepository) lines(cartID string) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(r.ctx, `
		SELECT id, sku_id, quantity, selection, variation_key, unit_price_minor, added_at
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY position
	`, cartID)
	if err != nil {
		return nil, mapError("select cart lines", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var (
			line      domain.CartLine
			selection []byte
		)
		if err := rows.Scan(&line.ID, &line.SKUID, &line.Quantity, &selection, &line.VariationKey, &line.UnitPriceMinor, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		if line.Selection, err = decodeSelection(selection); err != nil {
			return nil, err
		}
		line.AddedAt = line.AddedAt.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
