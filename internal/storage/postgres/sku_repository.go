package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const skuColumns = `id, code, name, description, category, brand, image_url, unit_price_minor,
	total_qty, min_stock_level, variation_schema, variation_stock, active, deleted, version, created_at, updated_at`

type skuRepository struct {
	conn
}

func (r *skuRepository) Create(sku domain.SKU) error {
	schema, stock, err := encodeVariation(sku)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(r.ctx, `
		INSERT INTO skus (`+skuColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		sku.ID, sku.Code, sku.Name, sku.Description, sku.Category, sku.Brand, sku.ImageURL, sku.UnitPriceMinor,
		sku.TotalQty, sku.MinStockLevel, schema, stock, sku.Active, sku.Deleted, sku.Version, sku.CreatedAt.UTC(), sku.UpdatedAt.UTC(),
	)
	return mapError("insert sku", err)
}

func (r *skuRepository) Get(id string) (domain.SKU, error) {
	return r.get(id, "")
}

// GetForUpdate блокирует строку SKU до конца транзакции.
func (r *skuRepository) GetForUpdate(id string) (domain.SKU, error) {
	return r.get(id, " FOR UPDATE")
}

func (r *skuRepository) get(id, suffix string) (domain.SKU, error) {
	row := r.q.QueryRowContext(r.ctx, `SELECT `+skuColumns+` FROM skus WHERE id = $1`+suffix, id)
	sku, err := scanSKU(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SKU{}, domain.NewNotFound(domain.EntitySKU, id)
	}
	if err != nil {
		return domain.SKU{}, mapError("select sku", err)
	}
	return sku, nil
}

// Save обновляет SKU при совпадении версии.
func (r *skuRepository) Save(sku domain.SKU) error {
	if err := sku.CheckInvariants(); err != nil {
		return err
	}
	schema, stock, err := encodeVariation(sku)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(r.ctx, `
		UPDATE skus
		SET code = $1,
		    name = $2,
		    description = $3,
		    category = $4,
		    brand = $5,
		    image_url = $6,
		    unit_price_minor = $7,
		    total_qty = $8,
		    min_stock_level = $9,
		    variation_schema = $10,
		    variation_stock = $11,
		    active = $12,
		    deleted = $13,
		    version = version + 1,
		    updated_at = $14
		WHERE id = $15
		  AND version = $16
	`,
		sku.Code, sku.Name, sku.Description, sku.Category, sku.Brand, sku.ImageURL, sku.UnitPriceMinor,
		sku.TotalQty, sku.MinStockLevel, schema, stock, sku.Active, sku.Deleted, sku.UpdatedAt.UTC(),
		sku.ID, sku.Version,
	)
	if err != nil {
		return mapError("update sku", err)
	}
	return r.checkAffected(res, "skus", domain.EntitySKU, sku.ID)
}

func (r *skuRepository) List(filter domain.SKUFilter) ([]domain.SKU, error) {
	where := ` WHERE NOT deleted`
	switch {
	case filter.OnlyDeleted:
		where = ` WHERE deleted`
	case filter.IncludeDeleted:
		where = ``
	}

	rows, err := r.q.QueryContext(r.ctx, `SELECT `+skuColumns+` FROM skus`+where+` ORDER BY name, id`)
	if err != nil {
		return nil, mapError("list skus", err)
	}
	defer rows.Close()

	result := make([]domain.SKU, 0)
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sku row: %w", err)
		}
		result = append(result, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sku rows: %w", err)
	}
	return result, nil
}

func (r *skuRepository) CountReferences(id string) (domain.SKUDependencies, error) {
	var deps domain.SKUDependencies
	var exists bool
	err := r.q.QueryRowContext(r.ctx, `
		SELECT EXISTS (SELECT 1 FROM skus WHERE id = $1),
		       (SELECT COUNT(*) FROM order_lines WHERE sku_id = $1),
		       (SELECT COUNT(*) FROM cart_lines WHERE sku_id = $1),
		       (SELECT COUNT(*) FROM parts_requests WHERE sku_id = $1)
	`, id).Scan(&exists, &deps.OrderLines, &deps.CartLines, &deps.PartsRequests)
	if err != nil {
		return domain.SKUDependencies{}, mapError("count sku references", err)
	}
	if !exists {
		return domain.SKUDependencies{}, domain.NewNotFound(domain.EntitySKU, id)
	}
	return deps, nil
}

// checkAffected отличает отсутствующую строку от конфликта версии.
func (c conn) checkAffected(res sql.Result, table, entity, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var found bool
	if err := c.q.QueryRowContext(c.ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&found); err != nil {
		return mapError("check "+entity+" exists", err)
	}
	if !found {
		return domain.NewNotFound(entity, id)
	}
	return domain.ErrConcurrencyConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSKU(row rowScanner) (domain.SKU, error) {
	var (
		sku    domain.SKU
		schema []byte
		stock  []byte
	)
	if err := row.Scan(
		&sku.ID, &sku.Code, &sku.Name, &sku.Description, &sku.Category, &sku.Brand, &sku.ImageURL, &sku.UnitPriceMinor,
		&sku.TotalQty, &sku.MinStockLevel, &schema, &stock, &sku.Active, &sku.Deleted, &sku.Version, &sku.CreatedAt, &sku.UpdatedAt,
	); err != nil {
		return domain.SKU{}, err
	}
	if err := decodeJSON(schema, &sku.VariationSchema); err != nil {
		return domain.SKU{}, err
	}
	if len(stock) > 0 {
		sku.VariationStock = &domain.VariationStock{}
		if err := decodeJSON(stock, sku.VariationStock); err != nil {
			return domain.SKU{}, err
		}
		if sku.VariationStock.Allocations == nil {
			sku.VariationStock.Allocations = map[string]int{}
		}
	}
	sku.CreatedAt = sku.CreatedAt.UTC()
	sku.UpdatedAt = sku.UpdatedAt.UTC()
	return sku, nil
}

func encodeVariation(sku domain.SKU) ([]byte, []byte, error) {
	schema, err := encodeJSON(sku.VariationSchema, len(sku.VariationSchema) == 0)
	if err != nil {
		return nil, nil, err
	}
	stock, err := encodeJSON(sku.VariationStock, sku.VariationStock == nil)
	if err != nil {
		return nil, nil, err
	}
	return schema, stock, nil
}

var _ domain.SKURepository = (*skuRepository)(nil)
