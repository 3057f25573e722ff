package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const partsRequestColumns = `id, booking_id, mechanic_id, sku_id, quantity, selection, variation_key,
	reason, status, unit_price_minor, reviewed_by, reviewed_at, requested_at, version`

type partsRequestRepository struct {
	conn
}

// Create полагается на частичный уникальный индекс: вторая PENDING-заявка даёт ErrDuplicateRequest.
func (r *partsRequestRepository) Create(req domain.PartsRequest) error {
	selection, err := encodeSelection(req.Selection)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(r.ctx, `
		INSERT INTO parts_requests (`+partsRequestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		req.ID, req.BookingID, req.MechanicID, req.SKUID, req.Quantity, selection, req.VariationKey,
		req.Reason, string(req.Status), req.UnitPriceMinor, req.ReviewedBy, nullTime(req.ReviewedAt),
		req.RequestedAt.UTC(), req.Version,
	)
	return mapError("insert parts request", err)
}

func (r *partsRequestRepository) Get(id string) (domain.PartsRequest, error) {
	return r.get(id, "")
}

func (r *partsRequestRepository) GetForUpdate(id string) (domain.PartsRequest, error) {
	return r.get(id, " FOR UPDATE")
}

func (r *partsRequestRepository) get(id, suffix string) (domain.PartsRequest, error) {
	row := r.q.QueryRowContext(r.ctx, `SELECT `+partsRequestColumns+` FROM parts_requests WHERE id = $1`+suffix, id)
	req, err := scanPartsRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PartsRequest{}, domain.NewNotFound(domain.EntityPartsRequest, id)
	}
	if err != nil {
		return domain.PartsRequest{}, mapError("select parts request", err)
	}
	return req, nil
}

func (r *partsRequestRepository) Save(req domain.PartsRequest) error {
	res, err := r.q.ExecContext(r.ctx, `
		UPDATE parts_requests
		SET status = $1,
		    unit_price_minor = $2,
		    reviewed_by = $3,
		    reviewed_at = $4,
		    reason = $5,
		    version = version + 1
		WHERE id = $6
		  AND version = $7
	`,
		string(req.Status), req.UnitPriceMinor, req.ReviewedBy, nullTime(req.ReviewedAt), req.Reason,
		req.ID, req.Version,
	)
	if err != nil {
		return mapError("update parts request", err)
	}
	return r.checkAffected(res, "parts_requests", domain.EntityPartsRequest, req.ID)
}

// List возвращает заявки по фильтру, новые первыми.
func (r *partsRequestRepository) List(filter domain.PartsRequestFilter) ([]domain.PartsRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("booking_id", filter.BookingID)
	add("mechanic_id", filter.MechanicID)
	add("status", string(filter.Status))

	query := `SELECT ` + partsRequestColumns + ` FROM parts_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY requested_at DESC, id DESC`

	rows, err := r.q.QueryContext(r.ctx, query, args...)
	if err != nil {
		return nil, mapError("list parts requests", err)
	}
	defer rows.Close()

	result := make([]domain.PartsRequest, 0)
	for rows.Next() {
		req, err := scanPartsRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parts request row: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts request rows: %w", err)
	}
	return result, nil
}

func (r *partsRequestRepository) HasPending(bookingID, skuID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(r.ctx, `
		SELECT EXISTS (
			SELECT 1 FROM parts_requests
			WHERE booking_id = $1 AND sku_id = $2 AND status = $3
		)
	`, bookingID, skuID, string(domain.PartsRequestPending)).Scan(&exists)
	if err != nil {
		return false, mapError("check pending parts request", err)
	}
	return exists, nil
}

func scanPartsRequest(row rowScanner) (domain.PartsRequest, error) {
	var (
		req        domain.PartsRequest
		selection  []byte
		status     string
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&req.ID, &req.BookingID, &req.MechanicID, &req.SKUID, &req.Quantity, &selection, &req.VariationKey,
		&req.Reason, &status, &req.UnitPriceMinor, &req.ReviewedBy, &reviewedAt, &req.RequestedAt, &req.Version,
	); err != nil {
		return domain.PartsRequest{}, err
	}
	sel, err := decodeSelection(selection)
	if err != nil {
		return domain.PartsRequest{}, err
	}
	req.Selection = sel
	req.Status = domain.PartsRequestStatus(status)
	req.ReviewedAt = timeOf(reviewedAt)
	req.RequestedAt = req.RequestedAt.UTC()
	return req, nil
}

var _ domain.PartsRequestRepository = (*partsRequestRepository)(nil)
