package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// Коды ошибок PostgreSQL, которые отображаются на доменные ошибки.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// constraintPendingRequest — частичный уникальный индекс PENDING-заявок на пару (бронь, SKU).
const constraintPendingRequest = "parts_requests_pending_uniq"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

// mapError переводит ошибку драйвера в доменную, сохраняя исходную в цепочке.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			if pgErr.ConstraintName == constraintPendingRequest {
				return fmt.Errorf("%s: %w", op, domain.ErrDuplicateRequest)
			}
			return fmt.Errorf("%s: %w (%s)", op, domain.ErrAlreadyExists, pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// encodeJSON кодирует значение в JSONB; пустые значения сохраняются как NULL.
func encodeJSON(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func encodeSelection(selection map[string]string) ([]byte, error) {
	return encodeJSON(selection, len(selection) == 0)
}

func decodeSelection(data []byte) (map[string]string, error) {
	var selection map[string]string
	if err := decodeJSON(data, &selection); err != nil {
		return nil, err
	}
	if len(selection) == 0 {
		return nil, nil
	}
	return selection, nil
}

// receiptColumn — JSONB-представление чека.
type receiptColumn struct {
	FileURL             string    `json:"file_url"`
	DeclaredAmountMinor int64     `json:"declared_amount_minor"`
	Notes               string    `json:"notes,omitempty"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

func encodeReceipt(r *domain.Receipt) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return encodeJSON(receiptColumn{
		FileURL:             r.FileURL,
		DeclaredAmountMinor: r.DeclaredAmountMinor,
		Notes:               r.Notes,
		SubmittedAt:         r.SubmittedAt.UTC(),
	}, false)
}

func decodeReceipt(data []byte) (*domain.Receipt, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var col receiptColumn
	if err := decodeJSON(data, &col); err != nil {
		return nil, err
	}
	return &domain.Receipt{
		FileURL:             col.FileURL,
		DeclaredAmountMinor: col.DeclaredAmountMinor,
		Notes:               col.Notes,
		SubmittedAt:         col.SubmittedAt.UTC(),
	}, nil
}
