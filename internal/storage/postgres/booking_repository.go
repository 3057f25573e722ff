package postgres

import (
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type bookingRepository struct {
	conn
}

func (r *bookingRepository) Create(b domain.Booking) error {
	_, err := r.q.ExecContext(r.ctx, `
		INSERT INTO bookings (
			id, customer_id, service_id, assigned_mechanic_id, status, scheduled_at, completed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		b.ID, b.CustomerID, b.ServiceID, b.AssignedMechanicID, string(b.Status),
		nullTime(b.ScheduledAt), nullTime(b.CompletedAt), b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	return mapError("insert booking", err)
}

func (r *bookingRepository) Get(id string) (domain.Booking, error) {
	var (
		b           domain.Booking
		status      string
		scheduledAt sql.NullTime
		completedAt sql.NullTime
	)
	err := r.q.QueryRowContext(r.ctx, `
		SELECT id, customer_id, service_id, assigned_mechanic_id, status, scheduled_at, completed_at, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`, id).Scan(
		&b.ID, &b.CustomerID, &b.ServiceID, &b.AssignedMechanicID, &status,
		&scheduledAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, domain.NewNotFound(domain.EntityBooking, id)
	}
	if err != nil {
		return domain.Booking{}, mapError("select booking", err)
	}
	b.Status = domain.BookingStatus(status)
	b.ScheduledAt = timeOf(scheduledAt)
	b.CompletedAt = timeOf(completedAt)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

// Save перезаписывает бронь. Брони ведёт внешний модуль, версия не проверяется.
func (r *bookingRepository) Save(b domain.Booking) error {
	res, err := r.q.ExecContext(r.ctx, `
		UPDATE bookings
		SET customer_id = $1,
		    service_id = $2,
		    assigned_mechanic_id = $3,
		    status = $4,
		    scheduled_at = $5,
		    completed_at = $6,
		    updated_at = $7
		WHERE id = $8
	`,
		b.CustomerID, b.ServiceID, b.AssignedMechanicID, string(b.Status),
		nullTime(b.ScheduledAt), nullTime(b.CompletedAt), b.UpdatedAt.UTC(), b.ID,
	)
	if err != nil {
		return mapError("update booking", err)
	}
	return r.checkAffected(res, "bookings", domain.EntityBooking, b.ID)
}

type serviceRepository struct {
	conn
}

func (r *serviceRepository) Create(s domain.WorkshopService) error {
	_, err := r.q.ExecContext(r.ctx, `
		INSERT INTO workshop_services (id, name, category, base_price_minor, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.Name, s.Category, s.BasePriceMinor, s.Active, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return mapError("insert workshop service", err)
}

func (r *serviceRepository) Get(id string) (domain.WorkshopService, error) {
	var s domain.WorkshopService
	err := r.q.QueryRowContext(r.ctx, `
		SELECT id, name, category, base_price_minor, active, created_at, updated_at
		FROM workshop_services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Category, &s.BasePriceMinor, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkshopService{}, domain.NewNotFound(domain.EntityService, id)
	}
	if err != nil {
		return domain.WorkshopService{}, mapError("select workshop service", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

var (
	_ domain.BookingRepository = (*bookingRepository)(nil)
	_ domain.ServiceRepository = (*serviceRepository)(nil)
)
