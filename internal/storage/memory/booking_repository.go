package memory

import "github.com/vladislavdragonenkov/workshop/internal/domain"

type bookingRepository struct {
	tx *tx
}

func (r *bookingRepository) Create(booking domain.Booking) error {
	s := r.tx.store
	if _, exists := s.bookings[booking.ID]; exists {
		return domain.ErrAlreadyExists
	}
	put(r.tx, s.bookings, booking.ID, booking)
	return nil
}

func (r *bookingRepository) Get(id string) (domain.Booking, error) {
	booking, ok := r.tx.store.bookings[id]
	if !ok {
		return domain.Booking{}, domain.NewNotFound(domain.EntityBooking, id)
	}
	return booking, nil
}

func (r *bookingRepository) Save(booking domain.Booking) error {
	s := r.tx.store
	if _, ok := s.bookings[booking.ID]; !ok {
		return domain.NewNotFound(domain.EntityBooking, booking.ID)
	}
	put(r.tx, s.bookings, booking.ID, booking)
	return nil
}

type serviceRepository struct {
	tx *tx
}

func (r *serviceRepository) Create(service domain.WorkshopService) error {
	s := r.tx.store
	if _, exists := s.services[service.ID]; exists {
		return domain.ErrAlreadyExists
	}
	put(r.tx, s.services, service.ID, service)
	return nil
}

func (r *serviceRepository) Get(id string) (domain.WorkshopService, error) {
	service, ok := r.tx.store.services[id]
	if !ok {
		return domain.WorkshopService{}, domain.NewNotFound(domain.EntityService, id)
	}
	return service, nil
}

var (
	_ domain.BookingRepository = (*bookingRepository)(nil)
	_ domain.ServiceRepository = (*serviceRepository)(nil)
)
