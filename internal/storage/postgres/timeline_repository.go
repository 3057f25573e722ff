package postgres

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

type timelineRepository struct {
	conn
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.q.ExecContext(r.ctx, `
		INSERT INTO timeline_events (aggregate_type, aggregate_id, type, reason, occurred)
		VALUES ($1,$2,$3,$4,$5)
	`, event.AggregateType, event.AggregateID, event.Type, event.Reason, event.Occurred.UTC()); err != nil {
		return mapError("append timeline event", err)
	}
	return nil
}

// List возвращает журнал агрегата в хронологическом порядке.
func (r *timelineRepository) List(aggregateType, aggregateID string) ([]domain.TimelineEvent, error) {
	rows, err := r.q.QueryContext(r.ctx, `
		SELECT aggregate_type, aggregate_id, type, reason, occurred
		FROM timeline_events
		WHERE aggregate_type = $1
		  AND aggregate_id = $2
		ORDER BY occurred ASC, id ASC
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, mapError("list timeline events", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.AggregateType, &event.AggregateID, &event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
