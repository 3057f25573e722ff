package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

// timelineRepository хранит журнал аудита в памяти (для разработки/тестов).
type timelineRepository struct {
	tx *tx
}

func timelineKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

// Append добавляет событие в журнал агрегата.
func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	key := timelineKey(event.AggregateType, event.AggregateID)
	current := r.tx.store.timeline[key]

	events := make([]domain.TimelineEvent, len(current), len(current)+1)
	copy(events, current)
	events = append(events, event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})

	put(r.tx, r.tx.store.timeline, key, events)
	return nil
}

// List возвращает события агрегата в хронологическом порядке.
func (r *timelineRepository) List(aggregateType, aggregateID string) ([]domain.TimelineEvent, error) {
	events := r.tx.store.timeline[timelineKey(aggregateType, aggregateID)]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
