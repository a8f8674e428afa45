package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Contiguous reports whether each slot ends exactly where the next begins.
func Contiguous(run []Slot) bool {
	for i := 1; i < len(run); i++ {
		if !run[i-1].EndTime.Equal(run[i].StartTime) {
			return false
		}
	}
	return true
}

// SlotIDs returns the ids of run in order.
func SlotIDs(run []Slot) []uuid.UUID {
	ids := make([]uuid.UUID, len(run))
	for i, s := range run {
		ids[i] = s.ID
	}
	return ids
}

// DaySlots lays out fixed-width slots between opensAt and closesAt on day.
// Both are offsets from midnight in day's location.
func DaySlots(salonID uuid.UUID, day time.Time, opensAt, closesAt, width time.Duration) ([]Slot, error) {
	if width <= 0 || opensAt < 0 || closesAt > 24*time.Hour || closesAt <= opensAt {
		return nil, errors.Wrapf(ErrInvalidInput, "opening hours %s-%s with %s slots", opensAt, closesAt, width)
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var slots []Slot
	for start := opensAt; start+width <= closesAt; start += width {
		s := midnight.Add(start)
		slots = append(slots, Slot{
			ID:          uuid.New(),
			SalonID:     salonID,
			Date:        midnight,
			StartTime:   s,
			EndTime:     s.Add(width),
			IsAvailable: true,
		})
	}
	return slots, nil
}
