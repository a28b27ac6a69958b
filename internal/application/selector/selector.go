// Package selector picks the slot to report for a watch.
package selector

import (
	"time"

	"github.com/appointment-watch/internal/domain"
)

// SelectEarliest returns the earliest slot dated no later than now+maxDays.
// Ties on date fall back to start time, then end time, key and capacity, so the
// result does not depend on the order of slots. Empty input yields false.
func SelectEarliest(slots []domain.Slot, maxDays int, now time.Time) (domain.Slot, bool) {
	cutoff := now.AddDate(0, 0, maxDays)
	var best domain.Slot
	found := false
	for _, s := range slots {
		if s.Date.After(cutoff) {
			continue
		}
		if !found || less(s, best) {
			best, found = s, true
		}
	}
	return best, found
}

func less(a, b domain.Slot) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End < b.End
	}
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Capacity < b.Capacity
}
