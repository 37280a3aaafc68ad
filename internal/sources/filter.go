package sources

import (
	"time"

	"newswire/internal/types"
)

type TimeFilter struct {
	cutoff time.Time
	name   string
}

func NewTimeFilter(name string, cutoff time.Time) *TimeFilter {
	return &TimeFilter{cutoff: cutoff, name: name}
}

// FilterAfter rejects records not published strictly after the cutoff.
// A zero publication time is rejected as well.
func (t *TimeFilter) FilterAfter(itemTime time.Time, itemID string) error {
	if itemTime.IsZero() {
		return types.NewFilteredError(t.name, itemID, "missing publication time")
	}
	if !itemTime.After(t.cutoff) {
		return types.NewFilteredError(t.name, itemID, "published at or before lower bound").
			WithDetail("published_at", itemTime).
			WithDetail("after", t.cutoff)
	}
	return nil
}
