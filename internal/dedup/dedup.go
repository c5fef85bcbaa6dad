package dedup

import (
	"time"

	"github.com/example/van-notify/internal/models"
)

// DefaultWindow is the heuristic match window for events that arrive through
// different channels with distinct synthetic ids. Tunable, not load-bearing.
const DefaultWindow = 4 * time.Second

// Deduplicator decides whether an inbound notification is a re-delivery of
// an event already present in a recipient's log.
type Deduplicator struct {
	Window time.Duration
}

func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{Window: window}
}

// IsDuplicate reports whether candidate matches an existing entry, either by
// id or by the content heuristic. The heuristic always keys on StudentID so
// two different students embarking at the same instant never collapse.
func (d *Deduplicator) IsDuplicate(candidate models.Notification, existing []models.Notification) bool {
	for _, n := range existing {
		if n.ID == candidate.ID {
			return true
		}
		if sameEvent(n, candidate, d.Window) {
			return true
		}
	}
	return false
}

func sameEvent(a, b models.Notification, window time.Duration) bool {
	if a.RecipientID != b.RecipientID || a.Kind != b.Kind {
		return false
	}
	if a.StudentID != b.StudentID || a.Message != b.Message {
		return false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}
