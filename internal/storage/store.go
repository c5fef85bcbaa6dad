package storage

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/example/van-notify/internal/dedup"
	"github.com/example/van-notify/internal/models"
)

// DefaultHistoryLimit bounds each recipient's notification history.
// Notifications are best-effort history, not an audit log.
const DefaultHistoryLimit = 50

// NotificationStore is the per-recipient bounded, ordered notification log.
// The in-memory view is authoritative for the process lifetime; every
// mutation also writes the full updated log through the Log backend, with
// persistence failures logged and swallowed.
type NotificationStore struct {
	mu     sync.Mutex
	byRcpt map[string][]models.Notification // newest first
	loaded map[string]bool

	log   Log
	dedup *dedup.Deduplicator
	limit int
	lg    *slog.Logger
}

func NewNotificationStore(backend Log, d *dedup.Deduplicator, limit int, lg *slog.Logger) *NotificationStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if d == nil {
		d = dedup.New(0)
	}
	return &NotificationStore{
		byRcpt: make(map[string][]models.Notification),
		loaded: make(map[string]bool),
		log:    backend,
		dedup:  d,
		limit:  limit,
		lg:     lg,
	}
}

// Append stores n for its recipient unless the deduplicator rejects it as a
// re-delivery of an event already present. Returns false for duplicates.
func (s *NotificationStore) Append(n models.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hydrate(n.RecipientID)
	entries := s.byRcpt[n.RecipientID]
	if s.dedup.IsDuplicate(n, entries) {
		return false
	}

	entries = append([]models.Notification{n}, entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}
	s.byRcpt[n.RecipientID] = entries
	s.persist(n.RecipientID, entries)
	return true
}

// List returns the recipient's notifications newest first.
func (s *NotificationStore) List(recipientID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(recipientID)
	entries := s.byRcpt[recipientID]
	out := make([]models.Notification, len(entries))
	copy(out, entries)
	return out
}

func (s *NotificationStore) MarkRead(id, recipientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(recipientID)
	entries := s.byRcpt[recipientID]
	changed := false
	for i := range entries {
		if entries[i].ID == id && !entries[i].Read {
			entries[i].Read = true
			changed = true
		}
	}
	if changed {
		s.persist(recipientID, entries)
	}
}

func (s *NotificationStore) MarkAllRead(recipientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(recipientID)
	entries := s.byRcpt[recipientID]
	changed := false
	for i := range entries {
		if !entries[i].Read {
			entries[i].Read = true
			changed = true
		}
	}
	if changed {
		s.persist(recipientID, entries)
	}
}

func (s *NotificationStore) Delete(id, recipientID string) {
	s.DeleteMany([]string{id}, recipientID)
}

func (s *NotificationStore) DeleteMany(ids []string, recipientID string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrate(recipientID)
	entries := s.byRcpt[recipientID]
	kept := entries[:0]
	for _, n := range entries {
		if !drop[n.ID] {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(entries) {
		return
	}
	s.byRcpt[recipientID] = kept
	s.persist(recipientID, kept)
}

// hydrate loads the persisted log on first touch of a recipient. A failed or
// malformed read is treated as an empty log; the process continues in memory.
// Caller holds s.mu.
func (s *NotificationStore) hydrate(recipientID string) {
	if s.loaded[recipientID] {
		return
	}
	s.loaded[recipientID] = true
	if s.log == nil {
		return
	}
	entries, err := s.log.ReadLog(recipientID)
	if err != nil {
		s.lg.Warn("notification log read failed", "recipient", recipientID, "error", err)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}
	s.byRcpt[recipientID] = entries
}

// Caller holds s.mu.
func (s *NotificationStore) persist(recipientID string, entries []models.Notification) {
	if s.log == nil {
		return
	}
	cp := make([]models.Notification, len(entries))
	copy(cp, entries)
	if err := s.log.WriteLog(recipientID, cp); err != nil {
		s.lg.Warn("notification log write failed", "recipient", recipientID, "error", err)
	}
}
