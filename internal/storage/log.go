package storage

import (
	"sync"
	"time"

	"github.com/example/van-notify/internal/models"
)

// Log is the shared persisted state behind the notification engine: one
// bounded notification log per recipient, one "last seen" watermark per
// recipient, plus engine settings. The mutation discipline is read full
// log, compute new full log, write it back; concurrent writers from two
// processes race and the last write wins. That is an accepted limitation,
// not a consistency guarantee.
type Log interface {
	ReadLog(recipientID string) ([]models.Notification, error)
	WriteLog(recipientID string, entries []models.Notification) error

	Watermark(recipientID string) (time.Time, error)
	SetWatermark(recipientID string, t time.Time) error

	AlertsEnabled() (bool, error)
	SetAlertsEnabled(enabled bool) error
}

// MemoryLog keeps everything in process memory. It is the fallback when no
// database is configured and the workhorse in tests.
type MemoryLog struct {
	mu         sync.RWMutex
	logs       map[string][]models.Notification
	watermarks map[string]time.Time
	alerts     bool
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		logs:       make(map[string][]models.Notification),
		watermarks: make(map[string]time.Time),
		alerts:     true,
	}
}

func (m *MemoryLog) ReadLog(recipientID string) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.logs[recipientID]
	out := make([]models.Notification, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemoryLog) WriteLog(recipientID string, entries []models.Notification) error {
	cp := make([]models.Notification, len(entries))
	copy(cp, entries)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[recipientID] = cp
	return nil
}

func (m *MemoryLog) Watermark(recipientID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermarks[recipientID], nil
}

func (m *MemoryLog) SetWatermark(recipientID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[recipientID] = t
	return nil
}

func (m *MemoryLog) AlertsEnabled() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alerts, nil
}

func (m *MemoryLog) SetAlertsEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = enabled
	return nil
}
