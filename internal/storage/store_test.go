package storage

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/van-notify/internal/dedup"
	"github.com/example/van-notify/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entry(i int, ts time.Time) models.Notification {
	return models.Notification{
		ID:          fmt.Sprintf("n%d", i),
		RecipientID: "g1",
		Kind:        models.KindEmbarked,
		StudentID:   fmt.Sprintf("s%d", i),
		Message:     fmt.Sprintf("message %d", i),
		Timestamp:   ts,
	}
}

func TestAppendAndListNewestFirst(t *testing.T) {
	s := NewNotificationStore(NewMemoryLog(), dedup.New(0), 10, testLogger())
	base := time.Now()
	// append out of order
	for _, i := range []int{2, 0, 1} {
		if !s.Append(entry(i, base.Add(time.Duration(i)*time.Minute))) {
			t.Fatalf("append %d rejected", i)
		}
	}
	list := s.List("g1")
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Timestamp.After(list[i-1].Timestamp) {
			t.Fatalf("list not newest first at %d", i)
		}
	}
	if list[0].ID != "n2" {
		t.Fatalf("expected n2 first, got %s", list[0].ID)
	}
}

func TestBoundedHistoryEvictsOldest(t *testing.T) {
	const limit = 5
	s := NewNotificationStore(NewMemoryLog(), dedup.New(0), limit, testLogger())
	base := time.Now()
	for i := 0; i < limit+3; i++ {
		s.Append(entry(i, base.Add(time.Duration(i)*time.Minute)))
	}
	list := s.List("g1")
	if len(list) != limit {
		t.Fatalf("expected %d entries, got %d", limit, len(list))
	}
	// the 3 oldest are gone
	for _, n := range list {
		if n.ID == "n0" || n.ID == "n1" || n.ID == "n2" {
			t.Fatalf("oldest entry %s not evicted", n.ID)
		}
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	s := NewNotificationStore(NewMemoryLog(), dedup.New(4*time.Second), 10, testLogger())
	n := entry(1, time.Now())
	if !s.Append(n) {
		t.Fatal("first append rejected")
	}
	if s.Append(n) {
		t.Fatal("second append of same notification accepted")
	}
	// same event, different synthetic id
	redelivered := n
	redelivered.ID = "other-id"
	redelivered.Timestamp = n.Timestamp.Add(time.Second)
	if s.Append(redelivered) {
		t.Fatal("re-delivery with different id accepted")
	}
	if got := len(s.List("g1")); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
}

func TestMarkReadAndDelete(t *testing.T) {
	s := NewNotificationStore(NewMemoryLog(), dedup.New(0), 10, testLogger())
	base := time.Now()
	for i := 0; i < 3; i++ {
		s.Append(entry(i, base.Add(time.Duration(i)*time.Second)))
	}
	s.MarkRead("n1", "g1")
	for _, n := range s.List("g1") {
		if n.ID == "n1" && !n.Read {
			t.Fatal("n1 not marked read")
		}
		if n.ID != "n1" && n.Read {
			t.Fatalf("%s unexpectedly read", n.ID)
		}
	}

	s.Delete("n0", "g1")
	if got := len(s.List("g1")); got != 2 {
		t.Fatalf("expected 2 after delete, got %d", got)
	}
	s.DeleteMany([]string{"n1", "n2", "missing"}, "g1")
	if got := len(s.List("g1")); got != 0 {
		t.Fatalf("expected empty after deleteMany, got %d", got)
	}
}

func TestHydrateFromPersistedLog(t *testing.T) {
	backend := NewMemoryLog()
	base := time.Now()
	if err := backend.WriteLog("g1", []models.Notification{entry(0, base), entry(1, base.Add(time.Second))}); err != nil {
		t.Fatal(err)
	}
	s := NewNotificationStore(backend, dedup.New(0), 10, testLogger())
	list := s.List("g1")
	if len(list) != 2 {
		t.Fatalf("expected 2 hydrated entries, got %d", len(list))
	}
	if list[0].ID != "n1" {
		t.Fatalf("hydrated list not newest first: %s", list[0].ID)
	}
}

type failingLog struct{ *MemoryLog }

func (f *failingLog) WriteLog(recipientID string, entries []models.Notification) error {
	return fmt.Errorf("disk full")
}

func TestPersistenceFailureSwallowed(t *testing.T) {
	s := NewNotificationStore(&failingLog{NewMemoryLog()}, dedup.New(0), 10, testLogger())
	if !s.Append(entry(0, time.Now())) {
		t.Fatal("append must succeed in memory despite persistence failure")
	}
	if got := len(s.List("g1")); got != 1 {
		t.Fatalf("in-memory view must stay authoritative, got %d", got)
	}
}
