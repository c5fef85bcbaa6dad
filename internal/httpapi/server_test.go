package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/van-notify/internal/config"
	"github.com/example/van-notify/internal/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		PollInterval:  time.Minute,
		DedupWindow:   4 * time.Second,
		HistoryLimit:  50,
		TripRetention: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func listFor(t *testing.T, s *Server, recipient string) []models.Notification {
	t.Helper()
	w := doJSON(t, s, http.MethodGet, "/api/v1/notifications/"+recipient, nil)
	if w.Code != 200 {
		t.Fatalf("list returned %d", w.Code)
	}
	var out []models.Notification
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func seedRoute() models.Route {
	return models.Route{
		ID:   "r1",
		Name: "Morning North",
		Students: []models.Student{
			{ID: "sA", Name: "Ana", GuardianID: "gA", Direction: models.ToSchool},
			{ID: "sB", Name: "Ben", GuardianID: "gB", Direction: models.ToSchool},
		},
	}
}

func TestTripScenarioVanArrivedForOneStudent(t *testing.T) {
	s := newTestServer(t)

	if w := doJSON(t, s, http.MethodPost, "/api/v1/trips/start", seedRoute()); w.Code != 200 {
		t.Fatalf("start returned %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, s, http.MethodPost, "/api/v1/trips/students/sA/van-arrived", nil); w.Code != 204 {
		t.Fatalf("van-arrived returned %d", w.Code)
	}

	listA := listFor(t, s, "gA")
	if len(listA) == 0 || listA[0].Kind != models.KindVanArrived || listA[0].StudentName != "Ana" {
		t.Fatalf("guardian of Ana: expected newest vanArrived for Ana, got %+v", listA)
	}
	for _, n := range listFor(t, s, "gB") {
		if n.Kind == models.KindVanArrived {
			t.Fatal("guardian of Ben must not see Ana's vanArrived")
		}
	}
}

func TestOutOfOrderTransitionIsSilentNoop(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/api/v1/trips/start", seedRoute())

	// sA is waiting; embark is out of order and must be swallowed
	if w := doJSON(t, s, http.MethodPost, "/api/v1/trips/students/sA/embarked", nil); w.Code != 204 {
		t.Fatalf("expected 204 no-op, got %d", w.Code)
	}
	for _, n := range listFor(t, s, "gA") {
		if n.Kind == models.KindEmbarked {
			t.Fatal("rejected transition must not notify")
		}
	}
}

func TestBatchEmbarkEndpoint(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/api/v1/trips/start", seedRoute())
	doJSON(t, s, http.MethodPost, "/api/v1/trips/students/sA/van-arrived", nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/trips/students/embarked", map[string][]string{"student_ids": {"sA", "sB"}})
	if w.Code != 200 {
		t.Fatalf("batch returned %d", w.Code)
	}
	var out map[string]int
	json.NewDecoder(w.Body).Decode(&out)
	if out["accepted"] != 1 {
		t.Fatalf("expected 1 accepted, got %d", out["accepted"])
	}
}

func TestNotificationCRUDSurface(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/api/v1/trips/start", seedRoute())
	doJSON(t, s, http.MethodPost, "/api/v1/trips/students/sA/van-arrived", nil)

	list := listFor(t, s, "gA")
	if len(list) == 0 {
		t.Fatal("expected notifications")
	}
	id := list[0].ID

	if w := doJSON(t, s, http.MethodPost, "/api/v1/notifications/gA/"+id+"/read", nil); w.Code != 204 {
		t.Fatalf("mark read returned %d", w.Code)
	}
	for _, n := range listFor(t, s, "gA") {
		if n.ID == id && !n.Read {
			t.Fatal("notification not marked read")
		}
	}

	if w := doJSON(t, s, http.MethodDelete, "/api/v1/notifications/gA/"+id, nil); w.Code != 204 {
		t.Fatalf("delete returned %d", w.Code)
	}
	for _, n := range listFor(t, s, "gA") {
		if n.ID == id {
			t.Fatal("notification not deleted")
		}
	}
}

func TestCurrentTripSnapshot(t *testing.T) {
	s := newTestServer(t)
	if w := doJSON(t, s, http.MethodGet, "/api/v1/trips/current", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no trip, got %d", w.Code)
	}
	doJSON(t, s, http.MethodPost, "/api/v1/trips/start", seedRoute())
	w := doJSON(t, s, http.MethodGet, "/api/v1/trips/current", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var trip models.Trip
	json.NewDecoder(w.Body).Decode(&trip)
	if trip.Status != models.TripInProgress || len(trip.Students) != 2 {
		t.Fatalf("unexpected snapshot: %+v", trip)
	}
}

type countingPlayer struct{ plays atomic.Int32 }

func (p *countingPlayer) Play(ctx context.Context) error {
	p.plays.Add(1)
	return nil
}

func waitForPlays(t *testing.T, p *countingPlayer, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.plays.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d alert plays, got %d", want, p.plays.Load())
}

func TestAlertRingsForEveryDeliveryPath(t *testing.T) {
	s := newTestServer(t)
	fake := &countingPlayer{}
	s.alerts.Primary = fake
	s.alerts.Fallback = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// Reconciliation path: the entry came from the persisted log, not a
	// local publish, the way a tab that missed the broadcast catches up.
	reconciled := models.Notification{
		ID:          "rn1",
		RecipientID: "gA",
		Kind:        models.KindVanArrived,
		Message:     "the van has arrived",
		Timestamp:   time.Now(),
	}
	if !s.router.Reconcile(reconciled) {
		t.Fatal("reconcile did not deliver")
	}
	waitForPlays(t, fake, 1)

	// Local publish path still rings too.
	s.router.Publish(models.Notification{
		ID:          "pn1",
		RecipientID: "gA",
		Kind:        models.KindEmbarked,
		Message:     "on board",
		Timestamp:   time.Now(),
	})
	waitForPlays(t, fake, 2)
}

func TestNotificationStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	s.router.Publish(models.Notification{ID: "a1", RecipientID: "gA", Kind: models.KindEmbarked, Message: "on board", Timestamp: time.Now()})
	s.router.Publish(models.Notification{ID: "a2", RecipientID: "gA", Kind: models.KindAtSchool, Message: "arrived", Timestamp: time.Now().Add(time.Second)})
	doJSON(t, s, http.MethodPost, "/api/v1/notifications/gA/a1/read", nil)

	mark := time.Now().Add(time.Minute)
	if err := s.backend.SetWatermark("gA", mark); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, s, http.MethodGet, "/api/v1/notifications/gA/status", nil)
	if w.Code != 200 {
		t.Fatalf("status returned %d", w.Code)
	}
	var got notificationStatus
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 || got.Unread != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if !got.LastSeen.Equal(mark) {
		t.Fatalf("expected last_seen %v, got %v", mark, got.LastSeen)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/notifications/gA", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/gA", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}
