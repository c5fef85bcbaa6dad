package trip

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/van-notify/internal/models"
)

type captured struct{ sent []models.Notification }

func (c *captured) publish(n models.Notification) { c.sent = append(c.sent, n) }

func (c *captured) forRecipient(id string) []models.Notification {
	var out []models.Notification
	for _, n := range c.sent {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

func newNotifier(t *testing.T) (*Notifier, *captured, *MemoryRoster) {
	t.Helper()
	roster := NewMemoryRoster()
	roster.AddRoute(testRoute())
	rec := &captured{}
	nf := &Notifier{Roster: roster, Routes: roster, Publish: rec.publish, Log: testLogger()}
	return nf, rec, roster
}

func TestRouteStartedFansOutToAllGuardians(t *testing.T) {
	nf, rec, _ := newNotifier(t)
	nf.HandleEvent(models.Event{Kind: models.KindRouteStarted, RouteID: "r1", RouteName: "Morning North", Timestamp: time.Now()})

	if len(rec.sent) != 2 {
		t.Fatalf("expected one notification per guardian, got %d", len(rec.sent))
	}
	seen := map[string]bool{}
	for _, n := range rec.sent {
		seen[n.RecipientID] = true
		if n.ID == "" {
			t.Fatal("notification id must be set")
		}
		if !strings.Contains(n.Message, "Morning North") {
			t.Fatalf("message missing route name: %q", n.Message)
		}
	}
	if !seen["gA"] || !seen["gB"] {
		t.Fatalf("wrong recipients: %v", seen)
	}
}

func TestStudentEventGoesToItsGuardianOnly(t *testing.T) {
	nf, rec, _ := newNotifier(t)
	nf.HandleEvent(models.Event{
		Kind: models.KindVanArrived, RouteID: "r1",
		StudentID: "sA", StudentName: "Ana", Timestamp: time.Now(),
	})

	if got := rec.forRecipient("gA"); len(got) != 1 {
		t.Fatalf("guardian of Ana expected 1 notification, got %d", len(got))
	} else {
		n := got[0]
		if n.Kind != models.KindVanArrived || n.StudentName != "Ana" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	}
	if got := rec.forRecipient("gB"); len(got) != 0 {
		t.Fatalf("guardian of Ben expected nothing, got %d", len(got))
	}
}

func TestEventWithoutGuardianDropped(t *testing.T) {
	nf, rec, _ := newNotifier(t)
	nf.HandleEvent(models.Event{Kind: models.KindEmbarked, StudentID: "unknown", Timestamp: time.Now()})
	if len(rec.sent) != 0 {
		t.Fatalf("expected drop, got %d notifications", len(rec.sent))
	}
}

type fixedGeo struct{ c models.Coord }

func (f *fixedGeo) Geocode(ctx context.Context, address string) (models.Coord, bool) {
	return f.c, true
}

func TestGeocodeEnrichesLocation(t *testing.T) {
	nf, rec, _ := newNotifier(t)
	nf.Geo = &fixedGeo{c: models.Coord{Lat: 1.5, Lon: 2.5}}
	nf.HandleEvent(models.Event{
		Kind: models.KindVanArrived, RouteID: "r1",
		StudentID: "sA", StudentName: "Ana", Address: "1 Oak St", Timestamp: time.Now(),
	})
	if len(rec.sent) != 1 || rec.sent[0].Location == nil {
		t.Fatal("location not enriched")
	}
	if rec.sent[0].Location.Lat != 1.5 {
		t.Fatalf("wrong location: %+v", rec.sent[0].Location)
	}
}

func TestRenderCoversEveryKind(t *testing.T) {
	e := models.Event{RouteName: "Morning North", StudentName: "Ana", SchoolName: "Hillside Primary"}
	kinds := []models.EventKind{
		models.KindRouteStarted, models.KindVanArrived, models.KindEmbarked,
		models.KindAtSchool, models.KindDisembarked, models.KindRouteCompleted,
	}
	for _, k := range kinds {
		e.Kind = k
		title, message := Render(e)
		if title == "" || message == "" {
			t.Fatalf("kind %s rendered empty", k)
		}
		if title == "Trip update" {
			t.Fatalf("kind %s fell through to the generic branch", k)
		}
	}
}
