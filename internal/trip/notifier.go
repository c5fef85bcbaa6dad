package trip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/van-notify/internal/models"
)

// Geocoder resolves an address to coordinates. Best effort and
// non-authoritative: a miss leaves the notification's location empty.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coord, bool)
}

// Notifier renders each trip event into one notification per intended
// recipient and hands them to the publish pipeline.
type Notifier struct {
	Roster  GuardianFinder
	Routes  RouteDirectory
	Geo     Geocoder
	Publish func(models.Notification)
	Log     *slog.Logger
}

// HandleEvent is the Machine's sink.
func (nf *Notifier) HandleEvent(e models.Event) {
	recipients := nf.recipients(e)
	if len(recipients) == 0 {
		nf.Log.Warn("event has no recipients", "kind", string(e.Kind), "student", e.StudentID)
		return
	}

	title, message := Render(e)
	loc := e.Location
	if loc == nil && e.Address != "" && nf.Geo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if c, ok := nf.Geo.Geocode(ctx, e.Address); ok {
			loc = &c
		}
		cancel()
	}

	for _, rcpt := range recipients {
		nf.Publish(models.Notification{
			ID:          uuid.NewString(),
			RecipientID: rcpt,
			Kind:        e.Kind,
			Title:       title,
			Message:     message,
			Timestamp:   e.Timestamp,
			StudentID:   e.StudentID,
			StudentName: e.StudentName,
			Location:    loc,
		})
	}
}

func (nf *Notifier) recipients(e models.Event) []string {
	switch e.Kind {
	case models.KindRouteStarted, models.KindRouteCompleted:
		return nf.Routes.RouteGuardians(e.RouteID)
	default:
		g, ok := nf.Roster.FindGuardianForStudent(e.StudentID)
		if !ok {
			return nil
		}
		return []string{g}
	}
}

// Render produces the user-facing title and message for an event. The
// switch is exhaustive over the closed kind set; an unknown kind can only
// come from a version skew between processes and renders generically.
func Render(e models.Event) (title, message string) {
	switch e.Kind {
	case models.KindRouteStarted:
		return "Route started", fmt.Sprintf("The van has started route %s.", e.RouteName)
	case models.KindVanArrived:
		return "Van arrived", fmt.Sprintf("The van has arrived at the pickup point for %s.", e.StudentName)
	case models.KindEmbarked:
		return "On board", fmt.Sprintf("%s has boarded the van.", e.StudentName)
	case models.KindAtSchool:
		return "Arrived at school", fmt.Sprintf("%s has arrived at %s.", e.StudentName, e.SchoolName)
	case models.KindDisembarked:
		return "Dropped off", fmt.Sprintf("%s has been dropped off at home.", e.StudentName)
	case models.KindRouteCompleted:
		return "Route completed", fmt.Sprintf("The van has completed route %s.", e.RouteName)
	default:
		return "Trip update", fmt.Sprintf("Update for %s.", e.StudentName)
	}
}
