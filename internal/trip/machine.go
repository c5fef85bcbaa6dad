package trip

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/observability"
)

var (
	ErrNoActiveTrip = errors.New("no active trip")
	ErrTripActive   = errors.New("a trip is already in progress")

	// ErrInvalidTransition marks a trip-state call made out of order. The
	// caller logs and ignores it; it is never a user-facing failure.
	ErrInvalidTransition = errors.New("invalid transition")
)

// DefaultRetention keeps a finished trip visible long enough for
// "completed" to render before the trip is cleared.
const DefaultRetention = 30 * time.Second

// Machine owns the lifecycle of the active trip. All mutation goes through
// its transition calls; each accepted transition emits exactly one Event
// through the sink.
type Machine struct {
	mu       sync.Mutex
	trip     *models.Trip
	students map[string]models.Student
	route    models.Route
	clear    *time.Timer

	sink      func(models.Event)
	retention time.Duration
	lg        *slog.Logger
}

func NewMachine(sink func(models.Event), retention time.Duration, lg *slog.Logger) *Machine {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Machine{sink: sink, retention: retention, lg: lg}
}

// StartTrip creates a fresh trip for the route with every student waiting
// and emits a routeStarted event.
func (m *Machine) StartTrip(route models.Route) (models.Trip, error) {
	m.mu.Lock()
	if m.trip != nil && m.trip.Status == models.TripInProgress {
		m.mu.Unlock()
		return models.Trip{}, ErrTripActive
	}
	if m.clear != nil {
		m.clear.Stop()
		m.clear = nil
	}

	states := make([]models.TripStudentState, 0, len(route.Students))
	students := make(map[string]models.Student, len(route.Students))
	for _, s := range route.Students {
		if _, dup := students[s.ID]; dup {
			// student ids are unique within a trip
			continue
		}
		students[s.ID] = s
		states = append(states, models.TripStudentState{StudentID: s.ID, Status: models.StatusWaiting, Direction: s.Direction})
	}

	m.trip = &models.Trip{
		ID:        uuid.NewString(),
		RouteID:   route.ID,
		StartedAt: time.Now(),
		Status:    models.TripInProgress,
		Students:  states,
	}
	m.students = students
	m.route = route

	started := *m.trip
	e := m.eventLocked(models.Event{Kind: models.KindRouteStarted})
	m.mu.Unlock()

	m.emit(e)
	return started, nil
}

func (m *Machine) MarkVanArrived(studentID string) error {
	return m.transition(studentID, models.StatusWaiting, func(st *models.TripStudentState) models.EventKind {
		st.Status = models.StatusVanArrived
		return models.KindVanArrived
	})
}

func (m *Machine) MarkEmbarked(studentID string) error {
	return m.transition(studentID, models.StatusVanArrived, func(st *models.TripStudentState) models.EventKind {
		st.Status = models.StatusEmbarked
		return models.KindEmbarked
	})
}

// MarkManyEmbarked applies the embark guard per student: students in the
// wrong state are skipped, each accepted student emits its own event.
func (m *Machine) MarkManyEmbarked(studentIDs []string) int {
	accepted := 0
	for _, id := range studentIDs {
		if err := m.MarkEmbarked(id); err != nil {
			continue
		}
		accepted++
	}
	return accepted
}

// MarkArrived moves an embarked student to the terminal state for their
// direction: atSchool when riding to school, disembarked when riding home.
func (m *Machine) MarkArrived(studentID string) error {
	return m.transition(studentID, models.StatusEmbarked, func(st *models.TripStudentState) models.EventKind {
		if st.Direction == models.ToHome {
			st.Status = models.StatusDisembarked
			return models.KindDisembarked
		}
		st.Status = models.StatusAtSchool
		return models.KindAtSchool
	})
}

// FinishTrip completes the trip, emits routeCompleted, and schedules the
// trip to be cleared after the retention delay.
func (m *Machine) FinishTrip() error {
	m.mu.Lock()
	if m.trip == nil || m.trip.Status != models.TripInProgress {
		m.mu.Unlock()
		return ErrNoActiveTrip
	}
	m.trip.Status = models.TripCompleted
	e := m.eventLocked(models.Event{Kind: models.KindRouteCompleted})

	m.clear = time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.trip != nil && m.trip.Status == models.TripCompleted {
			m.trip = nil
			m.students = nil
		}
	})
	m.mu.Unlock()

	m.emit(e)
	return nil
}

// Snapshot returns a copy of the active trip, if any.
func (m *Machine) Snapshot() (models.Trip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return models.Trip{}, false
	}
	cp := *m.trip
	cp.Students = append([]models.TripStudentState(nil), m.trip.Students...)
	return cp, true
}

func (m *Machine) transition(studentID string, want models.StudentStatus, apply func(*models.TripStudentState) models.EventKind) error {
	m.mu.Lock()
	if m.trip == nil || m.trip.Status != models.TripInProgress {
		m.mu.Unlock()
		return ErrNoActiveTrip
	}
	for i := range m.trip.Students {
		st := &m.trip.Students[i]
		if st.StudentID != studentID {
			continue
		}
		if st.Status != want {
			// Copy before unlocking: st points into the live slice and a
			// concurrent accepted transition may mutate it.
			status := st.Status
			m.mu.Unlock()
			observability.InvalidTransitions.Inc()
			m.lg.Warn("transition rejected", "student", studentID, "status", string(status), "want", string(want))
			return fmt.Errorf("%w: student %s is %s, want %s", ErrInvalidTransition, studentID, status, want)
		}
		kind := apply(st)
		e := m.eventLocked(models.Event{Kind: kind, StudentID: studentID})
		m.mu.Unlock()

		m.emit(e)
		return nil
	}
	m.mu.Unlock()
	observability.InvalidTransitions.Inc()
	m.lg.Warn("transition rejected", "student", studentID, "error", "not on trip")
	return fmt.Errorf("%w: student %s not on trip", ErrInvalidTransition, studentID)
}

// eventLocked fills in trip/route/student context. Caller holds m.mu; the
// event is handed to the sink only after the lock is released so subscriber
// callbacks can call back into the machine.
func (m *Machine) eventLocked(e models.Event) models.Event {
	e.TripID = m.trip.ID
	e.RouteID = m.route.ID
	e.RouteName = m.route.Name
	e.Timestamp = time.Now()
	if s, ok := m.students[e.StudentID]; ok {
		e.StudentName = s.Name
		e.SchoolName = s.SchoolName
		e.Direction = s.Direction
		e.Address = s.PickupAddress
	}
	return e
}

func (m *Machine) emit(e models.Event) {
	if m.sink != nil {
		m.sink(e)
	}
}
