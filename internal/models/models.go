package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DropoffDirection says which way a student travels on the route.
type DropoffDirection string

const (
	ToSchool DropoffDirection = "to_school"
	ToHome   DropoffDirection = "to_home"
)

type Student struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	GuardianID    string           `json:"guardian_id"`
	PickupAddress string           `json:"pickup_address"`
	SchoolID      string           `json:"school_id"`
	SchoolName    string           `json:"school_name"`
	Direction     DropoffDirection `json:"direction"`
}

type Route struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Students []Student `json:"students"`
}

// StudentStatus is the per-student position in the trip lifecycle.
// Transitions are strictly ordered; see trip.Machine.
type StudentStatus string

const (
	StatusWaiting     StudentStatus = "waiting"
	StatusVanArrived  StudentStatus = "van_arrived"
	StatusEmbarked    StudentStatus = "embarked"
	StatusAtSchool    StudentStatus = "at_school"
	StatusDisembarked StudentStatus = "disembarked"
)

type TripStatus string

const (
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
)

type TripStudentState struct {
	StudentID string           `json:"student_id"`
	Status    StudentStatus    `json:"status"`
	Direction DropoffDirection `json:"direction"`
}

type Trip struct {
	ID        string             `json:"id"`
	RouteID   string             `json:"route_id"`
	StartedAt time.Time          `json:"started_at"`
	Status    TripStatus         `json:"status"`
	Students  []TripStudentState `json:"students"`
}

// EventKind is the closed set of trip event types a transition can emit.
type EventKind string

const (
	KindRouteStarted   EventKind = "route_started"
	KindVanArrived     EventKind = "van_arrived"
	KindEmbarked       EventKind = "embarked"
	KindAtSchool       EventKind = "at_school"
	KindDisembarked    EventKind = "disembarked"
	KindRouteCompleted EventKind = "route_completed"
)

// Event is the ephemeral value a trip transition produces. It exists only
// long enough to be rendered into a Notification and routed.
type Event struct {
	Kind        EventKind        `json:"kind"`
	TripID      string           `json:"trip_id"`
	RouteID     string           `json:"route_id"`
	RouteName   string           `json:"route_name,omitempty"`
	Address     string           `json:"address,omitempty"`
	StudentID   string           `json:"student_id,omitempty"`
	StudentName string           `json:"student_name,omitempty"`
	Direction   DropoffDirection `json:"direction,omitempty"`
	SchoolName  string           `json:"school_name,omitempty"`
	Location    *Coord           `json:"location,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Notification is the stored, recipient-addressed rendering of an Event.
// Content is immutable once stored; only the Read flag changes in place.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        EventKind `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`

	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	Location    *Coord `json:"location,omitempty"`
}
