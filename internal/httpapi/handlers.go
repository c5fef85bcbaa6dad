package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/van-notify/internal/models"
	"github.com/example/van-notify/internal/trip"
)

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/trips/start", s.handleStartTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/current", s.handleCurrentTrip).Methods("GET")
	s.mux.HandleFunc("/api/v1/trips/finish", s.handleFinishTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/students/embarked", s.handleBatchEmbarked).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/students/{student_id}/van-arrived", s.handleVanArrived).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/students/{student_id}/embarked", s.handleEmbarked).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/students/{student_id}/arrived", s.handleArrived).Methods("POST")

	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}", s.handleListNotifications).Methods("GET")
	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}", s.handleDeleteMany).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}/status", s.handleNotificationStatus).Methods("GET")
	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}/read-all", s.handleMarkAllRead).Methods("POST")
	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}/{id}/read", s.handleMarkRead).Methods("POST")
	s.mux.HandleFunc("/api/v1/notifications/{recipient_id}/{id}", s.handleDelete).Methods("DELETE")

	s.mux.HandleFunc("/api/v1/alerts/enabled", s.handleSetAlertsEnabled).Methods("PUT")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{recipient_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	var route models.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if route.ID == "" || len(route.Students) == 0 {
		http.Error(w, "route id and students required", 400)
		return
	}
	s.roster.AddRoute(route)
	t, err := s.machine.StartTrip(route)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handleCurrentTrip(w http.ResponseWriter, r *http.Request) {
	t, ok := s.machine.Snapshot()
	if !ok {
		http.Error(w, "no active trip", http.StatusNotFound)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handleFinishTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.machine.FinishTrip(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleVanArrived(w http.ResponseWriter, r *http.Request) {
	s.applyTransition(w, r, s.machine.MarkVanArrived)
}

func (s *Server) handleEmbarked(w http.ResponseWriter, r *http.Request) {
	s.applyTransition(w, r, s.machine.MarkEmbarked)
}

func (s *Server) handleArrived(w http.ResponseWriter, r *http.Request) {
	s.applyTransition(w, r, s.machine.MarkArrived)
}

// applyTransition maps guard rejections to 204: an out-of-order call is
// logged and ignored, never surfaced as a user-facing error.
func (s *Server) applyTransition(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	id := mux.Vars(r)["student_id"]
	if err := fn(id); err != nil {
		if errors.Is(err, trip.ErrInvalidTransition) {
			w.WriteHeader(204)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleBatchEmbarked(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StudentIDs []string `json:"student_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	accepted := s.machine.MarkManyEmbarked(body.StudentIDs)
	writeJSON(w, map[string]int{"accepted": accepted})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	recipient := mux.Vars(r)["recipient_id"]
	list := s.store.List(recipient)
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, list)
}

// handleNotificationStatus backs the UI badge: entry counts plus the
// persisted "last seen" watermark for the recipient.
func (s *Server) handleNotificationStatus(w http.ResponseWriter, r *http.Request) {
	recipient := mux.Vars(r)["recipient_id"]
	list := s.store.List(recipient)
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	wm, err := s.backend.Watermark(recipient)
	if err != nil {
		s.logger.Debug("watermark read failed", "recipient", recipient, "error", err)
	}
	writeJSON(w, notificationStatus{Count: len(list), Unread: unread, LastSeen: wm})
}

type notificationStatus struct {
	Count    int       `json:"count"`
	Unread   int       `json:"unread"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.store.MarkRead(vars["id"], vars["recipient_id"])
	w.WriteHeader(204)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	s.store.MarkAllRead(mux.Vars(r)["recipient_id"])
	w.WriteHeader(204)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.store.Delete(vars["id"], vars["recipient_id"])
	w.WriteHeader(204)
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	s.store.DeleteMany(body.IDs, mux.Vars(r)["recipient_id"])
	w.WriteHeader(204)
}

func (s *Server) handleSetAlertsEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	s.alerts.SetEnabled(body.Enabled)
	w.WriteHeader(204)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
