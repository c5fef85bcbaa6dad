package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/van-notify/internal/models"
)

var upgrader = websocket.Upgrader{}

// wsSession serializes writes to one guardian connection; a subscriber
// callback and the close path can race otherwise.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// handleWS upgrades a guardian connection and streams live notifications
// until the peer goes away. Each connection is its own subscriber, so two
// tabs of the same guardian each get the full stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	recipient := mux.Vars(r)["recipient_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	sess := &wsSession{conn: conn}

	unsubscribe := s.router.Subscribe(recipient, func(n models.Notification) {
		if err := sess.send(n); err != nil {
			s.logger.Debug("ws send failed", "recipient", recipient, "error", err)
		}
	})
	defer unsubscribe()
	defer conn.Close()

	// Drain reads to observe close; we never expect client frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
