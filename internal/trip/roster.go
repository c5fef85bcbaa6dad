package trip

import (
	"sync"

	"github.com/example/van-notify/internal/models"
)

// GuardianFinder is the roster lookup collaborator: which guardian gets
// notified about a given student.
type GuardianFinder interface {
	FindGuardianForStudent(studentID string) (string, bool)
}

// RouteDirectory resolves the guardians addressed by route-level broadcast
// events (routeStarted, routeCompleted).
type RouteDirectory interface {
	RouteGuardians(routeID string) []string
}

// MemoryRoster indexes routes fed to it at seed time. It is the in-process
// implementation of both lookup interfaces.
type MemoryRoster struct {
	mu        sync.RWMutex
	guardians map[string]string   // student id -> guardian id
	routes    map[string][]string // route id -> guardian ids, first-seen order
}

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{
		guardians: make(map[string]string),
		routes:    make(map[string][]string),
	}
}

func (r *MemoryRoster) AddRoute(route models.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	ids := make([]string, 0, len(route.Students))
	for _, s := range route.Students {
		r.guardians[s.ID] = s.GuardianID
		if s.GuardianID == "" || seen[s.GuardianID] {
			continue
		}
		seen[s.GuardianID] = true
		ids = append(ids, s.GuardianID)
	}
	r.routes[route.ID] = ids
}

func (r *MemoryRoster) FindGuardianForStudent(studentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guardians[studentID]
	if g == "" {
		return "", false
	}
	return g, ok
}

func (r *MemoryRoster) RouteGuardians(routeID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.routes[routeID]...)
}
