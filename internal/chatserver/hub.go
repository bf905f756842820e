package chatserver

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/rooms"
)

// Hub is the connection registry: it maps registered user names to their
// live sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rooms *rooms.Registry
	log   *logger.Logger
}

// NewHub creates an empty hub. Removing a user also evicts them from every
// room in reg.
func NewHub(reg *rooms.Registry, log *logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    reg,
		log:      logger.OrGlobal(log).WithPrefix("hub"),
	}
}

// Reserve registers name for s unless the name is already taken.
func (h *Hub) Reserve(name string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, taken := h.sessions[name]; taken {
		return false
	}
	h.sessions[name] = s
	h.log.Info("user %q registered (session %s, total: %d)", name, s.ID(), len(h.sessions))
	return true
}

// Lookup returns the session registered under name.
func (h *Hub) Lookup(name string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[name]
	return s, ok
}

// Remove unregisters name if it is still held by s and evicts the user from
// all rooms. Eviction completes under the hub lock, before the name can be
// reserved again. It reports whether anything was removed.
func (h *Hub) Remove(name string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.sessions[name]
	if !ok || current != s {
		return false
	}
	if h.rooms != nil {
		h.rooms.UnsubscribeAll(name)
	}
	delete(h.sessions, name)
	h.log.Info("user %q unregistered (total: %d)", name, len(h.sessions))
	return true
}

// Names returns the registered user names, sorted.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered users.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown kicks every registered session concurrently.
func (h *Hub) Shutdown() error {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	h.log.Info("shutting down hub, disconnecting %d users", len(sessions))

	var g multierror.Group
	for _, s := range sessions {
		g.Go(s.Kick)
	}
	return g.Wait().ErrorOrNil()
}
