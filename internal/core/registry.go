package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the set of sessions that finished the handshake and have not been torn down yet.
// Every access, including the whole broadcast fan-out, happens under one mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	log      *zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		sessions: make(map[*Session]struct{}),
		log:      logger,
	}
}

// Register inserts a session. The caller guarantees it is not registered yet.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// Deregister removes a session. Returns true if it was present.
func (r *Registry) Deregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s]; !exists {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Broadcast writes text plus a newline to every session except exclude (nil excludes nobody).
// Per-recipient failures are swallowed; the recipient's own handler notices the broken stream.
// Returns the number of successful deliveries.
func (r *Registry) Broadcast(text string, exclude *Session) int {
	line := text + "\n"

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for s := range r.sessions {
		if s == exclude {
			continue
		}
		if err := s.Send(line); err != nil {
			r.log.Debug().Err(err).Str("session_id", s.ID).Str("user", s.Name).Msg("broadcast write failed")
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Names returns the sorted display names of registered sessions.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.sessions))
	for s := range r.sessions {
		names = append(names, s.Name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	return names
}

// CloseAll closes every registered stream without deregistering.
// Handlers parked in a read wake up and run their own teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.sessions {
		if err := s.Close(); err != nil {
			r.log.Debug().Err(err).Str("session_id", s.ID).Msg("close session")
		}
	}
}
