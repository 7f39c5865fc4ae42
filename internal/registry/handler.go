// Package registry implements the process-wide session and server
// registries: one lock, O(1) map operations, and monotonic id allocation.
// The handler owns sessions; sessions hold only a non-owning back-reference
// to it (see the root sessionmux package).
package registry

import (
	"math/rand"
	"sync"
)

// SessionEntry is the minimal shape the registry needs from a session to
// drive cooperative teardown; the root package's *Session satisfies it.
type SessionEntry interface {
	SessionID() uint32
	EndSession(init bool)
}

// ServerEntry is the minimal shape the registry needs from a listening
// server to drive shutdown.
type ServerEntry interface {
	ServerID() uint32
	Close() error
}

// Handler owns the process-wide session and server maps behind one lock,
// plus the id counters used to allocate both. It never destroys sessions
// directly — sessions deregister themselves via RemoveSession.
type Handler struct {
	mu       sync.Mutex
	sessions map[uint32]SessionEntry
	servers  map[uint32]ServerEntry

	nextSessionID uint32
	nextServerID  uint32
}

// NewHandler returns an empty handler.
func NewHandler() *Handler {
	return &Handler{
		sessions: make(map[uint32]SessionEntry),
		servers:  make(map[uint32]ServerEntry),
	}
}

// AllocateSessionID returns a fresh non-zero session id not currently in
// the sessions map.
func (h *Handler) AllocateSessionID() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateSessionIDLocked()
}

func (h *Handler) allocateSessionIDLocked() uint32 {
	for {
		h.nextSessionID++
		id := h.nextSessionID
		if id == 0 {
			continue
		}
		if _, exists := h.sessions[id]; exists {
			continue
		}
		return id
	}
}

// AllocateServerID returns a fresh non-zero server id.
func (h *Handler) AllocateServerID() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		h.nextServerID++
		id := h.nextServerID
		if id == 0 {
			continue
		}
		if _, exists := h.servers[id]; exists {
			continue
		}
		return id
	}
}

// AddSession registers s under id, reallocating a fresh id if id is already
// taken (used by the server side of the §4.4 handshake when the client's
// offered id collides).
func (h *Handler) AddSession(id uint32, s SessionEntry) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[id]; exists || id == 0 {
		id = h.allocateSessionIDLocked()
	}
	h.sessions[id] = s
	return id
}

// RekeySession moves a session from oldID to newID, used by the client
// side of the handshake after Session_IdChange.
func (h *Handler) RekeySession(oldID, newID uint32, s SessionEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, oldID)
	h.sessions[newID] = s
}

// RemoveSession deregisters a session. Called by the session itself, never
// by the handler.
func (h *Handler) RemoveSession(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// GetSession looks up a session by id.
func (h *Handler) GetSession(id uint32) (SessionEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// HasSession reports whether id is currently registered — used by the
// client side to pick an offered session id for Session_Init_Start that
// is not already in its local sessions map.
func (h *Handler) HasSession(id uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[id]
	return ok
}

// AddServer registers a listening server under a freshly allocated id.
func (h *Handler) AddServer(s ServerEntry) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var id uint32
	for {
		h.nextServerID++
		id = h.nextServerID
		if id == 0 {
			continue
		}
		if _, exists := h.servers[id]; !exists {
			break
		}
	}
	h.servers[id] = s
	return id
}

// GetServer looks up a server by id.
func (h *Handler) GetServer(id uint32) (ServerEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.servers[id]
	return s, ok
}

// RemoveServer deregisters a server.
func (h *Handler) RemoveServer(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.servers, id)
}

// ClearAllSessions requests init=true teardown on every currently
// registered session. The handler never destroys sessions directly;
// each session removes itself from the map as part of EndSession's
// deregistration step.
func (h *Handler) ClearAllSessions() {
	h.mu.Lock()
	sessions := make([]SessionEntry, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.EndSession(true)
	}
}

// SessionCount reports the number of currently registered sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RandomNonZeroU64 returns a random non-zero 64-bit id, retrying on
// collision against exists. Used for multiblockId and the client's
// offered session id's wider cousin in the multi-block engine.
func RandomNonZeroU64(rng *rand.Rand, exists func(uint64) bool) uint64 {
	for {
		var v uint64
		if rng != nil {
			v = rng.Uint64()
		} else {
			v = rand.Uint64()
		}
		if v == 0 {
			continue
		}
		if exists != nil && exists(v) {
			continue
		}
		return v
	}
}

// RandomNonZeroU32 returns a random non-zero 32-bit id, retrying on
// collision against exists. Used for the client-offered session id in
// Session_Init_Start.
func RandomNonZeroU32(rng *rand.Rand, exists func(uint32) bool) uint32 {
	for {
		var v uint32
		if rng != nil {
			v = rng.Uint32()
		} else {
			v = rand.Uint32()
		}
		if v == 0 {
			continue
		}
		if exists != nil && exists(v) {
			continue
		}
		return v
	}
}
