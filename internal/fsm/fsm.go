// Package fsm implements the hierarchical session state machine: leaf
// states NOT_CONNECTED and, within CONNECTED, SESSION_NOT_READY and
// SESSION_READY, with ACTIVE as the sole substate of SESSION_READY.
package fsm

import "sync"

// State is a node in the state hierarchy.
type State int

const (
	NotConnected State = iota
	Connected
	SessionNotReady
	SessionReady
	Active
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "NOT_CONNECTED"
	case Connected:
		return "CONNECTED"
	case SessionNotReady:
		return "SESSION_NOT_READY"
	case SessionReady:
		return "SESSION_READY"
	case Active:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Event drives a transition.
type Event int

const (
	Connect Event = iota
	Disconnect
	StartSession
	StopSession
)

// parent maps each state to its immediate ancestor; NotConnected and
// Connected have no parent (they are top-level leaves of the hierarchy).
var parent = map[State]State{
	SessionNotReady: Connected,
	SessionReady:    Connected,
	Active:          SessionReady,
}

// transitions maps (current leaf, event) -> next leaf. SessionReady's
// initial substate is Active, so transitioning into SessionReady always
// lands on Active.
var transitions = map[State]map[Event]State{
	NotConnected: {
		Connect: SessionNotReady,
	},
	SessionNotReady: {
		StartSession: Active,
		Disconnect:   NotConnected,
	},
	Active: {
		StopSession: SessionNotReady,
		Disconnect:  NotConnected,
	},
}

// Machine is a single hierarchical state machine instance. All mutating
// methods are internally synchronized so that duplicate events race to
// rejection rather than double-application.
type Machine struct {
	mu      sync.Mutex
	current State
}

// New returns a machine starting at NOT_CONNECTED.
func New() *Machine {
	return &Machine{current: NotConnected}
}

// Current returns the current leaf state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// GoToNextState applies event if the current leaf has a transition for it
// and, when requiredParent is non-nil, the current leaf is a descendant of
// (or equal to) *requiredParent. Returns false without mutating state if
// either check fails — the caller sees the event rejected, not raced.
func (m *Machine) GoToNextState(event Event, requiredParent *State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if requiredParent != nil && !m.isInStateLocked(*requiredParent) {
		return false
	}
	next, ok := transitions[m.current][event]
	if !ok {
		return false
	}
	m.current = next
	return true
}

// IsInState reports whether the current leaf equals state or is a
// descendant of it — e.g. IsInState(Connected) is true while the leaf is
// SessionNotReady, SessionReady, or Active.
func (m *Machine) IsInState(state State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isInStateLocked(state)
}

func (m *Machine) isInStateLocked(state State) bool {
	node := m.current
	for {
		if node == state {
			return true
		}
		p, ok := parent[node]
		if !ok {
			return false
		}
		node = p
	}
}
