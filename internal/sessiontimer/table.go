// Package sessiontimer implements the session handler's timer thread:
// the per-message reply-deadline table and the heartbeat scheduler
// described by §4.6 — a single 1 Hz tick drives both.
package sessiontimer

import "sync"

// Key identifies one pending reply: the message family it belongs to, the
// session that sent it, and the message id that the peer's reply frame
// must echo back with FlagIsReply set.
type Key struct {
	MessageType uint8
	SessionID   uint32
	MessageID   uint32
}

type pendingEntry struct {
	remaining int
	onTimeout func()
}

// Table tracks pending replies and fires onTimeout once a countdown
// reaches zero without a matching Clear. One Table per Controller; ticks
// are driven externally by Scheduler.
type Table struct {
	mu      sync.Mutex
	entries map[Key]*pendingEntry
}

// NewTable returns an empty pending-reply table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]*pendingEntry)}
}

// Start registers a new pending reply with a countdown of deadlineSeconds
// ticks. If key is already registered, its deadline and callback are
// replaced.
func (t *Table) Start(key Key, deadlineSeconds int, onTimeout func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = &pendingEntry{remaining: deadlineSeconds, onTimeout: onTimeout}
}

// Clear removes a pending reply, called when a frame with FlagIsReply and
// a matching (type, sessionId, messageId) arrives. Returns false if key
// was not pending (the reply arrived after timeout, or was unsolicited).
func (t *Table) Clear(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// ClearSession removes every pending reply owned by sessionID, called on
// session teardown so a closed session's stale timers can't fire.
func (t *Table) ClearSession(sessionID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.entries {
		if k.SessionID == sessionID {
			delete(t.entries, k)
		}
	}
}

// Tick decrements every pending countdown by one and fires onTimeout,
// outside the lock, for every entry that reached zero.
func (t *Table) Tick() {
	var fired []func()

	t.mu.Lock()
	for k, e := range t.entries {
		e.remaining--
		if e.remaining <= 0 {
			fired = append(fired, e.onTimeout)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for _, f := range fired {
		if f != nil {
			f()
		}
	}
}

// Count reports the number of pending replies — exposed for tests and
// metrics.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
