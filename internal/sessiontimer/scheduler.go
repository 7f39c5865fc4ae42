package sessiontimer

import (
	"sync"
	"time"

	"github.com/sessionmux/sessionmux/internal/logging"
	"github.com/sessionmux/sessionmux/internal/observability"
	"github.com/sessionmux/sessionmux/internal/wire"
)

// DefaultHeartbeatInterval and DefaultReplyTimeout are §4.6/§9's proposed
// constants: the source left both unparameterized.
const (
	DefaultHeartbeatInterval = 2 * time.Second
	DefaultReplyTimeout      = 10 * time.Second
)

// Session is the minimal per-session capability the scheduler needs: a
// readiness check, a fresh per-session message id, the error callback path
// for a fired reply timeout, and the ability to emit Heartbeat_Start.
type Session interface {
	SessionID() uint32
	IsSessionReady() bool
	NextMessageID() uint32
	SendHeartbeatStart(messageID uint32) error
	ReceivedError(code uint8, message string)
}

type trackedSession struct {
	session Session
	elapsed time.Duration
}

// Scheduler runs the 1 Hz timer tick that drives Table.Tick and the
// heartbeat cadence.
type Scheduler struct {
	table             *Table
	heartbeatInterval time.Duration
	replyTimeout      time.Duration

	mu       sync.Mutex
	sessions map[uint32]*trackedSession

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler bound to table, with the given heartbeat
// cadence and reply timeout. Call Run on its own goroutine.
func NewScheduler(table *Table, heartbeatInterval, replyTimeout time.Duration) *Scheduler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	return &Scheduler{
		table:             table,
		heartbeatInterval: heartbeatInterval,
		replyTimeout:      replyTimeout,
		sessions:          make(map[uint32]*trackedSession),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Register enrolls a session for heartbeat scheduling.
func (s *Scheduler) Register(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID()] = &trackedSession{session: sess}
}

// Unregister removes a session from heartbeat scheduling and clears any of
// its pending reply entries, called on session teardown.
func (s *Scheduler) Unregister(id uint32) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.table.ClearSession(id)
}

// TrackReply registers a pending-reply deadline for a just-sent message
// that set FlagReplyExpected, using the configured reply timeout.
func (s *Scheduler) TrackReply(msgType uint8, sessionID, messageID uint32) {
	key := Key{MessageType: msgType, SessionID: sessionID, MessageID: messageID}
	deadlineSeconds := int(s.replyTimeout / time.Second)
	if deadlineSeconds < 1 {
		deadlineSeconds = 1
	}
	s.table.Start(key, deadlineSeconds, func() {
		observability.RecordReplyTimeout()
		logging.Warnf("session %d: reply timeout type=%d messageId=%d", sessionID, msgType, messageID)
		if sess := s.lookup(sessionID); sess != nil {
			sess.ReceivedError(errMessageTimeout, "reply timeout")
		}
	})
}

// ClearReply clears a pending-reply entry, called when an is-reply frame
// with a matching (type, sessionId, messageId) arrives.
func (s *Scheduler) ClearReply(msgType uint8, sessionID, messageID uint32) bool {
	return s.table.Clear(Key{MessageType: msgType, SessionID: sessionID, MessageID: messageID})
}

func (s *Scheduler) lookup(id uint32) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return t.session
}

// errMessageTimeout mirrors the root package's ErrorCode for
// MESSAGE_TIMEOUT without importing it, avoiding an import cycle between
// sessiontimer and the root sessionmux package that owns *Session.
const errMessageTimeout uint8 = 4

// Run is the scheduler's main loop: one tick per second drives both the
// reply-timeout table and the heartbeat cadence, until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.table.Tick()
			s.tickHeartbeats()
		}
	}
}

// Stop signals the scheduler to exit and blocks until it has.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) tickHeartbeats() {
	s.mu.Lock()
	due := make([]*trackedSession, 0)
	for _, t := range s.sessions {
		t.elapsed += time.Second
		if t.elapsed >= s.heartbeatInterval && t.session.IsSessionReady() {
			t.elapsed = 0
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		id := t.session.NextMessageID()
		if err := t.session.SendHeartbeatStart(id); err != nil {
			logging.Warnf("session %d: heartbeat send failed: %v", t.session.SessionID(), err)
			continue
		}
		observability.RecordHeartbeatSent()
		s.TrackReply(wire.TypeHeartbeat, t.session.SessionID(), id)
	}
}
