package sessiontimer

import (
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	id uint32

	mu         sync.Mutex
	ready      bool
	nextID     uint32
	heartbeats int
	timeouts   int
	replyErr   error
}

func (f *fakeSession) SessionID() uint32    { return f.id }
func (f *fakeSession) IsSessionReady() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.ready }

func (f *fakeSession) NextMessageID() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *fakeSession) SendHeartbeatStart(messageID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.replyErr
}

func (f *fakeSession) ReceivedError(code uint8, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts++
}

func (f *fakeSession) snapshot() (heartbeats, timeouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats, f.timeouts
}

func TestSchedulerSendsHeartbeatOnlyWhenSessionReady(t *testing.T) {
	tab := NewTable()
	sched := NewScheduler(tab, time.Second, 5*time.Second)
	go sched.Run()
	defer sched.Stop()

	notReady := &fakeSession{id: 1, ready: false}
	ready := &fakeSession{id: 2, ready: true}
	sched.Register(notReady)
	sched.Register(ready)

	time.Sleep(1300 * time.Millisecond)

	hbNotReady, _ := notReady.snapshot()
	hbReady, _ := ready.snapshot()
	if hbNotReady != 0 {
		t.Fatalf("expected no heartbeat for a session that is not SESSION_READY, got %d", hbNotReady)
	}
	if hbReady == 0 {
		t.Fatalf("expected at least one heartbeat for a ready session")
	}
}

func TestSchedulerFiresReceivedErrorOnReplyTimeout(t *testing.T) {
	tab := NewTable()
	sched := NewScheduler(tab, 10*time.Second, time.Second)
	go sched.Run()
	defer sched.Stop()

	sess := &fakeSession{id: 3, ready: true}
	sched.Register(sess)
	sched.TrackReply(1, sess.SessionID(), 42)

	time.Sleep(1300 * time.Millisecond)

	_, timeouts := sess.snapshot()
	if timeouts != 1 {
		t.Fatalf("expected exactly one timeout callback, got %d", timeouts)
	}
}

func TestSchedulerClearReplyPreventsTimeout(t *testing.T) {
	tab := NewTable()
	sched := NewScheduler(tab, 10*time.Second, time.Second)
	go sched.Run()
	defer sched.Stop()

	sess := &fakeSession{id: 4, ready: true}
	sched.Register(sess)
	sched.TrackReply(1, sess.SessionID(), 7)

	if !sched.ClearReply(1, sess.SessionID(), 7) {
		t.Fatalf("expected ClearReply to find the pending entry")
	}

	time.Sleep(1300 * time.Millisecond)

	_, timeouts := sess.snapshot()
	if timeouts != 0 {
		t.Fatalf("expected no timeout after ClearReply, got %d", timeouts)
	}
}

func TestUnregisterClearsSessionsPendingReplies(t *testing.T) {
	tab := NewTable()
	sched := NewScheduler(tab, 10*time.Second, 10*time.Second)

	sess := &fakeSession{id: 5, ready: true}
	sched.Register(sess)
	sched.TrackReply(1, sess.SessionID(), 1)

	if tab.Count() != 1 {
		t.Fatalf("expected one pending entry before unregister")
	}
	sched.Unregister(sess.SessionID())
	if tab.Count() != 0 {
		t.Fatalf("expected Unregister to clear the session's pending replies")
	}
}
