package fsm

import "testing"

func TestLifecycleHappyPath(t *testing.T) {
	m := New()
	if m.Current() != NotConnected {
		t.Fatalf("initial state = %v", m.Current())
	}
	if !m.GoToNextState(Connect, nil) {
		t.Fatalf("connect rejected")
	}
	if m.Current() != SessionNotReady {
		t.Fatalf("after connect = %v", m.Current())
	}
	if !m.IsInState(Connected) {
		t.Fatalf("expected IsInState(Connected) while SessionNotReady")
	}

	if !m.GoToNextState(StartSession, nil) {
		t.Fatalf("start session rejected")
	}
	if m.Current() != Active {
		t.Fatalf("after start session = %v", m.Current())
	}
	if !m.IsInState(SessionReady) || !m.IsInState(Connected) {
		t.Fatalf("expected ACTIVE to be in SessionReady and Connected ancestry")
	}

	if !m.GoToNextState(StopSession, nil) {
		t.Fatalf("stop session rejected")
	}
	if m.Current() != SessionNotReady {
		t.Fatalf("after stop session = %v", m.Current())
	}

	if !m.GoToNextState(Disconnect, nil) {
		t.Fatalf("disconnect rejected")
	}
	if m.Current() != NotConnected {
		t.Fatalf("after disconnect = %v", m.Current())
	}
}

func TestDuplicateEventsAreRejectedNotRaced(t *testing.T) {
	m := New()
	m.GoToNextState(Connect, nil)
	m.GoToNextState(StartSession, nil)

	if m.GoToNextState(StartSession, nil) {
		t.Fatalf("duplicate start-session should be rejected once already ACTIVE")
	}
	if m.Current() != Active {
		t.Fatalf("state must not change on rejected event, got %v", m.Current())
	}
}

func TestGoToNextStateRequiredParentGuard(t *testing.T) {
	m := New()
	ready := SessionReady
	if m.GoToNextState(StopSession, &ready) {
		t.Fatalf("stop-session from NOT_CONNECTED should be rejected regardless of parent guard")
	}

	m.GoToNextState(Connect, nil)
	m.GoToNextState(StartSession, nil)
	notReady := SessionNotReady
	if m.GoToNextState(StopSession, &notReady) {
		t.Fatalf("required parent SessionNotReady should reject while ACTIVE (descendant of SessionReady)")
	}
	if !m.GoToNextState(StopSession, &ready) {
		t.Fatalf("required parent SessionReady should allow stop-session while ACTIVE")
	}
}

func TestIsInStateLeafAndAncestors(t *testing.T) {
	m := New()
	if !m.IsInState(NotConnected) {
		t.Fatalf("expected leaf match")
	}
	if m.IsInState(Connected) {
		t.Fatalf("NOT_CONNECTED must not report as Connected")
	}
}

func TestNeverOccupiesTwoStatesSimultaneously(t *testing.T) {
	m := New()
	events := []Event{Connect, StartSession, StopSession, StartSession, StopSession, Disconnect}
	for _, e := range events {
		before := m.Current()
		ok := m.GoToNextState(e, nil)
		after := m.Current()
		if !ok && before != after {
			t.Fatalf("rejected event must not change state: %v -> %v", before, after)
		}
	}
}
