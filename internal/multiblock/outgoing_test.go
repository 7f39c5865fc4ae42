package multiblock

import (
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu      sync.Mutex
	chunks  []uint32
	finishedIDs []uint64
	abortedIDs  []uint64
	blockUntil  chan struct{} // if non-nil, SendStaticChunk blocks on first call until closed
	blockedOnce bool
}

func (f *fakeSender) SendStaticChunk(id uint64, total, partID uint32, payload []byte) error {
	f.mu.Lock()
	f.chunks = append(f.chunks, partID)
	f.mu.Unlock()
	if f.blockUntil != nil && !f.blockedOnce {
		f.blockedOnce = true
		<-f.blockUntil
	}
	return nil
}

func (f *fakeSender) SendFinish(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishedIDs = append(f.finishedIDs, id)
	return nil
}

func (f *fakeSender) SendAbortInit(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortedIDs = append(f.abortedIDs, id)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition")
}

func TestOutgoingBacklogBlocksUntilReady(t *testing.T) {
	b := NewOutgoingBacklog()
	sender := &fakeSender{}
	w := NewWorker(b, sender)
	go w.Run()
	defer w.Stop()

	entry := &OutgoingEntry{ID: 1, Buffer: make([]byte, 500), Size: 500}
	b.Enqueue(entry)

	time.Sleep(20 * time.Millisecond)
	sender.mu.Lock()
	sent := len(sender.finishedIDs)
	sender.mu.Unlock()
	if sent != 0 {
		t.Fatalf("expected no send before MarkReady, got %d finishes", sent)
	}

	b.MarkReady(1)
	waitFor(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.finishedIDs) == 1
	})
}

func TestOutgoingBacklogChunksLargePayload(t *testing.T) {
	b := NewOutgoingBacklog()
	sender := &fakeSender{}
	w := NewWorker(b, sender)
	go w.Run()
	defer w.Stop()

	size := 1 << 20 // 1 MiB
	entry := &OutgoingEntry{ID: 7, Buffer: make([]byte, size), Size: uint64(size)}
	b.Enqueue(entry)
	b.MarkReady(7)

	waitFor(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.finishedIDs) == 1
	})

	wantParts := int(entry.TotalParts())
	sender.mu.Lock()
	gotParts := len(sender.chunks)
	sender.mu.Unlock()
	if gotParts != wantParts {
		t.Fatalf("expected %d chunks, got %d", wantParts, gotParts)
	}
}

func TestRemoveBeforeDequeueDropsEntrySilently(t *testing.T) {
	b := NewOutgoingBacklog()
	entry := &OutgoingEntry{ID: 9, Buffer: make([]byte, 10), Size: 10}
	b.Enqueue(entry)

	removedBeforeStart := b.Remove(9)
	if !removedBeforeStart {
		t.Fatalf("expected removal of a never-dequeued entry to report removedBeforeStart=true")
	}
	if b.DequeueReady() != nil {
		t.Fatalf("expected backlog empty after removal")
	}
}

func TestAbortMidTransferEmitsAbortInitNotFinish(t *testing.T) {
	b := NewOutgoingBacklog()
	sender := &fakeSender{blockUntil: make(chan struct{})}
	w := NewWorker(b, sender)
	go w.Run()
	defer w.Stop()

	size := 5000
	entry := &OutgoingEntry{ID: 42, Buffer: make([]byte, size), Size: uint64(size)}
	b.Enqueue(entry)
	b.MarkReady(42)

	// Wait until the worker has dequeued and sent its first chunk (and is
	// now blocked inside SendStaticChunk).
	waitFor(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.chunks) >= 1
	})

	removedBeforeStart := b.Remove(42)
	if removedBeforeStart {
		t.Fatalf("expected abort of an already-dequeued entry to report removedBeforeStart=false")
	}
	close(sender.blockUntil)

	waitFor(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.abortedIDs) == 1
	})

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.finishedIDs) != 0 {
		t.Fatalf("expected no Data_Multi_Finish after abort, got %v", sender.finishedIDs)
	}
	if len(sender.chunks) >= int(entry.TotalParts()) {
		t.Fatalf("expected abort to drop remaining chunks, sent %d of %d", len(sender.chunks), entry.TotalParts())
	}
}

func TestMarkReadyOnUnknownIDReturnsFalse(t *testing.T) {
	b := NewOutgoingBacklog()
	if b.MarkReady(123) {
		t.Fatalf("expected MarkReady on unknown id to return false")
	}
}
