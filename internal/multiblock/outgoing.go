// Package multiblock implements the multi-block transfer engine: the
// outgoing backlog and its dedicated sender worker, and the incoming
// reassembly table, per §4.5.
package multiblock

import (
	"container/list"
	"sync"
	"time"
)

// PageSize backs outgoing buffer allocation sizing (informational; the
// buffer itself is a plain byte slice sized to the payload).
const PageSize = 4096

// ChunkPayloadSize is the payload length of every Data_Multi_Static frame
// except possibly the last.
const ChunkPayloadSize = 1000

// OutgoingEntry is one outgoing multi-block message's lifecycle record.
type OutgoingEntry struct {
	ID         uint64
	Buffer     []byte
	Size       uint64
	IsReady    bool
	EnqueuedAt time.Time
}

// TotalParts returns the number of Data_Multi_Static chunks this entry's
// payload is split into.
func (e *OutgoingEntry) TotalParts() uint32 {
	return TotalPartsForSize(e.Size)
}

// TotalPartsForSize computes totalPartNumber = floor(size/1000)+1, shared by
// the outgoing engine (to chunk) and the incoming table (to size its
// reassembly entry from Data_Multi_Init's totalSize).
func TotalPartsForSize(size uint64) uint32 {
	return uint32(size/ChunkPayloadSize) + 1
}

type entryState struct {
	entry   *OutgoingEntry
	elem    *list.Element // non-nil while queued and not yet dequeued by the worker
	aborted bool
}

// OutgoingBacklog is the FIFO of outgoing multi-block messages awaiting
// (or mid-) transmission. Insert/lookup/erase/mark-ready are short,
// mutex-guarded critical sections; chunk emission itself happens outside
// the lock against a captured pointer, while the id stays registered here
// so abortMessages can still observe and flag it as aborted.
type OutgoingBacklog struct {
	mu     sync.Mutex
	order  *list.List // of *entryState, still pending dequeue
	byID   map[uint64]*entryState
	notify chan struct{}
}

// NewOutgoingBacklog returns an empty backlog.
func NewOutgoingBacklog() *OutgoingBacklog {
	return &OutgoingBacklog{
		order:  list.New(),
		byID:   make(map[uint64]*entryState),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a new entry to the tail of the backlog.
func (b *OutgoingBacklog) Enqueue(e *OutgoingEntry) {
	b.mu.Lock()
	st := &entryState{entry: e}
	st.elem = b.order.PushBack(st)
	b.byID[e.ID] = st
	b.mu.Unlock()
	b.wake()
}

// MarkReady flips isReady for the entry with id, if still pending, and
// wakes the worker. Returns false if the entry is gone (already aborted
// or already dequeued).
func (b *OutgoingBacklog) MarkReady(id uint64) bool {
	b.mu.Lock()
	st, ok := b.byID[id]
	if ok && st.elem != nil {
		st.entry.IsReady = true
	} else {
		ok = false
	}
	b.mu.Unlock()
	if ok {
		b.wake()
	}
	return ok
}

// Remove implements abortMessages: if the entry has not yet been dequeued
// by the worker, it is removed outright and true is returned (nothing was
// ever sent, so no wire message is needed). If it is already mid-transfer
// (dequeued, actively chunking), it is flagged aborted and false is
// returned — the worker observes the flag between chunks and emits
// Data_Multi_Abort_Init itself, so the caller must not also send one.
func (b *OutgoingBacklog) Remove(id uint64) (removedBeforeStart bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.byID[id]
	if !ok {
		return false
	}
	if st.elem != nil {
		b.order.Remove(st.elem)
		delete(b.byID, id)
		return true
	}
	st.aborted = true
	return false
}

// CancelAll removes every still-pending entry outright and flags every
// already-dequeued (active) entry aborted, called on session teardown so no
// outgoing multi-block outlives its session.
func (b *OutgoingBacklog) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.byID {
		if st.elem != nil {
			b.order.Remove(st.elem)
			delete(b.byID, id)
		} else {
			st.aborted = true
		}
	}
}

// IsStillActive reports whether id is registered and not flagged aborted
// — used by the worker between chunk emissions to detect a mid-transfer
// abort.
func (b *OutgoingBacklog) IsStillActive(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.byID[id]
	return ok && !st.aborted
}

// EraseActive removes id from the registry once the worker has finished
// (sent Multi_Finish) or aborted (sent Multi_Abort_Init) it.
func (b *OutgoingBacklog) EraseActive(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
}

// DequeueReady pops the head of the backlog if it is ready to send,
// leaving not-yet-ready heads in place (the worker blocks until the
// matching Multi_InitReply arrives). Returns nil if the backlog is empty
// or its head is not yet ready.
func (b *OutgoingBacklog) DequeueReady() *OutgoingEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	front := b.order.Front()
	if front == nil {
		return nil
	}
	st := front.Value.(*entryState)
	if !st.entry.IsReady {
		return nil
	}
	b.order.Remove(front)
	st.elem = nil
	return st.entry
}

// Wait blocks until Enqueue or MarkReady signals new work, or stop fires.
func (b *OutgoingBacklog) Wait(stop <-chan struct{}) bool {
	select {
	case <-b.notify:
		return true
	case <-stop:
		return false
	}
}

func (b *OutgoingBacklog) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
