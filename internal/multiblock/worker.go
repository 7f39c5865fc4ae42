package multiblock

import (
	"time"

	"github.com/sessionmux/sessionmux/internal/logging"
	"github.com/sessionmux/sessionmux/internal/observability"
)

// Sender is the minimal per-session capability the outgoing worker needs.
// The root sessionmux package's *Session implements it by emitting framed
// Data_Multi_Static / Data_Multi_Finish / Data_Multi_Abort_Init messages.
type Sender interface {
	SendStaticChunk(multiblockID uint64, totalParts, partID uint32, payload []byte) error
	SendFinish(multiblockID uint64) error
	SendAbortInit(multiblockID uint64) error
}

// Worker drains the ready head of an OutgoingBacklog, one multi-block
// message at a time, chunking it into ChunkPayloadSize pieces. Exactly one
// Worker runs per session, on its own goroutine.
type Worker struct {
	backlog *OutgoingBacklog
	sender  Sender
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker builds a worker bound to backlog and sender. Call Run on its
// own goroutine.
func NewWorker(backlog *OutgoingBacklog, sender Sender) *Worker {
	return &Worker{
		backlog: backlog,
		sender:  sender,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run is the worker's main loop: dequeue the ready head, or block until
// woken, until Stop is called.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		entry := w.backlog.DequeueReady()
		if entry == nil {
			if !w.backlog.Wait(w.stop) {
				return
			}
			continue
		}
		w.sendEntry(entry)
		select {
		case <-w.stop:
			return
		default:
		}
	}
}

// Stop signals the worker to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// sendEntry streams entry's payload as a sequence of Data_Multi_Static
// frames. Between chunks it checks isStillActive: once DequeueReady has
// popped an entry from the backlog, abortMessages can no longer remove it
// outright, so it instead flags it aborted in place. When that flag is
// observed here, the remainder is dropped and Data_Multi_Abort_Init is
// emitted instead of Data_Multi_Finish.
func (w *Worker) sendEntry(entry *OutgoingEntry) {
	defer w.backlog.EraseActive(entry.ID)

	total := entry.TotalParts()
	for partID := uint32(0); partID < total; partID++ {
		if !w.backlog.IsStillActive(entry.ID) {
			logging.Warnf("multiblock %d: aborted after %d/%d parts", entry.ID, partID, total)
			_ = w.sender.SendAbortInit(entry.ID)
			observability.RecordMultiblockTransfer("outgoing", "aborted")
			return
		}

		start := int(partID) * ChunkPayloadSize
		end := start + ChunkPayloadSize
		if end > len(entry.Buffer) {
			end = len(entry.Buffer)
		}
		if start >= len(entry.Buffer) {
			break
		}
		if err := w.sender.SendStaticChunk(entry.ID, total, partID, entry.Buffer[start:end]); err != nil {
			logging.Warnf("multiblock %d: send chunk %d/%d failed: %v", entry.ID, partID, total, err)
			observability.RecordMultiblockTransfer("outgoing", "failed")
			return
		}
	}
	if err := w.sender.SendFinish(entry.ID); err != nil {
		logging.Warnf("multiblock %d: send finish failed: %v", entry.ID, err)
		observability.RecordMultiblockTransfer("outgoing", "failed")
		return
	}
	observability.RecordMultiblockTransfer("outgoing", "completed")
	observability.ObserveMultiblockDuration(time.Since(entry.EnqueuedAt))
}
