package sessionmux

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessionmux/sessionmux/internal/fsm"
	"github.com/sessionmux/sessionmux/internal/logging"
	"github.com/sessionmux/sessionmux/internal/multiblock"
	"github.com/sessionmux/sessionmux/internal/registry"
	"github.com/sessionmux/sessionmux/internal/wire"
)

// Session is a logical bidirectional channel over one transport connection.
// It owns the state machine, the multi-block engine's outgoing backlog and
// incoming reassembly table, and the socket for its lifetime.
type Session struct {
	controller *Controller

	idMu          sync.RWMutex
	id            uint32
	identifier    uint64
	identifierSet bool
	isClientSide  bool

	// offeredIdentifier carries the client-supplied identifier from
	// connectiSession's Session_Init_Start through to Session_IdConfirm and
	// makeSessionReady; it is distinct from `identifier`, which is only set
	// once the session is actually ready.
	offeredIdentifier uint64

	conn    net.Conn
	writeMu sync.Mutex

	ring    *wire.Ring
	machine *fsm.Machine

	msgIDCounter atomic.Uint32

	outgoing *multiblock.OutgoingBacklog
	incoming *multiblock.IncomingTable
	worker   *multiblock.Worker

	closeOnce sync.Once
}

func newSession(controller *Controller, conn net.Conn, isClientSide bool) *Session {
	s := &Session{
		controller:   controller,
		conn:         conn,
		isClientSide: isClientSide,
		ring:         wire.NewRing(),
		machine:      fsm.New(),
		outgoing:     multiblock.NewOutgoingBacklog(),
		incoming:     multiblock.NewIncomingTable(),
	}
	s.worker = multiblock.NewWorker(s.outgoing, s)
	go s.worker.Run()
	return s
}

// SessionID returns the session's current sessionId. Zero until connectiSession
// has run.
func (s *Session) SessionID() uint32 {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.id
}

func (s *Session) setID(id uint32) {
	s.idMu.Lock()
	s.id = id
	s.idMu.Unlock()
}

// Identifier returns the opaque client-supplied token handed back with
// onSession(opened=true,...). Zero if not yet set.
func (s *Session) Identifier() uint64 {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.identifier
}

func (s *Session) setIdentifierOnce(identifier uint64) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if !s.identifierSet {
		s.identifier = identifier
		s.identifierSet = true
	}
}

// IsClientSide reports whether this session originated the connection.
func (s *Session) IsClientSide() bool {
	return s.isClientSide
}

// IsSessionReady reports whether the session is at or below SESSION_READY —
// satisfies sessiontimer.Session, used by the heartbeat scheduler to decide
// whether a session is due a Heartbeat_Start.
func (s *Session) IsSessionReady() bool {
	return s.machine.IsInState(fsm.SessionReady)
}

// NextMessageID returns increaseMessageIdCounter(): a process-monotonic,
// per-session, wrapping message id.
func (s *Session) NextMessageID() uint32 {
	return s.msgIDCounter.Add(1)
}

// ReceivedError satisfies sessiontimer.Session: the scheduler calls this when
// a tracked reply's deadline reaches zero unanswered.
func (s *Session) ReceivedError(code uint8, message string) {
	s.reportError(ErrorCode(code), message)
}

func (s *Session) reportError(code ErrorCode, message string) {
	if s.controller != nil && s.controller.target != nil {
		s.controller.target.OnError(s, code, message)
	}
}

// SendStreamData requires ACTIVE. dynamic=true sends exactly len(data)
// bytes via Data_Single_Dynamic; dynamic=false sends a fixed
// SingleStaticPayloadSize frame, zero-padded, via Data_Single_Static. Zero
// length and payloads over the single-block ceiling are rejected — the
// latter must go through SendMultiblockData instead.
func (s *Session) SendStreamData(data []byte, dynamic, replyExpected bool) bool {
	if !s.machine.IsInState(fsm.Active) {
		return false
	}
	if len(data) == 0 || len(data) > wire.SingleStaticPayloadSize {
		return false
	}

	subType := wire.DataSingleStatic
	var body []byte
	if dynamic {
		subType = wire.DataSingleDynamic
		body = wire.DynamicBody{Payload: data}.Encode()
	} else {
		padded := make([]byte, wire.SingleStaticPayloadSize)
		copy(padded, data)
		body = padded
	}

	messageID := s.NextMessageID()
	flags := uint8(0)
	if replyExpected {
		flags |= wire.FlagReplyExpected
	}
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeSingleBlock,
		SubType:   subType,
		Flags:     flags,
		MessageID: messageID,
		SessionID: s.SessionID(),
	}
	if err := s.writeFrame(header, body); err != nil {
		return false
	}
	if replyExpected {
		s.controller.scheduler.TrackReply(wire.TypeSingleBlock, s.SessionID(), messageID)
	}
	return true
}

// SendMultiblockData requires ACTIVE. It allocates an outgoing multi-block
// entry, sends Data_Multi_Init, and returns the multiblockId immediately;
// the worker goroutine streams the chunks once the peer's init-reply marks
// the entry ready. Returns 0 if rejected.
func (s *Session) SendMultiblockData(data []byte) uint64 {
	if !s.machine.IsInState(fsm.Active) {
		return 0
	}
	if len(data) == 0 {
		return 0
	}

	id := registry.RandomNonZeroU64(nil, s.outgoing.IsStillActive)
	buf := make([]byte, len(data))
	copy(buf, data)
	entry := &multiblock.OutgoingEntry{ID: id, Buffer: buf, Size: uint64(len(buf)), EnqueuedAt: time.Now()}
	s.outgoing.Enqueue(entry)

	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiInit,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	body := wire.MultiInitBody{MultiblockID: id, TotalSize: entry.Size}.Encode()
	if err := s.writeFrame(header, body); err != nil {
		s.outgoing.Remove(id)
		return 0
	}
	return id
}

// AbortMessages implements abortMessages(multiblockId): if the transfer is
// still queued (not yet dequeued by the worker), it is removed outright and
// nothing crosses the wire — it never started. Otherwise the worker itself
// observes the removal between chunks and emits Data_Multi_Abort_Init.
func (s *Session) AbortMessages(multiblockID uint64) {
	s.outgoing.Remove(multiblockID)
}

// CloseSession requires SESSION_READY. It cancels any outgoing multi-blocks
// still in flight; if replyExpected, it emits Session_Close_Start(initiator=true)
// and leaves teardown to the dispatcher once Session_Close_Reply arrives.
// Otherwise it tears the session down immediately.
func (s *Session) CloseSession(replyExpected bool) bool {
	if !s.machine.IsInState(fsm.SessionReady) {
		return false
	}
	s.outgoing.CancelAll()

	if replyExpected {
		messageID := s.NextMessageID()
		header := wire.Header{
			Version:   wire.MessageVersion,
			Type:      wire.TypeSession,
			SubType:   wire.SessionCloseStart,
			Flags:     wire.FlagReplyExpected,
			MessageID: messageID,
			SessionID: s.SessionID(),
		}
		body := wire.SessionCloseBody{Initiator: true}.Encode()
		if err := s.writeFrame(header, body); err != nil {
			return false
		}
		s.controller.scheduler.TrackReply(wire.TypeSession, s.SessionID(), messageID)
		return true
	}

	s.EndSession(true)
	return true
}

// connectiSession transitions NOT_CONNECTED -> CONNECTED(SESSION_NOT_READY),
// sets the offered id, starts the read loop, and, if init, registers the
// offered id with the handler and sends Session_Init_Start carrying
// identifier.
func (s *Session) connectiSession(offeredID uint32, identifier uint64, init bool) bool {
	if !s.machine.GoToNextState(fsm.Connect, nil) {
		return false
	}
	s.setID(offeredID)
	s.offeredIdentifier = identifier
	go s.readLoop()

	logging.Infof("session %d: connecting (clientSide=%v)", offeredID, s.isClientSide)

	if init {
		s.controller.handler.AddSession(offeredID, s)
		s.controller.noteSessionCountChanged()
		header := wire.Header{
			Version:   wire.MessageVersion,
			Type:      wire.TypeSession,
			SubType:   wire.SessionInitStart,
			MessageID: s.NextMessageID(),
			SessionID: offeredID,
		}
		body := wire.SessionInitStartBody{OfferedSessionID: offeredID, SessionIdentifier: identifier}.Encode()
		_ = s.writeFrame(header, body)
	}
	return true
}

// makeSessionReady transitions SESSION_NOT_READY -> SESSION_READY(ACTIVE),
// assigns the final id and identifier, registers with the heartbeat
// scheduler, and fires onSession(opened=true,...).
func (s *Session) makeSessionReady(id uint32, identifier uint64) bool {
	if !s.machine.GoToNextState(fsm.StartSession, nil) {
		return false
	}
	s.setID(id)
	s.setIdentifierOnce(identifier)
	s.controller.scheduler.Register(s)
	logging.Infof("session %d: ready identifier=%#x", id, identifier)
	if s.controller.target != nil {
		s.controller.target.OnSession(s, true, identifier)
	}
	return true
}

// EndSession implements endSession(init): transitions toward
// SESSION_NOT_READY (if currently ACTIVE, or no-ops the transition if
// already there), fires onSession(opened=false,...) at most once, notifies
// the peer of a unilateral close when init is true and the session had
// reached SESSION_READY, deregisters from the handler, and tears the socket
// down.
// Satisfies registry.SessionEntry.
func (s *Session) EndSession(init bool) {
	s.closeOnce.Do(func() {
		wasReady := s.machine.IsInState(fsm.SessionReady)
		s.machine.GoToNextState(fsm.StopSession, nil)
		logging.Infof("session %d: ending (init=%v, wasReady=%v)", s.SessionID(), init, wasReady)

		identifier := s.Identifier()
		if wasReady && s.controller.target != nil {
			s.controller.target.OnSession(s, false, identifier)
		}

		if init && wasReady {
			header := wire.Header{
				Version:   wire.MessageVersion,
				Type:      wire.TypeSession,
				SubType:   wire.SessionCloseStart,
				MessageID: s.NextMessageID(),
				SessionID: s.SessionID(),
			}
			body := wire.SessionCloseBody{Initiator: false}.Encode()
			_ = s.writeFrame(header, body)
		}

		s.controller.handler.RemoveSession(s.SessionID())
		s.controller.scheduler.Unregister(s.SessionID())
		s.controller.noteSessionCountChanged()
		s.outgoing.CancelAll()
		s.incoming.ClearAll()
		s.disconnectSession()
	})
}

// disconnectSession transitions toward NOT_CONNECTED, stops the sender
// worker, and closes the socket.
func (s *Session) disconnectSession() {
	s.machine.GoToNextState(fsm.Disconnect, nil)
	s.worker.Stop()
	_ = s.conn.Close()
	logging.Infof("session %d: disconnected", s.SessionID())
}

// writeFrame serializes one frame's bytes onto the socket. Socket writes
// are single-writer per session: every caller, from any goroutine, takes
// writeMu.
func (s *Session) writeFrame(header wire.Header, body []byte) error {
	frame := wire.EncodeFrame(header, body)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	if s.controller != nil && s.controller.metricsEnabled {
		s.controller.recordFrame("sent", header.Type)
	}
	return err
}

// writeReplyFrame builds and sends a reply frame echoing reqMessageID with
// FlagIsReply set, so the peer's pending-reply table can find and clear it
// by (type, sessionId, messageId).
func (s *Session) writeReplyFrame(msgType, subType uint8, reqMessageID uint32, body []byte) error {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      msgType,
		SubType:   subType,
		Flags:     wire.FlagIsReply,
		MessageID: reqMessageID,
		SessionID: s.SessionID(),
	}
	return s.writeFrame(header, body)
}

// SendHeartbeatStart satisfies sessiontimer.Session: emits Heartbeat_Start
// carrying messageID, arming the caller's own reply-timeout tracking.
func (s *Session) SendHeartbeatStart(messageID uint32) error {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeHeartbeat,
		SubType:   wire.HeartbeatStart,
		Flags:     wire.FlagReplyExpected,
		MessageID: messageID,
		SessionID: s.SessionID(),
	}
	return s.writeFrame(header, nil)
}

// SendStaticChunk satisfies multiblock.Sender.
func (s *Session) SendStaticChunk(multiblockID uint64, totalParts, partID uint32, payload []byte) error {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiStatic,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	body := wire.MultiStaticBody{
		MultiblockID:    multiblockID,
		TotalPartNumber: totalParts,
		PartID:          partID,
		Payload:         payload,
	}.Encode()
	return s.writeFrame(header, body)
}

// SendFinish satisfies multiblock.Sender.
func (s *Session) SendFinish(multiblockID uint64) error {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiFinish,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	body := wire.MultiblockIDBody{MultiblockID: multiblockID}.Encode()
	return s.writeFrame(header, body)
}

// SendAbortInit satisfies multiblock.Sender.
func (s *Session) SendAbortInit(multiblockID uint64) error {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiAbortInit,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	body := wire.MultiblockIDBody{MultiblockID: multiblockID}.Encode()
	return s.writeFrame(header, body)
}

// readLoop is the session's transport read thread: it reads raw bytes,
// feeds the ring buffer, and runs try_parse/dispatch synchronously on this
// goroutine until the socket fails or the session tears itself down.
func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.ring.Write(buf[:n])
			s.drainFrames()
		}
		if err != nil {
			if s.machine.IsInState(fsm.Connected) {
				s.reportError(UndefinedError, fmt.Sprintf("transport read error: %v", err))
			}
			s.EndSession(true)
			return
		}
	}
}

func (s *Session) drainFrames() {
	for {
		header, body, err := s.ring.TryParse(s.controller.maxFrameSize)
		if err != nil {
			if err == wire.ErrNeedMoreData {
				return
			}
			s.handleFrameError(err)
			return
		}
		if s.controller.metricsEnabled {
			s.controller.recordFrame("received", header.Type)
		}
		s.dispatch(header, body)
	}
}

func (s *Session) handleFrameError(err error) {
	logging.Warnf("session %d: frame error: %v", s.SessionID(), err)
	switch err {
	case wire.ErrFalseVersion:
		s.sendErrorFrame(wire.ErrorFalseVersion, "unsupported protocol version")
		s.reportError(FalseVersion, "unsupported protocol version")
	case wire.ErrInvalidMessageSize, wire.ErrPayloadTooLarge:
		s.sendErrorFrame(wire.ErrorInvalidMessage, "invalid frame size")
		s.reportError(InvalidMessageSize, "invalid frame size")
	default:
		s.reportError(UndefinedError, err.Error())
	}
	s.EndSession(true)
}

func (s *Session) sendErrorFrame(subType uint8, message string) {
	header := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeError,
		SubType:   subType,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	body := wire.ErrorBody{Code: wireErrorCode(subType), Message: message}.Encode()
	_ = s.writeFrame(header, body)
}

func wireErrorCode(subType uint8) uint8 {
	switch subType {
	case wire.ErrorFalseVersion:
		return uint8(FalseVersion)
	case wire.ErrorUnknownSession:
		return uint8(UnknownSession)
	case wire.ErrorInvalidMessage:
		return uint8(InvalidMessageSize)
	default:
		return uint8(UndefinedError)
	}
}
