package sessionmux

import (
	"github.com/sessionmux/sessionmux/internal/multiblock"
	"github.com/sessionmux/sessionmux/internal/wire"
)

// dispatch routes one parsed frame to its typed handler. It runs
// synchronously on the session's read goroutine — the same thread that
// drives try_parse — so handlers never race each other for this session.
func (s *Session) dispatch(header wire.Header, body []byte) {
	switch header.Type {
	case wire.TypeSession:
		s.dispatchSession(header, body)
	case wire.TypeHeartbeat:
		s.dispatchHeartbeat(header, body)
	case wire.TypeError:
		s.dispatchError(header, body)
	case wire.TypeSingleBlock:
		s.dispatchSingleBlock(header, body)
	case wire.TypeMultiBlock:
		s.dispatchMultiBlock(header, body)
	default:
		s.reportError(UndefinedError, "unknown frame type")
	}
}

func (s *Session) dispatchSession(header wire.Header, body []byte) {
	switch header.SubType {
	case wire.SessionInitStart:
		s.handleSessionInitStart(header, body)
	case wire.SessionIdChange:
		s.handleSessionIDChange(header, body)
	case wire.SessionIdConfirm:
		s.handleSessionIDConfirm(header, body)
	case wire.SessionInitReply:
		s.handleSessionInitReply(header, body)
	case wire.SessionCloseStart:
		s.handleSessionCloseStart(header, body)
	case wire.SessionCloseReply:
		s.handleSessionCloseReply(header, body)
	default:
		s.reportError(UndefinedError, "unknown session-control subtype")
	}
}

// handleSessionInitStart is the server role's step 2 of §4.4's three-way
// bring-up. A client that receives its own init (both ends dialed at once)
// drops to UNDEFINED_ERROR rather than racing the role assignment.
func (s *Session) handleSessionInitStart(header wire.Header, body []byte) {
	if s.isClientSide {
		s.reportError(UndefinedError, "client role received Session_Init_Start")
		s.EndSession(true)
		return
	}
	in, err := wire.DecodeSessionInitStart(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}

	newID := s.controller.handler.AddSession(in.OfferedSessionID, s)
	s.setID(newID)
	s.controller.noteSessionCountChanged()

	replyHeader := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeSession,
		SubType:   wire.SessionIdChange,
		MessageID: s.NextMessageID(),
		SessionID: newID,
	}
	replyBody := wire.SessionIDChangeBody{OldID: in.OfferedSessionID, NewID: newID}.Encode()
	_ = s.writeFrame(replyHeader, replyBody)
}

// handleSessionIDChange is the client role's step 3: re-key to the server's
// chosen id, send Session_IdConfirm with reply-expected armed, and become
// ready immediately — per §4.3 makeSessionReady IS the operation this step
// performs ("transitions START_SESSION"), so the client does not wait for
// Session_InitReply to deliver onSession(opened=true).
func (s *Session) handleSessionIDChange(header wire.Header, body []byte) {
	in, err := wire.DecodeSessionIDChange(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}

	s.controller.handler.RekeySession(in.OldID, in.NewID, s)
	s.setID(in.NewID)

	confirmMessageID := s.NextMessageID()
	confirmHeader := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeSession,
		SubType:   wire.SessionIdConfirm,
		Flags:     wire.FlagReplyExpected,
		MessageID: confirmMessageID,
		SessionID: in.NewID,
	}
	confirmBody := wire.SessionIDConfirmBody{NewID: in.NewID, SessionIdentifier: s.offeredIdentifier}.Encode()
	if err := s.writeFrame(confirmHeader, confirmBody); err == nil {
		s.controller.scheduler.TrackReply(wire.TypeSession, in.NewID, confirmMessageID)
	}

	s.makeSessionReady(in.NewID, s.offeredIdentifier)
}

// handleSessionIDConfirm is the server role's step 4: become ready and
// reply Session_InitReply, echoing the confirm's messageId so the client's
// pending-reply table can clear it.
func (s *Session) handleSessionIDConfirm(header wire.Header, body []byte) {
	in, err := wire.DecodeSessionIDConfirm(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}

	s.makeSessionReady(in.NewID, in.SessionIdentifier)

	replyBody := wire.SessionInitReplyBody{NewID: in.NewID}.Encode()
	_ = s.writeReplyFrame(wire.TypeSession, wire.SessionInitReply, header.MessageID, replyBody)
}

// handleSessionInitReply closes out the handshake's reply-timeout tracking
// on the client; the client is already ACTIVE since step 3.
func (s *Session) handleSessionInitReply(header wire.Header, body []byte) {
	if _, err := wire.DecodeSessionInitReply(body); err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	s.controller.scheduler.ClearReply(wire.TypeSession, s.SessionID(), header.MessageID)
}

// handleSessionCloseStart is either role's response to a graceful-teardown
// request: acknowledge if reply-expected, then run endSession(init=false).
func (s *Session) handleSessionCloseStart(header wire.Header, body []byte) {
	if _, err := wire.DecodeSessionClose(body); err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	if header.HasFlag(wire.FlagReplyExpected) {
		_ = s.writeReplyFrame(wire.TypeSession, wire.SessionCloseReply, header.MessageID, nil)
	}
	s.EndSession(false)
}

// handleSessionCloseReply is the initiator's side of graceful teardown.
func (s *Session) handleSessionCloseReply(header wire.Header, body []byte) {
	s.controller.scheduler.ClearReply(wire.TypeSession, s.SessionID(), header.MessageID)
	s.EndSession(false)
}

func (s *Session) dispatchHeartbeat(header wire.Header, body []byte) {
	switch header.SubType {
	case wire.HeartbeatStart:
		_ = s.writeReplyFrame(wire.TypeHeartbeat, wire.HeartbeatReply, header.MessageID, nil)
	case wire.HeartbeatReply:
		s.controller.scheduler.ClearReply(wire.TypeHeartbeat, s.SessionID(), header.MessageID)
	default:
		s.reportError(UndefinedError, "unknown heartbeat subtype")
	}
}

// dispatchError handles an ERROR_TYPE frame sent by the peer about a
// violation it detected; the receiving side surfaces it and tears down
// locally rather than replying with its own error.
func (s *Session) dispatchError(header wire.Header, body []byte) {
	in, err := wire.DecodeError(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	s.reportError(ErrorCode(in.Code), in.Message)
	s.EndSession(true)
}

func (s *Session) dispatchSingleBlock(header wire.Header, body []byte) {
	var payload []byte
	switch header.SubType {
	case wire.DataSingleStatic:
		in, err := wire.DecodeSingleStatic(body)
		if err != nil {
			s.handleBodyDecodeError(err)
			return
		}
		payload = in.Payload[:in.Used]
	case wire.DataSingleDynamic, wire.DataSingleReply:
		in, err := wire.DecodeDynamic(body)
		if err != nil {
			s.handleBodyDecodeError(err)
			return
		}
		payload = in.Payload
	default:
		s.reportError(UndefinedError, "unknown single-block subtype")
		return
	}

	if header.HasFlag(wire.FlagIsReply) {
		s.controller.scheduler.ClearReply(wire.TypeSingleBlock, s.SessionID(), header.MessageID)
	}
	// No automatic reply is composed here even when FlagReplyExpected is
	// set, and Session offers no call that sends an is-reply single-block
	// frame (SendStreamData never sets FlagIsReply), so the sender's
	// reply-timeout entry for such a frame expires.
	if s.controller.target != nil {
		s.controller.target.OnData(s, true, payload)
	}
}

func (s *Session) dispatchMultiBlock(header wire.Header, body []byte) {
	switch header.SubType {
	case wire.MultiInit:
		s.handleMultiInit(header, body)
	case wire.MultiInitReply:
		s.handleMultiInitReply(header, body)
	case wire.MultiStatic:
		s.handleMultiStatic(header, body)
	case wire.MultiFinish:
		s.handleMultiFinish(header, body)
	case wire.MultiAbortInit:
		s.handleMultiAbortInit(header, body)
	case wire.MultiAbortReply:
		// The sender's worker already erased its own active entry the
		// moment it emitted Data_Multi_Abort_Init; the receiver's ack
		// needs no further action here.
	default:
		s.reportError(UndefinedError, "unknown multi-block subtype")
	}
}

func (s *Session) handleMultiInit(header wire.Header, body []byte) {
	in, err := wire.DecodeMultiInit(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}

	totalParts := multiblock.TotalPartsForSize(in.TotalSize)
	status := wire.MultiInitStatusOK
	if !s.incoming.Begin(in.MultiblockID, totalParts, in.TotalSize) {
		status = wire.MultiInitStatusFail
	}

	replyHeader := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiInitReply,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	replyBody := wire.MultiInitReplyBody{MultiblockID: in.MultiblockID, Status: status}.Encode()
	_ = s.writeFrame(replyHeader, replyBody)
}

func (s *Session) handleMultiInitReply(header wire.Header, body []byte) {
	in, err := wire.DecodeMultiInitReply(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	if in.Status == wire.MultiInitStatusOK {
		s.outgoing.MarkReady(in.MultiblockID)
		return
	}
	s.outgoing.Remove(in.MultiblockID)
	s.reportError(MultiblockFailed, "peer rejected multi-block init")
}

func (s *Session) handleMultiStatic(header wire.Header, body []byte) {
	in, err := wire.DecodeMultiStatic(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	s.incoming.Append(in.MultiblockID, in.Payload)
}

func (s *Session) handleMultiFinish(header wire.Header, body []byte) {
	in, err := wire.DecodeMultiblockID(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	buf, ok := s.incoming.Finish(in.MultiblockID)
	if !ok {
		return
	}
	if s.controller.target != nil {
		s.controller.target.OnData(s, false, buf)
	}
}

func (s *Session) handleMultiAbortInit(header wire.Header, body []byte) {
	in, err := wire.DecodeMultiblockID(body)
	if err != nil {
		s.handleBodyDecodeError(err)
		return
	}
	if s.incoming.Abort(in.MultiblockID) {
		s.reportError(MultiblockFailed, "peer aborted multi-block transfer")
	}

	ackHeader := wire.Header{
		Version:   wire.MessageVersion,
		Type:      wire.TypeMultiBlock,
		SubType:   wire.MultiAbortReply,
		MessageID: s.NextMessageID(),
		SessionID: s.SessionID(),
	}
	ackBody := wire.MultiblockIDBody{MultiblockID: in.MultiblockID}.Encode()
	_ = s.writeFrame(ackHeader, ackBody)
}

func (s *Session) handleBodyDecodeError(err error) {
	s.sendErrorFrame(wire.ErrorInvalidMessage, "malformed message body")
	s.reportError(InvalidMessageSize, err.Error())
	s.EndSession(true)
}
