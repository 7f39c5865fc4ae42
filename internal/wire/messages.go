package wire

import "encoding/binary"

// Session-control bodies.

type SessionInitStartBody struct {
	OfferedSessionID uint32
	SessionIdentifier uint64
}

func (b SessionInitStartBody) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], b.OfferedSessionID)
	binary.LittleEndian.PutUint64(buf[4:12], b.SessionIdentifier)
	return buf
}

func DecodeSessionInitStart(body []byte) (SessionInitStartBody, error) {
	if len(body) != 12 {
		return SessionInitStartBody{}, ErrTruncated
	}
	return SessionInitStartBody{
		OfferedSessionID:  binary.LittleEndian.Uint32(body[0:4]),
		SessionIdentifier: binary.LittleEndian.Uint64(body[4:12]),
	}, nil
}

type SessionIDChangeBody struct {
	OldID uint32
	NewID uint32
}

func (b SessionIDChangeBody) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], b.OldID)
	binary.LittleEndian.PutUint32(buf[4:8], b.NewID)
	return buf
}

func DecodeSessionIDChange(body []byte) (SessionIDChangeBody, error) {
	if len(body) != 8 {
		return SessionIDChangeBody{}, ErrTruncated
	}
	return SessionIDChangeBody{
		OldID: binary.LittleEndian.Uint32(body[0:4]),
		NewID: binary.LittleEndian.Uint32(body[4:8]),
	}, nil
}

type SessionIDConfirmBody struct {
	NewID             uint32
	SessionIdentifier uint64
}

func (b SessionIDConfirmBody) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], b.NewID)
	binary.LittleEndian.PutUint64(buf[4:12], b.SessionIdentifier)
	return buf
}

func DecodeSessionIDConfirm(body []byte) (SessionIDConfirmBody, error) {
	if len(body) != 12 {
		return SessionIDConfirmBody{}, ErrTruncated
	}
	return SessionIDConfirmBody{
		NewID:             binary.LittleEndian.Uint32(body[0:4]),
		SessionIdentifier: binary.LittleEndian.Uint64(body[4:12]),
	}, nil
}

type SessionInitReplyBody struct {
	NewID uint32
}

func (b SessionInitReplyBody) Encode() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], b.NewID)
	return buf
}

func DecodeSessionInitReply(body []byte) (SessionInitReplyBody, error) {
	if len(body) != 4 {
		return SessionInitReplyBody{}, ErrTruncated
	}
	return SessionInitReplyBody{NewID: binary.LittleEndian.Uint32(body[0:4])}, nil
}

type SessionCloseBody struct {
	Initiator bool
}

func (b SessionCloseBody) Encode() []byte {
	buf := make([]byte, 1)
	if b.Initiator {
		buf[0] = 1
	}
	return buf
}

func DecodeSessionClose(body []byte) (SessionCloseBody, error) {
	if len(body) != 1 {
		return SessionCloseBody{}, ErrTruncated
	}
	return SessionCloseBody{Initiator: body[0] != 0}, nil
}

// Error body.

type ErrorBody struct {
	Code    uint8
	Message string
}

func (b ErrorBody) Encode() []byte {
	msg := []byte(b.Message)
	buf := make([]byte, 1+2+len(msg))
	buf[0] = b.Code
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(msg)))
	copy(buf[3:], msg)
	return buf
}

func DecodeError(body []byte) (ErrorBody, error) {
	if len(body) < 3 {
		return ErrorBody{}, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(body[1:3]))
	if len(body) != 3+n {
		return ErrorBody{}, ErrTruncated
	}
	return ErrorBody{Code: body[0], Message: string(body[3 : 3+n])}, nil
}

// Single-block data bodies.

type SingleStaticBody struct {
	Payload [SingleStaticPayloadSize]byte
	Used    int
}

func (b SingleStaticBody) Encode() []byte {
	buf := make([]byte, SingleStaticPayloadSize)
	copy(buf, b.Payload[:b.Used])
	return buf
}

func DecodeSingleStatic(body []byte) (SingleStaticBody, error) {
	if len(body) != SingleStaticPayloadSize {
		return SingleStaticBody{}, ErrTruncated
	}
	var out SingleStaticBody
	copy(out.Payload[:], body)
	out.Used = SingleStaticPayloadSize
	return out, nil
}

// DynamicBody is shared by data-single-dynamic and data-single-reply: a
// u32-length-prefixed variable payload.
type DynamicBody struct {
	Payload []byte
}

func (b DynamicBody) Encode() []byte {
	buf := make([]byte, 4+len(b.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(b.Payload)))
	copy(buf[4:], b.Payload)
	return buf
}

func DecodeDynamic(body []byte) (DynamicBody, error) {
	if len(body) < 4 {
		return DynamicBody{}, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(body[0:4]))
	if len(body) != 4+n {
		return DynamicBody{}, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, body[4:4+n])
	return DynamicBody{Payload: out}, nil
}

// Multi-block bodies.

type MultiInitBody struct {
	MultiblockID uint64
	TotalSize    uint64
}

func (b MultiInitBody) Encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], b.MultiblockID)
	binary.LittleEndian.PutUint64(buf[8:16], b.TotalSize)
	return buf
}

func DecodeMultiInit(body []byte) (MultiInitBody, error) {
	if len(body) != 16 {
		return MultiInitBody{}, ErrTruncated
	}
	return MultiInitBody{
		MultiblockID: binary.LittleEndian.Uint64(body[0:8]),
		TotalSize:    binary.LittleEndian.Uint64(body[8:16]),
	}, nil
}

type MultiInitReplyBody struct {
	MultiblockID uint64
	Status       uint8
}

func (b MultiInitReplyBody) Encode() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], b.MultiblockID)
	buf[8] = b.Status
	return buf
}

func DecodeMultiInitReply(body []byte) (MultiInitReplyBody, error) {
	if len(body) != 9 {
		return MultiInitReplyBody{}, ErrTruncated
	}
	return MultiInitReplyBody{
		MultiblockID: binary.LittleEndian.Uint64(body[0:8]),
		Status:       body[8],
	}, nil
}

type MultiStaticBody struct {
	MultiblockID    uint64
	TotalPartNumber uint32
	PartID          uint32
	Payload         []byte
}

func (b MultiStaticBody) Encode() []byte {
	buf := make([]byte, 16+len(b.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], b.MultiblockID)
	binary.LittleEndian.PutUint32(buf[8:12], b.TotalPartNumber)
	binary.LittleEndian.PutUint32(buf[12:16], b.PartID)
	copy(buf[16:], b.Payload)
	return buf
}

func DecodeMultiStatic(body []byte) (MultiStaticBody, error) {
	if len(body) < 16 {
		return MultiStaticBody{}, ErrTruncated
	}
	payload := make([]byte, len(body)-16)
	copy(payload, body[16:])
	return MultiStaticBody{
		MultiblockID:    binary.LittleEndian.Uint64(body[0:8]),
		TotalPartNumber: binary.LittleEndian.Uint32(body[8:12]),
		PartID:          binary.LittleEndian.Uint32(body[12:16]),
		Payload:         payload,
	}, nil
}

type MultiblockIDBody struct {
	MultiblockID uint64
}

func (b MultiblockIDBody) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf[0:8], b.MultiblockID)
	return buf
}

func DecodeMultiblockID(body []byte) (MultiblockIDBody, error) {
	if len(body) != 8 {
		return MultiblockIDBody{}, ErrTruncated
	}
	return MultiblockIDBody{MultiblockID: binary.LittleEndian.Uint64(body[0:8])}, nil
}
