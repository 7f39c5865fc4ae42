// Package wire implements the CommonMessageHeader codec and frame-family
// message bodies described by the session-layer wire protocol: a fixed
// little-endian header, a per-family body, and a trailing 4-byte end marker
// used for cheap resync on a byte stream.
package wire

import "encoding/binary"

const (
	// MessageVersion is the only header version this codec accepts.
	MessageVersion uint8 = 1
	// EndMarker is written as the last 4 bytes of every frame.
	EndMarker uint32 = 0x03135181
	// HeaderSize is the fixed on-wire size of CommonMessageHeader.
	HeaderSize = 1 + 1 + 1 + 1 + 4 + 4 + 4 + 8
	// EndMarkerSize is the size in bytes of the trailing end marker.
	EndMarkerSize = 4
	// MinFrameSize is the smallest possible complete frame (empty body).
	MinFrameSize = HeaderSize + EndMarkerSize
)

// Flag bits on CommonMessageHeader.Flags.
const (
	FlagReplyExpected uint8 = 0x01
	FlagIsReply       uint8 = 0x02
	FlagEndOfStream   uint8 = 0x04
)

// Message type IDs (CommonMessageHeader.Type).
const (
	TypeSession     uint8 = 0x01
	TypeHeartbeat   uint8 = 0x02
	TypeError       uint8 = 0x03
	TypeSingleBlock uint8 = 0x04
	TypeMultiBlock  uint8 = 0x05
)

// SubType IDs per message family.
const (
	SessionInitStart   uint8 = 0x01
	SessionIdChange    uint8 = 0x02
	SessionIdConfirm   uint8 = 0x03
	SessionInitReply   uint8 = 0x04
	SessionCloseStart  uint8 = 0x05
	SessionCloseReply  uint8 = 0x06

	HeartbeatStart uint8 = 0x01
	HeartbeatReply uint8 = 0x02

	ErrorFalseVersion    uint8 = 0x01
	ErrorUnknownSession  uint8 = 0x02
	ErrorInvalidMessage  uint8 = 0x03

	DataSingleStatic  uint8 = 0x01
	DataSingleDynamic uint8 = 0x02
	DataSingleReply   uint8 = 0x03

	MultiInit       uint8 = 0x01
	MultiInitReply  uint8 = 0x02
	MultiStatic     uint8 = 0x03
	MultiFinish     uint8 = 0x04
	MultiAbortInit  uint8 = 0x05
	MultiAbortReply uint8 = 0x06
)

// Multi_InitReply status codes.
const (
	MultiInitStatusOK   uint8 = 0
	MultiInitStatusFail uint8 = 1
)

// SingleStaticPayloadSize is the fixed payload length of a
// data-single-static frame (below the single-frame ceiling).
const SingleStaticPayloadSize = 1000

// MultiChunkPayloadSize is the payload length of every Data_Multi_Static
// frame except possibly the last.
const MultiChunkPayloadSize = 1000

// PageSize backs outgoing multi-block buffer allocation.
const PageSize = 4096

// Header is CommonMessageHeader: fixed layout, little-endian.
type Header struct {
	Version        uint8
	Type           uint8
	SubType        uint8
	Flags          uint8
	Size           uint32
	MessageID      uint32
	SessionID      uint32
	TotalMessageID uint64
}

// HasFlag reports whether bit is set in Flags.
func (h Header) HasFlag(bit uint8) bool {
	return h.Flags&bit != 0
}

// EncodeHeader writes h in CommonMessageHeader wire layout.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = h.Type
	buf[2] = h.SubType
	buf[3] = h.Flags
	binary.LittleEndian.PutUint32(buf[4:8], h.Size)
	binary.LittleEndian.PutUint32(buf[8:12], h.MessageID)
	binary.LittleEndian.PutUint32(buf[12:16], h.SessionID)
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalMessageID)
	return buf
}

// DecodeHeader parses a fixed HeaderSize-byte buffer into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, ErrTruncated
	}
	return Header{
		Version:        buf[0],
		Type:           buf[1],
		SubType:        buf[2],
		Flags:          buf[3],
		Size:           binary.LittleEndian.Uint32(buf[4:8]),
		MessageID:      binary.LittleEndian.Uint32(buf[8:12]),
		SessionID:      binary.LittleEndian.Uint32(buf[12:16]),
		TotalMessageID: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}
