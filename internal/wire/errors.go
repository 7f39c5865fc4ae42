package wire

import "errors"

var (
	// ErrTruncated is returned when fewer bytes are available than a
	// complete structure requires.
	ErrTruncated = errors.New("wire: truncated data")
	// ErrNeedMoreData signals try_parse could not find a complete frame yet;
	// callers must not advance the ring buffer.
	ErrNeedMoreData = errors.New("wire: need more data")
	// ErrFalseVersion is returned when Header.Version is not MessageVersion.
	ErrFalseVersion = errors.New("wire: false version")
	// ErrInvalidMessageSize is returned when Size is too small for the
	// header and end marker, or the end marker does not match.
	ErrInvalidMessageSize = errors.New("wire: invalid message size")
	// ErrPayloadTooLarge guards against runaway allocations from a
	// corrupt or hostile Size field.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)
