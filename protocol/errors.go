package protocol

import "errors"

var (
	// ErrFormat reports a malformed header or record line.
	ErrFormat = errors.New("malformed training log")
	// ErrTruncated reports a binary payload shorter than its spec demands.
	ErrTruncated = errors.New("truncated stream")
	// ErrProtocolMismatch reports an outcome id that does not match the
	// observation it follows.
	ErrProtocolMismatch = errors.New("outcome does not match observation")
	// ErrUnsupportedType reports an element kind the writer cannot encode.
	ErrUnsupportedType = errors.New("unsupported element type")
)
