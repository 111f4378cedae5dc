package connection

import "errors"

// Transport errors. They reach callers wrapped in a device UpstreamError.
var (
	ErrLinkClosed = errors.New("connection: link closed")
	ErrRejected   = errors.New("connection: command rejected by device")
	ErrBadAck     = errors.New("connection: malformed acknowledgement")
)
