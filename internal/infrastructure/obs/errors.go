package obs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means a call was attempted before any connection
	// attempt produced a socket. This is a caller error, not a transport
	// failure.
	ErrNotConnected = errors.New("no active connection")

	// ErrCallTimeout means no response frame arrived within the call
	// timeout window.
	ErrCallTimeout = errors.New("rpc call timed out")

	// ErrConnClosed rejects in-flight calls when the socket closes.
	ErrConnClosed = errors.New("connection closed")
)

// RequestError is a protocol-level rejection: the server responded to
// the call but with a non-ok status.
type RequestError struct {
	Request string
	Reason  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s rejected: %s", e.Request, e.Reason)
}
