package transport

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send once the handle is closed or the outbound side has terminated.
var ErrClosed = errors.New("transport: channel closed")

// ConnectError reports a failed connection attempt. Nothing is started when it is returned.
type ConnectError struct {
	Network string
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s %s: %v", e.Network, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
