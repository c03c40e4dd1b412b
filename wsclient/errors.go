package wsclient

import "github.com/pkg/errors"

// ErrClosed is returned when sending on a session that was closed.
var ErrClosed = errors.New("websocket session closed")

// ConnectionError is returned when the handshake with the server fails.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return "connecting to " + e.URL + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError is a send or receive failure on an open connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
