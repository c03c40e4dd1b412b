package wsclient

import "fmt"

// EventType classifies what the server sent.
type EventType int

const (
	EventText EventType = iota + 1
	EventBinary
	EventPing
	EventPong
	EventClose
	EventError
	// EventClosed means the connection is gone and no more events will come.
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventBinary:
		return "binary"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one inbound frame, or the reason the inbound stream ended.
type Event struct {
	Type EventType
	// Data is the payload of text, binary and control frames.
	Data []byte
	// Code is the close code of an EventClose.
	Code int
	// Err is the cause of an EventError.
	Err error
}
