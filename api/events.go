// File: api/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notification kinds published by sockets and the event queue contract.

package api

// EventType names a connection lifecycle notification.
type EventType int

const (
	EventUnknown EventType = iota
	// EventConnecting is published by a listen socket when an inbound
	// connection is pending. Target is the listen socket.
	EventConnecting
	EventConnected
	// EventConnectionFailed carries a *ConnectionFailedInfo.
	EventConnectionFailed
	EventDisconnected
	EventInputReady
	EventInputShutdown
	EventOutputShutdown
	EventOutputFlushed
	EventOutputError
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventConnectionFailed:
		return "connection-failed"
	case EventDisconnected:
		return "disconnected"
	case EventInputReady:
		return "input-ready"
	case EventInputShutdown:
		return "input-shutdown"
	case EventOutputShutdown:
		return "output-shutdown"
	case EventOutputFlushed:
		return "output-flushed"
	case EventOutputError:
		return "output-error"
	default:
		return "unknown"
	}
}

// Event is a single notification. Target identifies the publishing socket.
type Event struct {
	Type   EventType
	Target any
	Data   any
}

// ConnectionFailedInfo is the payload of EventConnectionFailed.
type ConnectionFailedInfo struct {
	What string
}

// EventHandler consumes a dispatched event.
type EventHandler func(ev Event)

// EventQueue is the process-wide notification channel. AddEvent never
// blocks. Handlers are keyed by (type, target); a nil target receives the
// type from every target.
type EventQueue interface {
	AddEvent(ev Event)
	AdoptHandler(t EventType, target any, h EventHandler)
	RemoveHandler(t EventType, target any)
}
