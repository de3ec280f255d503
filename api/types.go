// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// Phase enumerates the lifecycle of an inverted data socket.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPeer
	PhaseConnecting
	PhaseConnected
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingPeer:
		return "awaiting-peer"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
