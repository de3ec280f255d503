// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import "github.com/momentics/hioload-invert/api"

// interest is what a data socket wants the multiplexer to watch.
type interest struct {
	connected bool // steady-state callback instead of the handshake one
	readable  bool
	writable  bool
}

// nextInterest derives the readiness interest of a data socket from its
// state. ok is false when nothing needs watching.
func nextInterest(phase api.Phase, hasHandle, readable, writable, outputPending bool) (in interest, ok bool) {
	if !hasHandle {
		return interest{}, false
	}
	switch phase {
	case api.PhaseConnecting:
		if !writable {
			return interest{}, false
		}
		return interest{writable: true}, true
	case api.PhaseConnected:
		in = interest{
			connected: true,
			readable:  readable,
			writable:  writable && outputPending,
		}
		return in, in.readable || in.writable
	}
	return interest{}, false
}
