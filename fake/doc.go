// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the socket layer and the
// readiness multiplexer so the inverted socket state machines can be
// driven step by step without real descriptors.

package fake
