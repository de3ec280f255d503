// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the socket multiplexer: a single dispatch goroutine that waits on the OS readiness poller (epoll on Linux) and runs re-armable readiness jobs.
package reactor
