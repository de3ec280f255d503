//go:build !linux
// +build !linux

// File: reactor/poller_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/hioload-invert/api"

func newPoller() (poller, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "reactor", nil)
}
