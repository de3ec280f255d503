//go:build !linux
// +build !linux

// Stub implementation for unsupported platforms.

package netsys

import "github.com/momentics/hioload-invert/api"

// New returns an error for unsupported platforms.
func New() (api.Network, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "netsys", nil)
}
