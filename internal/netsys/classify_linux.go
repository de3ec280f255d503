//go:build linux
// +build linux

package netsys

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-invert/api"
)

// classify maps an errno onto the socket error taxonomy.
func classify(op string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return api.NewError(api.ErrCodeNetwork, op, err)
	}
	switch errno {
	case unix.EADDRINUSE:
		return api.NewError(api.ErrCodeAddressInUse, op, errno)
	case unix.EAGAIN, unix.EINTR, unix.EINPROGRESS:
		return api.NewError(api.ErrCodeWouldBlock, op, errno)
	case unix.EPIPE:
		return api.NewError(api.ErrCodeShutdown, op, errno)
	case unix.ECONNRESET, unix.ENOTCONN, unix.ETIMEDOUT, unix.EHOSTDOWN:
		return api.NewError(api.ErrCodeDisconnected, op, errno)
	}
	return api.NewError(api.ErrCodeNetwork, op, errno)
}

// classifyAccept treats connections aborted before accept as retryable.
func classifyAccept(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) && (errno == unix.ECONNABORTED || errno == unix.EPROTO) {
		return api.NewError(api.ErrCodeWouldBlock, "accept", errno)
	}
	return classify("accept", err)
}
