// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import (
	"net/netip"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
)

// Conn is the plain data transport: a connected non-blocking socket
// handle. It owns the handle until Close.
type Conn struct {
	net    api.Network
	handle api.Handle
	log    logrus.FieldLogger
}

var _ api.Transport = (*Conn)(nil)

func newConn(n api.Network, h api.Handle, log logrus.FieldLogger) *Conn {
	return &Conn{net: n, handle: h, log: log}
}

// Bind binds the handle to addr.
func (c *Conn) Bind(addr netip.AddrPort) error {
	if err := c.net.BindSocket(c.handle, addr); err != nil {
		if errors.Is(err, api.ErrAddressInUse) {
			return api.NewError(api.ErrCodeAddressInUse, "bind", err)
		}
		return api.NewError(api.ErrCodeBind, "bind", err)
	}
	return nil
}

// dial connects to addr and waits up to timeout for the handshake.
func (c *Conn) dial(addr netip.AddrPort, timeout time.Duration) error {
	done, err := c.net.ConnectSocket(c.handle, addr)
	if err != nil {
		return api.NewError(api.ErrCodeConnect, "connect", err)
	}
	if !done {
		ok, err := c.net.PollSocket(c.handle, true, timeout)
		if err != nil {
			return api.NewError(api.ErrCodeConnect, "connect", err)
		}
		if !ok {
			return api.NewError(api.ErrCodeConnect, "connect", errors.Errorf("no answer from %s within %v", addr, timeout))
		}
	}
	// a failed non-blocking connect can still poll writable
	if err := c.net.ThrowErrorOnSocket(c.handle); err != nil {
		return api.NewError(api.ErrCodeConnect, "connect", err)
	}
	return nil
}

// Close releases the handle. Closing twice returns ErrClosed.
func (c *Conn) Close() error {
	if !c.handle.Valid() {
		return errors.Wrap(api.ErrClosed, "conn")
	}
	if err := c.net.CloseSocket(c.handle.Take()); err != nil {
		return api.NewError(api.ErrCodeIOClose, "close", err)
	}
	return nil
}

func (c *Conn) Read(p []byte) (int, error)  { return c.net.ReadSocket(c.handle, p) }
func (c *Conn) Write(p []byte) (int, error) { return c.net.WriteSocket(c.handle, p) }

func (c *Conn) ShutdownInput() error  { return c.net.CloseSocketForRead(c.handle) }
func (c *Conn) ShutdownOutput() error { return c.net.CloseSocketForWrite(c.handle) }

// RawHandle returns the descriptor, or NoHandle once closed.
func (c *Conn) RawHandle() api.Handle { return c.handle }
