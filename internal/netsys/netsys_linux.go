// internal/netsys/netsys_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux stream sockets over golang.org/x/sys/unix. Every descriptor is
// created non-blocking; failures are classified by classify.

package netsys

import (
	"io"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-invert/api"
)

type unixNetwork struct{}

// New returns the platform socket layer.
func New() (api.Network, error) {
	return unixNetwork{}, nil
}

func fd(h api.Handle) int { return int(h) }

func sockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}
	return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

func (unixNetwork) NewSocket(f api.Family) (api.Handle, error) {
	domain := unix.AF_INET
	if f == api.FamilyINet6 {
		domain = unix.AF_INET6
	}
	s, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return api.NoHandle, classify("socket", err)
	}
	return api.Handle(s), nil
}

func (unixNetwork) BindSocket(h api.Handle, addr netip.AddrPort) error {
	if err := unix.Bind(fd(h), sockaddr(addr)); err != nil {
		return classify("bind", err)
	}
	return nil
}

func (unixNetwork) ListenSocket(h api.Handle) error {
	if err := unix.Listen(fd(h), unix.SOMAXCONN); err != nil {
		return classify("listen", err)
	}
	return nil
}

func (unixNetwork) AcceptSocket(h api.Handle) (api.Handle, netip.AddrPort, error) {
	s, sa, err := unix.Accept4(fd(h), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return api.NoHandle, netip.AddrPort{}, classifyAccept(err)
	}
	return api.Handle(s), addrPort(sa), nil
}

func (unixNetwork) ConnectSocket(h api.Handle, addr netip.AddrPort) (bool, error) {
	err := unix.Connect(fd(h), sockaddr(addr))
	switch err {
	case nil:
		return true, nil
	case unix.EINPROGRESS, unix.EALREADY:
		return false, nil
	}
	return false, classify("connect", err)
}

func (unixNetwork) ReadSocket(h api.Handle, p []byte) (int, error) {
	n, err := unix.Read(fd(h), p)
	if err != nil {
		return 0, classify("read", err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (unixNetwork) WriteSocket(h api.Handle, p []byte) (int, error) {
	n, err := unix.Write(fd(h), p)
	if err != nil {
		return 0, classify("write", err)
	}
	return n, nil
}

func (unixNetwork) CloseSocket(h api.Handle) error {
	if err := unix.Close(fd(h)); err != nil {
		return classify("close", err)
	}
	return nil
}

func (unixNetwork) CloseSocketForRead(h api.Handle) error {
	if err := unix.Shutdown(fd(h), unix.SHUT_RD); err != nil {
		return classify("shutdown", err)
	}
	return nil
}

func (unixNetwork) CloseSocketForWrite(h api.Handle) error {
	if err := unix.Shutdown(fd(h), unix.SHUT_WR); err != nil {
		return classify("shutdown", err)
	}
	return nil
}

func boolInt(on bool) int {
	if on {
		return 1
	}
	return 0
}

func (unixNetwork) SetReuseAddrOnSocket(h api.Handle, on bool) error {
	if err := unix.SetsockoptInt(fd(h), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(on)); err != nil {
		return classify("setsockopt", err)
	}
	return nil
}

func (unixNetwork) SetNoDelayOnSocket(h api.Handle, on bool) error {
	if err := unix.SetsockoptInt(fd(h), unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(on)); err != nil {
		return classify("setsockopt", err)
	}
	return nil
}

func (unixNetwork) ThrowErrorOnSocket(h api.Handle) error {
	v, err := unix.GetsockoptInt(fd(h), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return classify("getsockopt", err)
	}
	if v != 0 {
		return classify("connect", unix.Errno(v))
	}
	return nil
}

func (unixNetwork) PollSocket(h api.Handle, writable bool, timeout time.Duration) (bool, error) {
	events := int16(unix.POLLIN)
	if writable {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(h), Events: events}}
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, classify("poll", err)
		}
		return n > 0, nil
	}
}

func (unixNetwork) SocketName(h api.Handle) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd(h))
	if err != nil {
		return netip.AddrPort{}, classify("getsockname", err)
	}
	return addrPort(sa), nil
}
