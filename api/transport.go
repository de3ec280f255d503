// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Socket handles, the platform socket layer contract and the transport
// capability interface implemented by plain and secure variants.

package api

import (
	"net/netip"
	"time"
)

// Handle is a raw socket descriptor.
type Handle int

// NoHandle marks an absent or released descriptor.
const NoHandle Handle = -1

// Valid reports whether h refers to a descriptor.
func (h Handle) Valid() bool { return h >= 0 }

// Take moves the descriptor out of *h, leaving NoHandle behind.
func (h *Handle) Take() Handle {
	v := *h
	*h = NoHandle
	return v
}

// Family is a socket address family.
type Family int

const (
	FamilyINet Family = iota
	FamilyINet6
)

func (f Family) String() string {
	if f == FamilyINet6 {
		return "inet6"
	}
	return "inet"
}

// FamilyOf returns the family matching addr.
func FamilyOf(addr netip.AddrPort) Family {
	if addr.Addr().Is4() || addr.Addr().Is4In6() {
		return FamilyINet
	}
	return FamilyINet6
}

// Network is the non-blocking stream socket layer. Every failure is an
// *Error classified as AddressInUse, WouldBlock, Shutdown, Disconnected or
// Network. ReadSocket reports an orderly peer shutdown as (0, io.EOF).
type Network interface {
	NewSocket(f Family) (Handle, error)
	BindSocket(h Handle, addr netip.AddrPort) error
	ListenSocket(h Handle) error
	AcceptSocket(h Handle) (Handle, netip.AddrPort, error)
	// ConnectSocket starts a connect; it returns true when the connection
	// completed immediately.
	ConnectSocket(h Handle, addr netip.AddrPort) (bool, error)
	ReadSocket(h Handle, p []byte) (int, error)
	WriteSocket(h Handle, p []byte) (int, error)
	CloseSocket(h Handle) error
	CloseSocketForRead(h Handle) error
	CloseSocketForWrite(h Handle) error
	SetReuseAddrOnSocket(h Handle, on bool) error
	SetNoDelayOnSocket(h Handle, on bool) error
	// ThrowErrorOnSocket returns the pending socket error, if any.
	ThrowErrorOnSocket(h Handle) error
	// PollSocket waits until h is writable (or readable) or timeout expires.
	PollSocket(h Handle, writable bool, timeout time.Duration) (bool, error)
	SocketName(h Handle) (netip.AddrPort, error)
}

// Transport is the capability set shared by the plain and secure data
// transports.
type Transport interface {
	Bind(addr netip.AddrPort) error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ShutdownInput() error
	ShutdownOutput() error
	RawHandle() Handle
}

// SecureWrapper layers a secure transport over an adopted plain one.
type SecureWrapper func(Transport) (Transport, error)
