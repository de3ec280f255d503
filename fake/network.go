// File: fake/network.go
// Author: momentics <momentics@gmail.com>
//
// In-memory api.Network. Each handle is a socket record; tests play the
// remote side through Arrive, Send, CloseRemote and Received.

package fake

import (
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/momentics/hioload-invert/api"
)

type socket struct {
	family    api.Family
	addr      netip.AddrPort
	bound     bool
	listening bool
	closed    bool

	pending   []api.Handle // listening sockets: accept queue
	acceptErr error

	inbox       []byte
	remoteEOF   bool
	out         []byte
	readShut    bool
	writeShut   bool
	readErr     error
	writeErr    error
	writeLimit  int
	soErr       error
	noDelay     bool
	reuseAddr   bool
	connectedTo netip.AddrPort
}

// Network is a fake implementation of api.Network for testing.
type Network struct {
	mu        sync.Mutex
	next      api.Handle
	port      uint16
	sockets   map[api.Handle]*socket
	dialed    []netip.AddrPort
	refused   map[netip.AddrPort]error
	stalled   map[netip.AddrPort]bool
	occupied  map[netip.AddrPort]bool
	socketErr error
}

var _ api.Network = (*Network)(nil)

// NewNetwork creates an empty fake network.
func NewNetwork() *Network {
	return &Network{
		next:     3,
		port:     40000,
		sockets:  make(map[api.Handle]*socket),
		refused:  make(map[netip.AddrPort]error),
		stalled:  make(map[netip.AddrPort]bool),
		occupied: make(map[netip.AddrPort]bool),
	}
}

func closedErr(op string) error {
	return api.NewError(api.ErrCodeNetwork, op, io.ErrClosedPipe)
}

// lookup returns the open socket for h. Must hold n.mu.
func (n *Network) lookup(h api.Handle) *socket {
	s, ok := n.sockets[h]
	if !ok || s.closed {
		return nil
	}
	return s
}

func (n *Network) alloc(f api.Family) api.Handle {
	h := n.next
	n.next++
	n.sockets[h] = &socket{family: f}
	return h
}

// FailNewSocket makes the next NewSocket call fail with err.
func (n *Network) FailNewSocket(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.socketErr = err
}

func (n *Network) NewSocket(f api.Family) (api.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.socketErr; err != nil {
		n.socketErr = nil
		return api.NoHandle, err
	}
	return n.alloc(f), nil
}

// Occupy marks addr as bound by another process.
func (n *Network) Occupy(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.occupied[addr] = true
}

func (n *Network) inUse(addr netip.AddrPort) bool {
	if n.occupied[addr] {
		return true
	}
	for _, s := range n.sockets {
		if !s.closed && s.bound && s.addr == addr {
			return true
		}
	}
	return false
}

func (n *Network) BindSocket(h api.Handle, addr netip.AddrPort) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("bind")
	}
	if addr.Port() == 0 {
		n.port++
		addr = netip.AddrPortFrom(addr.Addr(), n.port)
	}
	if n.inUse(addr) {
		return api.NewError(api.ErrCodeAddressInUse, "bind", nil)
	}
	s.addr = addr
	s.bound = true
	return nil
}

func (n *Network) ListenSocket(h api.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("listen")
	}
	s.listening = true
	return nil
}

// Arrive simulates an inbound connection to the listening socket bound at
// addr. It returns the handle the listener will hand out from accept.
func (n *Network) Arrive(addr netip.AddrPort) (api.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sockets {
		if !s.closed && s.listening && s.addr == addr {
			h := n.alloc(s.family)
			n.sockets[h].connectedTo = addr
			s.pending = append(s.pending, h)
			return h, nil
		}
	}
	return api.NoHandle, api.NewError(api.ErrCodeDisconnected, "arrive", nil)
}

// FailAccept makes the next AcceptSocket on h fail with err.
func (n *Network) FailAccept(h api.Handle, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.acceptErr = err
	}
}

func (n *Network) AcceptSocket(h api.Handle) (api.Handle, netip.AddrPort, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil || !s.listening {
		return api.NoHandle, netip.AddrPort{}, closedErr("accept")
	}
	if err := s.acceptErr; err != nil {
		s.acceptErr = nil
		return api.NoHandle, netip.AddrPort{}, err
	}
	if len(s.pending) == 0 {
		return api.NoHandle, netip.AddrPort{}, api.NewError(api.ErrCodeWouldBlock, "accept", nil)
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	return c, netip.AddrPortFrom(s.addr.Addr(), 50000), nil
}

// Refuse makes connects to addr fail with err, reported through the
// pending socket error like a real non-blocking connect.
func (n *Network) Refuse(addr netip.AddrPort, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refused[addr] = err
}

// Stall makes connects to addr never complete.
func (n *Network) Stall(addr netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stalled[addr] = true
}

// Dialed returns every address passed to ConnectSocket, in order.
func (n *Network) Dialed() []netip.AddrPort {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]netip.AddrPort(nil), n.dialed...)
}

func (n *Network) ConnectSocket(h api.Handle, addr netip.AddrPort) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return false, closedErr("connect")
	}
	n.dialed = append(n.dialed, addr)
	s.connectedTo = addr
	if err, ok := n.refused[addr]; ok {
		s.soErr = err
	}
	return false, nil
}

// Send queues p for reading on h, as if written by the remote end.
func (n *Network) Send(h api.Handle, p []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.inbox = append(s.inbox, p...)
	}
}

// CloseRemote shuts down the remote write side; reads on h drain the
// inbox and then report EOF.
func (n *Network) CloseRemote(h api.Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.remoteEOF = true
	}
}

// FailRead makes the next ReadSocket on h fail with err.
func (n *Network) FailRead(h api.Handle, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.readErr = err
	}
}

// FailWrite makes the next WriteSocket on h fail with err.
func (n *Network) FailWrite(h api.Handle, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.writeErr = err
	}
}

// LimitWrites caps the bytes accepted per WriteSocket call on h. A
// negative limit makes every write would-block; zero removes the cap.
func (n *Network) LimitWrites(h api.Handle, limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.writeLimit = limit
	}
}

// SetSocketError sets the pending error returned by ThrowErrorOnSocket.
func (n *Network) SetSocketError(h api.Handle, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s := n.lookup(h); s != nil {
		s.soErr = err
	}
}

func (n *Network) ReadSocket(h api.Handle, p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return 0, closedErr("read")
	}
	if err := s.readErr; err != nil {
		s.readErr = nil
		return 0, err
	}
	if s.readShut {
		return 0, io.EOF
	}
	if len(s.inbox) > 0 {
		k := copy(p, s.inbox)
		s.inbox = s.inbox[k:]
		return k, nil
	}
	if s.remoteEOF {
		return 0, io.EOF
	}
	return 0, api.NewError(api.ErrCodeWouldBlock, "read", nil)
}

func (n *Network) WriteSocket(h api.Handle, p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return 0, closedErr("write")
	}
	if err := s.writeErr; err != nil {
		s.writeErr = nil
		return 0, err
	}
	if s.writeShut {
		return 0, api.NewError(api.ErrCodeShutdown, "write", nil)
	}
	k := len(p)
	switch {
	case s.writeLimit < 0:
		return 0, api.NewError(api.ErrCodeWouldBlock, "write", nil)
	case s.writeLimit > 0 && k > s.writeLimit:
		k = s.writeLimit
	}
	s.out = append(s.out, p[:k]...)
	return k, nil
}

// Received returns the bytes written to h so far.
func (n *Network) Received(h api.Handle) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.sockets[h]; ok {
		return append([]byte(nil), s.out...)
	}
	return nil
}

func (n *Network) CloseSocket(h api.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("close")
	}
	s.closed = true
	for _, p := range s.pending {
		n.sockets[p].closed = true
	}
	s.pending = nil
	return nil
}

func (n *Network) CloseSocketForRead(h api.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("shutdown")
	}
	s.readShut = true
	s.inbox = nil
	return nil
}

func (n *Network) CloseSocketForWrite(h api.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("shutdown")
	}
	s.writeShut = true
	return nil
}

func (n *Network) SetReuseAddrOnSocket(h api.Handle, on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("setsockopt")
	}
	s.reuseAddr = on
	return nil
}

func (n *Network) SetNoDelayOnSocket(h api.Handle, on bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("setsockopt")
	}
	s.noDelay = on
	return nil
}

// ThrowErrorOnSocket returns and clears the pending socket error.
func (n *Network) ThrowErrorOnSocket(h api.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return closedErr("getsockopt")
	}
	err := s.soErr
	s.soErr = nil
	return err
}

func (n *Network) PollSocket(h api.Handle, writable bool, _ time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return false, closedErr("poll")
	}
	if writable && n.stalled[s.connectedTo] {
		return false, nil
	}
	return true, nil
}

func (n *Network) SocketName(h api.Handle) (netip.AddrPort, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	if s == nil {
		return netip.AddrPort{}, closedErr("getsockname")
	}
	return s.addr, nil
}

// IsClosed reports whether h has been closed.
func (n *Network) IsClosed(h api.Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sockets[h]
	return ok && s.closed
}

// IsListening reports whether h is an open listening socket.
func (n *Network) IsListening(h api.Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.lookup(h)
	return s != nil && s.listening
}

// NoDelay reports the TCP_NODELAY option of h.
func (n *Network) NoDelay(h api.Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sockets[h]
	return ok && s.noDelay
}

// ReuseAddr reports the SO_REUSEADDR option of h.
func (n *Network) ReuseAddr(h api.Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sockets[h]
	return ok && s.reuseAddr
}

// Shutdowns reports which directions of h were shut down locally.
func (n *Network) Shutdowns(h api.Handle) (read, write bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.sockets[h]; ok {
		return s.readShut, s.writeShut
	}
	return false, false
}

// Open returns the number of sockets not yet closed.
func (n *Network) Open() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := 0
	for _, s := range n.sockets {
		if !s.closed {
			k++
		}
	}
	return k
}
