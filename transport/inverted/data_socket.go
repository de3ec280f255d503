// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import (
	"io"
	"net/netip"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
	"github.com/momentics/hioload-invert/core/buffer"
)

// DataSocket is the inverted data socket. It binds and waits for its peer
// instead of dialing, adopts the first inbound connection and then runs
// as a buffered duplex stream. Every public method is safe for concurrent
// use; readiness callbacks run on the multiplexer goroutine.
type DataSocket struct {
	mu sync.Mutex
	// flushed is signalled whenever isFlushed turns true.
	flushed   *sync.Cond
	isFlushed bool

	phase    api.Phase
	readable bool
	writable bool
	closed   bool

	input  *buffer.Stream
	output *buffer.Stream

	listener *ListenSocket
	peer     api.Transport
	handle   api.Handle

	deps Deps
	log  logrus.FieldLogger
}

// NewDataSocket creates an idle socket and its listen socket. A non-nil
// secure wrapper is applied to the adopted connection.
func NewDataSocket(d Deps, family api.Family, secure api.SecureWrapper) (*DataSocket, error) {
	d, err := d.withDefaults()
	if err != nil {
		return nil, err
	}
	l, err := newListenSocket(d, family, secure)
	if err != nil {
		return nil, err
	}
	s := &DataSocket{
		isFlushed: true,
		phase:     api.PhaseIdle,
		input:     buffer.NewStream(),
		output:    buffer.NewStream(),
		listener:  l,
		handle:    api.NoHandle,
		deps:      d,
		log:       control.SocketLogger(d.Log, "data"),
	}
	s.flushed = sync.NewCond(&s.mu)
	return s, nil
}

// Bind starts listening on addr (after the rendezvous dial-out) and waits
// for the peer. The socket must be idle.
func (s *DataSocket) Bind(addr netip.AddrPort) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return errors.Wrap(api.ErrClosed, "data socket")
	case s.phase != api.PhaseIdle:
		s.mu.Unlock()
		return errors.Wrapf(api.ErrBusy, "bind in phase %s", s.phase)
	}
	s.phase = api.PhaseAwaitingPeer
	s.mu.Unlock()

	// the rendezvous dial blocks, so it runs unlocked
	s.deps.Events.AdoptHandler(api.EventConnecting, s.listener, s.handleConnecting)
	if err := s.listener.Bind(addr); err != nil {
		s.deps.Events.RemoveHandler(api.EventConnecting, s.listener)
		s.mu.Lock()
		if s.phase == api.PhaseAwaitingPeer {
			s.phase = api.PhaseIdle
		}
		s.mu.Unlock()
		return err
	}
	s.log.WithField("addr", addr).Debug("awaiting peer")
	return nil
}

// Connect is the inverted connect: it binds addr and waits for the peer to
// arrive. A socket that is not idle publishes ConnectionFailed and
// returns ErrBusy.
func (s *DataSocket) Connect(addr netip.AddrPort) error {
	s.mu.Lock()
	if s.phase != api.PhaseIdle {
		s.sendEvent(api.EventConnectionFailed, &api.ConnectionFailedInfo{What: "busy"})
		s.mu.Unlock()
		return errors.Wrapf(api.ErrBusy, "connect in phase %s", s.phase)
	}
	s.mu.Unlock()
	return s.Bind(addr)
}

// handleConnecting adopts a pending inbound connection.
func (s *DataSocket) handleConnecting(api.Event) {
	t, err := s.listener.Accept()

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, api.ErrClosed) {
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("accept inbound connection")
		if s.phase == api.PhaseAwaitingPeer {
			s.sendEvent(api.EventConnectionFailed, &api.ConnectionFailedInfo{What: err.Error()})
		}
		return
	}
	if t == nil {
		return
	}
	if s.phase != api.PhaseAwaitingPeer || s.closed {
		s.log.Debug("peer already adopted, dropping extra inbound connection")
		if err := t.Close(); err != nil {
			s.log.WithError(err).Debug("close extra connection")
		}
		return
	}

	s.peer = t
	s.handle = t.RawHandle()
	if s.deps.Config.NoDelay {
		if err := s.deps.Net.SetNoDelayOnSocket(s.handle, true); err != nil {
			s.log.WithError(err).Debug("set no-delay")
		}
	}
	s.phase = api.PhaseConnecting
	s.writable = true
	s.log.WithField("handle", s.handle).Debug("peer adopted")
	s.setJob(s.newJob())
}

// Read copies up to len(p) buffered input bytes into p and consumes them.
func (s *DataSocket) Read(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consume(p, len(p))
}

// Discard consumes up to n buffered input bytes without copying them.
func (s *DataSocket) Discard(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consume(nil, n)
}

// consume pops up to n input bytes, copying them into p when p is non-nil.
// Must hold s.mu.
func (s *DataSocket) consume(p []byte, n int) int {
	n = min(n, s.input.Size())
	if n <= 0 {
		return 0
	}
	if p != nil {
		view, err := s.input.Peek(n)
		if err != nil {
			return 0
		}
		copy(p, view)
	}
	s.input.Pop(n)

	if s.input.Size() == 0 && !s.readable && !s.writable {
		s.disconnect()
	}
	return n
}

// Write queues p for sending. Writes after the output direction is shut
// down publish OutputError and are dropped.
func (s *DataSocket) Write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable {
		s.sendEvent(api.EventOutputError, nil)
		return
	}
	if len(p) == 0 {
		return
	}
	wasEmpty := s.output.Size() == 0
	s.output.Write(p)
	s.isFlushed = false
	if wasEmpty {
		s.setJob(s.newJob())
	}
}

// Flush blocks until the output buffer has drained.
func (s *DataSocket) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.isFlushed {
		s.flushed.Wait()
	}
}

// ShutdownInput half-closes the read direction and drops unread input.
func (s *DataSocket) ShutdownInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil {
		if err := s.peer.ShutdownInput(); err != nil {
			s.log.WithError(err).Debug("shutdown input")
		}
	}
	if !s.readable {
		return
	}
	s.sendEvent(api.EventInputShutdown, nil)
	s.onInputShutdown()
	if !s.writable {
		s.disconnect()
	}
	s.setJob(s.newJob())
}

// ShutdownOutput half-closes the write direction and drops unsent output.
func (s *DataSocket) ShutdownOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil {
		if err := s.peer.ShutdownOutput(); err != nil {
			s.log.WithError(err).Debug("shutdown output")
		}
	}
	if !s.writable {
		return
	}
	s.sendEvent(api.EventOutputShutdown, nil)
	s.onOutputShutdown()
	if !s.readable && s.input.Size() == 0 {
		s.disconnect()
	}
	s.setJob(s.newJob())
}

// IsReady reports whether unread input is buffered.
func (s *DataSocket) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.Size() > 0
}

// Size returns the number of buffered input bytes.
func (s *DataSocket) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.Size()
}

// IsFatal always reports false: a plain TCP socket is never left in a
// state that requires process-level recovery.
func (s *DataSocket) IsFatal() bool { return false }

// Close stops all I/O, publishes Disconnected if a peer was adopted and
// releases the peer connection and the listen socket. A second Close
// returns ErrClosed.
func (s *DataSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(api.ErrClosed, "data socket")
	}
	s.closed = true
	if err := s.deps.Mux.RemoveSocket(s); err != nil {
		s.log.WithError(err).Debug("stop watching data socket")
	}
	s.disconnect()
	s.deps.Events.RemoveHandler(api.EventConnecting, s.listener)

	var result error
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			result = err
		}
		s.peer = nil
		s.handle = api.NoHandle
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, api.ErrClosed) {
		s.log.WithError(err).Warn("close listen socket")
	}
	return result
}

// Listener returns the owned listen socket.
func (s *DataSocket) Listener() *ListenSocket { return s.listener }

// sendEvent publishes an event targeted at s.
func (s *DataSocket) sendEvent(t api.EventType, data any) {
	s.deps.Events.AddEvent(api.Event{Type: t, Target: s, Data: data})
}

// setJob registers job, or stops watching when job is nil. Must hold s.mu.
func (s *DataSocket) setJob(job *api.Job) {
	if s.closed {
		return
	}
	var err error
	if job == nil {
		err = s.deps.Mux.RemoveSocket(s)
	} else {
		err = s.deps.Mux.AddSocket(s, job)
	}
	if err != nil {
		s.log.WithError(err).Warn("update readiness job")
	}
}

// newJob builds the job matching the current state. Must hold s.mu.
func (s *DataSocket) newJob() *api.Job {
	in, ok := nextInterest(s.phase, s.peer != nil, s.readable, s.writable, s.output.Size() > 0)
	if !ok {
		return nil
	}
	fn := s.serviceConnecting
	if in.connected {
		fn = s.serviceConnected
	}
	return api.NewJob(s.handle, in.readable, in.writable, fn)
}

// nextJob keeps job when its interest still matches. Must hold s.mu.
func (s *DataSocket) nextJob(job *api.Job) *api.Job {
	next := s.newJob()
	if next != nil && job.SameInterest(next) {
		return job
	}
	return next
}

func (s *DataSocket) serviceConnecting(job *api.Job, _, writable, errored bool) *api.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != api.PhaseConnecting {
		return s.newJob()
	}

	// some platforms report a failed connect as writable
	err := s.deps.Net.ThrowErrorOnSocket(s.handle)
	if err == nil && errored {
		err = api.NewError(api.ErrCodeDisconnected, "connect", nil)
	}
	if err != nil {
		s.log.WithError(err).Debug("connection failed")
		s.sendEvent(api.EventConnectionFailed, &api.ConnectionFailedInfo{What: err.Error()})
		s.onDisconnected()
		return s.newJob()
	}

	if writable {
		s.sendEvent(api.EventConnected, nil)
		s.onConnected()
		return s.newJob()
	}
	return job
}

func (s *DataSocket) serviceConnected(job *api.Job, readable, writable, errored bool) *api.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != api.PhaseConnected {
		return s.newJob()
	}
	if errored {
		s.disconnect()
		return nil
	}

	if writable && s.writable {
		if err := s.doWrite(); err != nil {
			switch {
			case errors.Is(err, api.ErrShutdown):
				// peer stopped reading
				s.sendEvent(api.EventOutputShutdown, nil)
				s.onOutputShutdown()
				if !s.readable && s.input.Size() == 0 {
					s.disconnect()
				}
			case errors.Is(err, api.ErrDisconnected):
				s.disconnect()
			default:
				s.log.WithError(err).Warn("write failed")
				s.sendEvent(api.EventOutputError, nil)
				s.disconnect()
			}
		}
	}

	if readable && s.readable {
		if err := s.doRead(); err != nil {
			if errors.Is(err, api.ErrDisconnected) {
				s.disconnect()
			} else {
				// buffered input may still be delivered
				s.log.WithError(err).Warn("read failed")
			}
		}
	}
	return s.nextJob(job)
}

// doRead drains the peer into the input buffer. Must hold s.mu.
func (s *DataSocket) doRead() error {
	buf := s.deps.Pool.Get(s.deps.Config.ReadChunkSize)
	defer buf.Release()
	p := buf.Bytes()

	wasEmpty := s.input.Size() == 0
	total := 0
	eof := false
	for {
		n, err := s.peer.Read(p)
		if n > 0 {
			s.input.Write(p[:n])
			total += n
		}
		if err == io.EOF {
			eof = true
			break
		}
		if errors.Is(err, api.ErrWouldBlock) {
			break
		}
		if err != nil {
			s.afterRead(wasEmpty, total)
			return err
		}
		if n == 0 {
			break
		}
	}
	s.afterRead(wasEmpty, total)

	if eof {
		// peer shut down its write side
		s.sendEvent(api.EventInputShutdown, nil)
		s.readable = false
		if !s.writable && s.input.Size() == 0 {
			s.disconnect()
		}
	}
	return nil
}

func (s *DataSocket) afterRead(wasEmpty bool, total int) {
	if total == 0 {
		return
	}
	s.deps.Metrics.BytesRead.Inc(int64(total))
	if wasEmpty {
		s.sendEvent(api.EventInputReady, nil)
	}
}

// doWrite sends as much buffered output as the peer takes in one call.
// Must hold s.mu.
func (s *DataSocket) doWrite() error {
	size := s.output.Size()
	if size == 0 {
		return nil
	}
	p, err := s.output.Peek(size)
	if err != nil {
		return err
	}
	n, err := s.peer.Write(p)
	if n > 0 {
		s.discardWrittenData(n)
	}
	if err != nil && !errors.Is(err, api.ErrWouldBlock) {
		return err
	}
	return nil
}

func (s *DataSocket) discardWrittenData(n int) {
	s.output.Pop(n)
	s.deps.Metrics.BytesWritten.Inc(int64(n))
	if s.output.Size() == 0 {
		s.sendEvent(api.EventOutputFlushed, nil)
		s.setFlushed()
	}
}

func (s *DataSocket) setFlushed() {
	s.isFlushed = true
	s.flushed.Broadcast()
}

func (s *DataSocket) onConnected() {
	s.phase = api.PhaseConnected
	s.readable = true
	s.writable = true
	s.log.Debug("connected")
}

func (s *DataSocket) onInputShutdown() {
	s.input.Clear()
	s.readable = false
}

func (s *DataSocket) onOutputShutdown() {
	s.output.Clear()
	s.writable = false
	s.setFlushed()
}

// disconnect publishes Disconnected once per connection and tears down.
func (s *DataSocket) disconnect() {
	if s.phase == api.PhaseConnecting || s.phase == api.PhaseConnected {
		s.sendEvent(api.EventDisconnected, nil)
		s.deps.Metrics.Disconnected.Inc(1)
		s.log.Debug("disconnected")
	}
	s.onDisconnected()
}

func (s *DataSocket) onDisconnected() {
	s.onInputShutdown()
	s.onOutputShutdown()
	s.phase = api.PhaseDisconnected
}
