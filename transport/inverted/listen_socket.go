// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import (
	"net/netip"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
)

// ListenSocket dials the configured rendezvous endpoint before it starts
// listening, then reports pending inbound connections as EventConnecting
// and leaves the accept to its owner.
type ListenSocket struct {
	mu     sync.Mutex
	handle api.Handle
	client *Conn // rendezvous connection, owned for the socket's lifetime
	secure api.SecureWrapper

	deps Deps
	log  logrus.FieldLogger
}

// NewListenSocket allocates the listening handle.
func NewListenSocket(d Deps, family api.Family) (*ListenSocket, error) {
	d, err := d.withDefaults()
	if err != nil {
		return nil, err
	}
	return newListenSocket(d, family, nil)
}

func newListenSocket(d Deps, family api.Family, secure api.SecureWrapper) (*ListenSocket, error) {
	h, err := d.Net.NewSocket(family)
	if err != nil {
		return nil, api.NewError(api.ErrCodeSocketCreate, "listen socket", err)
	}
	return &ListenSocket{
		handle: h,
		secure: secure,
		deps:   d,
		log:    control.SocketLogger(d.Log, "listen"),
	}, nil
}

// Bind dials the rendezvous endpoint, then binds addr and starts
// listening. An occupied address fails with ErrAddressInUse, anything
// else with ErrBind.
func (l *ListenSocket) Bind(addr netip.AddrPort) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.handle.Valid() {
		return errors.Wrap(api.ErrClosed, "listen socket")
	}
	if l.client != nil {
		return api.NewError(api.ErrCodeBind, "bind", errors.New("already bound"))
	}

	if err := l.rendezvous(); err != nil {
		return api.NewError(api.ErrCodeBind, "rendezvous", err)
	}
	if err := l.listen(addr); err != nil {
		l.dropClient()
		return err
	}
	l.log.WithField("addr", addr).Debug("listening")
	return nil
}

// listen binds and watches the listening handle. Must hold l.mu.
func (l *ListenSocket) listen(addr netip.AddrPort) error {
	net := l.deps.Net
	if err := net.SetReuseAddrOnSocket(l.handle, true); err != nil {
		return api.NewError(api.ErrCodeBind, "bind", err)
	}
	if err := net.BindSocket(l.handle, addr); err != nil {
		if errors.Is(err, api.ErrAddressInUse) {
			return api.NewError(api.ErrCodeAddressInUse, "bind", err)
		}
		return api.NewError(api.ErrCodeBind, "bind", err)
	}
	if err := net.ListenSocket(l.handle); err != nil {
		return api.NewError(api.ErrCodeBind, "listen", err)
	}
	if err := l.deps.Mux.AddSocket(l, l.newJob()); err != nil {
		return api.NewError(api.ErrCodeBind, "watch", err)
	}
	return nil
}

// dropClient releases the rendezvous connection. Must hold l.mu.
func (l *ListenSocket) dropClient() {
	if l.client == nil {
		return
	}
	if err := l.client.Close(); err != nil {
		l.log.WithError(err).Warn("close rendezvous connection")
	}
	l.client = nil
}

// rendezvous opens the outbound connection. Must hold l.mu.
func (l *ListenSocket) rendezvous() error {
	cfg := l.deps.Config
	target, err := cfg.Rendezvous()
	if err != nil {
		return err
	}
	h, err := l.deps.Net.NewSocket(api.FamilyOf(target))
	if err != nil {
		return api.NewError(api.ErrCodeSocketCreate, "rendezvous", err)
	}
	c := newConn(l.deps.Net, h, l.log)
	if err := c.dial(target, cfg.RendezvousTimeout); err != nil {
		if cerr := c.Close(); cerr != nil {
			l.log.WithError(cerr).Debug("close rendezvous socket")
		}
		return errors.Wrapf(err, "dial %s", target)
	}
	l.client = c
	l.log.WithField("rendezvous", target).Info("rendezvous connection established")
	return nil
}

// Close stops watching the socket and releases the listening handle and
// the rendezvous connection. A second Close returns ErrClosed.
func (l *ListenSocket) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.handle.Valid() {
		return errors.Wrap(api.ErrClosed, "listen socket")
	}
	if err := l.deps.Mux.RemoveSocket(l); err != nil {
		l.log.WithError(err).Debug("stop watching listen socket")
	}
	var result error
	if err := l.deps.Net.CloseSocket(l.handle.Take()); err != nil {
		result = api.NewError(api.ErrCodeIOClose, "close", err)
	}
	l.dropClient()
	return result
}

// Accept takes one pending connection. It returns (nil, nil) when none is
// ready yet. The readiness job is re-armed after every attempt.
func (l *ListenSocket) Accept() (api.Transport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.handle.Valid() {
		return nil, errors.Wrap(api.ErrClosed, "listen socket")
	}

	h, _, err := l.deps.Net.AcceptSocket(l.handle)
	l.rearm()
	if err != nil {
		if api.IsNetwork(err) {
			l.deps.Metrics.AcceptRetry.Inc(1)
			return nil, nil
		}
		return nil, errors.Wrap(err, "accept")
	}
	l.deps.Metrics.Accepted.Inc(1)

	c := newConn(l.deps.Net, h, control.SocketLogger(l.deps.Log, "conn"))
	if l.secure == nil {
		return c, nil
	}
	t, err := l.secure(c)
	if err != nil {
		if cerr := c.Close(); cerr != nil {
			l.log.WithError(cerr).Debug("close rejected connection")
		}
		return nil, api.NewError(api.ErrCodeConnect, "secure", err)
	}
	return t, nil
}

// rearm registers a fresh readable job. Must hold l.mu.
func (l *ListenSocket) rearm() {
	if err := l.deps.Mux.AddSocket(l, l.newJob()); err != nil {
		l.log.WithError(err).Warn("re-arm listen socket")
	}
}

func (l *ListenSocket) newJob() *api.Job {
	return api.NewJob(l.handle, true, false, l.serviceListening)
}

func (l *ListenSocket) serviceListening(job *api.Job, readable, _, errored bool) *api.Job {
	if errored {
		if err := l.Close(); err != nil {
			l.log.WithError(err).Debug("close listen socket after error")
		}
		return nil
	}
	if readable {
		l.deps.Events.AddEvent(api.Event{Type: api.EventConnecting, Target: l})
		return nil
	}
	return job
}

// LocalAddr returns the bound address.
func (l *ListenSocket) LocalAddr() (netip.AddrPort, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.handle.Valid() {
		return netip.AddrPort{}, errors.Wrap(api.ErrClosed, "listen socket")
	}
	return l.deps.Net.SocketName(l.handle)
}

// RawHandle returns the listening descriptor, or NoHandle once closed.
func (l *ListenSocket) RawHandle() api.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}
