// File: reactor/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Socket multiplexer: keeps one readiness job per target, waits on the
// platform poller and runs ready jobs one at a time on the dispatch
// goroutine. A job's return value replaces it (new job), keeps it (same
// job) or removes it (nil). Results of a job that was superseded by
// AddSocket/RemoveSocket while it ran are discarded.

package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
)

const maxEvents = 128

// readiness is one poller notification.
type readiness struct {
	handle   api.Handle
	readable bool
	writable bool
	errored  bool
}

// poller is the OS readiness backend.
type poller interface {
	add(h api.Handle, readable, writable bool) error
	modify(h api.Handle, readable, writable bool) error
	remove(h api.Handle) error
	// wait blocks up to timeout; a negative timeout blocks indefinitely.
	wait(out []readiness, timeout time.Duration) (int, error)
	wake() error
	close() error
}

type entry struct {
	target any
	job    *api.Job
}

// Multiplexer implements api.Multiplexer.
type Multiplexer struct {
	mu      sync.Mutex
	poll    poller
	targets map[any]*entry
	handles map[api.Handle]*entry
	closed  bool

	ready       []readiness // owned by the dispatch goroutine
	pollTimeout time.Duration
	log         logrus.FieldLogger
	dispatched  metrics.Counter
	replaced    metrics.Counter
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the multiplexer logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Multiplexer) { m.log = l }
}

// WithPollTimeout bounds a single wait so Run notices cancellation even if
// a wakeup is lost.
func WithPollTimeout(d time.Duration) Option {
	return func(m *Multiplexer) { m.pollTimeout = d }
}

// WithCounters wires dispatch and replacement counters.
func WithCounters(dispatched, replaced metrics.Counter) Option {
	return func(m *Multiplexer) {
		m.dispatched = dispatched
		m.replaced = replaced
	}
}

// New creates a multiplexer backed by the platform poller.
func New(opts ...Option) (*Multiplexer, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return newMultiplexer(p, opts...), nil
}

func newMultiplexer(p poller, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		poll:        p,
		targets:     make(map[any]*entry),
		handles:     make(map[api.Handle]*entry),
		ready:       make([]readiness, maxEvents),
		pollTimeout: 250 * time.Millisecond,
		log:         logrus.StandardLogger(),
		dispatched:  metrics.NilCounter{},
		replaced:    metrics.NilCounter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSocket registers job for target, superseding any previous job. A nil
// job removes the target.
func (m *Multiplexer) AddSocket(target any, job *api.Job) error {
	if job == nil {
		return m.RemoveSocket(target)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Wrap(api.ErrClosed, "multiplexer")
	}
	if e, ok := m.targets[target]; ok {
		return m.replace(e, job)
	}
	h := job.Handle()
	if _, busy := m.handles[h]; busy {
		return errors.Errorf("handle %d already watched by another target", h)
	}
	if err := m.poll.add(h, job.Readable(), job.Writable()); err != nil {
		return errors.Wrapf(err, "watch handle %d", h)
	}
	e := &entry{target: target, job: job}
	m.targets[target] = e
	m.handles[h] = e
	return nil
}

// RemoveSocket stops watching target. Removing an unknown target is a
// no-op.
func (m *Multiplexer) RemoveSocket(target any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.targets[target]
	if !ok {
		return nil
	}
	return m.drop(e)
}

// replace swaps e's job. Must hold m.mu.
func (m *Multiplexer) replace(e *entry, job *api.Job) error {
	old := e.job
	e.job = job
	m.replaced.Inc(1)
	switch {
	case old.Handle() != job.Handle():
		delete(m.handles, old.Handle())
		if err := m.poll.remove(old.Handle()); err != nil {
			m.log.WithError(err).Debugf("unwatch handle %d", old.Handle())
		}
		if _, busy := m.handles[job.Handle()]; busy {
			delete(m.targets, e.target)
			return errors.Errorf("handle %d already watched by another target", job.Handle())
		}
		m.handles[job.Handle()] = e
		if err := m.poll.add(job.Handle(), job.Readable(), job.Writable()); err != nil {
			delete(m.targets, e.target)
			delete(m.handles, job.Handle())
			return errors.Wrapf(err, "watch handle %d", job.Handle())
		}
	case !old.SameInterest(job):
		if err := m.poll.modify(job.Handle(), job.Readable(), job.Writable()); err != nil {
			return errors.Wrapf(err, "rewatch handle %d", job.Handle())
		}
	}
	return nil
}

// drop forgets e. Must hold m.mu.
func (m *Multiplexer) drop(e *entry) error {
	delete(m.targets, e.target)
	delete(m.handles, e.job.Handle())
	if err := m.poll.remove(e.job.Handle()); err != nil {
		return errors.Wrapf(err, "unwatch handle %d", e.job.Handle())
	}
	return nil
}

// Len returns the number of watched targets.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

// Run dispatches jobs on the calling goroutine until ctx is done. A panic
// inside a job stops the loop and is returned as an error.
func (m *Multiplexer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = m.poll.wake() })
	defer stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.RunOnce(m.pollTimeout); err != nil {
			return err
		}
	}
}

// RunOnce waits up to timeout and services every ready job.
func (m *Multiplexer) RunOnce(timeout time.Duration) error {
	n, err := m.poll.wait(m.ready, timeout)
	if err != nil {
		return errors.Wrap(err, "poll")
	}
	for _, r := range m.ready[:n] {
		if err := m.service(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multiplexer) service(r readiness) error {
	m.mu.Lock()
	e, ok := m.handles[r.handle]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	job := e.job
	m.mu.Unlock()

	readable := r.readable && job.Readable()
	writable := r.writable && job.Writable()
	if !readable && !writable && !r.errored {
		return nil
	}

	next, err := runJob(job, readable, writable, r.errored)
	if err != nil {
		return err
	}
	m.dispatched.Inc(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.targets[e.target]; !ok || cur != e || e.job != job {
		// superseded or removed while running
		return nil
	}
	switch {
	case next == nil:
		if err := m.drop(e); err != nil {
			m.log.WithError(err).Warn("stop watching socket")
		}
	case next != job:
		if err := m.replace(e, next); err != nil {
			m.log.WithError(err).Warn("replace readiness job")
		}
	}
	return nil
}

func runJob(job *api.Job, readable, writable, errored bool) (next *api.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readiness job on handle %d panicked: %v", job.Handle(), r)
		}
	}()
	return job.Run(readable, writable, errored), nil
}

// Wake interrupts a blocked wait.
func (m *Multiplexer) Wake() error {
	return m.poll.wake()
}

// Close releases the poller. Registered sockets are not closed.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Wrap(api.ErrClosed, "multiplexer")
	}
	m.closed = true
	m.targets = make(map[any]*entry)
	m.handles = make(map[api.Handle]*entry)
	return m.poll.close()
}
