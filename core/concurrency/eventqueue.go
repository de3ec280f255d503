// File: core/concurrency/eventqueue.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventQueue is the process-wide notification queue. Sockets publish
// lifecycle events from any goroutine; a single consumer (Run or
// DispatchPending) delivers them to handlers registered per (type, target).
// Pending events live in an unbounded FIFO so publishing never blocks the
// reactor's dispatch goroutine.

package concurrency

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
)

type handlerKey struct {
	typ    api.EventType
	target any
}

// EventQueue implements api.EventQueue.
type EventQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  *queue.Queue // of api.Event
	handlers map[handlerKey]api.EventHandler
	stopped  bool

	log       logrus.FieldLogger
	published metrics.Counter
}

var _ api.EventQueue = (*EventQueue)(nil)

// Option configures an EventQueue.
type Option func(*EventQueue)

// WithLogger sets the logger used for handler failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(q *EventQueue) { q.log = l }
}

// WithPublishedCounter counts every accepted event.
func WithPublishedCounter(c metrics.Counter) Option {
	return func(q *EventQueue) { q.published = c }
}

// NewEventQueue creates an empty, running queue.
func NewEventQueue(opts ...Option) *EventQueue {
	q := &EventQueue{
		pending:   queue.New(),
		handlers:  make(map[handlerKey]api.EventHandler),
		log:       logrus.StandardLogger(),
		published: metrics.NilCounter{},
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddEvent enqueues ev. Events added after Stop are dropped.
func (q *EventQueue) AddEvent(ev api.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		q.log.WithField("event", ev.Type).Debug("event queue stopped, dropping event")
		return
	}
	q.pending.Add(ev)
	q.published.Inc(1)
	q.cond.Signal()
}

// AdoptHandler installs h for events of type t from target, replacing any
// previous handler for the pair. A nil target matches every target.
func (q *EventQueue) AdoptHandler(t api.EventType, target any, h api.EventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[handlerKey{t, target}] = h
}

// RemoveHandler uninstalls the handler for (t, target).
func (q *EventQueue) RemoveHandler(t api.EventType, target any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, handlerKey{t, target})
}

// RemoveHandlers uninstalls every handler bound to target.
func (q *EventQueue) RemoveHandlers(target any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.handlers {
		if k.target == target {
			delete(q.handlers, k)
		}
	}
}

// Pending returns the number of undelivered events.
func (q *EventQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Length()
}

// DispatchPending delivers queued events on the calling goroutine until the
// queue is empty, including events published by the handlers themselves.
// It returns the number of events delivered.
func (q *EventQueue) DispatchPending() int {
	n := 0
	for {
		q.mu.Lock()
		if q.pending.Length() == 0 {
			q.mu.Unlock()
			return n
		}
		ev, hs := q.next()
		q.mu.Unlock()
		q.deliver(ev, hs)
		n++
	}
}

// Run delivers events until ctx is done or Stop is called.
func (q *EventQueue) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, q.Stop)
	defer stop()

	for {
		q.mu.Lock()
		for q.pending.Length() == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return ctx.Err()
		}
		ev, hs := q.next()
		q.mu.Unlock()
		q.deliver(ev, hs)
	}
}

// Stop wakes Run and rejects further events.
func (q *EventQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// next pops the head event and resolves its handlers. Must hold q.mu.
func (q *EventQueue) next() (api.Event, []api.EventHandler) {
	ev := q.pending.Remove().(api.Event)
	var hs []api.EventHandler
	if h, ok := q.handlers[handlerKey{ev.Type, ev.Target}]; ok {
		hs = append(hs, h)
	}
	if ev.Target != nil {
		if h, ok := q.handlers[handlerKey{ev.Type, nil}]; ok {
			hs = append(hs, h)
		}
	}
	return ev, hs
}

func (q *EventQueue) deliver(ev api.Event, hs []api.EventHandler) {
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.WithField("event", ev.Type).Errorf("event handler panic: %v", r)
				}
			}()
			h(ev)
		}()
	}
}
