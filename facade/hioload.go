// File: facade/hioload.go
// Unified facade layer for hioload-invert.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hioload aggregates the collaborators of the inverted transport behind a
// single value: logger, metrics, the platform socket layer, the readiness
// multiplexer, the event queue, the read buffer pool and the socket
// factory. Start runs the multiplexer and the event queue on their own
// goroutines; Stop cancels them and releases the poller.

package facade

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
	"github.com/momentics/hioload-invert/core/concurrency"
	"github.com/momentics/hioload-invert/internal/netsys"
	"github.com/momentics/hioload-invert/pool"
	"github.com/momentics/hioload-invert/reactor"
	"github.com/momentics/hioload-invert/transport/inverted"
)

// Hioload is the main facade type.
type Hioload struct {
	config  *control.Config
	log     *logrus.Logger
	metrics *control.Metrics
	debug   *control.DebugProbes

	mux        *reactor.Multiplexer
	events     *concurrency.EventQueue
	bufferPool api.BufferPool
	factory    *inverted.Factory

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// New constructs the facade. secure may be nil, in which case only plain
// sockets can be created.
func New(cfg *control.Config, secure api.SecureWrapper) (*Hioload, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := control.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	h := &Hioload{
		config:  cfg,
		log:     log,
		metrics: control.NewMetrics(),
		debug:   control.NewDebugProbes(),
	}

	network, err := netsys.New()
	if err != nil {
		return nil, errors.Wrap(err, "socket layer")
	}
	h.mux, err = reactor.New(
		reactor.WithLogger(log.WithField("component", "reactor")),
		reactor.WithPollTimeout(cfg.PollTimeout),
		reactor.WithCounters(h.metrics.Dispatch, h.metrics.JobsReplaced),
	)
	if err != nil {
		return nil, errors.Wrap(err, "multiplexer")
	}
	h.events = concurrency.NewEventQueue(
		concurrency.WithLogger(log.WithField("component", "events")),
		concurrency.WithPublishedCounter(h.metrics.EventsPublished),
	)
	h.bufferPool = pool.DefaultPool(cfg.ReadChunkSize)

	h.factory, err = inverted.NewFactory(inverted.Deps{
		Net:     network,
		Mux:     h.mux,
		Events:  h.events,
		Config:  cfg,
		Log:     log,
		Metrics: h.metrics,
		Pool:    h.bufferPool,
	}, secure)
	if err != nil {
		h.mux.Close()
		return nil, err
	}

	control.RegisterPlatformProbes(h.debug)
	h.debug.RegisterProbe("metrics", func() any { return h.metrics.GetSnapshot() })
	h.debug.RegisterProbe("reactor.sockets", func() any { return h.mux.Len() })
	h.debug.RegisterProbe("events.pending", func() any { return h.events.Pending() })
	h.debug.RegisterProbe("pool.stats", func() any { return h.bufferPool.Stats() })
	return h, nil
}

// NewFromStore decodes the configuration held by store and follows its
// log_level on reload.
func NewFromStore(store *control.ConfigStore, secure api.SecureWrapper) (*Hioload, error) {
	cfg, err := store.Decode()
	if err != nil {
		return nil, err
	}
	h, err := New(cfg, secure)
	if err != nil {
		return nil, err
	}
	store.OnReload(func() {
		next, err := store.Decode()
		if err != nil {
			h.log.WithError(err).Warn("ignoring invalid configuration reload")
			return
		}
		level, err := logrus.ParseLevel(next.LogLevel)
		if err != nil {
			return
		}
		h.log.SetLevel(level)
	})
	return h, nil
}

// Start runs the multiplexer and the event queue until ctx is done or Stop
// is called. Subsequent calls have no effect. Stop releases the poller, so
// a stopped facade cannot be started again and Start returns ErrClosed.
func (h *Hioload) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return errors.Wrap(api.ErrClosed, "hioload stopped")
	}
	if h.started {
		return nil
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.group, ctx = errgroup.WithContext(ctx)
	h.group.Go(func() error { return h.mux.Run(ctx) })
	h.group.Go(func() error { return h.events.Run(ctx) })
	h.started = true
	h.log.Debug("hioload started")
	return nil
}

// Wait blocks until the dispatch goroutines exit and returns the first
// failure other than cancellation.
func (h *Hioload) Wait() error {
	h.mu.Lock()
	g := h.group
	h.mu.Unlock()
	if g == nil {
		return nil
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels the dispatch goroutines and releases the poller. Calling
// Stop on a facade that was never started only releases the poller.
// Repeated calls return nil.
func (h *Hioload) Stop() error {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.stopped = true
	h.mu.Unlock()

	var result error
	if cancel != nil {
		cancel()
		result = h.Wait()
	}
	if err := h.mux.Close(); err != nil && !errors.Is(err, api.ErrClosed) && result == nil {
		result = err
	}
	return result
}

// Shutdown delegates to Stop.
func (h *Hioload) Shutdown() error {
	return h.Stop()
}

// Factory returns the socket factory.
func (h *Hioload) Factory() *inverted.Factory { return h.factory }

// Events returns the event queue sockets publish to.
func (h *Hioload) Events() *concurrency.EventQueue { return h.events }

// Logger returns the facade logger.
func (h *Hioload) Logger() *logrus.Logger { return h.log }

// Metrics returns the counter registry.
func (h *Hioload) Metrics() *control.Metrics { return h.metrics }

// GetBufferPool returns the read buffer pool.
func (h *Hioload) GetBufferPool() api.BufferPool { return h.bufferPool }

// RegisterDebugProbe adds a named probe to DumpState.
func (h *Hioload) RegisterDebugProbe(name string, fn func() any) {
	h.debug.RegisterProbe(name, fn)
}

// ProbeNames lists the registered debug probes in sorted order.
func (h *Hioload) ProbeNames() []string { return h.debug.Names() }

// DumpState evaluates every debug probe.
func (h *Hioload) DumpState() map[string]any {
	return h.debug.DumpState()
}
