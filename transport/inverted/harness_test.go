package inverted

import (
	"io"
	"net/netip"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
	"github.com/momentics/hioload-invert/core/concurrency"
	"github.com/momentics/hioload-invert/fake"
)

var (
	rendezvous = netip.MustParseAddrPort("192.0.2.10:24000")
	local      = netip.MustParseAddrPort("127.0.0.1:0")
)

// recorder captures every published event.
type recorder struct {
	mu     sync.Mutex
	events []api.Event
}

func (r *recorder) record(ev api.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t api.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t api.EventType) (api.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return api.Event{}, false
}

type harness struct {
	t       *testing.T
	net     *fake.Network
	mux     *fake.Multiplexer
	events  *concurrency.EventQueue
	cfg     *control.Config
	metrics *control.Metrics
	rec     *recorder
	log     *logrus.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := control.DefaultConfig()
	cfg.RendezvousAddr = rendezvous.String()

	h := &harness{
		t:       t,
		net:     fake.NewNetwork(),
		mux:     fake.NewMultiplexer(),
		events:  concurrency.NewEventQueue(concurrency.WithLogger(log)),
		cfg:     cfg,
		metrics: control.NewMetrics(),
		rec:     &recorder{},
		log:     log,
	}
	for et := api.EventConnecting; et <= api.EventOutputError; et++ {
		h.events.AdoptHandler(et, nil, h.rec.record)
	}
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Net:     h.net,
		Mux:     h.mux,
		Events:  h.events,
		Config:  h.cfg,
		Log:     h.log,
		Metrics: h.metrics,
	}
}

func (h *harness) newSocket() *DataSocket {
	h.t.Helper()
	s, err := NewDataSocket(h.deps(), api.FamilyINet, nil)
	require.NoError(h.t, err)
	return s
}

// arrive binds s and delivers one inbound connection up to the point
// where s has adopted it and waits for the handshake.
func (h *harness) arrive(s *DataSocket) api.Handle {
	h.t.Helper()
	require.NoError(h.t, s.Bind(local))
	addr, err := s.Listener().LocalAddr()
	require.NoError(h.t, err)
	peer, err := h.net.Arrive(addr)
	require.NoError(h.t, err)

	require.True(h.t, h.mux.Fire(s.Listener(), true, false, false))
	h.events.DispatchPending()
	return peer
}

// connect drives s all the way to Connected and returns the adopted
// handle.
func (h *harness) connect(s *DataSocket) api.Handle {
	h.t.Helper()
	peer := h.arrive(s)
	require.True(h.t, h.mux.Fire(s, false, true, false))
	h.events.DispatchPending()
	require.Equal(h.t, api.PhaseConnected, phaseOf(s))
	return peer
}

func phaseOf(s *DataSocket) api.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func outputOf(s *DataSocket) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _ := s.output.Peek(s.output.Size())
	return append([]byte(nil), p...)
}
