//go:build linux

package facade_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
	"github.com/momentics/hioload-invert/facade"
)

// Test the full lifecycle: construction from a config store, socket
// creation and bind, debug probes, reload hooks and shutdown.
func TestHioloadFullLifecycle(t *testing.T) {
	rv, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer rv.Close()

	store := control.NewConfigStore()
	store.SetConfig(map[string]any{
		"rendezvous_addr": rv.Addr().String(),
		"poll_timeout":    "20ms",
		"log_level":       "warn",
	})
	h, err := facade.NewFromStore(store, nil)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, h.Logger().GetLevel())

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Start(context.Background()))

	s, err := h.Factory().Create(false, api.FamilyINet)
	require.NoError(t, err)
	require.NoError(t, s.Bind(netip.MustParseAddrPort("127.0.0.1:0")))

	_, err = h.Factory().Create(true, api.FamilyINet)
	assert.ErrorIs(t, err, api.ErrNotSupported)

	h.RegisterDebugProbe("custom", func() any { return "ok" })
	state := h.DumpState()
	assert.Equal(t, "ok", state["custom"])
	assert.Contains(t, state, "metrics")
	assert.Contains(t, state, "pool.stats")
	assert.Equal(t, 1, state["reactor.sockets"])
	assert.Subset(t, h.ProbeNames(), []string{"custom", "events.pending", "platform.cpus", "reactor.sockets"})

	buf := h.GetBufferPool().Get(16)
	assert.Len(t, buf.Bytes(), 16)
	stats := h.GetBufferPool().Stats()
	assert.Positive(t, stats.TotalAlloc+stats.TotalReuse)
	h.GetBufferPool().Put(buf)

	store.SetConfig(map[string]any{"log_level": "debug"})
	assert.Eventually(t, func() bool {
		return h.Logger().GetLevel() == logrus.DebugLevel
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, h.Shutdown())
	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.Start(context.Background()), api.ErrClosed)
}

func TestStopWithoutStartPreventsStart(t *testing.T) {
	h, err := facade.New(control.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, h.Stop())
	require.NoError(t, h.Wait())
	assert.ErrorIs(t, h.Start(context.Background()), api.ErrClosed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := control.DefaultConfig()
	cfg.ReadChunkSize = 0
	_, err := facade.New(cfg, nil)
	assert.Error(t, err)
}
