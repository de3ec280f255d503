package control

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_HasNoRendezvous(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.RendezvousAddr)

	_, err := cfg.Rendezvous()
	assert.Error(t, err)
}

func TestDecodeConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"rendezvous_addr":    "10.0.0.7:24000",
		"rendezvous_timeout": "2s",
		"read_chunk_size":    "8192",
		"log_level":          "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.RendezvousTimeout)
	assert.Equal(t, 8192, cfg.ReadChunkSize)
	assert.True(t, cfg.NoDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.PollTimeout)

	ap, err := cfg.Rendezvous()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.7:24000"), ap)
}

func TestDecodeConfig_Rejects(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown key":     {"rendezvous": "1.2.3.4:5"},
		"bad address":     {"rendezvous_addr": "example.org"},
		"zero chunk size": {"read_chunk_size": 0},
		"bad duration":    {"poll_timeout": "soon"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConfig(values)
			assert.Error(t, err)
		})
	}
}

func TestConfigStore_Decode(t *testing.T) {
	cs := NewConfigStore()
	reloaded := make(chan struct{}, 1)
	cs.OnReload(func() { reloaded <- struct{}{} })

	cs.SetConfig(map[string]any{"rendezvous_addr": "[::1]:9000", "no_delay": false})
	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload listener not called")
	}

	cfg, err := cs.Decode()
	require.NoError(t, err)
	assert.False(t, cfg.NoDelay)
	assert.Equal(t, "[::1]:9000", cfg.RendezvousAddr)
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	l, err := newLogger(cfg, &out)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.Level)

	SocketLogger(l, "data").Warn("hello")
	assert.Contains(t, out.String(), "kind=data")
	assert.Contains(t, out.String(), "socket=")

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg, &out)
	assert.Error(t, err)
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.BytesRead.Inc(5)
	m.Accepted.Inc(1)
	snap := m.GetSnapshot()
	assert.Equal(t, int64(5), snap["socket.bytes.read"])
	assert.Equal(t, int64(1), snap["listen.accepted"])
	assert.Equal(t, int64(0), snap["reactor.dispatch"])
}
