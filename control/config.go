// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Socket configuration and the thread-safe key/value store it is decoded
// from. Keys follow the mapstructure tags of Config.

package control

import (
	"net/netip"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config holds all configurable parameters of the inverted transport.
type Config struct {
	// RendezvousAddr is the ip:port dialed by a listen socket before it
	// starts listening. There is no default.
	RendezvousAddr    string        `mapstructure:"rendezvous_addr"`
	RendezvousTimeout time.Duration `mapstructure:"rendezvous_timeout"`
	ReadChunkSize     int           `mapstructure:"read_chunk_size"`
	NoDelay           bool          `mapstructure:"no_delay"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	LogLevel          string        `mapstructure:"log_level"`
}

// DefaultConfig returns a baseline configuration. The rendezvous address
// is left empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		RendezvousTimeout: 5 * time.Second,
		ReadChunkSize:     4096,
		NoDelay:           true,
		PollTimeout:       250 * time.Millisecond,
		LogLevel:          "info",
	}
}

// DecodeConfig overlays values onto DefaultConfig. Durations may be given
// as strings ("2s") or integers (nanoseconds).
func DecodeConfig(values map[string]any) (*Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return nil, errors.Wrap(err, "config decoder")
	}
	if err := dec.Decode(values); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. A missing rendezvous address is not an
// error here; binding fails instead.
func (c *Config) Validate() error {
	if c.ReadChunkSize <= 0 {
		return errors.Errorf("read_chunk_size must be positive, got %d", c.ReadChunkSize)
	}
	if c.RendezvousTimeout <= 0 {
		return errors.Errorf("rendezvous_timeout must be positive, got %v", c.RendezvousTimeout)
	}
	if c.PollTimeout <= 0 {
		return errors.Errorf("poll_timeout must be positive, got %v", c.PollTimeout)
	}
	if c.RendezvousAddr != "" {
		if _, err := c.Rendezvous(); err != nil {
			return err
		}
	}
	return nil
}

// Rendezvous parses RendezvousAddr.
func (c *Config) Rendezvous() (netip.AddrPort, error) {
	if c.RendezvousAddr == "" {
		return netip.AddrPort{}, errors.New("rendezvous_addr is not configured")
	}
	ap, err := netip.ParseAddrPort(c.RendezvousAddr)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(err, "rendezvous_addr %q", c.RendezvousAddr)
	}
	return ap, nil
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:    make(map[string]any),
		listeners: make([]func(), 0),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	snap := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		snap[k] = v
	}
	return snap
}

// SetConfig merges new values and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.dispatchReload()
}

// Decode builds a Config from the current snapshot.
func (cs *ConfigStore) Decode() (*Config, error) {
	return DecodeConfig(cs.GetSnapshot())
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload() {
	for _, fn := range cs.listeners {
		go fn()
	}
}
