// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes evaluated on demand to inspect reactor, event queue and
// pool state at runtime.

package control

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// UnregisterProbe drops a probe; unknown names are ignored.
func (dp *DebugProbes) UnregisterProbe(name string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	delete(dp.probes, name)
}

// Names returns the registered probe names in sorted order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DumpState evaluates every probe. Probes run outside the registry lock,
// so a probe may itself register or drop probes. A panicking probe
// reports an error value in place of its result.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	snap := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		snap[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(snap))
	for k, fn := range snap {
		out[k] = evalProbe(k, fn)
	}
	return out
}

func evalProbe(name string, fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = errors.Errorf("probe %s panicked: %v", name, r)
		}
	}()
	return fn()
}
