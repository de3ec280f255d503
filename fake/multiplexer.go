// File: fake/multiplexer.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/hioload-invert/api"
)

// Multiplexer is a fake api.Multiplexer. Nothing runs on its own; tests
// call Fire to deliver readiness to the registered job.
type Multiplexer struct {
	mu     sync.Mutex
	jobs   map[any]*api.Job
	addErr error
	fired  int
}

var _ api.Multiplexer = (*Multiplexer)(nil)

// NewMultiplexer creates an empty fake multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{jobs: make(map[any]*api.Job)}
}

// FailAdd makes the next AddSocket fail with err.
func (m *Multiplexer) FailAdd(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr = err
}

func (m *Multiplexer) AddSocket(target any, job *api.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.addErr; err != nil {
		m.addErr = nil
		return err
	}
	if job == nil {
		delete(m.jobs, target)
		return nil
	}
	m.jobs[target] = job
	return nil
}

func (m *Multiplexer) RemoveSocket(target any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, target)
	return nil
}

// Job returns the job registered for target, or nil.
func (m *Multiplexer) Job(target any) *api.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[target]
}

// Len returns the number of registered jobs.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Fired returns the number of jobs run so far.
func (m *Multiplexer) Fired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Fire runs target's job with the conditions it asked for. The result
// replaces the job unless the job was superseded while running. It
// reports whether a job was registered.
func (m *Multiplexer) Fire(target any, readable, writable, errored bool) bool {
	m.mu.Lock()
	job := m.jobs[target]
	if job != nil {
		m.fired++
	}
	m.mu.Unlock()
	if job == nil {
		return false
	}

	next := job.Run(readable && job.Readable(), writable && job.Writable(), errored)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[target] != job {
		return true
	}
	if next == nil {
		delete(m.jobs, target)
	} else {
		m.jobs[target] = next
	}
	return true
}
