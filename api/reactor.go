// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Readiness jobs and the multiplexer contract used to watch sockets.

package api

// JobFunc services a readiness notification. It returns the job that should
// stay registered: the same job to keep watching, a new job to change
// interest, or nil to stop watching the socket.
type JobFunc func(job *Job, readable, writable, errored bool) *Job

// Job binds a socket handle and an interest set to a callback. Jobs are
// immutable; identity is pointer identity.
type Job struct {
	handle   Handle
	readable bool
	writable bool
	fn       JobFunc
}

// NewJob creates a readiness job.
func NewJob(h Handle, readable, writable bool, fn JobFunc) *Job {
	return &Job{handle: h, readable: readable, writable: writable, fn: fn}
}

func (j *Job) Handle() Handle { return j.handle }
func (j *Job) Readable() bool { return j.readable }
func (j *Job) Writable() bool { return j.writable }

// Run invokes the callback.
func (j *Job) Run(readable, writable, errored bool) *Job {
	return j.fn(j, readable, writable, errored)
}

// SameInterest reports whether o watches the same handle for the same
// conditions.
func (j *Job) SameInterest(o *Job) bool {
	if j == nil || o == nil {
		return j == o
	}
	return j.handle == o.handle && j.readable == o.readable && j.writable == o.writable
}

// Multiplexer dispatches readiness jobs. At most one job is registered per
// target; AddSocket supersedes the previous one.
type Multiplexer interface {
	AddSocket(target any, job *Job) error
	RemoveSocket(target any) error
}
