// File: core/buffer/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Byte queues that decouple socket readiness from application reads and
// writes.

package buffer

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-invert/api"
)

// ChunkSize is the allocation unit of a Stream.
const ChunkSize = 4096

// Stream is an append/peek/pop byte queue kept as a list of chunks.
// It is not safe for concurrent use; owners serialize access.
type Stream struct {
	chunks [][]byte
	head   int // consumed prefix of chunks[0]
	size   int
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Write appends a copy of p.
func (s *Stream) Write(p []byte) {
	for len(p) > 0 {
		if n := len(s.chunks); n > 0 {
			last := s.chunks[n-1]
			if room := ChunkSize - len(last); room > 0 {
				k := min(room, len(p))
				s.chunks[n-1] = append(last, p[:k]...)
				s.size += k
				p = p[k:]
				continue
			}
		}
		k := min(ChunkSize, len(p))
		c := make([]byte, k, ChunkSize)
		copy(c, p[:k])
		s.chunks = append(s.chunks, c)
		s.size += k
		p = p[k:]
	}
}

// Peek returns a read-only view of the first n bytes without consuming
// them. The view is valid until the next mutation.
func (s *Stream) Peek(n int) ([]byte, error) {
	if n < 0 || n > s.size {
		return nil, errors.Wrapf(api.ErrBufferUnderflow, "peek %d of %d", n, s.size)
	}
	if n == 0 {
		return nil, nil
	}
	first := s.chunks[0][s.head:]
	if len(first) >= n {
		return first[:n], nil
	}

	// coalesce leading chunks until n bytes are contiguous
	merged := make([]byte, 0, max(n, ChunkSize))
	merged = append(merged, first...)
	i := 1
	for ; len(merged) < n; i++ {
		merged = append(merged, s.chunks[i]...)
	}
	rest := s.chunks[i:]
	s.chunks = append([][]byte{merged}, rest...)
	s.head = 0
	return merged[:n], nil
}

// Pop discards the first n bytes. Popping more than Size bytes panics.
func (s *Stream) Pop(n int) {
	if n < 0 || n > s.size {
		panic(errors.Wrapf(api.ErrBufferUnderflow, "pop %d of %d", n, s.size))
	}
	s.size -= n
	for n > 0 {
		avail := len(s.chunks[0]) - s.head
		if n < avail {
			s.head += n
			return
		}
		n -= avail
		s.chunks[0] = nil
		s.chunks = s.chunks[1:]
		s.head = 0
	}
	if s.size == 0 {
		s.chunks = nil
	}
}

// Clear drops all buffered bytes.
func (s *Stream) Clear() {
	s.chunks = nil
	s.head = 0
	s.size = 0
}

// Size reports the number of buffered bytes.
func (s *Stream) Size() int { return s.size }
