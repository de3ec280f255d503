package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-invert/api"
)

func TestStream_WriteKeepsCallOrder(t *testing.T) {
	s := NewStream()
	s.Write([]byte("abc"))
	s.Write([]byte("defg"))
	require.Equal(t, 7, s.Size())

	view, err := s.Peek(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefg"), view)
}

func TestStream_PeekDoesNotConsume(t *testing.T) {
	s := NewStream()
	s.Write([]byte("hello"))

	view, err := s.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("he"), view)
	assert.Equal(t, 5, s.Size())
}

func TestStream_PeekPastSizeFails(t *testing.T) {
	s := NewStream()
	s.Write([]byte("abc"))

	_, err := s.Peek(4)
	assert.ErrorIs(t, err, api.ErrBufferUnderflow)

	view, err := s.Peek(0)
	assert.NoError(t, err)
	assert.Empty(t, view)
}

func TestStream_PopPastSizePanics(t *testing.T) {
	s := NewStream()
	s.Write([]byte("abc"))
	assert.Panics(t, func() { s.Pop(4) })
	assert.Equal(t, 3, s.Size())
}

func TestStream_PopAcrossChunks(t *testing.T) {
	s := NewStream()
	data := bytes.Repeat([]byte("0123456789"), 1000) // spans three chunks
	s.Write(data)
	require.Equal(t, len(data), s.Size())

	s.Pop(ChunkSize + 5)
	assert.Equal(t, len(data)-ChunkSize-5, s.Size())

	view, err := s.Peek(s.Size())
	require.NoError(t, err)
	assert.Equal(t, data[ChunkSize+5:], view)

	s.Pop(s.Size())
	assert.Equal(t, 0, s.Size())
}

func TestStream_PeekCoalescesChunks(t *testing.T) {
	s := NewStream()
	first := bytes.Repeat([]byte{'a'}, ChunkSize)
	s.Write(first)
	s.Write([]byte("tail"))
	s.Pop(ChunkSize - 2)

	view, err := s.Peek(6)
	require.NoError(t, err)
	assert.Equal(t, []byte("aatail"), view)

	// the stream is still consistent after coalescing
	s.Write([]byte("!"))
	view, err = s.Peek(s.Size())
	require.NoError(t, err)
	assert.Equal(t, []byte("aatail!"), view)
}

func TestStream_Clear(t *testing.T) {
	s := NewStream()
	s.Write([]byte("xyz"))
	s.Clear()
	assert.Equal(t, 0, s.Size())
	_, err := s.Peek(1)
	assert.Error(t, err)
}
