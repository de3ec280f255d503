package inverted

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-invert/api"
)

// sealed stands in for a secure transport layered over the plain one.
type sealed struct {
	api.Transport
	writes *atomic.Int32
}

func (s sealed) Write(p []byte) (int, error) {
	s.writes.Add(1)
	return s.Transport.Write(p)
}

func TestFactory_RequiresCollaborators(t *testing.T) {
	_, err := NewFactory(Deps{}, nil)
	assert.Error(t, err)
}

func TestFactory_PlainSockets(t *testing.T) {
	h := newHarness(t)
	f, err := NewFactory(h.deps(), nil)
	require.NoError(t, err)

	s, err := f.Create(false, api.FamilyINet)
	require.NoError(t, err)
	assert.NotNil(t, s.Listener())

	l, err := f.CreateListen(false, api.FamilyINet6)
	require.NoError(t, err)
	assert.True(t, l.RawHandle().Valid())
}

func TestFactory_SecureWithoutWrapper(t *testing.T) {
	h := newHarness(t)
	f, err := NewFactory(h.deps(), nil)
	require.NoError(t, err)

	_, err = f.Create(true, api.FamilyINet)
	assert.ErrorIs(t, err, api.ErrNotSupported)
	_, err = f.CreateListen(true, api.FamilyINet)
	assert.ErrorIs(t, err, api.ErrNotSupported)
}

func TestFactory_SecureWrapsAdoptedConnection(t *testing.T) {
	h := newHarness(t)
	var writes atomic.Int32
	f, err := NewFactory(h.deps(), func(tr api.Transport) (api.Transport, error) {
		return sealed{Transport: tr, writes: &writes}, nil
	})
	require.NoError(t, err)

	s, err := f.Create(true, api.FamilyINet)
	require.NoError(t, err)
	peer := h.connect(s)

	s.Write([]byte("secret"))
	h.mux.Fire(s, false, true, false)
	assert.Equal(t, int32(1), writes.Load())
	assert.Equal(t, []byte("secret"), h.net.Received(peer))

	// plain sockets from the same factory are not wrapped
	plain, err := f.Create(false, api.FamilyINet)
	require.NoError(t, err)
	assert.Nil(t, plain.listener.secure)
}
