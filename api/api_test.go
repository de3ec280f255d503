package api_test

import (
	"io"
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-invert/api"
)

func TestHandleTake(t *testing.T) {
	h := api.Handle(7)
	assert.True(t, h.Valid())
	assert.Equal(t, api.Handle(7), h.Take())
	assert.False(t, h.Valid())
	assert.Equal(t, api.NoHandle, h.Take())
}

func TestFamilyOf(t *testing.T) {
	cases := map[string]api.Family{
		"127.0.0.1:80":         api.FamilyINet,
		"[::ffff:10.0.0.1]:80": api.FamilyINet,
		"[::1]:80":             api.FamilyINet6,
	}
	for addr, want := range cases {
		assert.Equal(t, want, api.FamilyOf(netip.MustParseAddrPort(addr)), addr)
	}
	assert.Equal(t, "inet6", api.FamilyINet6.String())
}

func TestErrorMatchesByCode(t *testing.T) {
	err := errors.Wrap(api.NewError(api.ErrCodeClosed, "close", nil), "data socket")
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.NotErrorIs(t, err, api.ErrBind)
	assert.Equal(t, api.ErrCodeClosed, api.CodeOf(err))
	assert.Equal(t, "data socket: close: socket already closed", err.Error())
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := api.NewError(api.ErrCodeDisconnected, "read", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "read: connection disconnected: unexpected EOF", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(nil))
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(io.EOF))
	assert.Equal(t, "error code 99", api.ErrorCode(99).String())
}

func TestIsNetwork(t *testing.T) {
	for _, code := range []api.ErrorCode{
		api.ErrCodeWouldBlock, api.ErrCodeShutdown, api.ErrCodeDisconnected,
		api.ErrCodeNetwork, api.ErrCodeAddressInUse,
	} {
		assert.True(t, api.IsNetwork(api.NewError(code, "accept", nil)), code.String())
	}
	assert.False(t, api.IsNetwork(api.ErrClosed))
	assert.False(t, api.IsNetwork(io.EOF))
}

func TestJobSameInterest(t *testing.T) {
	fn := func(j *api.Job, r, w, e bool) *api.Job { return j }
	a := api.NewJob(3, true, false, fn)
	assert.True(t, a.SameInterest(api.NewJob(3, true, false, fn)))
	assert.False(t, a.SameInterest(api.NewJob(3, true, true, fn)))
	assert.False(t, a.SameInterest(api.NewJob(4, true, false, fn)))
	assert.False(t, a.SameInterest(nil))

	var none *api.Job
	assert.True(t, none.SameInterest(nil))
	assert.Same(t, a, a.Run(true, false, false))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "awaiting-peer", api.PhaseAwaitingPeer.String())
	assert.Equal(t, "unknown", api.Phase(42).String())
	assert.Equal(t, "connection-failed", api.EventConnectionFailed.String())
	assert.Equal(t, "unknown", api.EventUnknown.String())
}
