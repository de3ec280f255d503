// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-invert/api"
)

// Factory creates plain or secure inverted sockets over shared
// collaborators. The secure variant layers the injected wrapper over the
// adopted connection; without one, secure sockets are not supported.
type Factory struct {
	deps   Deps
	secure api.SecureWrapper
}

// NewFactory validates d. secure may be nil.
func NewFactory(d Deps, secure api.SecureWrapper) (*Factory, error) {
	d, err := d.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Factory{deps: d, secure: secure}, nil
}

func (f *Factory) wrapper(secure bool) (api.SecureWrapper, error) {
	if !secure {
		return nil, nil
	}
	if f.secure == nil {
		return nil, errors.Wrap(api.ErrNotSupported, "secure socket")
	}
	return f.secure, nil
}

// Create returns a new idle data socket.
func (f *Factory) Create(secure bool, family api.Family) (*DataSocket, error) {
	w, err := f.wrapper(secure)
	if err != nil {
		return nil, err
	}
	return NewDataSocket(f.deps, family, w)
}

// CreateListen returns a new listen socket whose accepted connections are
// wrapped when secure is set.
func (f *Factory) CreateListen(secure bool, family api.Family) (*ListenSocket, error) {
	w, err := f.wrapper(secure)
	if err != nil {
		return nil, err
	}
	return newListenSocket(f.deps, family, w)
}
