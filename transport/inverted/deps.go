// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package inverted

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/momentics/hioload-invert/api"
	"github.com/momentics/hioload-invert/control"
	"github.com/momentics/hioload-invert/pool"
)

// Deps are the collaborators shared by every socket of a factory.
type Deps struct {
	Net     api.Network
	Mux     api.Multiplexer
	Events  api.EventQueue
	Config  *control.Config
	Log     logrus.FieldLogger
	Metrics *control.Metrics
	Pool    api.BufferPool
}

// withDefaults validates d and fills optional fields.
func (d Deps) withDefaults() (Deps, error) {
	if d.Net == nil || d.Mux == nil || d.Events == nil {
		return d, errors.New("inverted: network, multiplexer and event queue are required")
	}
	if d.Config == nil {
		d.Config = control.DefaultConfig()
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Metrics == nil {
		d.Metrics = control.NewMetrics()
	}
	if d.Pool == nil {
		d.Pool = pool.DefaultPool(d.Config.ReadChunkSize)
	}
	return d, nil
}
