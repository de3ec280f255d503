// control/log.go
// Author: momentics <momentics@gmail.com>
//
// Logger construction. Components receive a logrus.FieldLogger and tag
// their entries with a socket identifier.

package control

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// NewLogger builds a text logger writing to stderr at cfg.LogLevel.
func NewLogger(cfg *Config) (*logrus.Logger, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *Config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log_level")
	}
	return &logrus.Logger{
		Out:       out,
		Formatter: &logrus.TextFormatter{FullTimestamp: true},
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}, nil
}

// SocketLogger derives a per-socket logger carrying a fresh identifier.
func SocketLogger(base logrus.FieldLogger, kind string) logrus.FieldLogger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithFields(logrus.Fields{
		"socket": xid.New().String(),
		"kind":   kind,
	})
}
