// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, runtime metrics and debug introspection for the
// inverted transport.
//
// Provides:
//   - Config decoding and validation over a concurrent-safe ConfigStore
//     with reload listeners
//   - logrus logger construction and per-socket field loggers
//   - go-metrics counters for the reactor and the sockets
//   - Debug probe registration and state export
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
