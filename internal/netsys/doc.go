// File: internal/netsys/doc.go
// Package netsys
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform socket layer behind api.Network: non-blocking stream sockets
// with typed failures (address-in-use, would-block, shutdown-by-peer,
// disconnected, generic network failure). Linux only; other platforms get
// a stub that reports ErrNotSupported.

package netsys
