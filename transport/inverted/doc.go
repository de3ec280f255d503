// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package inverted implements connection inversion over non-blocking TCP.
//
// A DataSocket behaves, for its application, like the side that connects
// out, yet it never dials its peer: Bind (or Connect) hands the local
// address to an owned ListenSocket, which first dials a configured
// rendezvous endpoint and only then listens. The first inbound connection
// is adopted as the DataSocket's transport and from that point the socket
// is an ordinary buffered duplex stream driven by readiness jobs.
//
// All lifecycle changes are reported through the event queue. The only
// blocking call is Flush.
package inverted
