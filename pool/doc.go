// Package pool
// Author: momentics <momentics@gmail.com>
//
// Scratch buffer pooling for the socket read path. Pools are segmented by
// buffer size so sockets configured with different read chunk sizes do
// not evict each other's buffers.
package pool
