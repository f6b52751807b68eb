package netx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/peerbench/peerbench/pkg/transfer1"
)

// stream wraps a libp2p stream with counters for read/written bytes.
type stream struct {
	network.Stream

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

func newStream(s network.Stream) *stream {
	return &stream{Stream: s}
}

// Read reads from the underlying stream and updates the read bytes
// counter.
func (s *stream) Read(b []byte) (int, error) {
	n, err := s.Stream.Read(b)
	s.bytesRead.Add(int64(n))
	return n, err
}

// Write writes to the underlying stream and updates the written bytes
// counter.
func (s *stream) Write(b []byte) (int, error) {
	n, err := s.Stream.Write(b)
	s.bytesWritten.Add(int64(n))
	return n, err
}

// ByteCounters returns the read and written byte counters, in this
// order.
func (s *stream) ByteCounters() (int64, int64) {
	return s.bytesRead.Load(), s.bytesWritten.Load()
}

// dialConn is the client-owned side of a connection. Streams are
// opened lazily through the host so the protocol identifier is
// negotiated per stream.
type dialConn struct {
	host  host.Host
	proto protocol.ID
	peer  peer.ID
	done  <-chan struct{}

	mu      sync.Mutex
	streams []*stream
}

func (c *dialConn) OpenStream(ctx context.Context) (transfer1.Stream, error) {
	s, err := c.host.NewStream(ctx, c.peer, c.proto)
	if err != nil {
		return nil, err
	}
	ws := newStream(s)
	c.mu.Lock()
	c.streams = append(c.streams, ws)
	c.mu.Unlock()
	return ws, nil
}

// ByteCounters returns the bytes read and written across all streams
// opened on this connection, in this order.
func (c *dialConn) ByteCounters() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var read, written int64
	for _, s := range c.streams {
		r, w := s.ByteCounters()
		read += r
		written += w
	}
	return read, written
}

func (c *dialConn) AcceptStream(context.Context) (transfer1.Stream, error) {
	return nil, errors.New("accept not supported on a dialed connection")
}

func (c *dialConn) RemotePeer() string {
	return c.peer.String()
}

// Close closes every connection to the peer. Dialed connections are
// per-measurement, so there is exactly one.
func (c *dialConn) Close() error {
	return c.host.Network().ClosePeer(c.peer)
}

func (c *dialConn) Done() <-chan struct{} {
	return c.done
}

// acceptConn is the server-owned side of a connection, created when
// the remote peer opens its first stream. That stream is already
// negotiated and is handed out by the first AcceptStream call.
type acceptConn struct {
	conn network.Conn
	done <-chan struct{}

	mu       sync.Mutex
	first    *stream
	accepted bool
}

func (c *acceptConn) OpenStream(context.Context) (transfer1.Stream, error) {
	return nil, errors.New("open not supported on an accepted connection")
}

func (c *acceptConn) AcceptStream(context.Context) (transfer1.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accepted {
		return nil, errors.New("no further streams on this connection")
	}
	c.accepted = true
	return c.first, nil
}

// ByteCounters returns the bytes read and written on the connection's
// stream, in this order.
func (c *acceptConn) ByteCounters() (int64, int64) {
	return c.first.ByteCounters()
}

func (c *acceptConn) RemotePeer() string {
	return c.conn.RemotePeer().String()
}

func (c *acceptConn) Close() error {
	return c.conn.Close()
}

func (c *acceptConn) Done() <-chan struct{} {
	return c.done
}
