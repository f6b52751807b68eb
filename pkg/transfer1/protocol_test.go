package transfer1_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/peerbench/peerbench/pkg/transfer1"
	"github.com/peerbench/peerbench/pkg/transfer1/spec"
)

// pipeStream is one half of an in-memory bidirectional stream built
// from two io.Pipe pairs. CloseWrite closes only the send half, so
// the other side reads to EOF like it would on a real stream.
type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *pipeStream) Read(b []byte) (int, error)  { return s.r.Read(b) }
func (s *pipeStream) Write(b []byte) (int, error) { return s.w.Write(b) }
func (s *pipeStream) CloseWrite() error           { return s.w.Close() }
func (s *pipeStream) SetDeadline(time.Time) error { return nil }

func (s *pipeStream) Close() error {
	s.w.Close()
	return s.r.Close()
}

func newStreamPair() (*pipeStream, *pipeStream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeStream{r: ar, w: aw}, &pipeStream{r: br, w: bw}
}

// pipeConn is one side of an in-memory connection carrying exactly
// one stream pair. Closing either side moves the shared connection to
// the fully-closed state.
type pipeConn struct {
	stream *pipeStream
	peer   string

	closeOnce *sync.Once
	done      chan struct{}
}

func newConnPair() (client, server *pipeConn) {
	cs, ss := newStreamPair()
	once := &sync.Once{}
	done := make(chan struct{})
	client = &pipeConn{stream: cs, peer: "server-peer", closeOnce: once, done: done}
	server = &pipeConn{stream: ss, peer: "client-peer", closeOnce: once, done: done}
	return client, server
}

func (c *pipeConn) OpenStream(context.Context) (transfer1.Stream, error) {
	return c.stream, nil
}

func (c *pipeConn) AcceptStream(context.Context) (transfer1.Stream, error) {
	return c.stream, nil
}

func (c *pipeConn) RemotePeer() string { return c.peer }

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.stream.Close()
}

func (c *pipeConn) Done() <-chan struct{} { return c.done }

func TestProtocol_Run(t *testing.T) {
	tests := []struct {
		name string
		size int64
	}{
		{name: "single-byte", size: 1},
		{name: "small", size: 4096},
		{name: "one-chunk", size: spec.MaxChunkSize},
		{name: "chunked-uneven", size: 2*spec.MaxChunkSize + 12345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := newConnPair()

			received := make(chan int64, 1)
			errCh := make(chan error, 1)
			go func() {
				n, err := transfer1.New(serverConn).Drain(context.Background())
				received <- n
				errCh <- err
			}()

			res, err := transfer1.New(clientConn).Run(context.Background(), tt.size)
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("Drain() error: %v", err)
			}
			if n := <-received; n != tt.size {
				t.Errorf("server received %d bytes, want %d", n, tt.size)
			}
			if res.PayloadSize != tt.size {
				t.Errorf("PayloadSize = %d, want %d", res.PayloadSize, tt.size)
			}
			if res.Elapsed <= 0 {
				t.Errorf("Elapsed = %v, want > 0", res.Elapsed)
			}
			if want := transfer1.Bandwidth(res.PayloadSize, res.Elapsed); res.BandwidthMbps != want {
				t.Errorf("BandwidthMbps = %v, want %v", res.BandwidthMbps, want)
			}
		})
	}
}

func TestProtocol_Run_InvalidSize(t *testing.T) {
	clientConn, _ := newConnPair()
	for _, size := range []int64{0, -1} {
		if _, err := transfer1.New(clientConn).Run(context.Background(), size); err == nil {
			t.Errorf("Run(%d) expected error, got nil", size)
		}
	}
}

// badAckServer drains the stream, then replies with the given bytes
// instead of the protocol acknowledgment.
func badAckServer(t *testing.T, conn *pipeConn, ack []byte) {
	t.Helper()
	go func() {
		s, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		io.Copy(io.Discard, s)
		if len(ack) > 0 {
			s.Write(ack)
		}
		s.CloseWrite()
	}()
}

func TestProtocol_Run_AckMismatch(t *testing.T) {
	tests := []struct {
		name string
		ack  []byte
	}{
		{name: "wrong-bytes", ack: []byte("recieved")},
		{name: "wrong-case", ack: []byte("RECEIVED")},
		{name: "too-short", ack: []byte("recv")},
		{name: "too-long", ack: []byte("received!")},
		{name: "empty", ack: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := newConnPair()
			badAckServer(t, serverConn, tt.ack)

			_, err := transfer1.New(clientConn).Run(context.Background(), 1024)
			if !errors.Is(err, transfer1.ErrInvalidAck) {
				t.Errorf("Run() error = %v, want ErrInvalidAck", err)
			}
		})
	}
}

func TestProtocol_Drain_ByteLimit(t *testing.T) {
	clientConn, serverConn := newConnPair()

	go func() {
		// The client side fails once the server stops draining; the
		// error is irrelevant here.
		transfer1.New(clientConn).Run(context.Background(), 64*1024)
	}()

	proto := transfer1.New(serverConn)
	proto.SetByteLimit(1024)
	_, err := proto.Drain(context.Background())
	if !errors.Is(err, transfer1.ErrByteLimit) {
		t.Errorf("Drain() error = %v, want ErrByteLimit", err)
	}
}

// deadlineErrStream fails SetDeadline, like a transport whose stream
// was already reset.
type deadlineErrStream struct {
	*pipeStream
}

func (s *deadlineErrStream) SetDeadline(time.Time) error {
	return errors.New("stream reset")
}

// errDeadlineConn hands out streams whose SetDeadline always fails.
type errDeadlineConn struct {
	*pipeConn
}

func (c *errDeadlineConn) OpenStream(context.Context) (transfer1.Stream, error) {
	return &deadlineErrStream{c.stream}, nil
}

func (c *errDeadlineConn) AcceptStream(context.Context) (transfer1.Stream, error) {
	return &deadlineErrStream{c.stream}, nil
}

// A failure to arm the session deadline fails the session before any
// payload byte moves.
func TestProtocol_DeadlineError(t *testing.T) {
	clientConn, serverConn := newConnPair()
	if _, err := transfer1.New(&errDeadlineConn{clientConn}).Run(context.Background(), 1024); err == nil {
		t.Error("Run() expected error, got nil")
	}
	if _, err := transfer1.New(&errDeadlineConn{serverConn}).Drain(context.Background()); err == nil {
		t.Error("Drain() expected error, got nil")
	}
}

func TestBandwidth(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		elapsed time.Duration
		want    float64
	}{
		{name: "one-mib-per-second", size: 1 << 20, elapsed: time.Second, want: 8.388608},
		{name: "half-second", size: 1 << 20, elapsed: 500 * time.Millisecond, want: 16.777216},
		{name: "one-byte", size: 1, elapsed: time.Second, want: 8e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transfer1.Bandwidth(tt.size, tt.elapsed); got != tt.want {
				t.Errorf("Bandwidth(%d, %v) = %v, want %v", tt.size, tt.elapsed, got, tt.want)
			}
		})
	}
}
