// Package transfer1 implements the transfer1 protocol: a single
// client-initiated transfer of a fixed-size payload over one
// bidirectional stream, acknowledged by the receiver, used as one
// bandwidth measurement.
package transfer1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/peerbench/peerbench/pkg/transfer1/model"
	"github.com/peerbench/peerbench/pkg/transfer1/spec"
)

var (
	// ErrInvalidAck is returned when the acknowledgment read from the
	// peer is not exactly spec.AckMessage.
	ErrInvalidAck = errors.New("invalid acknowledgment")

	// ErrByteLimit is returned by the receiver when a configured byte
	// limit is exceeded while draining a stream.
	ErrByteLimit = errors.New("byte limit exceeded")
)

// Stream is one bidirectional stream pair multiplexed within a
// Connection: an ordered byte sink and an ordered byte source. The
// send half is half-closable independently of the receive half.
type Stream interface {
	io.ReadWriteCloser

	// CloseWrite closes the send half, signaling end-of-transmission
	// to the peer. The receive half stays readable.
	CloseWrite() error

	// SetDeadline sets an absolute deadline for all future reads and
	// writes on the stream.
	SetDeadline(t time.Time) error
}

// Connection is a live session between two endpoints, negotiated
// under a shared protocol identifier by the transport. It owns its
// streams and is never reused across measurements.
type Connection interface {
	// OpenStream opens a new bidirectional stream on the connection.
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream returns the next stream opened by the remote peer.
	AcceptStream(ctx context.Context) (Stream, error)

	// RemotePeer returns the remote peer's identity.
	RemotePeer() string

	// Close closes the connection and every stream it owns.
	Close() error

	// Done returns a channel that is closed once the connection has
	// reached the fully-closed state.
	Done() <-chan struct{}
}

// Protocol runs transfer1 sessions over a single Connection.
type Protocol struct {
	conn Connection
	rnd  *rand.Rand

	byteLimit int64
}

// New returns a new Protocol running over the given connection.
func New(conn Connection) *Protocol {
	return &Protocol{
		conn: conn,
		// Seed randomness source with the current time.
		rnd: rand.New(rand.NewSource(time.Now().UnixMilli())),
	}
}

// SetByteLimit sets the number of received bytes after which Drain
// fails with ErrByteLimit. Zero (the default) disables the limit and
// preserves the protocol's unbounded-acceptance behavior.
func (p *Protocol) SetByteLimit(value int64) {
	p.byteLimit = value
}

// Run performs one measured transfer of size payload bytes and
// returns the resulting bandwidth sample. The measured interval
// starts just before the first payload write and stops on receipt of
// the acknowledgment, so connection and stream setup are excluded.
//
// Any write failure, read failure, premature close or acknowledgment
// mismatch fails the session; the caller decides whether that is
// fatal to the whole benchmark.
func (p *Protocol) Run(ctx context.Context, size int64) (model.TransferResult, error) {
	if size <= 0 {
		return model.TransferResult{}, fmt.Errorf("payload size must be positive, got %d", size)
	}
	stream, err := p.conn.OpenStream(ctx)
	if err != nil {
		return model.TransferResult{}, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()
	// In no case will this session run for longer than spec.MaxRuntime.
	if err := stream.SetDeadline(time.Now().Add(spec.MaxRuntime)); err != nil {
		return model.TransferResult{}, fmt.Errorf("set deadline: %w", err)
	}

	chunkSize := size
	if chunkSize > spec.MaxChunkSize {
		chunkSize = spec.MaxChunkSize
	}
	chunk := make([]byte, chunkSize)
	// Each Protocol has its own instance of Rand, so simultaneous
	// calls to Read() never happen.
	p.rnd.Read(chunk)

	start := time.Now()
	for remaining := size; remaining > 0; {
		n := int64(len(chunk))
		if remaining < n {
			n = remaining
		}
		if _, err := stream.Write(chunk[:n]); err != nil {
			return model.TransferResult{}, fmt.Errorf("payload write: %w", err)
		}
		remaining -= n
	}
	if err := stream.CloseWrite(); err != nil {
		return model.TransferResult{}, fmt.Errorf("close send half: %w", err)
	}

	// Read one byte past AckSize so an over-long acknowledgment is
	// detected as a violation instead of being truncated.
	ack, err := io.ReadAll(io.LimitReader(stream, spec.AckSize+1))
	if err != nil {
		return model.TransferResult{}, fmt.Errorf("ack read: %w", err)
	}
	elapsed := time.Since(start)

	if !bytes.Equal(ack, []byte(spec.AckMessage)) {
		return model.TransferResult{}, fmt.Errorf("%w: %q", ErrInvalidAck, ack)
	}
	return model.TransferResult{
		PayloadSize:   size,
		Elapsed:       elapsed,
		BandwidthMbps: Bandwidth(size, elapsed),
	}, nil
}

// Drain accepts the connection's first stream, reads its receive half
// to exhaustion, writes the acknowledgment and half-closes the send
// half. It returns the total number of payload bytes received.
//
// The caller is expected to wait on the connection's Done channel
// afterwards, so the client observes the acknowledgment before the
// connection goes away.
func (p *Protocol) Drain(ctx context.Context) (int64, error) {
	stream, err := p.conn.AcceptStream(ctx)
	if err != nil {
		return 0, fmt.Errorf("accept stream: %w", err)
	}
	defer stream.Close()
	if err := stream.SetDeadline(time.Now().Add(spec.MaxRuntime)); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	var src io.Reader = stream
	if p.byteLimit > 0 {
		src = io.LimitReader(stream, p.byteLimit+1)
	}
	received, err := io.Copy(io.Discard, src)
	if err != nil {
		return received, fmt.Errorf("drain: %w", err)
	}
	if p.byteLimit > 0 && received > p.byteLimit {
		return received, fmt.Errorf("%w: received more than %d bytes", ErrByteLimit, p.byteLimit)
	}

	if _, err := stream.Write([]byte(spec.AckMessage)); err != nil {
		return received, fmt.Errorf("ack write: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return received, fmt.Errorf("close send half: %w", err)
	}
	return received, nil
}

// Bandwidth converts a payload size and its measured transfer
// interval into Mbit/s.
func Bandwidth(size int64, elapsed time.Duration) float64 {
	return float64(size) * 8 / elapsed.Seconds() / 1e6
}
