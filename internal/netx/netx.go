// Package netx implements the transport endpoint used by the
// transfer1 protocol. It wraps a libp2p host and exposes connections
// and streams through the transfer1 interfaces, so the protocol and
// the benchmark driver never depend on libp2p directly.
package netx

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/peerbench/peerbench/pkg/transfer1"
)

// Handler is the unit of work invoked for every accepted connection.
// The accept loop runs each invocation on its own goroutine; a Handler
// implementation must not share mutable state across invocations.
type Handler interface {
	Handle(ctx context.Context, conn transfer1.Connection) error
}

// Config is the configuration for an Endpoint.
type Config struct {
	// PrivateKey is the endpoint's ed25519 identity key.
	PrivateKey crypto.PrivKey

	// ListenAddrs are the multiaddrs to listen on. When empty, the
	// endpoint is dial-only.
	ListenAddrs []string

	// Protocol is the protocol identifier negotiated on every stream.
	// Both peers must present the identical value or stream
	// negotiation fails before any payload byte is exchanged.
	Protocol string
}

// closedChan is returned for connections that are already gone.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Endpoint is a libp2p-backed transport endpoint. It supports dialing
// peers by identity and serving inbound connections for a single
// protocol identifier.
type Endpoint struct {
	host  host.Host
	proto protocol.ID

	mu      sync.Mutex
	closed  map[string]chan struct{}
	closing bool

	handlers sync.WaitGroup
}

// New creates an Endpoint from the given configuration.
func New(config Config) (*Endpoint, error) {
	opts := []libp2p.Option{
		libp2p.Identity(config.PrivateKey),
	}
	if len(config.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(config.ListenAddrs...))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	e := &Endpoint{
		host:   h,
		proto:  protocol.ID(config.Protocol),
		closed: map[string]chan struct{}{},
	}
	// Track the fully-closed state of every connection. Connected is
	// guaranteed to fire before Disconnected for the same connection.
	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			e.mu.Lock()
			e.closed[c.ID()] = make(chan struct{})
			e.mu.Unlock()
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			e.mu.Lock()
			if ch, ok := e.closed[c.ID()]; ok {
				close(ch)
				delete(e.closed, c.ID())
			}
			e.mu.Unlock()
		},
	})
	return e, nil
}

// connDone returns the channel signaling the fully-closed state of c.
func (e *Endpoint) connDone(c network.Conn) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.closed[c.ID()]; ok {
		return ch
	}
	return closedChan
}

// ID returns the endpoint's peer ID.
func (e *Endpoint) ID() peer.ID {
	return e.host.ID()
}

// Addrs returns the endpoint's listen multiaddrs.
func (e *Endpoint) Addrs() []ma.Multiaddr {
	return e.host.Addrs()
}

// Dial establishes a fresh connection to the given peer. Every call
// negotiates a new session; connections are never reused across
// measurements, so no warm-up state carries over.
func (e *Endpoint) Dial(ctx context.Context, addr PeerAddr) (transfer1.Connection, error) {
	if len(addr.Addrs) > 0 {
		e.host.Peerstore().AddAddrs(addr.ID, addr.Addrs, peerstore.TempAddrTTL)
	}
	if err := e.host.Connect(ctx, peer.AddrInfo{ID: addr.ID, Addrs: addr.Addrs}); err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr.ID, err)
	}
	conns := e.host.Network().ConnsToPeer(addr.ID)
	if len(conns) == 0 {
		return nil, fmt.Errorf("connect %s: connection closed during setup", addr.ID)
	}
	return &dialConn{
		host:  e.host,
		proto: e.proto,
		peer:  addr.ID,
		done:  e.connDone(conns[0]),
	}, nil
}

// Serve registers handler for the endpoint's protocol. Every inbound
// connection is handled independently on its own goroutine, with no
// bound on the number of simultaneously active handlers. Handler
// outcomes are logged and never affect other connections.
//
// ctx is the handlers' lifecycle context. It must outlive the accept
// loop: canceling it tears down in-flight handlers, so a server that
// wants a graceful drain passes a long-lived context here and bounds
// the drain through Shutdown instead.
func (e *Endpoint) Serve(ctx context.Context, handler Handler) {
	e.host.SetStreamHandler(e.proto, func(s network.Stream) {
		// Register before dispatch, under the same lock Shutdown takes:
		// a stream dispatched concurrently with Shutdown must either be
		// counted before the drain wait starts or not run at all.
		e.mu.Lock()
		if e.closing {
			e.mu.Unlock()
			s.Reset()
			return
		}
		e.handlers.Add(1)
		e.mu.Unlock()
		defer e.handlers.Done()
		conn := &acceptConn{
			conn:  s.Conn(),
			done:  e.connDone(s.Conn()),
			first: newStream(s),
		}
		if err := handler.Handle(ctx, conn); err != nil {
			log.Debug("handler finished with error",
				"peer", conn.RemotePeer(), "error", err)
		}
		read, written := conn.ByteCounters()
		log.Debug("connection served", "peer", conn.RemotePeer(),
			"bytesRead", read, "bytesWritten", written)
	})
}

// Close closes the endpoint without draining in-flight handlers.
func (e *Endpoint) Close() error {
	return e.host.Close()
}

// Shutdown stops accepting new connections, waits for in-flight
// handlers to complete their connection lifecycle and closes the
// endpoint. It gives up waiting when ctx expires.
// Handlers still draining when ctx expires are terminated by the host
// close, which moves their connections to the fully-closed state.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.host.RemoveStreamHandler(e.proto)
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	drained := make(chan struct{})
	go func() {
		e.handlers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return e.host.Close()
	case <-ctx.Done():
		e.host.Close()
		return ctx.Err()
	}
}
