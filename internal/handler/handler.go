// Package handler implements the server-side session handler: one
// isolated unit of work per accepted connection that drains the
// inbound stream, acknowledges it and waits for full teardown.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/peerbench/peerbench/pkg/transfer1"
	"github.com/peerbench/peerbench/pkg/transfer1/model"
)

// sessionCacheTTL is how long finished session records stay available
// for inspection.
const sessionCacheTTL = 5 * time.Minute

// Handler handles accepted connections. A single Handler serves any
// number of connections concurrently; per-connection state lives in
// the Handle stack frame, so handlers never observe each other.
type Handler struct {
	byteLimit int64
	sessions  *ttlcache.Cache[string, *model.SessionRecord]
}

// New returns a new Handler. byteLimit caps the number of payload
// bytes drained per session; zero keeps the protocol's unbounded
// acceptance.
func New(byteLimit int64) *Handler {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *model.SessionRecord](sessionCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *model.SessionRecord](),
	)
	cache.OnEviction(func(ctx context.Context,
		er ttlcache.EvictionReason,
		i *ttlcache.Item[string, *model.SessionRecord]) {
		r := i.Value()
		log.Debug("session record expired", "uuid", r.UUID, "peer", r.Peer,
			"bytes", r.BytesReceived, "reason", er)
	})
	go cache.Start()
	return &Handler{
		byteLimit: byteLimit,
		sessions:  cache,
	}
}

// Handle runs one accepted connection through its lifecycle: drain
// the first stream to exhaustion, write the acknowledgment, then wait
// for the connection to reach the fully-closed state. Errors
// terminate this connection only.
//
// ctx is the session's lifecycle context, not the accept loop's:
// canceling it abandons the wait for peer teardown and closes the
// connection, so callers draining gracefully must pass a context that
// outlives the drain.
func (h *Handler) Handle(ctx context.Context, conn transfer1.Connection) error {
	record := &model.SessionRecord{
		UUID:      uuid.NewString(),
		Peer:      conn.RemotePeer(),
		StartTime: time.Now(),
	}
	connectionsAccepted.Inc()
	log.Info("new connection", "peer", record.Peer, "uuid", record.UUID)

	proto := transfer1.New(conn)
	if h.byteLimit > 0 {
		proto.SetByteLimit(h.byteLimit)
	}
	received, err := proto.Drain(ctx)
	record.BytesReceived = received
	if err != nil {
		record.Error = err.Error()
		h.finish(record)
		sessionsFailed.Inc()
		conn.Close()
		return fmt.Errorf("session %s: %w", record.UUID, err)
	}
	bytesDrained.Add(float64(received))
	log.Info("transfer complete", "peer", record.Peer, "uuid", record.UUID,
		"bytes", received)

	// Wait for the peer to tear the connection down, so it observes
	// the acknowledgment before the session goes away.
	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
	}
	h.finish(record)
	sessionsCompleted.Inc()
	log.Info("connection closed", "peer", record.Peer, "uuid", record.UUID,
		"duration", record.EndTime.Sub(record.StartTime))
	return nil
}

func (h *Handler) finish(record *model.SessionRecord) {
	record.EndTime = time.Now()
	h.sessions.Set(record.UUID, record, ttlcache.DefaultTTL)
}

// Session returns the record of a recent session, if still cached.
func (h *Handler) Session(uuid string) (*model.SessionRecord, bool) {
	item := h.sessions.Get(uuid)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Sessions returns the records of all recently finished sessions.
func (h *Handler) Sessions() []*model.SessionRecord {
	items := h.sessions.Items()
	out := make([]*model.SessionRecord, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	return out
}

// Stop stops the session cache's expiration loop.
func (h *Handler) Stop() {
	h.sessions.Stop()
}
