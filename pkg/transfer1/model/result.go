// Package model contains the result types for the transfer1 protocol.
package model

import "time"

// TransferResult is the outcome of a single measured transfer. It is
// created by the client side of the protocol on success and is
// immutable afterwards.
type TransferResult struct {
	// PayloadSize is the number of payload bytes sent, excluding the
	// acknowledgment.
	PayloadSize int64
	// Elapsed is the measured interval from just before the first
	// payload write to the receipt of the acknowledgment. Connection
	// and stream setup are excluded.
	Elapsed time.Duration
	// BandwidthMbps is PayloadSize * 8 / Elapsed (in seconds) / 1e6.
	BandwidthMbps float64
}

// SessionRecord is the server-side record of one handled connection.
type SessionRecord struct {
	// UUID uniquely identifies this session on the server.
	UUID string
	// Peer is the remote peer's identity.
	Peer string
	// StartTime is the time the connection's first stream was accepted.
	StartTime time.Time
	// EndTime is the time the connection reached the fully-closed
	// state.
	EndTime time.Time
	// BytesReceived is the total number of payload bytes drained.
	BytesReceived int64
	// Error is the failure that terminated the session, if any.
	Error string `json:",omitempty"`
}
