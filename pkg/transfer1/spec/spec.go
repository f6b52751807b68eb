// Package spec contains constants for the transfer1 protocol.
package spec

import "time"

// ProtocolID identifies the transfer1 protocol. It is exchanged during
// stream negotiation and both peers must present the identical value,
// otherwise the transport rejects the stream before any payload byte
// is exchanged.
const ProtocolID = "/peerbench/transfer/1.0.0"

const (
	// AckMessage is the only application-level message besides the raw
	// payload. Its exact content and length are part of the wire
	// contract.
	AckMessage = "received"

	// AckSize is the length of AckMessage in bytes.
	AckSize = 8

	// MaxChunkSize is the size of the buffer used to write the payload
	// to a stream. Payloads larger than this are written in chunks.
	MaxChunkSize = 1 << 20

	// DefaultIterations is the number of measured transfers per payload
	// size.
	DefaultIterations = 5

	// InterTrialDelay is the quiescence pause between consecutive
	// transfers of the same payload size. There is no pause after the
	// last one.
	InterTrialDelay = 100 * time.Millisecond

	// MaxRuntime is the maximum duration of a single transfer session.
	// A transfer that has not completed by then fails.
	MaxRuntime = 60 * time.Second

	// DialTimeout bounds connection establishment for a single trial.
	DialTimeout = 10 * time.Second
)

// DefaultSizes is the default payload size matrix, in bytes.
var DefaultSizes = []int64{
	1 << 20,
	2 << 20,
	5 << 20,
	10 << 20,
}
