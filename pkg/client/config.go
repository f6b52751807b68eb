package client

import "time"

// Config is the configuration for a benchmark Client.
type Config struct {
	// Sizes is the ordered list of payload sizes to measure, in bytes.
	Sizes []int64

	// Iterations is the number of measured transfers per payload size.
	Iterations int

	// Delay is the quiescence pause between consecutive transfers of
	// the same size. There is no pause after the last one.
	Delay time.Duration

	// DialTimeout bounds connection establishment for each transfer.
	DialTimeout time.Duration

	// Emitter receives progress and result reporting. It can be
	// overridden to provide a custom output.
	Emitter Emitter
}
