package client

import (
	"fmt"

	"github.com/peerbench/peerbench/pkg/transfer1/model"
	"github.com/peerbench/peerbench/pkg/transfer1/results"
)

// Emitter is an interface for emitting progress and results.
type Emitter interface {
	// OnSizeStart is called before the first transfer of a payload size.
	OnSizeStart(size int64)
	// OnTransfer is called after each successful measured transfer.
	OnTransfer(iteration int, r model.TransferResult)
	// OnSummary is called with the aggregate statistics for one size.
	OnSummary(size int64, s results.Summary)
	// OnError is called on errors.
	OnError(err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
}

// HumanReadable prints human-readable output to stdout.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
}

// OnSizeStart prints the payload size about to be measured.
func (HumanReadable) OnSizeStart(size int64) {
	fmt.Printf("\nTesting with %d bytes:\n", size)
}

// OnTransfer prints the result of a single measured transfer.
func (HumanReadable) OnTransfer(iteration int, r model.TransferResult) {
	fmt.Printf("Iteration %d: %.2f Mbit/s (%d bytes in %.3fs)\n",
		iteration, r.BandwidthMbps, r.PayloadSize, r.Elapsed.Seconds())
}

// OnSummary prints the aggregate statistics for one payload size.
func (HumanReadable) OnSummary(size int64, s results.Summary) {
	fmt.Printf("Bandwidth statistics (Mbit/s):\n")
	fmt.Printf("  Average: %.2f\n", s.Average)
	fmt.Printf("  Min: %.2f\n", s.Min)
	fmt.Printf("  Max: %.2f\n", s.Max)
}

// OnError is called on errors.
func (HumanReadable) OnError(err error) {
	fmt.Println(err)
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Printf("DEBUG: %s\n", msg)
	}
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}
