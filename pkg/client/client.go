// Package client implements the benchmark driver: it runs the full
// size/iteration matrix of measured transfers against a single peer
// and reduces the samples into per-size statistics.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/peerbench/peerbench/pkg/transfer1"
	"github.com/peerbench/peerbench/pkg/transfer1/model"
	"github.com/peerbench/peerbench/pkg/transfer1/results"
	"github.com/peerbench/peerbench/pkg/transfer1/spec"
)

// Dialer establishes a fresh connection to the benchmark target. The
// driver calls Dial once per transfer so that no connection warm-up
// state carries over between measurements.
type Dialer interface {
	Dial(ctx context.Context) (transfer1.Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (transfer1.Connection, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (transfer1.Connection, error) {
	return f(ctx)
}

// SizeResult aggregates the transfers of one payload size.
type SizeResult struct {
	// PayloadSize is the measured payload size in bytes.
	PayloadSize int64
	// Transfers holds the individual transfer results, in order.
	Transfers []model.TransferResult
	// Summary is the reduced statistics over Transfers.
	Summary results.Summary
}

// Client is the benchmark driver.
type Client struct {
	dialer Dialer
	config Config
	runID  string
}

// New returns a new Client with the provided dialer and config.
// Zero-valued config fields fall back to the protocol defaults.
func New(dialer Dialer, config Config) *Client {
	if len(config.Sizes) == 0 {
		config.Sizes = spec.DefaultSizes
	}
	if config.Iterations <= 0 {
		config.Iterations = spec.DefaultIterations
	}
	if config.Delay <= 0 {
		config.Delay = spec.InterTrialDelay
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = spec.DialTimeout
	}
	if config.Emitter == nil {
		config.Emitter = &HumanReadable{}
	}
	return &Client{
		dialer: dialer,
		config: config,
		runID:  uuid.NewString(),
	}
}

// Run executes the whole benchmark matrix and returns the per-size
// results. Execution is strictly sequential across all sizes and
// iterations: no two measured transfers ever overlap in time, so they
// cannot compete for the same network path. Any iteration failure
// aborts the entire run; there is no retry or partial-result salvage.
func (c *Client) Run(ctx context.Context) ([]SizeResult, error) {
	log.Debug("starting benchmark run", "id", c.runID,
		"sizes", c.config.Sizes, "iterations", c.config.Iterations)

	out := make([]SizeResult, 0, len(c.config.Sizes))
	for _, size := range c.config.Sizes {
		c.config.Emitter.OnSizeStart(size)
		sr := SizeResult{PayloadSize: size}
		samples := make([]float64, 0, c.config.Iterations)

		for i := 0; i < c.config.Iterations; i++ {
			res, err := c.runOnce(ctx, size)
			if err != nil {
				err = fmt.Errorf("size %d, iteration %d: %w", size, i+1, err)
				c.config.Emitter.OnError(err)
				return out, err
			}
			c.config.Emitter.OnTransfer(i+1, res)
			sr.Transfers = append(sr.Transfers, res)
			samples = append(samples, res.BandwidthMbps)

			// Let transient network state settle between iterations,
			// but not after the last one.
			if i < c.config.Iterations-1 {
				select {
				case <-time.After(c.config.Delay):
				case <-ctx.Done():
					return out, ctx.Err()
				}
			}
		}

		summary, err := results.Reduce(samples)
		if err != nil {
			return out, err
		}
		sr.Summary = summary
		out = append(out, sr)
		c.config.Emitter.OnSummary(size, summary)
	}
	return out, nil
}

// runOnce performs a single measured transfer over a fresh
// connection, closing it afterwards.
func (c *Client) runOnce(ctx context.Context, size int64) (model.TransferResult, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	conn, err := c.dialer.Dial(dialCtx)
	if err != nil {
		return model.TransferResult{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.config.Emitter.OnDebug(fmt.Sprintf("connected to %s", conn.RemotePeer()))
	return transfer1.New(conn).Run(ctx, size)
}
