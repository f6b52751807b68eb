// Package results reduces bandwidth samples into summary statistics.
package results

import "errors"

// ErrNoSamples is returned by Reduce on empty input. The benchmark
// driver guarantees non-empty input by construction, so seeing this
// error means a programming mistake in the caller.
var ErrNoSamples = errors.New("no samples to reduce")

// Summary contains aggregate statistics over a set of bandwidth
// samples for one payload size. Min <= Average <= Max always holds.
type Summary struct {
	// Average is the arithmetic mean of the samples, in Mbit/s.
	Average float64
	// Min is the smallest sample, in Mbit/s.
	Min float64
	// Max is the largest sample, in Mbit/s.
	Max float64
}

// Reduce computes the Summary of a non-empty ordered sequence of
// bandwidth samples. It has no side effects.
func Reduce(samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	s := Summary{
		Min: samples[0],
		Max: samples[0],
	}
	var sum float64
	for _, v := range samples {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Average = sum / float64(len(samples))
	return s, nil
}
