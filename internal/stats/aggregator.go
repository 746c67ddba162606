// Package stats turns parsed measurement entries into sample statistics.
//
// Target entries feed a t-digest for percentiles and running moments for
// mean and standard deviation. Warmup entries are only counted.
package stats

import (
	"math"
	"sync"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
)

// digestCompression bounds the digest to roughly 100 centroids.
const digestCompression = 100

// Summary is a snapshot of the target samples. All times are nanoseconds
// per benchmark call.
type Summary struct {
	Count       int64
	WarmupCount int64

	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	P50 float64
	P90 float64
	P95 float64
	P99 float64

	// Last is the most recent target sample.
	Last float64
}

// OpsPerSecond returns the throughput implied by the mean.
func (s Summary) OpsPerSecond() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return 1e9 / s.Mean
}

// RelativeStdDev returns StdDev / Mean, or 0 for an empty summary.
func (s Summary) RelativeStdDev() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return s.StdDev / s.Mean
}

// Aggregator accumulates entries as they are parsed. Safe for concurrent
// use: the executor adds from the stdout reader while the TUI reads.
type Aggregator struct {
	mu     sync.Mutex
	digest *tdigest.TDigest

	count  int64
	warmup int64
	mean   float64
	m2     float64
	min    float64
	max    float64
	last   float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		digest: tdigest.NewWithCompression(digestCompression),
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Add records one entry.
func (a *Aggregator) Add(e protocol.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.Phase != engine.PhaseTarget {
		a.warmup++
		return
	}

	ns := e.Nanoseconds()
	a.digest.Add(ns, 1)

	// Welford's update.
	a.count++
	delta := ns - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (ns - a.mean)

	a.min = math.Min(a.min, ns)
	a.max = math.Max(a.max, ns)
	a.last = ns
}

// Count returns the number of target samples.
func (a *Aggregator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Snapshot computes the current summary.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Count: a.count, WarmupCount: a.warmup}
	if a.count == 0 {
		return s
	}

	s.Min = a.min
	s.Max = a.max
	s.Mean = a.mean
	s.Last = a.last
	if a.count > 1 {
		s.StdDev = math.Sqrt(a.m2 / float64(a.count-1))
	}

	// The digest interpolates; keep percentiles inside the observed range.
	clamp := func(v float64) float64 { return math.Max(a.min, math.Min(a.max, v)) }
	s.P50 = clamp(a.digest.Quantile(0.50))
	s.P90 = clamp(a.digest.Quantile(0.90))
	s.P95 = clamp(a.digest.Quantile(0.95))
	s.P99 = clamp(a.digest.Quantile(0.99))
	return s
}

// Summarize computes the summary of a complete sample set.
func Summarize(entries []protocol.Entry) Summary {
	a := NewAggregator()
	for _, e := range entries {
		a.Add(e)
	}
	return a.Snapshot()
}
