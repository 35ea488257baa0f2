package services

import (
	"sync"
	"time"
)

// DefaultEstimatorWindow is the rolling window speed is derived from.
const DefaultEstimatorWindow = 8 * time.Second

type progressSample struct {
	at    time.Time
	bytes uint64
}

// ProgressEstimator derives throughput and ETA from ingestion samples.
// Purely advisory: it lives in process memory, is lost on restart, and
// never affects ingestion correctness.
type ProgressEstimator struct {
	mu      sync.Mutex
	window  time.Duration
	samples []progressSample
}

func NewProgressEstimator(window time.Duration) *ProgressEstimator {
	if window <= 0 {
		window = DefaultEstimatorWindow
	}
	return &ProgressEstimator{window: window}
}

// Record appends a (timestamp, cumulativeBytes) sample and drops
// samples that fell out of the window.
func (e *ProgressEstimator) Record(at time.Time, cumulativeBytes uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, progressSample{at: at, bytes: cumulativeBytes})

	cutoff := at.Add(-e.window)
	i := 0
	for i < len(e.samples)-1 && e.samples[i].at.Before(cutoff) {
		i++
	}
	e.samples = e.samples[i:]
}

// Speed is delta-bytes over delta-time between the window's oldest and
// newest sample, in bytes per second. Nil until two samples exist.
func (e *ProgressEstimator) Speed() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) < 2 {
		return nil
	}

	oldest := e.samples[0]
	newest := e.samples[len(e.samples)-1]

	dt := newest.at.Sub(oldest.at).Seconds()
	if dt <= 0 || newest.bytes <= oldest.bytes {
		return nil
	}

	speed := float64(newest.bytes-oldest.bytes) / dt
	return &speed
}

// ETA estimates the remaining seconds until expectedSize is reached.
// Nil when the expected size is unknown or no positive speed is
// available.
func (e *ProgressEstimator) ETA(expectedSize uint64) *float64 {
	if expectedSize == 0 {
		return nil
	}

	speed := e.Speed()
	if speed == nil || *speed <= 0 {
		return nil
	}

	e.mu.Lock()
	lastBytes := uint64(0)
	if len(e.samples) > 0 {
		lastBytes = e.samples[len(e.samples)-1].bytes
	}
	e.mu.Unlock()

	if lastBytes >= expectedSize {
		zero := 0.0
		return &zero
	}

	eta := float64(expectedSize-lastBytes) / *speed
	return &eta
}
