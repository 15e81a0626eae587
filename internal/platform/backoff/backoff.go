// Package backoff computes retry delays for failed government submissions:
// exponential growth from a base delay with uniform jitter, capped so a batch
// deep into its retry chain still fires within the cap.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultBaseDelay = 30 * time.Second
	DefaultCapDelay  = 5 * time.Minute
	maxJitter        = time.Second
)

// Scheduler computes the delay before the next submission attempt.
type Scheduler struct {
	base time.Duration
	cap  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a Scheduler with the given base and cap delays.
// Non-positive values fall back to the defaults.
func NewScheduler(base, cap time.Duration) *Scheduler {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if cap < base {
		cap = DefaultCapDelay
	}
	return &Scheduler{
		base: base,
		cap:  cap,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns base * 2^retryCount plus up to one second of uniform jitter,
// capped at the configured maximum. retryCount 0 is the first failure.
// Jitter is drawn per call so simultaneous failures do not retry in lockstep
// against the government endpoint.
func (s *Scheduler) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	d := s.base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= s.cap {
			return s.cap
		}
	}

	s.mu.Lock()
	jitter := time.Duration(s.rng.Int63n(int64(maxJitter)))
	s.mu.Unlock()

	if d+jitter > s.cap {
		return s.cap
	}
	return d + jitter
}

// NextAttempt returns the wall-clock time of the next attempt after a failure
// observed at now with the given retry count.
func (s *Scheduler) NextAttempt(now time.Time, retryCount int) time.Time {
	return now.Add(s.Delay(retryCount))
}
