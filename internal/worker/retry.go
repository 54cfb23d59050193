package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how often a delivery task is attempted and how long it waits in between.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter in [0, 1] shortens each delay by up to that fraction.
	Jitter float64
	// TaskRetries overrides MaxRetries per task type.
	TaskRetries map[string]int
}

// Attempts returns the number of tries a task of the given type gets before it is dead-lettered.
func (r RetryPolicy) Attempts(taskType string) int {
	if n, ok := r.TaskRetries[taskType]; ok && n > 0 {
		return n
	}
	return r.MaxRetries
}

// NextDelay returns the wait before attempt+1, growing exponentially up to MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	var spread float64
	if r.Jitter > 0 {
		spread = rand.Float64()
	}
	return r.delay(attempt, spread)
}

// delay applies spread, a value in [0, 1), as the fraction of Jitter taken off the backoff.
func (r RetryPolicy) delay(attempt int, spread float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	backoff := float64(initial) * math.Pow(factor, float64(attempt-1))
	if r.MaxDelay > 0 && backoff > float64(r.MaxDelay) {
		backoff = float64(r.MaxDelay)
	}
	if jitter := math.Min(r.Jitter, 1); jitter > 0 {
		backoff -= backoff * jitter * spread
	}

	d := time.Duration(backoff)
	if d < minRetryDelay {
		d = minRetryDelay
	}
	return d
}

const minRetryDelay = 100 * time.Millisecond
