package repository

import (
	"context"
	"sync"
	"time"

	"rentacar/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverRateLimiter uses the primary limiter until it errors, then serves from the fallback
// and retries the primary once per recoveryInterval.
type FailoverRateLimiter struct {
	primary   domain.RateLimiter
	fallback  domain.RateLimiter
	logger    *zerolog.Logger
	mu        sync.Mutex
	down      bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.Allow(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("primary rate limiter failed, falling back to memory")
		r.markDown()
	}
	return r.fallback.Allow(ctx, userID, limit, window)
}

// Down reports whether calls currently go to the fallback.
func (r *FailoverRateLimiter) Down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverRateLimiter) usePrimary() bool {
	if r.primary == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.down || r.now().Sub(r.lastCheck) > recoveryInterval
}

func (r *FailoverRateLimiter) markDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = true
	r.lastCheck = r.now()
}

func (r *FailoverRateLimiter) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		r.logger.Info().Msg("primary rate limiter recovered")
	}
	r.down = false
}
