package bot

import (
	"context"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("recovered from panic in update handler")
		}
	}()
	handler()
}

// allow applies the per-user command budget. Limiter failures let the update through.
func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.deps.Limiter == nil || b.cfg.RateLimitMessages <= 0 {
		return true
	}
	allowed, err := b.deps.Limiter.Allow(ctx, userID, b.cfg.RateLimitMessages, b.cfg.RateLimitWindow)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("rate limit check failed")
		return true
	}
	return allowed
}
