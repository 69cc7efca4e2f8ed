package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"socialgraph/internal/auth"
	"socialgraph/internal/models"

	"github.com/redis/go-redis/v9"
)

// CheckRateLimit checks if a resource has exceeded its rate limit.
// Returns true if allowed, false if limit exceeded.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	// INCR and set EXPIRE if new
	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	if cnt > int64(limit) {
		return false, nil
	}
	return true, nil
}

// MutationLimiter throttles mutations per caller. The caller is the verified
// identity when present, otherwise the client IP. It fails open when Redis is
// absent or erroring.
type MutationLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// NewMutationLimiter allows limit mutations per window. limit <= 0 disables limiting.
func NewMutationLimiter(rdb *redis.Client, limit int, window time.Duration) *MutationLimiter {
	return &MutationLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow returns a RATE_LIMITED error once the caller exceeds the limit for resource.
func (l *MutationLimiter) Allow(ctx context.Context, resource string) error {
	if l == nil || l.limit <= 0 || l.rdb == nil {
		return nil
	}
	allowed, err := CheckRateLimit(ctx, l.rdb, resource, CallerKey(ctx), l.limit, l.window)
	if err != nil {
		Logger.WarnContext(ctx, "rate limit check failed, allowing request",
			slog.String("resource", resource),
			slog.String("error", err.Error()))
		return nil
	}
	if !allowed {
		return models.NewRateLimitedError()
	}
	return nil
}

// CallerKey identifies the caller of ctx for rate limiting.
func CallerKey(ctx context.Context) string {
	if id, ok := auth.FromContext(ctx); ok {
		return "user:" + id.UserID
	}
	if ip, ok := ctx.Value(ClientIPKey).(string); ok && ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}
