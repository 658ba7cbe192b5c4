// Package ratelimit enforces per-caller request budgets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the sliding window length.
const DefaultWindow = time.Minute

// Limiter is used to enforce per-caller rate limits.
type Limiter interface {
	Allow(ctx context.Context, callerID string) (bool, error)
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, callerID string) (bool, error) {
	return true, nil
}

// slidingWindow trims the window, admits the request if there is room and
// returns {allowed, count, oldest score}. Rejected requests are not recorded.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RateLimiter implements distributed rate limiting using Redis sorted sets
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a limiter admitting limit requests per window.
// A non-positive limit disables limiting.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (rl *RateLimiter) key(callerID string) string {
	return fmt.Sprintf("ratelimit:%s", callerID)
}

// Allow checks if a request should be allowed for the given caller
func (rl *RateLimiter) Allow(ctx context.Context, callerID string) (bool, error) {
	allowed, _, _, err := rl.AllowWithDetails(ctx, callerID)
	return allowed, err
}

// AllowWithDetails also returns the remaining budget and when the oldest
// request leaves the window. Remaining is -1 when limiting is disabled.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, callerID string) (bool, int, time.Time, error) {
	if rl.limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	now := rl.now()
	res, err := slidingWindow.Run(ctx, rl.client,
		[]string{rl.key(callerID)},
		now.UnixMilli(),
		rl.window.Milliseconds(),
		rl.limit,
		fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: unexpected reply %v", res)
	}

	allowed := res[0] == 1
	remaining := max(rl.limit-int(res[1]), 0)
	resetAt := time.UnixMilli(res[2]).Add(rl.window)
	return allowed, remaining, resetAt, nil
}

// GetCurrentUsage returns the current request count in the window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, callerID string) (int64, error) {
	key := rl.key(callerID)
	windowStart := rl.now().Add(-rl.window)

	if err := rl.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}
	return count, nil
}

// Reset resets the rate limit for a caller
func (rl *RateLimiter) Reset(ctx context.Context, callerID string) error {
	return rl.client.Del(ctx, rl.key(callerID)).Err()
}
