package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ThrottleDecision is the outcome of a submission rate check.
type ThrottleDecision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// SubmissionThrottle limits how often a user may submit code. State lives in
// Redis so every API replica sees the same counters. Without Redis every
// request is allowed.
type SubmissionThrottle struct {
	helper     *CacheHelper
	cooldown   time.Duration
	dailyLimit int64
	now        func() time.Time
}

func NewSubmissionThrottle(cm *CacheManager, cooldown time.Duration, dailyLimit int) *SubmissionThrottle {
	return &SubmissionThrottle{
		helper:     cm.Throttle,
		cooldown:   cooldown,
		dailyLimit: int64(dailyLimit),
		now:        time.Now,
	}
}

// Allow consumes one submission from the user's budget.
func (t *SubmissionThrottle) Allow(ctx context.Context, userID string) (ThrottleDecision, error) {
	if t == nil || !t.helper.Available() {
		return ThrottleDecision{Allowed: true}, nil
	}

	if t.cooldown > 0 {
		key := fmt.Sprintf("cooldown:%s", userID)
		ok, err := t.helper.SetNX(ctx, key, "1", t.cooldown)
		if err != nil {
			return t.failOpen(ctx, err)
		}
		if !ok {
			ttl, err := t.helper.TTL(ctx, key)
			if err != nil && !errors.Is(err, ErrCacheNotAvailable) {
				slog.WarnContext(ctx, "Failed to read throttle TTL", "error", err)
			}
			return ThrottleDecision{RetryAfter: ttl, Reason: "cooldown"}, nil
		}
	}

	if t.dailyLimit > 0 {
		now := t.now().UTC()
		key := fmt.Sprintf("daily:%s:%s", userID, now.Format("20060102"))
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		count, err := t.helper.Incr(ctx, key, midnight.Sub(now))
		if err != nil {
			return t.failOpen(ctx, err)
		}
		if count > t.dailyLimit {
			return ThrottleDecision{RetryAfter: midnight.Sub(now), Reason: "daily limit"}, nil
		}
	}

	return ThrottleDecision{Allowed: true}, nil
}

func (t *SubmissionThrottle) failOpen(ctx context.Context, err error) (ThrottleDecision, error) {
	slog.WarnContext(ctx, "Submission throttle unavailable, allowing request", "error", err)
	return ThrottleDecision{Allowed: true}, nil
}
