// Package ratelimit provides a fixed-window per-user request limiter backed
// by the relational store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// Limiter counts recent events per (user, action) and refuses requests once
// the window limit is reached.
type Limiter struct {
	store  storage.RateLimitStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// Result reports one limiter decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// New builds a limiter allowing limit events per window.
func New(store storage.RateLimitStore, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow checks the window for (userID, action) and records the event when the
// request is admitted. Refusals record nothing so blocked callers do not
// extend their own window.
func (l *Limiter) Allow(ctx context.Context, userID string, action string) (Result, error) {
	if l == nil || l.store == nil {
		return Result{}, fmt.Errorf("rate limiter is not configured")
	}

	now := l.now()
	count, err := l.store.CountEvents(ctx, userID, action, now.Add(-l.window))
	if err != nil {
		return Result{}, fmt.Errorf("count rate limit events: %w", err)
	}
	if count >= l.limit {
		return Result{Allowed: false, Remaining: 0, RetryAfter: l.window}, nil
	}
	if err := l.store.RecordEvent(ctx, userID, action, now); err != nil {
		return Result{}, fmt.Errorf("record rate limit event: %w", err)
	}
	return Result{Allowed: true, Remaining: l.limit - count - 1}, nil
}
