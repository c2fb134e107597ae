package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/optionagent/agent/internal/domain"
)

// Policy bundles the concurrency/rate/retry/budget knobs a provider
// operates under. One Policy is shared process-wide per provider name —
// concurrent runs draw from the same bucket and budget, so the policy
// must be concurrency-safe.
type Policy struct {
	Provider     string
	Concurrency  int           // token bucket burst size; in-flight requests are not otherwise capped
	RatePerSec   float64       // sustained requests/sec
	MaxAttempts  int           // retry ceiling (default 3)
	CallBudget   int           // hard call-count quota shared by all runs through this limiter (default 500)
	CooldownWait time.Duration // wait when budget exhausted, then reset (default 60s)
}

// DefaultPolicy returns the standard concurrency/rate/retry/budget
// defaults for a provider.
func DefaultPolicy(provider string) Policy {
	return Policy{
		Provider:     provider,
		Concurrency:  2,
		RatePerSec:   2,
		MaxAttempts:  3,
		CallBudget:   500,
		CooldownWait: 60 * time.Second,
	}
}

// Budget is a process-wide, concurrency-safe call-count quota with a
// cooldown-then-reset behavior on exhaustion. It is re-entrant across
// concurrent runs by design.
type Budget struct {
	mu            sync.Mutex
	limit         int
	used          int
	cooldown      time.Duration
	clock         func() time.Time
	cooldownUntil time.Time
}

// NewBudget creates a Budget with the given limit and cooldown window.
func NewBudget(limit int, cooldown time.Duration) *Budget {
	return &Budget{limit: limit, cooldown: cooldown, clock: time.Now}
}

// Take blocks until a call slot is available, consuming it on return.
// When the limit is hit it sleeps out the cooldown window and resets the
// counter.
func (b *Budget) Take(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.clock()
		if now.Before(b.cooldownUntil) {
			wait := b.cooldownUntil.Sub(now)
			b.mu.Unlock()
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if b.used >= b.limit {
			b.cooldownUntil = now.Add(b.cooldown)
			b.used = 0
			wait := b.cooldown
			b.mu.Unlock()
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		b.used++
		b.mu.Unlock()
		return nil
	}
}

// Limiter wraps a per-provider token bucket (golang.org/x/time/rate) and
// call budget, and drives the retry-with-backoff loop every gateway
// operation goes through.
type Limiter struct {
	policy Policy
	bucket *rate.Limiter
	budget *Budget
	tool   ToolLogger
}

// NewLimiter builds a Limiter for one provider from its Policy.
func NewLimiter(policy Policy, tool ToolLogger) *Limiter {
	if tool == nil {
		tool = NopToolLogger{}
	}
	return &Limiter{
		policy: policy,
		bucket: rate.NewLimiter(rate.Limit(policy.RatePerSec), policy.Concurrency),
		budget: NewBudget(policy.CallBudget, policy.CooldownWait),
		tool:   tool,
	}
}

// Call runs fn under the rate limiter and budget, retrying on retryable
// errors with exponential backoff + jitter up to policy.MaxAttempts, and
// recording every attempt to the tool log.
func (l *Limiter) Call(ctx context.Context, runID, operation, symbol string, fn func(ctx context.Context) error) error {
	if err := l.budget.Take(ctx); err != nil {
		return domain.NewAgentError(domain.KindCancelled, symbol, err)
	}

	maxAttempts := l.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := l.bucket.Wait(ctx); err != nil {
			return domain.NewAgentError(domain.KindCancelled, symbol, err)
		}

		start := time.Now()
		err := fn(ctx)
		latency := time.Since(start)

		outcome := "ok"
		errText := ""
		if err != nil {
			outcome = "error"
			errText = err.Error()
		}
		_ = l.tool.LogTool(ctx, ToolCallLog{
			RunID:     runID,
			Provider:  l.policy.Provider,
			Operation: operation,
			Symbol:    symbol,
			LatencyMS: latency.Milliseconds(),
			Attempt:   attempt,
			Outcome:   outcome,
			Err:       errText,
			At:        start,
		})

		if err == nil {
			return nil
		}
		lastErr = err

		var agentErr *domain.AgentError
		retryable := errors.As(err, &agentErr) && agentErr.Kind.IsRetryable()
		if !retryable || attempt == maxAttempts {
			break
		}

		backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
		backoff += time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return domain.NewAgentError(domain.KindCancelled, symbol, ctx.Err())
		}
	}

	return lastErr
}
