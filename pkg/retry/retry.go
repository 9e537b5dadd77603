// Package retry implements the relay's bounded-time retry engine (C2):
// exponential and fixed backoff over any fallible operation, with the
// attempt count derived from a total-time budget rather than configured
// directly. The closed-form attempt-count formula and its logging shape are
// ported from the reference relay's retry helper (relay-utils's
// calculate_times_from_max_delay and retry functions).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/certen/ton-relay/pkg/logging"
)

// Policy describes a backoff schedule and the total time budget it must fit
// inside. Exactly one of the exponential fields or Fixed should be set.
type Policy struct {
	// Start is the first retry delay.
	Start time.Duration
	// Factor is the exponential growth factor (>1). Zero means "fixed".
	Factor float64
	// Cap bounds the per-attempt delay (exponential) or equals the fixed
	// interval (fixed).
	Cap time.Duration
	// TotalTime is the overall budget the retry loop must exhaust within.
	TotalTime time.Duration
}

// Fixed builds a fixed-interval policy.
func Fixed(interval, totalTime time.Duration) Policy {
	return Policy{Start: interval, Factor: 0, Cap: interval, TotalTime: totalTime}
}

// Exponential builds an exponential-backoff policy.
func Exponential(start time.Duration, factor float64, cap, totalTime time.Duration) Policy {
	return Policy{Start: start, Factor: factor, Cap: cap, TotalTime: totalTime}
}

// IsFixed reports whether the policy is a fixed-interval policy.
func (p Policy) IsFixed() bool {
	return p.Factor <= 1
}

// Attempts returns the number of attempts the policy allows before its
// total-time budget is exhausted.
//
// For a fixed policy this is simply TotalTime/Cap (rounded up, at least 1).
//
// For an exponential policy the delay sequence saturates at Cap after
// N_sat = floor(log((cap-start)/start) / log(factor)) steps, having spent
// T_sat = start*(1-factor^N_sat)/(1-factor) of the budget getting there; the
// remaining budget is then spent in Cap-sized steps. This is the exact
// formula ported from the reference implementation's
// calculate_times_from_max_delay.
func (p Policy) Attempts() int {
	if p.IsFixed() {
		n := int(math.Ceil(float64(p.TotalTime) / float64(p.Cap)))
		if n < 1 {
			n = 1
		}
		return n
	}

	start := float64(p.Start)
	factor := p.Factor
	cap := float64(p.Cap)
	total := float64(p.TotalTime)

	nSat := math.Floor(math.Log((cap-start)/start) / math.Log(factor))
	tSat := start * (1 - math.Pow(factor, nSat)) / (1 - factor)
	remaining := total - tSat
	steps := remaining / cap

	n := int(math.Ceil(steps + nSat))
	if n < 1 {
		n = 1
	}
	return n
}

// delayForAttempt returns the delay to sleep before attempt number `attempt`
// (1-indexed: the delay awaited after attempt 1 failed, before attempt 2).
func (p Policy) delayForAttempt(attempt int) time.Duration {
	if p.IsFixed() {
		return p.Cap
	}
	d := float64(p.Start) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// ErrExhausted is returned (wrapped) when a retried operation still fails
// after its attempt budget is used up.
var ErrExhausted = errors.New("retry: attempt budget exhausted")

// Do runs fn, retrying per policy on error, logging attempt/delay/error on
// every failure the way the reference retry() logs
// "Retrying {} with {} attempt. Next delay: {:?}. Error: {:?}". Returns the
// last error (wrapped in ErrExhausted) if every attempt fails.
func Do(ctx context.Context, log *logging.Logger, message string, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		delay := policy.delayForAttempt(attempt)
		log.Warnf("Retrying %s with %d attempt. Next delay: %s. Error: %v", message, attempt, delay, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w: %w", message, ErrExhausted, lastErr)
}
