package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/certen/ton-relay/pkg/logging"
)

// TestAttemptsMatchesReferenceFormula pins the exact value the reference
// implementation's unit test asserts for calculate_times_from_max_delay:
// start=1s, factor=2.0, cap=600s, total_time=86400s => 153.
func TestAttemptsMatchesReferenceFormula(t *testing.T) {
	p := Exponential(time.Second, 2.0, 600*time.Second, 86400*time.Second)
	if got := p.Attempts(); got != 153 {
		t.Fatalf("Attempts() = %d, want 153", got)
	}
}

func TestFixedPolicyAttempts(t *testing.T) {
	p := Fixed(10*time.Second, 100*time.Second)
	if got := p.Attempts(); got != 10 {
		t.Fatalf("Attempts() = %d, want 10", got)
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	calls := 0
	err := Do(context.Background(), log, "op", Fixed(time.Millisecond, time.Second), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	calls := 0
	err := Do(context.Background(), log, "op", Fixed(time.Millisecond, 50*time.Millisecond), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoReturnsLastErrorOnExhaustion(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	sentinel := errors.New("always fails")
	err := Do(context.Background(), log, "op", Fixed(time.Millisecond, 5*time.Millisecond), func(ctx context.Context) error {
		return sentinel
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, log, "op", Fixed(time.Second, time.Minute), func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 1 {
		t.Fatalf("expected at most 1 call after cancellation, got %d", calls)
	}
}
