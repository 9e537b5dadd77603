// Package tonsub implements the TON chain-subscriber (C5): a per-account
// state cache and transaction dispatcher fed by an external TON indexer.
// Grounded on original_source/src/engine/ton_subscriber/mod.rs (TonSubscriber,
// StateSubscription, BlockAwaiter) and, for the mutex-guarded registry idiom,
// the reference validator's pkg/execution/external_chain_observer.go
// (pending map + RWMutex + callback dispatch).
package tonsub

import "sync"

// Watch is the Go substitute for tokio::sync::watch: a single-slot latest
// value broadcast to any number of readers. Every Set replaces the value and
// wakes every goroutine blocked in Changed; readers that only care about the
// latest value never need to drain a channel.
type Watch[T any] struct {
	mu      sync.Mutex
	value   T
	hasAny  bool
	waiters chan struct{}
}

// NewWatch creates a Watch seeded with the given initial value.
func NewWatch[T any](initial T) *Watch[T] {
	return &Watch[T]{value: initial, waiters: make(chan struct{})}
}

// Set replaces the stored value and wakes every current waiter.
func (w *Watch[T]) Set(v T) {
	w.mu.Lock()
	w.value = v
	w.hasAny = true
	closing := w.waiters
	w.waiters = make(chan struct{})
	w.mu.Unlock()
	close(closing)
}

// Get returns the current value and whether Set has ever been called.
func (w *Watch[T]) Get() (T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.hasAny
}

// Changed blocks until the next Set call (or until done is closed), then returns
// the new value. Equivalent to watch::Receiver::changed().await followed by
// borrow().
func (w *Watch[T]) Changed(done <-chan struct{}) (T, bool) {
	w.mu.Lock()
	ch := w.waiters
	w.mu.Unlock()

	select {
	case <-ch:
		return w.Get()
	case <-done:
		var zero T
		return zero, false
	}
}
