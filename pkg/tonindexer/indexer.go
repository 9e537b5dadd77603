// Package tonindexer defines the boundary between the relay and a TON
// protocol client. Running an actual TON node/indexer is explicitly out of
// scope for this repository, so Indexer is a narrow interface that an
// operator wires to a real implementation in production; Fake below
// provides an in-memory stand-in that drives pkg/tonsub in tests the same
// way a real indexer would.
package tonindexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/certen/ton-relay/pkg/tonsub"
)

// ErrNotConnected is the error an Indexer implementation returns for
// operations attempted before it has delivered at least one
// EngineStatusChanged(Synced) notification. Fake never returns it.
var ErrNotConnected = errors.New("tonindexer: not connected")

// NetworkConfig is the subset of the TON global config the indexer needs:
// a handful of DHT/liteserver bootstrap nodes plus the zero-state file hash.
// Opaque beyond that per the Non-goal excluding a TON protocol implementation.
type NetworkConfig struct {
	ZeroStateFileHash [32]byte
	Bootstrap         []string
}

// Indexer is the narrow surface C5/C6/C7/C8 need from a TON client:
// streaming blocks to a subscriber, broadcasting outbound messages, and
// point lookups of account state and global config.
type Indexer interface {
	// Subscribe registers sub to receive ProcessBlock/EngineStatusChanged
	// calls for every block the indexer processes, until ctx is cancelled.
	Subscribe(ctx context.Context, sub *tonsub.Subscriber) error

	// BroadcastMessage submits an external message to the network and
	// returns once it has been accepted for delivery (not necessarily
	// included in a block yet).
	BroadcastMessage(ctx context.Context, account tonsub.AccountID, body []byte) error

	// GetAccountState performs a direct (non-cached) account state lookup,
	// used by C6 observers that need a post-transaction re-read.
	GetAccountState(ctx context.Context, account tonsub.AccountID) (*tonsub.ShardAccount, error)

	// CallGetMethod runs a read-only get-method against account's current
	// state (the Go stand-in for ExistingContract::run_local) and returns
	// its raw, still function-opaque output.
	CallGetMethod(ctx context.Context, account tonsub.AccountID, method string, args []byte) ([]byte, error)

	// Config returns the network configuration the indexer was started with.
	Config() NetworkConfig
}

// Fake is an in-memory Indexer used by tests and local development. Blocks
// are injected with Deliver; BroadcastMessage records submitted messages for
// assertions instead of talking to a network.
type Fake struct {
	mu         sync.Mutex
	cfg        NetworkConfig
	subs       []*tonsub.Subscriber
	accounts   map[tonsub.AccountID]tonsub.ShardAccount
	sent       []FakeMessage
	getMethods map[getMethodKey][]byte
}

type getMethodKey struct {
	account tonsub.AccountID
	method  string
}

// FakeMessage records one BroadcastMessage call.
type FakeMessage struct {
	Account tonsub.AccountID
	Body    []byte
}

// NewFake creates a Fake indexer seeded with cfg.
func NewFake(cfg NetworkConfig) *Fake {
	return &Fake{
		cfg:        cfg,
		accounts:   make(map[tonsub.AccountID]tonsub.ShardAccount),
		getMethods: make(map[getMethodKey][]byte),
	}
}

// SetGetMethodResult primes the fake to return result for the given
// (account, method) pair, simulating a TVM get-method execution.
func (f *Fake) SetGetMethodResult(account tonsub.AccountID, method string, result []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getMethods[getMethodKey{account, method}] = append([]byte(nil), result...)
}

// CallGetMethod returns the primed result for (account, method), or an
// error if none was set.
func (f *Fake) CallGetMethod(ctx context.Context, account tonsub.AccountID, method string, args []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.getMethods[getMethodKey{account, method}]
	if !ok {
		return nil, fmt.Errorf("tonindexer: no result primed for %s.%s", account, method)
	}
	return result, nil
}

// Subscribe registers sub; Deliver fans blocks out to every subscribed
// Subscriber. Synced is signalled immediately, matching a local fake network
// that is always caught up.
func (f *Fake) Subscribe(ctx context.Context, sub *tonsub.Subscriber) error {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	sub.EngineStatusChanged(tonsub.StatusSynced)
	return nil
}

// Deliver pushes a masterchain and/or shard block to every subscribed
// Subscriber, simulating one indexer tick.
func (f *Fake) Deliver(mc *tonsub.MasterchainBlock, shard *tonsub.ShardBlock) {
	f.mu.Lock()
	if shard != nil {
		for account, acct := range shard.Accounts {
			f.accounts[account] = acct
		}
	}
	subs := append([]*tonsub.Subscriber(nil), f.subs...)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.ProcessBlock(mc, shard)
	}
}

// BroadcastMessage records the message and returns nil, simulating
// unconditional acceptance.
func (f *Fake) BroadcastMessage(ctx context.Context, account tonsub.AccountID, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, FakeMessage{Account: account, Body: append([]byte(nil), body...)})
	return nil
}

// SentMessages returns every message recorded by BroadcastMessage so far.
func (f *Fake) SentMessages() []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeMessage(nil), f.sent...)
}

// GetAccountState returns the most recently delivered state for account, if
// any has been seen.
func (f *Fake) GetAccountState(ctx context.Context, account tonsub.AccountID) (*tonsub.ShardAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[account]
	if !ok {
		return nil, nil
	}
	return &acct, nil
}

// Config returns the network configuration the fake was constructed with.
func (f *Fake) Config() NetworkConfig {
	return f.cfg
}
