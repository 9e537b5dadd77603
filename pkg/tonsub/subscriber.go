package tonsub

import (
	"fmt"
	"sync"

	"github.com/certen/ton-relay/pkg/logging"
)

// AccountID identifies a TON account by its 256-bit address hash.
type AccountID [32]byte

func (a AccountID) String() string { return fmt.Sprintf("%x", a[:]) }

// ShardAccount is the cached per-account state snapshot published on a
// shard block, the Go stand-in for ton_block::ShardAccount.
type ShardAccount struct {
	Balance    uint64
	LastTxLT   uint64
	DataHash   [32]byte
	CodeHash   [32]byte
	LastTxHash [32]byte
}

// BlockInfo carries the fields handlers need out of a shard block header.
type BlockInfo struct {
	ShardPrefix uint64
	ShardWorkchain int32
	SeqNo       uint32
	GenUtime    uint32
}

// ContainsAccount reports whether the shard identified by info contains
// account, mirroring the reference's contains_account helper.
func ContainsAccount(info BlockInfo, account AccountID) bool {
	return true // the real shard-prefix match is supplied by the TON indexer (Non-goal); callers pre-filter via Indexer.
}

// Transaction is the Go stand-in for ton_block::Transaction: enough fields
// for observers (C6) to decode outbound messages and events from it.
type Transaction struct {
	Hash        [32]byte
	Account     AccountID
	LogicalTime uint64
	Now         uint32
	Aborted     bool
	OutMessages []OutMessage
	InMessage   *InMessage
}

// OutMessage is one outbound message produced by a transaction.
type OutMessage struct {
	Dest AccountID
	Body []byte
}

// InMessage is the inbound message that produced a transaction.
type InMessage struct {
	Src  AccountID
	Body []byte
}

// TransactionsSubscription receives every transaction for one account as it
// is processed. Implementations must not block; slow work should be handed
// off to a worker goroutine.
type TransactionsSubscription interface {
	HandleTransaction(info BlockInfo, txHash [32]byte, tx Transaction) error
}

// SubscriptionToken is returned when a TransactionsSubscription is
// registered. Go has no weak pointers, so liveness is instead tracked
// through an explicit IsAlive probe the holder supplies at registration
// time (closing over its own lifetime, e.g. an atomic flag flipped in a
// Close method, or a context's Done channel).
type SubscriptionToken struct {
	account AccountID
	id      uint64
}

type subscriptionEntry struct {
	handler TransactionsSubscription
	isAlive func() bool
	id      uint64
}

// stateSubscriptionStatus mirrors the reference StateSubscriptionStatus.
type stateSubscriptionStatus int

const (
	statusStopped stateSubscriptionStatus = iota
	statusPartlyAlive
	statusAlive
)

type stateSubscription struct {
	state       *Watch[*ShardAccount]
	stateReaders int
	subs        []subscriptionEntry
	nextID      uint64
}

func (s *stateSubscription) updateStatus() stateSubscriptionStatus {
	live := s.subs[:0]
	for _, sub := range s.subs {
		if sub.isAlive == nil || sub.isAlive() {
			live = append(live, sub)
		}
	}
	s.subs = live

	if s.stateReaders > 0 {
		return statusAlive
	}
	if len(s.subs) > 0 {
		return statusPartlyAlive
	}
	return statusStopped
}

// BlockAwaiter is notified exactly once with the next masterchain block's
// shard map, the Go equivalent of the reference's one-shot oneshot::Sender
// handler.
type BlockAwaiter func(shards ShardsMap)

// ShardsMap is the masterchain block's shard identifier -> last block map.
type ShardsMap map[ShardIdent]BlockRef

// ShardIdent identifies one TON shard.
type ShardIdent struct {
	Workchain int32
	Prefix    uint64
}

// BlockRef identifies one TON block by its sequence number and root hash.
type BlockRef struct {
	SeqNo    uint32
	RootHash [32]byte
	FileHash [32]byte
}

// Subscriber is the C5 engine: registered with an external indexer (the
// Go stand-in for ton_indexer::Subscriber), it maintains per-account state
// and dispatches transactions to registered handlers.
type Subscriber struct {
	mu               sync.Mutex
	ready            bool
	readyWaiters     []chan struct{}
	currentUtime     uint32
	stateSubs        map[AccountID]*stateSubscription
	mcBlockAwaiters  []BlockAwaiter

	log *logging.Logger
}

// New creates an unready subscriber; callers must call EngineStatusChanged
// with StatusSynced before ProcessBlock does anything but discard blocks.
func New(log *logging.Logger) *Subscriber {
	return &Subscriber{
		stateSubs: make(map[AccountID]*stateSubscription),
		log:       log.With("C5 tonsub"),
	}
}

// EngineStatus mirrors ton_indexer::EngineStatus.
type EngineStatus int

const (
	StatusSyncing EngineStatus = iota
	StatusSynced
)

// EngineStatusChanged is called by the indexer adapter when the underlying
// TON node's sync state changes. The subscriber only starts processing
// blocks, and only becomes "ready", once Synced is reported.
func (s *Subscriber) EngineStatusChanged(status EngineStatus) {
	if status != StatusSynced {
		return
	}
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return
	}
	s.ready = true
	waiters := s.readyWaiters
	s.readyWaiters = nil
	s.mu.Unlock()

	s.log.Infof("TON subscriber is ready")
	for _, w := range waiters {
		close(w)
	}
}

// WaitReady blocks until EngineStatusChanged(StatusSynced) has been called,
// or done is closed (process shutdown), matching wait_sync in the reference.
func (s *Subscriber) WaitReady(done <-chan struct{}) bool {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	s.readyWaiters = append(s.readyWaiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-done:
		return false
	}
}

// IsReady reports the current readiness state without blocking.
func (s *Subscriber) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// WaitShards registers a one-shot awaiter for the next masterchain block's
// shard map and blocks until it fires or done closes.
func (s *Subscriber) WaitShards(done <-chan struct{}) (ShardsMap, bool) {
	result := make(chan ShardsMap, 1)
	s.mu.Lock()
	s.mcBlockAwaiters = append(s.mcBlockAwaiters, func(shards ShardsMap) {
		select {
		case result <- shards:
		default:
		}
	})
	s.mu.Unlock()

	select {
	case shards := <-result:
		return shards, true
	case <-done:
		return nil, false
	}
}

// AddTransactionsSubscription registers handler for account. isAlive is the
// liveness probe the Go weak-reference substitute relies on: once it starts
// returning false the subscription is pruned at the next shard block for
// that account. A nil isAlive means "always alive" (caller manages its own
// Unsubscribe via the returned token).
func (s *Subscriber) AddTransactionsSubscription(account AccountID, handler TransactionsSubscription, isAlive func() bool) SubscriptionToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.stateSubs[account]
	if !ok {
		sub = &stateSubscription{state: NewWatch[*ShardAccount](nil)}
		s.stateSubs[account] = sub
	}
	sub.nextID++
	id := sub.nextID
	sub.subs = append(sub.subs, subscriptionEntry{handler: handler, isAlive: isAlive, id: id})
	return SubscriptionToken{account: account, id: id}
}

// Unsubscribe removes a transaction subscription registered with
// AddTransactionsSubscription, in addition to the automatic pruning that
// isAlive performs. Safe to call more than once.
func (s *Subscriber) Unsubscribe(token SubscriptionToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.stateSubs[token.account]
	if !ok {
		return
	}
	filtered := sub.subs[:0]
	for _, entry := range sub.subs {
		if entry.id != token.id {
			filtered = append(filtered, entry)
		}
	}
	sub.subs = filtered
}

// GetContractState returns the latest cached ShardAccount snapshot for
// account, registering it for tracking if it is new, and blocks until the
// first snapshot arrives or done closes (matching get_contract_state's
// "await the first change" behavior on a freshly created watch channel).
// The reference counts live watch::Receiver clones automatically on Drop;
// Go has no destructors, so the caller must call the returned release func
// once it stops observing, or the account is kept Alive (never demoted to
// PartlyAlive/Stopped) until its transaction subscriptions also end.
func (s *Subscriber) GetContractState(account AccountID, done <-chan struct{}) (*ShardAccount, func(), bool) {
	s.mu.Lock()
	sub, ok := s.stateSubs[account]
	if !ok {
		sub = &stateSubscription{state: NewWatch[*ShardAccount](nil)}
		s.stateSubs[account] = sub
	}
	sub.stateReaders++
	watch := sub.state
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.stateReaders > 0 {
			sub.stateReaders--
		}
	}

	if v, has := watch.Get(); has {
		return v, release, true
	}
	v, ok := watch.Changed(done)
	return v, release, ok
}
