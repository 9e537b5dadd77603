// Package confirm implements the event-confirmation pipeline (C7): it
// correlates EVM logs (from pkg/evmscan) and TON transactions (from
// pkg/tonsub/pkg/tonobserve) against registered bridge configurations,
// tracks in-flight confirmations durably through pkg/kvstore, and submits
// confirm/reject votes once an event has aged past its required
// confirmation depth. Grounded on original_source/src/engine/bridge/
// persistent_state.rs's TonWatcher (persist-by-tx-hash, scan-for-block,
// drop-on-completion idiom), adapted from a sled tree to pkg/kvstore.
package confirm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/ton-relay/pkg/evmscan"
	"github.com/certen/ton-relay/pkg/kvstore"
	"github.com/certen/ton-relay/pkg/metrics"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// pendingRetention bounds how long a PendingConfirmation may sit in the
// queue, in wall-clock terms, before it is eligible for garbage collection
// even if its scheduled drain height has not been reached (e.g. the chain
// stalls well short of BlocksToConfirm more blocks). Recorded on the entry
// as ExpiresAt; pruning against it happens in the same sweep as the
// height-triggered drain, never as a separate pass.
const pendingRetention = 24 * time.Hour

// Configuration is a registered bridge event configuration: which EVM log
// to watch for, how deep to wait before voting, and which TON event
// contract receives the vote.
type Configuration struct {
	ID              uint64
	ChainID         uint64
	EvmAddress      common.Address
	EvmTopic        common.Hash
	BlocksToConfirm uint64
	TonEventAccount tonsub.AccountID
}

func configKey(chainID uint64, address common.Address, topic common.Hash) string {
	return fmt.Sprintf("%d:%s:%s", chainID, address.Hex(), topic.Hex())
}

// PendingConfirmation is the durable record of one EVM event awaiting
// re-verification and a vote.
type PendingConfirmation struct {
	Fingerprint     [32]byte
	ConfigurationID uint64
	ChainID         uint64
	Event           evmscan.Event
	ExpiresAt       uint32
}

// Fingerprint computes the spec's idempotence key: (tx_hash, log_index,
// configuration).
func Fingerprint(ev evmscan.Event, configID uint64) [32]byte {
	h := sha256.New()
	h.Write(ev.TxHash[:])
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(ev.LogIndex))
	h.Write(idx[:])
	var cfg [8]byte
	binary.BigEndian.PutUint64(cfg[:], configID)
	h.Write(cfg[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// evmQueueKey orders entries first by the scheduled drain height, then by
// configuration, then by (block number, log index) within a configuration
// — exactly the ordering guarantee the pipeline must uphold when it later
// Scans the tree in key order.
func evmQueueKey(height uint64, cfg Configuration, ev evmscan.Event, fingerprint [32]byte) []byte {
	key := make([]byte, 8+8+8+4+32)
	binary.BigEndian.PutUint64(key[0:8], height)
	binary.BigEndian.PutUint64(key[8:16], cfg.ID)
	binary.BigEndian.PutUint64(key[16:24], ev.BlockNumber)
	binary.BigEndian.PutUint32(key[24:28], uint32(ev.LogIndex))
	copy(key[28:], fingerprint[:])
	return key
}

func queueKeyHeight(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("confirm: queue key too short")
	}
	return binary.BigEndian.Uint64(key[:8]), nil
}

// Pipeline is the C7 engine. It owns no transport itself: EVM events arrive
// through HandleEvmEvent (fed by a per-chain goroutine reading an
// evmscan.Scanner's Events() channel), and drained confirmations are voted
// on by DrainUpTo through a *tonobserve.Delivery supplied by the caller
// (RunChain passes it through; pkg/engine constructs it).
type Pipeline struct {
	store   *kvstore.Store
	metrics *metrics.Registry

	mu      sync.RWMutex
	configs map[string]Configuration
}

// New creates a pipeline backed by store.
func New(store *kvstore.Store) *Pipeline {
	return &Pipeline{store: store, configs: make(map[string]Configuration)}
}

// SetMetrics attaches a metrics registry the pipeline reports vote counts
// through. Optional: a nil registry (the default) disables reporting.
func (p *Pipeline) SetMetrics(m *metrics.Registry) {
	p.metrics = m
}

// PendingCount returns the number of PendingConfirmation entries currently
// awaiting a vote, used to drive the relay_pending_confirmations gauge.
func (p *Pipeline) PendingCount() (int, error) {
	entries, err := p.store.Scan(kvstore.TreeEvmConfirmationQueue)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// RegisterConfiguration adds cfg to the in-memory lookup table used by
// HandleEvmEvent. Callers are responsible for also subscribing
// (cfg.EvmAddress, cfg.EvmTopic) on the relevant evmscan.Subscriptions.
func (p *Pipeline) RegisterConfiguration(cfg Configuration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[configKey(cfg.ChainID, cfg.EvmAddress, cfg.EvmTopic)] = cfg
}

// Configurations returns every registered configuration for chainID, used
// to (re)build an evmscan.Subscriptions set after a restart.
func (p *Pipeline) Configurations(chainID uint64) []Configuration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Configuration
	for _, cfg := range p.configs {
		if cfg.ChainID == chainID {
			out = append(out, cfg)
		}
	}
	return out
}

func (p *Pipeline) lookupConfiguration(chainID uint64, address common.Address, topic common.Hash) (Configuration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.configs[configKey(chainID, address, topic)]
	return cfg, ok
}

// ConfigurationByID returns the registered configuration with the given ID,
// used by the drain step to recover the TON event contract a vote goes to.
func (p *Pipeline) ConfigurationByID(id uint64) (Configuration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cfg := range p.configs {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return Configuration{}, false
}

// HandleEvmEvent implements the "from EVM to TON" steps 1-3: look up the
// configuration, check idempotence against pending_ton_events, and persist
// the event into both pending_ton_events and the height-keyed confirmation
// queue. A topic with no registered configuration is silently dropped.
func (p *Pipeline) HandleEvmEvent(chainID uint64, ev evmscan.Event) error {
	if len(ev.Topics) == 0 {
		return nil
	}
	cfg, ok := p.lookupConfiguration(chainID, ev.Address, ev.Topics[0])
	if !ok {
		return nil
	}

	fingerprint := Fingerprint(ev, cfg.ID)
	existing, err := p.store.Get(kvstore.TreePendingTonEvents, fingerprint[:])
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	pending := PendingConfirmation{
		Fingerprint:     fingerprint,
		ConfigurationID: cfg.ID,
		ChainID:         chainID,
		Event:           ev,
		ExpiresAt:       uint32(time.Now().Add(pendingRetention).Unix()),
	}
	value, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("confirm: marshal pending confirmation: %w", err)
	}

	scheduledHeight := ev.BlockNumber + cfg.BlocksToConfirm
	if err := p.store.Put(kvstore.TreeEvmConfirmationQueue, evmQueueKey(scheduledHeight, cfg, ev, fingerprint), value); err != nil {
		return err
	}
	return p.store.Put(kvstore.TreePendingTonEvents, fingerprint[:], value)
}

// PendingUpTo returns every PendingConfirmation that is due to drain: those
// scheduled at or before maxHeight, plus any whose ExpiresAt has already
// passed regardless of height (the chain-stall garbage-collection case),
// in the (height, configuration, block number, log index) order
// evmQueueKey establishes — a single tree scan rather than one per height,
// since most heights in a range carry no pending entries at all.
func (p *Pipeline) PendingUpTo(maxHeight uint64) ([]PendingConfirmation, [][]byte, error) {
	entries, err := p.store.Scan(kvstore.TreeEvmConfirmationQueue)
	if err != nil {
		return nil, nil, err
	}
	now := uint32(time.Now().Unix())
	var pending []PendingConfirmation
	var keys [][]byte
	for _, e := range entries {
		h, err := queueKeyHeight(e.Key)
		if err != nil {
			return nil, nil, err
		}
		var pc PendingConfirmation
		if err := json.Unmarshal(e.Value, &pc); err != nil {
			return nil, nil, fmt.Errorf("confirm: unmarshal pending confirmation: %w", err)
		}
		if h > maxHeight && (pc.ExpiresAt == 0 || pc.ExpiresAt > now) {
			continue
		}
		pending = append(pending, pc)
		keys = append(keys, e.Key)
	}
	return pending, keys, nil
}

// RemoveFromQueue deletes the drained queue entry and the idempotence
// record for fingerprint, called once a vote is delivered or its deadline
// passes.
func (p *Pipeline) RemoveFromQueue(queueKey []byte, fingerprint [32]byte) error {
	if err := p.store.Delete(kvstore.TreeEvmConfirmationQueue, queueKey); err != nil {
		return err
	}
	return p.store.Delete(kvstore.TreePendingTonEvents, fingerprint[:])
}
