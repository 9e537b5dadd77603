package evmscan

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen/ton-relay/pkg/kvstore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/retry"
)

// lagWarningThreshold mirrors the reference scanner's warning threshold for
// how far behind the network head the node is allowed to fall before a
// warning (not a pause) is logged.
const lagWarningThreshold = 200

// cursorKey is the single key used inside each chain's cursor tree.
var cursorKey = []byte("cursor")

// Timeouts bounds every RPC the scanner makes, translated into retry.Policy
// instances for the height check and the log fetch.
type Timeouts struct {
	PollInterval    time.Duration
	RequestTimeout  time.Duration
	RequestAttempts int
	TotalFailBudget time.Duration
}

func (t Timeouts) heightPolicy() retry.Policy {
	return retry.Exponential(time.Second, 2.0, capOrDefault(t.TotalFailBudget), t.TotalFailBudget)
}

func (t Timeouts) logsPolicy() retry.Policy {
	return retry.Exponential(time.Second, 2.0, capOrDefault(t.TotalFailBudget), t.TotalFailBudget)
}

func capOrDefault(totalBudget time.Duration) time.Duration {
	c := totalBudget / 10
	if c < time.Second {
		c = time.Second
	}
	return c
}

// SyncStatus is the node's reported sync state for one height check.
type SyncStatus struct {
	Height   uint64
	IsSynced bool
}

// Scanner tails one EVM chain (C4).
type Scanner struct {
	chainID  uint64
	node     Node
	store    *kvstore.Store
	subs     *Subscriptions
	timeouts Timeouts
	permits  chan struct{}
	log      *logging.Logger

	events chan EventOrError
}

// EventOrError is the scanner's push-stream element: exactly one of Event or
// Err is set. An Err does not terminate the stream — it reports a single
// bad log (fatal node divergence is instead returned from Run).
type EventOrError struct {
	Event Event
	Err   error
}

// NewScanner constructs a scanner for chainID, starting from the persisted
// cursor (or the node's current height if none is stored).
func NewScanner(chainID uint64, node Node, store *kvstore.Store, subs *Subscriptions, timeouts Timeouts, parallelism int, log *logging.Logger) *Scanner {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scanner{
		chainID:  chainID,
		node:     node,
		store:    store,
		subs:     subs,
		timeouts: timeouts,
		permits:  make(chan struct{}, parallelism),
		log:      log.With(fmt.Sprintf("C4 scanner chain=%d", chainID)),
		events:   make(chan EventOrError, 256),
	}
}

// Events returns the scanner's output stream.
func (s *Scanner) Events() <-chan EventOrError {
	return s.events
}

// startHeight implements "current_height = store.get(cursor) or
// node.block_number()". The persisted cursor is the last scanned height
// (inclusive), so resuming from it means scanning starts one block above.
func (s *Scanner) startHeight(ctx context.Context) (uint64, error) {
	val, err := s.store.Get(CursorTree(s.chainID), cursorKey)
	if err != nil {
		return 0, err
	}
	if val != nil {
		last, err := DecodeCursor(val)
		if err != nil {
			return 0, err
		}
		return last + 1, nil
	}
	return s.node.BlockNumber(ctx)
}

func (s *Scanner) persistCursor(height uint64) error {
	return s.store.Put(CursorTree(s.chainID), cursorKey, EncodeCursor(height))
}

// RescanFrom atomically rewinds the cursor so the next scan starts at
// height, per the operator interface in §4.4. The persisted cursor is the
// last scanned height, so this persists height-1 (saturating at 0). The
// running loop picks up the new value on its next iteration.
func (s *Scanner) RescanFrom(height uint64) error {
	last := uint64(0)
	if height > 0 {
		last = height - 1
	}
	return s.persistCursor(last)
}

// Cursor returns the persisted scan height, or 0 if nothing has been
// persisted yet. Used by pkg/confirm to know when to drain the
// confirmation queue up to a newly-reached height.
func (s *Scanner) Cursor() (uint64, error) {
	val, err := s.store.Get(CursorTree(s.chainID), cursorKey)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return 0, nil
	}
	return DecodeCursor(val)
}

// checkSyncedHeight fetches the node's height via the retry engine and
// classifies it Synced/NotSynced the way get_synced_height does: when the
// node reports itself mid-sync, a lag over lagWarningThreshold blocks is
// merely logged, never paused.
func (s *Scanner) checkSyncedHeight(ctx context.Context) (SyncStatus, error) {
	var status SyncStatus
	err := retry.Do(ctx, s.log, "get eth height", s.timeouts.heightPolicy(), func(ctx context.Context) error {
		progress, err := s.node.SyncProgress(ctx)
		if err != nil {
			return err
		}
		if progress != nil {
			lag := int64(progress.HighestBlock) - int64(progress.CurrentBlock)
			if lag > lagWarningThreshold {
				s.log.Warnf("node is syncing and lags the network head by %d blocks", lag)
			}
			status = SyncStatus{Height: progress.CurrentBlock, IsSynced: false}
			return nil
		}
		h, err := s.node.BlockNumber(ctx)
		if err != nil {
			return err
		}
		status = SyncStatus{Height: h, IsSynced: true}
		return nil
	})
	return status, err
}

// Run drives the scanner's main loop until ctx is cancelled. A fatal error
// (retry budget exhausted fetching height or logs) is returned; transient
// per-log errors are instead reported on the Events() stream.
func (s *Scanner) Run(ctx context.Context) error {
	current, err := s.startHeight(ctx)
	if err != nil {
		return fmt.Errorf("evmscan: determine start height: %w", err)
	}

	ticker := time.NewTicker(s.timeouts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := s.checkSyncedHeight(ctx)
		if err != nil {
			return fmt.Errorf("evmscan: fatal: could not determine node height: %w", err)
		}
		if current >= status.Height {
			continue
		}

		if err := s.scanRange(ctx, current, status.Height); err != nil {
			return fmt.Errorf("evmscan: fatal: %w", err)
		}
		if err := s.persistCursor(status.Height); err != nil {
			s.log.Errorf("failed to persist cursor: %v", err)
		}
		current = status.Height + 1
	}
}

// scanRange fetches and emits logs for [from, to], implementing the
// cowardly-refusal and per-log error-isolation rules of §4.4 steps 4-6.
func (s *Scanner) scanRange(ctx context.Context, from, to uint64) error {
	addresses, topics := s.subs.Snapshot()
	if len(addresses) == 0 && len(topics) == 0 {
		s.log.Warnf("addresses and topics are empty, cowardly refusing to scan all logs")
		return nil
	}

	select {
	case s.permits <- struct{}{}:
		defer func() { <-s.permits }()
	case <-ctx.Done():
		return ctx.Err()
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	}

	var fetchedLogs []types.Log
	err := retry.Do(ctx, s.log, "fetch eth logs", s.timeouts.logsPolicy(), func(ctx context.Context) error {
		raw, err := s.node.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		fetchedLogs = raw
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetch logs [%d,%d]: %w", from, to, err)
	}

	for _, raw := range fetchedLogs {
		ev, err := logToEvent(raw)
		if err != nil {
			select {
			case s.events <- EventOrError{Err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case s.events <- EventOrError{Event: ev}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
