package confirm

import (
	"context"
	"time"

	"github.com/certen/ton-relay/pkg/evmscan"
	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonobserve"
)

// cursorPollInterval is how often RunChain checks whether the scanner's
// persisted cursor has advanced far enough to drain another height. It is
// independent of (and typically much shorter than) the scanner's own block
// poll interval.
const cursorPollInterval = time.Second

// ScannerSource bundles what RunChain needs from one chain's evmscan
// scanner: its event stream, its re-verification call, and its persisted
// cursor.
type ScannerSource interface {
	Checker
	Events() <-chan evmscan.EventOrError
	Cursor() (uint64, error)
}

// RunChain feeds one EVM chain's scanned events into p and drains the
// confirmation queue as the chain's cursor advances, until ctx is
// cancelled or the scanner's event channel closes.
func RunChain(ctx context.Context, log *logging.Logger, p *Pipeline, chainID uint64, source ScannerSource, handle *keystore.Handle, delivery *tonobserve.Delivery) error {
	ticker := time.NewTicker(cursorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case item, ok := <-source.Events():
			if !ok {
				return nil
			}
			if item.Err != nil {
				log.Warnf("confirm: chain %d scanner reported a bad log: %v", chainID, item.Err)
				continue
			}
			if err := p.HandleEvmEvent(chainID, item.Event); err != nil {
				log.Errorf("confirm: handle event %x/%d: %v", item.Event.TxHash, item.Event.LogIndex, err)
			}

		case <-ticker.C:
			cursor, err := source.Cursor()
			if err != nil {
				log.Errorf("confirm: read chain %d cursor: %v", chainID, err)
				continue
			}
			if err := DrainUpTo(ctx, log, p, source, handle, delivery, cursor); err != nil {
				log.Errorf("confirm: drain chain %d up to height %d: %v", chainID, cursor, err)
			}
		}
	}
}
