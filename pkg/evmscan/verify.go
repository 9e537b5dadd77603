package evmscan

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen/ton-relay/pkg/retry"
)

// Errors returned by CheckTransaction, matching the spec's boundary
// behavior "status == 0 or missing => error TxFailed / NoStatus".
var (
	ErrTxFailed      = errors.New("evmscan: transaction has failed status")
	ErrNoStatus      = errors.New("evmscan: receipt has no status field")
	ErrNoMatchingLog = errors.New("evmscan: no log at the given event index")
)

// CheckTransaction re-fetches a transaction's receipt and returns the
// specific log at eventIndex as an Event, used by C7 to re-verify a
// PendingConfirmation before voting.
func (s *Scanner) CheckTransaction(ctx context.Context, txHash common.Hash, eventIndex uint) (Event, error) {
	var receipt *types.Receipt
	err := retry.Do(ctx, s.log, "check transaction", s.timeouts.logsPolicy(), func(ctx context.Context) error {
		r, err := s.node.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("check transaction %s: %w", txHash, err)
	}
	return decodeReceipt(receipt, txHash, eventIndex)
}

func decodeReceipt(receipt *types.Receipt, txHash common.Hash, eventIndex uint) (Event, error) {
	if receipt == nil {
		return Event{}, fmt.Errorf("%w: tx %s", ErrNoStatus, txHash)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Event{}, fmt.Errorf("%w: tx %s", ErrTxFailed, txHash)
	}
	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		if l.Index == eventIndex {
			return logToEvent(*l)
		}
	}
	return Event{}, fmt.Errorf("%w: tx %s index %d", ErrNoMatchingLog, txHash, eventIndex)
}
