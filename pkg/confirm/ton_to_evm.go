package confirm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen/ton-relay/pkg/ethereum"
	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/kvstore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/retry"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// TonEvent is a finalized TON event ready to be voted onto an EVM contract,
// identified by the already-ABI-encoded call data for its confirm/reject
// entrypoint.
type TonEvent struct {
	TonEventAccount tonsub.AccountID
	TargetContract  common.Address
	CallData        []byte
}

// tonEventKey is the verification_state key for a TON event, keyed by the
// TON event contract's account id so re-delivery after a restart is
// idempotent.
func tonEventKey(account tonsub.AccountID) []byte {
	return append([]byte("ton_event/"), account[:]...)
}

// HandleTonFinalizedEvent implements the "from TON to EVM" direction: it
// checks verification_state for a record that this TON event has already
// been voted on, and if not, submits the vote transaction and persists
// completion. gasLimit and policy are caller-supplied because they depend on
// which EVM chain ev.TargetContract lives on.
func HandleTonFinalizedEvent(ctx context.Context, log *logging.Logger, store *kvstore.Store, client *ethereum.Client, handle *keystore.Handle, ev TonEvent, gasLimit uint64, policy retry.Policy) (*types.Receipt, error) {
	key := tonEventKey(ev.TonEventAccount)
	existing, err := store.Get(kvstore.TreeVerificationState, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	receipt, err := client.SendWithHandle(ctx, log, handle, ev.TargetContract, ev.CallData, gasLimit, policy)
	if err != nil {
		return nil, fmt.Errorf("confirm: submit ton->evm vote for %s: %w", ev.TonEventAccount, err)
	}

	if err := store.Put(kvstore.TreeVerificationState, key, receipt.TxHash.Bytes()); err != nil {
		return nil, fmt.Errorf("confirm: persist ton->evm completion for %s: %w", ev.TonEventAccount, err)
	}
	return receipt, nil
}
