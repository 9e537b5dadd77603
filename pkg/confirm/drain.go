package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/ton-relay/pkg/evmscan"
	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonobserve"
)

// VoteExpiry bounds how long a confirm/reject message is allowed to sit
// unconfirmed before DeliverMessage gives up on it.
const VoteExpiry = 5 * time.Minute

// Checker is the subset of *evmscan.Scanner the drain step needs to
// re-verify a pending event before voting on it.
type Checker interface {
	CheckTransaction(ctx context.Context, txHash common.Hash, eventIndex uint) (evmscan.Event, error)
}

// DrainUpTo implements the spec's drain step: pop every PendingConfirmation
// scheduled at or before maxHeight, re-verify each against the source
// chain, and submit a confirm or reject vote to its TON event contract. A
// re-verification failure of any kind (tx failed, receipt missing, log no
// longer at that index) votes reject rather than being treated as an
// error, per the decision that a relay must always resolve a pending event
// one way or the other instead of leaving it stuck.
func DrainUpTo(ctx context.Context, log *logging.Logger, p *Pipeline, checker Checker, handle *keystore.Handle, delivery *tonobserve.Delivery, maxHeight uint64) error {
	pending, keys, err := p.PendingUpTo(maxHeight)
	if err != nil {
		return fmt.Errorf("confirm: list pending up to height %d: %w", maxHeight, err)
	}

	for i, pc := range pending {
		cfg, ok := p.ConfigurationByID(pc.ConfigurationID)
		if !ok {
			log.Infof("confirm: no configuration %d registered for pending event %x, dropping", pc.ConfigurationID, pc.Fingerprint)
			if err := p.RemoveFromQueue(keys[i], pc.Fingerprint); err != nil {
				return fmt.Errorf("confirm: remove orphaned %x from queue: %w", pc.Fingerprint, err)
			}
			continue
		}

		confirm := true
		if _, err := checker.CheckTransaction(ctx, pc.Event.TxHash, pc.Event.LogIndex); err != nil {
			log.Infof("confirm: event %x/%d failed re-verification, voting reject: %v", pc.Event.TxHash, pc.Event.LogIndex, err)
			confirm = false
		}

		vote := tonobserve.EventVote{Confirm: confirm, ExpiresAt: uint32(time.Now().Add(VoteExpiry).Unix())}
		msg := tonobserve.EthEventContract{Account: cfg.TonEventAccount}.Vote(vote)

		if err := delivery.DeliverMessage(ctx, handle, msg); err != nil && !errors.Is(err, tonobserve.ErrMessageExpired) {
			return fmt.Errorf("confirm: deliver vote for %x: %w", pc.Fingerprint, err)
		}
		if p.metrics != nil {
			decision := "reject"
			if confirm {
				decision = "confirm"
			}
			p.metrics.VotesSubmitted.WithLabelValues(decision).Inc()
		}

		if err := p.RemoveFromQueue(keys[i], pc.Fingerprint); err != nil {
			return fmt.Errorf("confirm: remove %x from queue: %w", pc.Fingerprint, err)
		}
	}
	return nil
}
