package tonobserve

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// ErrDuplicateMessageHash is returned when a submission's hash collides
// with one still pending for the same account.
var ErrDuplicateMessageHash = errors.New("tonobserve: duplicate message hash")

// ErrMessageExpired is returned when a submitted message's ExpiresAt
// deadline passes before it is observed included in a block.
var ErrMessageExpired = errors.New("tonobserve: message expired before confirmation")

// Delivery tracks in-flight deliver_message calls per account, so that a
// fresh submission whose hash collides with one still awaiting
// confirmation is rejected rather than double-sent.
type Delivery struct {
	mu      sync.Mutex
	pending map[tonsub.AccountID]map[[32]byte]struct{}

	indexer tonindexer.Indexer
	sub     *tonsub.Subscriber
}

// NewDelivery builds a Delivery bound to indexer for broadcast and sub for
// matching confirmations against incoming transactions.
func NewDelivery(indexer tonindexer.Indexer, sub *tonsub.Subscriber) *Delivery {
	return &Delivery{
		pending: make(map[tonsub.AccountID]map[[32]byte]struct{}),
		indexer: indexer,
		sub:     sub,
	}
}

type deliverSubscription struct {
	wantHash [32]byte
	result   chan struct{}
}

// HandleTransaction matches the delivered message's hash against the
// inbound message that produced this transaction: once msg is processed
// on-chain, the transaction carrying it has InMessage.Body equal to what
// was broadcast, so hashing that body reproduces wantHash.
func (d deliverSubscription) HandleTransaction(info tonsub.BlockInfo, hash [32]byte, tx tonsub.Transaction) error {
	if tx.InMessage == nil {
		return nil
	}
	if sha256.Sum256(tx.InMessage.Body) == d.wantHash {
		select {
		case d.result <- struct{}{}:
		default:
		}
	}
	return nil
}

// DeliverMessage signs msg with handle, broadcasts it through the indexer,
// and blocks until a transaction carrying its message hash is observed on
// msg.Account, or msg.ExpiresAt passes, or ctx is cancelled.
func (d *Delivery) DeliverMessage(ctx context.Context, handle *keystore.Handle, msg UnsignedMessage) error {
	raw := RawMessage{Function: msg.Function, Payload: msg.Payload}.Encode()
	signature, err := handle.SignTon(raw)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	body := append(append([]byte(nil), raw...), signature...)
	hash := sha256.Sum256(body)

	d.mu.Lock()
	set, ok := d.pending[msg.Account]
	if !ok {
		set = make(map[[32]byte]struct{})
		d.pending[msg.Account] = set
	}
	if _, dup := set[hash]; dup {
		d.mu.Unlock()
		return ErrDuplicateMessageHash
	}
	set[hash] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending[msg.Account], hash)
		d.mu.Unlock()
	}()

	if err := d.indexer.BroadcastMessage(ctx, msg.Account, body); err != nil {
		return fmt.Errorf("broadcast message: %w", err)
	}

	result := make(chan struct{}, 1)
	token := d.sub.AddTransactionsSubscription(msg.Account, deliverSubscription{wantHash: hash, result: result}, func() bool { return true })
	defer d.sub.Unsubscribe(token)

	var deadline <-chan time.Time
	if msg.ExpiresAt > 0 {
		until := time.Until(time.Unix(int64(msg.ExpiresAt), 0))
		timer := time.NewTimer(until)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-result:
		return nil
	case <-deadline:
		return fmt.Errorf("%w: account %s function %s", ErrMessageExpired, msg.Account, msg.Function)
	case <-ctx.Done():
		return ctx.Err()
	}
}
