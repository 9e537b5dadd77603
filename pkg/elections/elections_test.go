package elections

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

func testHandle(t *testing.T) *keystore.Handle {
	t.Helper()
	ethKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	_, tonPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keystore.json")
	if err := keystore.Create(path, "pw", ethKey, tonPriv, "eth seed", "ton seed"); err != nil {
		t.Fatal(err)
	}
	h, err := keystore.Open(path, "pw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestDeriveRoundStateNotStarted(t *testing.T) {
	var next tonsub.AccountID
	next[0] = 1
	d := tonobserve.ElectionsDetails{
		CurrentRelayRound:          2,
		CurrentRelayRoundStartTime: 1000,
		CurrentElectionStartTime:   0,
		CurrentElectionEnded:       false,
		TimeBeforeElection:         500,
		NextElectionsAccount:       next,
	}
	rs := DeriveRoundState(d)
	if rs.State != NotStarted || rs.StartTime != 1500 || rs.RoundNum != 2 || rs.NextElectionsAccount != next {
		t.Fatalf("unexpected state %+v", rs)
	}
}

func TestDeriveRoundStateStarted(t *testing.T) {
	d := tonobserve.ElectionsDetails{
		CurrentElectionStartTime: 2000,
		ElectionTime:             300,
	}
	rs := DeriveRoundState(d)
	if rs.State != Started || rs.StartTime != 2000 || rs.EndTime != 2300 {
		t.Fatalf("unexpected state %+v", rs)
	}
}

func TestDeriveRoundStateFinished(t *testing.T) {
	d := tonobserve.ElectionsDetails{
		CurrentElectionStartTime: 0,
		CurrentElectionEnded:     true,
	}
	rs := DeriveRoundState(d)
	if rs.State != Finished {
		t.Fatalf("unexpected state %+v", rs)
	}
}

func TestNotifyWakesAllCurrentWaiters(t *testing.T) {
	n := newNotify()
	const waiters = 4
	woke := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			if n.Wait(nil) {
				woke <- i
			}
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	n.NotifyAll()

	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < waiters {
		select {
		case <-woke:
			seen++
		case <-deadline:
			t.Fatalf("only %d/%d waiters woke", seen, waiters)
		}
	}
}

func TestControllerMaybeBecomeCandidateSkipsWhenAlreadyCandidate(t *testing.T) {
	handle := testHandle(t)
	log := logging.New(io.Discard, logging.LevelError)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})

	var account, next, self tonsub.AccountID
	account[0], next[0], self[0] = 1, 2, 3
	fake.SetGetMethodResult(next, "isCandidate", []byte{1})

	contract := tonobserve.ElectionsContract{Account: account, Indexer: fake}
	sub := tonsub.New(log)
	delivery := tonobserve.NewDelivery(fake, sub)
	c := NewController(log, contract, delivery, handle, self)

	c.maybeBecomeCandidate(context.Background(), RoundState{NextElectionsAccount: next, RoundNum: 9})

	if len(fake.SentMessages()) != 0 {
		t.Fatal("expected no becomeRelayNextRound submission when already a candidate")
	}
}

func TestControllerMaybeBecomeCandidateSubmitsWhenNotCandidate(t *testing.T) {
	handle := testHandle(t)
	log := logging.New(io.Discard, logging.LevelError)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})

	var account, next, self tonsub.AccountID
	account[0], next[0], self[0] = 1, 2, 3
	fake.SetGetMethodResult(next, "isCandidate", []byte{0})

	contract := tonobserve.ElectionsContract{Account: account, Indexer: fake}
	sub := tonsub.New(log)
	sub.EngineStatusChanged(tonsub.StatusSynced)
	delivery := tonobserve.NewDelivery(fake, sub)
	c := NewController(log, contract, delivery, handle, self)

	done := make(chan struct{})
	go func() {
		c.maybeBecomeCandidate(context.Background(), RoundState{NextElectionsAccount: next, RoundNum: 9})
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sent := fake.SentMessages()
		if len(sent) == 1 {
			sub.ProcessBlock(nil, &tonsub.ShardBlock{
				Info: tonsub.BlockInfo{SeqNo: 1},
				Transactions: map[tonsub.AccountID][]tonsub.Transaction{
					account: {{Hash: [32]byte{1}, InMessage: &tonsub.InMessage{Body: sent[0].Body}}},
				},
			})
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("becomeRelayNextRound was never broadcast")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maybeBecomeCandidate never returned")
	}
}

func TestEnsureUserDataVerifiedRejectsTonPubkeyMismatch(t *testing.T) {
	handle := testHandle(t)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})
	var account tonsub.AccountID
	account[0] = 5

	details := make([]byte, 54)
	details[0] = 0xFF // wrong ton pubkey
	ethAddr := handle.EthAddress()
	copy(details[32:52], ethAddr[:])
	details[52] = 1
	details[53] = 1
	fake.SetGetMethodResult(account, "getDetails", details)

	userData := tonobserve.UserDataContract{Account: account, Indexer: fake}
	log := logging.New(io.Discard, logging.LevelError)
	sub := tonsub.New(log)
	delivery := tonobserve.NewDelivery(fake, sub)

	err := EnsureUserDataVerified(context.Background(), handle, userData, delivery, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
}

func TestEnsureUserDataVerifiedSucceedsWhenAlreadyConfirmed(t *testing.T) {
	handle := testHandle(t)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})
	var account tonsub.AccountID
	account[0] = 6

	details := make([]byte, 54)
	copy(details[0:32], handle.TonPubkey())
	ethAddr := handle.EthAddress()
	copy(details[32:52], ethAddr[:])
	details[52] = 1 // TonPubkeyConfirmed
	details[53] = 1 // EthAddressConfirmed
	fake.SetGetMethodResult(account, "getDetails", details)

	userData := tonobserve.UserDataContract{Account: account, Indexer: fake}
	log := logging.New(io.Discard, logging.LevelError)
	sub := tonsub.New(log)
	delivery := tonobserve.NewDelivery(fake, sub)

	ethCalled := false
	err := EnsureUserDataVerified(context.Background(), handle, userData, delivery, func(ctx context.Context) error {
		ethCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ethCalled {
		t.Fatal("eth verifier should not be invoked once already confirmed")
	}
}

func TestEnsureUserDataVerifiedPropagatesEthVerifierError(t *testing.T) {
	handle := testHandle(t)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})
	var account tonsub.AccountID
	account[0] = 7

	details := make([]byte, 54)
	copy(details[0:32], handle.TonPubkey())
	ethAddr := handle.EthAddress()
	copy(details[32:52], ethAddr[:])
	details[52] = 1 // TonPubkeyConfirmed already
	details[53] = 0 // EthAddressConfirmed not yet
	fake.SetGetMethodResult(account, "getDetails", details)

	userData := tonobserve.UserDataContract{Account: account, Indexer: fake}
	log := logging.New(io.Discard, logging.LevelError)
	sub := tonsub.New(log)
	delivery := tonobserve.NewDelivery(fake, sub)

	wantErr := errors.New("boom")
	err := EnsureUserDataVerified(context.Background(), handle, userData, delivery, func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}
