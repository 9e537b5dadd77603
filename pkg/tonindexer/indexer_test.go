package tonindexer

import (
	"context"
	"io"
	"testing"

	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonsub"
)

func TestSubscribeSignalsSyncedImmediately(t *testing.T) {
	fake := NewFake(NetworkConfig{})
	sub := tonsub.New(logging.New(io.Discard, logging.LevelError))

	if err := fake.Subscribe(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	if !sub.IsReady() {
		t.Fatal("expected Subscribe to leave the subscriber ready")
	}
}

func TestDeliverFansOutToAllSubscribers(t *testing.T) {
	fake := NewFake(NetworkConfig{})
	log := logging.New(io.Discard, logging.LevelError)
	subA := tonsub.New(log)
	subB := tonsub.New(log)
	_ = fake.Subscribe(context.Background(), subA)
	_ = fake.Subscribe(context.Background(), subB)

	var account tonsub.AccountID
	account[0] = 1
	gotA, gotB := 0, 0
	subA.AddTransactionsSubscription(account, handlerFunc(func() { gotA++ }), func() bool { return true })
	subB.AddTransactionsSubscription(account, handlerFunc(func() { gotB++ }), func() bool { return true })

	fake.Deliver(nil, &tonsub.ShardBlock{
		Info:         tonsub.BlockInfo{SeqNo: 1},
		Transactions: map[tonsub.AccountID][]tonsub.Transaction{account: {{Hash: [32]byte{1}}}},
	})

	if gotA != 1 || gotB != 1 {
		t.Fatalf("expected both subscribers to see the transaction, got %d/%d", gotA, gotB)
	}
}

type handlerFunc func()

func (f handlerFunc) HandleTransaction(tonsub.BlockInfo, [32]byte, tonsub.Transaction) error {
	f()
	return nil
}

func TestBroadcastMessageIsRecorded(t *testing.T) {
	fake := NewFake(NetworkConfig{})
	var account tonsub.AccountID
	account[0] = 2
	if err := fake.BroadcastMessage(context.Background(), account, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	sent := fake.SentMessages()
	if len(sent) != 1 || string(sent[0].Body) != "hello" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
}

func TestGetAccountStateReturnsLastDeliveredState(t *testing.T) {
	fake := NewFake(NetworkConfig{})
	var account tonsub.AccountID
	account[0] = 3

	got, err := fake.GetAccountState(context.Background(), account)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil before any delivery, got %+v", got)
	}

	fake.Deliver(nil, &tonsub.ShardBlock{
		Info:     tonsub.BlockInfo{SeqNo: 1},
		Accounts: map[tonsub.AccountID]tonsub.ShardAccount{account: {Balance: 7}},
	})

	got, err = fake.GetAccountState(context.Background(), account)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Balance != 7 {
		t.Fatalf("expected balance 7, got %+v", got)
	}
}
