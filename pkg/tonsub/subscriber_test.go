package tonsub

import (
	"io"
	"testing"
	"time"

	"github.com/certen/ton-relay/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError)
}

func accountID(b byte) AccountID {
	var a AccountID
	a[0] = b
	return a
}

func TestProcessBlockDiscardedBeforeReady(t *testing.T) {
	s := New(testLogger())
	called := false
	s.AddTransactionsSubscription(accountID(1), handlerFunc(func(BlockInfo, [32]byte, Transaction) error {
		called = true
		return nil
	}), nil)

	s.ProcessBlock(nil, &ShardBlock{
		Info:         BlockInfo{SeqNo: 1},
		Transactions: map[AccountID][]Transaction{accountID(1): {{Hash: [32]byte{9}}}},
	})

	if called {
		t.Fatal("handler should not run before the subscriber is ready")
	}
}

func TestEngineStatusChangedUnblocksWaitReady(t *testing.T) {
	s := New(testLogger())
	done := make(chan struct{})
	resultCh := make(chan bool, 1)
	go func() { resultCh <- s.WaitReady(done) }()

	time.Sleep(10 * time.Millisecond)
	s.EngineStatusChanged(StatusSynced)

	select {
	case ok := <-resultCh:
		if !ok {
			t.Fatal("WaitReady should report true once synced")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitReady never returned")
	}
	if !s.IsReady() {
		t.Fatal("expected subscriber to report ready")
	}
}

type handlerFunc func(BlockInfo, [32]byte, Transaction) error

func (f handlerFunc) HandleTransaction(info BlockInfo, hash [32]byte, tx Transaction) error {
	return f(info, hash, tx)
}

func TestShardBlockDispatchesToLiveSubscriptionsOnly(t *testing.T) {
	s := New(testLogger())
	s.EngineStatusChanged(StatusSynced)

	var liveCalls, deadCalls int
	s.AddTransactionsSubscription(accountID(1), handlerFunc(func(BlockInfo, [32]byte, Transaction) error {
		liveCalls++
		return nil
	}), func() bool { return true })
	s.AddTransactionsSubscription(accountID(1), handlerFunc(func(BlockInfo, [32]byte, Transaction) error {
		deadCalls++
		return nil
	}), func() bool { return false })

	s.ProcessBlock(nil, &ShardBlock{
		Info:         BlockInfo{SeqNo: 2},
		Transactions: map[AccountID][]Transaction{accountID(1): {{Hash: [32]byte{7}}}},
	})

	if liveCalls != 1 {
		t.Fatalf("expected 1 live call, got %d", liveCalls)
	}
	if deadCalls != 0 {
		t.Fatalf("expected dead subscription to be skipped, got %d calls", deadCalls)
	}
}

func TestStoppedSubscriptionIsPrunedFromStateSubs(t *testing.T) {
	s := New(testLogger())
	s.EngineStatusChanged(StatusSynced)

	account := accountID(3)
	s.AddTransactionsSubscription(account, handlerFunc(func(BlockInfo, [32]byte, Transaction) error {
		return nil
	}), func() bool { return false })

	s.ProcessBlock(nil, &ShardBlock{Info: BlockInfo{SeqNo: 1}})

	s.mu.Lock()
	_, stillTracked := s.stateSubs[account]
	s.mu.Unlock()
	if stillTracked {
		t.Fatal("expected stopped subscription to be pruned")
	}
}

func TestGetContractStateBlocksUntilFirstSnapshot(t *testing.T) {
	s := New(testLogger())
	s.EngineStatusChanged(StatusSynced)
	account := accountID(5)

	resultCh := make(chan *ShardAccount, 1)
	go func() {
		v, release, ok := s.GetContractState(account, nil)
		if ok {
			defer release()
		}
		resultCh <- v
	}()

	time.Sleep(10 * time.Millisecond)
	s.ProcessBlock(nil, &ShardBlock{
		Info:     BlockInfo{SeqNo: 1},
		Accounts: map[AccountID]ShardAccount{account: {Balance: 42}},
	})

	select {
	case got := <-resultCh:
		if got == nil || got.Balance != 42 {
			t.Fatalf("expected balance 42, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("GetContractState never resolved")
	}
}

func TestWaitShardsResolvesOnMasterchainBlock(t *testing.T) {
	s := New(testLogger())
	s.EngineStatusChanged(StatusSynced)

	resultCh := make(chan ShardsMap, 1)
	go func() {
		shards, _ := s.WaitShards(nil)
		resultCh <- shards
	}()

	time.Sleep(10 * time.Millisecond)
	want := ShardsMap{{Workchain: 0, Prefix: 1}: {SeqNo: 9}}
	s.ProcessBlock(&MasterchainBlock{GenUtime: 100, Shards: want}, nil)

	select {
	case got := <-resultCh:
		if len(got) != 1 {
			t.Fatalf("expected 1 shard entry, got %d", len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("WaitShards never resolved")
	}
	if s.CurrentUtime() != 100 {
		t.Fatalf("expected current utime 100, got %d", s.CurrentUtime())
	}
}

func TestUnsubscribeStopsFutureDispatch(t *testing.T) {
	s := New(testLogger())
	s.EngineStatusChanged(StatusSynced)
	account := accountID(8)

	calls := 0
	token := s.AddTransactionsSubscription(account, handlerFunc(func(BlockInfo, [32]byte, Transaction) error {
		calls++
		return nil
	}), func() bool { return true })

	s.Unsubscribe(token)
	s.ProcessBlock(nil, &ShardBlock{
		Info:         BlockInfo{SeqNo: 1},
		Transactions: map[AccountID][]Transaction{account: {{Hash: [32]byte{1}}}},
	})

	if calls != 0 {
		t.Fatalf("expected no calls after Unsubscribe, got %d", calls)
	}
}
