package evmscan

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/ton-relay/pkg/kvstore"
	"github.com/certen/ton-relay/pkg/logging"
)

type fakeNode struct {
	mu        sync.Mutex
	height    uint64
	logsByReq map[string][]types.Log
	allLogs   []types.Log
	syncing   bool
	filterCalls int
}

func (f *fakeNode) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func (f *fakeNode) SyncProgress(ctx context.Context) (*ethereum.SyncProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncing {
		return &ethereum.SyncProgress{CurrentBlock: f.height / 2, HighestBlock: f.height}, nil
	}
	return nil, nil
}

func (f *fakeNode) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	var out []types.Log
	for _, l := range f.allLogs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, errors.New("not used in this test")
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError)
}

func TestScannerEmptySubscriptionsDoesNotCallFilterLogs(t *testing.T) {
	node := &fakeNode{height: 100}
	store := kvstore.New(dbm.NewMemDB())
	subs := NewSubscriptions()
	timeouts := Timeouts{PollInterval: time.Millisecond, TotalFailBudget: time.Second}
	sc := NewScanner(1, node, store, subs, timeouts, 1, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = sc.Run(ctx)

	if node.filterCalls != 0 {
		t.Fatalf("expected no FilterLogs calls with empty subscriptions, got %d", node.filterCalls)
	}
}

func TestScannerFreshSyncEmitsEventOnceAndAdvancesCursor(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000001")
	topic := common.HexToHash("0xaaaa")
	txHash := common.HexToHash("0xbbbb")
	blockHash := common.HexToHash("0xcccc")

	node := &fakeNode{
		height: 100,
		allLogs: []types.Log{
			{Address: addr, Topics: []common.Hash{topic}, TxHash: txHash, BlockHash: blockHash, BlockNumber: 50, Index: 0},
		},
	}
	store := kvstore.New(dbm.NewMemDB())
	subs := NewSubscriptions()
	subs.AddTopic(addr, topic)
	timeouts := Timeouts{PollInterval: time.Millisecond, TotalFailBudget: time.Second}
	sc := NewScanner(7, node, store, subs, timeouts, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	var got *Event
	select {
	case eoe := <-sc.Events():
		if eoe.Err != nil {
			t.Fatalf("unexpected error event: %v", eoe.Err)
		}
		e := eoe.Event
		got = &e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if got.TxHash != txHash || got.BlockHash != blockHash {
		t.Fatalf("unexpected event: %+v", got)
	}

	deadline := time.Now().Add(time.Second)
	for {
		val, err := store.Get(CursorTree(7), cursorKey)
		if err != nil {
			t.Fatal(err)
		}
		if val != nil {
			height, err := DecodeCursor(val)
			if err != nil {
				t.Fatal(err)
			}
			if height == 100 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("cursor never advanced to 100, got %v", val)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}

func TestScannerAtTipOnlySleepsNoExtraCalls(t *testing.T) {
	node := &fakeNode{height: 100}
	store := kvstore.New(dbm.NewMemDB())
	if err := store.Put(CursorTree(1), cursorKey, EncodeCursor(100)); err != nil {
		t.Fatal(err)
	}
	subs := NewSubscriptions()
	subs.AddTopic(common.HexToAddress("0x01"), common.HexToHash("0x02"))
	timeouts := Timeouts{PollInterval: time.Millisecond, TotalFailBudget: time.Second}
	sc := NewScanner(1, node, store, subs, timeouts, 1, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = sc.Run(ctx)

	if node.filterCalls != 0 {
		t.Fatalf("expected no FilterLogs calls while at tip, got %d", node.filterCalls)
	}
}

func TestDecodeLegacyLogMissingIndexDefaultsToZero(t *testing.T) {
	ev, warned, err := DecodeLegacyLog(LegacyLog{
		TxHash:      common.HexToHash("0x01"),
		BlockHash:   common.HexToHash("0x02"),
		BlockNumber: 5,
		LogIndex:    nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Fatal("expected warnedMissingIndex to be true")
	}
	if ev.LogIndex != 0 {
		t.Fatalf("expected LogIndex 0, got %d", ev.LogIndex)
	}
}

func TestDecodeLegacyLogMissingTxHashErrors(t *testing.T) {
	_, _, err := DecodeLegacyLog(LegacyLog{BlockHash: common.HexToHash("0x02"), BlockNumber: 5})
	if err == nil {
		t.Fatal("expected error for missing tx hash")
	}
}

func TestCheckTransactionFailedStatus(t *testing.T) {
	receipt := &types.Receipt{Status: types.ReceiptStatusFailed}
	_, err := decodeReceipt(receipt, common.HexToHash("0x01"), 0)
	if !errors.Is(err, ErrTxFailed) {
		t.Fatalf("expected ErrTxFailed, got %v", err)
	}
}

func TestCheckTransactionMissingReceipt(t *testing.T) {
	_, err := decodeReceipt(nil, common.HexToHash("0x01"), 0)
	if !errors.Is(err, ErrNoStatus) {
		t.Fatalf("expected ErrNoStatus, got %v", err)
	}
}

func TestCheckTransactionFindsMatchingLog(t *testing.T) {
	addr := common.HexToAddress("0x01")
	txHash := common.HexToHash("0x02")
	blockHash := common.HexToHash("0x03")
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{Address: addr, TxHash: txHash, BlockHash: blockHash, Index: 0},
			{Address: addr, TxHash: txHash, BlockHash: blockHash, Index: 1},
		},
	}
	ev, err := decodeReceipt(receipt, txHash, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ev.LogIndex != 1 {
		t.Fatalf("expected log index 1, got %d", ev.LogIndex)
	}
}
