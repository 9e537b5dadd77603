package tonobserve

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonsub"
)

func TestObserveForwardsDecodedDomainEvents(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	sub := tonsub.New(log)
	sub.EngineStatusChanged(tonsub.StatusSynced)

	var account tonsub.AccountID
	account[0] = 9
	contract := ElectionsContract{Account: account}

	_, events := Observe(sub, account, contract, 4, func() bool { return true })

	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], 7)
	binary.BigEndian.PutUint32(payload[4:8], 1234)
	body := RawMessage{Function: "ElectionStarted", Payload: payload}.Encode()

	sub.ProcessBlock(nil, &tonsub.ShardBlock{
		Info: tonsub.BlockInfo{SeqNo: 1},
		Transactions: map[tonsub.AccountID][]tonsub.Transaction{
			account: {{Hash: [32]byte{1}, OutMessages: []tonsub.OutMessage{{Body: body}}}},
		},
	})

	select {
	case ev := <-events:
		started, ok := ev.(ElectionStarted)
		if !ok || started.RoundNum != 7 || started.StartedAt != 1234 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected ElectionStarted on the events channel")
	}
}

func TestObserveSkipsTransactionsThatDecodeToNothing(t *testing.T) {
	log := logging.New(io.Discard, logging.LevelError)
	sub := tonsub.New(log)
	sub.EngineStatusChanged(tonsub.StatusSynced)

	var account tonsub.AccountID
	account[0] = 10
	contract := ElectionsContract{Account: account}

	_, events := Observe(sub, account, contract, 4, func() bool { return true })

	sub.ProcessBlock(nil, &tonsub.ShardBlock{
		Info: tonsub.BlockInfo{SeqNo: 1},
		Transactions: map[tonsub.AccountID][]tonsub.Transaction{
			account: {{Hash: [32]byte{2}}},
		},
	})

	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
