package elections

import (
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

func encodeElectionsDetails(d tonobserve.ElectionsDetails) []byte {
	out := make([]byte, 4+4+4+1+4+4+32)
	binary.BigEndian.PutUint32(out[0:4], d.CurrentRelayRound)
	binary.BigEndian.PutUint32(out[4:8], d.CurrentRelayRoundStartTime)
	binary.BigEndian.PutUint32(out[8:12], d.CurrentElectionStartTime)
	if d.CurrentElectionEnded {
		out[12] = 1
	}
	binary.BigEndian.PutUint32(out[13:17], d.TimeBeforeElection)
	binary.BigEndian.PutUint32(out[17:21], d.ElectionTime)
	copy(out[21:53], d.NextElectionsAccount[:])
	return out
}

// TestRunElectionTimerSendsStartElectionAtStartTime exercises the
// NotStarted row of §4.8's state table: once start_time has passed, the
// timer goroutine must submit startElectionOnNewRound without being told
// to by any external event.
func TestRunElectionTimerSendsStartElectionAtStartTime(t *testing.T) {
	handle := testHandle(t)
	log := logging.New(io.Discard, logging.LevelError)
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})

	var account, self tonsub.AccountID
	account[0], self[0] = 1, 3

	past := uint32(time.Now().Add(-time.Second).Unix())
	fake.SetGetMethodResult(account, "getDetails", encodeElectionsDetails(tonobserve.ElectionsDetails{
		CurrentRelayRound:          1,
		CurrentRelayRoundStartTime: past,
		TimeBeforeElection:         0, // start_time already in the past
	}))

	contract := tonobserve.ElectionsContract{Account: account, Indexer: fake}
	sub := tonsub.New(log)
	sub.EngineStatusChanged(tonsub.StatusSynced)
	delivery := tonobserve.NewDelivery(fake, sub)
	c := NewController(log, contract, delivery, handle, self)

	if _, err := c.refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if c.RoundState().State != NotStarted {
		t.Fatalf("expected NotStarted, got %v", c.RoundState().State)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.runElectionTimer(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		sent := fake.SentMessages()
		if len(sent) == 1 {
			msg, err := tonobserve.DecodeMessage(sent[0].Body)
			if err != nil {
				t.Fatalf("decode sent message: %v", err)
			}
			if msg.Function != "startElectionOnNewRound" {
				t.Fatalf("expected startElectionOnNewRound, got %q", msg.Function)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startElectionOnNewRound was never submitted")
		}
		time.Sleep(time.Millisecond)
	}
}
