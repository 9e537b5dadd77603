package confirm

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

func encodeEventConfigurationDetails(eventAddress tonsub.AccountID, topic [32]byte, blocksToConfirm, requiredVotes uint32) []byte {
	out := make([]byte, 32+32+4+4)
	copy(out[0:32], eventAddress[:])
	copy(out[32:64], topic[:])
	binary.BigEndian.PutUint32(out[64:68], blocksToConfirm)
	binary.BigEndian.PutUint32(out[68:72], requiredVotes)
	return out
}

func TestRegisterFromContractDerivesEvmAddressFromLow20Bytes(t *testing.T) {
	fake := tonindexer.NewFake(tonindexer.NetworkConfig{})

	var connector, tonEventAccount tonsub.AccountID
	connector[0] = 1
	tonEventAccount[0] = 2

	var eventAddress tonsub.AccountID
	wantAddr := common.HexToAddress("0x00000000000000000000000000000000000042")
	copy(eventAddress[12:32], wantAddr[:])
	var topic [32]byte
	topic[0] = 0xAB

	fake.SetGetMethodResult(connector, "getDetails", encodeEventConfigurationDetails(eventAddress, topic, 3, 1))

	p := New(newTestStore(t))
	cc := tonobserve.EventConfigurationContract{Account: connector, Indexer: fake}

	cfg, err := RegisterFromContract(context.Background(), p, 5, 11155111, cc, tonEventAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EvmAddress != wantAddr {
		t.Fatalf("expected evm address %s, got %s", wantAddr, cfg.EvmAddress)
	}
	if cfg.BlocksToConfirm != 3 {
		t.Fatalf("expected blocks_to_confirm 3, got %d", cfg.BlocksToConfirm)
	}
	if cfg.TonEventAccount != tonEventAccount {
		t.Fatal("expected ton event account to be preserved")
	}

	got, ok := p.ConfigurationByID(5)
	if !ok || got.EvmAddress != wantAddr {
		t.Fatal("expected configuration to be registered with the pipeline")
	}
}
