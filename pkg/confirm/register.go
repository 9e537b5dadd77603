package confirm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// RegisterFromContract reads a newly deployed event-configuration
// contract's details and registers the corresponding Configuration with p,
// mirroring the reference's handling of ConnectorDeployed: on boot (and on
// every subsequent ConnectorDeployed event from the bridge contract) the
// relay derives the connector's address, reads its configuration, and
// subscribes the EVM side in C4 by way of the caller registering the
// returned Configuration's (chain, address, topic) with its evmscan
// Subscriptions.
//
// EventAddress is this repository's opaque 32-byte account-id encoding (no
// ABI schema is decoded, per the Non-goal); the EVM contract address is
// taken from its low 20 bytes, the placeholder layout this repository uses
// throughout for an EVM address embedded in a TON-shaped field.
func RegisterFromContract(ctx context.Context, p *Pipeline, id uint64, chainID uint64, cc tonobserve.EventConfigurationContract, tonEventAccount tonsub.AccountID) (Configuration, error) {
	details, err := cc.GetDetails(ctx)
	if err != nil {
		return Configuration{}, fmt.Errorf("confirm: read event configuration %x: %w", id, err)
	}

	var evmAddress common.Address
	copy(evmAddress[:], details.EventAddress[12:32])

	cfg := Configuration{
		ID:              id,
		ChainID:         chainID,
		EvmAddress:      evmAddress,
		EvmTopic:        common.Hash(details.Topic),
		BlocksToConfirm: uint64(details.BlocksToConfirm),
		TonEventAccount: tonEventAccount,
	}
	p.RegisterConfiguration(cfg)
	return cfg, nil
}
