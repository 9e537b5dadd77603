// Package tonobserve implements the typed contract observers (C6): thin
// wrappers over pkg/tonsub and pkg/tonindexer that decode domain events out
// of transactions and build outgoing messages for specific contracts.
// Grounded on original_source/src/engine/ton_contracts/{mod,
// user_data_contract, relay_round_contract}.rs. Per the Non-goal excluding
// the bridge contract's ABI wire encoding, function and event names are
// opaque strings rather than decoded ABI byte layouts; RawMessage in
// message.go is this repository's stand-in for an encoded ton_abi call.
package tonobserve

import "github.com/certen/ton-relay/pkg/tonsub"

// DomainEvent is implemented by every event type ReadFromTransaction can
// produce.
type DomainEvent interface {
	EventName() string
}

// TonPubkeyConfirmed mirrors UserDataContract's TonPubkeyConfirmed event.
type TonPubkeyConfirmed struct {
	Pubkey [32]byte
}

func (TonPubkeyConfirmed) EventName() string { return "TonPubkeyConfirmed" }

// EthAddressConfirmed mirrors UserDataContract's EthAddressConfirmed event.
type EthAddressConfirmed struct {
	EthAddress [20]byte
}

func (EthAddressConfirmed) EventName() string { return "EthAddressConfirmed" }

// RelayKeysUpdated mirrors UserDataContract's RelayKeysUpdated event.
type RelayKeysUpdated struct {
	TonPubkey  [32]byte
	EthAddress [20]byte
}

func (RelayKeysUpdated) EventName() string { return "RelayKeysUpdated" }

// ElectionStarted mirrors the elections contract's ElectionStarted event.
type ElectionStarted struct {
	RoundNum  uint32
	StartedAt uint32
}

func (ElectionStarted) EventName() string { return "ElectionStarted" }

// ElectionEnded mirrors the elections contract's ElectionEnded event.
type ElectionEnded struct {
	RoundNum uint32
}

func (ElectionEnded) EventName() string { return "ElectionEnded" }

// RelayRoundInitialized mirrors the elections contract's
// RelayRoundInitialized event, emitted once a round's relay set is final.
// RoundEndTime is used to schedule the reward-claim transaction.
type RelayRoundInitialized struct {
	RoundNum     uint32
	RelayCount   uint32
	RoundEndTime uint32
}

func (RelayRoundInitialized) EventName() string { return "RelayRoundInitialized" }

// RelayConfigUpdated mirrors the elections contract's RelayConfigUpdated
// event.
type RelayConfigUpdated struct{}

func (RelayConfigUpdated) EventName() string { return "RelayConfigUpdated" }

// ConnectorDeployed mirrors the bridge contract's event announcing a new
// event-configuration connector, consumed by C7 to register configurations.
type ConnectorDeployed struct {
	ID      uint64
	Address tonsub.AccountID
}

func (ConnectorDeployed) EventName() string { return "ConnectorDeployed" }

// EventFinalized mirrors a TON event contract's finalization event: once
// enough votes accumulate on the TON side, the contract announces the EVM
// call the relay must now submit. TargetContract/CallData are this
// repository's opaque placeholder for the ABI-encoded EVM call (the
// target contract address and already-encoded call data), matching the
// Non-goal excluding the bridge's ABI wire format from decoding.
type EventFinalized struct {
	TargetContract [20]byte
	CallData       []byte
}

func (EventFinalized) EventName() string { return "Finalized" }
