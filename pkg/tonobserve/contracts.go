package tonobserve

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// BridgeContract wraps the bridge root contract: deriving deterministic
// connector addresses and (via ReadFromTransaction below, since
// ConnectorDeployed is observed on the bridge account itself) announcing
// newly deployed event configurations.
type BridgeContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// DeriveConnectorAddress mirrors derive_connector_address: a pure
// get-method call, deterministic given the bridge's current code.
func (c BridgeContract) DeriveConnectorAddress(ctx context.Context, id uint64) (tonsub.AccountID, error) {
	args := make([]byte, 8)
	binary.BigEndian.PutUint64(args, id)
	out, err := c.Indexer.CallGetMethod(ctx, c.Account, "derive_connector_address", args)
	if err != nil {
		return tonsub.AccountID{}, fmt.Errorf("derive connector address: %w", err)
	}
	var addr tonsub.AccountID
	if len(out) != len(addr) {
		return tonsub.AccountID{}, fmt.Errorf("derive connector address: unexpected result length %d", len(out))
	}
	copy(addr[:], out)
	return addr, nil
}

// VerificationTarget asks the bridge where the ETH-side identity
// verification transaction should land, mirroring the bridge's
// verification_target get-method used during C8's identity bootstrap.
func (c BridgeContract) VerificationTarget(ctx context.Context) ([20]byte, error) {
	out, err := c.Indexer.CallGetMethod(ctx, c.Account, "verification_target", nil)
	if err != nil {
		return [20]byte{}, fmt.Errorf("verification target: %w", err)
	}
	var addr [20]byte
	if len(out) != len(addr) {
		return [20]byte{}, fmt.Errorf("verification target: unexpected result length %d", len(out))
	}
	copy(addr[:], out)
	return addr, nil
}

// ReadFromTransaction inspects a bridge transaction's outbound messages for
// a ConnectorDeployed announcement, the trigger C7 uses to register a new
// event configuration.
func (c BridgeContract) ReadFromTransaction(tx tonsub.Transaction) (DomainEvent, bool) {
	for _, out := range tx.OutMessages {
		msg, err := DecodeMessage(out.Body)
		if err != nil || msg.Function != "ConnectorDeployed" || len(msg.Payload) < 8+32 {
			continue
		}
		var addr tonsub.AccountID
		copy(addr[:], msg.Payload[8:40])
		return ConnectorDeployed{ID: binary.BigEndian.Uint64(msg.Payload[:8]), Address: addr}, true
	}
	return nil, false
}

// ElectionsDetails mirrors the staking contract's getDetails response: the
// raw relay-round/relay-config fields C8's Controller derives a RoundState
// from, matching StakingContract::get_round_state's inputs.
type ElectionsDetails struct {
	CurrentRelayRound          uint32
	CurrentRelayRoundStartTime uint32
	CurrentElectionStartTime   uint32 // 0 means "not yet started"
	CurrentElectionEnded       bool
	TimeBeforeElection         uint32
	ElectionTime               uint32
	NextElectionsAccount       tonsub.AccountID
}

// ElectionsContract wraps the staking contract's relay-election surface.
type ElectionsContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// GetDetails performs the getDetails get-method call.
func (c ElectionsContract) GetDetails(ctx context.Context) (ElectionsDetails, error) {
	out, err := c.Indexer.CallGetMethod(ctx, c.Account, "getDetails", nil)
	if err != nil {
		return ElectionsDetails{}, fmt.Errorf("elections getDetails: %w", err)
	}
	return decodeElectionsDetails(out)
}

func decodeElectionsDetails(out []byte) (ElectionsDetails, error) {
	const fixedLen = 4 + 4 + 4 + 1 + 4 + 4 + 32
	if len(out) < fixedLen {
		return ElectionsDetails{}, fmt.Errorf("elections getDetails: short result")
	}
	var d ElectionsDetails
	d.CurrentRelayRound = binary.BigEndian.Uint32(out[0:4])
	d.CurrentRelayRoundStartTime = binary.BigEndian.Uint32(out[4:8])
	d.CurrentElectionStartTime = binary.BigEndian.Uint32(out[8:12])
	d.CurrentElectionEnded = out[12] != 0
	d.TimeBeforeElection = binary.BigEndian.Uint32(out[13:17])
	d.ElectionTime = binary.BigEndian.Uint32(out[17:21])
	copy(d.NextElectionsAccount[:], out[21:53])
	return d, nil
}

// BecomeRelayNextRound builds the message that registers this node as a
// relay candidate for the next round. Message builders are pure: signing
// and submission happen in DeliverMessage.
func (c ElectionsContract) BecomeRelayNextRound(expiresAt uint32) UnsignedMessage {
	return UnsignedMessage{Account: c.Account, Function: "becomeRelayNextRound", ExpiresAt: expiresAt}
}

// StartElectionOnNewRound builds the message that opens a new election
// round.
func (c ElectionsContract) StartElectionOnNewRound(expiresAt uint32) UnsignedMessage {
	return UnsignedMessage{Account: c.Account, Function: "startElectionOnNewRound", ExpiresAt: expiresAt}
}

// EndElection builds the message that finalizes the current election round.
func (c ElectionsContract) EndElection(expiresAt uint32) UnsignedMessage {
	return UnsignedMessage{Account: c.Account, Function: "endElection", ExpiresAt: expiresAt}
}

// GetRewardForRelayRound builds the message that claims the reward for a
// finished round.
func (c ElectionsContract) GetRewardForRelayRound(roundNum, expiresAt uint32) UnsignedMessage {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, roundNum)
	return UnsignedMessage{Account: c.Account, Function: "getRewardForRelayRound", Payload: payload, ExpiresAt: expiresAt}
}

// IsCandidate asks the per-round elections instance contract (at
// electionsAccount, i.e. a RoundState's NextElectionsAccount) whether
// staker is already in its staker-address set, mirroring
// ElectionsContract::staker_addrs().contains(...) in the reference.
func (c ElectionsContract) IsCandidate(ctx context.Context, electionsAccount tonsub.AccountID, staker tonsub.AccountID) (bool, error) {
	indexer := c.Indexer
	out, err := indexer.CallGetMethod(ctx, electionsAccount, "isCandidate", staker[:])
	if err != nil {
		return false, fmt.Errorf("elections isCandidate: %w", err)
	}
	return len(out) > 0 && out[0] != 0, nil
}

// ReadFromTransaction decodes ElectionStarted/ElectionEnded/
// RelayRoundInitialized/RelayConfigUpdated out of an elections transaction.
func (c ElectionsContract) ReadFromTransaction(tx tonsub.Transaction) (DomainEvent, bool) {
	for _, out := range tx.OutMessages {
		msg, err := DecodeMessage(out.Body)
		if err != nil {
			continue
		}
		switch msg.Function {
		case "ElectionStarted":
			if len(msg.Payload) < 8 {
				continue
			}
			return ElectionStarted{
				RoundNum:  binary.BigEndian.Uint32(msg.Payload[0:4]),
				StartedAt: binary.BigEndian.Uint32(msg.Payload[4:8]),
			}, true
		case "ElectionEnded":
			if len(msg.Payload) < 4 {
				continue
			}
			return ElectionEnded{RoundNum: binary.BigEndian.Uint32(msg.Payload)}, true
		case "RelayRoundInitialized":
			if len(msg.Payload) < 12 {
				continue
			}
			return RelayRoundInitialized{
				RoundNum:     binary.BigEndian.Uint32(msg.Payload[0:4]),
				RelayCount:   binary.BigEndian.Uint32(msg.Payload[4:8]),
				RoundEndTime: binary.BigEndian.Uint32(msg.Payload[8:12]),
			}, true
		case "RelayConfigUpdated":
			return RelayConfigUpdated{}, true
		}
	}
	return nil, false
}

// UserDataDetails mirrors UserDataContract's getDetails response.
type UserDataDetails struct {
	TonPubkey          [32]byte
	EthAddress         [20]byte
	TonPubkeyConfirmed bool
	EthAddressConfirmed bool
}

// UserDataContract wraps the per-staker UserData contract used during
// identity bootstrap (C8).
type UserDataContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// GetDetails performs the getDetails get-method call.
func (c UserDataContract) GetDetails(ctx context.Context) (UserDataDetails, error) {
	out, err := c.Indexer.CallGetMethod(ctx, c.Account, "getDetails", nil)
	if err != nil {
		return UserDataDetails{}, fmt.Errorf("user data getDetails: %w", err)
	}
	if len(out) < 32+20+2 {
		return UserDataDetails{}, fmt.Errorf("user data getDetails: short result")
	}
	var details UserDataDetails
	copy(details.TonPubkey[:], out[0:32])
	copy(details.EthAddress[:], out[32:52])
	details.TonPubkeyConfirmed = out[52] != 0
	details.EthAddressConfirmed = out[53] != 0
	return details, nil
}

// ConfirmTonAccount builds the message that confirms the staker's TON
// pubkey ownership, awaited via the TonPubkeyConfirmed event.
func (c UserDataContract) ConfirmTonAccount(expiresAt uint32) UnsignedMessage {
	return UnsignedMessage{Account: c.Account, Function: "confirmTonAccount", ExpiresAt: expiresAt}
}

// ReadFromTransaction decodes TonPubkeyConfirmed/EthAddressConfirmed/
// RelayKeysUpdated out of a UserData transaction.
func (c UserDataContract) ReadFromTransaction(tx tonsub.Transaction) (DomainEvent, bool) {
	for _, out := range tx.OutMessages {
		msg, err := DecodeMessage(out.Body)
		if err != nil {
			continue
		}
		switch msg.Function {
		case "TonPubkeyConfirmed":
			if len(msg.Payload) < 32 {
				continue
			}
			var pk [32]byte
			copy(pk[:], msg.Payload[:32])
			return TonPubkeyConfirmed{Pubkey: pk}, true
		case "EthAddressConfirmed":
			if len(msg.Payload) < 20 {
				continue
			}
			var addr [20]byte
			copy(addr[:], msg.Payload[:20])
			return EthAddressConfirmed{EthAddress: addr}, true
		case "RelayKeysUpdated":
			if len(msg.Payload) < 52 {
				continue
			}
			var pk [32]byte
			var addr [20]byte
			copy(pk[:], msg.Payload[:32])
			copy(addr[:], msg.Payload[32:52])
			return RelayKeysUpdated{TonPubkey: pk, EthAddress: addr}, true
		}
	}
	return nil, false
}

// EventVote is the confirm/reject vote a relay submits to an event
// contract, decided by C7's re-verification of the source-chain event.
type EventVote struct {
	Confirm   bool
	ExpiresAt uint32
}

// EventConfigurationDetails mirrors the (ETH or TON) event configuration
// contract's getDetails response: the parameters C7 needs to register a
// configuration and build outgoing votes.
type EventConfigurationDetails struct {
	EventAddress      tonsub.AccountID
	Topic             [32]byte
	BlocksToConfirm   uint32
	RequiredVotes     uint32
	EventContractCode []byte
}

// EventConfigurationContract wraps an ETH or TON event-configuration
// contract (the two share the same getDetails shape in this repository's
// opaque encoding).
type EventConfigurationContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// GetDetails performs the getDetails get-method call.
func (c EventConfigurationContract) GetDetails(ctx context.Context) (EventConfigurationDetails, error) {
	out, err := c.Indexer.CallGetMethod(ctx, c.Account, "getDetails", nil)
	if err != nil {
		return EventConfigurationDetails{}, fmt.Errorf("event configuration getDetails: %w", err)
	}
	if len(out) < 32+32+4+4 {
		return EventConfigurationDetails{}, fmt.Errorf("event configuration getDetails: short result")
	}
	var details EventConfigurationDetails
	copy(details.EventAddress[:], out[0:32])
	copy(details.Topic[:], out[32:64])
	details.BlocksToConfirm = binary.BigEndian.Uint32(out[64:68])
	details.RequiredVotes = binary.BigEndian.Uint32(out[68:72])
	details.EventContractCode = append([]byte(nil), out[72:]...)
	return details, nil
}

// EthEventContract and TonEventContract wrap the per-event instances
// deployed from an event configuration; both expose getDetails and a vote
// builder, matching the reference's near-identical EthEventContract/
// TonEventContract wrappers.
type EthEventContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// GetDetails performs the getDetails get-method call.
func (c EthEventContract) GetDetails(ctx context.Context) (EventConfigurationDetails, error) {
	return EventConfigurationContract(c).GetDetails(ctx)
}

// Vote builds a confirm/reject message for this event.
func (c EthEventContract) Vote(v EventVote) UnsignedMessage {
	fn := "reject"
	if v.Confirm {
		fn = "confirm"
	}
	return UnsignedMessage{Account: c.Account, Function: fn, ExpiresAt: v.ExpiresAt}
}

// TonEventContract is the TON-side counterpart of EthEventContract.
type TonEventContract struct {
	Account tonsub.AccountID
	Indexer tonindexer.Indexer
}

// GetDetails performs the getDetails get-method call.
func (c TonEventContract) GetDetails(ctx context.Context) (EventConfigurationDetails, error) {
	return EventConfigurationContract(c).GetDetails(ctx)
}

// Vote builds a confirm/reject message for this event.
func (c TonEventContract) Vote(v EventVote) UnsignedMessage {
	fn := "reject"
	if v.Confirm {
		fn = "confirm"
	}
	return UnsignedMessage{Account: c.Account, Function: fn, ExpiresAt: v.ExpiresAt}
}

// ReadFromTransaction decodes the Finalized event out of a TON event
// contract's transaction, the trigger for the "from TON to EVM" direction
// of C7 (confirm.HandleTonFinalizedEvent).
func (c TonEventContract) ReadFromTransaction(tx tonsub.Transaction) (DomainEvent, bool) {
	for _, out := range tx.OutMessages {
		msg, err := DecodeMessage(out.Body)
		if err != nil || msg.Function != "Finalized" || len(msg.Payload) < 20 {
			continue
		}
		var target [20]byte
		copy(target[:], msg.Payload[:20])
		return EventFinalized{TargetContract: target, CallData: append([]byte(nil), msg.Payload[20:]...)}, true
	}
	return nil, false
}
