// Package elections implements the elections controller (C8): the
// per-node identity-bootstrap sequence and the election-round state
// machine that keeps a relay registered as a candidate and claims its
// round rewards. Grounded throughout on original_source/src/engine/
// staking/mod.rs (Staking, RoundState, ElectionsState,
// PendingElectionsState, ensure_user_data_verified).
package elections

import (
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// ElectionsState is the coarse phase of the current relay round, mirroring
// the reference's ElectionsState enum.
type ElectionsState int

const (
	NotStarted ElectionsState = iota
	Started
	Finished
)

func (s ElectionsState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Started:
		return "Started"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// RoundState is the authoritative in-memory election state, rebuilt from a
// fresh ElectionsDetails read after every relevant transaction rather than
// mutated piecemeal.
type RoundState struct {
	State                ElectionsState
	StartTime            uint32 // valid for NotStarted and Started
	EndTime              uint32 // valid for Started
	RoundNum             uint32
	NextElectionsAccount tonsub.AccountID
}

// DeriveRoundState mirrors StakingContract::get_round_state: it classifies
// the contract's raw election-timing fields into NotStarted/Started/
// Finished and computes the derived start/end times.
func DeriveRoundState(d tonobserve.ElectionsDetails) RoundState {
	base := RoundState{RoundNum: d.CurrentRelayRound, NextElectionsAccount: d.NextElectionsAccount}
	switch {
	case d.CurrentElectionStartTime == 0 && d.CurrentElectionEnded:
		base.State = Finished
		return base
	case d.CurrentElectionStartTime == 0:
		base.State = NotStarted
		base.StartTime = d.CurrentRelayRoundStartTime + d.TimeBeforeElection
		return base
	default:
		base.State = Started
		base.StartTime = d.CurrentElectionStartTime
		base.EndTime = d.CurrentElectionStartTime + d.ElectionTime
		return base
	}
}
