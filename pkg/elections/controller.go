package elections

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/metrics"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// roundOffset is the extra delay added after a round's end time before the
// reward-claim transaction is submitted, giving the staking contract time
// to settle the round on-chain before a claim arrives.
const roundOffset = 10 * time.Second

// messageExpiry bounds how long a submitted BecomeRelayNextRound/
// GetRewardForRelayRound message stays valid before DeliverMessage treats
// it as expired and returns ErrMessageExpired.
const messageExpiry = 5 * time.Minute

// Controller drives the election-round state machine (C8): it tracks the
// relay's own RoundState, becomes a candidate for the next round when
// eligible, and claims round rewards once a round finishes. One Controller
// runs per node, grounded on Staking::start_managing_elections.
type Controller struct {
	log      *logging.Logger
	contract tonobserve.ElectionsContract
	delivery *tonobserve.Delivery
	handle   *keystore.Handle
	self     tonsub.AccountID
	metrics  *metrics.Registry

	mu    sync.Mutex
	state RoundState

	roundStarted   *notify
	electionStart  *notify
	electionEnd    *notify
	timingsChanged *notify
}

// NewController builds a Controller for the staking/elections contract at
// contract.Account, voting and submitting transactions as handle.
func NewController(log *logging.Logger, contract tonobserve.ElectionsContract, delivery *tonobserve.Delivery, handle *keystore.Handle, self tonsub.AccountID) *Controller {
	return &Controller{
		log:            log,
		contract:       contract,
		delivery:       delivery,
		handle:         handle,
		self:           self,
		roundStarted:   newNotify(),
		electionStart:  newNotify(),
		electionEnd:    newNotify(),
		timingsChanged: newNotify(),
	}
}

// SetMetrics attaches a metrics registry the controller reports the
// current round number through. Optional: a nil registry (the default)
// disables reporting.
func (c *Controller) SetMetrics(m *metrics.Registry) {
	c.metrics = m
}

// RoundState returns the last state derived from a contract read.
func (c *Controller) RoundState() RoundState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitRoundStarted blocks until a new relay round begins, or done closes.
func (c *Controller) WaitRoundStarted(done <-chan struct{}) bool { return c.roundStarted.Wait(done) }

// WaitElectionStart blocks until the next election opens, or done closes.
func (c *Controller) WaitElectionStart(done <-chan struct{}) bool { return c.electionStart.Wait(done) }

// WaitElectionEnd blocks until the current election closes, or done closes.
// Used to race an in-flight become-candidate submission against an early
// election close, mirroring the reference's tokio::select! in
// process_staking_event's ElectionStarted arm.
func (c *Controller) WaitElectionEnd(done <-chan struct{}) bool { return c.electionEnd.Wait(done) }

// WaitTimingsChanged blocks until the relay config's election timings
// change, or done closes.
func (c *Controller) WaitTimingsChanged(done <-chan struct{}) bool { return c.timingsChanged.Wait(done) }

// refresh re-reads the contract and updates the in-memory RoundState,
// notifying any goroutine waiting on a state transition.
func (c *Controller) refresh(ctx context.Context) (RoundState, error) {
	details, err := c.contract.GetDetails(ctx)
	if err != nil {
		return RoundState{}, fmt.Errorf("elections: read round state: %w", err)
	}
	next := DeriveRoundState(details)

	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ElectionRound.Set(float64(next.RoundNum))
	}

	if prev.RoundNum != next.RoundNum {
		c.roundStarted.NotifyAll()
	}
	if prev.State != next.State {
		switch next.State {
		case Started:
			c.electionStart.NotifyAll()
		case Finished:
			c.electionEnd.NotifyAll()
		}
	}
	if prev.StartTime != next.StartTime || prev.EndTime != next.EndTime {
		c.timingsChanged.NotifyAll()
	}
	return next, nil
}

// ProcessEvent updates the controller's understanding of the round after
// observing a staking-contract event, mirroring process_staking_event's
// dispatch. Most events just trigger a fresh refresh; RelayRoundInitialized
// additionally schedules the reward claim for the round that just ended.
func (c *Controller) ProcessEvent(ctx context.Context, ev tonobserve.DomainEvent) {
	state, err := c.refresh(ctx)
	if err != nil {
		c.log.Warnf("elections: refresh after event failed: %v", err)
		return
	}

	switch e := ev.(type) {
	case tonobserve.RelayRoundInitialized:
		go c.claimRewardAfterDelay(ctx, e.RoundNum, e.RoundEndTime)
	case tonobserve.ElectionStarted:
		go c.maybeBecomeCandidate(ctx, state)
	}
}

// claimRewardAfterDelay waits until roundEndTime+roundOffset, then submits
// the reward claim for roundNum. Mirrors the reference's
// tokio::time::sleep((round_end_time - now) + ROUND_OFFSET) background task.
func (c *Controller) claimRewardAfterDelay(ctx context.Context, roundNum uint32, roundEndTime uint32) {
	wait := time.Until(time.Unix(int64(roundEndTime), 0).Add(roundOffset))
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	msg := c.contract.GetRewardForRelayRound(roundNum, uint32(time.Now().Add(messageExpiry).Unix()))
	if err := c.delivery.DeliverMessage(ctx, c.handle, msg); err != nil {
		c.log.Warnf("elections: claim reward for round %d: %v", roundNum, err)
		return
	}
	c.log.Infof("elections: claimed reward for round %d", roundNum)
}

// maybeBecomeCandidate submits BecomeRelayNextRound unless the node is
// already a candidate for state.NextElectionsAccount, mirroring
// Staking::new's should_vote / elections_contract.staker_addrs() check. The
// submission races against the election closing early, mirroring
// process_staking_event's ElectionStarted arm (tokio::select! between
// become_relay_next_round and elections_end_notify).
func (c *Controller) maybeBecomeCandidate(ctx context.Context, state RoundState) {
	already, err := c.contract.IsCandidate(ctx, state.NextElectionsAccount, c.self)
	if err != nil {
		c.log.Warnf("elections: check candidate status: %v", err)
		return
	}
	if already {
		c.log.Debugf("elections: already a candidate for round %d, skipping", state.RoundNum+1)
		return
	}

	submitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	earlyExit := make(chan struct{})
	go func() {
		defer close(earlyExit)
		c.electionEnd.Wait(submitCtx.Done())
	}()
	go func() {
		<-earlyExit
		cancel()
	}()

	msg := c.contract.BecomeRelayNextRound(uint32(time.Now().Add(messageExpiry).Unix()))
	err = c.delivery.DeliverMessage(submitCtx, c.handle, msg)
	if err != nil {
		if submitCtx.Err() != nil && ctx.Err() == nil {
			c.log.Warnf("elections: early exit from become candidate for round %d due to election end", state.RoundNum+1)
			return
		}
		c.log.Warnf("elections: become candidate for round %d: %v", state.RoundNum+1, err)
		return
	}
	c.log.Infof("elections: became candidate for round %d", state.RoundNum+1)
}

// Run drives the controller until ctx is cancelled: it keeps the state
// fresh on a poll interval, and additionally wakes immediately whenever a
// contract event arrives on events. Each timer/wait runs in its own
// goroutine internally (runElectionTimer, claimRewardAfterDelay,
// maybeBecomeCandidate); the mutex above guards only the RoundState value,
// never a channel send or receive.
func (c *Controller) Run(ctx context.Context, pollInterval time.Duration, events <-chan tonobserve.DomainEvent) error {
	if _, err := c.refresh(ctx); err != nil {
		return fmt.Errorf("elections: initial round state read: %w", err)
	}

	go c.runElectionTimer(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.ProcessEvent(ctx, ev)
		case <-ticker.C:
			if _, err := c.refresh(ctx); err != nil {
				c.log.Warnf("elections: periodic refresh failed: %v", err)
			}
		}
	}
}
