package elections

import (
	"context"
	"time"

	"github.com/certen/ton-relay/pkg/tonobserve"
)

// runElectionTimer drives the timer column of the state table in §4.8: at
// NotStarted.start_time it submits startElectionOnNewRound and waits for the
// ElectionStarted event; at Started.end_time it submits endElection and
// waits for ElectionEnded; Finished has no timer of its own, it just waits
// for the next round to begin. Runs for the Controller's lifetime as its
// own goroutine, mirroring start_managing_elections's per-state task.
func (c *Controller) runElectionTimer(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		switch state := c.RoundState(); state.State {
		case NotStarted:
			c.waitAndSend(ctx, state.StartTime, c.contract.StartElectionOnNewRound, c.electionStart)
		case Started:
			c.waitAndSend(ctx, state.EndTime, c.contract.EndElection, c.electionEnd)
		case Finished:
			if !c.roundStarted.Wait(ctx.Done()) {
				return
			}
		}
	}
}

// waitAndSend blocks until targetUnix, then submits the message built by
// build and waits for awaited to fire (the contract event that should
// follow a successful submission) before the timer loop re-evaluates its
// state. A RelayConfigUpdated-driven timingsChanged notification preempts
// the wait entirely so the loop recomputes against the new start/end time,
// mirroring "Any RelayConfigUpdated event cancels the pending timer and
// recomputes it".
func (c *Controller) waitAndSend(ctx context.Context, targetUnix uint32, build func(expiresAt uint32) tonobserve.UnsignedMessage, awaited *notify) {
	wait := time.Until(time.Unix(int64(targetUnix), 0))
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	recompute := make(chan struct{})
	go func() {
		if c.timingsChanged.Wait(ctx.Done()) {
			close(recompute)
		}
	}()

	select {
	case <-ctx.Done():
		return
	case <-recompute:
		return
	case <-timer.C:
	}

	msg := build(uint32(time.Now().Add(messageExpiry).Unix()))
	if err := c.delivery.DeliverMessage(ctx, c.handle, msg); err != nil {
		c.log.Warnf("elections: submit scheduled action: %v", err)
	}

	awaited.Wait(ctx.Done())
}
