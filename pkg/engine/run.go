package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/ton-relay/pkg/confirm"
	"github.com/certen/ton-relay/pkg/elections"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// dispatchBuffer sizes every Observe() channel this engine opens; a relay
// observes at most a handful of transactions per block on any one
// contract, so this comfortably absorbs a burst between drain cycles.
const dispatchBuffer = 64

// alwaysAlive is this engine's IsAlive probe for every long-lived
// subscription it opens: none of them are ever individually torn down
// before the whole engine shuts down (ctx cancellation removes them via
// the indexer's own cleanup, not a per-subscription isAlive check).
func alwaysAlive() bool { return true }

// Run starts every long-running component and blocks until ctx is
// cancelled or one of them fails fatally. Mirrors Relay::run's shape: one
// broadcast-driven supervisor loop collecting the first error from any
// subsystem and cancelling the rest.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 8)
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				errCh <- fmt.Errorf("engine: %s: %w", name, err)
			}
		}()
	}

	spawn("ton indexer", func(ctx context.Context) error {
		return e.indexer.Subscribe(ctx, e.subscriber)
	})

	if err := elections.EnsureUserDataVerified(runCtx, e.handle, tonobserve.UserDataContract{Account: e.userDataAcc, Indexer: e.indexer}, e.delivery, e.verifyEthAddress); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("engine: identity bootstrap: %w", err)
	}

	electionsEvents := e.observeElections()
	spawn("elections controller", func(ctx context.Context) error {
		return e.controller.Run(ctx, e.cfg.ElectionsPollInterval.Duration(), electionsEvents)
	})

	spawn("bridge connector dispatch", e.runBridgeDispatch)

	for _, n := range e.networks {
		n := n
		tee := newTeeScanner(runCtx, n.scanner, e.metrics, n.chainID)
		spawn(fmt.Sprintf("scanner %s", n.cfg.Name), n.scanner.Run)
		spawn(fmt.Sprintf("confirm %s", n.cfg.Name), func(ctx context.Context) error {
			return confirm.RunChain(ctx, e.log, e.pipeline, n.chainID, tee, e.handle, e.delivery)
		})
		spawn(fmt.Sprintf("metrics %s", n.cfg.Name), func(ctx context.Context) error {
			return e.reportScannerHeight(ctx, n)
		})
	}

	spawn("pending confirmations metric", e.reportPendingMetric)

	select {
	case <-ctx.Done():
		cancel()
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}
	wg.Wait()
	return ctx.Err()
}

// observeElections wires the elections contract's transactions into the
// event channel Controller.Run consumes, matching the reference's
// staking-event subscription feeding process_staking_event.
func (e *Engine) observeElections() <-chan tonobserve.DomainEvent {
	contract := tonobserve.ElectionsContract{Account: e.electionsAcc, Indexer: e.indexer}
	_, events := tonobserve.Observe(e.subscriber, e.electionsAcc, contract, dispatchBuffer, alwaysAlive)
	return events
}

// runBridgeDispatch watches the bridge account for ConnectorDeployed
// announcements and registers each newly deployed event-configuration
// contract with the confirmation pipeline, subscribing its (address,
// topic) pair on the primary network's evmscan.Subscriptions so C4 starts
// scanning for it. A deployed connector is bound to the first configured
// network: this repository's per-connector event encoding carries no
// chain selector of its own (an Open Question decision; a future ABI
// decode could route per-connector instead).
func (e *Engine) runBridgeDispatch(ctx context.Context) error {
	if e.primary == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	_, events := tonobserve.Observe(e.subscriber, e.bridge.Account, e.bridge, dispatchBuffer, alwaysAlive)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			deployed, ok := ev.(tonobserve.ConnectorDeployed)
			if !ok {
				continue
			}
			cc := tonobserve.EventConfigurationContract{Account: deployed.Address, Indexer: e.indexer}
			cfg, err := confirm.RegisterFromContract(ctx, e.pipeline, deployed.ID, e.primary.chainID, cc, deployed.Address)
			if err != nil {
				e.log.Warnf("engine: register connector %d: %v", deployed.ID, err)
				continue
			}
			e.primary.subs.AddTopic(cfg.EvmAddress, cfg.EvmTopic)
			e.log.Infof("engine: registered connector %d (evm %s, topic %s)", deployed.ID, cfg.EvmAddress, cfg.EvmTopic)
		}
	}
}

// WatchTonEvent registers a TON event-instance contract for the "from TON
// to EVM" direction: once its Finalized transaction is observed, the
// decoded call is submitted to targetChainID's network. Individual
// event-instance contracts are not enumerated at boot (discovering them is
// left to an operator or a future indexer integration, per the Non-goal
// excluding a full TON protocol implementation); callers invoke this once
// per contract they want observed.
func (e *Engine) WatchTonEvent(ctx context.Context, account tonsub.AccountID, targetChainID uint64, gasLimit uint64) error {
	target := e.networkByChainID(targetChainID)
	if target == nil {
		return fmt.Errorf("engine: no configured network for chain %d", targetChainID)
	}

	contract := tonobserve.TonEventContract{Account: account, Indexer: e.indexer}
	_, events := tonobserve.Observe(e.subscriber, account, contract, dispatchBuffer, alwaysAlive)
	policy := addressVerificationPolicy()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			finalized, ok := ev.(tonobserve.EventFinalized)
			if !ok {
				continue
			}
			tonEv := confirm.TonEvent{
				TonEventAccount: account,
				TargetContract:  finalized.TargetContract,
				CallData:        finalized.CallData,
			}
			if _, err := confirm.HandleTonFinalizedEvent(ctx, e.log, e.store, target.client, e.handle, tonEv, gasLimit, policy); err != nil {
				e.log.Warnf("engine: handle finalized ton event %x: %v", account, err)
			}
		}
	}
}

func (e *Engine) networkByChainID(chainID uint64) *network {
	for _, n := range e.networks {
		if n.chainID == chainID {
			return n
		}
	}
	return nil
}

// reportScannerHeight periodically copies n's persisted scanner cursor
// onto the relay_evm_scanner_height gauge.
func (e *Engine) reportScannerHeight(ctx context.Context, n *network) error {
	chainLabel := fmt.Sprintf("%d", n.chainID)
	ticker := newTicker(n.cfg.PollInterval.Duration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cursor, err := n.scanner.Cursor(); err == nil {
				e.metrics.ScannerHeight.WithLabelValues(chainLabel).Set(float64(cursor))
			}
		}
	}
}

// reportPendingMetric periodically copies the confirmation pipeline's
// queue depth onto the relay_pending_confirmations gauge.
func (e *Engine) reportPendingMetric(ctx context.Context) error {
	ticker := newTicker(metricsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := e.pipeline.PendingCount(); err == nil {
				e.metrics.PendingConfirmations.Set(float64(n))
			}
		}
	}
}
