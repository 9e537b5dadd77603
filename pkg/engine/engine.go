// Package engine implements the relay's bootstrap and wiring layer (C9):
// Bootstrap turns a parsed config.RelayConfig into a fully wired *Engine,
// and Engine.Run starts every long-running component (one evmscan.Scanner
// per network, the TON subscriber/delivery pair, the confirmation
// pipeline, and the elections controller) and blocks until shutdown.
// Grounded on original_source/src/engine/mod.rs's Engine/Relay struct
// (the thing that owns every subsystem and exposes a single run loop) and
// on the reference validator's cmd/*/main.go construction order (open
// store, open keys, construct adapters, start goroutines).
package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/ton-relay/pkg/confirm"
	"github.com/certen/ton-relay/pkg/config"
	"github.com/certen/ton-relay/pkg/elections"
	"github.com/certen/ton-relay/pkg/ethereum"
	"github.com/certen/ton-relay/pkg/evmscan"
	"github.com/certen/ton-relay/pkg/keystore"
	"github.com/certen/ton-relay/pkg/kvstore"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/metrics"
	"github.com/certen/ton-relay/pkg/tonindexer"
	"github.com/certen/ton-relay/pkg/tonobserve"
	"github.com/certen/ton-relay/pkg/tonsub"
)

// network bundles one configured EVM chain's wiring.
type network struct {
	cfg     config.NetworkConfig
	chainID uint64
	client  *ethereum.Client
	scanner *evmscan.Scanner
	subs    *evmscan.Subscriptions
}

// Engine owns every long-running component the relay drives.
type Engine struct {
	log     *logging.Logger
	cfg     *config.RelayConfig
	store   *kvstore.Store
	handle  *keystore.Handle
	metrics *metrics.Registry

	indexer    tonindexer.Indexer
	subscriber *tonsub.Subscriber
	delivery   *tonobserve.Delivery

	self         tonsub.AccountID
	bridge       tonobserve.BridgeContract
	electionsAcc tonsub.AccountID
	userDataAcc  tonsub.AccountID
	controller   *elections.Controller

	pipeline *confirm.Pipeline
	networks []*network
	primary  *network
}

// Bootstrap wires C1 (the persistent store), C3 (the keystore), one C4
// scanner per configured network, the C5/C6 TON stack, C7 and C8 into a
// runnable Engine. indexer is supplied by the caller: this repository
// treats the TON indexer as an operator-provided concrete implementation
// of the tonindexer.Indexer interface, per the Non-goal excluding a TON
// protocol implementation.
func Bootstrap(log *logging.Logger, cfg *config.RelayConfig, indexer tonindexer.Indexer) (*Engine, error) {
	store, err := kvstore.Open("relay", cfg.NodeSettings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	password, err := cfg.MasterPassword()
	if err != nil {
		return nil, err
	}
	handle, err := keystore.Open(cfg.KeystorePath, password)
	if err != nil {
		return nil, fmt.Errorf("engine: open keystore: %w", err)
	}

	self, err := tonsub.ParseAccountID(cfg.StakerAddress)
	if err != nil {
		return nil, fmt.Errorf("engine: staker_address: %w", err)
	}
	bridgeAcc, err := tonsub.ParseAccountID(cfg.BridgeAddress)
	if err != nil {
		return nil, fmt.Errorf("engine: bridge_address: %w", err)
	}
	electionsAcc, err := tonsub.ParseAccountID(cfg.ElectionsAddress)
	if err != nil {
		return nil, fmt.Errorf("engine: elections_address: %w", err)
	}
	userDataAcc, err := tonsub.ParseAccountID(cfg.UserDataAddress)
	if err != nil {
		return nil, fmt.Errorf("engine: user_data_address: %w", err)
	}

	subscriber := tonsub.New(log)
	delivery := tonobserve.NewDelivery(indexer, subscriber)
	bridge := tonobserve.BridgeContract{Account: bridgeAcc, Indexer: indexer}
	electionsContract := tonobserve.ElectionsContract{Account: electionsAcc, Indexer: indexer}
	controller := elections.NewController(log.With("C8 elections"), electionsContract, delivery, handle, self)

	reg := metrics.New(prometheus.DefaultRegisterer)
	pipeline := confirm.New(store)
	pipeline.SetMetrics(reg)
	controller.SetMetrics(reg)

	networks := make([]*network, 0, len(cfg.Networks))
	for _, nc := range cfg.Networks {
		chainID := uint64(nc.ChainID)

		node, err := evmscan.DialNode(context.Background(), nc.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("engine: dial network %q: %w", nc.Name, err)
		}
		client, err := ethereum.NewClient(nc.Endpoint, nc.ChainID)
		if err != nil {
			return nil, fmt.Errorf("engine: ethereum client for %q: %w", nc.Name, err)
		}

		subs := evmscan.NewSubscriptions()
		timeouts := evmscan.Timeouts{
			PollInterval:    nc.PollInterval.Duration(),
			RequestTimeout:  nc.RequestTimeout.Duration(),
			RequestAttempts: nc.RequestAttempts,
			TotalFailBudget: nc.TotalFailBudget.Duration(),
		}
		scanner := evmscan.NewScanner(chainID, node, store, subs, timeouts, nc.Parallelism, log)

		networks = append(networks, &network{cfg: nc, chainID: chainID, client: client, scanner: scanner, subs: subs})
	}

	e := &Engine{
		log:          log,
		cfg:          cfg,
		store:        store,
		handle:       handle,
		metrics:      reg,
		indexer:      indexer,
		subscriber:   subscriber,
		delivery:     delivery,
		self:         self,
		bridge:       bridge,
		electionsAcc: electionsAcc,
		userDataAcc:  userDataAcc,
		controller:   controller,
		pipeline:     pipeline,
		networks:     networks,
	}
	if len(networks) > 0 {
		e.primary = networks[0]
	}
	return e, nil
}

// verifyEthAddress builds the elections.EthAddressVerifier used during
// identity bootstrap: it asks the bridge contract where the verification
// transaction should land, then submits it on the primary configured
// network, encoding the relay's own TON account in the call data (this
// repository's opaque stand-in for the bridge-defined verification
// payload, per §6).
func (e *Engine) verifyEthAddress(ctx context.Context) error {
	if e.primary == nil {
		return fmt.Errorf("engine: cannot verify eth address without a configured network")
	}
	target, err := e.bridge.VerificationTarget(ctx)
	if err != nil {
		return err
	}
	policy := addressVerificationPolicy()
	_, err = e.primary.client.SendWithHandle(ctx, e.log, e.handle, common.Address(target), e.self[:], addressVerificationGasLimit, policy)
	return err
}
