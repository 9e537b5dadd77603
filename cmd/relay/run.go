package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/certen/ton-relay/pkg/config"
	"github.com/certen/ton-relay/pkg/engine"
	"github.com/certen/ton-relay/pkg/logging"
	"github.com/certen/ton-relay/pkg/tonindexer"
)

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the relay config file")
	globalConfigPath := fs.String("global-config", "global-config.json", "path to the TON network config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	globalCfg, err := config.LoadGlobalConfig(*globalConfigPath)
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	log.Infof("relay: loaded config from %s (%d networks configured)", *configPath, len(cfg.Networks))

	indexer := newIndexer(log, globalCfg)

	e, err := engine.Bootstrap(log.With("C9 engine"), cfg, indexer)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- e.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGABRT, syscall.SIGTSTP)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloaded, err := config.Load(*configPath)
			if err != nil {
				log.Errorf("relay: reload config from %s: %v; keeping the running config", *configPath, err)
				continue
			}
			log.SetLevel(logging.ParseLevel(reloaded.LogLevel))
			log.Infof("relay: reloaded config from %s (log_level applied; other settings take effect on restart)", *configPath)
		}
	}()

	select {
	case s := <-sig:
		log.Infof("relay: received %s, shutting down", s)
		cancel()
		<-runErr
		return nil
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("engine stopped: %w", err)
		}
		return nil
	}
}

// newIndexer builds the tonindexer.Indexer the engine drives. Running an
// actual TON protocol client is out of scope for this repository (per the
// Non-goal excluding a TON node implementation); an in-memory Fake stands in
// here so "relay run" starts end to end, and a production deployment swaps
// this construction for a real client that implements tonindexer.Indexer.
func newIndexer(log *logging.Logger, cfg tonindexer.NetworkConfig) tonindexer.Indexer {
	log.Warnf("relay: no TON protocol client is wired in this build; using an in-memory placeholder indexer that will never observe real chain activity")
	return tonindexer.NewFake(cfg)
}
