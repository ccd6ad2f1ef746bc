// Command walletwatch is the process entrypoint: wires configuration,
// logging, the document store, the chain RPC and indexer clients, and
// every pipeline component together, then blocks until an interrupt
// signal.
//
// The lndMain/main split and the interrupt-driven shutdown channel are
// the teacher's pattern (lnd.go), generalized from a channel daemon to
// a polling surveillance daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/trypto13/jeet-tracker/chainrpc"
	"github.com/trypto13/jeet-tracker/chatbot"
	"github.com/trypto13/jeet-tracker/commands"
	"github.com/trypto13/jeet-tracker/config"
	"github.com/trypto13/jeet-tracker/historical"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexerclient"
	"github.com/trypto13/jeet-tracker/log"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/notifier"
	"github.com/trypto13/jeet-tracker/pipeline"
	"github.com/trypto13/jeet-tracker/ratelimit"
	"github.com/trypto13/jeet-tracker/store"
	"github.com/trypto13/jeet-tracker/utxo"
)

var (
	mainLog         = log.NewSubsystemLogger(log.SubsystemPipeline)
	shutdownChannel = make(chan struct{})
)

const rpcTimeout = 15 * time.Second

func walletwatchMain() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("walletwatch: config: %w", err)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("walletwatch: open store: %w", err)
	}
	defer st.Close(ctx)

	rpcClient := chainrpc.NewHTTPClient(cfg.RPCURL, rpcTimeout)
	indexer := indexerclient.NewHTTPClient(cfg.IndexerURL, rpcTimeout)

	resolver := identity.New(rpcClient, cfg.Network)
	tracker := utxo.New(rpcClient, st)
	hist := historical.New(indexer, st)

	bot, err := chatbot.New(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("walletwatch: chatbot: %w", err)
	}

	notify := notifier.New(st, bot)

	limiter := ratelimit.New()
	handlers := commands.New(commands.Config{
		BotPassword:       cfg.BotPassword,
		MaxWalletsPerUser: cfg.MaxWalletsPerUser,
		AdminChatID:       cfg.AdminChatID,
	}, st, indexer, resolver, hist, limiter)
	handlers.Register(bot.Telebot())

	orchestrator, err := pipeline.New(pipeline.Config{
		PollInterval:   cfg.PollInterval,
		BlockBatchSize: cfg.BlockBatchSize,
		SessionLRUCap:  cfg.SessionLRUCap,
	}, st, rpcClient, indexer, resolver, tracker, notify)
	if err != nil {
		return fmt.Errorf("walletwatch: build orchestrator: %w", err)
	}

	if err := orchestrator.Start(); err != nil {
		return fmt.Errorf("walletwatch: start orchestrator: %w", err)
	}
	defer orchestrator.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				mainLog.Errorf("metrics server: %v", err)
			}
		}()
		defer metricsSrv.Close()
		mainLog.Infof("metrics listening on %s", cfg.MetricsAddr)
	}

	go bot.Start()
	defer bot.Stop()

	mainLog.Infof("walletwatch started on network %s", cfg.Network)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-interrupt:
	case <-shutdownChannel:
	}

	mainLog.Infof("shutdown signal received, stopping")
	return nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := walletwatchMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
