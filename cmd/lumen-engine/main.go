package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumen-amm/lumen/internal/bus"
	"github.com/lumen-amm/lumen/internal/collab"
	"github.com/lumen-amm/lumen/internal/config"
	"github.com/lumen-amm/lumen/internal/engine"
	"github.com/lumen-amm/lumen/internal/referral"
	"github.com/lumen-amm/lumen/internal/rewards"
	"github.com/lumen-amm/lumen/internal/stream"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "lumen-engine").
		Logger()

	log.Info().Msg("========================================")
	log.Info().Msg("Lumen AMM Engine - Starting")
	log.Info().Msg("========================================")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", *configPath).Msg("No config file, using defaults")
			cfg = config.Default()
		} else {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
	}

	if cfg.General.LogFormat == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if level, err := zerolog.ParseLevel(cfg.General.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("quote_token", cfg.Engine.QuoteToken).
		Uint64("fee_bps", cfg.Fees.FeeBPS).
		Msg("Configuration loaded")

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// Event bus
	producer := bus.NewMemoryBus()
	defer producer.Close()

	// Settlement: paper ledger and pool seeder. Swaps are settled against
	// an in-process ledger; the mint authority and treasury are faucets so
	// curve creation and payouts never bounce on balance.
	ledger := collab.NewPaperLedger(cfg.Engine.MintAuthority, "treasury")
	pools := collab.NewPaperPool()

	// Reward accounting
	table, err := rewards.NewTierTable(cfg.Tiers)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tier table")
	}
	book := rewards.NewBook(table, cfg.Rewards.ClaimCooldown)
	graph := referral.NewGraph()

	eng, err := engine.New(engine.Options{
		Admin:         cfg.Engine.Admin,
		QuoteToken:    cfg.Engine.QuoteToken,
		MintAuthority: cfg.Engine.MintAuthority,
		FeeConfig:     cfg.Fees,
		Params:        cfg.Curve,
		Book:          book,
		Graph:         graph,
		Transferrer:   ledger,
		Seeder:        pools,
		Producer:      producer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	// WebSocket event stream
	var streamSrv *stream.Server
	if cfg.Stream.Enabled {
		streamSrv = stream.New(producer, cfg.Stream.SubscriberBuffer)
		if err := streamSrv.Start(ctx, cfg.Stream.ListenAddr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start event stream")
		}
	}

	log.Info().Msg("All components initialized")

	// Wait for shutdown
	<-ctx.Done()

	if streamSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := streamSrv.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Event stream shutdown error")
		}
	}

	swaps, rejects, migrations := eng.Stats()
	log.Info().
		Int64("swaps", swaps).
		Int64("rejects", rejects).
		Int64("migrations", migrations).
		Msg("Lumen AMM Engine - Shutdown complete")
}
