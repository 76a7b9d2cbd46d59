// curvewatch ingests bonding-curve events from the chain, maintains
// OHLCV candles and market stats, and fans everything out to Redis and
// the presentation backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0xpads/curvewatch/internal/config"
	"github.com/0xpads/curvewatch/internal/pipeline"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	sup, err := pipeline.New(cfg, version)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", version).
		Str("chain_ws", cfg.Blockchain.WsURL).
		Int64("chain_id", cfg.Blockchain.ChainID).
		Msg("curvewatch starting")

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("curvewatch exited with error")
		os.Exit(1)
	}
	log.Info().Msg("curvewatch stopped")
}
