package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/app"
	"github.com/obiente/spendvoice/internal/config"
	"github.com/obiente/spendvoice/internal/logger"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}
	log.Logger = logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, version)
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		code = 1
	}

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	return code
}
