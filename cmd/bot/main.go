package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Armin-kho/crypto-spread-bot/internal/bot"
	"github.com/Armin-kho/crypto-spread-bot/internal/config"
	"github.com/Armin-kho/crypto-spread-bot/internal/db"
	"github.com/Armin-kho/crypto-spread-bot/internal/logging"
	"github.com/Armin-kho/crypto-spread-bot/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to config.json")
	backup := flag.String("backup", "", "write a copy of the settings database to this path and exit")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Setup(false)
		log.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Setup(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *backup != "" {
		d, err := db.Open(cfg.DBPath())
		if err != nil {
			logger.Fatal().Err(err).Msg("open db")
		}
		err = d.BackupTo(ctx, *backup)
		_ = d.Close()
		if err != nil {
			logger.Fatal().Err(err).Msg("backup failed")
		}
		logger.Info().Str("path", *backup).Msg("backup written")
		return
	}

	if err := cfg.ValidateBot(); err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	rec := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	app, err := bot.New(ctx, cfg, logger, rec)
	if err != nil {
		logger.Fatal().Err(err).Msg("init error")
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("run error")
	}
	logger.Info().Msg("shutting down")
}
