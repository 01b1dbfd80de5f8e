package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	clts "polysentry/clients"
	"polysentry/config"
	"polysentry/internal/app"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("polysentry", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default ./polysentry.{yaml,json,toml} if present)")
	once := fs.Bool("once", false, "run a single monitoring cycle and exit")
	fs.String("stage", "", "deployment stage (PROD or BETA)")
	fs.Duration("cycle-interval", 0, "time between monitoring cycles")
	fs.Int("health-port", 0, "health/stats server port")
	_ = fs.Parse(os.Args[1:])

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	loader := config.NewLoader(logger, *configPath)
	if err := loader.BindFlags(fs); err != nil {
		logger.Fatal("failed to bind flags", zap.Error(err))
	}

	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if cfg.LogDevelopment {
		devLogger, err := zap.NewDevelopment()
		if err != nil {
			panic(fmt.Errorf("dev logger: %w", err))
		}
		logger = devLogger
		defer logger.Sync()
	}

	logger.Info("starting polysentry",
		zap.Bool("isProd", cfg.IsProd()),
		zap.String("commit", app.BuildCommit),
		zap.Bool("once", *once),
	)

	// Create LiveConfig with loaded config as initial value
	liveConfig := config.NewLiveConfig(cfg)
	loader.Watch(liveConfig)

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer func() {
		if err := clients.Close(); err != nil {
			logger.Warn("failed to close clients", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, liveConfig)

	if *once {
		start := time.Now()
		report := runner.RunOnce(ctx)
		logger.Info("single cycle finished",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("alerts", report.Alerts),
			zap.Int("walletsEvaluated", report.WalletsEvaluated),
		)
		return
	}

	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
