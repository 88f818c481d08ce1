package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/facilitator"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "facilitator/config.yaml", "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		logrus.Fatalf("Failed to load env file: %v", err)
	}

	// Load config
	cfg, err := facilitator.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and start facilitator
	f, err := facilitator.NewFacilitator(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create facilitator: %v", err)
	}
	defer f.Close()

	if err := f.Run(ctx); err != nil {
		logger.Fatalf("Failed to run facilitator: %v", err)
	}
}
