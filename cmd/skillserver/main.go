package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/vorpalengineering/x402-skills/config"
	"github.com/vorpalengineering/x402-skills/skillserver"
)

func main() {
	configPath := flag.String("config", "skillserver/config.yaml", "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		logrus.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := skillserver.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := skillserver.NewServer(cfg, skillserver.Options{Logger: logger})
	if err != nil {
		logger.Fatalf("Failed to create skill server: %v", err)
	}
	defer s.Close()

	if err := s.Run(ctx); err != nil {
		logger.Fatalf("Failed to run skill server: %v", err)
	}
}
