package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/modelfoundry/modelamm/internal/config"
	"github.com/modelfoundry/modelamm/internal/logger"
	"github.com/modelfoundry/modelamm/internal/service"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the service configuration")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.DebugLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting model AMM service", zap.String("config", *configPath))

	runner := service.NewRunner(cfg, log)
	if err := runner.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Service execution error", zap.Error(err))
	}
}
