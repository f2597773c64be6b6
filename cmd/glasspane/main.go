package main

import (
	"context"
	"runtime"

	"glasspane/internal/bootstrap"
	"glasspane/internal/config"
	"glasspane/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewConsoleLogger(logger.InfoLevel).Fatal("Main", err, map[string]interface{}{
			"stage": "config",
		})
	}

	log := logger.New(cfg.LogLevel(), cfg.Log.JSON)
	log.Info("Main", "application starting", map[string]interface{}{
		"version":    cfg.App.Version,
		"go_version": runtime.Version(),
		"log_level":  cfg.LogLevel().String(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	err = bootstrap.New(log).Run(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Main", err, map[string]interface{}{
			"stage": "run",
		})
	}

	log.Info("Main", "application terminated", nil)
}
