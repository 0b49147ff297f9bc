package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/config"
	"github.com/initiative-app/offline-edge/internal/edge"
	"github.com/initiative-app/offline-edge/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/offline-edge.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	noWatch := flag.Bool("no-watch", false, "Disable config file watching")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Initiative Offline Edge %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("Starting Initiative Offline Edge",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("upstream", cfg.Upstream.Origin),
		zap.String("backend", cfg.Cache.Backend),
		zap.String("static_version", cfg.Cache.StaticVersion),
	)

	server, err := edge.NewServer(cfg)
	if err != nil {
		logging.Error("Failed to create server", zap.Error(err))
		os.Exit(1)
	}

	if !*noWatch {
		if err := server.WatchConfig(*configPath); err != nil {
			logging.Warn("Config watching disabled", zap.Error(err))
		}
	}

	if err := server.Run(); err != nil {
		logging.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}
