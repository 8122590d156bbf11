package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Haleralex/payledger/internal/config"
	"github.com/Haleralex/payledger/internal/container"
)

// Заполняются через -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath string
		configName string
		envFile    string
	)

	flag.StringVar(&configPath, "config-path", "configs", "Directory with the config file")
	flag.StringVar(&configName, "config-name", "config", "Config file name without extension")
	flag.StringVar(&envFile, "env-file", ".env", "Optional .env file with PAYLEDGER_* variables")
	flag.Parse()

	// 1. .env (необязателен)
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("failed to load %s: %v", envFile, err)
	}

	// 2. Configuration
	cfg, err := config.Load(configPath, configName)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if version != "dev" {
		cfg.App.Version = version
	}

	ctx := context.Background()

	// 3. Container
	app, err := container.NewBuilder(cfg).
		WithBuildTime(buildTime).
		Build(ctx)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	logger := app.Logger()

	// 4. Run until SIGINT/SIGTERM
	if err := app.Run(ctx); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		_ = app.Close(ctx)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
