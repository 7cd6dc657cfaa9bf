package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"insurance-agent/internal/app"
	"insurance-agent/internal/config"
)

func main() {
	ctx := context.Background()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// ---- Configuration (environment only) ----
	cfg, err := config.Load(os.Getenv("INSURANCE_AGENT_CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if cfg.SessionBackend == config.BackendMemory {
		slog.Warn("memory session backend does not survive cold starts", "backend", cfg.SessionBackend)
	}

	// ---- Wiring ----
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build app", "err", err)
		os.Exit(1)
	}

	lambda.Start(a.Handler.Handle)
}
