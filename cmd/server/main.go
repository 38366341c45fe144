package main

import (
	"log/slog"
	"os"

	"go-auth-service/internal/app"
	"go-auth-service/internal/logger"
)

func main() {
	slog.SetDefault(logger.New(os.Stdout, logger.ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT")))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
