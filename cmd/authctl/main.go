package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"go-auth-service/internal/cli"
	"go-auth-service/internal/client/tokenstore"
	"go-auth-service/internal/logger"
)

func main() {
	slog.SetDefault(logger.New(os.Stderr, logger.ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT")))
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		return 2
	}

	store, err := tokenstore.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		return 1
	}
	defer store.Close()

	app, err := cli.NewApp(ctx, cfg, store, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		return 1
	}

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
