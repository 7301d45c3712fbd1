// Command cycled serves token issuance and cycle statistics over HTTP.
//
// Usage:
//
//	cycled [flags] [serve]        run the API server (default)
//	cycled [flags] migrate        apply database migrations and exit
//	cycled [flags] useradd NAME   create a login account, reading the password from the terminal
//	cycled [flags] healthcheck    probe /healthz of a running server
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "cycled: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, rest, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "serve":
		return runServe(ctx, cfg, logger)
	case "migrate":
		return runMigrate(ctx, cfg, logger)
	case "useradd":
		if len(rest) != 1 {
			return fmt.Errorf("usage: cycled useradd USERNAME")
		}
		return runUserAdd(ctx, cfg, logger, rest[0], stderr)
	case "healthcheck":
		return runHealthcheck(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
