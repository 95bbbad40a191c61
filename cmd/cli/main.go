package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/fwrig/internal/app"
	"github.com/vk/fwrig/internal/cli"
	"github.com/vk/fwrig/internal/hcl_adapter"
	"github.com/vk/fwrig/internal/workspace"
)

// main is the entrypoint for the fwrig application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	// The run interrupt key raises SIGINT, which ends the session normally.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:], os.LookupEnv); err != nil {
		stop()
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW, errW io.Writer, args []string, lookup workspace.LookupFunc) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("locating home directory: %w", err)
	}
	ws, err := workspace.FromEnv(lookup, home)
	if err != nil {
		return err
	}

	loader := hcl_adapter.NewLoader(ws, appConfig.Jobs)
	fwrig := app.NewApp(outW, errW, appConfig, ws, loader)
	return fwrig.Run(ctx)
}
