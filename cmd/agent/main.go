// Package main is the entry point for the companion agent. It keeps the
// device's sharing switch reconciled with the server and reports
// location samples on the configured cadence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/brocosoup/PulseRelay-public-sub001/internal/client"
	"github.com/brocosoup/PulseRelay-public-sub001/internal/middleware"
)

func main() {
	serverURL := flag.String("server", os.Getenv("SERVER_URL"), "base URL of the location API server")
	statePath := flag.String("state", "", "path to the device state file (default: user config dir)")
	fixPath := flag.String("fix-file", os.Getenv("FIX_FILE"), "path to the JSON fix file written by the GPS source")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("PulseRelay Companion Agent")
		fmt.Println()
		fmt.Println("Usage: agent [options]")
		fmt.Println()
		fmt.Println("The owner session token is read from the AGENT_TOKEN environment variable.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	logger := middleware.NewLogger(env)
	slog.SetDefault(logger)

	token := os.Getenv("AGENT_TOKEN")
	if *serverURL == "" || token == "" {
		fmt.Fprintln(os.Stderr, "both -server (or SERVER_URL) and AGENT_TOKEN are required")
		os.Exit(1)
	}

	path := *statePath
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			logger.Error("failed to resolve config dir", "error", err)
			os.Exit(1)
		}
		path = filepath.Join(configDir, "pulserelay", "state.cbor")
	}

	store, err := client.OpenDeviceStore(path)
	if err != nil {
		logger.Error("failed to open device state", "path", path, "error", err)
		os.Exit(1)
	}

	apiClient := client.NewAPIClient(*serverURL, token)
	tracker := newAgentTracker(logger)
	fixes := newFileFixProvider(*fixPath)

	controller := client.NewController(apiClient, store, tracker, fixes, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("agent starting", "server", *serverURL, "state", path)

	if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("agent stopped")
}
