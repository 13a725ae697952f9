// Command server runs the habit-rewards HTTP API.
//
// Startup is config -> logger -> store -> server. Everything else lives in
// internal/. Configuration comes from the environment, optionally layered over
// a YAML file given with -config or HABITS_CONFIG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/habit-rewards/internal/config"
	"github.com/sakif/habit-rewards/internal/repository/backend"
	"github.com/sakif/habit-rewards/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("HABITS_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger, closer, err := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	if !cfg.AuthEnabled() {
		logger.Warn("JWT_SECRET not set, authentication is disabled")
	}
	if cfg.AdminEmail == "" {
		logger.Warn("ADMIN_EMAIL not set, nobody will be granted the admin role")
	}

	// === 3. STORE ===
	store, err := backend.Open(context.Background(), backend.Config{
		Kind:     cfg.StoreBackend,
		RedisURL: cfg.RedisURL,
		DBPath:   cfg.DBPath,
		Timeout:  cfg.StoreTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT/SIGTERM and closes the store on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
