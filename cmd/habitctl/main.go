// Command habitctl runs the maintenance toolkit and raw key edits directly
// against the store the server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/sakif/habit-rewards/internal/cli"
	"github.com/sakif/habit-rewards/internal/config"
	"github.com/sakif/habit-rewards/internal/repository/backend"
	"github.com/sakif/habit-rewards/internal/service"
)

var CLI struct {
	Config string `help:"Config file path." type:"path" env:"HABITS_CONFIG"`
	Format string `help:"Output format." enum:"json,yaml" default:"json" short:"o"`

	Keys      cli.KeysCmd      `cmd:"" help:"List keys with their kind."`
	Get       cli.GetCmd       `cmd:"" help:"Print the value at a key."`
	Set       cli.SetCmd       `cmd:"" help:"Write a raw value."`
	Del       cli.DelCmd       `cmd:"" help:"Delete a key."`
	Inventory cli.InventoryCmd `cmd:"" help:"Summarise profiles, pointers and data keys."`
	Cleanup   cli.CleanupCmd   `cmd:"" help:"Merge duplicate profiles that share an email."`
	Migrate   cli.MigrateCmd   `cmd:"" help:"Move email-keyed data to id-keyed data."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("habitctl"),
		kong.Description("Maintenance tool for the habit-rewards store"),
		kong.UsageOnError(),
	)

	if err := run(kctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout stays parseable.
	logger, closer, err := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := backend.Open(ctx, backend.Config{
		Kind:              cfg.StoreBackend,
		RedisURL:          cfg.RedisURL,
		DBPath:            cfg.DBPath,
		Timeout:           cfg.StoreTimeout,
		RequirePersistent: true,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	return kctx.Run(&cli.Context{
		Ctx:         ctx,
		Maintenance: service.NewMaintenanceService(store, nil, logger),
		Out:         os.Stdout,
		Format:      CLI.Format,
	})
}
