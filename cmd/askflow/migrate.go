package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/BaSui01/askflow/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func migrateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "migrate: expected one of up, down, status, version")
		return exitUsage
	}
	action := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	m, err := migration.NewMigratorFromDatabaseConfig(databaseConfig(cfg.Database))
	if errors.Is(err, migration.ErrAutoMigrated) {
		fmt.Fprintf(stdout, "Driver %s: %v\n", cfg.Database.Driver, err)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return exitError
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(stdout)

	switch action {
	case "up":
		err = cli.RunUp(ctx)
	case "down":
		err = cli.RunDown(ctx)
	case "status":
		err = cli.RunStatus(ctx)
	case "version":
		err = cli.RunVersion(ctx)
	default:
		fmt.Fprintf(stderr, "migrate: unknown action %q\n", action)
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "migrate %s: %v\n", action, err)
		return exitError
	}
	return exitOK
}
