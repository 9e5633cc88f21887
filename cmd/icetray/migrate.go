package main

import (
	"context"
	"fmt"
	"time"

	"github.com/icetech/icetray/internal/infrastructure/database"
)

// runMigrate applies pending catalogue migrations. -status only reports,
// -down rolls back the most recent migration.
func runMigrate(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("migrate", "")
	status := fs.Bool("status", false, "list applied and pending migrations")
	down := fs.Bool("down", false, "roll back the most recent migration")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	if *status && *down {
		return fmt.Errorf("%w: -status and -down cannot be combined", errUsage)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly; errors surface above

	switch {
	case *status:
		applied, pending, err := db.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		for _, m := range applied {
			fmt.Fprintf(a.stdout, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
		}
		for _, m := range pending {
			fmt.Fprintf(a.stdout, "pending  %s  %s\n", m.Version, m.Name)
		}
		return nil

	case *down:
		m, err := db.MigrateDown(ctx)
		if err != nil {
			return fmt.Errorf("rolling back: %w", err)
		}
		if m == nil {
			fmt.Fprintln(a.stdout, "nothing to roll back")
			return nil
		}
		fmt.Fprintf(a.stdout, "rolled back %s %s\n", m.Version, m.Name)
		return nil
	}

	_, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, m := range pending {
		fmt.Fprintf(a.stdout, "applied %s %s\n", m.Version, m.Name)
	}
	fmt.Fprintf(a.stdout, "%d migrations applied\n", len(pending))
	return nil
}
