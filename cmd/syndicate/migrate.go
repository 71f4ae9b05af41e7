// ABOUTME: Migration command for copying syndicate data between storage backends
// ABOUTME: Supports sqlite-to-postgres and postgres-to-sqlite with an empty-target check

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate data between storage backends",
	Long: `Migrate all syndicate data from the currently configured backend to a different backend.

Copies source groups (with their fetch state) and items in every state. Does NOT
update the config file; verify the migration was successful then update
config.hcl manually.

Examples:
  syndicate migrate --to postgres --dsn postgres://localhost/syndicate
  syndicate migrate --to sqlite --target-dir ~/syndicate-sqlite`,
	RunE: runMigrate,
}

var (
	migrateTo        string
	migrateDSN       string
	migrateTargetDir string
	migrateForce     bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target backend (sqlite or postgres)")
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "target Postgres connection string")
	migrateCmd.Flags().StringVar(&migrateTargetDir, "target-dir", "", "target data directory for sqlite (defaults to current data_dir)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "allow writing into a non-empty target")
	_ = migrateCmd.MarkFlagRequired("to")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sourceBackend := cfg.GetBackend()
	if migrateTo != "sqlite" && migrateTo != "postgres" {
		return fmt.Errorf("invalid target backend %q: must be \"sqlite\" or \"postgres\"", migrateTo)
	}
	if migrateTo == sourceBackend {
		return fmt.Errorf("target backend %q is the same as the current backend", migrateTo)
	}

	dst, target, err := openMigrateTarget(ctx)
	if err != nil {
		return fmt.Errorf("open target storage (%s): %w", migrateTo, err)
	}
	defer dst.Close()

	existing, err := dst.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("check target storage: %w", err)
	}
	if len(existing) > 0 && !migrateForce {
		return fmt.Errorf("target %s already holds %d group(s); use --force to write anyway", target, len(existing))
	}

	out := cmd.OutOrStdout()
	color.New(color.FgYellow).Fprintln(out, "Migrating syndicate data:")
	fmt.Fprintf(out, "  Source:  %s\n", sourceBackend)
	fmt.Fprintf(out, "  Target:  %s (%s)\n", migrateTo, target)
	fmt.Fprintln(out)

	summary, err := storage.MigrateData(ctx, store, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	color.New(color.FgGreen).Fprintln(out, "Migration complete!")
	fmt.Fprintf(out, "  Groups: %d\n", summary.Groups)
	fmt.Fprintf(out, "  Items:  %d\n", summary.Items)
	fmt.Fprintln(out)
	color.New(color.FgYellow).Fprintln(out, "Note: the config was NOT updated. To switch to the new backend, edit:")
	fmt.Fprintf(out, "  %s\n", config.GetConfigPath())
	fmt.Fprintf(out, "  Set backend = %q\n", migrateTo)
	return nil
}

// openMigrateTarget opens the destination store and describes it for output.
func openMigrateTarget(ctx context.Context) (storage.Store, string, error) {
	switch migrateTo {
	case "sqlite":
		dir := cfg.GetDataDir()
		if migrateTargetDir != "" {
			dir = config.ExpandPath(migrateTargetDir)
		}
		path := filepath.Join(dir, config.DefaultDBFilename)
		s, err := storage.NewSQLiteStore(path)
		return s, path, err
	case "postgres":
		if migrateDSN == "" {
			return nil, "", fmt.Errorf("--dsn is required for postgres")
		}
		s, err := storage.NewPostgresStore(ctx, migrateDSN)
		return s, "postgres", err
	default:
		return nil, "", fmt.Errorf("unknown backend: %q", migrateTo)
	}
}
