package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/exlog/internal/control"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the exception store schema",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	backend, err := control.OpenBackend(cfg.Store)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	ctx := context.Background()
	if err := backend.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate store", "error", err)
		os.Exit(1)
	}

	version, err := backend.SchemaVersion(ctx)
	if err != nil {
		slog.Error("Failed to read schema version", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Store %s migrated to version %d\n", cfg.Store.Driver, version)
}
