package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/billpay-relay/db"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run the embedded db migrations for the configured driver",
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	_, sdb, err := initDB(cfg.Database)
	if err != nil {
		log.Fatalf("migrate: failed to open DB: %v\n", err)
	}
	defer sdb.Close()

	if err := db.Migrate(ctx, sdb.DB, cfg.Database.Driver, migrateRollback); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	return nil
}
