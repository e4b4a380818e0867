package cmd

import (
	"context"
	"time"

	coreconfig "github.com/AzielCF/az-connect/core/config"
	coreDB "github.com/AzielCF/az-connect/core/database"
	"github.com/AzielCF/az-connect/messaging/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	Run:   migrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(_ *cobra.Command, _ []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := coreDB.NewDatabase(coreconfig.Global)
	if err != nil {
		logrus.Fatalf("[MIGRATION] %v", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logrus.Fatalf("[MIGRATION] %v", err)
	}
	logrus.Info("[MIGRATION] Schema is up to date")
}
