// Package cli implements rumorctl, the operator tool for scoring profiles,
// admin grants and broadcast retries.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/database"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "rumorctl",
	Short:         "Operate a rumorwatch deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var timeout time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	rootCmd.AddCommand(scoringCmd)
	rootCmd.AddCommand(adminsCmd)
	rootCmd.AddCommand(fanoutCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// connect opens the database named by the usual environment and makes sure
// the schema is current.
func connect() (*config.Config, *gorm.DB, error) {
	cfg := config.Load()
	if err := database.Connect(cfg); err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(database.DB); err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	return cfg, database.DB, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
