package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sunshineDad/poping/db"
	"github.com/sunshineDad/poping/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL()); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
