package command

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/migrate"
)

func NewMigrateTransfersCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate-transfers",
		Short: "Backfill dates and transaction ids in the ledger file",
		Long:  "Backs up the ledger file, fills in missing dates and transaction ids, sorts entries newest first and rewrites it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger.Init(cfg.Env, cfg.LogLevel)

			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				path = cfg.TransfersPath()
			}

			result, err := migrate.Transfers(migrate.Options{Path: path})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup: %s\nmigrated %d records (%d dates, %d ids filled)\n",
				result.BackupPath, result.Total, result.DatesFilled, result.IDsFilled)
			return nil
		},
	}
	cmd.Flags().String("file", "", "ledger file to migrate (defaults to the configured transfers file)")
	return cmd
}
