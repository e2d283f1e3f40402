package command

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"support-dashboard/internal/config"
)

const AppName = "support-dashboard"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Real-time support dashboard server",
		Long:          "support-dashboard serves the chat and peer-to-peer ledger dashboard and keeps every connected client in sync.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "optional config file (yaml, json or env)")
	cmd.PersistentFlags().String("data-dir", "", "directory holding messages.json and transfers.json")
	_ = v.BindPFlag("DATA_DIR", cmd.PersistentFlags().Lookup("data-dir"))

	cmd.AddCommand(
		NewServeCmd(v),
		NewMigrateTransfersCmd(v),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	return config.Load(v, file)
}
